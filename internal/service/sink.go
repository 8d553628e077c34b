package service

import (
	"context"

	"violation-service/internal/domain/violation"
	"violation-service/internal/notify"
	"violation-service/internal/repository"
)

// RecordSink persists through the violation repository and notifies through
// the configured notifier.
type RecordSink struct {
	repo     *repository.ViolationRepository
	notifier notify.Notifier
}

func NewRecordSink(repo *repository.ViolationRepository, notifier notify.Notifier) *RecordSink {
	return &RecordSink{
		repo:     repo,
		notifier: notifier,
	}
}

func (s *RecordSink) Persist(ctx context.Context, v *violation.Confirmed) error {
	return s.repo.Create(ctx, v)
}

func (s *RecordSink) Notify(ctx context.Context, v violation.Confirmed) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Notify(ctx, v)
}
