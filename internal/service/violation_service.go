package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"violation-service/internal/domain/violation"
	"violation-service/internal/policy"
	"violation-service/internal/repository"
	"violation-service/internal/resolver"
	"violation-service/internal/utils"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrNoViolationDetected = errors.New("no traffic violation detected in image")
	ErrTypeMismatch        = errors.New("violation type mismatch")
	ErrDetectionFailed     = errors.New("detection failed")
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

var validStatuses = map[string]bool{
	repository.StatusPending:   true,
	repository.StatusResolved:  true,
	repository.StatusDismissed: true,
}

type ViolationService struct {
	repo     *repository.ViolationRepository
	detector Detector
	resolver *resolver.Resolver
	policy   *policy.Table
	sink     Sink
	now      func() time.Time
	log      zerolog.Logger
}

func NewViolationService(
	repo *repository.ViolationRepository,
	detector Detector,
	res *resolver.Resolver,
	table *policy.Table,
	sink Sink,
	log zerolog.Logger,
) *ViolationService {
	return &ViolationService{
		repo:     repo,
		detector: detector,
		resolver: res,
		policy:   table,
		sink:     sink,
		now:      time.Now,
		log:      log,
	}
}

type UploadRequest struct {
	VehicleNumber string
	ViolationType string
	Location      string
	OfficerID     string
	Image         []byte
}

type UploadResult struct {
	Violation violation.Confirmed   `json:"violation"`
	Detected  []violation.Candidate `json:"detected"`
	Message   string                `json:"message"`
}

// SubmitUpload registers an officer-submitted violation once the detector
// confirms the claimed type is visible in the image. Uploads bypass the
// cooldown check.
func (s *ViolationService) SubmitUpload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	vehicle := utils.NormalizePlate(req.VehicleNumber)
	if vehicle == "" {
		return nil, fmt.Errorf("%w: vehicle_number is required", ErrInvalidInput)
	}
	claimed, ok := violation.ParseType(req.ViolationType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown violation_type %q", ErrInvalidInput, req.ViolationType)
	}
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: image is required", ErrInvalidInput)
	}

	detection := s.detector.Detect(ctx, req.Image)
	res := s.resolver.ResolveResult(detection)
	if res.Status == violation.StatusDetectionFailed {
		return nil, fmt.Errorf("%w: %s", ErrDetectionFailed, detection.Error)
	}
	if len(res.Candidates) == 0 {
		return nil, fmt.Errorf("%w: please upload an image containing a clear %s", ErrNoViolationDetected, claimed)
	}

	var matched *violation.Candidate
	detected := make([]string, 0, len(res.Candidates))
	for i, c := range res.Candidates {
		detected = append(detected, fmt.Sprintf("%s (%.0f%%)", c.SourceClass, c.Confidence*100))
		if c.Type == claimed {
			matched = &res.Candidates[i]
		}
	}
	if matched == nil {
		return nil, fmt.Errorf("%w: selected %q but detected %s", ErrTypeMismatch, claimed, strings.Join(detected, ", "))
	}

	location := req.Location
	if location == "" {
		location = "Manual Upload"
	}

	confirmed := violation.Confirmed{
		ID:              uuid.New(),
		VehicleIdentity: violation.VehicleIdentity(vehicle),
		Type:            claimed,
		Confidence:      matched.Confidence,
		BBox:            matched.BBox,
		SourceClass:     matched.SourceClass,
		FineAmount:      s.policy.Fine(claimed),
		Timestamp:       s.now(),
		Location:        location,
		OfficerID:       req.OfficerID,
	}

	if err := s.sink.Persist(ctx, &confirmed); err != nil {
		s.log.Error().
			Err(err).
			Str("vehicle", vehicle).
			Str("violation_type", string(claimed)).
			Msg("failed to save uploaded violation")
		return nil, fmt.Errorf("failed to save violation: %w", err)
	}

	if err := s.sink.Notify(ctx, confirmed); err != nil {
		s.log.Warn().Err(err).Str("violation_id", confirmed.ID.String()).Msg("failed to send violation notification")
	}

	s.log.Info().
		Str("violation_id", confirmed.ID.String()).
		Str("vehicle", vehicle).
		Str("violation_type", string(claimed)).
		Float64("confidence", matched.Confidence).
		Str("officer_id", req.OfficerID).
		Msg("uploaded violation confirmed")

	return &UploadResult{
		Violation: confirmed,
		Detected:  res.Candidates,
		Message:   fmt.Sprintf("Violation confirmed: %s detected with %.0f%% confidence", matched.SourceClass, matched.Confidence*100),
	}, nil
}

type CreateRequest struct {
	VehicleNumber string
	ViolationType string
	Location      string
	OfficerID     string
	FineAmount    float64
}

// Create registers a violation without image verification. A zero fine
// falls back to the policy fine for the type.
func (s *ViolationService) Create(ctx context.Context, req CreateRequest) (*repository.Violation, error) {
	vehicle := utils.NormalizePlate(req.VehicleNumber)
	if vehicle == "" {
		return nil, fmt.Errorf("%w: vehicle_number is required", ErrInvalidInput)
	}
	typ, ok := violation.ParseType(req.ViolationType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown violation_type %q", ErrInvalidInput, req.ViolationType)
	}
	if req.FineAmount < 0 {
		return nil, fmt.Errorf("%w: fine_amount must not be negative", ErrInvalidInput)
	}

	fine := req.FineAmount
	if fine == 0 {
		fine = s.policy.Fine(typ)
	}

	v := violation.Confirmed{
		ID:              uuid.New(),
		VehicleIdentity: violation.VehicleIdentity(vehicle),
		Type:            typ,
		SourceClass:     typ.Class(),
		FineAmount:      fine,
		Timestamp:       s.now(),
		Location:        req.Location,
		OfficerID:       req.OfficerID,
	}

	if err := s.sink.Persist(ctx, &v); err != nil {
		s.log.Error().
			Err(err).
			Str("vehicle", vehicle).
			Str("violation_type", string(typ)).
			Msg("failed to create violation")
		return nil, fmt.Errorf("failed to create violation: %w", err)
	}

	if err := s.sink.Notify(ctx, v); err != nil {
		s.log.Warn().Err(err).Str("violation_id", v.ID.String()).Msg("failed to send violation notification")
	}

	s.log.Info().
		Str("violation_id", v.ID.String()).
		Str("vehicle", vehicle).
		Str("violation_type", string(typ)).
		Float64("fine_amount", fine).
		Msg("violation created")

	return s.Get(ctx, v.ID.String())
}

func (s *ViolationService) List(ctx context.Context, status *string, skip, limit int) ([]repository.Violation, error) {
	if status != nil && !validStatuses[*status] {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *status)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if skip < 0 {
		skip = 0
	}

	violations, err := s.repo.List(ctx, status, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	return violations, nil
}

func (s *ViolationService) Get(ctx context.Context, id string) (*repository.Violation, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	v, err := s.repo.GetByID(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: violation %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get violation: %w", err)
	}
	return v, nil
}

func (s *ViolationService) UpdateStatus(ctx context.Context, id, status string) (*repository.Violation, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if !validStatuses[status] {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	if err := s.repo.UpdateStatus(ctx, uid, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: violation %s", ErrNotFound, id)
		}
		s.log.Error().Err(err).Str("violation_id", id).Msg("failed to update violation status")
		return nil, fmt.Errorf("failed to update violation: %w", err)
	}

	s.log.Info().Str("violation_id", id).Str("status", status).Msg("violation status updated")
	return s.Get(ctx, id)
}

func (s *ViolationService) Delete(ctx context.Context, id string) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, uid); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: violation %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete violation: %w", err)
	}

	s.log.Info().Str("violation_id", id).Msg("violation deleted")
	return nil
}

func parseID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid violation id", ErrInvalidInput)
	}
	return uid, nil
}
