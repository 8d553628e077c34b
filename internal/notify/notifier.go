package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"violation-service/internal/domain/violation"
)

// Notifier delivers a confirmed violation to downstream stakeholders.
type Notifier interface {
	Notify(ctx context.Context, v violation.Confirmed) error
}

// Event is the downstream representation of a confirmed violation, a penalty
// slip with everything needed to contact the offender.
type Event struct {
	ViolationID   uuid.UUID `json:"violation_id"`
	VehicleNumber string    `json:"vehicle_number"`
	ViolationType string    `json:"violation_type"`
	FineAmount    float64   `json:"fine_amount"`
	Confidence    float64   `json:"confidence,omitempty"`
	Location      string    `json:"location"`
	CameraID      string    `json:"camera_id,omitempty"`
	OfficerID     string    `json:"officer_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewEvent(v violation.Confirmed) Event {
	return Event{
		ViolationID:   v.ID,
		VehicleNumber: v.VehicleIdentity.String(),
		ViolationType: string(v.Type),
		FineAmount:    v.FineAmount,
		Confidence:    v.Confidence,
		Location:      v.Location,
		CameraID:      v.CameraID,
		OfficerID:     v.OfficerID,
		OccurredAt:    v.Timestamp,
	}
}

type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, v violation.Confirmed) error {
	n.log.Info().
		Str("violation_id", v.ID.String()).
		Str("vehicle", v.VehicleIdentity.String()).
		Str("violation_type", string(v.Type)).
		Float64("fine_amount", v.FineAmount).
		Str("location", v.Location).
		Msg("violation notice issued")
	return nil
}

// Multi fans out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, v violation.Confirmed) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
