package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"violation-service/internal/cooldown"
	"violation-service/internal/domain/violation"
	"violation-service/internal/identity"
	"violation-service/internal/policy"
	"violation-service/internal/resolver"
)

// Detector is the external object detector.
type Detector interface {
	Detect(ctx context.Context, image []byte) violation.DetectionResult
}

// Sink stores confirmed violations and tells downstream about them. Notify
// failures never undo a successful Persist.
type Sink interface {
	Persist(ctx context.Context, v *violation.Confirmed) error
	Notify(ctx context.Context, v violation.Confirmed) error
}

type Frame struct {
	Image    []byte
	CameraID string
	Location string
}

type PipelineOptions struct {
	MaxViolationsPerFrame int
	DefaultLocation       string
	Clock                 func() time.Time
}

// Pipeline turns one frame into confirmed violations. It is safe for
// concurrent use by several camera feeds.
type Pipeline struct {
	detector   Detector
	resolver   *resolver.Resolver
	identities *identity.Resolver
	cooldown   *cooldown.Engine
	policy     *policy.Table
	sink       Sink

	maxPerFrame     int
	defaultLocation string
	now             func() time.Time
	log             zerolog.Logger
}

func NewPipeline(
	detector Detector,
	res *resolver.Resolver,
	identities *identity.Resolver,
	engine *cooldown.Engine,
	table *policy.Table,
	sink Sink,
	opts PipelineOptions,
	log zerolog.Logger,
) *Pipeline {
	if opts.MaxViolationsPerFrame <= 0 {
		opts.MaxViolationsPerFrame = 5
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Pipeline{
		detector:        detector,
		resolver:        res,
		identities:      identities,
		cooldown:        engine,
		policy:          table,
		sink:            sink,
		maxPerFrame:     opts.MaxViolationsPerFrame,
		defaultLocation: opts.DefaultLocation,
		now:             opts.Clock,
		log:             log,
	}
}

// ProcessFrame blocks on the detector, then resolves, deduplicates and
// confirms. Cancellation is honoured only before the detector call; once
// detections are in hand the frame is finished. The returned error is
// non-nil only when ctx was already done.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame Frame) (*violation.FrameResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detection := p.detector.Detect(ctx, frame.Image)
	now := p.now()
	res := p.resolver.ResolveResult(detection)

	result := &violation.FrameResult{
		Status:        res.Status,
		Success:       res.Status != violation.StatusDetectionFailed,
		Error:         detection.Error,
		LicensePlates: len(res.Plates),
		NeedsReview:   res.NeedsReview,
		Candidates:    []violation.Candidate{},
		Confirmed:     []violation.Confirmed{},
		Skipped:       []violation.Skipped{},
		ProcessedAt:   now,
	}
	if detection.Success {
		result.Error = ""
		result.Stats.TotalDetections = len(detection.Detections)
	}
	result.Candidates = append(result.Candidates, res.Candidates...)
	result.Stats.Candidates = len(res.Candidates)
	result.Stats.SkippedLowConfidence = len(res.LowConfidence)

	if res.Status != violation.StatusProcessed {
		if res.Status == violation.StatusDetectionFailed {
			p.log.Warn().Str("camera_id", frame.CameraID).Str("error", detection.Error).Msg("frame detection failed")
		}
		return result, nil
	}

	vehicle := p.identities.Resolve(res.Plates, now)
	result.VehicleIdentity = vehicle

	location := frame.Location
	if location == "" {
		location = p.defaultLocation
	}

	kept, dropped := resolver.Cap(res.Candidates, p.maxPerFrame)
	for _, c := range dropped {
		result.Skipped = append(result.Skipped, violation.Skipped{Candidate: c, Reason: violation.SkippedCapacity})
		result.Stats.SkippedCapacity++
	}

	// Highest confidence first so the strongest evidence is confirmed first.
	kept = append([]violation.Candidate(nil), kept...)
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Confidence > kept[j].Confidence })

	// The sequence below is a unit of work; ctx is deliberately not checked.
	work := context.WithoutCancel(ctx)
	for _, c := range kept {
		if p.cooldown.ShouldSuppress(work, c.Type, vehicle, now) {
			p.log.Debug().
				Str("violation_type", string(c.Type)).
				Str("vehicle", vehicle.String()).
				Dur("cooldown", p.cooldown.Window()).
				Msg("skipped duplicate violation")
			result.Skipped = append(result.Skipped, violation.Skipped{Candidate: c, Reason: violation.SkippedDuplicate})
			result.Stats.SkippedDuplicate++
			continue
		}

		confirmed := violation.Confirmed{
			ID:              uuid.New(),
			VehicleIdentity: vehicle,
			Type:            c.Type,
			Confidence:      c.Confidence,
			BBox:            c.BBox,
			SourceClass:     c.SourceClass,
			FineAmount:      p.policy.Fine(c.Type),
			Timestamp:       now,
			Location:        location,
			CameraID:        frame.CameraID,
		}

		if err := p.sink.Persist(work, &confirmed); err != nil {
			p.log.Error().
				Err(err).
				Str("violation_type", string(c.Type)).
				Str("vehicle", vehicle.String()).
				Msg("failed to persist violation")
			result.Skipped = append(result.Skipped, violation.Skipped{Candidate: c, Reason: violation.PersistenceFailed})
			result.Stats.PersistenceFailed++
			continue
		}

		if err := p.cooldown.RecordConfirmed(work, confirmed); err != nil {
			p.log.Error().Err(err).Str("violation_id", confirmed.ID.String()).Msg("failed to record cooldown entry")
		}

		if err := p.sink.Notify(work, confirmed); err != nil {
			p.log.Warn().Err(err).Str("violation_id", confirmed.ID.String()).Msg("failed to send violation notification")
			result.Stats.NotificationFailed++
		}

		p.log.Info().
			Str("violation_id", confirmed.ID.String()).
			Str("violation_type", string(confirmed.Type)).
			Float64("confidence", confirmed.Confidence).
			Str("vehicle", vehicle.String()).
			Str("camera_id", frame.CameraID).
			Msg("violation confirmed")

		result.Confirmed = append(result.Confirmed, confirmed)
		result.Stats.Confirmed++
	}

	return result, nil
}
