package cooldown

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"violation-service/internal/domain/violation"
)

const DefaultWindow = 30 * time.Second

// Store is the keyed store behind the engine. Implementations must be safe
// for concurrent use.
type Store interface {
	Append(ctx context.Context, entry violation.CooldownEntry) error
	// Exists reports whether an entry of typ registered at or after since
	// exists. An empty vehicle matches any vehicle.
	Exists(ctx context.Context, typ violation.Type, vehicle violation.VehicleIdentity, since time.Time) (bool, error)
	// Prune removes entries registered before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Engine suppresses repeat registrations inside the cooldown window. The
// check and the record are separate calls, so two pipelines racing on the
// same vehicle and type in the same instant may both admit.
type Engine struct {
	store  Store
	window time.Duration
	log    zerolog.Logger
}

func NewEngine(store Store, window time.Duration, log zerolog.Logger) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{
		store:  store,
		window: window,
		log:    log,
	}
}

func (e *Engine) Window() time.Duration {
	return e.window
}

// ShouldSuppress matches on type alone for synthetic identities, and on type
// and vehicle for plate-derived ones. A store error admits the candidate.
func (e *Engine) ShouldSuppress(ctx context.Context, typ violation.Type, vehicle violation.VehicleIdentity, now time.Time) bool {
	match := vehicle
	if vehicle.IsSynthetic() {
		match = ""
	}

	found, err := e.store.Exists(ctx, typ, match, now.Add(-e.window))
	if err != nil {
		e.log.Error().
			Err(err).
			Str("violation_type", string(typ)).
			Str("vehicle", vehicle.String()).
			Msg("cooldown lookup failed")
		return false
	}
	return found
}

func (e *Engine) RecordConfirmed(ctx context.Context, v violation.Confirmed) error {
	return e.store.Append(ctx, violation.CooldownEntry{
		Type:            v.Type,
		VehicleIdentity: v.VehicleIdentity,
		RegisteredAt:    v.Timestamp,
	})
}

// Prune drops entries that can no longer match any lookup made at or after now.
func (e *Engine) Prune(ctx context.Context, now time.Time) (int64, error) {
	return e.store.Prune(ctx, now.Add(-e.window))
}

// Run prunes on every tick until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = e.window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			pruned, err := e.Prune(ctx, now)
			if err != nil {
				e.log.Error().Err(err).Msg("failed to prune cooldown entries")
				continue
			}
			if pruned > 0 {
				e.log.Debug().Int64("pruned", pruned).Msg("pruned cooldown entries")
			}
		}
	}
}
