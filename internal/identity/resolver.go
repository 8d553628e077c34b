package identity

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"violation-service/internal/domain/violation"
)

// Resolver derives a vehicle token for a frame. Plates are detected but not
// read, so a plate-derived token only says "a plate was visible at this
// second"; it is not a plate number and must not be treated as one.
type Resolver struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Resolver {
	return &Resolver{log: log}
}

// Resolve never fails. plates must already be filtered by the plate threshold
// and ordered best first.
func (r *Resolver) Resolve(plates []violation.RawDetection, now time.Time) violation.VehicleIdentity {
	if len(plates) > 0 {
		best := plates[0]
		for _, p := range plates[1:] {
			if p.Confidence > best.Confidence {
				best = p
			}
		}
		id := PlateToken(now)
		r.log.Debug().
			Float64("plate_confidence", best.Confidence).
			Int("plates", len(plates)).
			Str("vehicle", id.String()).
			Msg("license plate detected")
		return id
	}
	return SyntheticToken(now)
}

// PlateToken has second resolution.
func PlateToken(now time.Time) violation.VehicleIdentity {
	return violation.VehicleIdentity(violation.PlateIdentityPrefix + now.Format("20060102_150405"))
}

// SyntheticToken has microsecond resolution so it is effectively unique per frame.
func SyntheticToken(now time.Time) violation.VehicleIdentity {
	return violation.VehicleIdentity(fmt.Sprintf("%s%s%06d", violation.SyntheticIdentityPrefix, now.Format("20060102150405"), now.Nanosecond()/1000))
}
