package resolver

import (
	"sort"

	"github.com/rs/zerolog"

	"violation-service/internal/domain/violation"
	"violation-service/internal/policy"
)

// Resolution is the outcome of resolving one frame's detections.
type Resolution struct {
	Status     violation.FrameStatus
	Candidates []violation.Candidate
	// Plates holds license plate detections that met their threshold, best first.
	Plates []violation.RawDetection
	// LowConfidence lists violation types that were detected only below threshold.
	LowConfidence []violation.Type
	Helmets       int
	Motorcycles   int
	Unknown       int
	// NeedsReview marks a motorcycle with no helmet signal either way; such
	// frames never produce a candidate on their own.
	NeedsReview bool
}

type Resolver struct {
	policy *policy.Table
	log    zerolog.Logger
}

func New(table *policy.Table, log zerolog.Logger) *Resolver {
	return &Resolver{
		policy: table,
		log:    log,
	}
}

// ResolveResult branches on the adapter outcome. A failed detection yields an
// empty resolution with StatusDetectionFailed.
func (r *Resolver) ResolveResult(result violation.DetectionResult) Resolution {
	if !result.Success {
		r.log.Warn().Str("error", result.Error).Msg("detection failed")
		return Resolution{Status: violation.StatusDetectionFailed}
	}
	return r.Resolve(result.Detections)
}

// Resolve is a pure function of the detections and the policy table.
func (r *Resolver) Resolve(detections []violation.RawDetection) Resolution {
	var res Resolution

	accepted := make(map[violation.Class][]violation.RawDetection)
	rejected := make(map[violation.Class]int)
	for _, d := range detections {
		class, ok := r.policy.ClassOf(d.ClassID)
		if !ok {
			res.Unknown++
			continue
		}
		if !r.policy.Accepts(class, d.Confidence) {
			rejected[class]++
			continue
		}
		accepted[class] = append(accepted[class], d)
	}

	res.Helmets = len(accepted[violation.ClassHelmet])
	res.Motorcycles = len(accepted[violation.ClassMotorcycle])
	res.Plates = ranked(accepted[violation.ClassLicensePlate])

	for _, typ := range violation.Types {
		class := typ.Class()
		found := accepted[class]
		if len(found) == 0 {
			if rejected[class] > 0 {
				res.LowConfidence = append(res.LowConfidence, typ)
				r.log.Debug().
					Str("violation_type", string(typ)).
					Int("rejected", rejected[class]).
					Float64("min_confidence", r.policy.Rule(class).MinConfidence).
					Msg("skipped low confidence detections")
			}
			continue
		}

		rule := r.policy.Rule(class)
		if !rule.AlwaysViolation && rule.RequireMotorcycle && res.Motorcycles == 0 {
			r.log.Debug().
				Str("violation_type", string(typ)).
				Msg("skipped detection without motorcycle in frame")
			continue
		}

		best := ranked(found)[0]
		res.Candidates = append(res.Candidates, violation.Candidate{
			Type:        typ,
			Confidence:  best.Confidence,
			BBox:        best.BBox,
			SourceClass: class,
		})
	}

	if res.Motorcycles > 0 && res.Helmets == 0 && len(accepted[violation.ClassNoHelmet]) == 0 {
		res.NeedsReview = true
		r.log.Debug().Int("motorcycles", res.Motorcycles).Msg("motorcycle without helmet signal, leaving for manual review")
	}

	if len(res.Candidates) == 0 {
		res.Status = violation.StatusNoViolationsDetected
	} else {
		res.Status = violation.StatusProcessed
	}
	return res
}

// ranked orders detections by confidence, then by larger box area. The sort
// is stable so remaining ties keep detector order.
func ranked(detections []violation.RawDetection) []violation.RawDetection {
	out := make([]violation.RawDetection, len(detections))
	copy(out, detections)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].BBox.Area() > out[j].BBox.Area()
	})
	return out
}

// Cap keeps at most limit candidates, highest confidence first. Kept candidates
// retain their original relative order; the rest are returned as dropped.
func Cap(candidates []violation.Candidate, limit int) (kept, dropped []violation.Candidate) {
	if limit <= 0 || len(candidates) <= limit {
		return candidates, nil
	}

	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return candidates[idx[a]].Confidence > candidates[idx[b]].Confidence
	})

	keep := make(map[int]bool, limit)
	for _, i := range idx[:limit] {
		keep[i] = true
	}
	for i, c := range candidates {
		if keep[i] {
			kept = append(kept, c)
		} else {
			dropped = append(dropped, c)
		}
	}
	return kept, dropped
}
