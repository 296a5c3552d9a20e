package timeline

import (
	"fmt"

	"github.com/starford/itinera/internal/apperr"
)

// Normalize repairs segs into a well-formed timeline:
//   - a default leg is inserted between adjacent visits;
//   - runs of legs between visits are kept as they are;
//   - leading and trailing legs are dropped;
//   - repeated visits (and visits without a spot) are dropped with one adjacent leg.
//
// Normalize never fails and is idempotent. segs is not modified.
func Normalize(segs []Segment) Timeline {
	return Retain(segs, nil)
}

// Retain is Normalize that additionally drops visits whose spot fails keep,
// each together with one adjacent leg. A nil keep retains every spot.
func Retain(segs []Segment, keep func(spotID string) bool) Timeline {
	out := make(Timeline, 0, len(segs))
	seen := make(map[string]struct{}, len(segs))

	// Legs seen since the last kept visit. They are only emitted once the
	// next kept visit shows up, which drops trailing legs for free.
	var pending []Segment
	dropNext := false

	for _, seg := range segs {
		switch seg.Kind {
		case KindLeg:
			if dropNext {
				dropNext = false
				continue
			}
			seg.Leg.Mode = ParseMode(string(seg.Leg.Mode))
			pending = append(pending, seg)

		case KindVisit:
			id := seg.Visit.SpotID
			_, dup := seen[id]
			if id == "" || dup || (keep != nil && !keep(id)) {
				if len(pending) > 0 {
					pending = pending[:len(pending)-1]
				} else {
					dropNext = true
				}
				continue
			}
			dropNext = false
			seen[id] = struct{}{}
			if len(out) > 0 {
				if len(pending) == 0 {
					out = append(out, DefaultLeg())
				} else {
					out = append(out, pending...)
				}
			}
			pending = nil
			out = append(out, seg)
		}
	}
	return out
}

// CheckShape reports whether tl already satisfies the structural rules
// Normalize enforces.
func CheckShape(tl Timeline) error {
	if len(tl) == 0 {
		return nil
	}
	if !tl[0].IsVisit() || !tl[len(tl)-1].IsVisit() {
		return fmt.Errorf("timeline: must start and end with a visit: %w", apperr.ErrValidation)
	}
	seen := make(map[string]struct{})
	for i, seg := range tl {
		switch seg.Kind {
		case KindVisit:
			if seg.Visit.SpotID == "" {
				return fmt.Errorf("timeline: visit %d has no spot: %w", i, apperr.ErrValidation)
			}
			if _, dup := seen[seg.Visit.SpotID]; dup {
				return fmt.Errorf("timeline: spot %s visited twice: %w", seg.Visit.SpotID, apperr.ErrValidation)
			}
			seen[seg.Visit.SpotID] = struct{}{}
			if i > 0 && tl[i-1].IsVisit() {
				return fmt.Errorf("timeline: visits %d and %d are adjacent: %w", i-1, i, apperr.ErrValidation)
			}
		case KindLeg:
		default:
			return fmt.Errorf("timeline: segment %d has unknown kind %q: %w", i, seg.Kind, apperr.ErrValidation)
		}
	}
	return nil
}

// Validate checks shape plus the day rule: every visit belongs to day,
// except one carry-over visit which must come first.
func Validate(tl Timeline, day int) error {
	if err := CheckShape(tl); err != nil {
		return err
	}
	first := true
	for _, seg := range tl {
		if !seg.IsVisit() {
			continue
		}
		v := seg.Visit
		switch {
		case v.CarryOver && !first:
			return fmt.Errorf("timeline: carry-over %s is not the first visit: %w", v.SpotID, apperr.ErrValidation)
		case v.CarryOver:
		case v.Day != day:
			return fmt.Errorf("timeline: spot %s belongs to day %d, not %d: %w", v.SpotID, v.Day, day, apperr.ErrValidation)
		}
		first = false
	}
	return nil
}
