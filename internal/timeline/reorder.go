package timeline

import (
	"fmt"

	"github.com/starford/itinera/internal/apperr"
)

// pair is a visit with the run of legs that leads into it.
type pair struct {
	legs  []Segment
	visit Segment
}

func toPairs(tl Timeline) []pair {
	var (
		out  []pair
		legs []Segment
	)
	for _, seg := range tl {
		if seg.IsLeg() {
			legs = append(legs, seg)
			continue
		}
		out = append(out, pair{legs: legs, visit: seg})
		legs = nil
	}
	return out
}

// fromPairs flattens pairs back into a timeline. The first pair loses its
// legs; later pairs without legs get a default one.
func fromPairs(pairs []pair) Timeline {
	var out Timeline
	for i, p := range pairs {
		if i > 0 {
			if len(p.legs) == 0 {
				out = append(out, DefaultLeg())
			} else {
				out = append(out, p.legs...)
			}
		}
		out = append(out, p.visit)
	}
	return Normalize(out)
}

// movePair moves the pair at from so that it lands at pair index to.
func movePair(pairs []pair, from, to int) []pair {
	moved := pairs[from]
	rest := make([]pair, 0, len(pairs))
	rest = append(rest, pairs[:from]...)
	rest = append(rest, pairs[from+1:]...)
	to = min(max(to, 0), len(rest))
	out := make([]pair, 0, len(pairs))
	out = append(out, rest[:to]...)
	out = append(out, moved)
	return append(out, rest[to:]...)
}

// Reorder moves the visit at timeline position from so that it lands at
// position to, taking the legs that lead into it along.
//
// to is a drop point in the original timeline: the visit is inserted after
// every visit that sits before to. There is no compensation for downward
// moves, so dropping after X means landing right after X.
//
// A stale or invalid move returns tl unchanged with ErrInvalidMove.
func Reorder(tl Timeline, from, to int) (Timeline, error) {
	if from < 0 || from >= len(tl) || !tl[from].IsVisit() {
		return tl, fmt.Errorf("timeline: reorder from %d: %w", from, apperr.ErrInvalidMove)
	}
	if to < 0 || to > len(tl) {
		return tl, fmt.Errorf("timeline: reorder to %d: %w", to, apperr.ErrInvalidMove)
	}
	if from == to {
		return tl, nil
	}

	// Pair index of the source, and the number of visits before the drop
	// point. The source counts too when it sits above the drop point.
	src, target := 0, 0
	for i, seg := range tl {
		if !seg.IsVisit() {
			continue
		}
		if i < from {
			src++
		}
		if i < to {
			target++
		}
	}

	return fromPairs(movePair(toPairs(tl), src, target)), nil
}
