package timeline

import (
	"cmp"
	"slices"

	"github.com/starford/itinera/internal/models"
)

// Partition is the working set of spots for one day.
type Partition struct {
	Day int
	// Spots holds the carry-over first (if any), then the day's confirmed
	// spots by order and id.
	Spots     []models.Spot
	CarryOver *models.Spot
	// NewSpots are working-set spots missing from the saved timeline.
	NewSpots []models.Spot
}

func bySchedule(a, b models.Spot) int {
	if c := cmp.Compare(a.Order, b.Order); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// CarryOverFor picks the lodging spot of day-1 that opens day, or nil.
// Several candidates resolve to the lowest order, then the lowest id.
func CarryOverFor(pool []models.Spot, day int) *models.Spot {
	if day <= 1 {
		return nil
	}
	var best *models.Spot
	for i := range pool {
		s := pool[i]
		if !s.Confirmed() || s.Day != day-1 || !s.LooksLikeLodging() {
			continue
		}
		if best == nil || bySchedule(s, *best) < 0 {
			best = &pool[i]
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// PartitionDay selects the spots for day from pool and reports which of
// them are not yet in saved.
func PartitionDay(pool []models.Spot, day int, saved Timeline) Partition {
	p := Partition{Day: day}

	for _, s := range pool {
		if s.Confirmed() && s.Day == day && day > 0 {
			p.Spots = append(p.Spots, s)
		}
	}
	slices.SortFunc(p.Spots, bySchedule)

	if co := CarryOverFor(pool, day); co != nil {
		p.CarryOver = co
		p.Spots = append([]models.Spot{*co}, p.Spots...)
	}

	inSaved := make(map[string]struct{}, len(saved))
	for _, seg := range saved {
		if seg.IsVisit() {
			inSaved[seg.Visit.SpotID] = struct{}{}
		}
	}
	for _, s := range p.Spots {
		if _, ok := inSaved[s.ID]; !ok {
			p.NewSpots = append(p.NewSpots, s)
		}
	}
	return p
}

// Assemble merges the saved order with the partition: saved visits whose
// spot left the day are dropped with one leg, new spots are appended after
// a default leg and the carry-over is forced to the front. Visit names,
// days and lodging flags are refreshed from the spots. Spots listed in
// excluded stay out of the timeline.
func Assemble(p Partition, saved Timeline, excluded map[string]bool) Timeline {
	spots := make(map[string]models.Spot, len(p.Spots))
	for _, s := range p.Spots {
		if !excluded[s.ID] {
			spots[s.ID] = s
		}
	}
	tl := Retain(saved, func(id string) bool {
		_, ok := spots[id]
		return ok
	})

	segs := []Segment(tl)
	for _, s := range p.NewSpots {
		if _, ok := spots[s.ID]; ok {
			segs = append(segs, VisitOf(s))
		}
	}
	tl = Normalize(segs)

	if p.CarryOver != nil && !excluded[p.CarryOver.ID] {
		if i := tl.IndexOf(p.CarryOver.ID); i > 0 {
			pairs := toPairs(tl)
			src := 0
			for j := 0; j < i; j++ {
				if tl[j].IsVisit() {
					src++
				}
			}
			tl = fromPairs(movePair(pairs, src, 0))
		}
	}

	for i := range tl {
		if !tl[i].IsVisit() {
			continue
		}
		v := &tl[i].Visit
		s := spots[v.SpotID]
		v.Name = s.Name
		v.Day = s.Day
		v.CarryOver = p.CarryOver != nil && s.ID == p.CarryOver.ID
		v.Overnight = v.CarryOver || s.LooksLikeLodging()
	}
	return tl
}

// Unused lists the day's confirmed spots that are left out of tl, in
// schedule order. The carry-over never counts as unused.
func Unused(p Partition, tl Timeline) []models.Spot {
	var out []models.Spot
	for _, s := range p.Spots {
		if p.CarryOver != nil && s.ID == p.CarryOver.ID {
			continue
		}
		if tl.IndexOf(s.ID) < 0 {
			out = append(out, s)
		}
	}
	return out
}
