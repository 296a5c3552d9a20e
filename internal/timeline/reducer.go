package timeline

import (
	"fmt"
	"slices"

	"github.com/starford/itinera/internal/apperr"
	"github.com/starford/itinera/internal/models"
)

// State is everything needed to derive one day's timeline.
type State struct {
	Day      int
	Start    *Clock
	Pool     []models.Spot
	Excluded []string
	Timeline Timeline
}

// Action is an event that moves a State forward. See Reduce.
type Action interface {
	apply(State) (State, error)
}

// Reduce applies a to s and returns the re-derived state. Every action ends
// with the timeline normalized and scheduled. When a returns an error the
// original state is returned untouched.
func Reduce(s State, a Action) (State, error) {
	next, err := a.apply(s)
	if err != nil {
		return s, err
	}
	return next.derive(next.Timeline), nil
}

func (s State) excludedSet() map[string]bool {
	m := make(map[string]bool, len(s.Excluded))
	for _, id := range s.Excluded {
		m[id] = true
	}
	return m
}

func (s State) derive(saved Timeline) State {
	p := PartitionDay(s.Pool, s.Day, saved)
	tl := Assemble(p, saved, s.excludedSet())
	s.Timeline = ComputeSchedule(tl, s.Start, StayDefaults(s.Pool))
	return s
}

// Partition returns the working set the state was derived from.
func (s State) Partition() Partition {
	return PartitionDay(s.Pool, s.Day, s.Timeline)
}

// SpotsChanged replaces the spot pool.
type SpotsChanged struct {
	Pool []models.Spot
}

func (a SpotsChanged) apply(s State) (State, error) {
	s.Pool = slices.Clone(a.Pool)
	return s, nil
}

// DayChanged switches to another day, seeded by that day's saved plan.
type DayChanged struct {
	Day      int
	Start    *Clock
	Saved    Timeline
	Excluded []string
}

func (a DayChanged) apply(s State) (State, error) {
	if a.Day < 1 {
		return s, fmt.Errorf("timeline: day %d: %w", a.Day, apperr.ErrValidation)
	}
	s.Day = a.Day
	s.Start = a.Start
	s.Excluded = slices.Clone(a.Excluded)
	s.Timeline = Normalize(a.Saved)
	return s, nil
}

// StartTimeChanged sets or clears the day start.
type StartTimeChanged struct {
	Start *Clock
}

func (a StartTimeChanged) apply(s State) (State, error) {
	s.Start = a.Start
	return s, nil
}

// SegmentEdit carries the fields to change on one segment. Nil fields are
// left alone. Stay applies to visits, the rest to legs.
type SegmentEdit struct {
	Stay             *Minutes
	Mode             *TransportMode
	Duration         *Minutes
	PlannedDeparture *Clock
	PlannedArrival   *Clock
	Cost             *float64
	Note             *string
	URL              *string
}

func (e SegmentEdit) touchesLeg() bool {
	return e.Mode != nil || e.Duration != nil || e.PlannedDeparture != nil ||
		e.PlannedArrival != nil || e.Cost != nil || e.Note != nil || e.URL != nil
}

// SegmentEdited edits the segment at Index.
type SegmentEdited struct {
	Index int
	Edit  SegmentEdit
}

func (a SegmentEdited) apply(s State) (State, error) {
	if a.Index < 0 || a.Index >= len(s.Timeline) {
		return s, fmt.Errorf("timeline: edit segment %d: %w", a.Index, apperr.ErrInvalidMove)
	}
	tl := s.Timeline.Clone()
	seg := &tl[a.Index]
	e := a.Edit

	switch seg.Kind {
	case KindVisit:
		if e.touchesLeg() {
			return s, fmt.Errorf("timeline: segment %d is a visit: %w", a.Index, apperr.ErrValidation)
		}
		if e.Stay != nil {
			seg.Visit.Stay = *e.Stay
		}
	case KindLeg:
		if e.Stay != nil {
			return s, fmt.Errorf("timeline: segment %d is a leg: %w", a.Index, apperr.ErrValidation)
		}
		l := &seg.Leg
		if e.Mode != nil {
			l.Mode = ParseMode(string(*e.Mode))
		}
		if e.Duration != nil {
			l.Duration = *e.Duration
		}
		if e.PlannedDeparture != nil {
			l.PlannedDeparture = ClockPtr(*e.PlannedDeparture)
		}
		if e.PlannedArrival != nil {
			l.PlannedArrival = ClockPtr(*e.PlannedArrival)
		}
		if e.Cost != nil {
			l.Cost = e.Cost
		}
		if e.Note != nil {
			l.Note = e.Note
		}
		if e.URL != nil {
			l.URL = e.URL
		}
	}
	s.Timeline = tl
	return s, nil
}

// DragCompleted moves a visit from one timeline position to another.
type DragCompleted struct {
	From, To int
}

func (a DragCompleted) apply(s State) (State, error) {
	if a.From < len(s.Timeline) && a.From >= 0 && s.Timeline[a.From].IsVisit() && s.Timeline[a.From].Visit.CarryOver {
		return s, fmt.Errorf("timeline: carry-over cannot be moved: %w", apperr.ErrInvalidMove)
	}
	tl, err := Reorder(s.Timeline, a.From, a.To)
	if err != nil {
		return s, err
	}
	s.Timeline = tl
	return s, nil
}

// SpotExcluded takes a spot out of the day without unconfirming it.
type SpotExcluded struct {
	SpotID string
}

func (a SpotExcluded) apply(s State) (State, error) {
	if slices.Contains(s.Excluded, a.SpotID) {
		return s, nil
	}
	s.Excluded = append(slices.Clone(s.Excluded), a.SpotID)
	return s, nil
}

// SpotIncluded puts an excluded spot back at the end of the day.
type SpotIncluded struct {
	SpotID string
}

func (a SpotIncluded) apply(s State) (State, error) {
	s.Excluded = slices.DeleteFunc(slices.Clone(s.Excluded), func(id string) bool {
		return id == a.SpotID
	})
	return s, nil
}

// TimelineReplaced swaps in an ordering produced elsewhere, such as the
// route optimizer or a pinned plan. A nil Excluded keeps the current list.
type TimelineReplaced struct {
	Timeline Timeline
	Excluded []string
}

func (a TimelineReplaced) apply(s State) (State, error) {
	s.Timeline = Normalize(a.Timeline)
	if a.Excluded != nil {
		s.Excluded = slices.Clone(a.Excluded)
	}
	return s, nil
}
