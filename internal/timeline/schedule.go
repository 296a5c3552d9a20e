package timeline

import "github.com/starford/itinera/internal/models"

// MinOvernightStay is the floor for a lodging stay, so a very early day
// start never yields a zero or negative night.
const MinOvernightStay = 60

// StayLookup returns a spot's default stay in minutes, if it has one.
type StayLookup func(spotID string) (int, bool)

// StayDefaults builds a StayLookup from the spots' stay_time field.
func StayDefaults(pool []models.Spot) StayLookup {
	m := make(map[string]int, len(pool))
	for _, s := range pool {
		if s.StayTime != nil {
			m[s.ID] = *s.StayTime
		}
	}
	return func(id string) (int, bool) {
		n, ok := m[id]
		return n, ok
	}
}

// ComputeSchedule walks tl from start and fills in visit arrival and
// departure times.
//
// Legs add their duration (unset counts as zero). A visit stays for its
// own Stay, else the spot default, else zero. An overnight visit stays
// until start on the following day, at least MinOvernightStay minutes.
// The effective stay is written back unless it was unset on an ordinary
// visit, so "?" keeps rendering.
//
// With a nil start every arrival and departure is cleared. Suspicious
// times are flagged, never corrected.
func ComputeSchedule(tl Timeline, start *Clock, defaults StayLookup) Timeline {
	out := tl.Clone()
	for i := range out {
		out[i].Flag = FlagNone
	}
	if start == nil {
		for i := range out {
			if out[i].IsVisit() {
				out[i].Visit.Arrival = nil
				out[i].Visit.Departure = nil
			}
		}
		return out
	}

	dayStart := start.TimeOfDay()
	t := *start
	var prevDeparture *Clock

	for i := range out {
		seg := &out[i]
		switch seg.Kind {
		case KindLeg:
			d := seg.Leg.Duration.OrZero()
			if d < 0 {
				seg.Flag = FlagBackwards
			}
			t += Clock(d)

		case KindVisit:
			v := &seg.Visit
			arrival := t

			stay, ok := v.Stay.Get()
			if !ok && defaults != nil {
				stay, ok = defaults(v.SpotID)
			}
			if !ok {
				stay = 0
			}

			overnight := v.Overnight && !v.CarryOver
			if overnight {
				next := Clock((arrival.DayOffset()+1)*MinutesPerDay) + dayStart
				stay = max(int(next-arrival), MinOvernightStay)
			}

			t = arrival + Clock(stay)
			departure := t
			v.Arrival = &arrival
			v.Departure = &departure
			if v.Stay.IsSet() || overnight {
				v.Stay = MinutesOf(stay)
			}

			switch {
			case stay < 0, prevDeparture != nil && arrival < *prevDeparture:
				seg.Flag = FlagBackwards
			case !overnight && (arrival >= MinutesPerDay || departure > MinutesPerDay):
				seg.Flag = FlagPastMidnight
			}
			prevDeparture = &departure
		}
	}
	return out
}
