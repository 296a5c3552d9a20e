// Package timeline is the itinerary engine: it orders a day's confirmed
// spots into visits joined by travel legs, repairs structure, computes
// clock times and reorders visits without tearing legs off them.
//
// Every function here is pure. Callers own state and persistence.
package timeline

import (
	"encoding/json"
	"fmt"

	"github.com/starford/itinera/internal/models"
)

// Kind tags a segment. The values double as the JSON "type" field.
type Kind string

const (
	KindVisit Kind = "spot"
	KindLeg   Kind = "travel"
)

// TransportMode is how a leg is travelled.
type TransportMode string

const (
	ModeCar   TransportMode = "car"
	ModeTrain TransportMode = "train"
	ModeWalk  TransportMode = "walk"
	ModeBus   TransportMode = "bus"
	ModePlane TransportMode = "plane"
	ModeShip  TransportMode = "ship"
)

// ParseMode maps a raw mode to a known one; anything unknown becomes walk.
func ParseMode(s string) TransportMode {
	switch m := TransportMode(s); m {
	case ModeCar, ModeTrain, ModeWalk, ModeBus, ModePlane, ModeShip:
		return m
	case "shinkansen":
		return ModeTrain
	default:
		return ModeWalk
	}
}

// Flag marks a segment whose computed times look wrong. Display only.
type Flag string

const (
	FlagNone         Flag = ""
	FlagBackwards    Flag = "backwards"
	FlagPastMidnight Flag = "past_midnight"
)

// Visit is one stop on the itinerary.
type Visit struct {
	SpotID    string  `json:"spot_id"`
	Name      string  `json:"name,omitempty"`
	Stay      Minutes `json:"stay_min"`
	Arrival   *Clock  `json:"arrival"`
	Departure *Clock  `json:"departure"`
	Overnight bool    `json:"is_overnight,omitempty"`
	CarryOver bool    `json:"carry_over,omitempty"`
	Day       int     `json:"day"`
}

// Leg is travel between two visits.
type Leg struct {
	Mode             TransportMode `json:"transport_mode"`
	Duration         Minutes       `json:"duration_min"`
	PlannedDeparture *Clock        `json:"departure_time,omitempty"`
	PlannedArrival   *Clock        `json:"arrival_time,omitempty"`
	Cost             *float64      `json:"cost,omitempty"`
	Note             *string       `json:"note,omitempty"`
	URL              *string       `json:"url,omitempty"`
}

// Segment is either a Visit or a Leg, selected by Kind.
type Segment struct {
	Kind  Kind
	Visit Visit
	Leg   Leg
	Flag  Flag
}

// NewVisit returns a bare visit for spotID.
func NewVisit(spotID string) Segment {
	return Segment{Kind: KindVisit, Visit: Visit{SpotID: spotID}}
}

// VisitOf returns a visit for spot, carrying its name and day.
func VisitOf(spot models.Spot) Segment {
	return Segment{Kind: KindVisit, Visit: Visit{
		SpotID:    spot.ID,
		Name:      spot.Name,
		Day:       spot.Day,
		Overnight: spot.LooksLikeLodging(),
	}}
}

// NewLeg returns a leg travelled by mode.
func NewLeg(mode TransportMode, d Minutes) Segment {
	return Segment{Kind: KindLeg, Leg: Leg{Mode: ParseMode(string(mode)), Duration: d}}
}

// DefaultLeg is a walk of unknown duration.
func DefaultLeg() Segment {
	return NewLeg(ModeWalk, Unset())
}

func (s Segment) IsVisit() bool { return s.Kind == KindVisit }
func (s Segment) IsLeg() bool   { return s.Kind == KindLeg }

// SpotID returns the visit's spot, or "" for a leg.
func (s Segment) SpotID() string {
	if s.Kind != KindVisit {
		return ""
	}
	return s.Visit.SpotID
}

type segmentJSON struct {
	Type Kind `json:"type"`
	*Visit
	*Leg
	Flag Flag `json:"flag,omitempty"`
}

func (s Segment) MarshalJSON() ([]byte, error) {
	out := segmentJSON{Type: s.Kind, Flag: s.Flag}
	switch s.Kind {
	case KindVisit:
		v := s.Visit
		out.Visit = &v
	case KindLeg:
		l := s.Leg
		out.Leg = &l
	default:
		return nil, fmt.Errorf("timeline: marshal segment: unknown kind %q", s.Kind)
	}
	return json.Marshal(out)
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	var head struct {
		Type Kind `json:"type"`
		Flag Flag `json:"flag"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("timeline: segment: %w", err)
	}
	switch head.Type {
	case KindVisit:
		var v Visit
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("timeline: visit: %w", err)
		}
		*s = Segment{Kind: KindVisit, Visit: v, Flag: head.Flag}
	case KindLeg:
		var l Leg
		if err := json.Unmarshal(data, &l); err != nil {
			return fmt.Errorf("timeline: leg: %w", err)
		}
		l.Mode = ParseMode(string(l.Mode))
		*s = Segment{Kind: KindLeg, Leg: l, Flag: head.Flag}
	default:
		return fmt.Errorf("timeline: unknown segment type %q", head.Type)
	}
	return nil
}

// Timeline is an ordered run of segments for one day.
type Timeline []Segment

// Clone returns a copy that can be modified without touching tl.
func (tl Timeline) Clone() Timeline {
	if tl == nil {
		return nil
	}
	out := make(Timeline, len(tl))
	copy(out, tl)
	return out
}

// SpotIDs lists the visited spots in order.
func (tl Timeline) SpotIDs() []string {
	var ids []string
	for _, seg := range tl {
		if seg.IsVisit() {
			ids = append(ids, seg.Visit.SpotID)
		}
	}
	return ids
}

// IndexOf returns the position of the visit to spotID, or -1.
func (tl Timeline) IndexOf(spotID string) int {
	for i, seg := range tl {
		if seg.IsVisit() && seg.Visit.SpotID == spotID {
			return i
		}
	}
	return -1
}
