package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/starford/itinera/internal/models"
	"github.com/starford/itinera/internal/timeline"
)

// CarryOverLabel marks the lodging carried over from the previous day.
const CarryOverLabel = "from previous night"

// View is one day of a room as presented to clients.
type View struct {
	Room          string            `json:"room"`
	Day           int               `json:"day"`
	DayCount      int               `json:"day_count"`
	StartTime     *timeline.Clock   `json:"start_time"`
	Timeline      timeline.Timeline `json:"timeline"`
	Labels        []string          `json:"labels"`
	Unused        []models.Spot     `json:"unused"`
	RouteGeometry json.RawMessage   `json:"route_geometry"`
	Dragging      string            `json:"dragging,omitempty"`
}

// view builds the client view of p. r must be locked.
func (s *Service) view(ctx context.Context, r *room, day int, p *dayPlan) View {
	tl := p.state.Timeline.Clone()
	labels := make([]string, len(tl))
	n := 0
	for i, seg := range tl {
		switch {
		case seg.IsVisit() && seg.Visit.CarryOver:
			labels[i] = CarryOverLabel
		case seg.IsVisit():
			n++
			labels[i] = strconv.Itoa(n)
		case seg.Leg.URL == nil && i > 0 && i+1 < len(tl):
			from, ok1 := r.pool.Get(tl[i-1].SpotID())
			to, ok2 := r.pool.Get(tl[i+1].SpotID())
			if ok1 && ok2 && tl[i+1].IsVisit() {
				u := DirectionsURL(from, to, seg.Leg.Mode)
				tl[i].Leg.URL = &u
			}
		}
	}

	part := p.state.Partition()
	unused := timeline.Unused(part, p.state.Timeline)
	if unused == nil {
		unused = []models.Spot{}
	}

	v := View{
		Room:          r.id,
		Day:           day,
		DayCount:      s.dayCount(ctx, r),
		StartTime:     p.state.Start,
		Timeline:      tl,
		Labels:        labels,
		Unused:        unused,
		RouteGeometry: p.geometry,
	}
	if p.drag != nil {
		v.Dragging = p.drag.SpotID()
	}
	return v
}

// dayCount is the larger of the room's travel days and the highest day any
// spot is planned on, and at least 1.
func (s *Service) dayCount(ctx context.Context, r *room) int {
	n, err := s.repo.TravelDays(ctx, r.id)
	if err != nil {
		s.logger.Warn("planner: travel days", slog.String("room", r.id), slog.String("error", err.Error()))
		n = 1
	}
	for _, sp := range r.pool.Spots() {
		n = max(n, sp.Day)
	}
	return max(n, 1)
}

var travelModes = map[timeline.TransportMode]string{
	timeline.ModeCar:   "driving",
	timeline.ModeWalk:  "walking",
	timeline.ModeTrain: "transit",
	timeline.ModeBus:   "transit",
	timeline.ModePlane: "transit",
	timeline.ModeShip:  "transit",
}

// DirectionsURL links to map directions between two spots.
func DirectionsURL(from, to models.Spot, mode timeline.TransportMode) string {
	q := url.Values{}
	q.Set("saddr", coord(from))
	q.Set("daddr", coord(to))
	q.Set("travelmode", travelModes[mode])
	return "https://maps.google.com/?" + q.Encode()
}

func coord(s models.Spot) string {
	if s.Coordinates == [2]float64{} {
		return s.Name
	}
	// Coordinates are stored as lng, lat.
	return fmt.Sprintf("%g,%g", s.Coordinates[1], s.Coordinates[0])
}
