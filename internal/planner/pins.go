package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/itinera/internal/apperr"
	"github.com/starford/itinera/internal/models"
	"github.com/starford/itinera/internal/timeline"
)

// PinDay saves the day's current timeline under title.
func (s *Service) PinDay(ctx context.Context, roomID string, day int, title string) (models.PinnedPlan, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.PinnedPlan{}, fmt.Errorf("planner: pin title is required: %w", apperr.ErrValidation)
	}
	r, err := s.room(ctx, roomID)
	if err != nil {
		return models.PinnedPlan{}, err
	}
	defer r.mu.Unlock()
	p, err := s.day(ctx, r, day)
	if err != nil {
		return models.PinnedPlan{}, err
	}
	data, err := json.Marshal(p.state.Timeline)
	if err != nil {
		return models.PinnedPlan{}, fmt.Errorf("planner: encode pin: %w", err)
	}
	return s.repo.CreatePin(ctx, models.PinnedPlan{RoomID: roomID, Title: title, Day: day, Timeline: data})
}

// ListPins returns the room's pinned plans.
func (s *Service) ListPins(ctx context.Context, roomID string) ([]models.PinnedPlan, error) {
	pins, err := s.repo.ListPins(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return nonNil(pins), nil
}

// LoadPin replaces the timeline of day with a pinned plan. Spots that no
// longer belong to the day are dropped; new ones are appended.
func (s *Service) LoadPin(ctx context.Context, roomID, pinID string, day int) (View, error) {
	pin, err := s.repo.GetPin(ctx, roomID, pinID)
	if err != nil {
		return View{}, err
	}
	var tl timeline.Timeline
	if err := json.Unmarshal(pin.Timeline, &tl); err != nil {
		return View{}, fmt.Errorf("planner: decode pin %s: %w", pinID, apperr.ErrValidation)
	}
	if err := timeline.CheckShape(tl); err != nil {
		return View{}, err
	}
	return s.withDay(ctx, roomID, day, func(r *room, p *dayPlan) error {
		p.geometry = nil
		if err := s.dispatch(r, day, p, timeline.TimelineReplaced{Timeline: tl, Excluded: p.state.Excluded}); err != nil {
			return err
		}
		s.recordOrder(r, p)
		return nil
	})
}

// DeletePin removes a pinned plan.
func (s *Service) DeletePin(ctx context.Context, roomID, pinID string) error {
	return s.repo.DeletePin(ctx, roomID, pinID)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
