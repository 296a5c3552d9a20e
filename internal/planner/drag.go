package planner

import (
	"context"
	"fmt"

	"github.com/starford/itinera/internal/apperr"
	"github.com/starford/itinera/internal/drag"
)

// BeginDrag starts dragging the visit at from. Any drag already running
// on the day is cancelled first.
func (s *Service) BeginDrag(ctx context.Context, roomID string, day, from int) (View, error) {
	return s.withDay(ctx, roomID, day, func(r *room, p *dayPlan) error {
		if p.drag != nil {
			p.drag.Cancel()
			p.drag = nil
		}
		scroll := drag.NewAutoScroller(s.cfg.ScrollInterval, func(dir int) {
			if s.pub != nil {
				s.pub.PublishDragScroll(r.id, day, dir)
			}
		})
		d, err := drag.Begin(p.state.Timeline, from, scroll)
		if err != nil {
			return err
		}
		p.drag = d
		return nil
	})
}

// DragPointer reports the pointer position within the viewport and returns
// the auto-scroll direction it caused.
func (s *Service) DragPointer(ctx context.Context, roomID string, day int, y, height float64) (int, error) {
	dir := 0
	_, err := s.withDay(ctx, roomID, day, func(_ *room, p *dayPlan) error {
		if p.drag == nil {
			return fmt.Errorf("planner: no drag in progress: %w", apperr.ErrConflict)
		}
		dir = p.drag.Pointer(y, height)
		return nil
	})
	return dir, err
}

// CancelDrag abandons the drag; the timeline is left as it was.
func (s *Service) CancelDrag(ctx context.Context, roomID string, day int) (View, error) {
	return s.withDay(ctx, roomID, day, func(_ *room, p *dayPlan) error {
		if p.drag == nil {
			return nil
		}
		p.drag.Cancel()
		p.drag = nil
		return nil
	})
}

// DropDrag completes the drag at drop point to of the current timeline.
func (s *Service) DropDrag(ctx context.Context, roomID string, day, to int) (View, error) {
	return s.withDay(ctx, roomID, day, func(r *room, p *dayPlan) error {
		if p.drag == nil {
			return fmt.Errorf("planner: no drag in progress: %w", apperr.ErrConflict)
		}
		d := p.drag
		p.drag = nil
		act, err := d.Drop(p.state.Timeline, to)
		if err != nil {
			return err
		}
		if err := s.dispatch(r, day, p, act); err != nil {
			return err
		}
		s.recordOrder(r, p)
		return nil
	})
}
