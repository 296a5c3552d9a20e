package drag

import (
	"fmt"

	"github.com/starford/itinera/internal/apperr"
	"github.com/starford/itinera/internal/timeline"
)

// ScrollEdge is how close to a viewport edge the pointer must be, in
// pixels, for auto-scroll to kick in.
const ScrollEdge = 48

// Drag is one visit being dragged.
type Drag struct {
	origin timeline.Timeline
	spotID string
	scroll *AutoScroller
}

// Begin starts dragging the visit at position from of tl. scroll may be nil.
func Begin(tl timeline.Timeline, from int, scroll *AutoScroller) (*Drag, error) {
	if from < 0 || from >= len(tl) || !tl[from].IsVisit() {
		return nil, fmt.Errorf("drag: begin at %d: %w", from, apperr.ErrInvalidMove)
	}
	if tl[from].Visit.CarryOver {
		return nil, fmt.Errorf("drag: carry-over cannot be moved: %w", apperr.ErrInvalidMove)
	}
	return &Drag{origin: tl.Clone(), spotID: tl[from].Visit.SpotID, scroll: scroll}, nil
}

// SpotID is the spot being dragged.
func (d *Drag) SpotID() string { return d.spotID }

// Origin is the timeline as it was when the drag began.
func (d *Drag) Origin() timeline.Timeline { return d.origin }

// Pointer reports the pointer position inside a viewport and starts or
// stops auto-scroll accordingly.
func (d *Drag) Pointer(y, height float64) int {
	dir := EdgeDirection(y, height, ScrollEdge)
	if d.scroll == nil {
		return dir
	}
	if dir == 0 {
		d.scroll.Stop()
	} else {
		d.scroll.Start(dir)
	}
	return dir
}

// Cancel abandons the drag and returns the pre-drag timeline.
func (d *Drag) Cancel() timeline.Timeline {
	d.stopScroll()
	return d.origin
}

// Drop ends the drag at position to of current. The dragged visit is
// located again by spot, since current may have changed under the drag.
func (d *Drag) Drop(current timeline.Timeline, to int) (timeline.DragCompleted, error) {
	d.stopScroll()
	from := current.IndexOf(d.spotID)
	if from < 0 {
		return timeline.DragCompleted{}, fmt.Errorf("drag: spot %s left the timeline: %w", d.spotID, apperr.ErrInvalidMove)
	}
	if to < 0 || to > len(current) {
		return timeline.DragCompleted{}, fmt.Errorf("drag: drop at %d: %w", to, apperr.ErrInvalidMove)
	}
	return timeline.DragCompleted{From: from, To: to}, nil
}

func (d *Drag) stopScroll() {
	if d.scroll != nil {
		d.scroll.Stop()
	}
}
