// Package drag tracks a drag-and-drop reorder of one visit, including the
// auto-scroll that runs while the pointer sits near a list edge.
package drag

import (
	"sync"
	"time"
)

// MinInterval bounds the auto-scroll tick rate.
const MinInterval = 16 * time.Millisecond

// AutoScroller calls tick at a fixed interval while started. Start and
// Stop may be called any number of times in any order.
type AutoScroller struct {
	interval time.Duration
	tick     func(dir int)

	mu   sync.Mutex
	dir  int
	stop chan struct{}
	done chan struct{}
}

// NewAutoScroller creates a stopped scroller. Intervals below MinInterval
// are raised to it.
func NewAutoScroller(interval time.Duration, tick func(dir int)) *AutoScroller {
	return &AutoScroller{interval: max(interval, MinInterval), tick: tick}
}

// Start begins ticking in direction dir (-1 up, +1 down). If already
// running only the direction changes.
func (a *AutoScroller) Start(dir int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dir = dir
	if a.stop != nil {
		return
	}
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	go a.run(a.stop, a.done)
}

func (a *AutoScroller) run(stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(a.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			a.mu.Lock()
			dir := a.dir
			a.mu.Unlock()
			a.tick(dir)
		}
	}
}

// Stop halts ticking and waits for the last tick to finish.
func (a *AutoScroller) Stop() {
	a.mu.Lock()
	stop, done := a.stop, a.done
	a.stop, a.done = nil, nil
	a.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the scroller is ticking.
func (a *AutoScroller) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stop != nil
}

// EdgeDirection returns -1 when y is within edge of the top of a viewport
// of the given height, +1 near the bottom and 0 elsewhere.
func EdgeDirection(y, height, edge float64) int {
	switch {
	case y < edge:
		return -1
	case y > height-edge:
		return 1
	default:
		return 0
	}
}
