package snapshot

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

type writeKey struct {
	room string
	day  int
}

// Writer saves snapshots in the background. Saves for the same room and
// day that queue up before the writer gets to them collapse into the last.
type Writer struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	pending map[writeKey]Snapshot

	wake    chan struct{}
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewWriter starts a Writer on top of store.
func NewWriter(store Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		store:   store,
		logger:  logger,
		pending: make(map[writeKey]Snapshot),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stopCh:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[writeKey]Snapshot)
	w.mu.Unlock()

	for k, snap := range batch {
		if err := w.store.Save(context.Background(), k.room, k.day, snap); err != nil {
			w.logger.Error("snapshot: save failed",
				slog.String("room", k.room),
				slog.Int("day", k.day),
				slog.String("error", err.Error()))
		}
	}
}

// Save queues snap and returns immediately.
func (w *Writer) Save(room string, day int, snap Snapshot) {
	if w.closed.Load() {
		w.logger.Warn("snapshot: save after close dropped", slog.String("room", room), slog.Int("day", day))
		return
	}
	w.mu.Lock()
	w.pending[writeKey{room: room, day: day}] = snap
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close writes whatever is still queued and stops the writer.
func (w *Writer) Close() {
	if w.closed.CompareAndSwap(false, true) {
		close(w.stopCh)
	}
	<-w.stopped
}
