// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	EventSpotChanged     = "spot.changed"
	EventTimelineUpdated = "timeline.updated"
	EventDragScroll      = "drag.scroll"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type dayKey struct {
	room string
	day  int
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal loop owns the client set and the per-day throttle
// state; public methods talk to it over channels. Updates suppressed by
// the throttle are sent once when the window closes.
type Broker struct {
	timelineMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	timelineCh    chan dayKey
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that sends at most one timeline.updated per
// room and day every timelineThrottle. The last update within a window is
// never lost.
func NewBroker(timelineThrottle time.Duration) *Broker {
	if timelineThrottle <= 0 {
		timelineThrottle = 2 * time.Second
	}

	b := &Broker{
		timelineMin:   timelineThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		timelineCh:    make(chan dayKey, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	lastTimeline := make(map[dayKey]time.Time)
	pending := make(map[dayKey]bool)
	flushCh := make(chan dayKey)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	sendTimeline := func(k dayKey) {
		broadcast(Event{Type: EventTimelineUpdated, Data: map[string]any{"room": k.room, "day": k.day}})
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case k := <-b.timelineCh:
			now := time.Now()
			if wait := b.timelineMin - now.Sub(lastTimeline[k]); wait > 0 {
				// Announce the latest change once the window closes.
				if !pending[k] {
					pending[k] = true
					time.AfterFunc(wait, func() {
						select {
						case flushCh <- k:
						case <-b.stopCh:
						}
					})
				}
				continue
			}
			lastTimeline[k] = now
			sendTimeline(k)

		case k := <-flushCh:
			if !pending[k] {
				continue
			}
			delete(pending, k)
			lastTimeline[k] = time.Now()
			sendTimeline(k)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishSpotChanged announces a spot change in room.
func (b *Broker) PublishSpotChanged(room, spotID string) {
	b.Publish(Event{Type: EventSpotChanged, Data: map[string]string{"room": room, "spot_id": spotID}})
}

// PublishDragScroll forwards an auto-scroll tick to clients.
func (b *Broker) PublishDragScroll(room string, day, dir int) {
	b.Publish(Event{Type: EventDragScroll, Data: map[string]any{"room": room, "day": day, "direction": dir}})
}

// PublishTimelineUpdated announces a new timeline for room and day,
// throttled per day.
func (b *Broker) PublishTimelineUpdated(room string, day int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.timelineCh <- dayKey{room: room, day: day}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
