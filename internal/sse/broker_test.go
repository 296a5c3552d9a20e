package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishSpotChanged(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSpotChanged("room1", "spot9")

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: spot.changed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"spot_id":"spot9"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestTimelineUpdated_ThrottledPerDay(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishTimelineUpdated("r", 1)
	b.PublishTimelineUpdated("r", 1)
	b.PublishTimelineUpdated("r", 1)
	b.PublishTimelineUpdated("r", 2)

	time.Sleep(50 * time.Millisecond)
	msgs := drain(ch)
	if len(msgs) != 2 {
		t.Fatalf("events = %d, want 2 (one per day): %v", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], `"day":1`) || !strings.Contains(msgs[1], `"day":2`) {
		t.Errorf("unexpected payloads: %v", msgs)
	}
}

func TestTimelineUpdated_TrailingEventAfterWindow(t *testing.T) {
	b := NewBroker(50 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishTimelineUpdated("r", 1)
	b.PublishTimelineUpdated("r", 1)
	b.PublishTimelineUpdated("r", 1)

	time.Sleep(200 * time.Millisecond)
	msgs := drain(ch)
	if len(msgs) != 2 {
		t.Fatalf("events = %d, want leading and trailing: %v", len(msgs), msgs)
	}
	for _, m := range msgs {
		if !strings.Contains(m, `"day":1`) {
			t.Errorf("unexpected payload %q", m)
		}
	}
}

func TestDragScrollEvent(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishDragScroll("r", 3, -1)
	select {
	case msg := <-ch:
		if !strings.Contains(string(msg), "event: drag.scroll") || !strings.Contains(string(msg), `"direction":-1`) {
			t.Errorf("unexpected %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishTimelineUpdated("r", 1)
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: timeline.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 70; i++ {
		b.PublishSpotChanged("r", "x")
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.PublishSpotChanged("r", "x")
	b.PublishTimelineUpdated("r", 1)
}
