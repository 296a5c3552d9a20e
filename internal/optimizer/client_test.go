package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/itinera/internal/apperr"
	"github.com/starford/itinera/internal/models"
	"github.com/starford/itinera/internal/timeline"
)

func testSpots() []models.Spot {
	return []models.Spot{
		{ID: "a", Name: "Kinkakuji", Coordinates: [2]float64{135.72, 35.03}},
		{ID: "b", Name: "Fushimi Inari", Coordinates: [2]float64{135.77, 34.96}},
		{ID: "c", Name: "Gion"},
	}
}

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second}, nil)
}

func TestOptimize_Success(t *testing.T) {
	var got wireRequest
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != optimizePath || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing request id")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{
			"timeline": [
				{"type":"spot","spot":{"id":"b","name":"Fushimi Inari"},"arrival":"09:00","departure":"10:00","stay_min":60},
				{"type":"travel","duration_min":24.6,"transport_mode":"shinkansen","google_maps_url":"https://maps.example/x"},
				{"type":"spot","spot":{"name":"Kinkakuji"}},
				{"type":"travel","duration_min":5,"transport_mode":"walk"},
				{"type":"spot","spot":{"id":"ghost","name":"Ghost"}}
			],
			"route_geometry": {"type":"LineString","coordinates":[]},
			"unused_spots": [{"id":"c","name":"Gion"}]
		}`))
	})

	res, err := c.Optimize(context.Background(), Request{
		Spots: testSpots(), StartTime: 9 * 60, EndTime: 18 * 60, StartSpotName: "Kinkakuji",
	})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if got.StartTime != "09:00" || got.EndTime != "18:00" || len(got.Spots) != 3 || got.StartSpotName != "Kinkakuji" {
		t.Errorf("request = %+v", got)
	}

	if ids := res.Timeline.SpotIDs(); len(ids) != 2 || ids[0] != "b" || ids[1] != "a" {
		t.Fatalf("timeline ids = %v", ids)
	}
	if len(res.Timeline) != 3 {
		t.Fatalf("expected ghost and its leg dropped, got %d segments", len(res.Timeline))
	}
	leg := res.Timeline[1].Leg
	if leg.Mode != timeline.ModeTrain || leg.Duration.String() != "25" || leg.URL == nil {
		t.Errorf("leg = %+v", leg)
	}
	if res.Timeline[0].Visit.Stay.String() != "60" {
		t.Errorf("stay = %s", res.Timeline[0].Visit.Stay)
	}
	if len(res.Unused) != 1 || res.Unused[0] != "c" {
		t.Errorf("unused = %v", res.Unused)
	}
	if len(res.RouteGeometry) == 0 {
		t.Error("missing route geometry")
	}
}

func TestOptimize_Failures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"upstream down"}`))
		},
		"malformed": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"timeline": [`))
		},
		"error field": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":"no route"}`))
		},
		"empty": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"timeline": []}`))
		},
	}
	for name, h := range cases {
		c := newClient(t, h)
		_, err := c.Optimize(context.Background(), Request{Spots: testSpots(), StartTime: 540, EndTime: 1080})
		if !errors.Is(err, apperr.ErrOptimizer) {
			t.Errorf("%s: err = %v, want ErrOptimizer", name, err)
		}
	}
}

func TestOptimize_NeedsTwoSpots(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := c.Optimize(context.Background(), Request{Spots: testSpots()[:1]})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestOptimize_Unreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond}, nil)
	_, err := c.Optimize(context.Background(), Request{Spots: testSpots()})
	if !errors.Is(err, apperr.ErrOptimizer) {
		t.Fatalf("err = %v", err)
	}
}

func TestOptimize_RateLimitHonoursContext(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"timeline":[{"type":"spot","spot":{"id":"a"}}]}`))
	})
	c.limiter.SetLimit(0.001)

	if _, err := c.Optimize(context.Background(), Request{Spots: testSpots()}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Optimize(ctx, Request{Spots: testSpots()}); err == nil {
		t.Fatal("expected throttled call to fail")
	}
}
