// Package optimizer talks to the external route-optimisation service. The
// service decides the order; this package only turns its answer into a
// timeline the engine can normalise.
package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/starford/itinera/internal/apperr"
	"github.com/starford/itinera/internal/models"
	"github.com/starford/itinera/internal/timeline"
)

const optimizePath = "/api/optimize_route"

// Config configures a Client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerMinute int
}

// Client calls the optimise-route endpoint.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Client. A non-positive RatePerMinute disables throttling.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RatePerMinute))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:    strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Request is one optimisation job.
type Request struct {
	Spots         []models.Spot
	StartTime     timeline.Clock
	EndTime       timeline.Clock
	StartSpotName string
	EndSpotName   string
}

// Result is the optimised ordering of a day.
type Result struct {
	Timeline      timeline.Timeline
	RouteGeometry json.RawMessage
	Unused        []string
}

type wireSpot struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Coordinates [2]float64 `json:"coordinates"`
	StayTime    *int       `json:"stay_time,omitempty"`
	IsHotel     bool       `json:"is_hotel"`
}

type wireRequest struct {
	Spots         []wireSpot `json:"spots"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	StartSpotName string     `json:"start_spot_name,omitempty"`
	EndSpotName   string     `json:"end_spot_name,omitempty"`
}

type wireRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireItem struct {
	Type          string   `json:"type"`
	Spot          *wireRef `json:"spot"`
	StayMin       *float64 `json:"stay_min"`
	DurationMin   *float64 `json:"duration_min"`
	TransportMode string   `json:"transport_mode"`
	GoogleMapsURL *string  `json:"google_maps_url"`
}

type wireResponse struct {
	Timeline      []wireItem      `json:"timeline"`
	RouteGeometry json.RawMessage `json:"route_geometry"`
	UnusedSpots   []wireRef       `json:"unused_spots"`
	Error         string          `json:"error"`
}

// Optimize asks the service for the best order of req.Spots. Any failure
// wraps apperr.ErrOptimizer.
func (c *Client) Optimize(ctx context.Context, req Request) (Result, error) {
	if len(req.Spots) < 2 {
		return Result{}, fmt.Errorf("optimizer: need at least 2 spots, got %d: %w", len(req.Spots), apperr.ErrValidation)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("optimizer: rate limit: %w", err)
	}

	body := wireRequest{
		StartTime:     req.StartTime.String(),
		EndTime:       req.EndTime.String(),
		StartSpotName: req.StartSpotName,
		EndSpotName:   req.EndSpotName,
	}
	for _, s := range req.Spots {
		body.Spots = append(body.Spots, wireSpot{
			ID: s.ID, Name: s.Name, Coordinates: s.Coordinates, StayTime: s.StayTime, IsHotel: s.LooksLikeLodging(),
		})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("optimizer: encode: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+optimizePath, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("optimizer: build request: %w", err)
	}
	reqID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", reqID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("optimizer: %w: %w", apperr.ErrOptimizer, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return Result{}, fmt.Errorf("optimizer: read body: %w: %w", apperr.ErrOptimizer, err)
	}

	var out wireResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Warn("optimizer: service error",
			slog.String("request_id", reqID),
			slog.Int("status", resp.StatusCode),
			slog.String("error", msg))
		return Result{}, fmt.Errorf("optimizer: status %d: %s: %w", resp.StatusCode, msg, apperr.ErrOptimizer)
	}
	if decodeErr != nil {
		return Result{}, fmt.Errorf("optimizer: decode: %w: %w", apperr.ErrOptimizer, decodeErr)
	}
	if out.Error != "" {
		return Result{}, fmt.Errorf("optimizer: %s: %w", out.Error, apperr.ErrOptimizer)
	}
	if len(out.Timeline) == 0 {
		return Result{}, fmt.Errorf("optimizer: empty timeline: %w", apperr.ErrOptimizer)
	}

	return convert(out, req.Spots), nil
}

// convert maps the service's answer onto known spots. Items naming an
// unknown spot are dropped; the normaliser cleans up the legs around them.
func convert(resp wireResponse, spots []models.Spot) Result {
	byID := make(map[string]models.Spot, len(spots))
	byName := make(map[string]models.Spot, len(spots))
	for _, s := range spots {
		byID[s.ID] = s
		byName[s.Name] = s
	}
	resolve := func(ref *wireRef) (models.Spot, bool) {
		if ref == nil {
			return models.Spot{}, false
		}
		if s, ok := byID[ref.ID]; ok && ref.ID != "" {
			return s, true
		}
		s, ok := byName[ref.Name]
		return s, ok
	}

	var segs []timeline.Segment
	for _, item := range resp.Timeline {
		switch item.Type {
		case "spot":
			s, ok := resolve(item.Spot)
			if !ok {
				segs = append(segs, timeline.NewVisit(""))
				continue
			}
			v := timeline.VisitOf(s)
			if item.StayMin != nil {
				v.Visit.Stay = timeline.MinutesOf(int(*item.StayMin))
			}
			segs = append(segs, v)
		case "travel":
			d := timeline.Unset()
			if item.DurationMin != nil {
				d = timeline.MinutesOf(int(*item.DurationMin + 0.5))
			}
			l := timeline.NewLeg(timeline.ParseMode(item.TransportMode), d)
			l.Leg.URL = item.GoogleMapsURL
			segs = append(segs, l)
		}
	}

	res := Result{Timeline: timeline.Normalize(segs)}
	if len(resp.RouteGeometry) > 0 && string(resp.RouteGeometry) != "null" {
		res.RouteGeometry = resp.RouteGeometry
	}
	res.Unused = []string{}
	for _, ref := range resp.UnusedSpots {
		if s, ok := resolve(&ref); ok {
			res.Unused = append(res.Unused, s.ID)
		}
	}
	return res
}
