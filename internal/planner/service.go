// Package planner owns the per-room planning sessions. Every mutation of a
// day plan goes through the timeline reducer; snapshots and remote field
// writes follow asynchronously.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/itinera/internal/apperr"
	"github.com/starford/itinera/internal/drag"
	"github.com/starford/itinera/internal/models"
	"github.com/starford/itinera/internal/optimizer"
	"github.com/starford/itinera/internal/snapshot"
	"github.com/starford/itinera/internal/spotpool"
	"github.com/starford/itinera/internal/spotstore"
	"github.com/starford/itinera/internal/timeline"
)

// Publisher pushes change notifications to connected clients.
type Publisher interface {
	PublishSpotChanged(room, spotID string)
	PublishTimelineUpdated(room string, day int)
	PublishDragScroll(room string, day, dir int)
}

// Optimizer orders a day's spots.
type Optimizer interface {
	Optimize(ctx context.Context, req optimizer.Request) (optimizer.Result, error)
}

// SnapshotSaver queues snapshot writes.
type SnapshotSaver interface {
	Save(room string, day int, snap snapshot.Snapshot)
}

// Config holds planner defaults.
type Config struct {
	DefaultStart   timeline.Clock
	DefaultEnd     timeline.Clock
	ScrollInterval time.Duration
}

// Service coordinates spot storage, snapshots and the timeline engine.
type Service struct {
	repo   spotstore.Repo
	snaps  snapshot.Store
	saver  SnapshotSaver
	opt    Optimizer
	pub    Publisher
	logger *slog.Logger
	cfg    Config

	mu    sync.Mutex
	rooms map[string]*room

	bg sync.WaitGroup
}

type room struct {
	mu   sync.Mutex
	id   string
	pool *spotpool.Pool
	days map[int]*dayPlan
}

type dayPlan struct {
	state    timeline.State
	geometry json.RawMessage
	drag     *drag.Drag
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Repo      spotstore.Repo
	Snapshots snapshot.Store
	Saver     SnapshotSaver
	Optimizer Optimizer
	Publisher Publisher
	Logger    *slog.Logger
}

// NewService creates a planner service.
func NewService(d Deps, cfg Config) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if cfg.ScrollInterval <= 0 {
		cfg.ScrollInterval = 50 * time.Millisecond
	}
	return &Service{
		repo:   d.Repo,
		snaps:  d.Snapshots,
		saver:  d.Saver,
		opt:    d.Optimizer,
		pub:    d.Publisher,
		logger: d.Logger,
		cfg:    cfg,
		rooms:  make(map[string]*room),
	}
}

// Wait blocks until background remote writes have finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

// room returns the session for id, loading its pool on first use. The
// returned room is locked; callers must unlock it.
func (s *Service) room(ctx context.Context, id string) (*room, error) {
	if id == "" {
		return nil, fmt.Errorf("planner: room id is required: %w", apperr.ErrValidation)
	}
	s.mu.Lock()
	r, ok := s.rooms[id]
	if !ok {
		r = &room{id: id, days: make(map[int]*dayPlan)}
		s.rooms[id] = r
	}
	s.mu.Unlock()

	r.mu.Lock()
	if r.pool == nil {
		spots, err := s.repo.ListByRoom(ctx, id)
		if err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("planner: load spots: %w", err)
		}
		r.pool = spotpool.New(spots)
	}
	return r, nil
}

// day returns the plan for day, deriving it from the snapshot and pool on
// first use. r must be locked.
func (s *Service) day(ctx context.Context, r *room, day int) (*dayPlan, error) {
	if p, ok := r.days[day]; ok {
		return p, nil
	}
	act := timeline.DayChanged{Day: day, Start: timeline.ClockPtr(s.cfg.DefaultStart)}
	var geometry json.RawMessage
	if snap, ok := s.snaps.Load(ctx, r.id, day); ok {
		act.Start = snap.StartTime
		act.Saved = snap.Timeline
		act.Excluded = snap.Unused
		geometry = snap.RouteGeometry
	}
	st, err := timeline.Reduce(timeline.State{Pool: r.pool.Spots()}, act)
	if err != nil {
		return nil, err
	}
	p := &dayPlan{state: st, geometry: geometry}
	r.days[day] = p
	return p, nil
}

// dispatch applies a to the day plan and, on success, persists and
// announces the result. r must be locked.
func (s *Service) dispatch(r *room, day int, p *dayPlan, a timeline.Action) error {
	next, err := timeline.Reduce(p.state, a)
	if err != nil {
		return err
	}
	p.state = next
	s.settle(r, day, p)
	return nil
}

// settle saves the day's snapshot and tells clients about it.
func (s *Service) settle(r *room, day int, p *dayPlan) {
	if s.saver != nil {
		s.saver.Save(r.id, day, snapshot.Snapshot{
			Timeline:      p.state.Timeline,
			RouteGeometry: p.geometry,
			Unused:        p.state.Excluded,
			StartTime:     p.state.Start,
			UpdatedAt:     time.Now().UnixMilli(),
		})
	}
	if s.pub != nil {
		s.pub.PublishTimelineUpdated(r.id, day)
	}
}

// rederive refreshes every loaded day of r from its pool. r must be locked.
func (s *Service) rederive(r *room) {
	pool := r.pool.Spots()
	for day, p := range r.days {
		next, err := timeline.Reduce(p.state, timeline.SpotsChanged{Pool: pool})
		if err != nil {
			s.logger.Error("planner: rederive failed",
				slog.String("room", r.id), slog.Int("day", day), slog.String("error", err.Error()))
			continue
		}
		p.state = next
		s.settle(r, day, p)
	}
}

// writeRemote stores the listed fields of spots in the background. A
// failure is logged and the optimistic local state stays as it is.
func (s *Service) writeRemote(spots []models.Spot, fields []models.SpotField) {
	if len(spots) == 0 {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, sp := range spots {
			if err := s.repo.UpdateFields(ctx, sp, fields); err != nil {
				s.logger.Error("planner: remote write failed",
					slog.String("spot", sp.ID), slog.String("error", err.Error()))
			}
		}
	}()
}

// recordOrder writes each visit's position back as the spot's order.
// r must be locked.
func (s *Service) recordOrder(r *room, p *dayPlan) {
	var changed []models.Spot
	n := 0
	for _, seg := range p.state.Timeline {
		if !seg.IsVisit() || seg.Visit.CarryOver {
			continue
		}
		n++
		sp, ok := r.pool.Get(seg.Visit.SpotID)
		if !ok || sp.Order == n {
			continue
		}
		sp.Order = n
		updated, err := r.pool.EditLocal(sp, []models.SpotField{models.FieldOrder})
		if err != nil {
			continue
		}
		changed = append(changed, updated)
	}
	if len(changed) > 0 {
		p.state.Pool = r.pool.Spots()
	}
	s.writeRemote(changed, []models.SpotField{models.FieldOrder})
}

// discard drops a loaded day plan, stopping any drag still running on it.
// r must be locked.
func (s *Service) discard(r *room, day int, p *dayPlan) {
	if p.drag != nil {
		p.drag.Cancel()
		p.drag = nil
	}
	delete(r.days, day)
}

// DayView returns the plan for room and day.
func (s *Service) DayView(ctx context.Context, roomID string, day int) (View, error) {
	r, err := s.room(ctx, roomID)
	if err != nil {
		return View{}, err
	}
	defer r.mu.Unlock()
	p, err := s.day(ctx, r, day)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, r, day, p), nil
}

// ListSpots returns the room's spot pool.
func (s *Service) ListSpots(ctx context.Context, roomID string) ([]models.Spot, error) {
	r, err := s.room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	return r.pool.Spots(), nil
}

// withDay runs fn on a loaded day plan and returns the resulting view.
func (s *Service) withDay(ctx context.Context, roomID string, day int, fn func(r *room, p *dayPlan) error) (View, error) {
	r, err := s.room(ctx, roomID)
	if err != nil {
		return View{}, err
	}
	defer r.mu.Unlock()
	p, err := s.day(ctx, r, day)
	if err != nil {
		return View{}, err
	}
	if err := fn(r, p); err != nil {
		return View{}, err
	}
	return s.view(ctx, r, day, p), nil
}

// SetStartTime sets or, with nil, clears the day's start time.
func (s *Service) SetStartTime(ctx context.Context, roomID string, day int, start *timeline.Clock) (View, error) {
	return s.withDay(ctx, roomID, day, func(r *room, p *dayPlan) error {
		return s.dispatch(r, day, p, timeline.StartTimeChanged{Start: start})
	})
}

// EditSegment changes fields of the segment at index. A stay edit on a
// visit is also written to the spot's stay_time.
func (s *Service) EditSegment(ctx context.Context, roomID string, day, index int, edit timeline.SegmentEdit) (View, error) {
	return s.withDay(ctx, roomID, day, func(r *room, p *dayPlan) error {
		if err := s.dispatch(r, day, p, timeline.SegmentEdited{Index: index, Edit: edit}); err != nil {
			return err
		}
		if edit.Stay == nil {
			return nil
		}
		seg := p.state.Timeline[index]
		if !seg.IsVisit() || seg.Visit.CarryOver {
			return nil
		}
		sp, ok := r.pool.Get(seg.Visit.SpotID)
		if !ok {
			return nil
		}
		if n, set := edit.Stay.Get(); set {
			sp.StayTime = &n
		} else {
			sp.StayTime = nil
		}
		updated, err := r.pool.EditLocal(sp, []models.SpotField{models.FieldStayTime})
		if err != nil {
			return nil
		}
		// The spot default feeds the schedule; derive again with it.
		if err := s.dispatch(r, day, p, timeline.SpotsChanged{Pool: r.pool.Spots()}); err != nil {
			return err
		}
		s.writeRemote([]models.Spot{updated}, []models.SpotField{models.FieldStayTime})
		return nil
	})
}

// Reorder moves the visit at from to the drop point to.
func (s *Service) Reorder(ctx context.Context, roomID string, day, from, to int) (View, error) {
	return s.withDay(ctx, roomID, day, func(r *room, p *dayPlan) error {
		if err := s.dispatch(r, day, p, timeline.DragCompleted{From: from, To: to}); err != nil {
			return err
		}
		s.recordOrder(r, p)
		return nil
	})
}

// ExcludeSpot leaves a confirmed spot out of the day.
func (s *Service) ExcludeSpot(ctx context.Context, roomID string, day int, spotID string) (View, error) {
	return s.withDay(ctx, roomID, day, func(r *room, p *dayPlan) error {
		return s.dispatch(r, day, p, timeline.SpotExcluded{SpotID: spotID})
	})
}

// IncludeSpot puts an excluded spot back at the end of the day.
func (s *Service) IncludeSpot(ctx context.Context, roomID string, day int, spotID string) (View, error) {
	return s.withDay(ctx, roomID, day, func(r *room, p *dayPlan) error {
		return s.dispatch(r, day, p, timeline.SpotIncluded{SpotID: spotID})
	})
}

// Optimize replaces the day's order with the route service's answer. On
// failure the plan is left untouched. The room stays unlocked while the
// service is called; the answer is merged into whatever the day holds then.
func (s *Service) Optimize(ctx context.Context, roomID string, day int) (View, error) {
	if s.opt == nil {
		return View{}, fmt.Errorf("planner: no optimizer configured: %w", apperr.ErrOptimizer)
	}
	req, err := s.optimizeRequest(ctx, roomID, day)
	if err != nil {
		return View{}, err
	}
	res, err := s.opt.Optimize(ctx, req)
	if err != nil {
		return View{}, err
	}
	return s.withDay(ctx, roomID, day, func(r *room, p *dayPlan) error {
		p.geometry = res.RouteGeometry
		if err := s.dispatch(r, day, p, timeline.TimelineReplaced{Timeline: res.Timeline, Excluded: res.Unused}); err != nil {
			return err
		}
		s.recordOrder(r, p)
		if _, err := s.repo.IncrementOptimizeCount(ctx, r.id); err != nil {
			s.logger.Warn("planner: optimize count", slog.String("room", r.id), slog.String("error", err.Error()))
		}
		return nil
	})
}

// optimizeRequest describes the day to the route service.
func (s *Service) optimizeRequest(ctx context.Context, roomID string, day int) (optimizer.Request, error) {
	r, err := s.room(ctx, roomID)
	if err != nil {
		return optimizer.Request{}, err
	}
	defer r.mu.Unlock()
	p, err := s.day(ctx, r, day)
	if err != nil {
		return optimizer.Request{}, err
	}
	part := p.state.Partition()
	req := optimizer.Request{
		Spots:     part.Spots,
		StartTime: s.cfg.DefaultStart,
		EndTime:   s.cfg.DefaultEnd,
	}
	if p.state.Start != nil {
		req.StartTime = *p.state.Start
	}
	if part.CarryOver != nil {
		req.StartSpotName = part.CarryOver.Name
	}
	return req, nil
}

// ApplySpotChange stores a spot change and merges it into the room's pool.
// Every loaded day is re-derived.
func (s *Service) ApplySpotChange(ctx context.Context, roomID string, c spotpool.Change) (models.Spot, error) {
	if c.Spot.ID == "" {
		return models.Spot{}, fmt.Errorf("planner: spot id is required: %w", apperr.ErrValidation)
	}
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	c.Spot.RoomID = roomID

	r, err := s.room(ctx, roomID)
	if err != nil {
		return models.Spot{}, err
	}
	defer r.mu.Unlock()

	switch {
	case c.Deleted:
		if err := s.repo.Delete(ctx, c.Spot.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return models.Spot{}, err
		}
	case c.Fields == nil:
		c.Spot.UpdatedAt = c.At
		if err := s.repo.Upsert(ctx, c.Spot); err != nil {
			return models.Spot{}, err
		}
	default:
		if err := s.repo.UpdateFields(ctx, c.Spot, c.Fields); err != nil {
			return models.Spot{}, err
		}
	}

	if r.pool.ApplyRemoteSpotChange(c) {
		s.rederive(r)
	}
	if s.pub != nil {
		s.pub.PublishSpotChanged(r.id, c.Spot.ID)
	}
	sp, _ := r.pool.Get(c.Spot.ID)
	return sp, nil
}

// RefreshAll reloads the pool of every loaded room from the store.
func (s *Service) RefreshAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.refreshRoom(ctx, id); err != nil {
			s.logger.Warn("planner: refresh failed", slog.String("room", id), slog.String("error", err.Error()))
		}
	}
}

func (s *Service) refreshRoom(ctx context.Context, id string) error {
	r, err := s.room(ctx, id)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	spots, err := s.repo.ListByRoom(ctx, id)
	if err != nil {
		return err
	}
	if r.pool.Refresh(spots) {
		s.rederive(r)
	}
	return nil
}

// ReloadDay drops a loaded day so it is rebuilt from its snapshot, then
// announces the change. Days that are not loaded are ignored.
func (s *Service) ReloadDay(ctx context.Context, roomID string, day int) {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, loaded := r.days[day]
	if !loaded || r.pool == nil {
		return
	}
	s.discard(r, day, p)
	if _, err := s.day(ctx, r, day); err != nil {
		s.logger.Warn("planner: reload failed", slog.String("room", roomID), slog.Int("day", day), slog.String("error", err.Error()))
		return
	}
	if s.pub != nil {
		s.pub.PublishTimelineUpdated(roomID, day)
	}
}

// SetTravelDays records how many days the trip spans.
func (s *Service) SetTravelDays(ctx context.Context, roomID string, days int) (int, error) {
	if days < 1 {
		return 0, fmt.Errorf("planner: travel days must be at least 1: %w", apperr.ErrValidation)
	}
	r, err := s.room(ctx, roomID)
	if err != nil {
		return 0, err
	}
	defer r.mu.Unlock()
	if err := s.repo.SetTravelDays(ctx, roomID, days); err != nil {
		return 0, err
	}
	return s.dayCount(ctx, r), nil
}
