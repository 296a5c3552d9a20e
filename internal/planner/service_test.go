package planner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/itinera/internal/apperr"
	"github.com/starford/itinera/internal/models"
	"github.com/starford/itinera/internal/optimizer"
	"github.com/starford/itinera/internal/snapshot"
	"github.com/starford/itinera/internal/spotpool"
	"github.com/starford/itinera/internal/spotstore"
	"github.com/starford/itinera/internal/testutil"
	"github.com/starford/itinera/internal/timeline"
)

type recorder struct {
	mu       sync.Mutex
	saved    map[string]snapshot.Snapshot
	timeline []string
	spots    []string
	scrolls  []int
}

func newRecorder() *recorder {
	return &recorder{saved: make(map[string]snapshot.Snapshot)}
}

func (r *recorder) Save(room string, day int, snap snapshot.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[snapshot.Key(room, day)] = snap
}

func (r *recorder) PublishSpotChanged(room, spotID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spots = append(r.spots, spotID)
}

func (r *recorder) PublishTimelineUpdated(room string, day int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeline = append(r.timeline, fmt.Sprintf("%s/%d", room, day))
}

func (r *recorder) PublishDragScroll(room string, day, dir int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrolls = append(r.scrolls, dir)
}

func (r *recorder) snapshot(room string, day int) (snapshot.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.saved[snapshot.Key(room, day)]
	return s, ok
}

type noSnapshots struct{}

func (noSnapshots) Load(context.Context, string, int) (snapshot.Snapshot, bool) {
	return snapshot.Snapshot{}, false
}
func (noSnapshots) Save(context.Context, string, int, snapshot.Snapshot) error { return nil }

type fakeOptimizer struct {
	res optimizer.Result
	err error
	got optimizer.Request

	// When set, Optimize closes entered and then waits on release.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeOptimizer) Optimize(_ context.Context, req optimizer.Request) (optimizer.Result, error) {
	f.got = req
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	return f.res, f.err
}

func spot(id string, day, order int) models.Spot {
	return models.Spot{ID: id, RoomID: "r1", Name: "Spot " + id, Day: day, Order: order, Status: models.StatusConfirmed}
}

type fixture struct {
	svc  *Service
	repo *spotstore.DB
	rec  *recorder
	opt  *fakeOptimizer
}

func setup(t *testing.T, snaps snapshot.Store, spots ...models.Spot) fixture {
	t.Helper()
	repo := testutil.TestStore(t)
	ctx := context.Background()
	for _, s := range spots {
		require.NoError(t, repo.Upsert(ctx, s))
	}
	if snaps == nil {
		snaps = noSnapshots{}
	}
	rec := newRecorder()
	opt := &fakeOptimizer{}
	svc := NewService(Deps{
		Repo:      repo,
		Snapshots: snaps,
		Saver:     rec,
		Optimizer: opt,
		Publisher: rec,
		Logger:    testutil.Logger(),
	}, Config{DefaultStart: 540, DefaultEnd: 1080, ScrollInterval: time.Millisecond})
	t.Cleanup(svc.Wait)
	return fixture{svc: svc, repo: repo, rec: rec, opt: opt}
}

func TestDayView_DerivesFromPool(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1), spot("b", 1, 2), spot("c", 3, 1))

	v, err := f.svc.DayView(context.Background(), "r1", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, v.Timeline.SpotIDs())
	assert.Len(t, v.Timeline, 3)
	assert.Equal(t, []string{"1", "", "2"}, v.Labels)
	assert.Equal(t, 3, v.DayCount)
	require.NotNil(t, v.StartTime)
	assert.Equal(t, timeline.Clock(540), *v.StartTime)
	require.NotNil(t, v.Timeline[1].Leg.URL)
	assert.Contains(t, *v.Timeline[1].Leg.URL, "travelmode=walking")
	assert.Empty(t, v.Unused)
}

func TestDayView_UsesSnapshot(t *testing.T) {
	_, fs := testutil.TestSnapshots(t)
	start := timeline.Clock(600)
	require.NoError(t, fs.Save(context.Background(), "r1", 1, snapshot.Snapshot{
		Timeline:  timeline.Normalize([]timeline.Segment{timeline.NewVisit("b"), timeline.NewVisit("a")}),
		Unused:    []string{"c"},
		StartTime: &start,
	}))
	f := setup(t, fs, spot("a", 1, 1), spot("b", 1, 2), spot("c", 1, 3))

	v, err := f.svc.DayView(context.Background(), "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, v.Timeline.SpotIDs())
	require.Len(t, v.Unused, 1)
	assert.Equal(t, "c", v.Unused[0].ID)
	assert.Equal(t, timeline.Clock(600), *v.StartTime)
}

func TestReorder_PersistsOrder(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1), spot("b", 1, 2), spot("c", 1, 3))
	ctx := context.Background()

	v, err := f.svc.Reorder(ctx, "r1", 1, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, v.Timeline.SpotIDs())

	f.svc.Wait()
	a, err := f.repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, a.Order)
	b, err := f.repo.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Order)

	snap, ok := f.rec.snapshot("r1", 1)
	require.True(t, ok)
	assert.Equal(t, []string{"b", "c", "a"}, snap.Timeline.SpotIDs())
	assert.Contains(t, f.rec.timeline, "r1/1")
}

func TestReorder_InvalidLeavesState(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1), spot("b", 1, 2))
	ctx := context.Background()

	_, err := f.svc.Reorder(ctx, "r1", 1, 1, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidMove)

	v, err := f.svc.DayView(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v.Timeline.SpotIDs())
}

func TestEditSegment_StayWritesSpot(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1), spot("b", 1, 2))
	ctx := context.Background()

	stay := timeline.MinutesOf(45)
	v, err := f.svc.EditSegment(ctx, "r1", 1, 0, timeline.SegmentEdit{Stay: &stay})
	require.NoError(t, err)
	require.NotNil(t, v.Timeline[0].Visit.Departure)
	assert.Equal(t, timeline.Clock(585), *v.Timeline[0].Visit.Departure)

	f.svc.Wait()
	a, err := f.repo.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, a.StayTime)
	assert.Equal(t, 45, *a.StayTime)
}

func TestEditSegment_ClearStayDropsSpotDefault(t *testing.T) {
	a := spot("a", 1, 1)
	thirty := 30
	a.StayTime = &thirty
	f := setup(t, nil, a, spot("b", 1, 2))
	ctx := context.Background()

	v, err := f.svc.DayView(ctx, "r1", 1)
	require.NoError(t, err)
	require.NotNil(t, v.Timeline[0].Visit.Departure)
	assert.Equal(t, timeline.Clock(570), *v.Timeline[0].Visit.Departure)

	unset := timeline.Unset()
	v, err = f.svc.EditSegment(ctx, "r1", 1, 0, timeline.SegmentEdit{Stay: &unset})
	require.NoError(t, err)
	assert.False(t, v.Timeline[0].Visit.Stay.IsSet())
	require.NotNil(t, v.Timeline[0].Visit.Departure)
	assert.Equal(t, timeline.Clock(540), *v.Timeline[0].Visit.Departure)

	snap, ok := f.rec.snapshot("r1", 1)
	require.True(t, ok)
	require.NotNil(t, snap.Timeline[0].Visit.Departure)
	assert.Equal(t, timeline.Clock(540), *snap.Timeline[0].Visit.Departure)

	f.svc.Wait()
	stored, err := f.repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, stored.StayTime)
}

func TestExcludeInclude(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1), spot("b", 1, 2), spot("c", 1, 3))
	ctx := context.Background()

	v, err := f.svc.ExcludeSpot(ctx, "r1", 1, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, v.Timeline.SpotIDs())
	require.Len(t, v.Unused, 1)
	assert.Equal(t, "a", v.Unused[0].ID)

	v, err = f.svc.IncludeSpot(ctx, "r1", 1, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, v.Timeline.SpotIDs())
	assert.Empty(t, v.Unused)
}

func TestOptimize(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1), spot("b", 1, 2), spot("c", 1, 3))
	ctx := context.Background()

	f.opt.err = fmt.Errorf("boom: %w", apperr.ErrOptimizer)
	_, err := f.svc.Optimize(ctx, "r1", 1)
	require.ErrorIs(t, err, apperr.ErrOptimizer)
	v, err := f.svc.DayView(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, v.Timeline.SpotIDs())

	f.opt.err = nil
	f.opt.res = optimizer.Result{
		Timeline: timeline.Normalize([]timeline.Segment{
			timeline.NewVisit("c"), timeline.NewLeg(timeline.ModeCar, timeline.MinutesOf(20)), timeline.NewVisit("a"),
		}),
		Unused: []string{"b"},
	}
	v, err = f.svc.Optimize(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, v.Timeline.SpotIDs())
	require.Len(t, v.Unused, 1)
	assert.Equal(t, "b", v.Unused[0].ID)
	assert.Len(t, f.opt.got.Spots, 3)
	assert.Equal(t, timeline.Clock(1080), f.opt.got.EndTime)

	n, err := f.repo.IncrementOptimizeCount(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOptimize_RoomStaysUsableDuringCall(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1), spot("b", 1, 2))
	ctx := context.Background()

	f.opt.entered = make(chan struct{})
	f.opt.release = make(chan struct{})
	f.opt.res = optimizer.Result{
		Timeline: timeline.Normalize([]timeline.Segment{timeline.NewVisit("b"), timeline.NewVisit("a")}),
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Optimize(ctx, "r1", 1)
		done <- err
	}()
	<-f.opt.entered

	viewed := make(chan error, 1)
	go func() {
		_, err := f.svc.DayView(ctx, "r1", 1)
		viewed <- err
	}()
	select {
	case err := <-viewed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		close(f.opt.release)
		t.Fatal("day view blocked while the optimizer was running")
	}

	close(f.opt.release)
	require.NoError(t, <-done)
	v, err := f.svc.DayView(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, v.Timeline.SpotIDs())
}

func TestApplySpotChange_RederivesDays(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1))
	ctx := context.Background()

	_, err := f.svc.DayView(ctx, "r1", 1)
	require.NoError(t, err)

	_, err = f.svc.ApplySpotChange(ctx, "r1", spotpool.Change{Spot: spot("d", 1, 2)})
	require.NoError(t, err)

	v, err := f.svc.DayView(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, v.Timeline.SpotIDs())
	assert.Contains(t, f.rec.spots, "d")

	_, err = f.svc.ApplySpotChange(ctx, "r1", spotpool.Change{Spot: models.Spot{ID: "a"}, Deleted: true})
	require.NoError(t, err)
	v, err = f.svc.DayView(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, v.Timeline.SpotIDs())

	_, err = f.repo.Get(ctx, "a")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPins_RoundTrip(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1), spot("b", 1, 2))
	ctx := context.Background()

	pin, err := f.svc.PinDay(ctx, "r1", 1, "original")
	require.NoError(t, err)
	assert.NotEmpty(t, pin.ID)

	_, err = f.svc.Reorder(ctx, "r1", 1, 0, 3)
	require.NoError(t, err)

	v, err := f.svc.LoadPin(ctx, "r1", pin.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v.Timeline.SpotIDs())

	pins, err := f.svc.ListPins(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, pins, 1)

	require.NoError(t, f.svc.DeletePin(ctx, "r1", pin.ID))
	_, err = f.svc.LoadPin(ctx, "r1", pin.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.PinDay(ctx, "r1", 1, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDrag_BeginPointerDrop(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1), spot("b", 1, 2), spot("c", 1, 3))
	ctx := context.Background()

	_, err := f.svc.DropDrag(ctx, "r1", 1, 0)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	v, err := f.svc.BeginDrag(ctx, "r1", 1, 4)
	require.NoError(t, err)
	assert.Equal(t, "c", v.Dragging)

	dir, err := f.svc.DragPointer(ctx, "r1", 1, 5, 600)
	require.NoError(t, err)
	assert.Equal(t, -1, dir)
	time.Sleep(60 * time.Millisecond)

	v, err = f.svc.DropDrag(ctx, "r1", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, v.Timeline.SpotIDs())
	assert.Empty(t, v.Dragging)

	f.rec.mu.Lock()
	assert.NotEmpty(t, f.rec.scrolls)
	f.rec.mu.Unlock()
}

func TestCancelDrag_KeepsTimeline(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1), spot("b", 1, 2))
	ctx := context.Background()

	_, err := f.svc.BeginDrag(ctx, "r1", 1, 0)
	require.NoError(t, err)
	v, err := f.svc.CancelDrag(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v.Timeline.SpotIDs())
	assert.Empty(t, v.Dragging)
}

func TestReloadDay_StopsRunningDrag(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1), spot("b", 1, 2))
	ctx := context.Background()

	_, err := f.svc.BeginDrag(ctx, "r1", 1, 2)
	require.NoError(t, err)
	dir, err := f.svc.DragPointer(ctx, "r1", 1, 1, 600)
	require.NoError(t, err)
	require.Equal(t, -1, dir)
	time.Sleep(60 * time.Millisecond)

	f.svc.ReloadDay(ctx, "r1", 1)

	f.rec.mu.Lock()
	before := len(f.rec.scrolls)
	f.rec.mu.Unlock()
	require.NotZero(t, before)

	time.Sleep(50 * time.Millisecond)
	f.rec.mu.Lock()
	after := len(f.rec.scrolls)
	f.rec.mu.Unlock()
	assert.Equal(t, before, after, "auto-scroll kept ticking after reload")

	v, err := f.svc.DayView(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Empty(t, v.Dragging)
}

func TestRefreshAll_PicksUpStoreChanges(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1))
	ctx := context.Background()

	_, err := f.svc.DayView(ctx, "r1", 1)
	require.NoError(t, err)
	require.NoError(t, f.repo.Upsert(ctx, spot("z", 1, 2)))

	f.svc.RefreshAll(ctx)
	v, err := f.svc.DayView(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z"}, v.Timeline.SpotIDs())
}

func TestDayView_RejectsBadDay(t *testing.T) {
	f := setup(t, nil, spot("a", 1, 1))
	_, err := f.svc.DayView(context.Background(), "r1", 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
