package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/itinera/internal/apperr"
	"github.com/starford/itinera/internal/models"
)

func intPtr(n int) *int { return &n }

func testPool() []models.Spot {
	a := spot("a", 1, 1, "Temple")
	a.StayTime = intPtr(60)
	return []models.Spot{
		a,
		spot("b", 1, 2, "Garden"),
		spot("h", 1, 3, "Ryokan 旅館"),
		spot("c", 2, 1, "Station"),
	}
}

func mustReduce(t *testing.T, s State, a Action) State {
	t.Helper()
	next, err := Reduce(s, a)
	require.NoError(t, err)
	return next
}

func TestReduce_DayChangedDerivesTimeline(t *testing.T) {
	s := mustReduce(t, State{Pool: testPool()}, DayChanged{Day: 1, Start: ClockPtr(9 * 60)})
	assert.Equal(t, "a walk:? b walk:? h", shape(s.Timeline))
	assert.Equal(t, "10:00", s.Timeline[0].Visit.Departure.String())
	assert.True(t, s.Timeline[4].Visit.Overnight)

	s = mustReduce(t, s, DayChanged{Day: 2, Start: ClockPtr(8 * 60)})
	assert.Equal(t, "h walk:? c", shape(s.Timeline))
	assert.True(t, s.Timeline[0].Visit.CarryOver)
	assert.Equal(t, "08:00", s.Timeline[2].Visit.Arrival.String())
}

func TestReduce_DayChangedRejectsUnscheduledDay(t *testing.T) {
	s := State{Pool: testPool()}
	next, err := Reduce(s, DayChanged{Day: 0})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, s.Day, next.Day)
}

func TestReduce_SpotsChangedAppendsAndDrops(t *testing.T) {
	s := mustReduce(t, State{Pool: testPool()}, DayChanged{Day: 1})

	pool := testPool()
	pool[1].Status = models.StatusCandidate
	pool = append(pool, spot("d", 1, 0, "Tower"))

	s = mustReduce(t, s, SpotsChanged{Pool: pool})
	assert.Equal(t, "a walk:? h walk:? d", shape(s.Timeline))
}

func TestReduce_SegmentEdited(t *testing.T) {
	s := mustReduce(t, State{Pool: testPool()}, DayChanged{Day: 1, Start: ClockPtr(9 * 60)})

	mode := ModeTrain
	dur := MinutesOf(25)
	s = mustReduce(t, s, SegmentEdited{Index: 1, Edit: SegmentEdit{Mode: &mode, Duration: &dur}})
	assert.Equal(t, "a train:25 b walk:? h", shape(s.Timeline))
	assert.Equal(t, "10:25", s.Timeline[2].Visit.Arrival.String())

	stay := MinutesOf(15)
	s = mustReduce(t, s, SegmentEdited{Index: 0, Edit: SegmentEdit{Stay: &stay}})
	assert.Equal(t, "09:15", s.Timeline[0].Visit.Departure.String())

	_, err := Reduce(s, SegmentEdited{Index: 1, Edit: SegmentEdit{Stay: &stay}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	next, err := Reduce(s, SegmentEdited{Index: 99, Edit: SegmentEdit{Stay: &stay}})
	assert.ErrorIs(t, err, apperr.ErrInvalidMove)
	assert.Equal(t, shape(s.Timeline), shape(next.Timeline))
}

func TestReduce_DragCompleted(t *testing.T) {
	s := mustReduce(t, State{Pool: testPool()}, DayChanged{Day: 1})
	s = mustReduce(t, s, DragCompleted{From: 0, To: 4})
	assert.Equal(t, "b walk:? h walk:? a", shape(s.Timeline))

	_, err := Reduce(s, DragCompleted{From: 1, To: 0})
	assert.ErrorIs(t, err, apperr.ErrInvalidMove)
}

func TestReduce_CarryOverStaysFirst(t *testing.T) {
	pool := append(testPool(), spot("e", 2, 2, "Bridge"))
	s := mustReduce(t, State{Pool: pool}, DayChanged{Day: 2})

	_, err := Reduce(s, DragCompleted{From: 0, To: 4})
	assert.ErrorIs(t, err, apperr.ErrInvalidMove)

	s = mustReduce(t, s, DragCompleted{From: 4, To: 0})
	assert.Equal(t, "h walk:? e walk:? c", shape(s.Timeline))
}

func TestReduce_ExcludeAndInclude(t *testing.T) {
	s := mustReduce(t, State{Pool: testPool()}, DayChanged{Day: 1})

	s = mustReduce(t, s, SpotExcluded{SpotID: "a"})
	assert.Equal(t, "b walk:? h", shape(s.Timeline))
	assert.Equal(t, []string{"a"}, s.Excluded)
	assert.Equal(t, []string{"a"}, spotIDs(Unused(s.Partition(), s.Timeline)))

	s = mustReduce(t, s, SpotIncluded{SpotID: "a"})
	assert.Equal(t, "b walk:? h walk:? a", shape(s.Timeline))
	assert.Empty(t, s.Excluded)
}

func TestReduce_TimelineReplaced(t *testing.T) {
	s := mustReduce(t, State{Pool: testPool()}, DayChanged{Day: 1})
	repl := Timeline{NewVisit("h"), leg(ModeCar, 12), NewVisit("a"), NewVisit("zz")}

	s = mustReduce(t, s, TimelineReplaced{Timeline: repl, Excluded: []string{"b"}})
	assert.Equal(t, "h car:12 a", shape(s.Timeline))
	assert.Equal(t, []string{"b"}, s.Excluded)
}
