// Package spotpool holds a room's spots in memory and merges remote
// updates field by field, so a collaborator's push does not clobber a
// local edit that is still in flight.
package spotpool

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/starford/itinera/internal/apperr"
	"github.com/starford/itinera/internal/models"
)

// Change is a spot update pushed from the remote store.
type Change struct {
	Spot models.Spot
	// Fields limits the update to these fields. Nil means all of them.
	Fields  []models.SpotField
	At      time.Time
	Deleted bool
}

// Pool is the local copy of a room's spots. It is not safe for concurrent
// use; the owning session serialises access.
type Pool struct {
	spots map[string]models.Spot
	local map[string]map[models.SpotField]time.Time
	now   func() time.Time
}

// New returns a pool seeded with spots.
func New(spots []models.Spot) *Pool {
	p := &Pool{
		spots: make(map[string]models.Spot, len(spots)),
		local: make(map[string]map[models.SpotField]time.Time),
		now:   time.Now,
	}
	for _, s := range spots {
		p.spots[s.ID] = s
	}
	return p
}

// Spots returns every spot ordered by day, order and id.
func (p *Pool) Spots() []models.Spot {
	out := make([]models.Spot, 0, len(p.spots))
	for _, s := range p.spots {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b models.Spot) int {
		return cmp.Or(cmp.Compare(a.Day, b.Day), cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Get returns a spot by id.
func (p *Pool) Get(id string) (models.Spot, bool) {
	s, ok := p.spots[id]
	return s, ok
}

// EditLocal copies fields from edit into the pooled spot with the same id
// and remembers when each field was touched.
func (p *Pool) EditLocal(edit models.Spot, fields []models.SpotField) (models.Spot, error) {
	cur, ok := p.spots[edit.ID]
	if !ok {
		return models.Spot{}, fmt.Errorf("spotpool: spot %s: %w", edit.ID, apperr.ErrNotFound)
	}
	at := p.now()
	stamps := p.local[edit.ID]
	if stamps == nil {
		stamps = make(map[models.SpotField]time.Time)
		p.local[edit.ID] = stamps
	}
	for _, f := range fields {
		if !f.Valid() {
			return models.Spot{}, fmt.Errorf("spotpool: unknown field %q: %w", f, apperr.ErrValidation)
		}
	}
	for _, f := range fields {
		models.CopyField(&cur, edit, f)
		stamps[f] = at
	}
	cur.UpdatedAt = at
	p.spots[cur.ID] = cur
	return cur, nil
}

// ApplyRemoteSpotChange merges c into the pool and reports whether
// anything changed. A field edited locally after c.At keeps its local value.
func (p *Pool) ApplyRemoteSpotChange(c Change) bool {
	id := c.Spot.ID
	cur, exists := p.spots[id]

	if c.Deleted {
		if !exists {
			return false
		}
		delete(p.spots, id)
		delete(p.local, id)
		return true
	}
	if !exists {
		p.spots[id] = c.Spot
		return true
	}

	fields := c.Fields
	if fields == nil {
		fields = models.AllSpotFields
		cur.Description = c.Spot.Description
		cur.Coordinates = c.Spot.Coordinates
		cur.Votes = c.Spot.Votes
	}
	stamps := p.local[id]
	for _, f := range fields {
		if at, ok := stamps[f]; ok && at.After(c.At) {
			continue
		}
		models.CopyField(&cur, c.Spot, f)
	}
	if c.At.After(cur.UpdatedAt) {
		cur.UpdatedAt = c.At
	}

	changed := !spotEqual(cur, p.spots[id])
	p.spots[id] = cur
	return changed
}

// Refresh replaces the pool with a fresh remote listing. Spots missing from
// spots are dropped; the rest merge as remote changes stamped with their
// UpdatedAt.
func (p *Pool) Refresh(spots []models.Spot) bool {
	changed := false
	seen := make(map[string]struct{}, len(spots))
	for _, s := range spots {
		seen[s.ID] = struct{}{}
		if p.ApplyRemoteSpotChange(Change{Spot: s, At: s.UpdatedAt}) {
			changed = true
		}
	}
	for id := range p.spots {
		if _, ok := seen[id]; !ok {
			delete(p.spots, id)
			delete(p.local, id)
			changed = true
		}
	}
	return changed
}

func spotEqual(a, b models.Spot) bool {
	eqInt := func(x, y *int) bool { return (x == nil && y == nil) || (x != nil && y != nil && *x == *y) }
	eqStr := func(x, y *string) bool { return (x == nil && y == nil) || (x != nil && y != nil && *x == *y) }
	eqF := func(x, y *float64) bool { return (x == nil && y == nil) || (x != nil && y != nil && *x == *y) }
	return a.Name == b.Name && a.Day == b.Day && a.Order == b.Order && eqInt(a.StayTime, b.StayTime) &&
		a.Status == b.Status && a.IsHotel == b.IsHotel && a.ReservationStatus == b.ReservationStatus &&
		eqStr(a.ReservedBy, b.ReservedBy) && eqF(a.Price, b.Price) && eqStr(a.Comment, b.Comment) &&
		eqStr(a.Link, b.Link) && eqStr(a.ImageURL, b.ImageURL) && a.Description == b.Description &&
		a.Coordinates == b.Coordinates && a.Votes == b.Votes
}
