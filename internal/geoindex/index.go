// Package geoindex provides an in-memory uniform-grid spatial index over
// point records. Cells are keyed by coarse lat/lng so bbox and radius queries
// touch only the covered cells, keeping lookups sub-linear at the tens of
// thousands of points the engine is sized for. All writes serialize on a
// single RWMutex; this is the documented scaling limit before moving to
// per-cell locking.
package geoindex

import (
	"sort"
	"sync"

	"github.com/sells-group/hazard-engine/internal/geo"
	"github.com/sells-group/hazard-engine/internal/model"
)

// cellSizeDeg is roughly 500m of latitude per grid cell.
const cellSizeDeg = 0.0045

type cellKey struct {
	ix int
	iy int
}

type entry struct {
	id  string
	lat float64
	lng float64
}

// Index is a concurrent-safe grid index over identified points.
type Index struct {
	mu     sync.RWMutex
	cells  map[cellKey]map[string]*entry
	byID   map[string]*entry
	bounds model.BBox
}

// New creates an Index limited to the given service bounds. Queries outside
// the bounds return empty results rather than errors.
func New(bounds model.BBox) *Index {
	return &Index{
		cells:  make(map[cellKey]map[string]*entry),
		byID:   make(map[string]*entry),
		bounds: bounds,
	}
}

func keyFor(lat, lng float64) cellKey {
	ix := int(lng / cellSizeDeg)
	if lng < 0 {
		ix--
	}
	iy := int(lat / cellSizeDeg)
	if lat < 0 {
		iy--
	}
	return cellKey{ix: ix, iy: iy}
}

// Insert adds or replaces a point. Returns model.ErrInvalidCoordinate when
// the point is outside the service bounds.
func (x *Index) Insert(id string, lat, lng float64) error {
	if !x.bounds.Contains(lat, lng) {
		return model.ErrInvalidCoordinate
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if old, ok := x.byID[id]; ok {
		x.removeLocked(old)
	}
	e := &entry{id: id, lat: lat, lng: lng}
	k := keyFor(lat, lng)
	cell, ok := x.cells[k]
	if !ok {
		cell = make(map[string]*entry)
		x.cells[k] = cell
	}
	cell[id] = e
	x.byID[id] = e
	return nil
}

// Update moves an existing point. Inserting under a new id and updating are
// equivalent; Update exists for call-site clarity.
func (x *Index) Update(id string, lat, lng float64) error {
	return x.Insert(id, lat, lng)
}

// Remove deletes a point. Removing an unknown id is a no-op.
func (x *Index) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if e, ok := x.byID[id]; ok {
		x.removeLocked(e)
	}
}

func (x *Index) removeLocked(e *entry) {
	k := keyFor(e.lat, e.lng)
	if cell, ok := x.cells[k]; ok {
		delete(cell, e.id)
		if len(cell) == 0 {
			delete(x.cells, k)
		}
	}
	delete(x.byID, e.id)
}

// Count returns the number of indexed points.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}

// Contains reports whether an id is indexed.
func (x *Index) Contains(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.byID[id]
	return ok
}

// QueryBBox returns the ids of all points inside the box.
func (x *Index) QueryBBox(b model.BBox) []string {
	if !b.Intersects(x.bounds) {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	minKey := keyFor(b.MinLat, b.MinLng)
	maxKey := keyFor(b.MaxLat, b.MaxLng)

	var ids []string
	for ix := minKey.ix; ix <= maxKey.ix; ix++ {
		for iy := minKey.iy; iy <= maxKey.iy; iy++ {
			for _, e := range x.cells[cellKey{ix: ix, iy: iy}] {
				if b.Contains(e.lat, e.lng) {
					ids = append(ids, e.id)
				}
			}
		}
	}
	return ids
}

// Neighbor is a point with its exact distance from a query center.
type Neighbor struct {
	ID        string
	Lat       float64
	Lng       float64
	DistanceM float64
}

// QueryRadius returns all points within radiusM of the center, nearest
// first. The grid prefilters by bbox; candidates are confirmed with exact
// haversine distance.
func (x *Index) QueryRadius(lat, lng, radiusM float64) []Neighbor {
	b := geo.ExpandBBox(lat, lng, radiusM)
	if !b.Intersects(x.bounds) {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	minKey := keyFor(b.MinLat, b.MinLng)
	maxKey := keyFor(b.MaxLat, b.MaxLng)

	var hits []Neighbor
	for ix := minKey.ix; ix <= maxKey.ix; ix++ {
		for iy := minKey.iy; iy <= maxKey.iy; iy++ {
			for _, e := range x.cells[cellKey{ix: ix, iy: iy}] {
				d := geo.HaversineM(lat, lng, e.lat, e.lng)
				if d <= radiusM {
					hits = append(hits, Neighbor{ID: e.id, Lat: e.lat, Lng: e.lng, DistanceM: d})
				}
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].DistanceM < hits[j].DistanceM })
	return hits
}
