// Package hazard maintains the live set of routing hazards projected from
// high-risk issues. The registry replaces the original deployment's bare
// shared blocked-edge set with explicit locking: a reader sees the hazard
// set before or after any single write, never mid-write.
package hazard

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/hazard-engine/internal/geo"
	"github.com/sells-group/hazard-engine/internal/model"
)

// cellSizeDeg matches the geoindex grid so proximity scans stay cheap.
const cellSizeDeg = 0.0045

// Config controls hazard projection.
type Config struct {
	// BlockingLevel is the minimum assessed level that produces a hazard.
	BlockingLevel model.RiskLevel
	// Expiry bounds how long an unverified report biases routing.
	Expiry time.Duration
}

// DefaultConfig mirrors the engine's starting configuration: issues at or
// above high become hazards and expire after 30 days.
func DefaultConfig() Config {
	return Config{
		BlockingLevel: model.RiskLevelHigh,
		Expiry:        30 * 24 * time.Hour,
	}
}

type cellKey struct {
	ix int
	iy int
}

// Registry is the concurrent-safe hazard set.
type Registry struct {
	cfg   Config
	mu    sync.RWMutex
	cells map[cellKey]map[string]*model.Hazard
	byID  map[string]*model.Hazard
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:   cfg,
		cells: make(map[cellKey]map[string]*model.Hazard),
		byID:  make(map[string]*model.Hazard),
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

// Upsert reconciles the registry with a fresh assessment. An issue at or
// above the blocking level and not closed yields a hazard; anything else
// removes a previous hazard for the same issue. Returns the hazard when one
// is live after the call.
func (r *Registry) Upsert(issue *model.Issue, a *model.Assessment) *model.Hazard {
	if issue == nil || a == nil {
		return nil
	}

	qualifies := issue.Open() && a.Level.AtLeast(r.cfg.BlockingLevel)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !qualifies {
		if old, ok := r.byID[issue.ID]; ok {
			r.removeLocked(old)
			zap.L().Debug("hazard: removed",
				zap.String("issue_id", issue.ID),
				zap.String("level", string(a.Level)),
			)
		}
		return nil
	}

	now := a.AssessedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	h := &model.Hazard{
		ID:        issue.ID,
		Lat:       issue.Lat,
		Lng:       issue.Lng,
		RadiusM:   a.ImpactRadiusM,
		Weight:    a.Score,
		Level:     a.Level,
		CreatedAt: now,
		ExpiresAt: now.Add(r.cfg.Expiry),
	}

	if old, ok := r.byID[issue.ID]; ok {
		// Keep the original creation time across recomputes.
		h.CreatedAt = old.CreatedAt
		r.removeLocked(old)
	}

	k := keyFor(h.Lat, h.Lng)
	cell, ok := r.cells[k]
	if !ok {
		cell = make(map[string]*model.Hazard)
		r.cells[k] = cell
	}
	cell[h.ID] = h
	r.byID[h.ID] = h
	return h
}

// Remove deletes the hazard for an issue, if any.
func (r *Registry) Remove(issueID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.byID[issueID]; ok {
		r.removeLocked(h)
	}
}

func (r *Registry) removeLocked(h *model.Hazard) {
	k := keyFor(h.Lat, h.Lng)
	if cell, ok := r.cells[k]; ok {
		delete(cell, h.ID)
		if len(cell) == 0 {
			delete(r.cells, k)
		}
	}
	delete(r.byID, h.ID)
}

// ExpireStale removes hazards past their expiry and returns how many were
// dropped.
func (r *Registry) ExpireStale(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []*model.Hazard
	for _, h := range r.byID {
		if h.Expired(now) {
			stale = append(stale, h)
		}
	}
	for _, h := range stale {
		r.removeLocked(h)
	}
	if len(stale) > 0 {
		zap.L().Info("hazard: expired stale hazards", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Near returns copies of all hazards within radiusM of the point, nearest
// first. Copies keep callers from observing later registry writes.
func (r *Registry) Near(lat, lng, radiusM float64) []model.Hazard {
	b := geo.ExpandBBox(lat, lng, radiusM)
	minKey := keyFor(b.MinLat, b.MinLng)
	maxKey := keyFor(b.MaxLat, b.MaxLng)

	r.mu.RLock()
	defer r.mu.RUnlock()

	type hit struct {
		h model.Hazard
		d float64
	}
	var hits []hit
	for ix := minKey.ix; ix <= maxKey.ix; ix++ {
		for iy := minKey.iy; iy <= maxKey.iy; iy++ {
			for _, h := range r.cells[cellKey{ix: ix, iy: iy}] {
				d := geo.HaversineM(lat, lng, h.Lat, h.Lng)
				if d <= radiusM {
					hits = append(hits, hit{h: *h, d: d})
				}
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].d < hits[j].d })
	out := make([]model.Hazard, len(hits))
	for i, h := range hits {
		out[i] = h.h
	}
	return out
}

// InBBox returns copies of all hazards inside the box.
func (r *Registry) InBBox(b model.BBox) []model.Hazard {
	minKey := keyFor(b.MinLat, b.MinLng)
	maxKey := keyFor(b.MaxLat, b.MaxLng)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Hazard
	for ix := minKey.ix; ix <= maxKey.ix; ix++ {
		for iy := minKey.iy; iy <= maxKey.iy; iy++ {
			for _, h := range r.cells[cellKey{ix: ix, iy: iy}] {
				if b.Contains(h.Lat, h.Lng) {
					out = append(out, *h)
				}
			}
		}
	}
	return out
}

// Count returns the number of live hazards.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
