// Package engine wires the hazard pipeline together: persistence, the
// spatial index, risk scoring, hazard projection, aggregates, and route
// planning sit behind one facade so transports stay thin.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hazard-engine/internal/aggregate"
	"github.com/sells-group/hazard-engine/internal/geoindex"
	"github.com/sells-group/hazard-engine/internal/hazard"
	"github.com/sells-group/hazard-engine/internal/model"
	"github.com/sells-group/hazard-engine/internal/neighborhood"
	"github.com/sells-group/hazard-engine/internal/planner"
	"github.com/sells-group/hazard-engine/internal/risk"
	"github.com/sells-group/hazard-engine/internal/roadgraph"
	"github.com/sells-group/hazard-engine/internal/store"
	"github.com/sells-group/hazard-engine/internal/vision"
)

// Config holds engine-level settings.
type Config struct {
	// Bounds is the service area; reports outside it are rejected.
	Bounds model.BBox
	// BatchConcurrency bounds parallel scoring during batch assessment.
	BatchConcurrency int
}

// Engine is the facade over the hazard pipeline. The store is the source of
// truth; everything else is an in-memory projection rebuilt at startup.
type Engine struct {
	cfg      Config
	store    store.Store
	scorer   *risk.Scorer
	index    *geoindex.Index
	hazards  *hazard.Registry
	agg      *aggregate.Aggregator
	cache    *aggregate.Cache
	graph    *roadgraph.Graph
	planner  *planner.Planner
	zones    *neighborhood.Zones
	vision   *vision.Client
	log      *zap.Logger

	// Map values are immutable once published; mutations replace the entry
	// so readers outside the lock never observe a partial write.
	mu          sync.RWMutex
	issues      map[string]*model.Issue
	assessments map[string]*model.Assessment
}

// New creates an Engine. zones and vision may be nil; graph may hold an
// empty snapshot until one is loaded.
func New(cfg Config, st store.Store, scorer *risk.Scorer, hazards *hazard.Registry,
	agg *aggregate.Aggregator, cache *aggregate.Cache, graph *roadgraph.Graph,
	pl *planner.Planner, zones *neighborhood.Zones, vc *vision.Client) *Engine {

	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 8
	}
	return &Engine{
		cfg:         cfg,
		store:       st,
		scorer:      scorer,
		index:       geoindex.New(cfg.Bounds),
		hazards:     hazards,
		agg:         agg,
		cache:       cache,
		graph:       graph,
		planner:     pl,
		zones:       zones,
		vision:      vc,
		log:         zap.L().With(zap.String("component", "engine")),
		issues:      make(map[string]*model.Issue),
		assessments: make(map[string]*model.Assessment),
	}
}

// Load rebuilds the in-memory projections from the store.
func (e *Engine) Load(ctx context.Context) error {
	issues, err := e.store.ListIssues(ctx, store.IssueFilter{})
	if err != nil {
		return eris.Wrap(err, "engine: load issues")
	}
	assessments, err := e.store.ListAssessments(ctx)
	if err != nil {
		return eris.Wrap(err, "engine: load assessments")
	}

	byID := make(map[string]*model.Assessment, len(assessments))
	for i := range assessments {
		byID[assessments[i].IssueID] = &assessments[i]
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	indexed := 0
	for i := range issues {
		issue := &issues[i]
		e.issues[issue.ID] = issue
		if a, ok := byID[issue.ID]; ok {
			e.assessments[issue.ID] = a
			e.hazards.Upsert(issue, a)
		}
		if issue.Open() {
			if err := e.index.Insert(issue.ID, issue.Lat, issue.Lng); err == nil {
				indexed++
			}
		}
	}

	e.log.Info("state loaded",
		zap.Int("issues", len(issues)),
		zap.Int("assessments", len(assessments)),
		zap.Int("indexed", indexed),
		zap.Int("hazards", e.hazards.Count()),
	)
	return nil
}

// SubmitIssue validates, enriches, persists, and assesses a new report.
func (e *Engine) SubmitIssue(ctx context.Context, issue *model.Issue) (*model.Assessment, error) {
	if issue == nil {
		return nil, eris.Wrap(model.ErrUnscoredIssue, "engine: nil issue")
	}
	if !e.cfg.Bounds.Contains(issue.Lat, issue.Lng) {
		return nil, eris.Wrapf(model.ErrInvalidCoordinate,
			"engine: (%f, %f) outside service bounds", issue.Lat, issue.Lng)
	}

	e.enrich(ctx, issue)

	if err := e.store.CreateIssue(ctx, issue); err != nil {
		return nil, err
	}

	// Map entries are treated as immutable: publish a private copy so later
	// caller mutations cannot race with concurrent readers.
	stored := *issue
	e.mu.Lock()
	e.issues[stored.ID] = &stored
	e.mu.Unlock()

	if stored.Open() {
		if err := e.index.Insert(stored.ID, stored.Lat, stored.Lng); err != nil {
			return nil, err
		}
	}

	a, err := e.assess(ctx, &stored)
	if err != nil {
		return nil, err
	}
	e.cache.Bump()

	e.log.Info("issue submitted",
		zap.String("issue_id", issue.ID),
		zap.String("category", issue.Category),
		zap.Float64("score", a.Score),
		zap.String("level", string(a.Level)),
	)
	return a, nil
}

// enrich fills CV fields from the collaborator and the neighborhood label
// from zone boundaries. Both are best effort.
func (e *Engine) enrich(ctx context.Context, issue *model.Issue) {
	if issue.Neighborhood == "" {
		if name, ok := e.zones.Locate(issue.Lat, issue.Lng); ok {
			issue.Neighborhood = name
		}
	}

	if issue.Confidence != nil || !e.vision.Enabled() {
		return
	}
	res, err := e.vision.Analyze(ctx, vision.Request{
		IssueID:  issue.ID,
		Category: issue.Category,
		Lat:      issue.Lat,
		Lng:      issue.Lng,
	})
	if err != nil {
		e.log.Warn("vision analysis failed, scoring with fallback severity",
			zap.String("issue_id", issue.ID), zap.Error(err))
		return
	}
	issue.Confidence = &res.Confidence
	if issue.DepthCM == nil {
		issue.DepthCM = res.DepthCM
	}
	if issue.Category == "" || issue.Category == "unknown" {
		issue.Category = res.DefectClass
	}
}

// GetIssue returns an issue with its latest assessment, if any.
func (e *Engine) GetIssue(id string) (*model.Issue, *model.Assessment, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	issue, ok := e.issues[id]
	if !ok {
		return nil, nil, eris.Wrapf(model.ErrIssueNotFound, "id %s", id)
	}
	i := *issue
	var a *model.Assessment
	if cur, ok := e.assessments[id]; ok {
		copied := *cur
		a = &copied
	}
	return &i, a, nil
}

// UpdateIssueStatus transitions an issue's lifecycle state. Closing an issue
// zeroes its risk and removes any hazard it projected.
func (e *Engine) UpdateIssueStatus(ctx context.Context, id string, status model.IssueStatus) (*model.Assessment, error) {
	e.mu.RLock()
	cur, ok := e.issues[id]
	e.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(model.ErrIssueNotFound, "id %s", id)
	}

	// Copy on write: concurrent assessments may still be reading the current
	// entry, so mutate and persist a copy, then swap it in.
	updated := *cur
	updated.Status = status

	if err := e.store.UpdateIssue(ctx, &updated); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.issues[id] = &updated
	e.mu.Unlock()

	if status == model.IssueStatusClosed {
		e.index.Remove(id)
	} else if !e.index.Contains(id) {
		if err := e.index.Insert(id, updated.Lat, updated.Lng); err != nil {
			return nil, err
		}
	}

	a, err := e.assess(ctx, &updated)
	if err != nil {
		return nil, err
	}
	e.cache.Bump()
	return a, nil
}

// RecomputeIssue re-runs assessment for one issue against current state.
func (e *Engine) RecomputeIssue(ctx context.Context, id string) (*model.Assessment, error) {
	e.mu.RLock()
	issue, ok := e.issues[id]
	e.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(model.ErrIssueNotFound, "id %s", id)
	}

	a, err := e.assess(ctx, issue)
	if err != nil {
		return nil, err
	}
	e.cache.Bump()
	return a, nil
}

// assess scores an issue, persists the assessment, and reconciles the hazard
// registry.
func (e *Engine) assess(ctx context.Context, issue *model.Issue) (*model.Assessment, error) {
	neighbors := e.openNeighbors(issue)

	a, err := e.scorer.Score(issue, neighbors, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveAssessment(ctx, a); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.assessments[issue.ID] = a
	e.mu.Unlock()

	e.hazards.Upsert(issue, a)
	return a, nil
}

// openNeighbors counts other open issues within the density radius.
func (e *Engine) openNeighbors(issue *model.Issue) int {
	hits := e.index.QueryRadius(issue.Lat, issue.Lng, e.scorer.DensityRadiusM())
	n := 0
	for _, h := range hits {
		if h.ID != issue.ID {
			n++
		}
	}
	return n
}

// BatchAssess recomputes many issues concurrently with bounded parallelism.
// Failures are collected per id and never abort the batch; issues that
// scored are always returned.
func (e *Engine) BatchAssess(ctx context.Context, ids []string) (map[string]*model.Assessment, map[string]error) {
	results := make([]*model.Assessment, len(ids))
	failures := make([]error, len(ids))

	g := &errgroup.Group{}
	g.SetLimit(e.cfg.BatchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			a, err := e.RecomputeIssue(ctx, id)
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = a
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*model.Assessment, len(ids))
	errs := make(map[string]error)
	for i, id := range ids {
		if failures[i] != nil {
			errs[id] = failures[i]
			continue
		}
		out[id] = results[i]
	}
	if len(errs) > 0 {
		e.log.Warn("batch assessment had failures",
			zap.Int("assessed", len(out)),
			zap.Int("failed", len(errs)),
		)
	}
	return out, errs
}

// snapshot copies the scored-issue view for aggregation.
func (e *Engine) snapshot() []aggregate.ScoredIssue {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]aggregate.ScoredIssue, 0, len(e.issues))
	for id, issue := range e.issues {
		a, ok := e.assessments[id]
		if !ok {
			continue
		}
		out = append(out, aggregate.ScoredIssue{Issue: *issue, Assessment: *a})
	}
	return out
}

// Nearby returns open issues within radiusM of a point, nearest first.
func (e *Engine) Nearby(lat, lng, radiusM float64, limit int) []model.IssueSummary {
	hits := e.index.QueryRadius(lat, lng, radiusM)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.IssueSummary, 0, len(hits))
	for _, h := range hits {
		issue, ok := e.issues[h.ID]
		if !ok {
			continue
		}
		s := model.IssueSummary{
			ID:            issue.ID,
			Lat:           issue.Lat,
			Lng:           issue.Lng,
			Category:      issue.Category,
			Status:        issue.Status,
			LocationLabel: issue.LocationLabel,
			DistanceM:     h.DistanceM,
		}
		if a, ok := e.assessments[h.ID]; ok {
			s.Level = a.Level
			s.Score = a.Score
		}
		out = append(out, s)
	}
	return out
}

// Clusters returns the zoom-grid aggregate view, served from cache when the
// underlying data has not changed.
func (e *Engine) Clusters(zoom int, bounds model.BBox) []model.ClusterCell {
	key := aggregate.Key("clusters", zoom, bounds.MinLat, bounds.MinLng, bounds.MaxLat, bounds.MaxLng)
	if v, ok := e.cache.Get(key); ok {
		return v.([]model.ClusterCell)
	}
	out := e.agg.Clusters(e.snapshot(), zoom, bounds)
	e.cache.Put(key, out)
	return out
}

// Heatmap returns weighted points for map rendering.
func (e *Engine) Heatmap(mode aggregate.HeatmapMode, daysBack int, bounds model.BBox) []model.HeatPoint {
	key := aggregate.Key("heatmap", string(mode), daysBack, bounds.MinLat, bounds.MinLng, bounds.MaxLat, bounds.MaxLng)
	if v, ok := e.cache.Get(key); ok {
		return v.([]model.HeatPoint)
	}
	out := e.agg.Heatmap(e.snapshot(), mode, daysBack, bounds, e.zones, time.Now().UTC())
	e.cache.Put(key, out)
	return out
}

// Neighborhoods returns the named-zone aggregate view.
func (e *Engine) Neighborhoods() []model.NeighborhoodZone {
	key := aggregate.Key("neighborhoods")
	if v, ok := e.cache.Get(key); ok {
		return v.([]model.NeighborhoodZone)
	}
	out := e.agg.Neighborhoods(e.snapshot(), e.zones)
	e.cache.Put(key, out)
	return out
}

// PredictiveAlerts returns degradation alerts for hot regions.
func (e *Engine) PredictiveAlerts() []aggregate.DegradationAlert {
	key := aggregate.Key("alerts")
	if v, ok := e.cache.Get(key); ok {
		return v.([]aggregate.DegradationAlert)
	}
	out := e.agg.PredictiveAlerts(e.snapshot(), e.zones, time.Now().UTC())
	e.cache.Put(key, out)
	return out
}

// PlanRoute plans a hazard-aware route.
func (e *Engine) PlanRoute(ctx context.Context, origin, dest model.LatLng, routeType model.RouteType, avoid []model.RiskLevel) (*model.Route, error) {
	return e.planner.Plan(ctx, origin, dest, routeType, avoid)
}

// SwapGraph replaces the road network snapshot.
func (e *Engine) SwapGraph(s *roadgraph.Snapshot) {
	e.graph.Swap(s)
	e.log.Info("road graph swapped",
		zap.Int("nodes", s.NumNodes()),
		zap.Int("edges", s.NumEdges()),
	)
}

// SweepHazards expires stale hazards; the server runs this on a ticker.
func (e *Engine) SweepHazards(now time.Time) int {
	n := e.hazards.ExpireStale(now)
	if n > 0 {
		e.cache.Bump()
	}
	return n
}

// Stats summarizes engine state for the health endpoint.
type Stats struct {
	Issues     int                  `json:"issues"`
	OpenIssues int                  `json:"open_issues"`
	Hazards    int                  `json:"hazards"`
	GraphNodes int                  `json:"graph_nodes"`
	GraphEdges int                  `json:"graph_edges"`
	Zones      int                  `json:"zones"`
	Cache      aggregate.CacheStats `json:"cache"`
}

// Stats returns a point-in-time view of engine state.
func (e *Engine) Stats() Stats {
	snap := e.graph.Snapshot()

	e.mu.RLock()
	issues := len(e.issues)
	e.mu.RUnlock()

	s := Stats{
		Issues:     issues,
		OpenIssues: e.index.Count(),
		Hazards:    e.hazards.Count(),
		Zones:      e.zones.Len(),
		Cache:      e.cache.Stats(),
	}
	if snap != nil {
		s.GraphNodes = snap.NumNodes()
		s.GraphEdges = snap.NumEdges()
	}
	return s
}
