package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hazard-engine/internal/aggregate"
	"github.com/sells-group/hazard-engine/internal/hazard"
	"github.com/sells-group/hazard-engine/internal/model"
	"github.com/sells-group/hazard-engine/internal/planner"
	"github.com/sells-group/hazard-engine/internal/risk"
	"github.com/sells-group/hazard-engine/internal/roadgraph"
	"github.com/sells-group/hazard-engine/internal/store"
)

var testBounds = model.BBox{MinLat: 40.4, MinLng: -74.3, MaxLat: 41.0, MaxLng: -73.6}

func testGraph() *roadgraph.Graph {
	nodes := []roadgraph.Node{
		{ID: 1, Lat: 40.700, Lng: -74.000},
		{ID: 2, Lat: 40.700, Lng: -73.995},
		{ID: 3, Lat: 40.700, Lng: -73.990},
	}
	edges := []roadgraph.Edge{
		{From: 1, To: 2},
		{From: 2, To: 3},
	}
	return roadgraph.NewGraph(roadgraph.NewSnapshot(nodes, edges, true))
}

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	scorer, err := risk.NewScorer(risk.DefaultConfig())
	require.NoError(t, err)

	registry := hazard.NewRegistry(hazard.DefaultConfig())
	agg := aggregate.New(aggregate.DefaultConfig(), scorer.LevelFor)
	cache := aggregate.NewCache(64, time.Minute)
	graph := testGraph()
	pl := planner.New(graph, registry, planner.DefaultConfig())

	e := New(Config{Bounds: testBounds}, st, scorer, registry, agg, cache, graph, pl, nil, nil)
	require.NoError(t, e.Load(context.Background()))
	return e, st
}

func testIssue(category string, lat, lng float64) *model.Issue {
	conf := 0.92
	depth := 28.0
	return &model.Issue{
		Lat:        lat,
		Lng:        lng,
		Category:   category,
		Confidence: &conf,
		DepthCM:    &depth,
		Status:     model.IssueStatusOpen,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestEngine_SubmitIssue(t *testing.T) {
	t.Parallel()
	e, st := newTestEngine(t)
	ctx := context.Background()

	issue := testIssue("sinkhole", 40.7128, -74.0060)
	a, err := e.SubmitIssue(ctx, issue)
	require.NoError(t, err)
	require.NotEmpty(t, issue.ID)
	assert.Equal(t, issue.ID, a.IssueID)
	assert.Greater(t, a.Score, 0.0)
	assert.True(t, a.Level.AtLeast(model.RiskLevelHigh))

	// A high-risk open issue projects a routing hazard.
	assert.Equal(t, 1, e.Stats().Hazards)

	// Persisted, not just cached in memory.
	stored, err := st.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "sinkhole", stored.Category)

	got, gotA, err := e.GetIssue(issue.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.ID, got.ID)
	require.NotNil(t, gotA)
	assert.Equal(t, a.Score, gotA.Score)
}

func TestEngine_SubmitIssueOutOfBounds(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)

	issue := testIssue("pothole", 51.5, -0.12)
	_, err := e.SubmitIssue(context.Background(), issue)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidCoordinate)
}

func TestEngine_CloseIssueClearsRiskAndHazard(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	ctx := context.Background()

	issue := testIssue("sinkhole", 40.7128, -74.0060)
	_, err := e.SubmitIssue(ctx, issue)
	require.NoError(t, err)
	require.Equal(t, 1, e.Stats().Hazards)

	a, err := e.UpdateIssueStatus(ctx, issue.ID, model.IssueStatusClosed)
	require.NoError(t, err)
	assert.Zero(t, a.Score)
	assert.Equal(t, model.RiskLevelLow, a.Level)
	assert.Zero(t, e.Stats().Hazards)
	assert.Zero(t, e.Stats().OpenIssues)
}

func TestEngine_DensityRaisesNeighborScores(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	ctx := context.Background()

	first := testIssue("pothole", 40.7128, -74.0060)
	solo, err := e.SubmitIssue(ctx, first)
	require.NoError(t, err)

	// Pile nearby reports into the same density radius.
	for i := 0; i < 4; i++ {
		_, err := e.SubmitIssue(ctx, testIssue("pothole", 40.7129, -74.0061))
		require.NoError(t, err)
	}

	rescored, err := e.RecomputeIssue(ctx, first.ID)
	require.NoError(t, err)
	assert.Greater(t, rescored.Score, solo.Score)
	assert.Greater(t, rescored.Factors.Density, 0.0)
}

func TestEngine_ConcurrentStatusAndRecompute(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	ctx := context.Background()

	issue := testIssue("sinkhole", 40.7128, -74.0060)
	_, err := e.SubmitIssue(ctx, issue)
	require.NoError(t, err)

	// Status flips and reassessments hammer the same issue; under -race this
	// verifies the published entries are never mutated in place.
	var g errgroup.Group
	for i := 0; i < 50; i++ {
		status := model.IssueStatusOpen
		if i%2 == 0 {
			status = model.IssueStatusInProgress
		}
		g.Go(func() error {
			_, err := e.UpdateIssueStatus(ctx, issue.ID, status)
			return err
		})
		g.Go(func() error {
			_, err := e.RecomputeIssue(ctx, issue.ID)
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, a, err := e.GetIssue(issue.ID)
	require.NoError(t, err)
	assert.True(t, got.Open())
	require.NotNil(t, a)
	assert.Greater(t, a.Score, 0.0)
}

func TestEngine_RecomputeUnknownIssue(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)

	_, err := e.RecomputeIssue(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrIssueNotFound)
}

func TestEngine_BatchAssess(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		issue := testIssue("pothole", 40.71+float64(i)*0.01, -74.00)
		_, err := e.SubmitIssue(ctx, issue)
		require.NoError(t, err)
		ids = append(ids, issue.ID)
	}

	out, errs := e.BatchAssess(ctx, ids)
	require.Empty(t, errs)
	require.Len(t, out, len(ids))
	for _, id := range ids {
		require.NotNil(t, out[id])
		assert.Equal(t, id, out[id].IssueID)
	}

	// A missing id fails alone, the rest still score.
	out, errs = e.BatchAssess(ctx, []string{ids[0], "missing"})
	assert.Len(t, out, 1)
	require.Contains(t, errs, "missing")
	assert.ErrorIs(t, errs["missing"], model.ErrIssueNotFound)
}

func TestEngine_Nearby(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	ctx := context.Background()

	near := testIssue("pothole", 40.7128, -74.0060)
	far := testIssue("crack", 40.7500, -73.9500)
	_, err := e.SubmitIssue(ctx, near)
	require.NoError(t, err)
	_, err = e.SubmitIssue(ctx, far)
	require.NoError(t, err)

	got := e.Nearby(40.7128, -74.0060, 500, 10)
	require.Len(t, got, 1)
	assert.Equal(t, near.ID, got[0].ID)
	assert.Less(t, got[0].DistanceM, 500.0)
	assert.NotEmpty(t, got[0].Level)
}

func TestEngine_ClustersCacheInvalidation(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.SubmitIssue(ctx, testIssue("pothole", 40.7128, -74.0060))
	require.NoError(t, err)

	cells := e.Clusters(12, testBounds)
	require.Len(t, cells, 1)
	assert.Equal(t, 1, cells[0].Count)

	// Cached copy on the second read.
	again := e.Clusters(12, testBounds)
	assert.Equal(t, cells, again)
	assert.Positive(t, e.Stats().Cache.Hits)

	// A mutation bumps the version; the next read sees the new issue.
	_, err = e.SubmitIssue(ctx, testIssue("sinkhole", 40.7129, -74.0061))
	require.NoError(t, err)

	cells = e.Clusters(12, testBounds)
	require.Len(t, cells, 1)
	assert.Equal(t, 2, cells[0].Count)
}

func TestEngine_HeatmapAndAlerts(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := e.SubmitIssue(ctx, testIssue("sinkhole", 40.7128, -74.0060))
		require.NoError(t, err)
	}

	points := e.Heatmap(aggregate.HeatmapIndividual, 0, testBounds)
	assert.Len(t, points, 6)

	// Six fresh high-score reports in one cell trips the degradation alert.
	alerts := e.PredictiveAlerts()
	require.NotEmpty(t, alerts)
	assert.Equal(t, 6, alerts[0].IssueCount)
	assert.GreaterOrEqual(t, alerts[0].AvgScore, 0.55)
}

func TestEngine_PlanRoute(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)

	route, err := e.PlanRoute(context.Background(),
		model.LatLng{Lat: 40.700, Lng: -74.000},
		model.LatLng{Lat: 40.700, Lng: -73.990},
		model.RouteTypeWalking, nil)
	require.NoError(t, err)
	assert.Greater(t, route.DistanceM, 0.0)
	assert.False(t, route.Unsafe)
}

func TestEngine_LoadRebuildsState(t *testing.T) {
	t.Parallel()
	e, st := newTestEngine(t)
	ctx := context.Background()

	open := testIssue("sinkhole", 40.7128, -74.0060)
	closed := testIssue("pothole", 40.7200, -74.0100)
	_, err := e.SubmitIssue(ctx, open)
	require.NoError(t, err)
	_, err = e.SubmitIssue(ctx, closed)
	require.NoError(t, err)
	_, err = e.UpdateIssueStatus(ctx, closed.ID, model.IssueStatusClosed)
	require.NoError(t, err)

	scorer, err := risk.NewScorer(risk.DefaultConfig())
	require.NoError(t, err)
	registry := hazard.NewRegistry(hazard.DefaultConfig())
	graph := testGraph()
	fresh := New(Config{Bounds: testBounds}, st, scorer, registry,
		aggregate.New(aggregate.DefaultConfig(), scorer.LevelFor),
		aggregate.NewCache(64, time.Minute), graph,
		planner.New(graph, registry, planner.DefaultConfig()), nil, nil)
	require.NoError(t, fresh.Load(ctx))

	stats := fresh.Stats()
	assert.Equal(t, 2, stats.Issues)
	assert.Equal(t, 1, stats.OpenIssues)
	assert.Equal(t, 1, stats.Hazards)

	_, a, err := fresh.GetIssue(closed.ID)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Zero(t, a.Score)
}

func TestEngine_SweepHazards(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.SubmitIssue(ctx, testIssue("sinkhole", 40.7128, -74.0060))
	require.NoError(t, err)
	require.Equal(t, 1, e.Stats().Hazards)

	assert.Zero(t, e.SweepHazards(time.Now().UTC()))
	assert.Equal(t, 1, e.SweepHazards(time.Now().UTC().Add(90*24*time.Hour)))
	assert.Zero(t, e.Stats().Hazards)
}
