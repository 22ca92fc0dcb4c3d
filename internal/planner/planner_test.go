package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hazard-engine/internal/geo"
	"github.com/sells-group/hazard-engine/internal/hazard"
	"github.com/sells-group/hazard-engine/internal/model"
	"github.com/sells-group/hazard-engine/internal/roadgraph"
)

// gridGraph builds a 3x2 block of streets around lower Manhattan:
//
//	4 --- 5 --- 6
//	|     |     |
//	1 --- 2 --- 3
//
// Horizontal neighbors are ~420m apart, vertical ~555m.
func gridGraph() *roadgraph.Graph {
	nodes := []roadgraph.Node{
		{ID: 1, Lat: 40.700, Lng: -74.000},
		{ID: 2, Lat: 40.700, Lng: -73.995},
		{ID: 3, Lat: 40.700, Lng: -73.990},
		{ID: 4, Lat: 40.705, Lng: -74.000},
		{ID: 5, Lat: 40.705, Lng: -73.995},
		{ID: 6, Lat: 40.705, Lng: -73.990},
	}
	edges := []roadgraph.Edge{
		{From: 1, To: 2}, {From: 2, To: 3},
		{From: 4, To: 5}, {From: 5, To: 6},
		{From: 1, To: 4}, {From: 2, To: 5}, {From: 3, To: 6},
	}
	return roadgraph.NewGraph(roadgraph.NewSnapshot(nodes, edges, true))
}

// lineGraph is the bottom row only: a single corridor with no detour.
func lineGraph() *roadgraph.Graph {
	nodes := []roadgraph.Node{
		{ID: 1, Lat: 40.700, Lng: -74.000},
		{ID: 2, Lat: 40.700, Lng: -73.995},
		{ID: 3, Lat: 40.700, Lng: -73.990},
	}
	edges := []roadgraph.Edge{{From: 1, To: 2}, {From: 2, To: 3}}
	return roadgraph.NewGraph(roadgraph.NewSnapshot(nodes, edges, true))
}

func registryWith(t *testing.T, level model.RiskLevel, lat, lng float64) *hazard.Registry {
	t.Helper()
	r := hazard.NewRegistry(hazard.Config{BlockingLevel: model.RiskLevelMedium, Expiry: time.Hour})
	h := r.Upsert(
		&model.Issue{ID: "hz-1", Lat: lat, Lng: lng, Category: "sinkhole", Status: model.IssueStatusOpen, CreatedAt: time.Now().UTC()},
		&model.Assessment{IssueID: "hz-1", Score: 0.9, Level: level, ImpactRadiusM: 50, AssessedAt: time.Now().UTC()},
	)
	require.NotNil(t, h)
	return r
}

var (
	origin = model.LatLng{Lat: 40.700, Lng: -74.000}
	dest   = model.LatLng{Lat: 40.700, Lng: -73.990}
)

func TestPlan_DetoursAroundCriticalHazard(t *testing.T) {
	t.Parallel()

	// Critical hazard on the middle of the bottom row.
	reg := registryWith(t, model.RiskLevelCritical, 40.700, -73.995)
	p := New(gridGraph(), reg, DefaultConfig())

	route, err := p.Plan(context.Background(), origin, dest, model.RouteTypeDriving,
		[]model.RiskLevel{model.RiskLevelCritical})
	require.NoError(t, err)

	assert.False(t, route.Unsafe)
	assert.Equal(t, 1.0, route.SafetyScore)
	assert.Contains(t, route.AvoidedHazards, "hz-1")
	assert.Equal(t, 1, route.HazardCount)
	assert.Greater(t, route.DetourFactor, 1.5)

	// The chosen polyline stays clear of the hazard buffer.
	for _, pt := range route.Polyline {
		d := geo.HaversineM(pt.Lat, pt.Lng, 40.700, -73.995)
		assert.Greater(t, d, DefaultConfig().HazardBufferM)
	}
}

func TestPlan_SoftPenaltyKeepsShortRoute(t *testing.T) {
	t.Parallel()

	// A medium hazard penalizes the direct row but does not block it, and
	// the 1.5x penalty is still cheaper than the full detour.
	reg := registryWith(t, model.RiskLevelMedium, 40.700, -73.995)
	p := New(gridGraph(), reg, DefaultConfig())

	route, err := p.Plan(context.Background(), origin, dest, model.RouteTypeDriving,
		[]model.RiskLevel{model.RiskLevelMedium})
	require.NoError(t, err)

	assert.False(t, route.Unsafe)
	assert.Less(t, route.SafetyScore, 1.0)
	assert.Greater(t, route.SafetyScore, 0.0)
	assert.Empty(t, route.AvoidedHazards)
	assert.Less(t, route.DetourFactor, 1.2)
}

func TestPlan_UnsafeFallbackWhenBlocked(t *testing.T) {
	t.Parallel()

	// Single corridor with a critical hazard in the middle: strict
	// avoidance disconnects the endpoints, so the route comes back unsafe.
	reg := registryWith(t, model.RiskLevelCritical, 40.700, -73.995)
	p := New(lineGraph(), reg, DefaultConfig())

	route, err := p.Plan(context.Background(), origin, dest, model.RouteTypeDriving,
		[]model.RiskLevel{model.RiskLevelCritical})
	require.NoError(t, err)

	assert.True(t, route.Unsafe)
	assert.Zero(t, route.SafetyScore)
	assert.Greater(t, route.DistanceM, 0.0)
}

func TestPlan_NoPath(t *testing.T) {
	t.Parallel()

	// Two disconnected islands.
	nodes := []roadgraph.Node{
		{ID: 1, Lat: 40.700, Lng: -74.000},
		{ID: 2, Lat: 40.700, Lng: -73.995},
		{ID: 3, Lat: 40.700, Lng: -73.990},
		{ID: 4, Lat: 40.700, Lng: -73.985},
	}
	edges := []roadgraph.Edge{{From: 1, To: 2}, {From: 3, To: 4}}
	g := roadgraph.NewGraph(roadgraph.NewSnapshot(nodes, edges, true))
	p := New(g, hazard.NewRegistry(hazard.DefaultConfig()), DefaultConfig())

	_, err := p.Plan(context.Background(), origin, model.LatLng{Lat: 40.700, Lng: -73.985},
		model.RouteTypeDriving, nil)
	assert.ErrorIs(t, err, model.ErrNoPath)
}

func TestPlan_NoRoutableNode(t *testing.T) {
	t.Parallel()

	p := New(gridGraph(), hazard.NewRegistry(hazard.DefaultConfig()), DefaultConfig())

	_, err := p.Plan(context.Background(), model.LatLng{Lat: 40.900, Lng: -74.000}, dest,
		model.RouteTypeDriving, nil)
	assert.ErrorIs(t, err, model.ErrNoRoutableNode)
}

func TestPlan_NodeBudgetExceeded(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxNodes = 1
	p := New(gridGraph(), hazard.NewRegistry(hazard.DefaultConfig()), cfg)

	_, err := p.Plan(context.Background(), origin, dest, model.RouteTypeDriving, nil)
	assert.ErrorIs(t, err, model.ErrPlanningTimeout)
}

func TestPlan_CancelledContext(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Timeout = 0 // rely on the caller's context
	p := New(gridGraph(), hazard.NewRegistry(hazard.DefaultConfig()), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Plan(ctx, origin, dest, model.RouteTypeDriving, nil)
	assert.ErrorIs(t, err, model.ErrPlanningTimeout)
}

func TestPlan_DurationTracksProfile(t *testing.T) {
	t.Parallel()

	p := New(gridGraph(), hazard.NewRegistry(hazard.DefaultConfig()), DefaultConfig())

	walk, err := p.Plan(context.Background(), origin, dest, model.RouteTypeWalking, nil)
	require.NoError(t, err)
	drive, err := p.Plan(context.Background(), origin, dest, model.RouteTypeDriving, nil)
	require.NoError(t, err)

	assert.Equal(t, walk.DistanceM, drive.DistanceM)
	assert.InDelta(t, walk.DistanceM/(5*1000.0/3600), walk.DurationS, 1e-6)
	assert.InDelta(t, drive.DistanceM/(25*1000.0/3600), drive.DurationS, 1e-6)
	assert.Equal(t, model.RouteTypeWalking, walk.RouteType)
}

func TestPlan_SameSnapPoint(t *testing.T) {
	t.Parallel()

	p := New(gridGraph(), hazard.NewRegistry(hazard.DefaultConfig()), DefaultConfig())

	// Both endpoints snap to node 1.
	route, err := p.Plan(context.Background(), origin,
		model.LatLng{Lat: 40.7001, Lng: -74.0001}, model.RouteTypeDriving, nil)
	require.NoError(t, err)
	assert.Zero(t, route.DistanceM)
	assert.Equal(t, 1.0, route.SafetyScore)
	assert.Empty(t, route.Polyline)
}
