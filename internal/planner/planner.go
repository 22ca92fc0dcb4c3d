// Package planner computes hazard-aware routes over the road graph. Each
// request is a stateless computation against one graph snapshot and one
// hazard query, so concurrent requests never interfere.
package planner

import (
	"container/heap"
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-engine/internal/geo"
	"github.com/sells-group/hazard-engine/internal/hazard"
	"github.com/sells-group/hazard-engine/internal/model"
	"github.com/sells-group/hazard-engine/internal/roadgraph"
)

// Config controls snapping, hazard treatment, and search budgets.
type Config struct {
	// MaxSnapM bounds origin/destination snapping to the graph.
	MaxSnapM float64
	// HazardBufferM is the fixed buffer around edge geometry inside which a
	// hazard affects the edge.
	HazardBufferM float64
	// BlockAtLevel is the single boundary between hard blocks and soft
	// penalties: an avoided level at or above it removes the edge, below it
	// multiplies the cost.
	BlockAtLevel model.RiskLevel
	// PenaltyFactors are the soft multipliers per risk level.
	PenaltyFactors map[model.RiskLevel]float64
	// SpeedsKMH are the travel-profile speeds used for durations.
	SpeedsKMH map[model.RouteType]float64
	// MaxNodes bounds the number of expanded nodes per search.
	MaxNodes int
	// Timeout bounds the wall-clock time per request.
	Timeout time.Duration
}

// DefaultConfig returns the starting planner configuration. Penalty factors
// and profile speeds carry over from the original deployment.
func DefaultConfig() Config {
	return Config{
		MaxSnapM:      500,
		HazardBufferM: 75,
		BlockAtLevel:  model.RiskLevelCritical,
		PenaltyFactors: map[model.RiskLevel]float64{
			model.RiskLevelLow:      1.1,
			model.RiskLevelMedium:   1.5,
			model.RiskLevelHigh:     2.0,
			model.RiskLevelCritical: 3.0,
		},
		SpeedsKMH: map[model.RouteType]float64{
			model.RouteTypeWalking:   5,
			model.RouteTypeCycling:   15,
			model.RouteTypeDriving:   25,
			model.RouteTypeEmergency: 40,
		},
		MaxNodes: 200000,
		Timeout:  5 * time.Second,
	}
}

// corridorPadM pads the origin-destination bbox when collecting the hazard
// set for a request, so detours around the direct line stay covered.
const corridorPadM = 2000

// Planner plans routes over a road graph with hazard avoidance.
type Planner struct {
	graph    *roadgraph.Graph
	registry *hazard.Registry
	cfg      Config
}

// New creates a Planner.
func New(graph *roadgraph.Graph, registry *hazard.Registry, cfg Config) *Planner {
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = DefaultConfig().MaxNodes
	}
	if len(cfg.PenaltyFactors) == 0 {
		cfg.PenaltyFactors = DefaultConfig().PenaltyFactors
	}
	if len(cfg.SpeedsKMH) == 0 {
		cfg.SpeedsKMH = DefaultConfig().SpeedsKMH
	}
	return &Planner{graph: graph, registry: registry, cfg: cfg}
}

// Plan computes a least-cost route from origin to destination avoiding the
// given risk levels. When strict avoidance disconnects the endpoints the
// search runs once more with hazards ignored and the result is flagged
// Unsafe instead of failing, since a blocked-but-reachable destination is
// the common case.
func (p *Planner) Plan(ctx context.Context, origin, dest model.LatLng, routeType model.RouteType, avoid []model.RiskLevel) (*model.Route, error) {
	snap := p.graph.Snapshot()
	if snap == nil || snap.NumNodes() == 0 {
		return nil, eris.Wrap(model.ErrNoRoutableNode, "planner: empty road graph")
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	orig, err := snap.NearestNode(origin.Lat, origin.Lng, p.cfg.MaxSnapM)
	if err != nil {
		return nil, eris.Wrap(err, "planner: snap origin")
	}
	dst, err := snap.NearestNode(dest.Lat, dest.Lng, p.cfg.MaxSnapM)
	if err != nil {
		return nil, eris.Wrap(err, "planner: snap destination")
	}

	hazards := p.requestHazards(origin, dest, avoid)

	route, err := p.search(ctx, snap, orig, dst, hazards)
	if err != nil {
		if !eris.Is(err, model.ErrNoPath) {
			return nil, err
		}
		// Distinguish "disconnected" from "disconnected under avoidance":
		// retry once with hazards ignored and flag the result.
		route, err = p.search(ctx, snap, orig, dst, nil)
		if err != nil {
			return nil, err
		}
		route.Unsafe = true
		zap.L().Warn("planner: no path under avoidance, returning unsafe route",
			zap.Int64("origin_node", orig.ID),
			zap.Int64("dest_node", dst.ID),
			zap.Int("hazards", len(hazards)),
		)
	}

	p.finishRoute(route, origin, dest, routeType, hazards)
	return route, nil
}

// requestHazards collects the avoided-level hazards relevant to a request in
// one registry read, giving the whole search a consistent hazard snapshot.
func (p *Planner) requestHazards(origin, dest model.LatLng, avoid []model.RiskLevel) []model.Hazard {
	if p.registry == nil || len(avoid) == 0 {
		return nil
	}
	avoided := make(map[model.RiskLevel]bool, len(avoid))
	for _, l := range avoid {
		avoided[l] = true
	}

	box := model.BBox{
		MinLat: math.Min(origin.Lat, dest.Lat),
		MaxLat: math.Max(origin.Lat, dest.Lat),
		MinLng: math.Min(origin.Lng, dest.Lng),
		MaxLng: math.Max(origin.Lng, dest.Lng),
	}
	box = geo.PadBBox(box, corridorPadM+p.cfg.HazardBufferM)

	var out []model.Hazard
	for _, h := range p.registry.InBBox(box) {
		if avoided[h.Level] {
			out = append(out, h)
		}
	}
	return out
}

// edgePenalty returns the multiplicative penalty for an edge, or +Inf when
// a hard-blocking hazard sits within the buffer of its geometry.
func (p *Planner) edgePenalty(e roadgraph.Edge, hazards []model.Hazard) float64 {
	penalty := 1.0
	for _, h := range hazards {
		if !p.hazardTouchesEdge(h, e) {
			continue
		}
		if h.Level.AtLeast(p.cfg.BlockAtLevel) {
			return math.Inf(1)
		}
		if f, ok := p.cfg.PenaltyFactors[h.Level]; ok && f > penalty {
			penalty = f
		}
	}
	return penalty
}

func (p *Planner) hazardTouchesEdge(h model.Hazard, e roadgraph.Edge) bool {
	reach := p.cfg.HazardBufferM + h.RadiusM
	pt := model.LatLng{Lat: h.Lat, Lng: h.Lng}
	for i := 1; i < len(e.Geometry); i++ {
		if geo.PointSegmentDistanceM(pt, e.Geometry[i-1], e.Geometry[i]) <= reach {
			return true
		}
	}
	return false
}

type searchItem struct {
	node     int64
	priority float64
	index    int
}

type searchQueue []*searchItem

func (q searchQueue) Len() int            { return len(q) }
func (q searchQueue) Less(i, j int) bool  { return q[i].priority < q[j].priority }
func (q searchQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *searchQueue) Push(x any)         { it := x.(*searchItem); it.index = len(*q); *q = append(*q, it) }
func (q *searchQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

type step struct {
	node int64
	edge roadgraph.Edge
}

// search runs A* with a haversine heuristic. Effective edge cost is
// base length times the hazard penalty; blocked edges are skipped.
func (p *Planner) search(ctx context.Context, snap *roadgraph.Snapshot, orig, dst roadgraph.Node, hazards []model.Hazard) (*model.Route, error) {
	dist := map[int64]float64{orig.ID: 0}
	prev := map[int64]step{}
	done := map[int64]bool{}

	q := &searchQueue{}
	heap.Init(q)
	heap.Push(q, &searchItem{node: orig.ID, priority: geo.HaversineM(orig.Lat, orig.Lng, dst.Lat, dst.Lng)})

	expanded := 0
	for q.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(model.ErrPlanningTimeout, "planner: deadline exceeded")
		}

		it := heap.Pop(q).(*searchItem)
		if done[it.node] {
			continue
		}
		done[it.node] = true
		expanded++
		if expanded > p.cfg.MaxNodes {
			return nil, eris.Wrapf(model.ErrPlanningTimeout, "planner: node budget %d exceeded", p.cfg.MaxNodes)
		}

		if it.node == dst.ID {
			return p.reconstruct(orig.ID, dst.ID, prev, hazards, expanded), nil
		}

		for _, e := range snap.OutEdges(it.node) {
			if done[e.To] {
				continue
			}
			penalty := p.edgePenalty(e, hazards)
			if math.IsInf(penalty, 1) {
				continue // hard block
			}
			next := dist[it.node] + e.LengthM*penalty
			if old, seen := dist[e.To]; seen && next >= old {
				continue
			}
			dist[e.To] = next
			prev[e.To] = step{node: it.node, edge: e}
			to, _ := snap.Node(e.To)
			h := geo.HaversineM(to.Lat, to.Lng, dst.Lat, dst.Lng)
			heap.Push(q, &searchItem{node: e.To, priority: next + h})
		}
	}

	return nil, eris.Wrapf(model.ErrNoPath, "planner: nodes %d and %d not connected", orig.ID, dst.ID)
}

// reconstruct walks the predecessor chain back to the origin and stitches
// the edge geometries into one polyline.
func (p *Planner) reconstruct(origID, dstID int64, prev map[int64]step, hazards []model.Hazard, expanded int) *model.Route {
	var path []roadgraph.Edge
	for at := dstID; at != origID; {
		s := prev[at]
		path = append(path, s.edge)
		at = s.node
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	route := &model.Route{ExpandedNodes: expanded}
	var softExcess float64
	for _, e := range path {
		route.DistanceM += e.LengthM
		start := 0
		if len(route.Polyline) > 0 {
			start = 1 // skip the shared join point
		}
		route.Polyline = append(route.Polyline, e.Geometry[start:]...)

		pen := p.edgePenalty(e, hazards)
		if !math.IsInf(pen, 1) && pen > 1 {
			softExcess += (pen - 1) * e.LengthM
		}
	}

	// Safety degrades with the length-weighted share of penalized travel:
	// 1.0 for a clean route, approaching 0 as penalties dominate.
	if route.DistanceM > 0 {
		route.SafetyScore = 1 - softExcess/(softExcess+route.DistanceM)
	} else {
		route.SafetyScore = 1
	}
	return route
}

// finishRoute fills in the request-level fields: duration from the profile
// speed, detour factor against the direct line, and the hazards the route
// steered around.
func (p *Planner) finishRoute(route *model.Route, origin, dest model.LatLng, routeType model.RouteType, hazards []model.Hazard) {
	route.RouteType = routeType

	speed, ok := p.cfg.SpeedsKMH[routeType]
	if !ok || speed <= 0 {
		speed = p.cfg.SpeedsKMH[model.RouteTypeDriving]
	}
	if speed > 0 {
		route.DurationS = route.DistanceM / (speed * 1000 / 3600)
	}

	route.DirectDistanceM = geo.HaversineM(origin.Lat, origin.Lng, dest.Lat, dest.Lng)
	if route.DirectDistanceM > 0 {
		route.DetourFactor = route.DistanceM / route.DirectDistanceM
	}

	route.AvoidedHazards = p.avoidedHazards(route, origin, dest, hazards)
	route.HazardCount = len(route.AvoidedHazards)
	if route.Unsafe {
		route.SafetyScore = 0
	}
}

// avoidedHazards reports the hazards sitting on the direct corridor between
// the endpoints that the chosen polyline stays clear of.
func (p *Planner) avoidedHazards(route *model.Route, origin, dest model.LatLng, hazards []model.Hazard) []string {
	corridor := math.Max(3*p.cfg.HazardBufferM, 250)

	var ids []string
	for _, h := range hazards {
		pt := model.LatLng{Lat: h.Lat, Lng: h.Lng}
		if geo.PointSegmentDistanceM(pt, origin, dest) > corridor+h.RadiusM {
			continue
		}
		if p.routePassesHazard(route.Polyline, h) {
			continue // not avoided, the route goes through it
		}
		ids = append(ids, h.ID)
	}
	return ids
}

func (p *Planner) routePassesHazard(polyline []model.LatLng, h model.Hazard) bool {
	reach := p.cfg.HazardBufferM + h.RadiusM
	pt := model.LatLng{Lat: h.Lat, Lng: h.Lng}
	for i := 1; i < len(polyline); i++ {
		if geo.PointSegmentDistanceM(pt, polyline[i-1], polyline[i]) <= reach {
			return true
		}
	}
	return false
}
