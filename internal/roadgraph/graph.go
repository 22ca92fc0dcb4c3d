// Package roadgraph holds the in-memory road network used for route
// planning. A Snapshot is immutable once built; reloads swap a whole new
// snapshot atomically so in-flight searches never observe a half-updated
// graph.
package roadgraph

import (
	"sync/atomic"

	"github.com/sells-group/hazard-engine/internal/geo"
	"github.com/sells-group/hazard-engine/internal/model"
)

// snapCellDeg sizes the nearest-node grid (~500m of latitude).
const snapCellDeg = 0.0045

// Node is an intersection or shape point in the road network.
type Node struct {
	ID  int64
	Lat float64
	Lng float64
}

// Edge is a directed road segment. LengthM is the base cost in meters;
// profile weighting and hazard penalties are applied transiently by the
// planner, never stored here.
type Edge struct {
	From     int64
	To       int64
	LengthM  float64
	Geometry []model.LatLng // from-node to to-node, inclusive
}

type cellKey struct {
	ix int
	iy int
}

// Snapshot is an immutable view of the road network.
type Snapshot struct {
	nodes    map[int64]Node
	out      map[int64][]Edge
	snapGrid map[cellKey][]int64
	numEdges int
}

// NewSnapshot builds a snapshot from nodes and edges. When bidirectional is
// set, a reverse edge is added for every input edge. Edges referencing
// unknown nodes are dropped. Edge geometry defaults to the straight segment
// between endpoints, and zero lengths are computed from the geometry.
func NewSnapshot(nodes []Node, edges []Edge, bidirectional bool) *Snapshot {
	s := &Snapshot{
		nodes:    make(map[int64]Node, len(nodes)),
		out:      make(map[int64][]Edge),
		snapGrid: make(map[cellKey][]int64),
	}
	for _, n := range nodes {
		s.nodes[n.ID] = n
		k := keyFor(n.Lat, n.Lng)
		s.snapGrid[k] = append(s.snapGrid[k], n.ID)
	}

	for _, e := range edges {
		from, okFrom := s.nodes[e.From]
		to, okTo := s.nodes[e.To]
		if !okFrom || !okTo {
			continue
		}
		if len(e.Geometry) < 2 {
			e.Geometry = []model.LatLng{
				{Lat: from.Lat, Lng: from.Lng},
				{Lat: to.Lat, Lng: to.Lng},
			}
		}
		if e.LengthM <= 0 {
			e.LengthM = geo.PolylineLengthM(e.Geometry)
		}
		s.addEdge(e)
		if bidirectional {
			s.addEdge(reverse(e))
		}
	}
	return s
}

func (s *Snapshot) addEdge(e Edge) {
	s.out[e.From] = append(s.out[e.From], e)
	s.numEdges++
}

func reverse(e Edge) Edge {
	rev := Edge{From: e.To, To: e.From, LengthM: e.LengthM}
	rev.Geometry = make([]model.LatLng, len(e.Geometry))
	for i, p := range e.Geometry {
		rev.Geometry[len(e.Geometry)-1-i] = p
	}
	return rev
}

func keyFor(lat, lng float64) cellKey {
	ix := int(lng / snapCellDeg)
	if lng < 0 {
		ix--
	}
	iy := int(lat / snapCellDeg)
	if lat < 0 {
		iy--
	}
	return cellKey{ix: ix, iy: iy}
}

// Node returns the node with the given id.
func (s *Snapshot) Node(id int64) (Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// OutEdges returns the outgoing edges of a node. The returned slice is
// shared and must not be mutated.
func (s *Snapshot) OutEdges(id int64) []Edge {
	return s.out[id]
}

// NumNodes returns the node count.
func (s *Snapshot) NumNodes() int {
	return len(s.nodes)
}

// NumEdges returns the directed edge count.
func (s *Snapshot) NumEdges() int {
	return s.numEdges
}

// NearestNode snaps a coordinate to the closest node within maxDistM.
// Returns model.ErrNoRoutableNode when nothing is in range.
func (s *Snapshot) NearestNode(lat, lng, maxDistM float64) (Node, error) {
	b := geo.ExpandBBox(lat, lng, maxDistM)
	minKey := keyFor(b.MinLat, b.MinLng)
	maxKey := keyFor(b.MaxLat, b.MaxLng)

	best := Node{}
	bestDist := maxDistM + 1
	found := false
	for ix := minKey.ix; ix <= maxKey.ix; ix++ {
		for iy := minKey.iy; iy <= maxKey.iy; iy++ {
			for _, id := range s.snapGrid[cellKey{ix: ix, iy: iy}] {
				n := s.nodes[id]
				d := geo.HaversineM(lat, lng, n.Lat, n.Lng)
				if d <= maxDistM && d < bestDist {
					best = n
					bestDist = d
					found = true
				}
			}
		}
	}
	if !found {
		return Node{}, model.ErrNoRoutableNode
	}
	return best, nil
}

// Graph holds the current snapshot behind an atomic pointer.
type Graph struct {
	snap atomic.Pointer[Snapshot]
}

// NewGraph creates a Graph with an initial snapshot.
func NewGraph(s *Snapshot) *Graph {
	g := &Graph{}
	g.snap.Store(s)
	return g
}

// Snapshot returns the current immutable snapshot.
func (g *Graph) Snapshot() *Snapshot {
	return g.snap.Load()
}

// Swap replaces the snapshot. In-flight searches keep using the snapshot
// they started with.
func (g *Graph) Swap(s *Snapshot) {
	g.snap.Store(s)
}
