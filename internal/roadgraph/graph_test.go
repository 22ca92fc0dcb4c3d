package roadgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hazard-engine/internal/model"
)

func gridNodes() []Node {
	// 2x2 grid ~500m apart.
	return []Node{
		{ID: 1, Lat: 40.700, Lng: -74.000},
		{ID: 2, Lat: 40.700, Lng: -73.995},
		{ID: 3, Lat: 40.705, Lng: -74.000},
		{ID: 4, Lat: 40.705, Lng: -73.995},
	}
}

func gridEdges() []Edge {
	return []Edge{
		{From: 1, To: 2},
		{From: 1, To: 3},
		{From: 2, To: 4},
		{From: 3, To: 4},
	}
}

func TestNewSnapshot_Bidirectional(t *testing.T) {
	t.Parallel()

	s := NewSnapshot(gridNodes(), gridEdges(), true)
	assert.Equal(t, 4, s.NumNodes())
	assert.Equal(t, 8, s.NumEdges())

	// Reverse edge exists and its geometry is reversed.
	var found bool
	for _, e := range s.OutEdges(2) {
		if e.To == 1 {
			found = true
			require.Len(t, e.Geometry, 2)
			assert.Equal(t, -73.995, e.Geometry[0].Lng)
			assert.Equal(t, -74.000, e.Geometry[1].Lng)
		}
	}
	assert.True(t, found, "expected reverse edge 2->1")
}

func TestNewSnapshot_ComputesLengthAndDropsDangling(t *testing.T) {
	t.Parallel()

	edges := append(gridEdges(), Edge{From: 1, To: 99})
	s := NewSnapshot(gridNodes(), edges, false)
	assert.Equal(t, 4, s.NumEdges()) // dangling edge dropped

	for _, e := range s.OutEdges(1) {
		assert.Greater(t, e.LengthM, 0.0)
		assert.Len(t, e.Geometry, 2)
	}
}

func TestSnapshot_NearestNode(t *testing.T) {
	t.Parallel()

	s := NewSnapshot(gridNodes(), gridEdges(), true)

	n, err := s.NearestNode(40.7001, -74.0001, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n.ID)

	// Too far from any node.
	_, err = s.NearestNode(40.900, -74.000, 500)
	assert.ErrorIs(t, err, model.ErrNoRoutableNode)
}

func TestGraph_AtomicSwap(t *testing.T) {
	t.Parallel()

	first := NewSnapshot(gridNodes(), gridEdges(), true)
	g := NewGraph(first)

	held := g.Snapshot()
	assert.Same(t, first, held)

	second := NewSnapshot(gridNodes()[:2], nil, true)
	g.Swap(second)

	// New callers see the new snapshot, the held reference is unchanged.
	assert.Same(t, second, g.Snapshot())
	assert.Equal(t, 4, held.NumNodes())
}

func TestLoadCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	nodesPath := filepath.Join(dir, "nodes.csv")
	edgesPath := filepath.Join(dir, "edges.csv")

	require.NoError(t, os.WriteFile(nodesPath, []byte(
		"id,lat,lng\n1,40.700,-74.000\n2,40.700,-73.995\n3,40.705,-74.000\n"), 0o644))
	require.NoError(t, os.WriteFile(edgesPath, []byte(
		"from,to,length_m,geometry\n1,2,,\n2,3,700,-73.995 40.700;-74.000 40.705\n"), 0o644))

	s, err := LoadCSV(nodesPath, edgesPath)
	require.NoError(t, err)
	assert.Equal(t, 3, s.NumNodes())
	assert.Equal(t, 4, s.NumEdges()) // 2 input edges, bidirectional

	edges := s.OutEdges(2)
	require.NotEmpty(t, edges)
	for _, e := range edges {
		if e.To == 3 {
			assert.Equal(t, 700.0, e.LengthM)
			assert.Len(t, e.Geometry, 2)
		}
	}
}

func TestLoadCSV_BadFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	nodesPath := filepath.Join(dir, "nodes.csv")
	require.NoError(t, os.WriteFile(nodesPath, []byte("id,lat,lng\nx,40.0,-74.0\n"), 0o644))

	_, err := LoadCSV(nodesPath, filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)

	_, err = loadNodes(nodesPath)
	assert.Error(t, err)
}
