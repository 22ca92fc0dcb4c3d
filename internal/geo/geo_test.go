package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/hazard-engine/internal/model"
)

func TestHaversineM(t *testing.T) {
	t.Parallel()

	// Boston Common to Downtown Crossing is roughly 450m.
	d := HaversineM(42.3551, -71.0657, 42.3555, -71.0603)
	assert.InDelta(t, 445, d, 60)

	// Zero distance.
	assert.Zero(t, HaversineM(42.36, -71.05, 42.36, -71.05))

	// One degree of latitude is ~111km.
	d = HaversineM(40.0, -74.0, 41.0, -74.0)
	assert.InDelta(t, 111195, d, 500)
}

func TestExpandBBox(t *testing.T) {
	t.Parallel()

	b := ExpandBBox(42.36, -71.05, 500)
	assert.True(t, b.Contains(42.36, -71.05))
	assert.Less(t, b.MinLat, 42.36)
	assert.Greater(t, b.MaxLat, 42.36)

	// The box must cover the requested radius: a point 400m north stays in.
	north := 42.36 + 400.0/111000.0
	assert.True(t, b.Contains(north, -71.05))

	// Longitude span is wider than latitude span away from the equator.
	assert.Greater(t, b.MaxLng-b.MinLng, b.MaxLat-b.MinLat)
}

func TestPolylineLengthM(t *testing.T) {
	t.Parallel()

	assert.Zero(t, PolylineLengthM(nil))
	assert.Zero(t, PolylineLengthM([]model.LatLng{{Lat: 42, Lng: -71}}))

	line := []model.LatLng{
		{Lat: 40.0, Lng: -74.0},
		{Lat: 40.5, Lng: -74.0},
		{Lat: 41.0, Lng: -74.0},
	}
	assert.InDelta(t, 111195, PolylineLengthM(line), 500)
}

func TestPointSegmentDistanceM(t *testing.T) {
	t.Parallel()

	a := model.LatLng{Lat: 42.0, Lng: -71.0}
	b := model.LatLng{Lat: 42.0, Lng: -70.9}

	// Point on the segment.
	on := model.LatLng{Lat: 42.0, Lng: -70.95}
	assert.InDelta(t, 0, PointSegmentDistanceM(on, a, b), 1)

	// Point ~1.1km north of the segment midpoint.
	off := model.LatLng{Lat: 42.01, Lng: -70.95}
	assert.InDelta(t, 1112, PointSegmentDistanceM(off, a, b), 50)

	// Point beyond the endpoint clamps to the endpoint distance.
	past := model.LatLng{Lat: 42.0, Lng: -70.8}
	assert.InDelta(t, HaversineM(42.0, -70.8, 42.0, -70.9), PointSegmentDistanceM(past, a, b), 30)
}
