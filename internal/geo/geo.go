// Package geo holds shared geographic math for the engine: great-circle
// distances, bounding-box expansion, and point-to-segment distances used by
// the planner's hazard buffers. All inputs are WGS84 degrees.
package geo

import (
	"math"

	"github.com/sells-group/hazard-engine/internal/model"
)

// EarthRadiusM is the mean earth radius in meters.
const EarthRadiusM = 6371000.0

// metersPerDegreeLat is the approximate north-south extent of one degree.
const metersPerDegreeLat = 111000.0

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return EarthRadiusM * 2 * math.Asin(math.Min(1, math.Sqrt(a)))
}

// ExpandBBox returns a box centered on (lat, lng) that covers radiusM in
// every direction. The longitude delta widens with latitude.
func ExpandBBox(lat, lng, radiusM float64) model.BBox {
	latDelta := radiusM / metersPerDegreeLat
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 0.01 {
		cos = 0.01
	}
	lngDelta := radiusM / (metersPerDegreeLat * cos)
	return model.BBox{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLng: lng - lngDelta,
		MaxLng: lng + lngDelta,
	}
}

// PadBBox grows a box by marginM on every side.
func PadBBox(b model.BBox, marginM float64) model.BBox {
	latDelta := marginM / metersPerDegreeLat
	midLat := (b.MinLat + b.MaxLat) / 2
	cos := math.Cos(midLat * math.Pi / 180)
	if cos < 0.01 {
		cos = 0.01
	}
	lngDelta := marginM / (metersPerDegreeLat * cos)
	return model.BBox{
		MinLat: b.MinLat - latDelta,
		MaxLat: b.MaxLat + latDelta,
		MinLng: b.MinLng - lngDelta,
		MaxLng: b.MaxLng + lngDelta,
	}
}

// PolylineLengthM sums the haversine distances along a polyline.
func PolylineLengthM(points []model.LatLng) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += HaversineM(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng)
	}
	return total
}

// PointSegmentDistanceM returns the distance in meters from point p to the
// segment a-b. It projects in a local equirectangular plane, which is
// accurate at the sub-kilometer scale of hazard buffers.
func PointSegmentDistanceM(p, a, b model.LatLng) float64 {
	midLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	cos := math.Cos(midLat)

	ax := a.Lng * cos
	ay := a.Lat
	bx := b.Lng * cos
	by := b.Lat
	px := p.Lng * cos
	py := p.Lat

	dx := bx - ax
	dy := by - ay
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}

	cx := ax + t*dx
	cy := ay + t*dy
	return HaversineM(py, px/cos, cy, cx/cos)
}
