// Package neighborhood maps coordinates to named administrative zones loaded
// from a boundary shapefile. Zones are immutable after load, so lookups need
// no locking.
package neighborhood

import (
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/hazard-engine/internal/model"
)

// Zone is one named boundary polygon set.
type Zone struct {
	Name     string
	Polygons []*geom.Polygon
	Bounds   model.BBox
}

// Contains reports whether the point falls inside any of the zone's rings.
// The bounding box rejects most candidates before the ring test runs.
func (z *Zone) Contains(lat, lng float64) bool {
	if !z.Bounds.Contains(lat, lng) {
		return false
	}
	p := geom.Coord{lng, lat}
	for _, poly := range z.Polygons {
		if poly.NumLinearRings() == 0 {
			continue
		}
		if xy.IsPointInRing(geom.XY, p, poly.LinearRing(0).FlatCoords()) {
			return true
		}
	}
	return false
}

// Zones is the loaded zone set.
type Zones struct {
	zones []*Zone
}

// NewZones wraps a zone list. An empty set is valid: Locate simply never
// matches and callers fall back to unlabeled aggregation.
func NewZones(zones []*Zone) *Zones {
	return &Zones{zones: zones}
}

// All returns the zones in load order.
func (zs *Zones) All() []*Zone {
	if zs == nil {
		return nil
	}
	return zs.zones
}

// Len returns the zone count.
func (zs *Zones) Len() int {
	if zs == nil {
		return 0
	}
	return len(zs.zones)
}

// Locate returns the name of the first zone containing the point.
func (zs *Zones) Locate(lat, lng float64) (string, bool) {
	if zs == nil {
		return "", false
	}
	for _, z := range zs.zones {
		if z.Contains(lat, lng) {
			return z.Name, true
		}
	}
	return "", false
}
