package neighborhood

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-engine/internal/model"
)

// LoadShapefile reads zone polygons from a boundary shapefile, taking the
// zone name from the given attribute field. Non-polygon records and records
// with a blank name are skipped.
func LoadShapefile(path, nameField string) (*Zones, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "neighborhood: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := fieldIndex(reader, nameField)
	if nameIdx < 0 {
		return nil, eris.Errorf("neighborhood: field %q not found in %s", nameField, path)
	}

	log := zap.L().With(zap.String("component", "neighborhood.loader"))

	var zones []*Zone
	skipped := 0
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}

		name := strings.TrimSpace(reader.Attribute(nameIdx))
		if name == "" {
			skipped++
			continue
		}

		z := zoneFromPolygon(name, poly)
		if z == nil {
			skipped++
			continue
		}
		zones = append(zones, z)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "neighborhood: read shapefile %s", path)
	}

	log.Info("zones loaded",
		zap.String("path", path),
		zap.Int("zones", len(zones)),
		zap.Int("skipped", skipped),
	)
	return NewZones(zones), nil
}

// zoneFromPolygon converts a shapefile polygon into a Zone. Each part
// becomes its own single-ring polygon; hole semantics are not modeled, which
// matches how the source boundary files are drawn.
func zoneFromPolygon(name string, p *shp.Polygon) *Zone {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	z := &Zone{
		Name: name,
		Bounds: model.BBox{
			MinLat: p.Points[0].Y,
			MaxLat: p.Points[0].Y,
			MinLng: p.Points[0].X,
			MaxLng: p.Points[0].X,
		},
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 3 {
			continue
		}

		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			pt := p.Points[j]
			coords = append(coords, geom.Coord{pt.X, pt.Y})
			z.Bounds.MinLat = min(z.Bounds.MinLat, pt.Y)
			z.Bounds.MaxLat = max(z.Bounds.MaxLat, pt.Y)
			z.Bounds.MinLng = min(z.Bounds.MinLng, pt.X)
			z.Bounds.MaxLng = max(z.Bounds.MaxLng, pt.X)
		}
		// Rings must close for the containment test.
		if !coords[0].Equal(geom.XY, coords[len(coords)-1]) {
			coords = append(coords, coords[0])
		}

		ring := geom.NewPolygon(geom.XY)
		if _, err := ring.SetCoords([][]geom.Coord{coords}); err != nil {
			continue
		}
		z.Polygons = append(z.Polygons, ring)
	}

	if len(z.Polygons) == 0 {
		return nil
	}
	return z
}

// fieldIndex returns the index of a named field in the shapefile, or -1.
// DBF field names are NUL-padded.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}
