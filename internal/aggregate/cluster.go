package aggregate

import (
	"fmt"
	"math"
	"sort"

	"github.com/sells-group/hazard-engine/internal/model"
)

// baseCellDeg is the cluster cell size at MinZoom; each zoom level halves it.
const baseCellDeg = 0.02

// cellSizeForZoom returns the cluster grid resolution for a zoom level,
// clamped to the configured range.
func (a *Aggregator) cellSizeForZoom(zoom int) (int, float64) {
	if zoom < a.cfg.MinZoom {
		zoom = a.cfg.MinZoom
	}
	if zoom > a.cfg.MaxZoom {
		zoom = a.cfg.MaxZoom
	}
	return zoom, baseCellDeg / math.Pow(2, float64(zoom-a.cfg.MinZoom))
}

// Clusters buckets open issues into a fixed grid at the given zoom. Cell
// identity is the floor-division key, so the same snapshot always produces
// the same cells regardless of input order.
func (a *Aggregator) Clusters(scored []ScoredIssue, zoom int, bounds model.BBox) []model.ClusterCell {
	zoom, cellDeg := a.cellSizeForZoom(zoom)

	type acc struct {
		ix, iy   int
		sumLat   float64
		sumLng   float64
		sumScore float64
		maxScore float64
		ids      []string
	}
	cells := make(map[string]*acc)

	for _, s := range open(scored) {
		if !bounds.Contains(s.Issue.Lat, s.Issue.Lng) {
			continue
		}
		ix := floorDiv(s.Issue.Lng, cellDeg)
		iy := floorDiv(s.Issue.Lat, cellDeg)
		key := fmt.Sprintf("%d/%d/%d", zoom, ix, iy)

		c, ok := cells[key]
		if !ok {
			c = &acc{ix: ix, iy: iy}
			cells[key] = c
		}
		c.sumLat += s.Issue.Lat
		c.sumLng += s.Issue.Lng
		c.sumScore += s.Assessment.Score
		c.maxScore = math.Max(c.maxScore, s.Assessment.Score)
		c.ids = append(c.ids, s.Issue.ID)
	}

	out := make([]model.ClusterCell, 0, len(cells))
	for key, c := range cells {
		n := float64(len(c.ids))
		avg := c.sumScore / n
		score := regionScore(c.maxScore, avg)
		sort.Strings(c.ids)

		out = append(out, model.ClusterCell{
			Key:  key,
			Zoom: zoom,
			Bounds: model.BBox{
				MinLat: float64(c.iy) * cellDeg,
				MaxLat: float64(c.iy+1) * cellDeg,
				MinLng: float64(c.ix) * cellDeg,
				MaxLng: float64(c.ix+1) * cellDeg,
			},
			Centroid: model.LatLng{Lat: c.sumLat / n, Lng: c.sumLng / n},
			Count:    len(c.ids),
			AvgScore: avg,
			MaxScore: c.maxScore,
			Score:    score,
			Level:    a.levelFor(score),
			IssueIDs: c.ids,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func floorDiv(v, size float64) int {
	return int(math.Floor(v / size))
}
