package aggregate

import (
	"time"

	"github.com/sells-group/hazard-engine/internal/model"
	"github.com/sells-group/hazard-engine/internal/neighborhood"
)

// HeatmapMode selects the heatmap aggregation granularity.
type HeatmapMode string

const (
	// HeatmapIndividual emits one weighted point per open issue.
	HeatmapIndividual HeatmapMode = "individual"
	// HeatmapNeighborhood emits one weighted point per zone centroid.
	HeatmapNeighborhood HeatmapMode = "neighborhood"
)

// Heatmap produces weighted points for map rendering. daysBack of zero means
// no recency filter. Neighborhood mode needs zones; without any it falls
// back to individual points rather than returning nothing.
func (a *Aggregator) Heatmap(scored []ScoredIssue, mode HeatmapMode, daysBack int, bounds model.BBox, zones *neighborhood.Zones, now time.Time) []model.HeatPoint {
	filtered := a.heatmapInput(scored, daysBack, bounds, now)

	if mode == HeatmapNeighborhood && zones.Len() > 0 {
		return a.neighborhoodHeat(filtered, zones)
	}
	return a.individualHeat(filtered)
}

func (a *Aggregator) heatmapInput(scored []ScoredIssue, daysBack int, bounds model.BBox, now time.Time) []ScoredIssue {
	cutoff := time.Time{}
	if daysBack > 0 {
		cutoff = now.Add(-time.Duration(daysBack) * 24 * time.Hour)
	}

	var out []ScoredIssue
	for _, s := range open(scored) {
		if !bounds.Contains(s.Issue.Lat, s.Issue.Lng) {
			continue
		}
		if !cutoff.IsZero() && s.Issue.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (a *Aggregator) individualHeat(scored []ScoredIssue) []model.HeatPoint {
	out := make([]model.HeatPoint, 0, len(scored))
	for _, s := range scored {
		out = append(out, model.HeatPoint{
			Lat:    s.Issue.Lat,
			Lng:    s.Issue.Lng,
			Weight: s.Assessment.Score,
			ID:     s.Issue.ID,
			Level:  s.Assessment.Level,
		})
	}
	return out
}

// neighborhoodHeat collapses each zone's issues into a single point at their
// centroid, weighted by the zone's region score.
func (a *Aggregator) neighborhoodHeat(scored []ScoredIssue, zones *neighborhood.Zones) []model.HeatPoint {
	type acc struct {
		sumLat   float64
		sumLng   float64
		sumScore float64
		maxScore float64
		count    int
	}
	byName := make(map[string]*acc)
	var names []string

	for _, s := range scored {
		name, ok := zones.Locate(s.Issue.Lat, s.Issue.Lng)
		if !ok {
			continue
		}
		c, seen := byName[name]
		if !seen {
			c = &acc{}
			byName[name] = c
			names = append(names, name)
		}
		c.sumLat += s.Issue.Lat
		c.sumLng += s.Issue.Lng
		c.sumScore += s.Assessment.Score
		if s.Assessment.Score > c.maxScore {
			c.maxScore = s.Assessment.Score
		}
		c.count++
	}

	out := make([]model.HeatPoint, 0, len(names))
	for _, name := range names {
		c := byName[name]
		n := float64(c.count)
		score := regionScore(c.maxScore, c.sumScore/n)
		out = append(out, model.HeatPoint{
			Lat:    c.sumLat / n,
			Lng:    c.sumLng / n,
			Weight: score,
			ID:     name,
			Level:  a.levelFor(score),
		})
	}
	return out
}
