package aggregate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sells-group/hazard-engine/internal/model"
	"github.com/sells-group/hazard-engine/internal/neighborhood"
)

// alertZoomOffset picks the grid resolution used when no zone boundaries are
// loaded: four levels below max keeps regions a few blocks wide.
const alertZoomOffset = 4

// DegradationAlert flags a region whose recent report velocity and average
// risk suggest accelerating surface degradation.
type DegradationAlert struct {
	Region      string          `json:"region"`
	Centroid    model.LatLng    `json:"centroid"`
	IssueCount  int             `json:"issue_count"`
	AvgScore    float64         `json:"avg_score"`
	MaxScore    float64         `json:"max_score"`
	Level       model.RiskLevel `json:"level"`
	Message     string          `json:"message"`
	WindowDays  int             `json:"window_days"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// PredictiveAlerts returns one alert per region whose recent open reports
// exceed both the count and average-score thresholds. Regions are named
// zones when boundaries are loaded, grid cells otherwise.
func (a *Aggregator) PredictiveAlerts(scored []ScoredIssue, zones *neighborhood.Zones, now time.Time) []DegradationAlert {
	cutoff := now.Add(-a.cfg.AlertWindow)

	type acc struct {
		sumLat   float64
		sumLng   float64
		sumScore float64
		maxScore float64
		count    int
	}
	byRegion := make(map[string]*acc)

	for _, s := range open(scored) {
		if s.Issue.CreatedAt.Before(cutoff) {
			continue
		}
		region, ok := a.regionFor(s.Issue, zones)
		if !ok {
			continue
		}
		c, seen := byRegion[region]
		if !seen {
			c = &acc{}
			byRegion[region] = c
		}
		c.sumLat += s.Issue.Lat
		c.sumLng += s.Issue.Lng
		c.sumScore += s.Assessment.Score
		c.maxScore = math.Max(c.maxScore, s.Assessment.Score)
		c.count++
	}

	windowDays := int(a.cfg.AlertWindow.Hours() / 24)

	var out []DegradationAlert
	for region, c := range byRegion {
		avg := c.sumScore / float64(c.count)
		if c.count < a.cfg.AlertMinIssues || avg < a.cfg.AlertMinAvgScore {
			continue
		}
		score := regionScore(c.maxScore, avg)
		out = append(out, DegradationAlert{
			Region:     region,
			Centroid:   model.LatLng{Lat: c.sumLat / float64(c.count), Lng: c.sumLng / float64(c.count)},
			IssueCount: c.count,
			AvgScore:   avg,
			MaxScore:   c.maxScore,
			Level:      a.levelFor(score),
			Message: fmt.Sprintf(
				"%d open reports in %s over the last %dd with average risk %.2f",
				c.count, region, windowDays, avg,
			),
			WindowDays:  windowDays,
			GeneratedAt: now,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgScore != out[j].AvgScore {
			return out[i].AvgScore > out[j].AvgScore
		}
		return out[i].Region < out[j].Region
	})
	return out
}

func (a *Aggregator) regionFor(issue model.Issue, zones *neighborhood.Zones) (string, bool) {
	if zones.Len() > 0 {
		return zones.Locate(issue.Lat, issue.Lng)
	}
	zoom, cellDeg := a.cellSizeForZoom(a.cfg.MaxZoom - alertZoomOffset)
	return fmt.Sprintf("cell %d/%d/%d", zoom, floorDiv(issue.Lng, cellDeg), floorDiv(issue.Lat, cellDeg)), true
}
