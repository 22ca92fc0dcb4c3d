package aggregate

import (
	"math"
	"sort"

	"github.com/sells-group/hazard-engine/internal/model"
	"github.com/sells-group/hazard-engine/internal/neighborhood"
)

// Neighborhoods rolls open issues up into named zones. Issues outside every
// zone are dropped; zones with no issues are omitted.
func (a *Aggregator) Neighborhoods(scored []ScoredIssue, zones *neighborhood.Zones) []model.NeighborhoodZone {
	type acc struct {
		bounds   model.BBox
		sumScore float64
		maxScore float64
		ids      []string
	}
	byName := make(map[string]*acc)

	for _, z := range zones.All() {
		byName[z.Name] = &acc{bounds: z.Bounds}
	}

	for _, s := range open(scored) {
		name, ok := zones.Locate(s.Issue.Lat, s.Issue.Lng)
		if !ok {
			continue
		}
		c := byName[name]
		c.sumScore += s.Assessment.Score
		c.maxScore = math.Max(c.maxScore, s.Assessment.Score)
		c.ids = append(c.ids, s.Issue.ID)
	}

	out := make([]model.NeighborhoodZone, 0, len(byName))
	for name, c := range byName {
		if len(c.ids) == 0 {
			continue
		}
		n := float64(len(c.ids))
		avg := c.sumScore / n
		score := regionScore(c.maxScore, avg)
		sort.Strings(c.ids)

		out = append(out, model.NeighborhoodZone{
			Name:     name,
			Bounds:   c.bounds,
			Count:    len(c.ids),
			AvgScore: avg,
			MaxScore: c.maxScore,
			Score:    score,
			Level:    a.levelFor(score),
			IssueIDs: c.ids,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
