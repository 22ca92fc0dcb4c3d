package risk

import (
	"math"
	"strings"
	"time"

	"github.com/sells-group/hazard-engine/internal/model"
)

// densitySaturation controls how fast the local-density component approaches
// 1.0: n nearby open issues score n/(n+densitySaturation).
const densitySaturation = 5.0

// Scorer maps an issue plus a local-density snapshot to an assessment. It is
// pure with respect to persisted state.
type Scorer struct {
	cfg Config
}

// NewScorer creates a Scorer with a validated config.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Config returns the scorer's configuration table.
func (s *Scorer) Config() Config {
	return s.cfg
}

// DensityRadiusM is the radius callers should use when counting open
// neighbors for the density component.
func (s *Scorer) DensityRadiusM() float64 {
	return s.cfg.DensityRadiusM
}

// Score computes the assessment for an issue. openNeighbors is the count of
// other open issues within DensityRadiusM, supplied by the caller from the
// spatial index.
func (s *Scorer) Score(issue *model.Issue, openNeighbors int, now time.Time) (*model.Assessment, error) {
	if issue == nil || issue.ID == "" || issue.Category == "" || issue.CreatedAt.IsZero() {
		return nil, model.ErrUnscoredIssue
	}

	// A closed issue no longer carries risk.
	if issue.Status == model.IssueStatusClosed {
		return &model.Assessment{
			IssueID:    issue.ID,
			Score:      0,
			Level:      s.LevelFor(0),
			AssessedAt: now,
		}, nil
	}

	factors := model.Factors{
		Category: s.categoryComponent(issue.Category),
		Severity: s.severityComponent(issue),
		Recency:  s.recencyComponent(issue.CreatedAt, now),
		Density:  densityComponent(openNeighbors),
	}

	score := s.cfg.Weights.Category*factors.Category +
		s.cfg.Weights.Severity*factors.Severity +
		s.cfg.Weights.Recency*factors.Recency +
		s.cfg.Weights.Density*factors.Density
	score = clamp01(score)

	return &model.Assessment{
		IssueID:       issue.ID,
		Score:         score,
		Level:         s.LevelFor(score),
		Factors:       factors,
		ImpactRadiusM: s.impactRadius(issue.Category, score),
		PriorityScore: priorityScore(score, issue.CreatedAt, now),
		RepairCostUSD: s.repairCost(issue.Category, score),
		AssessedAt:    now,
	}, nil
}

// LevelFor maps a score to a risk level via the threshold table. The mapping
// is monotonic: a higher score never yields a lower level.
func (s *Scorer) LevelFor(score float64) model.RiskLevel {
	switch {
	case score < s.cfg.Thresholds.Low:
		return model.RiskLevelLow
	case score < s.cfg.Thresholds.Medium:
		return model.RiskLevelMedium
	case score < s.cfg.Thresholds.High:
		return model.RiskLevelHigh
	default:
		return model.RiskLevelCritical
	}
}

// categoryComponent resolves the fixed weight for a defect category. Exact
// lookup first, then substring match for free-text labels from imports.
func (s *Scorer) categoryComponent(category string) float64 {
	c := strings.ToLower(strings.TrimSpace(category))
	if w, ok := s.cfg.CategoryWeights[c]; ok {
		return w
	}
	for key, w := range s.cfg.CategoryWeights {
		if strings.Contains(c, key) {
			return w
		}
	}
	return s.cfg.DefaultCategory
}

// severityComponent derives severity from CV confidence and depth. Without a
// confidence value the fixed fallback applies, so a report is still scorable
// with no image analysis.
func (s *Scorer) severityComponent(issue *model.Issue) float64 {
	if issue.Confidence == nil {
		return s.cfg.FallbackSeverity
	}
	conf := clamp01(*issue.Confidence)
	return clamp01(conf * depthBucket(issue.DepthCM))
}

// depthBucket maps a depth estimate to a multiplier. Unknown depth sits in
// the middle rather than zeroing the confidence signal.
func depthBucket(depthCM *float64) float64 {
	if depthCM == nil {
		return 0.6
	}
	switch d := *depthCM; {
	case d < 2:
		return 0.4
	case d < 5:
		return 0.6
	case d < 10:
		return 0.8
	default:
		return 1.0
	}
}

// recencyComponent decays exponentially from the creation timestamp toward
// the configured floor. Old open issues still matter, just less.
func (s *Scorer) recencyComponent(createdAt, now time.Time) float64 {
	ageHours := now.Sub(createdAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	decay := math.Pow(0.5, ageHours/s.cfg.Decay.HalfLifeHours)
	return s.cfg.Decay.Floor + (1-s.cfg.Decay.Floor)*decay
}

// densityComponent grows monotonically with the open-neighbor count and
// saturates toward 1.0, so hot spots read as worse than isolated reports.
func densityComponent(openNeighbors int) float64 {
	if openNeighbors <= 0 {
		return 0
	}
	n := float64(openNeighbors)
	return n / (n + densitySaturation)
}

// impactRadius scales the per-category base radius by the score.
func (s *Scorer) impactRadius(category string, score float64) float64 {
	c := strings.ToLower(strings.TrimSpace(category))
	radius := s.cfg.DefaultImpactM
	for key, r := range s.cfg.ImpactRadiusM {
		if strings.Contains(c, key) {
			radius = r
			break
		}
	}
	return radius * (0.5 + score*0.5)
}

// repairCost estimates the repair spend in USD: a per-category base scaled
// up with risk, since higher-risk defects cost more to make safe.
func (s *Scorer) repairCost(category string, score float64) float64 {
	c := strings.ToLower(strings.TrimSpace(category))
	cost := s.cfg.DefaultRepairUSD
	for key, base := range s.cfg.RepairCostUSD {
		if strings.Contains(c, key) {
			cost = base
			break
		}
	}
	return cost * (0.8 + score*0.4)
}

// priorityScore blends risk with age urgency into a 0-100 triage value.
func priorityScore(score float64, createdAt, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	urgency := math.Min(1, math.Max(0, ageDays/30))
	return math.Min(100, (score*0.7+urgency*0.3)*100)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
