package model

import "time"

// RiskLevel is the bucketed view of a continuous risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// rank orders risk levels for comparisons. Unknown levels rank below low.
func (l RiskLevel) rank() int {
	switch l {
	case RiskLevelLow:
		return 1
	case RiskLevelMedium:
		return 2
	case RiskLevelHigh:
		return 3
	case RiskLevelCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether l is at or above other in severity.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return l.rank() >= other.rank()
}

// Factors is the contributing-factor breakdown of an assessment. Each value
// is the normalized component before weighting.
type Factors struct {
	Category float64 `json:"category"`
	Severity float64 `json:"severity"`
	Recency  float64 `json:"recency"`
	Density  float64 `json:"density"`
}

// Assessment is the derived risk evaluation for a single issue. It is
// recomputed whenever its inputs change and never hand-edited.
type Assessment struct {
	IssueID       string    `json:"issue_id"`
	Score         float64   `json:"score"`
	Level         RiskLevel `json:"level"`
	Factors       Factors   `json:"factors"`
	ImpactRadiusM float64   `json:"impact_radius_m"`
	PriorityScore float64   `json:"priority_score"`
	RepairCostUSD float64   `json:"repair_cost_usd"`
	AssessedAt    time.Time `json:"assessed_at"`
}
