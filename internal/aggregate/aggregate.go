// Package aggregate derives map-level views from scored issues: zoom-grid
// clusters, neighborhood rollups, heatmaps, and predictive degradation
// alerts. All functions are pure over the snapshot they are handed, so the
// engine can serve them from any consistent read of its state.
package aggregate

import (
	"time"

	"github.com/sells-group/hazard-engine/internal/model"
)

// ScoredIssue pairs an issue with its latest assessment.
type ScoredIssue struct {
	Issue      model.Issue
	Assessment model.Assessment
}

// Config controls aggregation and alerting.
type Config struct {
	// MinZoom and MaxZoom clamp requested cluster zoom levels.
	MinZoom int
	MaxZoom int
	// AlertWindow is the lookback for degradation alerts.
	AlertWindow time.Duration
	// AlertMinIssues is the minimum recent report count before a region can
	// alert.
	AlertMinIssues int
	// AlertMinAvgScore is the minimum average risk score before a region can
	// alert.
	AlertMinAvgScore float64
}

// DefaultConfig returns the starting aggregation configuration.
func DefaultConfig() Config {
	return Config{
		MinZoom:          10,
		MaxZoom:          18,
		AlertWindow:      7 * 24 * time.Hour,
		AlertMinIssues:   5,
		AlertMinAvgScore: 0.55,
	}
}

// Aggregator computes spatial aggregates. levelFor maps a region score to a
// risk level with the same thresholds the per-issue scorer uses.
type Aggregator struct {
	cfg      Config
	levelFor func(float64) model.RiskLevel
}

// New creates an Aggregator.
func New(cfg Config, levelFor func(float64) model.RiskLevel) *Aggregator {
	if cfg.MaxZoom <= 0 {
		cfg = DefaultConfig()
	}
	return &Aggregator{cfg: cfg, levelFor: levelFor}
}

// regionScore blends the worst issue with the average. A single critical
// report must raise a region's score even when surrounded by mild ones, so
// the max dominates.
func regionScore(maxScore, avgScore float64) float64 {
	return 0.6*maxScore + 0.4*avgScore
}

// open filters the snapshot to open issues, the only ones that contribute to
// aggregates.
func open(scored []ScoredIssue) []ScoredIssue {
	out := make([]ScoredIssue, 0, len(scored))
	for _, s := range scored {
		if s.Issue.Open() {
			out = append(out, s)
		}
	}
	return out
}
