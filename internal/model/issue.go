package model

import "time"

// IssueStatus represents the lifecycle state of a reported issue.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusClosed     IssueStatus = "closed"
)

// Issue is a geolocated civic-infrastructure report. Coordinates are WGS84
// degrees and must fall inside the configured service bounds before the
// record enters the engine.
type Issue struct {
	ID            string      `json:"id"`
	Lat           float64     `json:"lat"`
	Lng           float64     `json:"lng"`
	Category      string      `json:"category"`
	Confidence    *float64    `json:"confidence,omitempty"` // CV confidence 0-1, nil without image analysis
	DepthCM       *float64    `json:"depth_cm,omitempty"`
	Status        IssueStatus `json:"status"`
	LocationLabel string      `json:"location_label,omitempty"`
	Neighborhood  string      `json:"neighborhood,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Open reports whether the issue still contributes to risk and density.
func (i *Issue) Open() bool {
	return i.Status != IssueStatusClosed
}

// IssueSummary is the trimmed projection returned by proximity queries.
type IssueSummary struct {
	ID            string      `json:"id"`
	Lat           float64     `json:"lat"`
	Lng           float64     `json:"lng"`
	Category      string      `json:"category"`
	Status        IssueStatus `json:"status"`
	Level         RiskLevel   `json:"risk_level"`
	Score         float64     `json:"risk_score"`
	LocationLabel string      `json:"location_label,omitempty"`
	DistanceM     float64     `json:"distance_m"`
}
