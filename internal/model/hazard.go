package model

import "time"

// Hazard is the routing-domain projection of a high-risk issue. It is owned
// by the hazard registry; the planner only reads it.
type Hazard struct {
	ID        string    `json:"id"` // same as the source issue ID
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	RadiusM   float64   `json:"radius_m"`
	Weight    float64   `json:"weight"` // source assessment score
	Level     RiskLevel `json:"level"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the hazard has passed its expiry.
func (h *Hazard) Expired(now time.Time) bool {
	return !h.ExpiresAt.IsZero() && now.After(h.ExpiresAt)
}
