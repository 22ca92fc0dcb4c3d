package model

// BBox is a geographic bounding box in WGS84 degrees.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether the point lies inside the box (inclusive).
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// Intersects reports whether two boxes overlap.
func (b BBox) Intersects(o BBox) bool {
	return b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat &&
		b.MinLng <= o.MaxLng && b.MaxLng >= o.MinLng
}

// ClusterCell is a fixed-grid spatial aggregate at a given zoom resolution.
// It is a view over the index, not a stored entity: its identity is the
// (zoom, ix, iy) key.
type ClusterCell struct {
	Key      string    `json:"key"` // "zoom/ix/iy"
	Zoom     int       `json:"zoom"`
	Bounds   BBox      `json:"bounds"`
	Centroid LatLng    `json:"centroid"`
	Count    int       `json:"count"`
	AvgScore float64   `json:"avg_score"`
	MaxScore float64   `json:"max_score"`
	Score    float64   `json:"score"`
	Level    RiskLevel `json:"level"`
	IssueIDs []string  `json:"issue_ids"`
}

// NeighborhoodZone is a named-polygon spatial aggregate independent of zoom.
type NeighborhoodZone struct {
	Name     string    `json:"name"`
	Bounds   BBox      `json:"bounds"`
	Count    int       `json:"count"`
	AvgScore float64   `json:"avg_score"`
	MaxScore float64   `json:"max_score"`
	Score    float64   `json:"score"`
	Level    RiskLevel `json:"level"`
	IssueIDs []string  `json:"issue_ids"`
}

// HeatPoint is one weighted point in an individual-mode heatmap.
type HeatPoint struct {
	Lat    float64   `json:"lat"`
	Lng    float64   `json:"lng"`
	Weight float64   `json:"weight"`
	ID     string    `json:"issue_id"`
	Level  RiskLevel `json:"risk_level"`
}
