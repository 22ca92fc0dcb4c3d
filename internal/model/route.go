package model

// RouteType selects the travel profile used for durations and base costs.
type RouteType string

const (
	RouteTypeWalking   RouteType = "walking"
	RouteTypeCycling   RouteType = "cycling"
	RouteTypeDriving   RouteType = "driving"
	RouteTypeEmergency RouteType = "emergency"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Route is the result of a planning request.
type Route struct {
	Polyline        []LatLng  `json:"polyline"`
	DistanceM       float64   `json:"distance_m"`
	DurationS       float64   `json:"duration_s"`
	SafetyScore     float64   `json:"safety_score"`
	AvoidedHazards  []string  `json:"avoided_hazards"`
	HazardCount     int       `json:"hazard_count"`
	Unsafe          bool      `json:"unsafe"` // set when strict avoidance failed and hazards were ignored
	RouteType       RouteType `json:"route_type"`
	ExpandedNodes   int       `json:"expanded_nodes"`
	DetourFactor    float64   `json:"detour_factor"`
	DirectDistanceM float64   `json:"direct_distance_m"`
}
