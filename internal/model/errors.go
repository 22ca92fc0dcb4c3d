package model

import "github.com/rotisserie/eris"

// Engine error taxonomy. Callers match with eris.Is and map to transport
// codes at the edge.
var (
	// ErrInvalidCoordinate rejects coordinates outside the service bounds.
	ErrInvalidCoordinate = eris.New("coordinate outside service bounds")

	// ErrUnscoredIssue marks a record missing fields the scorer requires.
	ErrUnscoredIssue = eris.New("issue missing required fields for scoring")

	// ErrIssueNotFound is returned for recompute on an unknown issue.
	ErrIssueNotFound = eris.New("issue not found")

	// ErrNoRoutableNode means origin or destination could not be snapped to
	// the road graph within the max snap distance.
	ErrNoRoutableNode = eris.New("no routable node within snap distance")

	// ErrNoPath means the graph is disconnected between the endpoints even
	// with hazards ignored.
	ErrNoPath = eris.New("no path between origin and destination")

	// ErrPlanningTimeout means the search exceeded its node or time budget.
	ErrPlanningTimeout = eris.New("route search budget exceeded")
)
