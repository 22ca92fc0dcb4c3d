// Package store persists issues and their latest assessments. The engine
// treats the store as the durable source of truth and rebuilds all in-memory
// indexes from it at startup.
package store

import (
	"context"

	"github.com/sells-group/hazard-engine/internal/model"
)

// IssueFilter specifies criteria for listing issues. A zero Limit means no
// limit, which the engine uses to rebuild state at startup.
type IssueFilter struct {
	Status   model.IssueStatus `json:"status,omitempty"`
	Category string            `json:"category,omitempty"`
	Limit    int               `json:"limit,omitempty"`
	Offset   int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for the hazard engine.
type Store interface {
	// Issues
	CreateIssue(ctx context.Context, issue *model.Issue) error
	UpdateIssue(ctx context.Context, issue *model.Issue) error
	GetIssue(ctx context.Context, id string) (*model.Issue, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]model.Issue, error)

	// Assessments: one row per issue, overwritten on every recompute.
	SaveAssessment(ctx context.Context, a *model.Assessment) error
	GetAssessment(ctx context.Context, issueID string) (*model.Assessment, error)
	ListAssessments(ctx context.Context) ([]model.Assessment, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
