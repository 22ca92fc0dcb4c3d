package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/hazard-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS issues (
	id             TEXT PRIMARY KEY,
	lat            REAL NOT NULL,
	lng            REAL NOT NULL,
	category       TEXT NOT NULL,
	confidence     REAL,
	depth_cm       REAL,
	status         TEXT NOT NULL DEFAULT 'open',
	location_label TEXT NOT NULL DEFAULT '',
	neighborhood   TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS assessments (
	issue_id        TEXT PRIMARY KEY REFERENCES issues(id),
	score           REAL NOT NULL,
	level           TEXT NOT NULL,
	factors         TEXT NOT NULL,
	impact_radius_m REAL NOT NULL,
	priority_score  REAL NOT NULL,
	repair_cost_usd REAL NOT NULL DEFAULT 0,
	assessed_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
CREATE INDEX IF NOT EXISTS idx_issues_category ON issues(category);
CREATE INDEX IF NOT EXISTS idx_issues_created_at ON issues(created_at);
CREATE INDEX IF NOT EXISTS idx_assessments_level ON assessments(level);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *model.Issue) error {
	if issue.ID == "" {
		issue.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	if issue.UpdatedAt.IsZero() {
		issue.UpdatedAt = issue.CreatedAt
	}
	if issue.Status == "" {
		issue.Status = model.IssueStatusOpen
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (id, lat, lng, category, confidence, depth_cm, status, location_label, neighborhood, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Lat, issue.Lng, issue.Category,
		issue.Confidence, issue.DepthCM, string(issue.Status),
		issue.LocationLabel, issue.Neighborhood, issue.CreatedAt, issue.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert issue %s", issue.ID)
}

func (s *SQLiteStore) UpdateIssue(ctx context.Context, issue *model.Issue) error {
	issue.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE issues SET lat = ?, lng = ?, category = ?, confidence = ?, depth_cm = ?,
		 status = ?, location_label = ?, neighborhood = ?, updated_at = ? WHERE id = ?`,
		issue.Lat, issue.Lng, issue.Category, issue.Confidence, issue.DepthCM,
		string(issue.Status), issue.LocationLabel, issue.Neighborhood, issue.UpdatedAt, issue.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update issue %s", issue.ID)
	}
	return checkRowsAffected(res, issue.ID)
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*model.Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, lat, lng, category, confidence, depth_cm, status, location_label, neighborhood, created_at, updated_at
		 FROM issues WHERE id = ?`,
		id,
	)
	return scanIssue(row, id)
}

func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueFilter) ([]model.Issue, error) {
	query := `SELECT id, lat, lng, category, confidence, depth_cm, status, location_label, neighborhood, created_at, updated_at
		 FROM issues WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list issues")
	}
	defer rows.Close()

	var issues []model.Issue
	for rows.Next() {
		i, err := scanIssue(rows, "")
		if err != nil {
			return nil, err
		}
		issues = append(issues, *i)
	}
	return issues, eris.Wrap(rows.Err(), "sqlite: list issues iterate")
}

func (s *SQLiteStore) SaveAssessment(ctx context.Context, a *model.Assessment) error {
	factorsJSON, err := json.Marshal(a.Factors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal factors")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assessments (issue_id, score, level, factors, impact_radius_m, priority_score, repair_cost_usd, assessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(issue_id) DO UPDATE SET
			score = excluded.score,
			level = excluded.level,
			factors = excluded.factors,
			impact_radius_m = excluded.impact_radius_m,
			priority_score = excluded.priority_score,
			repair_cost_usd = excluded.repair_cost_usd,
			assessed_at = excluded.assessed_at`,
		a.IssueID, a.Score, string(a.Level), string(factorsJSON),
		a.ImpactRadiusM, a.PriorityScore, a.RepairCostUSD, a.AssessedAt,
	)
	return eris.Wrapf(err, "sqlite: save assessment %s", a.IssueID)
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, issueID string) (*model.Assessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT issue_id, score, level, factors, impact_radius_m, priority_score, repair_cost_usd, assessed_at
		 FROM assessments WHERE issue_id = ?`,
		issueID,
	)
	return scanAssessment(row, issueID)
}

func (s *SQLiteStore) ListAssessments(ctx context.Context) ([]model.Assessment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT issue_id, score, level, factors, impact_radius_m, priority_score, repair_cost_usd, assessed_at FROM assessments`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assessments")
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list assessments iterate")
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrIssueNotFound, "id %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanIssue(row scannable, id string) (*model.Issue, error) {
	var i model.Issue
	var status string

	err := row.Scan(&i.ID, &i.Lat, &i.Lng, &i.Category, &i.Confidence, &i.DepthCM,
		&status, &i.LocationLabel, &i.Neighborhood, &i.CreatedAt, &i.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrIssueNotFound, "id %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan issue")
	}
	i.Status = model.IssueStatus(status)
	return &i, nil
}

func scanAssessment(row scannable, issueID string) (*model.Assessment, error) {
	var a model.Assessment
	var level, factorsJSON string

	err := row.Scan(&a.IssueID, &a.Score, &level, &factorsJSON,
		&a.ImpactRadiusM, &a.PriorityScore, &a.RepairCostUSD, &a.AssessedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrIssueNotFound, "assessment for %s", issueID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan assessment")
	}
	a.Level = model.RiskLevel(level)
	if err := json.Unmarshal([]byte(factorsJSON), &a.Factors); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal factors")
	}
	return &a, nil
}
