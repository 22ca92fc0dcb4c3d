package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hazard-engine/internal/db"
	"github.com/sells-group/hazard-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"insert_issue": `INSERT INTO issues (id, lat, lng, category, confidence, depth_cm, status, location_label, neighborhood, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"update_issue": `UPDATE issues SET lat = $1, lng = $2, category = $3, confidence = $4, depth_cm = $5,
		status = $6, location_label = $7, neighborhood = $8, updated_at = $9 WHERE id = $10`,
	"get_issue": `SELECT id, lat, lng, category, confidence, depth_cm, status, location_label, neighborhood, created_at, updated_at
		FROM issues WHERE id = $1`,
	"save_assessment": `INSERT INTO assessments (issue_id, score, level, factors, impact_radius_m, priority_score, repair_cost_usd, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (issue_id) DO UPDATE SET
			score = EXCLUDED.score, level = EXCLUDED.level, factors = EXCLUDED.factors,
			impact_radius_m = EXCLUDED.impact_radius_m, priority_score = EXCLUDED.priority_score,
			repair_cost_usd = EXCLUDED.repair_cost_usd, assessed_at = EXCLUDED.assessed_at`,
	"get_assessment": `SELECT issue_id, score, level, factors, impact_radius_m, priority_score, repair_cost_usd, assessed_at
		FROM assessments WHERE issue_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access, such as bulk imports.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS issues (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lat            DOUBLE PRECISION NOT NULL,
	lng            DOUBLE PRECISION NOT NULL,
	category       TEXT NOT NULL,
	confidence     DOUBLE PRECISION,
	depth_cm       DOUBLE PRECISION,
	status         TEXT NOT NULL DEFAULT 'open',
	location_label TEXT NOT NULL DEFAULT '',
	neighborhood   TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assessments (
	issue_id        TEXT PRIMARY KEY REFERENCES issues(id),
	score           DOUBLE PRECISION NOT NULL,
	level           TEXT NOT NULL,
	factors         JSONB NOT NULL,
	impact_radius_m DOUBLE PRECISION NOT NULL,
	priority_score  DOUBLE PRECISION NOT NULL,
	repair_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	assessed_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
CREATE INDEX IF NOT EXISTS idx_issues_category ON issues(category);
CREATE INDEX IF NOT EXISTS idx_issues_created_at ON issues(created_at);
CREATE INDEX IF NOT EXISTS idx_assessments_level ON assessments(level);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateIssue(ctx context.Context, issue *model.Issue) error {
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

	_, err := s.pool.Exec(ctx, "insert_issue",
		issue.ID, issue.Lat, issue.Lng, issue.Category, issue.Confidence, issue.DepthCM,
		string(issue.Status), issue.LocationLabel, issue.Neighborhood, issue.CreatedAt, issue.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert issue %s", issue.ID)
}

func (s *PostgresStore) UpdateIssue(ctx context.Context, issue *model.Issue) error {
	issue.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx, "update_issue",
		issue.Lat, issue.Lng, issue.Category, issue.Confidence, issue.DepthCM,
		string(issue.Status), issue.LocationLabel, issue.Neighborhood, issue.UpdatedAt, issue.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update issue %s", issue.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrIssueNotFound, "id %s", issue.ID)
	}
	return nil
}

func (s *PostgresStore) GetIssue(ctx context.Context, id string) (*model.Issue, error) {
	row := s.pool.QueryRow(ctx, "get_issue", id)

	var i model.Issue
	var status string
	err := row.Scan(&i.ID, &i.Lat, &i.Lng, &i.Category, &i.Confidence, &i.DepthCM,
		&status, &i.LocationLabel, &i.Neighborhood, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrIssueNotFound, "id %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan issue")
	}
	i.Status = model.IssueStatus(status)
	return &i, nil
}

func (s *PostgresStore) ListIssues(ctx context.Context, filter IssueFilter) ([]model.Issue, error) {
	query := `SELECT id, lat, lng, category, confidence, depth_cm, status, location_label, neighborhood, created_at, updated_at
		FROM issues WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += ` AND category = $` + itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + itoa(len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += ` OFFSET $` + itoa(len(args))
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list issues")
	}
	defer rows.Close()

	var issues []model.Issue
	for rows.Next() {
		var i model.Issue
		var status string
		if err := rows.Scan(&i.ID, &i.Lat, &i.Lng, &i.Category, &i.Confidence, &i.DepthCM,
			&status, &i.LocationLabel, &i.Neighborhood, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan issue row")
		}
		i.Status = model.IssueStatus(status)
		issues = append(issues, i)
	}
	return issues, eris.Wrap(rows.Err(), "postgres: list issues iterate")
}

func (s *PostgresStore) SaveAssessment(ctx context.Context, a *model.Assessment) error {
	factorsJSON, err := json.Marshal(a.Factors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal factors")
	}

	_, err = s.pool.Exec(ctx, "save_assessment",
		a.IssueID, a.Score, string(a.Level), factorsJSON,
		a.ImpactRadiusM, a.PriorityScore, a.RepairCostUSD, a.AssessedAt,
	)
	return eris.Wrapf(err, "postgres: save assessment %s", a.IssueID)
}

func (s *PostgresStore) GetAssessment(ctx context.Context, issueID string) (*model.Assessment, error) {
	row := s.pool.QueryRow(ctx, "get_assessment", issueID)
	a, err := scanPgAssessment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrIssueNotFound, "assessment for %s", issueID)
	}
	return a, err
}

func (s *PostgresStore) ListAssessments(ctx context.Context) ([]model.Assessment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT issue_id, score, level, factors, impact_radius_m, priority_score, repair_cost_usd, assessed_at FROM assessments`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assessments")
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanPgAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list assessments iterate")
}

// BulkUpsertIssues loads an import batch in one round trip, updating rows
// the engine has already seen.
func (s *PostgresStore) BulkUpsertIssues(ctx context.Context, issues []model.Issue) (int64, error) {
	cols := []string{"id", "lat", "lng", "category", "confidence", "depth_cm", "status", "location_label", "neighborhood", "created_at", "updated_at"}
	rows := make([][]any, 0, len(issues))
	for _, i := range issues {
		rows = append(rows, []any{
			i.ID, i.Lat, i.Lng, i.Category, i.Confidence, i.DepthCM,
			string(i.Status), i.LocationLabel, i.Neighborhood, i.CreatedAt, i.UpdatedAt,
		})
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "issues",
		Columns:      cols,
		ConflictKeys: []string{"id"},
	}, rows)
}

func scanPgAssessment(row pgx.Row) (*model.Assessment, error) {
	var a model.Assessment
	var level string
	var factorsJSON []byte

	err := row.Scan(&a.IssueID, &a.Score, &level, &factorsJSON,
		&a.ImpactRadiusM, &a.PriorityScore, &a.RepairCostUSD, &a.AssessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan assessment")
	}
	a.Level = model.RiskLevel(level)
	if err := json.Unmarshal(factorsJSON, &a.Factors); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal factors")
	}
	return &a, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
