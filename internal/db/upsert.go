package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig maps an import batch onto a target table.
type UpsertConfig struct {
	Table        string   // target table, may be schema-qualified
	Columns      []string // columns present in each row
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns rewritten on conflict; nil means every non-key column
}

func (c UpsertConfig) validate() error {
	if len(c.Columns) == 0 {
		return eris.Errorf("db: upsert %s: no columns specified", c.Table)
	}
	if len(c.ConflictKeys) == 0 {
		return eris.Errorf("db: upsert %s: no conflict keys specified", c.Table)
	}
	return nil
}

// stagingTable names the per-session temp table rows are copied into before
// the merge.
func (c UpsertConfig) stagingTable() string {
	return "_tmp_upsert_" + strings.ReplaceAll(c.Table, ".", "_")
}

// mergeSQL builds the statement that folds staged rows into the target.
func (c UpsertConfig) mergeSQL(staging string) string {
	update := c.UpdateCols
	if update == nil {
		keys := make(map[string]bool, len(c.ConflictKeys))
		for _, k := range c.ConflictKeys {
			keys[k] = true
		}
		for _, col := range c.Columns {
			if !keys[col] {
				update = append(update, col)
			}
		}
	}

	assignments := make([]string, len(update))
	for i, col := range update {
		q := pgx.Identifier{col}.Sanitize()
		assignments[i] = q + " = EXCLUDED." + q
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteTable(c.Table))
	b.WriteString(" (")
	b.WriteString(joinQuoted(c.Columns))
	b.WriteString(") SELECT ")
	b.WriteString(joinQuoted(c.Columns))
	b.WriteString(" FROM ")
	b.WriteString(pgx.Identifier{staging}.Sanitize())
	b.WriteString(" ON CONFLICT (")
	b.WriteString(joinQuoted(c.ConflictKeys))
	b.WriteString(") DO UPDATE SET ")
	b.WriteString(strings.Join(assignments, ", "))
	return b.String()
}

// BulkUpsert loads an import batch in one transaction: rows are staged into a
// temp table with COPY, then merged into the target with INSERT ... ON
// CONFLICT DO UPDATE. Re-running an import updates rows the engine has
// already seen instead of failing on the primary key.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx)

	staging := cfg.stagingTable()
	createSQL := "CREATE TEMP TABLE " + pgx.Identifier{staging}.Sanitize() +
		" (LIKE " + quoteTable(cfg.Table) + " INCLUDING DEFAULTS) ON COMMIT DROP"
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", cfg.Table)
	}

	if _, err := CopyFrom(ctx, tx, staging, cfg.Columns, rows); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, cfg.mergeSQL(staging))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// quoteTable quotes a possibly schema-qualified table name.
func quoteTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func joinQuoted(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
