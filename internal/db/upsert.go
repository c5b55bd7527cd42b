package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a merge of staged rows into a keyed table.
type UpsertConfig struct {
	Table        string   // schema-qualified target, e.g. "propmap.district_summary"
	Columns      []string // column order of every row
	ConflictKeys []string // the target's unique key
	UpdateCols   []string // refreshed on conflict; nil means every non-key column
}

func (c UpsertConfig) validate() error {
	switch {
	case len(c.Columns) == 0:
		return eris.Errorf("db: upsert %s: no columns specified", c.Table)
	case len(c.ConflictKeys) == 0:
		return eris.Errorf("db: upsert %s: no conflict keys specified", c.Table)
	}
	return nil
}

// refreshed lists the columns an existing row takes from the staged row.
func (c UpsertConfig) refreshed() []string {
	if c.UpdateCols != nil {
		return c.UpdateCols
	}
	key := make(map[string]bool, len(c.ConflictKeys))
	for _, k := range c.ConflictKeys {
		key[k] = true
	}
	var cols []string
	for _, col := range c.Columns {
		if !key[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

// stagingTable is the per-target temp table name, unqualified.
func (c UpsertConfig) stagingTable() string {
	return "_tmp_upsert_" + strings.ReplaceAll(c.Table, ".", "_")
}

func (c UpsertConfig) mergeSQL() string {
	onConflict := "DO NOTHING"
	if cols := c.refreshed(); len(cols) > 0 {
		set := make([]string, len(cols))
		for i, col := range cols {
			id := pgx.Identifier{col}.Sanitize()
			set[i] = id + " = EXCLUDED." + id
		}
		onConflict = "DO UPDATE SET " + strings.Join(set, ", ")
	}

	cols := quoteAndJoin(c.Columns)
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(c.Table), cols, cols,
		pgx.Identifier{c.stagingTable()}.Sanitize(),
		quoteAndJoin(c.ConflictKeys), onConflict)
}

// BulkUpsert stages rows in a temp table and merges them into cfg.Table in
// one transaction. Only UpdateCols change on existing rows: a summary writer
// that owns one field's value never touches rows or columns it did not send.
// Returns the number of rows inserted or updated.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: begin tx", cfg.Table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := cfg.stagingTable()
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{staging}.Sanitize(), sanitizeTable(cfg.Table),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: create staging table", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: stage rows", cfg.Table)
	}

	tag, err := tx.Exec(ctx, cfg.mergeSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: merge", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: commit", cfg.Table)
	}
	return tag.RowsAffected(), nil
}

// sanitizeTable quotes a table name, splitting an optional schema prefix.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
