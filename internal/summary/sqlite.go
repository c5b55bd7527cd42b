package summary

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS district_summary (
	district   TEXT NOT NULL,
	field      TEXT NOT NULL,
	value      INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (district, field)
);
`

const sqliteUpsert = `
INSERT INTO district_summary (district, field, value, updated_at)
VALUES (?, ?, ?, datetime('now'))
ON CONFLICT(district, field) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// SQLiteStore keeps the summary in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at dsn in WAL mode and ensures
// the summary table exists.
func NewSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "summary: sqlite open")
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "summary: sqlite exec %q", stmt)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Upsert writes all medians in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, field string, medians map[string]int64) (int, error) {
	if field == "" {
		return 0, eris.New("summary: field is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "summary: sqlite begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, eris.Wrap(err, "summary: sqlite prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for district, v := range medians {
		if _, err := stmt.ExecContext(ctx, district, field, v); err != nil {
			return 0, eris.Wrapf(err, "summary: sqlite upsert %s", district)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "summary: sqlite commit")
	}
	return len(medians), nil
}

// Load reads the full summary.
func (s *SQLiteStore) Load(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT district, field, value FROM district_summary`)
	if err != nil {
		return nil, eris.Wrap(err, "summary: sqlite query")
	}
	defer rows.Close() //nolint:errcheck

	out := Summary{}
	for rows.Next() {
		var district, field string
		var value int64
		if err := rows.Scan(&district, &field, &value); err != nil {
			return nil, eris.Wrap(err, "summary: sqlite scan")
		}
		MergeMedians(out, map[string]int64{district: value}, field)
	}
	return out, eris.Wrap(rows.Err(), "summary: sqlite iterate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Sink = (*SQLiteStore)(nil)
