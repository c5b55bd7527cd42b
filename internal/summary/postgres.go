package summary

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/propmap/internal/db"
)

const postgresTable = "propmap.district_summary"

// PostgresStore keeps one row per (district, field) in propmap.district_summary.
// The table is created by the migrate package.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres returns a store backed by pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Upsert writes one row per district. Existing rows for the same field have
// their value replaced; rows for other fields are untouched.
func (s *PostgresStore) Upsert(ctx context.Context, field string, medians map[string]int64) (int, error) {
	if field == "" {
		return 0, eris.New("summary: field is required")
	}
	if len(medians) == 0 {
		return 0, nil
	}

	districts := make([]string, 0, len(medians))
	for d := range medians {
		districts = append(districts, d)
	}
	sort.Strings(districts)

	rows := make([][]any, 0, len(districts))
	for _, d := range districts {
		rows = append(rows, []any{d, field, medians[d]})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        postgresTable,
		Columns:      []string{"district", "field", "value"},
		ConflictKeys: []string{"district", "field"},
		UpdateCols:   []string{"value"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "summary: upsert %s", field)
	}
	return int(n), nil
}

// Load reads every stored field back into a Summary.
func (s *PostgresStore) Load(ctx context.Context) (Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT district, field, value FROM propmap.district_summary ORDER BY district, field`)
	if err != nil {
		return nil, eris.Wrap(err, "summary: query district_summary")
	}
	defer rows.Close()

	out := Summary{}
	for rows.Next() {
		var district, field string
		var value int64
		if err := rows.Scan(&district, &field, &value); err != nil {
			return nil, eris.Wrap(err, "summary: scan district_summary")
		}
		MergeMedians(out, map[string]int64{district: value}, field)
	}
	return out, eris.Wrap(rows.Err(), "summary: iterate district_summary")
}

// Close does not close the shared pool.
func (s *PostgresStore) Close() error { return nil }

var _ Sink = (*PostgresStore)(nil)
