package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var summaryUpsert = UpsertConfig{
	Table:        "propmap.district_summary",
	Columns:      []string{"district", "field", "value"},
	ConflictKeys: []string{"district", "field"},
	UpdateCols:   []string{"value"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, summaryUpsert, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     UpsertConfig
		wantErr string
	}{
		{"no columns", UpsertConfig{Table: "t", ConflictKeys: []string{"district"}}, "no columns specified"},
		{"no conflict keys", UpsertConfig{Table: "t", Columns: []string{"district"}}, "no conflict keys specified"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BulkUpsert(context.TODO(), nil, tt.cfg, [][]any{{"AB1"}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBulkUpsert_UpdatesOnlyNamedColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_propmap_district_summary"}, []string{"district", "field", "value"}).WillReturnResult(2)
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT ("district", "field") DO UPDATE SET "value" = EXCLUDED."value"`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, summaryUpsert,
		[][]any{{"AB1", "median_price", int64(200)}, {"SW1A", "median_price", int64(900000)}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_DoNothingWhenNoUpdateCols(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_districts"}, []string{"district"}).WillReturnResult(1)
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT ("district") DO NOTHING`)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "districts",
		Columns:      []string{"district"},
		ConflictKeys: []string{"district"},
	}, [][]any{{"AB1"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_StageFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_propmap_district_summary"}, []string{"district", "field", "value"}).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, summaryUpsert, [][]any{{"AB1", "median_price", int64(1)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertConfig_Refreshed(t *testing.T) {
	assert.Equal(t, []string{"value"}, summaryUpsert.refreshed())

	all := UpsertConfig{Columns: []string{"district", "field", "value", "updated_at"}, ConflictKeys: []string{"district", "field"}}
	assert.Equal(t, []string{"value", "updated_at"}, all.refreshed())
}

func TestUpsertConfig_MergeSQL(t *testing.T) {
	assert.Equal(t,
		`INSERT INTO "propmap"."district_summary" ("district", "field", "value") SELECT "district", "field", "value" `+
			`FROM "_tmp_upsert_propmap_district_summary" ON CONFLICT ("district", "field") DO UPDATE SET "value" = EXCLUDED."value"`,
		summaryUpsert.mergeSQL())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"propmap.district_summary", `"propmap"."district_summary"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"district", "field", "value"`, quoteAndJoin([]string{"district", "field", "value"}))
}
