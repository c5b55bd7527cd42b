package summary

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "summary.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_UpsertAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	n, err := s.Upsert(ctx, "population", map[string]int64{"AB1": 1200, "ZZ9": 40})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Upsert(ctx, MedianPriceField, map[string]int64{"AB1": 100})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, MedianPriceField, map[string]int64{"AB1": 250, "CD2": 90})
	require.NoError(t, err)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{
		"AB1": {"median_price": int64(250), "population": int64(1200)},
		"CD2": {"median_price": int64(90)},
		"ZZ9": {"population": int64(40)},
	}, got)
}

func TestSQLiteStore_UpsertRequiresField(t *testing.T) {
	_, err := newTestSQLite(t).Upsert(context.Background(), "", map[string]int64{"AB1": 1})
	require.Error(t, err)
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	got, err := newTestSQLite(t).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
