package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFromSchema_EmptyRows(t *testing.T) {
	n, err := CopyFromSchema(context.TODO(), nil, "propmap", "district_boundary", []string{"a"}, [][]any{}, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFromSchema_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"propmap", "district_boundary"}, []string{"a", "b"}).WillReturnResult(5)

	rows := [][]any{{1, "x"}, {2, "y"}, {3, "z"}, {4, "w"}, {5, "v"}}
	n, err := CopyFromSchema(context.Background(), mock, "propmap", "district_boundary", []string{"a", "b"}, rows, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchema_Batches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"propmap", "t"}, []string{"a"}).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"propmap", "t"}, []string{"a"}).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"propmap", "t"}, []string{"a"}).WillReturnResult(1)

	rows := [][]any{{1}, {2}, {3}, {4}, {5}}
	n, err := CopyFromSchema(context.Background(), mock, "propmap", "t", []string{"a"}, rows, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchema_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"propmap", "t"}, []string{"a"}).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyFromSchema(context.Background(), mock, "propmap", "t", []string{"a"}, [][]any{{1}}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO propmap.t")
	assert.NoError(t, mock.ExpectationsWereMet())
}
