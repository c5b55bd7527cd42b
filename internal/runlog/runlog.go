// Package runlog records command runs in propmap.run_log.
package runlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/propmap/internal/db"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Entry is one row of propmap.run_log.
type Entry struct {
	ID          uuid.UUID        `json:"id"`
	Command     string           `json:"command"`
	Status      string           `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Stage       string           `json:"stage,omitempty"`
	Error       string           `json:"error,omitempty"`
	Counters    map[string]int64 `json:"counters,omitempty"`
}

// Log reads and writes run_log rows.
type Log struct {
	pool db.Pool
}

// New returns a Log backed by pool.
func New(pool db.Pool) *Log {
	return &Log{pool: pool}
}

// Start inserts a running entry for command and returns its ID.
func (l *Log) Start(ctx context.Context, command string) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := l.pool.Exec(ctx,
		`INSERT INTO propmap.run_log (id, command, status, started_at) VALUES ($1, $2, 'running', now())`,
		id, command,
	); err != nil {
		return uuid.Nil, eris.Wrapf(err, "runlog: start %s", command)
	}
	return id, nil
}

// Complete marks a run as complete and stores its counters.
func (l *Log) Complete(ctx context.Context, id uuid.UUID, counters map[string]int64) error {
	var data []byte
	if counters != nil {
		var err error
		if data, err = json.Marshal(counters); err != nil {
			return eris.Wrap(err, "runlog: marshal counters")
		}
	}
	if _, err := l.pool.Exec(ctx,
		`UPDATE propmap.run_log SET status = 'complete', completed_at = now(), counters = $1 WHERE id = $2`,
		data, id,
	); err != nil {
		return eris.Wrapf(err, "runlog: complete %s", id)
	}
	return nil
}

// Fail marks a run as failed at stage with runErr's message. Counters
// gathered before the failure are kept when non-nil.
func (l *Log) Fail(ctx context.Context, id uuid.UUID, stage string, runErr error, counters map[string]int64) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	var data []byte
	if counters != nil {
		var err error
		if data, err = json.Marshal(counters); err != nil {
			return eris.Wrap(err, "runlog: marshal counters")
		}
	}
	if _, err := l.pool.Exec(ctx,
		`UPDATE propmap.run_log SET status = 'failed', completed_at = now(), stage = $1, error = $2, counters = $3 WHERE id = $4`,
		stage, msg, data, id,
	); err != nil {
		return eris.Wrapf(err, "runlog: fail %s", id)
	}
	return nil
}

// ListRecent returns up to limit entries, newest first.
func (l *Log) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, command, status, started_at, completed_at, stage, error, counters
		 FROM propmap.run_log ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list recent")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var stage, errStr *string
		var counters []byte
		if err := rows.Scan(&e.ID, &e.Command, &e.Status, &e.StartedAt, &e.CompletedAt, &stage, &errStr, &counters); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if stage != nil {
			e.Stage = *stage
		}
		if errStr != nil {
			e.Error = *errStr
		}
		if len(counters) > 0 {
			if err := json.Unmarshal(counters, &e.Counters); err != nil {
				return nil, eris.Wrapf(err, "runlog: decode counters for %s", e.ID)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
