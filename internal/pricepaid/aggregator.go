package pricepaid

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/propmap/internal/fetcher"
)

// Result is the outcome of one aggregation pass.
type Result struct {
	Medians  map[string]int64 `json:"medians"`
	Counters Counters         `json:"counters"`
}

// Aggregator groups accepted prices by district. It owns its grouping state
// and is not safe for concurrent use; see ParallelRun for the sharded form.
type Aggregator struct {
	p        *parser
	groups   map[string][]int64
	counters Counters
}

// New validates opts and returns an empty Aggregator.
func New(opts Options) (*Aggregator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{
		p:      newParser(opts),
		groups: make(map[string][]int64),
	}, nil
}

// Add validates one record and, when accepted, appends its value to the
// record's district. Rejections only increment a counter.
func (a *Aggregator) Add(fields []string) SkipReason {
	key, value, reason := a.p.parse(fields)
	a.counters.record(reason)
	if reason == Accepted {
		a.groups[key] = append(a.groups[key], value)
	}
	return reason
}

// AddRecord is Add for a streamed record; lines the reader could not split
// count as Malformed.
func (a *Aggregator) AddRecord(rec fetcher.Record) SkipReason {
	if rec.Err != nil {
		a.counters.record(Malformed)
		return Malformed
	}
	return a.Add(rec.Fields)
}

// Counters returns the tallies so far.
func (a *Aggregator) Counters() Counters {
	return a.counters
}

// Groups returns the number of districts seen so far.
func (a *Aggregator) Groups() int {
	return len(a.groups)
}

// Medians computes one median per non-empty district and releases the
// grouping state. The Aggregator is empty afterwards.
func (a *Aggregator) Medians() map[string]int64 {
	out := finalize(a.groups)
	a.groups = make(map[string][]int64)
	return out
}

func finalize(groups map[string][]int64) map[string]int64 {
	out := make(map[string]int64, len(groups))
	for key, values := range groups {
		m, err := Median(values)
		if err != nil {
			continue
		}
		out[key] = m
		delete(groups, key)
	}
	return out
}

// Run drains a record stream into the aggregator and returns the medians.
// Only a failure of the stream itself is returned as an error; the counters
// are filled in either way.
func (a *Aggregator) Run(ctx context.Context, records <-chan fetcher.Record, errs <-chan error) (*Result, error) {
	log := zap.L().With(zap.String("component", "pricepaid.aggregate"))

	for rec := range records {
		a.AddRecord(rec)
		if n := a.counters.Total(); n%5_000_000 == 0 {
			log.Info("progress",
				zap.Int64("records", n),
				zap.Int64("accepted", a.counters.Accepted),
				zap.Int("districts", len(a.groups)),
			)
		}
	}

	if err := drainErr(errs); err != nil {
		return &Result{Counters: a.counters}, err
	}
	if err := ctx.Err(); err != nil {
		return &Result{Counters: a.counters}, err
	}

	return &Result{Medians: a.Medians(), Counters: a.counters}, nil
}

func drainErr(errs <-chan error) error {
	var first error
	for err := range errs {
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}
