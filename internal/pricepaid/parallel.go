package pricepaid

import (
	"context"
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/propmap/internal/fetcher"
)

// observation is one accepted (district, price) pair on its way to a shard.
type observation struct {
	key   string
	value int64
}

// ParallelRun is Run split into parse and accumulate stages. Parsers pull
// records concurrently; each accepted observation is routed by an xxh3 hash
// of its district to exactly one shard, so no two goroutines ever append to
// the same district. Medians and counters are identical to Run's.
func ParallelRun(ctx context.Context, opts Options, records <-chan fetcher.Record, errs <-chan error, workers int) (*Result, error) {
	if workers <= 1 {
		a, err := New(opts)
		if err != nil {
			return nil, err
		}
		return a.Run(ctx, records, errs)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)

	shardCh := make([]chan observation, workers)
	shards := make([]map[string][]int64, workers)
	for i := range shardCh {
		shardCh[i] = make(chan observation, 256)
		shards[i] = make(map[string][]int64)
	}

	counters := make([]Counters, workers)
	var parsers sync.WaitGroup

	for w := range workers {
		parsers.Add(1)
		g.Go(func() error {
			defer parsers.Done()
			p := newParser(opts)
			for rec := range records {
				if rec.Err != nil {
					counters[w].record(Malformed)
					continue
				}
				key, value, reason := p.parse(rec.Fields)
				counters[w].record(reason)
				if reason != Accepted {
					continue
				}
				select {
				case shardCh[shardFor(key, workers)] <- observation{key: key, value: value}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		parsers.Wait()
		for _, ch := range shardCh {
			close(ch)
		}
		return nil
	})

	for s := range workers {
		g.Go(func() error {
			for obs := range shardCh[s] {
				shards[s][obs.key] = append(shards[s][obs.key], obs.value)
			}
			return nil
		})
	}

	waitErr := g.Wait()

	var total Counters
	for _, c := range counters {
		total.Merge(c)
	}

	if err := drainErr(errs); err != nil {
		return &Result{Counters: total}, err
	}
	if waitErr != nil {
		return &Result{Counters: total}, waitErr
	}

	medians := make(map[string]int64)
	for _, shard := range shards {
		for k, v := range finalize(shard) {
			medians[k] = v
		}
	}
	return &Result{Medians: medians, Counters: total}, nil
}

func shardFor(key string, n int) int {
	return int(xxh3.HashString(key) % uint64(n))
}
