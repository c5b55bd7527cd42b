// Package summary persists per-district metrics. Writers own a single field
// each and merge it into the stored summary without touching other fields.
package summary

import (
	"context"
	"sort"
)

// MedianPriceField is the field the price-paid aggregation writes.
const MedianPriceField = "median_price"

// Entry is the open set of fields stored for one district.
type Entry map[string]any

// Summary maps district keys to their entries.
type Summary map[string]Entry

// Sink is a summary destination. Upsert sets field on every district in
// medians, creating districts as needed, and reports how many were written.
type Sink interface {
	Upsert(ctx context.Context, field string, medians map[string]int64) (int, error)
	Load(ctx context.Context) (Summary, error)
	Close() error
}

// MergeMedians sets field on each district in medians. Districts absent from
// medians and fields other than field are left as they were. existing may be
// nil; the merged summary is returned.
func MergeMedians(existing Summary, medians map[string]int64, field string) Summary {
	if existing == nil {
		existing = make(Summary, len(medians))
	}
	for district, v := range medians {
		e, ok := existing[district]
		if !ok || e == nil {
			e = make(Entry, 1)
			existing[district] = e
		}
		e[field] = v
	}
	return existing
}

// Districts returns the summary keys in sorted order.
func (s Summary) Districts() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
