package pricepaid

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/propmap/internal/fetcher"
)

var testCutoff = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a, err := New(DefaultOptions(testCutoff))
	require.NoError(t, err)
	return a
}

func row(value, date, postcode string) []string {
	return []string{"{GUID}", value, date, postcode, "D", "N", "F"}
}

func TestAggregator_EndToEndMedian(t *testing.T) {
	a := newTestAggregator(t)
	for _, v := range []string{"100", "300", "200"} {
		assert.Equal(t, Accepted, a.Add(row(v, "2024-05-01 00:00", "AB1 2CD")))
	}

	medians := a.Medians()
	assert.Equal(t, map[string]int64{"AB1": 200}, medians)
	assert.Equal(t, int64(3), a.Counters().Accepted)
	assert.Equal(t, 0, a.Groups())
}

func TestAggregator_DistinctGroups(t *testing.T) {
	a := newTestAggregator(t)
	a.Add(row("500000", "2024-01-01", "SW1A 1AA"))
	a.Add(row("400000", "2024-01-01", "SW1 2BB"))

	assert.Equal(t, map[string]int64{"SW1A": 500000, "SW1": 400000}, a.Medians())
}

func TestAggregator_SkipReasons(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		want   SkipReason
	}{
		{"too few fields", []string{"{GUID}", "100"}, TooFewFields},
		{"non numeric", row("abc", "2024-01-01", "AB1 2CD"), BadValue},
		{"decimal", row("100.5", "2024-01-01", "AB1 2CD"), BadValue},
		{"zero", row("0", "2024-01-01", "AB1 2CD"), BadValue},
		{"negative", row("-5", "2024-01-01", "AB1 2CD"), BadValue},
		{"bad date", row("100", "01/02/2024", "AB1 2CD"), BadDate},
		{"stale", row("100", "2022-12-31 00:00", "AB1 2CD"), StaleDate},
		{"no space in key", row("100", "2024-01-01", "AB12CD"), BadKey},
		{"empty key", row("100", "2024-01-01", ""), BadKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAggregator(t)
			assert.Equal(t, tt.want, a.Add(tt.fields))
			assert.Equal(t, 0, a.Groups(), "rejected record must not create a group")
			assert.Equal(t, int64(1), a.Counters().Skipped())
		})
	}
}

func TestAggregator_CutoffDayIsInclusive(t *testing.T) {
	a := newTestAggregator(t)
	assert.Equal(t, Accepted, a.Add(row("100", "2023-01-01 00:00", "AB1 2CD")))
}

func TestAggregator_StaleRecordExcludedFromGroup(t *testing.T) {
	a := newTestAggregator(t)
	a.Add(row("100", "2024-01-01", "AB1 2CD"))
	a.Add(row("999999", "2019-01-01", "AB1 9ZZ"))
	a.Add(row("300", "2024-01-01", "AB1 2CD"))

	assert.Equal(t, map[string]int64{"AB1": 200}, a.Medians())
	assert.Equal(t, int64(1), a.Counters().StaleDate)
}

func TestAggregator_MalformedLineDoesNotMutateGroups(t *testing.T) {
	a := newTestAggregator(t)
	a.Add(row("100", "2024-01-01", "AB1 2CD"))

	assert.Equal(t, TooFewFields, a.Add([]string{"x", "y"}))
	assert.Equal(t, Malformed, a.AddRecord(fetcher.Record{Err: errors.New("bad quote")}))

	assert.Equal(t, 1, a.Groups())
	assert.Equal(t, map[string]int64{"AB1": 100}, a.Medians())
	c := a.Counters()
	assert.Equal(t, int64(1), c.TooFewFields)
	assert.Equal(t, int64(1), c.Malformed)
	assert.Equal(t, int64(2), c.Skipped())
	assert.Equal(t, int64(3), c.Total())
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(Options{ValueField: 1, DateField: 2, KeyField: 3, MinFields: 2})
	assert.Error(t, err)
}

const sampleCSV = `"{A}","100","2024-01-02 00:00","AB1 2CD","D","N","F"
"{B}","200","2024-02-02 00:00","ab1 3EF","S","N","F"
"{C}","300","2024-03-02 00:00","AB1 4GH","T","N","F"
"{D}","1000","2024-03-02 00:00","ZZ9 9ZZ","T","N","L"
"{E}","2000","2024-03-02 00:00","ZZ9 1AA","T","N","L"
"{F}","5","2010-03-02 00:00","ZZ9 1AA","T","N","L"
"{G}","oops","2024-03-02 00:00","ZZ9 1AA"
"{H}","7","2024-03-02 00:00"
"{I}","9","2024-03-02 00:00","NOSPACE"
"{J}","8","2024-03-02 00:00","broken
"{K}","400","2024-04-02 00:00","AB1 5JK","F","N","F"
`

func TestAggregator_Run(t *testing.T) {
	recCh, errCh := fetcher.StreamRecords(context.Background(), strings.NewReader(sampleCSV), fetcher.RecordOptions{})
	a := newTestAggregator(t)

	res, err := a.Run(context.Background(), recCh, errCh)
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"AB1": 250, "ZZ9": 1500}, res.Medians)
	assert.Equal(t, Counters{
		Accepted:     6,
		TooFewFields: 1,
		BadValue:     1,
		StaleDate:    1,
		BadKey:       1,
		Malformed:    1,
	}, res.Counters)
}

func TestAggregator_RunStreamFailure(t *testing.T) {
	input := sampleCSV + `"{Z}","1","2024-01-01","AB1 `
	recCh, errCh := fetcher.StreamRecords(context.Background(), strings.NewReader(input), fetcher.RecordOptions{})
	a := newTestAggregator(t)

	res, err := a.Run(context.Background(), recCh, errCh)
	require.Error(t, err)
	assert.ErrorIs(t, err, fetcher.ErrTruncated)
	require.NotNil(t, res)
	assert.Nil(t, res.Medians)
	assert.Equal(t, int64(11), res.Counters.Total())
}

func TestCounters_Map(t *testing.T) {
	c := Counters{Accepted: 3, BadKey: 2}
	m := c.Map()
	assert.Equal(t, int64(3), m["accepted"])
	assert.Equal(t, int64(2), m["bad_key"])
	assert.Len(t, m, 7)
}
