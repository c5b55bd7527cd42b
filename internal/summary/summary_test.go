package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeMedians_NilExisting(t *testing.T) {
	got := MergeMedians(nil, map[string]int64{"AB1": 250}, MedianPriceField)
	assert.Equal(t, Summary{"AB1": {"median_price": int64(250)}}, got)
}

func TestMergeMedians_PreservesUnrelatedFields(t *testing.T) {
	existing := Summary{
		"AB1": {"median_price": int64(1), "population": 1200},
		"ZZ9": {"population": 40},
	}
	got := MergeMedians(existing, map[string]int64{"AB1": 250, "CD2": 90}, MedianPriceField)

	assert.Equal(t, Summary{
		"AB1": {"median_price": int64(250), "population": 1200},
		"CD2": {"median_price": int64(90)},
		"ZZ9": {"population": 40},
	}, got)
}

func TestMergeMedians_NilEntry(t *testing.T) {
	got := MergeMedians(Summary{"AB1": nil}, map[string]int64{"AB1": 5}, "x")
	assert.Equal(t, Entry{"x": int64(5)}, got["AB1"])
}

func TestSummary_Districts(t *testing.T) {
	s := Summary{"ZZ9": {}, "AB1": {}, "M1": {}}
	assert.Equal(t, []string{"AB1", "M1", "ZZ9"}, s.Districts())
}
