package pricepaid

import (
	"slices"

	"github.com/rotisserie/eris"
)

// ErrEmpty is returned when a median is requested for no values.
var ErrEmpty = eris.New("pricepaid: median of empty collection")

// Median sorts values in place and returns the middle element. For an even
// count it returns the mean of the two middle elements rounded half up, so
// [1 3 5 7] -> 4 and [100 201] -> 151. Values must be non-negative.
func Median(values []int64) (int64, error) {
	n := len(values)
	if n == 0 {
		return 0, ErrEmpty
	}

	slices.Sort(values)
	if n%2 == 1 {
		return values[n/2], nil
	}
	return roundedMean(values[n/2-1], values[n/2]), nil
}

// roundedMean is (a+b)/2 rounded half up without overflowing for a, b >= 0.
func roundedMean(a, b int64) int64 {
	return a/2 + b/2 + (a%2+b%2+1)/2
}
