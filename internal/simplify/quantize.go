package simplify

import (
	"math"

	"github.com/twpayne/go-geom"
)

// MaxPrecision is the most decimal places Options accepts. At 12 places a
// degree-scale ordinate scales to well under 2^51, where rounding is exact.
const MaxPrecision = 12

// exactLimit bounds |v*scale| for which Round(v*scale)/scale round-trips.
const exactLimit = 1 << 51

// Quantize rounds every ordinate of c to precision decimal places, half away
// from zero. NaN and infinities pass through, as does any ordinate too large
// to round exactly at that precision. Quantizing an already quantized
// coordinate at the same precision returns it unchanged.
func Quantize(c geom.Coord, precision int) geom.Coord {
	scale := math.Pow(10, float64(precision))
	out := make(geom.Coord, len(c))
	for i, v := range c {
		out[i] = quantizeValue(v, scale)
	}
	return out
}

func quantizeValue(v, scale float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scaled := v * scale
	if math.IsInf(scaled, 0) || math.IsNaN(scaled) || math.Abs(scaled) >= exactLimit {
		return v
	}
	return math.Round(scaled) / scale
}

// QuantizeRing quantizes each coordinate of a ring into a new slice.
func QuantizeRing(coords []geom.Coord, precision int) []geom.Coord {
	out := make([]geom.Coord, len(coords))
	for i, c := range coords {
		out[i] = Quantize(c, precision)
	}
	return out
}
