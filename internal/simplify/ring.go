package simplify

import (
	"sort"

	"github.com/twpayne/go-geom"
)

// minRingPoints is the smallest ring the simplifier will touch. Anything
// shorter is already minimal.
const minRingPoints = 4

// span is a pending [start, end] index range on the work stack.
type span struct {
	start, end int
}

// Ring simplifies one closed ring with Douglas-Peucker at the given tolerance
// and returns a new slice; coords is not modified. The first and last points
// are always kept and the relative order of kept points is preserved. When
// several interior points share the maximum distance the lowest index wins.
//
// The caller must validate tolerance (see Options.Validate); a negative value
// behaves like zero.
func Ring(coords []geom.Coord, tolerance float64) []geom.Coord {
	if len(coords) < minRingPoints {
		return cloneCoords(coords)
	}

	keep := keptIndices(coords, tolerance)

	out := make([]geom.Coord, 0, len(keep))
	for _, idx := range keep {
		out = append(out, cloneCoord(coords[idx]))
	}
	return out
}

// keptIndices runs the interval partitioning with an explicit stack so very
// large rings cannot exhaust the call stack. Left halves are popped before
// right halves, the same visiting order as the recursive formulation.
func keptIndices(coords []geom.Coord, tolerance float64) []int {
	last := len(coords) - 1
	keep := []int{0, last}

	stack := []span{{start: 0, end: last}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.end <= s.start+1 {
			continue
		}

		maxDist := -1.0
		maxIdx := -1
		for i := s.start + 1; i < s.end; i++ {
			d := Distance(coords[i], coords[s.start], coords[s.end])
			if d > maxDist {
				maxDist = d
				maxIdx = i
			}
		}

		if maxIdx < 0 || maxDist <= tolerance {
			continue
		}

		keep = append(keep, maxIdx)
		stack = append(stack,
			span{start: maxIdx, end: s.end},
			span{start: s.start, end: maxIdx},
		)
	}

	sort.Ints(keep)
	return keep
}

func cloneCoords(coords []geom.Coord) []geom.Coord {
	out := make([]geom.Coord, len(coords))
	for i, c := range coords {
		out[i] = cloneCoord(c)
	}
	return out
}

func cloneCoord(c geom.Coord) geom.Coord {
	return append(geom.Coord(nil), c...)
}
