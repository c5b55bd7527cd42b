// Package simplify reduces boundary rings with Douglas-Peucker and quantizes
// their coordinates to a fixed decimal precision.
package simplify

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Distance returns the perpendicular distance from q to the infinite line
// through start and end. The projection is not clamped to the segment: the
// simplifier measures deviation from the chord's line. When start and end are
// the same point it returns the Euclidean distance from q to start.
func Distance(q, start, end geom.Coord) float64 {
	dx := end[0] - start[0]
	dy := end[1] - start[1]
	if dx == 0 && dy == 0 {
		return math.Hypot(q[0]-start[0], q[1]-start[1])
	}

	t := ((q[0]-start[0])*dx + (q[1]-start[1])*dy) / (dx*dx + dy*dy)
	px := start[0] + t*dx
	py := start[1] + t*dy
	return math.Hypot(q[0]-px, q[1]-py)
}
