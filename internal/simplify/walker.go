package simplify

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// Sentinel errors for invalid simplification parameters.
var (
	ErrNegativeTolerance = eris.New("simplify: tolerance must be >= 0")
	ErrNegativePrecision = eris.New("simplify: precision must be >= 0")
	ErrPrecisionTooLarge = eris.New("simplify: precision exceeds MaxPrecision")
)

// Options controls ring simplification and coordinate quantization.
type Options struct {
	Tolerance float64 // max perpendicular deviation, in coordinate units
	Precision int     // decimal places kept after simplification
}

// Validate rejects parameters that must never reach the simplifier.
func (o Options) Validate() error {
	if o.Tolerance < 0 {
		return eris.Wrapf(ErrNegativeTolerance, "got %v", o.Tolerance)
	}
	if o.Precision < 0 {
		return eris.Wrapf(ErrNegativePrecision, "got %d", o.Precision)
	}
	if o.Precision > MaxPrecision {
		return eris.Wrapf(ErrPrecisionTooLarge, "got %d, max %d", o.Precision, MaxPrecision)
	}
	return nil
}

// Stats summarizes one simplification pass.
type Stats struct {
	Features    int `json:"features" yaml:"features"`
	Passthrough int `json:"passthrough" yaml:"passthrough"`
	Rings       int `json:"rings" yaml:"rings"`
	PointsIn    int `json:"points_in" yaml:"points_in"`
	PointsOut   int `json:"points_out" yaml:"points_out"`
}

func (s *Stats) add(o Stats) {
	s.Features += o.Features
	s.Passthrough += o.Passthrough
	s.Rings += o.Rings
	s.PointsIn += o.PointsIn
	s.PointsOut += o.PointsOut
}

// Geometry simplifies then quantizes every ring of a Polygon or MultiPolygon.
// Other geometry kinds, including nil, are returned as-is. The SRID of the
// input is carried over to the result.
func Geometry(g geom.T, opts Options) (geom.T, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	out, _, err := walk(g, opts)
	return out, err
}

func walk(g geom.T, opts Options) (geom.T, Stats, error) {
	var st Stats

	switch t := g.(type) {
	case *geom.Polygon:
		coords := rings(t.Coords(), opts, &st)
		p, err := geom.NewPolygon(t.Layout()).SetCoords(coords)
		if err != nil {
			return nil, st, eris.Wrap(err, "simplify: rebuild polygon")
		}
		return p.SetSRID(t.SRID()), st, nil

	case *geom.MultiPolygon:
		polys := t.Coords()
		coords := make([][][]geom.Coord, len(polys))
		for i, poly := range polys {
			coords[i] = rings(poly, opts, &st)
		}
		mp, err := geom.NewMultiPolygon(t.Layout()).SetCoords(coords)
		if err != nil {
			return nil, st, eris.Wrap(err, "simplify: rebuild multipolygon")
		}
		return mp.SetSRID(t.SRID()), st, nil

	default:
		st.Passthrough++
		return g, st, nil
	}
}

// rings simplifies before quantizing: the chord distances are measured at
// full precision.
func rings(in [][]geom.Coord, opts Options, st *Stats) [][]geom.Coord {
	out := make([][]geom.Coord, len(in))
	for i, r := range in {
		reduced := Ring(r, opts.Tolerance)
		out[i] = QuantizeRing(reduced, opts.Precision)
		st.Rings++
		st.PointsIn += len(r)
		st.PointsOut += len(reduced)
	}
	return out
}

// Features applies Geometry to every feature of fc. IDs and properties are
// carried over untouched; a feature that had a bounding box gets one
// recomputed from its new geometry.
func Features(fc *geojson.FeatureCollection, opts Options) (*geojson.FeatureCollection, Stats, error) {
	var total Stats
	if err := opts.Validate(); err != nil {
		return nil, total, err
	}
	if fc == nil {
		return &geojson.FeatureCollection{}, total, nil
	}

	out := &geojson.FeatureCollection{
		BBox:     fc.BBox,
		Features: make([]*geojson.Feature, 0, len(fc.Features)),
	}

	for i, f := range fc.Features {
		if f == nil {
			continue
		}
		g, st, err := walk(f.Geometry, opts)
		if err != nil {
			return nil, total, eris.Wrapf(err, "simplify: feature %d", i)
		}
		st.Features = 1
		total.add(st)

		nf := &geojson.Feature{
			ID:         f.ID,
			Geometry:   g,
			Properties: f.Properties,
		}
		if f.BBox != nil && g != nil {
			nf.BBox = g.Bounds()
		}
		out.Features = append(out.Features, nf)
	}

	zap.L().Debug("simplify: features done",
		zap.Int("features", total.Features),
		zap.Int("rings", total.Rings),
		zap.Int("points_in", total.PointsIn),
		zap.Int("points_out", total.PointsOut),
	)

	return out, total, nil
}
