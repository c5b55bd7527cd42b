package boundary

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodeEWKB encodes g as little-endian EWKB for PostGIS. Polygons are
// promoted to MultiPolygons so one column type holds every district.
func EncodeEWKB(g geom.T) ([]byte, error) {
	switch t := g.(type) {
	case nil:
		return nil, eris.New("boundary: nil geometry")
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(t.Layout()).SetSRID(t.SRID())
		if err := mp.Push(t); err != nil {
			return nil, eris.Wrap(err, "boundary: promote polygon")
		}
		g = mp
	case *geom.MultiPolygon:
	default:
		return nil, eris.Errorf("boundary: unsupported geometry %T", g)
	}

	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: encode EWKB")
	}
	return data, nil
}
