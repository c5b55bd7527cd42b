package boundary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/propmap/internal/db"
)

const (
	boundarySchema = "propmap"
	boundaryTable  = "district_boundary"
	loadBatchSize  = 5000
)

var boundaryColumns = []string{"district", "properties", "geom"}

// ErrNotLonLat means a geometry cannot be stored as SRID 4326.
var ErrNotLonLat = eris.New("boundary: geometry is not in lon/lat degrees")

// LoadResult reports what Load wrote.
type LoadResult struct {
	Loaded  int64 `json:"loaded"`
	Skipped int   `json:"skipped"`
	Merged  int   `json:"merged"` // features folded into an earlier one with the same key
}

// Load replaces propmap.district_boundary with the features in fc inside one
// transaction, so a failed load keeps the previous boundaries. The
// district key is read from the keyProp property, falling back to the
// feature ID. Features with no key or a non-polygon geometry are skipped.
// Features sharing a key become one MultiPolygon carrying the first
// feature's properties. Geometries must be lon/lat: SRID 4326 or unset.
func Load(ctx context.Context, pool db.Pool, fc *geojson.FeatureCollection, keyProp string) (*LoadResult, error) {
	log := zap.L().With(zap.String("component", "boundary.load"))

	rows, res, err := boundaryRows(fc, keyProp)
	if err != nil {
		return nil, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE %s.%s", boundarySchema, boundaryTable)); err != nil {
		return nil, eris.Wrap(err, "boundary: truncate district_boundary")
	}

	n, err := db.CopyFromSchema(ctx, tx, boundarySchema, boundaryTable, boundaryColumns, rows, loadBatchSize)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: load district_boundary")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "boundary: commit")
	}

	res.Loaded = n
	log.Info("boundaries loaded",
		zap.Int64("rows", n),
		zap.Int("skipped", res.Skipped),
		zap.Int("merged", res.Merged),
	)
	return &res, nil
}

type district struct {
	key   string
	props map[string]any
	mp    *geom.MultiPolygon
}

func boundaryRows(fc *geojson.FeatureCollection, keyProp string) ([][]any, LoadResult, error) {
	var res LoadResult
	if fc == nil {
		return nil, res, eris.New("boundary: nil feature collection")
	}

	var order []*district
	byKey := make(map[string]*district, len(fc.Features))
	for _, f := range fc.Features {
		key := featureKey(f, keyProp)
		if key == "" || !polygonal(f.Geometry) {
			res.Skipped++
			continue
		}
		if err := checkLonLat(key, f.Geometry); err != nil {
			return nil, res, err
		}

		d, ok := byKey[key]
		if ok {
			res.Merged++
		} else {
			d = &district{
				key:   key,
				props: f.Properties,
				mp:    geom.NewMultiPolygon(f.Geometry.Layout()).SetSRID(wgs84SRID),
			}
			byKey[key] = d
			order = append(order, d)
		}
		if err := pushPolygons(d.mp, f.Geometry); err != nil {
			return nil, res, eris.Wrapf(err, "boundary: merge geometry for %s", key)
		}
	}

	rows := make([][]any, 0, len(order))
	for _, d := range order {
		wkb, err := EncodeEWKB(d.mp)
		if err != nil {
			return nil, res, eris.Wrapf(err, "boundary: encode geometry for %s", d.key)
		}
		props, err := json.Marshal(d.props)
		if err != nil {
			return nil, res, eris.Wrapf(err, "boundary: encode properties for %s", d.key)
		}
		rows = append(rows, []any{d.key, props, wkb})
	}
	return rows, res, nil
}

func polygonal(g geom.T) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return t != nil
	case *geom.MultiPolygon:
		return t != nil
	}
	return false
}

func pushPolygons(dst *geom.MultiPolygon, g geom.T) error {
	switch t := g.(type) {
	case *geom.Polygon:
		return dst.Push(t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if err := dst.Push(t.Polygon(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return eris.Errorf("boundary: unsupported geometry %T", g)
}

// checkLonLat rejects geometries tagged with another SRID or whose bounds
// fall outside lon/lat ranges, such as grid metres read without a Transform.
func checkLonLat(key string, g geom.T) error {
	if srid := g.SRID(); srid != 0 && srid != wgs84SRID {
		return eris.Wrapf(ErrNotLonLat, "%s has SRID %d", key, srid)
	}
	b := g.Bounds()
	if b.IsEmpty() {
		return nil
	}
	if b.Min(0) < -180 || b.Max(0) > 180 || b.Min(1) < -90 || b.Max(1) > 90 {
		return eris.Wrapf(ErrNotLonLat, "%s spans x %g..%g, y %g..%g",
			key, b.Min(0), b.Max(0), b.Min(1), b.Max(1))
	}
	return nil
}

func featureKey(f *geojson.Feature, keyProp string) string {
	if keyProp != "" {
		if v, ok := f.Properties[keyProp]; ok && v != nil {
			return strings.ToUpper(strings.TrimSpace(fmt.Sprint(v)))
		}
	}
	return strings.ToUpper(strings.TrimSpace(f.ID))
}
