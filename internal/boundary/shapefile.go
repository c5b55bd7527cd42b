package boundary

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// wgs84SRID is the only SRID propmap stores: lon/lat degrees.
const wgs84SRID = 4326

// ErrProjectedCRS means a shapefile's .prj names a projected system and no
// Transform was supplied to bring it to lon/lat.
var ErrProjectedCRS = eris.New("boundary: shapefile is in a projected CRS; a lon/lat Transform is required")

// Transform maps a source coordinate to longitude/latitude. Shapefiles in a
// national grid are reprojected by the caller's Transform while reading.
type Transform func(x, y float64) (lon, lat float64)

// ShapefileOptions configures ReadShapefile.
type ShapefileOptions struct {
	// KeyField names the attribute used as the feature ID (case-insensitive).
	// Empty leaves IDs unset.
	KeyField string
	// Transform, when set, is applied to every vertex.
	Transform Transform
	// SRID stamped on every geometry when the coordinates are known to be
	// lon/lat (a Transform is set or the .prj is geographic). Defaults to
	// 4326. With no Transform and no .prj the SRID is left unset.
	SRID int
}

// ReadShapefile converts every polygon record in a shapefile into a
// MultiPolygon feature carrying the record's attributes as properties.
// Records with no usable polygon geometry are skipped and logged.
func ReadShapefile(path string, opts ShapefileOptions) (*geojson.FeatureCollection, error) {
	srid, err := shapefileSRID(path, opts)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	keyIdx := -1
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
		if opts.KeyField != "" && strings.EqualFold(names[i], opts.KeyField) {
			keyIdx = i
		}
	}
	if opts.KeyField != "" && keyIdx < 0 {
		return nil, eris.Errorf("boundary: shapefile %s has no field %q", path, opts.KeyField)
	}

	fc := &geojson.FeatureCollection{}
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly, opts.Transform)
		if mp == nil {
			skipped++
			continue
		}

		props := make(map[string]any, len(names))
		for i, name := range names {
			props[name] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}

		feat := &geojson.Feature{
			Geometry:   mp.SetSRID(srid),
			Properties: props,
		}
		if keyIdx >= 0 {
			feat.ID = props[names[keyIdx]].(string)
		}
		fc.Features = append(fc.Features, feat)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("boundary: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return fc, nil
}

// shapefileSRID decides the SRID for a shapefile's geometries from the
// Transform and the sidecar .prj.
func shapefileSRID(path string, opts ShapefileOptions) (int, error) {
	lonLat := opts.SRID
	if lonLat == 0 {
		lonLat = wgs84SRID
	}
	if opts.Transform != nil {
		return lonLat, nil
	}

	wkt, err := readPRJ(path)
	if err != nil {
		return 0, err
	}
	wkt = strings.ToUpper(strings.TrimSpace(wkt))
	switch {
	case wkt == "":
		zap.L().Warn("boundary: shapefile has no .prj, SRID left unset", zap.String("path", path))
		return opts.SRID, nil
	case strings.HasPrefix(wkt, "GEOGCS"), strings.HasPrefix(wkt, "GEOGCRS"), strings.HasPrefix(wkt, "GEODCRS"):
		return lonLat, nil
	case strings.HasPrefix(wkt, "PROJCS"), strings.HasPrefix(wkt, "PROJCRS"):
		return 0, eris.Wrapf(ErrProjectedCRS, "%s", path)
	default:
		return 0, eris.Errorf("boundary: unrecognized coordinate system in .prj for %s", path)
	}
}

// readPRJ returns the WKT beside path, or "" when there is none.
func readPRJ(path string) (string, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range []string{".prj", ".PRJ"} {
		data, err := os.ReadFile(base + ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", eris.Wrapf(err, "boundary: read %s", base+ext)
		}
		return string(data), nil
	}
	return "", nil
}

// polygonToMultiPolygon splits a shapefile polygon's parts into polygons.
// Clockwise parts start a new polygon; counter-clockwise parts are holes of
// the polygon before them.
func polygonToMultiPolygon(p *shp.Polygon, tf Transform) *geom.MultiPolygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var polys [][][]geom.Coord
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 4 {
			zap.L().Debug("boundary: skipping degenerate ring", zap.Int32("part", i))
			continue
		}

		ring := make([]geom.Coord, 0, end-start)
		for _, pt := range p.Points[start:end] {
			x, y := pt.X, pt.Y
			if tf != nil {
				x, y = tf(x, y)
			}
			ring = append(ring, geom.Coord{x, y})
		}

		if signedArea(ring) > 0 && len(polys) > 0 {
			last := len(polys) - 1
			polys[last] = append(polys[last], ring)
			continue
		}
		polys = append(polys, [][]geom.Coord{ring})
	}

	if len(polys) == 0 {
		return nil
	}
	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(polys)
	if err != nil {
		zap.L().Debug("boundary: invalid polygon coordinates", zap.Error(err))
		return nil
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []geom.Coord) float64 {
	var sum float64
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return sum / 2
}
