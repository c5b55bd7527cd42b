// Package boundary reads and writes district boundary datasets: GeoJSON
// feature collections, ESRI shapefiles, and PostGIS tables.
package boundary

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ReadGeoJSON decodes a FeatureCollection from path.
func ReadGeoJSON(path string) (*geojson.FeatureCollection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var fc geojson.FeatureCollection
	if err := json.NewDecoder(f).Decode(&fc); err != nil {
		return nil, eris.Wrapf(err, "boundary: decode %s", path)
	}
	return &fc, nil
}

// WriteGeoJSON encodes fc to path through a temp file and rename. On error
// the destination is left as it was.
func WriteGeoJSON(path string, fc *geojson.FeatureCollection) error {
	if fc == nil {
		return eris.New("boundary: nil feature collection")
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "boundary: encode feature collection")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "boundary: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "boundary: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "boundary: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "boundary: close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "boundary: rename to %s", path)
	}
	return nil
}
