package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// shapefileParts are the members of a shapefile bundle the reader needs.
var shapefileParts = map[string]bool{".shp": true, ".shx": true, ".dbf": true, ".prj": true, ".cpg": true}

// ExtractZIP extracts the files accepted by match (all files when match is
// nil) into destDir and returns their paths.
func ExtractZIP(zipPath, destDir string, match func(name string) bool) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if match != nil && !match(f.Name) {
			continue
		}
		path, err := extractZIPEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, path)
	}

	return extracted, nil
}

// ExtractShapefile extracts the first shapefile bundle in a ZIP (boundary
// downloads ship as .shp/.shx/.dbf/.prj) and returns the .shp path.
func ExtractShapefile(zipPath, destDir string) (string, error) {
	paths, err := ExtractZIP(zipPath, destDir, func(name string) bool {
		return shapefileParts[strings.ToLower(filepath.Ext(name))]
	})
	if err != nil {
		return "", err
	}

	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), ".shp") {
			return p, nil
		}
	}
	return "", eris.Errorf("zip: no .shp file in %s", filepath.Base(zipPath))
}

// extractZIPEntry extracts a single zip.File to the destination directory.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}

	return destPath, nil
}
