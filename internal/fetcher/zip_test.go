package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestExtractZIP_All(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"pp-2024.csv":     "a,b",
		"docs/readme.txt": "hello",
	})

	destDir := t.TempDir()
	extracted, err := ExtractZIP(zipPath, destDir, nil)
	require.NoError(t, err)
	assert.Len(t, extracted, 2)

	data, err := os.ReadFile(filepath.Join(destDir, "docs", "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestExtractZIP_Match(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"a.csv": "1",
		"b.txt": "2",
	})

	extracted, err := ExtractZIP(zipPath, t.TempDir(), func(name string) bool {
		return strings.HasSuffix(name, ".csv")
	})
	require.NoError(t, err)
	require.Len(t, extracted, 1)
	assert.Equal(t, "a.csv", filepath.Base(extracted[0]))
}

func TestExtractZIP_ZipSlip(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"../evil.txt": "x"})
	_, err := ExtractZIP(zipPath, t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestExtractZIP_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))
	_, err := ExtractZIP(path, t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip: open archive")
}

func TestExtractShapefile(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"districts/Districts.SHP": "shp",
		"districts/Districts.shx": "shx",
		"districts/Districts.dbf": "dbf",
		"districts/metadata.xml":  "xml",
	})

	destDir := t.TempDir()
	shp, err := ExtractShapefile(zipPath, destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "districts", "Districts.SHP"), shp)

	_, err = os.Stat(filepath.Join(destDir, "districts", "metadata.xml"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractShapefile_Missing(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"a.dbf": "dbf"})
	_, err := ExtractShapefile(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .shp file")
}
