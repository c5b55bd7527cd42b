package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// FileStore keeps the summary as a single JSON object on disk.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore for path. The file need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

// Load reads the summary. A missing file is an empty summary.
func (f *FileStore) Load(_ context.Context) (Summary, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Summary{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "summary: read %s", f.path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Summary{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var s Summary
	if err := dec.Decode(&s); err != nil {
		return nil, eris.Wrapf(err, "summary: decode %s", f.path)
	}
	if s == nil {
		s = Summary{}
	}
	return s, nil
}

// Save writes s to a temp file beside the target and renames it into place,
// so readers never observe a partially written summary.
func (f *FileStore) Save(_ context.Context, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return eris.Wrap(err, "summary: encode")
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "summary: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "summary: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "summary: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "summary: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "summary: close %s", tmpName)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return eris.Wrapf(err, "summary: rename to %s", f.path)
	}
	return nil
}

// Upsert merges medians into the stored summary under field.
func (f *FileStore) Upsert(ctx context.Context, field string, medians map[string]int64) (int, error) {
	existing, err := f.Load(ctx)
	if err != nil {
		return 0, err
	}
	if err := f.Save(ctx, MergeMedians(existing, medians, field)); err != nil {
		return 0, err
	}
	return len(medians), nil
}

// Close is a no-op.
func (f *FileStore) Close() error { return nil }

var _ Sink = (*FileStore)(nil)
