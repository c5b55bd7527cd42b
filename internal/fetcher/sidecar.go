package fetcher

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// SaveIfChanged downloads rawURL to path unless the server reports that the
// copy already on disk is current. The ETag of the last download is kept in
// path+".etag". It reports whether path was (re)written.
func SaveIfChanged(ctx context.Context, f Fetcher, rawURL, path string) (bool, int64, error) {
	etagPath := path + ".etag"

	var etag string
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(etagPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, 0, eris.Wrapf(err, "read %s", etagPath)
		}
		etag = strings.TrimSpace(string(data))
	}

	body, newETag, changed, err := f.DownloadIfChanged(ctx, rawURL, etag)
	if err != nil {
		return false, 0, err
	}
	if !changed {
		return false, 0, nil
	}
	defer body.Close() //nolint:errcheck

	n, err := writeFileAtomic(path, body)
	if err != nil {
		return false, n, err
	}

	if newETag == "" {
		_ = os.Remove(etagPath)
	} else if err := os.WriteFile(etagPath, []byte(newETag+"\n"), 0o644); err != nil {
		return true, n, eris.Wrapf(err, "write %s", etagPath)
	}
	return true, n, nil
}

// writeFileAtomic copies r to path through a sibling ".part" file.
func writeFileAtomic(path string, r io.Reader) (int64, error) {
	partial := path + ".part"
	file, err := os.Create(partial)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}

	n, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(partial)
		return n, eris.Wrap(err, "write file")
	}

	if err := os.Rename(partial, path); err != nil {
		_ = os.Remove(partial)
		return n, eris.Wrap(err, "rename file")
	}
	return n, nil
}
