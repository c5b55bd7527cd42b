package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Resource is one downloadable file in a dataset listing, e.g. a yearly
// price-paid extract or a boundary bundle.
type Resource struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Format string `json:"format"`
}

// DecodeListing streams the elements of a JSON array listing
// ([{...},{...}]) onto a channel. Both channels are closed when done.
func DecodeListing(ctx context.Context, r io.Reader) (<-chan Resource, <-chan error) {
	outCh := make(chan Resource, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "listing: read opening token")
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			errCh <- eris.Errorf("listing: expected '[', got %v", tok)
			return
		}

		for decoder.More() {
			var res Resource
			if err := decoder.Decode(&res); err != nil {
				errCh <- eris.Wrap(err, "listing: decode element")
				return
			}
			if res.URL == "" {
				continue
			}

			select {
			case outCh <- res:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "listing: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

// FilterFormat keeps the resources whose format matches (case-insensitive).
// An empty format keeps everything.
func FilterFormat(resources []Resource, format string) []Resource {
	if format == "" {
		return resources
	}
	var out []Resource
	for _, r := range resources {
		if strings.EqualFold(r.Format, format) {
			out = append(out, r)
		}
	}
	return out
}
