package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/propmap/internal/fetcher"
)

var (
	fetchListing string
	fetchFormat  string
	fetchDir     string
	fetchExtract bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url...]",
	Short: "Download price-paid extracts and boundary bundles",
	Long: `Downloads each URL, or every resource of a JSON dataset listing, into the
fetch directory. Files whose ETag has not changed are skipped. Zipped
shapefiles can be extracted in place with --extract.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if fetchDir != "" {
			cfg.Fetch.TempDir = fetchDir
		}
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		if fetchListing == "" && len(args) == 0 {
			return eris.New("fetch: pass at least one url or --listing")
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Fetch.MaxRetries,
		})

		resources := make([]fetcher.Resource, 0, len(args))
		for _, u := range args {
			resources = append(resources, fetcher.Resource{URL: u})
		}
		if fetchListing != "" {
			listed, err := readListing(ctx, f, fetchListing)
			if err != nil {
				return err
			}
			resources = append(resources, fetcher.FilterFormat(listed, fetchFormat)...)
		}

		results, err := fetchAll(ctx, f, resources, cfg.Fetch.TempDir, cfg.Fetch.Concurrency, fetchExtract)
		for _, r := range results {
			status := "unchanged"
			if r.Changed {
				status = fmt.Sprintf("%d bytes", r.Bytes)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Path, status)
		}
		return err
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchListing, "listing", "", "URL of a JSON array of {name,url,format} resources")
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "", "only fetch listing resources of this format")
	fetchCmd.Flags().StringVar(&fetchDir, "dir", "", "download directory (default fetch.temp_dir)")
	fetchCmd.Flags().BoolVar(&fetchExtract, "extract", false, "extract shapefiles from downloaded zips")
	rootCmd.AddCommand(fetchCmd)
}

func readListing(ctx context.Context, f fetcher.Fetcher, listingURL string) ([]fetcher.Resource, error) {
	body, err := f.Download(ctx, listingURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetch listing")
	}
	defer body.Close() //nolint:errcheck

	resCh, errCh := fetcher.DecodeListing(ctx, body)
	var out []fetcher.Resource
	for r := range resCh {
		out = append(out, r)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return out, nil
}

// fetchResult describes one downloaded resource.
type fetchResult struct {
	URL     string
	Path    string
	Changed bool
	Bytes   int64
}

// fetchAll downloads resources into dir with at most concurrency requests in
// flight. Results are returned in input order for the downloads that
// finished; the first failure cancels the rest.
func fetchAll(ctx context.Context, f fetcher.Fetcher, resources []fetcher.Resource, dir string, concurrency int, extract bool) ([]fetchResult, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "fetch: create %s", dir)
	}

	log := zap.L().With(zap.String("component", "fetch"))
	results := make([]fetchResult, len(resources))
	done := make([]bool, len(resources))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, res := range resources {
		g.Go(func() error {
			name, err := resourceFileName(res)
			if err != nil {
				return err
			}
			dest := filepath.Join(dir, name)

			changed, n, err := fetcher.SaveIfChanged(gctx, f, res.URL, dest)
			if err != nil {
				return eris.Wrapf(err, "fetch %s", res.URL)
			}
			log.Info("fetched", zap.String("url", res.URL), zap.String("path", dest), zap.Bool("changed", changed), zap.Int64("bytes", n))

			if extract && changed && strings.EqualFold(filepath.Ext(dest), ".zip") {
				shpDir := strings.TrimSuffix(dest, filepath.Ext(dest))
				if _, err := fetcher.ExtractShapefile(dest, shpDir); err != nil {
					return eris.Wrapf(err, "extract %s", dest)
				}
			}

			mu.Lock()
			results[i] = fetchResult{URL: res.URL, Path: dest, Changed: changed, Bytes: n}
			done[i] = true
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	out := make([]fetchResult, 0, len(resources))
	for i, r := range results {
		if done[i] {
			out = append(out, r)
		}
	}
	return out, err
}

// resourceFileName picks the local name: the last URL path segment, else
// the listing name.
func resourceFileName(res fetcher.Resource) (string, error) {
	u, err := url.Parse(res.URL)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: parse url %q", res.URL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = res.Name
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", eris.Errorf("fetch: cannot name a file for %q", res.URL)
	}
	return name, nil
}
