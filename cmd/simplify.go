package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/propmap/internal/boundary"
	"github.com/sells-group/propmap/internal/fetcher"
	"github.com/sells-group/propmap/internal/simplify"
)

var (
	simplifyOut       string
	simplifyTolerance float64
	simplifyPrecision int
	simplifyKeyField  string
)

var simplifyCmd = &cobra.Command{
	Use:   "simplify <boundaries.geojson|.shp|.zip>",
	Short: "Simplify and quantize district boundaries",
	Long: `Reads a GeoJSON feature collection, a shapefile, or a zipped shapefile,
simplifies every polygon ring with Douglas-Peucker at the given tolerance,
rounds coordinates to the given number of decimals and writes GeoJSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("tolerance") {
			cfg.Simplify.Tolerance = simplifyTolerance
		}
		if cmd.Flags().Changed("precision") {
			cfg.Simplify.Precision = simplifyPrecision
		}
		if simplifyKeyField != "" {
			cfg.Simplify.KeyField = simplifyKeyField
		}
		if simplifyOut != "" {
			cfg.Simplify.Output = simplifyOut
		}
		if err := cfg.Validate("simplify"); err != nil {
			return err
		}

		stats, err := runSimplify(args[0], cfg.Simplify.Output, cfg.Simplify.KeyField, simplify.Options{
			Tolerance: cfg.Simplify.Tolerance,
			Precision: cfg.Simplify.Precision,
		})
		if err != nil {
			return err
		}

		zap.L().Info("simplify complete",
			zap.String("output", cfg.Simplify.Output),
			zap.Int("features", stats.Features),
			zap.Int("rings", stats.Rings),
			zap.Int("points_in", stats.PointsIn),
			zap.Int("points_out", stats.PointsOut),
		)
		return nil
	},
}

func init() {
	simplifyCmd.Flags().StringVar(&simplifyOut, "out", "", "output GeoJSON path (default from config)")
	simplifyCmd.Flags().Float64Var(&simplifyTolerance, "tolerance", 0, "simplification tolerance in coordinate units")
	simplifyCmd.Flags().IntVar(&simplifyPrecision, "precision", 0, "decimal places kept after quantizing")
	simplifyCmd.Flags().StringVar(&simplifyKeyField, "key-field", "", "shapefile attribute used as feature id")
	rootCmd.AddCommand(simplifyCmd)
}

// runSimplify reads input, simplifies it, and writes GeoJSON to output. The
// output is replaced atomically and only once simplification succeeded.
func runSimplify(input, output, keyField string, opts simplify.Options) (simplify.Stats, error) {
	if err := opts.Validate(); err != nil {
		return simplify.Stats{}, err
	}

	fc, err := readBoundaries(input, keyField)
	if err != nil {
		return simplify.Stats{}, err
	}

	out, stats, err := simplify.Features(fc, opts)
	if err != nil {
		return stats, eris.Wrap(err, "simplify features")
	}

	if err := boundary.WriteGeoJSON(output, out); err != nil {
		return stats, err
	}
	return stats, nil
}

// readBoundaries dispatches on the input extension.
func readBoundaries(input, keyField string) (*geojson.FeatureCollection, error) {
	switch strings.ToLower(filepath.Ext(input)) {
	case ".shp":
		return boundary.ReadShapefile(input, boundary.ShapefileOptions{KeyField: keyField})
	case ".zip":
		dir, err := os.MkdirTemp("", "propmap-shp-*")
		if err != nil {
			return nil, eris.Wrap(err, "create temp dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		shpPath, err := fetcher.ExtractShapefile(input, dir)
		if err != nil {
			return nil, err
		}
		return boundary.ReadShapefile(shpPath, boundary.ShapefileOptions{KeyField: keyField})
	default:
		return boundary.ReadGeoJSON(input)
	}
}
