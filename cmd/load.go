package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/propmap/internal/boundary"
)

var loadKeyProp string

var loadCmd = &cobra.Command{
	Use:   "load <boundaries.geojson|.shp|.zip>",
	Short: "Load district boundaries into PostGIS",
	Long:  "Replaces propmap.district_boundary with the features of a boundary dataset. Run migrate first.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("load"); err != nil {
			return err
		}

		fc, err := readBoundaries(args[0], loadKeyProp)
		if err != nil {
			return err
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		res, err := boundary.Load(ctx, pool, fc, loadKeyProp)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "loaded %d boundaries (%d skipped, %d merged)\n", res.Loaded, res.Skipped, res.Merged)
		return nil
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadKeyProp, "key-prop", "name", "feature property holding the district key")
	rootCmd.AddCommand(loadCmd)
}
