package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/daylight/pkg/config"
	"github.com/openfroyo/daylight/pkg/sky"
)

func newSunMatrixCommand() *cobra.Command {
	var (
		weaPath string
		outDir  string
		hours   []int
		north   float64
		noReuse bool
	)

	cmd := &cobra.Command{
		Use:   "sunmatrix",
		Short: "Build a sun matrix from a weather file",
		Long: `Build the analemma, sun list and sun matrix of a .wea weather file.

One sun is kept per hour with direct normal irradiance. An earlier build for
the same location, north and hours is reused unless --no-reuse is given.`,
		Example: `  # Every hour of the year
  daylight sunmatrix --wea boston.wea --out skies

  # Office hours of the first day, rotated north
  daylight sunmatrix --wea boston.wea --out skies --hours 8,9,10,11,12 --north 15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			wea, err := config.LoadWeather(weaPath)
			if err != nil {
				return err
			}
			hourSet := sky.AllHours()
			if len(hours) > 0 {
				if hourSet, err = sky.NewHourSet(hours); err != nil {
					return err
				}
			}
			m, err := sky.NewSunMatrix(wea, north, hourSet)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", outDir, err)
			}
			log.Info().
				Str("wea", weaPath).
				Str("out", outDir).
				Int("hours", hourSet.Len()).
				Float64("north", north).
				Msg("Building sun matrix")

			artifacts, err := m.Build(ctx, outDir, !noReuse)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(artifacts)
			}
			state := "built"
			if artifacts.Reused {
				state = "reused"
			}
			fmt.Printf("✓ Sun matrix %s with %d suns\n", state, artifacts.Suns)
			fmt.Printf("  analemma: %s\n", artifacts.Analemma)
			fmt.Printf("  sun list: %s\n", artifacts.SunList)
			fmt.Printf("  matrix:   %s\n", artifacts.Matrix)
			return nil
		},
	}

	cmd.Flags().StringVar(&weaPath, "wea", "", "weather file (.wea)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "skies", "output folder")
	cmd.Flags().IntSliceVar(&hours, "hours", nil, "hours of year (default: all)")
	cmd.Flags().Float64Var(&north, "north", 0, "north rotation in degrees")
	cmd.Flags().BoolVar(&noReuse, "no-reuse", false, "always rebuild the matrix")
	_ = cmd.MarkFlagRequired("wea")

	return cmd
}
