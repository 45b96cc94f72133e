package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/daylight/pkg/config"
	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/results"
)

func newResultsCommand() *cobra.Command {
	var (
		format  string
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "results <recipe>",
		Short: "Read the results of the last run",
		Long: `Read the result files of a recipe's last successful run into its grids.

Results are only available once the latest run of the written plan has
succeeded; until then this command fails with a state error.`,
		Example: `  # Print results as CSV
  daylight results recipe.yaml

  # Save per-grid summaries as YAML
  daylight results recipe.yaml --format yaml --out results.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			b, err := loadRecipe(ctx, args[0], config.BuildOptions{})
			if err != nil {
				return err
			}
			out, err := loadPlan(planPath(b.File))
			if err != nil {
				return err
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.LatestRun(ctx, out.Plan.ID)
			if err != nil {
				if engine.ErrorCode(err) == engine.ErrCodeNotFound {
					return engine.NewStateError("plan has not been run", err).
						WithCode(engine.ErrCodeNotExecuted).WithResource(out.Plan.ID)
				}
				return err
			}
			log.Debug().Str("run_id", run.ID).Str("status", string(run.Status)).Msg("Reading results")
			if err := out.Collect(run, b.Grids); err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outFile, err)
				}
				defer f.Close()
				w = f
			}

			if jsonOutput {
				return printJSON(results.Summarize(b.Grids))
			}
			switch format {
			case "csv":
				return results.WriteCSV(w, b.Grids)
			case "yaml":
				return results.WriteYAML(w, b.Grids)
			default:
				return engine.NewValidationError(fmt.Sprintf("unknown format %q, expected csv or yaml", format), nil)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv, yaml)")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default: stdout)")

	return cmd
}
