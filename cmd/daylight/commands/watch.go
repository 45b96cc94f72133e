package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/daylight/pkg/config"
	"github.com/openfroyo/daylight/pkg/engine"
)

func newWatchCommand() *cobra.Command {
	var (
		execute  bool
		policies []string
	)

	cmd := &cobra.Command{
		Use:   "watch <recipe>",
		Short: "Rewrite the plan when the recipe changes",
		Long: `Watch a recipe and the weather, grid, scene and script files it reads.
After every change the plan is written again; with --run it is also executed
locally. Unchanged matrices are reused, so only affected steps cost time.

Stop watching with Ctrl-C.`,
		Example: `  # Rewrite the plan on every save
  daylight watch recipe.yaml

  # Rerun the study on every save
  daylight watch recipe.yaml --run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var runner *engine.Runner
			if execute {
				store, err := openStore(ctx)
				if err != nil {
					return err
				}
				defer store.Close()
				runner = engine.NewRunner(engine.NewLocalExecutor(), engine.WithRunStore(store))
			}

			watcher := config.NewWatcher(config.NewLoader(), args[0], log.Logger)
			log.Info().Str("recipe", args[0]).Bool("run", execute).Msg("Watching recipe")
			return watcher.Watch(ctx, func(ctx context.Context, f *config.RecipeFile) error {
				return replan(ctx, f, runner, policies)
			})
		},
	}

	cmd.Flags().BoolVar(&execute, "run", false, "run the plan locally after writing it")
	cmd.Flags().StringSliceVar(&policies, "policy", nil, "extra policy files or folders")

	return cmd
}

// replan builds and writes a reloaded recipe, then runs it when runner is
// set.
func replan(ctx context.Context, f *config.RecipeFile, runner *engine.Runner, policies []string) error {
	b, err := config.Build(ctx, f, config.BuildOptions{})
	if err != nil {
		return err
	}
	out, err := writePlan(ctx, b, false, policies)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Plan %s: %d steps, %d reused artifacts\n", out.Plan.ID, len(out.Plan.Steps), len(out.Plan.Reused))
	if runner == nil {
		return nil
	}

	run, err := runner.Run(ctx, out.Plan)
	if run != nil {
		printRun(run)
	}
	return err
}
