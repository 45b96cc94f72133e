package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/daylight/pkg/config"
	"github.com/openfroyo/daylight/pkg/recipe"
)

func newPlanCommand() *cobra.Command {
	var (
		dotFile  string
		policies []string
	)

	cmd := &cobra.Command{
		Use:   "plan <recipe>",
		Short: "Write the command chain of a recipe",
		Long: `Write the project folder and command script of a recipe without running it.

The plan:
  - Creates the project folder and copies the scene
  - Builds or reuses sky and sun matrices
  - Writes commands.sh with one Radiance command per step
  - Checks the recipe against policies
  - Saves plan.json for 'run' and 'results'`,
		Example: `  # Write the plan
  daylight plan recipe.yaml

  # Write the plan and its step graph
  daylight plan recipe.yaml --dot plan.dot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log.Info().Str("recipe", args[0]).Str("dot", dotFile).Msg("Writing plan")

			b, err := loadRecipe(ctx, args[0], config.BuildOptions{})
			if err != nil {
				return err
			}
			out, err := writePlan(ctx, b, b.File.Remote != nil, policies)
			if err != nil {
				return err
			}

			if dotFile != "" {
				builder, err := out.Plan.BuildDAG()
				if err != nil {
					return err
				}
				if err := os.WriteFile(dotFile, []byte(builder.ToDOT()), 0o644); err != nil {
					return fmt.Errorf("failed to write DOT file: %w", err)
				}
			}

			if jsonOutput {
				return printJSON(out)
			}
			fmt.Printf("✓ Plan %s written for %s\n", out.Plan.ID, out.Plan.Project)
			fmt.Printf("  script:  %s\n", out.ScriptPath)
			fmt.Printf("  steps:   %d (%d reused artifacts)\n", len(out.Plan.Steps), len(out.Plan.Reused))
			fmt.Printf("  results: %d files over %d hours\n", len(out.ResultFiles), len(out.Hours))
			if dotFile != "" {
				fmt.Printf("  graph:   %s\n", dotFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dotFile, "dot", "", "output DOT graph file (optional)")
	cmd.Flags().StringSliceVar(&policies, "policy", nil, "extra policy files or folders")

	return cmd
}

// writePlan writes the recipe, checks it against policies and saves
// plan.json next to the script.
func writePlan(ctx context.Context, b *config.Built, remote bool, policies []string) (*recipe.Output, error) {
	out, err := b.Recipe.Write(ctx, b.File.Target, b.File.Project)
	if err != nil {
		return nil, err
	}
	if _, err := checkPolicies(ctx, b, out.Plan, remote, policies); err != nil {
		return nil, err
	}
	if err := savePlan(planPath(b.File), out); err != nil {
		return nil, err
	}
	log.Info().
		Str("plan_id", out.Plan.ID).
		Int("steps", len(out.Plan.Steps)).
		Int("reused", len(out.Plan.Reused)).
		Msg("Plan written")
	return out, nil
}
