package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/daylight/pkg/config"
	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/grid"
)

func newValidateCommand() *cobra.Command {
	var (
		strict   bool
		printOut bool
		policies []string
	)

	cmd := &cobra.Command{
		Use:   "validate <recipe>",
		Short: "Validate a recipe file",
		Long: `Validate a YAML or CUE recipe without writing any files.

This command checks:
  - Recipe syntax and the #Recipe schema
  - Weather, grid and scene files
  - Sky, hours and parameter values
  - Policy compliance (OPA/rego)`,
		Example: `  # Validate a recipe
  daylight validate recipe.yaml

  # Treat policy warnings as errors
  daylight validate --strict recipe.cue

  # Print the resolved recipe
  daylight validate --print recipe.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log.Info().Str("recipe", args[0]).Bool("strict", strict).Msg("Validating recipe")

			b, err := loadRecipe(ctx, args[0], config.BuildOptions{})
			if err != nil {
				return err
			}

			result, err := checkPolicies(ctx, b, nil, b.File.Remote != nil, policies)
			if err != nil {
				return err
			}
			if strict && len(result.Warnings) > 0 {
				return engine.NewValidationError(
					fmt.Sprintf("%d policy warnings in strict mode", len(result.Warnings)), nil,
				).WithCode(engine.ErrCodePolicyDenied)
			}

			if jsonOutput {
				return printJSON(map[string]interface{}{
					"recipe": b.File,
					"policy": result,
				})
			}
			if printOut {
				return config.Save(os.Stdout, b.File)
			}

			fmt.Printf("✓ %s: %s recipe, %s sky, %d grids, %d points\n",
				b.File.Project, b.Recipe.Name(), b.Sky.Name(), len(b.Grids), grid.TotalPoints(b.Grids))
			if b.Parameters != nil {
				fmt.Printf("  parameters: %s\n", b.Parameters.String())
			}
			fmt.Printf("  policies: %d evaluated, %d warnings\n", len(result.EvaluatedPolicies), len(result.Warnings))
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail on policy warnings")
	cmd.Flags().BoolVar(&printOut, "print", false, "print the resolved recipe as YAML")
	cmd.Flags().StringSliceVar(&policies, "policy", nil, "extra policy files or folders")

	return cmd
}
