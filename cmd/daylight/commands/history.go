package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit  int
		offset int
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "history [project]",
		Short: "List recorded runs",
		Long: `List runs recorded in the run ledger, newest first, or the steps of one run.`,
		Example: `  # Recent runs of every project
  daylight history

  # Runs of one project
  daylight history office --limit 5

  # Steps of a run
  daylight history --run 4b1f...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if runID != "" {
				steps, err := store.ListSteps(ctx, runID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(steps)
				}
				fmt.Fprintln(tw, "#\tSTEP\tSTAGE\tSTATUS\tDURATION\tERROR")
				for _, s := range steps {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
						s.ExecutionOrder, s.StepID, s.Stage, s.Status, s.Duration.Round(time.Millisecond), s.Error)
				}
				return nil
			}

			project := ""
			if len(args) > 0 {
				project = args[0]
			}
			runs, err := store.ListRuns(ctx, project, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(runs)
			}
			fmt.Fprintln(tw, "RUN\tPROJECT\tSTATUS\tSTARTED\tDURATION\tSTEPS")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\n",
					r.ID, r.Project, r.Status, r.StartedAt.Local().Format(time.DateTime),
					r.Duration.Round(time.Millisecond), r.Summary.Succeeded, r.Summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	cmd.Flags().StringVar(&runID, "run", "", "list the steps of this run")

	return cmd
}
