package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/daylight/pkg/config"
	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/results"
	"github.com/openfroyo/daylight/pkg/telemetry"
	sshtransport "github.com/openfroyo/daylight/pkg/transports/ssh"
)

// remoteFlags override or replace the remote block of a recipe.
type remoteFlags struct {
	host       string
	user       string
	port       int
	key        string
	knownHosts string
	root       string
	local      bool
}

func newRunCommand() *cobra.Command {
	var (
		remote       remoteFlags
		policies     []string
		csvPath      string
		metricsAddr  string
		otlpEndpoint string
	)

	cmd := &cobra.Command{
		Use:   "run <recipe>",
		Short: "Write and execute a recipe",
		Long: `Write the plan of a recipe, execute its steps and read back the results.

Steps run locally unless a render host is given with --host or in the
recipe's remote block. Remote runs upload the project folder over SFTP, run
each step over SSH and download the result files.

Every run and step is recorded in the run ledger (--db).`,
		Example: `  # Run locally
  daylight run recipe.yaml

  # Run on a render host and save the results
  daylight run recipe.yaml --host render01 --user radiance --csv results.csv

  # Expose metrics while running
  daylight run recipe.yaml --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tcfg := telemetry.DefaultConfig()
			if verbose {
				tcfg.Logging.Level = "debug"
			}
			tcfg.Metrics.ListenAddress = metricsAddr
			if otlpEndpoint != "" {
				tcfg.Tracing.Enabled = true
				tcfg.Tracing.Exporter = "otlp"
				tcfg.Tracing.Endpoint = otlpEndpoint
			}
			tel, err := telemetry.NewTelemetry(tcfg)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := tel.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Telemetry shutdown failed")
				}
			}()
			if err := tel.StartMetricsServer(); err != nil {
				return err
			}

			b, err := loadRecipe(ctx, args[0], config.BuildOptions{Recorder: tel.Metrics})
			if err != nil {
				return err
			}
			rc := remote.resolve(b.File.Remote)

			out, err := writePlan(ctx, b, rc != nil, policies)
			if err != nil {
				return err
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			executor, closeExecutor, err := newExecutor(ctx, rc)
			if err != nil {
				return err
			}
			defer closeExecutor()

			runner := engine.NewRunner(executor,
				engine.WithRunStore(store),
				engine.WithObserver(tel.Observer()),
			)
			run, runErr := runner.Run(ctx, out.Plan)
			if run != nil && !jsonOutput {
				printRun(run)
			}
			if runErr != nil {
				return runErr
			}

			if err := out.Collect(run, b.Grids); err != nil {
				return err
			}
			if csvPath != "" {
				f, err := os.Create(csvPath)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", csvPath, err)
				}
				defer f.Close()
				if err := results.WriteCSV(f, b.Grids); err != nil {
					return err
				}
			}

			summaries := results.Summarize(b.Grids)
			if jsonOutput {
				return printJSON(map[string]interface{}{"run": run, "grids": summaries})
			}
			for _, s := range summaries {
				fmt.Printf("  %s: %d points, hourly averages %v\n", s.Name, s.Points, s.Average)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&remote.host, "host", "", "render host (overrides the recipe)")
	cmd.Flags().StringVar(&remote.user, "user", os.Getenv("USER"), "render host user")
	cmd.Flags().IntVar(&remote.port, "port", 0, "render host SSH port")
	cmd.Flags().StringVar(&remote.key, "key", "", "SSH private key")
	cmd.Flags().StringVar(&remote.knownHosts, "known-hosts", "", "known_hosts file")
	cmd.Flags().StringVar(&remote.root, "remote-root", "", "project root on the render host")
	cmd.Flags().BoolVar(&remote.local, "local", false, "run locally even if the recipe names a host")
	cmd.Flags().StringSliceVar(&policies, "policy", nil, "extra policy files or folders")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write results as CSV")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "export traces to this OTLP collector")

	return cmd
}

// resolve merges the flags with the recipe's remote block. It returns nil
// for a local run.
func (f remoteFlags) resolve(rc *config.RemoteConfig) *config.RemoteConfig {
	if f.local {
		return nil
	}
	if f.host != "" {
		rc = &config.RemoteConfig{Host: f.host, User: f.user}
	} else if rc == nil {
		return nil
	} else {
		c := *rc
		rc = &c
	}
	if f.port != 0 {
		rc.Port = f.port
	}
	if f.key != "" {
		rc.PrivateKeyPath = f.key
	}
	if f.knownHosts != "" {
		rc.KnownHostsPath = f.knownHosts
	}
	if f.root != "" {
		rc.Root = f.root
	}
	return rc
}

// sshConfig converts a remote block to a connection config. A private key
// selects key auth; otherwise a running agent is preferred over the default
// key files.
func sshConfig(rc *config.RemoteConfig) *sshtransport.Config {
	cfg := sshtransport.DefaultConfig(rc.Host, rc.User)
	if rc.Port != 0 {
		cfg.Port = rc.Port
	}
	if rc.KnownHostsPath != "" {
		cfg.KnownHostsPath = rc.KnownHostsPath
	}
	if rc.Root != "" {
		cfg.RemoteRoot = rc.Root
	}
	if rc.CommandTimeout > 0 {
		cfg.CommandTimeout = rc.CommandTimeout
	}
	switch {
	case rc.PrivateKeyPath != "":
		cfg.AuthMethod = sshtransport.AuthMethodKey
		cfg.PrivateKeyPath = rc.PrivateKeyPath
	case os.Getenv("SSH_AUTH_SOCK") != "":
		cfg.AuthMethod = sshtransport.AuthMethodAgent
	}
	return cfg
}

// newExecutor returns the local executor, or a connected remote one.
func newExecutor(ctx context.Context, rc *config.RemoteConfig) (engine.Executor, func(), error) {
	if rc == nil {
		log.Info().Msg("Running steps locally")
		return engine.NewLocalExecutor(), func() {}, nil
	}

	cfg := sshConfig(rc)
	client, err := sshtransport.NewClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}
	info := client.GetConnectionInfo()
	log.Info().
		Str("host", info.Host).
		Int("port", info.Port).
		Str("user", info.User).
		Str("server", info.ServerVersion).
		Str("root", cfg.RemoteRoot).
		Msg("Running steps on render host")

	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close SSH connection")
		}
	}
	return sshtransport.NewRemoteExecutor(client, cfg.RemoteRoot), closeFn, nil
}

func printRun(run *engine.Run) {
	mark := "✓"
	if run.Status != engine.RunStatusSucceeded {
		mark = "✗"
	}
	fmt.Printf("%s Run %s %s in %s\n", mark, run.ID, run.Status, run.Duration.Round(time.Millisecond))
	fmt.Printf("  steps: %d succeeded, %d failed, %d skipped of %d\n",
		run.Summary.Succeeded, run.Summary.Failed, run.Summary.Skipped, run.Summary.Total)
	if run.Error != "" {
		fmt.Printf("  error: %s\n", run.Error)
	}
}
