package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags for client commands
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

// QuotaFlags holds flags for the quota command
type QuotaFlags struct {
	Account    string
	ActionType string
	API        APIFlags
}

// buildRoot creates the root command and wires all subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}
	quotaFlags := &QuotaFlags{}

	root := &cobra.Command{
		Use:   "drover",
		Short: "Multi-account session automation runner",
		Long: `Drover schedules automation sessions for many managed accounts,
bounding concurrent sessions and per-account hourly action quotas.

Examples:
  drover serve --config=drover.toml   # Start the runner daemon
  drover status                       # Show per-account decisions
  drover quota --account=a1 --type=engage
  drover cycle                        # Trigger one cycle now`,
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file")

	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(apiFlags),
		createQuotaCommand(quotaFlags),
		createCycleCommand(apiFlags),
		createPauseCommand(apiFlags),
		createResumeCommand(apiFlags),
		createVersionCommand(),
	)

	return root
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.URL, "api-url", "", "daemon API base URL (default http://127.0.0.1:8321)")
	cmd.Flags().DurationVar(&f.Timeout, "api-timeout", 10*time.Second, "daemon API request timeout")
}
