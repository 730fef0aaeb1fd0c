package commands

import (
	"context"
	"fmt"

	"github.com/autoreduction/autosubmit/internal/config"
	"github.com/autoreduction/autosubmit/internal/logging"
	"github.com/autoreduction/autosubmit/internal/printer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var versionString = "dev"

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag state
// out of package variables.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "autoreduce",
		Short: "Submit ISIS runs for automatic reduction",
		Long: `autoreduce resolves run metadata and submits reduction requests for
ISIS instruments.

For each run the reduction database is consulted first; runs it has never
seen are looked up in ICAT. Each resolved run is published on the DataReady
queue for the reduction worker to pick up.`,
		Version: versionString,
		// If no subcommand is specified, show help
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		// Enable strict flag parsing - unknown flags will cause an error
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
		SilenceErrors:      true,
		SilenceUsage:       true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default $AUTOREDUCE_CONFIG or ./autoreduce.yml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON (overrides config)")

	rootCmd.AddCommand(
		newSubmitCmd(opts),
		newBatchCmd(opts),
		newClassifyCmd(),
		newCheckCmd(opts),
	)
	return rootCmd
}

// Execute runs the CLI until ctx is cancelled.
// This is called by main.main().
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// loadEnvironment reads the configuration and builds the logger for commands
// that talk to external services. Only the sections in needs must be valid.
func loadEnvironment(cmd *cobra.Command, opts *globalOptions, needs config.Section) (*config.Config, *zap.Logger, error) {
	path := config.ResolvePath(opts.configPath)
	cfg, err := config.LoadFor(path, needs)
	if err != nil {
		return nil, nil, printer.ErrorWithContext(
			"cannot load configuration",
			err.Error(),
			map[string]string{"Path": path},
			[]string{
				"Pass --config with the path to autoreduce.yml",
				fmt.Sprintf("Set %s to the config file location", config.PathEnv),
			},
		)
	}

	logOpts := cfg.Logging
	if cmd.Flags().Changed("log-level") {
		logOpts.Level = opts.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		logOpts.JSON = opts.logJSON
	}

	logger, err := logging.New(logOpts)
	if err != nil {
		return nil, nil, printer.Error("invalid logging options", err.Error(), nil)
	}
	return cfg, logger, nil
}
