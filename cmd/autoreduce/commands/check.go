package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/autoreduction/autosubmit/internal/checks"
	"github.com/autoreduction/autosubmit/internal/config"
	"github.com/autoreduction/autosubmit/internal/printer"
	"github.com/autoreduction/autosubmit/internal/reductiondb"
	"github.com/autoreduction/autosubmit/internal/report"
	"github.com/autoreduction/autosubmit/internal/timespec"
	"github.com/spf13/cobra"
)

func newCheckCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Operational checks against the reduction database",
	}
	cmd.AddCommand(newLastRunCmd(global))
	return cmd
}

func newLastRunCmd(global *globalOptions) *cobra.Command {
	var (
		maxAge string
		output string
	)

	cmd := &cobra.Command{
		Use:   "last-run",
		Short: "Warn about active instruments without a recent finished run",
		Long: `List every instrument with the age of its last finished reduction.

Active instruments whose last run is older than --max-age are marked STALE
and logged as warnings. Paused instruments are listed but never stale.

Examples:
  autoreduce check last-run
  autoreduce check last-run --max-age 36h -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age, err := timespec.ParseAge(maxAge)
			if err != nil {
				return printer.Error("invalid --max-age", err.Error(), []string{"Use an age like '1d', '36h' or '2w'"})
			}
			format, err := report.ParseOutputFormat(output)
			if err != nil {
				return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, json"})
			}

			cfg, logger, err := loadEnvironment(cmd, global, config.SectionDatabase)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			db, err := reductiondb.Open(ctx, cfg.Database)
			if err != nil {
				return printer.Error("cannot connect to reduction database", err.Error(), []string{"Check database.url in autoreduce.yml"})
			}
			store := reductiondb.NewStore(db)
			defer store.Close()

			now := time.Now()
			statuses, err := checks.LastRun(ctx, store, age, now, logger)
			if err != nil {
				return printer.Error("last-run check failed", err.Error(), nil)
			}

			if format == report.OutputFormatJSON {
				data, err := json.MarshalIndent(statuses, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal statuses to JSON: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			report.FormatActivity(cmd.OutOrStdout(), statuses, now)
			if n := checks.CountStale(statuses); n > 0 {
				printer.Warning("%d active instruments have not had runs within %s\n", n, maxAge)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&maxAge, "max-age", "1d", "Maximum age of the last finished run")
	cmd.Flags().StringVarP(&output, "output", "o", "default", "Output format: default or json")
	return cmd
}
