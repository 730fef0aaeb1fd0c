package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/autoreduction/autosubmit/internal/batch"
	"github.com/autoreduction/autosubmit/internal/config"
	"github.com/autoreduction/autosubmit/internal/printer"
	"github.com/autoreduction/autosubmit/internal/report"
	"github.com/autoreduction/autosubmit/internal/runrange"
	"github.com/autoreduction/autosubmit/internal/submission"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// submitFlags are shared by submit and batch.
type submitFlags struct {
	output        string
	description   string
	startedBy     int
	reductionArgs string
	fileExtension string
}

func (f *submitFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.output, "output", "o", "default", "Output format: default or json")
	fs.StringVar(&f.description, "description", "", "Description attached to the reduction request")
	fs.IntVar(&f.startedBy, "started-by", -1, "User id recorded as the requester (-1 for autoreduction)")
	fs.StringVar(&f.reductionArgs, "reduction-args", "", `Reduction arguments as a JSON object, e.g. '{"ei": 25}'`)
	fs.StringVar(&f.fileExtension, "ext", "", "Data file extension used for ICAT lookups (default from config)")
}

// batchOptions validates the flags into orchestrator options.
func (f *submitFlags) batchOptions() (batch.Options, report.OutputFormat, error) {
	format, err := report.ParseOutputFormat(f.output)
	if err != nil {
		return batch.Options{}, "", printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, json"})
	}

	opts := batch.Options{
		Description:   f.description,
		FileExtension: strings.TrimPrefix(f.fileExtension, "."),
	}
	if f.startedBy != -1 {
		startedBy := f.startedBy
		opts.StartedBy = &startedBy
	}
	if f.reductionArgs != "" {
		if err := json.Unmarshal([]byte(f.reductionArgs), &opts.ReductionArguments); err != nil {
			return batch.Options{}, "", printer.Error(
				"invalid reduction arguments",
				fmt.Sprintf("--reduction-args must be a JSON object: %v", err),
				nil,
			)
		}
	}
	return opts, format, nil
}

func newSubmitCmd(global *globalOptions) *cobra.Command {
	flags := &submitFlags{}

	cmd := &cobra.Command{
		Use:   "submit INSTRUMENT FIRST [LAST]",
		Short: "Submit a run or an inclusive range of runs, one message per run",
		Long: `Submit one run, or every run from FIRST to LAST inclusive, for reduction.

Each run is resolved from the reduction database, or from ICAT when the
database has never seen it, and published as its own message. Runs that
cannot be resolved are skipped and reported; the command still succeeds.

The command fails when the run numbers are invalid, when the message broker
cannot be reached, or when ICAT login fails.

Examples:
  # Submit a single run
  autoreduce submit MARI 25581

  # Submit a range with a custom description
  autoreduce submit WISH 45000 45010 --description "rerun after calibration"

  # Machine-readable output
  autoreduce submit GEM 90210 -o json`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, global, flags, args)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func runSubmit(cmd *cobra.Command, global *globalOptions, flags *submitFlags, args []string) error {
	instrument := strings.ToUpper(args[0])

	first, err := runrange.ParseRunNumber(args[1])
	if err != nil {
		return fatalError(err, instrument)
	}
	var last *int
	if len(args) == 3 {
		n, err := runrange.ParseRunNumber(args[2])
		if err != nil {
			return fatalError(err, instrument)
		}
		last = &n
	}
	// Reject bad ranges before connecting to anything
	if _, err := runrange.Expand(first, last); err != nil {
		return fatalError(err, instrument)
	}

	opts, format, err := flags.batchOptions()
	if err != nil {
		return err
	}

	cfg, logger, err := loadEnvironment(cmd, global, config.AllSections)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p, err := openPipeline(ctx, cfg, opts, logger)
	if err != nil {
		return fatalError(err, instrument)
	}
	defer p.Close()

	result, err := p.orchestrator.SubmitRange(ctx, instrument, first, last)
	if err != nil {
		return fatalError(err, instrument)
	}

	return writeResult(cmd, result, format)
}

func writeResult(cmd *cobra.Command, result *batch.Result, format report.OutputFormat) error {
	if err := report.Write(cmd.OutOrStdout(), result, format); err != nil {
		return err
	}
	if format == report.OutputFormatJSON {
		return nil
	}

	if err := printMessages(result); err != nil {
		return err
	}

	if n := len(result.Skipped); n > 0 {
		printer.Warning("%d of %d runs were skipped, see the log for details\n", n, n+len(result.Submitted))
	} else {
		printer.Success("All runs submitted\n")
	}
	return nil
}

// printMessages shows each published message once; a batch shares one receipt
// across all of its runs.
func printMessages(result *batch.Result) error {
	var shown *submission.Receipt
	for _, sub := range result.Submitted {
		if sub.Receipt == nil || sub.Receipt == shown {
			continue
		}
		shown = sub.Receipt

		body, err := sub.Receipt.Message.SerializeIndent()
		if err != nil {
			return fmt.Errorf("failed to format message for run %d: %w", sub.RunNumber, err)
		}
		printer.Step("Submitted message for %s %v\n", result.Instrument, sub.Receipt.Message.RunNumbers)
		printer.Info("%s\n", body)
	}
	return nil
}
