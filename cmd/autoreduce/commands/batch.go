package commands

import (
	"strings"

	"github.com/autoreduction/autosubmit/internal/config"
	"github.com/autoreduction/autosubmit/internal/runrange"
	"github.com/spf13/cobra"
)

func newBatchCmd(global *globalOptions) *cobra.Command {
	flags := &submitFlags{}

	cmd := &cobra.Command{
		Use:   "batch INSTRUMENT RUN...",
		Short: "Submit several runs as a single batch reduction message",
		Long: `Resolve every RUN and submit them together in one reduction message.

If any run cannot be resolved nothing is published and every run is reported
as skipped.

Examples:
  # Reduce three runs together
  autoreduce batch OSIRIS 130001 130003 130007 --description "summed runs"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, global, flags, args)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func runBatch(cmd *cobra.Command, global *globalOptions, flags *submitFlags, args []string) error {
	instrument := strings.ToUpper(args[0])

	runs := make([]int, 0, len(args)-1)
	for _, arg := range args[1:] {
		n, err := runrange.ParseRunNumber(arg)
		if err != nil {
			return fatalError(err, instrument)
		}
		runs = append(runs, n)
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

	result, err := p.orchestrator.SubmitBatch(ctx, instrument, runs...)
	if err != nil {
		return fatalError(err, instrument)
	}

	return writeResult(cmd, result, format)
}
