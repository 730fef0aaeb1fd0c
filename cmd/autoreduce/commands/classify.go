package commands

import (
	"fmt"

	"github.com/autoreduction/autosubmit/internal/printer"
	"github.com/autoreduction/autosubmit/internal/rbcategory"
	"github.com/autoreduction/autosubmit/internal/report"
	"github.com/spf13/cobra"
)

func newClassifyCmd() *cobra.Command {
	var (
		list     bool
		category string
	)

	cmd := &cobra.Command{
		Use:   "classify RB...",
		Short: "Print the experiment category of RB numbers",
		Long: `Print the access route of each RB number.

The category comes from the third and fourth digits of a seven digit RB
number. Anything else is reported as uncategorized.

Examples:
  autoreduce classify 1820497 1930012

  # Keep only calibration experiments
  autoreduce classify --category calibration 1235001 1820497

  # Show every category name
  autoreduce classify --list`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, c := range rbcategory.All() {
					fmt.Fprintln(cmd.OutOrStdout(), c)
				}
				return nil
			}

			if category == "" {
				report.FormatCategories(cmd.OutOrStdout(), args)
				return nil
			}

			want, err := rbcategory.ParseCategory(category)
			if err != nil {
				return printer.Error("invalid category", err.Error(),
					[]string{"Run 'autoreduce classify --list' to see the valid categories"})
			}
			var matching []string
			for _, rb := range args {
				if rbcategory.Classify(rb) == want {
					matching = append(matching, rb)
				}
			}
			report.FormatCategories(cmd.OutOrStdout(), matching)
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List every category name and exit")
	cmd.Flags().StringVar(&category, "category", "", "Only print RB numbers in this category")
	return cmd
}
