package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/highfocus/sourcing-tool/pkg/sourcing"
)

func newBatchCmd(deps runDeps, opts *options) *cobra.Command {
	var output string

	batchCmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Analyze every product in a .csv or .xlsx spreadsheet",
		Long: `Reads ASINs and supplier costs from a spreadsheet and analyzes them one
at a time, pausing between products to stay under API rate limits. Results
are written as CSV to --output, or to stdout when no output file is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveAnalyzer(deps, opts)
			if err != nil {
				return err
			}

			rows, err := sourcing.ReadRows(args[0])
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("no rows with an ASIN found in %s", args[0])
			}

			report, err := a.AnalyzeBatch(cmd.Context(), rows, func(done, total int) {
				fmt.Fprintf(deps.stderr, "analyzed %d/%d\n", done, total)
			})
			if err != nil {
				return err
			}

			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				if err := sourcing.WriteCSV(f, report); err != nil {
					return err
				}
				fmt.Fprintf(deps.stderr, "wrote %d results to %s\n", len(report.Results), output)
			} else {
				if err := sourcing.WriteCSV(deps.stdout, report); err != nil {
					return err
				}
			}

			fmt.Fprintf(deps.stderr, "buy: %d  ungate: %d  eliminate: %d  failed: %d\n",
				len(report.Buy), len(report.Ungate), len(report.Eliminate), len(report.Failed))
			return nil
		},
	}

	batchCmd.Flags().StringVarP(&output, "output", "o", "", "write results to this CSV file instead of stdout")

	return batchCmd
}
