package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/highfocus/sourcing-tool/pkg/sourcing"
)

func newAnalyzeCmd(deps runDeps, opts *options) *cobra.Command {
	var cost float64
	var fulfillment string

	analyzeCmd := &cobra.Command{
		Use:   "analyze <asin>",
		Short: "Analyze a single product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveAnalyzer(deps, opts)
			if err != nil {
				return err
			}

			fba := !strings.EqualFold(fulfillment, "FBM")
			result, err := a.Analyze(cmd.Context(), args[0], cost, fba)
			if err != nil {
				return err
			}

			printAnalysis(deps, result)
			return nil
		},
	}

	analyzeCmd.Flags().Float64Var(&cost, "cost", 0, "your supplier cost for the product")
	analyzeCmd.Flags().StringVar(&fulfillment, "fulfillment", "FBA", "fulfillment channel, FBA or FBM")

	return analyzeCmd
}

func printAnalysis(deps runDeps, result sourcing.Analysis) {
	fmt.Fprintf(deps.stdout, "ASIN:        %s\n", result.ASIN)
	if result.HasPrice {
		fmt.Fprintf(deps.stdout, "Price:       $%.2f\n", result.Price)
	} else {
		fmt.Fprintln(deps.stdout, "Price:       no offers")
	}
	if result.HasFees {
		fmt.Fprintf(deps.stdout, "Fees:        $%.2f\n", result.Fees)
	}
	if result.HasPrice && result.HasFees {
		fmt.Fprintf(deps.stdout, "Net profit:  $%.2f\n", result.Profit)
		if result.Cost > 0 {
			fmt.Fprintf(deps.stdout, "ROI:         %.1f%%\n", result.ROI*100)
		}
	}
	if result.HasRank {
		fmt.Fprintf(deps.stdout, "Sales rank:  %d\n", result.SalesRank)
	}
	if result.Gated {
		fmt.Fprintln(deps.stdout, "Restricted:  yes (approval required)")
	}
	fmt.Fprintf(deps.stdout, "Verdict:     %s\n", result.Verdict)
}
