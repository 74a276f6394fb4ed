package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/highfocus/sourcing-tool/pkg/sourcing"
	"github.com/highfocus/sourcing-tool/pkg/sourcing/mocks"
)

func TestAnalyzeCmd(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		args          []string
		result        sourcing.Analysis
		analyzeErr    error
		wantASIN      string
		wantCost      float64
		wantFBA       bool
		wantOutput    []string
		wantErrSubstr string
	}{
		{
			name: "buyable product",
			args: []string{"analyze", "B00TEST001", "--cost", "10.00"},
			result: sourcing.Analysis{
				ASIN:      "B00TEST001",
				Cost:      10.00,
				Price:     29.99,
				HasPrice:  true,
				Fees:      8.00,
				HasFees:   true,
				Profit:    11.99,
				ROI:       1.199,
				SalesRank: 512,
				HasRank:   true,
				Verdict:   sourcing.VerdictBuy,
			},
			wantASIN: "B00TEST001",
			wantCost: 10.00,
			wantFBA:  true,
			wantOutput: []string{
				"ASIN:        B00TEST001",
				"Price:       $29.99",
				"Fees:        $8.00",
				"Net profit:  $11.99",
				"ROI:         119.9%",
				"Sales rank:  512",
				"Verdict:     BUY",
			},
		},
		{
			name: "gated product",
			args: []string{"analyze", "B00TEST002", "--cost", "5", "--fulfillment", "FBM"},
			result: sourcing.Analysis{
				ASIN:     "B00TEST002",
				Cost:     5.00,
				Price:    19.99,
				HasPrice: true,
				Fees:     4.00,
				HasFees:  true,
				Profit:   10.99,
				ROI:      2.198,
				Gated:    true,
				Verdict:  sourcing.VerdictUngate,
			},
			wantASIN: "B00TEST002",
			wantCost: 5.00,
			wantFBA:  false,
			wantOutput: []string{
				"Restricted:  yes (approval required)",
				"Verdict:     UNGATE",
			},
		},
		{
			name: "no offers",
			args: []string{"analyze", "B00TEST003"},
			result: sourcing.Analysis{
				ASIN:    "B00TEST003",
				Verdict: sourcing.VerdictEliminate,
			},
			wantASIN: "B00TEST003",
			wantFBA:  true,
			wantOutput: []string{
				"Price:       no offers",
				"Verdict:     ELIMINATE",
			},
		},
		{
			name:          "analyzer error propagates",
			args:          []string{"analyze", "B00TEST004"},
			analyzeErr:    errors.New("API call failed: HTTP 500"),
			wantASIN:      "B00TEST004",
			wantFBA:       true,
			wantErrSubstr: "API call failed: HTTP 500",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			analyzerMock := &mocks.Analyzer{
				AnalyzeFunc: func(ctx context.Context, asin string, cost float64, fba bool) (sourcing.Analysis, error) {
					return tc.result, tc.analyzeErr
				},
			}

			deps, stdout, _ := newTestDeps(analyzerMock, fullEnv())
			root := newRootCmd(deps)
			root.SetArgs(tc.args)
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})

			err := root.Execute()
			if tc.wantErrSubstr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErrSubstr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErrSubstr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if analyzerMock.AnalyzeCalls != 1 {
				t.Fatalf("expected 1 Analyze call, got %d", analyzerMock.AnalyzeCalls)
			}
			if analyzerMock.LastASIN != tc.wantASIN {
				t.Fatalf("unexpected ASIN: got %q want %q", analyzerMock.LastASIN, tc.wantASIN)
			}
			if analyzerMock.LastCost != tc.wantCost {
				t.Fatalf("unexpected cost: got %v want %v", analyzerMock.LastCost, tc.wantCost)
			}
			if analyzerMock.LastFBA != tc.wantFBA {
				t.Fatalf("unexpected fulfillment: got fba=%v want fba=%v", analyzerMock.LastFBA, tc.wantFBA)
			}

			for _, want := range tc.wantOutput {
				if !strings.Contains(stdout.String(), want) {
					t.Fatalf("expected output to contain %q, got:\n%s", want, stdout.String())
				}
			}
		})
	}
}
