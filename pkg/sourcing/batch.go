package sourcing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/highfocus/sourcing-tool/pkg/auth"
)

// Row is one spreadsheet line to analyze.
type Row struct {
	ASIN        string
	Cost        float64
	Fulfillment string // "FBA" or "FBM"; empty defaults to FBA
}

// BatchReport aggregates one batch run. Results holds every row in input
// order; the bucket slices hold the successfully analyzed rows by verdict.
type BatchReport struct {
	Results   []Analysis
	Buy       []Analysis
	Ungate    []Analysis
	Eliminate []Analysis
	Failed    []Analysis
}

// AnalyzeBatch processes rows strictly one at a time with a fixed delay
// between rows to stay under upstream rate limits. A failing row is
// recorded and the batch continues; an authentication failure aborts the
// run, since it would fail every remaining row the same way. progress, when
// non-nil, is invoked after each row.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, rows []Row, progress func(done, total int)) (BatchReport, error) {
	var report BatchReport

	for i, row := range rows {
		if i > 0 {
			a.sleep(a.cfg.Pace)
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		fba := row.Fulfillment == "" || strings.EqualFold(row.Fulfillment, "FBA")
		result, err := a.Analyze(ctx, row.ASIN, row.Cost, fba)
		if err != nil {
			var authErr *auth.AuthError
			if errors.As(err, &authErr) {
				return report, fmt.Errorf("aborting batch: %w", err)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}

			result = Analysis{
				ASIN:        NormalizeASIN(row.ASIN),
				Cost:        roundCents(row.Cost),
				Fulfillment: row.Fulfillment,
				Verdict:     VerdictEliminate,
				Err:         err,
			}
			report.Failed = append(report.Failed, result)
			report.Results = append(report.Results, result)
			if progress != nil {
				progress(i+1, len(rows))
			}
			continue
		}

		report.Results = append(report.Results, result)
		switch result.Verdict {
		case VerdictBuy:
			report.Buy = append(report.Buy, result)
		case VerdictUngate:
			report.Ungate = append(report.Ungate, result)
		default:
			report.Eliminate = append(report.Eliminate, result)
		}
		if progress != nil {
			progress(i+1, len(rows))
		}
	}

	return report, nil
}
