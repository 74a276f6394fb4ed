package sourcing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/highfocus/sourcing-tool/pkg/auth"
	"github.com/highfocus/sourcing-tool/pkg/spapi"
)

func batchResponses(restrictions string) map[string]spapi.Result {
	return map[string]spapi.Result{
		"/products/pricing/": jsonResult(`{"payload":{"Offers":[{"ListingPrice":{"CurrencyCode":"USD","Amount":29.99},"Shipping":{"CurrencyCode":"USD","Amount":0}}]}}`),
		"/products/fees/":    jsonResult(`{"payload":{"FeesEstimateResult":{"FeesEstimate":{"TotalFeesEstimate":{"CurrencyCode":"USD","Amount":8.00}}}}}`),
		"/catalog/":          jsonResult(`{"salesRanks":[{"displayGroupRanks":[{"rank":512}]}]}`),
		"/listings/":         jsonResult(restrictions),
	}
}

func TestAnalyzeBatchBucketsAndPacing(t *testing.T) {
	t.Parallel()

	caller := routedCaller(batchResponses(`{"restrictions":[]}`))

	var sleeps []time.Duration
	analyzer := newAnalyzer(caller, Config{
		MarketplaceID: "ATVPDKIKX0DER",
		SellerID:      "SELLER1",
		MinProfit:     3,
		MinROI:        0.3,
		Pace:          200 * time.Millisecond,
	}, func(d time.Duration) { sleeps = append(sleeps, d) }, time.Now)

	rows := []Row{
		{ASIN: "ASIN001", Cost: 10.00},
		{ASIN: "ASIN002", Cost: 25.00},
		{ASIN: "ASIN003", Cost: 12.00, Fulfillment: "FBM"},
	}

	var progressCalls int
	report, err := analyzer.AnalyzeBatch(context.Background(), rows, func(done, total int) {
		progressCalls++
		if total != 3 {
			t.Errorf("unexpected total: %d", total)
		}
	})
	if err != nil {
		t.Fatalf("AnalyzeBatch returned error: %v", err)
	}

	if len(report.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(report.Results))
	}
	// Cost 10 and 12 clear the thresholds, cost 25 does not.
	if len(report.Buy) != 2 || len(report.Eliminate) != 1 || len(report.Ungate) != 0 || len(report.Failed) != 0 {
		t.Fatalf("unexpected buckets: buy=%d ungate=%d eliminate=%d failed=%d",
			len(report.Buy), len(report.Ungate), len(report.Eliminate), len(report.Failed))
	}

	// Pacing applies between rows, not before the first one.
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 pacing sleeps, got %d", len(sleeps))
	}
	for _, d := range sleeps {
		if d != 200*time.Millisecond {
			t.Fatalf("unexpected pacing delay: %v", d)
		}
	}

	if progressCalls != 3 {
		t.Fatalf("expected 3 progress callbacks, got %d", progressCalls)
	}
}

func TestAnalyzeBatchRowFailureContinues(t *testing.T) {
	t.Parallel()

	responses := batchResponses(`{"restrictions":[]}`)
	caller := &fakeCaller{}
	caller.callFunc = func(ctx context.Context, method, path string, query url.Values, body any) (spapi.Result, error) {
		if strings.Contains(path, "ASIN002") {
			return spapi.Result{}, &spapi.TerminalAPIError{StatusCode: 404, Body: "not found", Attempts: 1}
		}
		for prefix, res := range responses {
			if strings.HasPrefix(path, prefix) {
				return res, nil
			}
		}
		return spapi.Result{}, fmt.Errorf("unexpected path %q", path)
	}

	analyzer := newAnalyzer(caller, Config{MarketplaceID: "ATVPDKIKX0DER", SellerID: "SELLER1"},
		func(time.Duration) {}, time.Now)

	rows := []Row{
		{ASIN: "ASIN001", Cost: 10.00},
		{ASIN: "ASIN002", Cost: 10.00},
		{ASIN: "ASIN003", Cost: 10.00},
	}

	report, err := analyzer.AnalyzeBatch(context.Background(), rows, nil)
	if err != nil {
		t.Fatalf("a single failing row must not abort the batch: %v", err)
	}

	if len(report.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(report.Results))
	}
	if len(report.Failed) != 1 {
		t.Fatalf("expected 1 failed row, got %d", len(report.Failed))
	}

	failed := report.Failed[0]
	if failed.ASIN != "ASIN002" {
		t.Fatalf("unexpected failed row: %q", failed.ASIN)
	}
	var terminal *spapi.TerminalAPIError
	if !errors.As(failed.Err, &terminal) {
		t.Fatalf("expected recorded *TerminalAPIError, got %T", failed.Err)
	}
}

func TestAnalyzeBatchAbortsOnAuthError(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{callFunc: func(ctx context.Context, method, path string, query url.Values, body any) (spapi.Result, error) {
		return spapi.Result{}, &auth.AuthError{Op: "token", StatusCode: 400, Message: "invalid_grant"}
	}}

	analyzer := newAnalyzer(caller, Config{MarketplaceID: "ATVPDKIKX0DER"}, func(time.Duration) {}, time.Now)

	rows := []Row{
		{ASIN: "ASIN001", Cost: 10.00},
		{ASIN: "ASIN002", Cost: 10.00},
	}

	report, err := analyzer.AnalyzeBatch(context.Background(), rows, nil)
	if err == nil {
		t.Fatal("expected error but got nil")
	}

	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *auth.AuthError, got %T", err)
	}
	if len(report.Results) != 0 {
		t.Fatalf("no row should complete after an auth failure, got %d", len(report.Results))
	}
	// Only the first row's first lookup should have run.
	if len(caller.calls) != 1 {
		t.Fatalf("expected 1 call before aborting, got %d", len(caller.calls))
	}
}

func TestAnalyzeBatchStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	caller := routedCaller(batchResponses(`{"restrictions":[]}`))

	ctx, cancel := context.WithCancel(context.Background())
	analyzer := newAnalyzer(caller, Config{MarketplaceID: "ATVPDKIKX0DER"},
		func(time.Duration) { cancel() }, time.Now)

	rows := []Row{
		{ASIN: "ASIN001", Cost: 10.00},
		{ASIN: "ASIN002", Cost: 10.00},
	}

	report, err := analyzer.AnalyzeBatch(ctx, rows, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected the completed rows to be preserved, got %d", len(report.Results))
	}
}
