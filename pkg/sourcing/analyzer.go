// Package sourcing analyzes Amazon product identifiers for resale
// profitability: current price, estimated fees, sales rank and listing
// restrictions, classified into buy / ungate / eliminate verdicts.
package sourcing

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/highfocus/sourcing-tool/pkg/spapi"
)

const defaultPace = 200 * time.Millisecond

// Caller issues authenticated marketplace API calls.
type Caller interface {
	Call(ctx context.Context, method, path string, query url.Values, body any) (spapi.Result, error)
}

// Verdict classifies one analyzed product.
type Verdict string

const (
	VerdictBuy       Verdict = "BUY"
	VerdictUngate    Verdict = "UNGATE"
	VerdictEliminate Verdict = "ELIMINATE"
)

// Config carries the marketplace identity and the business thresholds.
type Config struct {
	MarketplaceID string
	SellerID      string        // required for restriction checks; empty skips them
	MinProfit     float64       // minimum net profit for a BUY, in currency units
	MinROI        float64       // minimum return on investment for a BUY, e.g. 0.3
	Pace          time.Duration // inter-row delay in batch mode, defaults to 200ms
}

// Analysis is the outcome for one product.
type Analysis struct {
	ASIN        string
	Fulfillment string
	Cost        float64
	Price       float64
	HasPrice    bool
	Fees        float64
	HasFees     bool
	Profit      float64
	ROI         float64
	SalesRank   int
	HasRank     bool
	Gated       bool
	Verdict     Verdict
	Err         error // per-row failure in batch mode
}

// Analyzer runs the product lookups over an authenticated API caller.
type Analyzer struct {
	caller Caller
	cfg    Config
	sleep  func(time.Duration)
	now    func() time.Time
}

// NewAnalyzer creates an analyzer over the given caller.
func NewAnalyzer(caller Caller, cfg Config) *Analyzer {
	return newAnalyzer(caller, cfg, time.Sleep, time.Now)
}

func newAnalyzer(caller Caller, cfg Config, sleep func(time.Duration), now func() time.Time) *Analyzer {
	if cfg.Pace <= 0 {
		cfg.Pace = defaultPace
	}
	return &Analyzer{
		caller: caller,
		cfg:    cfg,
		sleep:  sleep,
		now:    now,
	}
}

type money struct {
	CurrencyCode string   `json:"CurrencyCode"`
	Amount       *float64 `json:"Amount"`
}

// CurrentPrice returns the lowest landed price (listing plus shipping)
// among new-condition offers. ok is false when the listing has no offers.
func (a *Analyzer) CurrentPrice(ctx context.Context, asin string) (price float64, ok bool, err error) {
	res, err := a.caller.Call(ctx, http.MethodGet,
		fmt.Sprintf("/products/pricing/v0/items/%s/offers", asin),
		url.Values{
			"MarketplaceId": {a.cfg.MarketplaceID},
			"ItemCondition": {"New"},
		}, nil)
	if err != nil {
		return 0, false, err
	}

	var resp struct {
		Payload struct {
			Offers []struct {
				ListingPrice money `json:"ListingPrice"`
				Shipping     money `json:"Shipping"`
			} `json:"Offers"`
		} `json:"payload"`
	}
	if err := res.Decode(&resp); err != nil {
		return 0, false, fmt.Errorf("failed to parse offers response: %w", err)
	}

	best := math.MaxFloat64
	found := false
	for _, offer := range resp.Payload.Offers {
		if offer.ListingPrice.Amount == nil {
			continue
		}
		landed := *offer.ListingPrice.Amount
		if offer.Shipping.Amount != nil {
			landed += *offer.Shipping.Amount
		}
		if landed < best {
			best = landed
			found = true
		}
	}
	if !found {
		return 0, false, nil
	}
	return roundCents(best), true, nil
}

// EstimateFees returns the total estimated selling fees for the given price
// and fulfillment channel. ok is false when the API returns no usable
// estimate.
func (a *Analyzer) EstimateFees(ctx context.Context, asin string, price float64, fba bool) (fees float64, ok bool, err error) {
	body := map[string]any{
		"FeesEstimateRequest": map[string]any{
			"MarketplaceId":     a.cfg.MarketplaceID,
			"IsAmazonFulfilled": fba,
			"PriceToEstimateFees": map[string]any{
				"ListingPrice": map[string]any{"CurrencyCode": "USD", "Amount": price},
			},
			"Identifier": fmt.Sprintf("hf-%s-%d", asin, a.now().Unix()),
		},
	}

	res, err := a.caller.Call(ctx, http.MethodPost,
		fmt.Sprintf("/products/fees/v0/listings/%s/feesEstimate", asin), nil, body)
	if err != nil {
		return 0, false, err
	}

	var resp struct {
		Payload struct {
			FeesEstimateResult struct {
				FeesEstimate struct {
					TotalFeesEstimate money `json:"TotalFeesEstimate"`
					FeeDetailList     []struct {
						FinalFee money `json:"FinalFee"`
					} `json:"FeeDetailList"`
				} `json:"FeesEstimate"`
			} `json:"FeesEstimateResult"`
		} `json:"payload"`
	}
	if err := res.Decode(&resp); err != nil {
		return 0, false, fmt.Errorf("failed to parse fees response: %w", err)
	}

	estimate := resp.Payload.FeesEstimateResult.FeesEstimate
	if estimate.TotalFeesEstimate.Amount != nil {
		return roundCents(*estimate.TotalFeesEstimate.Amount), true, nil
	}

	// Some responses omit the total; fall back to summing the fee details.
	sum := 0.0
	found := false
	for _, detail := range estimate.FeeDetailList {
		if detail.FinalFee.Amount != nil {
			sum += *detail.FinalFee.Amount
			found = true
		}
	}
	if !found || sum <= 0 {
		return 0, false, nil
	}
	return roundCents(sum), true, nil
}

// SalesRank returns the product's first display-group sales rank. ok is
// false when the catalog carries no rank for the marketplace.
func (a *Analyzer) SalesRank(ctx context.Context, asin string) (rank int, ok bool, err error) {
	res, err := a.caller.Call(ctx, http.MethodGet,
		fmt.Sprintf("/catalog/2022-04-01/items/%s", asin),
		url.Values{
			"marketplaceIds": {a.cfg.MarketplaceID},
			"includedData":   {"salesRanks"},
		}, nil)
	if err != nil {
		return 0, false, err
	}

	var resp struct {
		SalesRanks []struct {
			DisplayGroupRanks []struct {
				Rank int `json:"rank"`
			} `json:"displayGroupRanks"`
		} `json:"salesRanks"`
	}
	if err := res.Decode(&resp); err != nil {
		return 0, false, fmt.Errorf("failed to parse catalog response: %w", err)
	}

	for _, group := range resp.SalesRanks {
		for _, r := range group.DisplayGroupRanks {
			if r.Rank > 0 {
				return r.Rank, true, nil
			}
		}
	}
	return 0, false, nil
}

// CheckRestrictions reports whether the seller is gated from listing the
// product in new condition. Without a seller id the check is skipped and
// the product is treated as ungated.
func (a *Analyzer) CheckRestrictions(ctx context.Context, asin string) (bool, error) {
	if a.cfg.SellerID == "" {
		return false, nil
	}

	res, err := a.caller.Call(ctx, http.MethodGet, "/listings/2021-08-01/restrictions",
		url.Values{
			"asin":           {asin},
			"sellerId":       {a.cfg.SellerID},
			"marketplaceIds": {a.cfg.MarketplaceID},
			"conditionType":  {"new_new"},
		}, nil)
	if err != nil {
		return false, err
	}

	var resp struct {
		Restrictions []struct {
			ConditionType string `json:"conditionType"`
		} `json:"restrictions"`
	}
	if err := res.Decode(&resp); err != nil {
		return false, fmt.Errorf("failed to parse restrictions response: %w", err)
	}
	return len(resp.Restrictions) > 0, nil
}

// Analyze runs the full lookup sequence for one product and classifies it.
func (a *Analyzer) Analyze(ctx context.Context, asin string, cost float64, fba bool) (Analysis, error) {
	asin = NormalizeASIN(asin)
	if asin == "" {
		return Analysis{}, fmt.Errorf("empty product identifier")
	}

	out := Analysis{ASIN: asin, Cost: roundCents(cost), Fulfillment: "FBM"}
	if fba {
		out.Fulfillment = "FBA"
	}

	price, ok, err := a.CurrentPrice(ctx, asin)
	if err != nil {
		return Analysis{}, err
	}
	if !ok {
		out.Verdict = VerdictEliminate
		return out, nil
	}
	out.Price, out.HasPrice = price, true

	fees, ok, err := a.EstimateFees(ctx, asin, price, fba)
	if err != nil {
		return Analysis{}, err
	}
	if ok {
		out.Fees, out.HasFees = fees, true
	}

	rank, ok, err := a.SalesRank(ctx, asin)
	if err != nil {
		return Analysis{}, err
	}
	if ok {
		out.SalesRank, out.HasRank = rank, true
	}

	gated, err := a.CheckRestrictions(ctx, asin)
	if err != nil {
		return Analysis{}, err
	}
	out.Gated = gated

	if out.HasFees {
		out.Profit = roundCents(out.Price - out.Fees - out.Cost)
		if out.Cost > 0 {
			out.ROI = out.Profit / out.Cost
		}
	}
	out.Verdict = a.classify(out)
	return out, nil
}

func (a *Analyzer) classify(an Analysis) Verdict {
	if !an.HasPrice || !an.HasFees {
		return VerdictEliminate
	}
	profitable := an.Profit >= a.cfg.MinProfit && (an.Cost <= 0 || an.ROI >= a.cfg.MinROI)
	switch {
	case profitable && !an.Gated:
		return VerdictBuy
	case profitable:
		return VerdictUngate
	default:
		return VerdictEliminate
	}
}

// NormalizeASIN trims and uppercases a product identifier.
func NormalizeASIN(asin string) string {
	return strings.ToUpper(strings.TrimSpace(asin))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
