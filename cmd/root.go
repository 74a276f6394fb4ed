package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/highfocus/sourcing-tool/pkg/auth"
	"github.com/highfocus/sourcing-tool/pkg/sourcing"
	"github.com/highfocus/sourcing-tool/pkg/spapi"
)

const (
	defaultEndpoint  = "https://sellingpartnerapi-na.amazon.com"
	defaultRegion    = "us-east-1"
	defaultMinProfit = 3.0
	defaultMinROI    = 0.30
)

// options holds everything needed to talk to the marketplace API. Secrets
// come from the environment only; the rest can be overridden by flags.
type options struct {
	clientID     string
	clientSecret string
	refreshToken string
	awsAccessKey string
	awsSecretKey string
	roleARN      string

	endpoint      string
	region        string
	marketplaceID string
	sellerID      string
	minProfit     float64
	minROI        float64
}

func (o *options) fillFromEnv(getenv func(string) string) {
	o.clientID = getenv("LWA_CLIENT_ID")
	o.clientSecret = getenv("LWA_CLIENT_SECRET")
	o.refreshToken = getenv("LWA_REFRESH_TOKEN")
	o.awsAccessKey = getenv("AWS_ACCESS_KEY_ID")
	o.awsSecretKey = getenv("AWS_SECRET_ACCESS_KEY")
	o.roleARN = getenv("AWS_ROLE_ARN")

	if o.region == "" {
		o.region = getenv("AWS_REGION")
	}
	if o.endpoint == "" {
		o.endpoint = getenv("SP_API_ENDPOINT")
	}
	if o.marketplaceID == "" {
		o.marketplaceID = getenv("MARKETPLACE_ID")
	}
	if o.sellerID == "" {
		o.sellerID = getenv("SELLER_ID")
	}

	if o.region == "" {
		o.region = defaultRegion
	}
	if o.endpoint == "" {
		o.endpoint = defaultEndpoint
	}
}

// validate reports every missing required value at once so the user can fix
// their environment in a single pass, before any network call is made.
func (o *options) validate() error {
	var missing []string
	if o.clientID == "" {
		missing = append(missing, "LWA_CLIENT_ID")
	}
	if o.clientSecret == "" {
		missing = append(missing, "LWA_CLIENT_SECRET")
	}
	if o.refreshToken == "" {
		missing = append(missing, "LWA_REFRESH_TOKEN")
	}
	if o.marketplaceID == "" {
		missing = append(missing, "MARKETPLACE_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// analyzer abstracts the sourcing analyzer for easier testing.
type analyzer interface {
	Analyze(ctx context.Context, asin string, cost float64, fba bool) (sourcing.Analysis, error)
	AnalyzeBatch(ctx context.Context, rows []sourcing.Row, progress func(done, total int)) (sourcing.BatchReport, error)
}

type runDeps struct {
	newAnalyzer func(opts options) (analyzer, error)
	getenv      func(string) string
	stdout      io.Writer
	stderr      io.Writer
}

func defaultRunDeps() runDeps {
	return runDeps{
		newAnalyzer: buildAnalyzer,
		getenv:      os.Getenv,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
}

// buildAnalyzer wires the full request pipeline: token refresh, credential
// exchange, signed API client, then the product analyzer on top.
func buildAnalyzer(opts options) (analyzer, error) {
	tokens := auth.NewTokenProvider(auth.TokenConfig{
		ClientID:     opts.clientID,
		ClientSecret: opts.clientSecret,
		RefreshToken: opts.refreshToken,
	})

	exchanger := auth.NewSTSExchanger(auth.ExchangeConfig{
		AccessKeyID:     opts.awsAccessKey,
		SecretAccessKey: opts.awsSecretKey,
		RoleARN:         opts.roleARN,
		Region:          opts.region,
		SessionDuration: time.Hour,
	})

	client, err := spapi.New(spapi.Config{
		Endpoint: opts.endpoint,
		Region:   opts.region,
	}, tokens, exchanger)
	if err != nil {
		return nil, fmt.Errorf("failed to build API client: %w", err)
	}

	return sourcing.NewAnalyzer(client, sourcing.Config{
		MarketplaceID: opts.marketplaceID,
		SellerID:      opts.sellerID,
		MinProfit:     opts.minProfit,
		MinROI:        opts.minROI,
	}), nil
}

// NewRootCmd creates the root CLI command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultRunDeps())
}

func newRootCmd(deps runDeps) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "sourcing-tool",
		Short: "Analyze products for online arbitrage sourcing",
		Long: `Looks up current pricing, fee estimates, sales rank and listing
restrictions for products on the marketplace, computes profitability against
your supplier cost and classifies each product as BUY, UNGATE or ELIMINATE.

Credentials are read from the environment: LWA_CLIENT_ID, LWA_CLIENT_SECRET
and LWA_REFRESH_TOKEN for API access, plus AWS_ACCESS_KEY_ID,
AWS_SECRET_ACCESS_KEY and AWS_ROLE_ARN for request signing.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.endpoint, "endpoint", "", "API endpoint (defaults to SP_API_ENDPOINT or the NA endpoint)")
	rootCmd.PersistentFlags().StringVar(&opts.region, "region", "", "AWS region for signing (defaults to AWS_REGION or us-east-1)")
	rootCmd.PersistentFlags().StringVar(&opts.marketplaceID, "marketplace", "", "marketplace ID (defaults to MARKETPLACE_ID)")
	rootCmd.PersistentFlags().StringVar(&opts.sellerID, "seller", "", "seller ID for restriction checks (defaults to SELLER_ID)")
	rootCmd.PersistentFlags().Float64Var(&opts.minProfit, "min-profit", defaultMinProfit, "minimum net profit to consider a product buyable")
	rootCmd.PersistentFlags().Float64Var(&opts.minROI, "min-roi", defaultMinROI, "minimum return on investment to consider a product buyable")

	rootCmd.AddCommand(newAnalyzeCmd(deps, opts))
	rootCmd.AddCommand(newBatchCmd(deps, opts))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func resolveAnalyzer(deps runDeps, opts *options) (analyzer, error) {
	opts.fillFromEnv(deps.getenv)
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return deps.newAnalyzer(*opts)
}
