package auth

import (
	"context"
	"fmt"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const defaultSessionDuration = 3600 * time.Second

type configLoader interface {
	LoadDefaultConfig(ctx context.Context, optFns ...func(*config.LoadOptions) error) (awsv2.Config, error)
}

type defaultConfigLoader struct{}

func (defaultConfigLoader) LoadDefaultConfig(ctx context.Context, optFns ...func(*config.LoadOptions) error) (awsv2.Config, error) {
	return config.LoadDefaultConfig(ctx, optFns...)
}

type stsAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

type stsClientFactory interface {
	NewFromConfig(cfg awsv2.Config) stsAPI
}

type defaultSTSClientFactory struct{}

func (defaultSTSClientFactory) NewFromConfig(cfg awsv2.Config) stsAPI {
	return sts.NewFromConfig(cfg)
}

// ExchangeConfig carries the long-lived AWS key pair and the role to assume.
// Leaving AccessKeyID empty falls back to the ambient AWS credential chain
// (environment, shared config, instance metadata).
type ExchangeConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	RoleARN         string
	Region          string
	SessionDuration time.Duration // defaults to one hour
}

// STSExchanger assumes the configured role to obtain temporary, scoped
// credentials for request signing. Backed by AWS SDK v2.
type STSExchanger struct {
	loader     configLoader
	stsFactory stsClientFactory
	cfg        ExchangeConfig
	now        func() time.Time
}

// NewSTSExchanger creates an exchanger for the given configuration.
func NewSTSExchanger(cfg ExchangeConfig) *STSExchanger {
	return newSTSExchanger(defaultConfigLoader{}, defaultSTSClientFactory{}, cfg, time.Now)
}

func newSTSExchanger(loader configLoader, stsFactory stsClientFactory, cfg ExchangeConfig, now func() time.Time) *STSExchanger {
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = defaultSessionDuration
	}
	return &STSExchanger{
		loader:     loader,
		stsFactory: stsFactory,
		cfg:        cfg,
		now:        now,
	}
}

// Exchange performs a single AssumeRole call. The session name is unique per
// exchange so audit-trail entries do not collide. No retry happens here;
// retry policy belongs to the API client.
func (x *STSExchanger) Exchange(ctx context.Context) (TemporaryCredentials, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(x.cfg.Region)}
	if x.cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(x.cfg.AccessKeyID, x.cfg.SecretAccessKey, ""),
		))
	}

	cfg, err := x.loader.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return TemporaryCredentials{}, &AuthError{Op: "exchange", Message: "failed to load AWS config", Err: err}
	}

	issued := x.now()
	sessionName := fmt.Sprintf("sourcing-%d", issued.UnixNano())
	out, err := x.stsFactory.NewFromConfig(cfg).AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         awsv2.String(x.cfg.RoleARN),
		RoleSessionName: awsv2.String(sessionName),
		DurationSeconds: awsv2.Int32(int32(x.cfg.SessionDuration / time.Second)),
	})
	if err != nil {
		return TemporaryCredentials{}, &AuthError{
			Op:      "exchange",
			Message: fmt.Sprintf("failed to assume role %s: %s", x.cfg.RoleARN, scrub(err.Error(), x.cfg.SecretAccessKey)),
		}
	}
	if out.Credentials == nil {
		return TemporaryCredentials{}, &AuthError{Op: "exchange", Message: "STS AssumeRole returned empty credentials"}
	}

	creds := TemporaryCredentials{
		AccessKeyID:     awsv2.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: awsv2.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    awsv2.ToString(out.Credentials.SessionToken),
		IssuedAt:        issued,
	}
	if out.Credentials.Expiration != nil {
		creds.ExpiresAt = *out.Credentials.Expiration
	} else {
		creds.ExpiresAt = issued.Add(x.cfg.SessionDuration)
	}
	return creds, nil
}
