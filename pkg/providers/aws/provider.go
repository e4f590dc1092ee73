// Package aws implements the CloudProvider boundary over the AWS control
// plane: IAM for the execution role, Lambda for the function, EventBridge
// for the schedule rule and target binding.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog/log"

	"github.com/cronverge/cronverge/pkg/engine"
	"github.com/cronverge/cronverge/pkg/providers"
)

// defaultRegion is used when neither the environment nor the options name one.
const defaultRegion = "us-east-1"

// Provider implements engine.CloudProvider against AWS. One SDK call per
// operation and no internal retries: the SDK retryer is disabled so the
// engine's retry budget is the only one, and attempt counts in reports stay
// truthful.
type Provider struct {
	iam    *iam.Client
	lambda *lambda.Client
	events *eventbridge.Client
	sts    *sts.Client
	region string
}

var _ engine.CloudProvider = (*Provider)(nil)

// Option is a functional option for provider configuration.
type Option func(*providerOptions)

type providerOptions struct {
	profile  string
	region   string
	endpoint string
}

// WithRegion specifies the AWS region.
func WithRegion(region string) Option {
	return func(o *providerOptions) {
		o.region = region
	}
}

// WithProfile specifies the AWS shared-config profile to use.
func WithProfile(profile string) Option {
	return func(o *providerOptions) {
		o.profile = profile
	}
}

// WithEndpoint overrides the service endpoint for every client. Intended for
// local stacks in development and integration tests.
func WithEndpoint(endpoint string) Option {
	return func(o *providerOptions) {
		o.endpoint = endpoint
	}
}

// loadAWSConfig loads the AWS configuration with an optional profile. The
// standard retryer is replaced with a no-op one; retrying is the engine's
// job.
func loadAWSConfig(ctx context.Context, profile string) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if profile != "" {
		optFns = append(optFns, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, engine.NewUnknownError("failed to load AWS config", err).
			WithOperation("LoadDefaultConfig")
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	return cfg, nil
}

// New creates a provider from the default credential chain.
func New(ctx context.Context, options ...Option) (*Provider, error) {
	opts := &providerOptions{}
	for _, opt := range options {
		opt(opts)
	}

	cfg, err := loadAWSConfig(ctx, opts.profile)
	if err != nil {
		return nil, err
	}
	if opts.region != "" {
		cfg.Region = opts.region
	}

	return NewFromConfig(cfg, options...), nil
}

// NewFromConfig creates a provider over an already loaded AWS configuration.
func NewFromConfig(cfg aws.Config, options ...Option) *Provider {
	opts := &providerOptions{}
	for _, opt := range options {
		opt(opts)
	}

	p := &Provider{
		iam: iam.NewFromConfig(cfg, func(o *iam.Options) {
			if opts.endpoint != "" {
				o.BaseEndpoint = aws.String(opts.endpoint)
			}
		}),
		lambda: lambda.NewFromConfig(cfg, func(o *lambda.Options) {
			if opts.endpoint != "" {
				o.BaseEndpoint = aws.String(opts.endpoint)
			}
		}),
		events: eventbridge.NewFromConfig(cfg, func(o *eventbridge.Options) {
			if opts.endpoint != "" {
				o.BaseEndpoint = aws.String(opts.endpoint)
			}
		}),
		sts: sts.NewFromConfig(cfg, func(o *sts.Options) {
			if opts.endpoint != "" {
				o.BaseEndpoint = aws.String(opts.endpoint)
			}
		}),
		region: cfg.Region,
	}

	log.Debug().
		Str("region", p.region).
		Bool("custom_endpoint", opts.endpoint != "").
		Msg("AWS provider initialized")

	return p
}

// Region returns the region the provider operates in.
func (p *Provider) Region() string {
	return p.region
}

// Identity describes the caller the provider authenticates as.
type Identity struct {
	// AccountID is the AWS account identifier.
	AccountID string `json:"account_id"`

	// ARN is the caller identity ARN.
	ARN string `json:"arn"`

	// UserID is the unique identifier of the calling entity.
	UserID string `json:"user_id"`
}

// Identity resolves the caller identity, validating credentials in the
// process.
func (p *Provider) Identity(ctx context.Context) (*Identity, error) {
	out, err := p.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, classify(err, "GetCallerIdentity", "")
	}

	return &Identity{
		AccountID: aws.ToString(out.Account),
		ARN:       aws.ToString(out.Arn),
		UserID:    aws.ToString(out.UserId),
	}, nil
}

func init() {
	providers.Register("aws", func(ctx context.Context, cfg providers.Config) (engine.CloudProvider, error) {
		return New(ctx,
			WithRegion(cfg.Region),
			WithProfile(cfg.Profile),
			WithEndpoint(cfg.Endpoint),
		)
	})
}
