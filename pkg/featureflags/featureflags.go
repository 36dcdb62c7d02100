package featureflags

import (
	"context"

	"payouts-controlplane/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Flag names
const (
	// AmountEditAfterPayment allows amount edits on PAID and PROCESSING payments.
	AmountEditAfterPayment = "amount_edit_after_payment"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

type FeatureFlag interface {
	Enabled(ctx context.Context, identifier, name string) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithAnalytics(),
	}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

// Enabled reports whether name is on for identifier. Without a client, or on
// lookup failure, every flag is off.
func (s *featureflag) Enabled(ctx context.Context, identifier, name string) bool {
	if s == nil || s.client == nil {
		return false
	}

	var (
		flags flagsmith.Flags
		err   error
	)
	if identifier == "" {
		flags, err = s.client.GetEnvironmentFlags()
	} else {
		flags, err = s.client.GetIdentityFlags(identifier, nil)
	}
	if err != nil {
		zap.L().Warn("failed to fetch feature flags", zap.String("flag", name), zap.Error(err))
		return false
	}

	enabled, err := flags.IsFeatureEnabled(name)
	if err != nil {
		return false
	}
	return enabled
}

// Static is a fixed flag set, used when flagsmith is not configured and in tests.
type Static map[string]bool

func (s Static) Enabled(_ context.Context, _ string, name string) bool {
	return s[name]
}
