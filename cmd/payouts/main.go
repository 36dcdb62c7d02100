package main

import (
	"log"

	"payouts-controlplane/pkg/access"
	"payouts-controlplane/pkg/config"
	"payouts-controlplane/pkg/db"
	"payouts-controlplane/pkg/gen"
	"payouts-controlplane/pkg/featureflags"
	"payouts-controlplane/pkg/hashistack/secretmanager"
	"payouts-controlplane/pkg/health"
	"payouts-controlplane/pkg/httpapi"
	"payouts-controlplane/pkg/logger"
	"payouts-controlplane/pkg/otelcol"
	"payouts-controlplane/pkg/provider"
	"payouts-controlplane/pkg/redis"
	"payouts-controlplane/pkg/sequence"
	"payouts-controlplane/pkg/server"
	"payouts-controlplane/pkg/task"
	"payouts-controlplane/services/eligibility"
	"payouts-controlplane/services/reconcile"
	"payouts-controlplane/services/settlement"
	"payouts-controlplane/services/webhook"
	"payouts-controlplane/services/winning"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		task.Client,
		provider.Module,
		featureflags.Module,
		access.Module,
		httpapi.Module,
		health.Module,
		gen.Module,
		fx.Provide(provideEligibilityChecker),
		eligibility.Module,
		winning.Module,
		reconcile.Module,
		settlement.Module,
		webhook.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
})

func provideEligibilityChecker(s *eligibility.Service) winning.EligibilityChecker {
	return s
}
