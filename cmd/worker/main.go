package main

import (
	"log"

	"payouts-controlplane/pkg/config"
	"payouts-controlplane/pkg/db"
	"payouts-controlplane/pkg/gen"
	"payouts-controlplane/pkg/hashistack/secretmanager"
	"payouts-controlplane/pkg/logger"
	"payouts-controlplane/pkg/otelcol"
	"payouts-controlplane/pkg/provider"
	"payouts-controlplane/pkg/task"
	"payouts-controlplane/services/eligibility"
	"payouts-controlplane/services/reconcile"
	"payouts-controlplane/services/settlement"
	"payouts-controlplane/services/winning"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// The worker consumes payments:reconcile and release:batch:kickoff tasks.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		provider.Module,
		task.Server,
		gen.Module,
		fx.Provide(provideEligibilityChecker),
		eligibility.Module,
		reconcile.Worker,
		settlement.Worker,
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
