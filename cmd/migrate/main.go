package main

import (
	"context"
	"log"

	"payouts-controlplane/pkg/config"
	"payouts-controlplane/pkg/db"
	"payouts-controlplane/pkg/hashistack/secretmanager"
	"payouts-controlplane/pkg/logger"
	"payouts-controlplane/services/eligibility"
	"payouts-controlplane/services/webhook"
	"payouts-controlplane/services/winning"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		fx.Invoke(migrate),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	_ = app.Stop(context.Background())
}

func migrate(db *gorm.DB) error {
	models := winning.Models()
	models = append(models,
		&eligibility.UserTaxForm{},
		&eligibility.UserPaymentMethod{},
		&webhook.Event{},
	)

	if err := db.AutoMigrate(models...); err != nil {
		zap.L().Error("auto migrate failed", zap.Error(err))
		return err
	}

	zap.L().Info("schema migrated", zap.Int("tables", len(models)))
	return nil
}
