package db

import (
	"context"
	"fmt"
	"time"

	"payouts-controlplane/pkg/config"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
)

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
	fx.Invoke(
		RegisterConnectionPool,
		RegisterPlugins,
	),
)

const connectBackoff = 3 * time.Second

// New opens the payouts database, retrying while it comes up.
func New(cfg *config.Config, dialector gorm.Dialector) (*gorm.DB, error) {
	level, showSQL := logger.Info, true
	if cfg.AppEnv == "production" {
		level, showSQL = logger.Warn, false
	}

	gcfg := &gorm.Config{
		Logger:  newGormLogger(level, cfg.Database.SlowQuery, showSQL),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	attempts := cfg.Database.ConnectRetries
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var db *gorm.DB
		if db, err = gorm.Open(dialector, gcfg); err == nil {
			zap.L().Info("database connected", zap.String("dialect", dialector.Name()), zap.Int("attempt", attempt))
			return db, nil
		}
		zap.L().Warn("database not ready", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < attempts {
			time.Sleep(connectBackoff)
		}
	}
	return nil, fmt.Errorf("open %s database: %w", dialector.Name(), err)
}

type connectionPoolParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	DB        *gorm.DB
	Config    *config.Config
}

func RegisterConnectionPool(p connectionPoolParams) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}

	cp := p.Config.Database.ConnectionPool
	if cp.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cp.MaxIdleConn)
	}
	if cp.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cp.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cp.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cp.ConnMaxIdleTime)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(context.Context) error {
			return sqlDB.Close()
		},
	})
	return nil
}

// RegisterPlugins wires tracing and, when DATABASE.METRICS_PORT is set, pool metrics.
func RegisterPlugins(db *gorm.DB, cfg *config.Config) error {
	if err := db.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Database.DBNAME))); err != nil {
		return fmt.Errorf("register otelgorm: %w", err)
	}

	if cfg.Database.MetricsPort == 0 {
		return nil
	}

	var collectors []prometheus.MetricsCollector
	if db.Dialector.Name() == "postgres" {
		collectors = append(collectors, &prometheus.Postgres{VariableNames: []string{"Threads_running"}})
	}

	return db.Use(prometheus.New(prometheus.Config{
		DBName:           cfg.Database.DBNAME,
		RefreshInterval:  15,
		StartServer:      true,
		HTTPServerPort:   cfg.Database.MetricsPort,
		MetricsCollector: collectors,
	}))
}
