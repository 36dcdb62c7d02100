package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DefaultRevertProcessingAfter is how long a release must stay pending before
// its payments may be pushed back to OWED.
const DefaultRevertProcessingAfter = 12 * time.Hour

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr        string  `mapstructure:"ADDR"`
		Insecure    bool    `mapstructure:"INSECURE"`
		SampleRatio float64 `mapstructure:"SAMPLE_RATIO"`
	} `mapstructure:"OTEL"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
		DrainTimeout time.Duration `mapstructure:"DRAIN_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string        `mapstructure:"TYPE"`
		Host           string        `mapstructure:"HOST"`
		Port           string        `mapstructure:"PORT"`
		DBNAME         string        `mapstructure:"DBNAME"`
		User           string        `mapstructure:"USER"`
		Password       string        `mapstructure:"PASSWORD"`
		SSLMode        string        `mapstructure:"SSLMODE"`
		Timezone       string        `mapstructure:"TIMEZONE"`
		MetricsPort    uint32        `mapstructure:"METRICS_PORT"`
		SlowQuery      time.Duration `mapstructure:"SLOW_QUERY"`
		ConnectRetries int           `mapstructure:"CONNECT_RETRIES"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Provider struct {
		BaseURL          string        `mapstructure:"BASE_URL"`
		APIKey           string        `mapstructure:"API_KEY"`
		Timeout          time.Duration `mapstructure:"TIMEOUT"`
		WebhookSecret    string        `mapstructure:"WEBHOOK_SECRET"`
		WebhookTolerance time.Duration `mapstructure:"WEBHOOK_TOLERANCE"`
	} `mapstructure:"PROVIDER"`
	Payments struct {
		MinPayoutAmount       string        `mapstructure:"MIN_PAYOUT_AMOUNT"`
		RevertProcessingAfter time.Duration `mapstructure:"REVERT_PROCESSING_AFTER"`
		DefaultCurrency       string        `mapstructure:"DEFAULT_CURRENCY"`
		EligibilityPolicy     string        `mapstructure:"ELIGIBILITY_POLICY"`
		AsyncReconcile        bool          `mapstructure:"ASYNC_RECONCILE"`
		AsyncBatchKickoff     bool          `mapstructure:"ASYNC_BATCH_KICKOFF"`
		ReconcileConcurrency  int           `mapstructure:"RECONCILE_CONCURRENCY"`
		WorkerConcurrency     int           `mapstructure:"WORKER_CONCURRENCY"`
	} `mapstructure:"PAYMENTS"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
}

// MinPayout is the provider's minimum payable amount. Unparseable values fall back to 50.
func (c *Config) MinPayout() decimal.Decimal {
	amount, err := decimal.NewFromString(c.Payments.MinPayoutAmount)
	if err != nil {
		return decimal.NewFromInt(50)
	}
	return amount
}

// RevertThreshold is the minimum age of a pending release before its payments may revert to OWED.
func (c *Config) RevertThreshold() time.Duration {
	if c.Payments.RevertProcessingAfter <= 0 {
		return DefaultRevertProcessingAfter
	}
	return c.Payments.RevertProcessingAfter
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "payouts")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.DRAIN_TIMEOUT", 20*time.Second)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SLOW_QUERY", 200*time.Millisecond)
	v.SetDefault("DATABASE.CONNECT_RETRIES", 5)
	v.SetDefault("PROVIDER.TIMEOUT", 15*time.Second)
	v.SetDefault("PROVIDER.WEBHOOK_TOLERANCE", 5*time.Minute)
	v.SetDefault("PAYMENTS.MIN_PAYOUT_AMOUNT", "50")
	v.SetDefault("PAYMENTS.REVERT_PROCESSING_AFTER", DefaultRevertProcessingAfter)
	v.SetDefault("PAYMENTS.DEFAULT_CURRENCY", "USD")
	v.SetDefault("PAYMENTS.RECONCILE_CONCURRENCY", 4)
	v.SetDefault("PAYMENTS.WORKER_CONCURRENCY", 10)
	v.SetDefault("OTEL.INSECURE", true)
	v.SetDefault("OTEL.SAMPLE_RATIO", 1.0)
}

func LoadConfig(p Params) *Config {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config.yaml", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := overlaySecrets(context.Background(), p.Vault, &cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return &cfg
}

// overlaySecrets replaces credentials with values from the vault KV path named after APP_ENV.
func overlaySecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("reading secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		return err
	}

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("database_user", cfg.Database.User)
	cfg.Database.Password = get("database_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Provider.APIKey = get("provider_api_key", cfg.Provider.APIKey)
	cfg.Provider.WebhookSecret = get("provider_webhook_secret", cfg.Provider.WebhookSecret)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)

	return nil
}
