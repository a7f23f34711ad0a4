package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config      = viper.New()
	backend     = "consul"
	backendAddr = "127.0.0.1:8500"
	backendPath = "development" // e.g., app/<env>/<service_name>
	configType  = "yaml"
)

type Config struct {
	Platform struct {
		Name     string `mapstructure:"NAME"`
		Timezone string `mapstructure:"TIMEZONE"`
	} `mapstructure:"PLATFORM"`
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
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
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
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Billing     BillingConfig     `mapstructure:"BILLING"`
	MercadoPago MercadoPagoConfig `mapstructure:"MERCADOPAGO"`
}

// BillingConfig drives the platform fee engine.
type BillingConfig struct {
	CronSecret      string        `mapstructure:"CRON_SECRET"`
	InvoiceStartDay int           `mapstructure:"INVOICE_START_DAY"`
	GraceDay        int           `mapstructure:"GRACE_DAY"`
	LookbackMonths  int           `mapstructure:"LOOKBACK_MONTHS"`
	PollInterval    time.Duration `mapstructure:"POLL_INTERVAL"`
	Currency        string        `mapstructure:"CURRENCY"`
}

type MercadoPagoConfig struct {
	BaseURL         string        `mapstructure:"BASE_URL"`
	AccessToken     string        `mapstructure:"ACCESS_TOKEN"`
	WebhookSecret   string        `mapstructure:"WEBHOOK_SECRET"`
	NotificationURL string        `mapstructure:"NOTIFICATION_URL"`
	Timeout         time.Duration `mapstructure:"TIMEOUT"`
	PixExpiration   time.Duration `mapstructure:"PIX_EXPIRATION"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

// RemoteModule reads the config from a viper remote provider instead of
// config.yaml. Environment variables still override remote values.
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

// Select picks RemoteModule when REMOTE_CONFIG_PROVIDER is set.
func Select() fx.Option {
	if _, ok := remoteSourceFromEnv(); ok {
		return RemoteModule
	}
	return Module
}

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

// envOnlyKeys have no default, so AutomaticEnv alone would not surface them
// to Unmarshal.
var envOnlyKeys = []string{
	"APP_VERSION",
	"PLATFORM.NAME",
	"TLS.ENABLE",
	"TLS.CERT_PATH",
	"TLS.KEY_PATH",
	"OTEL.ADDR",
	"PYROSCOPE.ADDR",
	"DATABASE.HOST",
	"DATABASE.PORT",
	"DATABASE.DBNAME",
	"DATABASE.USER",
	"DATABASE.PASSWORD",
	"DATABASE.AUTO_MIGRATE",
	"DATABASE.CONNECTION_POOL.MAX_IDLE_CONN",
	"DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS",
	"DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME",
	"DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME",
	"REDIS.PASSWORD",
	"REDIS.DB",
	"FLAGSMITH.ADDR",
	"FLAGSMITH.API_KEY",
	"BILLING.CRON_SECRET",
	"MERCADOPAGO.ACCESS_TOKEN",
	"MERCADOPAGO.WEBHOOK_SECRET",
	"MERCADOPAGO.NOTIFICATION_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "barbershop-billing")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("PLATFORM.TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("BILLING.INVOICE_START_DAY", 5)
	v.SetDefault("BILLING.GRACE_DAY", 15)
	v.SetDefault("BILLING.LOOKBACK_MONTHS", 3)
	v.SetDefault("BILLING.POLL_INTERVAL", 5*time.Second)
	v.SetDefault("BILLING.CURRENCY", "BRL")
	v.SetDefault("MERCADOPAGO.BASE_URL", "https://api.mercadopago.com")
	v.SetDefault("MERCADOPAGO.TIMEOUT", 30*time.Second)
	v.SetDefault("MERCADOPAGO.PIX_EXPIRATION", 24*time.Hour)
}

func prepare(v *viper.Viper) error {
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key, strings.ReplaceAll(key, ".", "_")); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// load reads ./config.yaml when present, then the environment.
func load(v *viper.Viper) (*Config, error) {
	if err := prepare(v); err != nil {
		return nil, err
	}

	v.SetConfigName("config")
	v.SetConfigType(configType)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func LoadConfig(p Params) (*Config, error) {
	// .env is optional, real environment variables win.
	_ = godotenv.Load()

	cfg, err := load(config)
	if err != nil {
		zap.L().Error("failed to load config", zap.Error(err))
		return nil, err
	}

	if p.Vault != nil {
		if err := applySecrets(p.Vault, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

type remoteSource struct {
	provider string
	addr     string
	path     string
}

func remoteSourceFromEnv() (remoteSource, bool) {
	src := remoteSource{provider: backend, addr: backendAddr, path: backendPath}
	provider, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER")
	if !ok || provider == "" {
		return src, false
	}
	src.provider = provider
	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok && v != "" {
		src.addr = v
	}
	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok && v != "" {
		src.path = v
	}
	return src, true
}

func LoadRemote(p Params) (*Config, error) {
	src, _ := remoteSourceFromEnv()

	if err := prepare(config); err != nil {
		return nil, err
	}
	config.SetConfigType(configType)
	if err := config.AddRemoteProvider(src.provider, src.addr, src.path); err != nil {
		return nil, fmt.Errorf("add remote provider %s: %w", src.provider, err)
	}

	zap.L().Info("reading remote config",
		zap.String("provider", src.provider),
		zap.String("addr", src.addr),
		zap.String("path", src.path),
	)
	if err := config.ReadRemoteConfig(); err != nil {
		zap.L().Error("failed to read remote config", zap.Error(err))
		return nil, fmt.Errorf("read remote config: %w", err)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal remote config: %w", err)
	}

	if p.Vault != nil {
		if err := applySecrets(p.Vault, &cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func applySecrets(client *vault.Client, cfg *Config) error {
	ctx := context.Background()

	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		return fmt.Errorf("read vault secret %s: %w", cfg.AppEnv, err)
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)
	cfg.Billing.CronSecret = get("cron_secret", cfg.Billing.CronSecret)
	cfg.MercadoPago.AccessToken = get("mercadopago_access_token", cfg.MercadoPago.AccessToken)
	cfg.MercadoPago.WebhookSecret = get("mercadopago_webhook_secret", cfg.MercadoPago.WebhookSecret)
	return nil
}

// Location resolves the platform timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Platform.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Platform.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
