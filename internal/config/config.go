package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv    string `mapstructure:"APP_ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	HTTPPort           string        `mapstructure:"HTTP_PORT"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout    time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	MaxRequestBodySize int64         `mapstructure:"MAX_REQUEST_BODY_SIZE"`
	CookieSecure       bool          `mapstructure:"COOKIE_SECURE"`

	BackendURL     string        `mapstructure:"BACKEND_URL"`
	BackendTimeout time.Duration `mapstructure:"BACKEND_TIMEOUT"`

	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	PriceCacheTTL        time.Duration `mapstructure:"PRICE_CACHE_TTL"`
	PricingMaxConcurrent int           `mapstructure:"PRICING_MAX_CONCURRENT"`
	PricingFetchTimeout  time.Duration `mapstructure:"PRICING_FETCH_TIMEOUT"`

	SessionTTL       time.Duration `mapstructure:"SESSION_TTL"`
	TokenRefreshSkew time.Duration `mapstructure:"TOKEN_REFRESH_SKEW"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`
	KafkaGroupID string   `mapstructure:"KAFKA_GROUP_ID"`

	AuditDBDriver string `mapstructure:"AUDIT_DB_DRIVER"`
	AuditDBDSN    string `mapstructure:"AUDIT_DB_DSN"`
}

var defaults = map[string]any{
	"APP_ENV":    "development",
	"LOG_LEVEL":  "info",
	"LOG_PRETTY": false,

	"HTTP_PORT":             "8080",
	"REQUEST_TIMEOUT":       30 * time.Second,
	"SHUTDOWN_TIMEOUT":      10 * time.Second,
	"MAX_REQUEST_BODY_SIZE": int64(1 << 20), // 1MB
	"COOKIE_SECURE":         false,

	"BACKEND_URL":     "http://localhost:8000",
	"BACKEND_TIMEOUT": 10 * time.Second,

	"MONGO_URI":     "mongodb://localhost:27017",
	"MONGO_DB_NAME": "storefront",

	"REDIS_ADDR":     "localhost:6379",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"PRICE_CACHE_TTL":        30 * time.Second,
	"PRICING_MAX_CONCURRENT": 8,
	"PRICING_FETCH_TIMEOUT":  3 * time.Second,

	"SESSION_TTL":        14 * 24 * time.Hour,
	"TOKEN_REFRESH_SKEW": 30 * time.Second,

	"KAFKA_BROKERS":  []string{},
	"KAFKA_TOPIC":    "catalog-changes",
	"KAFKA_GROUP_ID": "storefront-gateway",

	"AUDIT_DB_DRIVER": "sqlite",
	"AUDIT_DB_DSN":    "file:audit.db?_pragma=busy_timeout(5000)",
}

// Load reads CONFIG_FILE when set and lets environment variables override it.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = splitBrokers(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BACKEND_URL %q is not an absolute URL", c.BackendURL))
	}
	if c.HTTPPort == "" {
		errs = append(errs, errors.New("HTTP_PORT is required"))
	}
	if c.PricingMaxConcurrent <= 0 {
		errs = append(errs, errors.New("PRICING_MAX_CONCURRENT must be positive"))
	}
	if c.PriceCacheTTL <= 0 {
		errs = append(errs, errors.New("PRICE_CACHE_TTL must be positive"))
	}
	switch c.AuditDBDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("AUDIT_DB_DRIVER %q is not supported", c.AuditDBDriver))
	}

	return errors.Join(errs...)
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func splitBrokers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, b := range strings.Split(item, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}
