package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from the environment.
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	CommerceURL            string `envconfig:"COMMERCE_URL" default:"http://localhost:9000"`
	CommercePublishableKey string `envconfig:"COMMERCE_PUBLISHABLE_KEY"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092,localhost:9093,localhost:9094"`
	CartTopic     string   `envconfig:"CART_TOPIC" default:"cart-topic"`
	CatalogTopic  string   `envconfig:"CATALOG_TOPIC" default:"catalog-topic"`
	ConsumerGroup string   `envconfig:"CONSUMER_GROUP" default:"storefront-service-group"`

	DBHost string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort string `envconfig:"DB_PORT" default:"3306"`
	DBUser string `envconfig:"DB_USER" default:"root"`
	DBPass string `envconfig:"DB_PASS"`
	DBName string `envconfig:"DB_NAME" default:"storefront-db"`

	JWTSecret string `envconfig:"JWT_SECRET" default:"secret"`

	SyncDebounce       time.Duration `envconfig:"SYNC_DEBOUNCE" default:"1s"`
	ToggleLockout      time.Duration `envconfig:"TOGGLE_LOCKOUT" default:"500ms"`
	CatalogCacheTTL    time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"1m"`
	SessionIdleTimeout time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`

	ModalBreakpoint int    `envconfig:"MODAL_BREAKPOINT" default:"768"`
	DefaultCountry  string `envconfig:"DEFAULT_COUNTRY" default:"fr"`
	AddonsFile      string `envconfig:"ADDONS_FILE"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &cfg, nil
}

// DSN builds the MySQL data source name.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}
