package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
	TimeZone string
}

// Enabled reports whether the payment ledger database is configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		p.Host, p.User, p.Password, p.DB, p.Port, p.SSLMode, p.TimeZone,
	)
}

type Config struct {
	Port string
	Env  string

	MongoURI string
	MongoDB  string

	RedisURL       string
	CartCacheTTL   time.Duration
	IdempotencyTTL time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeTimeout       time.Duration
	Currency            string

	JWTSecret           string
	TrustGatewayHeaders bool
	AllowedOrigins      []string

	InventoryBackend string
	InventoryTable   string

	Postgres PostgresConfig

	OrderEventsTopicARN string
	CloudWatchEnabled   bool
	CloudWatchNamespace string
	CloudWatchLogGroup  string

	AWSUseSecrets bool
	SecretsPrefix string
}

const (
	InventoryBackendMongo    = "mongo"
	InventoryBackendDynamoDB = "dynamodb"
)

// SecretSource is satisfied by the Secrets Manager client.
type SecretSource interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// Load reads configuration from the environment, loading a .env file first
// when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "5000"),
		Env:                 getEnv("APP_ENV", "development"),
		MongoURI:            os.Getenv("MONGO_URI"),
		MongoDB:             getEnv("MONGO_DB", "urban_athlete"),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379"),
		CartCacheTTL:        getDuration("CART_CACHE_TTL", 15*time.Minute),
		IdempotencyTTL:      getDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		StripeSecretKey:     os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeTimeout:       getDuration("STRIPE_TIMEOUT", 10*time.Second),
		Currency:            strings.ToLower(getEnv("CURRENCY", "usd")),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		TrustGatewayHeaders: getBool("TRUST_GATEWAY_HEADERS", false),
		AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		InventoryBackend:    strings.ToLower(getEnv("INVENTORY_BACKEND", InventoryBackendMongo)),
		InventoryTable:      getEnv("DDB_TABLE_INVENTORY", "inventory"),
		Postgres: PostgresConfig{
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DB:       os.Getenv("POSTGRES_DB"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		OrderEventsTopicARN: os.Getenv("ORDER_EVENTS_TOPIC_ARN"),
		CloudWatchEnabled:   getBool("CLOUDWATCH_ENABLED", false),
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "SportyUrban"),
		CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", "/sporty-urban/checkout"),
		AWSUseSecrets:       getBool("AWS_USE_SECRETS", false),
		SecretsPrefix:       getEnv("AWS_SECRETS_PREFIX", "checkout"),
	}

	return cfg, nil
}

// ApplySecrets overrides credentials with values stored in Secrets Manager
// under <prefix>/STRIPE, <prefix>/JWT and <prefix>/DB_CREDENTIALS. Missing
// secrets leave the environment values in place.
func (c *Config) ApplySecrets(ctx context.Context, src SecretSource) {
	if m, err := src.GetSecretMap(ctx, c.SecretsPrefix+"/STRIPE"); err == nil {
		setIfPresent(&c.StripeSecretKey, m, "STRIPE_API_KEY")
		setIfPresent(&c.StripeWebhookSecret, m, "STRIPE_WEBHOOK_SECRET")
	}
	if m, err := src.GetSecretMap(ctx, c.SecretsPrefix+"/JWT"); err == nil {
		setIfPresent(&c.JWTSecret, m, "JWT_SECRET")
	}
	if m, err := src.GetSecretMap(ctx, c.SecretsPrefix+"/DB_CREDENTIALS"); err == nil {
		setIfPresent(&c.MongoURI, m, "MONGO_URI")
		setIfPresent(&c.Postgres.User, m, "POSTGRES_USER")
		setIfPresent(&c.Postgres.Password, m, "POSTGRES_PASSWORD")
		setIfPresent(&c.Postgres.Host, m, "POSTGRES_HOST")
		setIfPresent(&c.Postgres.DB, m, "POSTGRES_DB")
	}
}

// Validate checks that everything the service cannot start without is set.
func (c *Config) Validate() error {
	var missing []string
	if c.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}
	if c.JWTSecret == "" && !c.TrustGatewayHeaders {
		missing = append(missing, "JWT_SECRET")
	}
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_API_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.Postgres.Enabled() && (c.Postgres.User == "" || c.Postgres.DB == "") {
		missing = append(missing, "POSTGRES_USER/POSTGRES_DB")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	switch c.InventoryBackend {
	case InventoryBackendMongo, InventoryBackendDynamoDB:
	default:
		return fmt.Errorf("unknown INVENTORY_BACKEND %q", c.InventoryBackend)
	}
	if c.StripeTimeout <= 0 {
		return fmt.Errorf("STRIPE_TIMEOUT must be positive")
	}
	return nil
}

func setIfPresent(dst *string, m map[string]string, key string) {
	if v, ok := m[key]; ok && v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
