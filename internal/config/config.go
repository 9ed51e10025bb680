package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DatabaseURL string

	// Kafka
	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string

	// API Configuration
	APIPort string
	APIHost string

	// BackendURL is where the storefront runtime fetches form config and
	// creates orders. Usually this same service.
	BackendURL string

	// StorefrontScheme is used to reach shop domains ("https" outside tests).
	StorefrontScheme string

	// CORS origins allowed to call the widget endpoints. "*" allows any shop.
	CORSAllowedOrigins []string

	// Static token guarding the merchant-facing JSON endpoints.
	AdminToken string

	// Shopify app secret, used to verify webhook signatures.
	ShopifyAPISecret string

	// Storefront runtime
	WidgetSessionTTL   time.Duration
	VariantSettleDelay time.Duration
	BlockedResetDelay  time.Duration
	DefaultFormPath    string
	// Keep the shopper cart in step with variant and quantity changes.
	SyncCart bool

	// Environment
	Env      string
	LogLevel string
}

func Load() (*Config, error) {
	// Load .env file
	godotenv.Load()

	port := getEnv("API_PORT", "8080")
	return &Config{
		DatabaseURL:        getEnv("DATABASE_URL", "sqlite://codform.db"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "order-events"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "codform-worker"),
		APIPort:            port,
		APIHost:            getEnv("API_HOST", "0.0.0.0"),
		BackendURL:         getEnv("BACKEND_URL", "http://localhost:"+port),
		StorefrontScheme:   getEnv("STOREFRONT_SCHEME", "https"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AdminToken:         getEnv("ADMIN_TOKEN", ""),
		ShopifyAPISecret:   getEnv("SHOPIFY_API_SECRET", ""),
		WidgetSessionTTL:   getEnvAsDuration("WIDGET_SESSION_TTL", 30*time.Minute),
		VariantSettleDelay: getEnvAsDuration("VARIANT_SETTLE_DELAY", 100*time.Millisecond),
		BlockedResetDelay:  getEnvAsDuration("BLOCKED_RESET_DELAY", 5*time.Second),
		DefaultFormPath:    getEnv("DEFAULT_FORM_PATH", ""),
		SyncCart:           getEnvAsBool("WIDGET_SYNC_CART", false),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}, nil
}

// KafkaBrokerList splits the comma separated broker setting.
func (c *Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("150ms") or plain milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms := getEnvAsInt(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
