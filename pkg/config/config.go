package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName string

	ServerPort int
	LogLevel   string

	DatabaseURL string

	SessionSecret    []byte
	SessionPublicKey []byte
	WebhookSecret    string
	IdentityAPIURL   string
	IdentityAPIKey   string

	StripeSecretKey    string
	PlatformFeePercent int64
	PublicURL          string

	CompensationAttempts int
	CompensationBackoff  time.Duration

	KafkaBrokers []string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	RateLimitRPS int
	CSRFEnabled  bool
}

func Load() Config {
	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "marketplace"),

		ServerPort: EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:   EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		SessionSecret:    []byte(os.Getenv("IDP_JWT_SECRET")),
		SessionPublicKey: []byte(os.Getenv("IDP_JWT_PUBLIC_KEY")),
		WebhookSecret:    os.Getenv("IDP_WEBHOOK_SECRET"),
		IdentityAPIURL:   EnvDefault("IDP_API_URL", "https://api.clerk.com/"),
		IdentityAPIKey:   os.Getenv("IDP_SECRET_KEY"),

		StripeSecretKey:    os.Getenv("STRIPE_SECRET_KEY"),
		PlatformFeePercent: int64(EnvIntDefault("PLATFORM_FEE_PERCENT", 10)),
		PublicURL:          strings.TrimRight(EnvDefault("PUBLIC_URL", "http://localhost:3000"), "/"),

		CompensationAttempts: EnvIntDefault("COMPENSATION_ATTEMPTS", 3),
		CompensationBackoff:  time.Duration(EnvIntDefault("COMPENSATION_BACKOFF_MS", 200)) * time.Millisecond,

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "products"),

		RateLimitRPS: EnvIntDefault("RATE_LIMIT_RPS", 10),
		CSRFEnabled:  EnvBoolDefault("CSRF_ENABLED", false),
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if os.Getenv(key) != "" {
		return os.Getenv(key)
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
