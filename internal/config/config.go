package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPPort    string
	NodeID      int64

	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OtelSamplingRatio float64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBLogLevel        string

	// Statements slower than these are logged at warn. The ledger threshold
	// covers orders, wallets, payouts, refunds and webhook_events.
	DBSlowQuery       time.Duration
	DBLedgerSlowQuery time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Kafka KafkaConfig

	Stripe StripeConfig

	SlackWebhookURL string
	OperatorUserIDs []string

	Sweep     SweepConfig
	RateLimit RateLimitConfig

	PaymentsConfigWatch bool
	SeedDemoData        bool
}

// RateLimitConfig bounds money-moving requests per user.
type RateLimitConfig struct {
	Enabled   bool
	PerSecond float64
	Burst     int
}

// SweepConfig drives the background reconciliation sweeper. Durations are
// read from the environment in seconds.
type SweepConfig struct {
	Enabled              bool
	Interval             time.Duration
	BatchSize            int
	PayoutRefreshAfter   time.Duration
	RefundStaleAfter     time.Duration
	UnresolvedAlertAfter time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type StripeConfig struct {
	SecretKey         string
	WebhookSecret     string
	MaxNetworkRetries int64
	SuccessURL        string
	CancelURL         string
	OnboardReturnURL  string
	OnboardRefreshURL string
	DemoSellerAccount string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "shelfpay"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPPort:          getenv("HTTP_PORT", "8080"),
		NodeID:            getenvInt64("SNOWFLAKE_NODE", 1),
		LogLevel:          strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:         strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:       getenvBool("OTEL_ENABLED", true),
		OTLPEndpoint:      strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
		OTLPProtocol:      otlpProtocol(),
		OtelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "shelfpay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBLogLevel:        strings.ToLower(strings.TrimSpace(getenv("DATABASE_LOG_LEVEL", "warn"))),
		DBSlowQuery:       getenvMillis("DATABASE_SLOW_QUERY_MS", 200*time.Millisecond),
		DBLedgerSlowQuery: getenvMillis("DATABASE_LEDGER_SLOW_QUERY_MS", 50*time.Millisecond),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           int(getenvInt64("REDIS_DB", 0)),
		Kafka: KafkaConfig{
			Brokers: splitList(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_TOPIC", "shelfpay.payments"),
		},
		Stripe: StripeConfig{
			SecretKey:         strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:     strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			MaxNetworkRetries: getenvInt64("STRIPE_MAX_NETWORK_RETRIES", 2),
			SuccessURL:        getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/orders/success"),
			CancelURL:         getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/orders/cancel"),
			OnboardReturnURL:  getenv("ONBOARD_RETURN_URL", "http://localhost:3000/account/payouts"),
			OnboardRefreshURL: getenv("ONBOARD_REFRESH_URL", "http://localhost:3000/account/payouts/retry"),
			DemoSellerAccount: strings.TrimSpace(getenv("STRIPE_DEMO_SELLER_ACCOUNT", "")),
		},
		Sweep: SweepConfig{
			Enabled:              getenvBool("SWEEP_ENABLED", true),
			Interval:             getenvSeconds("SWEEP_INTERVAL_SECONDS", time.Minute),
			BatchSize:            int(getenvInt64("SWEEP_BATCH_SIZE", 50)),
			PayoutRefreshAfter:   getenvSeconds("SWEEP_PAYOUT_REFRESH_AFTER_SECONDS", 30*time.Minute),
			RefundStaleAfter:     getenvSeconds("SWEEP_REFUND_STALE_AFTER_SECONDS", time.Hour),
			UnresolvedAlertAfter: getenvSeconds("SWEEP_UNRESOLVED_ALERT_AFTER_SECONDS", time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:   getenvBool("RATE_LIMIT_ENABLED", true),
			PerSecond: getenvFloat("RATE_LIMIT_PER_SECOND", 0.5),
			Burst:     int(getenvInt64("RATE_LIMIT_BURST", 5)),
		},
		SlackWebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
		OperatorUserIDs: splitList(getenv("OPERATOR_USER_IDS", "")),

		PaymentsConfigWatch: getenvBool("PAYMENTS_CONFIG_WATCH", true),
		SeedDemoData:        getenvBool("SEED_DEMO_DATA", false),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvSeconds(key string, def time.Duration) time.Duration {
	secs := getenvInt64(key, -1)
	if secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

func getenvMillis(key string, def time.Duration) time.Duration {
	ms := getenvInt64(key, -1)
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// otlpProtocol prefers the trace-specific variable over the shared one.
func otlpProtocol() string {
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); v != "" {
		return strings.ToLower(v)
	}
	return strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
