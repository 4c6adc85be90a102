// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes bot credentials,
// chat/channel identifiers, payment-provider settings, worker tuning, and
// server/observability knobs. Components receive a constructed Config value;
// nothing re-reads the environment after startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Telegram
	TelegramToken string // TELEGRAM_TOKEN (required)
	BotID         int64  // BOT_ID (required)
	BaseURL       string // BASE_URL, public origin of this service
	WebhookURL    string // WEBHOOK_URL, registered via set_webhook when non-empty

	// Channels and groups
	VIPChannelID    int64 // VIP_CHANNEL_ID
	LifeChannelID   int64 // LIFE_CHANNEL_ID
	ChatGroupID     int64 // CHAT_GROUP_ID, operator group for the relay bridge
	HistoryGroupID  int64 // HISTORY_GROUP_ID
	PostPlanGroupID int64 // POST_PLAN_GROUP_ID
	LogChannelID    int64 // LOG_CHANNEL_ID

	// Payments
	PaymentProvider string          // PAYMENT_PROVIDER
	CryptoBotToken  string          // CRYPTOBOT_TOKEN
	CryptoBotAPI    string          // CRYPTOBOT_API
	VIPPriceUSD     decimal.Decimal // VIP_PRICE_USD
	ChatPriceUSD    map[string]decimal.Decimal

	// Storage
	DBPath string // DB_PATH

	// Posting worker
	PostWorkerInterval time.Duration // POST_WORKER_INTERVAL (seconds)
	PostWorkerBatch    int           // POST_WORKER_BATCH
	PostMaxRetries     int           // POST_MAX_RETRIES

	// Idempotency TTLs
	UpdateClaimTTL  time.Duration
	PaymentClaimTTL time.Duration

	// Dialog state
	FSMTTL time.Duration // idle TTL for multi-step flow frames

	// Relay
	RelayHeaderCap int // bound of the in-memory header map

	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string

	// Outbound HTTP
	HTTPTimeout time.Duration // per-request timeout for provider calls

	// Rate limiting
	RateRPS     float64 // HTTP token bucket, tokens per second
	RateBurst   int
	TelegramRPS float64 // outbound Telegram send pacing

	// Logging
	LogLevel  string // LOGLEVEL
	LogPretty bool

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		BaseURL:       strings.TrimRight(getenv("BASE_URL", ""), "/"),
		WebhookURL:    getenv("WEBHOOK_URL", ""),

		PaymentProvider: strings.ToLower(getenv("PAYMENT_PROVIDER", "cryptobot")),
		CryptoBotToken:  getenv("CRYPTOBOT_TOKEN", ""),
		CryptoBotAPI:    strings.TrimRight(getenv("CRYPTOBOT_API", "https://pay.crypt.bot/api"), "/"),

		DBPath: getenv("DB_PATH", "/app/data/juicyfox.sqlite"),

		PostWorkerInterval: getdur("POST_WORKER_INTERVAL", 5*time.Second),
		PostWorkerBatch:    getint("POST_WORKER_BATCH", 20),
		PostMaxRetries:     getint("POST_MAX_RETRIES", 8),

		UpdateClaimTTL:  getdur("UPDATE_CLAIM_TTL", 300*time.Second),
		PaymentClaimTTL: getdur("PAYMENT_CLAIM_TTL", 24*time.Hour),

		FSMTTL:         getdur("FSM_TTL", 10*time.Minute),
		RelayHeaderCap: getint("RELAY_HEADER_CAP", 4096),

		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		HTTPTimeout: getdur("HTTP_TIMEOUT", 20*time.Second),

		RateRPS:     getfloat("RATE_RPS", 30.0),
		RateBurst:   getint("RATE_BURST", 60),
		TelegramRPS: getfloat("TELEGRAM_RPS", 25.0),

		LogLevel:  strings.ToLower(getenv("LOGLEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "juicybot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	cfg.BotID = getint64("BOT_ID", 0)
	cfg.VIPChannelID = getint64("VIP_CHANNEL_ID", 0)
	cfg.LifeChannelID = getint64("LIFE_CHANNEL_ID", 0)
	cfg.ChatGroupID = getint64("CHAT_GROUP_ID", 0)
	cfg.HistoryGroupID = getint64("HISTORY_GROUP_ID", 0)
	cfg.PostPlanGroupID = getint64("POST_PLAN_GROUP_ID", 0)
	cfg.LogChannelID = getint64("LOG_CHANNEL_ID", 0)

	cfg.VIPPriceUSD = getdecimal("VIP_PRICE_USD", "25")
	// CHAT_{7,15}D_USD are accepted as aliases kept from the first
	// deployment; the plan codes themselves are chat_10d/chat_20d/chat_30d.
	cfg.ChatPriceUSD = map[string]decimal.Decimal{
		"chat_10d": getdecimalFirst([]string{"CHAT_10D_USD", "CHAT_7D_USD"}, "10"),
		"chat_20d": getdecimalFirst([]string{"CHAT_20D_USD", "CHAT_15D_USD"}, "18"),
		"chat_30d": getdecimalFirst([]string{"CHAT_30D_USD"}, "25"),
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.WebhookURL == "" && cfg.BaseURL != "" {
		cfg.WebhookURL = cfg.BaseURL + "/webhook"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	if cfg.TelegramToken == "" {
		return cfg, errors.New("TELEGRAM_TOKEN is required")
	}
	if cfg.BotID == 0 {
		return cfg, errors.New("BOT_ID is required")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOGLEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.PaymentProvider == "" {
		return cfg, errors.New("PAYMENT_PROVIDER must not be empty")
	}
	if cfg.PostWorkerInterval <= 0 {
		return cfg, errors.New("POST_WORKER_INTERVAL must be > 0")
	}
	if cfg.PostWorkerBatch < 1 {
		return cfg, errors.New("POST_WORKER_BATCH must be >= 1")
	}
	if cfg.PostMaxRetries < 1 {
		return cfg, errors.New("POST_MAX_RETRIES must be >= 1")
	}
	if cfg.UpdateClaimTTL <= 0 || cfg.PaymentClaimTTL <= 0 {
		return cfg, errors.New("claim TTLs must be > 0")
	}
	if cfg.FSMTTL <= 0 {
		return cfg, errors.New("FSM_TTL must be > 0")
	}
	if cfg.RelayHeaderCap < 1 {
		return cfg, errors.New("RELAY_HEADER_CAP must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.TelegramRPS <= 0 {
		return cfg, errors.New("TELEGRAM_RPS must be > 0")
	}
	if cfg.HTTPTimeout <= 0 {
		return cfg, errors.New("HTTP_TIMEOUT must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

// getdur parses Go duration strings; bare integers are treated as seconds,
// which is how the worker interval was historically configured.
func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return time.Duration(i) * time.Second
		}
	}
	return def
}

func getdecimal(k, def string) decimal.Decimal {
	if k != "" {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
				return d
			}
		}
	}
	d, err := decimal.NewFromString(def)
	if err != nil {
		panic(fmt.Sprintf("config: bad default %q: %v", def, err))
	}
	return d
}

func getdecimalFirst(keys []string, def string) decimal.Decimal {
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
				return d
			}
		}
	}
	return getdecimal("", def)
}
