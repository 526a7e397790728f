package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is assembled once at startup and passed explicitly to every
// component. Nothing in the service reads the environment after Load.
type Config struct {
	ListenAddr string

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// How long a payment may sit in "processing" before a retry of the same
	// reference is allowed to take it over.
	ProcessingTTL time.Duration
	// How long settled references are cached in Redis.
	SettledCacheTTL time.Duration

	// Courtesy bonus policy: "flat" or "progressive".
	CourtesyMode string
	FlatBonus    int

	// Amount -> benefit overrides, e.g. "10:60,20:125". Empty keeps defaults.
	CreditPacks    string
	UnlimitedPacks string

	DefaultLang string

	MercadoPagoAccessToken string
	FlowAPIKey             string
	FlowSecretKey          string

	AuditBotToken string
	AuditChatID   int64
	AuditWorkers  int
}

func Load() Config {
	return Config{
		ListenAddr:      ":" + getEnv("PORT", "8080"),
		PostgresDSN:     strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		RedisAddr:       getEnv("REDIS_HOST", "localhost") + ":" + getEnv("REDIS_PORT", "6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		ProcessingTTL:   getEnvDuration("PAYMENT_PROCESSING_TTL", 15*time.Minute),
		SettledCacheTTL: getEnvDuration("SETTLED_CACHE_TTL", 48*time.Hour),
		CourtesyMode:    getEnv("COURTESY_MODE", "flat"),
		FlatBonus:       getEnvInt("COURTESY_FLAT_BONUS", 3),
		CreditPacks:     strings.TrimSpace(os.Getenv("CREDIT_PACKS")),
		UnlimitedPacks:  strings.TrimSpace(os.Getenv("UNLIMITED_PACKS")),
		DefaultLang:     getEnv("DEFAULT_LANG", "es"),

		MercadoPagoAccessToken: strings.TrimSpace(os.Getenv("MP_ACCESS_TOKEN")),
		FlowAPIKey:             strings.TrimSpace(os.Getenv("FLOW_API_KEY")),
		FlowSecretKey:          strings.TrimSpace(os.Getenv("FLOW_SECRET_KEY")),

		AuditBotToken: strings.TrimSpace(os.Getenv("AUDIT_BOT_TOKEN")),
		AuditChatID:   int64(getEnvInt("AUDIT_CHAT_ID", 0)),
		AuditWorkers:  getEnvInt("AUDIT_WORKERS", 2),
	}
}

func getEnv(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s value %q, using default %d", name, v, def)
		return def
	}
	return n
}

func getEnvDuration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s value %q, using default %s", name, v, def)
		return def
	}
	return d
}
