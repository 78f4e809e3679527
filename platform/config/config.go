// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RedisConfig provides redis connection settings (lookup cache + task queue).
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq background worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// SessionConfig provides settings for form session tokens.
type SessionConfig interface {
	GetSessionSecret() string
	GetSessionTTL() time.Duration
}

// LookupConfig provides timing settings for the field lookup engine.
type LookupConfig interface {
	GetAddressDebounce() time.Duration
	GetPhoneDebounce() time.Duration
	GetLookupTimeout() time.Duration
	GetReferenceCacheTTL() time.Duration
}

// GeocoderConfig provides settings for the address geocoding API.
type GeocoderConfig interface {
	GetGeocoderBaseURL() string
	GetGeocoderClientName() string
}

// DirectoryConfig provides settings for the phone directory API.
type DirectoryConfig interface {
	GetDirectoryBaseURL() string
	GetDirectoryAPIKey() string
}

// PostalConfig provides settings for the postal code API.
type PostalConfig interface {
	GetPostalBaseURL() string
	GetPostalClientID() string
}

// CheckoutConfig provides settings for the hosted payment page provider.
type CheckoutConfig interface {
	GetCheckoutBaseURL() string
	GetCheckoutAPIKey() string
	GetCheckoutPlanID() string
	GetAppBaseURL() string
	IsCheckoutEnabled() bool
}

// WebhookConfig provides credentials for inbound payment webhooks.
type WebhookConfig interface {
	GetWebhookUser() string
	GetWebhookPasswordHash() string
}

// EmailConfig provides settings for confirmation email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// =============================================================================
// Config
// =============================================================================

// Config holds all application configuration loaded from the environment.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	AppBaseURL          string
	SessionSecret       string
	SessionTTL          time.Duration
	AddressDebounce     time.Duration
	PhoneDebounce       time.Duration
	LookupTimeout       time.Duration
	ReferenceCacheTTL   time.Duration
	GeocoderBaseURL     string
	GeocoderClientName  string
	DirectoryBaseURL    string
	DirectoryAPIKey     string
	PostalBaseURL       string
	PostalClientID      string
	CheckoutBaseURL     string
	CheckoutAPIKey      string
	CheckoutPlanID      string
	WebhookUser         string
	WebhookPasswordHash string
	EmailEnabled        bool
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	EmailFromName       string
	EmailFromAddress    string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	concurrency, err := strconv.Atoi(getEnv("ASYNQ_CONCURRENCY", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid ASYNQ_CONCURRENCY: %w", err)
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	sessionTTL, err := durationEnv("SESSION_TTL", "1h")
	if err != nil {
		return nil, err
	}
	addressDebounce, err := durationEnv("LOOKUP_ADDRESS_DEBOUNCE", "300ms")
	if err != nil {
		return nil, err
	}
	phoneDebounce, err := durationEnv("LOOKUP_PHONE_DEBOUNCE", "500ms")
	if err != nil {
		return nil, err
	}
	lookupTimeout, err := durationEnv("LOOKUP_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := durationEnv("LOOKUP_CACHE_TTL", "24h")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:    concurrency,
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:          getEnv("APP_BASE_URL", "http://localhost:5173"),
		SessionSecret:       getEnv("SESSION_SECRET", ""),
		SessionTTL:          sessionTTL,
		AddressDebounce:     addressDebounce,
		PhoneDebounce:       phoneDebounce,
		LookupTimeout:       lookupTimeout,
		ReferenceCacheTTL:   cacheTTL,
		GeocoderBaseURL:     getEnv("GEOCODER_BASE_URL", "https://api.entur.io/geocoder/v1"),
		GeocoderClientName:  getEnv("GEOCODER_CLIENT_NAME", "norskform-backend"),
		DirectoryBaseURL:    getEnv("DIRECTORY_BASE_URL", "https://api.1881.no"),
		DirectoryAPIKey:     getEnv("DIRECTORY_API_KEY", ""),
		PostalBaseURL:       getEnv("POSTAL_BASE_URL", "https://api.bring.com/shippingguide/api"),
		PostalClientID:      getEnv("POSTAL_CLIENT_ID", "norskform-backend"),
		CheckoutBaseURL:     getEnv("CHECKOUT_BASE_URL", ""),
		CheckoutAPIKey:      getEnv("CHECKOUT_API_KEY", ""),
		CheckoutPlanID:      getEnv("CHECKOUT_PLAN_ID", "melatonin-1pk"),
		WebhookUser:         getEnv("WEBHOOK_BASIC_USER", ""),
		WebhookPasswordHash: getEnv("WEBHOOK_BASIC_PASSWORD_HASH", ""),
		EmailEnabled:        emailEnabled && smtpHost != "",
		SMTPHost:            smtpHost,
		SMTPPort:            smtpPort,
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Norskform"),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
	}

	if cfg.SessionSecret == "" && !strings.EqualFold(cfg.Env, "development") {
		return nil, fmt.Errorf("SESSION_SECRET is required outside development")
	}

	return cfg, nil
}

// =============================================================================
// Interface implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string              { return c.DatabaseURL }
func (c *Config) GetHTTPAddr() string                 { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool               { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string            { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool             { return c.CORSAllowCreds }
func (c *Config) GetRedisURL() string                 { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool           { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string           { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int            { return c.AsynqConcurrency }
func (c *Config) GetSessionSecret() string            { return c.SessionSecret }
func (c *Config) GetSessionTTL() time.Duration        { return c.SessionTTL }
func (c *Config) GetAddressDebounce() time.Duration   { return c.AddressDebounce }
func (c *Config) GetPhoneDebounce() time.Duration     { return c.PhoneDebounce }
func (c *Config) GetLookupTimeout() time.Duration     { return c.LookupTimeout }
func (c *Config) GetReferenceCacheTTL() time.Duration { return c.ReferenceCacheTTL }
func (c *Config) GetGeocoderBaseURL() string          { return c.GeocoderBaseURL }
func (c *Config) GetGeocoderClientName() string       { return c.GeocoderClientName }
func (c *Config) GetDirectoryBaseURL() string         { return c.DirectoryBaseURL }
func (c *Config) GetDirectoryAPIKey() string          { return c.DirectoryAPIKey }
func (c *Config) GetPostalBaseURL() string            { return c.PostalBaseURL }
func (c *Config) GetPostalClientID() string           { return c.PostalClientID }
func (c *Config) GetCheckoutBaseURL() string          { return c.CheckoutBaseURL }
func (c *Config) GetCheckoutAPIKey() string           { return c.CheckoutAPIKey }
func (c *Config) GetCheckoutPlanID() string           { return c.CheckoutPlanID }
func (c *Config) GetAppBaseURL() string               { return c.AppBaseURL }
func (c *Config) IsCheckoutEnabled() bool {
	return c.CheckoutBaseURL != "" && c.CheckoutAPIKey != ""
}
func (c *Config) GetWebhookUser() string         { return c.WebhookUser }
func (c *Config) GetWebhookPasswordHash() string { return c.WebhookPasswordHash }
func (c *Config) GetEmailEnabled() bool          { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string            { return c.SMTPHost }
func (c *Config) GetSMTPPort() int               { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string        { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string        { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string       { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string    { return c.EmailFromAddress }

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationEnv(key, fallback string) (time.Duration, error) {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
