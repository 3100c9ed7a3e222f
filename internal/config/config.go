package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	mpesaSandboxURL    = "https://sandbox.safaricom.co.ke"
	mpesaProductionURL = "https://api.safaricom.co.ke"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	JWTSecret  string
	CORSOrigin string

	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaPasskey        string
	MpesaShortcode      string
	MpesaCallbackURL    string
	MpesaBaseURL        string

	EmailAPIKey string
	EmailAPIURL string
	EmailFrom   string

	PaymentAttemptTTL      time.Duration
	SweepInterval          time.Duration
	InternalServiceKeyHash string
}

// MissingError lists every required variable that was not set.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Vars, ", ")
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    getEnv("APP_PORT", "8080"),
		AppEnv:     getEnv("APP_ENV", "development"),
		JWTSecret:  os.Getenv("JWT_SECRET"),
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),

		MpesaConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
		MpesaConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
		MpesaPasskey:        os.Getenv("MPESA_PASSKEY"),
		MpesaShortcode:      os.Getenv("MPESA_SHORTCODE"),
		MpesaCallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
		MpesaBaseURL:        mpesaSandboxURL,

		EmailAPIKey: os.Getenv("EMAIL_API_KEY"),
		EmailAPIURL: getEnv("EMAIL_API_URL", "https://api.resend.com"),
		EmailFrom:   getEnv("EMAIL_FROM", "orders@duka.local"),

		InternalServiceKeyHash: os.Getenv("INTERNAL_SERVICE_KEY_HASH"),
	}

	if os.Getenv("MPESA_ENV") == "production" {
		cfg.MpesaBaseURL = mpesaProductionURL
	}

	var err error
	if cfg.PaymentAttemptTTL, err = getDuration("PAYMENT_ATTEMPT_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"DB_HOST", c.DBHost},
		{"DB_USER", c.DBUser},
		{"DB_NAME", c.DBName},
		{"DB_PORT", c.DBPort},
		{"JWT_SECRET", c.JWTSecret},
		{"MPESA_CONSUMER_KEY", c.MpesaConsumerKey},
		{"MPESA_CONSUMER_SECRET", c.MpesaConsumerSecret},
		{"MPESA_PASSKEY", c.MpesaPasskey},
		{"MPESA_SHORTCODE", c.MpesaShortcode},
		{"MPESA_CALLBACK_URL", c.MpesaCallbackURL},
		{"EMAIL_API_KEY", c.EmailAPIKey},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, raw)
	}
	return d, nil
}
