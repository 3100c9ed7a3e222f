package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "testuser")
	t.Setenv("DB_PASSWORD", "testpass")
	t.Setenv("DB_NAME", "testdb")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("MPESA_CONSUMER_KEY", "ck")
	t.Setenv("MPESA_CONSUMER_SECRET", "cs")
	t.Setenv("MPESA_PASSKEY", "passkey")
	t.Setenv("MPESA_SHORTCODE", "174379")
	t.Setenv("MPESA_CALLBACK_URL", "https://shop.example/payments/mpesa/callback")
	t.Setenv("EMAIL_API_KEY", "re_test")
}

func TestLoadConfig(t *testing.T) {
	t.Run("Success loading from env", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("APP_PORT", "9090")
		t.Setenv("APP_ENV", "test")
		t.Setenv("MPESA_ENV", "")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, "localhost", cfg.DBHost)
		assert.Equal(t, "testuser", cfg.DBUser)
		assert.Equal(t, "testpass", cfg.DBPassword)
		assert.Equal(t, "testdb", cfg.DBName)
		assert.Equal(t, "5432", cfg.DBPort)
		assert.Equal(t, "9090", cfg.AppPort)
		assert.Equal(t, "test", cfg.AppEnv)
		assert.Equal(t, "174379", cfg.MpesaShortcode)
		assert.Equal(t, mpesaSandboxURL, cfg.MpesaBaseURL)
		assert.Equal(t, 10*time.Minute, cfg.PaymentAttemptTTL)
		assert.Equal(t, time.Minute, cfg.SweepInterval)
	})

	t.Run("Production gateway and custom durations", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("MPESA_ENV", "production")
		t.Setenv("PAYMENT_ATTEMPT_TTL", "5m")
		t.Setenv("SWEEP_INTERVAL", "30s")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, mpesaProductionURL, cfg.MpesaBaseURL)
		assert.Equal(t, 5*time.Minute, cfg.PaymentAttemptTTL)
		assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	})

	t.Run("Missing secrets fail fast", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("MPESA_PASSKEY", "")
		t.Setenv("EMAIL_API_KEY", "")

		cfg, err := LoadConfig()
		assert.Nil(t, cfg)

		var missing *MissingError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, []string{"MPESA_PASSKEY", "EMAIL_API_KEY"}, missing.Vars)
		assert.Contains(t, err.Error(), "MPESA_PASSKEY, EMAIL_API_KEY")
	})

	t.Run("Invalid duration", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PAYMENT_ATTEMPT_TTL", "soon")

		_, err := LoadConfig()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "PAYMENT_ATTEMPT_TTL")
	})
}
