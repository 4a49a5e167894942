package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults with required secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "test-secret")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, "gridbill", cfg.Database.Name)
		assert.Equal(t, 24*time.Hour, cfg.JWT.Expiry)
		assert.Equal(t, 6, cfg.OTP.Length)
		assert.Equal(t, 30*time.Second, cfg.OTP.ResendCooldown)
		assert.Equal(t, "test-secret", cfg.OTP.Secret)
		assert.Equal(t, "receipts", cfg.Storage.ReceiptBucket)
		assert.Equal(t, 50, cfg.Payment.MaxBulkItems)
		assert.Equal(t, "@every 15m", cfg.Settlement.Schedule)
		assert.Equal(t, []string{"https://*", "http://*"}, cfg.Server.AllowedOrigins)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "test-secret")
		t.Setenv("DATABASE_HOST", "db.internal")
		t.Setenv("REDIS_DB", "3")
		t.Setenv("OTP_RESEND_COOLDOWN", "45s")
		t.Setenv("ALLOWED_ORIGINS", "https://portal.example.com, https://admin.example.com")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 3, cfg.Redis.DB)
		assert.Equal(t, 45*time.Second, cfg.OTP.ResendCooldown)
		assert.Equal(t, []string{"https://portal.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
		assert.Contains(t, cfg.Database.DSN(), "host=db.internal")
	})

	t.Run("env file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET_KEY=from-file\nPAYMENT_PAYEE_VPA=collect@bank\n"), 0o600))
		t.Cleanup(func() {
			os.Unsetenv("JWT_SECRET_KEY")
			os.Unsetenv("PAYMENT_PAYEE_VPA")
		})

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.JWT.SecretKey)
		assert.Equal(t, "collect@bank", cfg.Payment.PayeeVPA)
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "")

		_, err := Load("")
		assert.Error(t, err)
	})
}
