package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/farellandr/storefront/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadPolicy(t *testing.T) {
	path := writePolicy(t, `duplicate_payment_window: 10m
pending_payment_ttl: 48h
max_category_depth: 8
default_currency: eur
`)

	policy, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, policy.DuplicatePaymentWindow)
	assert.Equal(t, 48*time.Hour, policy.PendingPaymentTTL)
	assert.Equal(t, 8, policy.MaxCategoryDepth)
	assert.Equal(t, "EUR", policy.DefaultCurrency)
}

func TestLoadPolicyWithDefaults(t *testing.T) {
	path := writePolicy(t, "max_category_depth: 4\n")

	policy, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, policy.DuplicatePaymentWindow)
	assert.Equal(t, 24*time.Hour, policy.PendingPaymentTTL)
	assert.Equal(t, 4, policy.MaxCategoryDepth)
	assert.Equal(t, "USD", policy.DefaultCurrency)
}

func TestLoadPolicyRejectsInvalidValues(t *testing.T) {
	_, err := LoadPolicy(writePolicy(t, "pending_payment_ttl: -1h\n"))
	assert.Error(t, err)

	_, err = LoadPolicy(writePolicy(t, "default_currency: dollars\n"))
	assert.Error(t, err)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://file::memory:")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "")
	t.Setenv("STOREFRONT_CONFIG", writePolicy(t, "default_currency: gbp\n"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.RequireJWTSecret())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "GBP", cfg.Policy.Services().DefaultCurrency)
}

func TestConfigValidateRequiresDatabase(t *testing.T) {
	cfg := &Config{Policy: defaultPolicy()}
	assert.Error(t, cfg.Validate())
	assert.Error(t, cfg.RequireJWTSecret())
}

func TestInitDatabaseWithSqlite(t *testing.T) {
	cfg := &Config{DatabaseURL: "sqlite://file::memory:", Policy: defaultPolicy()}

	db, err := InitDatabase(cfg)
	require.NoError(t, err)
	for _, model := range models.All() {
		assert.True(t, db.Migrator().HasTable(model))
	}

	_, err = OpenDatabase("mysql://localhost/shop")
	assert.Error(t, err)
}
