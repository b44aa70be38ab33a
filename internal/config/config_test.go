package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("NOTIFY_MODE", "inline")
	t.Setenv("SMTP_USER", "")
	t.Setenv("SMTP_PASS", "")

	cfg := Load()

	assert.Equal(t, "5000", cfg.HTTPPort)
	assert.Equal(t, "GD2025", cfg.Registry.ReferencePrefix)
	assert.Equal(t, "EXAM", cfg.Registry.CrossBranchValue)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, "off", cfg.Notify.Mode, "inline delivery needs SMTP credentials")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("ACCESS_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MIN", "15")
	t.Setenv("NOTIFY_MODE", "queue")
	t.Setenv("SMTP_USER", "noreply@college.edu")
	t.Setenv("SMTP_PASS", "app-password")
	t.Setenv("CROSS_BRANCH_VALUE", "ALL")

	cfg := Load()

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 15, cfg.RateLimitPerMin)
	assert.Equal(t, "queue", cfg.Notify.Mode)
	assert.Equal(t, "noreply@college.edu", cfg.Notify.From)
	assert.Equal(t, "ALL", cfg.Registry.CrossBranchValue)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("ACCESS_TTL", "soon")
	t.Setenv("BCRYPT_COST", "high")

	cfg := Load()

	assert.Equal(t, 8*time.Hour, cfg.AccessTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
}

func TestNotify_EffectiveMode(t *testing.T) {
	configured := Notify{SMTPHost: "smtp.example.com", SMTPUser: "u", SMTPPass: "p"}

	configured.Mode = "inline"
	assert.Equal(t, "inline", configured.EffectiveMode())
	configured.Mode = "carrier-pigeon"
	assert.Equal(t, "off", configured.EffectiveMode())
	assert.Equal(t, "off", Notify{Mode: "queue"}.EffectiveMode())
}
