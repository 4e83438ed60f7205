package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "console", cfg.Server.LogFormat)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, "require", cfg.Database.Postgres.SSLMode)

	require.NotEmpty(t, cfg.Security.EncryptionKey)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "keygate-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 1440*time.Hour, cfg.Auth.JWT.RememberTTL)

	require.Equal(t, 2*time.Hour, cfg.Auth.StepUp.Window)

	require.Equal(t, "Keygate Test", cfg.Auth.TwoFactor.Issuer)
	require.Equal(t, 5*time.Minute, cfg.Auth.TwoFactor.ChallengeTTL)
	require.Equal(t, 10, cfg.Auth.TwoFactor.RecoveryCodes)
	require.Equal(t, 512, cfg.Auth.TwoFactor.QRCodeSize)

	require.Equal(t, 7, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 20*time.Minute, cfg.Auth.Local.LockoutDuration)

	require.Equal(t, 30, cfg.Auth.RateLimit.MaxRequests)
	require.Equal(t, 30*time.Second, cfg.Auth.RateLimit.Window)

	require.Equal(t, 30, cfg.Audit.RetentionDays)
	require.False(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "keygate", cfg.Auth.JWT.Issuer)
	require.Equal(t, time.Hour, cfg.Auth.JWT.TTL)
	require.Equal(t, 720*time.Hour, cfg.Auth.JWT.RememberTTL)
	require.Equal(t, 3*time.Hour, cfg.Auth.StepUp.Window)
	require.Equal(t, "Keygate", cfg.Auth.TwoFactor.Issuer)
	require.Equal(t, 10*time.Minute, cfg.Auth.TwoFactor.ChallengeTTL)
	require.Equal(t, 8, cfg.Auth.TwoFactor.RecoveryCodes)
	require.Equal(t, 5, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 90, cfg.Audit.RetentionDays)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("KEYGATE_SERVER_PORT", "7070")
	t.Setenv("KEYGATE_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("KEYGATE_AUTH_TWO_FACTOR_CHALLENGE_TTL", "3m")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "env-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 3*time.Minute, cfg.Auth.TwoFactor.ChallengeTTL)
}
