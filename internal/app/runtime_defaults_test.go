package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyRuntimeDefaultsGeneratesMissingSecrets(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)

	require.True(t, generated["auth.jwt.secret"])
	require.True(t, generated["security.encryption_key"])
	require.NotEmpty(t, cfg.Auth.JWT.Secret)
	require.NotEmpty(t, cfg.Security.EncryptionKey)

	// The generated encryption key decodes to 32 bytes for AES-256.
	key, err := DecodeKey(cfg.Security.EncryptionKey)
	require.NoError(t, err)
	require.Len(t, key, 32)
}

func TestApplyRuntimeDefaultsPreservesConfiguredSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = "configured"
	cfg.Security.EncryptionKey = "deadbeef"

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, "configured", cfg.Auth.JWT.Secret)
	require.Equal(t, "deadbeef", cfg.Security.EncryptionKey)
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	require.Error(t, err)
}
