package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lucasberan/keygate/internal/models"
)

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService(TokenConfig{})
	require.Error(t, err)
	require.EqualError(t, err, "token: secret must be provided")
}

func TestIssueAndValidate(t *testing.T) {
	current := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewTokenService(TokenConfig{
		Secret:         "super-secret",
		Issuer:         "keygate",
		AccessTokenTTL: time.Hour,
		Clock:          now,
	})
	require.NoError(t, err)

	user := &models.User{ID: "user-123", Username: "alice"}
	details, err := svc.Issue(user, false)
	require.NoError(t, err)
	require.NotEmpty(t, details.AccessToken)
	require.Equal(t, "Bearer", details.TokenType)
	require.Equal(t, int64(3600), details.ExpiresIn)
	require.Equal(t, user, details.User)

	claims, err := svc.Validate(details.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.UserID)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "keygate", claims.Issuer)
	require.True(t, claims.IssuedAt.Time.Equal(current))
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(time.Hour)))
}

func TestIssueRememberMeUsesLongTTL(t *testing.T) {
	current := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	svc, err := NewTokenService(TokenConfig{
		Secret:         "super-secret",
		AccessTokenTTL: time.Hour,
		RememberMeTTL:  30 * 24 * time.Hour,
		Clock:          func() time.Time { return current },
	})
	require.NoError(t, err)

	details, err := svc.Issue(&models.User{ID: "user-123"}, true)
	require.NoError(t, err)
	require.Equal(t, int64((30 * 24 * time.Hour).Seconds()), details.ExpiresIn)

	claims, err := svc.Validate(details.AccessToken)
	require.NoError(t, err)
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(30*24*time.Hour)))
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC) }

	issuer, err := NewTokenService(TokenConfig{Secret: "issuer-secret", Clock: now})
	require.NoError(t, err)
	verifier, err := NewTokenService(TokenConfig{Secret: "other-secret", Clock: now})
	require.NoError(t, err)

	details, err := issuer.Issue(&models.User{ID: "user-123"}, false)
	require.NoError(t, err)

	_, err = verifier.Validate(details.AccessToken)
	require.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	current := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	svc, err := NewTokenService(TokenConfig{
		Secret:         "super-secret",
		AccessTokenTTL: time.Minute,
		Clock:          func() time.Time { return current },
	})
	require.NoError(t, err)

	details, err := svc.Issue(&models.User{ID: "user-123"}, false)
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = svc.Validate(details.AccessToken)
	require.Error(t, err)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC) }

	minted, err := NewTokenService(TokenConfig{Secret: "shared", Issuer: "someone-else", Clock: now})
	require.NoError(t, err)
	verifier, err := NewTokenService(TokenConfig{Secret: "shared", Issuer: "keygate", Clock: now})
	require.NoError(t, err)

	details, err := minted.Issue(&models.User{ID: "user-123"}, false)
	require.NoError(t, err)

	_, err = verifier.Validate(details.AccessToken)
	require.Error(t, err)
}

func TestIssueRequiresUser(t *testing.T) {
	svc, err := NewTokenService(TokenConfig{Secret: "super-secret"})
	require.NoError(t, err)

	_, err = svc.Issue(nil, false)
	require.Error(t, err)

	_, err = svc.Issue(&models.User{}, false)
	require.Error(t, err)
}
