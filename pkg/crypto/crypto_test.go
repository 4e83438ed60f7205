package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	sealed, err := Seal([]byte("super secret"), key)
	require.NoError(t, err)
	require.NotEqual(t, "super secret", sealed)

	plaintext, err := Open(sealed, key)
	require.NoError(t, err)
	require.Equal(t, "super secret", string(plaintext))
}

func TestSealRejectsShortKey(t *testing.T) {
	_, err := Seal([]byte("data"), []byte("short"))
	require.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestOpenRejectsTamperedPayload(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	sealed, err := Seal([]byte("payload"), key)
	require.NoError(t, err)

	tampered := "A" + sealed[1:]
	_, err = Open(tampered, key)
	require.ErrorIs(t, err, ErrCiphertextInvalid)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	other := []byte("fedcba9876543210fedcba9876543210")

	sealed, err := Seal([]byte("payload"), key)
	require.NoError(t, err)

	_, err = Open(sealed, other)
	require.ErrorIs(t, err, ErrCiphertextInvalid)
}

func TestOpenRejectsTruncatedPayload(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	_, err := Open("AAAA", key)
	require.ErrorIs(t, err, ErrCiphertextInvalid)
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery staple", hash)

	require.True(t, VerifyPassword(hash, "correct horse battery staple"))
	require.False(t, VerifyPassword(hash, "wrong password"))
}

func TestGenerateTokenUnique(t *testing.T) {
	a, err := GenerateToken(32)
	require.NoError(t, err)
	b, err := GenerateToken(32)
	require.NoError(t, err)

	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}
