package twofactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var testCodecKey = []byte("0123456789abcdef0123456789abcdef")

func TestSecretCodecRoundTrip(t *testing.T) {
	codec, err := NewSecretCodec(testCodecKey)
	require.NoError(t, err)

	blob, err := codec.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	require.NotEqual(t, "JBSWY3DPEHPK3PXP", blob)

	secret, err := codec.DecryptSecret(blob)
	require.NoError(t, err)
	require.Equal(t, "JBSWY3DPEHPK3PXP", secret)
}

func TestSecretCodecRejectsBadKey(t *testing.T) {
	_, err := NewSecretCodec([]byte("too short"))
	require.Error(t, err)
}

func TestSecretCodecRejectsEmptySecret(t *testing.T) {
	codec, err := NewSecretCodec(testCodecKey)
	require.NoError(t, err)

	_, err = codec.EncryptSecret("")
	require.Error(t, err)
}

func TestRecoveryCodesRoundTrip(t *testing.T) {
	codec, err := NewSecretCodec(testCodecKey)
	require.NoError(t, err)

	codes := []string{"AAAAA-BBBBB", "CCCCC-DDDDD"}
	blob, err := codec.EncryptRecoveryCodes(codes)
	require.NoError(t, err)

	decoded, err := codec.DecryptRecoveryCodes(blob)
	require.NoError(t, err)
	require.Equal(t, codes, decoded)
}

func TestDecryptReportsCorruptProfile(t *testing.T) {
	codec, err := NewSecretCodec(testCodecKey)
	require.NoError(t, err)

	_, err = codec.DecryptSecret("not a sealed payload")
	require.ErrorIs(t, err, ErrCorruptProfile)

	_, err = codec.DecryptRecoveryCodes("not a sealed payload")
	require.ErrorIs(t, err, ErrCorruptProfile)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	codec, err := NewSecretCodec(testCodecKey)
	require.NoError(t, err)

	other, err := NewSecretCodec([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)

	blob, err := codec.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	_, err = other.DecryptSecret(blob)
	require.ErrorIs(t, err, ErrCorruptProfile)
}
