package twofactor

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lucasberan/keygate/pkg/crypto"
)

// ErrCorruptProfile signals that a stored secret or recovery-code blob could
// not be decrypted. This is a fatal condition: it must never be treated as
// "two-factor not enabled".
var ErrCorruptProfile = errors.New("twofactor: stored profile cannot be decrypted")

// SecretCodec converts the TOTP secret and recovery-code list between their
// in-memory plaintext form and the encrypted representation written to
// durable storage. Secrets are never persisted in cleartext.
type SecretCodec struct {
	key []byte
}

// NewSecretCodec builds a codec around the supplied AES key.
func NewSecretCodec(key []byte) (*SecretCodec, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("twofactor: codec key must be 16, 24, or 32 bytes, got %d", len(key))
	}
	return &SecretCodec{key: key}, nil
}

// EncryptSecret seals a base32 TOTP secret for storage.
func (c *SecretCodec) EncryptSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("twofactor: secret is empty")
	}

	sealed, err := crypto.Seal([]byte(secret), c.key)
	if err != nil {
		return "", fmt.Errorf("twofactor: encrypt secret: %w", err)
	}
	return sealed, nil
}

// DecryptSecret recovers the plaintext TOTP secret from its stored form.
func (c *SecretCodec) DecryptSecret(blob string) (string, error) {
	plaintext, err := crypto.Open(blob, c.key)
	if err != nil {
		return "", ErrCorruptProfile
	}
	return string(plaintext), nil
}

// EncryptRecoveryCodes seals the recovery-code list as an encrypted JSON array.
func (c *SecretCodec) EncryptRecoveryCodes(codes []string) (string, error) {
	raw, err := json.Marshal(codes)
	if err != nil {
		return "", fmt.Errorf("twofactor: marshal recovery codes: %w", err)
	}

	sealed, err := crypto.Seal(raw, c.key)
	if err != nil {
		return "", fmt.Errorf("twofactor: encrypt recovery codes: %w", err)
	}
	return sealed, nil
}

// DecryptRecoveryCodes recovers the recovery-code list from its stored form.
func (c *SecretCodec) DecryptRecoveryCodes(blob string) ([]string, error) {
	raw, err := crypto.Open(blob, c.key)
	if err != nil {
		return nil, ErrCorruptProfile
	}

	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		return nil, ErrCorruptProfile
	}
	return codes, nil
}
