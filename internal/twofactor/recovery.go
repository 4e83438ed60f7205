package twofactor

import (
	cryptoRand "crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
)

// DefaultRecoveryCodeCount is the size of a freshly generated recovery batch.
const DefaultRecoveryCodeCount = 8

// recoveryGroupLen is the length of each hyphen-separated code group.
const recoveryGroupLen = 5

// GenerateRecoveryCodes produces n unique single-use recovery codes in the
// human-typeable form "XXXXX-XXXXX" (base32 alphabet).
func GenerateRecoveryCodes(n int) ([]string, error) {
	if n <= 0 {
		return nil, errors.New("twofactor: recovery code count must be positive")
	}

	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)

	for len(codes) < n {
		code, err := generateRecoveryCode()
		if err != nil {
			return nil, fmt.Errorf("twofactor: generate recovery code: %w", err)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	return codes, nil
}

// ConsumeRecoveryCode removes the submitted code from the list if present.
// Matching is case-sensitive and constant time per entry; on success exactly
// one entry is removed and the order of the remaining codes is preserved. On
// failure the original slice is returned untouched.
func ConsumeRecoveryCode(codes []string, submitted string) (bool, []string) {
	if submitted == "" {
		return false, codes
	}

	// Scan the whole list without early exit so the comparison cost does not
	// depend on where (or whether) the match sits.
	match := -1
	for i, code := range codes {
		if subtle.ConstantTimeCompare([]byte(code), []byte(submitted)) == 1 && match < 0 {
			match = i
		}
	}

	if match < 0 {
		return false, codes
	}

	remaining := make([]string, 0, len(codes)-1)
	remaining = append(remaining, codes[:match]...)
	remaining = append(remaining, codes[match+1:]...)
	return true, remaining
}

func generateRecoveryCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := cryptoRand.Read(buf); err != nil {
		return "", err
	}

	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return encoded[:recoveryGroupLen] + "-" + encoded[recoveryGroupLen:2*recoveryGroupLen], nil
}
