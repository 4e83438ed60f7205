package twofactor

import (
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// secretSize is the raw secret length in bytes (160 bits, RFC 4226 minimum).
	secretSize = 20

	// period is the TOTP time step in seconds (RFC 6238 standard).
	period = 30

	// skewSteps is how many adjacent time steps are accepted on either side of
	// the current one to absorb client clock drift.
	skewSteps = 1
)

// Verifier generates TOTP secrets and validates submitted one-time codes.
// The clock is injected so skew-window edges can be tested deterministically.
type Verifier struct {
	issuer string
	now    func() time.Time
}

// NewVerifier constructs a Verifier issuing keys under the given issuer name.
func NewVerifier(issuer string, clock func() time.Time) (*Verifier, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("twofactor: issuer is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{issuer: issuer, now: clock}, nil
}

// GenerateKey provisions a fresh TOTP key for the given account. The returned
// key exposes the base32 secret and the otpauth:// provisioning URI.
func (v *Verifier) GenerateKey(accountName string) (*otp.Key, error) {
	accountName = strings.TrimSpace(accountName)
	if accountName == "" {
		return nil, errors.New("twofactor: account name is required")
	}

	return totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: accountName,
		SecretSize:  secretSize,
	})
}

// Code returns the one-time code for the time step containing at.
func (v *Verifier) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, validateOpts())
}

// Verify reports whether the submitted code matches the current time step or
// one of its immediate neighbours. Malformed input yields the same observable
// outcome as a wrong code, and comparison inside the library is constant time.
func (v *Verifier) Verify(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, validateOpts())
	if err != nil {
		return false
	}
	return ok
}

// VerifyNow is Verify evaluated against the injected clock.
func (v *Verifier) VerifyNow(secret, code string) bool {
	return v.Verify(secret, code, v.now())
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    period,
		Skew:      skewSteps,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}
