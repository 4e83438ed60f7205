package twofactor

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/lucasberan/keygate/internal/models"
	appErrors "github.com/lucasberan/keygate/pkg/errors"
)

// State describes where an account sits in the two-factor lifecycle.
type State string

const (
	// StateDisabled means no secret exists and login is single factor.
	StateDisabled State = "disabled"
	// StatePending means a secret was generated but possession has not been
	// proven yet; login is still single factor.
	StatePending State = "pending"
	// StateConfirmed means two-factor authentication is enforced at login.
	StateConfirmed State = "confirmed"
)

const (
	defaultQRCodeSize = 256

	msgInvalidCode         = "The provided two-factor authentication code was invalid"
	msgInvalidRecoveryCode = "The provided two-factor recovery code was invalid"
)

// errRecoveryCodeMismatch aborts a consume CAS without persisting anything.
var errRecoveryCodeMismatch = errors.New("twofactor: recovery code mismatch")

// StepUpAuthorizer validates the capability token minted after a recent
// password confirmation. Sensitive operations refuse to run without it.
type StepUpAuthorizer interface {
	Authorize(token, userID string) error
}

// Option allows customising the Service.
type Option func(*Service)

// WithRecoveryCodeCount overrides the size of generated recovery batches.
func WithRecoveryCodeCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.recoveryCount = count
		}
	}
}

// WithQRCodeSize controls the pixel size of generated QR codes.
func WithQRCodeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.qrSize = size
		}
	}
}

// WithClock injects a custom clock, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// Service drives the enable/confirm/disable state machine and answers
// verification queries for the login challenge flow.
type Service struct {
	store    *ProfileStore
	codec    *SecretCodec
	verifier *Verifier
	gate     StepUpAuthorizer

	issuer        string
	recoveryCount int
	qrSize        int
	now           func() time.Time
}

// NewService wires the two-factor core together.
func NewService(store *ProfileStore, codec *SecretCodec, gate StepUpAuthorizer, issuer string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("twofactor: store is required")
	}
	if codec == nil {
		return nil, errors.New("twofactor: codec is required")
	}
	if gate == nil {
		return nil, errors.New("twofactor: step-up authorizer is required")
	}

	service := &Service{
		store:         store,
		codec:         codec,
		gate:          gate,
		issuer:        strings.TrimSpace(issuer),
		recoveryCount: DefaultRecoveryCodeCount,
		qrSize:        defaultQRCodeSize,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	verifier, err := NewVerifier(service.issuer, service.now)
	if err != nil {
		return nil, err
	}
	service.verifier = verifier

	return service, nil
}

// Enrollment is returned by Enable so the user can provision an authenticator
// app and save their recovery codes.
type Enrollment struct {
	SecretKey     string   `json:"secret_key"`
	OtpauthURL    string   `json:"otpauth_url"`
	RecoveryCodes []string `json:"recovery_codes"`
}

// QRCode bundles the rendered provisioning QR with its underlying URL.
type QRCode struct {
	PNG []byte `json:"png"`
	URL string `json:"url"`
}

// Enable provisions a new secret and recovery batch, moving the account from
// Disabled to Pending. Enabling an already confirmed account is refused.
func (s *Service) Enable(userID, accountName, stepUpToken string) (*Enrollment, error) {
	if err := s.gate.Authorize(stepUpToken, userID); err != nil {
		return nil, err
	}

	key, err := s.verifier.GenerateKey(accountName)
	if err != nil {
		return nil, fmt.Errorf("twofactor: generate key: %w", err)
	}

	codes, err := GenerateRecoveryCodes(s.recoveryCount)
	if err != nil {
		return nil, err
	}

	encSecret, err := s.codec.EncryptSecret(key.Secret())
	if err != nil {
		return nil, err
	}
	encCodes, err := s.codec.EncryptRecoveryCodes(codes)
	if err != nil {
		return nil, err
	}

	err = s.store.Update(userID, func(p *models.TwoFactorProfile) error {
		if p.ConfirmedAt != nil {
			return appErrors.ErrTwoFactorAlreadyEnabled
		}
		p.Secret = encSecret
		p.RecoveryCodes = encCodes
		p.ConfirmedAt = nil
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	return &Enrollment{
		SecretKey:     key.Secret(),
		OtpauthURL:    key.String(),
		RecoveryCodes: codes,
	}, nil
}

// Confirm proves possession of the enrolled authenticator and activates
// enforcement. A wrong code leaves the account Pending and reports a
// field-scoped validation failure.
func (s *Service) Confirm(userID, code, stepUpToken string) error {
	if err := s.gate.Authorize(stepUpToken, userID); err != nil {
		return err
	}

	err := s.store.Update(userID, func(p *models.TwoFactorProfile) error {
		if p.Secret == "" {
			return appErrors.ErrTwoFactorNotEnabled
		}
		if p.ConfirmedAt != nil {
			return appErrors.ErrTwoFactorAlreadyEnabled
		}

		secret, err := s.codec.DecryptSecret(p.Secret)
		if err != nil {
			return err
		}
		if !s.verifier.Verify(secret, code, s.now()) {
			return appErrors.NewValidation("code", msgInvalidCode)
		}

		confirmed := s.now()
		p.ConfirmedAt = &confirmed
		return nil
	})
	return mapStoreError(err)
}

// Disable clears the secret, recovery codes, and confirmation timestamp.
// Disabling an account that never enabled two-factor is a no-op success.
func (s *Service) Disable(userID, stepUpToken string) error {
	if err := s.gate.Authorize(stepUpToken, userID); err != nil {
		return err
	}

	profile, err := s.store.Load(userID)
	if err != nil {
		return err
	}
	if profile == nil {
		return nil
	}

	err = s.store.Update(userID, func(p *models.TwoFactorProfile) error {
		p.Secret = ""
		p.RecoveryCodes = ""
		p.ConfirmedAt = nil
		return nil
	})
	return mapStoreError(err)
}

// RegenerateRecoveryCodes replaces the recovery batch; all previously issued
// codes become invalid the moment the swap commits.
func (s *Service) RegenerateRecoveryCodes(userID, stepUpToken string) ([]string, error) {
	if err := s.gate.Authorize(stepUpToken, userID); err != nil {
		return nil, err
	}

	codes, err := GenerateRecoveryCodes(s.recoveryCount)
	if err != nil {
		return nil, err
	}
	encCodes, err := s.codec.EncryptRecoveryCodes(codes)
	if err != nil {
		return nil, err
	}

	err = s.store.Update(userID, func(p *models.TwoFactorProfile) error {
		if p.ConfirmedAt == nil {
			return appErrors.ErrTwoFactorNotEnabled
		}
		p.RecoveryCodes = encCodes
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	return codes, nil
}

// State reports the account's current two-factor lifecycle state.
func (s *Service) State(userID string) (State, error) {
	profile, err := s.store.Load(userID)
	if err != nil {
		return StateDisabled, err
	}
	return stateOf(profile), nil
}

// SecretKey returns the plaintext base32 secret for display during
// enrollment, or an empty string when two-factor is disabled.
func (s *Service) SecretKey(userID string) (string, error) {
	profile, err := s.store.Load(userID)
	if err != nil {
		return "", err
	}
	if stateOf(profile) == StateDisabled {
		return "", nil
	}
	return s.codec.DecryptSecret(profile.Secret)
}

// ProvisioningQRCode renders the otpauth URI as a PNG. The zero value is
// returned without error when two-factor is disabled so callers can
// distinguish "not enabled" from a rendering failure.
func (s *Service) ProvisioningQRCode(userID, accountName string) (*QRCode, error) {
	profile, err := s.store.Load(userID)
	if err != nil {
		return nil, err
	}
	if stateOf(profile) == StateDisabled {
		return nil, nil
	}

	secret, err := s.codec.DecryptSecret(profile.Secret)
	if err != nil {
		return nil, err
	}

	uri := s.provisioningURI(secret, accountName)
	png, err := qrcode.Encode(uri, qrcode.Medium, s.qrSize)
	if err != nil {
		return nil, fmt.Errorf("twofactor: render qr code: %w", err)
	}

	return &QRCode{PNG: png, URL: uri}, nil
}

// RecoveryCodes returns the remaining unused recovery codes, or nil when
// two-factor is disabled.
func (s *Service) RecoveryCodes(userID string) ([]string, error) {
	profile, err := s.store.Load(userID)
	if err != nil {
		return nil, err
	}
	if stateOf(profile) == StateDisabled {
		return nil, nil
	}
	return s.codec.DecryptRecoveryCodes(profile.RecoveryCodes)
}

// VerifyCode checks a submitted one-time code for a confirmed account.
func (s *Service) VerifyCode(userID, code string) (bool, error) {
	profile, err := s.store.Load(userID)
	if err != nil {
		return false, err
	}
	if stateOf(profile) != StateConfirmed {
		return false, appErrors.ErrTwoFactorNotEnabled
	}

	secret, err := s.codec.DecryptSecret(profile.Secret)
	if err != nil {
		return false, err
	}
	return s.verifier.Verify(secret, code, s.now()), nil
}

// ConsumeRecoveryCode atomically removes a matching recovery code. The
// updated batch is persisted before success is reported, so a code can never
// be used twice even under concurrent challenge attempts.
func (s *Service) ConsumeRecoveryCode(userID, submitted string) (bool, error) {
	err := s.store.Update(userID, func(p *models.TwoFactorProfile) error {
		if p.ConfirmedAt == nil {
			return appErrors.ErrTwoFactorNotEnabled
		}

		codes, err := s.codec.DecryptRecoveryCodes(p.RecoveryCodes)
		if err != nil {
			return err
		}

		ok, remaining := ConsumeRecoveryCode(codes, submitted)
		if !ok {
			return errRecoveryCodeMismatch
		}

		enc, err := s.codec.EncryptRecoveryCodes(remaining)
		if err != nil {
			return err
		}
		p.RecoveryCodes = enc
		return nil
	})
	if errors.Is(err, errRecoveryCodeMismatch) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreError(err)
	}
	return true, nil
}

func stateOf(p *models.TwoFactorProfile) State {
	switch {
	case p == nil || p.Secret == "":
		return StateDisabled
	case p.ConfirmedAt == nil:
		return StatePending
	default:
		return StateConfirmed
	}
}

// provisioningURI builds the otpauth:// URI consumed by authenticator apps.
func (s *Service) provisioningURI(secret, accountName string) string {
	label := url.PathEscape(s.issuer) + ":" + url.PathEscape(accountName)

	query := url.Values{}
	query.Set("secret", secret)
	query.Set("issuer", s.issuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", "6")
	query.Set("period", "30")

	return "otpauth://totp/" + label + "?" + query.Encode()
}

func mapStoreError(err error) error {
	if errors.Is(err, ErrConflict) {
		return appErrors.ErrConflict.WithInternal(err)
	}
	return err
}
