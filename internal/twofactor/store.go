package twofactor

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lucasberan/keygate/internal/models"
)

// ErrConflict is returned when repeated compare-and-swap attempts keep losing
// against concurrent writers for the same account.
var ErrConflict = errors.New("twofactor: profile modified concurrently")

// casAttempts bounds the optimistic-lock retry loop.
const casAttempts = 3

// ProfileStore persists TwoFactorProfile rows with per-account optimistic
// concurrency control. Every update is conditioned on the version that was
// read, so a recovery-code consumption can never interleave with a
// regeneration or disable to produce a half-applied profile.
type ProfileStore struct {
	db *gorm.DB
}

// NewProfileStore constructs a store backed by the provided database.
func NewProfileStore(db *gorm.DB) (*ProfileStore, error) {
	if db == nil {
		return nil, errors.New("twofactor: db is required")
	}
	return &ProfileStore{db: db}, nil
}

// Load returns the profile for the account, or (nil, nil) when none exists.
func (s *ProfileStore) Load(userID string) (*models.TwoFactorProfile, error) {
	var profile models.TwoFactorProfile
	err := s.db.Where("user_id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("twofactor: load profile: %w", err)
	}
	return &profile, nil
}

// Update applies mutate to the account's profile inside a compare-and-swap
// loop. A missing row is materialised as an empty profile so enable can run
// through the same path. Errors returned by mutate abort the write and are
// passed through unchanged.
func (s *ProfileStore) Update(userID string, mutate func(p *models.TwoFactorProfile) error) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		profile, err := s.Load(userID)
		if err != nil {
			return err
		}

		if profile == nil {
			fresh := models.TwoFactorProfile{UserID: userID}
			if err := mutate(&fresh); err != nil {
				return err
			}
			err := s.db.Create(&fresh).Error
			if err == nil {
				return nil
			}
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("twofactor: create profile: %w", err)
			}
			// A concurrent create won the unique index race; reload and retry.
			continue
		}

		read := profile.Version
		if err := mutate(profile); err != nil {
			return err
		}

		res := s.db.Model(&models.TwoFactorProfile{}).
			Where("user_id = ? AND version = ?", userID, read).
			Updates(map[string]any{
				"secret":         profile.Secret,
				"recovery_codes": profile.RecoveryCodes,
				"confirmed_at":   profile.ConfirmedAt,
				"version":        read + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("twofactor: update profile: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return nil
		}
		// Lost the race; reload the latest version and re-validate.
	}

	return ErrConflict
}
