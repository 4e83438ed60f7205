package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TwoFactorProfile holds the per-account two-factor authentication state.
//
// Secret and RecoveryCodes are opaque encrypted blobs; they are only ever
// written through the twofactor.SecretCodec and are empty while two-factor
// authentication is disabled. ConfirmedAt is nil until the user has proven
// possession of the enrolled authenticator.
type TwoFactorProfile struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	Secret        string     `json:"-"`
	RecoveryCodes string     `json:"-"`
	ConfirmedAt   *time.Time `json:"confirmed_at"`

	// Version implements optimistic concurrency control: every write bumps it
	// and is conditioned on the value that was read.
	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (p *TwoFactorProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
