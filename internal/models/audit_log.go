package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records a security-relevant event such as a login attempt or a
// two-factor configuration change.
type AuditLog struct {
	ID     string  `gorm:"primaryKey;type:uuid" json:"id"`
	UserID *string `gorm:"type:uuid;index" json:"user_id,omitempty"`

	Action string `gorm:"index;not null" json:"action"`
	Result string `gorm:"index;not null" json:"result"`

	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (l *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
