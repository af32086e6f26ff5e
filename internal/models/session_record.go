package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRecord is the login audit trail: one append-only row per successful
// login, identified by a truncated fragment of the issued token.
type SessionRecord struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Email         string    `json:"email"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	TokenFragment string    `gorm:"type:varchar(16);index" json:"token_fragment"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

func (s *SessionRecord) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
