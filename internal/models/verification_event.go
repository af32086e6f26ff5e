package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VerificationAction enumerates the lifecycle events recorded in the audit trail.
type VerificationAction string

const (
	ActionUpload          VerificationAction = "upload"
	ActionApprove         VerificationAction = "approve"
	ActionReject          VerificationAction = "reject"
	ActionRequestRevision VerificationAction = "request_revision"
	ActionDelete          VerificationAction = "delete"
)

// VerificationEvent is an append-only audit record. One row is written per
// lifecycle transition, including the initial upload; rows are never updated
// or deleted.
type VerificationEvent struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	DocumentID string `gorm:"type:uuid;not null;index" json:"document_id"`
	InternID   string `gorm:"type:uuid;not null;index" json:"intern_id"`

	// VerifierID is nil for self-service actions (upload, intern delete).
	VerifierID *string `gorm:"type:uuid;index" json:"verifier_id"`
	Verifier   *User   `gorm:"foreignKey:VerifierID" json:"verifier,omitempty"`

	Action         VerificationAction `gorm:"type:varchar(32);not null;index" json:"action"`
	PreviousStatus DocumentStatus     `gorm:"type:varchar(32);not null" json:"previous_status"`
	NewStatus      DocumentStatus     `gorm:"type:varchar(32);not null" json:"new_status"`
	Comments       string             `gorm:"type:text" json:"comments"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (e *VerificationEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
