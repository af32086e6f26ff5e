package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType enumerates the events surfaced to users.
type NotificationType string

const (
	NotifyDocumentUploaded   NotificationType = "document_uploaded"
	NotifyDocumentVerified   NotificationType = "document_verified"
	NotifyDocumentRejected   NotificationType = "document_rejected"
	NotifyDocumentExpired    NotificationType = "document_expired"
	NotifyBillDue            NotificationType = "bill_due"
	NotifySystemAnnouncement NotificationType = "system_announcement"
	NotifyHousingUpdate      NotificationType = "housing_update"
)

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Notification represents an in-app notification for a user.
type Notification struct {
	BaseModel

	UserID   string           `gorm:"type:uuid;not null;index" json:"user_id"`
	InternID *string          `gorm:"type:uuid;index" json:"intern_id,omitempty"`
	Type     NotificationType `gorm:"type:varchar(64);not null" json:"type"`
	Title    string           `gorm:"type:varchar(255);not null" json:"title"`
	Message  string           `gorm:"type:text" json:"message"`
	Priority string           `gorm:"type:varchar(16);default:'medium'" json:"priority"`
	Payload  datatypes.JSON   `json:"payload"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
