package models

import (
	"time"
)

// DocumentType enumerates the artefacts an intern can submit.
type DocumentType string

const (
	DocTypeCV                  DocumentType = "CV"
	DocTypeIDPassport          DocumentType = "ID_PASSPORT"
	DocTypeErasmusForms        DocumentType = "ERASMUS_FORMS"
	DocTypeInternshipAgreement DocumentType = "INTERNSHIP_AGREEMENT"
	DocTypeInsurance           DocumentType = "INSURANCE"
	DocTypeAcceptanceLetter    DocumentType = "ACCEPTANCE_LETTER"
	DocTypeLearningAgreement   DocumentType = "LEARNING_AGREEMENT"
	DocTypeFinalReport         DocumentType = "FINAL_REPORT"
	DocTypeProfilePicture      DocumentType = "PROFILE_PICTURE"
	DocTypeOther               DocumentType = "OTHER"
)

// Valid reports whether the document type is one of the known values.
func (t DocumentType) Valid() bool {
	switch t {
	case DocTypeCV, DocTypeIDPassport, DocTypeErasmusForms, DocTypeInternshipAgreement,
		DocTypeInsurance, DocTypeAcceptanceLetter, DocTypeLearningAgreement,
		DocTypeFinalReport, DocTypeProfilePicture, DocTypeOther:
		return true
	}
	return false
}

// DocumentStatus tracks where a document sits in its review lifecycle.
type DocumentStatus string

const (
	StatusPending     DocumentStatus = "pending"
	StatusUnderReview DocumentStatus = "under_review"
	StatusVerified    DocumentStatus = "verified"
	StatusRejected    DocumentStatus = "rejected"
)

// Terminal reports whether no further review transition is defined from this status.
func (s DocumentStatus) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// Document is a single uploaded artefact owned by an intern.
type Document struct {
	BaseModel

	InternID string `gorm:"type:uuid;not null;index" json:"intern_id"`
	Intern   *User  `gorm:"foreignKey:InternID" json:"intern,omitempty"`

	Type     DocumentType `gorm:"type:varchar(64);not null;index" json:"type"`
	FileKey  string       `gorm:"not null" json:"-"`
	FileName string       `json:"file_name"`
	FileSize int64        `json:"file_size"`
	MimeType string       `json:"mime_type"`
	Notes    string       `gorm:"type:text" json:"notes"`

	Status          DocumentStatus `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	VerifiedAt      *time.Time     `json:"verified_at"`
	RejectedAt      *time.Time     `json:"rejected_at"`
	RejectionReason string         `gorm:"type:text" json:"rejection_reason"`

	IsActive bool `gorm:"default:true;index" json:"is_active"`

	// ActiveKey is "<intern_id>/<type>" while the document is active and not
	// rejected, NULL otherwise. The unique index on it is what serialises
	// concurrent uploads of the same type for the same intern.
	ActiveKey *string `gorm:"uniqueIndex" json:"-"`
}

// ActiveKeyFor builds the uniqueness key guarding one active, non-rejected
// document per (intern, type) pair.
func ActiveKeyFor(internID string, docType DocumentType) string {
	return internID + "/" + string(docType)
}
