package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/campusworks/interndocs/internal/models"
	apperrors "github.com/campusworks/interndocs/pkg/errors"
)

// ListEventsInput filters the staff-wide event listing.
type ListEventsInput struct {
	InternID   string
	DocumentID string
	VerifierID string
	Action     models.VerificationAction
	From       time.Time
	To         time.Time
	Page       int
	PerPage    int
}

// VerificationLogService reads the append-only verification trail. Events
// are only ever written by DocumentService inside document transactions;
// nothing here mutates them.
type VerificationLogService struct {
	db *gorm.DB
}

func NewVerificationLogService(db *gorm.DB) (*VerificationLogService, error) {
	if db == nil {
		return nil, errors.New("verification log service: db is required")
	}
	return &VerificationLogService{db: db}, nil
}

// History returns a document's events in chronological order. Staff can read
// any document's trail, interns only their own. The document row is looked
// up without the is_active filter: the trail outlives a soft delete.
func (s *VerificationLogService) History(ctx context.Context, documentID string, requester *models.User) ([]models.VerificationEvent, error) {
	ctx = ensureContext(ctx)

	if requester == nil {
		return nil, apperrors.ErrUnauthorized
	}

	var doc models.Document
	err := s.db.WithContext(ctx).Take(&doc, "id = ?", documentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}

	if !requester.Role.Staff() && requester.ID != doc.InternID {
		return nil, apperrors.ErrForbidden
	}

	var events []models.VerificationEvent
	err = s.db.WithContext(ctx).
		Preload("Verifier").
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}
	return events, nil
}

// ListForIntern returns every event across an intern's documents, newest
// first. Same access rule as History.
func (s *VerificationLogService) ListForIntern(ctx context.Context, internID string, requester *models.User) ([]models.VerificationEvent, error) {
	ctx = ensureContext(ctx)

	if requester == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if !requester.Role.Staff() && requester.ID != internID {
		return nil, apperrors.ErrForbidden
	}

	var events []models.VerificationEvent
	err := s.db.WithContext(ctx).
		Preload("Verifier").
		Where("intern_id = ?", internID).
		Order("created_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}
	return events, nil
}

// List is the staff-wide filtered view over the whole trail.
func (s *VerificationLogService) List(ctx context.Context, input ListEventsInput) ([]models.VerificationEvent, int64, error) {
	ctx = ensureContext(ctx)

	page := input.Page
	if page <= 0 {
		page = 1
	}
	perPage := input.PerPage
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.VerificationEvent{})
	if input.InternID != "" {
		query = query.Where("intern_id = ?", input.InternID)
	}
	if input.DocumentID != "" {
		query = query.Where("document_id = ?", input.DocumentID)
	}
	if input.VerifierID != "" {
		query = query.Where("verifier_id = ?", input.VerifierID)
	}
	if input.Action != "" {
		query = query.Where("action = ?", input.Action)
	}
	if !input.From.IsZero() {
		query = query.Where("created_at >= ?", input.From)
	}
	if !input.To.IsZero() {
		query = query.Where("created_at <= ?", input.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.ErrStorage.WithInternal(err)
	}

	var events []models.VerificationEvent
	err := query.
		Preload("Verifier").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&events).Error
	if err != nil {
		return nil, 0, apperrors.ErrStorage.WithInternal(err)
	}

	return events, total, nil
}
