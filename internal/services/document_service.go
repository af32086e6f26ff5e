package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campusworks/interndocs/internal/models"
	"github.com/campusworks/interndocs/internal/storage"
	apperrors "github.com/campusworks/interndocs/pkg/errors"
	"github.com/campusworks/interndocs/pkg/logger"
	"github.com/campusworks/interndocs/pkg/metrics"
)

// UploadInput describes a document submission.
type UploadInput struct {
	InternID string
	Type     models.DocumentType
	FileName string
	MimeType string
	Size     int64
	Notes    string
	Reader   io.Reader
}

// ListDocumentsInput filters the staff document listing.
type ListDocumentsInput struct {
	InternID string
	Status   models.DocumentStatus
	Type     models.DocumentType
	Page     int
	PerPage  int
}

// DocumentService owns the document state machine: upload, review
// transitions, soft delete and download. Every state change appends exactly
// one VerificationEvent in the same transaction.
type DocumentService struct {
	db       *gorm.DB
	blobs    storage.BlobStore
	notifier *NotificationService
	log      *zap.Logger
}

// NewDocumentService constructs a DocumentService. The notifier is optional;
// when present, lifecycle changes trigger best-effort notifications.
func NewDocumentService(db *gorm.DB, blobs storage.BlobStore, notifier *NotificationService) (*DocumentService, error) {
	if db == nil {
		return nil, errors.New("document service: db is required")
	}
	if blobs == nil {
		return nil, errors.New("document service: blob store is required")
	}
	return &DocumentService{
		db:       db,
		blobs:    blobs,
		notifier: notifier,
		log:      logger.WithModule("documents"),
	}, nil
}

// Upload stages the file, then creates the Document row and its upload event
// in one transaction. The staged blob is removed on any failure after
// staging, so the operation is all-or-nothing from the caller's view.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*models.Document, error) {
	ctx = ensureContext(ctx)

	if input.InternID == "" {
		return nil, errors.New("document service: intern id is required")
	}
	if !input.Type.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown document type %q", input.Type))
	}
	if input.Reader == nil {
		return nil, apperrors.NewBadRequest("file payload is required")
	}

	activeKey := models.ActiveKeyFor(input.InternID, input.Type)

	// Friendly pre-check; the unique index on active_key is what actually
	// serialises concurrent uploads of the same type.
	var existing int64
	err := s.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("active_key = ?", activeKey).
		Count(&existing).Error
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}
	if existing > 0 {
		metrics.DocumentUploads.WithLabelValues(string(input.Type), "duplicate").Inc()
		return nil, apperrors.ErrDuplicateActive
	}

	blobKey := uuid.NewString() + sanitizeExt(input.FileName)
	ref, err := s.blobs.Save(ctx, storage.SaveInput{
		Key:         blobKey,
		Reader:      input.Reader,
		Size:        input.Size,
		ContentType: input.MimeType,
	})
	if err != nil {
		metrics.DocumentUploads.WithLabelValues(string(input.Type), "error").Inc()
		return nil, apperrors.ErrStorage.WithInternal(err)
	}

	doc := models.Document{
		InternID:  input.InternID,
		Type:      input.Type,
		FileKey:   ref,
		FileName:  filepath.Base(strings.TrimSpace(input.FileName)),
		FileSize:  input.Size,
		MimeType:  input.MimeType,
		Notes:     strings.TrimSpace(input.Notes),
		Status:    models.StatusPending,
		IsActive:  true,
		ActiveKey: &activeKey,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}

		event := models.VerificationEvent{
			DocumentID:     doc.ID,
			InternID:       doc.InternID,
			Action:         models.ActionUpload,
			PreviousStatus: models.StatusPending,
			NewStatus:      models.StatusPending,
			Comments:       doc.Notes,
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		// No orphaned blobs: the staged file goes when the row does not land.
		if cleanupErr := s.blobs.Delete(ctx, ref); cleanupErr != nil {
			s.log.Error("cleanup staged blob", zap.String("ref", ref), zap.Error(cleanupErr))
		}
		if isUniqueConstraintError(err) {
			metrics.DocumentUploads.WithLabelValues(string(input.Type), "duplicate").Inc()
			return nil, apperrors.ErrDuplicateActive
		}
		metrics.DocumentUploads.WithLabelValues(string(input.Type), "error").Inc()
		return nil, apperrors.ErrStorage.WithInternal(err)
	}

	metrics.DocumentUploads.WithLabelValues(string(input.Type), "created").Inc()

	if s.notifier != nil {
		s.notifier.NotifyUploaded(ctx, &doc, s.internDisplayName(ctx, doc.InternID))
	}

	return &doc, nil
}

// Transition applies a review action (approve, reject, request_revision) to
// a non-terminal document. The status change and its audit record commit
// atomically; the conditional update also rules out concurrent double
// transitions.
func (s *DocumentService) Transition(ctx context.Context, documentID string, action models.VerificationAction, verifier *models.User, comments string) (*models.Document, error) {
	ctx = ensureContext(ctx)

	if verifier == nil || !verifier.Role.Staff() {
		return nil, apperrors.ErrForbidden
	}

	doc, err := s.loadActive(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if doc.Status.Terminal() {
		metrics.DocumentTransitions.WithLabelValues(string(action), "rejected").Inc()
		return nil, apperrors.ErrInvalidTransition
	}

	now := time.Now().UTC()
	comments = strings.TrimSpace(comments)

	var newStatus models.DocumentStatus
	updates := map[string]any{
		"verified_at":      nil,
		"rejected_at":      nil,
		"rejection_reason": "",
		"updated_at":       now,
	}

	switch action {
	case models.ActionApprove:
		newStatus = models.StatusVerified
		updates["verified_at"] = now
	case models.ActionReject:
		newStatus = models.StatusRejected
		updates["rejected_at"] = now
		updates["rejection_reason"] = comments
		// A rejected document no longer blocks resubmission of its type.
		updates["active_key"] = nil
	case models.ActionRequestRevision:
		newStatus = models.StatusUnderReview
	default:
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown action %q", action))
	}
	updates["status"] = newStatus

	previous := doc.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Document{}).
			Where("id = ? AND status = ? AND is_active = ?", doc.ID, previous, true).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race or the state moved under us.
			return apperrors.ErrInvalidTransition
		}

		event := models.VerificationEvent{
			DocumentID:     doc.ID,
			InternID:       doc.InternID,
			VerifierID:     &verifier.ID,
			Action:         action,
			PreviousStatus: previous,
			NewStatus:      newStatus,
			Comments:       comments,
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		metrics.DocumentTransitions.WithLabelValues(string(action), "rejected").Inc()
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			return nil, apperrors.ErrInvalidTransition
		}
		return nil, apperrors.ErrStorage.WithInternal(err)
	}

	doc.Status = newStatus
	doc.UpdatedAt = now
	doc.VerifiedAt, doc.RejectedAt, doc.RejectionReason = nil, nil, ""
	switch action {
	case models.ActionApprove:
		doc.VerifiedAt = &now
	case models.ActionReject:
		doc.RejectedAt = &now
		doc.RejectionReason = comments
		doc.ActiveKey = nil
	}

	metrics.DocumentTransitions.WithLabelValues(string(action), "applied").Inc()

	if s.notifier != nil {
		s.notifier.NotifyStatusChanged(ctx, doc, action, comments)
	}

	return doc, nil
}

// SoftDelete marks the document inactive and appends a delete event. Staff
// may delete any document; the owning intern only while it is still pending.
// The physical file removal is best-effort: the database is the state of
// record.
func (s *DocumentService) SoftDelete(ctx context.Context, documentID string, actor *models.User) error {
	ctx = ensureContext(ctx)

	if actor == nil {
		return apperrors.ErrUnauthorized
	}

	doc, err := s.loadActive(ctx, documentID)
	if err != nil {
		return err
	}

	isOwner := actor.ID == doc.InternID
	if !actor.Role.Staff() && !(isOwner && doc.Status == models.StatusPending) {
		return apperrors.ErrForbidden
	}

	var verifierID *string
	if actor.Role.Staff() {
		verifierID = &actor.ID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Document{}).
			Where("id = ? AND is_active = ?", doc.ID, true).
			Updates(map[string]any{
				"is_active":  false,
				"active_key": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}

		event := models.VerificationEvent{
			DocumentID:     doc.ID,
			InternID:       doc.InternID,
			VerifierID:     verifierID,
			Action:         models.ActionDelete,
			PreviousStatus: doc.Status,
			NewStatus:      doc.Status,
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrStorage.WithInternal(err)
	}

	if err := s.blobs.Delete(ctx, doc.FileKey); err != nil {
		s.log.Warn("remove deleted document blob",
			zap.String("document_id", doc.ID),
			zap.String("ref", doc.FileKey),
			zap.Error(err))
	}

	return nil
}

// Purge irreversibly removes a soft-deleted or active document row and its
// blob. Verification events are retained; the audit trail survives the
// document. Restricted to super admins.
func (s *DocumentService) Purge(ctx context.Context, documentID string, actor *models.User) error {
	ctx = ensureContext(ctx)

	if actor == nil || actor.Role != models.RoleSuperAdmin {
		return apperrors.ErrForbidden
	}

	var doc models.Document
	err := s.db.WithContext(ctx).Take(&doc, "id = ?", documentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return apperrors.ErrStorage.WithInternal(err)
	}

	if err := s.db.WithContext(ctx).Delete(&doc).Error; err != nil {
		return apperrors.ErrStorage.WithInternal(err)
	}

	if err := s.blobs.Delete(ctx, doc.FileKey); err != nil {
		s.log.Warn("remove purged document blob",
			zap.String("document_id", doc.ID),
			zap.Error(err))
	}

	return nil
}

// Download streams the stored file. Staff may download any document, interns
// only their own. A missing blob is NotFound, distinct from Forbidden.
func (s *DocumentService) Download(ctx context.Context, documentID string, requester *models.User) (io.ReadCloser, *models.Document, error) {
	ctx = ensureContext(ctx)

	doc, err := s.Get(ctx, documentID, requester)
	if err != nil {
		return nil, nil, err
	}

	reader, err := s.blobs.Open(ctx, doc.FileKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, apperrors.ErrNotFound
		}
		return nil, nil, apperrors.ErrStorage.WithInternal(err)
	}

	return reader, doc, nil
}

// Get returns a single active document after the ownership/role check.
func (s *DocumentService) Get(ctx context.Context, documentID string, requester *models.User) (*models.Document, error) {
	ctx = ensureContext(ctx)

	if requester == nil {
		return nil, apperrors.ErrUnauthorized
	}

	doc, err := s.loadActive(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if !requester.Role.Staff() && requester.ID != doc.InternID {
		return nil, apperrors.ErrForbidden
	}

	return doc, nil
}

// ListForIntern returns the intern's active documents, newest first.
func (s *DocumentService) ListForIntern(ctx context.Context, internID string) ([]models.Document, error) {
	ctx = ensureContext(ctx)

	var docs []models.Document
	err := s.db.WithContext(ctx).
		Where("intern_id = ? AND is_active = ?", internID, true).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}
	return docs, nil
}

// List returns active documents across all interns for the staff view.
func (s *DocumentService) List(ctx context.Context, input ListDocumentsInput) ([]models.Document, int64, error) {
	ctx = ensureContext(ctx)

	page := input.Page
	if page <= 0 {
		page = 1
	}
	perPage := input.PerPage
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("is_active = ?", true)
	if input.InternID != "" {
		query = query.Where("intern_id = ?", input.InternID)
	}
	if input.Status != "" {
		query = query.Where("status = ?", input.Status)
	}
	if input.Type != "" {
		query = query.Where("type = ?", input.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.ErrStorage.WithInternal(err)
	}

	var docs []models.Document
	err := query.
		Preload("Intern").
		Preload("Intern.Profile").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&docs).Error
	if err != nil {
		return nil, 0, apperrors.ErrStorage.WithInternal(err)
	}

	return docs, total, nil
}

func (s *DocumentService) loadActive(ctx context.Context, documentID string) (*models.Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, apperrors.ErrNotFound
	}

	var doc models.Document
	err := s.db.WithContext(ctx).
		Take(&doc, "id = ? AND is_active = ?", documentID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}
	return &doc, nil
}

func (s *DocumentService) internDisplayName(ctx context.Context, internID string) string {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Profile").
		Take(&user, "id = ?", internID).Error
	if err != nil {
		return "An intern"
	}
	if user.Profile != nil && user.Profile.Name != "" {
		return user.Profile.Name
	}
	if user.Name != "" {
		return user.Name
	}
	return user.Email
}

func sanitizeExt(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext {
		if r != '.' && (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
