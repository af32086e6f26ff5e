package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campusworks/interndocs/internal/models"
	"github.com/campusworks/interndocs/internal/notifications"
	apperrors "github.com/campusworks/interndocs/pkg/errors"
	"github.com/campusworks/interndocs/pkg/logger"
	"github.com/campusworks/interndocs/pkg/mail"
	"github.com/campusworks/interndocs/pkg/metrics"
)

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID        string                  `json:"id"`
	UserID    string                  `json:"user_id"`
	InternID  *string                 `json:"intern_id,omitempty"`
	Type      models.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Priority  string                  `json:"priority"`
	Payload   map[string]any          `json:"payload,omitempty"`
	IsRead    bool                    `json:"is_read"`
	CreatedAt time.Time               `json:"created_at"`
	ReadAt    *time.Time              `json:"read_at,omitempty"`
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID   string
	InternID *string
	Type     models.NotificationType
	Title    string
	Message  string
	Priority string
	Payload  map[string]any

	// Email, when set and SMTP is enabled, additionally delivers the
	// notification by mail. Delivery failures are logged only.
	Email string
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationService is the dispatcher: it persists notification rows,
// broadcasts them to websocket subscribers and optionally emails recipients.
// Dispatch is best-effort; failures never propagate to the operation that
// triggered them.
type NotificationService struct {
	db     *gorm.DB
	hub    *notifications.Hub
	mailer mail.Mailer
	log    *zap.Logger
}

// NewNotificationService constructs a NotificationService. Hub and mailer are optional.
func NewNotificationService(db *gorm.DB, hub *notifications.Hub, mailer mail.Mailer) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{
		db:     db,
		hub:    hub,
		mailer: mailer,
		log:    logger.WithModule("notifications"),
	}, nil
}

// NotifyUploaded fans one document_uploaded notification out to every active
// hr and super_admin user. Zero recipients is a no-op, not an error.
func (s *NotificationService) NotifyUploaded(ctx context.Context, doc *models.Document, internName string) {
	ctx = ensureContext(ctx)
	if doc == nil {
		return
	}

	var staff []models.User
	err := s.db.WithContext(ctx).
		Where("role IN ? AND is_active = ?", []models.Role{models.RoleHR, models.RoleSuperAdmin}, true).
		Find(&staff).Error
	if err != nil {
		s.log.Error("load upload recipients", zap.String("document_id", doc.ID), zap.Error(err))
		return
	}

	title := "New Document Uploaded"
	message := fmt.Sprintf("%s uploaded a %s document for review", internName, doc.Type)

	for _, recipient := range staff {
		_, err := s.Create(ctx, CreateNotificationInput{
			UserID:   recipient.ID,
			InternID: &doc.InternID,
			Type:     models.NotifyDocumentUploaded,
			Title:    title,
			Message:  message,
			Priority: models.PriorityMedium,
			Payload: map[string]any{
				"document_id":   doc.ID,
				"document_type": doc.Type,
				"intern_id":     doc.InternID,
				"intern_name":   internName,
			},
			Email: recipient.Email,
		})
		if err != nil {
			s.log.Error("dispatch upload notification",
				zap.String("document_id", doc.ID),
				zap.String("recipient", recipient.ID),
				zap.Error(err))
		}
	}
}

// NotifyStatusChanged sends exactly one notification to the document owner
// after a review transition. A missing or deactivated owner account is
// silently skipped.
func (s *NotificationService) NotifyStatusChanged(ctx context.Context, doc *models.Document, action models.VerificationAction, comments string) {
	ctx = ensureContext(ctx)
	if doc == nil {
		return
	}

	var owner models.User
	err := s.db.WithContext(ctx).Take(&owner, "id = ?", doc.InternID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	if err != nil {
		s.log.Error("load document owner", zap.String("document_id", doc.ID), zap.Error(err))
		return
	}

	var (
		title    string
		notType  models.NotificationType
		priority = models.PriorityMedium
	)
	switch action {
	case models.ActionApprove:
		title = "Document Approved"
		notType = models.NotifyDocumentVerified
	case models.ActionReject:
		title = "Document Rejected"
		notType = models.NotifyDocumentRejected
		priority = models.PriorityHigh
	case models.ActionRequestRevision:
		title = "Document Revision Requested"
		notType = models.NotifyDocumentRejected
	default:
		return
	}

	message := fmt.Sprintf("Your %s document is now %s", doc.Type, doc.Status)
	if strings.TrimSpace(comments) != "" {
		message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(comments))
	}

	_, err = s.Create(ctx, CreateNotificationInput{
		UserID:   owner.ID,
		InternID: &doc.InternID,
		Type:     notType,
		Title:    title,
		Message:  message,
		Priority: priority,
		Payload: map[string]any{
			"document_id":   doc.ID,
			"document_type": doc.Type,
			"action":        action,
			"status":        doc.Status,
		},
		Email: owner.Email,
	})
	if err != nil {
		s.log.Error("dispatch status notification",
			zap.String("document_id", doc.ID),
			zap.String("recipient", owner.ID),
			zap.Error(err))
	}
}

// Create registers a new notification and broadcasts it to subscribers.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}
	if input.Type == "" {
		return nil, errors.New("notification service: type is required")
	}

	notification := models.Notification{
		UserID:   userID,
		InternID: input.InternID,
		Type:     input.Type,
		Title:    strings.TrimSpace(input.Title),
		Message:  strings.TrimSpace(input.Message),
		Priority: defaultIfEmpty(input.Priority, models.PriorityMedium),
	}

	if input.Payload != nil {
		data, err := json.Marshal(input.Payload)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal payload: %w", err)
		}
		notification.Payload = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	metrics.NotificationsDispatched.WithLabelValues(string(input.Type)).Inc()

	dto := mapNotification(notification)
	s.broadcast(userID, "notification.created", &dto)
	s.email(ctx, input.Email, dto.Title, dto.Message)

	return &dto, nil
}

// ListForUser returns notifications for the supplied user ordered by recency.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items, nil
}

// UnreadCount returns the number of unread notifications for the user.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("notification service: unread count: %w", err)
	}
	return count, nil
}

// MarkRead sets the notification read flag for its recipient. Marking an
// already-read notification again is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}

	if notification.IsRead {
		dto := mapNotification(notification)
		return &dto, nil
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&notification).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}

	notification.IsRead = true
	notification.ReadAt = &now
	dto := mapNotification(notification)

	s.broadcast(userID, "notification.read", &dto)

	return &dto, nil
}

// MarkAllRead marks all notifications for the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return fmt.Errorf("notification service: mark all read: %w", err)
	}

	s.broadcast(userID, "notification.read_all", nil)
	return nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (s *NotificationService) broadcast(userID, event string, dto *NotificationDTO) {
	if s.hub == nil {
		return
	}

	payload := notifications.Event{Event: event}
	if dto != nil {
		payload.Notification = dto
		payload.NotificationID = dto.ID
	}
	s.hub.Broadcast(userID, payload)
}

func (s *NotificationService) email(ctx context.Context, address, subject, body string) {
	if s.mailer == nil || strings.TrimSpace(address) == "" {
		return
	}

	err := s.mailer.Send(ctx, mail.Message{
		To:      []string{address},
		Subject: subject,
		Body:    body,
	})
	if err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("email delivery failed", zap.String("to", address), zap.Error(err))
	}
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		InternID:  row.InternID,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		Priority:  defaultIfEmpty(row.Priority, models.PriorityMedium),
		Payload:   decodeJSON(row.Payload),
		IsRead:    row.IsRead,
		CreatedAt: row.CreatedAt,
		ReadAt:    row.ReadAt,
	}
}

func decodeJSON(data datatypes.JSON) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
