package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campusworks/interndocs/internal/database/testutil"
	"github.com/campusworks/interndocs/internal/models"
	"github.com/campusworks/interndocs/internal/storage"
	apperrors "github.com/campusworks/interndocs/pkg/errors"
)

func TestNotificationCreateAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	intern := createTestUser(t, db, "intern@example.com", models.RoleIntern)

	svc, err := NewNotificationService(db, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	dto, err := svc.Create(ctx, CreateNotificationInput{
		UserID:  intern.ID,
		Type:    models.NotifyDocumentVerified,
		Title:   "Document Approved",
		Message: "Your CV document is now verified",
		Payload: map[string]any{"document_id": "doc-1"},
	})
	require.NoError(t, err)
	require.Equal(t, models.NotifyDocumentVerified, dto.Type)
	require.Equal(t, models.PriorityMedium, dto.Priority)
	require.False(t, dto.IsRead)

	items, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: intern.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, dto.ID, items[0].ID)
	require.Equal(t, "doc-1", items[0].Payload["document_id"])
}

func TestNotifyUploadedFansOutToStaffOnly(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	intern := createTestUser(t, db, "intern@example.com", models.RoleIntern)
	hr := createTestUser(t, db, "hr@example.com", models.RoleHR)
	admin := createTestUser(t, db, "admin@example.com", models.RoleSuperAdmin)
	inactive := createTestUser(t, db, "gone@example.com", models.RoleHR)
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)

	notifier, err := NewNotificationService(db, nil, nil)
	require.NoError(t, err)

	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	docs, err := NewDocumentService(db, blobs, notifier)
	require.NoError(t, err)

	uploadTestDocument(t, docs, intern.ID, models.DocTypeCV)

	ctx := context.Background()
	for _, staff := range []*models.User{hr, admin} {
		items, err := notifier.ListForUser(ctx, ListNotificationsInput{UserID: staff.ID})
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Equal(t, models.NotifyDocumentUploaded, items[0].Type)
		require.Contains(t, items[0].Message, string(models.DocTypeCV))
	}

	// The uploader and the deactivated account get nothing.
	for _, skipped := range []*models.User{intern, inactive} {
		items, err := notifier.ListForUser(ctx, ListNotificationsInput{UserID: skipped.ID})
		require.NoError(t, err)
		require.Empty(t, items)
	}
}

func TestNotifyStatusChangedReachesOwner(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	intern := createTestUser(t, db, "intern@example.com", models.RoleIntern)
	hr := createTestUser(t, db, "hr@example.com", models.RoleHR)

	notifier, err := NewNotificationService(db, nil, nil)
	require.NoError(t, err)

	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	docs, err := NewDocumentService(db, blobs, notifier)
	require.NoError(t, err)

	ctx := context.Background()
	doc := uploadTestDocument(t, docs, intern.ID, models.DocTypeInsurance)

	_, err = docs.Transition(ctx, doc.ID, models.ActionReject, hr, "expired policy")
	require.NoError(t, err)

	items, err := notifier.ListForUser(ctx, ListNotificationsInput{UserID: intern.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, models.NotifyDocumentRejected, items[0].Type)
	require.Equal(t, models.PriorityHigh, items[0].Priority)
	require.Contains(t, items[0].Message, "expired policy")
}

func TestMarkReadIsIdempotent(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	intern := createTestUser(t, db, "intern@example.com", models.RoleIntern)

	svc, err := NewNotificationService(db, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	dto, err := svc.Create(ctx, CreateNotificationInput{
		UserID:  intern.ID,
		Type:    models.NotifyDocumentVerified,
		Title:   "Document Approved",
		Message: "done",
	})
	require.NoError(t, err)

	first, err := svc.MarkRead(ctx, intern.ID, dto.ID)
	require.NoError(t, err)
	require.True(t, first.IsRead)
	require.NotNil(t, first.ReadAt)

	second, err := svc.MarkRead(ctx, intern.ID, dto.ID)
	require.NoError(t, err)
	require.True(t, second.IsRead)
	require.Equal(t, first.ReadAt.Unix(), second.ReadAt.Unix())

	count, err := svc.UnreadCount(ctx, intern.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	intern := createTestUser(t, db, "intern@example.com", models.RoleIntern)
	other := createTestUser(t, db, "other@example.com", models.RoleIntern)

	svc, err := NewNotificationService(db, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	dto, err := svc.Create(ctx, CreateNotificationInput{
		UserID:  intern.ID,
		Type:    models.NotifyDocumentVerified,
		Title:   "Document Approved",
		Message: "done",
	})
	require.NoError(t, err)

	_, err = svc.MarkRead(ctx, other.ID, dto.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMarkAllReadAndUnreadFilter(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	intern := createTestUser(t, db, "intern@example.com", models.RoleIntern)

	svc, err := NewNotificationService(db, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for _, title := range []string{"one", "two", "three"} {
		_, err := svc.Create(ctx, CreateNotificationInput{
			UserID:  intern.ID,
			Type:    models.NotifySystemAnnouncement,
			Title:   strings.ToUpper(title),
			Message: title,
		})
		require.NoError(t, err)
	}

	unread, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: intern.ID, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 3)

	require.NoError(t, svc.MarkAllRead(ctx, intern.ID))

	unread, err = svc.ListForUser(ctx, ListNotificationsInput{UserID: intern.ID, UnreadOnly: true})
	require.NoError(t, err)
	require.Empty(t, unread)

	count, err := svc.UnreadCount(ctx, intern.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestNotificationDelete(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	intern := createTestUser(t, db, "intern@example.com", models.RoleIntern)

	svc, err := NewNotificationService(db, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	dto, err := svc.Create(ctx, CreateNotificationInput{
		UserID:  intern.ID,
		Type:    models.NotifySystemAnnouncement,
		Title:   "Maintenance",
		Message: "Portal offline tonight",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, intern.ID, dto.ID))
	require.ErrorIs(t, svc.Delete(ctx, intern.ID, dto.ID), apperrors.ErrNotFound)
}
