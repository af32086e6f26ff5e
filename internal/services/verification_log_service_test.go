package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusworks/interndocs/internal/database/testutil"
	"github.com/campusworks/interndocs/internal/models"
	apperrors "github.com/campusworks/interndocs/pkg/errors"
)

func TestHistoryReturnsChronologicalTrail(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	docs := newTestDocumentService(t, db)
	logs, err := NewVerificationLogService(db)
	require.NoError(t, err)

	intern := createTestUser(t, db, "intern@example.com", models.RoleIntern)
	hr := createTestUser(t, db, "hr@example.com", models.RoleHR)
	ctx := context.Background()

	doc := uploadTestDocument(t, docs, intern.ID, models.DocTypeCV)
	_, err = docs.Transition(ctx, doc.ID, models.ActionRequestRevision, hr, "blurred scan")
	require.NoError(t, err)
	_, err = docs.Transition(ctx, doc.ID, models.ActionApprove, hr, "")
	require.NoError(t, err)

	events, err := logs.History(ctx, doc.ID, intern)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, models.ActionUpload, events[0].Action)
	require.Equal(t, models.ActionRequestRevision, events[1].Action)
	require.Equal(t, models.ActionApprove, events[2].Action)
	require.Equal(t, "blurred scan", events[1].Comments)

	// Reviewer identity is attached where one acted.
	require.Nil(t, events[0].VerifierID)
	require.NotNil(t, events[2].Verifier)
	require.Equal(t, hr.Email, events[2].Verifier.Email)
}

func TestHistoryAccessRules(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	docs := newTestDocumentService(t, db)
	logs, err := NewVerificationLogService(db)
	require.NoError(t, err)

	intern := createTestUser(t, db, "intern@example.com", models.RoleIntern)
	other := createTestUser(t, db, "other@example.com", models.RoleIntern)
	hr := createTestUser(t, db, "hr@example.com", models.RoleHR)
	ctx := context.Background()

	doc := uploadTestDocument(t, docs, intern.ID, models.DocTypeCV)

	_, err = logs.History(ctx, doc.ID, other)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = logs.History(ctx, doc.ID, hr)
	require.NoError(t, err)

	_, err = logs.History(ctx, "missing-doc", hr)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHistorySurvivesSoftDelete(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	docs := newTestDocumentService(t, db)
	logs, err := NewVerificationLogService(db)
	require.NoError(t, err)

	intern := createTestUser(t, db, "intern@example.com", models.RoleIntern)
	ctx := context.Background()

	doc := uploadTestDocument(t, docs, intern.ID, models.DocTypeCV)
	require.NoError(t, docs.SoftDelete(ctx, doc.ID, intern))

	events, err := logs.History(ctx, doc.ID, intern)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, models.ActionDelete, events[1].Action)
}

func TestListEventsFilters(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	docs := newTestDocumentService(t, db)
	logs, err := NewVerificationLogService(db)
	require.NoError(t, err)

	alice := createTestUser(t, db, "alice@example.com", models.RoleIntern)
	bob := createTestUser(t, db, "bob@example.com", models.RoleIntern)
	hr := createTestUser(t, db, "hr@example.com", models.RoleHR)
	ctx := context.Background()

	aliceDoc := uploadTestDocument(t, docs, alice.ID, models.DocTypeCV)
	uploadTestDocument(t, docs, bob.ID, models.DocTypeCV)
	_, err = docs.Transition(ctx, aliceDoc.ID, models.ActionApprove, hr, "")
	require.NoError(t, err)

	events, total, err := logs.List(ctx, ListEventsInput{InternID: alice.ID})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, events, 2)

	events, total, err = logs.List(ctx, ListEventsInput{Action: models.ActionApprove})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, aliceDoc.ID, events[0].DocumentID)

	_, total, err = logs.List(ctx, ListEventsInput{VerifierID: hr.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	events, total, err = logs.List(ctx, ListEventsInput{Page: 1, PerPage: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, events, 2)

	_, total, err = logs.List(ctx, ListEventsInput{From: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)

	_, total, err = logs.List(ctx, ListEventsInput{To: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.EqualValues(t, 0, total)
}
