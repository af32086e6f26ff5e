package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/interndocs/internal/middleware"
	"github.com/campusworks/interndocs/internal/models"
	"github.com/campusworks/interndocs/internal/services"
	"github.com/campusworks/interndocs/pkg/errors"
	"github.com/campusworks/interndocs/pkg/response"
)

// DefaultMaxUploadBytes caps document uploads when no limit is configured.
const DefaultMaxUploadBytes = 20 << 20

// DocumentHandler exposes the document lifecycle endpoints.
type DocumentHandler struct {
	docs           *services.DocumentService
	logs           *services.VerificationLogService
	maxUploadBytes int64
}

func NewDocumentHandler(docs *services.DocumentService, logs *services.VerificationLogService, maxUploadBytes int64) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &DocumentHandler{
		docs:           docs,
		logs:           logs,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload accepts a multipart form with a "file" part plus "type" and
// optional "notes" fields, and creates a pending document for the caller.
func (h *DocumentHandler) Upload(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errors.NewBadRequest("a file part named \"file\" is required"))
		return
	}
	if file.Size > h.maxUploadBytes {
		response.Error(c, errors.NewBadRequest(fmt.Sprintf("file exceeds the %d byte limit", h.maxUploadBytes)))
		return
	}

	docType := models.DocumentType(strings.TrimSpace(c.PostForm("type")))
	if !docType.Valid() {
		response.Error(c, errors.NewBadRequest(fmt.Sprintf("unknown document type %q", docType)))
		return
	}

	src, err := file.Open()
	if err != nil {
		response.Error(c, errors.ErrStorage.WithInternal(err))
		return
	}
	defer src.Close()

	doc, err := h.docs.Upload(requestContext(c), services.UploadInput{
		InternID: user.ID,
		Type:     docType,
		FileName: file.Filename,
		MimeType: file.Header.Get("Content-Type"),
		Size:     file.Size,
		Notes:    c.PostForm("notes"),
		Reader:   src,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, doc)
}

// ListMine returns the caller's own active documents.
func (h *DocumentHandler) ListMine(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	docs, err := h.docs.ListForIntern(requestContext(c), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, docs)
}

// List is the staff view across all interns, with optional filters.
func (h *DocumentHandler) List(c *gin.Context) {
	page, perPage := paginationParams(c)

	docs, total, err := h.docs.List(requestContext(c), services.ListDocumentsInput{
		InternID: strings.TrimSpace(c.Query("intern_id")),
		Status:   models.DocumentStatus(strings.TrimSpace(c.Query("status"))),
		Type:     models.DocumentType(strings.TrimSpace(c.Query("type"))),
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage != 0 {
		totalPages++
	}

	response.SuccessWithMeta(c, http.StatusOK, docs, &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	})
}

// Get returns a single document.
func (h *DocumentHandler) Get(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	doc, err := h.docs.Get(requestContext(c), c.Param("id"), user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, doc)
}

// Download streams the stored file back to the caller.
func (h *DocumentHandler) Download(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	reader, doc, err := h.docs.Download(requestContext(c), c.Param("id"), user)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	contentType := doc.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	c.DataFromReader(http.StatusOK, doc.FileSize, contentType, reader, nil)
}

type transitionRequest struct {
	Comments string `json:"comments" validate:"omitempty,max=2000"`
}

// Approve marks a pending or under-review document verified.
func (h *DocumentHandler) Approve(c *gin.Context) {
	h.transition(c, models.ActionApprove, false)
}

// Reject marks the document rejected; a reason is mandatory.
func (h *DocumentHandler) Reject(c *gin.Context) {
	h.transition(c, models.ActionReject, true)
}

// RequestRevision moves a pending document to under_review.
func (h *DocumentHandler) RequestRevision(c *gin.Context) {
	h.transition(c, models.ActionRequestRevision, false)
}

func (h *DocumentHandler) transition(c *gin.Context, action models.VerificationAction, commentsRequired bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload transitionRequest
	if c.Request.ContentLength > 0 {
		if !bindAndValidate(c, &payload) {
			return
		}
	}

	if commentsRequired && strings.TrimSpace(payload.Comments) == "" {
		response.Error(c, errors.NewBadRequest("a rejection reason is required"))
		return
	}

	doc, err := h.docs.Transition(requestContext(c), c.Param("id"), action, user, payload.Comments)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, doc)
}

// Delete soft-deletes a document.
func (h *DocumentHandler) Delete(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.docs.SoftDelete(requestContext(c), c.Param("id"), user); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Purge permanently removes a document row and its file.
func (h *DocumentHandler) Purge(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.docs.Purge(requestContext(c), c.Param("id"), user); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"purged": true})
}

// History returns the document's verification trail in chronological order.
func (h *DocumentHandler) History(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	events, err := h.logs.History(requestContext(c), c.Param("id"), user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, events)
}

// Events is the staff-wide filtered verification event listing.
func (h *DocumentHandler) Events(c *gin.Context) {
	page, perPage := paginationParams(c)

	input := services.ListEventsInput{
		InternID:   strings.TrimSpace(c.Query("intern_id")),
		DocumentID: strings.TrimSpace(c.Query("document_id")),
		VerifierID: strings.TrimSpace(c.Query("verifier_id")),
		Action:     models.VerificationAction(strings.TrimSpace(c.Query("action"))),
		Page:       page,
		PerPage:    perPage,
	}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, errors.NewBadRequest("from must be formatted as YYYY-MM-DD"))
			return
		}
		input.From = parsed
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, errors.NewBadRequest("to must be formatted as YYYY-MM-DD"))
			return
		}
		input.To = parsed.Add(24*time.Hour - time.Nanosecond)
	}

	events, total, err := h.logs.List(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage != 0 {
		totalPages++
	}

	response.SuccessWithMeta(c, http.StatusOK, events, &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	})
}
