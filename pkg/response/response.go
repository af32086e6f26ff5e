// Package response renders the JSON envelope every API endpoint speaks:
// {"success": bool, "data": ..., "error": {code, message}, "meta": {...}}.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/campusworks/interndocs/pkg/errors"
)

// Meta carries pagination details alongside list payloads.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// Success writes data under a success envelope.
func Success(c *gin.Context, statusCode int, data any) {
	SuccessWithMeta(c, statusCode, data, nil)
}

// SuccessWithMeta writes data plus pagination meta under a success envelope.
func SuccessWithMeta(c *gin.Context, statusCode int, data any, meta *Meta) {
	c.JSON(statusCode, envelope{Success: true, Data: data, Meta: meta})
}

// Error maps err onto the envelope's error shape. Anything that is not an
// AppError renders as a generic 500 so internals never leak to clients.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}
	appErr := appErrors.FromError(err)

	status := appErr.StatusCode
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}

	c.JSON(status, envelope{
		Success: false,
		Error:   &errorBody{Code: appErr.Code, Message: appErr.Message},
	})
}
