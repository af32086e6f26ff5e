package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/campusworks/interndocs/pkg/errors"
	"github.com/campusworks/interndocs/pkg/response"
	appValidator "github.com/campusworks/interndocs/pkg/validator"
)

// bindAndValidate decodes the JSON body into dest and checks its validate
// tags. On failure it writes the error response and returns false so the
// handler can bail with a bare return.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	var failures appValidator.ValidationErrors
	if !errors.As(err, &failures) || len(failures) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(failures))
	for _, f := range failures {
		messages = append(messages, describeFailure(f))
	}
	return strings.Join(messages, "; ")
}

func describeFailure(f appValidator.ValidationError) string {
	field := strings.ToLower(strings.ReplaceAll(f.Field, "_", " "))
	if field == "" {
		field = "field"
	}

	switch f.Tag {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, f.Param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, f.Param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(f.Param, " ", ", "))
	}

	if f.Param != "" {
		return fmt.Sprintf("%s failed validation: %s=%s", field, f.Tag, f.Param)
	}
	return fmt.Sprintf("%s failed validation: %s", field, f.Tag)
}

// paginationParams reads page and per_page, clamped to the same bounds the
// services enforce so envelope meta never divides by zero.
func paginationParams(c *gin.Context) (page, perPage int) {
	page = parseIntQuery(c, "page", 1)
	if page <= 0 {
		page = 1
	}
	perPage = parseIntQuery(c, "per_page", 50)
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	return page, perPage
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
