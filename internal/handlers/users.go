package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/interndocs/internal/middleware"
	"github.com/campusworks/interndocs/internal/models"
	"github.com/campusworks/interndocs/internal/services"
	"github.com/campusworks/interndocs/pkg/errors"
	"github.com/campusworks/interndocs/pkg/response"
)

// UserHandler exposes account administration and profile endpoints.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// ListInterns returns active intern accounts for the staff dashboard.
func (h *UserHandler) ListInterns(c *gin.Context) {
	interns, err := h.users.ListInterns(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, interns)
}

// Get returns a single account with its profile.
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// Profile returns the authenticated account with its profile preloaded.
func (h *UserHandler) Profile(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.Get(requestContext(c), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

type updateProfileRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Nationality *string `json:"nationality" validate:"omitempty,max=128"`
	Gender      *string `json:"gender" validate:"omitempty,max=32"`
	Birthdate   *string `json:"birthdate" validate:"omitempty"`
	Phone       *string `json:"phone" validate:"omitempty,max=64"`
	Address     *string `json:"address" validate:"omitempty,max=512"`
}

// UpdateProfile patches profile fields. Interns can only touch their own.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	targetID := c.Param("id")
	if targetID == "" {
		targetID = actor.ID
	}

	var payload updateProfileRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	var birthdate *time.Time
	if payload.Birthdate != nil && *payload.Birthdate != "" {
		parsed, err := time.Parse("2006-01-02", *payload.Birthdate)
		if err != nil {
			response.Error(c, errors.NewBadRequest("birthdate must be formatted as YYYY-MM-DD"))
			return
		}
		birthdate = &parsed
	}

	profile, err := h.users.UpdateProfile(requestContext(c), targetID, actor, services.UpdateProfileInput{
		Name:        payload.Name,
		Nationality: payload.Nationality,
		Gender:      payload.Gender,
		Birthdate:   birthdate,
		Phone:       payload.Phone,
		Address:     payload.Address,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// ChangeRole promotes or demotes an account. Super admin only.
func (h *UserHandler) ChangeRole(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload changeRoleRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	user, err := h.users.ChangeRole(requestContext(c), c.Param("id"), models.Role(payload.Role), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// Deactivate disables an account.
func (h *UserHandler) Deactivate(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.users.Deactivate(requestContext(c), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}
