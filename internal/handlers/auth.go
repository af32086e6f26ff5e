package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/interndocs/internal/middleware"
	"github.com/campusworks/interndocs/internal/services"
	"github.com/campusworks/interndocs/pkg/errors"
	"github.com/campusworks/interndocs/pkg/response"
)

// AuthHandler exposes registration and login.
type AuthHandler struct {
	users *services.UserService
}

func NewAuthHandler(users *services.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Nationality string `json:"nationality" validate:"omitempty,max=128"`
	Gender      string `json:"gender" validate:"omitempty,max=32"`
	Birthdate   string `json:"birthdate" validate:"omitempty"`
	Phone       string `json:"phone" validate:"omitempty,max=64"`
	Address     string `json:"address" validate:"omitempty,max=512"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates an intern account.
func (h *AuthHandler) Register(c *gin.Context) {
	var payload registerRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	var birthdate *time.Time
	if payload.Birthdate != "" {
		parsed, err := time.Parse("2006-01-02", payload.Birthdate)
		if err != nil {
			response.Error(c, errors.NewBadRequest("birthdate must be formatted as YYYY-MM-DD"))
			return
		}
		birthdate = &parsed
	}

	user, err := h.users.Register(requestContext(c), services.RegisterInput{
		Email:       payload.Email,
		Password:    payload.Password,
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

	response.Success(c, http.StatusCreated, user)
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var payload loginRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	result, err := h.users.Authenticate(requestContext(c),
		payload.Email, payload.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":      result.Token,
		"expires_at": result.ExpiresAt,
		"user":       result.User,
	})
}

// Me returns the authenticated principal.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, user)
}
