package middleware

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/campusworks/interndocs/internal/auth"
	"github.com/campusworks/interndocs/internal/models"
	"github.com/campusworks/interndocs/pkg/errors"
	"github.com/campusworks/interndocs/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxUserKey   = "authUser"
)

// Auth turns a bearer token into an authenticated principal. The current user
// row (including the intern profile) is reloaded on every request so a
// deactivated account cannot keep using a still-valid token.
func Auth(tokens *iauth.TokenService, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := tokens.Verify(token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, err)
			c.Abort()
			return
		}

		var user models.User
		err = db.WithContext(c.Request.Context()).
			Preload("Profile").
			Take(&user, "id = ?", claims.UserID).Error
		if err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				// Principal no longer exists
				response.Error(c, errors.ErrUnauthorized)
			} else {
				response.Error(c, errors.ErrInternalServer.WithInternal(err))
			}
			c.Abort()
			return
		}

		if !user.IsActive {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		// Propagate identity into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, user.ID)
		c.Set(CtxUserKey, &user)

		c.Next()
	}
}

// CurrentUser returns the authenticated principal stored by Auth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}
