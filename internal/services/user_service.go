package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campusworks/interndocs/internal/auth"
	"github.com/campusworks/interndocs/internal/models"
	"github.com/campusworks/interndocs/pkg/crypto"
	apperrors "github.com/campusworks/interndocs/pkg/errors"
	"github.com/campusworks/interndocs/pkg/logger"
	"github.com/campusworks/interndocs/pkg/metrics"
)

// RegisterInput carries the self-service intern registration payload.
type RegisterInput struct {
	Email       string
	Password    string
	Name        string
	Nationality string
	Gender      string
	Birthdate   *time.Time
	Phone       string
	Address     string
}

// UpdateProfileInput carries the editable profile fields. Nil pointers leave
// the stored value untouched.
type UpdateProfileInput struct {
	Name        *string
	Nationality *string
	Gender      *string
	Birthdate   *time.Time
	Phone       *string
	Address     *string
}

// LoginResult is what Authenticate hands back to the login handler.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// UserService covers account lifecycle: registration, login, role changes
// and deactivation.
type UserService struct {
	db     *gorm.DB
	tokens *auth.TokenService
	log    *zap.Logger
}

func NewUserService(db *gorm.DB, tokens *auth.TokenService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if tokens == nil {
		return nil, errors.New("user service: token service is required")
	}
	return &UserService{
		db:     db,
		tokens: tokens,
		log:    logger.WithModule("users"),
	}, nil
}

// Register creates an intern account together with its profile in one
// transaction. Only interns self-register; staff accounts are provisioned
// through ChangeRole by a super admin.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, apperrors.NewBadRequest("email and password are required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	user := models.User{
		Email:    email,
		Password: hashed,
		Role:     models.RoleIntern,
		Name:     strings.TrimSpace(input.Name),
		IsActive: true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		profile := models.InternProfile{
			UserID:      user.ID,
			Name:        user.Name,
			Nationality: strings.TrimSpace(input.Nationality),
			Gender:      strings.TrimSpace(input.Gender),
			Birthdate:   input.Birthdate,
			Phone:       strings.TrimSpace(input.Phone),
			Address:     strings.TrimSpace(input.Address),
		}
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}
		user.Profile = &profile
		return nil
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.New("EMAIL_TAKEN", "An account with this email already exists", 409)
		}
		return nil, apperrors.ErrStorage.WithInternal(err)
	}

	return &user, nil
}

// Authenticate verifies the credentials and issues a session token. A
// deactivated account fails the same way as a wrong password so callers
// cannot probe account state. Each successful login appends a SessionRecord.
func (s *UserService) Authenticate(ctx context.Context, email, password, ip, userAgent string) (*LoginResult, error) {
	ctx = ensureContext(ctx)

	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Profile").
		Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}

	if !user.IsActive || !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(&user)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	now := time.Now().UTC()
	record := models.SessionRecord{
		UserID:        user.ID,
		Email:         user.Email,
		IPAddress:     ip,
		UserAgent:     userAgent,
		TokenFragment: tokenFragment(token),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Updates(map[string]any{
				"last_login_at": now,
				"last_login_ip": ip,
			}).Error
	})
	if err != nil {
		// Login still succeeds; the session log is diagnostic.
		s.log.Warn("record login session", zap.String("user_id", user.ID), zap.Error(err))
	}

	user.LastLoginAt = &now
	user.LastLoginIP = ip

	metrics.AuthAttempts.WithLabelValues("success").Inc()

	return &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      &user,
	}, nil
}

// Get loads a user with its profile.
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Profile").
		Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}
	return &user, nil
}

// ListInterns returns active intern accounts for the staff dashboard.
func (s *UserService) ListInterns(ctx context.Context) ([]models.User, error) {
	ctx = ensureContext(ctx)

	var users []models.User
	err := s.db.WithContext(ctx).
		Preload("Profile").
		Where("role = ? AND is_active = ?", models.RoleIntern, true).
		Order("created_at DESC").
		Find(&users).Error
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}
	return users, nil
}

// UpdateProfile patches the intern's profile. Interns edit their own;
// staff may edit any.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, actor *models.User, input UpdateProfileInput) (*models.InternProfile, error) {
	ctx = ensureContext(ctx)

	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if !actor.Role.Staff() && actor.ID != userID {
		return nil, apperrors.ErrForbidden
	}

	var profile models.InternProfile
	err := s.db.WithContext(ctx).Take(&profile, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}

	updates := map[string]any{}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Nationality != nil {
		updates["nationality"] = strings.TrimSpace(*input.Nationality)
	}
	if input.Gender != nil {
		updates["gender"] = strings.TrimSpace(*input.Gender)
	}
	if input.Birthdate != nil {
		updates["birthdate"] = *input.Birthdate
	}
	if input.Phone != nil {
		updates["phone"] = strings.TrimSpace(*input.Phone)
	}
	if input.Address != nil {
		updates["address"] = strings.TrimSpace(*input.Address)
	}
	if len(updates) == 0 {
		return &profile, nil
	}

	err = s.db.WithContext(ctx).
		Model(&profile).
		Updates(updates).Error
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}
	return &profile, nil
}

// ChangeRole promotes or demotes an account. Super admin only, and an admin
// cannot demote themself, which keeps at least one super admin around.
func (s *UserService) ChangeRole(ctx context.Context, userID string, role models.Role, actor *models.User) (*models.User, error) {
	ctx = ensureContext(ctx)

	if actor == nil || actor.Role != models.RoleSuperAdmin {
		return nil, apperrors.ErrForbidden
	}
	if !role.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown role %q", role))
	}
	if actor.ID == userID && role != models.RoleSuperAdmin {
		return nil, apperrors.NewBadRequest("cannot change your own role")
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).
		Model(user).
		Update("role", role).Error
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}

	user.Role = role
	return user, nil
}

// Deactivate disables an account and frees its email for re-registration by
// suffixing it. Documents and audit events are untouched; in-flight tokens
// die at the middleware's is_active check.
func (s *UserService) Deactivate(ctx context.Context, userID string, actor *models.User) error {
	ctx = ensureContext(ctx)

	if actor == nil || !actor.Role.Staff() {
		return apperrors.ErrForbidden
	}
	if actor.ID == userID {
		return apperrors.NewBadRequest("cannot deactivate your own account")
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return nil
	}
	if user.Role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		return apperrors.ErrForbidden
	}

	retired := fmt.Sprintf("%s_deactivated_%d", user.Email, time.Now().Unix())
	err = s.db.WithContext(ctx).
		Model(user).
		Updates(map[string]any{
			"is_active": false,
			"email":     retired,
		}).Error
	if err != nil {
		return apperrors.ErrStorage.WithInternal(err)
	}

	s.log.Info("account deactivated",
		zap.String("user_id", userID),
		zap.String("by", actor.ID))

	return nil
}

// tokenFragment keeps only a short prefix for the session log; the full
// token never touches the database.
func tokenFragment(token string) string {
	if len(token) <= 16 {
		return token
	}
	return token[:16]
}
