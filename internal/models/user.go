package models

import (
	"time"
)

// Role enumerates the access levels known to the portal.
type Role string

const (
	RoleIntern     Role = "intern"
	RoleHR         Role = "hr"
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleIntern, RoleHR, RoleSuperAdmin:
		return true
	}
	return false
}

// Staff reports whether the role can review documents for any intern.
func (r Role) Staff() bool {
	return r == RoleHR || r == RoleSuperAdmin
}

// User describes an account able to authenticate against the portal.
type User struct {
	BaseModel

	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	Role     Role   `gorm:"type:varchar(32);not null;default:'intern';index" json:"role"`
	Name     string `json:"name"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// Profile is present only for accounts with the intern role.
	Profile *InternProfile `gorm:"foreignKey:UserID" json:"profile,omitempty"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`
}
