package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/campusworks/interndocs/internal/models"
	"github.com/campusworks/interndocs/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.InternProfile{},
		&models.Document{},
		&models.VerificationEvent{},
		&models.Notification{},
		&models.SessionRecord{},
		&models.RateCounter{},
	)
}

// SeedAdmin provisions the initial super admin account when the user table is
// empty, so a fresh deployment has a way in. It is a no-op otherwise.
func SeedAdmin(db *gorm.DB, email, password string) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if email == "" || password == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("seed admin: count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("seed admin: hash password: %w", err)
	}

	admin := models.User{
		Email:    email,
		Password: hash,
		Role:     models.RoleSuperAdmin,
		Name:     "Administrator",
		IsActive: true,
	}
	return db.Create(&admin).Error
}
