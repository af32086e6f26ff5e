package models

import "time"

// InternProfile stores the personal details of an intern account.
// Created alongside the User row at registration and never hard-deleted.
type InternProfile struct {
	BaseModel

	UserID      string     `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Name        string     `gorm:"not null" json:"name"`
	Nationality string     `json:"nationality"`
	Gender      string     `gorm:"type:varchar(32)" json:"gender"`
	Birthdate   *time.Time `json:"birthdate"`
	Phone       string     `json:"phone"`
	Address     string     `json:"address"`
}
