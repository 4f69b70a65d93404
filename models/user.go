package models

import (
	"time"
)

// User model
type User struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Name           string     `gorm:"size:255;not null"`
	Email          string     `gorm:"size:255;not null;uniqueIndex"`
	HashedPassword []byte     `gorm:"not null" json:"-"`
	Role           Role       `gorm:"size:16;not null;index"`
	Status         UserStatus `gorm:"size:16;not null;index"`
}
