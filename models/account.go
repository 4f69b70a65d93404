package models

import "time"

type AccountType string

const (
	AccountChecking AccountType = "checking"
	AccountSavings  AccountType = "savings"
)

// Code is the two digit prefix used in human-facing account numbers.
func (t AccountType) Code() string {
	if t == AccountSavings {
		return "20"
	}
	return "10"
}

// Account is owned by exactly one user. Rows are never deleted; only Balance changes.
type Account struct {
	ID            uint `gorm:"primaryKey"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	UserID        uint        `gorm:"index;not null"`
	AccountNumber string      `gorm:"size:32;not null;uniqueIndex"`
	Type          AccountType `gorm:"size:16;not null"`
	Balance       int64       `gorm:"not null"` // smallest currency unit (cents)
}
