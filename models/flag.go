package models

import "time"

type FlagStatus string

const (
	FlagPending   FlagStatus = "pending"
	FlagReviewing FlagStatus = "reviewing"
	FlagResolved  FlagStatus = "resolved"
)

// FlagRecord marks a transaction for review. At most one exists per transaction.
type FlagRecord struct {
	ID            uint       `gorm:"primaryKey"`
	TransactionID uint       `gorm:"index;not null"`
	EmployeeID    uint       `gorm:"index;not null"`
	Reason        string     `gorm:"size:512;not null"`
	Status        FlagStatus `gorm:"size:16;not null"`
	FlaggedAt     time.Time  `gorm:"index;not null"`
}

func (FlagRecord) TableName() string { return "flagged_transactions" }
