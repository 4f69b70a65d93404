package models

import (
	"strings"
	"time"
)

type LoanStatus string

const (
	LoanPending  LoanStatus = "pending"
	LoanApproved LoanStatus = "approved"
	LoanRejected LoanStatus = "rejected"
)

// Terminal reports whether no further transition is legal.
func (s LoanStatus) Terminal() bool {
	return s == LoanApproved || s == LoanRejected
}

type LoanType string

const (
	LoanPersonal LoanType = "personal"
	LoanAuto     LoanType = "auto"
	LoanMortgage LoanType = "mortgage"
)

func ParseLoanType(s string) (LoanType, bool) {
	t := LoanType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case LoanPersonal, LoanAuto, LoanMortgage:
		return t, true
	}
	return t, false
}

// Loan moves from pending to exactly one terminal status.
type Loan struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	UserID       uint       `gorm:"index;not null"`
	Amount       int64      `gorm:"not null"` // cents
	Type         LoanType   `gorm:"size:16;not null"`
	Purpose      string     `gorm:"size:512"`
	Status       LoanStatus `gorm:"size:16;not null;index"`
	AdminComment *string    `gorm:"size:512"`
	DecidedBy    *uint
	DecidedAt    *time.Time
}
