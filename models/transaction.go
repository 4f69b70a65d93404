package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrImmutableTransaction is returned by gorm when code tries to change or
// remove a recorded transaction.
var ErrImmutableTransaction = errors.New("transactions are append-only")

type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxTransfer   TransactionType = "transfer"
)

// Transaction is an immutable money movement. A nil account side is an
// external counterparty; direction is never encoded in the sign of Amount.
type Transaction struct {
	ID            uint            `gorm:"primaryKey"`
	CreatedAt     time.Time       `gorm:"index"`
	Reference     string          `gorm:"size:36;not null;uniqueIndex"`
	FromAccountID *uint           `gorm:"index"`
	ToAccountID   *uint           `gorm:"index"`
	Type          TransactionType `gorm:"size:16;not null"`
	Amount        int64           `gorm:"not null"` // cents, always > 0
	Description   string          `gorm:"size:255"`
}

func (t *Transaction) BeforeUpdate(tx *gorm.DB) error { return ErrImmutableTransaction }

func (t *Transaction) BeforeDelete(tx *gorm.DB) error { return ErrImmutableTransaction }
