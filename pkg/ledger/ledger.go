// Package ledger moves money between accounts. Every balance change and the
// transaction record describing it are written in one database transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jababank/models"
	"jababank/pkg/core"
	"jababank/pkg/store"

	"gorm.io/gorm"
)

const DefaultTransferDescription = "Fund transfer"

// Initial balances for newly provisioned customer accounts, in cents.
const (
	InitialCheckingBalance int64 = 100_00
	InitialSavingsBalance  int64 = 500_00
)

type Engine struct {
	db *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// WithTx returns an engine whose operations join tx. Its atomic units become
// savepoints of the enclosing transaction.
func (e *Engine) WithTx(tx *gorm.DB) *Engine {
	return &Engine{db: tx}
}

type TransferRequest struct {
	SourceAccountID          uint
	DestinationAccountNumber string
	Amount                   int64 // cents
	Description              string
}

// Transfer debits the caller's source account and credits the account
// carrying DestinationAccountNumber. Checks run in this order inside the
// transaction: ownership, funds, destination, self transfer.
func (e *Engine) Transfer(ctx context.Context, actor core.Actor, req TransferRequest) (*models.Transaction, error) {
	if req.Amount <= 0 {
		return nil, core.ErrInvalidAmount
	}
	number := strings.TrimSpace(req.DestinationAccountNumber)
	if number == "" {
		return nil, fmt.Errorf("%w: destination account number", core.ErrMissingField)
	}
	if !actor.Can(models.RoleCustomer) {
		return nil, core.ErrUnauthorized
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		desc = DefaultTransferDescription
	}

	var record *models.Transaction
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		src, err := store.OwnedAccount(tx, req.SourceAccountID, actor.UserID)
		if err != nil {
			return err
		}
		dst, err := store.AccountByNumber(tx, number)
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		ids := []uint{src.ID}
		if found && dst.ID != src.ID {
			ids = append(ids, dst.ID)
		}
		locked, err := store.LockAccounts(tx, ids...)
		if err != nil {
			return err
		}
		src, ok := locked[src.ID]
		if !ok {
			return core.ErrAccountNotFound
		}
		if src.Balance < req.Amount {
			return core.ErrInsufficientFunds
		}
		if !found {
			return core.ErrDestinationNotFound
		}
		if dst.ID == src.ID {
			return core.ErrSelfTransfer
		}

		if err := store.Credit(tx, dst.ID, req.Amount); err != nil {
			return err
		}
		if err := store.Debit(tx, src.ID, req.Amount); err != nil {
			return err
		}
		from, to := src.ID, dst.ID
		record = &models.Transaction{
			FromAccountID: &from,
			ToAccountID:   &to,
			Type:          models.TxTransfer,
			Amount:        req.Amount,
			Description:   desc,
		}
		return store.InsertTransaction(tx, record)
	})
	if err != nil {
		return nil, core.Storage("transfer", err)
	}
	return record, nil
}

// Credit adds amount to accountID and records a deposit from an external
// counterparty.
func (e *Engine) Credit(ctx context.Context, accountID uint, amount int64, description string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, core.ErrInvalidAmount
	}
	var record *models.Transaction
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := store.Credit(tx, accountID, amount); err != nil {
			return err
		}
		to := accountID
		record = &models.Transaction{
			ToAccountID: &to,
			Type:        models.TxDeposit,
			Amount:      amount,
			Description: strings.TrimSpace(description),
		}
		return store.InsertTransaction(tx, record)
	})
	if err != nil {
		return nil, core.Storage("credit", err)
	}
	return record, nil
}
