// Package flags lets employees mark transactions for review.
package flags

import (
	"context"
	"errors"
	"strings"
	"time"

	"jababank/models"
	"jababank/pkg/core"
	"jababank/pkg/store"

	"gorm.io/gorm"
)

const DefaultReason = "Flagged as suspicious"

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Flag records a review flag on a transaction. The transaction row is locked
// while checking for an existing flag so two employees cannot both flag it.
func (s *Service) Flag(ctx context.Context, actor core.Actor, transactionID uint, reason string) (*models.FlagRecord, error) {
	if !actor.Can(models.RoleEmployee) {
		return nil, core.ErrUnauthorized
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultReason
	}
	var rec *models.FlagRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Transaction
		if err := store.ForUpdate(tx).First(&t, transactionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrTransactionNotFound
			}
			return err
		}
		var n int64
		if err := tx.Model(&models.FlagRecord{}).Where("transaction_id = ?", t.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return core.ErrAlreadyFlagged
		}
		rec = &models.FlagRecord{
			TransactionID: t.ID,
			EmployeeID:    actor.UserID,
			Reason:        reason,
			Status:        models.FlagPending,
			FlaggedAt:     s.now(),
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		return nil, core.Storage("flag transaction", err)
	}
	return rec, nil
}

// Flagged is a flag joined with the transaction it marks.
type Flagged struct {
	FlagID          uint
	TransactionID   uint
	EmployeeID      uint
	EmployeeName    string
	Reason          string
	Status          models.FlagStatus
	FlaggedAt       time.Time
	FromAccountID   *uint
	ToAccountID     *uint
	TransactionType models.TransactionType
	Amount          int64
	Description     string
	Reference       string
	TransactionAt   time.Time
}

// ListFlagged returns every flag, newest first. The order is total so
// repeated calls without writes return identical results.
func (s *Service) ListFlagged(ctx context.Context, actor core.Actor) ([]Flagged, error) {
	if !actor.Can(models.RoleEmployee, models.RoleAdmin) {
		return nil, core.ErrUnauthorized
	}
	var rows []Flagged
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table("flagged_transactions AS ft").
			Select(`ft.id AS flag_id, ft.transaction_id, ft.employee_id, u.name AS employee_name,
				ft.reason, ft.status, ft.flagged_at,
				t.from_account_id, t.to_account_id, t.type AS transaction_type, t.amount,
				t.description, t.reference, t.created_at AS transaction_at`).
			Joins("JOIN transactions t ON t.id = ft.transaction_id").
			Joins("LEFT JOIN users u ON u.id = ft.employee_id").
			Order("ft.flagged_at DESC, ft.id DESC").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, core.Storage("list flagged", err)
	}
	return rows, nil
}

// ListUnflagged pages through transactions that nobody has flagged yet,
// newest first. It backs the employee review queue.
func (s *Service) ListUnflagged(ctx context.Context, actor core.Actor, page store.Page) ([]models.Transaction, error) {
	if !actor.Can(models.RoleEmployee, models.RoleAdmin) {
		return nil, core.ErrUnauthorized
	}
	var rows []models.Transaction
	q := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("NOT EXISTS (SELECT 1 FROM flagged_transactions ft WHERE ft.transaction_id = transactions.id)").
		Order("created_at DESC, id DESC")
	if err := store.Paginate(q, page).Find(&rows).Error; err != nil {
		return nil, core.Storage("list unflagged", err)
	}
	return rows, nil
}
