// Package loans drives the loan state machine
//
//	pending --approve--> approved
//	pending --reject---> rejected
//
// and disburses approved loans through the ledger in the same transaction
// as the status change.
package loans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jababank/models"
	"jababank/pkg/core"
	"jababank/pkg/ledger"
	"jababank/pkg/store"

	"gorm.io/gorm"
)

// Loan amount bounds, in cents.
const (
	MinimumAmount int64 = 1000_00
	MaximumAmount int64 = 10_000_000_00
)

type Workflow struct {
	db     *gorm.DB
	ledger *ledger.Engine
	now    func() time.Time
}

func NewWorkflow(db *gorm.DB, engine *ledger.Engine) *Workflow {
	return &Workflow{db: db, ledger: engine, now: func() time.Time { return time.Now().UTC() }}
}

type Request struct {
	Amount  int64 // cents
	Type    string
	Purpose string
}

// RequestLoan records a pending loan for the calling customer. It has no
// ledger effect.
func (w *Workflow) RequestLoan(ctx context.Context, actor core.Actor, req Request) (*models.Loan, error) {
	if req.Amount < MinimumAmount {
		return nil, fmt.Errorf("%w: minimum loan amount is 1000.00", core.ErrInvalidAmount)
	}
	if req.Amount > MaximumAmount {
		return nil, fmt.Errorf("%w: maximum loan amount is 10000000.00", core.ErrInvalidAmount)
	}
	typ, ok := models.ParseLoanType(req.Type)
	if !ok {
		return nil, fmt.Errorf("%w: loan type %q", core.ErrInvalidType, req.Type)
	}
	if !actor.Can(models.RoleCustomer) {
		return nil, core.ErrUnauthorized
	}
	loan := &models.Loan{
		UserID:  actor.UserID,
		Amount:  req.Amount,
		Type:    typ,
		Purpose: strings.TrimSpace(req.Purpose),
		Status:  models.LoanPending,
	}
	if err := w.db.WithContext(ctx).Create(loan).Error; err != nil {
		return nil, core.Storage("request loan", err)
	}
	return loan, nil
}

// Approve moves a pending loan to approved and credits the borrower's
// checking account. Of several concurrent decisions on one loan only the
// first to commit succeeds; the others get ErrAlreadyProcessed.
func (w *Workflow) Approve(ctx context.Context, actor core.Actor, loanID uint) (*models.Transaction, error) {
	if !actor.Can(models.RoleAdmin) {
		return nil, core.ErrUnauthorized
	}
	var record *models.Transaction
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := pendingLoan(tx, loanID)
		if err != nil {
			return err
		}
		checking, err := store.CheckingAccount(tx, loan.UserID)
		if err != nil {
			return err
		}
		comment := fmt.Sprintf("Approved by admin ID: %d", actor.UserID)
		if err := w.decide(tx, loan.ID, models.LoanApproved, comment, actor.UserID); err != nil {
			return err
		}
		desc := fmt.Sprintf("Loan disbursement #%d - %s", loan.ID, loan.Type)
		record, err = w.ledger.WithTx(tx).Credit(ctx, checking.ID, loan.Amount, desc)
		return err
	})
	if err != nil {
		return nil, core.Storage("approve loan", err)
	}
	return record, nil
}

// Reject moves a pending loan to rejected. The comment is mandatory.
func (w *Workflow) Reject(ctx context.Context, actor core.Actor, loanID uint, comment string) (*models.Loan, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, core.ErrCommentRequired
	}
	if !actor.Can(models.RoleAdmin) {
		return nil, core.ErrUnauthorized
	}
	var loan models.Loan
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := pendingLoan(tx, loanID)
		if err != nil {
			return err
		}
		if err := w.decide(tx, l.ID, models.LoanRejected, comment, actor.UserID); err != nil {
			return err
		}
		return tx.First(&loan, l.ID).Error
	})
	if err != nil {
		return nil, core.Storage("reject loan", err)
	}
	return &loan, nil
}

func pendingLoan(tx *gorm.DB, id uint) (models.Loan, error) {
	var loan models.Loan
	if err := tx.First(&loan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return loan, core.ErrLoanNotFound
		}
		return loan, err
	}
	if loan.Status != models.LoanPending {
		return loan, core.ErrAlreadyProcessed
	}
	return loan, nil
}

// decide is the only write to a loan's status. The status guard in the WHERE
// clause makes the transition happen at most once even if the read in
// pendingLoan raced with another decision.
func (w *Workflow) decide(tx *gorm.DB, id uint, to models.LoanStatus, comment string, adminID uint) error {
	res := tx.Model(&models.Loan{}).
		Where("id = ? AND status = ?", id, models.LoanPending).
		Updates(map[string]any{
			"status":        to,
			"admin_comment": comment,
			"decided_by":    adminID,
			"decided_at":    w.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrAlreadyProcessed
	}
	return nil
}

// Get returns a loan visible to actor: its borrower or any admin.
func (w *Workflow) Get(ctx context.Context, actor core.Actor, loanID uint) (*models.Loan, error) {
	var loan models.Loan
	if err := w.db.WithContext(ctx).First(&loan, loanID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrLoanNotFound
		}
		return nil, core.Storage("get loan", err)
	}
	if loan.UserID != actor.UserID && !actor.Can(models.RoleAdmin) {
		return nil, core.ErrLoanNotFound
	}
	return &loan, nil
}

func (w *Workflow) ListForUser(ctx context.Context, userID uint) ([]models.Loan, error) {
	var rows []models.Loan
	if err := w.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, core.Storage("list loans", err)
	}
	return rows, nil
}

// ListPending returns loans awaiting a decision, oldest first.
func (w *Workflow) ListPending(ctx context.Context, actor core.Actor) ([]models.Loan, error) {
	if !actor.Can(models.RoleAdmin) {
		return nil, core.ErrUnauthorized
	}
	var rows []models.Loan
	if err := w.db.WithContext(ctx).Where("status = ?", models.LoanPending).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, core.Storage("list pending loans", err)
	}
	return rows, nil
}
