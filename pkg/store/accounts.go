// Package store holds the data-access helpers shared by the ledger, loan and
// flag workflows. Helpers take a *gorm.DB so they run unchanged inside or
// outside an open transaction.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"jababank/models"
	"jababank/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate adds a row lock on dialects that support one. SQLite has no row
// locks; its single writer already serializes transactions.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == DriverSQLite {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// LockAccounts locks the given accounts in ascending id order so two
// transfers in opposite directions cannot deadlock.
func LockAccounts(tx *gorm.DB, ids ...uint) (map[uint]models.Account, error) {
	var rows []models.Account
	if err := ForUpdate(tx).Where("id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]models.Account, len(rows))
	for _, a := range rows {
		out[a.ID] = a
	}
	return out, nil
}

// OwnedAccount loads an account only if userID owns it. Missing and foreign
// accounts are reported the same way.
func OwnedAccount(tx *gorm.DB, accountID, userID uint) (models.Account, error) {
	var a models.Account
	err := tx.Where("id = ? AND user_id = ?", accountID, userID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return a, core.ErrAccountNotFound
	}
	return a, err
}

// AccountByNumber returns gorm.ErrRecordNotFound when no account carries number.
func AccountByNumber(tx *gorm.DB, number string) (models.Account, error) {
	var a models.Account
	err := tx.Where("account_number = ?", number).First(&a).Error
	return a, err
}

func CheckingAccount(tx *gorm.DB, userID uint) (models.Account, error) {
	var a models.Account
	err := tx.Where("user_id = ? AND type = ?", userID, models.AccountChecking).Order("id").First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return a, core.ErrNoCheckingAccount
	}
	return a, err
}

func AccountsForUser(ctx context.Context, db *gorm.DB, userID uint) ([]models.Account, error) {
	var rows []models.Account
	err := db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&rows).Error
	return rows, err
}

// Credit adds amount to an account balance. A credit that would overflow the
// balance column fails with core.ErrBalanceLimit and changes nothing.
func Credit(tx *gorm.DB, accountID uint, amount int64) error {
	if amount <= 0 {
		return core.ErrInvalidAmount
	}
	res := tx.Model(&models.Account{}).Where("id = ? AND balance <= ?", accountID, math.MaxInt64-amount).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := tx.Model(&models.Account{}).Where("id = ?", accountID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return core.ErrAccountNotFound
	}
	return core.ErrBalanceLimit
}

// Debit subtracts amount only while the balance covers it, so the balance
// never goes negative even if an earlier check raced.
func Debit(tx *gorm.DB, accountID uint, amount int64) error {
	res := tx.Model(&models.Account{}).Where("id = ? AND balance >= ?", accountID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrInsufficientFunds
	}
	return nil
}

// CreateAccount inserts an account, retrying the random check digit when the
// generated number collides.
func CreateAccount(tx *gorm.DB, userID uint, typ models.AccountType, balance int64) (models.Account, error) {
	var lastErr error
	for range 10 {
		a := models.Account{
			UserID:        userID,
			AccountNumber: NewAccountNumber(typ, userID),
			Type:          typ,
			Balance:       balance,
		}
		var n int64
		if err := tx.Model(&models.Account{}).Where("account_number = ?", a.AccountNumber).Count(&n).Error; err != nil {
			return a, err
		}
		if n > 0 {
			lastErr = fmt.Errorf("account number %s already taken", a.AccountNumber)
			continue
		}
		if err := tx.Create(&a).Error; err != nil {
			return a, err
		}
		return a, nil
	}
	return models.Account{}, lastErr
}
