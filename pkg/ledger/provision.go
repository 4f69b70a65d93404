package ledger

import (
	"context"
	"errors"
	"fmt"

	"jababank/models"
	"jababank/pkg/core"
	"jababank/pkg/store"

	"gorm.io/gorm"
)

// ProvisionCustomerAccounts opens the checking and savings accounts of a new
// customer with their initial balances. Calling it again for the same user
// returns the existing accounts.
func (e *Engine) ProvisionCustomerAccounts(ctx context.Context, userID uint) (checkingID, savingsID uint, err error) {
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.First(&u, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrUserNotFound
			}
			return err
		}
		if u.Role != models.RoleCustomer {
			return fmt.Errorf("%w: accounts are only provisioned for customers", core.ErrUnauthorized)
		}

		var existing []models.Account
		if err := store.ForUpdate(tx).Where("user_id = ?", userID).Order("id").Find(&existing).Error; err != nil {
			return err
		}
		for _, a := range existing {
			switch {
			case a.Type == models.AccountChecking && checkingID == 0:
				checkingID = a.ID
			case a.Type == models.AccountSavings && savingsID == 0:
				savingsID = a.ID
			}
		}
		if checkingID == 0 {
			a, err := store.CreateAccount(tx, userID, models.AccountChecking, InitialCheckingBalance)
			if err != nil {
				return err
			}
			checkingID = a.ID
		}
		if savingsID == 0 {
			a, err := store.CreateAccount(tx, userID, models.AccountSavings, InitialSavingsBalance)
			if err != nil {
				return err
			}
			savingsID = a.ID
		}
		return nil
	})
	if err != nil {
		return 0, 0, core.Storage("provision accounts", err)
	}
	return checkingID, savingsID, nil
}
