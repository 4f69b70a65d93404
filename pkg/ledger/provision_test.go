package ledger

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"jababank/models"
	"jababank/pkg/core"
	"jababank/pkg/store/storetest"
)

var accountNumberRE = regexp.MustCompile(`^(10|20)-\d{7}-\d$`)

func TestProvisionCustomerAccounts(t *testing.T) {
	db := storetest.Open(t)
	engine := NewEngine(db)
	ctx := context.Background()
	u := storetest.User(t, db, "carol", models.RoleCustomer)

	checkingID, savingsID, err := engine.ProvisionCustomerAccounts(ctx, u.ID)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	var checking, savings models.Account
	db.First(&checking, checkingID)
	db.First(&savings, savingsID)
	if checking.Type != models.AccountChecking || checking.Balance != InitialCheckingBalance {
		t.Fatalf("bad checking account %+v", checking)
	}
	if savings.Type != models.AccountSavings || savings.Balance != InitialSavingsBalance {
		t.Fatalf("bad savings account %+v", savings)
	}
	for _, a := range []models.Account{checking, savings} {
		if !accountNumberRE.MatchString(a.AccountNumber) || a.UserID != u.ID {
			t.Fatalf("bad account %+v", a)
		}
	}
	if checking.AccountNumber[:2] != "10" || savings.AccountNumber[:2] != "20" {
		t.Fatalf("wrong type codes: %s %s", checking.AccountNumber, savings.AccountNumber)
	}

	c2, s2, err := engine.ProvisionCustomerAccounts(ctx, u.ID)
	if err != nil || c2 != checkingID || s2 != savingsID {
		t.Fatalf("second provision = %d, %d, %v", c2, s2, err)
	}
	var n int64
	db.Model(&models.Account{}).Where("user_id = ?", u.ID).Count(&n)
	if n != 2 {
		t.Fatalf("expected 2 accounts, got %d", n)
	}
}

func TestProvisionRejectsStaffAndUnknownUsers(t *testing.T) {
	db := storetest.Open(t)
	engine := NewEngine(db)
	ctx := context.Background()
	emp := storetest.User(t, db, "erin", models.RoleEmployee)

	if _, _, err := engine.ProvisionCustomerAccounts(ctx, emp.ID); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, _, err := engine.ProvisionCustomerAccounts(ctx, 777); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
