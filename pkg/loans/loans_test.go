package loans

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"jababank/models"
	"jababank/pkg/core"
	"jababank/pkg/ledger"
	"jababank/pkg/money"
	"jababank/pkg/store/storetest"

	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	wf       *Workflow
	customer core.Actor
	admin    core.Actor
	checking models.Account
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := storetest.Open(t)
	u := storetest.User(t, db, "uma", models.RoleCustomer)
	a := storetest.User(t, db, "root", models.RoleAdmin)
	return fixture{
		db:       db,
		wf:       NewWorkflow(db, ledger.NewEngine(db)),
		customer: core.Actor{UserID: u.ID, Role: u.Role, Status: u.Status},
		admin:    core.Actor{UserID: a.ID, Role: a.Role, Status: a.Status},
		checking: storetest.Account(t, db, u.ID, models.AccountChecking, money.MustParse("100.00")),
	}
}

func (f fixture) request(t *testing.T, amount string) *models.Loan {
	t.Helper()
	loan, err := f.wf.RequestLoan(context.Background(), f.customer, Request{Amount: money.MustParse(amount), Type: "Personal", Purpose: "car repair"})
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	return loan
}

func (f fixture) deposits(t *testing.T) []models.Transaction {
	t.Helper()
	var rows []models.Transaction
	if err := f.db.Where("type = ?", models.TxDeposit).Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestRequestLoanValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	employee := core.Actor{UserID: 99, Role: models.RoleEmployee, Status: models.StatusActive}
	inactive := f.customer
	inactive.Status = models.StatusInactive

	cases := []struct {
		name  string
		actor core.Actor
		req   Request
		want  error
	}{
		{"below minimum", f.customer, Request{Amount: money.MustParse("999.99"), Type: "auto"}, core.ErrInvalidAmount},
		{"above maximum", f.customer, Request{Amount: MaximumAmount + 1, Type: "auto"}, core.ErrInvalidAmount},
		{"int64 max", f.customer, Request{Amount: math.MaxInt64, Type: "auto"}, core.ErrInvalidAmount},
		{"unknown type", f.customer, Request{Amount: MinimumAmount, Type: "yacht"}, core.ErrInvalidType},
		{"employee", employee, Request{Amount: MinimumAmount, Type: "auto"}, core.ErrUnauthorized},
		{"inactive customer", inactive, Request{Amount: MinimumAmount, Type: "auto"}, core.ErrUnauthorized},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := f.wf.RequestLoan(ctx, c.actor, c.req); !errors.Is(err, c.want) {
				t.Fatalf("got %v, want %v", err, c.want)
			}
		})
	}

	loan := f.request(t, "1000")
	if loan.Status != models.LoanPending || loan.Type != models.LoanPersonal || loan.AdminComment != nil {
		t.Fatalf("unexpected loan %+v", loan)
	}
	if len(f.deposits(t)) != 0 {
		t.Fatal("requesting a loan must not touch the ledger")
	}
}

func TestApproveScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.request(t, "5000")

	rec, err := f.wf.Approve(ctx, f.admin, loan.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if rec.Type != models.TxDeposit || rec.FromAccountID != nil || *rec.ToAccountID != f.checking.ID || rec.Amount != 500000 {
		t.Fatalf("unexpected disbursement %+v", rec)
	}

	var got models.Loan
	f.db.First(&got, loan.ID)
	if got.Status != models.LoanApproved || got.AdminComment == nil || *got.AdminComment == "" || got.DecidedBy == nil || *got.DecidedBy != f.admin.UserID {
		t.Fatalf("unexpected loan after approve %+v", got)
	}
	var acc models.Account
	f.db.First(&acc, f.checking.ID)
	if acc.Balance != money.MustParse("5100.00") {
		t.Fatalf("checking = %s, want 5100.00", money.Format(acc.Balance))
	}
	if len(f.deposits(t)) != 1 {
		t.Fatal("expected exactly one disbursement")
	}

	if _, err := f.wf.Approve(ctx, f.admin, loan.ID); !errors.Is(err, core.ErrAlreadyProcessed) {
		t.Fatalf("second approve: %v", err)
	}
	if _, err := f.wf.Reject(ctx, f.admin, loan.ID, "changed my mind"); !errors.Is(err, core.ErrAlreadyProcessed) {
		t.Fatalf("reject after approve: %v", err)
	}
}

func TestApproveErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.request(t, "2000")

	if _, err := f.wf.Approve(ctx, f.customer, loan.ID); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("customer approve: %v", err)
	}
	if _, err := f.wf.Approve(ctx, f.admin, 12345); !errors.Is(err, core.ErrLoanNotFound) {
		t.Fatalf("missing loan: %v", err)
	}

	// borrower without a checking account
	v := storetest.User(t, f.db, "vic", models.RoleCustomer)
	storetest.Account(t, f.db, v.ID, models.AccountSavings, 0)
	vic := core.Actor{UserID: v.ID, Role: v.Role, Status: v.Status}
	vloan, err := f.wf.RequestLoan(ctx, vic, Request{Amount: MinimumAmount, Type: "mortgage"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.wf.Approve(ctx, f.admin, vloan.ID); !errors.Is(err, core.ErrNoCheckingAccount) {
		t.Fatalf("expected ErrNoCheckingAccount, got %v", err)
	}
	var still models.Loan
	f.db.First(&still, vloan.ID)
	if still.Status != models.LoanPending {
		t.Fatalf("failed approval changed status to %s", still.Status)
	}
}

func TestApproveOverflowingBalanceLeavesLoanPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.request(t, "5000")

	full := int64(math.MaxInt64 - 100)
	if err := f.db.Model(&models.Account{}).Where("id = ?", f.checking.ID).Update("balance", full).Error; err != nil {
		t.Fatal(err)
	}
	_, err := f.wf.Approve(ctx, f.admin, loan.ID)
	if !errors.Is(err, core.ErrBalanceLimit) {
		t.Fatalf("expected ErrBalanceLimit, got %v", err)
	}
	if core.Classify(err) != core.ClassBusiness {
		t.Fatalf("balance limit must not be retryable, got class %s", core.Classify(err))
	}

	var acc models.Account
	if err := f.db.First(&acc, f.checking.ID).Error; err != nil {
		t.Fatalf("reload checking: %v", err)
	}
	if acc.Balance != full {
		t.Fatalf("balance = %d, want %d", acc.Balance, full)
	}
	var got models.Loan
	f.db.First(&got, loan.ID)
	if got.Status != models.LoanPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	if len(f.deposits(t)) != 0 {
		t.Fatal("rolled back approval left a deposit")
	}
}

func TestConcurrentApproveDisbursesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.request(t, "5000")

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			_, err := f.wf.Approve(ctx, f.admin, loan.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, core.ErrAlreadyProcessed):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d approvals succeeded, want 1", succeeded)
	}
	if len(f.deposits(t)) != 1 {
		t.Fatal("loan disbursed more than once")
	}
	var acc models.Account
	f.db.First(&acc, f.checking.ID)
	if acc.Balance != money.MustParse("5100.00") {
		t.Fatalf("checking = %s", money.Format(acc.Balance))
	}
}

func TestApproveRejectRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.request(t, "3000")

	var wg sync.WaitGroup
	var approveErr, rejectErr error
	wg.Add(2)
	go func() { defer wg.Done(); _, approveErr = f.wf.Approve(ctx, f.admin, loan.ID) }()
	go func() { defer wg.Done(); _, rejectErr = f.wf.Reject(ctx, f.admin, loan.ID, "too risky") }()
	wg.Wait()

	if (approveErr == nil) == (rejectErr == nil) {
		t.Fatalf("exactly one decision must win: approve=%v reject=%v", approveErr, rejectErr)
	}
	var got models.Loan
	f.db.First(&got, loan.ID)
	wantDeposits := 0
	if approveErr == nil {
		wantDeposits = 1
		if got.Status != models.LoanApproved {
			t.Fatalf("status %s", got.Status)
		}
	} else if got.Status != models.LoanRejected {
		t.Fatalf("status %s", got.Status)
	}
	if len(f.deposits(t)) != wantDeposits {
		t.Fatalf("deposits = %d, want %d", len(f.deposits(t)), wantDeposits)
	}
}

func TestRequestThenReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.request(t, "1500")

	if _, err := f.wf.Reject(ctx, f.admin, loan.ID, "   "); !errors.Is(err, core.ErrCommentRequired) {
		t.Fatalf("blank comment: %v", err)
	}
	got, err := f.wf.Reject(ctx, f.admin, loan.ID, "insufficient income")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != models.LoanRejected || got.AdminComment == nil || *got.AdminComment != "insufficient income" {
		t.Fatalf("unexpected loan %+v", got)
	}
	var n int64
	f.db.Model(&models.Transaction{}).Count(&n)
	if n != 0 {
		t.Fatalf("reject created %d transaction records", n)
	}
	if _, err := f.wf.Reject(ctx, f.admin, 4040, "x"); !errors.Is(err, core.ErrLoanNotFound) {
		t.Fatalf("missing loan: %v", err)
	}
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.request(t, "1000")
	second := f.request(t, "2000")
	if _, err := f.wf.Approve(ctx, f.admin, first.ID); err != nil {
		t.Fatal(err)
	}

	pending, err := f.wf.ListPending(ctx, f.admin)
	if err != nil || len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("pending = %+v, %v", pending, err)
	}
	if _, err := f.wf.ListPending(ctx, f.customer); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("customer listing pending: %v", err)
	}
	mine, err := f.wf.ListForUser(ctx, f.customer.UserID)
	if err != nil || len(mine) != 2 {
		t.Fatalf("mine = %d, %v", len(mine), err)
	}

	other := core.Actor{UserID: 555, Role: models.RoleCustomer, Status: models.StatusActive}
	if _, err := f.wf.Get(ctx, other, first.ID); !errors.Is(err, core.ErrLoanNotFound) {
		t.Fatalf("foreign loan visible: %v", err)
	}
	if l, err := f.wf.Get(ctx, f.admin, first.ID); err != nil || l.Status != models.LoanApproved {
		t.Fatalf("admin get: %+v %v", l, err)
	}
}
