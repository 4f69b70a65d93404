package statement

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"jababank/models"
	"jababank/pkg/core"
	"jababank/pkg/ledger"
	"jababank/pkg/store/storetest"
)

func TestBuild(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	u := storetest.User(t, db, "sam", models.RoleCustomer)
	other := storetest.User(t, db, "tia", models.RoleCustomer)
	checking := storetest.Account(t, db, u.ID, models.AccountChecking, 10000)
	savings := storetest.Account(t, db, u.ID, models.AccountSavings, 0)
	foreign := storetest.Account(t, db, other.ID, models.AccountChecking, 0)
	engine := ledger.NewEngine(db)
	sam := core.Actor{UserID: u.ID, Role: u.Role, Status: u.Status}

	if _, err := engine.Credit(ctx, checking.ID, 2500, "salary"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Transfer(ctx, sam, ledger.TransferRequest{SourceAccountID: checking.ID, DestinationAccountNumber: foreign.AccountNumber, Amount: 1000}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Transfer(ctx, sam, ledger.TransferRequest{SourceAccountID: checking.ID, DestinationAccountNumber: savings.AccountNumber, Amount: 500}); err != nil {
		t.Fatal(err)
	}
	// someone else's activity stays out of the statement
	if _, err := engine.Credit(ctx, foreign.ID, 700, "unrelated"); err != nil {
		t.Fatal(err)
	}

	st, err := Build(ctx, db, u.ID, time.Now().UTC().Format("2006-01"))
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Lines) != 3 || st.In != 2500 || st.Out != 1000 {
		t.Fatalf("lines=%d in=%d out=%d", len(st.Lines), st.In, st.Out)
	}
	if st.Lines[2].Signed != 0 {
		t.Fatalf("own-account transfer should net to zero, got %d", st.Lines[2].Signed)
	}

	var buf bytes.Buffer
	if err := st.Print(&buf); err != nil {
		t.Fatal(err)
	}
	if out := buf.String(); !strings.Contains(out, "records=3 in=25.00 out=10.00") || !strings.Contains(out, "salary") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	empty, err := Build(ctx, db, u.ID, "2001-01")
	if err != nil || len(empty.Lines) != 0 {
		t.Fatalf("old month: %+v %v", empty, err)
	}
	if _, err := Build(ctx, db, u.ID, "January"); err == nil {
		t.Fatal("expected month parse error")
	}
}
