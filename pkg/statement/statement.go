// Package statement builds a month-bounded account statement for one customer.
package statement

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"jababank/models"
	"jababank/pkg/money"
	"jababank/pkg/store"

	"gorm.io/gorm"
)

type Line struct {
	Transaction models.Transaction
	// Signed is positive for money entering the customer's accounts and
	// negative for money leaving them. Transfers between two of the
	// customer's own accounts are 0.
	Signed int64
}

type Statement struct {
	UserID   uint
	Month    string
	Accounts []models.Account
	Lines    []Line
	In, Out  int64
}

// Build loads every transaction touching userID's accounts during month
// (YYYY-MM, UTC).
func Build(ctx context.Context, db *gorm.DB, userID uint, month string) (*Statement, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	accounts, err := store.AccountsForUser(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	rows, err := store.TransactionsBetween(ctx, db, userID, start, end)
	if err != nil {
		return nil, err
	}

	owned := make(map[uint]bool, len(accounts))
	for _, a := range accounts {
		owned[a.ID] = true
	}
	st := &Statement{UserID: userID, Month: month, Accounts: accounts}
	for _, tx := range rows {
		var signed int64
		if tx.ToAccountID != nil && owned[*tx.ToAccountID] {
			signed += tx.Amount
		}
		if tx.FromAccountID != nil && owned[*tx.FromAccountID] {
			signed -= tx.Amount
		}
		switch {
		case signed > 0:
			st.In += signed
		case signed < 0:
			st.Out -= signed
		}
		st.Lines = append(st.Lines, Line{Transaction: tx, Signed: signed})
	}
	return st, nil
}

func (s *Statement) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Statement for user=%d month=%s (UTC)\n", s.UserID, s.Month)
	for _, a := range s.Accounts {
		fmt.Fprintf(tw, "  %s\t%s\tbalance %s\n", a.Type, a.AccountNumber, money.Format(a.Balance))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "DATE\tREFERENCE\tTYPE\tAMOUNT\tDESCRIPTION")
	for _, l := range s.Lines {
		t := l.Transaction
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.CreatedAt.UTC().Format(time.RFC3339), t.Reference, t.Type, money.Format(l.Signed), t.Description)
	}
	fmt.Fprintf(tw, "\nrecords=%d in=%s out=%s\n", len(s.Lines), money.Format(s.In), money.Format(s.Out))
	return tw.Flush()
}
