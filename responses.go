package main

import (
	"errors"
	"net/http"
	"time"

	"jababank/models"
	"jababank/pkg/core"
	"jababank/pkg/flags"
	"jababank/pkg/identity"
	"jababank/pkg/money"

	"github.com/gin-gonic/gin"
)

// writeError maps a typed error to a status code. Storage failures are
// reported as retryable without leaking driver details.
func (s *server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, identity.ErrNotActive), errors.Is(err, core.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, identity.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, identity.ErrWeakPassword), errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, core.ErrSelfStatusChange):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrAccountNotFound), errors.Is(err, core.ErrDestinationNotFound),
		errors.Is(err, core.ErrLoanNotFound), errors.Is(err, core.ErrTransactionNotFound),
		errors.Is(err, core.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrInsufficientFunds), errors.Is(err, core.ErrBalanceLimit):
		status = http.StatusUnprocessableEntity
	default:
		switch core.Classify(err) {
		case core.ClassValidation:
			status = http.StatusBadRequest
		case core.ClassBusiness:
			status = http.StatusConflict
		case core.ClassStorage:
			status = http.StatusServiceUnavailable
			msg = "temporary failure, please retry"
			s.log.Error("storage failure", "path", c.FullPath(), "request_id", c.GetString(requestIDKey), "error", err)
		}
	}
	c.JSON(status, gin.H{"error": msg})
}

func userJSON(u *models.User) gin.H {
	return gin.H{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"role":       u.Role,
		"status":     u.Status,
		"created_at": u.CreatedAt.Format(time.RFC3339),
	}
}

func accountJSON(a models.Account) gin.H {
	return gin.H{
		"id":             a.ID,
		"account_number": a.AccountNumber,
		"type":           a.Type,
		"balance":        money.Format(a.Balance),
		"created_at":     a.CreatedAt.Format(time.RFC3339),
	}
}

func transactionJSON(t models.Transaction) gin.H {
	return gin.H{
		"id":              t.ID,
		"reference":       t.Reference,
		"type":            t.Type,
		"from_account_id": t.FromAccountID,
		"to_account_id":   t.ToAccountID,
		"amount":          money.Format(t.Amount),
		"description":     t.Description,
		"timestamp":       t.CreatedAt.Format(time.RFC3339),
	}
}

func transactionsJSON(rows []models.Transaction) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, t := range rows {
		out = append(out, transactionJSON(t))
	}
	return out
}

func loanJSON(l models.Loan) gin.H {
	h := gin.H{
		"id":            l.ID,
		"user_id":       l.UserID,
		"amount":        money.Format(l.Amount),
		"type":          l.Type,
		"purpose":       l.Purpose,
		"status":        l.Status,
		"admin_comment": l.AdminComment,
		"requested_at":  l.CreatedAt.Format(time.RFC3339),
	}
	if l.DecidedAt != nil {
		h["decided_at"] = l.DecidedAt.Format(time.RFC3339)
		h["decided_by"] = l.DecidedBy
	}
	return h
}

func loansJSON(rows []models.Loan) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, l := range rows {
		out = append(out, loanJSON(l))
	}
	return out
}

func flagJSON(f models.FlagRecord) gin.H {
	return gin.H{
		"id":             f.ID,
		"transaction_id": f.TransactionID,
		"employee_id":    f.EmployeeID,
		"reason":         f.Reason,
		"status":         f.Status,
		"flagged_at":     f.FlaggedAt.Format(time.RFC3339),
	}
}

func flaggedJSON(f flags.Flagged) gin.H {
	return gin.H{
		"flag_id":         f.FlagID,
		"transaction_id":  f.TransactionID,
		"employee_id":     f.EmployeeID,
		"employee_name":   f.EmployeeName,
		"reason":          f.Reason,
		"status":          f.Status,
		"flagged_at":      f.FlaggedAt.Format(time.RFC3339),
		"type":            f.TransactionType,
		"from_account_id": f.FromAccountID,
		"to_account_id":   f.ToAccountID,
		"amount":          money.Format(f.Amount),
		"description":     f.Description,
		"reference":       f.Reference,
		"timestamp":       f.TransactionAt.Format(time.RFC3339),
	}
}
