package core

import (
	"errors"
	"fmt"
)

// Validation errors are returned before any storage access.
var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidType     = errors.New("invalid type")
	ErrMissingField    = errors.New("missing required field")
	ErrCommentRequired = errors.New("admin comment is required")
)

// Business rule violations are detected inside the atomic unit and are never
// transient.
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrDestinationNotFound = errors.New("destination account not found")
	ErrSelfTransfer        = errors.New("cannot transfer to the same account")
	ErrAccountNotFound     = errors.New("account not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrLoanNotFound        = errors.New("loan not found")
	ErrAlreadyProcessed    = errors.New("loan already processed")
	ErrNoCheckingAccount   = errors.New("borrower has no checking account")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyFlagged      = errors.New("transaction already flagged")
	ErrUserNotFound        = errors.New("user not found")
	ErrBalanceLimit        = errors.New("account balance limit exceeded")
	ErrSelfStatusChange    = errors.New("cannot change your own status")
)

var validationErrs = []error{ErrInvalidAmount, ErrInvalidType, ErrMissingField, ErrCommentRequired}

var businessErrs = []error{
	ErrInsufficientFunds, ErrDestinationNotFound, ErrSelfTransfer, ErrAccountNotFound,
	ErrUnauthorized, ErrLoanNotFound, ErrAlreadyProcessed, ErrNoCheckingAccount,
	ErrTransactionNotFound, ErrAlreadyFlagged, ErrUserNotFound, ErrBalanceLimit,
	ErrSelfStatusChange,
}

// StorageError reports that the store failed while an atomic unit was open.
// The unit has been rolled back; resubmitting the same request is safe.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Temporary marks storage failures as retryable by the caller.
func (e *StorageError) Temporary() bool { return true }

// Class groups errors by how a caller should react to them.
type Class int

const (
	ClassNone Class = iota
	ClassValidation
	ClassBusiness
	ClassStorage
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassBusiness:
		return "business"
	case ClassStorage:
		return "storage"
	}
	return "none"
}

// Classify reports the class of err. Anything that is not a known validation
// or business error is treated as a storage failure.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	for _, e := range validationErrs {
		if errors.Is(err, e) {
			return ClassValidation
		}
	}
	for _, e := range businessErrs {
		if errors.Is(err, e) {
			return ClassBusiness
		}
	}
	return ClassStorage
}

// Storage wraps err as a *StorageError unless it is nil, already a domain
// error, or already wrapped.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	if c := Classify(err); c == ClassValidation || c == ClassBusiness {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
