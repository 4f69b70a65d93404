package store

import (
	"context"
	"time"

	"jababank/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Paginate applies offset and limit for page to q.
func Paginate(q *gorm.DB, page Page) *gorm.DB {
	page = page.normalize()
	return q.Offset((page.Number - 1) * page.Size).Limit(page.Size)
}

// InsertTransaction appends a record to the transaction log. A reference is
// generated when the caller did not set one.
func InsertTransaction(tx *gorm.DB, t *models.Transaction) error {
	if t.Reference == "" {
		t.Reference = uuid.NewString()
	}
	return tx.Create(t).Error
}

func involving(db *gorm.DB, userID uint) *gorm.DB {
	owned := db.Session(&gorm.Session{NewDB: true}).Model(&models.Account{}).Select("id").Where("user_id = ?", userID)
	return db.Model(&models.Transaction{}).
		Where("from_account_id IN (?) OR to_account_id IN (?)", owned, owned)
}

// TransactionsForUser lists transactions touching any account of userID, newest first.
func TransactionsForUser(ctx context.Context, db *gorm.DB, userID uint, page Page) ([]models.Transaction, int64, error) {
	db = db.WithContext(ctx)
	var total int64
	if err := involving(db, userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Transaction
	err := Paginate(involving(db, userID).Order("created_at DESC, id DESC"), page).Find(&rows).Error
	return rows, total, err
}

// TransactionsBetween lists a user's transactions in [start, end), oldest first.
func TransactionsBetween(ctx context.Context, db *gorm.DB, userID uint, start, end time.Time) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := involving(db.WithContext(ctx), userID).
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at, id").Find(&rows).Error
	return rows, err
}
