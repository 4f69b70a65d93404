// Package identity registers and authenticates users and issues session
// tokens. Ledger operations only see the core.Actor it produces.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"jababank/models"
	"jababank/pkg/core"
	"jababank/pkg/ledger"
	"jababank/pkg/store"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password too short (min 6)")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrNotActive          = errors.New("account is not active")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type Options struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Service struct {
	db     *gorm.DB
	ledger *ledger.Engine
	opts   Options
	now    func() time.Time
}

func NewService(db *gorm.DB, engine *ledger.Engine, opts Options) *Service {
	if opts.AccessTTL == 0 {
		opts.AccessTTL = 24 * time.Hour
	}
	if opts.RefreshTTL == 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}
	return &Service{db: db, ledger: engine, opts: opts, now: time.Now}
}

type Registration struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

// Register creates a user. Customers start inactive and get their checking
// and savings accounts in the same transaction; staff start active.
func (s *Service) Register(ctx context.Context, r Registration) (*models.User, error) {
	name := strings.TrimSpace(r.Name)
	email := strings.ToLower(strings.TrimSpace(r.Email))
	if name == "" {
		return nil, fmt.Errorf("%w: name", core.ErrMissingField)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(r.Password) < 6 {
		return nil, ErrWeakPassword
	}
	if !r.Role.Valid() {
		return nil, fmt.Errorf("%w: role %q", core.ErrInvalidType, r.Role)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Name:           name,
		Email:          email,
		HashedPassword: hashed,
		Role:           r.Role,
		Status:         models.StatusActive,
	}
	if r.Role == models.RoleCustomer {
		user.Status = models.StatusInactive
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrEmailTaken
		}
		if err := tx.Create(&user).Error; err != nil {
			if isUniqueConstraintError(err) { // lost a race with a concurrent registration
				return ErrEmailTaken
			}
			return err
		}
		if user.Role != models.RoleCustomer {
			return nil
		}
		_, _, err := s.ledger.WithTx(tx).ProvisionCustomerAccounts(ctx, user.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, core.Storage("register", err)
	}
	return &user, nil
}

// Authenticate checks credentials and refuses users that are not active.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, core.Storage("authenticate", err)
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status != models.StatusActive {
		return nil, ErrNotActive
	}
	return &user, nil
}

// ApproveUser activates an inactive user.
func (s *Service) ApproveUser(ctx context.Context, actor core.Actor, userID uint) (*models.User, error) {
	if !actor.Can(models.RoleAdmin) {
		return nil, core.ErrUnauthorized
	}
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrUserNotFound
			}
			return err
		}
		res := tx.Model(&models.User{}).
			Where("id = ? AND status = ?", userID, models.StatusInactive).
			Update("status", models.StatusActive)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return core.ErrAlreadyProcessed
		}
		user.Status = models.StatusActive
		return nil
	})
	if err != nil {
		return nil, core.Storage("approve user", err)
	}
	return &user, nil
}

// SetUserStatus moves a user to any status. Admins cannot deactivate or lock
// themselves. Leaving the active status revokes the user's refresh tokens.
func (s *Service) SetUserStatus(ctx context.Context, actor core.Actor, userID uint, status models.UserStatus) (*models.User, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %q", core.ErrInvalidType, status)
	}
	if !actor.Can(models.RoleAdmin) {
		return nil, core.ErrUnauthorized
	}
	if userID == actor.UserID && status != models.StatusActive {
		return nil, core.ErrSelfStatusChange
	}
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := store.ForUpdate(tx).First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrUserNotFound
			}
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("status", status).Error; err != nil {
			return err
		}
		user.Status = status
		if status == models.StatusActive {
			return nil
		}
		return tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked = ?", userID, false).
			Update("revoked", true).Error
	})
	if err != nil {
		return nil, core.Storage("set user status", err)
	}
	return &user, nil
}

// PendingUsers lists users waiting for approval, oldest first.
func (s *Service) PendingUsers(ctx context.Context, actor core.Actor) ([]models.User, error) {
	if !actor.Can(models.RoleAdmin) {
		return nil, core.ErrUnauthorized
	}
	var rows []models.User
	if err := s.db.WithContext(ctx).Where("status = ?", models.StatusInactive).Order("id").Find(&rows).Error; err != nil {
		return nil, core.Storage("pending users", err)
	}
	return rows, nil
}

func (s *Service) User(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, core.Storage("get user", err)
	}
	return &u, nil
}

func (s *Service) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, core.Storage("get user", err)
	}
	return &u, nil
}

// EnsureAdmin seeds an active admin with the given credentials unless a user
// with that email already exists.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	_, err := s.Register(ctx, Registration{Name: "Administrator", Email: email, Password: password, Role: models.RoleAdmin})
	if errors.Is(err, ErrEmailTaken) {
		return false, nil
	}
	return err == nil, err
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "UNIQUE constraint")
}
