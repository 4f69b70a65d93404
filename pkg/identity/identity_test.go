package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"jababank/models"
	"jababank/pkg/core"
	"jababank/pkg/ledger"
	"jababank/pkg/store/storetest"
)

func newService(t *testing.T) *Service {
	t.Helper()
	db := storetest.Open(t)
	return NewService(db, ledger.NewEngine(db), Options{Secret: []byte("test-secret")})
}

func TestRegisterCustomerProvisionsAccounts(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, Registration{Name: "Dana", Email: " Dana@Example.com ", Password: "secret1", Role: models.RoleCustomer})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "dana@example.com" || u.Status != models.StatusInactive {
		t.Fatalf("unexpected user %+v", u)
	}
	var accounts []models.Account
	s.db.Where("user_id = ?", u.ID).Order("id").Find(&accounts)
	if len(accounts) != 2 || accounts[0].Balance != ledger.InitialCheckingBalance || accounts[1].Balance != ledger.InitialSavingsBalance {
		t.Fatalf("unexpected accounts %+v", accounts)
	}

	if _, err := s.Register(ctx, Registration{Name: "Dana 2", Email: "dana@example.com", Password: "secret1", Role: models.RoleCustomer}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	cases := []struct {
		reg  Registration
		want error
	}{
		{Registration{Email: "a@b.c", Password: "secret1", Role: models.RoleCustomer}, core.ErrMissingField},
		{Registration{Name: "A", Email: "nope", Password: "secret1", Role: models.RoleCustomer}, ErrInvalidEmail},
		{Registration{Name: "A", Email: "a@b.c", Password: "123", Role: models.RoleCustomer}, ErrWeakPassword},
		{Registration{Name: "A", Email: "a@b.c", Password: "secret1", Role: "root"}, core.ErrInvalidType},
	}
	for _, c := range cases {
		if _, err := s.Register(ctx, c.reg); !errors.Is(err, c.want) {
			t.Errorf("Register(%+v) = %v, want %v", c.reg, err, c.want)
		}
	}
}

func TestAuthenticateRequiresApproval(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	admin := core.Actor{UserID: 1, Role: models.RoleAdmin, Status: models.StatusActive}

	u, err := s.Register(ctx, Registration{Name: "Eve", Email: "eve@example.com", Password: "secret1", Role: models.RoleCustomer})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Authenticate(ctx, "eve@example.com", "secret1"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("inactive login: %v", err)
	}
	pending, err := s.PendingUsers(ctx, admin)
	if err != nil || len(pending) != 1 || pending[0].ID != u.ID {
		t.Fatalf("pending = %+v, %v", pending, err)
	}
	if _, err := s.ApproveUser(ctx, core.Actor{UserID: u.ID, Role: models.RoleCustomer, Status: models.StatusActive}, u.ID); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("self approval: %v", err)
	}
	if _, err := s.ApproveUser(ctx, admin, u.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := s.ApproveUser(ctx, admin, u.ID); !errors.Is(err, core.ErrAlreadyProcessed) {
		t.Fatalf("second approve: %v", err)
	}
	if _, err := s.ApproveUser(ctx, admin, 999); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("missing user: %v", err)
	}

	if _, err := s.Authenticate(ctx, "eve@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := s.Authenticate(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}
	got, err := s.Authenticate(ctx, "EVE@example.com", "secret1")
	if err != nil || got.ID != u.ID {
		t.Fatalf("login: %+v %v", got, err)
	}
}

func TestTokensRoundTrip(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	if ok, err := s.EnsureAdmin(ctx, "admin@example.com", "admin123"); !ok || err != nil {
		t.Fatalf("seed admin: %v %v", ok, err)
	}
	if ok, err := s.EnsureAdmin(ctx, "admin@example.com", "admin123"); ok || err != nil {
		t.Fatalf("second seed should be a no-op: %v %v", ok, err)
	}
	admin, err := s.Authenticate(ctx, "admin@example.com", "admin123")
	if err != nil {
		t.Fatal(err)
	}

	tokens, err := s.IssueTokens(ctx, admin)
	if err != nil {
		t.Fatal(err)
	}
	actor, err := s.ParseAccessToken(tokens.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if actor.UserID != admin.ID || actor.Role != models.RoleAdmin || actor.Status != models.StatusActive {
		t.Fatalf("actor = %+v", actor)
	}

	rotated, err := s.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == tokens.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := s.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reuse of rotated token: %v", err)
	}
	if err := s.Revoke(ctx, rotated.RefreshToken); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked token: %v", err)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	s := newService(t)
	u := &models.User{ID: 3, Email: "x@y.z", Role: models.RoleCustomer, Status: models.StatusActive}
	tok, err := s.accessToken(u)
	if err != nil {
		t.Fatal(err)
	}

	other := NewService(s.db, s.ledger, Options{Secret: []byte("other")})
	if _, err := other.ParseAccessToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: %v", err)
	}
	s.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if _, err := s.ParseAccessToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: %v", err)
	}
	if _, err := s.ParseAccessToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: %v", err)
	}
}

func TestSetUserStatusAppliesToIssuedTokens(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	if _, err := s.EnsureAdmin(ctx, "admin@example.com", "admin123"); err != nil {
		t.Fatal(err)
	}
	adminUser, err := s.Authenticate(ctx, "admin@example.com", "admin123")
	if err != nil {
		t.Fatal(err)
	}
	admin := core.Actor{UserID: adminUser.ID, Role: adminUser.Role, Status: adminUser.Status}

	u, err := s.Register(ctx, Registration{Name: "Finn", Email: "finn@example.com", Password: "secret1", Role: models.RoleCustomer})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApproveUser(ctx, admin, u.ID); err != nil {
		t.Fatal(err)
	}
	u.Status = models.StatusActive
	tokens, err := s.IssueTokens(ctx, u)
	if err != nil {
		t.Fatal(err)
	}

	locked, err := s.SetUserStatus(ctx, admin, u.ID, models.StatusLocked)
	if err != nil || locked.Status != models.StatusLocked {
		t.Fatalf("lock: %+v %v", locked, err)
	}

	// claims still say active; Authorize must not
	claimed, err := s.ParseAccessToken(tokens.AccessToken)
	if err != nil || claimed.Status != models.StatusActive {
		t.Fatalf("claims: %+v %v", claimed, err)
	}
	actor, err := s.Authorize(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if actor.Status != models.StatusLocked {
		t.Fatalf("status = %s, want locked", actor.Status)
	}

	var accounts []models.Account
	s.db.Where("user_id = ?", u.ID).Order("id").Find(&accounts)
	_, err = s.ledger.Transfer(ctx, actor, ledger.TransferRequest{
		SourceAccountID:          accounts[0].ID,
		DestinationAccountNumber: accounts[1].AccountNumber,
		Amount:                   1000,
	})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("transfer by locked user: %v", err)
	}
	if _, err := s.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh after lock: %v", err)
	}
	if _, err := s.Authenticate(ctx, "finn@example.com", "secret1"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("login after lock: %v", err)
	}

	if _, err := s.SetUserStatus(ctx, admin, u.ID, models.StatusActive); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if actor, err = s.Authorize(ctx, tokens.AccessToken); err != nil || actor.Status != models.StatusActive {
		t.Fatalf("after reactivation: %+v %v", actor, err)
	}
}

func TestSetUserStatusErrors(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	if _, err := s.EnsureAdmin(ctx, "admin@example.com", "admin123"); err != nil {
		t.Fatal(err)
	}
	adminUser, err := s.Authenticate(ctx, "admin@example.com", "admin123")
	if err != nil {
		t.Fatal(err)
	}
	admin := core.Actor{UserID: adminUser.ID, Role: adminUser.Role, Status: adminUser.Status}
	customer := core.Actor{UserID: 77, Role: models.RoleCustomer, Status: models.StatusActive}

	cases := []struct {
		name   string
		actor  core.Actor
		userID uint
		status models.UserStatus
		want   error
	}{
		{"lock self", admin, admin.UserID, models.StatusLocked, core.ErrSelfStatusChange},
		{"deactivate self", admin, admin.UserID, models.StatusInactive, core.ErrSelfStatusChange},
		{"unknown status", admin, 2, "banned", core.ErrInvalidType},
		{"not admin", customer, admin.UserID, models.StatusLocked, core.ErrUnauthorized},
		{"missing user", admin, 999, models.StatusLocked, core.ErrUserNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := s.SetUserStatus(ctx, c.actor, c.userID, c.status); !errors.Is(err, c.want) {
				t.Fatalf("got %v, want %v", err, c.want)
			}
		})
	}

	var still models.User
	s.db.First(&still, admin.UserID)
	if still.Status != models.StatusActive {
		t.Fatalf("admin status = %s", still.Status)
	}
}

func TestAuthorizeUnknownUser(t *testing.T) {
	s := newService(t)
	tok, err := s.accessToken(&models.User{ID: 42, Email: "ghost@example.com", Role: models.RoleAdmin, Status: models.StatusActive})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Authorize(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("deleted user: %v", err)
	}
}
