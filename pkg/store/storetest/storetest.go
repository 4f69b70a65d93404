// Package storetest opens throwaway databases for package tests.
//
// Tests run on a temporary sqlite file by default. Set DB_DSN_TEST to a
// postgres DSN (or to 1 together with DB_DSN) to run them against postgres,
// where each test gets its own schema and the row-locking paths are live.
package storetest

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jababank/models"
	"jababank/pkg/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Open returns a migrated empty database that is removed with the test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	driver, dsn := Target(t)
	db, err := store.Open(driver, dsn)
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() { _ = store.Close(db) })
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Target returns the driver and DSN of a fresh, unmigrated database.
func Target(t *testing.T) (driver, dsn string) {
	t.Helper()
	base := postgresDSN()
	if base == "" {
		return store.DriverSQLite, filepath.Join(t.TempDir(), "bank.db") + "?_pragma=busy_timeout(5000)"
	}

	admin, err := store.Open(store.DriverPostgres, base)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := admin.Exec("CREATE SCHEMA " + schema).Error; err != nil {
		_ = store.Close(admin)
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		if err := admin.Exec("DROP SCHEMA " + schema + " CASCADE").Error; err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		_ = store.Close(admin)
	})
	return store.DriverPostgres, withSearchPath(base, schema)
}

func postgresDSN() string {
	v := strings.TrimSpace(os.Getenv("DB_DSN_TEST"))
	switch v {
	case "", "0", "false":
		return ""
	case "1", "true":
		return strings.TrimSpace(os.Getenv("DB_DSN"))
	}
	return v
}

// withSearchPath pins every pooled connection to schema. URL and key=value
// DSNs are both accepted by the postgres driver.
func withSearchPath(dsn, schema string) string {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err == nil {
			q := u.Query()
			q.Set("search_path", schema)
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return dsn + " search_path=" + schema
}

// User inserts an active user with the given role.
func User(t *testing.T, db *gorm.DB, name string, role models.Role) models.User {
	t.Helper()
	u := models.User{
		Name:           name,
		Email:          name + "@example.com",
		HashedPassword: []byte("x"),
		Role:           role,
		Status:         models.StatusActive,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

// Account inserts an account with a fixed balance in cents.
func Account(t *testing.T, db *gorm.DB, userID uint, typ models.AccountType, balance int64) models.Account {
	t.Helper()
	a, err := store.CreateAccount(db, userID, typ, balance)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}
