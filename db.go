package main

import (
	"context"
	"log/slog"
	"time"

	"jababank/pkg/config"
	"jababank/pkg/identity"
	"jababank/pkg/ledger"
	"jababank/pkg/store"

	"gorm.io/gorm"
)

// initDB opens the database, migrates the schema when DB_AUTO_MIGRATE is on
// and seeds the admin user. It runs once before the server accepts requests.
func initDB(cfg config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if cfg.DBAutoMigrate {
		if err := store.Migrate(db); err != nil {
			_ = store.Close(db)
			return nil, err
		}
	}
	if err := seedDB(db, cfg, logger); err != nil {
		_ = store.Close(db)
		return nil, err
	}
	return db, nil
}

func seedDB(db *gorm.DB, cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ids := identity.NewService(db, ledger.NewEngine(db), identity.Options{Secret: cfg.JWTSecret})
	created, err := ids.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		logger.Info("seeded admin user", "email", cfg.AdminEmail)
	}
	return nil
}
