package store

import (
	"fmt"

	"jababank/models"

	"gorm.io/gorm"
)

// Migrate creates or updates every table. It is idempotent and is meant to
// run once at startup before any request is served.
func Migrate(db *gorm.DB) error {
	for _, m := range models.All() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
	}
	return nil
}
