package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/site-notifier/internal/repository"
	"gorm.io/gorm"
)

// createProfilesTable creates profiles only where it does not exist yet, such
// as a local database. An existing table belongs to the profile service and its
// columns are never altered here.
func createProfilesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_profiles",
		Migrate: func(tx *gorm.DB) error {
			if err := ensureProfilesTable(tx.Migrator()); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_profiles_role ON profiles (role)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_profiles_role`).Error
		},
	}
}

func ensureProfilesTable(m gorm.Migrator) error {
	if m.HasTable(&repository.RecipientModel{}) {
		return nil
	}
	return m.CreateTable(&repository.RecipientModel{})
}
