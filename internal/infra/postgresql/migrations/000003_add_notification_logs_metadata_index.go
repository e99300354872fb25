package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// The dedup filter looks rows up by metadata key/value.
func addNotificationLogsMetadataIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_add_notification_logs_metadata_index",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_notification_logs_metadata ON notification_logs USING GIN (metadata jsonb_path_ops)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_notification_logs_metadata`).Error
		},
	}
}
