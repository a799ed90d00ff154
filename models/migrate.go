package models

import "gorm.io/gorm"

// Migrate runs AutoMigrate for every engine table and creates the partial
// unique index that guards against double-enrollment.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Lead{},
		&LeadStatusChange{},
		&Sequence{},
		&SequenceStep{},
		&Enrollment{},
		&ReengagementWorkflow{},
		&JobExecution{},
		&NotificationPreferences{},
		&TrackedEmail{},
		&ClickEvent{},
	); err != nil {
		return err
	}

	// One active enrollment per (lead, sequence). Postgres and sqlite both
	// support partial unique indexes, which GORM tags cannot express.
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_enrollments_active_unique
		ON enrollments (lead_id, sequence_id)
		WHERE status = 'active' AND deleted_at IS NULL
	`).Error
}
