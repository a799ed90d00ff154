package models

import (
	"time"

	"gorm.io/gorm"
)

// Sequence trigger types
const (
	TriggerManual       = "manual"
	TriggerStatusChange = "status_change"
	TriggerTimeBased    = "time_based"
)

// Enrollment statuses
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
	EnrollmentCanceled  = "canceled"
)

// Sequence represents an ordered automated email sequence
type Sequence struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	TriggerType string `gorm:"default:'manual'" json:"trigger_type"` // manual, status_change, time_based

	// Relations
	Steps []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// SequenceStep is one templated email in a sequence. Steps are append-only
// once the sequence has been saved.
type SequenceStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	StepNumber int `gorm:"not null" json:"step_number"`
	// DelayDays is the offset from the previous step; step 0 counts from
	// enrollment.
	DelayDays int `gorm:"not null" json:"delay_days"`

	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	// Tracking
	SentCount int `gorm:"default:0" json:"sent_count"`
}

// Enrollment records one lead's progress through one sequence. At most one
// active enrollment may exist per (lead, sequence); the partial unique index
// is created in Migrate.
type Enrollment struct {
	gorm.Model
	LeadID     uint `gorm:"not null;index" json:"lead_id"`
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	Status           string     `gorm:"default:'active';index" json:"status"` // active, completed, canceled
	CurrentStepIndex int        `gorm:"default:0" json:"current_step_index"`
	NextStepDueAt    *time.Time `gorm:"index" json:"next_step_due_at"`

	// CreatedByWorkflowID is set when the re-engagement detector created the
	// enrollment, nil for manual and status_change enrollments.
	CreatedByWorkflowID *uint `gorm:"index" json:"created_by_workflow_id,omitempty"`

	// Relations
	Lead     Lead     `json:"-"`
	Sequence Sequence `json:"-"`
}
