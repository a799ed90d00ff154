package models

import (
	"time"

	"gorm.io/gorm"
)

// Workflow run statuses
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
	RunStatusPartial = "partial"
)

// ReengagementWorkflow scans for inactive leads and enrolls them into its
// target sequence on a cron schedule.
type ReengagementWorkflow struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name           string `gorm:"not null" json:"name"`
	InactivityDays int    `gorm:"not null" json:"inactivity_days"`
	SequenceID     uint   `gorm:"not null;index" json:"sequence_id"`

	// CronExpr is a standard 5-field cron expression, validated at save time.
	CronExpr string `gorm:"not null" json:"cron_expr"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	LastRunAt *time.Time `json:"last_run_at"`

	// Relations
	Sequence   Sequence       `json:"-"`
	Executions []JobExecution `gorm:"foreignKey:WorkflowID" json:"executions,omitempty"`
}

// JobExecution is the append-only record of one scheduler-triggered run.
// The counters are cumulative across the workflow's lifetime, never reset.
type JobExecution struct {
	gorm.Model
	WorkflowID uint `gorm:"not null;index" json:"workflow_id"`

	TotalExecutions      int `gorm:"default:0" json:"total_executions"`
	SuccessfulExecutions int `gorm:"default:0" json:"successful_executions"`
	FailedExecutions     int `gorm:"default:0" json:"failed_executions"`

	StartedAt    time.Time `gorm:"not null" json:"started_at"`
	Status       string    `gorm:"not null" json:"status"` // success, failed, partial
	ErrorMessage string    `json:"error_message"`
	DurationMS   int64     `gorm:"default:0" json:"duration_ms"`

	// Relations
	Workflow ReengagementWorkflow `json:"-"`
}

// NotificationPreferences governs owner notifications about workflow runs
type NotificationPreferences struct {
	gorm.Model
	UserID uint `gorm:"not null;uniqueIndex" json:"user_id"`

	// Recipient is where run summaries are delivered
	Recipient string `json:"recipient"`

	Enabled   bool `gorm:"default:true" json:"enabled"`
	OnSuccess bool `gorm:"default:true" json:"on_success"`
	OnFailure bool `gorm:"default:true" json:"on_failure"`
	OnPartial bool `gorm:"default:true" json:"on_partial"`

	// BatchNotifications switches from per-run messages to one periodic
	// summary of all accumulated runs.
	BatchNotifications bool `gorm:"default:false" json:"batch_notifications"`
}

// WorkflowExecutionResult is the ephemeral outcome of one workflow run. It is
// folded into JobExecution and the notification payload, never stored on its
// own.
type WorkflowExecutionResult struct {
	WorkflowID    uint          `json:"workflow_id"`
	WorkflowName  string        `json:"workflow_name"`
	LeadsDetected int           `json:"leads_detected"`
	LeadsEnrolled int           `json:"leads_enrolled"`
	Status        string        `json:"status"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	ExecutedAt    time.Time     `json:"executed_at"`
	Duration      time.Duration `json:"duration"`
}

// SuccessRate is enrolled/detected as a percentage, 0 when nothing was
// detected.
func (r WorkflowExecutionResult) SuccessRate() float64 {
	if r.LeadsDetected == 0 {
		return 0
	}
	return float64(r.LeadsEnrolled) / float64(r.LeadsDetected) * 100
}
