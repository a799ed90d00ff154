package models

import (
	"time"

	"gorm.io/gorm"
)

// TrackedEmail is one dispatched sequence email with its tracking token. The
// token is opaque and unique so public tracking URLs never expose row IDs.
type TrackedEmail struct {
	gorm.Model
	LeadID         uint  `gorm:"not null;index" json:"lead_id"`
	EnrollmentID   *uint `gorm:"index" json:"enrollment_id,omitempty"`
	SequenceStepID *uint `gorm:"index" json:"sequence_step_id,omitempty"`

	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text" json:"body"`
	SentAt  time.Time `gorm:"not null" json:"sent_at"`

	TrackingToken string `gorm:"not null;uniqueIndex" json:"tracking_token"`

	// Open tracking. OpenedAt is the first open; OpenCount keeps counting
	// repeats for analytics.
	OpenedAt  *time.Time `json:"opened_at"`
	OpenCount int        `gorm:"default:0" json:"open_count"`

	// Relations
	Lead        Lead         `json:"-"`
	ClickEvents []ClickEvent `gorm:"foreignKey:TrackedEmailID" json:"click_events,omitempty"`
}

// ClickEvent tracks clicks on one rewritten link. Deduplicated per
// (tracked email, url); replays bump Count instead of inserting.
type ClickEvent struct {
	gorm.Model
	TrackedEmailID uint `gorm:"not null;index:idx_click_email_url,unique" json:"tracked_email_id"`

	URL       string    `gorm:"not null;index:idx_click_email_url,unique" json:"url"`
	ClickedAt time.Time `gorm:"not null" json:"clicked_at"`
	Count     int       `gorm:"default:1" json:"count"`
}
