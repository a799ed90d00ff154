package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead statuses
const (
	LeadStatusNew         = "new"
	LeadStatusContacted   = "contacted"
	LeadStatusQualified   = "qualified"
	LeadStatusUnqualified = "unqualified"
	LeadStatusConverted   = "converted"
)

// Lead represents a single contact/lead
type Lead struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`
	Phone     string `json:"phone"`
	Website   string `json:"website"`

	// CompanySize is the employee headcount, 0 when unknown.
	CompanySize int    `gorm:"default:0" json:"company_size"`
	Source      string `json:"source"`

	Status string `gorm:"default:'new';index" json:"status"`
	Score  int    `gorm:"default:0" json:"score"`

	// LastEngagementAt is the latest of: open, click, status change.
	LastEngagementAt *time.Time `gorm:"index" json:"last_engagement_at"`

	// Relations
	StatusChanges []LeadStatusChange `gorm:"foreignKey:LeadID" json:"status_changes,omitempty"`
	Enrollments   []Enrollment       `gorm:"foreignKey:LeadID" json:"enrollments,omitempty"`
}

// ValidLeadStatus reports whether s is one of the known lead statuses.
func ValidLeadStatus(s string) bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified,
		LeadStatusUnqualified, LeadStatusConverted:
		return true
	}
	return false
}

// LeadStatusChange is the append-only history of status transitions
type LeadStatusChange struct {
	gorm.Model
	LeadID uint `gorm:"not null;index" json:"lead_id"`

	FromStatus string    `gorm:"not null" json:"from_status"`
	ToStatus   string    `gorm:"not null" json:"to_status"`
	ChangedAt  time.Time `gorm:"not null" json:"changed_at"`

	// Relations
	Lead Lead `json:"-"`
}
