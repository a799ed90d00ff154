package store

import (
	"errors"
	"strings"
	"time"

	"leadpulse/models"
	"leadpulse/utils"

	"gorm.io/gorm"
)

// Store wraps the database with the specific queries the engine needs. The
// worker side consumes it through narrow interfaces, so tests can substitute
// pieces without a live postgres.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for controllers that page/filter ad hoc
func (s *Store) DB() *gorm.DB {
	return s.db
}

// FindInactiveLeads returns the owner's leads whose last engagement is null
// or older than the cutoff, excluding leads that already have an active
// enrollment in the target sequence.
func (s *Store) FindInactiveLeads(userID, sequenceID uint, cutoff time.Time) ([]models.Lead, error) {
	var leads []models.Lead
	err := s.db.
		Where("user_id = ?", userID).
		Where("last_engagement_at IS NULL OR last_engagement_at < ?", cutoff).
		Where(`NOT EXISTS (
			SELECT 1 FROM enrollments e
			WHERE e.lead_id = leads.id
			  AND e.sequence_id = ?
			  AND e.status = ?
			  AND e.deleted_at IS NULL
		)`, sequenceID, models.EnrollmentActive).
		Find(&leads).Error
	return leads, err
}

// CreateEnrollment inserts an active enrollment. It returns false without an
// error when the partial unique index rejects a concurrent double-enroll.
func (s *Store) CreateEnrollment(enrollment *models.Enrollment) (bool, error) {
	err := s.db.Create(enrollment).Error
	if err == nil {
		return true, nil
	}
	if isDuplicateKey(err) {
		return false, nil
	}
	return false, err
}

// FindDueEnrollments returns active enrollments of a sequence whose next step
// is due at or before now.
func (s *Store) FindDueEnrollments(sequenceID uint, now time.Time) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := s.db.
		Where("sequence_id = ? AND status = ?", sequenceID, models.EnrollmentActive).
		Where("next_step_due_at IS NOT NULL AND next_step_due_at <= ?", now).
		Order("next_step_due_at").
		Find(&enrollments).Error
	return enrollments, err
}

// AdvanceEnrollment moves an active enrollment to the next step
func (s *Store) AdvanceEnrollment(enrollmentID uint, nextIndex int, dueAt time.Time) error {
	return s.db.Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", enrollmentID, models.EnrollmentActive).
		Updates(map[string]interface{}{
			"current_step_index": nextIndex,
			"next_step_due_at":   dueAt,
		}).Error
}

// CompleteEnrollment marks an enrollment completed after its last step
func (s *Store) CompleteEnrollment(enrollmentID uint) error {
	return s.db.Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", enrollmentID, models.EnrollmentActive).
		Updates(map[string]interface{}{
			"status":           models.EnrollmentCompleted,
			"next_step_due_at": nil,
		}).Error
}

// SequenceWithSteps loads a sequence with its steps ordered by step number
func (s *Store) SequenceWithSteps(sequenceID uint) (*models.Sequence, error) {
	var sequence models.Sequence
	err := s.db.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_number")
		}).
		First(&sequence, sequenceID).Error
	if err != nil {
		return nil, err
	}
	return &sequence, nil
}

// GetLead loads one lead by ID
func (s *Store) GetLead(leadID uint) (*models.Lead, error) {
	var lead models.Lead
	if err := s.db.First(&lead, leadID).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

// CreateTrackedEmail persists one dispatched email and bumps the step's sent
// counter.
func (s *Store) CreateTrackedEmail(email *models.TrackedEmail) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(email).Error; err != nil {
			return err
		}
		if email.SequenceStepID == nil {
			return nil
		}
		return tx.Model(&models.SequenceStep{}).
			Where("id = ?", *email.SequenceStepID).
			Update("sent_count", gorm.Expr("sent_count + 1")).Error
	})
}

// FindTrackedEmailByToken resolves an opaque tracking token
func (s *Store) FindTrackedEmailByToken(token string) (*models.TrackedEmail, error) {
	var email models.TrackedEmail
	err := s.db.Where("tracking_token = ?", token).First(&email).Error
	if err != nil {
		return nil, err
	}
	return &email, nil
}

// RecordOpen stamps the first open and counts repeats. It returns true only
// for the first open of the token, which is the only one that should trigger
// a score recompute.
func (s *Store) RecordOpen(email *models.TrackedEmail, at time.Time) (bool, error) {
	first := email.OpenedAt == nil

	updates := map[string]interface{}{
		"open_count": gorm.Expr("open_count + 1"),
	}
	if first {
		updates["opened_at"] = at
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.TrackedEmail{}).
			Where("id = ?", email.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		return touchEngagement(tx, email.LeadID, at)
	})
	return first, err
}

// RecordClick inserts a deduplicated click event for (email, url). Replays of
// the same tracking URL bump the counter instead of inserting a second row;
// the bool reports whether the URL was new for this email.
func (s *Store) RecordClick(email *models.TrackedEmail, url string, at time.Time) (bool, error) {
	created := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		event := models.ClickEvent{
			TrackedEmailID: email.ID,
			URL:            url,
			ClickedAt:      at,
			Count:          1,
		}
		if err := tx.Create(&event).Error; err != nil {
			if !isDuplicateKey(err) {
				return err
			}
			if err := tx.Model(&models.ClickEvent{}).
				Where("tracked_email_id = ? AND url = ?", email.ID, url).
				Update("count", gorm.Expr("count + 1")).Error; err != nil {
				return err
			}
		} else {
			created = true
		}
		return touchEngagement(tx, email.LeadID, at)
	})
	return created, err
}

func touchEngagement(tx *gorm.DB, leadID uint, at time.Time) error {
	return tx.Model(&models.Lead{}).
		Where("id = ?", leadID).
		Where("last_engagement_at IS NULL OR last_engagement_at < ?", at).
		Update("last_engagement_at", at).Error
}

// TouchEngagement stamps a lead's last engagement, keeping it monotonic
func (s *Store) TouchEngagement(leadID uint, at time.Time) error {
	return touchEngagement(s.db, leadID, at)
}

// EngagementCounters returns the deduplicated engagement signals for a lead:
// the number of distinct URLs clicked and whether any tracked email was
// opened.
func (s *Store) EngagementCounters(leadID uint) (distinctClicks int, opened bool, err error) {
	var clicks int64
	err = s.db.Model(&models.ClickEvent{}).
		Joins("JOIN tracked_emails ON tracked_emails.id = click_events.tracked_email_id").
		Where("tracked_emails.lead_id = ?", leadID).
		Distinct("click_events.url").
		Count(&clicks).Error
	if err != nil {
		return 0, false, err
	}

	var openedEmails int64
	err = s.db.Model(&models.TrackedEmail{}).
		Where("lead_id = ? AND opened_at IS NOT NULL", leadID).
		Count(&openedEmails).Error
	if err != nil {
		return 0, false, err
	}

	return int(clicks), openedEmails > 0, nil
}

// RecalculateLeadScore recomputes and persists a lead's score from its
// current attributes and deduplicated engagement counters. The result is
// idempotent: with no new events the score does not move.
func (s *Store) RecalculateLeadScore(leadID uint) (int, error) {
	lead, err := s.GetLead(leadID)
	if err != nil {
		return 0, err
	}

	clicks, opened, err := s.EngagementCounters(leadID)
	if err != nil {
		return 0, err
	}

	score := utils.CalculateLeadScore(utils.ScoreInput{
		CompanySize:    lead.CompanySize,
		Phone:          lead.Phone,
		Position:       lead.Position,
		Website:        lead.Website,
		FirstName:      lead.FirstName,
		LastName:       lead.LastName,
		Company:        lead.Company,
		Source:         lead.Source,
		DistinctClicks: clicks,
		Opened:         opened,
	})

	if score == lead.Score {
		return score, nil
	}
	err = s.db.Model(&models.Lead{}).
		Where("id = ?", leadID).
		Update("score", score).Error
	return score, err
}

// ActiveWorkflows returns every workflow the scheduler should register
func (s *Store) ActiveWorkflows() ([]models.ReengagementWorkflow, error) {
	var workflows []models.ReengagementWorkflow
	err := s.db.Where("is_active = ?", true).Find(&workflows).Error
	return workflows, err
}

// GetWorkflow loads one workflow by ID
func (s *Store) GetWorkflow(workflowID uint) (*models.ReengagementWorkflow, error) {
	var workflow models.ReengagementWorkflow
	if err := s.db.First(&workflow, workflowID).Error; err != nil {
		return nil, err
	}
	return &workflow, nil
}

// AppendJobExecution records one run as a new row carrying the workflow's
// cumulative counters, and stamps the workflow's last run. Counters never
// reset.
func (s *Store) AppendJobExecution(result models.WorkflowExecutionResult) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var last models.JobExecution
		total, successful, failed := 0, 0, 0
		err := tx.Where("workflow_id = ?", result.WorkflowID).
			Order("id DESC").
			First(&last).Error
		if err == nil {
			total = last.TotalExecutions
			successful = last.SuccessfulExecutions
			failed = last.FailedExecutions
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		total++
		if result.Status == models.RunStatusFailed {
			failed++
		} else {
			successful++
		}

		execution := models.JobExecution{
			WorkflowID:           result.WorkflowID,
			TotalExecutions:      total,
			SuccessfulExecutions: successful,
			FailedExecutions:     failed,
			StartedAt:            result.ExecutedAt,
			Status:               result.Status,
			ErrorMessage:         result.ErrorMessage,
			DurationMS:           result.Duration.Milliseconds(),
		}
		if err := tx.Create(&execution).Error; err != nil {
			return err
		}

		return tx.Model(&models.ReengagementWorkflow{}).
			Where("id = ?", result.WorkflowID).
			Update("last_run_at", result.ExecutedAt).Error
	})
}

// LatestExecution returns the most recent run record for a workflow, nil when
// it never ran.
func (s *Store) LatestExecution(workflowID uint) (*models.JobExecution, error) {
	var execution models.JobExecution
	err := s.db.Where("workflow_id = ?", workflowID).
		Order("id DESC").
		First(&execution).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &execution, nil
}

// NotificationPreferencesFor returns the owner's preferences, defaulting to
// per-run notifications on every status when none were saved yet.
func (s *Store) NotificationPreferencesFor(userID uint) (models.NotificationPreferences, error) {
	var prefs models.NotificationPreferences
	err := s.db.Where("user_id = ?", userID).First(&prefs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NotificationPreferences{
			UserID:    userID,
			Enabled:   true,
			OnSuccess: true,
			OnFailure: true,
			OnPartial: true,
		}, nil
	}
	return prefs, err
}

// StatusChangeSequences returns the owner's sequences enrolled by lead status
// transitions.
func (s *Store) StatusChangeSequences(userID uint) ([]models.Sequence, error) {
	var sequences []models.Sequence
	err := s.db.Where("user_id = ? AND trigger_type = ?", userID, models.TriggerStatusChange).
		Find(&sequences).Error
	return sequences, err
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint")
}
