package worker

import (
	"context"
	"time"

	"leadpulse/models"
	"leadpulse/utils"

	"github.com/sirupsen/logrus"
)

// DetectorStore is the slice of the store the detector needs
type DetectorStore interface {
	FindInactiveLeads(userID, sequenceID uint, cutoff time.Time) ([]models.Lead, error)
	CreateEnrollment(enrollment *models.Enrollment) (bool, error)
}

// Detector scans a workflow's leads for inactivity and enrolls the matches
// into the workflow's target sequence.
type Detector struct {
	store DetectorStore
}

func NewDetector(store DetectorStore) *Detector {
	return &Detector{store: store}
}

// Detect returns how many leads matched the inactivity threshold and how many
// were actually enrolled. The two can differ when a concurrent run already
// enrolled a lead; the unique index rejects the second insert and the lead is
// counted as detected but not enrolled.
func (d *Detector) Detect(ctx context.Context, workflow models.ReengagementWorkflow, now time.Time) (detected, enrolled int, err error) {
	cutoff := now.AddDate(0, 0, -workflow.InactivityDays)

	leads, err := d.store.FindInactiveLeads(workflow.UserID, workflow.SequenceID, cutoff)
	if err != nil {
		return 0, 0, &DetectionError{Err: err}
	}

	detected = len(leads)
	for _, lead := range leads {
		if ctx.Err() != nil {
			return detected, enrolled, ctx.Err()
		}

		enrollment := models.Enrollment{
			LeadID:              lead.ID,
			SequenceID:          workflow.SequenceID,
			Status:              models.EnrollmentActive,
			CurrentStepIndex:    0,
			NextStepDueAt:       utils.Pointer(now),
			CreatedByWorkflowID: utils.Pointer(workflow.ID),
		}

		created, err := d.store.CreateEnrollment(&enrollment)
		if err != nil {
			logrus.Errorf("Failed to enroll lead %d in sequence %d: %v", lead.ID, workflow.SequenceID, err)
			continue
		}
		if !created {
			logrus.Debugf("Lead %d already actively enrolled in sequence %d, skipping", lead.ID, workflow.SequenceID)
			continue
		}
		enrolled++
	}

	return detected, enrolled, nil
}
