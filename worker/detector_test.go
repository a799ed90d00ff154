package worker

import (
	"context"
	"testing"
	"time"

	"leadpulse/models"
	"leadpulse/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEnrollsInactiveLeads(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	sequence := seedSequence(t, s, 1, 2)
	workflow := seedWorkflow(t, s, 1, sequence.ID, 30)

	stale := seedLead(t, s, 1, "stale@example.com", utils.Pointer(now.AddDate(0, 0, -45)))
	seedLead(t, s, 1, "fresh@example.com", utils.Pointer(now.AddDate(0, 0, -5)))

	detector := NewDetector(s)
	detected, enrolled, err := detector.Detect(context.Background(), workflow, now)
	require.NoError(t, err)
	assert.Equal(t, 1, detected)
	assert.Equal(t, 1, enrolled)

	var enrollment models.Enrollment
	require.NoError(t, s.DB().Where("lead_id = ?", stale.ID).First(&enrollment).Error)
	assert.Equal(t, sequence.ID, enrollment.SequenceID)
	assert.Equal(t, models.EnrollmentActive, enrollment.Status)
	assert.Equal(t, 0, enrollment.CurrentStepIndex)
	require.NotNil(t, enrollment.CreatedByWorkflowID)
	assert.Equal(t, workflow.ID, *enrollment.CreatedByWorkflowID)
	require.NotNil(t, enrollment.NextStepDueAt, "first step must be due immediately")
}

func TestDetectNeverEngagedLeadMatches(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	sequence := seedSequence(t, s, 1, 1)
	workflow := seedWorkflow(t, s, 1, sequence.ID, 30)
	seedLead(t, s, 1, "never@example.com", nil)

	detector := NewDetector(s)
	detected, enrolled, err := detector.Detect(context.Background(), workflow, now)
	require.NoError(t, err)
	assert.Equal(t, 1, detected)
	assert.Equal(t, 1, enrolled)
}

func TestDetectThresholdIsStrict(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -30)

	sequence := seedSequence(t, s, 1, 1)
	workflow := seedWorkflow(t, s, 1, sequence.ID, 30)

	// Engaged exactly at the cutoff is not yet inactive.
	seedLead(t, s, 1, "edge@example.com", utils.Pointer(cutoff))
	seedLead(t, s, 1, "older@example.com", utils.Pointer(cutoff.Add(-time.Hour)))

	detector := NewDetector(s)
	detected, enrolled, err := detector.Detect(context.Background(), workflow, now)
	require.NoError(t, err)
	assert.Equal(t, 1, detected)
	assert.Equal(t, 1, enrolled)
}

func TestDetectSkipsOtherOwnersLeads(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	sequence := seedSequence(t, s, 1, 1)
	workflow := seedWorkflow(t, s, 1, sequence.ID, 30)
	seedLead(t, s, 2, "other@example.com", nil)

	detector := NewDetector(s)
	detected, _, err := detector.Detect(context.Background(), workflow, now)
	require.NoError(t, err)
	assert.Equal(t, 0, detected)
}

func TestDetectExcludesActivelyEnrolledLeads(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	sequence := seedSequence(t, s, 1, 2)
	workflow := seedWorkflow(t, s, 1, sequence.ID, 30)
	seedLead(t, s, 1, "stale@example.com", utils.Pointer(now.AddDate(0, 0, -45)))

	detector := NewDetector(s)

	detected, enrolled, err := detector.Detect(context.Background(), workflow, now)
	require.NoError(t, err)
	assert.Equal(t, 1, detected)
	assert.Equal(t, 1, enrolled)

	// A second scan must not touch the lead while its enrollment is active.
	detected, enrolled, err = detector.Detect(context.Background(), workflow, now)
	require.NoError(t, err)
	assert.Equal(t, 0, detected)
	assert.Equal(t, 0, enrolled)

	var count int64
	require.NoError(t, s.DB().Model(&models.Enrollment{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDetectReenrollsAfterCompletion(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	sequence := seedSequence(t, s, 1, 1)
	workflow := seedWorkflow(t, s, 1, sequence.ID, 30)
	lead := seedLead(t, s, 1, "stale@example.com", nil)

	done := models.Enrollment{
		LeadID:     lead.ID,
		SequenceID: sequence.ID,
		Status:     models.EnrollmentCompleted,
	}
	require.NoError(t, s.DB().Create(&done).Error)

	detector := NewDetector(s)
	detected, enrolled, err := detector.Detect(context.Background(), workflow, now)
	require.NoError(t, err)
	assert.Equal(t, 1, detected)
	assert.Equal(t, 1, enrolled)
}
