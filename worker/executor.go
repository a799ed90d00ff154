package worker

import (
	"context"
	"errors"
	"time"

	"leadpulse/models"
	"leadpulse/utils"

	"github.com/sirupsen/logrus"
)

// ExecutorStore is the slice of the store the step executor needs
type ExecutorStore interface {
	SequenceWithSteps(sequenceID uint) (*models.Sequence, error)
	FindDueEnrollments(sequenceID uint, now time.Time) ([]models.Enrollment, error)
	GetLead(leadID uint) (*models.Lead, error)
	AdvanceEnrollment(enrollmentID uint, nextIndex int, dueAt time.Time) error
	CompleteEnrollment(enrollmentID uint) error
	CreateTrackedEmail(email *models.TrackedEmail) error
}

// StepExecutor fires due sequence steps: it renders the step template,
// injects tracking, dispatches the email and advances the enrollment.
type StepExecutor struct {
	store   ExecutorStore
	sender  utils.EmailSender
	baseURL string
}

func NewStepExecutor(store ExecutorStore, sender utils.EmailSender, baseURL string) *StepExecutor {
	return &StepExecutor{
		store:   store,
		sender:  sender,
		baseURL: baseURL,
	}
}

// ExecuteDueSteps runs every due enrollment of one sequence. It returns how
// many dispatches were attempted and how many failed; a failed dispatch
// leaves its enrollment at the current step so the next due scan retries it.
func (se *StepExecutor) ExecuteDueSteps(ctx context.Context, sequenceID uint, now time.Time) (attempted, failed int, err error) {
	sequence, err := se.store.SequenceWithSteps(sequenceID)
	if err != nil {
		return 0, 0, err
	}
	if len(sequence.Steps) == 0 {
		return 0, 0, nil
	}

	due, err := se.store.FindDueEnrollments(sequenceID, now)
	if err != nil {
		return 0, 0, err
	}

	for _, enrollment := range due {
		if ctx.Err() != nil {
			return attempted, failed, ctx.Err()
		}

		attempted++
		if err := se.executeStep(ctx, sequence, enrollment, now); err != nil {
			failed++
			logrus.Errorf("Step dispatch failed: %v", err)
		}
	}

	return attempted, failed, nil
}

func (se *StepExecutor) executeStep(ctx context.Context, sequence *models.Sequence, enrollment models.Enrollment, now time.Time) error {
	idx := enrollment.CurrentStepIndex
	if idx >= len(sequence.Steps) {
		// Step list shrank out from under the enrollment; close it out.
		return se.store.CompleteEnrollment(enrollment.ID)
	}
	step := sequence.Steps[idx]

	lead, err := se.store.GetLead(enrollment.LeadID)
	if err != nil {
		return &DispatchError{EnrollmentID: enrollment.ID, Err: err}
	}

	if err := se.dispatch(ctx, step, *lead, enrollment, now); err != nil {
		return &DispatchError{EnrollmentID: enrollment.ID, Err: err}
	}

	if idx == len(sequence.Steps)-1 {
		return se.store.CompleteEnrollment(enrollment.ID)
	}

	next := sequence.Steps[idx+1]
	dueAt := now.AddDate(0, 0, next.DelayDays)
	return se.store.AdvanceEnrollment(enrollment.ID, idx+1, dueAt)
}

// dispatch renders, wraps in tracking and sends one step email. The tracked
// email row is only written after the transport accepted the message, so a
// send failure leaves no token behind.
func (se *StepExecutor) dispatch(ctx context.Context, step models.SequenceStep, lead models.Lead, enrollment models.Enrollment, now time.Time) error {
	subject, body, err := utils.RenderStepTemplate(step, lead)
	if err != nil {
		return err
	}

	token := utils.GenerateTrackingToken()
	trackedBody := utils.InjectTracking(body, se.baseURL, token)

	if err := se.sender.Send(ctx, utils.Email{
		To:      lead.Email,
		Subject: subject,
		Body:    trackedBody,
	}); err != nil {
		return err
	}

	email := models.TrackedEmail{
		LeadID:         lead.ID,
		EnrollmentID:   utils.Pointer(enrollment.ID),
		SequenceStepID: utils.Pointer(step.ID),
		Subject:        subject,
		Body:           trackedBody,
		SentAt:         now,
		TrackingToken:  token,
	}
	if err := se.store.CreateTrackedEmail(&email); err != nil {
		// The mail is out; losing the tracking row only loses telemetry.
		logrus.Errorf("Failed to persist tracked email for lead %d: %v", lead.ID, err)
	}
	return nil
}

// WorkflowExecutor orchestrates one run of one workflow: detect, execute due
// steps and classify the outcome.
type WorkflowExecutor struct {
	detector *Detector
	steps    *StepExecutor
}

func NewWorkflowExecutor(detector *Detector, steps *StepExecutor) *WorkflowExecutor {
	return &WorkflowExecutor{
		detector: detector,
		steps:    steps,
	}
}

// Run executes one workflow run and returns its result. The result is always
// usable, also when the run failed; the caller persists and reports it.
// Enrollments created by this run's detection are already due, so their first
// step fires within the same run.
func (we *WorkflowExecutor) Run(ctx context.Context, workflow models.ReengagementWorkflow) models.WorkflowExecutionResult {
	start := time.Now()
	result := models.WorkflowExecutionResult{
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		ExecutedAt:   start,
	}

	detected, enrolled, err := we.detector.Detect(ctx, workflow, start)
	result.LeadsDetected = detected
	result.LeadsEnrolled = enrolled
	if err != nil {
		result.Status = models.RunStatusFailed
		result.ErrorMessage = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	attempted, failed, err := we.steps.ExecuteDueSteps(ctx, workflow.SequenceID, start)
	result.Duration = time.Since(start)

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		result.Status = models.RunStatusFailed
		result.ErrorMessage = "workflow run timed out"
	case err != nil:
		result.Status = models.RunStatusFailed
		result.ErrorMessage = err.Error()
	case attempted > 0 && failed == attempted:
		result.Status = models.RunStatusFailed
		result.ErrorMessage = "all dispatches failed"
	case failed > 0 || enrolled < detected:
		result.Status = models.RunStatusPartial
	default:
		result.Status = models.RunStatusSuccess
	}

	return result
}
