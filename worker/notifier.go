package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"leadpulse/models"
	"leadpulse/utils"

	"github.com/sirupsen/logrus"
)

// notifySendTimeout bounds one notification send; owner mail is best effort
// and must never hang the caller.
const notifySendTimeout = 30 * time.Second

// NotificationPort is the narrow messaging contract the engine depends on.
// Notify reports delivery as a boolean; it must never panic or propagate
// transport errors.
type NotificationPort interface {
	Notify(recipient, title, content string) bool
}

// PreferencesStore resolves an owner's notification preferences
type PreferencesStore interface {
	NotificationPreferencesFor(userID uint) (models.NotificationPreferences, error)
}

// EmailNotifier adapts EmailSender to the NotificationPort contract
type EmailNotifier struct {
	sender utils.EmailSender
}

func NewEmailNotifier(sender utils.EmailSender) *EmailNotifier {
	return &EmailNotifier{sender: sender}
}

func (n *EmailNotifier) Notify(recipient, title, content string) bool {
	if recipient == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifySendTimeout)
	defer cancel()

	if err := n.sender.Send(ctx, utils.Email{
		To:      recipient,
		Subject: title,
		Body:    content,
	}); err != nil {
		logrus.Errorf("Notification to %s failed: %v", recipient, err)
		return false
	}
	return true
}

// NotificationDispatcher formats and delivers run summaries to workflow
// owners, honoring their preferences. In batch mode results accumulate until
// FlushBatches emits one aggregate summary per recipient.
type NotificationDispatcher struct {
	port  NotificationPort
	prefs PreferencesStore

	mu      sync.Mutex
	batches map[string][]models.WorkflowExecutionResult
}

func NewNotificationDispatcher(port NotificationPort, prefs PreferencesStore) *NotificationDispatcher {
	return &NotificationDispatcher{
		port:    port,
		prefs:   prefs,
		batches: make(map[string][]models.WorkflowExecutionResult),
	}
}

// Dispatch reports one run to its owner. It returns whether a notification
// went out; suppressed and batched runs return false without being an error.
func (nd *NotificationDispatcher) Dispatch(userID uint, result models.WorkflowExecutionResult) bool {
	prefs, err := nd.prefs.NotificationPreferencesFor(userID)
	if err != nil {
		logrus.Errorf("Failed to load notification preferences for user %d: %v", userID, err)
		return false
	}

	if !prefs.Enabled || !wantsStatus(prefs, result.Status) {
		return false
	}

	if prefs.BatchNotifications {
		nd.mu.Lock()
		nd.batches[prefs.Recipient] = append(nd.batches[prefs.Recipient], result)
		nd.mu.Unlock()
		return false
	}

	title := fmt.Sprintf("Workflow %q finished: %s", result.WorkflowName, result.Status)
	return nd.port.Notify(prefs.Recipient, title, formatRunSummary(result))
}

// FlushBatches emits one summary per recipient with everything accumulated
// since the previous flush.
func (nd *NotificationDispatcher) FlushBatches() {
	nd.mu.Lock()
	pending := nd.batches
	nd.batches = make(map[string][]models.WorkflowExecutionResult)
	nd.mu.Unlock()

	for recipient, results := range pending {
		if len(results) == 0 {
			continue
		}
		title := fmt.Sprintf("Workflow summary: %d runs", len(results))
		nd.port.Notify(recipient, title, FormatBatchSummary(results))
	}
}

func wantsStatus(prefs models.NotificationPreferences, status string) bool {
	switch status {
	case models.RunStatusSuccess:
		return prefs.OnSuccess
	case models.RunStatusFailed:
		return prefs.OnFailure
	case models.RunStatusPartial:
		return prefs.OnPartial
	}
	return false
}

func formatRunSummary(result models.WorkflowExecutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2>", result.WorkflowName)
	fmt.Fprintf(&b, "<p>Status: <b>%s</b></p>", result.Status)
	fmt.Fprintf(&b, "<p>Leads detected: %d<br>Leads enrolled: %d<br>Success rate: %.1f%%</p>",
		result.LeadsDetected, result.LeadsEnrolled, result.SuccessRate())
	fmt.Fprintf(&b, "<p>Duration: %s</p>", result.Duration.Round(time.Second))
	if result.ErrorMessage != "" {
		fmt.Fprintf(&b, "<p>Error: %s</p>", result.ErrorMessage)
	}
	return b.String()
}

// FormatBatchSummary renders the aggregate message for a set of runs:
// per-status counts, summed lead totals and one line per workflow.
func FormatBatchSummary(results []models.WorkflowExecutionResult) string {
	var successful, failed, partial int
	var totalDetected, totalEnrolled int

	for _, r := range results {
		switch r.Status {
		case models.RunStatusSuccess:
			successful++
		case models.RunStatusFailed:
			failed++
		case models.RunStatusPartial:
			partial++
		}
		totalDetected += r.LeadsDetected
		totalEnrolled += r.LeadsEnrolled
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Workflow run summary</h2>")
	fmt.Fprintf(&b, "<p>%d workflows ran: %d successful, %d failed, %d partial</p>",
		len(results), successful, failed, partial)
	fmt.Fprintf(&b, "<p>Total leads detected: %d<br>Total leads enrolled: %d</p>",
		totalDetected, totalEnrolled)
	b.WriteString("<ul>")
	for _, r := range results {
		fmt.Fprintf(&b, "<li>%s: %s, detected %d, enrolled %d</li>",
			r.WorkflowName, r.Status, r.LeadsDetected, r.LeadsEnrolled)
	}
	b.WriteString("</ul>")
	return b.String()
}
