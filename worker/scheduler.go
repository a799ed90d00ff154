package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"leadpulse/models"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// batchFlushSpec drains accumulated batch notifications once an hour
const batchFlushSpec = "0 * * * *"

// SchedulerStore is the slice of the store the scheduler needs
type SchedulerStore interface {
	ActiveWorkflows() ([]models.ReengagementWorkflow, error)
	GetWorkflow(workflowID uint) (*models.ReengagementWorkflow, error)
	AppendJobExecution(result models.WorkflowExecutionResult) error
}

// ValidateCronExpr checks a standard 5-field cron expression. Workflows are
// rejected at save time, so the scheduler itself never sees a bad schedule.
func ValidateCronExpr(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return &SchedulingError{Expr: expr, Err: err}
	}
	return nil
}

// Scheduler drives workflow runs from their cron schedules. Runs of different
// workflows may overlap; two runs of the same workflow never do. A
// per-workflow advisory lock skips the tick instead of queueing it.
type Scheduler struct {
	cron       *cron.Cron
	store      SchedulerStore
	executor   *WorkflowExecutor
	notifier   *NotificationDispatcher
	runTimeout time.Duration

	mu         sync.Mutex
	isRunning  bool
	entries    map[uint]cron.EntryID
	flushEntry cron.EntryID
	locks      map[uint]*atomic.Bool
	wg         sync.WaitGroup
}

func NewScheduler(store SchedulerStore, executor *WorkflowExecutor, notifier *NotificationDispatcher, runTimeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		store:      store,
		executor:   executor,
		notifier:   notifier,
		runTimeout: runTimeout,
		entries:    make(map[uint]cron.EntryID),
		locks:      make(map[uint]*atomic.Bool),
	}
}

// Start registers every active workflow and begins ticking
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if err := s.registerWorkflows(); err != nil {
		return err
	}

	if s.flushEntry == 0 {
		entryID, err := s.cron.AddFunc(batchFlushSpec, s.notifier.FlushBatches)
		if err != nil {
			return fmt.Errorf("failed to schedule batch flush: %w", err)
		}
		s.flushEntry = entryID
	}

	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with %d workflows", len(s.entries))
	return nil
}

// Stop stops ticking and waits for in-flight runs to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	ctx := s.cron.Stop()
	s.isRunning = false
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	// Manual runs bypass cron, so wait for those too. The mutex is released
	// first; a run blocked in lockFor must be able to proceed and finish.
	s.wg.Wait()
	return nil
}

// IsRunning returns whether the scheduler is ticking
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Reload re-registers workflows after a create/update/delete
func (s *Scheduler) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	return s.registerWorkflows()
}

// registerWorkflows drops existing entries and adds one per active workflow.
// Callers hold s.mu.
func (s *Scheduler) registerWorkflows() error {
	for workflowID, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, workflowID)
	}

	workflows, err := s.store.ActiveWorkflows()
	if err != nil {
		return fmt.Errorf("failed to load active workflows: %w", err)
	}

	for _, workflow := range workflows {
		workflowID := workflow.ID
		entryID, err := s.cron.AddFunc(workflow.CronExpr, func() {
			s.RunWorkflow(workflowID)
		})
		if err != nil {
			// Save-time validation should make this unreachable.
			logrus.Errorf("Skipping workflow %d with invalid schedule %q: %v",
				workflow.ID, workflow.CronExpr, err)
			continue
		}
		s.entries[workflowID] = entryID
	}
	return nil
}

// RunWorkflow executes one run of one workflow, exactly once per due tick.
// It is also the entry point for the manual run-now endpoint.
func (s *Scheduler) RunWorkflow(workflowID uint) {
	s.wg.Add(1)
	defer s.wg.Done()

	lock := s.lockFor(workflowID)
	if !lock.CompareAndSwap(false, true) {
		logrus.Warnf("Workflow %d still running, skipping this tick", workflowID)
		return
	}
	defer lock.Store(false)

	workflow, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		logrus.Errorf("Failed to load workflow %d: %v", workflowID, err)
		return
	}
	if !workflow.IsActive {
		logrus.Debugf("Workflow %d deactivated since scheduling, skipping", workflowID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	logrus.Infof("Running workflow %d (%s)", workflow.ID, workflow.Name)
	result := s.executor.Run(ctx, *workflow)

	if err := s.store.AppendJobExecution(result); err != nil {
		logrus.Errorf("Failed to record execution of workflow %d: %v", workflow.ID, err)
	}

	if result.Status == models.RunStatusFailed {
		logrus.Errorf("Workflow %d run failed: %s", workflow.ID, result.ErrorMessage)
		sentry.CaptureMessage(fmt.Sprintf("workflow %d failed: %s", workflow.ID, result.ErrorMessage))
	} else {
		logrus.Infof("Workflow %d run %s: detected %d, enrolled %d in %v",
			workflow.ID, result.Status, result.LeadsDetected, result.LeadsEnrolled, result.Duration)
	}

	s.notifier.Dispatch(workflow.UserID, result)
}

// Wait blocks until in-flight runs complete
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) lockFor(workflowID uint) *atomic.Bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[workflowID]
	if !ok {
		lock = &atomic.Bool{}
		s.locks[workflowID] = lock
	}
	return lock
}
