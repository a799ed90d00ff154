package controller

import (
	"errors"
	"log"

	"leadpulse/models"
	"leadpulse/store"
	"leadpulse/utils"
	"leadpulse/worker"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type WorkflowController struct {
	DB        *gorm.DB
	Store     *store.Store
	Scheduler *worker.Scheduler
	Logger    *log.Logger
}

func NewWorkflowController(s *store.Store, scheduler *worker.Scheduler, logger *log.Logger) *WorkflowController {
	return &WorkflowController{
		DB:        s.DB(),
		Store:     s,
		Scheduler: scheduler,
		Logger:    logger,
	}
}

type WorkflowInput struct {
	Name           string `json:"name" validate:"required"`
	InactivityDays int    `json:"inactivity_days" validate:"required,min=1"`
	SequenceID     uint   `json:"sequence_id" validate:"required"`
	CronExpr       string `json:"cron_expr" validate:"required"`
	IsActive       *bool  `json:"is_active"`
}

// CreateWorkflow saves a re-engagement workflow. The cron expression is
// validated here, at configuration time; an invalid one never reaches the
// scheduler.
func (wc *WorkflowController) CreateWorkflow(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var input WorkflowInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := worker.ValidateCronExpr(input.CronExpr); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid cron expression", err)
	}

	var sequence models.Sequence
	if err := wc.DB.Where("id = ? AND user_id = ?", input.SequenceID, userID).
		First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Target sequence not found", nil)
	}

	workflow := models.ReengagementWorkflow{
		UserID:         userID,
		Name:           input.Name,
		InactivityDays: input.InactivityDays,
		SequenceID:     input.SequenceID,
		CronExpr:       input.CronExpr,
		IsActive:       input.IsActive == nil || *input.IsActive,
	}

	if err := wc.DB.Create(&workflow).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create workflow", err)
	}

	wc.reloadScheduler()
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(workflow))
}

// GetWorkflows lists the owner's workflows
func (wc *WorkflowController) GetWorkflows(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var workflows []models.ReengagementWorkflow
	if err := wc.DB.Where("user_id = ?", userID).Find(&workflows).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch workflows", err)
	}

	return c.JSON(utils.SuccessResponse(workflows))
}

// GetWorkflow returns one workflow
func (wc *WorkflowController) GetWorkflow(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var workflow models.ReengagementWorkflow
	if err := wc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&workflow).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Workflow not found", nil)
	}

	return c.JSON(utils.SuccessResponse(workflow))
}

// UpdateWorkflow edits a workflow, revalidating the schedule
func (wc *WorkflowController) UpdateWorkflow(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var workflow models.ReengagementWorkflow
	if err := wc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&workflow).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Workflow not found", nil)
	}

	var input WorkflowInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := worker.ValidateCronExpr(input.CronExpr); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid cron expression", err)
	}

	var sequence models.Sequence
	if err := wc.DB.Where("id = ? AND user_id = ?", input.SequenceID, userID).
		First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Target sequence not found", nil)
	}

	workflow.Name = input.Name
	workflow.InactivityDays = input.InactivityDays
	workflow.SequenceID = input.SequenceID
	workflow.CronExpr = input.CronExpr
	if input.IsActive != nil {
		workflow.IsActive = *input.IsActive
	}

	if err := wc.DB.Save(&workflow).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update workflow", err)
	}

	wc.reloadScheduler()
	return c.JSON(utils.SuccessResponse(workflow))
}

// DeleteWorkflow removes a workflow. Enrollments it already created stay
// untouched; deletion only stops new ones.
func (wc *WorkflowController) DeleteWorkflow(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	result := wc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		Delete(&models.ReengagementWorkflow{})
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete workflow", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Workflow not found", nil)
	}

	wc.reloadScheduler()
	return c.JSON(utils.SuccessResponse(fiber.Map{"deleted": true}))
}

// RunWorkflow triggers one run immediately, through the same advisory lock
// the scheduler uses, so a manual run cannot overlap a scheduled one.
func (wc *WorkflowController) RunWorkflow(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var workflow models.ReengagementWorkflow
	if err := wc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&workflow).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Workflow not found", nil)
	}

	go wc.Scheduler.RunWorkflow(workflow.ID)

	return c.Status(fiber.StatusAccepted).JSON(utils.SuccessResponse(fiber.Map{
		"message": "Workflow run started",
	}))
}

// GetExecutions lists a workflow's run history, newest first
func (wc *WorkflowController) GetExecutions(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var workflow models.ReengagementWorkflow
	if err := wc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&workflow).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Workflow not found", nil)
	}

	var executions []models.JobExecution
	if err := wc.DB.Where("workflow_id = ?", workflow.ID).
		Order("id DESC").
		Limit(100).
		Find(&executions).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch executions", err)
	}

	return c.JSON(utils.SuccessResponse(executions))
}

type JobStatsRow struct {
	WorkflowID           uint    `json:"workflow_id"`
	WorkflowName         string  `json:"workflow_name"`
	IsActive             bool    `json:"is_active"`
	TotalExecutions      int     `json:"total_executions"`
	SuccessfulExecutions int     `json:"successful_executions"`
	FailedExecutions     int     `json:"failed_executions"`
	SuccessRate          float64 `json:"success_rate"`
	ProgressWidth        int     `json:"progress_width"`
}

type JobStats struct {
	TotalJobs            int           `json:"total_jobs"`
	ActiveJobs           int           `json:"active_jobs"`
	TotalExecutions      int           `json:"total_executions"`
	SuccessfulExecutions int           `json:"successful_executions"`
	FailedExecutions     int           `json:"failed_executions"`
	SuccessRate          float64       `json:"success_rate"`
	Jobs                 []JobStatsRow `json:"jobs"`
}

// GetJobStats is the read-only job statistics surface: per-workflow
// cumulative counters plus the aggregate success rate to one decimal.
func (wc *WorkflowController) GetJobStats(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var workflows []models.ReengagementWorkflow
	if err := wc.DB.Where("user_id = ?", userID).Find(&workflows).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch workflows", err)
	}

	stats := JobStats{
		TotalJobs: len(workflows),
		Jobs:      make([]JobStatsRow, 0, len(workflows)),
	}

	for _, workflow := range workflows {
		if workflow.IsActive {
			stats.ActiveJobs++
		}

		row := JobStatsRow{
			WorkflowID:   workflow.ID,
			WorkflowName: workflow.Name,
			IsActive:     workflow.IsActive,
		}

		latest, err := wc.Store.LatestExecution(workflow.ID)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch executions", err)
		}
		if latest != nil {
			row.TotalExecutions = latest.TotalExecutions
			row.SuccessfulExecutions = latest.SuccessfulExecutions
			row.FailedExecutions = latest.FailedExecutions
			if row.TotalExecutions > 0 {
				row.SuccessRate = utils.RoundRate(
					float64(row.SuccessfulExecutions) / float64(row.TotalExecutions) * 100)
			}
			row.ProgressWidth = utils.CalculateProgressWidth(row.SuccessfulExecutions, row.TotalExecutions)
		}

		stats.TotalExecutions += row.TotalExecutions
		stats.SuccessfulExecutions += row.SuccessfulExecutions
		stats.FailedExecutions += row.FailedExecutions
		stats.Jobs = append(stats.Jobs, row)
	}

	if stats.TotalExecutions > 0 {
		stats.SuccessRate = utils.RoundRate(
			float64(stats.SuccessfulExecutions) / float64(stats.TotalExecutions) * 100)
	}

	return c.JSON(utils.SuccessResponse(stats))
}

type PreferencesInput struct {
	Recipient          string `json:"recipient" validate:"omitempty,email"`
	Enabled            bool   `json:"enabled"`
	OnSuccess          bool   `json:"on_success"`
	OnFailure          bool   `json:"on_failure"`
	OnPartial          bool   `json:"on_partial"`
	BatchNotifications bool   `json:"batch_notifications"`
}

// GetNotificationPreferences returns the owner's preferences (defaults when
// none were saved).
func (wc *WorkflowController) GetNotificationPreferences(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	prefs, err := wc.Store.NotificationPreferencesFor(userID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch preferences", err)
	}
	return c.JSON(utils.SuccessResponse(prefs))
}

// UpdateNotificationPreferences upserts the owner's preferences
func (wc *WorkflowController) UpdateNotificationPreferences(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var input PreferencesInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var prefs models.NotificationPreferences
	err := wc.DB.Where("user_id = ?", userID).First(&prefs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prefs = models.NotificationPreferences{UserID: userID}
	} else if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch preferences", err)
	}

	prefs.Recipient = input.Recipient
	prefs.Enabled = input.Enabled
	prefs.OnSuccess = input.OnSuccess
	prefs.OnFailure = input.OnFailure
	prefs.OnPartial = input.OnPartial
	prefs.BatchNotifications = input.BatchNotifications

	if err := wc.DB.Save(&prefs).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save preferences", err)
	}

	return c.JSON(utils.SuccessResponse(prefs))
}

func (wc *WorkflowController) reloadScheduler() {
	if wc.Scheduler == nil {
		return
	}
	if err := wc.Scheduler.Reload(); err != nil {
		wc.Logger.Printf("Failed to reload scheduler: %v", err)
	}
}
