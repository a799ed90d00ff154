package controller

import (
	"log"
	"time"

	"leadpulse/models"
	"leadpulse/store"
	"leadpulse/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SequenceController struct {
	DB     *gorm.DB
	Store  *store.Store
	Logger *log.Logger
}

func NewSequenceController(s *store.Store, logger *log.Logger) *SequenceController {
	return &SequenceController{
		DB:     s.DB(),
		Store:  s,
		Logger: logger,
	}
}

type SequenceStepInput struct {
	DelayDays int    `json:"delay_days" validate:"min=0"`
	Subject   string `json:"subject" validate:"required"`
	Body      string `json:"body" validate:"required"`
}

type SequenceInput struct {
	Name        string              `json:"name" validate:"required"`
	Description string              `json:"description"`
	TriggerType string              `json:"trigger_type" validate:"required,oneof=manual status_change time_based"`
	Steps       []SequenceStepInput `json:"steps" validate:"min=1,dive"`
}

// CreateSequence creates a sequence with its ordered steps
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var input SequenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	sequence := models.Sequence{
		UserID:      userID,
		Name:        input.Name,
		Description: input.Description,
		TriggerType: input.TriggerType,
	}
	for i, step := range input.Steps {
		sequence.Steps = append(sequence.Steps, models.SequenceStep{
			StepNumber: i,
			DelayDays:  step.DelayDays,
			Subject:    step.Subject,
			Body:       step.Body,
		})
	}

	if err := sc.DB.Create(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(sequence))
}

// GetSequences lists the owner's sequences with their steps
func (sc *SequenceController) GetSequences(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var sequences []models.Sequence
	if err := sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_number")
	}).Where("user_id = ?", userID).Find(&sequences).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequences", err)
	}

	return c.JSON(utils.SuccessResponse(sequences))
}

// GetSequence returns one sequence with its steps
func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var sequence models.Sequence
	if err := sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_number")
	}).Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	return c.JSON(utils.SuccessResponse(sequence))
}

type AppendStepsInput struct {
	Steps []SequenceStepInput `json:"steps" validate:"min=1,dive"`
}

// AppendSteps adds steps to the end of a sequence. Existing steps are
// immutable once saved; append is the only allowed mutation.
func (sc *SequenceController) AppendSteps(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var sequence models.Sequence
	if err := sc.DB.Preload("Steps").
		Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	var input AppendStepsInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	next := len(sequence.Steps)
	var steps []models.SequenceStep
	for i, step := range input.Steps {
		steps = append(steps, models.SequenceStep{
			SequenceID: sequence.ID,
			StepNumber: next + i,
			DelayDays:  step.DelayDays,
			Subject:    step.Subject,
			Body:       step.Body,
		})
	}

	if err := sc.DB.Create(&steps).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to append steps", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(steps))
}

// DeleteSequence soft-deletes a sequence
func (sc *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	result := sc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		Delete(&models.Sequence{})
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete sequence", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"deleted": true}))
}

// EnrollLead is the manual trigger: it creates an active enrollment at step 0
// due immediately.
func (sc *SequenceController) EnrollLead(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var sequence models.Sequence
	if err := sc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	var lead models.Lead
	if err := sc.DB.Where("id = ? AND user_id = ?", c.Params("leadID"), userID).
		First(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	enrollment := models.Enrollment{
		LeadID:           lead.ID,
		SequenceID:       sequence.ID,
		Status:           models.EnrollmentActive,
		CurrentStepIndex: 0,
		NextStepDueAt:    utils.Pointer(time.Now()),
	}
	created, err := sc.Store.CreateEnrollment(&enrollment)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to enroll lead", err)
	}
	if !created {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Lead already actively enrolled in this sequence", nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(enrollment))
}

// GetEnrollments lists a sequence's enrollments
func (sc *SequenceController) GetEnrollments(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var sequence models.Sequence
	if err := sc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	var enrollments []models.Enrollment
	if err := sc.DB.Where("sequence_id = ?", sequence.ID).
		Order("id").
		Find(&enrollments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch enrollments", err)
	}

	return c.JSON(utils.SuccessResponse(enrollments))
}

// CancelEnrollment cancels one active enrollment
func (sc *SequenceController) CancelEnrollment(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var enrollment models.Enrollment
	err := sc.DB.
		Joins("JOIN sequences ON sequences.id = enrollments.sequence_id").
		Where("enrollments.id = ? AND sequences.user_id = ?", c.Params("enrollmentID"), userID).
		First(&enrollment).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	}
	if enrollment.Status != models.EnrollmentActive {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Enrollment is not active", nil)
	}

	if err := sc.DB.Model(&enrollment).Updates(map[string]interface{}{
		"status":           models.EnrollmentCanceled,
		"next_step_due_at": nil,
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to cancel enrollment", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"canceled": true}))
}
