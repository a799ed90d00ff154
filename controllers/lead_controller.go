package controller

import (
	"log"
	"time"

	"leadpulse/models"
	"leadpulse/store"
	"leadpulse/utils"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LeadController struct {
	DB     *gorm.DB
	Store  *store.Store
	Logger *log.Logger
}

func NewLeadController(s *store.Store, logger *log.Logger) *LeadController {
	return &LeadController{
		DB:     s.DB(),
		Store:  s,
		Logger: logger,
	}
}

type LeadInput struct {
	Email       string `json:"email" validate:"required,email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Company     string `json:"company"`
	Position    string `json:"position"`
	Phone       string `json:"phone"`
	Website     string `json:"website"`
	CompanySize int    `json:"company_size" validate:"min=0"`
	Source      string `json:"source"`
}

// CreateLead creates a new lead for the requesting owner
func (lc *LeadController) CreateLead(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var input LeadInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", err)
	}

	lead := models.Lead{
		UserID:      userID,
		Email:       input.Email,
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Company:     input.Company,
		Position:    input.Position,
		Phone:       input.Phone,
		Website:     input.Website,
		CompanySize: input.CompanySize,
		Source:      input.Source,
		Status:      models.LeadStatusNew,
	}
	lead.Score = utils.CalculateLeadScore(scoreInputFor(lead, 0, false))

	if err := lc.DB.Create(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create lead", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(lead))
}

// GetLeads lists the owner's leads with pagination
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := lc.DB.Model(&models.Lead{}).Where("user_id = ?", userID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count leads", err)
	}

	var leads []models.Lead
	if err := query.Order("id").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&leads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leads", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  leads,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetLead returns one lead with its status history
func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var lead models.Lead
	if err := lc.DB.Preload("StatusChanges").
		Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	return c.JSON(utils.SuccessResponse(lead))
}

// UpdateLead updates a lead's attributes and recomputes its score
func (lc *LeadController) UpdateLead(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var lead models.Lead
	if err := lc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	var input LeadInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", err)
	}

	lead.Email = input.Email
	lead.FirstName = input.FirstName
	lead.LastName = input.LastName
	lead.Company = input.Company
	lead.Position = input.Position
	lead.Phone = input.Phone
	lead.Website = input.Website
	lead.CompanySize = input.CompanySize
	lead.Source = input.Source

	if err := lc.DB.Save(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update lead", err)
	}

	// Attribute edits move the score too, not just engagement.
	if _, err := lc.Store.RecalculateLeadScore(lead.ID); err != nil {
		lc.Logger.Printf("Failed to recalculate score for lead %d: %v", lead.ID, err)
	}

	return c.JSON(utils.SuccessResponse(lead))
}

// DeleteLead soft-deletes a lead
func (lc *LeadController) DeleteLead(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	result := lc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		Delete(&models.Lead{})
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete lead", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"deleted": true}))
}

type StatusChangeInput struct {
	Status string `json:"status" validate:"required"`
}

// ChangeLeadStatus transitions a lead's status. The transition is recorded in
// the append-only history, counts as engagement, and enrolls the lead into
// the owner's status_change sequences when it moves into contacted or
// qualified.
func (lc *LeadController) ChangeLeadStatus(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var input StatusChangeInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if !models.ValidLeadStatus(input.Status) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown lead status", nil)
	}

	var lead models.Lead
	if err := lc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	if lead.Status == input.Status {
		return c.JSON(utils.SuccessResponse(lead))
	}

	now := time.Now()
	change := models.LeadStatusChange{
		LeadID:     lead.ID,
		FromStatus: lead.Status,
		ToStatus:   input.Status,
		ChangedAt:  now,
	}

	err := lc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&change).Error; err != nil {
			return err
		}
		return tx.Model(&lead).Updates(map[string]interface{}{
			"status":             input.Status,
			"last_engagement_at": now,
		}).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to change status", err)
	}

	lead.Status = input.Status
	lead.LastEngagementAt = &now

	if input.Status == models.LeadStatusContacted || input.Status == models.LeadStatusQualified {
		lc.enrollInStatusChangeSequences(userID, lead.ID, now)
	}

	return c.JSON(utils.SuccessResponse(lead))
}

func (lc *LeadController) enrollInStatusChangeSequences(userID, leadID uint, now time.Time) {
	sequences, err := lc.Store.StatusChangeSequences(userID)
	if err != nil {
		lc.Logger.Printf("Failed to load status_change sequences: %v", err)
		return
	}

	for _, sequence := range sequences {
		enrollment := models.Enrollment{
			LeadID:           leadID,
			SequenceID:       sequence.ID,
			Status:           models.EnrollmentActive,
			CurrentStepIndex: 0,
			NextStepDueAt:    utils.Pointer(now),
		}
		created, err := lc.Store.CreateEnrollment(&enrollment)
		if err != nil {
			lc.Logger.Printf("Failed to enroll lead %d in sequence %d: %v", leadID, sequence.ID, err)
			continue
		}
		if created {
			lc.Logger.Printf("Enrolled lead %d in status_change sequence %d", leadID, sequence.ID)
		}
	}
}

// RecalculateScore recomputes a lead's score on demand
func (lc *LeadController) RecalculateScore(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var lead models.Lead
	if err := lc.DB.Where("id = ? AND user_id = ?", c.Params("id"), userID).
		First(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	score, err := lc.Store.RecalculateLeadScore(lead.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to recalculate score", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"id": lead.ID, "score": score}))
}

func scoreInputFor(lead models.Lead, distinctClicks int, opened bool) utils.ScoreInput {
	return utils.ScoreInput{
		CompanySize:    lead.CompanySize,
		Phone:          lead.Phone,
		Position:       lead.Position,
		Website:        lead.Website,
		FirstName:      lead.FirstName,
		LastName:       lead.LastName,
		Company:        lead.Company,
		Source:         lead.Source,
		DistinctClicks: distinctClicks,
		Opened:         opened,
	}
}
