package controller

import (
	"errors"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"reachflow/models"
	"reachflow/store"
	"reachflow/utils"
)

type ProspectController struct {
	Store  store.Store
	Logger *logrus.Logger
}

func NewProspectController(st store.Store, logger *logrus.Logger) *ProspectController {
	return &ProspectController{
		Store:  st,
		Logger: logger,
	}
}

func (pc *ProspectController) CreateProspect(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)

	var input struct {
		Email      string `json:"email"`
		Phone      string `json:"phone"`
		ProfileURL string `json:"profile_url"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		Company    string `json:"company"`
		Position   string `json:"position"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Email == "" && input.Phone == "" && input.ProfileURL == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "At least one contact field is required", nil)
	}
	if input.Email != "" {
		if err := checkmail.ValidateFormat(input.Email); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", err)
		}
	}

	prospect := &models.Prospect{
		TenantID:   tenantID,
		Email:      input.Email,
		Phone:      input.Phone,
		ProfileURL: input.ProfileURL,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		Company:    input.Company,
		Position:   input.Position,
	}
	if err := pc.Store.SaveProspect(prospect); err != nil {
		pc.Logger.WithError(err).Error("Failed to create prospect")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create prospect", nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(prospect))
}

func (pc *ProspectController) GetProspect(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	id := utils.ParseUint(c.Params("id"))

	prospect, err := pc.Store.GetProspect(tenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Prospect not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch prospect", nil)
	}
	return c.JSON(utils.SuccessResponse(prospect))
}

// MarkDoNotContact flags a prospect so future enrollments are rejected.
// Existing enrollments are unenrolled through the enrollment endpoint.
func (pc *ProspectController) MarkDoNotContact(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	id := utils.ParseUint(c.Params("id"))

	prospect, err := pc.Store.GetProspect(tenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Prospect not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch prospect", nil)
	}

	prospect.IsDoNotContact = true
	if err := pc.Store.SaveProspect(prospect); err != nil {
		pc.Logger.WithError(err).Error("Failed to update prospect")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update prospect", nil)
	}

	pc.Logger.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"prospect_id": prospect.ID,
	}).Info("Prospect marked do-not-contact")

	return c.JSON(utils.SuccessResponse(prospect))
}
