package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"reachflow/engine"
	"reachflow/models"
	"reachflow/store"
	"reachflow/utils"
)

type EnrollmentController struct {
	Store  store.Store
	Engine *engine.Engine
	Logger *logrus.Logger
}

func NewEnrollmentController(st store.Store, eng *engine.Engine, logger *logrus.Logger) *EnrollmentController {
	return &EnrollmentController{
		Store:  st,
		Engine: eng,
		Logger: logger,
	}
}

func (ec *EnrollmentController) Enroll(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	sequenceID := utils.ParseUint(c.Params("id"))

	var input struct {
		ProspectID uint `json:"prospect_id" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	enrollment, err := ec.Engine.Enroll(c.Context(), tenantID, input.ProspectID, sequenceID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNotFound):
			return utils.ErrorResponse(c, fiber.StatusNotFound, err.Error(), nil)
		case errors.Is(err, engine.ErrInvalidState):
			return utils.ErrorResponse(c, fiber.StatusConflict, err.Error(), nil)
		default:
			ec.Logger.WithError(err).Error("Failed to enroll prospect")
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to enroll prospect", nil)
		}
	}

	ec.Logger.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"enrollment_id": enrollment.ID,
		"sequence_id":   sequenceID,
		"prospect_id":   input.ProspectID,
	}).Info("Prospect enrolled")

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(enrollment))
}

func (ec *EnrollmentController) Unenroll(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	sequenceID := utils.ParseUint(c.Params("id"))

	var input struct {
		ProspectID uint   `json:"prospect_id" validate:"required"`
		Reason     string `json:"reason" validate:"omitempty,oneof=manual replied converted unsubscribed bounced"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.Reason == "" {
		input.Reason = models.UnenrollReasonManual
	}

	if err := ec.Engine.Unenroll(c.Context(), tenantID, input.ProspectID, sequenceID, input.Reason); err != nil {
		switch {
		case errors.Is(err, engine.ErrNotFound):
			return utils.ErrorResponse(c, fiber.StatusNotFound, err.Error(), nil)
		case errors.Is(err, engine.ErrInvalidState):
			return utils.ErrorResponse(c, fiber.StatusConflict, err.Error(), nil)
		default:
			ec.Logger.WithError(err).Error("Failed to unenroll prospect")
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to unenroll prospect", nil)
		}
	}

	ec.Logger.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"sequence_id": sequenceID,
		"prospect_id": input.ProspectID,
		"reason":      input.Reason,
	}).Info("Prospect unenrolled")

	return c.JSON(utils.SuccessResponse(fiber.Map{"unenrolled": true}))
}

func (ec *EnrollmentController) GetEnrollment(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	id := utils.ParseUint(c.Params("id"))

	enrollment, err := ec.Store.GetEnrollment(tenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch enrollment", nil)
	}
	return c.JSON(utils.SuccessResponse(enrollment))
}

// TickEnrollment advances one enrollment on demand, outside the scheduled
// sweep. Useful for support tooling and manual retries.
func (ec *EnrollmentController) TickEnrollment(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	id := utils.ParseUint(c.Params("id"))

	if err := ec.Engine.ProcessNextStep(c.Context(), tenantID, id); err != nil {
		ec.Logger.WithError(err).WithField("enrollment_id", id).Error("Manual tick failed")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process enrollment", nil)
	}

	enrollment, err := ec.Store.GetEnrollment(tenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch enrollment", nil)
	}
	return c.JSON(utils.SuccessResponse(enrollment))
}
