package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"reachflow/models"
	"reachflow/store"
	"reachflow/utils"
)

type StatsController struct {
	Store  store.Store
	Logger *logrus.Logger
}

func NewStatsController(st store.Store, logger *logrus.Logger) *StatsController {
	return &StatsController{
		Store:  st,
		Logger: logger,
	}
}

// GetSequenceStats returns the sequence's aggregate counters and rates plus
// per-step outcome stats.
func (sc *StatsController) GetSequenceStats(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	sequenceID := utils.ParseUint(c.Params("id"))

	seq, err := sc.Store.GetSequence(tenantID, sequenceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequence", nil)
	}

	stats, err := sc.Store.GetOrCreateAnalytics(tenantID, sequenceID)
	if err != nil {
		sc.Logger.WithError(err).Error("Failed to load sequence analytics")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load analytics", nil)
	}

	stepStats := make([]models.StepStat, 0, len(seq.Steps))
	for i := range seq.Steps {
		stat, err := sc.Store.GetOrCreateStepStat(tenantID, sequenceID, seq.Steps[i].ID)
		if err != nil {
			sc.Logger.WithError(err).WithField("step_id", seq.Steps[i].ID).Warn("Failed to load step stats")
			continue
		}
		stepStats = append(stepStats, *stat)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"sequence_id": sequenceID,
		"analytics":   stats,
		"steps":       stepStats,
	}))
}

// GetStepStats returns the outcome counters for one step of a sequence
func (sc *StatsController) GetStepStats(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	sequenceID := utils.ParseUint(c.Params("id"))
	stepID := utils.ParseUint(c.Params("stepID"))

	seq, err := sc.Store.GetSequence(tenantID, sequenceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequence", nil)
	}

	var found bool
	for i := range seq.Steps {
		if seq.Steps[i].ID == stepID {
			found = true
			break
		}
	}
	if !found {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Step not found", nil)
	}

	stat, err := sc.Store.GetOrCreateStepStat(tenantID, sequenceID, stepID)
	if err != nil {
		sc.Logger.WithError(err).WithField("step_id", stepID).Error("Failed to load step stats")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load step stats", nil)
	}
	return c.JSON(utils.SuccessResponse(stat))
}

// GetEnrollmentBreakdown returns enrollment counts per status for a sequence
func (sc *StatsController) GetEnrollmentBreakdown(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	sequenceID := utils.ParseUint(c.Params("id"))

	counts, err := sc.Store.CountEnrollmentsByStatus(tenantID, sequenceID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count enrollments", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"sequence_id": sequenceID,
		"by_status":   counts,
	}))
}

// GetEnrollmentTimeline returns the full action history of one enrollment
func (sc *StatsController) GetEnrollmentTimeline(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	id := utils.ParseUint(c.Params("id"))

	enrollment, err := sc.Store.GetEnrollment(tenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch enrollment", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"enrollment_id": enrollment.ID,
		"status":        enrollment.Status,
		"current_step":  enrollment.CurrentStepIndex,
		"next_step_at":  enrollment.NextStepAt,
		"actions":       enrollment.Actions,
	}))
}
