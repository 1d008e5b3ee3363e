package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"reachflow/utils"
	"reachflow/worker"
)

type SweepController struct {
	Sweeper *worker.Sweeper
	Logger  *logrus.Logger
}

func NewSweepController(sweeper *worker.Sweeper, logger *logrus.Logger) *SweepController {
	return &SweepController{
		Sweeper: sweeper,
		Logger:  logger,
	}
}

// RunSweep triggers one sweep pass on demand and reports how many due
// enrollments were processed and how many of those failed.
func (sc *SweepController) RunSweep(c *fiber.Ctx) error {
	report, err := sc.Sweeper.RunOnce(c.Context())
	if err != nil {
		sc.Logger.WithError(err).Error("Manual sweep failed")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Sweep failed", err)
	}
	return c.JSON(report)
}
