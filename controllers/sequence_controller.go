package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"reachflow/models"
	"reachflow/store"
	"reachflow/utils"
)

type SequenceController struct {
	Store  store.Store
	Logger *logrus.Logger
}

func NewSequenceController(st store.Store, logger *logrus.Logger) *SequenceController {
	return &SequenceController{
		Store:  st,
		Logger: logger,
	}
}

type stepInput struct {
	Type         string   `json:"type" validate:"required,oneof=email sms professional_message call_task manual_task"`
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
	Content      string   `json:"content"`
	DelayDays    int      `json:"delay_days" validate:"gte=0"`
	DelayHours   int      `json:"delay_hours" validate:"gte=0,lte=23"`
	SendTime     *string  `json:"send_time"`
	TaskTitle    string   `json:"task_title"`
	TaskPriority string   `json:"task_priority" validate:"omitempty,oneof=low medium high"`
	TaskAssignee string   `json:"task_assignee"`
	TaskDueDays  int      `json:"task_due_days" validate:"gte=0"`
	Conditions   []string `json:"conditions" validate:"dive,oneof=opened_previous not_opened_previous replied not_replied"`
}

type sequenceInput struct {
	Name        string      `json:"name" validate:"required,min=1,max=200"`
	StopOnReply *bool       `json:"stop_on_reply"`
	Steps       []stepInput `json:"steps" validate:"required,min=1,dive"`
}

func (si *sequenceInput) toModel(tenantID uint) *models.Sequence {
	seq := &models.Sequence{
		TenantID:    tenantID,
		Name:        si.Name,
		Status:      models.SequenceStatusDraft,
		StopOnReply: true,
	}
	if si.StopOnReply != nil {
		seq.StopOnReply = *si.StopOnReply
	}
	for i, in := range si.Steps {
		step := models.SequenceStep{
			StepOrder:    i + 1,
			Type:         in.Type,
			Subject:      in.Subject,
			Body:         in.Body,
			Content:      in.Content,
			DelayDays:    in.DelayDays,
			DelayHours:   in.DelayHours,
			SendTime:     in.SendTime,
			TaskTitle:    in.TaskTitle,
			TaskPriority: in.TaskPriority,
			TaskAssignee: in.TaskAssignee,
			TaskDueDays:  in.TaskDueDays,
		}
		for _, kind := range in.Conditions {
			step.Conditions = append(step.Conditions, models.StepCondition{Kind: kind})
		}
		seq.Steps = append(seq.Steps, step)
	}
	return seq
}

func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)

	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	seq := input.toModel(tenantID)
	if err := sc.Store.SaveSequence(seq); err != nil {
		sc.Logger.WithError(err).Error("Failed to create sequence")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", nil)
	}

	sc.Logger.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"sequence_id": seq.ID,
		"steps":       len(seq.Steps),
	}).Info("Sequence created")

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(seq))
}

func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	id := utils.ParseUint(c.Params("id"))

	seq, err := sc.Store.GetSequence(tenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequence", nil)
	}
	return c.JSON(utils.SuccessResponse(seq))
}

func (sc *SequenceController) ListSequences(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)

	sequences, err := sc.Store.ListSequences(tenantID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequences", nil)
	}
	return c.JSON(utils.SuccessResponse(sequences))
}

// UpdateSequence replaces the name and step list of a draft or paused
// sequence. Active sequences must be paused first so in-flight enrollments
// never see steps move under their cursor.
func (sc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	id := utils.ParseUint(c.Params("id"))

	seq, err := sc.Store.GetSequence(tenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequence", nil)
	}
	if seq.Status == models.SequenceStatusActive {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Pause the sequence before editing it", nil)
	}

	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updated := input.toModel(tenantID)
	updated.ID = seq.ID
	updated.Status = seq.Status
	if err := sc.Store.SaveSequence(updated); err != nil {
		sc.Logger.WithError(err).Error("Failed to update sequence")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update sequence", nil)
	}
	return c.JSON(utils.SuccessResponse(updated))
}

func (sc *SequenceController) ActivateSequence(c *fiber.Ctx) error {
	return sc.setStatus(c, models.SequenceStatusActive)
}

func (sc *SequenceController) PauseSequence(c *fiber.Ctx) error {
	return sc.setStatus(c, models.SequenceStatusPaused)
}

func (sc *SequenceController) ArchiveSequence(c *fiber.Ctx) error {
	return sc.setStatus(c, models.SequenceStatusArchived)
}

func (sc *SequenceController) setStatus(c *fiber.Ctx, status string) error {
	tenantID := c.Locals("tenantID").(uint)
	id := utils.ParseUint(c.Params("id"))

	seq, err := sc.Store.GetSequence(tenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequence", nil)
	}

	// Archive is terminal
	if seq.Status == models.SequenceStatusArchived {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Sequence is archived", nil)
	}
	if status == models.SequenceStatusActive && len(seq.Steps) == 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Cannot activate a sequence with no steps", nil)
	}

	seq.Status = status
	if err := sc.Store.SaveSequence(seq); err != nil {
		sc.Logger.WithError(err).Error("Failed to update sequence status")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update sequence", nil)
	}

	sc.Logger.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"sequence_id": seq.ID,
		"status":      status,
	}).Info("Sequence status changed")

	return c.JSON(utils.SuccessResponse(seq))
}
