package controller

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"reachflow/engine"
	"reachflow/store"
	"reachflow/utils"
)

// transparent 1x1 GIF served from the open-tracking pixel endpoint
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type EventController struct {
	Store          store.Store
	Engine         *engine.Engine
	Logger         *logrus.Logger
	TrackingSecret string
}

func NewEventController(st store.Store, eng *engine.Engine, logger *logrus.Logger, trackingSecret string) *EventController {
	return &EventController{
		Store:          st,
		Engine:         eng,
		Logger:         logger,
		TrackingSecret: trackingSecret,
	}
}

type eventInput struct {
	EnrollmentID uint   `json:"enrollment_id"`
	StepID       uint   `json:"step_id"`
	MessageID    string `json:"message_id"`
	Reason       string `json:"reason"`
	Content      string `json:"content"`
}

// resolve fills EnrollmentID/StepID from MessageID when the provider only
// echoes back our outbound message ID
func (ec *EventController) resolve(input *eventInput) error {
	if input.EnrollmentID != 0 && input.StepID != 0 {
		return nil
	}
	if input.MessageID == "" {
		return errors.New("enrollment_id and step_id, or message_id, required")
	}
	action, err := ec.Store.FindActionByMessageID(input.MessageID)
	if err != nil {
		return err
	}
	input.EnrollmentID = action.EnrollmentID
	input.StepID = action.StepID
	return nil
}

func (ec *EventController) handleEvent(c *fiber.Ctx, name string, apply func(tenantID uint, input *eventInput) error) error {
	tenantID := c.Locals("tenantID").(uint)

	var input eventInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := ec.resolve(&input); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Unknown message", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	if err := apply(tenantID, &input); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, err.Error(), nil)
		}
		ec.Logger.WithError(err).WithFields(logrus.Fields{
			"event":         name,
			"enrollment_id": input.EnrollmentID,
			"step_id":       input.StepID,
		}).Error("Failed to process event")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process event", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"processed": true}))
}

func (ec *EventController) HandleBounce(c *fiber.Ctx) error {
	return ec.handleEvent(c, "bounce", func(tenantID uint, input *eventInput) error {
		return ec.Engine.HandleBounce(c.Context(), tenantID, input.EnrollmentID, input.StepID, input.Reason)
	})
}

func (ec *EventController) HandleReply(c *fiber.Ctx) error {
	return ec.handleEvent(c, "reply", func(tenantID uint, input *eventInput) error {
		return ec.Engine.HandleReply(c.Context(), tenantID, input.EnrollmentID, input.StepID, input.Content)
	})
}

func (ec *EventController) HandleOpen(c *fiber.Ctx) error {
	return ec.handleEvent(c, "open", func(tenantID uint, input *eventInput) error {
		return ec.Engine.HandleOpen(c.Context(), tenantID, input.EnrollmentID, input.StepID)
	})
}

func (ec *EventController) HandleClick(c *fiber.Ctx) error {
	return ec.handleEvent(c, "click", func(tenantID uint, input *eventInput) error {
		return ec.Engine.HandleClick(c.Context(), tenantID, input.EnrollmentID, input.StepID)
	})
}

func (ec *EventController) HandleDelivered(c *fiber.Ctx) error {
	return ec.handleEvent(c, "delivered", func(tenantID uint, input *eventInput) error {
		return ec.Engine.HandleDelivered(c.Context(), tenantID, input.EnrollmentID, input.StepID)
	})
}

// TrackOpen serves the tracking pixel. The token carries the tenant,
// enrollment and step IDs, so this endpoint needs no API key; a bad token
// still returns the pixel so mail clients render nothing unusual.
func (ec *EventController) TrackOpen(c *fiber.Ctx) error {
	claims, err := utils.ParseTrackingToken(ec.TrackingSecret, c.Params("token"))
	if err == nil && claims.MessageID == c.Params("messageID") {
		if err := ec.Engine.HandleOpen(c.Context(), claims.TenantID, claims.EnrollmentID, claims.StepID); err != nil {
			ec.Logger.WithError(err).WithField("message_id", claims.MessageID).Warn("Failed to record open")
		}
	}

	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	return c.Send(trackingPixel)
}

// TrackClick records the click and redirects to the original link. The token
// carries the destination's hash, so the endpoint only redirects to the URL
// the link was minted for and cannot serve as an open redirector.
func (ec *EventController) TrackClick(c *fiber.Ctx) error {
	target := c.Query("url")
	parsed, parseErr := url.Parse(target)
	if parseErr != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid redirect URL", nil)
	}

	claims, err := utils.ParseTrackingToken(ec.TrackingSecret, c.Params("token"))
	if err != nil || claims.MessageID != c.Params("messageID") ||
		claims.URLHash == "" || claims.URLHash != utils.URLHash(target) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid tracking link", nil)
	}

	if err := ec.Engine.HandleClick(c.Context(), claims.TenantID, claims.EnrollmentID, claims.StepID); err != nil {
		ec.Logger.WithError(err).WithField("message_id", claims.MessageID).Warn("Failed to record click")
	}

	return c.Redirect(target, fiber.StatusFound)
}

// Unsubscribe handles one-click list unsubscribes from email footers. It is
// treated as a bounce with an unsubscribe reason so the enrollment ends and
// the prospect is flagged.
func (ec *EventController) Unsubscribe(c *fiber.Ctx) error {
	claims, err := utils.ParseTrackingToken(ec.TrackingSecret, c.Params("token"))
	if err != nil || claims.MessageID != c.Params("messageID") {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid unsubscribe link", nil)
	}

	if err := ec.Engine.HandleBounce(c.Context(), claims.TenantID, claims.EnrollmentID, claims.StepID, "list-unsubscribe"); err != nil {
		if !errors.Is(err, engine.ErrNotFound) {
			ec.Logger.WithError(err).WithField("message_id", claims.MessageID).Error("Failed to process unsubscribe")
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to unsubscribe", nil)
		}
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.SendString("<html><body><p>You have been unsubscribed.</p></body></html>")
}
