package routes

import (
	"github.com/gofiber/fiber/v2"
	requestlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	controller "reachflow/controllers"
	"reachflow/engine"
	"reachflow/middleware"
	"reachflow/store"
	"reachflow/worker"
)

// Deps carries everything the HTTP surface needs
type Deps struct {
	Store          store.Store
	Engine         *engine.Engine
	Sweeper        *worker.Sweeper
	Logger         *logrus.Logger
	TrackingSecret string
	EncryptionKey  string
	InternalToken  string
	WebhookRateMax int
	RateStorage    fiber.Storage
}

// Setup registers every route group on the app
func Setup(app *fiber.App, deps Deps) {
	sequenceController := controller.NewSequenceController(deps.Store, deps.Logger)
	prospectController := controller.NewProspectController(deps.Store, deps.Logger)
	enrollmentController := controller.NewEnrollmentController(deps.Store, deps.Engine, deps.Logger)
	eventController := controller.NewEventController(deps.Store, deps.Engine, deps.Logger, deps.TrackingSecret)
	statsController := controller.NewStatsController(deps.Store, deps.Logger)
	sweepController := controller.NewSweepController(deps.Sweeper, deps.Logger)
	tenantController := controller.NewTenantController(deps.Store, deps.Logger, deps.EncryptionKey)

	requestLogger := requestlog.New(requestlog.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	})

	// Public tracking endpoints. Identity comes from the signed token in the
	// URL, never from headers.
	track := app.Group("/track", requestLogger)
	track.Get("/open/:messageID/:token", eventController.TrackOpen)
	track.Get("/click/:messageID/:token", eventController.TrackClick)
	track.Get("/unsubscribe/:messageID/:token", eventController.Unsubscribe)

	// Provider callbacks, API-key authenticated and rate limited per IP
	webhookMax := deps.WebhookRateMax
	if webhookMax <= 0 {
		webhookMax = 120
	}
	webhooks := app.Group("/webhooks/events",
		requestLogger,
		middleware.WebhookRateLimiter(webhookMax, deps.RateStorage),
		middleware.APIKeyAuth(deps.Store),
	)
	webhooks.Post("/bounce", eventController.HandleBounce)
	webhooks.Post("/reply", eventController.HandleReply)
	webhooks.Post("/open", eventController.HandleOpen)
	webhooks.Post("/click", eventController.HandleClick)
	webhooks.Post("/delivered", eventController.HandleDelivered)

	// Tenant-facing API
	api := app.Group("/api/v1", requestLogger, middleware.APIKeyAuth(deps.Store))

	sequences := api.Group("/sequences")
	sequences.Post("/", sequenceController.CreateSequence)
	sequences.Get("/", sequenceController.ListSequences)
	sequences.Get("/:id", sequenceController.GetSequence)
	sequences.Put("/:id", sequenceController.UpdateSequence)
	sequences.Post("/:id/activate", sequenceController.ActivateSequence)
	sequences.Post("/:id/pause", sequenceController.PauseSequence)
	sequences.Post("/:id/archive", sequenceController.ArchiveSequence)
	sequences.Post("/:id/enroll", enrollmentController.Enroll)
	sequences.Post("/:id/unenroll", enrollmentController.Unenroll)
	sequences.Get("/:id/stats", statsController.GetSequenceStats)
	sequences.Get("/:id/steps/:stepID/stats", statsController.GetStepStats)
	sequences.Get("/:id/enrollments", statsController.GetEnrollmentBreakdown)
	sequences.Get("/:id/live", websocket.New(controller.StreamSequenceStats(deps.Store, deps.Logger)))

	prospects := api.Group("/prospects")
	prospects.Post("/", prospectController.CreateProspect)
	prospects.Get("/:id", prospectController.GetProspect)
	prospects.Post("/:id/do-not-contact", prospectController.MarkDoNotContact)

	enrollments := api.Group("/enrollments")
	enrollments.Get("/:id", enrollmentController.GetEnrollment)
	enrollments.Get("/:id/timeline", statsController.GetEnrollmentTimeline)
	enrollments.Post("/:id/tick", enrollmentController.TickEnrollment)

	tenant := api.Group("/tenant")
	tenant.Get("/", tenantController.GetTenant)
	tenant.Put("/settings", tenantController.UpdateChannelSettings)
	tenant.Post("/rotate-key", tenantController.RotateAPIKey)

	// Operational surface, guarded by a shared token
	internal := app.Group("/internal", requestLogger, middleware.InternalAuth(deps.InternalToken))
	internal.Post("/sweep", sweepController.RunSweep)
	internal.Post("/tenants", tenantController.CreateTenant)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
