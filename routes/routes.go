package routes

import (
	"log"
	"os"

	"leadpulse/config"
	controller "leadpulse/controllers"
	"leadpulse/middleware"
	"leadpulse/store"
	"leadpulse/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// SetupRoutes wires the public tracking endpoints and the owner API
func SetupRoutes(app *fiber.App, s *store.Store, scheduler *worker.Scheduler) {
	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Public tracking endpoints. No auth, no logging middleware: these are
	// hit by mail providers and recipients' browsers.
	trackingController := controller.NewTrackingController(
		s,
		log.New(os.Stdout, "TRACKING: ", log.LstdFlags),
		config.AppConfig.TrackingFallbackURL,
	)
	app.Get("/track/open/:token", trackingController.HandleOpenTracking)
	app.Get("/track/click/:token", trackingController.HandleClickTracking)

	// Owner API
	leadController := controller.NewLeadController(s, log.New(os.Stdout, "LEAD: ", log.LstdFlags))
	sequenceController := controller.NewSequenceController(s, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	workflowController := controller.NewWorkflowController(s, scheduler, log.New(os.Stdout, "WORKFLOW: ", log.LstdFlags))

	api := app.Group("/api/v1", middleware.Owner(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Lead routes
	lead := api.Group("/leads")
	lead.Post("/", leadController.CreateLead)
	lead.Get("/", leadController.GetLeads)
	lead.Get("/:id", leadController.GetLead)
	lead.Put("/:id", leadController.UpdateLead)
	lead.Delete("/:id", leadController.DeleteLead)
	lead.Put("/:id/status", leadController.ChangeLeadStatus)
	lead.Post("/:id/recalculate-score", leadController.RecalculateScore)

	// Sequence routes
	sequence := api.Group("/sequences")
	sequence.Post("/", sequenceController.CreateSequence)
	sequence.Get("/", sequenceController.GetSequences)
	sequence.Get("/:id", sequenceController.GetSequence)
	sequence.Post("/:id/steps", sequenceController.AppendSteps)
	sequence.Delete("/:id", sequenceController.DeleteSequence)
	sequence.Post("/:id/enroll/:leadID", sequenceController.EnrollLead)
	sequence.Get("/:id/enrollments", sequenceController.GetEnrollments)
	sequence.Delete("/enrollments/:enrollmentID", sequenceController.CancelEnrollment)

	// Workflow routes
	workflow := api.Group("/workflows")
	workflow.Get("/stats", workflowController.GetJobStats)
	workflow.Post("/", workflowController.CreateWorkflow)
	workflow.Get("/", workflowController.GetWorkflows)
	workflow.Get("/:id", workflowController.GetWorkflow)
	workflow.Put("/:id", workflowController.UpdateWorkflow)
	workflow.Delete("/:id", workflowController.DeleteWorkflow)
	workflow.Post("/:id/run", workflowController.RunWorkflow)
	workflow.Get("/:id/executions", workflowController.GetExecutions)

	// Notification preferences
	api.Get("/notification-preferences", workflowController.GetNotificationPreferences)
	api.Put("/notification-preferences", workflowController.UpdateNotificationPreferences)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})

	log.Println("API routes initialized successfully")
}
