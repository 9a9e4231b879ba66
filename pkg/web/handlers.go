// Package web provides HTTP handlers and REST API endpoints for pipeline and
// run management.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/pushgate/pushgate/pkg/eventbus"
	"github.com/pushgate/pushgate/pkg/events"
	"github.com/pushgate/pushgate/pkg/models"
	"github.com/pushgate/pushgate/pkg/persistence"
	"github.com/pushgate/pushgate/pkg/pipeline"
)

type APIHandlers struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventPublisher,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		persistence: store,
		eventBus:    eventBus,
		validator:   validator,
		logger:      logger.With("module", "api"),
	}
}

// TriggerEvent accepts a push notification and queues a run for it. The run
// is created pending; a worker picks it up from the bus.
func (h *APIHandlers) TriggerEvent(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	pipelineID := req.PipelineID
	if pipelineID == "" {
		pipelineID = pipeline.DefaultID
	}

	if _, err := h.persistence.PipelineByID(c.Context(), pipelineID); err != nil {
		return handleStoreError(c, err)
	}

	trigger := models.NewTriggerEvent(req.Ref, req.Commit, "webhook")
	run := models.NewRun(pipelineID, trigger)

	if err := h.persistence.SaveRun(c.Context(), run); err != nil {
		return internalError(c, err)
	}

	queuedEvent := events.RunQueued{
		BaseEvent: events.NewBaseEvent(events.RunQueuedEvent, run.ID, pipelineID),
		Trigger:   trigger,
	}

	if err := h.eventBus.Publish(c.Context(), run.ID, queuedEvent); err != nil {
		return internalError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Run queued",
		"run_id", run.ID,
		"pipeline_id", pipelineID,
		"ref", trigger.Ref,
		"commit", trigger.Commit,
	)

	return c.Status(fiber.StatusAccepted).JSON(run)
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	runs, err := h.persistence.Runs(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(runs)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.persistence.RunByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(run)
}

// CancelRun requests cancellation of a queued or in-flight run. The worker
// holding the run terminates the current step and marks the run cancelled.
func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	var req CancelRequest

	// The body is optional.
	_ = c.Bind().JSON(&req)

	run, err := h.persistence.RunByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	if run.Status.Terminal() {
		return conflict(c, "run already finished with status "+string(run.Status))
	}

	cancelEvent := events.RunCancelRequested{
		BaseEvent:   events.NewBaseEvent(events.RunCancelRequestedEvent, run.ID, run.PipelineID),
		RequestedBy: req.RequestedBy,
	}

	if err := h.eventBus.Publish(c.Context(), run.ID, cancelEvent); err != nil {
		return internalError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Run cancellation requested", "run_id", run.ID)

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetPipelines(c fiber.Ctx) error {
	pipelines, err := h.persistence.Pipelines(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(pipelines)
}

func (h *APIHandlers) GetPipeline(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Pipeline ID is required")
	}

	p, err := h.persistence.PipelineByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(p)
}

func (h *APIHandlers) CreatePipeline(c fiber.Ctx) error {
	var req CreatePipelineRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	p := &models.Pipeline{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Steps:       req.Steps,
		Triggers:    req.Triggers,
	}

	if err := h.persistence.SavePipeline(c.Context(), p); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *APIHandlers) DeletePipeline(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Pipeline ID is required")
	}

	if _, err := h.persistence.PipelineByID(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	if err := h.persistence.DeletePipeline(c.Context(), id); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())

	status := "healthy"
	message := "Pushgate API is healthy"
	httpStatus := http.StatusOK

	if err != nil {
		status = "unhealthy"
		message = "Pushgate API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
