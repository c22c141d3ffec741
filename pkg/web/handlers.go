package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/sequences/pkg/intake"
	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

const (
	defaultEventsLimit = 50
	webhookSecretBytes = 32
)

type APIHandlers struct {
	persistence persistence.Persistence
	intake      *intake.Service
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	persistence persistence.Persistence,
	intakeService *intake.Service,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence: persistence,
		intake:      intakeService,
		validator:   validator,
		logger:      logger.With("module", "api"),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	message := "Sequences API is healthy"
	httpStatus := http.StatusOK
	repositoryCheck := "ok"

	if err := h.persistence.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		message = "Sequences API is unhealthy"
		httpStatus = http.StatusInternalServerError
		repositoryCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateSequence(c fiber.Ctx) error {
	var req CreateSequenceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	sequence := &models.Sequence{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Description:    req.Description,
		Active:         boolOr(req.Active, true),
	}

	if err := h.persistence.SequenceRepository().Save(c.Context(), sequence); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sequence)
}

func (h *APIHandlers) GetSequence(c fiber.Ctx) error {
	id := c.Params("id")

	sequence, err := h.persistence.SequenceRepository().GetByID(c.Context(), id)
	if err != nil {
		return handleRepositoryError(c, err)
	}

	actions, err := h.persistence.SequenceRepository().Actions(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"sequence": sequence,
		"actions":  actions,
	})
}

func (h *APIHandlers) CreateAction(c fiber.Ctx) error {
	sequenceID := c.Params("id")

	var req CreateActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.persistence.SequenceRepository().GetByID(c.Context(), sequenceID); err != nil {
		return handleRepositoryError(c, err)
	}

	action := &models.Action{
		ID:             uuid.NewString(),
		SequenceID:     sequenceID,
		Name:           req.Name,
		Type:           models.ActionTypeAppAction,
		IntegrationID:  req.IntegrationID,
		App:            req.App,
		ActionKey:      req.ActionKey,
		Configuration:  req.Configuration,
		SortOrder:      req.SortOrder,
		TimeoutSeconds: req.TimeoutSeconds,
		MaxRetries:     req.MaxRetries,
	}

	if err := h.persistence.SequenceRepository().SaveAction(c.Context(), action); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(action)
}

func (h *APIHandlers) CreateTrigger(c fiber.Ctx) error {
	sequenceID := c.Params("id")

	var req CreateTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.persistence.SequenceRepository().GetByID(c.Context(), sequenceID); err != nil {
		return handleRepositoryError(c, err)
	}

	for field, condition := range req.Conditions {
		if !condition.Operator.Known() {
			h.logger.WarnContext(c.Context(), "trigger condition uses an unknown operator", "field", field, "operator", condition.Operator)
		}
	}

	trigger := &models.Trigger{
		ID:            uuid.NewString(),
		SequenceID:    sequenceID,
		Name:          req.Name,
		Kind:          req.Kind,
		IntegrationID: req.IntegrationID,
		TriggerKey:    req.TriggerKey,
		WebhookSecret: req.WebhookSecret,
		AuthConfig:    req.AuthConfig.model(),
		Conditions:    req.Conditions,
		JSONSchema:    req.JSONSchema,
		Active:        boolOr(req.Active, true),
	}

	generatedSecret := ""

	if trigger.IsWebhook() {
		trigger.WebhookToken = uuid.NewString()

		if trigger.WebhookSecret == "" {
			secret, err := newWebhookSecret()
			if err != nil {
				return internalError(c, err)
			}

			trigger.WebhookSecret = secret
			generatedSecret = secret
		}
	}

	if err := h.persistence.TriggerRepository().Save(c.Context(), trigger); err != nil {
		return internalError(c, err)
	}

	// A generated secret is only ever shown here.
	response := TriggerResponse{Trigger: trigger, Secret: generatedSecret}
	if trigger.IsWebhook() {
		response.WebhookPath = trigger.WebhookPath()
	}

	return c.Status(fiber.StatusCreated).JSON(response)
}

func newWebhookSecret() (string, error) {
	secret := make([]byte, webhookSecretBytes)

	_, err := rand.Read(secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}

	return hex.EncodeToString(secret), nil
}

func (h *APIHandlers) ListTriggerEvents(c fiber.Ctx) error {
	triggerID := c.Params("id")

	limit := defaultEventsLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "limit must be a positive integer")
		}

		limit = parsed
	}

	if _, err := h.persistence.TriggerRepository().GetByID(c.Context(), triggerID); err != nil {
		return handleRepositoryError(c, err)
	}

	events, err := h.persistence.TriggerEventRepository().ListByTrigger(c.Context(), triggerID, limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"trigger_events": events,
		"limit":          limit,
	})
}

func (h *APIHandlers) GetTriggerEvent(c fiber.Ctx) error {
	event, err := h.persistence.TriggerEventRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleRepositoryError(c, err)
	}

	return c.JSON(event)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	runs := h.persistence.RunRepository()

	run, err := runs.GetRun(c.Context(), c.Params("id"))
	if err != nil {
		return handleRepositoryError(c, err)
	}

	steps, err := runs.ListSteps(c.Context(), run.ID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(RunResponse{WorkflowRun: run, Steps: steps})
}

// HandleIntegrationEvent accepts an event from an upstream integration layer
// and activates every trigger subscribed to it.
func (h *APIHandlers) HandleIntegrationEvent(c fiber.Ctx) error {
	var payload any
	if err := c.Bind().JSON(&payload); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	outcomes, err := h.intake.HandleIntegrationEvents(c.Context(), c.Params("integrationId"), c.Params("triggerKey"), payload)
	if err != nil {
		return internalError(c, err)
	}

	response := make([]IntegrationOutcome, 0, len(outcomes))
	for _, outcome := range outcomes {
		item := IntegrationOutcome{Status: string(outcome.Status), Message: outcome.Message}
		if outcome.Event != nil {
			item.TriggerID = outcome.Event.TriggerID
			item.TriggerEventID = outcome.Event.ID
		}

		if outcome.Run != nil {
			item.RunID = outcome.Run.RunID
		}

		response = append(response, item)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"outcomes": response})
}
