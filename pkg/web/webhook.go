package web

import (
	"errors"
	"net/http"

	"github.com/dukex/sequences/pkg/intake"
	"github.com/dukex/sequences/pkg/persistence"
	"github.com/dukex/sequences/pkg/workflow"
	"github.com/gofiber/fiber/v3"
)

const internalServerError = "Internal server error"

// HandleWebhook is POST /webhooks/:token. Its bodies are a public contract
// with webhook senders and are not problem documents.
func (h *APIHandlers) HandleWebhook(c fiber.Ctx) error {
	trigger, err := h.intake.ResolveWebhookTrigger(c.Context(), c.Params("token"))
	if err != nil {
		if persistence.IsNotFound(err) || errors.Is(err, persistence.ErrInvalidID) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Webhook not found"})
		}

		h.logger.ErrorContext(c.Context(), "failed to resolve webhook trigger", "error", err)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": internalServerError})
	}

	outcome := h.intake.HandleWebhook(c.Context(), webhookRequest(c), trigger)

	return writeWebhookOutcome(c, outcome)
}

func webhookRequest(c fiber.Ctx) intake.WebhookRequest {
	header := http.Header{}

	for name, values := range c.GetReqHeaders() {
		for _, value := range values {
			header.Add(name, value)
		}
	}

	// fiber reuses the body buffers after the handler returns
	req := intake.WebhookRequest{
		Method:     c.Method(),
		URL:        c.BaseURL() + c.OriginalURL(),
		RemoteAddr: c.IP(),
		Header:     header,
		Body:       append([]byte(nil), c.BodyRaw()...),
	}

	if len(c.Request().Header.ContentEncoding()) > 0 {
		req.Decoded = append([]byte{}, c.Body()...)
	}

	return req
}

func writeWebhookOutcome(c fiber.Ctx, outcome intake.Outcome) error {
	eventID := ""
	if outcome.Event != nil {
		eventID = outcome.Event.ID
	}

	switch outcome.Status {
	case intake.StatusDispatched, intake.StatusIgnored:
		return c.JSON(fiber.Map{
			"success":          true,
			"message":          outcome.Message,
			"trigger_event_id": eventID,
		})
	case intake.StatusUnauthorized:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	case intake.StatusInvalid:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":            outcome.Message,
			"trigger_event_id": eventID,
		})
	}

	var dispatchErr *workflow.DispatchError
	if errors.As(outcome.Err, &dispatchErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":            "Failed to process trigger: " + dispatchErr.Err.Error(),
			"trigger_event_id": eventID,
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": internalServerError})
}
