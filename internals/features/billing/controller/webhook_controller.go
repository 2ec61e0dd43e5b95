package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"tutoring_backend/internals/features/billing/webhook"
	helper "tutoring_backend/internals/helpers"
)

const signatureHeader = "Stripe-Signature"

type WebhookController struct {
	Processor *webhook.Processor
}

func NewWebhookController(p *webhook.Processor) *WebhookController {
	return &WebhookController{Processor: p}
}

// POST /api/webhooks/ledger
// 400 for bad signatures and malformed payloads (the ledger must not retry),
// 500 when applying failed (the ledger retries), 200 otherwise.
func (h *WebhookController) Receive(c *fiber.Ctx) error {
	// fiber reuses the body buffer after the handler returns
	payload := append([]byte(nil), c.Body()...)

	res, err := h.Processor.Handle(c.UserContext(), payload, c.Get(signatureHeader))
	switch {
	case err == nil:
		return helper.JsonOK(c, string(res.Outcome), res)
	case errors.Is(err, webhook.ErrBadSignature):
		log.Printf("[WEBHOOK] rejected: %v", err)
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid signature")
	case errors.Is(err, webhook.ErrMalformed):
		log.Printf("[WEBHOOK] malformed event id=%s type=%s: %v", res.EventID, res.Type, err)
		return helper.JsonError(c, fiber.StatusBadRequest, "malformed event")
	default:
		log.Printf("[ERROR] webhook id=%s type=%s: %v", res.EventID, res.Type, err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "event not applied")
	}
}

// GET /api/o/ledger-events?status=failed&page=1&per_page=50
func (h *WebhookController) ListEvents(c *fiber.Ctx) error {
	p := helper.ParseFiber(c, helper.AdminPageOpts)
	rows, total, err := h.Processor.ListEvents(c.UserContext(), c.Query("status"), p.Limit(), p.Offset())
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonPaged(c, "ok", rows, helper.BuildMeta(total, p))
}
