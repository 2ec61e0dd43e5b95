package route

import (
	"github.com/gofiber/fiber/v2"

	billingCtrl "tutoring_backend/internals/features/billing/controller"
	"tutoring_backend/internals/features/billing/service"
	"tutoring_backend/internals/features/billing/webhook"
)

// BillingOwnerRoutes mounts under the JWT guarded /api/o group.
func BillingOwnerRoutes(r fiber.Router, svc *service.Service, p *webhook.Processor) {
	inv := billingCtrl.NewInvoiceController(svc)
	wh := billingCtrl.NewWebhookController(p)

	invoices := r.Group("/invoices")
	invoices.Post("/generate/:cadence", inv.Generate)
	invoices.Post("/reconcile", inv.Reconcile)
	invoices.Get("/:external_id", inv.Detail)

	r.Get("/products", inv.ListProducts)
	r.Post("/customers/:id/basket", inv.AddBasketItem)
	r.Get("/customers/:id/basket", inv.ListBasket)
	r.Delete("/basket/:item_id", inv.RemoveBasketItem)

	r.Get("/ledger-events", wh.ListEvents)
}

// LedgerWebhookRoutes is public; requests are authenticated by signature.
func LedgerWebhookRoutes(r fiber.Router, p *webhook.Processor) {
	wh := billingCtrl.NewWebhookController(p)
	r.Post("/ledger", wh.Receive)
}
