package controller

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"tutoring_backend/internals/features/billing/dto"
	"tutoring_backend/internals/features/billing/model"
	"tutoring_backend/internals/features/billing/service"
	tutModel "tutoring_backend/internals/features/tutoring/model"
	helper "tutoring_backend/internals/helpers"
)

type InvoiceController struct {
	Billing   *service.Service
	Validator *validator.Validate
}

func NewInvoiceController(svc *service.Service) *InvoiceController {
	return &InvoiceController{Billing: svc, Validator: validator.New()}
}

/* ===================== INVOICING ===================== */

// POST /api/o/invoices/generate/:cadence?basket=true
func (h *InvoiceController) Generate(c *fiber.Ctx) error {
	cadence, ok := tutModel.ParseCadence(c.Params("cadence"))
	if !ok {
		return helper.JsonError(c, fiber.StatusBadRequest, "cadence must be weekly, fortnightly, half-termly or termly")
	}
	run := h.Billing.GenerateInvoices
	if strings.EqualFold(c.Query("basket"), "true") {
		run = h.Billing.GenerateBasketInvoices
	}
	report, err := run(c.UserContext(), cadence)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "invoices generated", dto.NewGenerateResponse(report))
}

// GET /api/o/invoices/:external_id
func (h *InvoiceController) Detail(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("external_id"))
	if id == "" {
		return helper.JsonError(c, fiber.StatusBadRequest, "invoice id is required")
	}
	v, err := h.Billing.GetInvoice(c.UserContext(), id)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "ok", v)
}

// POST /api/o/invoices/reconcile
func (h *InvoiceController) Reconcile(c *fiber.Ctx) error {
	stats, err := h.Billing.Reconciler.RunDue(c.UserContext())
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "reconcile run", stats)
}

/* ===================== CATALOGUE / BASKET ===================== */

// GET /api/o/products
func (h *InvoiceController) ListProducts(c *fiber.Ctx) error {
	var rows []model.ProductModel
	q := h.Billing.DB.WithContext(c.UserContext())
	if !strings.EqualFold(c.Query("all"), "true") {
		q = q.Where("product_active = ?", true)
	}
	if err := q.Order("product_name ASC").Find(&rows).Error; err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonList(c, "ok", rows, len(rows))
}

// POST /api/o/customers/:id/basket
func (h *InvoiceController) AddBasketItem(c *fiber.Ctx) error {
	customerID, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid customer id")
	}
	var req dto.AddBasketItemRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	item, err := h.Billing.AddBasketItem(c.UserContext(), customerID, req.ProductID, req.Quantity)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonCreated(c, "basket item added", item)
}

// GET /api/o/customers/:id/basket
func (h *InvoiceController) ListBasket(c *fiber.Ctx) error {
	customerID, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid customer id")
	}
	items, err := h.Billing.ListBasket(c.UserContext(), customerID)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonList(c, "ok", items, len(items))
}

// DELETE /api/o/basket/:item_id
func (h *InvoiceController) RemoveBasketItem(c *fiber.Ctx) error {
	itemID, err := helper.ParseUUIDParam(c, "item_id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid basket item id")
	}
	if err := h.Billing.RemoveBasketItem(c.UserContext(), itemID); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "basket item removed", fiber.Map{"basket_item_id": itemID})
}
