package webhook

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tutoring_backend/internals/features/billing/ledger"
	"tutoring_backend/internals/features/billing/model"
	"tutoring_backend/internals/features/billing/service"
	tutModel "tutoring_backend/internals/features/tutoring/model"
)

// applier writes one decoded event inside the caller's transaction.
type applier struct {
	tx        *gorm.DB
	now       time.Time
	successor *ledger.Invoice
}

var _ Handler = (*applier)(nil)

/* =========================
   Catalogue
========================= */

func (a *applier) Product(e ProductEvent) error {
	p := e.Product
	if e.Action == ActionDeleted {
		return a.tx.Model(&model.ProductModel{}).
			Where("product_ledger_id = ?", p.ID).
			Updates(map[string]any{"product_active": false, "product_updated_at": a.now}).Error
	}

	row := model.ProductModel{
		ProductLedgerID: p.ID,
		ProductName:     tutModel.NormalizeName(p.Name),
		ProductActive:   true,
	}
	if p.Active != nil {
		row.ProductActive = *p.Active
	}
	cols := []string{"product_name", "product_updated_at"}
	if p.Active != nil {
		cols = append(cols, "product_active")
	}
	if p.DefaultPrice != "" {
		dp := string(p.DefaultPrice)
		row.ProductDefaultPriceLedgerID = &dp
		cols = append(cols, "product_default_price_ledger_id")
	}
	return a.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_ledger_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&row).Error
}

func (a *applier) Customer(e CustomerEvent) error {
	c := e.Customer
	if e.Action == ActionDeleted {
		return a.tx.Model(&tutModel.CustomerModel{}).
			Where("customer_ledger_id = ?", c.ID).
			Updates(map[string]any{"customer_is_active": false, "customer_updated_at": a.now}).Error
	}

	row := tutModel.CustomerModel{
		CustomerLedgerID: c.ID,
		CustomerName:     c.ID,
		CustomerIsActive: true,
	}
	cols := []string{"customer_updated_at"}
	if c.Name != nil {
		row.CustomerName = *c.Name
		cols = append(cols, "customer_name")
	}
	return a.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_ledger_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&row).Error
}

func (a *applier) Price(e PriceEvent) error {
	p := e.Price
	productID := string(p.Product)

	if e.Action == ActionDeleted {
		if err := a.tx.Model(&model.PriceModel{}).
			Where("price_ledger_id = ?", p.ID).
			Updates(map[string]any{"price_active": false, "price_updated_at": a.now}).Error; err != nil {
			return err
		}
		return a.tx.Model(&model.ProductModel{}).
			Where("product_ledger_id = ? AND product_default_price_ledger_id = ?", productID, p.ID).
			Updates(map[string]any{"product_default_price_ledger_id": nil, "product_updated_at": a.now}).Error
	}

	row := model.PriceModel{
		PriceLedgerID:        p.ID,
		PriceProductLedgerID: productID,
		PriceCurrency:        p.Currency,
		PriceActive:          true,
	}
	if p.UnitAmount != nil {
		row.PriceUnitAmount = *p.UnitAmount
	}
	if p.Active != nil {
		row.PriceActive = *p.Active
	}
	if err := a.tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "price_ledger_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"price_product_ledger_id", "price_unit_amount", "price_currency", "price_active", "price_updated_at",
		}),
	}).Create(&row).Error; err != nil {
		return err
	}

	if e.Action == ActionCreated && productID != "" {
		return a.tx.Model(&model.ProductModel{}).
			Where("product_ledger_id = ?", productID).
			Updates(map[string]any{"product_default_price_ledger_id": p.ID, "product_updated_at": a.now}).Error
	}
	return nil
}

/* =========================
   Invoices
========================= */

func (a *applier) InvoiceChanged(e InvoiceEvent) error {
	m := service.MirrorFromLedger(toLedgerInvoice(e.Invoice), a.now)
	return service.UpsertInvoiceMirror(a.tx, &m)
}

func (a *applier) InvoiceVoided(e InvoiceVoidedEvent) error {
	m := service.MirrorFromLedger(toLedgerInvoice(e.Invoice), a.now)
	m.LocalInvoiceStatus = model.InvoiceVoid
	if err := service.UpsertInvoiceMirror(a.tx, &m); err != nil {
		return err
	}
	if a.successor == nil {
		return nil
	}
	next := service.MirrorFromLedger(*a.successor, a.now)
	return service.UpsertInvoiceMirror(a.tx, &next)
}

func (a *applier) InvoiceDeleted(e InvoiceDeletedEvent) error {
	var m model.LocalInvoiceModel
	err := a.tx.Where("local_invoice_external_id = ?", e.Invoice.ID).Limit(1).Find(&m).Error
	if err != nil || m.LocalInvoiceExternalID == "" {
		return err
	}
	if err := a.tx.Model(&tutModel.AttendanceModel{}).
		Where("attendance_local_invoice_id = ?", m.LocalInvoiceID).
		Update("attendance_local_invoice_id", nil).Error; err != nil {
		return err
	}
	return a.tx.Delete(&model.LocalInvoiceModel{}, "local_invoice_id = ?", m.LocalInvoiceID).Error
}

func toLedgerInvoice(p InvoicePayload) ledger.Invoice {
	inv := ledger.Invoice{
		ID:         p.ID,
		CustomerID: string(p.Customer),
		Status:     p.Status,
		AmountDue:  p.AmountDue,
		AmountPaid: p.AmountPaid,
		Currency:   p.Currency,
		PaidAt:     unixPtr(p.StatusTransitions.PaidAt),
	}
	if p.Created > 0 {
		inv.Created = time.Unix(p.Created, 0).UTC()
	}
	return inv
}
