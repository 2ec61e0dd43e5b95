package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"tutoring_backend/internals/features/billing/ledger"
	"tutoring_backend/internals/features/billing/model"
	tutModel "tutoring_backend/internals/features/tutoring/model"
	"tutoring_backend/internals/helpers/apperror"
)

/* =========================
   Basket items
========================= */

func (s *Service) AddBasketItem(ctx context.Context, customerID, productID uuid.UUID, quantity int64) (*model.BasketItemModel, error) {
	if quantity < 1 {
		return nil, apperror.Validation("quantity must be >= 1, got %d", quantity)
	}
	db := s.DB.WithContext(ctx)
	var cnt int64
	if err := db.Model(&tutModel.CustomerModel{}).Where("customer_id = ?", customerID).Count(&cnt).Error; err != nil {
		return nil, err
	}
	if cnt == 0 {
		return nil, apperror.NotFound("customer %s", customerID)
	}
	if err := db.Model(&model.ProductModel{}).Where("product_id = ?", productID).Count(&cnt).Error; err != nil {
		return nil, err
	}
	if cnt == 0 {
		return nil, apperror.NotFound("product %s", productID)
	}
	item := model.BasketItemModel{
		BasketItemCustomerID: customerID,
		BasketItemProductID:  productID,
		BasketItemQuantity:   quantity,
	}
	if err := db.Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Service) ListBasket(ctx context.Context, customerID uuid.UUID) ([]model.BasketItemModel, error) {
	var items []model.BasketItemModel
	err := s.DB.WithContext(ctx).
		Where("basket_item_customer_id = ?", customerID).
		Order("basket_item_created_at ASC").
		Find(&items).Error
	return items, err
}

func (s *Service) RemoveBasketItem(ctx context.Context, itemID uuid.UUID) error {
	res := s.DB.WithContext(ctx).Delete(&model.BasketItemModel{}, "basket_item_id = ?", itemID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("basket item %s", itemID)
	}
	return nil
}

/* =========================
   Basket invoicing
========================= */

// GenerateBasketInvoices issues one invoice per customer on the cadence from
// their standing basket, at each product's default price. The mirror row is
// written straight away as a draft; webhooks bring it up to date.
func (s *Service) GenerateBasketInvoices(ctx context.Context, cadence tutModel.Cadence) (GenerateReport, error) {
	report := GenerateReport{Cadence: cadence}
	if !cadence.Valid() {
		return report, fmt.Errorf("unknown cadence %q", cadence)
	}

	var customers []tutModel.CustomerModel
	if err := s.DB.WithContext(ctx).
		Where("customer_is_active = ? AND customer_cadence = ?", true, cadence).
		Order("customer_name ASC").
		Find(&customers).Error; err != nil {
		return report, err
	}

	outcomes := make([]CustomerOutcome, len(customers))
	g := new(errgroup.Group)
	g.SetLimit(s.Workers)
	for i := range customers {
		i, cust := i, customers[i]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.CustomerTimeout)
			defer cancel()
			outcomes[i] = s.invoiceBasket(cctx, cust, cadence)
			return nil
		})
	}
	_ = g.Wait()
	report.Customers = outcomes

	issued, skipped, failed := report.Count()
	log.Printf("[INFO] billing: basket %s issued=%d skipped=%d failed=%d", cadence, issued, skipped, failed)
	return report, nil
}

func (s *Service) invoiceBasket(ctx context.Context, cust tutModel.CustomerModel, cadence tutModel.Cadence) CustomerOutcome {
	out := CustomerOutcome{CustomerID: cust.CustomerID, LedgerID: cust.CustomerLedgerID}
	fail := func(err error) CustomerOutcome {
		log.Printf("[ERROR] billing: basket for %s (%s): %v", cust.CustomerName, cust.CustomerLedgerID, err)
		out.Error = err.Error()
		return out
	}

	type basketRow struct {
		Quantity      int64
		ProductLedger string
		ProductName   string
		DefaultPrice  *string
		ProductActive bool
	}
	var rows []basketRow
	if err := s.DB.WithContext(ctx).
		Table("basket_items").
		Select(`basket_items.basket_item_quantity AS quantity,
			products.product_ledger_id AS product_ledger,
			products.product_name AS product_name,
			products.product_default_price_ledger_id AS default_price,
			products.product_active AS product_active`).
		Joins("JOIN products ON products.product_id = basket_items.basket_item_product_id").
		Where("basket_items.basket_item_customer_id = ?", cust.CustomerID).
		Order("basket_items.basket_item_created_at ASC").
		Scan(&rows).Error; err != nil {
		return fail(err)
	}
	if len(rows) == 0 {
		out.Skipped = true
		return out
	}

	type pricedRow struct {
		basketRow
		price *ledger.Price
	}
	priced := make([]pricedRow, 0, len(rows))
	for _, r := range rows {
		if !r.ProductActive {
			log.Printf("[WARN] billing: basket for %s skips inactive product %s", cust.CustomerName, r.ProductName)
			continue
		}
		if r.DefaultPrice == nil || *r.DefaultPrice == "" {
			return fail(fmt.Errorf("product %s (%s) has no default price", r.ProductName, r.ProductLedger))
		}
		price, err := s.Ledger.GetPrice(ctx, *r.DefaultPrice)
		if err != nil {
			return fail(err)
		}
		priced = append(priced, pricedRow{basketRow: r, price: price})
	}
	if len(priced) == 0 {
		out.Skipped = true
		return out
	}

	inv, err := s.Ledger.CreateInvoice(ctx, ledger.InvoiceParams{
		CustomerID:   cust.CustomerLedgerID,
		Currency:     s.Currency,
		DaysUntilDue: int64(cadence.Weeks() * 7),
		Metadata:     map[string]string{"cadence": string(cadence), "source": "basket"},
	})
	if err != nil {
		return fail(err)
	}
	out.InvoiceID = inv.ID

	audit := make([]model.InvoiceLineModel, 0, len(priced))
	for _, r := range priced {
		currency := r.price.Currency
		if currency == "" {
			currency = s.Currency
		}
		if err := s.Ledger.AddInvoiceItem(ctx, ledger.InvoiceItemParams{
			InvoiceID:   inv.ID,
			CustomerID:  cust.CustomerLedgerID,
			Currency:    currency,
			Quantity:    r.Quantity,
			UnitAmount:  r.price.UnitAmount,
			Description: r.ProductName,
		}); err != nil {
			s.discardDraft(ctx, inv.ID)
			out.InvoiceID = ""
			return fail(err)
		}
		audit = append(audit, model.InvoiceLineModel{
			InvoiceLineExternalInvoiceID: inv.ID,
			InvoiceLineProductLedgerID:   r.ProductLedger,
			InvoiceLineQuantity:          r.Quantity,
			InvoiceLineUnitAmount:        r.price.UnitAmount,
			InvoiceLineAmount:            r.Quantity * r.price.UnitAmount,
			InvoiceLineDescription:       r.ProductName,
		})
	}

	mirror := MirrorFromLedger(*inv, s.Clock.Now())
	mirror.LocalInvoiceStatus = model.InvoiceDraft
	if err := UpsertInvoiceMirror(s.DB.WithContext(ctx), &mirror); err != nil {
		return fail(err)
	}

	if _, err := s.Ledger.FinalizeInvoice(ctx, inv.ID); err != nil {
		return fail(err)
	}
	if len(audit) > 0 {
		if err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Create(&audit).Error
		}); err != nil {
			return fail(err)
		}
	}
	out.Linked = true
	return out
}
