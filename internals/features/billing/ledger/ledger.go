// Package ledger is the boundary to the external invoicing service: create an
// invoice, add line items, look up a unit price, finalize, fetch.
package ledger

import (
	"context"
	"time"
)

type Invoice struct {
	ID         string
	CustomerID string
	Status     string
	AmountDue  int64
	AmountPaid int64
	Currency   string
	Created    time.Time
	PaidAt     *time.Time
}

type Price struct {
	ID         string
	ProductID  string
	UnitAmount int64
	Currency   string
}

type InvoiceParams struct {
	CustomerID   string
	Currency     string
	DaysUntilDue int64
	Description  string
	Metadata     map[string]string
}

type InvoiceItemParams struct {
	InvoiceID   string
	CustomerID  string
	Currency    string
	Quantity    int64
	UnitAmount  int64
	Description string
}

// Gateway invoices are always collected with "send invoice", never auto-charged.
type Gateway interface {
	CreateInvoice(ctx context.Context, p InvoiceParams) (*Invoice, error)
	AddInvoiceItem(ctx context.Context, p InvoiceItemParams) error
	GetPrice(ctx context.Context, priceID string) (*Price, error)
	FinalizeInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	// DeleteInvoice discards a draft; finalized invoices cannot be deleted.
	DeleteInvoice(ctx context.Context, invoiceID string) error
}
