// Package ledgertest provides an in-memory ledger.Gateway for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tutoring_backend/internals/features/billing/ledger"
	"tutoring_backend/internals/helpers/apperror"
)

type Item struct {
	ledger.InvoiceItemParams
}

type IssuedInvoice struct {
	Params    ledger.InvoiceParams
	Invoice   ledger.Invoice
	Items     []Item
	Finalized bool
}

// Fake records every call. Failures can be injected per customer or per price.
type Fake struct {
	mu       sync.Mutex
	seq      int
	Prices   map[string]ledger.Price
	Invoices map[string]*IssuedInvoice
	Order    []string

	FailCreateFor   map[string]error
	FailItemFor     map[string]error
	FailFinalizeFor map[string]error
	FailPrice       map[string]error

	// Deleted holds the ids of discarded drafts.
	Deleted []string

	// OnFinalize runs after a successful finalize, outside the lock.
	OnFinalize func(inv ledger.Invoice)
	// Delay is applied to CreateInvoice; it honours ctx cancellation.
	Delay time.Duration
}

func New() *Fake {
	return &Fake{
		Prices:          map[string]ledger.Price{},
		Invoices:        map[string]*IssuedInvoice{},
		FailCreateFor:   map[string]error{},
		FailItemFor:     map[string]error{},
		FailFinalizeFor: map[string]error{},
		FailPrice:       map[string]error{},
	}
}

func (f *Fake) SetPrice(id, productID string, unitAmount int64, currency string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prices[id] = ledger.Price{ID: id, ProductID: productID, UnitAmount: unitAmount, Currency: currency}
}

func (f *Fake) CreateInvoice(ctx context.Context, p ledger.InvoiceParams) (*ledger.Invoice, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, apperror.Ledger("create invoice", ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailCreateFor[p.CustomerID]; err != nil {
		return nil, apperror.Ledger("create invoice", err)
	}
	f.seq++
	inv := ledger.Invoice{
		ID:         fmt.Sprintf("in_test_%d", f.seq),
		CustomerID: p.CustomerID,
		Status:     "draft",
		Currency:   p.Currency,
		Created:    time.Now().UTC(),
	}
	f.Invoices[inv.ID] = &IssuedInvoice{Params: p, Invoice: inv}
	f.Order = append(f.Order, inv.ID)
	out := inv
	return &out, nil
}

func (f *Fake) AddInvoiceItem(ctx context.Context, p ledger.InvoiceItemParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.Invoices[p.InvoiceID]
	if !ok {
		return apperror.Ledger("create invoice item", fmt.Errorf("no such invoice %s", p.InvoiceID))
	}
	if err := f.FailItemFor[p.CustomerID]; err != nil {
		return apperror.Ledger("create invoice item", err)
	}
	iss.Items = append(iss.Items, Item{p})
	iss.Invoice.AmountDue += p.Quantity * p.UnitAmount
	return nil
}

func (f *Fake) GetPrice(ctx context.Context, priceID string) (*ledger.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailPrice[priceID]; err != nil {
		return nil, apperror.Ledger("retrieve price", err)
	}
	p, ok := f.Prices[priceID]
	if !ok {
		return nil, apperror.Ledger("retrieve price", fmt.Errorf("no such price %s", priceID))
	}
	return &p, nil
}

func (f *Fake) FinalizeInvoice(ctx context.Context, invoiceID string) (*ledger.Invoice, error) {
	f.mu.Lock()
	iss, ok := f.Invoices[invoiceID]
	if !ok {
		f.mu.Unlock()
		return nil, apperror.Ledger("finalize invoice", fmt.Errorf("no such invoice %s", invoiceID))
	}
	if err := f.FailFinalizeFor[iss.Params.CustomerID]; err != nil {
		f.mu.Unlock()
		return nil, apperror.Ledger("finalize invoice", err)
	}
	iss.Finalized = true
	iss.Invoice.Status = "open"
	out := iss.Invoice
	hook := f.OnFinalize
	f.mu.Unlock()

	if hook != nil {
		hook(out)
	}
	return &out, nil
}

func (f *Fake) GetInvoice(ctx context.Context, invoiceID string) (*ledger.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.Invoices[invoiceID]
	if !ok {
		return nil, apperror.Ledger("retrieve invoice", fmt.Errorf("no such invoice %s", invoiceID))
	}
	out := iss.Invoice
	return &out, nil
}

func (f *Fake) DeleteInvoice(ctx context.Context, invoiceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.Invoices[invoiceID]
	if !ok {
		return apperror.Ledger("delete invoice", fmt.Errorf("no such invoice %s", invoiceID))
	}
	if iss.Finalized {
		return apperror.Ledger("delete invoice", fmt.Errorf("invoice %s is %s", invoiceID, iss.Invoice.Status))
	}
	delete(f.Invoices, invoiceID)
	for i, id := range f.Order {
		if id == invoiceID {
			f.Order = append(f.Order[:i], f.Order[i+1:]...)
			break
		}
	}
	f.Deleted = append(f.Deleted, invoiceID)
	return nil
}

// Put registers an invoice that exists only on the ledger side.
func (f *Fake) Put(inv ledger.Invoice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Invoices[inv.ID] = &IssuedInvoice{Invoice: inv, Finalized: inv.Status != "draft"}
}

// Issued returns invoices in creation order.
func (f *Fake) Issued() []IssuedInvoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]IssuedInvoice, 0, len(f.Order))
	for _, id := range f.Order {
		out = append(out, *f.Invoices[id])
	}
	return out
}

var _ ledger.Gateway = (*Fake)(nil)
