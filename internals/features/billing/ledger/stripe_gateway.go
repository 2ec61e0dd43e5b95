package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"tutoring_backend/internals/helpers/apperror"
)

// StripeGateway talks to Stripe with a per-call timeout.
type StripeGateway struct {
	api     *client.API
	timeout time.Duration
}

func NewStripeGateway(secretKey string, timeout time.Duration) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is empty")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StripeGateway{api: client.New(secretKey, nil), timeout: timeout}, nil
}

func (g *StripeGateway) CreateInvoice(ctx context.Context, p InvoiceParams) (*Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.InvoiceParams{
		Customer:         stripe.String(p.CustomerID),
		CollectionMethod: stripe.String(string(stripe.InvoiceCollectionMethodSendInvoice)),
		DaysUntilDue:     stripe.Int64(p.DaysUntilDue),
		AutoAdvance:      stripe.Bool(false),
	}
	if p.Currency != "" {
		params.Currency = stripe.String(p.Currency)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	inv, err := g.api.Invoices.New(params)
	if err != nil {
		return nil, apperror.Ledger("create invoice", err)
	}
	return fromStripeInvoice(inv), nil
}

func (g *StripeGateway) AddInvoiceItem(ctx context.Context, p InvoiceItemParams) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(p.CustomerID),
		Invoice:     stripe.String(p.InvoiceID),
		Quantity:    stripe.Int64(p.Quantity),
		UnitAmount:  stripe.Int64(p.UnitAmount),
		Currency:    stripe.String(p.Currency),
		Description: stripe.String(p.Description),
	}
	params.Context = ctx

	if _, err := g.api.InvoiceItems.New(params); err != nil {
		return apperror.Ledger("create invoice item", err)
	}
	return nil
}

func (g *StripeGateway) GetPrice(ctx context.Context, priceID string) (*Price, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PriceParams{}
	params.Context = ctx
	pr, err := g.api.Prices.Get(priceID, params)
	if err != nil {
		return nil, apperror.Ledger("retrieve price", err)
	}
	out := &Price{ID: pr.ID, UnitAmount: pr.UnitAmount, Currency: string(pr.Currency)}
	if pr.Product != nil {
		out.ProductID = pr.Product.ID
	}
	return out, nil
}

func (g *StripeGateway) FinalizeInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.InvoiceFinalizeInvoiceParams{}
	params.Context = ctx
	inv, err := g.api.Invoices.FinalizeInvoice(invoiceID, params)
	if err != nil {
		return nil, apperror.Ledger("finalize invoice", err)
	}
	return fromStripeInvoice(inv), nil
}

func (g *StripeGateway) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.InvoiceParams{}
	params.Context = ctx
	inv, err := g.api.Invoices.Get(invoiceID, params)
	if err != nil {
		return nil, apperror.Ledger("retrieve invoice", err)
	}
	return fromStripeInvoice(inv), nil
}

func (g *StripeGateway) DeleteInvoice(ctx context.Context, invoiceID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.InvoiceParams{}
	params.Context = ctx
	if _, err := g.api.Invoices.Del(invoiceID, params); err != nil {
		return apperror.Ledger("delete invoice", err)
	}
	return nil
}

func fromStripeInvoice(inv *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:         inv.ID,
		Status:     string(inv.Status),
		AmountDue:  inv.AmountDue,
		AmountPaid: inv.AmountPaid,
		Currency:   string(inv.Currency),
		Created:    time.Unix(inv.Created, 0).UTC(),
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0 {
		t := time.Unix(inv.StatusTransitions.PaidAt, 0).UTC()
		out.PaidAt = &t
	}
	return out
}
