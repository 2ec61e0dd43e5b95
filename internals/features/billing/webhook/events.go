// Package webhook turns signed ledger callbacks into updates of the local
// catalogue and invoice mirror.
package webhook

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stripe/stripe-go/v76"
)

// ErrUnhandled marks event types this service does not act on.
var ErrUnhandled = errors.New("unhandled event type")

// Action is the lifecycle verb of an event type ("product.created" -> created).
type Action string

const (
	ActionCreated          Action = "created"
	ActionUpdated          Action = "updated"
	ActionDeleted          Action = "deleted"
	ActionPaid             Action = "paid"
	ActionPaymentSucceeded Action = "payment_succeeded"
)

// Handler has one method per event variant; adding a variant breaks every
// implementation until it is handled.
type Handler interface {
	Product(ProductEvent) error
	Customer(CustomerEvent) error
	Price(PriceEvent) error
	InvoiceChanged(InvoiceEvent) error
	InvoiceVoided(InvoiceVoidedEvent) error
	InvoiceDeleted(InvoiceDeletedEvent) error
}

// Event is closed: only the variants below implement it.
type Event interface {
	Meta() Meta
	Accept(Handler) error
	isEvent()
}

type Meta struct {
	ID      string
	Type    string
	Created time.Time
}

/* =========================
   Payloads
========================= */

// ExpandableID reads a field the ledger sends either as an id or as an
// expanded object carrying one.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := sonic.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := sonic.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

type ProductPayload struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Active       *bool        `json:"active"`
	DefaultPrice ExpandableID `json:"default_price"`
}

type CustomerPayload struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
}

type PricePayload struct {
	ID         string       `json:"id"`
	Product    ExpandableID `json:"product"`
	UnitAmount *int64       `json:"unit_amount"`
	Currency   string       `json:"currency"`
	Active     *bool        `json:"active"`
}

type InvoicePayload struct {
	ID                string       `json:"id"`
	Customer          ExpandableID `json:"customer"`
	Status            string       `json:"status"`
	AmountDue         int64        `json:"amount_due"`
	AmountPaid        int64        `json:"amount_paid"`
	Currency          string       `json:"currency"`
	Created           int64        `json:"created"`
	StatusTransitions struct {
		PaidAt *int64 `json:"paid_at"`
	} `json:"status_transitions"`
	ReplacedBy *string `json:"replaced_by"`
}

/* =========================
   Variants
========================= */

type ProductEvent struct {
	meta    Meta
	Action  Action
	Product ProductPayload
}

type CustomerEvent struct {
	meta     Meta
	Action   Action
	Customer CustomerPayload
}

type PriceEvent struct {
	meta   Meta
	Action Action
	Price  PricePayload
}

// InvoiceEvent covers created, updated, paid and payment_succeeded.
type InvoiceEvent struct {
	meta    Meta
	Action  Action
	Invoice InvoicePayload
}

type InvoiceVoidedEvent struct {
	meta    Meta
	Invoice InvoicePayload
}

type InvoiceDeletedEvent struct {
	meta    Meta
	Invoice InvoicePayload
}

func (e ProductEvent) Meta() Meta        { return e.meta }
func (e CustomerEvent) Meta() Meta       { return e.meta }
func (e PriceEvent) Meta() Meta          { return e.meta }
func (e InvoiceEvent) Meta() Meta        { return e.meta }
func (e InvoiceVoidedEvent) Meta() Meta  { return e.meta }
func (e InvoiceDeletedEvent) Meta() Meta { return e.meta }

func (e ProductEvent) Accept(h Handler) error        { return h.Product(e) }
func (e CustomerEvent) Accept(h Handler) error       { return h.Customer(e) }
func (e PriceEvent) Accept(h Handler) error          { return h.Price(e) }
func (e InvoiceEvent) Accept(h Handler) error        { return h.InvoiceChanged(e) }
func (e InvoiceVoidedEvent) Accept(h Handler) error  { return h.InvoiceVoided(e) }
func (e InvoiceDeletedEvent) Accept(h Handler) error { return h.InvoiceDeleted(e) }

func (ProductEvent) isEvent()        {}
func (CustomerEvent) isEvent()       {}
func (PriceEvent) isEvent()          {}
func (InvoiceEvent) isEvent()        {}
func (InvoiceVoidedEvent) isEvent()  {}
func (InvoiceDeletedEvent) isEvent() {}

/* =========================
   Decode
========================= */

// Decode maps a verified ledger event onto its variant. Unknown types return
// ErrUnhandled; a payload that does not parse is an error.
func Decode(evt stripe.Event) (Event, error) {
	meta := Meta{ID: evt.ID, Type: string(evt.Type), Created: time.Unix(evt.Created, 0).UTC()}
	if evt.Data == nil {
		return nil, fmt.Errorf("event %s has no data", evt.ID)
	}
	raw := evt.Data.Raw

	switch evt.Type {
	case "product.created", "product.updated", "product.deleted":
		var p ProductPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return ProductEvent{meta: meta, Action: actionOf(evt.Type), Product: p}, nil

	case "customer.created", "customer.updated", "customer.deleted":
		var p CustomerPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return CustomerEvent{meta: meta, Action: actionOf(evt.Type), Customer: p}, nil

	case "price.created", "price.updated", "price.deleted":
		var p PricePayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return PriceEvent{meta: meta, Action: actionOf(evt.Type), Price: p}, nil

	case "invoice.created", "invoice.updated", "invoice.paid", "invoice.payment_succeeded":
		var p InvoicePayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return InvoiceEvent{meta: meta, Action: actionOf(evt.Type), Invoice: p}, nil

	case "invoice.voided":
		var p InvoicePayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return InvoiceVoidedEvent{meta: meta, Invoice: p}, nil

	case "invoice.deleted":
		var p InvoicePayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return InvoiceDeletedEvent{meta: meta, Invoice: p}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnhandled, evt.Type)
}

type idCarrier interface{ objectID() string }

func (p ProductPayload) objectID() string  { return p.ID }
func (p CustomerPayload) objectID() string { return p.ID }
func (p PricePayload) objectID() string    { return p.ID }
func (p InvoicePayload) objectID() string  { return p.ID }

func decodePayload[T idCarrier](raw []byte, dst *T) error {
	if err := sonic.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if (*dst).objectID() == "" {
		return fmt.Errorf("%w: object has no id", ErrMalformed)
	}
	return nil
}

func actionOf(t stripe.EventType) Action {
	s := string(t)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return Action(s[i+1:])
		}
	}
	return Action(s)
}
