package model

// InvoiceStatus follows the ledger's invoice states.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceOpen          InvoiceStatus = "open"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceUncollectible InvoiceStatus = "uncollectible"
	InvoiceVoid          InvoiceStatus = "void"
)

// TaskStatus is the outbox state of a reconcile task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
	TaskDead    TaskStatus = "dead"
)

// LedgerEventStatus tracks webhook processing.
type LedgerEventStatus string

const (
	LedgerEventReceived  LedgerEventStatus = "received"
	LedgerEventProcessed LedgerEventStatus = "processed"
	LedgerEventFailed    LedgerEventStatus = "failed"
	LedgerEventIgnored   LedgerEventStatus = "ignored"
)
