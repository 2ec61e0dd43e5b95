package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/* =========================
   Product / Price (ledger catalogue mirror)
========================= */

type ProductModel struct {
	ProductID                   uuid.UUID `gorm:"type:uuid;primaryKey;column:product_id" json:"product_id"`
	ProductLedgerID             string    `gorm:"type:varchar(100);not null;uniqueIndex:uq_products_ledger_id;column:product_ledger_id" json:"product_ledger_id"`
	ProductName                 string    `gorm:"type:varchar(200);not null;column:product_name" json:"product_name"`
	ProductActive               bool      `gorm:"not null;column:product_active" json:"product_active"`
	ProductDefaultPriceLedgerID *string   `gorm:"type:varchar(100);column:product_default_price_ledger_id" json:"product_default_price_ledger_id,omitempty"`

	ProductCreatedAt time.Time `gorm:"not null;autoCreateTime;column:product_created_at" json:"product_created_at"`
	ProductUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:product_updated_at" json:"product_updated_at"`
}

func (ProductModel) TableName() string { return "products" }

func (m *ProductModel) BeforeCreate(tx *gorm.DB) error {
	if m.ProductID == uuid.Nil {
		m.ProductID = uuid.New()
	}
	return nil
}

type PriceModel struct {
	PriceID              uuid.UUID `gorm:"type:uuid;primaryKey;column:price_id" json:"price_id"`
	PriceLedgerID        string    `gorm:"type:varchar(100);not null;uniqueIndex:uq_prices_ledger_id;column:price_ledger_id" json:"price_ledger_id"`
	PriceProductLedgerID string    `gorm:"type:varchar(100);not null;index:idx_prices_product;column:price_product_ledger_id" json:"price_product_ledger_id"`
	// minor units (cents)
	PriceUnitAmount int64  `gorm:"not null;column:price_unit_amount" json:"price_unit_amount"`
	PriceCurrency   string `gorm:"type:varchar(10);not null;column:price_currency" json:"price_currency"`
	PriceActive     bool   `gorm:"not null;column:price_active" json:"price_active"`

	PriceCreatedAt time.Time `gorm:"not null;autoCreateTime;column:price_created_at" json:"price_created_at"`
	PriceUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:price_updated_at" json:"price_updated_at"`
}

func (PriceModel) TableName() string { return "prices" }

func (m *PriceModel) BeforeCreate(tx *gorm.DB) error {
	if m.PriceID == uuid.Nil {
		m.PriceID = uuid.New()
	}
	return nil
}

func (m *PriceModel) BeforeSave(tx *gorm.DB) error {
	m.PriceCurrency = strings.ToLower(strings.TrimSpace(m.PriceCurrency))
	if m.PriceUnitAmount < 0 {
		return errors.New("price_unit_amount must be >= 0")
	}
	return nil
}

/* =========================
   LocalInvoice (mirror of a ledger invoice)
========================= */

type LocalInvoiceModel struct {
	LocalInvoiceID               uuid.UUID     `gorm:"type:uuid;primaryKey;column:local_invoice_id" json:"local_invoice_id"`
	LocalInvoiceExternalID       string        `gorm:"type:varchar(100);not null;uniqueIndex:uq_local_invoices_external_id;column:local_invoice_external_id" json:"local_invoice_external_id"`
	LocalInvoiceCustomerLedgerID *string       `gorm:"type:varchar(100);index:idx_local_invoices_customer;column:local_invoice_customer_ledger_id" json:"local_invoice_customer_ledger_id,omitempty"`
	LocalInvoiceStatus           InvoiceStatus `gorm:"type:varchar(20);not null;column:local_invoice_status" json:"local_invoice_status"`
	LocalInvoiceAmountDue        int64         `gorm:"not null;column:local_invoice_amount_due" json:"local_invoice_amount_due"`
	LocalInvoiceAmountPaid       int64         `gorm:"not null;column:local_invoice_amount_paid" json:"local_invoice_amount_paid"`
	LocalInvoiceCurrency         string        `gorm:"type:varchar(10);not null;column:local_invoice_currency" json:"local_invoice_currency"`

	// ledger-side timestamps
	LocalInvoiceIssuedAt *time.Time `gorm:"column:local_invoice_issued_at" json:"local_invoice_issued_at,omitempty"`
	LocalInvoicePaidAt   *time.Time `gorm:"column:local_invoice_paid_at" json:"local_invoice_paid_at,omitempty"`
	LocalInvoiceSyncedAt time.Time  `gorm:"not null;column:local_invoice_synced_at" json:"local_invoice_synced_at"`

	LocalInvoiceCreatedAt time.Time `gorm:"not null;autoCreateTime;column:local_invoice_created_at" json:"local_invoice_created_at"`
	LocalInvoiceUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:local_invoice_updated_at" json:"local_invoice_updated_at"`
}

func (LocalInvoiceModel) TableName() string { return "local_invoices" }

func (m *LocalInvoiceModel) BeforeCreate(tx *gorm.DB) error {
	if m.LocalInvoiceID == uuid.Nil {
		m.LocalInvoiceID = uuid.New()
	}
	if m.LocalInvoiceSyncedAt.IsZero() {
		m.LocalInvoiceSyncedAt = time.Now().UTC()
	}
	return nil
}

func (m *LocalInvoiceModel) BeforeSave(tx *gorm.DB) error {
	if strings.TrimSpace(m.LocalInvoiceExternalID) == "" {
		return errors.New("local_invoice_external_id is required")
	}
	if m.LocalInvoiceStatus == "" {
		m.LocalInvoiceStatus = InvoiceDraft
	}
	m.LocalInvoiceCurrency = strings.ToLower(m.LocalInvoiceCurrency)
	return nil
}

/* =========================
   InvoiceLine (audit of issued items)
========================= */

type InvoiceLineModel struct {
	InvoiceLineID                uuid.UUID      `gorm:"type:uuid;primaryKey;column:invoice_line_id" json:"invoice_line_id"`
	InvoiceLineExternalInvoiceID string         `gorm:"type:varchar(100);not null;index:idx_invoice_lines_invoice;column:invoice_line_external_invoice_id" json:"invoice_line_external_invoice_id"`
	InvoiceLineProductLedgerID   string         `gorm:"type:varchar(100);not null;column:invoice_line_product_ledger_id" json:"invoice_line_product_ledger_id"`
	InvoiceLineQuantity          int64          `gorm:"not null;column:invoice_line_quantity" json:"invoice_line_quantity"`
	InvoiceLineUnitAmount        int64          `gorm:"not null;column:invoice_line_unit_amount" json:"invoice_line_unit_amount"`
	InvoiceLineAmount            int64          `gorm:"not null;column:invoice_line_amount" json:"invoice_line_amount"`
	InvoiceLineDescription       string         `gorm:"type:text;not null;column:invoice_line_description" json:"invoice_line_description"`
	InvoiceLineStudentNames      pq.StringArray `gorm:"type:text[];column:invoice_line_student_names" json:"invoice_line_student_names"`

	InvoiceLineCreatedAt time.Time `gorm:"not null;autoCreateTime;column:invoice_line_created_at" json:"invoice_line_created_at"`
}

func (InvoiceLineModel) TableName() string { return "invoice_lines" }

func (m *InvoiceLineModel) BeforeCreate(tx *gorm.DB) error {
	if m.InvoiceLineID == uuid.Nil {
		m.InvoiceLineID = uuid.New()
	}
	return nil
}

/* =========================
   ReconcileTask (outbox)
========================= */

type ReconcileTaskModel struct {
	ReconcileTaskID                uuid.UUID      `gorm:"type:uuid;primaryKey;column:reconcile_task_id" json:"reconcile_task_id"`
	ReconcileTaskExternalInvoiceID string         `gorm:"type:varchar(100);not null;uniqueIndex:uq_reconcile_tasks_invoice;column:reconcile_task_external_invoice_id" json:"reconcile_task_external_invoice_id"`
	ReconcileTaskCustomerID        uuid.UUID      `gorm:"type:uuid;not null;column:reconcile_task_customer_id" json:"reconcile_task_customer_id"`
	ReconcileTaskAttendanceIDs     datatypes.JSON `gorm:"not null;column:reconcile_task_attendance_ids" json:"reconcile_task_attendance_ids"`
	ReconcileTaskStatus            TaskStatus     `gorm:"type:varchar(20);not null;index:idx_reconcile_tasks_due,priority:1;column:reconcile_task_status" json:"reconcile_task_status"`
	ReconcileTaskAttempts          int            `gorm:"not null;column:reconcile_task_attempts" json:"reconcile_task_attempts"`
	ReconcileTaskNextAttemptAt     time.Time      `gorm:"not null;index:idx_reconcile_tasks_due,priority:2;column:reconcile_task_next_attempt_at" json:"reconcile_task_next_attempt_at"`
	ReconcileTaskLastError         *string        `gorm:"type:text;column:reconcile_task_last_error" json:"reconcile_task_last_error,omitempty"`

	ReconcileTaskCreatedAt time.Time `gorm:"not null;autoCreateTime;column:reconcile_task_created_at" json:"reconcile_task_created_at"`
	ReconcileTaskUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:reconcile_task_updated_at" json:"reconcile_task_updated_at"`
}

func (ReconcileTaskModel) TableName() string { return "reconcile_tasks" }

func (m *ReconcileTaskModel) BeforeCreate(tx *gorm.DB) error {
	if m.ReconcileTaskID == uuid.Nil {
		m.ReconcileTaskID = uuid.New()
	}
	if m.ReconcileTaskStatus == "" {
		m.ReconcileTaskStatus = TaskPending
	}
	return nil
}

func (m *ReconcileTaskModel) SetAttendanceIDs(ids []uuid.UUID) error {
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	m.ReconcileTaskAttendanceIDs = datatypes.JSON(b)
	return nil
}

func (m ReconcileTaskModel) AttendanceIDs() ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if len(m.ReconcileTaskAttendanceIDs) == 0 {
		return ids, nil
	}
	err := json.Unmarshal(m.ReconcileTaskAttendanceIDs, &ids)
	return ids, err
}

/* =========================
   LedgerEvent (webhook log)
========================= */

type LedgerEventModel struct {
	LedgerEventID          uuid.UUID         `gorm:"type:uuid;primaryKey;column:ledger_event_id" json:"ledger_event_id"`
	LedgerEventExternalID  string            `gorm:"type:varchar(100);not null;uniqueIndex:uq_ledger_events_external_id;column:ledger_event_external_id" json:"ledger_event_external_id"`
	LedgerEventType        string            `gorm:"type:varchar(100);not null;column:ledger_event_type" json:"ledger_event_type"`
	LedgerEventPayload     datatypes.JSON    `gorm:"column:ledger_event_payload" json:"ledger_event_payload"`
	LedgerEventStatus      LedgerEventStatus `gorm:"type:varchar(20);not null;column:ledger_event_status" json:"ledger_event_status"`
	LedgerEventError       *string           `gorm:"type:text;column:ledger_event_error" json:"ledger_event_error,omitempty"`
	LedgerEventTryCount    int               `gorm:"not null;column:ledger_event_try_count" json:"ledger_event_try_count"`
	LedgerEventReceivedAt  time.Time         `gorm:"not null;column:ledger_event_received_at" json:"ledger_event_received_at"`
	LedgerEventProcessedAt *time.Time        `gorm:"column:ledger_event_processed_at" json:"ledger_event_processed_at,omitempty"`
}

func (LedgerEventModel) TableName() string { return "ledger_events" }

func (m *LedgerEventModel) BeforeCreate(tx *gorm.DB) error {
	if m.LedgerEventID == uuid.Nil {
		m.LedgerEventID = uuid.New()
	}
	if m.LedgerEventStatus == "" {
		m.LedgerEventStatus = LedgerEventReceived
	}
	if m.LedgerEventReceivedAt.IsZero() {
		m.LedgerEventReceivedAt = time.Now().UTC()
	}
	return nil
}

/* =========================
   BasketItem (ad-hoc charges)
========================= */

type BasketItemModel struct {
	BasketItemID         uuid.UUID `gorm:"type:uuid;primaryKey;column:basket_item_id" json:"basket_item_id"`
	BasketItemCustomerID uuid.UUID `gorm:"type:uuid;not null;index:idx_basket_items_customer;column:basket_item_customer_id" json:"basket_item_customer_id"`
	BasketItemProductID  uuid.UUID `gorm:"type:uuid;not null;column:basket_item_product_id" json:"basket_item_product_id"`
	BasketItemQuantity   int64     `gorm:"not null;column:basket_item_quantity" json:"basket_item_quantity"`

	BasketItemCreatedAt time.Time `gorm:"not null;autoCreateTime;column:basket_item_created_at" json:"basket_item_created_at"`
}

func (BasketItemModel) TableName() string { return "basket_items" }

func (m *BasketItemModel) BeforeCreate(tx *gorm.DB) error {
	if m.BasketItemID == uuid.Nil {
		m.BasketItemID = uuid.New()
	}
	return nil
}

func (m *BasketItemModel) BeforeSave(tx *gorm.DB) error {
	if m.BasketItemQuantity < 1 {
		return errors.New("basket_item_quantity must be >= 1")
	}
	return nil
}
