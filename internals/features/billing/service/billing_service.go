package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tutoring_backend/internals/features/billing/ledger"
	"tutoring_backend/internals/features/billing/model"
	calService "tutoring_backend/internals/features/calendar/service"
	"tutoring_backend/internals/helpers/apperror"
	"tutoring_backend/internals/helpers/dbtime"
)

type Options struct {
	Clock           dbtime.Clock
	Loc             *time.Location
	Currency        string
	Workers         int
	CustomerTimeout time.Duration

	ReconcileMaxAttempts int
	ReconcileBaseDelay   time.Duration
	ReconcileMaxDelay    time.Duration
}

type Service struct {
	DB              *gorm.DB
	Ledger          ledger.Gateway
	Calendar        *calService.Service
	Reconciler      *Reconciler
	Clock           dbtime.Clock
	Loc             *time.Location
	Currency        string
	Workers         int
	CustomerTimeout time.Duration
}

func NewService(db *gorm.DB, gw ledger.Gateway, opt Options) *Service {
	if opt.Clock == nil {
		opt.Clock = dbtime.SystemClock{}
	}
	if opt.Loc == nil {
		opt.Loc = time.UTC
	}
	if opt.Currency == "" {
		opt.Currency = "aud"
	}
	if opt.Workers < 1 {
		opt.Workers = 4
	}
	if opt.CustomerTimeout <= 0 {
		opt.CustomerTimeout = time.Minute
	}
	return &Service{
		DB:              db,
		Ledger:          gw,
		Calendar:        calService.NewService(db),
		Reconciler:      NewReconciler(db, opt.Clock, opt.ReconcileMaxAttempts, opt.ReconcileBaseDelay, opt.ReconcileMaxDelay),
		Clock:           opt.Clock,
		Loc:             opt.Loc,
		Currency:        opt.Currency,
		Workers:         opt.Workers,
		CustomerTimeout: opt.CustomerTimeout,
	}
}

/* =========================
   Local invoice mirror
========================= */

// UpsertInvoiceMirror creates or overwrites the mirror row keyed by external id
// and loads the stored row back into m.
func UpsertInvoiceMirror(tx *gorm.DB, m *model.LocalInvoiceModel) error {
	if m.LocalInvoiceSyncedAt.IsZero() {
		m.LocalInvoiceSyncedAt = time.Now().UTC()
	}
	cols := []string{
		"local_invoice_status",
		"local_invoice_amount_due",
		"local_invoice_amount_paid",
		"local_invoice_currency",
		"local_invoice_paid_at",
		"local_invoice_synced_at",
		"local_invoice_updated_at",
	}
	if m.LocalInvoiceIssuedAt != nil {
		cols = append(cols, "local_invoice_issued_at")
	}
	if m.LocalInvoiceCustomerLedgerID != nil {
		cols = append(cols, "local_invoice_customer_ledger_id")
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "local_invoice_external_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(m).Error; err != nil {
		return err
	}
	var stored model.LocalInvoiceModel
	if err := tx.Where("local_invoice_external_id = ?", m.LocalInvoiceExternalID).First(&stored).Error; err != nil {
		return err
	}
	*m = stored
	return nil
}

// MirrorFromLedger maps a ledger invoice onto a mirror row.
func MirrorFromLedger(inv ledger.Invoice, syncedAt time.Time) model.LocalInvoiceModel {
	m := model.LocalInvoiceModel{
		LocalInvoiceExternalID: inv.ID,
		LocalInvoiceStatus:     model.InvoiceStatus(inv.Status),
		LocalInvoiceAmountDue:  inv.AmountDue,
		LocalInvoiceAmountPaid: inv.AmountPaid,
		LocalInvoiceCurrency:   inv.Currency,
		LocalInvoicePaidAt:     inv.PaidAt,
		LocalInvoiceSyncedAt:   syncedAt.UTC(),
	}
	if !inv.Created.IsZero() {
		t := inv.Created.UTC()
		m.LocalInvoiceIssuedAt = &t
	}
	if inv.CustomerID != "" {
		c := inv.CustomerID
		m.LocalInvoiceCustomerLedgerID = &c
	}
	return m
}

type InvoiceView struct {
	Invoice   model.LocalInvoiceModel  `json:"invoice"`
	Lines     []model.InvoiceLineModel `json:"lines"`
	Linked    int64                    `json:"linked_attendances"`
	TaskState *model.TaskStatus        `json:"reconcile_status,omitempty"`
}

// GetInvoice returns the mirror with its audit lines and how many attendances it covers.
func (s *Service) GetInvoice(ctx context.Context, externalID string) (*InvoiceView, error) {
	db := s.DB.WithContext(ctx)
	var v InvoiceView
	if err := db.Where("local_invoice_external_id = ?", externalID).First(&v.Invoice).Error; err != nil {
		return nil, apperror.FromDB(err, fmt.Sprintf("invoice %s", externalID))
	}
	if err := db.Where("invoice_line_external_invoice_id = ?", externalID).
		Order("invoice_line_created_at ASC").Find(&v.Lines).Error; err != nil {
		return nil, err
	}
	if err := db.Table("attendances").
		Where("attendance_local_invoice_id = ?", v.Invoice.LocalInvoiceID).
		Count(&v.Linked).Error; err != nil {
		return nil, err
	}
	var task model.ReconcileTaskModel
	err := db.Where("reconcile_task_external_invoice_id = ?", externalID).Limit(1).Find(&task).Error
	if err != nil {
		return nil, err
	}
	if task.ReconcileTaskExternalInvoiceID != "" {
		st := task.ReconcileTaskStatus
		v.TaskState = &st
	}
	return &v, nil
}
