package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tutoring_backend/internals/features/billing/ledger"
	"tutoring_backend/internals/features/billing/model"
	"tutoring_backend/internals/helpers/dbtime"
)

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

type Result struct {
	Outcome Outcome `json:"outcome"`
	EventID string  `json:"event_id,omitempty"`
	Type    string  `json:"type,omitempty"`
}

// Processor verifies, logs and applies one ledger callback.
type Processor struct {
	DB       *gorm.DB
	Verifier Verifier
	Ledger   ledger.Gateway
	Clock    dbtime.Clock
}

func NewProcessor(db *gorm.DB, v Verifier, gw ledger.Gateway, clock dbtime.Clock) *Processor {
	if clock == nil {
		clock = dbtime.SystemClock{}
	}
	return &Processor{DB: db, Verifier: v, Ledger: gw, Clock: clock}
}

// Handle returns ErrBadSignature or ErrMalformed before touching the database.
// Any other error means the event was logged as failed and should be retried.
func (p *Processor) Handle(ctx context.Context, payload []byte, header string) (Result, error) {
	evt, err := p.Verifier.Verify(payload, header)
	if err != nil {
		return Result{}, err
	}
	res := Result{EventID: evt.ID, Type: string(evt.Type)}
	if evt.ID == "" {
		return res, fmt.Errorf("%w: event has no id", ErrMalformed)
	}

	ev, decErr := Decode(evt)
	if decErr != nil && !errors.Is(decErr, ErrUnhandled) {
		if !errors.Is(decErr, ErrMalformed) {
			decErr = fmt.Errorf("%w: %v", ErrMalformed, decErr)
		}
		return res, decErr
	}

	row, fresh, err := p.logEvent(ctx, evt.ID, string(evt.Type), payload)
	if err != nil {
		return res, err
	}
	if !fresh && (row.LedgerEventStatus == model.LedgerEventProcessed || row.LedgerEventStatus == model.LedgerEventIgnored) {
		log.Printf("[WEBHOOK] duplicate event id=%s type=%s", evt.ID, evt.Type)
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	if ev == nil {
		log.Printf("[WEBHOOK] ignored event id=%s type=%s", evt.ID, evt.Type)
		res.Outcome = OutcomeIgnored
		return res, p.finish(ctx, row, model.LedgerEventIgnored, nil)
	}

	if applyErr := p.apply(ctx, ev); applyErr != nil {
		log.Printf("[ERROR] webhook apply id=%s type=%s: %v", evt.ID, evt.Type, applyErr)
		if err := p.finish(ctx, row, model.LedgerEventFailed, applyErr); err != nil {
			log.Printf("[ERROR] webhook status update id=%s: %v", evt.ID, err)
		}
		return res, applyErr
	}
	res.Outcome = OutcomeProcessed
	log.Printf("[WEBHOOK] processed event id=%s type=%s", evt.ID, evt.Type)
	return res, p.finish(ctx, row, model.LedgerEventProcessed, nil)
}

// apply runs the handler in one transaction. A voided invoice that was replaced
// needs its successor, which is fetched before the transaction opens.
func (p *Processor) apply(ctx context.Context, ev Event) error {
	var successor *ledger.Invoice
	if v, ok := ev.(InvoiceVoidedEvent); ok && v.Invoice.ReplacedBy != nil && *v.Invoice.ReplacedBy != "" {
		if p.Ledger == nil {
			return fmt.Errorf("fetch replacement %s: no ledger gateway", *v.Invoice.ReplacedBy)
		}
		inv, err := p.Ledger.GetInvoice(ctx, *v.Invoice.ReplacedBy)
		if err != nil {
			return fmt.Errorf("fetch replacement %s: %w", *v.Invoice.ReplacedBy, err)
		}
		successor = inv
	}
	now := p.Clock.Now().UTC()
	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ev.Accept(&applier{tx: tx, now: now, successor: successor})
	})
}

func (p *Processor) logEvent(ctx context.Context, id, typ string, payload []byte) (*model.LedgerEventModel, bool, error) {
	db := p.DB.WithContext(ctx)
	row := model.LedgerEventModel{
		LedgerEventExternalID: id,
		LedgerEventType:       typ,
		LedgerEventPayload:    datatypes.JSON(payload),
		LedgerEventStatus:     model.LedgerEventReceived,
		LedgerEventTryCount:   1,
		LedgerEventReceivedAt: p.Clock.Now().UTC(),
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ledger_event_external_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return &row, true, nil
	}

	var existing model.LedgerEventModel
	if err := db.Where("ledger_event_external_id = ?", id).First(&existing).Error; err != nil {
		return nil, false, err
	}
	if existing.LedgerEventStatus == model.LedgerEventProcessed || existing.LedgerEventStatus == model.LedgerEventIgnored {
		return &existing, false, nil
	}
	existing.LedgerEventTryCount++
	if err := db.Model(&existing).Update("ledger_event_try_count", existing.LedgerEventTryCount).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (p *Processor) finish(ctx context.Context, row *model.LedgerEventModel, status model.LedgerEventStatus, cause error) error {
	now := p.Clock.Now().UTC()
	updates := map[string]any{
		"ledger_event_status":       status,
		"ledger_event_processed_at": &now,
		"ledger_event_error":        nil,
	}
	if cause != nil {
		msg := cause.Error()
		updates["ledger_event_error"] = &msg
		updates["ledger_event_processed_at"] = nil
	}
	return p.DB.WithContext(ctx).Model(&model.LedgerEventModel{}).
		Where("ledger_event_id = ?", row.LedgerEventID).
		Updates(updates).Error
}

// ListEvents pages through callbacks newest first, optionally filtered by status.
func (p *Processor) ListEvents(ctx context.Context, status string, limit, offset int) ([]model.LedgerEventModel, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	q := p.DB.WithContext(ctx).Model(&model.LedgerEventModel{})
	if status != "" {
		q = q.Where("ledger_event_status = ?", status)
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []model.LedgerEventModel
	err := q.Order("ledger_event_received_at DESC").Limit(limit).Offset(offset).Find(&rows).Error
	return rows, total, err
}

func unixPtr(sec *int64) *time.Time {
	if sec == nil || *sec <= 0 {
		return nil
	}
	t := time.Unix(*sec, 0).UTC()
	return &t
}
