package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"tutoring_backend/internals/features/billing/ledger"
	"tutoring_backend/internals/features/billing/model"
	tutModel "tutoring_backend/internals/features/tutoring/model"
)

type CustomerOutcome struct {
	CustomerID    uuid.UUID   `json:"customer_id"`
	LedgerID      string      `json:"customer_ledger_id"`
	InvoiceID     string      `json:"invoice_id,omitempty"`
	AttendanceIDs []uuid.UUID `json:"attendance_ids,omitempty"`
	Linked        bool        `json:"linked"`
	Skipped       bool        `json:"skipped,omitempty"`
	Error         string      `json:"error,omitempty"`
}

type GenerateReport struct {
	Cadence   tutModel.Cadence  `json:"cadence"`
	Period    string            `json:"period"`
	Customers []CustomerOutcome `json:"customers"`
}

func (r GenerateReport) Count() (issued, skipped, failed int) {
	for _, c := range r.Customers {
		switch {
		case c.Error != "":
			failed++
		case c.Skipped:
			skipped++
		case c.InvoiceID != "":
			issued++
		}
	}
	return
}

// billableRow is one unpaid, uninvoiced attendance inside the window.
type billableRow struct {
	AttendanceID uuid.UUID
	StudentName  string
	LessonLength int
	ProductID    *uuid.UUID
}

type productLine struct {
	Product  model.ProductModel
	Quantity int64
	Students []string
}

// GenerateInvoices bills every active customer on the cadence for the
// selected window. One customer's failure never stops the others.
func (s *Service) GenerateInvoices(ctx context.Context, cadence tutModel.Cadence) (GenerateReport, error) {
	report := GenerateReport{Cadence: cadence}
	if !cadence.Valid() {
		return report, fmt.Errorf("unknown cadence %q", cadence)
	}

	window, err := s.SelectWeeksToInvoice(ctx, cadence.Weeks())
	if err != nil {
		return report, err
	}
	if window.Empty() {
		return report, nil
	}
	report.Period = BillingPeriodDescriptor(window)

	var customers []tutModel.CustomerModel
	if err := s.DB.WithContext(ctx).
		Where("customer_is_active = ? AND customer_cadence = ?", true, cadence).
		Order("customer_name ASC").
		Find(&customers).Error; err != nil {
		return report, err
	}

	excluded, err := s.Reconciler.PendingAttendanceIDs(ctx)
	if err != nil {
		return report, err
	}

	weekIDs := make([]uuid.UUID, 0, len(window.Weeks))
	for _, w := range window.Weeks {
		weekIDs = append(weekIDs, w.WeekID)
	}

	var (
		mu       sync.Mutex
		outcomes = make([]CustomerOutcome, len(customers))
	)
	g := new(errgroup.Group)
	g.SetLimit(s.Workers)
	for i := range customers {
		i, cust := i, customers[i]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.CustomerTimeout)
			defer cancel()

			out := s.invoiceCustomer(cctx, cust, cadence, window, weekIDs, excluded)
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	report.Customers = outcomes

	issued, skipped, failed := report.Count()
	log.Printf("[INFO] billing: %s %q issued=%d skipped=%d failed=%d",
		cadence, report.Period, issued, skipped, failed)
	return report, nil
}

func (s *Service) invoiceCustomer(
	ctx context.Context,
	cust tutModel.CustomerModel,
	cadence tutModel.Cadence,
	window Window,
	weekIDs []uuid.UUID,
	excluded map[uuid.UUID]struct{},
) CustomerOutcome {
	out := CustomerOutcome{CustomerID: cust.CustomerID, LedgerID: cust.CustomerLedgerID}
	fail := func(err error) CustomerOutcome {
		log.Printf("[ERROR] billing: customer %s (%s): %v", cust.CustomerName, cust.CustomerLedgerID, err)
		out.Error = err.Error()
		return out
	}

	rows, err := s.billableAttendances(ctx, cust.CustomerID, weekIDs)
	if err != nil {
		return fail(err)
	}
	filtered := rows[:0]
	for _, r := range rows {
		if _, busy := excluded[r.AttendanceID]; !busy {
			filtered = append(filtered, r)
		}
	}
	rows = filtered
	if len(rows) == 0 {
		log.Printf("[WARN] billing: customer %s has nothing to bill for %s", cust.CustomerName, BillingPeriodDescriptor(window))
		out.Skipped = true
		return out
	}

	lines, ids, err := s.groupByProduct(ctx, cust, rows)
	if err != nil {
		return fail(err)
	}
	if len(lines) == 0 {
		out.Skipped = true
		return out
	}

	// resolve prices first so a bad price leaves no draft on the ledger
	prices := make([]*ledger.Price, len(lines))
	for i, l := range lines {
		price, err := s.Ledger.GetPrice(ctx, *l.Product.ProductDefaultPriceLedgerID)
		if err != nil {
			return fail(err)
		}
		prices[i] = price
	}

	period := BillingPeriodDescriptor(window)
	inv, err := s.Ledger.CreateInvoice(ctx, ledger.InvoiceParams{
		CustomerID:   cust.CustomerLedgerID,
		Currency:     s.Currency,
		DaysUntilDue: int64(cadence.Weeks() * 7),
		Description:  period,
		Metadata: map[string]string{
			"billing_period": period,
			"cadence":        string(cadence),
			"term":           window.Term.Code(),
			"weeks":          weekSpan(window),
		},
	})
	if err != nil {
		return fail(err)
	}
	out.InvoiceID = inv.ID

	audit := make([]model.InvoiceLineModel, 0, len(lines))
	for i, l := range lines {
		price := prices[i]
		currency := price.Currency
		if currency == "" {
			currency = s.Currency
		}
		desc := fmt.Sprintf("%s: %s", l.Product.ProductName, strings.Join(l.Students, ", "))
		if err := s.Ledger.AddInvoiceItem(ctx, ledger.InvoiceItemParams{
			InvoiceID:   inv.ID,
			CustomerID:  cust.CustomerLedgerID,
			Currency:    currency,
			Quantity:    l.Quantity,
			UnitAmount:  price.UnitAmount,
			Description: desc,
		}); err != nil {
			s.discardDraft(ctx, inv.ID)
			out.InvoiceID = ""
			return fail(err)
		}
		audit = append(audit, model.InvoiceLineModel{
			InvoiceLineExternalInvoiceID: inv.ID,
			InvoiceLineProductLedgerID:   l.Product.ProductLedgerID,
			InvoiceLineQuantity:          l.Quantity,
			InvoiceLineUnitAmount:        price.UnitAmount,
			InvoiceLineAmount:            l.Quantity * price.UnitAmount,
			InvoiceLineDescription:       desc,
			InvoiceLineStudentNames:      l.Students,
		})
	}

	if _, err := s.Ledger.FinalizeInvoice(ctx, inv.ID); err != nil {
		return fail(err)
	}

	var task *model.ReconcileTaskModel
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}
		var err error
		task, err = s.Reconciler.Enqueue(tx, inv.ID, cust.CustomerID, ids)
		return err
	})
	if err != nil {
		return fail(fmt.Errorf("invoice %s issued but not recorded: %w", inv.ID, err))
	}
	out.AttendanceIDs = ids

	st, err := s.Reconciler.Attempt(ctx, task)
	if err != nil {
		log.Printf("[WARN] billing: first reconcile of %s failed, worker will retry: %v", inv.ID, err)
	}
	out.Linked = st.Linked > 0
	return out
}

func (s *Service) billableAttendances(ctx context.Context, customerID uuid.UUID, weekIDs []uuid.UUID) ([]billableRow, error) {
	var rows []billableRow
	err := s.DB.WithContext(ctx).
		Table("attendances").
		Select(`attendances.attendance_id AS attendance_id,
			students.student_name AS student_name,
			tutoring_groups.group_lesson_length AS lesson_length,
			tutoring_groups.group_product_id AS product_id`).
		Joins("JOIN lessons ON lessons.lesson_id = attendances.attendance_lesson_id").
		Joins("JOIN students ON students.student_id = attendances.attendance_student_id").
		Joins("JOIN tutoring_groups ON tutoring_groups.group_id = lessons.lesson_group_id").
		Where("students.student_customer_id = ? AND students.student_is_active = ?", customerID, true).
		Where("lessons.lesson_week_id IN ?", weekIDs).
		Where("attendances.attendance_paid = ? AND attendances.attendance_local_invoice_id IS NULL", false).
		Order("students.student_name ASC, attendances.attendance_id ASC").
		Scan(&rows).Error
	return rows, err
}

// groupByProduct sums lesson hours per product and collects distinct student
// names. Attendances of groups without a product are left for a later run.
func (s *Service) groupByProduct(ctx context.Context, cust tutModel.CustomerModel, rows []billableRow) ([]productLine, []uuid.UUID, error) {
	byProduct := map[uuid.UUID]*productLine{}
	seen := map[uuid.UUID]map[string]bool{}
	var ids []uuid.UUID

	productIDs := []uuid.UUID{}
	for _, r := range rows {
		if r.ProductID == nil {
			continue
		}
		if _, ok := byProduct[*r.ProductID]; !ok {
			byProduct[*r.ProductID] = &productLine{}
			seen[*r.ProductID] = map[string]bool{}
			productIDs = append(productIDs, *r.ProductID)
		}
	}

	var products []model.ProductModel
	if len(productIDs) > 0 {
		if err := s.DB.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&products).Error; err != nil {
			return nil, nil, err
		}
	}
	for _, p := range products {
		if p.ProductDefaultPriceLedgerID == nil || *p.ProductDefaultPriceLedgerID == "" {
			return nil, nil, fmt.Errorf("product %s (%s) has no default price", p.ProductName, p.ProductLedgerID)
		}
		byProduct[p.ProductID].Product = p
	}

	unpriced := 0
	for _, r := range rows {
		if r.ProductID == nil || byProduct[*r.ProductID].Product.ProductID == uuid.Nil {
			unpriced++
			continue
		}
		l := byProduct[*r.ProductID]
		l.Quantity += int64(r.LessonLength)
		if !seen[*r.ProductID][r.StudentName] {
			seen[*r.ProductID][r.StudentName] = true
			l.Students = append(l.Students, r.StudentName)
		}
		ids = append(ids, r.AttendanceID)
	}
	if unpriced > 0 {
		log.Printf("[WARN] billing: customer %s has %d attendances in groups without a product", cust.CustomerName, unpriced)
	}

	out := make([]productLine, 0, len(byProduct))
	for _, l := range byProduct {
		if l.Product.ProductID != uuid.Nil && l.Quantity > 0 {
			sort.Strings(l.Students)
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Product.ProductName < out[j].Product.ProductName })
	return out, ids, nil
}

// discardDraft deletes a half-built draft; a failure only leaves the draft behind.
func (s *Service) discardDraft(ctx context.Context, invoiceID string) {
	if err := s.Ledger.DeleteInvoice(ctx, invoiceID); err != nil {
		log.Printf("[WARN] billing: could not discard draft %s: %v", invoiceID, err)
		return
	}
	log.Printf("[INFO] billing: discarded draft %s", invoiceID)
}
