package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tutoring_backend/internals/features/billing/model"
	tutModel "tutoring_backend/internals/features/tutoring/model"
	"tutoring_backend/internals/helpers/dbtime"
)

var errMirrorMissing = errors.New("local invoice mirror not found yet")

// Reconciler drains the reconcile_tasks outbox: once the webhook has created
// the mirror for an issued invoice, the task's attendances are linked to it.
type Reconciler struct {
	DB          *gorm.DB
	Clock       dbtime.Clock
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func NewReconciler(db *gorm.DB, clock dbtime.Clock, maxAttempts int, base, max time.Duration) *Reconciler {
	if clock == nil {
		clock = dbtime.SystemClock{}
	}
	if maxAttempts < 1 {
		maxAttempts = 8
	}
	if base <= 0 {
		base = 5 * time.Second
	}
	if max <= 0 {
		max = 10 * time.Minute
	}
	return &Reconciler{DB: db, Clock: clock, MaxAttempts: maxAttempts, BaseDelay: base, MaxDelay: max}
}

// Backoff is base * 2^attempts, capped at max.
func Backoff(base, max time.Duration, attempts int) time.Duration {
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Enqueue records the invoice's attendances for linking. Callers own tx.
func (r *Reconciler) Enqueue(tx *gorm.DB, externalID string, customerID uuid.UUID, attendanceIDs []uuid.UUID) (*model.ReconcileTaskModel, error) {
	task := model.ReconcileTaskModel{
		ReconcileTaskExternalInvoiceID: externalID,
		ReconcileTaskCustomerID:        customerID,
		ReconcileTaskStatus:            model.TaskPending,
		ReconcileTaskNextAttemptAt:     r.Clock.Now().UTC(),
	}
	if err := task.SetAttendanceIDs(attendanceIDs); err != nil {
		return nil, err
	}
	if err := tx.Create(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

type ReconcileStats struct {
	Linked      int `json:"linked"`
	Attendances int `json:"attendances"`
	Retried     int `json:"retried"`
	Dead        int `json:"dead"`
}

func (s *ReconcileStats) add(o ReconcileStats) {
	s.Linked += o.Linked
	s.Attendances += o.Attendances
	s.Retried += o.Retried
	s.Dead += o.Dead
}

// PendingAttendanceIDs are attendances already on an issued invoice whose
// mirror has not shown up yet; billing must not select them again.
func (r *Reconciler) PendingAttendanceIDs(ctx context.Context) (map[uuid.UUID]struct{}, error) {
	var tasks []model.ReconcileTaskModel
	if err := r.DB.WithContext(ctx).
		Where("reconcile_task_status = ?", model.TaskPending).
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	out := map[uuid.UUID]struct{}{}
	for _, t := range tasks {
		ids, err := t.AttendanceIDs()
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ReconcileTaskID, err)
		}
		for _, id := range ids {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// RunDue attempts every pending task whose next attempt is due.
func (r *Reconciler) RunDue(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	var tasks []model.ReconcileTaskModel
	if err := r.DB.WithContext(ctx).
		Where("reconcile_task_status = ?", model.TaskPending).
		Order("reconcile_task_created_at ASC").
		Find(&tasks).Error; err != nil {
		return stats, err
	}
	now := r.Clock.Now()
	for i := range tasks {
		if tasks[i].ReconcileTaskNextAttemptAt.After(now) {
			continue
		}
		st, err := r.Attempt(ctx, &tasks[i])
		if err != nil {
			return stats, err
		}
		stats.add(st)
	}
	return stats, nil
}

// Attempt tries one task once. A missing mirror is not an error: the task is
// rescheduled, or dead-lettered after MaxAttempts.
func (r *Reconciler) Attempt(ctx context.Context, task *model.ReconcileTaskModel) (ReconcileStats, error) {
	var stats ReconcileStats
	if task.ReconcileTaskStatus != model.TaskPending {
		return stats, nil
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var mirror model.LocalInvoiceModel
		res := tx.Where("local_invoice_external_id = ?", task.ReconcileTaskExternalInvoiceID).Limit(1).Find(&mirror)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errMirrorMissing
		}

		ids, err := task.AttendanceIDs()
		if err != nil {
			return err
		}
		linked := int64(0)
		if len(ids) > 0 {
			upd := tx.Model(&tutModel.AttendanceModel{}).
				Where("attendance_id IN ? AND attendance_paid = ? AND attendance_local_invoice_id IS NULL", ids, false).
				Update("attendance_local_invoice_id", mirror.LocalInvoiceID)
			if upd.Error != nil {
				return upd.Error
			}
			linked = upd.RowsAffected
		}
		if err := tx.Model(task).Updates(map[string]any{
			"reconcile_task_status":     model.TaskDone,
			"reconcile_task_attempts":   task.ReconcileTaskAttempts + 1,
			"reconcile_task_last_error": nil,
		}).Error; err != nil {
			return err
		}
		task.ReconcileTaskStatus = model.TaskDone
		task.ReconcileTaskAttempts++
		stats.Linked = 1
		stats.Attendances = int(linked)
		return nil
	})
	if err == nil {
		log.Printf("[INFO] reconcile: invoice %s linked %d attendances",
			task.ReconcileTaskExternalInvoiceID, stats.Attendances)
		return stats, nil
	}
	if !errors.Is(err, errMirrorMissing) {
		return stats, fmt.Errorf("reconcile %s: %w", task.ReconcileTaskExternalInvoiceID, err)
	}

	attempts := task.ReconcileTaskAttempts + 1
	msg := err.Error()
	updates := map[string]any{
		"reconcile_task_attempts":   attempts,
		"reconcile_task_last_error": msg,
	}
	if attempts >= r.MaxAttempts {
		updates["reconcile_task_status"] = model.TaskDead
		stats.Dead = 1
		log.Printf("[ERROR] reconcile: invoice %s dead after %d attempts, attendances stay unlinked",
			task.ReconcileTaskExternalInvoiceID, attempts)
	} else {
		next := r.Clock.Now().Add(Backoff(r.BaseDelay, r.MaxDelay, attempts)).UTC()
		updates["reconcile_task_next_attempt_at"] = next
		task.ReconcileTaskNextAttemptAt = next
		stats.Retried = 1
	}
	if uerr := r.DB.WithContext(ctx).Model(task).Updates(updates).Error; uerr != nil {
		return stats, uerr
	}
	task.ReconcileTaskAttempts = attempts
	task.ReconcileTaskLastError = &msg
	if stats.Dead == 1 {
		task.ReconcileTaskStatus = model.TaskDead
	}
	return stats, nil
}

// Drain runs due tasks until none are pending or budget is spent, sleeping
// until the next task is due in between.
func (r *Reconciler) Drain(ctx context.Context, budget time.Duration) (ReconcileStats, error) {
	var total ReconcileStats
	deadline := time.Now().Add(budget)
	for {
		st, err := r.RunDue(ctx)
		total.add(st)
		if err != nil {
			return total, err
		}

		next, ok, err := r.nextDue(ctx)
		if err != nil || !ok {
			return total, err
		}
		wait := next.Sub(r.Clock.Now())
		if wait < 0 {
			wait = 0
		}
		if time.Now().Add(wait).After(deadline) {
			return total, nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return total, ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Reconciler) nextDue(ctx context.Context) (time.Time, bool, error) {
	var tasks []model.ReconcileTaskModel
	if err := r.DB.WithContext(ctx).
		Where("reconcile_task_status = ?", model.TaskPending).
		Find(&tasks).Error; err != nil {
		return time.Time{}, false, err
	}
	if len(tasks) == 0 {
		return time.Time{}, false, nil
	}
	next := tasks[0].ReconcileTaskNextAttemptAt
	for _, t := range tasks[1:] {
		if t.ReconcileTaskNextAttemptAt.Before(next) {
			next = t.ReconcileTaskNextAttemptAt
		}
	}
	return next, true, nil
}
