// Package inventory holds the stock threshold predicates and the detector
// that turns a post-confirm inventory snapshot into alert dispatches.
package inventory

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/model"
)

// IsLowStock reports whether stock is at or below the configured threshold.
func IsLowStock(inv model.Inventory) bool {
	return inv.CurrentPills <= inv.LowThreshold
}

// IsLastRefill reports whether zero or one refill remains.
func IsLastRefill(inv model.Inventory) bool {
	return inv.RemainingRefills() <= 1
}

// Signals is the outcome of evaluating one inventory snapshot.
type Signals struct {
	LowStock   bool
	LastRefill bool
}

// Any reports whether at least one alert should go out.
func (s Signals) Any() bool { return s.LowStock || s.LastRefill }

// Evaluate applies both predicates.
func Evaluate(inv model.Inventory) Signals {
	return Signals{LowStock: IsLowStock(inv), LastRefill: IsLastRefill(inv)}
}

// AlertScheduler accepts immediate alert dispatches.  dispatch.Scheduler
// implements it.
type AlertScheduler interface {
	ScheduleLowStock(ctx context.Context, userID, medicineID string) error
	ScheduleLastRefill(ctx context.Context, userID, medicineID string) error
}

// Detector evaluates inventory after each confirmed dose and hands firing
// signals to the scheduler.  It keeps no "already alerted" state: every
// confirm below the threshold alerts again.
type Detector struct {
	alerts AlertScheduler
	log    *zap.Logger
}

// NewDetector returns a Detector.  A nil logger is replaced with a no-op.
func NewDetector(alerts AlertScheduler, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{alerts: alerts, log: log}
}

// Check evaluates inv and schedules one dispatch per firing signal.  Both
// signals are attempted even when the first enqueue fails; the joined
// error is returned.
func (d *Detector) Check(ctx context.Context, userID string, inv model.Inventory) (Signals, error) {
	sig := Evaluate(inv)
	var errs []error
	if sig.LowStock {
		d.log.Info("low stock detected",
			zap.String("medicine_id", inv.MedicineID),
			zap.Int("current_pills", inv.CurrentPills),
			zap.Int("low_threshold", inv.LowThreshold))
		if err := d.alerts.ScheduleLowStock(ctx, userID, inv.MedicineID); err != nil {
			errs = append(errs, err)
		}
	}
	if sig.LastRefill {
		d.log.Info("last refill detected",
			zap.String("medicine_id", inv.MedicineID),
			zap.Int("remaining_refills", inv.RemainingRefills()))
		if err := d.alerts.ScheduleLastRefill(ctx, userID, inv.MedicineID); err != nil {
			errs = append(errs, err)
		}
	}
	return sig, errors.Join(errs...)
}
