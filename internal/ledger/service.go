// Package ledger records what happened to each dose occurrence.  A row per
// (medicine, scheduled instant) holds TAKEN or SKIPPED; confirming a dose
// decrements the medicine's pill count in the same transaction and then
// runs the inventory threshold detector.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/clock"
	"github.com/iliyamo/dose-reminder/internal/model"
	"github.com/iliyamo/dose-reminder/internal/repository"
)

// Options tunes the confirm path.  The zero value reproduces the
// permissive behavior: every confirm decrements, concurrent duplicates
// are not serialized.
type Options struct {
	// GuardRepeatConfirm skips the inventory decrement when the occurrence
	// was already TAKEN before this confirm.
	GuardRepeatConfirm bool
	// Locker serializes confirm/skip calls for the same occurrence.
	Locker Locker
	// DefaultTimezone is used for users without a timezone when expanding
	// schedules in Doses.
	DefaultTimezone string
}

// Service is the dose ledger.
type Service struct {
	store      Store
	thresholds ThresholdChecker
	clock      clock.Clock
	log        *zap.Logger
	opts       Options
}

// NewService wires a ledger.  thresholds may be nil to disable alerting.
func NewService(store Store, thresholds ThresholdChecker, clk clock.Clock, log *zap.Logger, opts Options) *Service {
	if store == nil || clk == nil {
		panic("nil dependency passed to ledger.NewService")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Locker == nil {
		opts.Locker = noLock{}
	}
	return &Service{store: store, thresholds: thresholds, clock: clk, log: log, opts: opts}
}

// normalize stores instants in UTC at millisecond precision, matching the
// DATETIME(3) column the key lives in.
func normalize(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

// OccurrenceKey is the lock and dedup key for one occurrence.
func OccurrenceKey(medicineID string, scheduledAt time.Time) string {
	return medicineID + ":" + strconv.FormatInt(normalize(scheduledAt).UnixMilli(), 10)
}

// authorize loads the medicine and checks ownership before any write.
func (s *Service) authorize(ctx context.Context, userID, medicineID string) (model.Medicine, error) {
	med, err := s.store.Medicine(ctx, medicineID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Medicine{}, fmt.Errorf("medicine %s: %w", medicineID, repository.ErrNotFound)
		}
		return model.Medicine{}, err
	}
	if !med.BelongsTo(userID) {
		return model.Medicine{}, fmt.Errorf("medicine %s: %w", medicineID, repository.ErrForbidden)
	}
	return med, nil
}

// Confirm marks the occurrence TAKEN and, when the medicine has an
// inventory row, decrements CurrentPills (floored at zero) in the same
// transaction.  Confirmation overwrites an earlier SKIPPED.  Calling it
// twice for one occurrence decrements twice unless GuardRepeatConfirm is
// set.  Threshold alerts are scheduled after commit; failing to enqueue
// them is logged and does not fail the confirm.
func (s *Service) Confirm(ctx context.Context, userID, medicineID string, scheduledAt time.Time) (model.DoseLog, error) {
	med, err := s.authorize(ctx, userID, medicineID)
	if err != nil {
		return model.DoseLog{}, err
	}
	unlock, err := s.opts.Locker.Lock(ctx, OccurrenceKey(medicineID, scheduledAt))
	if err != nil {
		return model.DoseLog{}, fmt.Errorf("lock occurrence: %w", err)
	}
	defer unlock()

	now := normalize(s.clock.Now())
	var (
		out         model.DoseLog
		inv         model.Inventory
		decremented bool
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.DoseTx) error {
		takenAt := now
		row, prev, err := tx.UpsertDoseLog(ctx, model.DoseLog{
			MedicineID:  medicineID,
			ScheduledAt: normalize(scheduledAt),
			Status:      model.DoseTaken,
			TakenAt:     &takenAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		out = row
		if s.opts.GuardRepeatConfirm && prev == model.DoseTaken {
			return nil
		}
		inv, decremented, err = tx.DecrementInventory(ctx, medicineID, now)
		return err
	})
	if err != nil {
		return model.DoseLog{}, fmt.Errorf("confirm dose: %w", err)
	}

	s.log.Info("dose confirmed",
		zap.String("medicine_id", medicineID),
		zap.Time("scheduled_at", out.ScheduledAt),
		zap.Bool("inventory_decremented", decremented))

	if decremented && s.thresholds != nil {
		if _, err := s.thresholds.Check(ctx, med.UserID, inv); err != nil {
			s.log.Warn("schedule inventory alert failed",
				zap.String("medicine_id", medicineID), zap.Error(err))
		}
	}
	return out, nil
}

// Skip marks the occurrence SKIPPED.  Inventory is untouched and any
// earlier TakenAt is cleared.
func (s *Service) Skip(ctx context.Context, userID, medicineID string, scheduledAt time.Time) (model.DoseLog, error) {
	if _, err := s.authorize(ctx, userID, medicineID); err != nil {
		return model.DoseLog{}, err
	}
	unlock, err := s.opts.Locker.Lock(ctx, OccurrenceKey(medicineID, scheduledAt))
	if err != nil {
		return model.DoseLog{}, fmt.Errorf("lock occurrence: %w", err)
	}
	defer unlock()

	now := normalize(s.clock.Now())
	var out model.DoseLog
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.DoseTx) error {
		row, _, err := tx.UpsertDoseLog(ctx, model.DoseLog{
			MedicineID:  medicineID,
			ScheduledAt: normalize(scheduledAt),
			Status:      model.DoseSkipped,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		out = row
		return err
	})
	if err != nil {
		return model.DoseLog{}, fmt.Errorf("skip dose: %w", err)
	}
	s.log.Info("dose skipped",
		zap.String("medicine_id", medicineID),
		zap.Time("scheduled_at", out.ScheduledAt))
	return out, nil
}

// ListInRange returns the persisted rows with ScheduledAt in [from, to],
// ascending.  Occurrences without a row are not synthesized; see Doses.
func (s *Service) ListInRange(ctx context.Context, userID, medicineID string, from, to time.Time) ([]model.DoseLog, error) {
	if _, err := s.authorize(ctx, userID, medicineID); err != nil {
		return nil, err
	}
	if from.After(to) {
		return []model.DoseLog{}, nil
	}
	logs, err := s.store.DoseLogsInRange(ctx, medicineID, normalize(from), normalize(to))
	if err != nil {
		return nil, fmt.Errorf("list dose logs: %w", err)
	}
	return logs, nil
}
