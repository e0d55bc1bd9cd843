package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/clock"
	"github.com/iliyamo/dose-reminder/internal/inventory"
	"github.com/iliyamo/dose-reminder/internal/model"
	"github.com/iliyamo/dose-reminder/internal/notify"
	"github.com/iliyamo/dose-reminder/internal/repository"
	"github.com/iliyamo/dose-reminder/internal/schedule"
)

// Reader loads the records a job refers to.  Missing rows are reported
// as repository.ErrNotFound.
type Reader interface {
	User(ctx context.Context, id string) (model.User, error)
	Medicine(ctx context.Context, id string) (model.Medicine, error)
	Inventory(ctx context.Context, medicineID string) (model.Inventory, error)
}

// Composer renders notifications.  notify.Composer implements it.
type Composer interface {
	Reminder(u model.User, m model.Medicine, scheduledAt time.Time, loc *time.Location) (notify.Notification, error)
	LowStock(u model.User, m model.Medicine, inv model.Inventory) (notify.Notification, error)
	LastRefill(u model.User, m model.Medicine, inv model.Inventory) (notify.Notification, error)
}

var _ Composer = (*notify.Composer)(nil)

// Handler evaluates jobs at fire time.
type Handler struct {
	reader          Reader
	composer        Composer
	sender          notify.Sender
	clock           clock.Clock
	log             *zap.Logger
	defaultTimezone string
}

// NewHandler wires a fire-time handler.  defaultTimezone applies to users
// without a timezone of their own.
func NewHandler(r Reader, c Composer, s notify.Sender, clk clock.Clock, log *zap.Logger, defaultTimezone string) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{reader: r, composer: c, sender: s, clock: clk, log: log, defaultTimezone: defaultTimezone}
}

// HandleBody decodes a queued body and handles it.  A body that cannot be
// decoded is FAILED and its error returned.
func (h *Handler) HandleBody(ctx context.Context, body []byte) error {
	job, err := DecodeJob(body)
	if err != nil {
		h.log.Error("dispatch failed", zap.String("state", string(StateFailed)), zap.Error(err))
		return err
	}
	_, err = h.Handle(ctx, job)
	return err
}

// Handle runs one job to a terminal state.  Only delivery failures and
// unexpected lookup errors are returned; a missing user or medicine is
// FAILED but reported with a nil error so the job is not retried.
func (h *Handler) Handle(ctx context.Context, job Job) (State, error) {
	log := h.log.With(
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("user_id", job.UserID),
		zap.String("medicine_id", job.MedicineID))
	log.Debug("dispatch firing", zap.String("state", string(StateFiring)))

	state, reason, err := h.fire(ctx, job)
	fields := []zap.Field{zap.String("state", string(state))}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	switch {
	case err != nil:
		log.Error("dispatch finished", append(fields, zap.Error(err))...)
	case state == StateFailed:
		log.Warn("dispatch finished", fields...)
	default:
		log.Info("dispatch finished", fields...)
	}
	return state, err
}

func (h *Handler) fire(ctx context.Context, job Job) (State, string, error) {
	user, err := h.reader.User(ctx, job.UserID)
	if err != nil {
		return lookupFailure("user", err)
	}
	med, err := h.reader.Medicine(ctx, job.MedicineID)
	if err != nil {
		return lookupFailure("medicine", err)
	}

	var (
		n   notify.Notification
		inv model.Inventory
	)
	if job.Kind != KindReminder {
		if inv, err = h.reader.Inventory(ctx, job.MedicineID); err != nil {
			return lookupFailure("inventory", err)
		}
	}
	if !user.EmailEnabled {
		return StateSuppressed, "email disabled", nil
	}

	loc := schedule.Location(user.Timezone, h.defaultTimezone)
	switch job.Kind {
	case KindReminder:
		quiet, qerr := schedule.QuietAt(user.QuietHoursStart, user.QuietHoursEnd, h.clock.Now(), loc)
		if qerr != nil {
			h.log.Warn("ignoring malformed quiet hours", zap.String("user_id", user.ID), zap.Error(qerr))
		}
		if quiet {
			return StateSuppressed, "quiet hours", nil
		}
		n, err = h.composer.Reminder(user, med, *job.ScheduledAt, loc)
	case KindLowStock:
		if !inventory.IsLowStock(inv) {
			return StateSuppressed, "stock recovered", nil
		}
		n, err = h.composer.LowStock(user, med, inv)
	case KindLastRefill:
		if !inventory.IsLastRefill(inv) {
			return StateSuppressed, "refills recovered", nil
		}
		n, err = h.composer.LastRefill(user, med, inv)
	default:
		return StateFailed, "", fmt.Errorf("%w: %q", ErrUnknownKind, job.Kind)
	}
	if err != nil {
		return StateFailed, "compose", err
	}
	if err := h.sender.Send(ctx, n); err != nil {
		return StateFailed, "delivery", err
	}
	return StateDelivered, "", nil
}

func lookupFailure(what string, err error) (State, string, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return StateFailed, what + " not found", nil
	}
	return StateFailed, "load " + what, fmt.Errorf("load %s: %w", what, err)
}
