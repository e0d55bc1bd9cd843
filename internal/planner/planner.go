// Package planner periodically expands every active schedule over a short
// look-ahead window and queues a reminder for each occurrence found.
// Reminder ids are deterministic, so overlapping runs queue each
// occurrence only once.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/clock"
	"github.com/iliyamo/dose-reminder/internal/dispatch"
	"github.com/iliyamo/dose-reminder/internal/model"
	"github.com/iliyamo/dose-reminder/internal/schedule"
)

// Source lists schedules and resolves their owners.
type Source interface {
	ActiveSchedules(ctx context.Context, on time.Time) ([]model.Schedule, error)
	Medicine(ctx context.Context, id string) (model.Medicine, error)
	User(ctx context.Context, id string) (model.User, error)
}

// ReminderScheduler queues one reminder.  dispatch.Scheduler implements it.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, userID, medicineID string, scheduledAt time.Time) (dispatch.Job, error)
}

// Options configures a Planner.
type Options struct {
	Spec            string        // cron spec, default "@every 5m"
	Horizon         time.Duration // look-ahead window, default 15m
	DefaultTimezone string
}

type Planner struct {
	src   Source
	sched ReminderScheduler
	clock clock.Clock
	log   *zap.Logger
	opts  Options
	cron  *cron.Cron
}

func New(src Source, sched ReminderScheduler, clk clock.Clock, log *zap.Logger, opts Options) *Planner {
	if opts.Spec == "" {
		opts.Spec = "@every 5m"
	}
	if opts.Horizon <= 0 {
		opts.Horizon = 15 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{src: src, sched: sched, clock: clk, log: log, opts: opts}
}

// PlanOnce queues reminders for occurrences in (now, now+horizon].  The
// lower bound is exclusive: anything at or before now was due in an
// earlier run.  It returns the number of reminders handed to the
// scheduler.
func (p *Planner) PlanOnce(ctx context.Context) (int, error) {
	now := p.clock.Now()
	from, to := now.Add(time.Millisecond), now.Add(p.opts.Horizon)

	rows, err := p.src.ActiveSchedules(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list active schedules: %w", err)
	}

	owners := map[string]model.User{}
	var (
		planned int
		errs    []error
	)
	for _, row := range rows {
		def, err := schedule.FromModel(row)
		if err != nil {
			p.log.Warn("stored schedule invalid", zap.String("schedule_id", row.ID), zap.Error(err))
			continue
		}
		user, ok := owners[row.MedicineID]
		if !ok {
			med, err := p.src.Medicine(ctx, row.MedicineID)
			if err != nil {
				p.log.Warn("schedule without medicine", zap.String("schedule_id", row.ID), zap.Error(err))
				continue
			}
			if user, err = p.src.User(ctx, med.UserID); err != nil {
				p.log.Warn("medicine without owner", zap.String("medicine_id", med.ID), zap.Error(err))
				continue
			}
			owners[row.MedicineID] = user
		}
		loc := schedule.Location(user.Timezone, p.opts.DefaultTimezone)
		for at := range schedule.Occurrences(def, from, to, loc) {
			if _, err := p.sched.ScheduleReminder(ctx, user.ID, row.MedicineID, at); err != nil {
				errs = append(errs, err)
				continue
			}
			planned++
		}
	}
	p.log.Info("reminders planned",
		zap.Int("schedules", len(rows)),
		zap.Int("reminders", planned),
		zap.Time("until", to))
	return planned, errors.Join(errs...)
}

// Start runs PlanOnce immediately and then on every tick of the cron spec.
func (p *Planner) Start(ctx context.Context) error {
	c := cron.New()
	run := func() {
		if _, err := p.PlanOnce(ctx); err != nil {
			p.log.Error("planner run failed", zap.Error(err))
		}
	}
	if _, err := c.AddFunc(p.opts.Spec, run); err != nil {
		return fmt.Errorf("planner spec %q: %w", p.opts.Spec, err)
	}
	p.cron = c
	run()
	c.Start()
	p.log.Info("planner started", zap.String("spec", p.opts.Spec), zap.Duration("horizon", p.opts.Horizon))
	return nil
}

// Stop halts the cron and waits for a running plan to finish.
func (p *Planner) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}
