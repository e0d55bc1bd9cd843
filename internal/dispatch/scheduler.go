package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/clock"
	"github.com/iliyamo/dose-reminder/internal/inventory"
)

// Queue is a delayed delivery substrate.  Enqueue must return without
// waiting for notBefore.  Enqueueing an id that is already pending is a
// no-op.
type Queue interface {
	Enqueue(ctx context.Context, id string, body []byte, notBefore time.Time) error
}

// Scheduler turns payloads into queued jobs.
type Scheduler struct {
	queue Queue
	clock clock.Clock
	log   *zap.Logger
}

// NewScheduler returns a Scheduler writing to q.
func NewScheduler(q Queue, clk clock.Clock, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{queue: q, clock: clk, log: log}
}

var _ inventory.AlertScheduler = (*Scheduler)(nil)

// Schedule queues a job of the given kind to fire at fireAt.  Instants in
// the past fire as soon as the queue picks them up.
func (s *Scheduler) Schedule(ctx context.Context, kind Kind, p Payload, fireAt time.Time) (Job, error) {
	if !kind.Valid() {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	now := s.clock.Now().UTC()
	delay := max(fireAt.Sub(now), 0)

	job := Job{
		Kind:       kind,
		UserID:     p.UserID,
		MedicineID: p.MedicineID,
		NotBefore:  now.Add(delay),
		EnqueuedAt: now,
	}
	if kind == KindReminder {
		at := p.ScheduledAt.UTC()
		job.ScheduledAt = &at
		job.ID = ReminderID(p.MedicineID, at)
	} else {
		job.ID = string(kind) + ":" + uuid.NewString()
	}

	body, err := job.Encode()
	if err != nil {
		return Job{}, fmt.Errorf("encode job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job.ID, body, job.NotBefore); err != nil {
		return Job{}, fmt.Errorf("enqueue %s: %w", job.ID, err)
	}
	s.log.Debug("dispatch scheduled",
		zap.String("job_id", job.ID),
		zap.String("kind", string(kind)),
		zap.String("state", string(StatePending)),
		zap.Duration("delay", delay))
	return job, nil
}

// ScheduleReminder queues the reminder for one occurrence at its own
// instant.
func (s *Scheduler) ScheduleReminder(ctx context.Context, userID, medicineID string, scheduledAt time.Time) (Job, error) {
	return s.Schedule(ctx, KindReminder, Payload{UserID: userID, MedicineID: medicineID, ScheduledAt: scheduledAt}, scheduledAt)
}

// ScheduleLowStock queues an immediate low stock alert.
func (s *Scheduler) ScheduleLowStock(ctx context.Context, userID, medicineID string) error {
	_, err := s.Schedule(ctx, KindLowStock, Payload{UserID: userID, MedicineID: medicineID}, s.clock.Now())
	return err
}

// ScheduleLastRefill queues an immediate last refill alert.
func (s *Scheduler) ScheduleLastRefill(ctx context.Context, userID, medicineID string) error {
	_, err := s.Schedule(ctx, KindLastRefill, Payload{UserID: userID, MedicineID: medicineID}, s.clock.Now())
	return err
}
