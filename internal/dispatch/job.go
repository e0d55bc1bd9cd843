// Package dispatch schedules reminder and stock alert notifications for a
// future instant and evaluates them when they fire.  Jobs travel through a
// delayed Queue as JSON; the Handler decides at fire time whether a job is
// delivered, suppressed or failed.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Kind names what a job notifies about.
type Kind string

const (
	KindReminder   Kind = "reminder"
	KindLowStock   Kind = "low-stock"
	KindLastRefill Kind = "last-refill"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindReminder, KindLowStock, KindLastRefill:
		return true
	}
	return false
}

// State is the lifecycle position of a job.  PENDING until its fire time,
// FIRING while the handler runs, then one of the three terminal states.
type State string

const (
	StatePending    State = "PENDING"
	StateFiring     State = "FIRING"
	StateDelivered  State = "DELIVERED"
	StateSuppressed State = "SUPPRESSED"
	StateFailed     State = "FAILED"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateSuppressed || s == StateFailed
}

// ErrUnknownKind is returned for jobs whose kind is not recognized.
var ErrUnknownKind = errors.New("unknown dispatch kind")

// Payload is what the caller wants delivered.  ScheduledAt is only
// meaningful for reminders.
type Payload struct {
	UserID      string
	MedicineID  string
	ScheduledAt time.Time
}

// Job is the serialized unit carried by the queue.
type Job struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	UserID      string     `json:"user_id"`
	MedicineID  string     `json:"medicine_id"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	NotBefore   time.Time  `json:"not_before"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
}

// ReminderID is the deterministic id of the reminder for one occurrence.
// Enqueueing the same occurrence twice therefore yields a single job.
func ReminderID(medicineID string, scheduledAt time.Time) string {
	return string(KindReminder) + ":" + medicineID + ":" + strconv.FormatInt(scheduledAt.UTC().UnixMilli(), 10)
}

// Encode marshals the job for the queue.
func (j Job) Encode() ([]byte, error) { return json.Marshal(j) }

// DecodeJob parses a queued job body.
func DecodeJob(body []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(body, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if !j.Kind.Valid() {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownKind, j.Kind)
	}
	if j.Kind == KindReminder && j.ScheduledAt == nil {
		return Job{}, fmt.Errorf("decode job %s: reminder without scheduled_at", j.ID)
	}
	return j, nil
}
