package model

import "time"

// DoseStatus is the state of a single dose occurrence.  Only TAKEN and
// SKIPPED are ever written; PENDING and MISSED are derived on read for
// occurrences that have no dose_logs row.
type DoseStatus string

const (
	DoseTaken   DoseStatus = "TAKEN"
	DoseSkipped DoseStatus = "SKIPPED"
	DosePending DoseStatus = "PENDING"
	DoseMissed  DoseStatus = "MISSED"
)

// Persisted reports whether the status is one the ledger writes.
func (s DoseStatus) Persisted() bool {
	return s == DoseTaken || s == DoseSkipped
}

// DoseLog mirrors the `dose_logs` table.  The pair (MedicineID,
// ScheduledAt) is the natural key: a unique index guarantees at most one
// row per occurrence and writes are upserts on that pair.
//
// Fields:
//  MedicineID  – medicine the occurrence belongs to.
//  ScheduledAt – instant the occurrence was scheduled for (UTC).
//  Status      – TAKEN or SKIPPED.
//  TakenAt     – when the dose was confirmed; set only for TAKEN.
//  CreatedAt   – first write of the row.
//  UpdatedAt   – last write of the row.
type DoseLog struct {
	MedicineID  string     `json:"medicine_id"`        // dose_logs.medicine_id
	ScheduledAt time.Time  `json:"scheduled_at"`       // dose_logs.scheduled_at
	Status      DoseStatus `json:"status"`             // dose_logs.status
	TakenAt     *time.Time `json:"taken_at,omitempty"` // dose_logs.taken_at (nullable)
	CreatedAt   time.Time  `json:"created_at"`         // dose_logs.created_at
	UpdatedAt   time.Time  `json:"updated_at"`         // dose_logs.updated_at
}

// Dose is a read-side view of one occurrence combined with whatever the
// ledger recorded for it.
type Dose struct {
	MedicineID  string     `json:"medicine_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      DoseStatus `json:"status"`
	TakenAt     *time.Time `json:"taken_at,omitempty"`
}
