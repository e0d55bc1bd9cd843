package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/dose-reminder/internal/model"
)

// DoseLogRepo provides access to the 'dose_logs' table.  Rows are keyed by
// (medicine_id, scheduled_at); scheduled_at is stored as DATETIME(3) in
// UTC, so callers must pass instants already truncated to milliseconds.
type DoseLogRepo struct {
	db *sql.DB
}

// NewDoseLogRepo returns a DoseLogRepo bound to db.
func NewDoseLogRepo(db *sql.DB) *DoseLogRepo { return &DoseLogRepo{db: db} }

// UpsertTx writes l within tx.  The existing row, if any, is locked first
// so the returned previous status is the one this write replaced.
func (r *DoseLogRepo) UpsertTx(ctx context.Context, tx *sql.Tx, l model.DoseLog) (model.DoseLog, model.DoseStatus, error) {
	var (
		prev      model.DoseStatus
		createdAt time.Time
	)
	err := tx.QueryRowContext(ctx,
		`SELECT status, created_at FROM dose_logs WHERE medicine_id = ? AND scheduled_at = ? FOR UPDATE`,
		l.MedicineID, l.ScheduledAt).Scan(&prev, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		prev = ""
	case err != nil:
		return model.DoseLog{}, "", err
	default:
		l.CreatedAt = createdAt
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO dose_logs (medicine_id, scheduled_at, status, taken_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE status = VALUES(status), taken_at = VALUES(taken_at), updated_at = VALUES(updated_at)`,
		l.MedicineID, l.ScheduledAt, string(l.Status), l.TakenAt, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return model.DoseLog{}, "", err
	}
	return l, prev, nil
}

// ListInRange returns rows with scheduled_at in [from, to] ascending.
func (r *DoseLogRepo) ListInRange(ctx context.Context, medicineID string, from, to time.Time) ([]model.DoseLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT medicine_id, scheduled_at, status, taken_at, created_at, updated_at
		 FROM dose_logs WHERE medicine_id = ? AND scheduled_at BETWEEN ? AND ?
		 ORDER BY scheduled_at`,
		medicineID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DoseLog{}
	for rows.Next() {
		var (
			l       model.DoseLog
			takenAt sql.NullTime
		)
		if err := rows.Scan(&l.MedicineID, &l.ScheduledAt, &l.Status, &takenAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		if takenAt.Valid {
			t := takenAt.Time
			l.TakenAt = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
