package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/dose-reminder/internal/model"
)

// ScheduleRepo provides access to the 'schedules' table.  times_of_day and
// days_of_week are JSON arrays; dates are DATE columns read back as
// midnight UTC.
type ScheduleRepo struct {
	db *sql.DB
}

// NewScheduleRepo returns a ScheduleRepo bound to db.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

const scheduleColumns = "id, medicine_id, times_of_day, start_date, end_date, days_of_week, created_at"

// Create inserts s, assigning a uuid when ID is empty.  Validation is
// the caller's job.
func (r *ScheduleRepo) Create(ctx context.Context, s model.Schedule) (model.Schedule, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	times, days, err := encodeScheduleArrays(s)
	if err != nil {
		return model.Schedule{}, err
	}
	var end any
	if s.EndDate != nil {
		end = s.EndDate.Format(time.DateOnly)
	}
	const q = "INSERT INTO schedules (" + scheduleColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, q, s.ID, s.MedicineID, times, s.StartDate.Format(time.DateOnly), end, days, s.CreatedAt); err != nil {
		return model.Schedule{}, err
	}
	return s, nil
}

// GetByID returns the schedule with id or ErrNotFound.
func (r *ScheduleRepo) GetByID(ctx context.Context, id string) (model.Schedule, error) {
	const q = "SELECT " + scheduleColumns + " FROM schedules WHERE id = ?"
	rows, err := r.query(ctx, q, id)
	if err != nil {
		return model.Schedule{}, err
	}
	if len(rows) == 0 {
		return model.Schedule{}, ErrNotFound
	}
	return rows[0], nil
}

// Update replaces every definition field of s.  MedicineID and CreatedAt
// are left as stored.
func (r *ScheduleRepo) Update(ctx context.Context, s model.Schedule) (model.Schedule, error) {
	times, days, err := encodeScheduleArrays(s)
	if err != nil {
		return model.Schedule{}, err
	}
	var end any
	if s.EndDate != nil {
		end = s.EndDate.Format(time.DateOnly)
	}
	const q = "UPDATE schedules SET times_of_day = ?, start_date = ?, end_date = ?, days_of_week = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, q, times, s.StartDate.Format(time.DateOnly), end, days, s.ID); err != nil {
		return model.Schedule{}, err
	}
	// MySQL reports zero affected rows for an unchanged row, so existence
	// is checked by reading it back.
	return r.GetByID(ctx, s.ID)
}

// Delete removes the schedule with id.
func (r *ScheduleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByMedicine returns every schedule of medicineID, oldest first.
func (r *ScheduleRepo) ListByMedicine(ctx context.Context, medicineID string) ([]model.Schedule, error) {
	const q = "SELECT " + scheduleColumns + " FROM schedules WHERE medicine_id = ? ORDER BY created_at, id"
	return r.query(ctx, q, medicineID)
}

// ListActive returns open-ended schedules and those whose end date is on
// or after the day before on's UTC date, which is the earliest local date
// any owner can be on.
func (r *ScheduleRepo) ListActive(ctx context.Context, on time.Time) ([]model.Schedule, error) {
	const q = "SELECT " + scheduleColumns + " FROM schedules WHERE end_date IS NULL OR end_date >= ? ORDER BY medicine_id, start_date"
	return r.query(ctx, q, activeCutoff(on))
}

func activeCutoff(on time.Time) string {
	return on.UTC().AddDate(0, 0, -1).Format(time.DateOnly)
}

func (r *ScheduleRepo) query(ctx context.Context, q string, args ...any) ([]model.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Schedule{}
	for rows.Next() {
		var (
			s     model.Schedule
			times []byte
			days  []byte
			end   sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.MedicineID, &times, &s.StartDate, &end, &days, &s.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeScheduleArrays(&s, times, days); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", s.ID, err)
		}
		if end.Valid {
			e := end.Time
			s.EndDate = &e
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func encodeScheduleArrays(s model.Schedule) (times []byte, days any, err error) {
	if times, err = json.Marshal(s.TimesOfDay); err != nil {
		return nil, nil, err
	}
	if len(s.DaysOfWeek) == 0 {
		return times, nil, nil
	}
	b, err := json.Marshal(s.DaysOfWeek)
	if err != nil {
		return nil, nil, err
	}
	return times, b, nil
}

func decodeScheduleArrays(s *model.Schedule, times, days []byte) error {
	if err := json.Unmarshal(times, &s.TimesOfDay); err != nil {
		return fmt.Errorf("times_of_day: %w", err)
	}
	if len(days) == 0 {
		return nil
	}
	if err := json.Unmarshal(days, &s.DaysOfWeek); err != nil {
		return fmt.Errorf("days_of_week: %w", err)
	}
	return nil
}
