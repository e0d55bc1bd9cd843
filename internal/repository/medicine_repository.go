package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/dose-reminder/internal/model"
)

// MedicineRepo reads and writes the 'medicines' table.  Ownership is
// enforced by the callers through model.Medicine.BelongsTo.
type MedicineRepo struct {
	db *sql.DB
}

// NewMedicineRepo returns a MedicineRepo bound to db.
func NewMedicineRepo(db *sql.DB) *MedicineRepo { return &MedicineRepo{db: db} }

// GetByID returns ErrNotFound when no row matches.
func (r *MedicineRepo) GetByID(ctx context.Context, id string) (model.Medicine, error) {
	const q = "SELECT id, user_id, name, dose, unit, created_at, updated_at FROM medicines WHERE id = ?"
	var m model.Medicine
	err := r.db.QueryRowContext(ctx, q, id).Scan(&m.ID, &m.UserID, &m.Name, &m.Dose, &m.Unit, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Medicine{}, ErrNotFound
	}
	if err != nil {
		return model.Medicine{}, err
	}
	return m, nil
}

// Upsert writes a medicine row.  Used by seeding and tests.
func (r *MedicineRepo) Upsert(ctx context.Context, m model.Medicine) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO medicines (id, user_id, name, dose, unit, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE name = VALUES(name), dose = VALUES(dose), unit = VALUES(unit), updated_at = VALUES(updated_at)`,
		m.ID, m.UserID, m.Name, m.Dose, m.Unit, now, now)
	return err
}
