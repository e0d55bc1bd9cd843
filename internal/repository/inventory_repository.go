package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/dose-reminder/internal/model"
)

// InventoryRepo provides access to the 'inventories' table, one row per
// medicine.
type InventoryRepo struct {
	db *sql.DB
}

// NewInventoryRepo returns an InventoryRepo bound to db.
func NewInventoryRepo(db *sql.DB) *InventoryRepo { return &InventoryRepo{db: db} }

const inventoryColumns = "medicine_id, current_pills, low_threshold, refills_total, refills_used, last_updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInventory(row rowScanner) (model.Inventory, error) {
	var inv model.Inventory
	err := row.Scan(&inv.MedicineID, &inv.CurrentPills, &inv.LowThreshold, &inv.RefillsTotal, &inv.RefillsUsed, &inv.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Inventory{}, ErrNotFound
	}
	return inv, err
}

// GetByMedicine returns ErrNotFound when the medicine has no stock row.
func (r *InventoryRepo) GetByMedicine(ctx context.Context, medicineID string) (model.Inventory, error) {
	return scanInventory(r.db.QueryRowContext(ctx,
		"SELECT "+inventoryColumns+" FROM inventories WHERE medicine_id = ?", medicineID))
}

// Upsert replaces the stock settings of a medicine.
func (r *InventoryRepo) Upsert(ctx context.Context, inv model.Inventory) (model.Inventory, error) {
	if inv.LastUpdatedAt.IsZero() {
		inv.LastUpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO inventories (`+inventoryColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE current_pills = VALUES(current_pills), low_threshold = VALUES(low_threshold),
		   refills_total = VALUES(refills_total), refills_used = VALUES(refills_used),
		   last_updated_at = VALUES(last_updated_at)`,
		inv.MedicineID, inv.CurrentPills, inv.LowThreshold, inv.RefillsTotal, inv.RefillsUsed, inv.LastUpdatedAt)
	if err != nil {
		return model.Inventory{}, err
	}
	return inv, nil
}

// DecrementTx lowers current_pills by one, floored at zero, within tx.
// The row is locked first; ok is false when there is none.
func (r *InventoryRepo) DecrementTx(ctx context.Context, tx *sql.Tx, medicineID string, at time.Time) (model.Inventory, bool, error) {
	inv, err := scanInventory(tx.QueryRowContext(ctx,
		"SELECT "+inventoryColumns+" FROM inventories WHERE medicine_id = ? FOR UPDATE", medicineID))
	if errors.Is(err, ErrNotFound) {
		return model.Inventory{}, false, nil
	}
	if err != nil {
		return model.Inventory{}, false, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE inventories SET current_pills = GREATEST(current_pills - 1, 0), last_updated_at = ? WHERE medicine_id = ?`,
		at, medicineID); err != nil {
		return model.Inventory{}, false, err
	}
	inv.CurrentPills = max(inv.CurrentPills-1, 0)
	inv.LastUpdatedAt = at
	return inv, true, nil
}
