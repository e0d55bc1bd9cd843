package repository

import (
	"context"
	"time"

	"github.com/iliyamo/dose-reminder/internal/model"
)

// DoseTx is the write side of a dose transaction.  Both the MySQL store
// and the in-memory store hand an implementation to the callback of
// WithinTx; nothing it writes is visible until the callback returns nil
// and the commit succeeds.
type DoseTx interface {
	// UpsertDoseLog inserts or overwrites the row keyed by (MedicineID,
	// ScheduledAt).  It returns the stored row and the status it replaced,
	// which is empty when the row is new.  CreatedAt of an existing row is
	// preserved.
	UpsertDoseLog(ctx context.Context, log model.DoseLog) (model.DoseLog, model.DoseStatus, error)
	// DecrementInventory lowers CurrentPills by one, floored at zero, and
	// stamps LastUpdatedAt.  ok is false when the medicine has no inventory
	// row, in which case nothing is written.
	DecrementInventory(ctx context.Context, medicineID string, at time.Time) (inv model.Inventory, ok bool, err error)
}
