package ledger

import (
	"context"
	"time"

	"github.com/iliyamo/dose-reminder/internal/inventory"
	"github.com/iliyamo/dose-reminder/internal/model"
	"github.com/iliyamo/dose-reminder/internal/repository"
)

// Store is the persistence the ledger needs.  Lookups return
// repository.ErrNotFound for missing rows.  WithinTx runs fn in a single
// transaction: either every write fn made is committed or none is, and a
// begin/commit failure is reported as repository.ErrTransaction.
type Store interface {
	Medicine(ctx context.Context, id string) (model.Medicine, error)
	User(ctx context.Context, id string) (model.User, error)
	Schedules(ctx context.Context, medicineID string) ([]model.Schedule, error)
	DoseLogsInRange(ctx context.Context, medicineID string, from, to time.Time) ([]model.DoseLog, error)
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.DoseTx) error) error
}

// Locker provides mutual exclusion per occurrence key.  The returned
// unlock function must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ThresholdChecker receives the post-decrement inventory of each confirm.
// inventory.Detector implements it.
type ThresholdChecker interface {
	Check(ctx context.Context, userID string, inv model.Inventory) (inventory.Signals, error)
}

type noLock struct{}

func (noLock) Lock(context.Context, string) (func(), error) { return func() {}, nil }
