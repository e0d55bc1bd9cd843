package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/dose-reminder/internal/model"
)

// Store bundles the repositories behind the interfaces the ledger,
// dispatcher, planner and handlers consume.
type Store struct {
	db          *sql.DB
	users       *UserRepo
	medicines   *MedicineRepo
	schedules   *ScheduleRepo
	doseLogs    *DoseLogRepo
	inventories *InventoryRepo
}

// NewStore wires every repository to db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:          db,
		users:       NewUserRepo(db),
		medicines:   NewMedicineRepo(db),
		schedules:   NewScheduleRepo(db),
		doseLogs:    NewDoseLogRepo(db),
		inventories: NewInventoryRepo(db),
	}
}

// DB exposes the pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) User(ctx context.Context, id string) (model.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Store) Medicine(ctx context.Context, id string) (model.Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

func (s *Store) Inventory(ctx context.Context, medicineID string) (model.Inventory, error) {
	return s.inventories.GetByMedicine(ctx, medicineID)
}

func (s *Store) UpsertInventory(ctx context.Context, inv model.Inventory) (model.Inventory, error) {
	return s.inventories.Upsert(ctx, inv)
}

func (s *Store) Schedules(ctx context.Context, medicineID string) ([]model.Schedule, error) {
	return s.schedules.ListByMedicine(ctx, medicineID)
}

func (s *Store) CreateSchedule(ctx context.Context, sc model.Schedule) (model.Schedule, error) {
	return s.schedules.Create(ctx, sc)
}

func (s *Store) Schedule(ctx context.Context, id string) (model.Schedule, error) {
	return s.schedules.GetByID(ctx, id)
}

func (s *Store) UpdateSchedule(ctx context.Context, sc model.Schedule) (model.Schedule, error) {
	return s.schedules.Update(ctx, sc)
}

func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	return s.schedules.Delete(ctx, id)
}

func (s *Store) ActiveSchedules(ctx context.Context, on time.Time) ([]model.Schedule, error) {
	return s.schedules.ListActive(ctx, on)
}

func (s *Store) DoseLogsInRange(ctx context.Context, medicineID string, from, to time.Time) ([]model.DoseLog, error) {
	return s.doseLogs.ListInRange(ctx, medicineID, from, to)
}

// WithinTx runs fn inside one SQL transaction.  The transaction is rolled
// back unless fn returns nil and the commit succeeds.  A deadlock, lock
// wait timeout or lost connection inside fn is reported as ErrTransaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DoseTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w: %v", ErrTransaction, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, &sqlDoseTx{tx: tx, logs: s.doseLogs, inventories: s.inventories}); err != nil {
		if retryable(err) {
			return fmt.Errorf("%w: %w", ErrTransaction, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w: %v", ErrTransaction, err)
	}
	committed = true
	return nil
}

// MySQL server errors that abort the unit of work without a lasting
// effect; WithinTx rolls back and the caller may retry.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

func retryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errDeadlock || me.Number == errLockWaitTimeout
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn)
}

type sqlDoseTx struct {
	tx          *sql.Tx
	logs        *DoseLogRepo
	inventories *InventoryRepo
}

var _ DoseTx = (*sqlDoseTx)(nil)

func (t *sqlDoseTx) UpsertDoseLog(ctx context.Context, l model.DoseLog) (model.DoseLog, model.DoseStatus, error) {
	return t.logs.UpsertTx(ctx, t.tx, l)
}

func (t *sqlDoseTx) DecrementInventory(ctx context.Context, medicineID string, at time.Time) (model.Inventory, bool, error) {
	return t.inventories.DecrementTx(ctx, t.tx, medicineID, at)
}

// ApplySeed upserts every record of seed.  Schedules are inserted, so a
// seed with schedule ids should only be applied once.
func (s *Store) ApplySeed(ctx context.Context, seed model.Seed) error {
	for _, u := range seed.Users {
		if err := s.users.Upsert(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	for _, m := range seed.Medicines {
		if err := s.medicines.Upsert(ctx, m); err != nil {
			return fmt.Errorf("seed medicine %s: %w", m.ID, err)
		}
	}
	for _, sc := range seed.Schedules {
		if _, err := s.schedules.Create(ctx, sc); err != nil {
			return fmt.Errorf("seed schedule for %s: %w", sc.MedicineID, err)
		}
	}
	for _, inv := range seed.Inventories {
		if _, err := s.inventories.Upsert(ctx, inv); err != nil {
			return fmt.Errorf("seed inventory %s: %w", inv.MedicineID, err)
		}
	}
	return nil
}
