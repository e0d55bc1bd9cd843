// Package memstore is an in-process implementation of every store the
// engine reads from or writes to.  It backs STORE_DRIVER=memory and the
// end-to-end tests.  Transactions are serialized by a single mutex and
// their writes are staged until commit.
package memstore

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/dose-reminder/internal/model"
	"github.com/iliyamo/dose-reminder/internal/repository"
)

type logKey struct {
	medicineID string
	at         int64
}

func keyOf(medicineID string, at time.Time) logKey {
	return logKey{medicineID: medicineID, at: at.UTC().UnixMilli()}
}

// Store holds users, medicines, schedules, dose logs and inventories.
// The zero value is not usable; call New.
type Store struct {
	mu          sync.Mutex
	users       map[string]model.User
	medicines   map[string]model.Medicine
	schedules   map[string][]model.Schedule
	logs        map[logKey]model.DoseLog
	inventories map[string]model.Inventory

	// CommitHook, when set, runs after the transaction callback succeeds
	// and before its writes are applied.  A non-nil error aborts the
	// commit and is reported as repository.ErrTransaction.
	CommitHook func() error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       map[string]model.User{},
		medicines:   map[string]model.Medicine{},
		schedules:   map[string][]model.Schedule{},
		logs:        map[logKey]model.DoseLog{},
		inventories: map[string]model.Inventory{},
	}
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutMedicine inserts or replaces a medicine.
func (s *Store) PutMedicine(m model.Medicine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.medicines[m.ID] = m
}

// PutInventory inserts or replaces an inventory row.
func (s *Store) PutInventory(inv model.Inventory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventories[inv.MedicineID] = inv
}

// PutSchedule appends a schedule to its medicine.
func (s *Store) PutSchedule(sc model.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sc.MedicineID] = append(s.schedules[sc.MedicineID], sc)
}

// DeleteMedicine removes a medicine with its schedules, logs and inventory.
func (s *Store) DeleteMedicine(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.medicines, id)
	delete(s.schedules, id)
	delete(s.inventories, id)
	for k := range s.logs {
		if k.medicineID == id {
			delete(s.logs, k)
		}
	}
}

// LoadSeed decodes a seed document from r and stores every record in it.
func (s *Store) LoadSeed(r io.Reader) error {
	seed, err := model.DecodeSeed(r)
	if err != nil {
		return err
	}
	s.Apply(seed)
	return nil
}

// Apply stores every record of seed.
func (s *Store) Apply(seed model.Seed) {
	for _, u := range seed.Users {
		s.PutUser(u)
	}
	for _, m := range seed.Medicines {
		s.PutMedicine(m)
	}
	for _, sc := range seed.Schedules {
		if sc.ID == "" {
			sc.ID = uuid.NewString()
		}
		s.PutSchedule(sc)
	}
	for _, inv := range seed.Inventories {
		s.PutInventory(inv)
	}
}

func (s *Store) User(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *Store) Medicine(_ context.Context, id string) (model.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.medicines[id]
	if !ok {
		return model.Medicine{}, repository.ErrNotFound
	}
	return m, nil
}

func (s *Store) Inventory(_ context.Context, medicineID string) (model.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.inventories[medicineID]
	if !ok {
		return model.Inventory{}, repository.ErrNotFound
	}
	return inv, nil
}

// UpsertInventory replaces the stock settings of a medicine.
func (s *Store) UpsertInventory(_ context.Context, inv model.Inventory) (model.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.medicines[inv.MedicineID]; !ok {
		return model.Inventory{}, repository.ErrNotFound
	}
	s.inventories[inv.MedicineID] = inv
	return inv, nil
}

func (s *Store) Schedules(_ context.Context, medicineID string) ([]model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.schedules[medicineID]), nil
}

// CreateSchedule stores sc, assigning an id when it has none.
func (s *Store) CreateSchedule(_ context.Context, sc model.Schedule) (model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.medicines[sc.MedicineID]; !ok {
		return model.Schedule{}, repository.ErrNotFound
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	s.schedules[sc.MedicineID] = append(s.schedules[sc.MedicineID], sc)
	return sc, nil
}

func (s *Store) Schedule(_ context.Context, id string) (model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.schedules {
		for _, sc := range list {
			if sc.ID == id {
				return sc, nil
			}
		}
	}
	return model.Schedule{}, repository.ErrNotFound
}

// UpdateSchedule replaces the definition fields of the schedule with
// sc.ID, keeping its medicine and creation time.
func (s *Store) UpdateSchedule(_ context.Context, sc model.Schedule) (model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for med, list := range s.schedules {
		for i, cur := range list {
			if cur.ID != sc.ID {
				continue
			}
			cur.TimesOfDay = slices.Clone(sc.TimesOfDay)
			cur.StartDate = sc.StartDate
			cur.EndDate = sc.EndDate
			cur.DaysOfWeek = slices.Clone(sc.DaysOfWeek)
			s.schedules[med][i] = cur
			return cur, nil
		}
	}
	return model.Schedule{}, repository.ErrNotFound
}

func (s *Store) DeleteSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for med, list := range s.schedules {
		if i := slices.IndexFunc(list, func(sc model.Schedule) bool { return sc.ID == id }); i >= 0 {
			s.schedules[med] = slices.Delete(list, i, i+1)
			return nil
		}
	}
	return repository.ErrNotFound
}

// ActiveSchedules returns every schedule whose end date is not before the
// day preceding on's UTC date.  Owners west of UTC may still be on that
// earlier day; exact bounds are applied when occurrences are generated.
func (s *Store) ActiveSchedules(_ context.Context, on time.Time) ([]model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := on.UTC().Truncate(24*time.Hour).AddDate(0, 0, -1)
	var out []model.Schedule
	for _, list := range s.schedules {
		for _, sc := range list {
			if sc.EndDate != nil && sc.EndDate.UTC().Before(day) {
				continue
			}
			out = append(out, sc)
		}
	}
	slices.SortFunc(out, func(a, b model.Schedule) int {
		if a.MedicineID != b.MedicineID {
			if a.MedicineID < b.MedicineID {
				return -1
			}
			return 1
		}
		return a.StartDate.Compare(b.StartDate)
	})
	return out, nil
}

func (s *Store) DoseLogsInRange(_ context.Context, medicineID string, from, to time.Time) ([]model.DoseLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.DoseLog{}
	for k, l := range s.logs {
		if k.medicineID != medicineID {
			continue
		}
		if l.ScheduledAt.Before(from) || l.ScheduledAt.After(to) {
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b model.DoseLog) int { return a.ScheduledAt.Compare(b.ScheduledAt) })
	return out, nil
}

// WithinTx runs fn against staged copies of the dose logs and
// inventories.  The staged writes replace the live ones only if fn
// returns nil and CommitHook (when set) succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.DoseTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:       s,
		logs:        map[logKey]model.DoseLog{},
		inventories: map[string]model.Inventory{},
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if s.CommitHook != nil {
		if err := s.CommitHook(); err != nil {
			return fmt.Errorf("commit: %w: %w", repository.ErrTransaction, err)
		}
	}
	for k, l := range tx.logs {
		s.logs[k] = l
	}
	for id, inv := range tx.inventories {
		s.inventories[id] = inv
	}
	return nil
}

// memTx reads through its staged writes to the live maps.  The store
// mutex is held for its whole lifetime.
type memTx struct {
	store       *Store
	logs        map[logKey]model.DoseLog
	inventories map[string]model.Inventory
}

var _ repository.DoseTx = (*memTx)(nil)

func (t *memTx) UpsertDoseLog(_ context.Context, l model.DoseLog) (model.DoseLog, model.DoseStatus, error) {
	k := keyOf(l.MedicineID, l.ScheduledAt)
	prev, ok := t.logs[k]
	if !ok {
		prev, ok = t.store.logs[k]
	}
	var prevStatus model.DoseStatus
	if ok {
		prevStatus = prev.Status
		l.CreatedAt = prev.CreatedAt
	}
	t.logs[k] = l
	return l, prevStatus, nil
}

func (t *memTx) DecrementInventory(_ context.Context, medicineID string, at time.Time) (model.Inventory, bool, error) {
	inv, ok := t.inventories[medicineID]
	if !ok {
		inv, ok = t.store.inventories[medicineID]
	}
	if !ok {
		return model.Inventory{}, false, nil
	}
	inv.CurrentPills = max(inv.CurrentPills-1, 0)
	inv.LastUpdatedAt = at
	t.inventories[medicineID] = inv
	return inv, true, nil
}
