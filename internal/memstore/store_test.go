package memstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dose-reminder/internal/model"
	"github.com/iliyamo/dose-reminder/internal/repository"
)

var at = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seeded() *Store {
	s := New()
	s.PutUser(model.User{ID: "u1"})
	s.PutMedicine(model.Medicine{ID: "m1", UserID: "u1"})
	s.PutInventory(model.Inventory{MedicineID: "m1", CurrentPills: 1, LowThreshold: 0})
	return s
}

func TestWithinTx_CommitsBothWrites(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.DoseTx) error {
		if _, _, err := tx.UpsertDoseLog(ctx, model.DoseLog{MedicineID: "m1", ScheduledAt: at, Status: model.DoseTaken}); err != nil {
			return err
		}
		_, _, err := tx.DecrementInventory(ctx, "m1", at)
		return err
	})
	require.NoError(t, err)

	logs, _ := s.DoseLogsInRange(ctx, "m1", at, at)
	require.Len(t, logs, 1)
	inv, _ := s.Inventory(ctx, "m1")
	assert.Equal(t, 0, inv.CurrentPills)
	assert.Equal(t, at, inv.LastUpdatedAt)
}

func TestWithinTx_CommitFailureDiscardsWrites(t *testing.T) {
	s := seeded()
	s.CommitHook = func() error { return errors.New("connection reset") }
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.DoseTx) error {
		_, _, _ = tx.UpsertDoseLog(ctx, model.DoseLog{MedicineID: "m1", ScheduledAt: at, Status: model.DoseTaken})
		_, _, err := tx.DecrementInventory(ctx, "m1", at)
		return err
	})
	require.ErrorIs(t, err, repository.ErrTransaction)

	logs, _ := s.DoseLogsInRange(ctx, "m1", at, at)
	assert.Empty(t, logs)
	inv, _ := s.Inventory(ctx, "m1")
	assert.Equal(t, 1, inv.CurrentPills)
}

func TestWithinTx_CallbackErrorDiscardsWrites(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.DoseTx) error {
		_, _, _ = tx.DecrementInventory(ctx, "m1", at)
		return boom
	})
	require.ErrorIs(t, err, boom)
	inv, _ := s.Inventory(ctx, "m1")
	assert.Equal(t, 1, inv.CurrentPills)
}

func TestUpsertDoseLog_ReportsPreviousAndKeepsCreatedAt(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	first := at.Add(-time.Hour)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx repository.DoseTx) error {
		_, prev, err := tx.UpsertDoseLog(ctx, model.DoseLog{MedicineID: "m1", ScheduledAt: at, Status: model.DoseSkipped, CreatedAt: first})
		assert.Equal(t, model.DoseStatus(""), prev)
		return err
	}))
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx repository.DoseTx) error {
		row, prev, err := tx.UpsertDoseLog(ctx, model.DoseLog{MedicineID: "m1", ScheduledAt: at, Status: model.DoseTaken, CreatedAt: at})
		assert.Equal(t, model.DoseSkipped, prev)
		assert.Equal(t, first, row.CreatedAt)
		return err
	}))

	logs, _ := s.DoseLogsInRange(ctx, "m1", at, at)
	require.Len(t, logs, 1)
	assert.Equal(t, model.DoseTaken, logs[0].Status)
}

func TestDecrementInventory_FloorsAndMissingRow(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	for range 3 {
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx repository.DoseTx) error {
			_, _, err := tx.DecrementInventory(ctx, "m1", at)
			return err
		}))
	}
	inv, _ := s.Inventory(ctx, "m1")
	assert.Equal(t, 0, inv.CurrentPills)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx repository.DoseTx) error {
		_, ok, err := tx.DecrementInventory(ctx, "nope", at)
		assert.False(t, ok)
		return err
	}))
}

func TestLookupsReturnNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.User(ctx, "x")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Medicine(ctx, "x")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Inventory(ctx, "x")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.CreateSchedule(ctx, model.Schedule{MedicineID: "x"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLoadSeedAndActiveSchedules(t *testing.T) {
	const doc = `{
	  "users": [{"ID": "u1", "Email": "a@b.c", "Timezone": "UTC", "EmailEnabled": true}],
	  "medicines": [{"ID": "m1", "UserID": "u1", "Name": "Ibuprofen"}],
	  "schedules": [
	    {"MedicineID": "m1", "TimesOfDay": ["08:00"], "StartDate": "2025-01-01T00:00:00Z"},
	    {"MedicineID": "m1", "TimesOfDay": ["09:00"], "StartDate": "2024-01-01T00:00:00Z", "EndDate": "2024-12-31T00:00:00Z"}
	  ],
	  "inventories": [{"medicine_id": "m1", "current_pills": 30, "low_threshold": 5}]
	}`
	s := New()
	require.NoError(t, s.LoadSeed(strings.NewReader(doc)))
	ctx := context.Background()

	u, err := s.User(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.EmailEnabled)
	inv, err := s.Inventory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 30, inv.CurrentPills)

	active, err := s.ActiveSchedules(ctx, at)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, []string{"08:00"}, active[0].TimesOfDay)
	assert.NotEmpty(t, active[0].ID)
}
