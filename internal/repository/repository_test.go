package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dose-reminder/internal/model"
)

func TestScheduleArrays_RoundTripAndNullDays(t *testing.T) {
	s := model.Schedule{TimesOfDay: []string{"08:00", "20:00"}}
	times, days, err := encodeScheduleArrays(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["08:00","20:00"]`, string(times))
	assert.Nil(t, days, "empty weekday filter is stored as NULL")

	s.DaysOfWeek = []int{1, 3, 5}
	_, days, err = encodeScheduleArrays(s)
	require.NoError(t, err)
	assert.JSONEq(t, `[1,3,5]`, string(days.([]byte)))

	var out model.Schedule
	require.NoError(t, decodeScheduleArrays(&out, times, days.([]byte)))
	assert.Equal(t, []string{"08:00", "20:00"}, out.TimesOfDay)
	assert.Equal(t, []int{1, 3, 5}, out.DaysOfWeek)

	var noDays model.Schedule
	require.NoError(t, decodeScheduleArrays(&noDays, times, nil))
	assert.Nil(t, noDays.DaysOfWeek)

	assert.Error(t, decodeScheduleArrays(&out, []byte("{"), nil))
}

// mysqlStore opens MYSQL_TEST_DSN or skips.  The schema must already be
// applied.
func mysqlStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestStore_ConfirmTransaction(t *testing.T) {
	st := mysqlStore(t)
	ctx := context.Background()
	userID, medID := uuid.NewString(), uuid.NewString()
	require.NoError(t, st.ApplySeed(ctx, model.Seed{
		Users:       []model.User{{ID: userID, Email: userID + "@example.com", EmailEnabled: true}},
		Medicines:   []model.Medicine{{ID: medID, UserID: userID, Name: "Test"}},
		Inventories: []model.Inventory{{MedicineID: medID, CurrentPills: 1, LowThreshold: 0}},
	}))
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	now := time.Now().UTC().Truncate(time.Millisecond)

	confirm := func() {
		require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx DoseTx) error {
			if _, _, err := tx.UpsertDoseLog(ctx, model.DoseLog{MedicineID: medID, ScheduledAt: at, Status: model.DoseTaken, TakenAt: &now, CreatedAt: now, UpdatedAt: now}); err != nil {
				return err
			}
			_, _, err := tx.DecrementInventory(ctx, medID, now)
			return err
		}))
	}
	confirm()
	confirm()

	inv, err := st.Inventory(ctx, medID)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.CurrentPills)
	logs, err := st.DoseLogsInRange(ctx, medID, at, at)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.DoseTaken, logs[0].Status)

	boom := errors.New("boom")
	err = st.WithinTx(ctx, func(ctx context.Context, tx DoseTx) error {
		_, _, _ = tx.UpsertDoseLog(ctx, model.DoseLog{MedicineID: medID, ScheduledAt: at.Add(time.Hour), Status: model.DoseSkipped, CreatedAt: now, UpdatedAt: now})
		return boom
	})
	assert.ErrorIs(t, err, boom)
	logs, err = st.DoseLogsInRange(ctx, medID, at, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, logs, 1, "rolled back write is not visible")

	_, err = st.Medicine(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveCutoff_IsDayBeforeUTCDate(t *testing.T) {
	assert.Equal(t, "2025-03-05", activeCutoff(time.Date(2025, 3, 6, 3, 55, 0, 0, time.UTC)))
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 22:00 EST on the 5th is 03:00 UTC on the 6th.
	assert.Equal(t, "2025-03-05", activeCutoff(time.Date(2025, 3, 5, 22, 0, 0, 0, ny)))
}

func TestStore_ScheduleUpdateAndDelete(t *testing.T) {
	st := mysqlStore(t)
	ctx := context.Background()
	userID, medID := uuid.NewString(), uuid.NewString()
	require.NoError(t, st.ApplySeed(ctx, model.Seed{
		Users:     []model.User{{ID: userID, Email: userID + "@example.com"}},
		Medicines: []model.Medicine{{ID: medID, UserID: userID, Name: "Test"}},
	}))
	created, err := st.CreateSchedule(ctx, model.Schedule{
		MedicineID: medID, TimesOfDay: []string{"08:00"}, DaysOfWeek: []int{1},
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	end := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	updated, err := st.UpdateSchedule(ctx, model.Schedule{
		ID: created.ID, TimesOfDay: []string{"09:00", "21:00"},
		StartDate: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), EndDate: &end,
	})
	require.NoError(t, err)
	assert.Equal(t, medID, updated.MedicineID)
	assert.Equal(t, []string{"09:00", "21:00"}, updated.TimesOfDay)
	assert.Nil(t, updated.DaysOfWeek)
	require.NotNil(t, updated.EndDate)

	_, err = st.UpdateSchedule(ctx, updated)
	assert.NoError(t, err, "unchanged row still counts as found")

	require.NoError(t, st.DeleteSchedule(ctx, created.ID))
	assert.ErrorIs(t, st.DeleteSchedule(ctx, created.ID), ErrNotFound)
	_, err = st.Schedule(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.UpdateSchedule(ctx, updated)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"deadlock", &mysql.MySQLError{Number: 1213}, true},
		{"lock wait timeout", fmt.Errorf("upsert: %w", &mysql.MySQLError{Number: 1205}), true},
		{"bad conn", driver.ErrBadConn, true},
		{"invalid conn", mysql.ErrInvalidConn, true},
		{"duplicate key", &mysql.MySQLError{Number: 1062}, false},
		{"not found", ErrNotFound, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, retryable(tc.err))
		})
	}
}

func TestStore_WithinTxReportsDeadlockAsTransactionError(t *testing.T) {
	st := mysqlStore(t)
	err := st.WithinTx(context.Background(), func(context.Context, DoseTx) error {
		return &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
	})
	assert.ErrorIs(t, err, ErrTransaction)

	boom := errors.New("boom")
	err = st.WithinTx(context.Background(), func(context.Context, DoseTx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTransaction)
}
