package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dose-reminder/internal/clock"
	"github.com/iliyamo/dose-reminder/internal/doselink"
	"github.com/iliyamo/dose-reminder/internal/ledger"
	"github.com/iliyamo/dose-reminder/internal/memstore"
	"github.com/iliyamo/dose-reminder/internal/model"
	"github.com/iliyamo/dose-reminder/internal/repository"
)

var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

var (
	_ DoseLedger     = (*ledger.Service)(nil)
	_ ScheduleStore  = (*memstore.Store)(nil)
	_ InventoryStore = (*memstore.Store)(nil)
)

type fixture struct {
	store     *memstore.Store
	links     *doselink.Signer
	doses     *DoseHandler
	schedules *ScheduleHandler
	inventory *InventoryHandler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memstore.New()
	st.PutUser(model.User{ID: "u1", Email: "u1@example.com", Timezone: "UTC", EmailEnabled: true})
	st.PutUser(model.User{ID: "u2", Email: "u2@example.com", Timezone: "UTC", EmailEnabled: true})
	st.PutMedicine(model.Medicine{ID: "m1", UserID: "u1", Name: "Metformin"})
	st.PutMedicine(model.Medicine{ID: "m2", UserID: "u2", Name: "Lisinopril"})
	clk := clock.Fixed{T: now}
	svc := ledger.NewService(st, nil, clk, nil, ledger.Options{})
	links := doselink.NewSigner("secret", time.Hour)
	return fixture{
		store:     st,
		links:     links,
		doses:     NewDoseHandler(svc, links, nil),
		schedules: NewScheduleHandler(st, clk, nil),
		inventory: NewInventoryHandler(st, clk, nil),
	}
}

type request struct {
	method string
	target string
	body   string
	user   string
	id     string
	sched  string
}

func call(t *testing.T, h echo.HandlerFunc, r request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(r.method, r.target, strings.NewReader(r.body))
	if r.body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if r.user != "" {
		c.Set("user_id", r.user)
	}
	if r.sched != "" {
		c.SetParamNames("id", "scheduleId")
		c.SetParamValues(r.id, r.sched)
	} else if r.id != "" {
		c.SetParamNames("id")
		c.SetParamValues(r.id)
	}
	require.NoError(t, h(c))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestConfirm_JSONBody(t *testing.T) {
	f := newFixture(t)
	f.store.PutInventory(model.Inventory{MedicineID: "m1", CurrentPills: 3})

	rec := call(t, f.doses.Confirm, request{
		method: http.MethodPost, target: "/v1/doses/confirm", user: "u1",
		body: `{"medicine_id":"m1","scheduled_at":"2025-03-01T08:00:00Z"}`,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	row := decode[model.DoseLog](t, rec)
	assert.Equal(t, model.DoseTaken, row.Status)
	assert.True(t, row.ScheduledAt.Equal(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)))

	inv, err := f.store.Inventory(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, inv.CurrentPills)
}

func TestConfirmAndSkip_QueryParams(t *testing.T) {
	f := newFixture(t)
	target := "/v1/doses/skip?medicine_id=m1&scheduled_at=2025-03-01T08%3A00%3A00Z"

	rec := call(t, f.doses.Skip, request{method: http.MethodPost, target: target, user: "u1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, model.DoseSkipped, decode[model.DoseLog](t, rec).Status)

	rec = call(t, f.doses.Confirm, request{method: http.MethodPost, target: target, user: "u1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, model.DoseTaken, decode[model.DoseLog](t, rec).Status)
}

func TestLink_RecordsWithoutBearer(t *testing.T) {
	f := newFixture(t)
	f.store.PutInventory(model.Inventory{MedicineID: "m1", CurrentPills: 3})
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	skip, err := f.links.Sign(doselink.ActionSkip, "u1", "m1", at)
	require.NoError(t, err)
	confirm, err := f.links.Sign(doselink.ActionConfirm, "u1", "m1", at)
	require.NoError(t, err)

	rec := call(t, f.doses.Link(doselink.ActionSkip), request{method: http.MethodGet, target: "/doses/skip?token=" + skip})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.DoseSkipped, decode[model.DoseLog](t, rec).Status)

	rec = call(t, f.doses.Link(doselink.ActionConfirm), request{method: http.MethodGet, target: "/doses/confirm?token=" + confirm})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	row := decode[model.DoseLog](t, rec)
	assert.Equal(t, model.DoseTaken, row.Status)
	assert.True(t, row.ScheduledAt.Equal(at))

	inv, err := f.store.Inventory(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, inv.CurrentPills)
}

func TestLink_Refused(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	skip, err := f.links.Sign(doselink.ActionSkip, "u1", "m1", at)
	require.NoError(t, err)
	foreign, err := f.links.Sign(doselink.ActionConfirm, "u2", "m1", at)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage", "abc", http.StatusUnauthorized},
		{"skip token on confirm", skip, http.StatusUnauthorized},
		{"medicine of another user", foreign, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := call(t, f.doses.Link(doselink.ActionConfirm), request{method: http.MethodGet, target: "/doses/confirm?token=" + tc.token})
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
	logs, err := f.store.DoseLogsInRange(context.Background(), "m1", at, at)
	require.NoError(t, err)
	assert.Empty(t, logs)

	noLinks := NewDoseHandler(ledger.NewService(f.store, nil, clock.Fixed{T: now}, nil, ledger.Options{}), nil, nil)
	rec := call(t, noLinks.Link(doselink.ActionSkip), request{method: http.MethodGet, target: "/doses/skip?token=" + skip})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConfirm_Errors(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		req  request
		code int
	}{
		{"unauthenticated", request{body: `{"medicine_id":"m1","scheduled_at":"2025-03-01T08:00:00Z"}`}, http.StatusUnauthorized},
		{"missing medicine", request{user: "u1", body: `{"scheduled_at":"2025-03-01T08:00:00Z"}`}, http.StatusBadRequest},
		{"missing instant", request{user: "u1", body: `{"medicine_id":"m1"}`}, http.StatusBadRequest},
		{"bad instant", request{user: "u1", body: `{"medicine_id":"m1","scheduled_at":"yesterday"}`}, http.StatusBadRequest},
		{"malformed body", request{user: "u1", body: `{"medicine_id":`}, http.StatusBadRequest},
		{"not owner", request{user: "u1", body: `{"medicine_id":"m2","scheduled_at":"2025-03-01T08:00:00Z"}`}, http.StatusForbidden},
		{"unknown medicine", request{user: "u1", body: `{"medicine_id":"nope","scheduled_at":"2025-03-01T08:00:00Z"}`}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.method, tc.req.target = http.MethodPost, "/v1/doses/confirm"
			rec := call(t, f.doses.Confirm, tc.req)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestConfirm_CommitFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.store.PutInventory(model.Inventory{MedicineID: "m1", CurrentPills: 3})
	f.store.CommitHook = func() error { return errors.New("deadlock") }

	rec := call(t, f.doses.Confirm, request{
		method: http.MethodPost, target: "/v1/doses/confirm", user: "u1",
		body: `{"medicine_id":"m1","scheduled_at":"2025-03-01T08:00:00Z"}`,
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	inv, err := f.store.Inventory(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, inv.CurrentPills)
}

func TestList_Range(t *testing.T) {
	f := newFixture(t)
	for _, at := range []string{"2025-03-01T08:00:00Z", "2025-03-02T08:00:00Z"} {
		rec := call(t, f.doses.Confirm, request{
			method: http.MethodPost, target: "/v1/doses/confirm", user: "u1",
			body: `{"medicine_id":"m1","scheduled_at":"` + at + `"}`,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := call(t, f.doses.List, request{
		method: http.MethodGet, user: "u1", id: "m1",
		target: "/v1/medicines/m1/doses?from=2025-03-01T00:00:00Z&to=2025-03-01T23:59:59Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]model.DoseLog](t, rec)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].ScheduledAt.Equal(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)))

	bad := map[string]string{
		"inverted":   "?from=2025-03-02T00:00:00Z&to=2025-03-01T00:00:00Z",
		"missing to": "?from=2025-03-01T00:00:00Z",
		"garbage":    "?from=monday&to=2025-03-01T00:00:00Z",
		"too wide":   "?from=2025-01-01T00:00:00Z&to=2026-06-01T00:00:00Z",
	}
	for name, q := range bad {
		t.Run(name, func(t *testing.T) {
			rec := call(t, f.doses.List, request{method: http.MethodGet, user: "u1", id: "m1", target: "/v1/medicines/m1/doses" + q})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestNext_AnnotatesOccurrences(t *testing.T) {
	f := newFixture(t)
	f.store.PutSchedule(model.Schedule{
		ID: "s1", MedicineID: "m1", TimesOfDay: []string{"08:00", "20:00"},
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	target := "/v1/medicines/m1/next-doses?from=2025-03-01T00:00:00Z&to=2025-03-01T23:59:00Z"

	rec := call(t, f.doses.Next, request{method: http.MethodGet, user: "u1", id: "m1", target: target})
	require.Equal(t, http.StatusOK, rec.Code)
	doses := decode[[]model.Dose](t, rec)
	require.Len(t, doses, 2)
	assert.Equal(t, model.DoseMissed, doses[0].Status)
	assert.Equal(t, model.DosePending, doses[1].Status)

	call(t, f.doses.Confirm, request{
		method: http.MethodPost, target: "/v1/doses/confirm", user: "u1",
		body: `{"medicine_id":"m1","scheduled_at":"2025-03-01T08:00:00Z"}`,
	})
	rec = call(t, f.doses.Next, request{method: http.MethodGet, user: "u1", id: "m1", target: target})
	doses = decode[[]model.Dose](t, rec)
	require.Len(t, doses, 2)
	assert.Equal(t, model.DoseTaken, doses[0].Status)

	rec = call(t, f.doses.Next, request{method: http.MethodGet, user: "u2", id: "m1", target: target})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSchedules_CreateAndList(t *testing.T) {
	f := newFixture(t)

	rec := call(t, f.schedules.Create, request{
		method: http.MethodPost, target: "/v1/medicines/m1/schedules", user: "u1", id: "m1",
		body: `{"times_of_day":["20:00","08:00"],"start_date":"2025-03-01","end_date":"2025-03-31","days_of_week":[1,3,5]}`,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[scheduleResponse](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "m1", created.MedicineID)
	assert.Equal(t, "2025-03-01", created.StartDate)
	require.NotNil(t, created.EndDate)
	assert.Equal(t, "2025-03-31", *created.EndDate)
	assert.Equal(t, []int{1, 3, 5}, created.DaysOfWeek)
	assert.True(t, created.CreatedAt.Equal(now))

	rec = call(t, f.schedules.List, request{method: http.MethodGet, target: "/v1/medicines/m1/schedules", user: "u1", id: "m1"})
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]scheduleResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}

func TestSchedules_CreateRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"empty times":     `{"times_of_day":[],"start_date":"2025-03-01"}`,
		"malformed time":  `{"times_of_day":["8am"],"start_date":"2025-03-01"}`,
		"end before":      `{"times_of_day":["08:00"],"start_date":"2025-03-10","end_date":"2025-03-01"}`,
		"weekday 7":       `{"times_of_day":["08:00"],"start_date":"2025-03-01","days_of_week":[7]}`,
		"missing start":   `{"times_of_day":["08:00"]}`,
		"unparsable date": `{"times_of_day":["08:00"],"start_date":"March 1"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := call(t, f.schedules.Create, request{
				method: http.MethodPost, target: "/v1/medicines/m1/schedules", user: "u1", id: "m1", body: body,
			})
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	ss, err := f.store.Schedules(context.Background(), "m1")
	require.NoError(t, err)
	assert.Empty(t, ss)

	rec := call(t, f.schedules.Create, request{
		method: http.MethodPost, target: "/v1/medicines/m2/schedules", user: "u1", id: "m2",
		body: `{"times_of_day":["08:00"],"start_date":"2025-03-01"}`,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSchedules_UpdateReplacesDefinition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.store.CreateSchedule(ctx, model.Schedule{
		MedicineID: "m1", TimesOfDay: []string{"08:00"}, DaysOfWeek: []int{1},
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), CreatedAt: now,
	})
	require.NoError(t, err)
	target := "/v1/medicines/m1/schedules/" + created.ID

	rec := call(t, f.schedules.Update, request{
		method: http.MethodPut, target: target, user: "u1", id: "m1", sched: created.ID,
		body: `{"times_of_day":["09:00","21:00"],"start_date":"2025-04-01","end_date":"2025-04-30"}`,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[scheduleResponse](t, rec)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, []string{"09:00", "21:00"}, got.TimesOfDay)
	assert.Equal(t, "2025-04-01", got.StartDate)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, "2025-04-30", *got.EndDate)
	assert.Empty(t, got.DaysOfWeek, "omitted weekday filter is cleared")
	assert.True(t, got.CreatedAt.Equal(now))

	rec = call(t, f.schedules.Update, request{
		method: http.MethodPut, target: target, user: "u1", id: "m1", sched: created.ID,
		body: `{"times_of_day":["25:00"],"start_date":"2025-04-01"}`,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	stored, err := f.store.Schedule(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "21:00"}, stored.TimesOfDay)
}

func TestSchedules_UpdateAndDeleteErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	own, err := f.store.CreateSchedule(ctx, model.Schedule{
		MedicineID: "m1", TimesOfDay: []string{"08:00"}, StartDate: now, CreatedAt: now,
	})
	require.NoError(t, err)
	other, err := f.store.CreateSchedule(ctx, model.Schedule{
		MedicineID: "m2", TimesOfDay: []string{"08:00"}, StartDate: now, CreatedAt: now,
	})
	require.NoError(t, err)
	body := `{"times_of_day":["10:00"],"start_date":"2025-03-01"}`

	cases := []struct {
		name string
		user string
		id   string
		sch  string
		want int
	}{
		{"unknown schedule", "u1", "m1", "nope", http.StatusNotFound},
		{"schedule of another medicine", "u1", "m1", other.ID, http.StatusNotFound},
		{"medicine of another user", "u2", "m1", own.ID, http.StatusForbidden},
		{"unknown medicine", "u1", "zz", own.ID, http.StatusNotFound},
		{"no user", "", "m1", own.ID, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := call(t, f.schedules.Update, request{
				method: http.MethodPut, target: "/v1/medicines/x/schedules/y", user: tc.user, id: tc.id, sched: tc.sch, body: body,
			})
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			rec = call(t, f.schedules.Delete, request{
				method: http.MethodDelete, target: "/v1/medicines/x/schedules/y", user: tc.user, id: tc.id, sched: tc.sch,
			})
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	rec := call(t, f.schedules.Delete, request{
		method: http.MethodDelete, target: "/v1/medicines/m1/schedules/" + own.ID, user: "u1", id: "m1", sched: own.ID,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err = f.store.Schedule(ctx, own.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.store.Schedule(ctx, other.ID)
	assert.NoError(t, err)
}

func TestInventory_GetAndPut(t *testing.T) {
	f := newFixture(t)

	rec := call(t, f.inventory.Get, request{method: http.MethodGet, target: "/v1/medicines/m1/inventory", user: "u1", id: "m1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, f.inventory.Put, request{
		method: http.MethodPut, target: "/v1/medicines/m1/inventory", user: "u1", id: "m1",
		body: `{"current_pills":30,"low_threshold":5,"refills_total":2,"refills_used":1}`,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	inv := decode[model.Inventory](t, rec)
	assert.Equal(t, 30, inv.CurrentPills)
	assert.True(t, inv.LastUpdatedAt.Equal(now))

	rec = call(t, f.inventory.Put, request{
		method: http.MethodPut, target: "/v1/medicines/m1/inventory", user: "u1", id: "m1",
		body: `{"current_pills":12,"low_threshold":4}`,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	inv = decode[model.Inventory](t, rec)
	assert.Equal(t, 12, inv.CurrentPills)
	assert.Equal(t, 2, inv.RefillsTotal, "omitted counters keep the stored value")
	assert.Equal(t, 1, inv.RefillsUsed)

	rec = call(t, f.inventory.Get, request{method: http.MethodGet, target: "/v1/medicines/m1/inventory", user: "u1", id: "m1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, decode[model.Inventory](t, rec).CurrentPills)
}

func TestInventory_PutRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"missing pills":     `{"low_threshold":4}`,
		"missing threshold": `{"current_pills":4}`,
		"negative pills":    `{"current_pills":-1,"low_threshold":4}`,
		"negative refills":  `{"current_pills":1,"low_threshold":4,"refills_used":-2}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := call(t, f.inventory.Put, request{
				method: http.MethodPut, target: "/v1/medicines/m1/inventory", user: "u1", id: "m1", body: body,
			})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	rec := call(t, f.inventory.Put, request{
		method: http.MethodPut, target: "/v1/medicines/m2/inventory", user: "u1", id: "m2",
		body: `{"current_pills":1,"low_threshold":0}`,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	rec := call(t, NewHealth(clock.Fixed{T: now}, map[string]Check{"database": ok}).Handle, request{method: http.MethodGet, target: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = call(t, NewHealth(clock.Fixed{T: now}, map[string]Check{"database": ok, "redis": down}).Handle, request{method: http.MethodGet, target: "/healthz"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[struct {
		Status   string                   `json:"status"`
		Services map[string]serviceStatus `json:"services"`
	}](t, rec)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "ok", body.Services["database"].Status)
	assert.Equal(t, "connection refused", body.Services["redis"].Message)
}
