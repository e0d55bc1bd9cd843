package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/clock"
	"github.com/iliyamo/dose-reminder/internal/model"
	"github.com/iliyamo/dose-reminder/internal/repository"
)

// InventoryStore reads and writes the stock row of a medicine.
type InventoryStore interface {
	MedicineReader
	Inventory(ctx context.Context, medicineID string) (model.Inventory, error)
	UpsertInventory(ctx context.Context, inv model.Inventory) (model.Inventory, error)
}

// InventoryHandler exposes the stock settings the threshold detector reads.
type InventoryHandler struct {
	store InventoryStore
	clock clock.Clock
	log   *zap.Logger
}

// NewInventoryHandler panics when store or clk is nil.
func NewInventoryHandler(store InventoryStore, clk clock.Clock, log *zap.Logger) *InventoryHandler {
	if store == nil || clk == nil {
		panic("nil dependency passed to NewInventoryHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &InventoryHandler{store: store, clock: clk, log: log}
}

// Get handles GET /v1/medicines/:id/inventory.
func (h *InventoryHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx := c.Request().Context()
	med, err := ownedMedicine(ctx, h.store, userID, c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	inv, err := h.store.Inventory(ctx, med.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, inv)
}

type inventoryRequest struct {
	CurrentPills *int `json:"current_pills"`
	LowThreshold *int `json:"low_threshold"`
	RefillsTotal *int `json:"refills_total"`
	RefillsUsed  *int `json:"refills_used"`
}

// Put handles PUT /v1/medicines/:id/inventory.  current_pills and
// low_threshold are required; omitted refill counters keep their stored
// value, or zero for a new row.
func (h *InventoryHandler) Put(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx := c.Request().Context()
	med, err := ownedMedicine(ctx, h.store, userID, c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	var body inventoryRequest
	if err := c.Bind(&body); err != nil {
		return respondError(c, h.log, invalid("invalid request body"))
	}
	if body.CurrentPills == nil || body.LowThreshold == nil {
		return respondError(c, h.log, invalid("current_pills and low_threshold are required"))
	}
	for name, v := range map[string]*int{
		"current_pills": body.CurrentPills,
		"low_threshold": body.LowThreshold,
		"refills_total": body.RefillsTotal,
		"refills_used":  body.RefillsUsed,
	} {
		if v != nil && *v < 0 {
			return respondError(c, h.log, invalid("%s must not be negative", name))
		}
	}

	inv, err := h.store.Inventory(ctx, med.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return respondError(c, h.log, err)
	}
	inv.MedicineID = med.ID
	inv.CurrentPills = *body.CurrentPills
	inv.LowThreshold = *body.LowThreshold
	if body.RefillsTotal != nil {
		inv.RefillsTotal = *body.RefillsTotal
	}
	if body.RefillsUsed != nil {
		inv.RefillsUsed = *body.RefillsUsed
	}
	inv.LastUpdatedAt = h.clock.Now().UTC().Truncate(time.Millisecond)

	saved, err := h.store.UpsertInventory(ctx, inv)
	if err != nil {
		return respondError(c, h.log, err)
	}
	h.log.Info("inventory updated", zap.String("medicine_id", med.ID), zap.Int("current_pills", saved.CurrentPills))
	return c.JSON(http.StatusOK, saved)
}
