package model

import "time"

// Inventory mirrors the `inventories` table, one row per medicine.
// CurrentPills never goes below zero; the ledger floors the decrement.
//
// Fields:
//  MedicineID    – medicine this stock belongs to (primary key).
//  CurrentPills  – pills on hand.
//  LowThreshold  – level at or below which a low-stock alert fires.
//  RefillsTotal  – refills granted by the prescription.
//  RefillsUsed   – refills already collected.
//  LastUpdatedAt – last time the stock changed.
type Inventory struct {
	MedicineID    string    `json:"medicine_id"`     // inventories.medicine_id
	CurrentPills  int       `json:"current_pills"`   // inventories.current_pills
	LowThreshold  int       `json:"low_threshold"`   // inventories.low_threshold
	RefillsTotal  int       `json:"refills_total"`   // inventories.refills_total
	RefillsUsed   int       `json:"refills_used"`    // inventories.refills_used
	LastUpdatedAt time.Time `json:"last_updated_at"` // inventories.last_updated_at
}

// RemainingRefills returns RefillsTotal - RefillsUsed.
func (i Inventory) RemainingRefills() int {
	return i.RefillsTotal - i.RefillsUsed
}
