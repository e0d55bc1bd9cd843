package model

import "time"

// Medicine is the collaborator view of a `medicines` row.  The engine only
// needs ownership and the fields rendered into reminder emails.
//
// Fields:
//  ID        – primary key identifier (uuid string).
//  UserID    – owner of the medicine.
//  Name      – display name, e.g. "Metformin".
//  Dose      – amount per intake.
//  Unit      – unit of Dose, e.g. "mg".
//  CreatedAt – timestamp of creation.
//  UpdatedAt – timestamp of last update.
type Medicine struct {
	ID        string    // medicines.id
	UserID    string    // medicines.user_id
	Name      string    // medicines.name
	Dose      float64   // medicines.dose
	Unit      string    // medicines.unit
	CreatedAt time.Time // medicines.created_at
	UpdatedAt time.Time // medicines.updated_at
}

// BelongsTo reports whether the medicine is owned by userID.
func (m Medicine) BelongsTo(userID string) bool {
	return m.UserID != "" && m.UserID == userID
}
