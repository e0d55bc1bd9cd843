package model

import (
	"encoding/json"
	"fmt"
	"io"
)

// Seed is a JSON document of records loaded at startup.  Keys match the
// Go field names case-insensitively; dates are RFC 3339.
type Seed struct {
	Users       []User      `json:"users"`
	Medicines   []Medicine  `json:"medicines"`
	Schedules   []Schedule  `json:"schedules"`
	Inventories []Inventory `json:"inventories"`
}

// DecodeSeed reads a Seed from r.
func DecodeSeed(r io.Reader) (Seed, error) {
	var s Seed
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return s, nil
}
