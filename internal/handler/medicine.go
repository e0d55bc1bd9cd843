package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/dose-reminder/internal/model"
	"github.com/iliyamo/dose-reminder/internal/repository"
)

// MedicineReader looks up a medicine by id.
type MedicineReader interface {
	Medicine(ctx context.Context, id string) (model.Medicine, error)
}

// ownedMedicine loads the medicine and checks it belongs to userID.
func ownedMedicine(ctx context.Context, r MedicineReader, userID, id string) (model.Medicine, error) {
	if id == "" {
		return model.Medicine{}, invalid("medicine id is required")
	}
	m, err := r.Medicine(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Medicine{}, fmt.Errorf("medicine %s: %w", id, repository.ErrNotFound)
		}
		return model.Medicine{}, err
	}
	if !m.BelongsTo(userID) {
		return model.Medicine{}, fmt.Errorf("medicine %s: %w", id, repository.ErrForbidden)
	}
	return m, nil
}
