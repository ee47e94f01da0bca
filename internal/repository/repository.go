package repository

import (
	"context"

	"github.com/utafrali/cartengine/internal/domain"
)

// CartRepository is the durable key-value slot behind the persistence binding.
// Keys are derived from the current actor by the session package; the
// repository treats them as opaque.
type CartRepository interface {
	// Load retrieves the saved cart lines under the given key. Returns a
	// pkg/errors.ErrNotFound-wrapped error when no cart is saved there.
	Load(ctx context.Context, key string) ([]domain.Line, error)

	// Save overwrites the cart lines stored under the given key.
	Save(ctx context.Context, key string, lines []domain.Line) error

	// Delete removes the slot under the given key. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, key string) error
}
