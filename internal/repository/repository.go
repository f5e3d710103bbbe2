package repository

import (
	"context"
	"errors"

	"github.com/fjod/cartsync/internal/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// CartRepository is the server-side cart store. ReplaceItems is the only write:
// create-if-absent, otherwise overwrite the whole item list. The Mongo
// implementation is last-writer-wins; a versioned implementation can satisfy
// the same interface.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	ReplaceItems(ctx context.Context, userID string, items []domain.CartLine) (*domain.Cart, error)
}
