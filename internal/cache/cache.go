package cache

import (
	"context"
	"errors"

	"github.com/fjod/cartsync/internal/domain"
)

// CartCache holds stored (unresolved) carts keyed by owner. Set never replaces
// a cached cart whose UpdatedAt is later than the one being written.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")
