package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/cartsync/internal/cache"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/internal/repository"
	"github.com/fjod/cartsync/pkg/logger"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	repo       repository.CartRepository
	cache      cache.CartCache
	resolver   ProductResolver
	aggregator *Aggregator
	sfg        singleflight.Group // Prevents cache stampede
	log        *slog.Logger
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, resolver ProductResolver, log *slog.Logger) *CartService {
	log = logger.OrDefault(log)
	return &CartService{
		repo:       repo,
		cache:      cache,
		resolver:   resolver,
		aggregator: NewAggregator(resolver, log),
		log:        log,
	}
}

// GetCart returns the aggregated cart, or ErrCartNotFound when the owner has
// never synced.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.AggregatedCart, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	stored, err := s.storedCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.aggregator.Aggregate(ctx, stored), nil
}

// SyncCart replaces the owner's whole item list and returns the aggregated
// result of the write. Quantities are validated at the boundary.
func (s *CartService) SyncCart(ctx context.Context, userID string, items []domain.CartLine) (*domain.AggregatedCart, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	cart, err := s.repo.ReplaceItems(ctx, userID, items)
	if err != nil {
		s.log.ErrorContext(ctx, "repo replace items error", "user_id", userID, "error", err)
		return nil, err
	}

	s.refreshCache(userID, cart)
	return s.aggregator.Aggregate(ctx, cart), nil
}

// ClearCart empties an existing cart; carts are never deleted. An owner who
// never synced gets ErrCartNotFound and no cart is created.
func (s *CartService) ClearCart(ctx context.Context, userID string) (*domain.AggregatedCart, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if _, err := s.repo.GetCart(ctx, userID); err != nil {
		return nil, err
	}
	return s.SyncCart(ctx, userID, nil)
}

func (s *CartService) Product(ctx context.Context, identifier string) (*domain.Product, error) {
	return s.resolver.Resolve(ctx, identifier)
}

func (s *CartService) storedCart(ctx context.Context, userID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WarnContext(ctx, "cache get error", "user_id", userID, "error", err)
		}

		cart, err = s.repo.GetCart(ctx, userID)
		if err != nil {
			return nil, err
		}

		// the cache keeps whichever cart is newer, so a fill racing a sync
		// cannot overwrite the synced cart
		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if errSet := s.cache.Set(setCtx, userID, cart); errSet != nil {
			s.log.WarnContext(ctx, "cache set error", "user_id", userID, "error", errSet)
		}

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// refreshCache stores the cart a sync just wrote. If that fails the entry is
// dropped so readers go back to the repository.
func (s *CartService) refreshCache(userID string, cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.cache.Set(ctx, userID, cart)
	if err == nil {
		return
	}
	s.log.Warn("cache refresh error", "user_id", userID, "error", err)
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cache invalidate error", "user_id", userID, "error", err)
	}
}
