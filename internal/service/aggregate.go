package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/internal/product"
	"github.com/fjod/cartsync/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const defaultResolveConcurrency = 8

type ProductResolver interface {
	Resolve(ctx context.Context, identifier string) (*domain.Product, error)
}

// Aggregator turns a stored cart into a priced response.
type Aggregator struct {
	resolver    ProductResolver
	concurrency int
	log         *slog.Logger
}

func NewAggregator(resolver ProductResolver, log *slog.Logger) *Aggregator {
	return &Aggregator{
		resolver:    resolver,
		concurrency: defaultResolveConcurrency,
		log:         logger.OrDefault(log),
	}
}

// Aggregate resolves every line concurrently. Lines that fail to resolve are
// dropped and logged; totals cover surviving lines only. Quantities pass
// through unchanged.
func (a *Aggregator) Aggregate(ctx context.Context, cart *domain.Cart) *domain.AggregatedCart {
	resolved := make([]*domain.ResolvedLine, len(cart.Items))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, line := range cart.Items {
		g.Go(func() error {
			p, err := a.resolver.Resolve(ctx, line.ProductID)
			if err != nil {
				level := slog.LevelError
				if errors.Is(err, product.ErrProductNotFound) {
					level = slog.LevelWarn
				}
				a.log.Log(ctx, level, "dropping unresolvable cart line",
					"user_id", cart.UserID,
					"product_id", line.ProductID,
					"error", err,
				)
				return nil
			}
			resolved[i] = &domain.ResolvedLine{
				ProductID: p.Ref(),
				Product:   *p,
				Quantity:  line.Quantity,
				ItemTotal: p.Price * float64(line.Quantity),
			}
			return nil
		})
	}
	_ = g.Wait() // workers never fail; drops are logged above

	items := make([]domain.ResolvedLine, 0, len(resolved))
	for _, r := range resolved {
		if r != nil {
			items = append(items, *r)
		}
	}

	totals := domain.ResolveTotals(items, nil)
	return &domain.AggregatedCart{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Items:     items,
		ItemCount: totals.ItemCount,
		Subtotal:  totals.Subtotal,
		UpdatedAt: cart.UpdatedAt,
	}
}
