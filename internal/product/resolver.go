package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/cartsync/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrProductNotFound = errors.New("product not found")

// Lookup is the product storage collaborator. Both methods return
// ErrProductNotFound for a miss.
type Lookup interface {
	FindByCode(ctx context.Context, code string) (*domain.Product, error)
	FindByStorageID(ctx context.Context, id string) (*domain.Product, error)
}

// Strategy is one way of interpreting an identifier.
type Strategy struct {
	Name    string
	Applies func(identifier string) bool
	Find    func(ctx context.Context, identifier string) (*domain.Product, error)
}

// Resolver tries its strategies in order. Stored carts hold both code and
// storage-id references and are never migrated, so both stay supported.
type Resolver struct {
	strategies []Strategy
}

func NewResolver(lookup Lookup) *Resolver {
	return NewResolverWithStrategies(
		Strategy{
			Name: "code",
			Find: lookup.FindByCode,
		},
		Strategy{
			Name:    "storage_id",
			Applies: primitive.IsValidObjectID,
			Find:    lookup.FindByStorageID,
		},
	)
}

func NewResolverWithStrategies(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Resolve returns ErrProductNotFound when no strategy yields an active product.
// Any other error comes from the storage collaborator.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*domain.Product, error) {
	if identifier == "" {
		return nil, ErrProductNotFound
	}

	for _, s := range r.strategies {
		if s.Applies != nil && !s.Applies(identifier) {
			continue
		}

		p, err := s.Find(ctx, identifier)
		if errors.Is(err, ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %q by %s: %w", identifier, s.Name, err)
		}
		if p == nil || !p.IsActive {
			continue
		}
		return p, nil
	}

	return nil, ErrProductNotFound
}
