package product

import (
	"context"
	"testing"

	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestStore(t *testing.T) *MongoStore {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	testcontainers.CleanupContainer(t, mongoContainer)
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := repository.ConnectMongoDB(ctx, repository.MongoConfig{URI: uri, Database: "testdb"})
	require.NoError(t, err)

	store := NewMongoStore(db)
	require.NoError(t, store.CreateIndexes(ctx))

	return store
}

func TestMongoStore_ResolveBothSchemes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	coded, err := store.Insert(ctx, domain.Product{
		Code: "P1", Name: "Desk", Price: 120, Inventory: 3,
		Category: domain.CategoryFurniture, IsActive: true,
	})
	require.NoError(t, err)

	legacy, err := store.Insert(ctx, domain.Product{
		Name: "Old book", Price: 8, Inventory: 10,
		Category: domain.CategoryBooks, IsActive: true,
	})
	require.NoError(t, err)

	r := NewResolver(store)

	p, err := r.Resolve(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, coded.ID, p.ID)
	assert.Equal(t, "P1", p.Ref())

	p, err = r.Resolve(ctx, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, "Old book", p.Name)
	assert.Equal(t, legacy.ID, p.Ref())

	// a coded product is also reachable by its storage id
	p, err = r.Resolve(ctx, coded.ID)
	require.NoError(t, err)
	assert.Equal(t, "P1", p.Code)

	_, err = r.Resolve(ctx, "P404")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestMongoStore_DeactivatedStopsResolving(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p, err := store.Insert(ctx, domain.Product{Code: "P2", Name: "Shirt", Price: 15, IsActive: true})
	require.NoError(t, err)
	require.NoError(t, store.SetActive(ctx, p.ID, false))

	_, err = NewResolver(store).Resolve(ctx, "P2")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestMongoStore_InsertValidation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, domain.Product{Code: "BAD", Price: -1})
	assert.Error(t, err)

	_, err = store.Insert(ctx, domain.Product{Code: "BAD", Category: "Toys"})
	assert.Error(t, err)

	_, err = store.Insert(ctx, domain.Product{Code: "DUP", IsActive: true})
	require.NoError(t, err)
	_, err = store.Insert(ctx, domain.Product{Code: "DUP", IsActive: true})
	assert.Error(t, err, "domain codes are unique")
}
