package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/cartsync/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore reads the catalog's products collection. Field "id" holds the
// domain code, "_id" the ObjectID.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection("products")}
}

func (s *MongoStore) FindByCode(ctx context.Context, code string) (*domain.Product, error) {
	return s.findOne(ctx, bson.M{"id": code})
}

func (s *MongoStore) FindByStorageID(ctx context.Context, id string) (*domain.Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrProductNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*domain.Product, error) {
	var p domain.Product
	err := s.collection.FindOne(ctx, filter).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// Insert stores a product and returns it with its generated storage id.
// Catalog management lives elsewhere; this exists for seeding and tests.
func (s *MongoStore) Insert(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.Price < 0 || p.Inventory < 0 {
		return nil, fmt.Errorf("invalid product %q: negative price or inventory", p.Code)
	}
	if p.Category != "" && !p.Category.Valid() {
		return nil, fmt.Errorf("invalid product %q: unknown category %q", p.Code, p.Category)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	oid := primitive.NewObjectID()
	doc := bson.M{
		"_id":         oid,
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"inventory":   p.Inventory,
		"category":    p.Category,
		"image_url":   p.ImageURL,
		"is_active":   p.IsActive,
		"created_at":  p.CreatedAt,
	}
	if p.Code != "" {
		doc["id"] = p.Code
	}
	if p.AddedBy != "" {
		doc["added_by"] = p.AddedBy
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}

	p.ID = oid.Hex()
	return &p, nil
}

// SetActive flips the active flag; deactivated products stop resolving.
func (s *MongoStore) SetActive(ctx context.Context, storageID string, active bool) error {
	oid, err := primitive.ObjectIDFromHex(storageID)
	if err != nil {
		return ErrProductNotFound
	}
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"is_active": active}})
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "id", Value: 1}},
			// products created before domain codes existed have no "id"
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	}

	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create product indexes: %w", err)
	}
	return nil
}
