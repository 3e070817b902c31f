package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
)

// ProductRepository is the read side of the catalog.
type ProductRepository interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
}

// InventoryStore adjusts stock counts. DecrementIfSufficient must be a single
// atomic conditional update; it returns ErrInsufficientStock when fewer than
// qty units are left and ErrNotFound when the product does not exist.
type InventoryStore interface {
	DecrementIfSufficient(ctx context.Context, productID string, qty int) error
	Increment(ctx context.Context, productID string, qty int) error
	Available(ctx context.Context, productID string) (int, error)
}

// MongoProductRepository reads products and adjusts their inventory field in
// the catalog's products collection.
type MongoProductRepository struct {
	collection *mongo.Collection
}

func NewMongoProductRepository(db *mongo.Database) *MongoProductRepository {
	return &MongoProductRepository{collection: db.Collection("products")}
}

func (r *MongoProductRepository) FindByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := r.collection.FindOne(ctx, idFilter(id)).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return &product, nil
}

func (r *MongoProductRepository) DecrementIfSufficient(ctx context.Context, productID string, qty int) error {
	filter := idFilter(productID)
	filter["inventory"] = bson.M{"$gte": qty}

	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"inventory": -qty}})
	if err != nil {
		return fmt.Errorf("failed to decrement inventory of %s: %w", productID, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	// Nothing matched: either the product is gone or stock is short.
	n, err := r.collection.CountDocuments(ctx, idFilter(productID), options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("failed to check product %s: %w", productID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrInsufficientStock
}

func (r *MongoProductRepository) Increment(ctx context.Context, productID string, qty int) error {
	res, err := r.collection.UpdateOne(ctx, idFilter(productID), bson.M{"$inc": bson.M{"inventory": qty}})
	if err != nil {
		return fmt.Errorf("failed to increment inventory of %s: %w", productID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoProductRepository) Available(ctx context.Context, productID string) (int, error) {
	var doc struct {
		Inventory int `bson:"inventory"`
	}
	opts := options.FindOne().SetProjection(bson.M{"inventory": 1})
	if err := r.collection.FindOne(ctx, idFilter(productID), opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to read inventory of %s: %w", productID, err)
	}
	return doc.Inventory, nil
}
