package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
)

// CartRepository stores one cart document per account.
type CartRepository interface {
	Get(ctx context.Context, accountID string) (*models.Cart, error)
	// Save writes the cart if nobody else changed it since it was read.
	// It returns ErrVersionConflict otherwise and bumps cart.Version on
	// success.
	Save(ctx context.Context, cart *models.Cart) error
}

type MongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) *MongoCartRepository {
	return &MongoCartRepository{collection: db.Collection("carts")}
}

func (r *MongoCartRepository) Get(ctx context.Context, accountID string) (*models.Cart, error) {
	var cart models.Cart
	err := r.collection.FindOne(ctx, bson.M{"_id": accountID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []models.CartLine{}
	}
	return &cart, nil
}

func (r *MongoCartRepository) Save(ctx context.Context, cart *models.Cart) error {
	now := time.Now().UTC()
	items := cart.Items
	if items == nil {
		items = []models.CartLine{}
	}

	if cart.Version == 0 {
		doc := models.Cart{AccountID: cart.AccountID, Items: items, Version: 1, UpdatedAt: now}
		if _, err := r.collection.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to create cart: %w", err)
		}
		cart.Version, cart.UpdatedAt = 1, now
		return nil
	}

	filter := bson.M{"_id": cart.AccountID, "version": cart.Version}
	update := bson.M{
		"$set": bson.M{"items": items, "updated_at": now},
		"$inc": bson.M{"version": 1},
	}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	cart.Version++
	cart.UpdatedAt = now
	return nil
}
