package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
)

type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	// SetStripeCustomerID stores customerID unless the account already has
	// one, and returns the id that ends up stored.
	SetStripeCustomerID(ctx context.Context, id, customerID string) (string, error)
	SetDefaultPaymentMethod(ctx context.Context, id, paymentMethodID string) error
}

// MongoAccountRepository works on the auth service's users collection.
type MongoAccountRepository struct {
	collection *mongo.Collection
}

func NewMongoAccountRepository(db *mongo.Database) *MongoAccountRepository {
	return &MongoAccountRepository{collection: db.Collection("users")}
}

func (r *MongoAccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	var acct models.Account
	if err := r.collection.FindOne(ctx, idFilter(id)).Decode(&acct); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
}

func (r *MongoAccountRepository) SetStripeCustomerID(ctx context.Context, id, customerID string) (string, error) {
	filter := idFilter(id)
	filter["$or"] = bson.A{
		bson.M{"stripeCustomerId": bson.M{"$exists": false}},
		bson.M{"stripeCustomerId": ""},
		bson.M{"stripeCustomerId": nil},
	}
	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"stripeCustomerId": customerID}})
	if err != nil {
		return "", fmt.Errorf("failed to store customer id: %w", err)
	}
	if res.MatchedCount == 1 {
		return customerID, nil
	}

	acct, err := r.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return acct.StripeCustomerID, nil
}

func (r *MongoAccountRepository) SetDefaultPaymentMethod(ctx context.Context, id, paymentMethodID string) error {
	res, err := r.collection.UpdateOne(ctx, idFilter(id), bson.M{"$set": bson.M{"defaultPaymentMethodId": paymentMethodID}})
	if err != nil {
		return fmt.Errorf("failed to store default payment method: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
