package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
)

// OrderRepository defines the interface for order data access. The Mark*
// and SetPaymentIntent methods are conditional updates: they report false
// when the order exists but was not in the expected state.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByUserID(ctx context.Context, userID string, page, limit int) ([]models.Order, int64, error)
	FindAll(ctx context.Context, page, limit int) ([]models.Order, int64, error)
	SetPaymentIntent(ctx context.Context, orderID, intentID string) (bool, error)
	MarkPaid(ctx context.Context, orderID string, result models.PaymentResult, paymentMethod string, paidAt time.Time) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderID string) (bool, error)
	MarkDelivered(ctx context.Context, orderID string, at time.Time) (bool, error)
}

type MongoOrderRepository struct {
	collection *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{collection: db.Collection("orders")}
}

// EnsureIndexes creates the indexes the list queries rely on.
func (r *MongoOrderRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "payment_intent_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}

func (r *MongoOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if _, err := r.collection.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *MongoOrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.collection.FindOne(ctx, idFilter(id)).Decode(&order); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// FindByUserID retrieves orders for a specific user with pagination
func (r *MongoOrderRepository) FindByUserID(ctx context.Context, userID string, page, limit int) ([]models.Order, int64, error) {
	return r.find(ctx, bson.M{"user_id": userID}, page, limit)
}

// FindAll retrieves all orders with pagination
func (r *MongoOrderRepository) FindAll(ctx context.Context, page, limit int) ([]models.Order, int64, error) {
	return r.find(ctx, bson.M{}, page, limit)
}

func (r *MongoOrderRepository) find(ctx context.Context, filter bson.M, page, limit int) ([]models.Order, int64, error) {
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, 0, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, total, nil
}

func (r *MongoOrderRepository) SetPaymentIntent(ctx context.Context, orderID, intentID string) (bool, error) {
	return r.conditionalSet(ctx, orderFilter(orderID, "is_paid", false), bson.M{
		"payment_intent_id": intentID,
		"payment_status":    models.PaymentIntentCreated,
	})
}

// MarkPaid flips is_paid from false to true. Exactly one caller observes true
// for a given order.
func (r *MongoOrderRepository) MarkPaid(ctx context.Context, orderID string, result models.PaymentResult, paymentMethod string, paidAt time.Time) (bool, error) {
	set := bson.M{
		"is_paid":        true,
		"paid_at":        paidAt,
		"payment_status": models.PaymentPaid,
		"payment_result": result,
	}
	if paymentMethod != "" {
		set["stripe_payment_method"] = paymentMethod
	}
	return r.conditionalSet(ctx, orderFilter(orderID, "is_paid", false), set)
}

func (r *MongoOrderRepository) MarkPaymentFailed(ctx context.Context, orderID string) (bool, error) {
	return r.conditionalSet(ctx, orderFilter(orderID, "is_paid", false), bson.M{
		"payment_status": models.PaymentFailed,
	})
}

func (r *MongoOrderRepository) MarkDelivered(ctx context.Context, orderID string, at time.Time) (bool, error) {
	return r.conditionalSet(ctx, orderFilter(orderID, "is_delivered", false), bson.M{
		"is_delivered": true,
		"delivered_at": at,
	})
}

// orderFilter matches one order by id, including orders written before ids
// were strings, plus a single field condition.
func orderFilter(orderID, field string, value interface{}) bson.M {
	filter := idFilter(orderID)
	filter[field] = value
	return filter
}

func (r *MongoOrderRepository) conditionalSet(ctx context.Context, filter, set bson.M) (bool, error) {
	set["updated_at"] = time.Now().UTC()
	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to update order: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": filter["_id"]}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check order: %w", err)
	}
	if n == 0 {
		return false, ErrNotFound
	}
	return false, nil
}
