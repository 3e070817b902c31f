package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
)

func setupTestDB(t *testing.T) *mongo.Database {
	if testing.Short() {
		t.Skip("skipping mongo container test in short mode")
	}
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	return client.Database("testdb")
}

func TestMongo_CartVersioning(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMongoCartRepository(db)
	ctx := context.Background()

	_, err := repo.Get(ctx, "acct-1")
	assert.ErrorIs(t, err, ErrNotFound)

	cart := models.NewCart("acct-1")
	require.NoError(t, cart.AddLine(models.CartLine{ProductID: "P1", Quantity: 2, Size: "M", Color: "Black"}))
	require.NoError(t, repo.Save(ctx, cart))
	assert.Equal(t, int64(1), cart.Version)

	stale, err := repo.Get(ctx, "acct-1")
	require.NoError(t, err)

	cart.Clear()
	require.NoError(t, repo.Save(ctx, cart))

	require.NoError(t, stale.AddLine(models.CartLine{ProductID: "P2", Quantity: 1, Size: "S", Color: "Red"}))
	assert.ErrorIs(t, repo.Save(ctx, stale), ErrVersionConflict)

	got, err := repo.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
	assert.Equal(t, int64(2), got.Version)
}

func TestMongo_ConcurrentReserveLastUnit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	oid := primitive.NewObjectID()
	_, err := db.Collection("products").InsertOne(ctx, bson.M{
		"_id": oid, "name": "Runner Tee", "price": 34.99, "inventory": 1,
	})
	require.NoError(t, err)

	repo := NewMongoProductRepository(db)
	var wins, short int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := repo.DecrementIfSufficient(ctx, oid.Hex(), 1); err {
			case nil:
				atomic.AddInt32(&wins, 1)
			case ErrInsufficientStock:
				atomic.AddInt32(&short, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(7), short)
	avail, err := repo.Available(ctx, oid.Hex())
	require.NoError(t, err)
	assert.Equal(t, 0, avail)

	p, err := repo.FindByID(ctx, oid.Hex())
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), p.ID)
	assert.True(t, p.Price.Equal(models.MustMoney("34.99")))
}

func TestMongo_OrderPaymentTransitions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMongoOrderRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))

	order := &models.Order{
		ID:            "order-1",
		UserID:        "acct-1",
		OrderItems:    []models.OrderItem{{ProductID: "P1", Name: "Tee", Price: models.MustMoney("34.99"), Quantity: 2}},
		PaymentStatus: models.PaymentPending,
		CreatedAt:     time.Now().UTC(),
	}
	order.TotalPrice = models.MustMoney("75.5784")
	require.NoError(t, repo.Create(ctx, order))

	ok, err := repo.SetPaymentIntent(ctx, "order-1", "pi_1")
	require.NoError(t, err)
	assert.True(t, ok)

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := repo.MarkPaid(ctx, "order-1", models.PaymentResult{ID: "pi_1", Status: "succeeded"}, "pm_1", time.Now().UTC())
			if err == nil && won {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners)

	ok, err = repo.MarkPaymentFailed(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, ok, "a paid order never becomes failed")

	got, err := repo.FindByID(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.True(t, got.TotalPrice.Equal(models.MustMoney("75.5784")))

	_, err = repo.MarkPaid(ctx, "missing", models.PaymentResult{}, "", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)

	orders, total, err := repo.FindByUserID(ctx, "acct-1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, orders, 1)
}

func TestMongo_StripeCustomerSetOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	oid := primitive.NewObjectID()
	_, err := db.Collection("users").InsertOne(ctx, bson.M{"_id": oid, "name": "Sam", "email": "sam@example.com"})
	require.NoError(t, err)

	repo := NewMongoAccountRepository(db)
	id, err := repo.SetStripeCustomerID(ctx, oid.Hex(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", id)

	id, err = repo.SetStripeCustomerID(ctx, oid.Hex(), "cus_2")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", id)
}

func TestMongo_DefaultPaymentMethod(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	oid := primitive.NewObjectID()
	_, err := db.Collection("users").InsertOne(ctx, bson.M{"_id": oid, "name": "Sam", "stripeCustomerId": "cus_1"})
	require.NoError(t, err)

	repo := NewMongoAccountRepository(db)
	require.NoError(t, repo.SetDefaultPaymentMethod(ctx, oid.Hex(), "pm_1"))
	require.NoError(t, repo.SetDefaultPaymentMethod(ctx, oid.Hex(), "pm_2"))

	acct, err := repo.FindByID(ctx, oid.Hex())
	require.NoError(t, err)
	assert.Equal(t, "pm_2", acct.DefaultPaymentMethodID)
	assert.Equal(t, "cus_1", acct.StripeCustomerID)

	err = repo.SetDefaultPaymentMethod(ctx, primitive.NewObjectID().Hex(), "pm_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongo_LegacyObjectIDOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	oid := primitive.NewObjectID()
	_, err := db.Collection("orders").InsertOne(ctx, bson.M{
		"_id": oid, "user_id": "acct-1", "is_paid": true, "is_delivered": false,
	})
	require.NoError(t, err)

	repo := NewMongoOrderRepository(db)
	got, err := repo.FindByID(ctx, oid.Hex())
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), got.ID)

	ok, err := repo.MarkDelivered(ctx, oid.Hex(), time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)
}
