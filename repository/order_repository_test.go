package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestOrderFilter(t *testing.T) {
	oid := primitive.NewObjectID()

	assert.Equal(t, bson.M{"_id": oid, "is_paid": false}, orderFilter(oid.Hex(), "is_paid", false))
	assert.Equal(t, bson.M{"_id": "order-1", "is_delivered": false}, orderFilter("order-1", "is_delivered", false))
}
