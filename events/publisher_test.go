package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
)

type fakeSNS struct {
	topic string
	body  []byte
	err   error
}

func (f *fakeSNS) Publish(_ context.Context, topicArn string, message []byte) error {
	f.topic, f.body = topicArn, message
	return f.err
}

func TestPublish_SendsJSON(t *testing.T) {
	sns := &fakeSNS{}
	p := NewSNSPublisher(sns, "arn:aws:sns:us-east-1:000000000000:order-events", zap.NewNop())

	ev := models.OrderEvent{
		Type:      models.EventOrderPaid,
		OrderID:   "order-1",
		UserID:    "acct-1",
		Amount:    7558,
		Currency:  "usd",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), ev))

	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:order-events", sns.topic)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(sns.body, &got))
	assert.Equal(t, "order.paid", got["type"])
	assert.Equal(t, "order-1", got["order_id"])
	assert.Equal(t, float64(7558), got["amount"])
}

func TestPublish_NoTopicIsNoop(t *testing.T) {
	sns := &fakeSNS{}
	p := NewSNSPublisher(sns, "", zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), models.OrderEvent{Type: models.EventOrderCreated}))
	assert.Nil(t, sns.body)
}

func TestPublish_Error(t *testing.T) {
	p := NewSNSPublisher(&fakeSNS{err: errors.New("throttled")}, "arn", zap.NewNop())

	err := p.Publish(context.Background(), models.OrderEvent{Type: models.EventPaymentFailed})
	assert.ErrorContains(t, err, "payment.failed")
}
