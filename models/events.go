package models

import "time"

const (
	EventOrderCreated  = "order.created"
	EventOrderPaid     = "order.paid"
	EventPaymentFailed = "payment.failed"
)

// OrderEvent is published to the order events topic.
type OrderEvent struct {
	Type            string    `json:"type"`
	OrderID         string    `json:"order_id"`
	UserID          string    `json:"user_id"`
	Amount          int64     `json:"amount"`   // smallest currency unit
	Currency        string    `json:"currency"` // "usd"
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	Status          string    `json:"status,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
