package models

import (
	"strings"
	"time"
)

// PaymentStatus is the reconciler's view of an order.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "PENDING"
	PaymentIntentCreated PaymentStatus = "INTENT_CREATED"
	PaymentPaid          PaymentStatus = "PAID"
	PaymentFailed        PaymentStatus = "FAILED"
)

// OrderItem is a snapshot of a cart line at purchase time. It does not follow
// later catalog changes.
type OrderItem struct {
	ProductID string `json:"product_id" bson:"product_id"`
	Name      string `json:"name" bson:"name"`
	Price     Money  `json:"price" bson:"price"`
	Quantity  int    `json:"quantity" bson:"quantity"`
	Size      string `json:"size" bson:"size"`
	Color     string `json:"color" bson:"color"`
	Image     string `json:"image" bson:"image"`
}

func (i OrderItem) LineTotal() Money {
	return i.Price.MulQty(i.Quantity)
}

type ShippingAddress struct {
	Street  string `json:"street" bson:"street" validate:"required"`
	City    string `json:"city" bson:"city" validate:"required"`
	State   string `json:"state" bson:"state"`
	ZipCode string `json:"zip_code" bson:"zip_code" validate:"required"`
	Country string `json:"country" bson:"country" validate:"required"`
}

// IsComplete reports whether every required address field is non-blank.
func (a ShippingAddress) IsComplete() bool {
	for _, f := range []string{a.Street, a.City, a.ZipCode, a.Country} {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}

// PaymentResult is what the provider reported when the payment succeeded.
type PaymentResult struct {
	ID           string `json:"id" bson:"id"`
	Status       string `json:"status" bson:"status"`
	UpdateTime   string `json:"update_time" bson:"update_time"`
	EmailAddress string `json:"email_address" bson:"email_address"`
}

// Pricing is the price breakdown of an order. Total always equals
// Items + Tax + Shipping exactly.
type Pricing struct {
	ItemsPrice    Money `json:"items_price" bson:"items_price"`
	TaxPrice      Money `json:"tax_price" bson:"tax_price"`
	ShippingPrice Money `json:"shipping_price" bson:"shipping_price"`
	TotalPrice    Money `json:"total_price" bson:"total_price"`
}

// Matches compares two breakdowns at cent precision.
func (p Pricing) Matches(o Pricing) bool {
	return p.ItemsPrice.Rounded().Equal(o.ItemsPrice.Rounded()) &&
		p.TaxPrice.Rounded().Equal(o.TaxPrice.Rounded()) &&
		p.ShippingPrice.Rounded().Equal(o.ShippingPrice.Rounded()) &&
		p.TotalPrice.Rounded().Equal(o.TotalPrice.Rounded())
}

// Order is immutable after creation except for its payment and delivery
// fields. Only the payment reconciler writes IsPaid, PaidAt and the payment_*
// fields.
type Order struct {
	ID              string          `json:"_id" bson:"_id"`
	UserID          string          `json:"user_id" bson:"user_id"`
	OrderItems      []OrderItem     `json:"order_items" bson:"order_items"`
	ShippingAddress ShippingAddress `json:"shipping_address" bson:"shipping_address"`
	PaymentMethod   string          `json:"payment_method" bson:"payment_method"`

	Pricing `bson:",inline"`

	IsPaid              bool           `json:"is_paid" bson:"is_paid"`
	PaidAt              *time.Time     `json:"paid_at,omitempty" bson:"paid_at,omitempty"`
	PaymentStatus       PaymentStatus  `json:"payment_status" bson:"payment_status"`
	PaymentIntentID     string         `json:"payment_intent_id,omitempty" bson:"payment_intent_id,omitempty"`
	PaymentResult       *PaymentResult `json:"payment_result,omitempty" bson:"payment_result,omitempty"`
	StripePaymentMethod string         `json:"stripe_payment_method,omitempty" bson:"stripe_payment_method,omitempty"`

	IsDelivered bool       `json:"is_delivered" bson:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// OwnedBy reports whether accountID created the order.
func (o *Order) OwnedBy(accountID string) bool {
	return o.UserID == accountID
}

// StockRequest is the quantity of one product to reserve or release.
type StockRequest struct {
	ProductID string
	Quantity  int
}

// AggregateStock sums quantities per product; two sizes of one product draw
// from the same inventory count.
func AggregateStock(items []OrderItem) []StockRequest {
	idx := make(map[string]int, len(items))
	out := make([]StockRequest, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, StockRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
