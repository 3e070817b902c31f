package models

// Account is the part of the user document the payment service touches.
// The auth service owns the collection; only the Stripe customer id (once)
// and the default payment method are written here.
type Account struct {
	ID                     string `bson:"_id"`
	Name                   string `bson:"name"`
	Email                  string `bson:"email"`
	StripeCustomerID       string `bson:"stripeCustomerId,omitempty"`
	DefaultPaymentMethodID string `bson:"defaultPaymentMethodId,omitempty"`
}

// SavedCard is the display form of a card saved with the provider.
type SavedCard struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

// PaymentMethod is a reusable payment method saved on the account's
// provider customer.
type PaymentMethod struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Card      SavedCard `json:"card"`
	IsDefault bool      `json:"is_default"`
}
