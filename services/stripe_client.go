package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/customer"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/paymentmethod"
	"github.com/stripe/stripe-go/v80/setupintent"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
)

var (
	// ErrProviderUnavailable covers timeouts, transport failures, provider
	// 5xx responses and an open circuit.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
)

// ProviderError is a request the provider understood and refused.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider rejected request (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// Intent is the provider-neutral view of a payment intent.
type Intent struct {
	ID               string
	ClientSecret     string
	Status           string
	Amount           int64
	Currency         string
	Metadata         map[string]string
	PaymentMethodID  string
	ReceiptEmail     string
	LastErrorMessage string
}

// OrderID reads the order reference from the intent metadata. Intents
// created before the snake_case keys carry it as orderId.
func (i *Intent) OrderID() string {
	if v := i.Metadata["order_id"]; v != "" {
		return v
	}
	return i.Metadata["orderId"]
}

const (
	IntentSucceeded             = "succeeded"
	IntentCanceled              = "canceled"
	IntentRequiresPaymentMethod = "requires_payment_method"
)

// Failed reports whether the provider gave up on this attempt.
func (i *Intent) Failed() bool {
	return i.Status == IntentCanceled ||
		(i.Status == IntentRequiresPaymentMethod && i.LastErrorMessage != "")
}

// ProviderEvent is a verified webhook delivery. Intent is set for
// payment_intent.* events.
type ProviderEvent struct {
	ID     string
	Type   string
	Intent *Intent
	Raw    []byte
}

type CreateIntentParams struct {
	Amount            int64
	Currency          string
	CustomerID        string
	OrderID           string
	UserID            string
	Description       string
	SavePaymentMethod bool
	ShippingName      string
	Shipping          models.ShippingAddress
}

// SetupIntent lets the client save a card without paying.
type SetupIntent struct {
	ID           string
	ClientSecret string
}

// PaymentProvider is the external payment processor.
type PaymentProvider interface {
	CreateCustomer(ctx context.Context, email, name, accountID string) (string, error)
	CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	ConstructEvent(payload []byte, sigHeader string) (*ProviderEvent, error)
	CreateSetupIntent(ctx context.Context, customerID, accountID string) (*SetupIntent, error)
	ListCards(ctx context.Context, customerID string) ([]models.PaymentMethod, error)
	// SetDefaultPaymentMethod attaches the method to the customer and makes
	// it the customer's default.
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
}

// StripeService talks to Stripe. Every call runs under a timeout and a
// circuit breaker shared by all calls.
type StripeService struct {
	webhookKey string
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker[any]
	logger     *zap.Logger
}

func NewStripeService(secretKey, webhookKey string, timeout time.Duration, logger *zap.Logger) *StripeService {
	stripe.Key = secretKey
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &StripeService{webhookKey: webhookKey, timeout: timeout, logger: logger}
	s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// A declined card or bad request says nothing about provider health.
			var pe *ProviderError
			return err == nil || errors.As(err, &pe)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

func (s *StripeService) CreateCustomer(ctx context.Context, email, name, accountID string) (string, error) {
	res, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		params := &stripe.CustomerParams{
			Email: stripe.String(email),
			Name:  stripe.String(name),
		}
		params.Context = ctx
		params.AddMetadata("user_id", accountID)
		return customer.New(params)
	})
	if err != nil {
		return "", err
	}
	return res.(*stripe.Customer).ID, nil
}

func (s *StripeService) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	res, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		params := &stripe.PaymentIntentParams{
			Amount:   stripe.Int64(p.Amount),
			Currency: stripe.String(p.Currency),
			AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled: stripe.Bool(true),
			},
			Description: stripe.String(p.Description),
			Shipping: &stripe.ShippingDetailsParams{
				Name: stripe.String(p.ShippingName),
				Address: &stripe.AddressParams{
					Line1:      stripe.String(p.Shipping.Street),
					City:       stripe.String(p.Shipping.City),
					State:      stripe.String(p.Shipping.State),
					PostalCode: stripe.String(p.Shipping.ZipCode),
					Country:    stripe.String(p.Shipping.Country),
				},
			},
		}
		if p.CustomerID != "" {
			params.Customer = stripe.String(p.CustomerID)
		}
		if p.SavePaymentMethod {
			params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOnSession))
		}
		params.Context = ctx
		params.AddMetadata("order_id", p.OrderID)
		params.AddMetadata("user_id", p.UserID)
		return paymentintent.New(params)
	})
	if err != nil {
		return nil, err
	}
	return toIntent(res.(*stripe.PaymentIntent)), nil
}

func (s *StripeService) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	res, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		return paymentintent.Get(id, params)
	})
	if err != nil {
		return nil, err
	}
	return toIntent(res.(*stripe.PaymentIntent)), nil
}

func (s *StripeService) CreateSetupIntent(ctx context.Context, customerID, accountID string) (*SetupIntent, error) {
	res, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		params := &stripe.SetupIntentParams{
			Customer:           stripe.String(customerID),
			PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		}
		params.Context = ctx
		params.AddMetadata("user_id", accountID)
		params.AddMetadata("purpose", "save_payment_method")
		return setupintent.New(params)
	})
	if err != nil {
		return nil, err
	}
	si := res.(*stripe.SetupIntent)
	return &SetupIntent{ID: si.ID, ClientSecret: si.ClientSecret}, nil
}

func (s *StripeService) ListCards(ctx context.Context, customerID string) ([]models.PaymentMethod, error) {
	res, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		params := &stripe.PaymentMethodListParams{
			Customer: stripe.String(customerID),
			Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
		}
		params.Context = ctx
		methods := []models.PaymentMethod{}
		it := paymentmethod.List(params)
		for it.Next() {
			methods = append(methods, toPaymentMethod(it.PaymentMethod()))
		}
		return methods, it.Err()
	})
	if err != nil {
		return nil, err
	}
	return res.([]models.PaymentMethod), nil
}

func (s *StripeService) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	_, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
		attach.Context = ctx
		if _, err := paymentmethod.Attach(paymentMethodID, attach); err != nil {
			return nil, err
		}
		update := &stripe.CustomerParams{
			InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
				DefaultPaymentMethod: stripe.String(paymentMethodID),
			},
		}
		update.Context = ctx
		return customer.Update(customerID, update)
	})
	return err
}

// ConstructEvent verifies the Stripe-Signature header against the raw body
// before anything in the payload is trusted.
func (s *StripeService) ConstructEvent(payload []byte, sigHeader string) (*ProviderEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.webhookKey,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return parseEvent(event, payload)
}

func parseEvent(event stripe.Event, payload []byte) (*ProviderEvent, error) {
	ev := &ProviderEvent{ID: event.ID, Type: string(event.Type), Raw: payload}
	if event.Data == nil {
		return ev, nil
	}
	if event.Data.Object["object"] == "payment_intent" {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment intent: %w", err)
		}
		ev.Intent = toIntent(&pi)
	}
	return ev, nil
}

func (s *StripeService) execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.breaker.Execute(func() (any, error) {
		out, err := fn(ctx)
		if err != nil {
			return nil, classifyStripeError(ctx, err)
		}
		return out, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, err
	}
	return res, nil
}

func classifyStripeError(ctx context.Context, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 &&
		se.HTTPStatusCode != http.StatusTooManyRequests {
		return &ProviderError{StatusCode: se.HTTPStatusCode, Code: string(se.Code), Message: se.Msg}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func toPaymentMethod(pm *stripe.PaymentMethod) models.PaymentMethod {
	out := models.PaymentMethod{ID: pm.ID, Type: string(pm.Type)}
	if pm.Card != nil {
		out.Card = models.SavedCard{
			Brand:    string(pm.Card.Brand),
			Last4:    pm.Card.Last4,
			ExpMonth: pm.Card.ExpMonth,
			ExpYear:  pm.Card.ExpYear,
		}
	}
	return out
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	in := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
		ReceiptEmail: pi.ReceiptEmail,
	}
	if pi.PaymentMethod != nil {
		in.PaymentMethodID = pi.PaymentMethod.ID
	}
	if pi.LastPaymentError != nil {
		in.LastErrorMessage = pi.LastPaymentError.Msg
	}
	if in.Metadata == nil {
		in.Metadata = map[string]string{}
	}
	return in
}
