package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/auth"
	apperrors "github.com/Luisfeliz3/sporty-urban-ecommerce/common/errors"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/middleware"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/events"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
	awspkg "github.com/Luisfeliz3/sporty-urban-ecommerce/pkg/aws"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/repository"
)

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

type IntentResponse struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
}

type SetupIntentResponse struct {
	ClientSecret  string `json:"client_secret"`
	SetupIntentID string `json:"setup_intent_id"`
}

// PaymentService reconciles orders with the payment provider. Both the
// client confirmation and the webhook end in the same conditional write on
// is_paid=false, so whichever arrives first marks the order paid and the
// other becomes a no-op.
type PaymentService struct {
	orders    repository.OrderRepository
	accounts  repository.AccountRepository
	provider  PaymentProvider
	ledger    repository.PaymentLedger
	idem      repository.IdempotencyStore
	idemTTL   time.Duration
	publisher events.Publisher
	currency  string
	logger    *zap.Logger
	metrics   middleware.MetricsRecorder
}

func NewPaymentService(
	orders repository.OrderRepository,
	accounts repository.AccountRepository,
	provider PaymentProvider,
	ledger repository.PaymentLedger,
	idem repository.IdempotencyStore,
	idemTTL time.Duration,
	publisher events.Publisher,
	currency string,
	logger *zap.Logger,
	metrics middleware.MetricsRecorder,
) *PaymentService {
	return &PaymentService{
		orders:    orders,
		accounts:  accounts,
		provider:  provider,
		ledger:    ledger,
		idem:      idem,
		idemTTL:   idemTTL,
		publisher: publisher,
		currency:  currency,
		logger:    logger,
		metrics:   metrics,
	}
}

// CreateIntent opens a payment intent for the caller's unpaid order. Only the
// latest intent id is kept on the order.
func (s *PaymentService) CreateIntent(ctx context.Context, principal auth.Principal, orderID string, savePaymentMethod bool) (*IntentResponse, error) {
	if orderID == "" {
		return nil, apperrors.Validation("order_id is required")
	}
	log := reqLogger(ctx, s.logger).With(zap.String("order_id", orderID))

	order, err := s.ownedOrder(ctx, principal, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid {
		return nil, apperrors.AlreadyPaid(order.ID)
	}

	account, err := s.account(ctx, principal.AccountID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, account)
	if err != nil {
		return nil, err
	}

	intent, err := s.provider.CreateIntent(ctx, CreateIntentParams{
		Amount:            order.TotalPrice.Cents(),
		Currency:          s.currency,
		CustomerID:        customerID,
		OrderID:           order.ID,
		UserID:            order.UserID,
		Description:       fmt.Sprintf("Order %s", order.ID),
		SavePaymentMethod: savePaymentMethod,
		ShippingName:      account.Name,
		Shipping:          order.ShippingAddress,
	})
	if err != nil {
		log.Warn("Failed to create payment intent", zap.Error(err))
		return nil, providerError(err)
	}

	updated, err := s.orders.SetPaymentIntent(ctx, order.ID, intent.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to update order", err)
	}
	if !updated {
		return nil, apperrors.AlreadyPaid(order.ID)
	}

	if s.ledger != nil {
		err := s.ledger.RecordAttempt(ctx, &models.PaymentAttempt{
			OrderID:         order.ID,
			UserID:          order.UserID,
			Amount:          intent.Amount,
			Currency:        intent.Currency,
			Status:          models.AttemptCreated,
			StripePaymentID: intent.ID,
		})
		if err != nil {
			log.Warn("Failed to record payment attempt", zap.Error(err))
		}
	}

	log.Info("Payment intent created",
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", intent.Amount),
	)
	return &IntentResponse{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID}, nil
}

// CreateSetupIntent lets the caller save a card for later checkouts without
// paying for anything now.
func (s *PaymentService) CreateSetupIntent(ctx context.Context, principal auth.Principal) (*SetupIntentResponse, error) {
	account, err := s.account(ctx, principal.AccountID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, account)
	if err != nil {
		return nil, err
	}
	si, err := s.provider.CreateSetupIntent(ctx, customerID, account.ID)
	if err != nil {
		reqLogger(ctx, s.logger).Warn("Failed to create setup intent", zap.Error(err))
		return nil, providerError(err)
	}
	return &SetupIntentResponse{ClientSecret: si.ClientSecret, SetupIntentID: si.ID}, nil
}

// ListPaymentMethods returns the caller's saved cards. An account that never
// reached the provider has none.
func (s *PaymentService) ListPaymentMethods(ctx context.Context, principal auth.Principal) ([]models.PaymentMethod, error) {
	account, err := s.account(ctx, principal.AccountID)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return []models.PaymentMethod{}, nil
		}
		return nil, err
	}
	if account.StripeCustomerID == "" {
		return []models.PaymentMethod{}, nil
	}

	methods, err := s.provider.ListCards(ctx, account.StripeCustomerID)
	if err != nil {
		reqLogger(ctx, s.logger).Warn("Failed to list payment methods", zap.Error(err))
		return nil, providerError(err)
	}
	for i := range methods {
		methods[i].IsDefault = methods[i].ID == account.DefaultPaymentMethodID
	}
	return methods, nil
}

// SetDefaultPaymentMethod makes paymentMethodID the caller's default, both
// on the provider customer and on the account.
func (s *PaymentService) SetDefaultPaymentMethod(ctx context.Context, principal auth.Principal, paymentMethodID string) error {
	if paymentMethodID == "" {
		return apperrors.Validation("payment_method_id is required")
	}
	account, err := s.account(ctx, principal.AccountID)
	if err != nil {
		return err
	}
	if account.StripeCustomerID == "" {
		return apperrors.Validation("No payment customer found")
	}

	if err := s.provider.SetDefaultPaymentMethod(ctx, account.StripeCustomerID, paymentMethodID); err != nil {
		reqLogger(ctx, s.logger).Warn("Failed to set default payment method",
			zap.String("payment_method_id", paymentMethodID),
			zap.Error(err),
		)
		return providerError(err)
	}
	if err := s.accounts.SetDefaultPaymentMethod(ctx, account.ID, paymentMethodID); err != nil {
		return apperrors.Internal("Failed to save default payment method", err)
	}
	return nil
}

func (s *PaymentService) account(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("User not found")
		}
		return nil, apperrors.Internal("Failed to load user", err)
	}
	return account, nil
}

// ensureCustomer returns the account's provider customer, creating it on
// first use. If two requests race, the first stored id wins and is used by
// both.
func (s *PaymentService) ensureCustomer(ctx context.Context, account *models.Account) (string, error) {
	if account.StripeCustomerID != "" {
		return account.StripeCustomerID, nil
	}
	created, err := s.provider.CreateCustomer(ctx, account.Email, account.Name, account.ID)
	if err != nil {
		return "", providerError(err)
	}
	stored, err := s.accounts.SetStripeCustomerID(ctx, account.ID, created)
	if err != nil {
		return "", apperrors.Internal("Failed to save customer", err)
	}
	if stored != created {
		reqLogger(ctx, s.logger).Info("Customer already created by a concurrent request",
			zap.String("user_id", account.ID),
			zap.String("customer_id", stored),
		)
	}
	return stored, nil
}

// ConfirmFromClient checks the intent with the provider after the client
// reports a completed payment.
func (s *PaymentService) ConfirmFromClient(ctx context.Context, principal auth.Principal, orderID, intentID string) (*models.Order, error) {
	if orderID == "" || intentID == "" {
		return nil, apperrors.Validation("order_id and payment_intent_id are required")
	}
	log := reqLogger(ctx, s.logger).With(zap.String("order_id", orderID), zap.String("payment_intent_id", intentID))

	order, err := s.ownedOrder(ctx, principal, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid {
		return order, nil
	}

	intent, err := s.provider.RetrieveIntent(ctx, intentID)
	if err != nil {
		log.Warn("Failed to retrieve payment intent", zap.Error(err))
		return nil, providerError(err)
	}
	if intent.OrderID() != order.ID {
		log.Warn("Payment intent belongs to another order", zap.String("intent_order_id", intent.OrderID()))
		return nil, apperrors.Validation("Payment intent does not match this order")
	}

	if intent.Status != IntentSucceeded {
		if intent.Failed() {
			if _, err := s.orders.MarkPaymentFailed(ctx, order.ID); err != nil {
				log.Error("Failed to record failed payment", zap.Error(err))
			}
			recordCount(s.metrics, awspkg.MetricPaymentFailed, map[string]string{"Source": "client"})
		}
		return nil, apperrors.PaymentNotCompleted(intent.Status)
	}

	if _, err := s.markPaid(ctx, order.ID, order.UserID, intent); err != nil {
		return nil, err
	}
	s.recordOutcome(ctx, intent.ID, models.AttemptSucceeded, "", nil)

	paid, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch order", err)
	}
	return paid, nil
}

// HandleWebhook processes one provider delivery. Nothing in the payload is
// acted on before its signature has been verified.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.provider.ConstructEvent(payload, signature)
	if err != nil {
		recordCount(s.metrics, awspkg.MetricWebhookRejected, nil)
		if errors.Is(err, ErrInvalidSignature) {
			return apperrors.InvalidSignature(err)
		}
		reqLogger(ctx, s.logger).Error("Failed to parse verified webhook", zap.Error(err))
		return apperrors.Validation("Malformed webhook payload")
	}
	log := reqLogger(ctx, s.logger).With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	var claimed string
	if s.idem != nil && ev.ID != "" {
		key := repository.WebhookEventKey(ev.ID)
		ok, err := s.idem.Claim(ctx, key, "processing", s.idemTTL)
		switch {
		case err != nil:
			log.Warn("Webhook dedup unavailable, processing anyway", zap.Error(err))
		case !ok:
			log.Info("Skipping duplicate webhook event")
			return nil
		default:
			claimed = key
		}
	}

	if err := s.dispatch(ctx, log, ev); err != nil {
		if claimed != "" {
			if relErr := s.idem.Release(context.WithoutCancel(ctx), claimed); relErr != nil {
				log.Warn("Failed to release webhook event key", zap.Error(relErr))
			}
		}
		return err
	}
	return nil
}

func (s *PaymentService) dispatch(ctx context.Context, log *zap.Logger, ev *ProviderEvent) error {
	if ev.Intent == nil || (ev.Type != EventIntentSucceeded && ev.Type != EventIntentFailed) {
		log.Info("Unhandled webhook event type")
		return nil
	}
	intent := ev.Intent
	orderID := intent.OrderID()
	log = log.With(zap.String("payment_intent_id", intent.ID), zap.String("order_id", orderID))
	if orderID == "" {
		log.Warn("Payment intent has no order reference")
		return nil
	}

	switch ev.Type {
	case EventIntentSucceeded:
		order, err := s.orders.FindByID(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("Webhook references unknown order")
			return nil
		}
		if err != nil {
			return apperrors.Internal("Failed to fetch order", err)
		}
		if _, err := s.markPaid(ctx, order.ID, order.UserID, intent); err != nil {
			return err
		}
		s.recordOutcome(ctx, intent.ID, models.AttemptSucceeded, ev.ID, ev.Raw)

	case EventIntentFailed:
		log.Error("Payment failed",
			zap.String("status", intent.Status),
			zap.String("reason", intent.LastErrorMessage),
		)
		s.publish(ctx, models.OrderEvent{
			Type:            models.EventPaymentFailed,
			OrderID:         orderID,
			UserID:          intent.Metadata["user_id"],
			Amount:          intent.Amount,
			Currency:        intent.Currency,
			PaymentIntentID: intent.ID,
			Status:          intent.Status,
			Timestamp:       time.Now().UTC(),
		})
		recordCount(s.metrics, awspkg.MetricPaymentFailed, map[string]string{"Source": "webhook"})
		s.recordOutcome(ctx, intent.ID, models.AttemptFailed, ev.ID, ev.Raw)
	}
	return nil
}

// markPaid moves the order to PAID. It reports whether this call made the
// transition; only that caller announces it.
func (s *PaymentService) markPaid(ctx context.Context, orderID, userID string, intent *Intent) (bool, error) {
	now := time.Now().UTC()
	result := models.PaymentResult{
		ID:           intent.ID,
		Status:       intent.Status,
		UpdateTime:   now.Format(time.RFC3339),
		EmailAddress: intent.ReceiptEmail,
	}
	won, err := s.orders.MarkPaid(ctx, orderID, result, intent.PaymentMethodID, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, apperrors.NotFound("Order not found")
		}
		return false, apperrors.Internal("Failed to update order", err)
	}

	log := reqLogger(ctx, s.logger).With(zap.String("order_id", orderID), zap.String("payment_intent_id", intent.ID))
	if !won {
		log.Debug("Order already paid")
		return false, nil
	}

	log.Info("Order paid", zap.Int64("amount", intent.Amount))
	s.publish(ctx, models.OrderEvent{
		Type:            models.EventOrderPaid,
		OrderID:         orderID,
		UserID:          userID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		PaymentIntentID: intent.ID,
		Status:          string(models.PaymentPaid),
		Timestamp:       now,
	})
	recordCount(s.metrics, awspkg.MetricPaymentSucceeded, nil)
	return true, nil
}

func (s *PaymentService) ownedOrder(ctx context.Context, principal auth.Principal, orderID string) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("Order not found")
		}
		return nil, apperrors.Internal("Failed to fetch order", err)
	}
	if !order.OwnedBy(principal.AccountID) {
		return nil, apperrors.Forbidden("Not authorized to pay for this order")
	}
	return order, nil
}

func (s *PaymentService) recordOutcome(ctx context.Context, intentID, status, eventID string, payload []byte) {
	if s.ledger == nil {
		return
	}
	err := s.ledger.RecordOutcome(ctx, intentID, status, eventID, payload, time.Now().UTC())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		reqLogger(ctx, s.logger).Debug("No ledger row for payment intent", zap.String("payment_intent_id", intentID))
	case err != nil:
		reqLogger(ctx, s.logger).Warn("Failed to record payment outcome", zap.String("payment_intent_id", intentID), zap.Error(err))
	}
}

func (s *PaymentService) publish(ctx context.Context, ev models.OrderEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		reqLogger(ctx, s.logger).Warn("Failed to publish payment event",
			zap.String("type", ev.Type),
			zap.String("order_id", ev.OrderID),
			zap.Error(err),
		)
	}
}

// providerError turns a payment provider failure into the error the client
// sees. Requests the provider refused keep their status class; everything
// else is reported as the provider being unavailable.
func providerError(err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		e := apperrors.New(http.StatusBadRequest, apperrors.KindValidation, "Payment could not be completed", err)
		if pe.StatusCode == http.StatusNotFound {
			e = apperrors.New(http.StatusNotFound, apperrors.KindNotFound, "Payment resource not found", err)
		}
		if pe.Code != "" {
			e.Details = map[string]interface{}{"provider_code": pe.Code}
		}
		return e
	}
	return apperrors.ProviderUnavailable(err)
}
