package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/auth"
	apperrors "github.com/Luisfeliz3/sporty-urban-ecommerce/common/errors"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/middleware"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/events"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
	awspkg "github.com/Luisfeliz3/sporty-urban-ecommerce/pkg/aws"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/repository"
)

type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// CreateOrderRequest is the checkout payload. The price fields are what the
// client displayed; they are only compared against the server's numbers.
type CreateOrderRequest struct {
	OrderItems      []OrderItemRequest     `json:"order_items" validate:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shipping_address" validate:"required"`
	PaymentMethod   string                 `json:"payment_method" validate:"required"`
	ItemsPrice      *models.Money          `json:"items_price,omitempty"`
	TaxPrice        *models.Money          `json:"tax_price,omitempty"`
	ShippingPrice   *models.Money          `json:"shipping_price,omitempty"`
	TotalPrice      *models.Money          `json:"total_price,omitempty"`
}

type OrderResponse struct {
	Orders []models.Order `json:"orders"`
	Meta   MetaData       `json:"meta"`
}

type MetaData struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalOrders int64 `json:"total_orders"`
	TotalPages  int64 `json:"total_pages"`
	HasMore     bool  `json:"has_more"`
}

// CartClearer empties an account's server cart after checkout.
type CartClearer interface {
	ClearCart(ctx context.Context, accountID string) (*models.Cart, error)
}

// pendingOrderMarker holds an order idempotency key while the first request
// is still being processed. The marker lives for pendingOrderTTL only, so a
// request that dies before recording its order frees the key quickly.
const (
	pendingOrderMarker = "pending"
	pendingOrderTTL    = time.Minute
)

type OrderService struct {
	orders    repository.OrderRepository
	products  repository.ProductRepository
	guard     *InventoryGuard
	carts     CartClearer
	idem      repository.IdempotencyStore
	idemTTL   time.Duration
	publisher events.Publisher
	currency  string
	logger    *zap.Logger
	metrics   middleware.MetricsRecorder
}

func NewOrderService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	guard *InventoryGuard,
	carts CartClearer,
	idem repository.IdempotencyStore,
	idemTTL time.Duration,
	publisher events.Publisher,
	currency string,
	logger *zap.Logger,
	metrics middleware.MetricsRecorder,
) *OrderService {
	return &OrderService{
		orders:    orders,
		products:  products,
		guard:     guard,
		carts:     carts,
		idem:      idem,
		idemTTL:   idemTTL,
		publisher: publisher,
		currency:  currency,
		logger:    logger,
		metrics:   metrics,
	}
}

// CreateOrder turns a checkout request into a PENDING order. Stock is
// reserved before the order is written and put back if the write fails.
func (s *OrderService) CreateOrder(ctx context.Context, principal auth.Principal, req *CreateOrderRequest, idemKey string) (*models.Order, error) {
	if err := validateOrderRequest(req); err != nil {
		return nil, err
	}
	log := reqLogger(ctx, s.logger).With(zap.String("user_id", principal.AccountID))

	var claimed string
	if idemKey != "" && s.idem != nil {
		key := repository.OrderIdemKey(principal.AccountID, idemKey)
		existing, ok, err := s.claimOrderKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			log.Info("Replayed order request", zap.String("order_id", existing.ID))
			return existing, nil
		}
		if ok {
			claimed = key
		}
	}

	order, err := s.createOrder(ctx, log, principal, req)
	if err != nil {
		if claimed != "" {
			if relErr := s.idem.Release(context.WithoutCancel(ctx), claimed); relErr != nil {
				log.Warn("Failed to release order idempotency key", zap.Error(relErr))
			}
		}
		return nil, err
	}

	if claimed != "" {
		s.recordOrderKey(context.WithoutCancel(ctx), log, claimed, order.ID)
	}

	if s.carts != nil {
		if _, err := s.carts.ClearCart(ctx, principal.AccountID); err != nil {
			log.Warn("Failed to clear cart after checkout", zap.Error(err))
		}
	}

	s.publish(ctx, models.OrderEvent{
		Type:      models.EventOrderCreated,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Amount:    order.TotalPrice.Cents(),
		Currency:  s.currency,
		Status:    string(order.PaymentStatus),
		Timestamp: order.CreatedAt,
	})
	recordCount(s.metrics, awspkg.MetricOrdersCreated, nil)

	log.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("total", order.TotalPrice.Rounded().String()),
	)
	return order, nil
}

// claimOrderKey returns the order a previous request with the same key
// created, or claims the key for this request. ok is false when the
// idempotency store could not be used.
func (s *OrderService) claimOrderKey(ctx context.Context, key string) (*models.Order, bool, error) {
	claimed, err := s.idem.Claim(ctx, key, pendingOrderMarker, pendingOrderTTL)
	if err != nil {
		reqLogger(ctx, s.logger).Warn("Order idempotency unavailable", zap.Error(err))
		return nil, false, nil
	}
	if claimed {
		return nil, true, nil
	}

	orderID, err := s.idem.Get(ctx, key)
	if err != nil {
		return nil, false, apperrors.Internal("Failed to read idempotency key", err)
	}
	if orderID == "" || orderID == pendingOrderMarker {
		return nil, false, apperrors.Conflict("An order with this idempotency key is already being processed")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, false, apperrors.Internal("Failed to load order", err)
	}
	return order, false, nil
}

// recordOrderKey points the claimed key at the created order for the full
// idempotency window. If both attempts fail the pending marker expires on
// its own.
func (s *OrderService) recordOrderKey(ctx context.Context, log *zap.Logger, key, orderID string) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = s.idem.Set(ctx, key, orderID, s.idemTTL); err == nil {
			return
		}
	}
	log.Warn("Failed to store order idempotency key",
		zap.String("order_id", orderID),
		zap.Duration("pending_ttl", pendingOrderTTL),
		zap.Error(err),
	)
}

func (s *OrderService) createOrder(ctx context.Context, log *zap.Logger, principal auth.Principal, req *CreateOrderRequest) (*models.Order, error) {
	items, err := s.snapshotItems(ctx, req.OrderItems)
	if err != nil {
		return nil, err
	}

	if err := s.guard.Reserve(ctx, items); err != nil {
		return nil, err
	}

	pricing := Price(items)
	if client, ok := clientPricing(req, pricing); ok && !client.Matches(pricing) {
		log.Warn("Client pricing differs from server pricing, using server values",
			zap.String("client_total", client.TotalPrice.String()),
			zap.String("server_total", pricing.TotalPrice.Rounded().String()),
		)
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:              uuid.NewString(),
		UserID:          principal.AccountID,
		OrderItems:      items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Pricing:         pricing,
		PaymentStatus:   models.PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()
		if relErr := s.guard.Release(rbCtx, items); relErr != nil {
			log.Error("Failed to release inventory after order write failed", zap.Error(relErr))
		}
		return nil, apperrors.Internal("Failed to create order", err)
	}
	return order, nil
}

// snapshotItems copies the catalog name, price and image into each line so
// the order no longer follows catalog changes.
func (s *OrderService) snapshotItems(ctx context.Context, reqItems []OrderItemRequest) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(reqItems))
	for _, it := range reqItems {
		p, err := s.products.FindByID(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.ProductNotFound(it.ProductID)
			}
			return nil, apperrors.Internal("Failed to load product", err)
		}
		if !p.Active() {
			return nil, apperrors.ProductNotFound(it.ProductID)
		}
		items = append(items, models.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  it.Quantity,
			Size:      it.Size,
			Color:     it.Color,
			Image:     p.Images.Primary(),
		})
	}
	return items, nil
}

func validateOrderRequest(req *CreateOrderRequest) error {
	if req == nil || len(req.OrderItems) == 0 {
		return apperrors.Validation("No order items")
	}
	for _, it := range req.OrderItems {
		if it.ProductID == "" {
			return apperrors.Validation("product_id is required")
		}
		if it.Quantity <= 0 {
			return apperrors.Validation(fmt.Sprintf("invalid quantity for product %s", it.ProductID))
		}
	}
	if !req.ShippingAddress.IsComplete() {
		return apperrors.Validation("Shipping address is incomplete")
	}
	if req.PaymentMethod == "" {
		return apperrors.Validation("Payment method is required")
	}
	for _, m := range []*models.Money{req.ItemsPrice, req.TaxPrice, req.ShippingPrice, req.TotalPrice} {
		if m != nil && m.IsNegative() {
			return apperrors.Validation("Prices cannot be negative")
		}
	}
	return nil
}

// clientPricing builds the breakdown the client sent, filling the fields it
// left out from the server's values. ok is false when it sent none.
func clientPricing(req *CreateOrderRequest, server models.Pricing) (models.Pricing, bool) {
	out, sent := server, false
	for _, f := range []struct {
		src *models.Money
		dst *models.Money
	}{
		{req.ItemsPrice, &out.ItemsPrice},
		{req.TaxPrice, &out.TaxPrice},
		{req.ShippingPrice, &out.ShippingPrice},
		{req.TotalPrice, &out.TotalPrice},
	} {
		if f.src != nil {
			*f.dst = *f.src
			sent = true
		}
	}
	return out, sent
}

// GetOrder returns an order to its owner or to an admin.
func (s *OrderService) GetOrder(ctx context.Context, principal auth.Principal, orderID string) (*models.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(principal.AccountID) && !principal.IsAdmin {
		return nil, apperrors.Forbidden("Not authorized to view this order")
	}
	return order, nil
}

// ListMyOrders retrieves paginated orders for the caller
func (s *OrderService) ListMyOrders(ctx context.Context, principal auth.Principal, page, limit int) (*OrderResponse, error) {
	orders, total, err := s.orders.FindByUserID(ctx, principal.AccountID, page, limit)
	if err != nil {
		reqLogger(ctx, s.logger).Error("Failed to fetch orders", zap.String("user_id", principal.AccountID), zap.Error(err))
		return nil, apperrors.Internal("Failed to fetch orders", err)
	}
	return newOrderResponse(orders, total, page, limit), nil
}

// ListOrders retrieves paginated orders for all users (admin only)
func (s *OrderService) ListOrders(ctx context.Context, principal auth.Principal, page, limit int) (*OrderResponse, error) {
	if !principal.IsAdmin {
		return nil, apperrors.Forbidden("Admin access required")
	}
	reqLogger(ctx, s.logger).Info("Admin accessing all orders", zap.String("admin_id", principal.AccountID))

	orders, total, err := s.orders.FindAll(ctx, page, limit)
	if err != nil {
		reqLogger(ctx, s.logger).Error("Failed to fetch all orders", zap.Error(err))
		return nil, apperrors.Internal("Failed to fetch orders", err)
	}
	return newOrderResponse(orders, total, page, limit), nil
}

// MarkDelivered flags an order as delivered. Repeating it keeps the first
// delivery time.
func (s *OrderService) MarkDelivered(ctx context.Context, principal auth.Principal, orderID string) (*models.Order, error) {
	if !principal.IsAdmin {
		return nil, apperrors.Forbidden("Admin access required")
	}
	changed, err := s.orders.MarkDelivered(ctx, orderID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("Order not found")
		}
		return nil, apperrors.Internal("Failed to update order", err)
	}
	if changed {
		reqLogger(ctx, s.logger).Info("Order delivered", zap.String("order_id", orderID))
	}
	return s.findOrder(ctx, orderID)
}

func (s *OrderService) findOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("Order not found")
		}
		return nil, apperrors.Internal("Failed to fetch order", err)
	}
	return order, nil
}

func (s *OrderService) publish(ctx context.Context, ev models.OrderEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		reqLogger(ctx, s.logger).Warn("Failed to publish order event",
			zap.String("type", ev.Type),
			zap.String("order_id", ev.OrderID),
			zap.Error(err),
		)
	}
}

func newOrderResponse(orders []models.Order, total int64, page, limit int) *OrderResponse {
	return &OrderResponse{
		Orders: orders,
		Meta: MetaData{
			Page:        page,
			Limit:       limit,
			TotalOrders: total,
			TotalPages:  calculateTotalPages(total, limit),
			HasMore:     total > int64(page*limit),
		},
	}
}

func calculateTotalPages(total int64, limit int) int64 {
	if limit <= 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
