package controllers

import (
	"context"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/auth"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/services"
)

type CartServiceAPI interface {
	GetCart(ctx context.Context, accountID string) (*models.Cart, error)
	AddItem(ctx context.Context, accountID string, line models.CartLine) (*models.Cart, error)
	UpdateItem(ctx context.Context, accountID, productID, size, color string, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, accountID, productID, size, color string) (*models.Cart, error)
	ClearCart(ctx context.Context, accountID string) (*models.Cart, error)
	SyncCart(ctx context.Context, accountID string, lines []models.CartLine, idemKey string) (*models.Cart, error)
	View(ctx context.Context, cart *models.Cart) (*models.CartView, error)
}

type OrderServiceAPI interface {
	CreateOrder(ctx context.Context, principal auth.Principal, req *services.CreateOrderRequest, idemKey string) (*models.Order, error)
	GetOrder(ctx context.Context, principal auth.Principal, orderID string) (*models.Order, error)
	ListMyOrders(ctx context.Context, principal auth.Principal, page, limit int) (*services.OrderResponse, error)
	ListOrders(ctx context.Context, principal auth.Principal, page, limit int) (*services.OrderResponse, error)
	MarkDelivered(ctx context.Context, principal auth.Principal, orderID string) (*models.Order, error)
}

type PaymentServiceAPI interface {
	CreateIntent(ctx context.Context, principal auth.Principal, orderID string, savePaymentMethod bool) (*services.IntentResponse, error)
	ConfirmFromClient(ctx context.Context, principal auth.Principal, orderID, intentID string) (*models.Order, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	CreateSetupIntent(ctx context.Context, principal auth.Principal) (*services.SetupIntentResponse, error)
	ListPaymentMethods(ctx context.Context, principal auth.Principal) ([]models.PaymentMethod, error)
	SetDefaultPaymentMethod(ctx context.Context, principal auth.Principal, paymentMethodID string) error
}
