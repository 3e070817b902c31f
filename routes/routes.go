package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/controllers"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/middleware"
)

// RegisterRoutes mounts the cart, order and payment APIs. authMiddleware
// guards everything except the provider webhook, which authenticates by
// signature. rateLimit throttles the shopper-facing routes only; provider
// retries must always reach the webhook.
func RegisterRoutes(
	r *gin.Engine,
	rateLimit gin.HandlerFunc,
	authMiddleware gin.HandlerFunc,
	cartController *controllers.CartController,
	orderController *controllers.OrderController,
	paymentController *controllers.PaymentController,
) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	api := r.Group("/api")

	cartRoutes := api.Group("/cart", rateLimit, authMiddleware)
	{
		cartRoutes.GET("", cartController.GetCart)
		cartRoutes.POST("", cartController.AddItem)
		cartRoutes.PUT("", cartController.UpdateItem)
		cartRoutes.DELETE("", cartController.RemoveItem)
		cartRoutes.DELETE("/clear", cartController.ClearCart)
		cartRoutes.POST("/sync", cartController.SyncCart)
	}

	orderRoutes := api.Group("/orders", rateLimit, authMiddleware)
	{
		orderRoutes.POST("", orderController.CreateOrder)
		orderRoutes.GET("/myorders", orderController.GetMyOrders)
		orderRoutes.GET("/:id", orderController.GetOrderByID)

		// Admin only
		orderRoutes.GET("", middleware.RequireAdmin(), orderController.GetAllOrders)
		orderRoutes.PUT("/:id/deliver", middleware.RequireAdmin(), orderController.MarkDelivered)
	}

	stripeRoutes := api.Group("/stripe")
	{
		stripeRoutes.POST("/webhook", paymentController.StripeWebhook)

		shopper := stripeRoutes.Group("", rateLimit, authMiddleware)
		shopper.POST("/create-payment-intent", paymentController.CreatePaymentIntent)
		shopper.POST("/confirm-payment", paymentController.ConfirmPayment)
		shopper.POST("/create-setup-intent", paymentController.CreateSetupIntent)
		shopper.GET("/payment-methods", paymentController.ListPaymentMethods)
		shopper.POST("/set-default-payment-method", paymentController.SetDefaultPaymentMethod)
	}
}
