package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/services"
)

type OrderController struct {
	orderService OrderServiceAPI
	validator    *RequestValidator
}

func NewOrderController(orderService OrderServiceAPI, validator *RequestValidator) *OrderController {
	return &OrderController{
		orderService: orderService,
		validator:    validator,
	}
}

// CreateOrder handles order creation requests
func (oc *OrderController) CreateOrder(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req services.CreateOrderRequest
	if err := oc.validator.BindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	order, err := oc.orderService.CreateOrder(c.Request.Context(), p, &req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, order, "Order created successfully")
}

// GetMyOrders returns paginated orders for the authenticated user
func (oc *OrderController) GetMyOrders(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(c)

	result, err := oc.orderService.ListMyOrders(c.Request.Context(), p, page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, result, "")
}

// GetAllOrders returns paginated orders for all users (admin only)
func (oc *OrderController) GetAllOrders(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(c)

	result, err := oc.orderService.ListOrders(c.Request.Context(), p, page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, result, "")
}

// GetOrderByID returns one order to its owner or an admin
func (oc *OrderController) GetOrderByID(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	order, err := oc.orderService.GetOrder(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, order, "")
}

func (oc *OrderController) MarkDelivered(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	order, err := oc.orderService.MarkDelivered(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, order, "Order marked as delivered")
}
