package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
)

type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Size      string `json:"size" validate:"required"`
	Color     string `json:"color" validate:"required"`
}

type UpdateItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  *int   `json:"quantity" validate:"required,gte=0"`
	Size      string `json:"size" validate:"required"`
	Color     string `json:"color" validate:"required"`
}

type RemoveItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Size      string `json:"size" validate:"required"`
	Color     string `json:"color" validate:"required"`
}

// SyncCartRequest carries the cart a client kept while signed out.
type SyncCartRequest struct {
	Items []models.CartLine `json:"items"`
}

type CartController struct {
	carts     CartServiceAPI
	validator *RequestValidator
}

func NewCartController(carts CartServiceAPI, validator *RequestValidator) *CartController {
	return &CartController{carts: carts, validator: validator}
}

// GetCart returns the caller's cart with current product details
func (cc *CartController) GetCart(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	cart, err := cc.carts.GetCart(c.Request.Context(), p.AccountID)
	if err != nil {
		fail(c, err)
		return
	}
	cc.respondView(c, cart, "")
}

func (cc *CartController) AddItem(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req AddItemRequest
	if err := cc.validator.BindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	cart, err := cc.carts.AddItem(c.Request.Context(), p.AccountID, models.CartLine{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Size:      req.Size,
		Color:     req.Color,
	})
	if err != nil {
		fail(c, err)
		return
	}
	cc.respondView(c, cart, "Item added to cart")
}

// UpdateItem sets a line's quantity; zero removes the line.
func (cc *CartController) UpdateItem(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req UpdateItemRequest
	if err := cc.validator.BindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	cart, err := cc.carts.UpdateItem(c.Request.Context(), p.AccountID, req.ProductID, req.Size, req.Color, *req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	cc.respondView(c, cart, "Cart updated")
}

func (cc *CartController) RemoveItem(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req RemoveItemRequest
	if err := cc.validator.BindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	cart, err := cc.carts.RemoveItem(c.Request.Context(), p.AccountID, req.ProductID, req.Size, req.Color)
	if err != nil {
		fail(c, err)
		return
	}
	cc.respondView(c, cart, "Item removed from cart")
}

func (cc *CartController) ClearCart(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	cart, err := cc.carts.ClearCart(c.Request.Context(), p.AccountID)
	if err != nil {
		fail(c, err)
		return
	}
	cc.respondView(c, cart, "Cart cleared")
}

// SyncCart merges the client's cart into the server cart. Clients should
// send an Idempotency-Key so a retried sync is not counted twice.
func (cc *CartController) SyncCart(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req SyncCartRequest
	if err := cc.validator.BindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	cart, err := cc.carts.SyncCart(c.Request.Context(), p.AccountID, req.Items, c.GetHeader("Idempotency-Key"))
	if err != nil {
		fail(c, err)
		return
	}
	cc.respondView(c, cart, "Cart synced")
}

func (cc *CartController) respondView(c *gin.Context, cart *models.Cart, message string) {
	view, err := cc.carts.View(c.Request.Context(), cart)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, view, message)
}
