package models

import (
	"strings"
	"time"

	apperrors "github.com/Luisfeliz3/sporty-urban-ecommerce/common/errors"
)

// CartLine is one (product, size, color) selection.
type CartLine struct {
	ProductID string `json:"product_id" bson:"product_id"`
	Quantity  int    `json:"quantity" bson:"quantity"`
	Size      string `json:"size" bson:"size"`
	Color     string `json:"color" bson:"color"`
}

// LineKey identifies a cart line. Two lines with the same key are the same
// selection and their quantities add up.
type LineKey struct {
	ProductID string
	Size      string
	Color     string
}

func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Size: l.Size, Color: l.Color}
}

// Validate rejects lines that can never be stored.
func (l CartLine) Validate() error {
	switch {
	case strings.TrimSpace(l.ProductID) == "":
		return apperrors.Validation("product_id is required")
	case strings.TrimSpace(l.Size) == "":
		return apperrors.Validation("size is required")
	case strings.TrimSpace(l.Color) == "":
		return apperrors.Validation("color is required")
	case l.Quantity <= 0:
		return apperrors.Validation("quantity must be greater than zero")
	}
	return nil
}

// Cart is the authoritative server-side cart of one account. It is created
// empty and only ever emptied, never deleted.
type Cart struct {
	AccountID string     `json:"user_id" bson:"_id"`
	Items     []CartLine `json:"items" bson:"items"`
	Version   int64      `json:"-" bson:"version"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

func NewCart(accountID string) *Cart {
	return &Cart{AccountID: accountID, Items: []CartLine{}}
}

func (c *Cart) indexOf(key LineKey) int {
	for i, l := range c.Items {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

// AddLine adds line's quantity to an existing line with the same key, or
// appends it.
func (c *Cart) AddLine(line CartLine) error {
	if err := line.Validate(); err != nil {
		return err
	}
	if i := c.indexOf(line.Key()); i >= 0 {
		c.Items[i].Quantity += line.Quantity
		return nil
	}
	c.Items = append(c.Items, line)
	return nil
}

// RemoveLine drops the matching line. Absent lines are not an error.
func (c *Cart) RemoveLine(productID, size, color string) {
	i := c.indexOf(LineKey{ProductID: productID, Size: size, Color: color})
	if i < 0 {
		return
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
}

// UpdateQuantity sets the quantity of a line. Zero removes it; setting a
// positive quantity on an absent key inserts the line.
func (c *Cart) UpdateQuantity(productID, size, color string, quantity int) error {
	if quantity < 0 {
		return apperrors.Validation("quantity cannot be negative")
	}
	if quantity == 0 {
		c.RemoveLine(productID, size, color)
		return nil
	}

	line := CartLine{ProductID: productID, Size: size, Color: color, Quantity: quantity}
	if err := line.Validate(); err != nil {
		return err
	}
	if i := c.indexOf(line.Key()); i >= 0 {
		c.Items[i].Quantity = quantity
		return nil
	}
	c.Items = append(c.Items, line)
	return nil
}

// Merge folds a client-held cart into this one: quantities of matching keys
// are summed and client-only lines are appended in client order. Every
// client line is validated before anything changes. Merging the same client
// cart twice counts it twice.
func (c *Cart) Merge(client []CartLine) error {
	for _, l := range client {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	for _, l := range client {
		_ = c.AddLine(l)
	}
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = []CartLine{}
}

// Quantity returns the quantity held for key, or zero.
func (c *Cart) Quantity(key LineKey) int {
	if i := c.indexOf(key); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = append([]CartLine(nil), c.Items...)
	if cp.Items == nil {
		cp.Items = []CartLine{}
	}
	return &cp
}

// CartItemView is a cart line enriched with the current catalog data for
// display.
type CartItemView struct {
	CartLine
	Name      string `json:"name"`
	Price     Money  `json:"price"`
	Image     string `json:"image"`
	Inventory int    `json:"inventory"`
}

type CartView struct {
	AccountID string         `json:"user_id"`
	Items     []CartItemView `json:"items"`
	ItemCount int            `json:"item_count"`
	Subtotal  Money          `json:"subtotal"`
	UpdatedAt time.Time      `json:"updated_at"`
}
