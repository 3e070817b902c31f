package services

import (
	"github.com/shopspring/decimal"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
)

var (
	TaxRate               = decimal.RequireFromString("0.08")
	FreeShippingThreshold = models.MustMoney("50.00")
	FlatShippingFee       = models.MustMoney("10.00")
)

// Price derives the order breakdown from its lines. Amounts keep full
// precision; rounding to cents happens only when they are rendered.
func Price(items []models.OrderItem) models.Pricing {
	itemsPrice := models.Zero
	for _, it := range items {
		itemsPrice = itemsPrice.Add(it.LineTotal())
	}

	shipping := FlatShippingFee
	if itemsPrice.GreaterThan(FreeShippingThreshold) {
		shipping = models.Zero
	}
	tax := itemsPrice.MulRate(TaxRate)

	return models.Pricing{
		ItemsPrice:    itemsPrice,
		TaxPrice:      tax,
		ShippingPrice: shipping,
		TotalPrice:    itemsPrice.Add(tax).Add(shipping),
	}
}
