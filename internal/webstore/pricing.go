package webstore

// Pricing rules. Tax is a flat 10% of the item subtotal; shipping is a
// method lookup with a fallback rate for unrecognized carriers.

// taxRatePercent is applied to the subtotal with integer math (floor).
const taxRatePercent = 10

// Shipping methods and their flat rates in cents.
const (
	ShippingStandard = "standard"
	ShippingExpress  = "express"

	standardShippingCents = 1000
	expressShippingCents  = 2000
	defaultShippingCents  = 1500
)

// ShippingCents returns the flat shipping rate for a method.
func ShippingCents(method string) int64 {
	switch method {
	case ShippingStandard:
		return standardShippingCents
	case ShippingExpress:
		return expressShippingCents
	default:
		return defaultShippingCents
	}
}

// TaxCents returns the tax due on a subtotal.
func TaxCents(subtotalCents int64) int64 {
	return subtotalCents * taxRatePercent / 100
}

// Pricing is the cost breakdown of an order.
type Pricing struct {
	SubtotalCents int64
	TaxCents      int64
	ShippingCents int64
	TotalCents    int64
}

// PriceItems computes the full breakdown for a set of priced line items.
func PriceItems(items []*OrderItem, shippingMethod string) Pricing {
	var subtotal int64
	for _, it := range items {
		subtotal += it.LineTotalCents
	}
	p := Pricing{
		SubtotalCents: subtotal,
		TaxCents:      TaxCents(subtotal),
		ShippingCents: ShippingCents(shippingMethod),
	}
	p.TotalCents = p.SubtotalCents + p.TaxCents + p.ShippingCents
	return p
}
