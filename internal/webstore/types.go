package webstore

import (
	"errors"
	"time"
)

// All money is in integer cents. No floats.

// Product statuses.
const (
	ProductAvailable    = "available"
	ProductUnavailable  = "unavailable"
	ProductDiscontinued = "discontinued"
)

// Product is a storefront catalog entry. Available products are the only
// records in the system visible to anonymous callers.
type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Status      string    `json:"status"`
	ImageURI    string    `json:"image_uri,omitempty"`
	MinOrderQty int       `json:"min_order_qty"`
	MaxOrderQty int       `json:"max_order_qty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductUpdate applies optional field changes; nil leaves a field unchanged.
type ProductUpdate struct {
	Name        *string
	Description *string
	PriceCents  *int64
	Status      *string
	ImageURI    *string
	MinOrderQty *int
	MaxOrderQty *int
}

// Inventory tracks stock per product. Checkout moves quantity from
// available to reserved atomically.
type Inventory struct {
	ProductID string    `json:"product_id"`
	Available int       `json:"available"`
	Reserved  int       `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cart is the one open cart of an actor.
type Cart struct {
	ID        string      `json:"id"`
	ActorID   string      `json:"actor_id"`
	Items     []*CartItem `json:"items"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type CartItem struct {
	ID        string `json:"id"`
	CartID    string `json:"cart_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Order statuses.
const (
	OrderPending   = "pending"
	OrderPaid      = "paid"
	OrderShipped   = "shipped"
	OrderCancelled = "cancelled"
)

// Order is a priced, numbered purchase. Item rows snapshot the product
// name and unit price at checkout time.
type Order struct {
	ID              string       `json:"id"`
	OrderNumber     string       `json:"order_number"`
	ActorID         string       `json:"actor_id"`
	Status          string       `json:"status"`
	ShippingMethod  string       `json:"shipping_method"`
	ShippingAddress string       `json:"shipping_address,omitempty"`
	SubtotalCents   int64        `json:"subtotal_cents"`
	TaxCents        int64        `json:"tax_cents"`
	ShippingCents   int64        `json:"shipping_cents"`
	TotalCents      int64        `json:"total_cents"`
	Items           []*OrderItem `json:"items,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type OrderItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku"`
	ProductName    string `json:"product_name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// Invoice statuses.
const (
	InvoiceIssued = "issued"
	InvoicePaid   = "paid"
	InvoiceVoid   = "void"
)

// Invoice is issued at checkout, numbered in lockstep with its order
// (WS-123456 pairs with INV-123456).
type Invoice struct {
	ID            string    `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	OrderID       string    `json:"order_id"`
	ActorID       string    `json:"actor_id"`
	TotalCents    int64     `json:"total_cents"`
	Status        string    `json:"status"`
	IssuedAt      time.Time `json:"issued_at"`
	DueAt         time.Time `json:"due_at"`
}

// APIKey statuses.
const (
	KeyActive  = "active"
	KeyRevoked = "revoked"
)

// APIKey grants an institutional buyer programmatic storefront access.
type APIKey struct {
	ID         string     `json:"id"`
	ActorID    string     `json:"actor_id"`
	Key        string     `json:"key"`
	Label      string     `json:"label,omitempty"`
	Status     string     `json:"status"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

var (
	ErrNotFound     = errors.New("webstore: not found")
	ErrInvalidInput = errors.New("webstore: invalid input")
	ErrConflict     = errors.New("webstore: conflict")
	ErrOutOfStock   = errors.New("webstore: insufficient inventory")
	ErrEmptyCart    = errors.New("webstore: cart is empty")
)
