package webstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"biovault.org/internal/auth"
	"biovault.org/internal/authz"
	"biovault.org/internal/ids"
)

// Store describes persistence operations for the storefront. Checkout is
// a single transaction: order, items, invoice, inventory reservation and
// cart clearing commit together or not at all.
type Store interface {
	CreateProduct(ctx context.Context, p *Product) error
	FindProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, scope authz.Scope) ([]*Product, error)
	UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (*Product, error)

	Inventory(ctx context.Context, productID string) (*Inventory, error)
	SetInventory(ctx context.Context, productID string, available int) (*Inventory, error)

	FindCartByActor(ctx context.Context, actorID string) (*Cart, error)
	CreateCart(ctx context.Context, c *Cart) error
	UpsertCartItem(ctx context.Context, item *CartItem) error
	RemoveCartItem(ctx context.Context, cartID, productID string) error

	// Checkout commits the full purchase atomically. It returns
	// ErrOutOfStock when any line cannot be reserved and ErrConflict when
	// an order or invoice number collides.
	Checkout(ctx context.Context, ord *Order, inv *Invoice, cartID string) error

	FindOrder(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context, scope authz.Scope) ([]*Order, error)
	UpdateOrderStatus(ctx context.Context, id, status string) (*Order, error)

	FindInvoice(ctx context.Context, id string) (*Invoice, error)
	ListInvoices(ctx context.Context, scope authz.Scope) ([]*Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id, status string) (*Invoice, error)

	CreateAPIKey(ctx context.Context, k *APIKey) error
	FindAPIKey(ctx context.Context, id string) (*APIKey, error)
	LookupAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context, scope authz.Scope) ([]*APIKey, error)
	UpdateAPIKeyStatus(ctx context.Context, id, status string) (*APIKey, error)
	TouchAPIKey(ctx context.Context, id string, when time.Time) error
}

// numberAttempts bounds the retry loop when a generated order or invoice
// number collides with an existing row.
const numberAttempts = 3

// invoiceDue is how long after issue an invoice falls due.
const invoiceDue = 30 * 24 * time.Hour

// Service implements storefront operations: catalog, carts, atomic
// checkout with derived pricing, orders, invoices and API keys.
type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

func NewService(store Store, newID func() string) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if newID == nil {
		return nil, fmt.Errorf("%w: id generator is required", ErrInvalidInput)
	}
	return &Service{store: store, now: time.Now, newID: newID}, nil
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

func productFacts(p *Product) authz.Facts {
	return authz.Facts{Public: p.Status == ProductAvailable}
}

// Products lists the catalog. Anonymous callers see available products.
func (s *Service) Products(ctx context.Context, actor *auth.Actor) ([]*Product, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityProduct)
	if err != nil {
		return nil, err
	}
	return s.store.ListProducts(ctx, scope)
}

func (s *Service) Product(ctx context.Context, actor *auth.Actor, id string) (*Product, error) {
	p, err := s.store.FindProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityProduct, authz.OpGet, productFacts(p)); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateProductInput carries the catalog fields.
type CreateProductInput struct {
	SKU          string
	Name         string
	Description  string
	PriceCents   int64
	ImageURI     string
	MinOrderQty  int
	MaxOrderQty  int
	InitialStock int
}

func (s *Service) CreateProduct(ctx context.Context, actor *auth.Actor, in CreateProductInput) (*Product, error) {
	if err := authz.Instance(actor, authz.EntityProduct, authz.OpCreate, authz.Facts{}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.SKU) == "" {
		return nil, fmt.Errorf("%w: field sku: required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: field name: required", ErrInvalidInput)
	}
	if in.PriceCents <= 0 {
		return nil, fmt.Errorf("%w: field price_cents: must be positive", ErrInvalidInput)
	}
	minQty := in.MinOrderQty
	if minQty <= 0 {
		minQty = 1
	}
	if in.MaxOrderQty != 0 && in.MaxOrderQty < minQty {
		return nil, fmt.Errorf("%w: field max_order_qty: must not be below min_order_qty", ErrInvalidInput)
	}
	if in.InitialStock < 0 {
		return nil, fmt.Errorf("%w: field initial_stock: must not be negative", ErrInvalidInput)
	}
	now := s.now().UTC()
	p := &Product{
		ID:          s.newID(),
		SKU:         strings.ToUpper(strings.TrimSpace(in.SKU)),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		PriceCents:  in.PriceCents,
		Status:      ProductAvailable,
		ImageURI:    strings.TrimSpace(in.ImageURI),
		MinOrderQty: minQty,
		MaxOrderQty: in.MaxOrderQty,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	if _, err := s.store.SetInventory(ctx, p.ID, in.InitialStock); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, actor *auth.Actor, id string, upd ProductUpdate) (*Product, error) {
	if _, err := s.store.FindProduct(ctx, id); err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityProduct, authz.OpUpdate, authz.Facts{}); err != nil {
		return nil, err
	}
	if upd.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*upd.Status))
		switch status {
		case ProductAvailable, ProductUnavailable, ProductDiscontinued:
		default:
			return nil, fmt.Errorf("%w: field status: unsupported value %q", ErrInvalidInput, *upd.Status)
		}
		upd.Status = &status
	}
	if upd.PriceCents != nil && *upd.PriceCents <= 0 {
		return nil, fmt.Errorf("%w: field price_cents: must be positive", ErrInvalidInput)
	}
	return s.store.UpdateProduct(ctx, id, upd)
}

// ProductInventory reads stock levels. Back-office only.
func (s *Service) ProductInventory(ctx context.Context, actor *auth.Actor, productID string) (*Inventory, error) {
	if err := authz.Instance(actor, authz.EntityProduct, authz.OpUpdate, authz.Facts{}); err != nil {
		return nil, err
	}
	return s.store.Inventory(ctx, productID)
}

// SetStock replaces the available quantity. Back-office only.
func (s *Service) SetStock(ctx context.Context, actor *auth.Actor, productID string, available int) (*Inventory, error) {
	if err := authz.Instance(actor, authz.EntityProduct, authz.OpUpdate, authz.Facts{}); err != nil {
		return nil, err
	}
	if available < 0 {
		return nil, fmt.Errorf("%w: field available: must not be negative", ErrInvalidInput)
	}
	if _, err := s.store.FindProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.SetInventory(ctx, productID, available)
}

// CartForActor loads the actor's cart, creating an empty one on first use.
func (s *Service) CartForActor(ctx context.Context, actor *auth.Actor) (*Cart, error) {
	if actor == nil {
		return nil, authz.ErrUnauthenticated
	}
	if err := authz.Instance(actor, authz.EntityCart, authz.OpGet, authz.Facts{OwnerID: actor.ID}); err != nil {
		return nil, err
	}
	c, err := s.store.FindCartByActor(ctx, actor.ID)
	if errors.Is(err, ErrNotFound) {
		now := s.now().UTC()
		c = &Cart{ID: s.newID(), ActorID: actor.ID, CreatedAt: now, UpdatedAt: now}
		if err := s.store.CreateCart(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}
	return c, err
}

// SetCartItem sets the quantity of a product in the actor's cart. A zero
// quantity removes the line.
func (s *Service) SetCartItem(ctx context.Context, actor *auth.Actor, productID string, quantity int) (*Cart, error) {
	c, err := s.CartForActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityCart, authz.OpUpdate, authz.Facts{OwnerID: c.ActorID}); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: field quantity: must not be negative", ErrInvalidInput)
	}
	if quantity == 0 {
		if err := s.store.RemoveCartItem(ctx, c.ID, productID); err != nil {
			return nil, err
		}
		return s.store.FindCartByActor(ctx, actor.ID)
	}
	p, err := s.store.FindProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Status != ProductAvailable {
		return nil, fmt.Errorf("%w: product %s is not available", ErrConflict, p.SKU)
	}
	if quantity < p.MinOrderQty {
		return nil, fmt.Errorf("%w: field quantity: below minimum of %d", ErrInvalidInput, p.MinOrderQty)
	}
	if p.MaxOrderQty > 0 && quantity > p.MaxOrderQty {
		return nil, fmt.Errorf("%w: field quantity: above maximum of %d", ErrInvalidInput, p.MaxOrderQty)
	}
	item := &CartItem{ID: s.newID(), CartID: c.ID, ProductID: p.ID, Quantity: quantity}
	if err := s.store.UpsertCartItem(ctx, item); err != nil {
		return nil, err
	}
	return s.store.FindCartByActor(ctx, actor.ID)
}

// CheckoutInput carries the shipping choices for an order.
type CheckoutInput struct {
	ShippingMethod  string
	ShippingAddress string
}

// Checkout converts the actor's cart into an order, invoice and inventory
// reservation in one transaction. Prices are snapshotted per line; the
// cart is cleared on success and untouched on any failure.
func (s *Service) Checkout(ctx context.Context, actor *auth.Actor, in CheckoutInput) (*Order, *Invoice, error) {
	if actor == nil {
		return nil, nil, authz.ErrUnauthenticated
	}
	if err := authz.Instance(actor, authz.EntityOrder, authz.OpCreate, authz.Facts{OwnerID: actor.ID}); err != nil {
		return nil, nil, err
	}
	c, err := s.CartForActor(ctx, actor)
	if err != nil {
		return nil, nil, err
	}
	if len(c.Items) == 0 {
		return nil, nil, ErrEmptyCart
	}
	method := strings.ToLower(strings.TrimSpace(in.ShippingMethod))
	if method == "" {
		method = ShippingStandard
	}

	now := s.now().UTC()
	orderID := s.newID()
	items := make([]*OrderItem, 0, len(c.Items))
	for _, ci := range c.Items {
		p, err := s.store.FindProduct(ctx, ci.ProductID)
		if err != nil {
			return nil, nil, err
		}
		if p.Status != ProductAvailable {
			return nil, nil, fmt.Errorf("%w: product %s is no longer available", ErrConflict, p.SKU)
		}
		items = append(items, &OrderItem{
			ID:             s.newID(),
			OrderID:        orderID,
			ProductID:      p.ID,
			SKU:            p.SKU,
			ProductName:    p.Name,
			UnitPriceCents: p.PriceCents,
			Quantity:       ci.Quantity,
			LineTotalCents: p.PriceCents * int64(ci.Quantity),
		})
	}
	pricing := PriceItems(items, method)

	ord := &Order{
		ID:              orderID,
		ActorID:         actor.ID,
		Status:          OrderPending,
		ShippingMethod:  method,
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
		SubtotalCents:   pricing.SubtotalCents,
		TaxCents:        pricing.TaxCents,
		ShippingCents:   pricing.ShippingCents,
		TotalCents:      pricing.TotalCents,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	inv := &Invoice{
		ID:         s.newID(),
		OrderID:    orderID,
		ActorID:    actor.ID,
		TotalCents: pricing.TotalCents,
		Status:     InvoiceIssued,
		IssuedAt:   now,
		DueAt:      now.Add(invoiceDue),
	}
	for i := 0; i < numberAttempts; i++ {
		ord.OrderNumber = ids.OrderNumber()
		inv.InvoiceNumber = ids.InvoiceFor(ord.OrderNumber)
		if err = s.store.Checkout(ctx, ord, inv, c.ID); !errors.Is(err, ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, nil, err
	}
	return ord, inv, nil
}

// Orders lists the orders visible to the actor.
func (s *Service) Orders(ctx context.Context, actor *auth.Actor) ([]*Order, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityOrder)
	if err != nil {
		return nil, err
	}
	return s.store.ListOrders(ctx, scope)
}

func (s *Service) Order(ctx context.Context, actor *auth.Actor, id string) (*Order, error) {
	ord, err := s.store.FindOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityOrder, authz.OpGet, authz.Facts{OwnerID: ord.ActorID}); err != nil {
		return nil, err
	}
	return ord, nil
}

// MarkOrderStatus transitions an order. Back-office only.
func (s *Service) MarkOrderStatus(ctx context.Context, actor *auth.Actor, id, status string) (*Order, error) {
	ord, err := s.store.FindOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityOrder, authz.OpUpdate, authz.Facts{OwnerID: ord.ActorID}); err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case OrderPending, OrderPaid, OrderShipped, OrderCancelled:
	default:
		return nil, fmt.Errorf("%w: field status: unsupported value %q", ErrInvalidInput, status)
	}
	return s.store.UpdateOrderStatus(ctx, id, status)
}

// Invoices lists the invoices visible to the actor.
func (s *Service) Invoices(ctx context.Context, actor *auth.Actor) ([]*Invoice, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityInvoice)
	if err != nil {
		return nil, err
	}
	return s.store.ListInvoices(ctx, scope)
}

func (s *Service) Invoice(ctx context.Context, actor *auth.Actor, id string) (*Invoice, error) {
	inv, err := s.store.FindInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityInvoice, authz.OpGet, authz.Facts{OwnerID: inv.ActorID}); err != nil {
		return nil, err
	}
	return inv, nil
}

// MarkInvoicePaid settles an invoice. Back-office only.
func (s *Service) MarkInvoicePaid(ctx context.Context, actor *auth.Actor, id string) (*Invoice, error) {
	inv, err := s.store.FindInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityInvoice, authz.OpUpdate, authz.Facts{OwnerID: inv.ActorID}); err != nil {
		return nil, err
	}
	return s.store.UpdateInvoiceStatus(ctx, id, InvoicePaid)
}

// APIKeys lists the actor's keys.
func (s *Service) APIKeys(ctx context.Context, actor *auth.Actor) ([]*APIKey, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityAPIKey)
	if err != nil {
		return nil, err
	}
	return s.store.ListAPIKeys(ctx, scope)
}

// CreateAPIKey mints a key for the calling account.
func (s *Service) CreateAPIKey(ctx context.Context, actor *auth.Actor, label string) (*APIKey, error) {
	if actor == nil {
		return nil, authz.ErrUnauthenticated
	}
	if err := authz.Instance(actor, authz.EntityAPIKey, authz.OpCreate, authz.Facts{OwnerID: actor.ID}); err != nil {
		return nil, err
	}
	k := &APIKey{
		ID:        s.newID(),
		ActorID:   actor.ID,
		Key:       uuid.NewString(),
		Label:     strings.TrimSpace(label),
		Status:    KeyActive,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateAPIKey(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// RevokeAPIKey disables a key.
func (s *Service) RevokeAPIKey(ctx context.Context, actor *auth.Actor, id string) (*APIKey, error) {
	k, err := s.store.FindAPIKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityAPIKey, authz.OpUpdate, authz.Facts{OwnerID: k.ActorID}); err != nil {
		return nil, err
	}
	return s.store.UpdateAPIKeyStatus(ctx, id, KeyRevoked)
}

// AuthenticateAPIKey resolves an active key to its owning account id and
// stamps the usage time. Used by the HTTP layer for institutional buyers.
func (s *Service) AuthenticateAPIKey(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrNotFound
	}
	k, err := s.store.LookupAPIKey(ctx, key)
	if err != nil {
		return "", err
	}
	if k.Status != KeyActive {
		return "", ErrNotFound
	}
	if err := s.store.TouchAPIKey(ctx, k.ID, s.now().UTC()); err != nil {
		return "", err
	}
	return k.ActorID, nil
}
