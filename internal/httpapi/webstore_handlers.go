package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"biovault.org/internal/audit"
	"biovault.org/internal/obs"
	"biovault.org/internal/webstore"
)

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.webstore.Products(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

type createProductRequest struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	PriceCents   int64  `json:"price_cents"`
	ImageURI     string `json:"image_uri"`
	MinOrderQty  int    `json:"min_order_qty"`
	MaxOrderQty  int    `json:"max_order_qty"`
	InitialStock int    `json:"initial_stock"`
}

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.webstore.CreateProduct(r.Context(), a.actor(r), webstore.CreateProductInput{
		SKU:          req.SKU,
		Name:         req.Name,
		Description:  req.Description,
		PriceCents:   req.PriceCents,
		ImageURI:     req.ImageURI,
		MinOrderQty:  req.MinOrderQty,
		MaxOrderQty:  req.MaxOrderQty,
		InitialStock: req.InitialStock,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.webstore.Product(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type productUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	PriceCents  *int64  `json:"price_cents"`
	Status      *string `json:"status"`
	ImageURI    *string `json:"image_uri"`
	MinOrderQty *int    `json:"min_order_qty"`
	MaxOrderQty *int    `json:"max_order_qty"`
}

func (a *API) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.webstore.UpdateProduct(r.Context(), a.actor(r), mux.Vars(r)["id"], webstore.ProductUpdate{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Status:      req.Status,
		ImageURI:    req.ImageURI,
		MinOrderQty: req.MinOrderQty,
		MaxOrderQty: req.MaxOrderQty,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) getInventory(w http.ResponseWriter, r *http.Request) {
	inv, err := a.webstore.ProductInventory(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type setInventoryRequest struct {
	Available int `json:"available"`
}

func (a *API) setInventory(w http.ResponseWriter, r *http.Request) {
	var req setInventoryRequest
	if !a.decode(w, r, &req) {
		return
	}
	inv, err := a.webstore.SetStock(r.Context(), a.actor(r), mux.Vars(r)["id"], req.Available)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (a *API) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := a.webstore.CartForActor(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

type setCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (a *API) setCartItem(w http.ResponseWriter, r *http.Request) {
	var req setCartItemRequest
	if !a.decode(w, r, &req) {
		return
	}
	cart, err := a.webstore.SetCartItem(r.Context(), a.actor(r), req.ProductID, req.Quantity)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.webstore.Orders(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

type checkoutRequest struct {
	ShippingMethod  string `json:"shipping_method"`
	ShippingAddress string `json:"shipping_address"`
}

func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !a.decode(w, r, &req) {
		return
	}
	order, invoice, err := a.webstore.Checkout(r.Context(), a.actor(r), webstore.CheckoutInput{
		ShippingMethod:  req.ShippingMethod,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		if errors.Is(err, webstore.ErrConflict) || errors.Is(err, webstore.ErrOutOfStock) {
			obs.ObserveCheckout("conflict")
		} else {
			obs.ObserveCheckout("error")
		}
		a.respondError(w, r, err)
		return
	}
	obs.ObserveCheckout("ok")
	_ = audit.LogEvent(r.Context(), "webstore.checkout", map[string]any{
		"order_number": order.OrderNumber,
		"total_cents":  order.TotalCents,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"order":   order,
		"invoice": invoice,
	})
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.webstore.Order(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusRequest
	if !a.decode(w, r, &req) {
		return
	}
	order, err := a.webstore.MarkOrderStatus(r.Context(), a.actor(r), mux.Vars(r)["id"], req.Status)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) listInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := a.webstore.Invoices(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (a *API) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := a.webstore.Invoice(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (a *API) payInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := a.webstore.MarkInvoicePaid(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (a *API) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := a.webstore.APIKeys(r.Context(), a.actor(r))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

type createAPIKeyRequest struct {
	Label string `json:"label"`
}

func (a *API) createAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if !a.decode(w, r, &req) {
		return
	}
	key, err := a.webstore.CreateAPIKey(r.Context(), a.actor(r), req.Label)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

func (a *API) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := a.webstore.RevokeAPIKey(r.Context(), a.actor(r), mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}
