package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"biovault.org/internal/authz"
	"biovault.org/internal/webstore"
)

func productScope(p *predicates, scope authz.Scope) {
	if scope.All {
		return
	}
	var ors []string
	if scope.HasEdge(authz.EdgePublic) {
		ors = append(ors, `status = 'available'`)
	}
	p.add(scopeOr(ors))
}

func (s *Store) CreateProduct(ctx context.Context, pr *webstore.Product) error {
	_, err := s.db.ExecContext(ctx, `
		insert into products (id, sku, name, description, price_cents, status, image_uri, min_order_qty, max_order_qty, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, pr.ID, pr.SKU, pr.Name, nullIfEmpty(pr.Description), pr.PriceCents, pr.Status,
		nullIfEmpty(pr.ImageURI), pr.MinOrderQty, pr.MaxOrderQty, pr.CreatedAt, pr.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: sku already exists", webstore.ErrConflict)
	}
	return err
}

const productColumns = `id, sku, name, description, price_cents, status, image_uri, min_order_qty, max_order_qty, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*webstore.Product, error) {
	var (
		pr          webstore.Product
		desc, image sql.NullString
	)
	err := row.Scan(&pr.ID, &pr.SKU, &pr.Name, &desc, &pr.PriceCents, &pr.Status, &image,
		&pr.MinOrderQty, &pr.MaxOrderQty, &pr.CreatedAt, &pr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, webstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pr.Description = strOf(desc)
	pr.ImageURI = strOf(image)
	return &pr, nil
}

func (s *Store) FindProduct(ctx context.Context, id string) (*webstore.Product, error) {
	row := s.db.QueryRowContext(ctx, `select `+productColumns+` from products where id = $1`, id)
	return scanProduct(row)
}

func (s *Store) ListProducts(ctx context.Context, scope authz.Scope) ([]*webstore.Product, error) {
	p := &predicates{}
	productScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+productColumns+` from products`+p.clause()+` order by name`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webstore.Product
	for rows.Next() {
		pr, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, id string, upd webstore.ProductUpdate) (*webstore.Product, error) {
	u := newUpdater()
	u.setString("name", upd.Name)
	u.setNullable("description", upd.Description)
	if upd.PriceCents != nil {
		u.set("price_cents", *upd.PriceCents)
	}
	u.setString("status", upd.Status)
	u.setNullable("image_uri", upd.ImageURI)
	if upd.MinOrderQty != nil {
		u.set("min_order_qty", *upd.MinOrderQty)
	}
	if upd.MaxOrderQty != nil {
		u.set("max_order_qty", *upd.MaxOrderQty)
	}
	if err := u.exec(ctx, s.db, "products", id, webstore.ErrNotFound, webstore.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindProduct(ctx, id)
}

func (s *Store) Inventory(ctx context.Context, productID string) (*webstore.Inventory, error) {
	var inv webstore.Inventory
	err := s.db.QueryRowContext(ctx, `
		select product_id, available, reserved, updated_at from product_inventory where product_id = $1
	`, productID).Scan(&inv.ProductID, &inv.Available, &inv.Reserved, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, webstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) SetInventory(ctx context.Context, productID string, available int) (*webstore.Inventory, error) {
	_, err := s.db.ExecContext(ctx, `
		insert into product_inventory (product_id, available, reserved, updated_at)
		values ($1, $2, 0, now())
		on conflict (product_id) do update set available = excluded.available, updated_at = now()
	`, productID, available)
	if isForeignKeyViolation(err) {
		return nil, fmt.Errorf("%w: product does not exist", webstore.ErrInvalidInput)
	}
	if err != nil {
		return nil, err
	}
	return s.Inventory(ctx, productID)
}

func (s *Store) CreateCart(ctx context.Context, c *webstore.Cart) error {
	_, err := s.db.ExecContext(ctx, `
		insert into carts (id, actor_id, created_at, updated_at) values ($1, $2, $3, $4)
	`, c.ID, c.ActorID, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: actor already has a cart", webstore.ErrConflict)
	}
	return err
}

func (s *Store) FindCartByActor(ctx context.Context, actorID string) (*webstore.Cart, error) {
	var c webstore.Cart
	err := s.db.QueryRowContext(ctx, `
		select id, actor_id, created_at, updated_at from carts where actor_id = $1
	`, actorID).Scan(&c.ID, &c.ActorID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, webstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, cart_id, product_id, quantity from cart_items where cart_id = $1 order by id
	`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item webstore.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, &item)
	}
	return &c, rows.Err()
}

func (s *Store) UpsertCartItem(ctx context.Context, item *webstore.CartItem) error {
	_, err := s.db.ExecContext(ctx, `
		insert into cart_items (id, cart_id, product_id, quantity)
		values ($1, $2, $3, $4)
		on conflict (cart_id, product_id) do update set quantity = excluded.quantity
	`, item.ID, item.CartID, item.ProductID, item.Quantity)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: cart or product does not exist", webstore.ErrInvalidInput)
	}
	return err
}

func (s *Store) RemoveCartItem(ctx context.Context, cartID, productID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from cart_items where cart_id = $1 and product_id = $2
	`, cartID, productID)
	return err
}

// Checkout commits the whole purchase in one transaction: order header,
// snapshot items, invoice, inventory reservation and cart clearing. The
// conditional inventory update is the stock check; zero rows affected
// means another checkout got there first.
func (s *Store) Checkout(ctx context.Context, ord *webstore.Order, inv *webstore.Invoice, cartID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		insert into orders (id, order_number, actor_id, status, shipping_method, shipping_address, subtotal_cents, tax_cents, shipping_cents, total_cents, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, ord.ID, ord.OrderNumber, ord.ActorID, ord.Status, ord.ShippingMethod, nullIfEmpty(ord.ShippingAddress),
		ord.SubtotalCents, ord.TaxCents, ord.ShippingCents, ord.TotalCents, ord.CreatedAt, ord.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: order number already taken", webstore.ErrConflict)
	}
	if err != nil {
		return err
	}

	for _, item := range ord.Items {
		_, err = tx.ExecContext(ctx, `
			insert into order_items (id, order_id, product_id, sku, product_name, unit_price_cents, quantity, line_total_cents)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, item.OrderID, item.ProductID, item.SKU, item.ProductName,
			item.UnitPriceCents, item.Quantity, item.LineTotalCents)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			update product_inventory
			set available = available - $1, reserved = reserved + $1, updated_at = now()
			where product_id = $2 and available >= $1
		`, item.Quantity, item.ProductID)
		if err != nil {
			return err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff == 0 {
			return fmt.Errorf("%w: %s", webstore.ErrOutOfStock, item.SKU)
		}
	}

	_, err = tx.ExecContext(ctx, `
		insert into invoices (id, invoice_number, order_id, actor_id, total_cents, status, issued_at, due_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, inv.ID, inv.InvoiceNumber, inv.OrderID, inv.ActorID, inv.TotalCents, inv.Status, inv.IssuedAt, inv.DueAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: invoice number already taken", webstore.ErrConflict)
	}
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `delete from cart_items where cart_id = $1`, cartID); err != nil {
		return err
	}
	return tx.Commit()
}

const orderColumns = `id, order_number, actor_id, status, shipping_method, shipping_address, subtotal_cents, tax_cents, shipping_cents, total_cents, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*webstore.Order, error) {
	var (
		ord  webstore.Order
		addr sql.NullString
	)
	err := row.Scan(&ord.ID, &ord.OrderNumber, &ord.ActorID, &ord.Status, &ord.ShippingMethod, &addr,
		&ord.SubtotalCents, &ord.TaxCents, &ord.ShippingCents, &ord.TotalCents, &ord.CreatedAt, &ord.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, webstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ord.ShippingAddress = strOf(addr)
	return &ord, nil
}

func (s *Store) FindOrder(ctx context.Context, id string) (*webstore.Order, error) {
	row := s.db.QueryRowContext(ctx, `select `+orderColumns+` from orders where id = $1`, id)
	ord, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, order_id, product_id, sku, product_name, unit_price_cents, quantity, line_total_cents
		from order_items where order_id = $1 order by id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item webstore.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.SKU, &item.ProductName,
			&item.UnitPriceCents, &item.Quantity, &item.LineTotalCents); err != nil {
			return nil, err
		}
		ord.Items = append(ord.Items, &item)
	}
	return ord, rows.Err()
}

func (s *Store) ListOrders(ctx context.Context, scope authz.Scope) ([]*webstore.Order, error) {
	p := &predicates{}
	ownerScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+orderColumns+` from orders`+p.clause()+` order by created_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webstore.Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ord)
	}
	return out, rows.Err()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id, status string) (*webstore.Order, error) {
	u := newUpdater()
	u.set("status", status)
	if err := u.exec(ctx, s.db, "orders", id, webstore.ErrNotFound, webstore.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindOrder(ctx, id)
}

const invoiceColumns = `id, invoice_number, order_id, actor_id, total_cents, status, issued_at, due_at`

func scanInvoice(row interface{ Scan(...any) error }) (*webstore.Invoice, error) {
	var inv webstore.Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.OrderID, &inv.ActorID, &inv.TotalCents, &inv.Status, &inv.IssuedAt, &inv.DueAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, webstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) FindInvoice(ctx context.Context, id string) (*webstore.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `select `+invoiceColumns+` from invoices where id = $1`, id)
	return scanInvoice(row)
}

func (s *Store) ListInvoices(ctx context.Context, scope authz.Scope) ([]*webstore.Invoice, error) {
	p := &predicates{}
	ownerScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+invoiceColumns+` from invoices`+p.clause()+` order by issued_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webstore.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) UpdateInvoiceStatus(ctx context.Context, id, status string) (*webstore.Invoice, error) {
	res, err := s.db.ExecContext(ctx, `update invoices set status = $1 where id = $2`, status, id)
	if err != nil {
		return nil, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if aff == 0 {
		return nil, webstore.ErrNotFound
	}
	return s.FindInvoice(ctx, id)
}

func (s *Store) CreateAPIKey(ctx context.Context, k *webstore.APIKey) error {
	_, err := s.db.ExecContext(ctx, `
		insert into api_keys (id, actor_id, key, label, status, last_used_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, k.ID, k.ActorID, k.Key, nullIfEmpty(k.Label), k.Status, nullTime(k.LastUsedAt), k.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: key already exists", webstore.ErrConflict)
	}
	return err
}

const apiKeyColumns = `id, actor_id, key, label, status, last_used_at, created_at`

func scanAPIKey(row interface{ Scan(...any) error }) (*webstore.APIKey, error) {
	var (
		k        webstore.APIKey
		label    sql.NullString
		lastUsed sql.NullTime
	)
	err := row.Scan(&k.ID, &k.ActorID, &k.Key, &label, &k.Status, &lastUsed, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, webstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	k.Label = strOf(label)
	k.LastUsedAt = timeOf(lastUsed)
	return &k, nil
}

func (s *Store) FindAPIKey(ctx context.Context, id string) (*webstore.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `select `+apiKeyColumns+` from api_keys where id = $1`, id)
	return scanAPIKey(row)
}

func (s *Store) LookupAPIKey(ctx context.Context, key string) (*webstore.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `select `+apiKeyColumns+` from api_keys where key = $1`, key)
	return scanAPIKey(row)
}

func (s *Store) ListAPIKeys(ctx context.Context, scope authz.Scope) ([]*webstore.APIKey, error) {
	p := &predicates{}
	ownerScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+apiKeyColumns+` from api_keys`+p.clause()+` order by created_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webstore.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAPIKeyStatus(ctx context.Context, id, status string) (*webstore.APIKey, error) {
	res, err := s.db.ExecContext(ctx, `update api_keys set status = $1 where id = $2`, status, id)
	if err != nil {
		return nil, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if aff == 0 {
		return nil, webstore.ErrNotFound
	}
	return s.FindAPIKey(ctx, id)
}

func (s *Store) TouchAPIKey(ctx context.Context, id string, when time.Time) error {
	_, err := s.db.ExecContext(ctx, `update api_keys set last_used_at = $1 where id = $2`, when, id)
	return err
}
