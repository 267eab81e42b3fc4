package pg

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biovault.org/internal/authz"
	"biovault.org/internal/donors"
	"biovault.org/internal/webstore"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestListStudiesTranslatesSponsorScope(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "protocol_number", "title", "description", "phase", "status",
		"sponsor_id", "sponsor_name", "principal_investigator", "public",
		"start_date", "end_date", "created_at", "updated_at",
	}).AddRow("st-1", "PROTO-1", "Oncology study", nil, nil, "active",
		"act-1", nil, nil, true, nil, nil, now, now)

	mock.ExpectQuery(`from studies where \(\(public and status = 'active'\) or \(sponsor_id = \$1 or \(coalesce\(sponsor_id, ''\) = '' and lower\(coalesce\(sponsor_name, ''\)\) = lower\(\$2\)\)\)\) order by created_at desc`).
		WithArgs("act-1", "Acme Sponsor").
		WillReturnRows(rows)

	scope := authz.Scope{
		Edges:    []authz.EdgeKind{authz.EdgePublic, authz.EdgeSponsor},
		ActorID:  "act-1",
		FullName: "Acme Sponsor",
	}
	studies, err := store.ListStudies(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, studies, 1)
	assert.Equal(t, "PROTO-1", studies[0].ProtocolNumber)
	assert.Empty(t, studies[0].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDonorsOwnerScope(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "donor_code", "actor_id", "first_name", "last_name", "date_of_birth",
		"blood_type", "hla_type", "height_cm", "weight_kg", "bmi", "status",
		"created_at", "updated_at",
	}).AddRow("d-1", "DN-00000001", "act-9", "Dana", "Reeves", nil,
		"O+", nil, 170.0, 65.0, 22.49, "active", now, now)

	mock.ExpectQuery(`from donors where \(actor_id = \$1\) order by created_at desc`).
		WithArgs("act-9").
		WillReturnRows(rows)

	scope := authz.Scope{Edges: []authz.EdgeKind{authz.EdgeOwner}, ActorID: "act-9"}
	list, err := store.ListDonors(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].BMI)
	assert.InDelta(t, 22.49, *list[0].BMI, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeWithNoEdgesMatchesNothing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`from donors where false order by created_at desc`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	list, err := store.ListDonors(context.Background(), authz.Scope{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDonorWritesDerivedBMI(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	height, weight, bmi := 180.0, 75.0, 23.15
	mock.ExpectExec(`update donors set height_cm = \$1, weight_kg = \$2, bmi = \$3, updated_at = now\(\) where id = \$4`).
		WithArgs(height, weight, bmi, "d-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows := sqlmock.NewRows([]string{
		"id", "donor_code", "actor_id", "first_name", "last_name", "date_of_birth",
		"blood_type", "hla_type", "height_cm", "weight_kg", "bmi", "status",
		"created_at", "updated_at",
	}).AddRow("d-1", "DN-00000001", "act-9", "Dana", "Reeves", nil,
		nil, nil, height, weight, bmi, "active", now, now)
	mock.ExpectQuery(`from donors where id = \$1`).WithArgs("d-1").WillReturnRows(rows)

	got, err := store.UpdateDonor(context.Background(), "d-1",
		donors.DonorUpdate{HeightCm: &height, WeightKg: &weight}, &bmi)
	require.NoError(t, err)
	require.NotNil(t, got.BMI)
	assert.InDelta(t, bmi, *got.BMI, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDonorMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	status := "deferred"
	mock.ExpectExec(`update donors set status = \$1, bmi = \$2, updated_at = now\(\) where id = \$3`).
		WithArgs(status, sql.NullFloat64{}, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateDonor(context.Background(), "missing",
		donors.DonorUpdate{Status: &status}, nil)
	assert.ErrorIs(t, err, donors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func checkoutFixtures(now time.Time) (*webstore.Order, *webstore.Invoice) {
	ord := &webstore.Order{
		ID:             "ord-1",
		OrderNumber:    "WS-123456",
		ActorID:        "act-1",
		Status:         webstore.OrderPending,
		ShippingMethod: "Standard",
		SubtotalCents:  10000,
		TaxCents:       1000,
		ShippingCents:  1000,
		TotalCents:     12000,
		Items: []*webstore.OrderItem{{
			ID: "item-1", OrderID: "ord-1", ProductID: "p-1", SKU: "KIT-A",
			ProductName: "Serum kit", UnitPriceCents: 5000, Quantity: 2, LineTotalCents: 10000,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	inv := &webstore.Invoice{
		ID: "inv-1", InvoiceNumber: "INV-123456", OrderID: "ord-1", ActorID: "act-1",
		TotalCents: 12000, Status: webstore.InvoiceIssued, IssuedAt: now, DueAt: now.Add(30 * 24 * time.Hour),
	}
	return ord, inv
}

func TestCheckoutCommitsEverythingTogether(t *testing.T) {
	store, mock := newMockStore(t)
	ord, inv := checkoutFixtures(time.Now())

	mock.ExpectBegin()
	mock.ExpectExec(`insert into orders`).
		WithArgs(ord.ID, ord.OrderNumber, ord.ActorID, ord.Status, ord.ShippingMethod, sql.NullString{},
			ord.SubtotalCents, ord.TaxCents, ord.ShippingCents, ord.TotalCents, ord.CreatedAt, ord.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into order_items`).
		WithArgs("item-1", "ord-1", "p-1", "KIT-A", "Serum kit", int64(5000), 2, int64(10000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update product_inventory\s+set available = available - \$1, reserved = reserved \+ \$1`).
		WithArgs(2, "p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into invoices`).
		WithArgs(inv.ID, inv.InvoiceNumber, inv.OrderID, inv.ActorID, inv.TotalCents, inv.Status, inv.IssuedAt, inv.DueAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`delete from cart_items where cart_id = \$1`).
		WithArgs("cart-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Checkout(context.Background(), ord, inv, "cart-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutOutOfStockRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	ord, _ := checkoutFixtures(time.Now())
	_, inv := checkoutFixtures(time.Now())

	mock.ExpectBegin()
	mock.ExpectExec(`insert into orders`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into order_items`).WillReturnResult(sqlmock.NewResult(0, 1))
	// Zero rows affected means the conditional reservation failed.
	mock.ExpectExec(`update product_inventory`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Checkout(context.Background(), ord, inv, "cart-1")
	assert.ErrorIs(t, err, webstore.ErrOutOfStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}
