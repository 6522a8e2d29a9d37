package checkout

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmkandawire/shopa-backend/internal/modules/cart"
	"github.com/tmkandawire/shopa-backend/internal/modules/order"
	"github.com/tmkandawire/shopa-backend/internal/modules/product"
	"github.com/tmkandawire/shopa-backend/internal/store"
)

type fixture struct {
	service  Service
	products product.Repository
	carts    cart.Repository
	orders   order.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewFileStore(t.TempDir(), store.NewLockManager(time.Millisecond), logger)

	products := product.NewRepository(st.Collection("products"), time.Minute)
	carts := cart.NewRepository(st.Collection("carts"), time.Minute)
	orders := order.NewRepository(st.Collection("orders"), time.Minute)
	return &fixture{
		service:  NewService(products, carts, orders, logger),
		products: products,
		carts:    carts,
		orders:   orders,
	}
}

func (f *fixture) seedProduct(t *testing.T, name string, price float64, inventory int) *product.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), &product.Product{
		Name:      name,
		Price:     price,
		Category:  "test",
		Inventory: inventory,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) inventoryOf(t *testing.T, id string) int {
	t.Helper()
	p, found, err := f.products.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	return p.Inventory
}

func TestPlaceOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mug := f.seedProduct(t, "Mug", 10, 5)
	flask := f.seedProduct(t, "Flask", 25, 3)

	_, err := f.carts.AddItem(ctx, "u1", mug.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "u1", flask.ID, 1)
	require.NoError(t, err)

	o, err := f.service.PlaceOrder(ctx, PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 45.0, o.TotalAmount)
	assert.Equal(t, order.StatusPending, o.Status)
	require.Len(t, o.Items, 2)

	// The snapshot carries copied name and price.
	assert.Equal(t, "Mug", o.Items[0].ProductName)
	assert.Equal(t, 10.0, o.Items[0].Price)

	// Inventory was reserved per item.
	assert.Equal(t, 3, f.inventoryOf(t, mug.ID))
	assert.Equal(t, 2, f.inventoryOf(t, flask.ID))

	// The cart was cleared.
	c, err := f.carts.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestOrderSnapshotSurvivesProductEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mug := f.seedProduct(t, "Mug", 10, 5)
	_, err := f.carts.AddItem(ctx, "u1", mug.ID, 1)
	require.NoError(t, err)

	o, err := f.service.PlaceOrder(ctx, PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)

	_, found, err := f.products.Update(ctx, mug.ID, func(p *product.Product) error {
		p.Name = "Renamed Mug"
		p.Price = 99
		return nil
	})
	require.NoError(t, err)
	require.True(t, found)

	got, found, err := f.orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Mug", got.Items[0].ProductName)
	assert.Equal(t, 10.0, got.Items[0].Price)
	assert.Equal(t, 10.0, got.TotalAmount)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrderInvalidCartCreatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mug := f.seedProduct(t, "Mug", 10, 5)
	scarce := f.seedProduct(t, "Flask", 25, 1)

	_, err := f.carts.AddItem(ctx, "u1", mug.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "u1", scarce.ID, 4)
	require.NoError(t, err)

	_, err = f.service.PlaceOrder(ctx, PlaceOrderRequest{UserID: "u1"})
	var invalid *CartInvalidError
	require.ErrorAs(t, err, &invalid)
	require.Len(t, invalid.Issues, 1)
	assert.Equal(t, scarce.ID, invalid.Issues[0].ProductID)

	// One invalid line fails the whole operation: no order, no inventory
	// movement, cart intact.
	all, err := f.orders.FindAll(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 5, f.inventoryOf(t, mug.ID))
	assert.Equal(t, 1, f.inventoryOf(t, scarce.ID))
	c, err := f.carts.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
}

func TestCancelOrderRestoresInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mug := f.seedProduct(t, "Mug", 10, 5)
	flask := f.seedProduct(t, "Flask", 25, 3)
	_, err := f.carts.AddItem(ctx, "u1", mug.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "u1", flask.ID, 1)
	require.NoError(t, err)

	o, err := f.service.PlaceOrder(ctx, PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)

	cancelled, err := f.service.CancelOrder(ctx, o.ID, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.inventoryOf(t, mug.ID))
	assert.Equal(t, 3, f.inventoryOf(t, flask.ID))

	// A second cancel hits a terminal state and restores nothing.
	_, err = f.service.CancelOrder(ctx, o.ID, "u1", false)
	var invalid *order.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 5, f.inventoryOf(t, mug.ID))
}

func TestCancelOrderOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mug := f.seedProduct(t, "Mug", 10, 5)
	_, err := f.carts.AddItem(ctx, "owner", mug.ID, 1)
	require.NoError(t, err)
	o, err := f.service.PlaceOrder(ctx, PlaceOrderRequest{UserID: "owner"})
	require.NoError(t, err)

	_, err = f.service.CancelOrder(ctx, o.ID, "intruder", false)
	require.ErrorIs(t, err, ErrNotOwner)

	// Admins may cancel any order.
	cancelled, err := f.service.CancelOrder(ctx, o.ID, "intruder", true)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	_, err = f.service.CancelOrder(ctx, "nope", "owner", false)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestBulkUpdateCartPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.seedProduct(t, "Mug", 10, 5)
	third := f.seedProduct(t, "Flask", 25, 5)

	result, err := f.service.BulkUpdateCart(ctx, "u1", []ItemUpdate{
		{ProductID: first.ID, Quantity: 2},
		{ProductID: "ghost-product", Quantity: 1},
		{ProductID: third.ID, Quantity: 3},
	})
	require.NoError(t, err)

	assert.Len(t, result.Successful, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "ghost-product", result.Failed[0].ProductID)
	assert.Contains(t, result.Failed[0].Reason, "does not exist")

	// The two valid lines landed in the cart.
	c, err := f.carts.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
}

func TestBulkUpdateCartSetsAndRemoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.seedProduct(t, "Mug", 10, 10)
	_, err := f.carts.AddItem(ctx, "u1", p.ID, 2)
	require.NoError(t, err)

	// Overwrite, not merge.
	result, err := f.service.BulkUpdateCart(ctx, "u1", []ItemUpdate{{ProductID: p.ID, Quantity: 7}})
	require.NoError(t, err)
	require.Len(t, result.Successful, 1)
	c, err := f.carts.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, c.Items[0].Quantity)

	// Quantity over inventory is rejected per item.
	result, err = f.service.BulkUpdateCart(ctx, "u1", []ItemUpdate{{ProductID: p.ID, Quantity: 11}})
	require.NoError(t, err)
	assert.Len(t, result.Failed, 1)

	// Zero removes the line.
	result, err = f.service.BulkUpdateCart(ctx, "u1", []ItemUpdate{{ProductID: p.ID, Quantity: 0}})
	require.NoError(t, err)
	require.Len(t, result.Successful, 1)
	c, err = f.carts.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestReorder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mug := f.seedProduct(t, "Mug", 10, 5)
	flask := f.seedProduct(t, "Flask", 25, 3)
	_, err := f.carts.AddItem(ctx, "u1", mug.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "u1", flask.ID, 1)
	require.NoError(t, err)
	o, err := f.service.PlaceOrder(ctx, PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)

	// Flask vanished since the order was placed.
	_, err2 := f.products.Delete(ctx, flask.ID)
	require.NoError(t, err2)

	result, err := f.service.Reorder(ctx, o.ID, "u1")
	require.NoError(t, err)
	require.Len(t, result.Successful, 1)
	assert.Equal(t, mug.ID, result.Successful[0].ProductID)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, flask.ID, result.Failed[0].ProductID)

	c, err := f.carts.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)

	_, err = f.service.Reorder(ctx, o.ID, "someone-else")
	require.ErrorIs(t, err, ErrNotOwner)
}
