package product

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmkandawire/shopa-backend/internal/store"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewFileStore(t.TempDir(), store.NewLockManager(time.Millisecond), logger)
	return NewRepository(st.Collection("products"), time.Minute)
}

func seed(t *testing.T, repo Repository, products ...*Product) []*Product {
	t.Helper()
	out := make([]*Product, 0, len(products))
	for _, p := range products {
		created, err := repo.Create(context.Background(), p)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func TestAdjustInventoryReserveAndRestore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	created := seed(t, repo, &Product{Name: "Mug", Price: 9.99, Inventory: 10})[0]

	p, found, err := repo.AdjustInventory(ctx, created.ID, -4)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 6, p.Inventory)

	p, found, err = repo.AdjustInventory(ctx, created.ID, 3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 9, p.Inventory)
}

func TestAdjustInventoryFloor(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	created := seed(t, repo, &Product{Name: "Mug", Price: 9.99, Inventory: 3})[0]

	_, _, err := repo.AdjustInventory(ctx, created.ID, -5)
	var insufficient *InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, created.ID, insufficient.ProductID)
	assert.Equal(t, 3, insufficient.Have)
	assert.Equal(t, 5, insufficient.Requested)

	// The rejected decrement wrote nothing.
	p, found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, p.Inventory)

	// Draining to exactly zero is allowed.
	p, _, err = repo.AdjustInventory(ctx, created.ID, -3)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Inventory)
}

func TestAdjustInventoryMissingProduct(t *testing.T) {
	repo := newTestRepo(t)

	p, found, err := repo.AdjustInventory(context.Background(), "nope", -1)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, p)
}

func TestHasInventory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	created := seed(t, repo, &Product{Name: "Mug", Price: 9.99, Inventory: 5})[0]

	ok, err := repo.HasInventory(ctx, created.ID, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.HasInventory(ctx, created.ID, 6)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.HasInventory(ctx, "nope", 1)
	require.NoError(t, err)
	assert.False(t, ok, "a missing product has no inventory")
}

func TestSearchMatchesNameAndDescription(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo,
		&Product{Name: "Ceramic Mug", Description: "Stoneware coffee mug", Price: 9.99, Category: "kitchen", Inventory: 5},
		&Product{Name: "Travel Flask", Description: "Keeps coffee hot", Price: 19.99, Category: "kitchen", Inventory: 5},
		&Product{Name: "Desk Lamp", Description: "Warm light", Price: 29.99, Category: "office", Inventory: 5},
	)

	got, err := repo.Search(context.Background(), "coffee")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.Search(context.Background(), "LAMP")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Desk Lamp", got[0].Name)
}

func TestFindWithFilters(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo,
		&Product{Name: "Mug", Price: 10, Category: "kitchen", Inventory: 5},
		&Product{Name: "Flask", Price: 20, Category: "kitchen", Inventory: 0},
		&Product{Name: "Lamp", Price: 30, Category: "office", Inventory: 2},
		&Product{Name: "Chair", Price: 120, Category: "office", Inventory: 7},
	)
	ctx := context.Background()

	min := 15.0
	page, err := repo.FindWithFilters(ctx, Filter{MinPrice: &min, InStock: true, SortBy: "price"})
	require.NoError(t, err)
	require.Len(t, page.Products, 2)
	assert.Equal(t, "Lamp", page.Products[0].Name)
	assert.Equal(t, "Chair", page.Products[1].Name)

	page, err = repo.FindWithFilters(ctx, Filter{Category: "kitchen"})
	require.NoError(t, err)
	assert.Len(t, page.Products, 2)
	assert.Equal(t, 2, page.Pagination.Total)
}

func TestFindWithFiltersPagination(t *testing.T) {
	repo := newTestRepo(t)
	for i := 0; i < 5; i++ {
		seed(t, repo, &Product{Name: string(rune('a'+i)), Price: float64(i + 1), Inventory: 1})
	}

	page, err := repo.FindWithFilters(context.Background(), Filter{SortBy: "price", Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Products, 2)
	assert.Equal(t, 3.0, page.Products[0].Price)
	assert.Equal(t, Pagination{
		Page: 2, Limit: 2, Total: 5, TotalPages: 3, HasNext: true, HasPrev: true,
	}, page.Pagination)

	// Past the last page: empty slice, not an error.
	page, err = repo.FindWithFilters(context.Background(), Filter{Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Products)
	assert.False(t, page.Pagination.HasNext)
}

func TestFindLowInventoryAndByCategory(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo,
		&Product{Name: "Out", Price: 1, Category: "a", Inventory: 0},
		&Product{Name: "Low", Price: 1, Category: "a", Inventory: 3},
		&Product{Name: "Edge", Price: 1, Category: "b", Inventory: 10},
		&Product{Name: "Full", Price: 1, Category: "b", Inventory: 50},
	)
	ctx := context.Background()

	low, err := repo.FindLowInventory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, low, 2, "zero-stock products are out, not low")

	cat, err := repo.FindByCategory(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, cat, 2)
}

func TestStats(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo,
		&Product{Name: "Out", Price: 10, Category: "kitchen", Inventory: 0},
		&Product{Name: "Low", Price: 20, Category: "Kitchen", Inventory: 5},
		&Product{Name: "Full", Price: 30, Category: "office", Inventory: 40},
	)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalProducts)
	assert.Equal(t, 2, stats.Categories, "category count is case-insensitive")
	assert.Equal(t, 20.0, stats.AveragePrice)
	assert.Equal(t, 45, stats.TotalInventory)
	assert.Equal(t, 1, stats.OutOfStock)
	assert.Equal(t, 1, stats.LowInventory)
}

func TestStatsEmptyCatalog(t *testing.T) {
	repo := newTestRepo(t)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalProducts)
	assert.Equal(t, 0.0, stats.AveragePrice)
}
