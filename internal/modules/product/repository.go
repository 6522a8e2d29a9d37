package product

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/tmkandawire/shopa-backend/internal/repository"
	"github.com/tmkandawire/shopa-backend/internal/store"
)

// Repository defines product data access and inventory arithmetic.
type Repository interface {
	FindAll(ctx context.Context, useCache bool) ([]*Product, error)
	FindByID(ctx context.Context, id string) (*Product, bool, error)
	Create(ctx context.Context, p *Product) (*Product, error)
	Update(ctx context.Context, id string, mutate func(*Product) error) (*Product, bool, error)
	Delete(ctx context.Context, id string) (bool, error)

	// AdjustInventory applies delta (negative to reserve, positive to
	// restore) to a product's inventory in one read-modify-write under the
	// collection lock. A delta that would go negative returns
	// *InsufficientInventoryError and writes nothing. A missing product is
	// reported as (nil, false, nil).
	AdjustInventory(ctx context.Context, id string, delta int) (*Product, bool, error)
	HasInventory(ctx context.Context, id string, required int) (bool, error)

	FindByCategory(ctx context.Context, category string) ([]*Product, error)
	FindLowInventory(ctx context.Context, threshold int) ([]*Product, error)
	Search(ctx context.Context, query string) ([]*Product, error)
	FindWithFilters(ctx context.Context, f Filter) (*FilteredPage, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Filter narrows, orders, and paginates a product listing. Zero values mean
// "no constraint"; Page and Limit default to 1 and 10.
type Filter struct {
	Category  string
	MinPrice  *float64
	MaxPrice  *float64
	InStock   bool
	Query     string
	SortBy    string // name | price | inventory | createdAt
	SortOrder string // asc | desc
	Page      int
	Limit     int
}

// Pagination describes one page of a larger result set.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// FilteredPage is one page of a filtered product listing.
type FilteredPage struct {
	Products   []*Product `json:"products"`
	Pagination Pagination `json:"pagination"`
}

// Stats summarizes the catalog.
type Stats struct {
	TotalProducts  int     `json:"totalProducts"`
	Categories     int     `json:"categories"`
	AveragePrice   float64 `json:"averagePrice"`
	TotalInventory int     `json:"totalInventory"`
	OutOfStock     int     `json:"outOfStock"`
	LowInventory   int     `json:"lowInventory"`
}

type collectionRepo struct {
	*repository.Repository[*Product]
}

// NewRepository creates a product repository over col.
func NewRepository(col store.Collection, cacheTTL time.Duration) Repository {
	return &collectionRepo{
		repository.New(col, cacheTTL, func() *Product { return &Product{} }),
	}
}

func (r *collectionRepo) AdjustInventory(ctx context.Context, id string, delta int) (*Product, bool, error) {
	return r.Repository.Update(ctx, id, func(p *Product) error {
		next := p.Inventory + delta
		if next < 0 {
			return &InsufficientInventoryError{
				ProductID: id,
				Have:      p.Inventory,
				Requested: -delta,
			}
		}
		p.Inventory = next
		return nil
	})
}

func (r *collectionRepo) HasInventory(ctx context.Context, id string, required int) (bool, error) {
	p, found, err := r.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return p.Inventory >= required, nil
}

func (r *collectionRepo) FindByCategory(ctx context.Context, category string) ([]*Product, error) {
	return r.FindWhere(ctx, func(p *Product) bool {
		return strings.EqualFold(p.Category, category)
	})
}

func (r *collectionRepo) FindLowInventory(ctx context.Context, threshold int) ([]*Product, error) {
	if threshold <= 0 {
		threshold = LowInventoryThreshold
	}
	return r.FindWhere(ctx, func(p *Product) bool {
		return p.Inventory > 0 && p.Inventory <= threshold
	})
}

func (r *collectionRepo) Search(ctx context.Context, query string) ([]*Product, error) {
	return r.FindWhere(ctx, func(p *Product) bool {
		return matchesQuery(p, query)
	})
}

// FindWithFilters runs the whole filter/sort/paginate pipeline in memory
// over FindAll.
func (r *collectionRepo) FindWithFilters(ctx context.Context, f Filter) (*FilteredPage, error) {
	all, err := r.FindAll(ctx, true)
	if err != nil {
		return nil, err
	}

	matched := make([]*Product, 0, len(all))
	for _, p := range all {
		if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
			continue
		}
		if f.MinPrice != nil && p.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && p.Price > *f.MaxPrice {
			continue
		}
		if f.InStock && p.Inventory <= 0 {
			continue
		}
		if f.Query != "" && !matchesQuery(p, f.Query) {
			continue
		}
		matched = append(matched, p)
	}

	sortProducts(matched, f.SortBy, f.SortOrder)

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	total := len(matched)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &FilteredPage{
		Products: matched[start:end],
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1 && total > 0,
		},
	}, nil
}

func (r *collectionRepo) Stats(ctx context.Context) (*Stats, error) {
	all, err := r.FindAll(ctx, true)
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalProducts: len(all)}
	categories := make(map[string]struct{})
	var priceSum float64
	for _, p := range all {
		categories[strings.ToLower(p.Category)] = struct{}{}
		priceSum += p.Price
		stats.TotalInventory += p.Inventory
		switch {
		case p.Inventory == 0:
			stats.OutOfStock++
		case p.Inventory <= LowInventoryThreshold:
			stats.LowInventory++
		}
	}
	stats.Categories = len(categories)
	if len(all) > 0 {
		stats.AveragePrice = round2(priceSum / float64(len(all)))
	}
	return stats, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func matchesQuery(p *Product, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), q) ||
		strings.Contains(strings.ToLower(p.Description), q)
}

func sortProducts(products []*Product, sortBy, sortOrder string) {
	desc := strings.EqualFold(sortOrder, "desc")
	var less func(a, b *Product) bool
	switch sortBy {
	case "price":
		less = func(a, b *Product) bool { return a.Price < b.Price }
	case "inventory":
		less = func(a, b *Product) bool { return a.Inventory < b.Inventory }
	case "createdAt":
		less = func(a, b *Product) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		less = func(a, b *Product) bool {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	}
	sort.SliceStable(products, func(i, j int) bool {
		if desc {
			return less(products[j], products[i])
		}
		return less(products[i], products[j])
	})
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
