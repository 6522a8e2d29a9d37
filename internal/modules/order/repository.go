package order

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/tmkandawire/shopa-backend/internal/repository"
	"github.com/tmkandawire/shopa-backend/internal/store"
)

// Repository defines order data access and lifecycle transitions.
type Repository interface {
	// Create persists a new order, forcing the initial status to pending.
	Create(ctx context.Context, o *Order) (*Order, error)
	FindAll(ctx context.Context, useCache bool) ([]*Order, error)
	FindByID(ctx context.Context, id string) (*Order, bool, error)

	// UpdateStatus moves an order to status, rejecting unknown values and
	// transitions the state machine forbids with *InvalidTransitionError.
	// StatusUpdatedAt is refreshed on success. A missing order is
	// (nil, false, nil).
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, bool, error)

	// Cancel is UpdateStatus(cancelled); the state machine limits it to
	// pending and processing orders.
	Cancel(ctx context.Context, id string) (*Order, bool, error)

	UserHistory(ctx context.Context, userID string, q HistoryQuery) (*HistoryPage, error)

	// NeedingAttention returns pending or processing orders older than the
	// given number of hours, oldest first.
	NeedingAttention(ctx context.Context, hours int) ([]*Order, error)

	Stats(ctx context.Context) (*Stats, error)
}

// HistoryQuery filters, orders, and paginates a user's order history.
// Defaults: all statuses, newest first, page 1, limit 10.
type HistoryQuery struct {
	Status    Status
	Page      int
	Limit     int
	SortBy    string // createdAt | totalAmount | status
	SortOrder string // asc | desc
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

// HistoryPage is one page of a user's order history.
type HistoryPage struct {
	Orders     []*Order   `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// CustomerSpend aggregates one customer's order count and total spend.
type CustomerSpend struct {
	UserID string  `json:"userId"`
	Orders int     `json:"orders"`
	Spent  float64 `json:"spent"`
}

// Stats summarizes all orders. Revenue figures exclude cancelled orders.
type Stats struct {
	TotalOrders    int                `json:"totalOrders"`
	TotalRevenue   float64            `json:"totalRevenue"`
	StatusCounts   map[Status]int     `json:"statusCounts"`
	MonthlyRevenue map[string]float64 `json:"monthlyRevenue"` // keyed YYYY-MM
	TopCustomers   []CustomerSpend    `json:"topCustomers"`
}

type collectionRepo struct {
	*repository.Repository[*Order]
}

// NewRepository creates an order repository over col.
func NewRepository(col store.Collection, cacheTTL time.Duration) Repository {
	return &collectionRepo{
		repository.New(col, cacheTTL, func() *Order { return &Order{} }),
	}
}

func (r *collectionRepo) Create(ctx context.Context, o *Order) (*Order, error) {
	o.Status = StatusPending
	o.StatusUpdatedAt = time.Now().UTC()
	if o.Items == nil {
		o.Items = []Item{}
	}
	return r.Repository.Create(ctx, o)
}

func (r *collectionRepo) UpdateStatus(ctx context.Context, id string, status Status) (*Order, bool, error) {
	return r.Update(ctx, id, func(o *Order) error {
		if !status.Known() || !o.Status.CanTransitionTo(status) {
			return &InvalidTransitionError{From: o.Status, To: status}
		}
		o.Status = status
		o.StatusUpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r *collectionRepo) Cancel(ctx context.Context, id string) (*Order, bool, error) {
	return r.UpdateStatus(ctx, id, StatusCancelled)
}

func (r *collectionRepo) UserHistory(ctx context.Context, userID string, q HistoryQuery) (*HistoryPage, error) {
	matched, err := r.FindWhere(ctx, func(o *Order) bool {
		if o.UserID != userID {
			return false
		}
		return q.Status == "" || o.Status == q.Status
	})
	if err != nil {
		return nil, err
	}

	sortOrders(matched, q.SortBy, q.SortOrder)

	page, limit := q.Page, q.Limit
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

	return &HistoryPage{
		Orders: matched[start:end],
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

func (r *collectionRepo) NeedingAttention(ctx context.Context, hours int) ([]*Order, error) {
	if hours < 1 {
		hours = 24
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	stale, err := r.FindWhere(ctx, func(o *Order) bool {
		if o.Status != StatusPending && o.Status != StatusProcessing {
			return false
		}
		return o.CreatedAt.Before(cutoff)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})
	return stale, nil
}

func (r *collectionRepo) Stats(ctx context.Context) (*Stats, error) {
	all, err := r.FindAll(ctx, true)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalOrders:    len(all),
		StatusCounts:   make(map[Status]int),
		MonthlyRevenue: make(map[string]float64),
	}
	spend := make(map[string]*CustomerSpend)
	for _, o := range all {
		stats.StatusCounts[o.Status]++
		if o.Status == StatusCancelled {
			continue
		}
		stats.TotalRevenue += o.TotalAmount
		month := o.CreatedAt.UTC().Format("2006-01")
		stats.MonthlyRevenue[month] = round2(stats.MonthlyRevenue[month] + o.TotalAmount)

		cs, ok := spend[o.UserID]
		if !ok {
			cs = &CustomerSpend{UserID: o.UserID}
			spend[o.UserID] = cs
		}
		cs.Orders++
		cs.Spent = round2(cs.Spent + o.TotalAmount)
	}
	stats.TotalRevenue = round2(stats.TotalRevenue)

	for _, cs := range spend {
		stats.TopCustomers = append(stats.TopCustomers, *cs)
	}
	sort.SliceStable(stats.TopCustomers, func(i, j int) bool {
		return stats.TopCustomers[i].Spent > stats.TopCustomers[j].Spent
	})
	if len(stats.TopCustomers) > 5 {
		stats.TopCustomers = stats.TopCustomers[:5]
	}
	return stats, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func sortOrders(orders []*Order, sortBy, sortOrder string) {
	asc := strings.EqualFold(sortOrder, "asc")
	var less func(a, b *Order) bool
	switch sortBy {
	case "totalAmount":
		less = func(a, b *Order) bool { return a.TotalAmount < b.TotalAmount }
	case "status":
		less = func(a, b *Order) bool { return a.Status < b.Status }
	default:
		// Newest first is the default presentation for order history.
		less = func(a, b *Order) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
	sort.SliceStable(orders, func(i, j int) bool {
		if asc {
			return less(orders[i], orders[j])
		}
		return less(orders[j], orders[i])
	})
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
