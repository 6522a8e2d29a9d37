package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmkandawire/shopa-backend/internal/repository"
	"github.com/tmkandawire/shopa-backend/internal/store"
)

// Repository defines cart data access.
type Repository interface {
	// GetOrCreate returns the user's cart, inserting an empty one if none
	// exists. The read and the conditional insert are two separate store
	// operations, not one atomic step.
	GetOrCreate(ctx context.Context, userID string) (*Cart, error)

	// AddItem merges qty into an existing line for productID or appends a
	// new line stamped with the current time.
	AddItem(ctx context.Context, userID, productID string, qty int) (*Cart, error)

	// UpdateItemQuantity overwrites a line's quantity; qty <= 0 removes the
	// line. A missing cart or line is reported as (nil, false, nil).
	UpdateItemQuantity(ctx context.Context, userID, productID string, qty int) (*Cart, bool, error)

	RemoveItem(ctx context.Context, userID, productID string) (*Cart, bool, error)
	Clear(ctx context.Context, userID string) (*Cart, bool, error)

	// GetWithProducts joins each line with its current product. Lines whose
	// product no longer exists are removed from the persisted cart, not
	// merely filtered from the response.
	GetWithProducts(ctx context.Context, userID string, lookup ProductLookup) (*View, error)

	// Validate flags vanished products and quantities exceeding current
	// inventory without mutating anything.
	Validate(ctx context.Context, userID string, lookup ProductLookup) (*Validation, error)

	// Abandoned returns non-empty carts untouched for at least the given
	// number of days.
	Abandoned(ctx context.Context, days int) ([]*Cart, error)
}

// errLineMissing aborts a mutation that targets a line the cart does not
// have. It never escapes this package; callers see found=false.
var errLineMissing = errors.New("cart: line not found")

type collectionRepo struct {
	*repository.Repository[*Cart]
}

// NewRepository creates a cart repository over col.
func NewRepository(col store.Collection, cacheTTL time.Duration) Repository {
	return &collectionRepo{
		repository.New(col, cacheTTL, func() *Cart { return &Cart{} }),
	}
}

func (r *collectionRepo) findByUser(ctx context.Context, userID string) (*Cart, bool, error) {
	return r.FindOne(ctx, func(c *Cart) bool { return c.UserID == userID })
}

func (r *collectionRepo) GetOrCreate(ctx context.Context, userID string) (*Cart, error) {
	c, found, err := r.findByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if found {
		return c, nil
	}
	return r.Create(ctx, &Cart{UserID: userID, Items: []Item{}})
}

func (r *collectionRepo) AddItem(ctx context.Context, userID, productID string, qty int) (*Cart, error) {
	if qty < 1 {
		return nil, fmt.Errorf("cart: quantity must be at least 1, got %d", qty)
	}
	c, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	updated, _, err := r.Update(ctx, c.ID, func(c *Cart) error {
		for i := range c.Items {
			if c.Items[i].ProductID == productID {
				c.Items[i].Quantity += qty
				return nil
			}
		}
		c.Items = append(c.Items, Item{
			ProductID: productID,
			Quantity:  qty,
			AddedAt:   time.Now().UTC(),
		})
		return nil
	})
	return updated, err
}

func (r *collectionRepo) UpdateItemQuantity(ctx context.Context, userID, productID string, qty int) (*Cart, bool, error) {
	c, found, err := r.findByUser(ctx, userID)
	if err != nil || !found {
		return nil, false, err
	}
	updated, found, err := r.Update(ctx, c.ID, func(c *Cart) error {
		for i := range c.Items {
			if c.Items[i].ProductID != productID {
				continue
			}
			if qty <= 0 {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
			} else {
				c.Items[i].Quantity = qty
			}
			return nil
		}
		return errLineMissing
	})
	if errors.Is(err, errLineMissing) {
		return nil, false, nil
	}
	return updated, found, err
}

func (r *collectionRepo) RemoveItem(ctx context.Context, userID, productID string) (*Cart, bool, error) {
	c, found, err := r.findByUser(ctx, userID)
	if err != nil || !found {
		return nil, false, err
	}
	return r.Update(ctx, c.ID, func(c *Cart) error {
		kept := c.Items[:0]
		for _, item := range c.Items {
			if item.ProductID != productID {
				kept = append(kept, item)
			}
		}
		c.Items = kept
		return nil
	})
}

func (r *collectionRepo) Clear(ctx context.Context, userID string) (*Cart, bool, error) {
	c, found, err := r.findByUser(ctx, userID)
	if err != nil || !found {
		return nil, false, err
	}
	return r.Update(ctx, c.ID, func(c *Cart) error {
		c.Items = []Item{}
		return nil
	})
}

func (r *collectionRepo) GetWithProducts(ctx context.Context, userID string, lookup ProductLookup) (*View, error) {
	c, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	products := make(map[string]*ProductInfo, len(c.Items))
	vanished := make(map[string]bool)
	for _, item := range c.Items {
		p, err := lookup(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			vanished[item.ProductID] = true
			continue
		}
		products[item.ProductID] = p
	}

	// Self-healing: lines pointing at deleted products are dropped from the
	// cart itself, so the next read starts clean.
	if len(vanished) > 0 {
		healed, found, err := r.Update(ctx, c.ID, func(c *Cart) error {
			kept := c.Items[:0]
			for _, item := range c.Items {
				if !vanished[item.ProductID] {
					kept = append(kept, item)
				}
			}
			c.Items = kept
			return nil
		})
		if err != nil {
			return nil, err
		}
		if found {
			c = healed
		}
	}

	view := &View{
		CartID:    c.ID,
		UserID:    c.UserID,
		Items:     make([]LineView, 0, len(c.Items)),
		UpdatedAt: c.UpdatedAt,
	}
	for _, item := range c.Items {
		p, ok := products[item.ProductID]
		if !ok {
			continue
		}
		line := LineView{
			ProductID: item.ProductID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  item.Quantity,
			LineTotal: round2(p.Price * float64(item.Quantity)),
			Inventory: p.Inventory,
			AddedAt:   item.AddedAt,
		}
		view.Items = append(view.Items, line)
		view.Total += line.LineTotal
	}
	view.Total = round2(view.Total)
	return view, nil
}

func (r *collectionRepo) Validate(ctx context.Context, userID string, lookup ProductLookup) (*Validation, error) {
	c, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	v := &Validation{Valid: true, Errors: []Issue{}, ValidItems: []Item{}}
	for _, item := range c.Items {
		p, err := lookup(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		switch {
		case p == nil:
			v.Valid = false
			v.Errors = append(v.Errors, Issue{
				ProductID: item.ProductID,
				Reason:    "product no longer exists",
			})
		case item.Quantity > p.Inventory:
			v.Valid = false
			v.Errors = append(v.Errors, Issue{
				ProductID: item.ProductID,
				Reason: fmt.Sprintf("requested quantity %d exceeds available inventory %d",
					item.Quantity, p.Inventory),
			})
		default:
			v.ValidItems = append(v.ValidItems, item)
		}
	}
	return v, nil
}

func (r *collectionRepo) Abandoned(ctx context.Context, days int) ([]*Cart, error) {
	if days < 1 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return r.FindWhere(ctx, func(c *Cart) bool {
		return len(c.Items) > 0 && c.UpdatedAt.Before(cutoff)
	})
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
