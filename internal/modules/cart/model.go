package cart

import (
	"context"
	"time"

	"github.com/tmkandawire/shopa-backend/internal/repository"
)

// Cart holds one user's shopping cart. There is exactly one cart per user
// and at most one line per product; adding an already-present product merges
// quantities instead of appending a second line.
type Cart struct {
	repository.Meta
	UserID string `json:"userId"`
	Items  []Item `json:"items"`
}

// Item is one cart line.
type Item struct {
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
}

// ProductInfo is the slice of product state cart operations need. Keeping it
// local to this package means the cart repository never imports the product
// repository; callers bridge the two with a ProductLookup.
type ProductInfo struct {
	ID        string
	Name      string
	Price     float64
	Inventory int
}

// ProductLookup resolves a product id to its current state. A (nil, nil)
// return means the product no longer exists.
type ProductLookup func(ctx context.Context, productID string) (*ProductInfo, error)

// LineView is one cart line joined with live product data.
type LineView struct {
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	LineTotal float64   `json:"lineTotal"`
	Inventory int       `json:"inventory"`
	AddedAt   time.Time `json:"addedAt"`
}

// View is a cart joined with live product data.
type View struct {
	CartID    string     `json:"cartId"`
	UserID    string     `json:"userId"`
	Items     []LineView `json:"items"`
	Total     float64    `json:"total"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Issue flags one invalid cart line.
type Issue struct {
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

// Validation is the result of checking a cart against current product state.
// It never mutates anything.
type Validation struct {
	Valid      bool    `json:"valid"`
	Errors     []Issue `json:"errors"`
	ValidItems []Item  `json:"validItems"`
}
