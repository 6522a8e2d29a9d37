package product

import (
	"fmt"

	"github.com/tmkandawire/shopa-backend/internal/repository"
)

// Product is a catalog item sold by the shop. Inventory is a unit count and
// is never negative; the floor is enforced at the point of decrement.
type Product struct {
	repository.Meta
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	Inventory   int     `json:"inventory"`
}

// LowInventoryThreshold is the unit count at or below which a stocked
// product counts as low in listings and stats.
const LowInventoryThreshold = 10

// InsufficientInventoryError is returned when a reservation would drive a
// product's inventory negative. No write happens in that case.
type InsufficientInventoryError struct {
	ProductID string
	Have      int
	Requested int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for product %s: have %d, requested %d",
		e.ProductID, e.Have, e.Requested)
}
