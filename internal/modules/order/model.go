package order

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmkandawire/shopa-backend/internal/repository"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// validTransitions defines the allowed status state machine: forward-only
// through the fulfillment chain, with cancellation possible from pending and
// processing. Delivered and cancelled are terminal.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// Known reports whether s is one of the five order statuses.
func (s Status) Known() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo reports whether the state machine allows moving from s to
// next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is a customer's placed order. Items, totalAmount, and the address
// and payment blobs are fixed at creation; only Status and StatusUpdatedAt
// change afterwards.
type Order struct {
	repository.Meta
	UserID          string          `json:"userId"`
	Items           []Item          `json:"items"`
	TotalAmount     float64         `json:"totalAmount"`
	Status          Status          `json:"status"`
	ShippingAddress json.RawMessage `json:"shippingAddress,omitempty"`
	PaymentInfo     json.RawMessage `json:"paymentInfo,omitempty"`
	StatusUpdatedAt time.Time       `json:"statusUpdatedAt"`
}

// Item is an immutable snapshot of one ordered product. Name and price are
// copied at creation time, so later product edits never alter historical
// orders.
type Item struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

// InvalidTransitionError rejects a status change the state machine does not
// allow, including unknown status values. No state is changed.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	if !e.To.Known() {
		return fmt.Sprintf("unknown order status %q", string(e.To))
	}
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}
