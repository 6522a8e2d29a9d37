// Package checkout orchestrates the order-fulfillment workflow across the
// cart, product, and order repositories. The three collections are
// independent lock domains with no cross-collection transaction, so the
// multi-step sequences here are deliberately best-effort: the order record
// is the source of truth, and per-item inventory failures are logged and
// skipped rather than rolled back.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmkandawire/shopa-backend/internal/modules/cart"
	"github.com/tmkandawire/shopa-backend/internal/modules/order"
	"github.com/tmkandawire/shopa-backend/internal/modules/product"
)

var (
	// ErrEmptyCart rejects checkout of a cart with no purchasable lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")

	// ErrOrderNotFound reports an order id that resolves to nothing.
	ErrOrderNotFound = errors.New("checkout: order not found")

	// ErrNotOwner rejects access to an order owned by a different user.
	ErrNotOwner = errors.New("checkout: order does not belong to this user")
)

// CartInvalidError rejects checkout when any cart line fails validation. No
// order is created in that case.
type CartInvalidError struct {
	Issues []cart.Issue
}

func (e *CartInvalidError) Error() string {
	reasons := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		reasons = append(reasons, fmt.Sprintf("%s: %s", issue.ProductID, issue.Reason))
	}
	return "checkout: cart failed validation: " + strings.Join(reasons, "; ")
}

// PlaceOrderRequest is the payload for creating an order from a cart.
type PlaceOrderRequest struct {
	UserID          string          `json:"userId"`
	ShippingAddress json.RawMessage `json:"shippingAddress,omitempty"`
	PaymentInfo     json.RawMessage `json:"paymentInfo,omitempty"`
}

// ItemUpdate is one line of a bulk cart update: set the product's quantity,
// removing the line when Quantity <= 0.
type ItemUpdate struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// ItemResult is one successfully applied bulk line.
type ItemResult struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// ItemError is one rejected bulk line.
type ItemError struct {
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

// BulkResult partitions a multi-item batch into applied and rejected lines.
// All-or-nothing is explicitly not the policy for batches.
type BulkResult struct {
	Successful []ItemResult `json:"successful"`
	Failed     []ItemError  `json:"failed"`
}

// Service is the order-fulfillment workflow.
type Service interface {
	// PlaceOrder creates an order from the user's cart: validate every line
	// against current inventory (failing the whole operation if any line is
	// invalid), snapshot name and price into immutable order items, persist
	// the pending order, reserve inventory per item best-effort, then clear
	// the cart.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*order.Order, error)

	// CancelOrder cancels a pending or processing order after an ownership
	// check (admins may cancel any order) and restores each item's
	// inventory best-effort.
	CancelOrder(ctx context.Context, orderID, userID string, admin bool) (*order.Order, error)

	// BulkUpdateCart applies each line independently and reports a
	// successful/failed partition instead of aborting on first error.
	BulkUpdateCart(ctx context.Context, userID string, updates []ItemUpdate) (*BulkResult, error)

	// Reorder adds a past order's items back into the user's cart, line by
	// line, with the same partition semantics as BulkUpdateCart.
	Reorder(ctx context.Context, orderID, userID string) (*BulkResult, error)
}

type service struct {
	products product.Repository
	carts    cart.Repository
	orders   order.Repository
	log      *slog.Logger
}

// NewService creates the fulfillment workflow service.
func NewService(products product.Repository, carts cart.Repository, orders order.Repository, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{products: products, carts: carts, orders: orders, log: log}
}

// lookupProduct bridges the product repository into the cart package's
// lookup callback.
func (s *service) lookupProduct(ctx context.Context, id string) (*cart.ProductInfo, error) {
	p, found, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &cart.ProductInfo{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Inventory: p.Inventory,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*order.Order, error) {
	view, err := s.carts.GetWithProducts(ctx, req.UserID, s.lookupProduct)
	if err != nil {
		return nil, err
	}
	if len(view.Items) == 0 {
		return nil, ErrEmptyCart
	}

	validation, err := s.carts.Validate(ctx, req.UserID, s.lookupProduct)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, &CartInvalidError{Issues: validation.Errors}
	}

	// Snapshot each line; product edits after this point must not alter the
	// order.
	items := make([]order.Item, 0, len(view.Items))
	var total float64
	for _, line := range view.Items {
		items = append(items, order.Item{
			ProductID:   line.ProductID,
			ProductName: line.Name,
			Price:       line.Price,
			Quantity:    line.Quantity,
		})
		total += line.Price * float64(line.Quantity)
	}

	o, err := s.orders.Create(ctx, &order.Order{
		UserID:          req.UserID,
		Items:           items,
		TotalAmount:     round2(total),
		ShippingAddress: req.ShippingAddress,
		PaymentInfo:     req.PaymentInfo,
	})
	if err != nil {
		return nil, err
	}

	// Reserve inventory per item. Each item is independent: a failure is
	// logged and skipped, it does not roll back the order or the items
	// already decremented.
	for _, item := range o.Items {
		_, found, err := s.products.AdjustInventory(ctx, item.ProductID, -item.Quantity)
		if err != nil || !found {
			s.log.Warn("inventory reservation failed, continuing",
				"orderId", o.ID,
				"productId", item.ProductID,
				"quantity", item.Quantity,
				"found", found,
				"error", err)
		}
	}

	if _, _, err := s.carts.Clear(ctx, req.UserID); err != nil {
		s.log.Warn("cart clear after checkout failed",
			"orderId", o.ID, "userId", req.UserID, "error", err)
	}
	return o, nil
}

func (s *service) CancelOrder(ctx context.Context, orderID, userID string, admin bool) (*order.Order, error) {
	o, found, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOrderNotFound
	}
	if !admin && o.UserID != userID {
		return nil, ErrNotOwner
	}

	cancelled, found, err := s.orders.Cancel(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOrderNotFound
	}

	// Restore inventory per item, best-effort, mirroring the reservation at
	// creation.
	for _, item := range cancelled.Items {
		_, found, err := s.products.AdjustInventory(ctx, item.ProductID, item.Quantity)
		if err != nil || !found {
			s.log.Warn("inventory restore failed, continuing",
				"orderId", cancelled.ID,
				"productId", item.ProductID,
				"quantity", item.Quantity,
				"found", found,
				"error", err)
		}
	}
	return cancelled, nil
}

func (s *service) BulkUpdateCart(ctx context.Context, userID string, updates []ItemUpdate) (*BulkResult, error) {
	result := &BulkResult{Successful: []ItemResult{}, Failed: []ItemError{}}
	for _, u := range updates {
		if err := s.applyCartUpdate(ctx, userID, u); err != nil {
			result.Failed = append(result.Failed, ItemError{
				ProductID: u.ProductID,
				Reason:    err.Error(),
			})
			continue
		}
		result.Successful = append(result.Successful, ItemResult{
			ProductID: u.ProductID,
			Quantity:  u.Quantity,
		})
	}
	return result, nil
}

func (s *service) applyCartUpdate(ctx context.Context, userID string, u ItemUpdate) error {
	if u.Quantity <= 0 {
		if _, _, err := s.carts.RemoveItem(ctx, userID, u.ProductID); err != nil {
			return err
		}
		return nil
	}

	p, found, err := s.products.FindByID(ctx, u.ProductID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("product %s does not exist", u.ProductID)
	}
	if p.Inventory < u.Quantity {
		return fmt.Errorf("requested quantity %d exceeds available inventory %d",
			u.Quantity, p.Inventory)
	}

	if _, found, err := s.carts.UpdateItemQuantity(ctx, userID, u.ProductID, u.Quantity); err != nil {
		return err
	} else if found {
		return nil
	}
	// No existing line for this product; add one.
	_, err = s.carts.AddItem(ctx, userID, u.ProductID, u.Quantity)
	return err
}

func (s *service) Reorder(ctx context.Context, orderID, userID string) (*BulkResult, error) {
	o, found, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOrderNotFound
	}
	if o.UserID != userID {
		return nil, ErrNotOwner
	}

	result := &BulkResult{Successful: []ItemResult{}, Failed: []ItemError{}}
	for _, item := range o.Items {
		p, found, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		switch {
		case !found:
			result.Failed = append(result.Failed, ItemError{
				ProductID: item.ProductID,
				Reason:    "product no longer exists",
			})
		case p.Inventory < item.Quantity:
			result.Failed = append(result.Failed, ItemError{
				ProductID: item.ProductID,
				Reason: fmt.Sprintf("requested quantity %d exceeds available inventory %d",
					item.Quantity, p.Inventory),
			})
		default:
			if _, err := s.carts.AddItem(ctx, userID, item.ProductID, item.Quantity); err != nil {
				result.Failed = append(result.Failed, ItemError{
					ProductID: item.ProductID,
					Reason:    err.Error(),
				})
				continue
			}
			result.Successful = append(result.Successful, ItemResult{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			})
		}
	}
	return result, nil
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
