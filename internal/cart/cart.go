// Package cart holds the buyer's cart. A non-empty cart only ever contains
// items of a single payment style.
package cart

import (
	"errors"
	"fmt"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxAmount is the largest amount, in minor units, a single price or a single
// checkout session may carry. MaxQuantity bounds one cart line.
const (
	MaxAmount   = 99_999_999
	MaxQuantity = 10_000
)

var (
	ErrMixedPaymentStyle = errors.New("cart: items must share one payment style")
	ErrEmpty             = errors.New("cart: no items")
	ErrInvalidItem       = errors.New("cart: invalid item")
	ErrAmountTooLarge    = errors.New("cart: amount too large")
)

type Item struct {
	ProductID    uuid.UUID           `json:"product_id"`
	SellerID     string              `json:"seller_id"`
	PriceID      uuid.UUID           `json:"price_id"`
	PaymentStyle models.PaymentStyle `json:"payment_style"`
	UnitPrice    int64               `json:"unit_price"`
	Currency     string              `json:"currency"`
	Quantity     int                 `json:"quantity"`
	Name         string              `json:"name"`
	Image        string              `json:"image"`
}

func (it Item) validate() error {
	switch {
	case it.ProductID == uuid.Nil || it.PriceID == uuid.Nil:
		return fmt.Errorf("%w: product and price are required", ErrInvalidItem)
	case it.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidItem)
	case it.Quantity > MaxQuantity:
		return fmt.Errorf("%w: quantity must be at most %d", ErrInvalidItem, MaxQuantity)
	case it.UnitPrice <= 0 || it.UnitPrice > MaxAmount:
		return fmt.Errorf("%w: unit price must be between 1 and %d", ErrInvalidItem, MaxAmount)
	case !it.PaymentStyle.Valid():
		return fmt.Errorf("%w: unknown payment style %q", ErrInvalidItem, it.PaymentStyle)
	}
	return nil
}

// Total is the line amount, refused when it exceeds MaxAmount.
func (it Item) Total() (int64, error) {
	return LineTotal(it.UnitPrice, it.Quantity)
}

// LineTotal multiplies in decimal so that oversized inputs are reported
// instead of wrapping.
func LineTotal(unit int64, qty int) (int64, error) {
	return bounded(decimal.NewFromInt(unit).Mul(decimal.NewFromInt(int64(qty))))
}

func bounded(total decimal.Decimal) (int64, error) {
	if total.GreaterThan(decimal.NewFromInt(MaxAmount)) {
		return 0, fmt.Errorf("%w: %s exceeds %d", ErrAmountTooLarge, total, MaxAmount)
	}
	return total.IntPart(), nil
}

type Cart struct {
	items []Item
}

// New builds a cart by adding items in order; the first rejected item fails
// the whole cart.
func New(items ...Item) (*Cart, error) {
	c := &Cart{}
	for _, it := range items {
		if err := c.Add(it); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add appends the item, or bumps the quantity of the line with the same
// price. Mixing payment styles is refused and leaves the cart unchanged.
func (c *Cart) Add(it Item) error {
	if err := it.validate(); err != nil {
		return err
	}
	if len(c.items) > 0 && c.items[0].PaymentStyle != it.PaymentStyle {
		return ErrMixedPaymentStyle
	}
	for i := range c.items {
		if c.items[i].PriceID == it.PriceID {
			if c.items[i].Quantity+it.Quantity > MaxQuantity {
				return fmt.Errorf("%w: quantity must be at most %d", ErrInvalidItem, MaxQuantity)
			}
			c.items[i].Quantity += it.Quantity
			return nil
		}
	}
	c.items = append(c.items, it)
	return nil
}

func (c *Cart) Remove(priceID uuid.UUID) {
	for i := range c.items {
		if c.items[i].PriceID == priceID {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// SetQuantity removes the line when qty drops to zero or below.
func (c *Cart) SetQuantity(priceID uuid.UUID, qty int) error {
	if qty <= 0 {
		c.Remove(priceID)
		return nil
	}
	if qty > MaxQuantity {
		return fmt.Errorf("%w: quantity must be at most %d", ErrInvalidItem, MaxQuantity)
	}
	for i := range c.items {
		if c.items[i].PriceID == priceID {
			c.items[i].Quantity = qty
			return nil
		}
	}
	return nil
}

// Style is empty for an empty cart.
func (c *Cart) Style() models.PaymentStyle {
	if len(c.items) == 0 {
		return ""
	}
	return c.items[0].PaymentStyle
}

func (c *Cart) Items() []Item {
	return append([]Item(nil), c.items...)
}

func (c *Cart) Len() int { return len(c.items) }

// SellerGroup is the slice of a cart sold by one seller.
type SellerGroup struct {
	SellerID string
	Items    []Item
}

// Subtotal is what one checkout session for the group would charge. It fails
// with ErrAmountTooLarge above MaxAmount.
func (g SellerGroup) Subtotal() (int64, error) {
	total := decimal.Zero
	for _, it := range g.Items {
		total = total.Add(decimal.NewFromInt(it.UnitPrice).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return bounded(total)
}

// BySeller partitions the cart by seller in order of first appearance.
func (c *Cart) BySeller() []SellerGroup {
	idx := map[string]int{}
	var groups []SellerGroup
	for _, it := range c.items {
		i, ok := idx[it.SellerID]
		if !ok {
			i = len(groups)
			idx[it.SellerID] = i
			groups = append(groups, SellerGroup{SellerID: it.SellerID})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}

func (c *Cart) Subtotal() (int64, error) {
	var total int64
	for _, g := range c.BySeller() {
		sub, err := g.Subtotal()
		if err != nil {
			return 0, fmt.Errorf("seller %s: %w", g.SellerID, err)
		}
		total += sub
	}
	return total, nil
}
