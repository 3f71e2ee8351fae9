// Package cart holds the in-memory cart for the sale in progress.
//
// A Cart is owned exclusively by the point-of-sale controller for the
// duration of one sale and is not safe for concurrent use by itself; the
// controller serialises access.
package cart

import (
	"errors"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	ErrInvalidQuantity  = errors.New("cart: quantity must be a positive integer")
	ErrIndexOutOfRange  = errors.New("cart: item index out of range")
	ErrCurrencyMismatch = errors.New("cart: product currency does not match cart currency")
)

// Product is the catalog data a barcode resolves to.
type Product struct {
	ID      int64
	Name    string
	Price   Money
	Stock   int
	Barcode string
}

// LineItem is one product entry in the cart with an aggregated quantity.
type LineItem struct {
	ProductID int64
	Name      string
	UnitPrice Money
	Quantity  int
	Barcode   string
}

// Subtotal is the line total: unit price times quantity.
func (i LineItem) Subtotal() Money {
	return i.UnitPrice.Mul(i.Quantity)
}

// CheckoutItem is the minimal projection sent to the sale endpoint. Prices
// are deliberately absent: the backend is the source of truth at settlement.
type CheckoutItem struct {
	ProductID int64 `json:"producto_id"`
	Quantity  int   `json:"cantidad"`
}

// Summary is the snapshot handed to the update observer after every mutation.
type Summary struct {
	Items     []LineItem
	Subtotal  Money
	Total     Money
	ItemCount int
}

// Cart is an ordered collection of line items. Insertion order is display
// order. At most one LineItem exists per product ID; repeated additions
// accumulate quantity.
type Cart struct {
	unit     currency.Unit
	items    []LineItem
	onUpdate func(Summary)
}

// New returns an empty cart priced in the given currency.
func New(unit currency.Unit) *Cart {
	return &Cart{unit: unit}
}

// OnUpdate registers the single observer notified after every mutation.
func (c *Cart) OnUpdate(fn func(Summary)) {
	c.onUpdate = fn
}

// AddItem adds quantity units of the product, accumulating onto an existing
// line item when the product is already present. Stock limits are enforced by
// the caller. Returns the new cart total.
func (c *Cart) AddItem(p Product, quantity int) (Money, error) {
	if quantity <= 0 {
		return Money{}, ErrInvalidQuantity
	}
	if p.Price.Currency != c.unit {
		return Money{}, ErrCurrencyMismatch
	}

	found := false
	for idx := range c.items {
		if c.items[idx].ProductID == p.ID {
			c.items[idx].Quantity += quantity
			found = true
			break
		}
	}
	if !found {
		c.items = append(c.items, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  quantity,
			Barcode:   p.Barcode,
		})
	}

	c.notifyUpdate()
	return c.Total(), nil
}

// RemoveItem removes the line item at the given position.
func (c *Cart) RemoveItem(index int) error {
	if index < 0 || index >= len(c.items) {
		return ErrIndexOutOfRange
	}
	c.items = append(c.items[:index], c.items[index+1:]...)
	c.notifyUpdate()
	return nil
}

// RemoveLastItem pops the most recently added line item.
// Returns nil on an empty cart.
func (c *Cart) RemoveLastItem() *LineItem {
	if len(c.items) == 0 {
		return nil
	}
	last := c.items[len(c.items)-1]
	c.items = c.items[:len(c.items)-1]
	c.notifyUpdate()
	return &last
}

// UpdateQuantity replaces the quantity of the line item at index.
func (c *Cart) UpdateQuantity(index, quantity int) error {
	if index < 0 || index >= len(c.items) {
		return ErrIndexOutOfRange
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	c.items[index].Quantity = quantity
	c.notifyUpdate()
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.items = nil
	c.notifyUpdate()
}

// Items returns a copy of the line items in insertion order.
func (c *Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Subtotal is the sum of all line subtotals.
func (c *Cart) Subtotal() Money {
	sum := Money{Amount: decimal.Zero, Currency: c.unit}
	for _, it := range c.items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}

// Total equals the subtotal for now; taxes and discounts would hook in here.
func (c *Cart) Total() Money {
	return c.Subtotal()
}

// ItemCount is the total number of units across all line items.
func (c *Cart) ItemCount() int {
	count := 0
	for _, it := range c.items {
		count += it.Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no line items.
func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// Len is the number of distinct line items.
func (c *Cart) Len() int {
	return len(c.items)
}

// PrepareForCheckout builds the ordered payload for the sale endpoint.
func (c *Cart) PrepareForCheckout() []CheckoutItem {
	out := make([]CheckoutItem, len(c.items))
	for i, it := range c.items {
		out[i] = CheckoutItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}

// Summary builds the observer snapshot for the current state.
func (c *Cart) Summary() Summary {
	return Summary{
		Items:     c.Items(),
		Subtotal:  c.Subtotal(),
		Total:     c.Total(),
		ItemCount: c.ItemCount(),
	}
}

func (c *Cart) notifyUpdate() {
	if c.onUpdate != nil {
		c.onUpdate(c.Summary())
	}
}
