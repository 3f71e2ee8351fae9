package cart

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is an amount in a specific currency. Prices come from the backend as
// decimal strings; float arithmetic is never used for them.
type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

// NewMoney builds a Money value from a decimal amount.
func NewMoney(amount decimal.Decimal, unit currency.Unit) Money {
	return Money{Amount: amount, Currency: unit}
}

// Mul multiplies the amount by an integer quantity.
func (m Money) Mul(quantity int) Money {
	return Money{
		Amount:   m.Amount.Mul(decimal.NewFromInt(int64(quantity))),
		Currency: m.Currency,
	}
}

// Add sums two amounts. The cart guarantees both operands share a currency;
// see Cart.AddItem.
func (m Money) Add(other Money) Money {
	return Money{
		Amount:   m.Amount.Add(other.Amount),
		Currency: m.Currency,
	}
}

// StringFixed renders the amount with two decimal places, the way receipts
// and spoken totals present it.
func (m Money) StringFixed() string {
	return m.Amount.StringFixed(2)
}
