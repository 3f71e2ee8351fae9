package pos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jcmexdev/pos-terminal/internal/cart"
)

var (
	// ErrEmptyCart means checkout was requested with nothing to sell; the
	// sale endpoint is never called in that case.
	ErrEmptyCart = errors.New("pos: cart is empty")

	// ErrNoPendingProduct means a quantity confirmation arrived outside the
	// ProductPending state.
	ErrNoPendingProduct = errors.New("pos: no product pending confirmation")

	// ErrQuantityOutOfRange rejects quantities that are not positive or
	// exceed the pending product's stock. Never sent to the backend.
	ErrQuantityOutOfRange = errors.New("pos: quantity must be positive and within stock")

	// ErrCheckoutInFlight guards against a double-submitted checkout.
	ErrCheckoutInFlight = errors.New("pos: checkout already in progress")
)

// SaleRejectedError is a business rejection from the sale endpoint (for
// example insufficient stock). The cart is preserved so the sale can be
// corrected and retried.
type SaleRejectedError struct {
	Message string
}

func (e *SaleRejectedError) Error() string {
	return fmt.Sprintf("pos: sale rejected: %s", e.Message)
}

// LookupResult is the outcome of resolving a scanned code.
type LookupResult struct {
	Found   bool
	Product *cart.Product

	// Warning is set when the match was fuzzy (for example only the last
	// digits of a badly read EAN-13 matched).
	Warning string

	// Multiple means the code matched several products; Candidates lists
	// them for the cashier to pick from. Found is false in that case.
	Multiple   bool
	Candidates []cart.Product

	// Message carries the backend's explanation when nothing was found.
	Message string
}

// ProductFinder resolves a barcode to product data.
type ProductFinder interface {
	LookupProduct(ctx context.Context, code string) (LookupResult, error)
}

// SaleRequest is what checkout sends to the sale endpoint.
type SaleRequest struct {
	Items     []cart.CheckoutItem
	VoiceUsed bool
	Device    string
}

// SaleReceipt is a settled sale as reported by the backend.
type SaleReceipt struct {
	SaleID  int64
	Total   cart.Money
	Message string
}

// SaleSubmitter settles a sale with the backend.
type SaleSubmitter interface {
	SubmitSale(ctx context.Context, sale SaleRequest) (SaleReceipt, error)
}
