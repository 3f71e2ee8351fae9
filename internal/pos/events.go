package pos

import "github.com/jcmexdev/pos-terminal/internal/cart"

// EventKind classifies controller notifications.
type EventKind string

const (
	// EventProductPending fires when a scanned code resolved to a product
	// now awaiting quantity confirmation.
	EventProductPending EventKind = "product_pending"

	// EventProductNotFound fires when a scan did not resolve to a product.
	EventProductNotFound EventKind = "product_not_found"

	// EventLookupFailed fires when the lookup call itself failed.
	EventLookupFailed EventKind = "lookup_failed"

	// EventCartUpdated fires after every cart mutation.
	EventCartUpdated EventKind = "cart_updated"

	// EventSaleCompleted fires after the backend settled the sale.
	EventSaleCompleted EventKind = "sale_completed"

	// EventSaleFailed fires when the sale submission failed; the cart is
	// left untouched.
	EventSaleFailed EventKind = "sale_failed"

	// EventSaleCancelled fires when the sale in progress was discarded.
	EventSaleCancelled EventKind = "sale_cancelled"
)

// Event is the single typed notification the controller emits. Fields other
// than Kind and Message are set only where they make sense.
type Event struct {
	Kind    EventKind
	Message string
	Product *cart.Product

	// Candidates accompanies EventProductNotFound when the code matched
	// several products and the cashier has to pick one.
	Candidates []cart.Product

	Cart    *cart.Summary
	Receipt *SaleReceipt
}
