// Package pos wires the cart, the scanner, the voice assistant and the
// backend into the state machine that runs one till.
package pos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/currency"

	"github.com/jcmexdev/pos-terminal/internal/cart"
	"github.com/jcmexdev/pos-terminal/internal/pos/saleslog"
	"github.com/jcmexdev/pos-terminal/internal/voice"
)

// State is the controller's confirmation state.
type State string

const (
	// StateIdle means no product is awaiting confirmation.
	StateIdle State = "idle"

	// StateProductPending means a scanned product is waiting for a
	// quantity before it enters the cart.
	StateProductPending State = "product_pending"
)

// ScanGate pauses and resumes the scan source while a scan is being
// processed, so one physical pass of a barcode does not queue up repeats.
// *scanner.Adapter satisfies it.
type ScanGate interface {
	Pause()
	Resume()
}

// Speaker is the slice of the voice bridge the controller needs. Nil-safe
// wrappers below let a till run with voice disabled.
type Speaker interface {
	Speak(ctx context.Context, text string)
	UpdateContext(kv map[string]any)
	ClearContext()
}

// ControllerConfig carries the tuning knobs for one till.
type ControllerConfig struct {
	// Device identifies this till in sale submissions.
	Device string

	// Currency prices the cart. Defaults to MXN.
	Currency currency.Unit

	// SettleDelay is how long the scanner stays paused after a scan has
	// been handled, so the same pass of the barcode is not re-read.
	// Defaults to 1500ms.
	SettleDelay time.Duration

	// LookupTimeout bounds each product lookup call. Defaults to 5s.
	LookupTimeout time.Duration
}

// Controller orchestrates one sale at a time on a single till.
//
// All exported methods are safe for concurrent use; a single mutex
// serialises every state transition, which also makes the wrapped Cart safe
// without its own locking.
type Controller struct {
	finder    ProductFinder
	submitter SaleSubmitter
	log       saleslog.Repository
	gate      ScanGate
	speaker   Speaker
	cfg       ControllerConfig

	mu      sync.Mutex
	state   State
	cart    *cart.Cart
	pending *cart.Product

	// ticketID is assigned when the first item enters the cart and
	// identifies the sale in the audit log.
	ticketID string

	// voiceUsed marks that at least one voice command shaped this sale.
	voiceUsed bool

	// processing guards against overlapping scans: while a lookup is in
	// flight or the result is settling, further scans are dropped.
	processing bool

	// generation invalidates in-flight lookups. Bumped whenever the sale
	// context changes under them (cancel, checkout, close); a lookup that
	// returns with a stale generation discards its result.
	generation uint64

	checkoutInFlight bool

	resumeTimer *time.Timer
	closed      bool

	onEvent func(Event)
}

// NewController builds a controller. finder, submitter and log are required;
// gate and speaker may be nil (no scanner gating, no voice).
func NewController(finder ProductFinder, submitter SaleSubmitter, log saleslog.Repository, gate ScanGate, speaker Speaker, cfg ControllerConfig) *Controller {
	if cfg.Currency == (currency.Unit{}) {
		cfg.Currency = currency.MXN
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 1500 * time.Millisecond
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 5 * time.Second
	}

	c := &Controller{
		finder:    finder,
		submitter: submitter,
		log:       log,
		gate:      gate,
		speaker:   speaker,
		cfg:       cfg,
		state:     StateIdle,
		cart:      cart.New(cfg.Currency),
	}
	c.cart.OnUpdate(func(s cart.Summary) {
		c.emit(Event{Kind: EventCartUpdated, Cart: &s})
	})
	return c
}

// OnEvent registers the single observer for controller notifications.
// Register before the controller starts handling scans. The callback runs on
// the controller's goroutines and must not call back into the controller.
func (c *Controller) OnEvent(fn func(Event)) {
	c.onEvent = fn
}

func (c *Controller) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

// HandleScan takes a debounced barcode and resolves it against the backend.
// It never blocks: the lookup runs on its own goroutine and the outcome is
// reported through events. Scans arriving while a previous one is still
// being handled are dropped; a scan accepted after the previous one settled
// replaces any product still awaiting confirmation.
func (c *Controller) HandleScan(ctx context.Context, code string) {
	c.mu.Lock()
	if c.closed || c.processing {
		c.mu.Unlock()
		slog.DebugContext(ctx, "scan dropped, previous scan still settling", "code", code)
		return
	}
	c.processing = true
	gen := c.generation
	c.mu.Unlock()

	if c.gate != nil {
		c.gate.Pause()
	}

	go c.lookup(ctx, code, gen)
}

func (c *Controller) lookup(ctx context.Context, code string, gen uint64) {
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.LookupTimeout)
	defer cancel()

	res, err := c.finder.LookupProduct(lookupCtx, code)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if gen != c.generation {
		// The sale moved on while the lookup was in flight. Drop the
		// result, but the scanner still has to come back.
		c.scheduleResumeLocked()
		c.mu.Unlock()
		return
	}

	var ev Event
	var announce string

	switch {
	case err != nil:
		slog.ErrorContext(ctx, "product lookup failed", "code", code, "error", err)
		ev = Event{Kind: EventLookupFailed, Message: "Error consultando el producto. Intenta de nuevo."}
	case !res.Found:
		msg := res.Message
		if msg == "" {
			msg = fmt.Sprintf("Producto no encontrado para el código %s.", code)
		}
		ev = Event{Kind: EventProductNotFound, Message: msg, Candidates: res.Candidates}
		announce = "Producto no encontrado."
		if res.Multiple {
			announce = "Encontré varios productos parecidos. Elige uno en pantalla."
		}
	default:
		c.pending = res.Product
		c.state = StateProductPending
		ev = Event{
			Kind:    EventProductPending,
			Message: res.Warning,
			Product: res.Product,
		}
		announce = fmt.Sprintf("Encontré %s. Cuesta %s pesos. ¿Cuántas unidades?",
			res.Product.Name, res.Product.Price.StringFixed())
		c.updateVoiceContextLocked()
	}

	c.scheduleResumeLocked()
	c.mu.Unlock()

	c.emit(ev)
	if announce != "" && c.speaker != nil {
		c.speaker.Speak(ctx, announce)
	}
}

// scheduleResumeLocked clears the processing guard and resumes the scanner
// after the settle delay. Caller holds c.mu.
func (c *Controller) scheduleResumeLocked() {
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
	}
	c.resumeTimer = time.AfterFunc(c.cfg.SettleDelay, func() {
		c.mu.Lock()
		c.processing = false
		closed := c.closed
		c.mu.Unlock()
		if !closed && c.gate != nil {
			c.gate.Resume()
		}
	})
}

// ConfirmAdd moves the pending product into the cart with the given
// quantity. Quantities outside 1..stock are rejected before anything reaches
// the backend.
func (c *Controller) ConfirmAdd(ctx context.Context, quantity int) error {
	c.mu.Lock()

	if c.state != StateProductPending || c.pending == nil {
		c.mu.Unlock()
		return ErrNoPendingProduct
	}
	if quantity <= 0 || quantity > c.pending.Stock {
		c.mu.Unlock()
		return ErrQuantityOutOfRange
	}

	product := *c.pending

	if c.ticketID == "" {
		c.ticketID = uuid.NewString()
		c.saveLog(ctx, saleslog.StatusOpened, map[string]any{"dispositivo": c.cfg.Device}, "")
	}

	total, err := c.cart.AddItem(product, quantity)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.pending = nil
	c.state = StateIdle

	c.saveLog(ctx, saleslog.StatusItemAdded, map[string]any{
		"producto_id": product.ID,
		"nombre":      product.Name,
		"cantidad":    quantity,
	}, "")
	c.updateVoiceContextLocked()
	c.mu.Unlock()

	if c.speaker != nil {
		c.speaker.Speak(ctx, fmt.Sprintf("Agregado. %d por %s. Van %s pesos.",
			quantity, product.Name, total.StringFixed()))
	}
	return nil
}

// CancelPending discards the product awaiting confirmation without touching
// the cart. No-op when nothing is pending.
func (c *Controller) CancelPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateProductPending {
		return
	}
	c.pending = nil
	c.state = StateIdle
	c.updateVoiceContextLocked()
}

// RemoveLast drops the most recently added line item.
func (c *Controller) RemoveLast(ctx context.Context) {
	c.mu.Lock()
	removed := c.cart.RemoveLastItem()
	if removed != nil {
		c.saveLog(ctx, saleslog.StatusItemRemoved, map[string]any{
			"producto_id": removed.ProductID,
			"nombre":      removed.Name,
		}, "")
		c.updateVoiceContextLocked()
	}
	c.mu.Unlock()

	if removed != nil && c.speaker != nil {
		c.speaker.Speak(ctx, fmt.Sprintf("Eliminé %s del carrito.", removed.Name))
	}
}

// CancelSale discards the whole sale in progress: pending product, cart and
// ticket. In-flight lookups are invalidated.
func (c *Controller) CancelSale(ctx context.Context) {
	c.mu.Lock()
	hadTicket := c.ticketID != ""
	if hadTicket {
		c.saveLog(ctx, saleslog.StatusCancelled, nil, "")
	}
	c.resetSaleLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventSaleCancelled, Message: "Venta cancelada."})
	if hadTicket && c.speaker != nil {
		c.speaker.Speak(ctx, "Venta cancelada.")
	}
}

// Checkout settles the sale with the backend. The cart is cleared only after
// the backend accepted the sale; on any failure it is preserved so the
// cashier can correct and retry. A second Checkout while one is in flight
// returns ErrCheckoutInFlight.
func (c *Controller) Checkout(ctx context.Context) (SaleReceipt, error) {
	c.mu.Lock()
	if c.checkoutInFlight {
		c.mu.Unlock()
		return SaleReceipt{}, ErrCheckoutInFlight
	}
	if c.cart.IsEmpty() {
		c.mu.Unlock()
		return SaleReceipt{}, ErrEmptyCart
	}

	c.checkoutInFlight = true
	req := SaleRequest{
		Items:     c.cart.PrepareForCheckout(),
		VoiceUsed: c.voiceUsed,
		Device:    c.cfg.Device,
	}
	c.saveLog(ctx, saleslog.StatusCheckoutStarted, map[string]any{
		"items":   req.Items,
		"usa_voz": req.VoiceUsed,
		"total":   c.cart.Total().StringFixed(),
	}, "")
	c.mu.Unlock()

	receipt, err := c.submitter.SubmitSale(ctx, req)

	c.mu.Lock()
	c.checkoutInFlight = false
	if err != nil {
		msg := "Error al registrar la venta."
		var rejected *SaleRejectedError
		if errors.As(err, &rejected) {
			msg = rejected.Message
		}
		c.saveLog(ctx, saleslog.StatusFailed, nil, err.Error())
		c.mu.Unlock()

		c.emit(Event{Kind: EventSaleFailed, Message: msg})
		if c.speaker != nil {
			c.speaker.Speak(ctx, msg)
		}
		return SaleReceipt{}, err
	}

	c.saveLog(ctx, saleslog.StatusCompleted, map[string]any{
		"venta_id": receipt.SaleID,
		"total":    receipt.Total.StringFixed(),
	}, "")
	c.resetSaleLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventSaleCompleted, Message: receipt.Message, Receipt: &receipt})
	if c.speaker != nil {
		c.speaker.Speak(ctx, fmt.Sprintf("Venta registrada. Total: %s pesos.", receipt.Total.StringFixed()))
	}
	return receipt, nil
}

// DispatchCommand applies an interpreted voice command to the sale. The
// spoken reply is handled by the bridge; this only performs the state
// changes. Unknown or clarification actions are no-ops.
func (c *Controller) DispatchCommand(ctx context.Context, cmd voice.Command) error {
	c.mu.Lock()
	c.voiceUsed = true
	c.mu.Unlock()

	switch cmd.Action {
	case voice.ActionAddQuantity:
		return c.ConfirmAdd(ctx, cmd.Quantity)
	case voice.ActionConfirmSale:
		if !cmd.Confirmation {
			return nil
		}
		_, err := c.Checkout(ctx)
		return err
	case voice.ActionCancelSale:
		c.CancelSale(ctx)
		return nil
	case voice.ActionRemoveLast:
		c.RemoveLast(ctx)
		return nil
	case voice.ActionQueryTotal:
		// The interpreter's reply already carries the total.
		return nil
	default:
		return nil
	}
}

// Snapshot is the controller state exposed to the UI.
type Snapshot struct {
	State    State
	Pending  *cart.Product
	Cart     cart.Summary
	TicketID string
}

// StateSnapshot returns a consistent view of the sale in progress.
func (c *Controller) StateSnapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:    c.state,
		Cart:     c.cart.Summary(),
		TicketID: c.ticketID,
	}
	if c.pending != nil {
		p := *c.pending
		snap.Pending = &p
	}
	return snap
}

// CartSummary returns the current cart contents.
func (c *Controller) CartSummary() cart.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cart.Summary()
}

// Close invalidates in-flight lookups and stops pending timers. The
// controller must not be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.generation++
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}
}

// resetSaleLocked clears all per-sale state. Caller holds c.mu.
func (c *Controller) resetSaleLocked() {
	c.cart.Clear()
	c.pending = nil
	c.state = StateIdle
	c.ticketID = ""
	c.voiceUsed = false
	c.generation++
	if c.speaker != nil {
		c.speaker.ClearContext()
	}
}

// updateVoiceContextLocked mirrors the sale state into the voice
// conversation context so the interpreter can answer questions like "what is
// the total". Caller holds c.mu.
func (c *Controller) updateVoiceContextLocked() {
	if c.speaker == nil {
		return
	}
	kv := map[string]any{
		voice.CtxPartialTotal: c.cart.Total().StringFixed(),
		voice.CtxItemCount:    c.cart.ItemCount(),
	}
	if c.pending != nil {
		kv[voice.CtxCurrentProduct] = c.pending.Name
		kv[voice.CtxCurrentPrice] = c.pending.Price.StringFixed()
	} else {
		kv[voice.CtxCurrentProduct] = ""
		kv[voice.CtxCurrentPrice] = ""
	}
	c.speaker.UpdateContext(kv)
}

// saveLog appends an audit entry, logging but not propagating persistence
// errors: a broken audit log must not block a sale. Caller holds c.mu.
func (c *Controller) saveLog(ctx context.Context, status saleslog.Status, detail any, errMsg string) {
	if c.log == nil || c.ticketID == "" {
		return
	}
	entry := saleslog.NewEntry(ctx, c.ticketID, status, detail, errMsg)
	if err := c.log.Save(context.WithoutCancel(ctx), entry); err != nil {
		slog.ErrorContext(ctx, "failed to persist sale log entry",
			"ticket_id", c.ticketID, "status", status, "error", err)
	}
}
