package pos

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"

	"github.com/jcmexdev/pos-terminal/internal/cart"
	"github.com/jcmexdev/pos-terminal/internal/pos/saleslog"
	"github.com/jcmexdev/pos-terminal/internal/voice"
)

func mxn(s string) cart.Money {
	return cart.NewMoney(decimal.RequireFromString(s), currency.MXN)
}

func sampleProduct() *cart.Product {
	return &cart.Product{
		ID:      42,
		Name:    "Coca Cola 600ml",
		Price:   mxn("18.50"),
		Stock:   10,
		Barcode: "7501055300891",
	}
}

type fakeFinder struct {
	mu     sync.Mutex
	delay  time.Duration
	result LookupResult
	err    error
	calls  atomic.Int32
}

func (f *fakeFinder) LookupProduct(ctx context.Context, code string) (LookupResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return LookupResult{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

type fakeSubmitter struct {
	mu      sync.Mutex
	receipt SaleReceipt
	err     error
	block   chan struct{}
	last    SaleRequest
	calls   atomic.Int32
}

func (f *fakeSubmitter) SubmitSale(ctx context.Context, sale SaleRequest) (SaleReceipt, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = sale
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipt, f.err
}

type memLog struct {
	mu      sync.Mutex
	entries []saleslog.Entry
}

func (m *memLog) Save(_ context.Context, e *saleslog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memLog) History(_ context.Context, ticketID string) ([]saleslog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []saleslog.Entry
	for _, e := range m.entries {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memLog) statuses() []saleslog.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]saleslog.Status, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Status
	}
	return out
}

type fakeGate struct {
	pauses  atomic.Int32
	resumes atomic.Int32
}

func (g *fakeGate) Pause()  { g.pauses.Add(1) }
func (g *fakeGate) Resume() { g.resumes.Add(1) }

type fakeSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	context map[string]any
	cleared int
}

func (s *fakeSpeaker) Speak(_ context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
}

func (s *fakeSpeaker) UpdateContext(kv map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.context == nil {
		s.context = make(map[string]any)
	}
	for k, v := range kv {
		s.context[k] = v
	}
}

func (s *fakeSpeaker) ClearContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = nil
	s.cleared++
}

type harness struct {
	ctrl      *Controller
	finder    *fakeFinder
	submitter *fakeSubmitter
	log       *memLog
	gate      *fakeGate
	speaker   *fakeSpeaker
	events    chan Event
}

func newHarness(t *testing.T, tweak func(*ControllerConfig)) *harness {
	t.Helper()

	h := &harness{
		finder:    &fakeFinder{result: LookupResult{Found: true, Product: sampleProduct()}},
		submitter: &fakeSubmitter{receipt: SaleReceipt{SaleID: 99, Total: mxn("18.50"), Message: "ok"}},
		log:       &memLog{},
		gate:      &fakeGate{},
		speaker:   &fakeSpeaker{},
		events:    make(chan Event, 32),
	}

	cfg := ControllerConfig{
		Device:        "caja-1",
		Currency:      currency.MXN,
		SettleDelay:   20 * time.Millisecond,
		LookupTimeout: time.Second,
	}
	if tweak != nil {
		tweak(&cfg)
	}

	h.ctrl = NewController(h.finder, h.submitter, h.log, h.gate, h.speaker, cfg)
	h.ctrl.OnEvent(func(ev Event) { h.events <- ev })
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) waitEvent(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

// scanAndConfirm drives one product into the cart.
func (h *harness) scanAndConfirm(t *testing.T, quantity int) {
	t.Helper()
	h.ctrl.HandleScan(context.Background(), sampleProduct().Barcode)
	h.waitEvent(t, EventProductPending)
	require.NoError(t, h.ctrl.ConfirmAdd(context.Background(), quantity))
}

func TestScanResolvesToPendingProduct(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.HandleScan(context.Background(), "7501055300891")

	ev := h.waitEvent(t, EventProductPending)
	require.NotNil(t, ev.Product)
	assert.Equal(t, "Coca Cola 600ml", ev.Product.Name)

	snap := h.ctrl.StateSnapshot()
	assert.Equal(t, StateProductPending, snap.State)
	require.NotNil(t, snap.Pending)
	assert.Equal(t, int64(42), snap.Pending.ID)
}

func TestOverlappingScansAreDropped(t *testing.T) {
	h := newHarness(t, func(cfg *ControllerConfig) {
		cfg.SettleDelay = 200 * time.Millisecond
	})
	h.finder.delay = 800 * time.Millisecond

	h.ctrl.HandleScan(context.Background(), "111")
	time.Sleep(50 * time.Millisecond)
	h.ctrl.HandleScan(context.Background(), "111")
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), h.finder.calls.Load(),
		"second scan must be dropped while the first is in flight")
}

func TestScanPausesGateAndResumesAfterSettle(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.HandleScan(context.Background(), "7501055300891")
	h.waitEvent(t, EventProductPending)

	assert.Equal(t, int32(1), h.gate.pauses.Load())

	require.Eventually(t, func() bool {
		return h.gate.resumes.Load() == 1
	}, time.Second, 5*time.Millisecond, "gate should resume after the settle delay")
}

func TestScanNotFound(t *testing.T) {
	h := newHarness(t, nil)
	h.finder.result = LookupResult{Found: false, Message: "Código desconocido"}

	h.ctrl.HandleScan(context.Background(), "000")

	ev := h.waitEvent(t, EventProductNotFound)
	assert.Equal(t, "Código desconocido", ev.Message)
	assert.Equal(t, StateIdle, h.ctrl.StateSnapshot().State)
}

func TestScanLookupError(t *testing.T) {
	h := newHarness(t, nil)
	h.finder.result = LookupResult{}
	h.finder.err = errors.New("backend unreachable")

	h.ctrl.HandleScan(context.Background(), "123")

	h.waitEvent(t, EventLookupFailed)
	assert.Equal(t, StateIdle, h.ctrl.StateSnapshot().State)
}

func TestConfirmAddWithoutPending(t *testing.T) {
	h := newHarness(t, nil)

	err := h.ctrl.ConfirmAdd(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNoPendingProduct)
}

func TestConfirmAddQuantityValidation(t *testing.T) {
	cases := []struct {
		name     string
		quantity int
	}{
		{"zero", 0},
		{"negative", -3},
		{"above stock", 11},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.ctrl.HandleScan(context.Background(), "7501055300891")
			h.waitEvent(t, EventProductPending)

			err := h.ctrl.ConfirmAdd(context.Background(), tc.quantity)
			assert.ErrorIs(t, err, ErrQuantityOutOfRange)

			// The product stays pending so the cashier can retry.
			assert.Equal(t, StateProductPending, h.ctrl.StateSnapshot().State)
		})
	}
}

func TestConfirmAddOpensTicketAndLogs(t *testing.T) {
	h := newHarness(t, nil)

	h.scanAndConfirm(t, 3)

	snap := h.ctrl.StateSnapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.NotEmpty(t, snap.TicketID)
	assert.Equal(t, 3, snap.Cart.ItemCount)
	assert.Equal(t, "55.50", snap.Cart.Total.StringFixed())

	assert.Equal(t,
		[]saleslog.Status{saleslog.StatusOpened, saleslog.StatusItemAdded},
		h.log.statuses())

	h.speaker.mu.Lock()
	defer h.speaker.mu.Unlock()
	assert.Equal(t, "55.50", h.speaker.context[voice.CtxPartialTotal])
	assert.Equal(t, 3, h.speaker.context[voice.CtxItemCount])
}

func TestCancelPending(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.HandleScan(context.Background(), "7501055300891")
	h.waitEvent(t, EventProductPending)

	h.ctrl.CancelPending()

	snap := h.ctrl.StateSnapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Pending)
	assert.True(t, snap.Cart.ItemCount == 0)
}

func TestRemoveLast(t *testing.T) {
	h := newHarness(t, nil)
	h.scanAndConfirm(t, 2)

	h.ctrl.RemoveLast(context.Background())

	assert.Equal(t, 0, h.ctrl.CartSummary().ItemCount)
	assert.Contains(t, h.log.statuses(), saleslog.StatusItemRemoved)
}

func TestCheckoutEmptyCart(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.ctrl.Checkout(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, int32(0), h.submitter.calls.Load(), "empty cart must never reach the backend")
}

func TestCheckoutSuccessClearsSale(t *testing.T) {
	h := newHarness(t, nil)
	h.scanAndConfirm(t, 1)

	receipt, err := h.ctrl.Checkout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(99), receipt.SaleID)

	ev := h.waitEvent(t, EventSaleCompleted)
	require.NotNil(t, ev.Receipt)

	snap := h.ctrl.StateSnapshot()
	assert.Equal(t, 0, snap.Cart.ItemCount)
	assert.Empty(t, snap.TicketID, "a new sale starts with a fresh ticket")

	statuses := h.log.statuses()
	assert.Contains(t, statuses, saleslog.StatusCheckoutStarted)
	assert.Contains(t, statuses, saleslog.StatusCompleted)

	h.speaker.mu.Lock()
	defer h.speaker.mu.Unlock()
	assert.Positive(t, h.speaker.cleared, "voice context must reset after a settled sale")
}

func TestCheckoutRejectionPreservesCart(t *testing.T) {
	h := newHarness(t, nil)
	h.scanAndConfirm(t, 2)
	h.submitter.err = &SaleRejectedError{Message: "Stock insuficiente para Coca Cola 600ml"}

	_, err := h.ctrl.Checkout(context.Background())

	var rejected *SaleRejectedError
	require.ErrorAs(t, err, &rejected)

	ev := h.waitEvent(t, EventSaleFailed)
	assert.Equal(t, "Stock insuficiente para Coca Cola 600ml", ev.Message)

	snap := h.ctrl.StateSnapshot()
	assert.Equal(t, 2, snap.Cart.ItemCount, "cart must survive a rejected sale")
	assert.NotEmpty(t, snap.TicketID)
	assert.Contains(t, h.log.statuses(), saleslog.StatusFailed)
}

func TestCheckoutDoubleSubmitGuard(t *testing.T) {
	h := newHarness(t, nil)
	h.scanAndConfirm(t, 1)

	h.submitter.block = make(chan struct{})

	first := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Checkout(context.Background())
		first <- err
	}()

	require.Eventually(t, func() bool {
		return h.submitter.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	_, err := h.ctrl.Checkout(context.Background())
	assert.ErrorIs(t, err, ErrCheckoutInFlight)

	close(h.submitter.block)
	require.NoError(t, <-first)
}

func TestCancelSaleInvalidatesInFlightLookup(t *testing.T) {
	h := newHarness(t, nil)
	h.finder.delay = 150 * time.Millisecond

	h.ctrl.HandleScan(context.Background(), "7501055300891")
	time.Sleep(20 * time.Millisecond)
	h.ctrl.CancelSale(context.Background())

	h.waitEvent(t, EventSaleCancelled)

	// Give the stale lookup time to return; its result must be discarded.
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, StateIdle, h.ctrl.StateSnapshot().State)

	select {
	case ev := <-h.events:
		assert.NotEqual(t, EventProductPending, ev.Kind, "stale lookup result leaked through")
	default:
	}
}

func TestCancelSaleLogsWhenTicketOpen(t *testing.T) {
	h := newHarness(t, nil)
	h.scanAndConfirm(t, 1)

	h.ctrl.CancelSale(context.Background())

	h.waitEvent(t, EventSaleCancelled)
	assert.Contains(t, h.log.statuses(), saleslog.StatusCancelled)
	assert.Equal(t, 0, h.ctrl.CartSummary().ItemCount)
}

func TestDispatchCommandRouting(t *testing.T) {
	t.Run("agregar_cantidad", func(t *testing.T) {
		h := newHarness(t, nil)
		h.ctrl.HandleScan(context.Background(), "7501055300891")
		h.waitEvent(t, EventProductPending)

		err := h.ctrl.DispatchCommand(context.Background(), voice.Command{
			Action: voice.ActionAddQuantity, Quantity: 4,
		})
		require.NoError(t, err)
		assert.Equal(t, 4, h.ctrl.CartSummary().ItemCount)
	})

	t.Run("confirmar_venta requires confirmation", func(t *testing.T) {
		h := newHarness(t, nil)
		h.scanAndConfirm(t, 1)

		err := h.ctrl.DispatchCommand(context.Background(), voice.Command{
			Action: voice.ActionConfirmSale, Confirmation: false,
		})
		require.NoError(t, err)
		assert.Equal(t, int32(0), h.submitter.calls.Load())

		err = h.ctrl.DispatchCommand(context.Background(), voice.Command{
			Action: voice.ActionConfirmSale, Confirmation: true,
		})
		require.NoError(t, err)
		assert.Equal(t, int32(1), h.submitter.calls.Load())
	})

	t.Run("eliminar_ultimo", func(t *testing.T) {
		h := newHarness(t, nil)
		h.scanAndConfirm(t, 2)

		require.NoError(t, h.ctrl.DispatchCommand(context.Background(), voice.Command{
			Action: voice.ActionRemoveLast,
		}))
		assert.Equal(t, 0, h.ctrl.CartSummary().ItemCount)
	})

	t.Run("cancelar_venta", func(t *testing.T) {
		h := newHarness(t, nil)
		h.scanAndConfirm(t, 2)

		require.NoError(t, h.ctrl.DispatchCommand(context.Background(), voice.Command{
			Action: voice.ActionCancelSale,
		}))
		assert.Equal(t, 0, h.ctrl.CartSummary().ItemCount)
	})

	t.Run("voice commands mark the sale", func(t *testing.T) {
		h := newHarness(t, nil)
		h.ctrl.HandleScan(context.Background(), "7501055300891")
		h.waitEvent(t, EventProductPending)

		require.NoError(t, h.ctrl.DispatchCommand(context.Background(), voice.Command{
			Action: voice.ActionAddQuantity, Quantity: 1,
		}))
		_, err := h.ctrl.Checkout(context.Background())
		require.NoError(t, err)

		h.submitter.mu.Lock()
		defer h.submitter.mu.Unlock()
		assert.True(t, h.submitter.last.VoiceUsed)
		assert.Equal(t, "caja-1", h.submitter.last.Device)
	})
}

func TestNewScanReplacesPendingProduct(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.HandleScan(context.Background(), "7501055300891")
	h.waitEvent(t, EventProductPending)

	// Wait out the settle delay so the next scan is accepted.
	require.Eventually(t, func() bool {
		return h.gate.resumes.Load() == 1
	}, time.Second, 5*time.Millisecond)

	other := &cart.Product{
		ID:      7,
		Name:    "Pan Bimbo Blanco",
		Price:   mxn("42.00"),
		Stock:   5,
		Barcode: "7501000111305",
	}
	h.finder.mu.Lock()
	h.finder.result = LookupResult{Found: true, Product: other}
	h.finder.mu.Unlock()

	h.ctrl.HandleScan(context.Background(), other.Barcode)

	ev := h.waitEvent(t, EventProductPending)
	require.NotNil(t, ev.Product)
	assert.Equal(t, int64(7), ev.Product.ID)

	snap := h.ctrl.StateSnapshot()
	assert.Equal(t, StateProductPending, snap.State)
	require.NotNil(t, snap.Pending)
	assert.Equal(t, "Pan Bimbo Blanco", snap.Pending.Name, "a new accepted scan replaces the product awaiting confirmation")
}

func TestScannerResumesAfterStaleLookup(t *testing.T) {
	h := newHarness(t, nil)
	h.finder.delay = 100 * time.Millisecond

	h.ctrl.HandleScan(context.Background(), "7501055300891")
	time.Sleep(20 * time.Millisecond)
	h.ctrl.CancelSale(context.Background())
	h.waitEvent(t, EventSaleCancelled)

	require.Eventually(t, func() bool {
		return h.gate.resumes.Load() == 1
	}, time.Second, 5*time.Millisecond, "scanner must resume after a stale lookup settles")

	// The pipeline is alive: a fresh scan reaches the finder.
	h.finder.delay = 0
	h.ctrl.HandleScan(context.Background(), "7501055300891")
	h.waitEvent(t, EventProductPending)
	assert.Equal(t, int32(2), h.finder.calls.Load())
}

func TestScanWithMultipleCandidates(t *testing.T) {
	h := newHarness(t, nil)
	h.finder.result = LookupResult{
		Found:    false,
		Multiple: true,
		Candidates: []cart.Product{
			{ID: 1, Name: "Coca Cola 600ml", Price: mxn("18.50"), Stock: 24, Barcode: "7501055300891"},
			{ID: 9, Name: "Coca Cola 2L", Price: mxn("38.00"), Stock: 6, Barcode: "7501055300891"},
		},
		Message: "Varios productos coinciden",
	}

	h.ctrl.HandleScan(context.Background(), "300891")

	ev := h.waitEvent(t, EventProductNotFound)
	assert.Equal(t, "Varios productos coinciden", ev.Message)
	require.Len(t, ev.Candidates, 2)
	assert.Equal(t, "Coca Cola 2L", ev.Candidates[1].Name)

	// No candidate is auto-selected.
	assert.Equal(t, StateIdle, h.ctrl.StateSnapshot().State)
}
