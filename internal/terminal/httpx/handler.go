package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/pos-terminal/internal/pos"
	"github.com/jcmexdev/pos-terminal/internal/pos/saleslog"
	"github.com/jcmexdev/pos-terminal/internal/scanner"
	"github.com/jcmexdev/pos-terminal/internal/voice"
)

// Handler exposes the till to its local UI over HTTP.
type Handler struct {
	ctrl    *pos.Controller
	scanner *scanner.Adapter
	push    *scanner.PushDecoder // nil when running the simulated decoder
	bridge  *voice.Bridge        // nil when voice is disabled
	saleLog saleslog.Repository
}

// NewHandler wires the handler. push and bridge may be nil; the matching
// endpoints then answer 404 or 503.
func NewHandler(ctrl *pos.Controller, sc *scanner.Adapter, push *scanner.PushDecoder, bridge *voice.Bridge, saleLog saleslog.Repository) *Handler {
	return &Handler{
		ctrl:    ctrl,
		scanner: sc,
		push:    push,
		bridge:  bridge,
		saleLog: saleLog,
	}
}

// ListCameras returns the cameras the decoder can see.
func (h *Handler) ListCameras(w http.ResponseWriter, r *http.Request) {
	cameras, err := h.scanner.ListCameras(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "camera_enumeration_failed", err.Error())
		return
	}

	out := make([]CameraResponse, len(cameras))
	for i, c := range cameras {
		out[i] = CameraResponse{ID: c.ID, Label: c.Label}
	}
	writeJSON(w, http.StatusOK, out)
}

// StartScanner initialises the decoder if needed and begins scanning on the
// requested camera.
func (h *Handler) StartScanner(w http.ResponseWriter, r *http.Request) {
	var req StartScannerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.CameraID == "" {
		writeError(w, http.StatusBadRequest, "camera_id_required", "")
		return
	}

	if h.scanner.State() == scanner.StateIdle || h.scanner.State() == scanner.StateStopped {
		if err := h.scanner.Init(r.Context()); err != nil {
			writeError(w, http.StatusBadGateway, "scanner_init_failed", err.Error())
			return
		}
	}

	if err := h.scanner.Start(r.Context(), req.CameraID); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, scanner.ErrAlreadyScanning) {
			status = http.StatusConflict
		}
		writeError(w, status, "scanner_start_failed", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StopScanner halts scanning. Stopping an already stopped scanner succeeds.
func (h *Handler) StopScanner(w http.ResponseWriter, r *http.Request) {
	if err := h.scanner.Stop(); err != nil {
		writeError(w, http.StatusBadGateway, "scanner_stop_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SwitchCamera restarts scanning on another camera.
func (h *Handler) SwitchCamera(w http.ResponseWriter, r *http.Request) {
	var req StartScannerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if err := h.scanner.SwitchCamera(r.Context(), req.CameraID); err != nil {
		writeError(w, http.StatusBadGateway, "camera_switch_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PushDetection feeds one raw detection from the UI-side decoder into the
// debounce pipeline. Only available with the push decoder.
func (h *Handler) PushDetection(w http.ResponseWriter, r *http.Request) {
	if h.push == nil {
		writeError(w, http.StatusNotFound, "push_decoder_disabled", "terminal runs a simulated decoder")
		return
	}

	var req DetectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code_required", "")
		return
	}

	accepted := h.push.Push(req.Code, req.ErrorMetric)
	writeJSON(w, http.StatusOK, DetectionResponse{Accepted: accepted})
}

// GetCart returns the current cart contents.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mapCartToResponse(h.ctrl.CartSummary()))
}

// ConfirmItem confirms the pending product with a quantity.
func (h *Handler) ConfirmItem(w http.ResponseWriter, r *http.Request) {
	var req ConfirmItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if err := h.ctrl.ConfirmAdd(r.Context(), req.Quantity); err != nil {
		switch {
		case errors.Is(err, pos.ErrNoPendingProduct):
			writeError(w, http.StatusConflict, "no_pending_product", err.Error())
		case errors.Is(err, pos.ErrQuantityOutOfRange):
			writeError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "confirm_failed", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, mapCartToResponse(h.ctrl.CartSummary()))
}

// CancelPending dismisses the pending product without adding it.
func (h *Handler) CancelPending(w http.ResponseWriter, r *http.Request) {
	h.ctrl.CancelPending()
	w.WriteHeader(http.StatusNoContent)
}

// RemoveLastItem drops the most recently added line item.
func (h *Handler) RemoveLastItem(w http.ResponseWriter, r *http.Request) {
	h.ctrl.RemoveLast(r.Context())
	writeJSON(w, http.StatusOK, mapCartToResponse(h.ctrl.CartSummary()))
}

// CancelSale discards the whole sale in progress.
func (h *Handler) CancelSale(w http.ResponseWriter, r *http.Request) {
	h.ctrl.CancelSale(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Checkout settles the sale with the backend.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.ctrl.Checkout(r.Context())
	if err != nil {
		var rejected *pos.SaleRejectedError
		switch {
		case errors.Is(err, pos.ErrEmptyCart):
			writeError(w, http.StatusConflict, "empty_cart", err.Error())
		case errors.Is(err, pos.ErrCheckoutInFlight):
			writeError(w, http.StatusConflict, "checkout_in_flight", err.Error())
		case errors.As(err, &rejected):
			writeError(w, http.StatusUnprocessableEntity, "sale_rejected", rejected.Message)
		default:
			slog.ErrorContext(r.Context(), "checkout failed", "error", err)
			writeError(w, http.StatusBadGateway, "checkout_failed", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, CheckoutResponse{
		SaleID:  receipt.SaleID,
		Total:   receipt.Total.StringFixed(),
		Message: receipt.Message,
	})
}

// SaleHistory returns the audit trail of one ticket.
func (h *Handler) SaleHistory(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "id")
	if ticketID == "" {
		writeError(w, http.StatusBadRequest, "ticket_id_required", "")
		return
	}

	entries, err := h.saleLog.History(r.Context(), ticketID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history_failed", err.Error())
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "ticket_not_found", "")
		return
	}

	out := make([]SaleLogEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = SaleLogEntryResponse{
			TicketID:     e.TicketID,
			Status:       string(e.Status),
			Detail:       e.Detail,
			ErrorMessage: e.ErrorMessage,
			TraceID:      e.TraceID,
			At:           e.At.Format(time.RFC3339Nano),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleTranscript routes a UI-side speech transcript through the voice
// bridge.
func (h *Handler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	if h.bridge == nil {
		writeError(w, http.StatusServiceUnavailable, "voice_disabled", "")
		return
	}

	var req TranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "texto_required", "")
		return
	}

	cmd, err := h.bridge.HandleTranscript(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusBadGateway, "interpretation_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, TranscriptResponse{
		Reply:        cmd.Reply,
		Action:       cmd.Action,
		Quantity:     cmd.Quantity,
		Confirmation: cmd.Confirmation,
	})
}

// GetState returns a full snapshot for the UI to render from.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	snap := h.ctrl.StateSnapshot()

	resp := StateResponse{
		State:    string(snap.State),
		Scanner:  h.scanner.State().String(),
		TicketID: snap.TicketID,
		Cart:     mapCartToResponse(snap.Cart),
	}
	if snap.Pending != nil {
		resp.Pending = &PendingProductResponse{
			ID:      snap.Pending.ID,
			Name:    snap.Pending.Name,
			Price:   snap.Pending.Price.StringFixed(),
			Stock:   snap.Pending.Stock,
			Barcode: snap.Pending.Barcode,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
