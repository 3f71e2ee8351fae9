// Package backend is the HTTP client for the store backend: product lookup,
// sale settlement and voice-command interpretation.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/currency"

	"github.com/jcmexdev/pos-terminal/internal/cart"
	"github.com/jcmexdev/pos-terminal/internal/pkg/cache"
	"github.com/jcmexdev/pos-terminal/internal/pos"
	"github.com/jcmexdev/pos-terminal/internal/voice"
)

const defaultTimeout = 10 * time.Second

// Client talks to the store backend. It implements pos.ProductFinder,
// pos.SaleSubmitter and voice.Interpreter.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    cache.Cache
	cacheTTL time.Duration
	unit     currency.Unit
	tracer   trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithCache enables caching of product lookups with the given TTL. Cache
// failures degrade to a direct backend call, never to an error.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(cl *Client) {
		cl.cache = c
		cl.cacheTTL = ttl
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(cl *Client) { cl.http = h }
}

// WithCurrency sets the currency prices are denominated in. Defaults to MXN.
func WithCurrency(unit currency.Unit) Option {
	return func(cl *Client) { cl.unit = unit }
}

// NewClient builds a backend client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		unit:    currency.MXN,
		tracer:  otel.Tracer("backend-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupProduct resolves a barcode against GET /product-lookup/{code}.
// A 404 with a valid body is a clean "not found", not an error.
func (c *Client) LookupProduct(ctx context.Context, code string) (pos.LookupResult, error) {
	ctx, span := c.tracer.Start(ctx, "backend.LookupProduct",
		trace.WithAttributes(attribute.String("barcode", code)))
	defer span.End()

	if body, ok := c.cachedLookup(ctx, code); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return c.decodeLookup(body)
	}

	endpoint := c.baseURL + "/product-lookup/" + url.PathEscape(code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pos.LookupResult{}, fmt.Errorf("backend: build lookup request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return pos.LookupResult{}, fmt.Errorf("backend: lookup %q: %w", code, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pos.LookupResult{}, fmt.Errorf("backend: read lookup response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		span.SetStatus(codes.Error, resp.Status)
		return pos.LookupResult{}, fmt.Errorf("backend: lookup %q: unexpected status %s", code, resp.Status)
	}

	res, err := c.decodeLookup(body)
	if err != nil {
		return pos.LookupResult{}, err
	}

	// Misses are not cached: a product registered mid-shift must become
	// scannable right away, not after the TTL.
	if res.Found {
		c.storeLookup(ctx, code, body)
	}
	return res, nil
}

func (c *Client) decodeLookup(body []byte) (pos.LookupResult, error) {
	var dto lookupResponse
	if err := json.Unmarshal(body, &dto); err != nil {
		return pos.LookupResult{}, fmt.Errorf("backend: decode lookup response: %w", err)
	}

	res := pos.LookupResult{
		Found:    dto.Found,
		Warning:  dto.Warning,
		Multiple: dto.Multiple,
		Message:  dto.Message,
	}
	if dto.Found && dto.Product != nil {
		res.Product = c.mapProduct(*dto.Product)
	}
	for _, cand := range dto.Candidates {
		res.Candidates = append(res.Candidates, *c.mapProduct(cand))
	}
	return res, nil
}

func (c *Client) mapProduct(dto productDTO) *cart.Product {
	return &cart.Product{
		ID:      dto.ID,
		Name:    dto.Name,
		Price:   cart.NewMoney(dto.SalePrice, c.unit),
		Stock:   dto.Stock,
		Barcode: dto.Barcode,
	}
}

func (c *Client) cachedLookup(ctx context.Context, code string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	key := c.cache.GenerateKey("product-lookup", code)
	value, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "lookup cache read failed", "key", key, "error", err)
		return nil, false
	}
	if value == "" {
		return nil, false
	}
	return []byte(value), true
}

func (c *Client) storeLookup(ctx context.Context, code string, body []byte) {
	if c.cache == nil {
		return
	}
	key := c.cache.GenerateKey("product-lookup", code)
	if err := c.cache.Set(ctx, key, string(body), c.cacheTTL); err != nil {
		slog.WarnContext(ctx, "lookup cache write failed", "key", key, "error", err)
	}
}

// InvalidateLookup drops a cached lookup, used after a sale changes stock.
func (c *Client) InvalidateLookup(ctx context.Context, code string) {
	if c.cache == nil {
		return
	}
	key := c.cache.GenerateKey("product-lookup", code)
	if err := c.cache.Delete(ctx, key); err != nil {
		slog.WarnContext(ctx, "lookup cache invalidation failed", "key", key, "error", err)
	}
}

// SubmitSale settles a sale with POST /sale. A 200 with success:false is a
// business rejection and comes back as *pos.SaleRejectedError.
func (c *Client) SubmitSale(ctx context.Context, sale pos.SaleRequest) (pos.SaleReceipt, error) {
	ctx, span := c.tracer.Start(ctx, "backend.SubmitSale",
		trace.WithAttributes(
			attribute.Int("items", len(sale.Items)),
			attribute.Bool("usa_voz", sale.VoiceUsed),
		))
	defer span.End()

	reqDTO := saleRequest{
		Items:     make([]saleItemDTO, len(sale.Items)),
		VoiceUsed: sale.VoiceUsed,
		Device:    sale.Device,
	}
	for i, item := range sale.Items {
		reqDTO.Items[i] = saleItemDTO{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	var respDTO saleResponse
	if err := c.postJSON(ctx, "/sale", reqDTO, &respDTO); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return pos.SaleReceipt{}, err
	}

	if !respDTO.Success {
		span.SetStatus(codes.Error, respDTO.Message)
		return pos.SaleReceipt{}, &pos.SaleRejectedError{Message: respDTO.Message}
	}

	span.SetAttributes(attribute.Int64("venta_id", respDTO.SaleID))
	return pos.SaleReceipt{
		SaleID:  respDTO.SaleID,
		Total:   cart.NewMoney(respDTO.Total, c.unit),
		Message: respDTO.Message,
	}, nil
}

// InterpretCommand resolves a transcript via POST /voice-command.
func (c *Client) InterpretCommand(ctx context.Context, text string, contexto map[string]any) (voice.Command, error) {
	ctx, span := c.tracer.Start(ctx, "backend.InterpretCommand")
	defer span.End()

	if contexto == nil {
		contexto = map[string]any{}
	}

	var respDTO voiceCommandResponse
	err := c.postJSON(ctx, "/voice-command", voiceCommandRequest{Text: text, Context: contexto}, &respDTO)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return voice.Command{}, err
	}

	span.SetAttributes(attribute.String("accion", respDTO.Action))
	return voice.Command{
		Action:       respDTO.Action,
		Quantity:     respDTO.Quantity,
		Confirmation: respDTO.Confirmation,
		Reply:        respDTO.Reply,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("backend: encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("backend: build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: read %s response: %w", path, err)
	}

	// Business rejections arrive as 200 or 400 with a decodable body.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("backend: %s: unexpected status %s", path, resp.Status)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend: decode %s response: %w", path, err)
	}
	return nil
}
