package backend

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/jcmexdev/pos-terminal/internal/cart"
	"github.com/jcmexdev/pos-terminal/internal/pos"
	"github.com/jcmexdev/pos-terminal/internal/voice"
)

// Ensure the fake implements the same ports as the real client.
var (
	_ pos.ProductFinder = (*Fake)(nil)
	_ pos.SaleSubmitter = (*Fake)(nil)
	_ voice.Interpreter = (*Fake)(nil)
)

// Fake is an in-memory stand-in for the store backend, intended for local
// development and manual testing only. Do NOT use in production.
//
// It keeps a small catalog keyed by barcode, decrements stock on settled
// sales, and interprets voice transcripts with a keyword matcher.
type Fake struct {
	mu       sync.Mutex
	products map[string]*cart.Product
	byID     map[int64]*cart.Product
	nextSale atomic.Int64
	unit     currency.Unit
}

// NewFake returns a fake backend seeded with a handful of products.
func NewFake() *Fake {
	f := &Fake{
		products: make(map[string]*cart.Product),
		byID:     make(map[int64]*cart.Product),
		unit:     currency.MXN,
	}
	f.nextSale.Store(1000)

	seed := []cart.Product{
		{ID: 1, Name: "Coca Cola 600ml", Price: f.money("18.50"), Stock: 24, Barcode: "7501055300891"},
		{ID: 2, Name: "Sabritas Original 45g", Price: f.money("17.00"), Stock: 12, Barcode: "7500478025345"},
		{ID: 3, Name: "Leche Lala Entera 1L", Price: f.money("26.90"), Stock: 8, Barcode: "7501020513042"},
		{ID: 4, Name: "Pan Bimbo Blanco", Price: f.money("42.00"), Stock: 5, Barcode: "7501000111305"},
		{ID: 5, Name: "Huevo San Juan 12pz", Price: f.money("48.50"), Stock: 3, Barcode: "7501032399993"},
	}
	for i := range seed {
		p := seed[i]
		f.products[p.Barcode] = &p
		f.byID[p.ID] = &p
	}
	return f
}

func (f *Fake) money(s string) cart.Money {
	return cart.NewMoney(decimal.RequireFromString(s), currency.MXN)
}

// AddProduct registers an extra product, mainly for tests.
func (f *Fake) AddProduct(p cart.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.Barcode] = &p
	f.byID[p.ID] = &p
}

// Stock reports the remaining stock for a product ID.
func (f *Fake) Stock(productID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byID[productID]; ok {
		return p.Stock
	}
	return 0
}

// LookupProduct resolves a barcode against the in-memory catalog. An exact
// miss falls back to matching the trailing digits, the usual failure mode of
// a badly read EAN-13: one suffix match resolves with a warning, several
// come back as candidates for the cashier to pick from.
func (f *Fake) LookupProduct(_ context.Context, code string) (pos.LookupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.products[code]; ok {
		copied := *p
		return pos.LookupResult{Found: true, Product: &copied}, nil
	}

	if len(code) >= suffixMatchLen {
		suffix := code[len(code)-suffixMatchLen:]
		var matches []cart.Product
		for _, cand := range f.products {
			if strings.HasSuffix(cand.Barcode, suffix) {
				matches = append(matches, *cand)
			}
		}
		switch len(matches) {
		case 0:
		case 1:
			m := matches[0]
			return pos.LookupResult{
				Found:   true,
				Product: &m,
				Warning: fmt.Sprintf("Coincidencia parcial: el código %s solo coincide en sus últimos dígitos", code),
			}, nil
		default:
			return pos.LookupResult{
				Found:      false,
				Multiple:   true,
				Candidates: matches,
				Message:    fmt.Sprintf("Varios productos coinciden con el código %s", code),
			}, nil
		}
	}

	return pos.LookupResult{
		Found:   false,
		Message: fmt.Sprintf("No existe producto con código %s", code),
	}, nil
}

// SubmitSale settles a sale against in-memory stock. Insufficient stock on
// any line rejects the whole sale and changes nothing.
func (f *Fake) SubmitSale(_ context.Context, sale pos.SaleRequest) (pos.SaleReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(sale.Items) == 0 {
		return pos.SaleReceipt{}, &pos.SaleRejectedError{Message: "La venta no tiene items"}
	}

	// Validate everything before mutating anything.
	for _, item := range sale.Items {
		p, ok := f.byID[item.ProductID]
		if !ok {
			return pos.SaleReceipt{}, &pos.SaleRejectedError{
				Message: fmt.Sprintf("Producto %d no existe", item.ProductID),
			}
		}
		if item.Quantity > p.Stock {
			return pos.SaleReceipt{}, &pos.SaleRejectedError{
				Message: fmt.Sprintf("Stock insuficiente para %s", p.Name),
			}
		}
	}

	total := cart.NewMoney(decimal.Zero, f.unit)
	for _, item := range sale.Items {
		p := f.byID[item.ProductID]
		p.Stock -= item.Quantity
		total = total.Add(p.Price.Mul(item.Quantity))
	}

	return pos.SaleReceipt{
		SaleID:  f.nextSale.Add(1),
		Total:   total,
		Message: "Venta registrada",
	}, nil
}

// suffixMatchLen is how many trailing digits must agree for a fuzzy
// barcode match.
const suffixMatchLen = 6

var quantityPattern = regexp.MustCompile(`\d+`)

// numberWords maps the spoken Spanish numerals cashiers actually use.
var numberWords = map[string]int{
	"un": 1, "una": 1, "uno": 1,
	"dos": 2, "tres": 3, "cuatro": 4, "cinco": 5,
	"seis": 6, "siete": 7, "ocho": 8, "nueve": 9, "diez": 10,
}

// InterpretCommand is a deterministic keyword matcher over the transcript,
// mirroring how the voice-command endpoint classifies intents.
func (f *Fake) InterpretCommand(_ context.Context, text string, contexto map[string]any) (voice.Command, error) {
	t := strings.ToLower(strings.TrimSpace(text))

	switch {
	case strings.Contains(t, "cancela"):
		return voice.Command{
			Action: voice.ActionCancelSale,
			Reply:  "Venta cancelada.",
		}, nil

	case strings.Contains(t, "elimina") || strings.Contains(t, "quita"):
		return voice.Command{
			Action: voice.ActionRemoveLast,
			Reply:  "Eliminé el último producto.",
		}, nil

	case strings.Contains(t, "total") || strings.Contains(t, "cuánto") || strings.Contains(t, "cuanto"):
		reply := "El carrito está vacío."
		if total, ok := contexto[voice.CtxPartialTotal].(string); ok && total != "" && total != "0.00" {
			reply = fmt.Sprintf("El total parcial es %s pesos.", total)
		}
		return voice.Command{Action: voice.ActionQueryTotal, Reply: reply}, nil

	case strings.Contains(t, "cobra") || strings.Contains(t, "confirma") || t == "sí" || t == "si":
		return voice.Command{
			Action:       voice.ActionConfirmSale,
			Confirmation: true,
			Reply:        "Registrando la venta.",
		}, nil

	default:
		if qty, ok := extractQuantity(t); ok {
			reply := fmt.Sprintf("Agregando %d unidades.", qty)
			if name, ok := contexto[voice.CtxCurrentProduct].(string); ok && name != "" {
				reply = fmt.Sprintf("Agregando %d de %s.", qty, name)
			}
			return voice.Command{
				Action:   voice.ActionAddQuantity,
				Quantity: qty,
				Reply:    reply,
			}, nil
		}
		return voice.Command{
			Action: voice.ActionClarify,
			Reply:  "No entendí. ¿Puedes repetirlo?",
		}, nil
	}
}

// extractQuantity pulls a quantity out of a transcript, accepting both
// digits ("agrega 3") and number words ("agrega tres").
func extractQuantity(t string) (int, bool) {
	if m := quantityPattern.FindString(t); m != "" {
		n, err := strconv.Atoi(m)
		return n, err == nil
	}
	for _, word := range strings.Fields(t) {
		if n, ok := numberWords[word]; ok {
			return n, true
		}
	}
	return 0, false
}
