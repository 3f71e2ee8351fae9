package voice

import "context"

// Actions the interpreter can return. The values are part of the wire
// contract with the voice-command endpoint.
const (
	ActionAddQuantity = "agregar_cantidad"
	ActionConfirmSale = "confirmar_venta"
	ActionCancelSale  = "cancelar_venta"
	ActionRemoveLast  = "eliminar_ultimo"
	ActionQueryTotal  = "consultar_total"
	ActionClarify     = "pedir_aclaracion"
)

// Conversation context keys, mirroring what the interpreter expects.
const (
	CtxCurrentProduct = "producto_actual"
	CtxCurrentPrice   = "precio_actual"
	CtxPartialTotal   = "total_parcial"
	CtxItemCount      = "items_en_carrito"
)

// Command is the structured result of interpreting a free-text transcript.
type Command struct {
	Action       string
	Quantity     int
	Confirmation bool

	// Reply is the natural-language answer spoken back to the cashier.
	Reply string
}

// Interpreter resolves a transcript plus conversation context into a Command.
// The production implementation calls the backend voice-command endpoint.
type Interpreter interface {
	InterpretCommand(ctx context.Context, text string, contexto map[string]any) (Command, error)
}
