package httpx

import "github.com/jcmexdev/pos-terminal/internal/cart"

type StartScannerRequest struct {
	CameraID string `json:"camera_id"`
}

type DetectionRequest struct {
	Code        string  `json:"code"`
	ErrorMetric float64 `json:"error_metric"`
}

// DetectionResponse reports whether the detection entered the debounce
// pipeline. False means the scanner was stopped or paused.
type DetectionResponse struct {
	Accepted bool `json:"accepted"`
}

type CameraResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type ConfirmItemRequest struct {
	Quantity int `json:"cantidad"`
}

type LineItemResponse struct {
	ProductID int64  `json:"producto_id"`
	Name      string `json:"nombre"`
	UnitPrice string `json:"precio_unitario"`
	Quantity  int    `json:"cantidad"`
	Subtotal  string `json:"subtotal"`
}

type CartResponse struct {
	Items     []LineItemResponse `json:"items"`
	Subtotal  string             `json:"subtotal"`
	Total     string             `json:"total"`
	ItemCount int                `json:"item_count"`
}

type CheckoutResponse struct {
	SaleID  int64  `json:"venta_id"`
	Total   string `json:"total"`
	Message string `json:"mensaje,omitempty"`
}

type SaleLogEntryResponse struct {
	TicketID     string `json:"ticket_id"`
	Status       string `json:"status"`
	Detail       string `json:"detail,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	TraceID      string `json:"trace_id,omitempty"`
	At           string `json:"at"`
}

type TranscriptRequest struct {
	Text string `json:"texto"`
}

type TranscriptResponse struct {
	Reply        string `json:"respuesta_chatbot"`
	Action       string `json:"accion,omitempty"`
	Quantity     int    `json:"cantidad,omitempty"`
	Confirmation bool   `json:"confirmacion,omitempty"`
}

type PendingProductResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"nombre"`
	Price   string `json:"precio_venta"`
	Stock   int    `json:"stock"`
	Barcode string `json:"codigo_barras"`
}

type StateResponse struct {
	State    string                  `json:"state"`
	Scanner  string                  `json:"scanner"`
	TicketID string                  `json:"ticket_id,omitempty"`
	Pending  *PendingProductResponse `json:"pending_product,omitempty"`
	Cart     CartResponse            `json:"cart"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapCartToResponse(s cart.Summary) CartResponse {
	items := make([]LineItemResponse, len(s.Items))
	for i, it := range s.Items {
		items[i] = LineItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.StringFixed(),
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal().StringFixed(),
		}
	}
	return CartResponse{
		Items:     items,
		Subtotal:  s.Subtotal.StringFixed(),
		Total:     s.Total.StringFixed(),
		ItemCount: s.ItemCount,
	}
}
