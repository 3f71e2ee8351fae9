package backend

import "github.com/shopspring/decimal"

// Wire types for the store backend. Field names are the backend's Spanish
// JSON contract; do not rename them.

type productDTO struct {
	ID          int64           `json:"id"`
	Name        string          `json:"nombre"`
	SalePrice   decimal.Decimal `json:"precio_venta"`
	Stock       int             `json:"stock"`
	Barcode     string          `json:"codigo_barras"`
	Description string          `json:"descripcion,omitempty"`
}

type lookupResponse struct {
	Found   bool        `json:"encontrado"`
	Product *productDTO `json:"producto,omitempty"`
	Warning string      `json:"advertencia,omitempty"`

	// Multiple plus Candidates is the flexible-match shape: the code did
	// not resolve uniquely but several products share its trailing digits.
	Multiple   bool         `json:"multiples,omitempty"`
	Candidates []productDTO `json:"productos,omitempty"`

	Message string `json:"mensaje,omitempty"`
}

type saleItemDTO struct {
	ProductID int64 `json:"producto_id"`
	Quantity  int   `json:"cantidad"`
}

type saleRequest struct {
	Items     []saleItemDTO `json:"items"`
	VoiceUsed bool          `json:"usa_voz"`
	Device    string        `json:"dispositivo"`
}

type saleResponse struct {
	Success bool            `json:"success"`
	SaleID  int64           `json:"venta_id,omitempty"`
	Total   decimal.Decimal `json:"total,omitempty"`
	Message string          `json:"mensaje,omitempty"`
}

type voiceCommandRequest struct {
	Text    string         `json:"texto"`
	Context map[string]any `json:"contexto"`
}

type voiceCommandResponse struct {
	Reply        string `json:"respuesta_chatbot"`
	Action       string `json:"accion,omitempty"`
	Quantity     int    `json:"cantidad,omitempty"`
	Confirmation bool   `json:"confirmacion,omitempty"`
}
