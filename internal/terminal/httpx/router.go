package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jcmexdev/pos-terminal/internal/terminal/httpx/middlewares"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachRequestMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/cameras", handler.ListCameras)

	r.Route("/scanner", func(r chi.Router) {
		r.Post("/start", handler.StartScanner)
		r.Post("/stop", handler.StopScanner)
		r.Post("/camera", handler.SwitchCamera)
		r.Post("/detections", handler.PushDetection)
	})

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", handler.GetCart)
		r.Post("/confirm", handler.ConfirmItem)
		r.Post("/cancel", handler.CancelPending)
		r.Delete("/last", handler.RemoveLastItem)
		r.Delete("/", handler.CancelSale)
	})

	r.Post("/checkout", handler.Checkout)
	r.Get("/sales/{id}/log", handler.SaleHistory)
	r.Post("/voice/transcript", handler.HandleTranscript)
	r.Get("/state", handler.GetState)

	return r
}
