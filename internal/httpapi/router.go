package httpapi

import (
	"net/http"
)

// Router mounts the handlers. metrics may be nil.
func Router(h *Handlers, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /accounts", h.CreateAccount)
	mux.HandleFunc("GET /accounts/balance", h.GetBalance)
	mux.HandleFunc("GET /accounts/total", h.GetTotal)
	mux.HandleFunc("POST /transfers", h.PostTransfer)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}
