package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

func NewRouter(h *Handler) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/ask", h.Ask).Methods(http.MethodPost)
	r.HandleFunc("/ask/prompt", h.AskFromPrompt).Methods(http.MethodPost)
	r.HandleFunc("/ask/url", h.AskFromURL).Methods(http.MethodPost)
	r.HandleFunc("/ask/pdf", h.AskFromPDF).Methods(http.MethodPost)
	r.HandleFunc("/ask/index", h.AskFromIndex).Methods(http.MethodPost)
	r.HandleFunc("/search", h.Search).Methods(http.MethodPost)
	r.HandleFunc("/indexes", h.SaveIndex).Methods(http.MethodPost)
	r.HandleFunc("/indexes", h.ListIndexes).Methods(http.MethodGet)

	return r
}

// CORS libera apenas as origens do front local.
func CORS(allowed ...string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			for _, a := range allowed {
				if origin == a {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					break
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
