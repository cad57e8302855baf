package pantry

import (
	"net/http"
)

// userHeader identifies the calling user. There is no authentication; the
// header only scopes data.
const userHeader = "X-User-ID"

// Server handles HTTP requests for the pantry
type Server struct {
	service *Service
	mux     *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(service *Service) *Server {
	return NewServerWithMux(service, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, mux *http.ServeMux) *Server {
	s := &Server{service: service, mux: mux}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers and answers preflight requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+userHeader)
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// requireUser rejects requests without a user header
func requireUser(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userHeader)
		if userID == "" {
			writeJSONError(w, "Missing "+userHeader+" header", http.StatusUnauthorized)
			return
		}
		next(w, r, userID)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("GET /api/pantry/expiring", requireUser(s.handleExpiring))
	s.mux.HandleFunc("POST /api/pantry/clear-expired", requireUser(s.handleClearExpired))
	s.mux.HandleFunc("POST /api/pantry/{id}/freeze", requireUser(s.handleToggleFreeze))
	s.mux.HandleFunc("PATCH /api/pantry/{id}", requireUser(s.handleUpdateItem))
	s.mux.HandleFunc("DELETE /api/pantry/{id}", requireUser(s.handleDeleteItem))
	s.mux.HandleFunc("GET /api/pantry", requireUser(s.handleListItems))
	s.mux.HandleFunc("POST /api/pantry", requireUser(s.handleAddItem))

	s.mux.HandleFunc("POST /api/receipts/text", requireUser(s.handleReceiptText))
	s.mux.HandleFunc("POST /api/receipts/structured", requireUser(s.handleReceiptStructured))
	s.mux.HandleFunc("POST /api/receipts/scan", requireUser(s.handleReceiptScan))

	s.mux.HandleFunc("GET /api/recipes", requireUser(s.handleListRecipes))
	s.mux.HandleFunc("POST /api/recipes", requireUser(s.handleSuggestRecipes))
	s.mux.HandleFunc("POST /api/recipe-clicks", requireUser(s.handleRecipeClick))
}

// Handler returns the routes wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
