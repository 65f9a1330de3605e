// Package server exposes the bill and reminder operations over a JSON HTTP
// API.
package server

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bkoseoglu/faturalog/internal/bill"
	"github.com/bkoseoglu/faturalog/internal/reminder"
)

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Server handles HTTP requests for bills and reminders
type Server struct {
	bills     *bill.Service
	scheduler *reminder.Scheduler
	settings  *reminder.Facade
	userID    string
	basicAuth BasicAuth
	validate  *validator.Validate
	mux       *http.ServeMux
}

// NewServer creates a new Server with a default mux
func NewServer(bills *bill.Service, scheduler *reminder.Scheduler, settings *reminder.Facade, userID string, basicAuth BasicAuth) *Server {
	return NewServerWithMux(bills, scheduler, settings, userID, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(bills *bill.Service, scheduler *reminder.Scheduler, settings *reminder.Facade, userID string, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		bills:     bills,
		scheduler: scheduler,
		settings:  settings,
		userID:    userID,
		basicAuth: basicAuth,
		validate:  validator.New(),
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers and answers preflight requests
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="faturalog"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux.
// Routes must be registered from most specific to least specific.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/bills/upcoming/count", s.requireAuth(s.handleCountUpcoming))
	s.mux.HandleFunc("GET /api/bills/upcoming", s.requireAuth(s.handleListUpcoming))
	s.mux.HandleFunc("GET /api/bills/{id}/image", s.requireAuth(s.handleGetBillImage))
	s.mux.HandleFunc("GET /api/bills/{id}", s.requireAuth(s.handleGetBill))
	s.mux.HandleFunc("PUT /api/bills/{id}", s.requireAuth(s.handleUpdateBill))
	s.mux.HandleFunc("DELETE /api/bills/{id}", s.requireAuth(s.handleDeleteBill))
	s.mux.HandleFunc("GET /api/bills", s.requireAuth(s.handleListBills))
	s.mux.HandleFunc("POST /api/bills", s.requireAuth(s.handleUploadBill))

	s.mux.HandleFunc("GET /api/reminders/settings", s.requireAuth(s.handleGetSettings))
	s.mux.HandleFunc("PUT /api/reminders/settings", s.requireAuth(s.handleSaveSettings))
	s.mux.HandleFunc("POST /api/reminders/refresh", s.requireAuth(s.handleRefresh))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
