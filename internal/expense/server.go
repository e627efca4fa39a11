package expense

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Server handles HTTP requests for expenses
type Server struct {
	service   *Service
	basicAuth BasicAuth
	mux       *http.ServeMux
	templates *template.Template

	mu   sync.Mutex
	http *http.Server
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Enabled reports whether credentials are configured
func (b BasicAuth) Enabled() bool {
	return b.Username != "" || b.Password != ""
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		mux:       mux,
		templates: parseTemplates(),
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if !s.basicAuth.Enabled() {
		return true
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(s.basicAuth.Username)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(s.basicAuth.Password)) == 1
	return userMatch && passMatch
}

// corsMiddleware adds CORS headers to responses and answers preflight requests
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

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Expense Tracker"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.requireAuth(s.handleStaticCSS))

	// Pages and forms
	s.mux.HandleFunc("POST /upload", s.requireAuth(s.handleUpload))
	s.mux.HandleFunc("POST /add_expense", s.requireAuth(s.handleAddExpense))
	s.mux.HandleFunc("GET /report/{month}", s.requireAuth(s.handleReport))
	s.mux.HandleFunc("GET /report", s.requireAuth(s.handleReport))
	s.mux.HandleFunc("GET /history", s.requireAuth(s.handleHistory))

	// JSON API
	s.mux.HandleFunc("GET /api/expenses/{id}/file", s.requireAuth(s.handleGetExpenseFile))
	s.mux.HandleFunc("GET /api/expenses/{id}", s.requireAuth(s.handleGetExpense))
	s.mux.HandleFunc("DELETE /api/expenses/{id}", s.requireAuth(s.handleDeleteExpense))
	s.mux.HandleFunc("GET /api/expenses", s.requireAuth(s.handleListExpenses))
	s.mux.HandleFunc("GET /api/reports/{month}", s.requireAuth(s.handleGetReport))

	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// Start serves HTTP on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           corsMiddleware(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start, waiting for active requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	corsMiddleware(s.mux).ServeHTTP(w, r)
}
