// Package httpapi exposes the rental core to a presentation layer as JSON
// endpoints plus live views streamed as server-sent events.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	blobcore "rentalcore/internal/blob/core"
	"rentalcore/internal/core"
	"rentalcore/internal/hub"
	"rentalcore/internal/identity"
)

// DefaultHeartbeat is the interval between SSE keep-alive comments.
const DefaultHeartbeat = 15 * time.Second

// MaxImageBytes bounds the body accepted by the image upload endpoint.
const MaxImageBytes = 10 << 20

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Server routes HTTP requests to the service, hub and role view composer.
type Server struct {
	svc       *core.Service
	hub       *hub.Hub
	tokens    *identity.Tokens
	files     blobcore.Store
	logger    core.Logger
	origins   []string
	heartbeat time.Duration
	viewWait  time.Duration
	router    *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l core.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAssetFiles serves objects from store under /assets/.
func WithAssetFiles(store blobcore.Store) Option {
	return func(s *Server) { s.files = store }
}

// WithAllowedOrigins restricts CORS origins. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithHeartbeat overrides DefaultHeartbeat.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// New builds the HTTP adapter. tokens authenticates every /api route.
func New(svc *core.Service, h *hub.Hub, tokens *identity.Tokens, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		hub:       h,
		tokens:    tokens,
		logger:    noopLogger{},
		origins:   []string{"*"},
		heartbeat: DefaultHeartbeat,
		viewWait:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the router wrapped with CORS and request logging.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Accept"},
	})
	return s.logRequests(c.Handler(s.router))
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rules": s.svc.RulesEngine().Rules()})
	}).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	if s.files != nil {
		r.PathPrefix("/assets/").HandlerFunc(s.handleAsset).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/views/{view}", s.handleView).Methods(http.MethodGet)

	api.HandleFunc("/properties", s.handleCreateProperty).Methods(http.MethodPost)
	api.HandleFunc("/properties/{id}", s.handleDetail).Methods(http.MethodGet)
	api.HandleFunc("/properties/{id}", s.handleUpdateProperty).Methods(http.MethodPatch)
	api.HandleFunc("/properties/{id}", s.handleDeleteProperty).Methods(http.MethodDelete)
	api.HandleFunc("/properties/{id}/listed", s.handleSetListed).Methods(http.MethodPut)
	api.HandleFunc("/properties/{id}/listed/toggle", s.handleToggleListed).Methods(http.MethodPost)
	api.HandleFunc("/properties/{id}/images", s.handleAddImage).Methods(http.MethodPost)
	api.HandleFunc("/properties/{id}/requests", s.handleSubmitRequest).Methods(http.MethodPost)
	api.HandleFunc("/properties/{id}/shortlist", s.handleToggleShortlist).Methods(http.MethodPost)

	api.HandleFunc("/requests/{id}/decision", s.handleDecide).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}", s.handleWithdraw).Methods(http.MethodDelete)
	return r
}

// authenticate resolves the bearer token into a session. EventSource clients
// cannot set headers, so access_token is accepted as a query parameter.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("access_token")
		if header := r.Header.Get("Authorization"); header != "" {
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				writeError(w, http.StatusUnauthorized, "invalid Authorization header format")
				return
			}
			raw = token
		}
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		session, err := s.tokens.Parse(raw)
		if err != nil {
			s.logger.Debug("rejected token", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithSession(r.Context(), session)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
