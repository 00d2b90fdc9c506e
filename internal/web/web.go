package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"folio/internal/clock"
	"folio/internal/config"
	appLog "folio/internal/log"
	"folio/internal/model"
)

// Documents is the read side of the content store.
type Documents interface {
	Find(kind model.Kind, slug string) (*model.Document, error)
	List(kind model.Kind) []*model.Document
	// LoadedAt doubles as DTSTAMP of the calendar export.
	LoadedAt() time.Time
}

// Events lists appearances, e.g. appearances.Provider.
type Events interface {
	ListEvents(ctx context.Context) ([]model.Event, error)
	ForWorkshop(ctx context.Context, slug string) ([]model.Event, error)
	ForTalk(ctx context.Context, slug string) ([]model.Event, error)
}

// Server renders the site and its JSON/ICS endpoints.
type Server struct {
	cfg    *config.Config
	docs   Documents
	events Events
	clock  clock.Clock
	loc    *time.Location

	views *views
	mux   *http.ServeMux
	gzip  func(http.Handler) http.HandlerFunc
}

// NewServer constructs a new Server. Templates are parsed once here.
func NewServer(cfg *config.Config, docs Documents, events Events, clk clock.Clock) (*Server, error) {
	loc := cfg.Location()
	if clk == nil {
		clk = clock.NewSystem(loc)
	}
	s := &Server{
		cfg:    cfg,
		docs:   docs,
		events: events,
		clock:  clk,
		loc:    loc,
		mux:    http.NewServeMux(),
	}
	v, err := loadViews(s.templateFuncs())
	if err != nil {
		return nil, err
	}
	s.views = v
	if s.gzip, err = newGzip(); err != nil {
		return nil, err
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the mux wrapped in gzip, optional basic auth and
// request logging.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.gzip(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return requestLogger(h)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials mean disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="folio", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves s on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func StartServer(ctx context.Context, s *Server) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /appearances.ics", s.handleCalendar)

	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /posts", s.handlePosts)
	s.mux.HandleFunc("GET /posts/{slug...}", s.handlePost)
	s.mux.HandleFunc("GET /talks", s.handleTalks)
	s.mux.HandleFunc("GET /talks/{slug...}", s.handleTalk)
	s.mux.HandleFunc("GET /workshops/{slug...}", s.handleWorkshop)
	s.mux.HandleFunc("GET /appearances", s.handleAppearances)

	// Everything else is a page slug, e.g. /legal.
	s.mux.HandleFunc("GET /{slug...}", s.handlePage)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
