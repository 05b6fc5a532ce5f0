// Package callback serves the local confirmation pages that let a human
// approve or reject a proposed ad set change.
package callback

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"adte.com/adte/adset-agent/internal/api"
	"adte.com/adte/adset-agent/internal/confirm"
	"adte.com/adte/adset-agent/internal/middleware"
	"golang.org/x/time/rate"
)

//go:embed page.html
var pageHTML string

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

// Confirmations is the part of the confirmation store the pages act on.
type Confirmations interface {
	Get(ctx context.Context, id string) (*confirm.Record, error)
	Approve(ctx context.Context, id string) (*confirm.Record, error)
	Reject(ctx context.Context, id string) (*confirm.Record, error)
}

type Options struct {
	// BindHost is the interface to listen on. Defaults to 127.0.0.1.
	BindHost string
	// Port to bind, 0 picks a free port.
	Port   int
	Logger *slog.Logger
}

// Server is the lazily started confirmation listener. It is safe for
// concurrent use and binds at most once.
type Server struct {
	confirmations Confirmations
	bindHost      string
	port          int
	logger        *slog.Logger

	mu      sync.Mutex
	srv     *http.Server
	boundTo int
}

func New(confirmations Confirmations, opts Options) *Server {
	if opts.BindHost == "" {
		opts.BindHost = "127.0.0.1"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		confirmations: confirmations,
		bindHost:      opts.BindHost,
		port:          opts.Port,
		logger:        opts.Logger,
	}
}

// EnsureStarted binds the listener on first call and returns the bound port.
// Later calls return the same port without rebinding.
func (s *Server) EnsureStarted(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return s.boundTo, nil
	}

	var lc net.ListenConfig
	addr := net.JoinHostPort(s.bindHost, strconv.Itoa(s.port))
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.boundTo = ln.Addr().(*net.TCPAddr).Port

	srv := s.srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("confirmation server stopped", "error", err)
		}
	}()

	s.logger.Info("confirmation server listening", "addr", ln.Addr().String())
	return s.boundTo, nil
}

// Port returns the bound port, or 0 when the server has not started.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundTo
}

// Shutdown stops the listener if it was started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.boundTo = 0
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Handler returns the confirmation routes wrapped in the shared middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /confirm-update", s.handleConfirmPage)
	mux.HandleFunc("POST /confirm-update", s.handleDecision)
	mux.HandleFunc("GET /update-status", s.handleStatus)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limiter := middleware.NewRateLimiterStore(rate.Limit(5), 20, 10*time.Minute)
	return middleware.Chain(mux,
		middleware.LoggingMiddleware(s.logger),
		middleware.RateLimitMiddleware(limiter),
		middleware.LimitBodySize(16<<10),
	)
}

type row struct {
	Field   string
	Current string
	Value   string
}

type pageData struct {
	NotFound bool
	Record   *confirm.Record
	Rows     []row
	Pending  bool
	Message  string
	Result   string
}

func (s *Server) handleConfirmPage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	rec, err := s.confirmations.Get(r.Context(), id)
	if errors.Is(err, confirm.ErrNotFound) || id == "" {
		s.renderPage(w, http.StatusNotFound, pageData{NotFound: true})
		return
	}
	if err != nil {
		s.logger.Error("load confirmation failed", "confirmation_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.renderPage(w, http.StatusOK, newPageData(rec, r.URL.Query().Get("repeat") == "1"))
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	if !sameOrigin(r) {
		http.Error(w, "cross-origin request refused", http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	id := r.PostForm.Get("id")
	var err error
	switch r.PostForm.Get("action") {
	case "approve":
		_, err = s.confirmations.Approve(r.Context(), id)
	case "reject":
		_, err = s.confirmations.Reject(r.Context(), id)
	default:
		http.Error(w, "action must be approve or reject", http.StatusBadRequest)
		return
	}

	repeat := false
	switch {
	case errors.Is(err, confirm.ErrNotFound):
		s.renderPage(w, http.StatusNotFound, pageData{NotFound: true})
		return
	case errors.Is(err, confirm.ErrNotPending):
		repeat = true
	case err != nil:
		s.logger.Error("confirmation decision failed", "confirmation_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	query := url.Values{"id": {id}}
	if repeat {
		query.Set("repeat", "1")
	}
	target := "/confirm-update?" + query.Encode()
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.confirmations.Get(r.Context(), r.URL.Query().Get("id"))
	if errors.Is(err, confirm.ErrNotFound) {
		middleware.WriteJSON(w, http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		middleware.WriteJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("render confirmation page failed", "error", err)
	}
}

func newPageData(rec *confirm.Record, repeat bool) pageData {
	data := pageData{
		Record:  rec,
		Pending: rec.Status == confirm.StatusPending,
	}
	if repeat {
		data.Message = "This confirmation was already " + string(rec.Status) + ". Nothing was changed."
	}
	fields := make([]string, 0, len(rec.Changes))
	for k := range rec.Changes {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	current, _ := rec.Current.(map[string]any)
	for _, f := range fields {
		data.Rows = append(data.Rows, row{
			Field:   f,
			Current: currentValue(current, f),
			Value:   pretty(rec.Changes[f]),
		})
	}
	if rec.Result != nil {
		data.Result = pretty(rec.Result)
	}
	return data
}

// currentValue renders field from the snapshot taken when the change was
// proposed. A failed read leaves an error object instead of the ad set.
func currentValue(current map[string]any, field string) string {
	if current == nil {
		return "unavailable"
	}
	v, ok := current[field]
	if !ok {
		if _, failed := current["error"]; failed {
			return "unavailable"
		}
		return "not set"
	}
	return pretty(v)
}

func pretty(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

// sameOrigin refuses form posts that a browser marks as coming from another
// site.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return r.Header.Get("Sec-Fetch-Site") != "cross-site"
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
