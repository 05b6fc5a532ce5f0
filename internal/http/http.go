package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"adte.com/adte/adset-agent/internal/api"
	"adte.com/adte/adset-agent/internal/middleware"
	"adte.com/adte/adset-agent/internal/tools"
)

// HTTPHandler serves the REST mirror of the tools next to the MCP endpoint.
type HTTPHandler struct {
	tools   *tools.Toolset
	db      *sql.DB
	mcp     http.Handler
	logger  *slog.Logger
	version string
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(ts *tools.Toolset, db *sql.DB, mcpHandler http.Handler, logger *slog.Logger, version string) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{tools: ts, db: db, mcp: mcpHandler, logger: logger, version: version}
}

// Routes registers every endpoint on a new mux.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.RootHandler)
	mux.HandleFunc("GET /health", h.HealthHandler)
	mux.HandleFunc("POST /get_adsets", h.GetAdSetsHandler)
	mux.HandleFunc("POST /get_adset_details", h.GetAdSetDetailsHandler)
	mux.HandleFunc("POST /update_adset", h.UpdateAdSetHandler)
	if h.mcp != nil {
		mux.Handle("/mcp", h.mcp)
		mux.Handle("/mcp/", h.mcp)
	}
	return mux
}

// RootHandler describes the service for discovery.
func (h *HTTPHandler) RootHandler(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"name":         "adset-agent",
		"version":      h.version,
		"mcp_endpoint": "/mcp",
		"tools":        []string{tools.ToolGetAdSets, tools.ToolGetAdSetDetails, tools.ToolUpdateAdSet},
	})
}

func (h *HTTPHandler) GetAdSetsHandler(w http.ResponseWriter, r *http.Request) {
	var req api.GetAdSetsRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeResult(w, h.tools.GetAdSets(r.Context(), req))
}

func (h *HTTPHandler) GetAdSetDetailsHandler(w http.ResponseWriter, r *http.Request) {
	var req api.GetAdSetDetailsRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeResult(w, h.tools.GetAdSetDetails(r.Context(), req))
}

func (h *HTTPHandler) UpdateAdSetHandler(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateAdSetRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeResult(w, h.tools.UpdateAdSet(r.Context(), req))
}

func (h *HTTPHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Error("health check failed", "error", err)
		middleware.WriteJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: "database unavailable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"agent":  "adset-agent",
	})
}

// decode reads an optional JSON body into v. An empty body leaves v zero.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "Invalid JSON format: " + err.Error()})
		return false
	}
	return true
}

// writeResult sends the tool text unchanged. Error results use 422 so REST
// clients can branch on status as well as on the error key.
func (h *HTTPHandler) writeResult(w http.ResponseWriter, res tools.Result) {
	w.Header().Set("Content-Type", "application/json")
	if res.IsError {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	if _, err := io.WriteString(w, res.Text); err != nil {
		h.logger.Error("write tool result failed", "error", err)
	}
}
