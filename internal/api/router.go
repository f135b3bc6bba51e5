// Package api provides the HTTP host surface for the git operations.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"lerian-mcp-git/internal/api/middleware"
	"lerian-mcp-git/internal/audit"
	"lerian-mcp-git/internal/config"
	mcperrors "lerian-mcp-git/internal/errors"
	"lerian-mcp-git/internal/logging"
	"lerian-mcp-git/internal/mcp"
	"lerian-mcp-git/internal/session"
	"lerian-mcp-git/internal/tools"

	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

const maxRequestBytes = 1 << 20

// Audit listing bounds
const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// Router represents the main API router
type Router struct {
	config    *config.Config
	mux       *chi.Mux
	server    *mcp.GitServer
	logger    logging.Logger
	upgrader  websocket.Upgrader
	startedAt time.Time
}

// NewRouter creates a new API router with middleware and routes
func NewRouter(cfg *config.Config, server *mcp.GitServer, logger logging.Logger) *Router {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	r := &Router{
		config: cfg,
		mux:    chi.NewRouter(),
		server: server,
		logger: logger.WithComponent("api"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		startedAt: time.Now(),
	}

	r.setupMiddleware(logger)
	r.setupRoutes()
	return r
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.mux
}

func (r *Router) setupMiddleware(logger logging.Logger) {
	r.mux.Use(chimiddleware.Recoverer)
	r.mux.Use(middleware.NewLoggingMiddleware(logger).Handler())
	r.mux.Use(chimiddleware.RequestSize(maxRequestBytes))
	r.mux.Use(chimiddleware.Heartbeat("/ping"))
}

func (r *Router) setupRoutes() {
	r.mux.Get("/health", r.handleHealth)
	r.mux.Post("/mcp", r.handleMCP)
	r.mux.Get("/ws", r.handleWebSocket)

	r.mux.Route("/api/v1", func(api chi.Router) {
		api.Get("/tools", r.handleListTools)
		api.Get("/session", r.handleSession)
		api.Get("/audit", r.handleAudit)
		api.Post("/operations/{name}", r.handleOperation)
	})
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": r.config.Server.Name,
		"version": r.config.Server.Version,
		"uptime":  time.Since(r.startedAt).Round(time.Second).String(),
	})
}

// handleMCP serves one JSON-RPC request per POST
func (r *Router) handleMCP(w http.ResponseWriter, req *http.Request) {
	var rpcReq protocol.JSONRPCRequest
	if err := json.NewDecoder(req.Body).Decode(&rpcReq); err != nil {
		writeJSON(w, http.StatusBadRequest, parseErrorResponse(err))
		return
	}

	ctx := mcp.WithTransport(req.Context(), mcp.TransportHTTP)
	writeJSON(w, http.StatusOK, r.server.HandleRequest(ctx, &rpcReq))
}

// handleWebSocket serves JSON-RPC requests over a WebSocket until the peer disconnects
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.WarnContext(req.Context(), "WebSocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx := mcp.WithTransport(req.Context(), mcp.TransportWebSocket)
	r.logger.InfoContext(ctx, "WebSocket client connected", "remote", req.RemoteAddr)
	r.serveWebSocket(ctx, conn)
	r.logger.InfoContext(ctx, "WebSocket client disconnected", "remote", req.RemoteAddr)
}

func (r *Router) serveWebSocket(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxRequestBytes)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.WarnContext(ctx, "WebSocket read failed", "error", err)
			}
			return
		}

		var resp *protocol.JSONRPCResponse
		var rpcReq protocol.JSONRPCRequest
		if err := json.Unmarshal(data, &rpcReq); err != nil {
			resp = parseErrorResponse(err)
		} else {
			resp = r.server.HandleRequest(logging.WithTraceID(ctx, ""), &rpcReq)
		}

		if err := conn.WriteJSON(resp); err != nil {
			r.logger.WarnContext(ctx, "WebSocket write failed", "error", err)
			return
		}
	}
}

func (r *Router) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools": r.server.Registry().Describe(),
	})
}

type sessionResponse struct {
	session.Reference
	Changes int64 `json:"changes"`
}

func (r *Router) handleSession(w http.ResponseWriter, _ *http.Request) {
	sess := r.server.Registry().Session()
	writeJSON(w, http.StatusOK, sessionResponse{Reference: sess.Reference(), Changes: sess.Changes()})
}

// handleAudit lists recorded operation calls, newest first. Query parameters:
// limit, operation (repeatable), repository and success.
func (r *Router) handleAudit(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	criteria := audit.SearchCriteria{
		Operations: query["operation"],
		Repository: query.Get("repository"),
		Limit:      defaultAuditLimit,
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			invalidQuery(w, "limit", raw)
			return
		}
		criteria.Limit = min(limit, maxAuditLimit)
	}
	if raw := query.Get("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			invalidQuery(w, "success", raw)
			return
		}
		criteria.Success = &success
	}

	events, err := r.server.AuditEvents(req.Context(), criteria)
	if err != nil {
		if errors.Is(err, audit.ErrSearchUnsupported) {
			writeJSON(w, http.StatusNotImplemented,
				mcperrors.NewStandardError(mcperrors.ErrorCodeInternalError, err.Error(), nil).WithProtocol("http"))
			return
		}
		r.logger.ErrorContext(req.Context(), "Audit search failed", "error", err)
		mcperrors.NewInternalError("Audit search failed", err).WithProtocol("http").WriteHTTPError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func invalidQuery(w http.ResponseWriter, field, value string) {
	mcperrors.NewStandardError(mcperrors.ErrorCodeInvalidArgument, "Invalid query parameter: "+field,
		mcperrors.ValidationDetail{Field: field, Reason: "invalid", Value: value}).
		WithProtocol("http").
		WriteHTTPError(w)
}

type operationRequest struct {
	Arguments map[string]interface{} `json:"arguments"`
}

type operationResponse struct {
	Operation string `json:"operation"`
	Result    string `json:"result"`
}

// handleOperation invokes one operation with a JSON body of arguments
func (r *Router) handleOperation(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	if _, ok := tools.Lookup(name); !ok {
		mcperrors.NewStandardError(mcperrors.ErrorCodeInvalidArgument, "Unknown operation: "+name,
			mcperrors.ValidationDetail{Field: "operation", Reason: "unknown", Value: name}).
			WithProtocol("http").
			WriteHTTPError(w)
		return
	}

	var body operationRequest
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			mcperrors.NewStandardError(mcperrors.ErrorCodeInvalidArgument, "Invalid request body", err.Error()).
				WithProtocol("http").
				WriteHTTPError(w)
			return
		}
	}

	args, err := mcp.DecodeArguments(body.Arguments)
	if err != nil {
		var stdErr *mcperrors.StandardError
		if errors.As(err, &stdErr) {
			stdErr.WithProtocol("http").WriteHTTPError(w)
			return
		}
		mcperrors.NewInternalError("Failed to decode arguments", err).WriteHTTPError(w)
		return
	}

	result := r.server.Call(mcp.WithTransport(req.Context(), mcp.TransportHTTP), name, args)
	if !result.OK() {
		result.Err.WithProtocol("http").WriteHTTPError(w)
		return
	}

	writeJSON(w, http.StatusOK, operationResponse{Operation: name, Result: result.Value})
}

func parseErrorResponse(err error) *protocol.JSONRPCResponse {
	return &protocol.JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   protocol.NewJSONRPCError(protocol.ParseError, "Parse error", err.Error()),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
