// Package tools runs every tool call through the same pipeline:
// resolve the access token, invoke the core operation, render the result.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"adte.com/adte/adset-agent/internal/auth"
	"adte.com/adte/adset-agent/internal/server"
)

// Call carries the per-invocation state shared by the middleware.
type Call struct {
	Tool  string
	Token string
}

type Handler func(ctx context.Context, call *Call) (any, error)

type Middleware func(Handler) Handler

// Chain wraps h so that the first middleware runs outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// TokenSource supplies the cached access token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ResolveToken fills in the cached token when the caller gave none. A call
// that still has no token is left to the core operation to reject.
func ResolveToken(src TokenSource) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (any, error) {
			if call.Token == "" && src != nil {
				token, err := src.Token(ctx)
				if err != nil {
					return nil, fmt.Errorf("resolve access token: %w", err)
				}
				call.Token = token
			}
			return next(ctx, call)
		}
	}
}

// Authorize checks the principal attached by the HTTP auth middleware.
// Calls without a principal come from local transports and are trusted.
func Authorize() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (any, error) {
			if principal, ok := auth.GetPrincipalFromContext(ctx); ok {
				if err := auth.CheckOperationPermissions(principal, call.Tool); err != nil {
					return nil, err
				}
			}
			return next(ctx, call)
		}
	}
}

// Logging records each call's outcome. Tokens are never logged.
func Logging(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (any, error) {
			start := time.Now()
			out, err := next(ctx, call)
			attrs := []any{
				"tool", call.Tool,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.Warn("tool call failed", append(attrs, "error", err)...)
			} else {
				logger.Info("tool call completed", attrs...)
			}
			return out, err
		}
	}
}

// Result is the rendered text of a tool call.
type Result struct {
	Text    string
	IsError bool
}

// Render produces the 2-space indented JSON text returned to callers.
func Render(v any, err error) Result {
	if err != nil {
		return Result{Text: marshal(server.ErrorBody(err)), IsError: true}
	}
	return Result{Text: marshal(v)}
}

func marshal(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return marshal(map[string]any{"error": "encode result: " + err.Error()})
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
