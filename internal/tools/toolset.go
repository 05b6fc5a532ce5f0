package tools

import (
	"context"
	"log/slog"

	"adte.com/adte/adset-agent/internal/api"
	"adte.com/adte/adset-agent/internal/server"
)

const (
	ToolGetAdSets       = "get_adsets"
	ToolGetAdSetDetails = "get_adset_details"
	ToolUpdateAdSet     = "update_adset"
)

// Toolset exposes the ad set tools to every transport.
type Toolset struct {
	srv         *server.Server
	middlewares []Middleware
}

func NewToolset(srv *server.Server, tokens TokenSource, logger *slog.Logger) *Toolset {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolset{
		srv: srv,
		middlewares: []Middleware{
			Logging(logger),
			Authorize(),
			ResolveToken(tokens),
		},
	}
}

func (t *Toolset) GetAdSets(ctx context.Context, req api.GetAdSetsRequest) Result {
	return t.run(ctx, ToolGetAdSets, req.AccessToken, func(ctx context.Context, call *Call) (any, error) {
		return t.srv.ListAdSets(ctx, call.Token, req)
	})
}

func (t *Toolset) GetAdSetDetails(ctx context.Context, req api.GetAdSetDetailsRequest) Result {
	return t.run(ctx, ToolGetAdSetDetails, req.AccessToken, func(ctx context.Context, call *Call) (any, error) {
		return t.srv.GetAdSetDetails(ctx, call.Token, req.ID())
	})
}

func (t *Toolset) UpdateAdSet(ctx context.Context, req api.UpdateAdSetRequest) Result {
	return t.run(ctx, ToolUpdateAdSet, req.AccessToken, func(ctx context.Context, call *Call) (any, error) {
		return t.srv.UpdateAdSet(ctx, call.Token, req.ID(), req.Kwargs)
	})
}

func (t *Toolset) run(ctx context.Context, tool, token string, core Handler) Result {
	call := &Call{Tool: tool, Token: token}
	return Render(Chain(core, t.middlewares...)(ctx, call))
}
