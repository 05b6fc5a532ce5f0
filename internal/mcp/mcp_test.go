package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"adte.com/adte/adset-agent/internal/confirm"
	"adte.com/adte/adset-agent/internal/server"
	"adte.com/adte/adset-agent/internal/tools"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGraph struct {
	calls int
}

func (g *countingGraph) Get(_ context.Context, endpoint, _ string, params map[string]any) (map[string]any, error) {
	g.calls++
	return map[string]any{"id": endpoint, "fields": params["fields"]}, nil
}

type fixedTokens string

func (f fixedTokens) Token(context.Context) (string, error) { return string(f), nil }

type stubConfirmations struct {
	adsetID string
	current any
	changes map[string]any
}

func (s *stubConfirmations) Create(_ context.Context, adsetID, _ string, current any, changes map[string]any) (*confirm.Record, error) {
	s.adsetID, s.current, s.changes = adsetID, current, changes
	return &confirm.Record{
		ID:        "c-1",
		AdSetID:   adsetID,
		Changes:   changes,
		Status:    confirm.StatusPending,
		ExpiresAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

type fixedPort int

func (p fixedPort) EnsureStarted(context.Context) (int, error) { return int(p), nil }

func connect(t *testing.T, g *countingGraph) *sdk.ClientSession {
	t.Helper()
	return connectServer(t, &server.Server{Graph: g, Logger: slog.Default()})
}

func connectServer(t *testing.T, srv *server.Server) *sdk.ClientSession {
	t.Helper()
	mcpServer := NewServer(tools.NewToolset(srv, fixedTokens("tok"), slog.Default()), "test")

	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	ss, err := mcpServer.Connect(t.Context(), serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(t.Context(), clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callText(t *testing.T, cs *sdk.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(t.Context(), &sdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*sdk.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestRegisterTools(t *testing.T) {
	cs := connect(t, &countingGraph{})

	res, err := cs.ListTools(t.Context(), nil)
	require.NoError(t, err)
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"get_adsets", "get_adset_details", "update_adset"}, names)
}

func TestToolCalls(t *testing.T) {
	t.Run("Should return the missing id error without a remote call", func(t *testing.T) {
		g := &countingGraph{}
		cs := connect(t, g)

		text, isErr := callText(t, cs, "get_adset_details", map[string]any{})
		assert.True(t, isErr)
		assert.Equal(t, "{\n  \"error\": \"No ad set ID provided\"\n}", text)
		assert.Zero(t, g.calls)
	})

	t.Run("Should return the platform response as indented JSON", func(t *testing.T) {
		cs := connect(t, &countingGraph{})

		text, isErr := callText(t, cs, "get_adset_details", map[string]any{"adset_id": "42"})
		assert.False(t, isErr)

		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(text), &out))
		assert.Equal(t, "42", out["id"])
		assert.Contains(t, text, "\n  \"id\": \"42\"")
	})

	t.Run("Should accept the positional id", func(t *testing.T) {
		cs := connect(t, &countingGraph{})
		text, isErr := callText(t, cs, "get_adset_details", map[string]any{"args": "77"})
		assert.False(t, isErr)
		assert.Contains(t, text, "\"77\"")
	})

	t.Run("Should reject kwargs without whitelisted keys", func(t *testing.T) {
		cs := connect(t, &countingGraph{})
		text, isErr := callText(t, cs, "update_adset", map[string]any{
			"adset_id": "42",
			"kwargs":   map[string]any{"foo": "bar"},
		})
		assert.True(t, isErr)
		assert.JSONEq(t, `{"error": "No update parameters provided"}`, text)
	})

	t.Run("Should echo malformed kwargs", func(t *testing.T) {
		cs := connect(t, &countingGraph{})
		text, isErr := callText(t, cs, "update_adset", map[string]any{
			"adset_id": "42",
			"kwargs":   "{not json",
		})
		assert.True(t, isErr)
		assert.Contains(t, text, "Invalid kwargs format")
		assert.Contains(t, text, "received: {not json")
	})
}

func TestUpdateAdSetTool(t *testing.T) {
	t.Run("Should return a confirmation link for whitelisted changes", func(t *testing.T) {
		confirms := &stubConfirmations{}
		cs := connectServer(t, &server.Server{
			Graph:         &countingGraph{},
			Confirmations: confirms,
			Callback:      fixedPort(8765),
			CallbackHost:  "localhost",
			Logger:        slog.Default(),
		})

		text, isErr := callText(t, cs, "update_adset", map[string]any{
			"adset_id": "42",
			"kwargs":   map[string]any{"status": "PAUSED", "name": "ignored"},
		})
		require.False(t, isErr, text)

		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(text), &out))
		wantURL := "http://localhost:8765/confirm-update?id=c-1&adset_id=42"
		assert.Equal(t, "c-1", out["confirmation_id"])
		assert.Equal(t, wantURL, out["confirmation_url"])
		assert.Equal(t, "[Click here to confirm ad set update]("+wantURL+")", out["markdown_link"])
		assert.Equal(t, map[string]any{"status": "PAUSED"}, out["proposed_changes"])
		assert.Equal(t, "42", out["current_details"].(map[string]any)["id"])
		assert.NotEmpty(t, out["instructions_for_llm"])
		assert.Contains(t, text, "\n  \"confirmation_url\"")

		assert.Equal(t, "42", confirms.adsetID)
		assert.Equal(t, map[string]any{"status": "PAUSED"}, confirms.changes)
		assert.NotNil(t, confirms.current)
	})
}
