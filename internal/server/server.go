package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"adte.com/adte/adset-agent/internal/api"
	"adte.com/adte/adset-agent/internal/confirm"
	"github.com/spf13/cast"
)

// GraphAPI reads objects from the advertising platform.
type GraphAPI interface {
	Get(ctx context.Context, endpoint, token string, params map[string]any) (map[string]any, error)
}

// AccountResolver lists the ad accounts visible to a token.
type AccountResolver interface {
	AdAccounts(ctx context.Context, user, token string, limit int) (map[string]any, error)
}

// Confirmations stores proposed changes until a human decides on them.
type Confirmations interface {
	Create(ctx context.Context, adsetID, token string, current any, changes map[string]any) (*confirm.Record, error)
}

// CallbackStarter starts the confirmation listener on first use and returns
// its port.
type CallbackStarter interface {
	EnsureStarted(ctx context.Context) (int, error)
}

// Server struct holds the collaborators shared by all tools.
type Server struct {
	Graph         GraphAPI
	Accounts      AccountResolver
	Confirmations Confirmations
	Callback      CallbackStarter
	CallbackHost  string
	DefaultsFile  string
	Logger        *slog.Logger
}

// ListAdSets returns the ad sets of an account, falling back to the first
// account of the token owner when none is given.
func (s *Server) ListAdSets(ctx context.Context, token string, req api.GetAdSetsRequest) (map[string]any, error) {
	if token == "" {
		return nil, ErrMissingAccessToken
	}

	accountID := req.AccountID
	if accountID == "" {
		var err error
		accountID, err = s.firstAccountID(ctx, token)
		if err != nil {
			return nil, err
		}
	}

	params := map[string]any{
		"fields": api.AdSetListFields,
		"limit":  s.limit(req.Limit),
	}
	if req.CampaignID != "" {
		params["campaign_id"] = req.CampaignID
	}

	return s.Graph.Get(ctx, accountID+"/adsets", token, params)
}

// GetAdSetDetails returns a single ad set with the extended field set.
func (s *Server) GetAdSetDetails(ctx context.Context, token, adsetID string) (map[string]any, error) {
	if adsetID == "" {
		return nil, ErrMissingAdSetID
	}
	if token == "" {
		return nil, ErrMissingAccessToken
	}
	return s.Graph.Get(ctx, adsetID, token, map[string]any{
		"fields": api.AdSetDetailFields,
	})
}

// UpdateAdSet validates a proposed change and issues a confirmation for it.
// The platform is not touched until the confirmation is approved.
func (s *Server) UpdateAdSet(ctx context.Context, token, adsetID string, kwargs any) (*api.UpdateAdSetResponse, error) {
	if adsetID == "" {
		return nil, ErrMissingAdSetID
	}

	params, err := ParseUpdateParams(kwargs)
	if err != nil {
		return nil, err
	}
	if IsEmpty(params) {
		params = s.loadDefaults()
	}

	changes, err := BuildChangeSet(params)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrMissingAccessToken
	}

	var current any
	details, err := s.GetAdSetDetails(ctx, token, adsetID)
	if err != nil {
		s.Logger.Warn("current ad set details unavailable", "adset_id", adsetID, "error", err)
		current = ErrorBody(err)
	} else {
		current = details
	}

	port, err := s.Callback.EnsureStarted(ctx)
	if err != nil {
		return nil, fmt.Errorf("start confirmation server: %w", err)
	}

	rec, err := s.Confirmations.Create(ctx, adsetID, token, current, changes)
	if err != nil {
		return nil, err
	}

	confirmURL := s.confirmationURL(port, rec.ID, adsetID)
	return &api.UpdateAdSetResponse{
		Message:            "Please confirm the ad set update",
		ConfirmationID:     rec.ID,
		ConfirmationURL:    confirmURL,
		MarkdownLink:       fmt.Sprintf("[Click here to confirm ad set update](%s)", confirmURL),
		CurrentDetails:     current,
		ProposedChanges:    changes,
		ExpiresAt:          rec.ExpiresAt,
		InstructionsForLLM: "You must present this link as clickable Markdown to the user using the markdown_link format provided.",
		Note:               fmt.Sprintf("Open the link to review the current values and the proposed changes. Nothing is applied until the change is approved. The link expires at %s.", rec.ExpiresAt.Format(time.RFC3339)),
	}, nil
}

func (s *Server) firstAccountID(ctx context.Context, token string) (string, error) {
	accounts, err := s.Accounts.AdAccounts(ctx, "me", token, 1)
	if err != nil {
		s.Logger.Warn("account lookup failed", "error", err)
		return "", ErrNoAccountFound
	}

	data, _ := accounts["data"].([]any)
	if len(data) == 0 {
		return "", ErrNoAccountFound
	}
	first, _ := data[0].(map[string]any)
	id := cast.ToString(first["id"])
	if id == "" {
		return "", ErrNoAccountFound
	}
	return id, nil
}

func (s *Server) limit(v any) int {
	if v == nil {
		return api.DefaultLimit
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return api.DefaultLimit
		}
	case json.Number:
		v = t.String()
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		s.Logger.Debug("ignoring invalid limit", "limit", v, "error", err)
		return api.DefaultLimit
	}
	if n <= 0 {
		return api.DefaultLimit
	}
	return n
}

// loadDefaults reads the optional defaults file used when update_adset is
// called without parameters. Any failure yields an empty object.
func (s *Server) loadDefaults() UpdateParams {
	if s.DefaultsFile == "" {
		return StructuredValue{}
	}
	raw, err := os.ReadFile(s.DefaultsFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.Logger.Warn("update defaults file unreadable", "path", s.DefaultsFile, "error", err)
		}
		return StructuredValue{}
	}
	return RawJSONText(strings.TrimSpace(string(raw)))
}

func (s *Server) confirmationURL(port int, id, adsetID string) string {
	host := s.CallbackHost
	if host == "" {
		host = "localhost"
	}
	u := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/confirm-update",
		RawQuery: "id=" + url.QueryEscape(id) + "&adset_id=" + url.QueryEscape(adsetID),
	}
	return u.String()
}
