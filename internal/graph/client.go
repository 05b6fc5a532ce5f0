package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Client performs authenticated calls against the Meta Graph API.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	Retries    int
	RetryWait  time.Duration
	Logger     *slog.Logger
}

func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 250 * time.Millisecond
	}

	limit := rate.Inf
	burst := 1
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
		burst = max(1, int(opts.RatePerSec))
	}

	c := &Client{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}

	c.http = resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(5 * time.Second)
	c.http.AddRetryCondition(retryCondition)
	c.http.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		return c.limiter.Wait(r.Context())
	})

	return c
}

// retryCondition retries idempotent reads on transport errors, 429 and 5xx.
// Mutations are never retried.
func retryCondition(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// APIError is a non-2xx reply from the Graph API. Body holds the decoded
// platform error object, or the raw text when it was not JSON.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph %s %s HTTP %d", e.Method, e.Endpoint, e.StatusCode)
}

// Payload is the mapping surfaced to tool callers unchanged.
func (e *APIError) Payload() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"message":     fmt.Sprintf("HTTP Error: %d", e.StatusCode),
			"status_code": e.StatusCode,
			"details":     e.Body,
		},
	}
}

// Get reads endpoint with params as query values.
func (c *Client) Get(ctx context.Context, endpoint, token string, params map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, endpoint, token, params)
}

// Post writes to endpoint with params as form values.
func (c *Client) Post(ctx context.Context, endpoint, token string, params map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, endpoint, token, params)
}

// AdAccounts lists the ad accounts visible to user ("me" for the token owner).
func (c *Client) AdAccounts(ctx context.Context, user, token string, limit int) (map[string]any, error) {
	if user == "" {
		user = "me"
	}
	return c.Get(ctx, user+"/adaccounts", token, map[string]any{
		"fields": "id,name,account_id,account_status,amount_spent,balance,currency,age,business_city,business_country_code",
		"limit":  limit,
	})
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, params map[string]any) (map[string]any, error) {
	path, err := escapeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	values, err := EncodeParams(params)
	if err != nil {
		return nil, err
	}
	values["access_token"] = token

	req := c.http.R().SetContext(ctx)
	if method == http.MethodGet {
		req.SetQueryParams(values)
	} else {
		req.SetFormData(values)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Warn("graph request failed", "method", method, "endpoint", endpoint, "error", err)
		return nil, fmt.Errorf("graph %s %s: %w", method, endpoint, err)
	}
	c.logger.Debug("graph request completed",
		"method", method,
		"endpoint", endpoint,
		"status", resp.StatusCode(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.IsError() {
		return nil, &APIError{
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Body:       decodeErrorBody(resp.Body()),
		}
	}
	return decodeObject(resp.Body())
}

func escapeEndpoint(endpoint string) (string, error) {
	endpoint = strings.Trim(endpoint, "/")
	if endpoint == "" {
		return "", errors.New("graph endpoint is empty")
	}
	parts := strings.Split(endpoint, "/")
	for i, p := range parts {
		if p == "" || p == "." || p == ".." {
			return "", fmt.Errorf("invalid graph endpoint %q", endpoint)
		}
		parts[i] = url.PathEscape(p)
	}
	return "/" + strings.Join(parts, "/"), nil
}

// EncodeParams flattens a parameter mapping into Graph API form values.
// Objects and arrays are sent as JSON text, nil values are skipped.
func EncodeParams(params map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(params)+1)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := params[k].(type) {
		case nil:
			continue
		case string:
			out[k] = v
		case json.Number:
			out[k] = v.String()
		case bool:
			out[k] = strconv.FormatBool(v)
		case int:
			out[k] = strconv.Itoa(v)
		case int64:
			out[k] = strconv.FormatInt(v, 10)
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode param %q: %w", k, err)
			}
			out[k] = string(raw)
		}
	}
	return out, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode graph response: %w", err)
	}
	if obj, ok := v.(map[string]any); ok {
		return obj, nil
	}
	return map[string]any{"result": v}, nil
}

func decodeErrorBody(body []byte) any {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(body)
	}
	return v
}
