package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"adte.com/adte/adset-agent/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const testSecret = "test-secret"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.GetPrincipalFromContext(r.Context())
		if p != nil {
			w.Header().Set("X-Principal", p.PrincipalID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, perms []string, exp time.Time) string {
	t.Helper()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "agent-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	claims.Permissions.AdSets = perms
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestUnifiedAuthMiddleware(t *testing.T) {
	keys := auth.NewAPIKeyStore()
	keys.AddKey("good-key", auth.OperatorPrincipal("operator"))
	h := UnifiedAuthMiddleware(testSecret, keys, slog.Default())(okHandler())

	serve := func(setup func(r *http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/get_adsets", nil)
		setup(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("Should accept a known API key", func(t *testing.T) {
		rec := serve(func(r *http.Request) { r.Header.Set("X-API-Key", "good-key") })
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "operator", rec.Header().Get("X-Principal"))
	})

	t.Run("Should reject an unknown API key", func(t *testing.T) {
		rec := serve(func(r *http.Request) { r.Header.Set("X-API-Key", "bad") })
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "AUTH_INVALID")
	})

	t.Run("Should require credentials", func(t *testing.T) {
		rec := serve(func(*http.Request) {})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "AUTH_REQUIRED")
	})

	t.Run("Should accept a valid bearer token", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), []string{"read"}, time.Now().Add(time.Hour))
		rec := serve(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "agent-1", rec.Header().Get("X-Principal"))
	})

	t.Run("Should reject expired tokens", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), nil, time.Now().Add(-time.Hour))
		rec := serve(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Should reject tokens signed with another key", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, []byte("other"), nil, time.Now().Add(time.Hour))
		rec := serve(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Should reject malformed headers", func(t *testing.T) {
		rec := serve(func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") })
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequirePermission(t *testing.T) {
	h := RequirePermission(auth.ResourceAdSets, auth.PermissionRead, auth.PermissionWrite)(okHandler())

	t.Run("Should forbid principals without write", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		reader := &auth.Principal{PrincipalID: "r", Permissions: map[string][]auth.Permission{auth.ResourceAdSets: {auth.PermissionRead}}}
		req = req.WithContext(auth.WithPrincipal(req.Context(), reader))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Should allow operators", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req = req.WithContext(auth.WithPrincipal(req.Context(), auth.OperatorPrincipal("op")))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	store := NewRateLimiterStore(rate.Every(time.Hour), 2, time.Minute)
	h := RateLimitMiddleware(store)(okHandler())

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExcludePathsMiddleware(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	}
	h := ExcludePathsMiddleware(deny, []string{"/health"})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	CORSMiddleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/mcp", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestClientIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIPFromRequest(req))
}
