package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"adte.com/adte/adset-agent/internal/auth"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the claims in our JWT tokens
type JWTClaims struct {
	jwt.RegisteredClaims
	Permissions struct {
		AdSets []string `json:"adsets,omitempty"`
	} `json:"permissions,omitempty"`
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const ContextKeyClaims contextKey = "jwt_claims"

// GetClaimsFromContext retrieves JWT claims from the request context
func GetClaimsFromContext(ctx context.Context) (*JWTClaims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*JWTClaims)
	return claims, ok
}

type authError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// sendAuthErrorResponse writes 403 for permission failures and 401 otherwise.
func sendAuthErrorResponse(w http.ResponseWriter, code string, message string) {
	status := http.StatusUnauthorized
	if code == "INSUFFICIENT_PERMISSIONS" {
		status = http.StatusForbidden
	}
	var body authError
	body.Error.Code = code
	body.Error.Message = message
	WriteJSON(w, status, body)
}

// UnifiedAuthMiddleware accepts either an X-API-Key header or an HMAC signed
// bearer JWT and attaches the resulting principal to the request context.
func UnifiedAuthMiddleware(jwtSecretKey string, apiKeyStore *auth.APIKeyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				principal, ok := apiKeyStore.GetPrincipal(apiKey)
				if !ok {
					sendAuthErrorResponse(w, "AUTH_INVALID", "Invalid or expired credentials")
					return
				}
				next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				sendAuthErrorResponse(w, "AUTH_REQUIRED", "Authentication required for this operation")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || tokenString == "" {
				sendAuthErrorResponse(w, "AUTH_INVALID", "Invalid authorization header format")
				return
			}

			claims := &JWTClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				return []byte(jwtSecretKey), nil
			}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
			if err != nil || !token.Valid {
				logger.Debug("JWT validation failed", "error", err, "path", r.URL.Path)
				sendAuthErrorResponse(w, "AUTH_INVALID", "Invalid or expired credentials")
				return
			}

			principal := &auth.Principal{
				PrincipalID: claims.Subject,
				Permissions: make(map[string][]auth.Permission),
			}
			if len(claims.Permissions.AdSets) > 0 {
				principal.Permissions[auth.ResourceAdSets] = stringSliceToPermissions(claims.Permissions.AdSets)
			}

			ctx := auth.WithPrincipal(r.Context(), principal)
			ctx = context.WithValue(ctx, ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects requests whose principal lacks permission on
// resource. It must run after UnifiedAuthMiddleware.
func RequirePermission(resource string, permissions ...auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.GetPrincipalFromContext(r.Context())
			if !ok {
				sendAuthErrorResponse(w, "AUTH_REQUIRED", "Authentication required for this operation")
				return
			}
			for _, p := range permissions {
				if !principal.HasPermission(resource, p) {
					sendAuthErrorResponse(w, "INSUFFICIENT_PERMISSIONS", "Missing "+string(p)+" permission on "+resource)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// stringSliceToPermissions converts string permissions to Permission types
func stringSliceToPermissions(perms []string) []auth.Permission {
	result := make([]auth.Permission, 0, len(perms))
	for _, p := range perms {
		result = append(result, auth.Permission(p))
	}
	return result
}
