package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"adte.com/adte/adset-agent/internal/gen/db"
)

// DefaultTokenName is the cache slot used for the platform access token.
const DefaultTokenName = "meta"

// TokenCache keeps platform access tokens in the sqlite store so tools can
// run without a token argument.
type TokenCache struct {
	queries *db.Queries
	now     func() time.Time
}

func NewTokenCache(queries *db.Queries) *TokenCache {
	return &TokenCache{queries: queries, now: time.Now}
}

// Token returns the cached token, or "" when none is stored.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	token, err := c.queries.GetAccessToken(ctx, DefaultTokenName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cached token: %w", err)
	}
	return token, nil
}

// Store replaces the cached token.
func (c *TokenCache) Store(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("token is empty")
	}
	err := c.queries.UpsertAccessToken(ctx, db.UpsertAccessTokenParams{
		Name:      DefaultTokenName,
		Token:     token,
		UpdatedAt: c.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}
