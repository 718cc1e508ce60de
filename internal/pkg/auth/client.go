package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/MediaDash/internal/pkg/env"
)

const tokenCachePrefix = "auth:token:"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Identity is the verified caller as reported by the auth provider.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Verifier resolves a bearer token to an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Client verifies access tokens against the auth provider's user endpoint and
// caches positive results in redis for CacheTTL.
type Client struct {
	BaseURL    string
	AnonKey    string
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Cache      *redis.Client
}

func NewClientFromEnv(cache *redis.Client) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(strings.TrimSpace(env.GetEnv("AUTH_URL", "")), "/"),
		AnonKey:  strings.TrimSpace(env.GetEnv("AUTH_ANON_KEY", "")),
		CacheTTL: time.Duration(env.GetEnvInt("AUTH_CACHE_TTL_SECONDS", 60)) * time.Second,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Cache: cache,
	}
}

func (c *Client) Verify(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	if c.BaseURL == "" {
		return nil, errors.New("AUTH_URL is not configured")
	}

	key := tokenCachePrefix + hashToken(token)
	if id := c.cached(ctx, key); id != nil {
		return id, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if c.AnonKey != "" {
		req.Header.Set("apikey", c.AnonKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth provider request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("auth provider returned status=%d body=%s", resp.StatusCode, string(body))
	}

	var id Identity
	if err := json.Unmarshal(body, &id); err != nil {
		return nil, fmt.Errorf("decode auth user: %w", err)
	}
	if strings.TrimSpace(id.UserID) == "" {
		return nil, ErrInvalidToken
	}

	c.store(ctx, key, &id)
	return &id, nil
}

func (c *Client) cached(ctx context.Context, key string) *Identity {
	if c.Cache == nil || c.CacheTTL <= 0 {
		return nil
	}
	raw, err := c.Cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debugf("[Auth] token cache read failed: %v", err)
		}
		return nil
	}
	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil || id.UserID == "" {
		return nil
	}
	return &id
}

func (c *Client) store(ctx context.Context, key string, id *Identity) {
	if c.Cache == nil || c.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(id)
	if err != nil {
		return
	}
	if err := c.Cache.Set(ctx, key, data, c.CacheTTL).Err(); err != nil {
		log.Debugf("[Auth] token cache write failed: %v", err)
	}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MaskToken shows the first and last four characters only.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
