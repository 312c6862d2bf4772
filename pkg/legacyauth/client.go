package legacyauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
	"github.com/angelmondragon/snapspend-backend/pkg/sessionstate"
)

// KeyAccessToken is the local-store key holding the legacy provider's token.
const KeyAccessToken = "legacy_access_token"

const responseBodyReadLimit int64 = 1024

var errBaseURLRequired = errors.New("legacy auth base url is required")

type tokenStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// Client reads the current user from the legacy hosted auth provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	tokens     tokenStore
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds a client for the provider at baseURL. apiKey is the
// project's public key sent as the apikey header.
func NewClient(baseURL, apiKey string, tokens tokenStore, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    trimmed,
		apiKey:     strings.TrimSpace(apiKey),
		tokens:     tokens,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CurrentUser returns the signed-in legacy user. A missing token or a token
// the provider rejects yields nil, nil.
func (c *Client) CurrentUser(ctx context.Context) (*sessionstate.LegacyUser, error) {
	if c == nil || c.tokens == nil {
		return nil, nil
	}
	token, err := c.tokens.Get(ctx, KeyAccessToken)
	if err != nil || strings.TrimSpace(token) == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build legacy user request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute legacy user request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "legacy user request failed")
	}

	var body struct {
		ID    string  `json:"id"`
		Email *string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode legacy user")
	}
	if strings.TrimSpace(body.ID) == "" {
		return nil, nil
	}

	user := &sessionstate.LegacyUser{ID: body.ID}
	if body.Email != nil {
		user.Email = *body.Email
	}
	return user, nil
}
