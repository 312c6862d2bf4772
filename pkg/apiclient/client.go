package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/snapspend-backend/pkg/sessionstate"
)

// KeyRefreshToken is the local-store key holding the refresh token.
const KeyRefreshToken = "backend_refresh_token"

const (
	apiPrefix                   = "/api/v1"
	responseBodyReadLimit int64 = 1 << 20
)

var errBaseURLRequired = errors.New("api base url is required")

// TokenStore persists the session tokens between runs.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// APIError is the decoded error envelope of a non-2xx response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: %s: %s", e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client talks to the SnapSpend backend on behalf of the device.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenStore
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

// NewClient builds a client for the backend at baseURL.
func NewClient(baseURL string, tokens TokenStore, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if tokens == nil {
		return nil, fmt.Errorf("token store required")
	}
	client := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    trimmed,
		tokens:     tokens,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	// replay rebuilds the body when the request is retried after a refresh.
	replay func() io.Reader
	auth   bool
}

func jsonRequest(method, path string, payload any) (request, error) {
	req := request{method: method, path: path, auth: true}
	if payload == nil {
		return req, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return req, fmt.Errorf("marshal %s %s: %w", method, path, err)
	}
	req.contentType = "application/json"
	req.replay = func() io.Reader { return bytes.NewReader(data) }
	req.body = req.replay()
	return req, nil
}

// do sends req and decodes the success envelope's data into dest. An
// authenticated request rejected with 401 is retried once after a refresh.
func (c *Client) do(ctx context.Context, req request, dest any) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized && c.canRetry(ctx, req) {
		_ = resp.Body.Close()
		if err := c.Refresh(ctx); err != nil {
			return err
		}
		if req.replay != nil {
			req.body = req.replay()
		}
		resp, err = c.send(ctx, req)
		if err != nil {
			return err
		}
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, dest)
}

func (c *Client) canRetry(ctx context.Context, req request) bool {
	if !req.auth || (req.body != nil && req.replay == nil) {
		return false
	}
	return c.read(ctx, KeyRefreshToken) != ""
}

func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	target := c.baseURL + apiPrefix + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, req.body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.auth {
		if token := c.read(ctx, sessionstate.KeyBackendToken); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	return resp, nil
}

func decodeResponse(resp *http.Response, dest any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyReadLimit)).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) read(ctx context.Context, key string) string {
	value, err := c.tokens.Get(ctx, key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
