package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/snapspend-backend/pkg/config"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
)

const (
	storageHost = "storage.googleapis.com"
	jsonAPI     = "https://storage.googleapis.com/storage/v1"

	requestTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
	maxURLLifetime = 7 * 24 * time.Hour
	errBodyLimit   = 2048
)

var (
	// ErrNoSigner is returned by presign calls when the client runs on
	// metadata-server credentials, which cannot sign URLs locally.
	ErrNoSigner = errors.New("gcs: url signing needs a service account key")

	errNotInitialized = errors.New("gcs: client not initialized")
)

// Client talks to one Cloud Storage bucket over the JSON API and signs V2
// URLs for direct receipt photo transfers.
type Client struct {
	httpClient *http.Client
	bucket     string
	tokens     *tokenSource
	signer     *signer
	now        func() time.Time
}

// NewClient resolves credentials, checks bucket access and returns a ready
// client. Explicit JSON credentials win over a credentials file, and both win
// over the metadata server.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	bucket := strings.TrimSpace(cfg.BucketName)
	if bucket == "" {
		return nil, errors.New("gcs: bucket name is required")
	}

	httpClient := &http.Client{Timeout: requestTimeout}
	tokens, sig, err := loadCredentials(httpClient, gcp)
	if err != nil {
		return nil, err
	}

	client := &Client{
		httpClient: httpClient,
		bucket:     bucket,
		tokens:     tokens,
		signer:     sig,
		now:        time.Now,
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs: bucket check: %w", err)
	}

	if logg != nil {
		ctx = logg.WithField(ctx, "bucket", bucket)
		logg.Info(ctx, "storage.gcs_ready")
		if sig == nil {
			logg.Warn(ctx, "storage.gcs_unsigned")
		}
	}
	return client, nil
}

// Bucket returns the bucket receipt photos are stored in.
func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

func (c *Client) Close() error { return nil }

// Ping lists at most one object, which needs storage.objects.list on the
// bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.tokens == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/b/%s/o?maxResults=1", jsonAPI, url.PathEscape(c.bucket))
	resp, err := c.do(ctx, http.MethodGet, endpoint)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError("list objects", resp)
	}
	return nil
}

// PresignPut signs an upload of key with the given content type.
func (c *Client) PresignPut(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", errors.New("gcs: content type is required")
	}
	return c.signURL(http.MethodPut, key, contentType, ttl)
}

// PresignGet signs a download of key.
func (c *Client) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return c.signURL(http.MethodGet, key, "", ttl)
}

// Delete removes key. Deleting a missing object succeeds.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c == nil || c.tokens == nil {
		return errNotInitialized
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return errors.New("gcs: object key is required")
	}

	// The object name is a single escaped path segment in the JSON API.
	endpoint := fmt.Sprintf("%s/b/%s/o/%s", jsonAPI, url.PathEscape(c.bucket), url.PathEscape(key))
	resp, err := c.do(ctx, http.MethodDelete, endpoint)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return statusError("delete "+key, resp)
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

// signURL builds a V2 signed URL. The string to sign is the verb, an empty
// content MD5, the content type, the expiry and the canonical resource, joined
// by newlines.
func (c *Client) signURL(method, key, contentType string, ttl time.Duration) (string, error) {
	if c == nil || c.signer == nil {
		return "", ErrNoSigner
	}
	if c.bucket == "" {
		return "", errors.New("gcs: bucket is required")
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", errors.New("gcs: object key is required")
	}
	if ttl <= 0 || ttl > maxURLLifetime {
		return "", fmt.Errorf("gcs: url lifetime must be in (0, %s]", maxURLLifetime)
	}

	expires := strconv.FormatInt(c.clock().Add(ttl).Unix(), 10)
	resource := "/" + c.bucket + "/" + key
	stringToSign := method + "\n\n" + contentType + "\n" + expires + "\n" + resource

	sig, err := c.signer.sign([]byte(stringToSign))
	if err != nil {
		return "", fmt.Errorf("gcs: sign url: %w", err)
	}

	query := url.Values{
		"GoogleAccessId": {c.signer.email},
		"Expires":        {expires},
		"Signature":      {base64.StdEncoding.EncodeToString(sig)},
	}
	u := url.URL{Scheme: "https", Host: storageHost, Path: resource, RawQuery: query.Encode()}
	return u.String(), nil
}

func (c *Client) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// signer holds the service account identity used for URL signatures.
type signer struct {
	email string
	key   *rsa.PrivateKey
}

func (s *signer) sign(payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	return rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("gcs: %s: %s: %s", op, resp.Status, msg)
	}
	return fmt.Errorf("gcs: %s: %s", op, resp.Status)
}
