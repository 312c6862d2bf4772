package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/snapspend-backend/pkg/config"
)

const (
	defaultTokenURI  = "https://oauth2.googleapis.com/token"
	metadataTokenURL = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"
	storageScope     = "https://www.googleapis.com/auth/devstorage.read_write"
	jwtBearerGrant   = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// refreshMargin renews the bearer token before it actually expires.
	refreshMargin = time.Minute
)

type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// tokenSource caches one OAuth bearer token and refetches it near expiry.
type tokenSource struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
	fetch  func(context.Context) (string, time.Time, error)
}

func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Until(t.expiry) > refreshMargin {
		return t.token, nil
	}
	token, expiry, err := t.fetch(ctx)
	if err != nil {
		return "", err
	}
	t.token, t.expiry = token, expiry
	return token, nil
}

// loadCredentials returns a token source and, when a service account key is
// available, a URL signer.
func loadCredentials(httpClient *http.Client, gcp config.GCPConfig) (*tokenSource, *signer, error) {
	raw := strings.TrimSpace(gcp.CredentialsJSON)
	if raw == "" && gcp.ApplicationCredentials != "" {
		data, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs: read credentials file: %w", err)
		}
		raw = string(data)
	}
	if raw == "" {
		return &tokenSource{fetch: metadataFetcher(httpClient)}, nil, nil
	}

	key, sig, err := parseServiceAccount([]byte(raw))
	if err != nil {
		return nil, nil, err
	}
	return &tokenSource{fetch: serviceAccountFetcher(httpClient, key, sig)}, sig, nil
}

func parseServiceAccount(data []byte) (serviceAccountKey, *signer, error) {
	var key serviceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return key, nil, fmt.Errorf("gcs: parse service account: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return key, nil, errors.New("gcs: service account needs client_email and private_key")
	}
	if key.TokenURI == "" {
		key.TokenURI = defaultTokenURI
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(key.PrivateKey))
	if err != nil {
		return key, nil, fmt.Errorf("gcs: parse private key: %w", err)
	}
	return key, &signer{email: key.ClientEmail, key: priv}, nil
}

// assertion is the RS256 JWT exchanged for a bearer token.
func assertion(key serviceAccountKey, sig *signer, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":   key.ClientEmail,
		"scope": storageScope,
		"aud":   key.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(sig.key)
}

func serviceAccountFetcher(httpClient *http.Client, key serviceAccountKey, sig *signer) func(context.Context) (string, time.Time, error) {
	return func(ctx context.Context) (string, time.Time, error) {
		signed, err := assertion(key, sig, time.Now())
		if err != nil {
			return "", time.Time{}, fmt.Errorf("gcs: sign assertion: %w", err)
		}
		form := url.Values{"grant_type": {jwtBearerGrant}, "assertion": {signed}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, key.TokenURI, strings.NewReader(form.Encode()))
		if err != nil {
			return "", time.Time{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return exchange(httpClient, req)
	}
}

func metadataFetcher(httpClient *http.Client) func(context.Context) (string, time.Time, error) {
	return func(ctx context.Context) (string, time.Time, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataTokenURL, nil)
		if err != nil {
			return "", time.Time{}, err
		}
		req.Header.Set("Metadata-Flavor", "Google")
		return exchange(httpClient, req)
	}
}

func exchange(httpClient *http.Client, req *http.Request) (string, time.Time, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, statusError("token exchange", resp)
	}
	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", time.Time{}, fmt.Errorf("gcs: decode token: %w", err)
	}
	if body.AccessToken == "" {
		return "", time.Time{}, errors.New("gcs: token response without access_token")
	}
	return body.AccessToken, time.Now().Add(time.Duration(body.ExpiresIn) * time.Second), nil
}
