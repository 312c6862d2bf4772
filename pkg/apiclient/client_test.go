package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
	"github.com/angelmondragon/snapspend-backend/pkg/sessionstate"
)

var (
	_ sessionstate.TokenChecker = (*Client)(nil)
	_ sessionstate.EmailFetcher = (*Client)(nil)
)

type memoryTokens struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{values: map[string]string{}}
}

func (m *memoryTokens) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *memoryTokens) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memoryTokens) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": code, "message": msg}})
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *memoryTokens) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := newMemoryTokens()
	client, err := NewClient(srv.URL+"/", tokens)
	require.NoError(t, err)
	return client, tokens
}

func TestLoginStoresSessionAndChecksIt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Password != "correct horse" {
			writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
			return
		}
		writeData(w, http.StatusOK, Session{AccessToken: "a1", RefreshToken: "r1", User: &User{Email: body.Email}})
	})
	mux.HandleFunc("/api/v1/auth/session", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]any{"active": r.Header.Get("Authorization") == "Bearer a1"})
	})
	mux.HandleFunc("/api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, User{Email: "ana@example.com"})
	})
	client, tokens := newTestClient(t, mux)
	ctx := context.Background()

	assert.False(t, client.IsAuthenticated(ctx))

	_, err := client.Login(ctx, "ana@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	assert.Equal(t, "invalid credentials", apiErr.Message)

	sess, err := client.Login(ctx, "ana@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "a1", sess.AccessToken)
	assert.Equal(t, "a1", tokens.values[sessionstate.KeyBackendToken])
	assert.Equal(t, "r1", tokens.values[KeyRefreshToken])
	assert.Equal(t, "ana@example.com", tokens.values[sessionstate.KeyBackendEmail])

	assert.True(t, client.IsAuthenticated(ctx))
	email, err := client.CurrentUserEmail(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", email)
}

func TestGuestClearsCachedEmail(t *testing.T) {
	guestID := uuid.New()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/guest", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusCreated, Session{
			AccessToken:  "g1",
			RefreshToken: "gr1",
			GuestID:      &guestID,
			User:         &User{ID: guestID, Email: "guest-x@guest.snapspend.app", IsGuest: true},
		})
	})
	client, tokens := newTestClient(t, mux)
	tokens.values[sessionstate.KeyBackendEmail] = "old@example.com"

	sess, err := client.Guest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess.GuestID)
	assert.Equal(t, guestID, *sess.GuestID)
	_, ok := tokens.values[sessionstate.KeyBackendEmail]
	assert.False(t, ok)
}

func TestExpiredTokenIsRefreshedAndRequestReplayed(t *testing.T) {
	var created []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/receipts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}
		body, _ := io.ReadAll(r.Body)
		created = append(created, string(body))
		var in map[string]any
		require.NoError(t, json.Unmarshal(body, &in))
		_, hasUser := in["user_id"]
		assert.False(t, hasUser)
		writeData(w, http.StatusCreated, in)
	})
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer stale", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "r-old", body["refresh_token"])
		writeData(w, http.StatusOK, map[string]string{"access_token": "fresh", "refresh_token": "r-new"})
	})
	client, tokens := newTestClient(t, mux)
	tokens.values[sessionstate.KeyBackendToken] = "stale"
	tokens.values[KeyRefreshToken] = "r-old"

	r := receipt.New(receipt.Params{
		ID:           uuid.New(),
		StoreName:    "Cafe",
		PurchaseDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		TotalAmount:  decimal.RequireFromString("4.50"),
		Currency:     "USD",
	})
	out, err := client.CreateReceipt(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, r.ID, out.ID)
	assert.Len(t, created, 1)
	assert.Equal(t, "fresh", tokens.values[sessionstate.KeyBackendToken])
	assert.Equal(t, "r-new", tokens.values[KeyRefreshToken])
}

func TestUnauthorizedWithoutRefreshTokenIsReturned(t *testing.T) {
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
	}))
	tokens.values[sessionstate.KeyBackendToken] = "stale"

	_, err := client.ListReceipts(context.Background(), ListOptions{})
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestLogoutForgetsTokensWhenBackendFails(t *testing.T) {
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusBadGateway, "DEPENDENCY_ERROR", "redis down")
	}))
	tokens.values[sessionstate.KeyBackendToken] = "a1"
	tokens.values[KeyRefreshToken] = "r1"
	tokens.values[sessionstate.KeyBackendEmail] = "ana@example.com"
	tokens.values[sessionstate.KeyGuestMode] = "false"

	err := client.Logout(context.Background())
	assert.True(t, IsStatus(err, http.StatusBadGateway))
	assert.Equal(t, map[string]string{sessionstate.KeyGuestMode: "false"}, tokens.values)
}

func TestListReceiptsSendsRangeAndCursor(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/v1/receipts", r.URL.Path)
		assert.Equal(t, "2026-01-01T00:00:00Z", q.Get("from"))
		assert.Empty(t, q.Get("to"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.Equal(t, "abc", q.Get("cursor"))
		writeData(w, http.StatusOK, map[string]any{"items": []any{}, "next_cursor": "def"})
	}))

	page, err := client.ListReceipts(context.Background(), ListOptions{From: &from, Limit: 5, Cursor: "abc"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, "def", page.NextCursor)
}

func TestScanReceiptUploadsMultipart(t *testing.T) {
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("save"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "jpeg-bytes", string(data))
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
		assert.Equal(t, "r.jpg", header.Filename)
		writeData(w, http.StatusCreated, map[string]any{"id": uuid.New(), "store_name": "Grocer"})
	}))
	tokens.values[sessionstate.KeyBackendToken] = "a1"

	out, err := client.ScanReceipt(context.Background(), []byte("jpeg-bytes"), "r.jpg", "image/jpeg", true)
	require.NoError(t, err)
	assert.Equal(t, "Grocer", out.StoreName)
}

func TestSummary(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analytics/summary", r.URL.Path)
		writeData(w, http.StatusOK, map[string]any{"receipt_count": 2, "total_spent": "10.5", "currencies": []string{"USD"}})
	}))
	sum, err := client.Summary(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.ReceiptCount)
	assert.Equal(t, "10.5", sum.TotalSpent.String())
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("", newMemoryTokens())
	assert.Error(t, err)
	_, err = NewClient("http://x", nil)
	assert.Error(t, err)
}
