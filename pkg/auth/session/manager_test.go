package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/snapspend-backend/pkg/config"
)

type memoryStore struct {
	mu     sync.Mutex
	data   map[string]string
	delErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func newTestManager(t *testing.T) (*Manager, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	mgr, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return mgr, store
}

func storedRecord(t *testing.T, store *memoryStore, accessID string) record {
	t.Helper()
	var rec record
	if err := json.Unmarshal([]byte(store.data[store.AccessSessionKey(accessID)]), &rec); err != nil {
		t.Fatalf("decode stored session: %v", err)
	}
	return rec
}

func TestGenerateStoresHashOnly(t *testing.T) {
	mgr, store := newTestManager(t)
	userID := uuid.New()

	token, err := mgr.Generate(context.Background(), userID, "access-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	rec := storedRecord(t, store, "access-1")
	if rec.UserID != userID {
		t.Fatalf("expected session bound to %s, got %s", userID, rec.UserID)
	}
	if rec.TokenHash == token || rec.TokenHash != hashToken(token) {
		t.Fatalf("expected hashed token, got %q", rec.TokenHash)
	}
}

func TestRotate(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	userID := uuid.New()

	token, err := mgr.Generate(ctx, userID, "access-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, _, err := mgr.Rotate(ctx, userID, "access-1", "wrong"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid refresh token, got %v", err)
	}

	newID, newToken, err := mgr.Rotate(ctx, userID, "access-1", token)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, ok := store.data[store.AccessSessionKey("access-1")]; ok {
		t.Fatal("old session left behind")
	}
	if rec := storedRecord(t, store, newID); rec.TokenHash != hashToken(newToken) {
		t.Fatal("new session does not match new token")
	}

	if _, _, err := mgr.Rotate(ctx, userID, "access-1", token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("replay must fail, got %v", err)
	}
}

func TestRotateRejectsOtherUserAndCorruptRecords(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	token, err := mgr.Generate(ctx, uuid.New(), "access-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, _, err := mgr.Rotate(ctx, uuid.New(), "access-1", token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid token for another user, got %v", err)
	}

	store.data[store.AccessSessionKey("legacy")] = "user|token"
	if _, _, err := mgr.Rotate(ctx, uuid.New(), "legacy", "token"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected corrupt record to be rejected, got %v", err)
	}
}

func TestRotateKeepsSessionWhenRevokeFails(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	userID := uuid.New()

	token, err := mgr.Generate(ctx, userID, "access-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	store.delErr = errors.New("redis down")

	if _, _, err := mgr.Rotate(ctx, userID, "access-1", token); err == nil || errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(store.data) != 1 {
		t.Fatalf("no new session should be written, have %d", len(store.data))
	}
}

func TestHasSessionAndRevoke(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := mgr.Generate(ctx, uuid.New(), "access-9"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ok, err := mgr.HasSession(ctx, "access-9"); err != nil || !ok {
		t.Fatalf("expected live session, got ok=%v err=%v", ok, err)
	}
	if err := mgr.Revoke(ctx, "access-9"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, err := mgr.HasSession(ctx, "access-9"); err != nil || ok {
		t.Fatalf("expected revoked session, got ok=%v err=%v", ok, err)
	}
	if err := mgr.Revoke(ctx, "access-9"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if _, err := mgr.HasSession(ctx, " "); err == nil {
		t.Fatal("expected error for blank access id")
	}
}

func TestGenerateValidatesInput(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, err := mgr.Generate(context.Background(), uuid.Nil, "access"); err == nil {
		t.Fatal("expected error for nil user")
	}
	if _, err := mgr.Generate(context.Background(), uuid.New(), ""); err == nil {
		t.Fatal("expected error for blank access id")
	}
}

func TestNewManagerValidatesTTL(t *testing.T) {
	store := newMemoryStore()
	if _, err := NewManager(nil, config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60}); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 15}); err == nil {
		t.Fatal("expected error for zero refresh ttl")
	}
	if _, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 30}); err == nil {
		t.Fatal("expected error when refresh ttl is shorter than access ttl")
	}
}
