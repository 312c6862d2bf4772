package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/snapspend-backend/internal/users"
	pkgAuth "github.com/angelmondragon/snapspend-backend/pkg/auth"
	"github.com/angelmondragon/snapspend-backend/pkg/auth/session"
	"github.com/angelmondragon/snapspend-backend/pkg/config"
	"github.com/angelmondragon/snapspend-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
	"github.com/angelmondragon/snapspend-backend/pkg/security"
)

var testJWTConfig = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "snapspend",
	ExpirationMinutes: 30,
}

func TestServiceLoginIssuesTokens(t *testing.T) {
	password := "correct-horse"
	user := &models.User{
		ID:           uuid.New(),
		Email:        "ana@example.com",
		PasswordHash: strPtr(mustHashPassword(t, password)),
		IsActive:     true,
	}
	svc, sessions, repo := buildTestService(t, user)

	resp, err := svc.Login(context.Background(), LoginRequest{
		Email:    "  ANA@example.com ",
		Password: password,
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("expected user id %s, got %s", user.ID, claims.UserID)
	}
	if claims.IsGuest {
		t.Fatalf("expected non-guest claims")
	}
	if sessions.sessions[claims.ID] != resp.RefreshToken {
		t.Fatalf("expected refresh token stored under jti")
	}
	if repo.lastLogin[user.ID].IsZero() {
		t.Fatalf("expected last login to be recorded")
	}
	if resp.GuestID != nil {
		t.Fatalf("expected no guest id for regular login")
	}
}

func TestServiceLoginRejectsBadCredentials(t *testing.T) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        "ana@example.com",
		PasswordHash: strPtr(mustHashPassword(t, "correct-horse")),
		IsActive:     true,
	}
	guestID := uuid.New()
	guest := &models.User{
		ID:       guestID,
		Email:    users.GuestEmail(guestID),
		IsGuest:  true,
		IsActive: true,
	}
	inactive := &models.User{
		ID:           uuid.New(),
		Email:        "old@example.com",
		PasswordHash: strPtr(mustHashPassword(t, "correct-horse")),
	}
	svc, _, _ := buildTestService(t, user, guest, inactive)

	cases := []LoginRequest{
		{Email: "ana@example.com", Password: "wrong-password"},
		{Email: "missing@example.com", Password: "correct-horse"},
		{Email: guest.Email, Password: ""},
		{Email: "old@example.com", Password: "correct-horse"},
		{Email: "   ", Password: "correct-horse"},
	}
	for _, req := range cases {
		_, err := svc.Login(context.Background(), req)
		if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized for %q, got %v", req.Email, err)
		}
	}
}

func TestServiceRegister(t *testing.T) {
	svc, _, repo := buildTestService(t)

	resp, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "New@Example.com",
		Password: "long-enough",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.User == nil || resp.User.Email != "new@example.com" {
		t.Fatalf("expected normalized email, got %+v", resp.User)
	}
	stored := repo.byEmail["new@example.com"]
	if stored == nil || stored.PasswordHash == nil {
		t.Fatalf("expected stored user with password hash")
	}
	ok, err := security.VerifyPassword("long-enough", *stored.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("expected stored hash to verify, ok=%v err=%v", ok, err)
	}

	_, err = svc.Register(context.Background(), RegisterRequest{
		Email:    "new@example.com",
		Password: "long-enough",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict on duplicate email, got %v", err)
	}
}

func TestServiceRegisterValidation(t *testing.T) {
	svc, _, _ := buildTestService(t)

	cases := []RegisterRequest{
		{Email: "a@example.com", Password: "short"},
		{Email: "", Password: "long-enough"},
		{Email: "guest-1@guest.snapspend.app", Password: "long-enough"},
	}
	for _, req := range cases {
		_, err := svc.Register(context.Background(), req)
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}
}

func TestServiceStartGuest(t *testing.T) {
	svc, _, repo := buildTestService(t)

	resp, err := svc.StartGuest(context.Background())
	if err != nil {
		t.Fatalf("start guest: %v", err)
	}
	if resp.GuestID == nil {
		t.Fatalf("expected guest id in response")
	}
	if !strings.Contains(resp.User.Email, "guest") {
		t.Fatalf("expected guest email, got %q", resp.User.Email)
	}
	if !resp.User.IsGuest {
		t.Fatalf("expected guest user")
	}
	stored := repo.byID[*resp.GuestID]
	if stored == nil || stored.PasswordHash != nil {
		t.Fatalf("expected guest stored without password")
	}

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if !claims.IsGuest || claims.UserID != *resp.GuestID {
		t.Fatalf("unexpected guest claims %+v", claims)
	}
}

func TestServiceRefreshRotatesSession(t *testing.T) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        "ana@example.com",
		PasswordHash: strPtr(mustHashPassword(t, "correct-horse")),
		IsActive:     true,
	}
	svc, sessions, _ := buildTestService(t, user)
	ctx := context.Background()

	login, err := svc.Login(ctx, LoginRequest{Email: user.Email, Password: "correct-horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	oldClaims, _ := pkgAuth.ParseAccessToken(testJWTConfig, login.AccessToken)

	refreshed, err := svc.Refresh(ctx, login.AccessToken, RefreshRequest{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	newClaims, err := pkgAuth.ParseAccessToken(testJWTConfig, refreshed.AccessToken)
	if err != nil {
		t.Fatalf("parse refreshed token: %v", err)
	}
	if newClaims.ID == oldClaims.ID {
		t.Fatalf("expected a new jti after refresh")
	}
	if _, ok := sessions.sessions[oldClaims.ID]; ok {
		t.Fatalf("expected old session removed")
	}

	_, err = svc.Refresh(ctx, login.AccessToken, RefreshRequest{RefreshToken: login.RefreshToken})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected replayed refresh to be unauthorized, got %v", err)
	}
}

func TestServiceLogoutAndSession(t *testing.T) {
	svc, sessions, _ := buildTestService(t)
	ctx := context.Background()

	guest, err := svc.StartGuest(ctx)
	if err != nil {
		t.Fatalf("start guest: %v", err)
	}

	state, err := svc.Session(ctx, guest.AccessToken)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if !state.Active || !state.IsGuest {
		t.Fatalf("expected active guest session, got %+v", state)
	}

	if err := svc.Logout(ctx, guest.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(sessions.sessions) != 0 {
		t.Fatalf("expected session revoked")
	}

	state, err = svc.Session(ctx, guest.AccessToken)
	if err != nil {
		t.Fatalf("session after logout: %v", err)
	}
	if state.Active {
		t.Fatalf("expected inactive session after logout")
	}

	if _, err := svc.Session(ctx, "not-a-token"); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for garbage token, got %v", err)
	}
}

func TestServiceMe(t *testing.T) {
	name := "Ana"
	user := &models.User{ID: uuid.New(), Email: "ana@example.com", DisplayName: &name, IsActive: true}
	svc, _, _ := buildTestService(t, user)

	dto, err := svc.Me(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if dto.Email != user.Email || dto.DisplayName == nil || *dto.DisplayName != name {
		t.Fatalf("unexpected profile %+v", dto)
	}

	if _, err := svc.Me(context.Background(), uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{SessionManager: newStubSessionManager()}); err == nil {
		t.Fatalf("expected error without user repo")
	}
	if _, err := NewService(ServiceParams{UserRepo: newStubUserRepo()}); err == nil {
		t.Fatalf("expected error without session manager")
	}
}

func TestServiceLoginRehashesOnParamChange(t *testing.T) {
	password := "correct-horse"
	legacy, err := security.HashPassword(password, config.PasswordConfig{ArgonTime: 2})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &models.User{
		ID:           uuid.New(),
		Email:        "old@example.com",
		PasswordHash: &legacy,
		IsActive:     true,
	}
	svc, _, repo := buildTestService(t, user)

	if _, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: password}); err != nil {
		t.Fatalf("login: %v", err)
	}
	upgraded, ok := repo.rehashed[user.ID]
	if !ok {
		t.Fatal("expected the stored hash to be upgraded")
	}
	if security.NeedsRehash(upgraded, config.PasswordConfig{}) {
		t.Fatalf("upgraded hash still uses old params: %s", upgraded)
	}
	if ok, err := security.VerifyPassword(password, upgraded); err != nil || !ok {
		t.Fatalf("upgraded hash must verify, ok=%v err=%v", ok, err)
	}

	other := &models.User{
		ID:           uuid.New(),
		Email:        "current@example.com",
		PasswordHash: strPtr(mustHashPassword(t, password)),
		IsActive:     true,
	}
	svc, _, repo = buildTestService(t, other)
	if _, err := svc.Login(context.Background(), LoginRequest{Email: other.Email, Password: password}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, ok := repo.rehashed[other.ID]; ok {
		t.Fatal("current hashes must not be rewritten")
	}
}

func buildTestService(t *testing.T, seed ...*models.User) (Service, *stubSessionManager, *stubUserRepo) {
	t.Helper()
	repo := newStubUserRepo(seed...)
	sessions := newStubSessionManager()
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: sessions,
		JWTConfig:      testJWTConfig,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, sessions, repo
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

func strPtr(value string) *string {
	return &value
}

type stubUserRepo struct {
	byEmail   map[string]*models.User
	byID      map[uuid.UUID]*models.User
	lastLogin map[uuid.UUID]time.Time
	rehashed  map[uuid.UUID]string
}

func newStubUserRepo(seed ...*models.User) *stubUserRepo {
	repo := &stubUserRepo{
		byEmail:   map[string]*models.User{},
		byID:      map[uuid.UUID]*models.User{},
		lastLogin: map[uuid.UUID]time.Time{},
		rehashed:  map[uuid.UUID]string{},
	}
	for _, u := range seed {
		repo.byEmail[u.Email] = u
		repo.byID[u.ID] = u
	}
	return repo
}

func (s *stubUserRepo) Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error) {
	if _, exists := s.byEmail[dto.Email]; exists {
		return nil, errors.New(`ERROR: duplicate key value violates unique constraint "users_email_key"`)
	}
	user := dto.ToModel()
	user.CreatedAt = time.Now().UTC()
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
	return user, nil
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := s.byEmail[email]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := s.byID[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.lastLogin[id] = at
	return nil
}

func (s *stubUserRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	s.rehashed[id] = hash
	return nil
}

type stubSessionManager struct {
	sessions map[string]string
	owners   map[string]uuid.UUID
	counter  int
}

func newStubSessionManager() *stubSessionManager {
	return &stubSessionManager{
		sessions: map[string]string{},
		owners:   map[string]uuid.UUID{},
	}
}

func (s *stubSessionManager) Generate(ctx context.Context, userID uuid.UUID, accessID string) (string, error) {
	s.counter++
	token := "refresh-" + accessID
	s.sessions[accessID] = token
	s.owners[accessID] = userID
	return token, nil
}

func (s *stubSessionManager) Rotate(ctx context.Context, userID uuid.UUID, oldAccessID, provided string) (string, string, error) {
	token, ok := s.sessions[oldAccessID]
	if !ok || token != provided || s.owners[oldAccessID] != userID {
		return "", "", session.ErrInvalidRefreshToken
	}
	newID := session.NewAccessID()
	newToken, _ := s.Generate(ctx, userID, newID)
	delete(s.sessions, oldAccessID)
	delete(s.owners, oldAccessID)
	return newID, newToken, nil
}

func (s *stubSessionManager) Revoke(ctx context.Context, accessID string) error {
	delete(s.sessions, accessID)
	delete(s.owners, accessID)
	return nil
}

func (s *stubSessionManager) HasSession(ctx context.Context, accessID string) (bool, error) {
	_, ok := s.sessions[accessID]
	return ok, nil
}
