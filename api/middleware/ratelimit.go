package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/snapspend-backend/api/responses"
	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
)

const (
	rateLimitKeyPrefix = "snapspend:rl"
	// Credential bodies are tiny; anything larger is not worth buffering twice.
	maxCredentialBody int64 = 16 << 10
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// fixedWindow is one named counter: limit hits per window, keyed by subject.
type fixedWindow struct {
	scope  string
	policy string
	window time.Duration
	limit  int
}

func (f fixedWindow) key(subject string) string {
	return fmt.Sprintf("%s:%s:%s:%s", rateLimitKeyPrefix, f.scope, f.policy, subject)
}

// check increments the counter for subject. A false return means the response
// has already been written.
func (f fixedWindow) check(ctx context.Context, w http.ResponseWriter, store rateLimiterStore, logg *logger.Logger, subject string, logFields map[string]any) bool {
	if f.limit <= 0 || subject == "" {
		return true
	}
	count, err := store.IncrWithTTL(ctx, f.key(subject), f.window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
		return false
	}
	if count <= int64(f.limit) {
		return true
	}

	if logg != nil {
		fields := map[string]any{
			"scope":          f.scope,
			"policy":         f.policy,
			"attempts":       count,
			"limit":          f.limit,
			"window_seconds": int(f.window.Seconds()),
		}
		for k, v := range logFields {
			fields[k] = v
		}
		logg.Warn(logg.WithFields(ctx, fields), "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(f.window.Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
	return false
}

// AuthRateLimitPolicy throttles one unauthenticated auth surface by caller IP
// and by the email in the request body.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

// NewAuthRateLimitPolicy builds a policy. A zero limit disables that counter.
func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	return AuthRateLimitPolicy{
		name:       policyName(name, "auth"),
		window:     window,
		ipLimit:    ipLimit,
		emailLimit: emailLimit,
	}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// AuthRateLimit enforces the per-IP and per-email counters of policy.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	byIP := fixedWindow{scope: "ip", policy: policy.name, window: policy.window, limit: policy.ipLimit}
	byEmail := fixedWindow{scope: "email", policy: policy.name, window: policy.window, limit: policy.emailLimit}

	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := clientIP(r)
			if !byIP.check(ctx, w, store, logg, ip, map[string]any{"ip": ip}) {
				return
			}

			if policy.emailLimit > 0 && r.Body != nil {
				body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCredentialBody))
				if err != nil {
					var tooLarge *http.MaxBytesError
					if errors.As(err, &tooLarge) {
						responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeTooLarge, "request body too large"))
						return
					}
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				if email := normalizeEmail(extractEmail(body)); email != "" {
					hash := hashValue(email)
					if !byEmail.check(ctx, w, store, logg, hash, map[string]any{"email_hash": hash}) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserRateLimit caps calls per authenticated user within a fixed window. It
// must run after Auth.
func UserRateLimit(name string, limit int, window time.Duration, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	byUser := fixedWindow{scope: "user", policy: policyName(name, "user"), window: window, limit: limit}

	return func(next http.Handler) http.Handler {
		if limit <= 0 || window <= 0 || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
				return
			}
			if !byUser.check(ctx, w, store, logg, userID, nil) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func policyName(name, fallback string) string {
	if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
		return name
	}
	return fallback
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address.
func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Email
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
