package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/snapspend-backend/api/responses"
	pkgAuth "github.com/angelmondragon/snapspend-backend/pkg/auth"
	"github.com/angelmondragon/snapspend-backend/pkg/auth/session"
	"github.com/angelmondragon/snapspend-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
)

// TokenHeader carries a freshly minted access token on auth responses.
const TokenHeader = "X-SS-Token"

const bearerScheme = "bearer"

// BearerToken reads the Authorization header. The "Bearer" scheme is
// optional; older app builds send the raw token. A bare scheme with no token
// counts as missing credentials.
func BearerToken(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, ok := strings.Cut(token, " "); ok && strings.EqualFold(scheme, bearerScheme) {
		token = strings.TrimSpace(rest)
	} else if strings.EqualFold(token, bearerScheme) {
		token = ""
	}
	if token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return token, nil
}

// Auth admits requests carrying a valid access token whose session is still
// live, and stores the resulting Principal on the request context.
func Auth(cfg config.JWTConfig, sessions session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, err := authenticate(r, cfg, sessions)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = WithPrincipal(ctx, principal)
			if logg != nil {
				ctx = logg.WithGuest(logg.WithUserID(ctx, principal.UserID.String()), principal.IsGuest)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg config.JWTConfig, sessions session.AccessSessionChecker) (Principal, error) {
	token, err := BearerToken(r)
	if err != nil {
		return Principal{}, err
	}
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return Principal{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	sid := claims.SessionID()
	if sid == "" {
		return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}

	if sessions != nil {
		live, err := sessions.HasSession(r.Context(), sid)
		if err != nil {
			return Principal{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !live {
			return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
		}
	}
	return Principal{UserID: claims.UserID, IsGuest: claims.IsGuest, SessionID: sid}, nil
}
