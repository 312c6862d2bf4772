package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/snapspend-backend/api/controllers"
	analyticscontrollers "github.com/angelmondragon/snapspend-backend/api/controllers/analytics"
	receiptcontrollers "github.com/angelmondragon/snapspend-backend/api/controllers/receipts"
	"github.com/angelmondragon/snapspend-backend/api/middleware"
	"github.com/angelmondragon/snapspend-backend/internal/analytics"
	"github.com/angelmondragon/snapspend-backend/internal/auth"
	"github.com/angelmondragon/snapspend-backend/internal/export"
	"github.com/angelmondragon/snapspend-backend/internal/receiptimages"
	"github.com/angelmondragon/snapspend-backend/internal/receipts"
	"github.com/angelmondragon/snapspend-backend/pkg/auth/session"
	"github.com/angelmondragon/snapspend-backend/pkg/config"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
)

type rateLimiter interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

type receiptExtractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) (*receipt.Receipt, error)
}

// Dependencies carries everything the router hands to handlers. Nil fields
// disable the feature they back: handlers answer 500 and readiness skips the
// missing pinger.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Storage  controllers.Pinger
	Limiter  rateLimiter
	Gatherer prometheus.Gatherer
	Sessions session.AccessSessionChecker

	Auth      auth.Service
	Receipts  receipts.Service
	Images    receiptimages.Service
	Extractor receiptExtractor
	Analytics analytics.Service
	Export    export.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	guestPolicy := middleware.NewAuthRateLimitPolicy(
		"guest",
		cfg.AuthRateLimit.GuestWindow,
		cfg.AuthRateLimit.GuestIPLimit,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":      deps.DB,
			"redis":   deps.Redis,
			"storage": deps.Storage,
		}))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Limiter, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, deps.Limiter, logg)).Post("/register", controllers.AuthRegister(deps.Auth, logg))
		if cfg.FeatureFlags.GuestMode {
			r.With(middleware.AuthRateLimit(guestPolicy, deps.Limiter, logg)).Post("/guest", controllers.AuthGuest(deps.Auth, logg))
		}
		r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(deps.Auth, logg))
		r.Get("/session", controllers.AuthSession(deps.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

		r.Get("/me", controllers.Me(deps.Auth, logg))

		r.Route("/receipts", func(r chi.Router) {
			r.Get("/", receiptcontrollers.List(deps.Receipts, logg))
			r.Post("/", receiptcontrollers.Create(deps.Receipts, logg))
			r.With(middleware.UserRateLimit("scan", cfg.Scan.UserLimit, cfg.Scan.UserWindow, deps.Limiter, logg)).
				Post("/scan", receiptcontrollers.Scan(deps.Extractor, deps.Receipts, cfg.Scan.MaxImageBytes(), logg))
			r.Get("/export", analyticscontrollers.ExportCSV(deps.Export, logg))
			r.Post("/images/presign", receiptcontrollers.PresignImage(deps.Images, logg))
			r.Get("/images/url", receiptcontrollers.ImageURL(deps.Images, logg))
			r.Get("/{receiptId}", receiptcontrollers.Get(deps.Receipts, logg))
			r.Put("/{receiptId}", receiptcontrollers.Replace(deps.Receipts, logg))
			r.Delete("/{receiptId}", receiptcontrollers.Delete(deps.Receipts, deps.Images, logg))
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/summary", analyticscontrollers.Summary(deps.Analytics, logg))
		})
	})

	return r
}
