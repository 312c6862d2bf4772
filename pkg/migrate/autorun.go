package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/snapspend-backend/pkg/config"
	"github.com/angelmondragon/snapspend-backend/pkg/db"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on API start-up. It only acts
// in dev with SNAPSPEND_AUTO_MIGRATE set and a Postgres database.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if driver := strings.ToLower(strings.TrimSpace(cfg.DB.Driver)); driver != "" && driver != db.DriverPostgres {
		logg.Warn(logg.WithField(ctx, "driver", driver), "migrate.autorun_skipped")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("migrate: sql handle: %w", err)
	}

	applied, err := Run(ctx, sqlDB, EmbeddedSource(), "up")
	if err != nil {
		return err
	}
	for _, r := range applied {
		logg.Info(logg.WithFields(ctx, map[string]any{"version": r.Version, "ms": r.Duration.Milliseconds()}), "migrate.applied")
	}
	logg.Info(logg.WithField(ctx, "count", len(applied)), "migrate.autorun_done")
	return nil
}
