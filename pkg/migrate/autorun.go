package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/db"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
)

// MaybeRunDev migrates the schema on boot when running in dev with
// MANDI_AUTO_MIGRATE set. Other environments run cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver, "dir": DefaultDir})
	runner, err := NewRunner(client, cfg.DB, DefaultDir, logg)
	if err != nil {
		return err
	}
	logg.Info(ctx, "running dev auto-migrate")
	if err := runner.Up(ctx); err != nil {
		return fmt.Errorf("dev auto-migrate: %w", err)
	}
	return nil
}
