package migrate

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/db"
	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
)

const DefaultDir = "pkg/migrate/migrations"

// Runner applies the SQL migrations in dir. The files use Postgres enum
// types, so SQLite databases are built from the models and only support Up.
type Runner struct {
	client *db.Client
	sqlite bool
	dir    string
	logg   *logger.Logger
}

func NewRunner(client *db.Client, cfg config.DBConfig, dir string, logg *logger.Logger) (*Runner, error) {
	if client == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if dir == "" {
		dir = DefaultDir
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Runner{client: client, sqlite: cfg.IsSQLite(), dir: dir, logg: logg}, nil
}

func (r *Runner) provider() (*goose.Provider, error) {
	if r.sqlite {
		return nil, fmt.Errorf("sql migrations are postgres only; sqlite supports up")
	}
	sqlDB, err := r.client.DB().DB()
	if err != nil {
		return nil, fmt.Errorf("extracting sql.DB: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, os.DirFS(r.dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) error {
	if r.sqlite {
		if err := r.client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto-migrating sqlite schema: %w", err)
		}
		r.logg.Info(ctx, "sqlite schema migrated from models")
		return nil
	}
	provider, err := r.provider()
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	for _, res := range results {
		r.logResult(ctx, "applied", res)
	}
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) error {
	provider, err := r.provider()
	if err != nil {
		return err
	}
	res, err := provider.Down(ctx)
	r.logResult(ctx, "rolled back", res)
	if err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// Status logs the state of every migration file.
func (r *Runner) Status(ctx context.Context) error {
	provider, err := r.provider()
	if err != nil {
		return err
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("goose status: %w", err)
	}
	for _, st := range statuses {
		fields := map[string]any{"state": string(st.State)}
		if st.Source != nil {
			fields["version"] = st.Source.Version
			fields["path"] = st.Source.Path
		}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migration status")
	}
	return nil
}

// ToVersion migrates up or down until the database sits at version
// (YYYYMMDDHHMMSS).
func (r *Runner) ToVersion(ctx context.Context, version string) error {
	target, err := ParseVersion(version)
	if err != nil {
		return err
	}
	provider, err := r.provider()
	if err != nil {
		return err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		results, err := provider.UpTo(ctx, target)
		for _, res := range results {
			r.logResult(ctx, "applied", res)
		}
		if err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		results, err := provider.DownTo(ctx, target)
		for _, res := range results {
			r.logResult(ctx, "rolled back", res)
		}
		if err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

// ParseVersion reads a migration version as written in file names.
func ParseVersion(version string) (int64, error) {
	if len(version) != 14 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", version)
	}
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", version, err)
	}
	return target, nil
}

func (r *Runner) logResult(ctx context.Context, verb string, res *goose.MigrationResult) {
	if res == nil || res.Source == nil {
		return
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"version":     res.Source.Version,
		"path":        res.Source.Path,
		"duration_ms": res.Duration.Milliseconds(),
	})
	if res.Error != nil {
		r.logg.Error(ctx, "migration "+verb+" with error", res.Error)
		return
	}
	r.logg.Info(ctx, "migration "+verb)
}
