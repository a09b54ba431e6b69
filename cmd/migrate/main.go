package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/mandi-backend/internal/app"
	"github.com/angelmondragon/mandi-backend/internal/seed"
	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/db"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	"github.com/angelmondragon/mandi-backend/pkg/locks"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	"github.com/angelmondragon/mandi-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "command: up|down|status|version|create|validate|seed")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version YYYYMMDDHHMMSS (for version)")
	flag.Parse()

	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": *dir})

	// create and validate only touch the filesystem.
	switch *cmd {
	case "create":
		if *name == "" {
			exit(ctx, logg, "missing -name for create", nil)
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			exit(ctx, logg, "failed to create migration", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			exit(ctx, logg, "migration validation failed", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		exit(ctx, logg, "failed to load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		exit(ctx, logg, "failed to bootstrap database", err)
	}
	defer dbClient.Close()

	runner, err := migrate.NewRunner(dbClient, cfg.DB, *dir, logg)
	if err != nil {
		exit(ctx, logg, "failed to create migration runner", err)
	}

	switch *cmd {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "status":
		err = runner.Status(ctx)
	case "version":
		if *version == "" {
			exit(ctx, logg, "missing -version for version command", nil)
		}
		err = runner.ToVersion(ctx, *version)
	case "seed":
		err = runSeed(ctx, cfg, logg, dbClient)
	default:
		exit(ctx, logg, "unknown -cmd value: "+*cmd, nil)
	}
	if err != nil {
		exit(ctx, logg, *cmd+" failed", err)
	}
	logg.Info(ctx, *cmd+" complete")
}

func runSeed(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) error {
	if cfg.App.IsProd() {
		return fmt.Errorf("refusing to seed a production database")
	}
	services, err := app.NewServices(app.Params{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
		Locker: locks.NewLocal(),
	})
	if err != nil {
		return err
	}
	result, err := seed.Run(ctx, services.Catalog, cfg.JWT, time.Now(), seed.DefaultFixtures)
	if err != nil {
		return err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"created": len(result.Created),
		"skipped": len(result.Skipped),
	}), "catalog seeded")

	for _, role := range []enums.ActorRole{enums.ActorRoleAdmin, enums.ActorRoleSupplier, enums.ActorRoleVendor} {
		fmt.Printf("%s token: %s\n", role, result.Tokens[role])
	}
	return nil
}

func exit(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		err = fmt.Errorf("%s", msg)
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
