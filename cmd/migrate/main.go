package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/hiddengems/hiddengems-backend/internal/auth"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/migrate"
)

const seedPasswordEnv = "HIDDENGEMS_SEED_ADMIN_PASSWORD"

type options struct {
	cmd      string
	dir      string
	embedded bool
	name     string
	version  string
	email    string
	fullName string
}

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate|seed-admin")
	flag.StringVar(&opts.dir, "dir", migrate.SourceDir, "goose migrations directory")
	flag.BoolVar(&opts.embedded, "embedded", false, "apply the migrations compiled into this binary instead of -dir")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.StringVar(&opts.email, "email", "", "admin email for -cmd=seed-admin")
	flag.StringVar(&opts.fullName, "full-name", "Hidden Gems Admin", "display name for a newly created admin")
	flag.Parse()

	// create and validate only touch the filesystem.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			fail("missing -name for create")
		}
		if _, err := migrate.CreateSQLMigration(opts.dir, opts.name); err != nil {
			fail("create migration: %v", err)
		}
		return
	case "validate":
		if err := migrate.Validate(os.DirFS(opts.dir)); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	if opts.cmd == "seed-admin" {
		seedAdmin(ctx, logg, cfg, dbClient, opts)
		return
	}

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to open sql handle", err)
		os.Exit(1)
	}
	source := os.DirFS(opts.dir)
	if opts.embedded {
		source = migrate.Embedded()
	}
	runner, err := migrate.NewRunner(sqlDB, source)
	if err != nil {
		logg.Error(ctx, "failed to build migration runner", err)
		os.Exit(1)
	}
	if err := runGoose(ctx, logg, runner, opts); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func runGoose(ctx context.Context, logg *logger.Logger, runner *migrate.Runner, opts options) error {
	var (
		results []*goose.MigrationResult
		err     error
	)
	switch opts.cmd {
	case "up":
		results, err = runner.Up(ctx)
	case "down":
		var res *goose.MigrationResult
		res, err = runner.Down(ctx)
		if res != nil {
			results = append(results, res)
		}
	case "version":
		target, parseErr := strconv.ParseInt(opts.version, 10, 64)
		if parseErr != nil {
			return fmt.Errorf("-version must be YYYYMMDDHHMMSS: %w", parseErr)
		}
		results, err = runner.To(ctx, target)
	case "status":
		statuses, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			fmt.Printf("%-10s %d %s\n", st.State, st.Source.Version, filepath.Base(st.Source.Path))
		}
		return nil
	default:
		return fmt.Errorf("unknown -cmd %q", opts.cmd)
	}
	for _, res := range results {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":   res.Source.Version,
			"direction": res.Direction,
			"took":      res.Duration.String(),
		}), "migration step")
	}
	return err
}

// seedAdmin creates or promotes the bootstrap admin. The password comes from
// the environment so it never lands in shell history.
func seedAdmin(ctx context.Context, logg *logger.Logger, cfg *config.Config, client *db.Client, opts options) {
	if opts.email == "" {
		fail("missing -email for seed-admin")
	}
	seeder, err := auth.NewAdminSeeder(client, cfg.Password)
	if err != nil {
		logg.Error(ctx, "failed to build admin seeder", err)
		os.Exit(1)
	}
	result, err := seeder.Seed(ctx, auth.SeedAdminRequest{
		Email:    opts.email,
		FullName: opts.fullName,
		Password: os.Getenv(seedPasswordEnv),
	})
	if err != nil {
		logg.Error(ctx, "seed admin failed", err)
		os.Exit(1)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"user_id":      result.User.ID.String(),
		"created":      result.Created,
		"promoted":     result.Promoted,
		"password_set": result.PasswordSet,
	}), "admin seeded")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
