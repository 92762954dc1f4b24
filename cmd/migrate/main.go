package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/pos-inventory-backend/pkg/config"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/migrate"
)

const usage = `usage: migrate [flags] <command>

commands:
  up                 apply all pending migrations
  down               roll back the latest migration
  status             list migrations and whether they are applied
  to <version>       migrate up or down to a version (YYYYMMDDHHMMSS)
  create <name>      write a new empty migration into -dir
  validate           check migration names and goose markers
`

func main() {
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	if err := run(context.Background(), *dir, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dir string, args []string) error {
	command := args[0]

	var source fs.FS = migrate.Embedded()
	if dir != "" {
		source = os.DirFS(dir)
	}

	switch command {
	case "create":
		if len(args) < 2 {
			return fmt.Errorf("create needs a migration name")
		}
		target := dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, args[1])
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.Validate(source); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "command": command})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return multierr.Append(err, dbClient.Close())
	}
	runner, err := migrate.NewRunner(sqlDB, source)
	if err != nil {
		return multierr.Append(err, dbClient.Close())
	}

	return multierr.Append(execute(ctx, logg, runner, args), dbClient.Close())
}

func execute(ctx context.Context, logg *logger.Logger, runner *migrate.Runner, args []string) error {
	switch args[0] {
	case "up":
		applied, err := runner.Up(ctx)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "applied", applied), "migrations applied")
	case "down":
		version, err := runner.Down(ctx)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "version", version), "migration rolled back")
	case "status":
		rows, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied"
			}
			fmt.Printf("%-8s %d %s\n", state, row.Version, row.Path)
		}
	case "to":
		if len(args) < 2 {
			return fmt.Errorf("to needs a target version")
		}
		target, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := runner.To(ctx, target); err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "version", target), "schema at target version")
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
