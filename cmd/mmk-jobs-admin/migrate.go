package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/target/mmk-jobs/internal/bootstrap"
	"github.com/target/mmk-jobs/internal/migrate"
)

const defaultMigrationTimeout = 5 * time.Minute

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "give up after this long")
	fs.BoolVar(&opts.Status, "status", false, "list migrations and whether each is applied")
	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be positive")
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	in, err := openInfra(cmdCtx, needDB)
	if err != nil {
		return err
	}
	defer in.closeQuietly(cmdCtx)

	if opts.Status {
		migrations, err := migrate.Status(ctx, in.db)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		return printMigrationStatus(cmdCtx.Out, migrations)
	}

	if err := bootstrap.RunMigrations(ctx, in.db, cmdCtx.Logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return writef(cmdCtx.Out, "migrations applied\n")
}
