// Command mmk-jobs-admin runs one-off maintenance against the job store:
// migrations, stats, stale-job recovery, cleanup and event watching.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/target/mmk-jobs/config"
	"github.com/target/mmk-jobs/internal/bootstrap"
)

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

type command struct {
	name        string
	description string
	run         func(cmdCtx *commandContext, args []string) error
}

// commands is listed in the order usage prints it.
func commands() []command {
	return []command{
		{"migrate", "Apply database migrations, or list them with --status", runMigrations},
		{"stats", "Print job counts per status", runStats},
		{"stale", "List jobs recorded as running", runListStale},
		{"recover", "Fail jobs left running by a dead process", runRecover},
		{"cleanup", "Run one reaper pass over expired completed and failed jobs", runCleanup},
		{"watch", "Stream job lifecycle events from Redis", runWatch},
	}
}

func findCommand(name string) (command, bool) {
	for _, c := range commands() {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer) {
	_ = writef(w, "Usage: mmk-jobs-admin <command> [flags]\n\nCommands:\n")
	for _, c := range commands() {
		_ = writef(w, "  %-10s %s\n", c.name, c.description)
	}
}

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	logger := bootstrap.InitLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, logger, bootstrap.LoadConfig)
	stop()
	os.Exit(code) //nolint:forbidigo // exit status is the CLI's result
}

// run dispatches args[0] and returns the process exit code.
func run(
	ctx context.Context,
	args []string,
	stdout, stderr io.Writer,
	logger *slog.Logger,
	loadConfig func() (config.AppConfig, error),
) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		return exitUsage
	}
	cmd, ok := findCommand(args[0])
	if !ok {
		_ = writef(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return exitUsage
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.ErrorContext(ctx, "load config", "error", err)
		return exitError
	}

	cmdCtx := &commandContext{Ctx: ctx, Logger: logger, Config: cfg, Out: stdout}
	if err := cmd.run(cmdCtx, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitUsage
		}
		logger.ErrorContext(ctx, "command failed", "command", cmd.name, "error", err)
		return exitError
	}
	return exitOK
}
