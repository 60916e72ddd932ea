package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/navikt/appsec-orgbot/internal/blocklist"
	"github.com/navikt/appsec-orgbot/internal/config"
	"github.com/navikt/appsec-orgbot/internal/handlers"
	"github.com/navikt/appsec-orgbot/internal/ignorable"
	"github.com/navikt/appsec-orgbot/internal/models"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var (
		configPath string
		dryRun     bool
	)
	flagSet := pflag.NewFlagSet("orgbot-blocklist-sync", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a .env or yaml configuration file (default: environment only)")
	flagSet.BoolVar(&dryRun, "dry-run", false, "print the changes without blocking or unblocking anyone")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))
	if !cfg.ScriptEnabled(config.ScriptBlockUsers) {
		log.Warn("block-users is not in SCRIPTS, pushes to the block list will not trigger a sync")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handlerCtx, err := handlers.NewHandlerContext(ctx, cfg, log)
	if err != nil {
		return err
	}
	syncer, err := handlerCtx.BlockListSyncer()
	if err != nil {
		return err
	}

	return syncBlockList(ctx, syncer, dryRun, stdout, log)
}

func syncBlockList(ctx context.Context, syncer *blocklist.Syncer, dryRun bool, stdout io.Writer, log *slog.Logger) error {
	if dryRun {
		changes, err := syncer.Plan(ctx, "")
		if err != nil {
			return skipIgnorable(err, log)
		}
		fmt.Fprint(stdout, formatChangeSet(changes))
		return nil
	}

	report, err := syncer.Sync(ctx, "")
	if err != nil {
		return skipIgnorable(err, log)
	}
	fmt.Fprintln(stdout, report.Body)
	return nil
}

func skipIgnorable(err error, log *slog.Logger) error {
	if ignorable.Is(err) {
		log.Info("Nothing to do", slog.String("reason", err.Error()))
		return nil
	}
	if blocklist.IsDownloadError(err) {
		return fmt.Errorf("block list unavailable, check BLOCK_LIST_URL: %w", err)
	}
	return err
}

func formatChangeSet(changes models.ChangeSet) string {
	if changes.Empty() {
		return "No changes\n"
	}
	var b strings.Builder
	for _, username := range changes.Unblock {
		fmt.Fprintf(&b, "would unblock @%s\n", username)
	}
	for _, username := range changes.Block {
		fmt.Fprintf(&b, "would block @%s\n", username)
	}
	return b.String()
}
