// Command substack2epub turns a newsletter archive into an EPUB book.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pevans/substack2epub/book"
	"github.com/pevans/substack2epub/browser"
	"github.com/pevans/substack2epub/config"
	"github.com/pevans/substack2epub/crawl"
	"github.com/pevans/substack2epub/feed"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "substack2epub <publication-url>",
		Short: "Build an EPUB from every post of a newsletter archive",
		Long: `substack2epub opens the archive of a publication in Chrome, loads every
post and writes them as chapters of one EPUB, oldest first.

Environment Variables:
  SUBSCRIBER_EMAIL      Account email; sign-in needs both variables
  SUBSCRIBER_PASSWORD   Account password
  SUBSTACK2EPUB_CONFIG  Config file (default: ~/.substack2epub/config.yaml)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], cmd)
		},
	}
}

func run(ctx context.Context, publicationURL string, cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	session, err := browser.NewSession(browser.Options{
		Headless:      cfg.Browser.Headless,
		ExecPath:      cfg.Browser.ExecPath,
		UserAgent:     cfg.Browser.UserAgent,
		ActionTimeout: cfg.Browser.ActionTimeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close browser", "err", err)
		}
	}()

	pipeline := crawl.New(session, cfg, book.EPUBWriter{}, feed.NewClient(), cmd.OutOrStdout())
	report, err := pipeline.Run(ctx, publicationURL)
	if err != nil {
		return err
	}

	crawl.PrintReport(cmd.OutOrStdout(), report)
	return nil
}

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
