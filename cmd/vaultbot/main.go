package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/ptrbln/vaultbot/internal/api"
	"github.com/ptrbln/vaultbot/internal/ask"
	"github.com/ptrbln/vaultbot/internal/audit"
	"github.com/ptrbln/vaultbot/internal/blob"
	"github.com/ptrbln/vaultbot/internal/capture"
	"github.com/ptrbln/vaultbot/internal/classifier"
	"github.com/ptrbln/vaultbot/internal/config"
	"github.com/ptrbln/vaultbot/internal/fetcher"
	"github.com/ptrbln/vaultbot/internal/githubsync"
	"github.com/ptrbln/vaultbot/internal/telegram"
)

var (
	configPath string
	verbose    bool
	logger     *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vaultbot",
		Short: "Telegram capture bot filing classified notes into a knowledge vault",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zapCfg := zap.NewProductionConfig()
			if verbose {
				zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = zapCfg.Build()
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(captureCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore builds the configured vault backend.
func openStore(cfg config.App) (blob.Store, func() error, error) {
	switch cfg.Vault.Backend {
	case "sqlite", "":
		s, err := blob.NewSQLite(cfg.Vault.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "dir":
		s, err := blob.NewDir(cfg.Vault.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown vault backend: %s", cfg.Vault.Backend)
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadApp(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}

			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			tg, err := telegram.New(cfg.Telegram.BotToken, logger)
			if err != nil {
				return err
			}
			gen := classifier.NewGemini(cfg.Gemini.APIKey, cfg.Model)

			gh := githubsync.New(cfg.GitHub.Token, cfg.GitHub.Repo, logger)
			pipeline := capture.New(
				store,
				classifier.New(gen, logger),
				tg,
				audit.NewWriter(store, logger),
				logger,
				capture.WithSyncNotifier(gh),
				capture.WithPageFetcher(fetcher.Fetch),
			)
			askSvc := ask.New(store, gen, logger)
			server := api.New(cfg, store, pipeline, askSvc, tg, gh, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Run(ctx) })
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides config)")
	return cmd
}

func captureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capture [text...]",
		Short: "Run the capture pipeline once from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadApp(configPath)
			if err != nil {
				return err
			}

			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			gen := classifier.NewGemini(cfg.Gemini.APIKey, cfg.Model)

			pipeline := capture.New(
				store,
				classifier.New(gen, logger),
				consoleNotifier{},
				audit.NewWriter(store, logger),
				logger,
				capture.WithPageFetcher(fetcher.Fetch),
			)

			pipeline.Handle(cmd.Context(), 0, 0, strings.Join(args, " "))
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print all inbox captures as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadApp(configPath)
			if err != nil {
				return err
			}

			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			captures, err := api.ExportCaptures(cmd.Context(), store)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(captures)
		},
	}
}

// consoleNotifier stands in for Telegram when capturing from the CLI.
type consoleNotifier struct{}

func (consoleNotifier) SendText(ctx context.Context, chatID int64, text string) error {
	fmt.Println(text)
	return nil
}

func (consoleNotifier) React(ctx context.Context, chatID, messageID int64, emoji string) error {
	fmt.Println(emoji)
	return nil
}
