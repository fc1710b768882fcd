package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ameskov/botgate/internal/config"
	"github.com/ameskov/botgate/internal/connector"
	"github.com/ameskov/botgate/internal/connector/telegram"
	"github.com/ameskov/botgate/internal/connector/wsrelay"
	"github.com/ameskov/botgate/internal/gateway"
	"github.com/ameskov/botgate/internal/server"
	"github.com/ameskov/botgate/internal/store"
	"github.com/ameskov/botgate/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Signs every configured bot in, starts the command dispatcher and
one snapshot poller per bot, then serves the HTTP control plane until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return runServe(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cfg *config.Config) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(filepath.Join(cfg.DataDir, "botgate.db"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()
	st := store.NewStore(db)

	entries, closers, err := buildConnectors(ctx, cfg, st, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	registry := gateway.NewRegistry(entries)
	handlers := gateway.NewHandlerTable()
	dispatcher := gateway.NewDispatcher(registry, handlers, webhook.NewClient(), log,
		gateway.WithQueueSize(cfg.QueueSize),
		gateway.WithRecorder(st),
	)
	go dispatcher.Run(ctx)

	for _, e := range entries {
		poller := gateway.NewPoller(e.Name, e.Conn, dispatcher, cfg.PollInterval, cfg.DialogLimit, log)
		go poller.Run(ctx)
	}

	srv := server.New(server.Config{Addr: cfg.ListenAddr, AllowAll: cfg.AllowAllCORS}, log)
	gateway.RegisterRoutes(srv.Router(), dispatcher)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// buildConnectors creates and signs in one connector per configured bot.
// Any authentication failure aborts startup: the gateway does not run
// half-authenticated.
func buildConnectors(ctx context.Context, cfg *config.Config, sessions connector.SessionStore, log *slog.Logger) ([]gateway.RegistryEntry, []interface{ Close() error }, error) {
	var (
		entries []gateway.RegistryEntry
		closers []interface{ Close() error }
	)
	for _, bot := range cfg.Bots {
		var conn connector.Connector
		switch bot.Platform {
		case config.PlatformTelegram:
			conn = telegram.New(bot.Name, bot.Token, sessions)
		case config.PlatformWSRelay:
			ws := wsrelay.New(bot.Name, bot.RelayURL, sessions)
			closers = append(closers, ws)
			conn = ws
		default:
			return nil, closers, fmt.Errorf("bot %q: unknown platform %q", bot.Name, bot.Platform)
		}

		log.Info("signing in", "bot", bot.Name, "platform", bot.Platform)
		if err := conn.SignIn(ctx); err != nil {
			var authErr *connector.AuthError
			if errors.As(err, &authErr) {
				return nil, closers, fmt.Errorf("startup aborted: %w", authErr)
			}
			return nil, closers, fmt.Errorf("signing in bot %q: %w", bot.Name, err)
		}

		entries = append(entries, gateway.RegistryEntry{
			Name: bot.Name,
			Conn: conn,
			Ctx:  gateway.BotContext{BotName: bot.Name, CallbackURL: bot.CallbackURL},
		})
	}
	return entries, closers, nil
}
