package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudzz-dev/cldzlive/internal/client/api"
	"github.com/cloudzz-dev/cldzlive/internal/client/config"
	"github.com/cloudzz-dev/cldzlive/internal/client/conn"
	"github.com/cloudzz-dev/cldzlive/internal/client/debug"
	"github.com/cloudzz-dev/cldzlive/internal/client/ledger"
	"github.com/cloudzz-dev/cldzlive/internal/client/metrics"
	"github.com/cloudzz-dev/cldzlive/internal/client/poll"
	"github.com/cloudzz-dev/cldzlive/internal/client/ratelimit"
	"github.com/cloudzz-dev/cldzlive/internal/client/session"
	"github.com/cloudzz-dev/cldzlive/internal/client/ui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cldzlive",
		Short:        "Watch a live room in the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	// environment values are the flag defaults, so flags win
	flags := cmd.Flags()
	flags.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "server base URL (env CLDZLIVE_SERVER)")
	flags.StringVar(&cfg.RoomID, "room", cfg.RoomID, "room id to join (env CLDZLIVE_ROOM_ID)")
	flags.StringVar(&cfg.RoomName, "room-name", cfg.RoomName, "room display name (env CLDZLIVE_ROOM_NAME)")
	flags.StringVar(&cfg.Username, "user", cfg.Username, "username; empty to watch without sending (env CLDZLIVE_USERNAME)")
	flags.StringVar(&cfg.AnchorID, "anchor", cfg.AnchorID, "anchor id used as the branch target (env CLDZLIVE_ANCHOR_ID)")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "pull channel interval")
	flags.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "delay before each push channel reconnect")
	flags.IntVar(&cfg.MaxReconnectAttempts, "max-reconnects", cfg.MaxReconnectAttempts, "consecutive closes before giving up on the push channel")
	flags.IntVar(&cfg.ScrollThreshold, "scroll-threshold", cfg.ScrollThreshold, "distance from the bottom, in px, that keeps a pane following")
	flags.IntVar(&cfg.SendsPerMinute, "sends-per-minute", cfg.SendsPerMinute, "local cap on sent messages per minute")
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "write logs to the debug log file")
	flags.StringVar(&cfg.DebugLog, "debug-log", cfg.DebugLog, "debug log path")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address; empty to disable")
	return cmd
}

func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closer, err := debug.Logger(cfg.Debug, cfg.DebugLog)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer closer.Close()

	base, err := api.HTTPBase(cfg.ServerURL)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, logger)
		defer srv.Shutdown(context.Background())
	}

	sess := session.New(cfg.RoomID, cfg.RoomName, cfg.Username)
	sess.BottomThreshold = cfg.ScrollThreshold

	client := api.NewClient(base, logger)
	defer client.Wait()

	bridge := &ui.Bridge{}
	manager := conn.New(cfg.ServerURL, bridge, conn.Options{
		ReconnectDelay: cfg.ReconnectDelay,
		MaxAttempts:    cfg.MaxReconnectAttempts,
		Logger:         logger,
		OnStateChange:  bridge.OnStateChange,
	})
	poller := poll.New(base, ledger.New(), bridge, poll.Options{
		Interval: cfg.PollInterval,
		Logger:   logger,
	})

	model := ui.New(ui.Deps{
		Session:  sess,
		Sender:   manager,
		History:  client,
		Forker:   client,
		AnchorID: cfg.AnchorID,
		Limiter:  ratelimit.New(cfg.SendsPerMinute, ratelimit.DefaultWindow, nil),
		Logger:   logger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	bridge.Attach(p)

	logger.Info().Str("server", cfg.ServerURL).Str("room", cfg.RoomID).Msg("[client] starting")
	if err := manager.Connect(ctx, cfg.RoomID); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer manager.Disconnect()
	if err := poller.Start(ctx, cfg.RoomID); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}
	defer poller.Stop()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run ui: %w", err)
	}
	logger.Info().Msg("[client] stopped")
	return nil
}

func serveMetrics(addr string, logger zerolog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Str("addr", addr).Msg("[metrics] server stopped")
		}
	}()
	return srv
}
