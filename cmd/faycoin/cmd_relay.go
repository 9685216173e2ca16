package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // For pprof profiling
	"os"
	"os/signal"
	"syscall"
	"time"

	"faycoin_go/internal/domain"
	"faycoin_go/internal/infra"
	"faycoin_go/internal/relay"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	relayListen string
	pprofListen string
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Host the broadcast channel for every context on this host",
	Args:  cobra.NoArgs,
	RunE:  runRelay,
}

func init() {
	relayCmd.Flags().StringVar(&relayListen, "listen", "", "listen address (default relay.listen)")
	relayCmd.Flags().StringVar(&pprofListen, "pprof", "", "serve pprof on this address, e.g. localhost:6060")
}

func loadRelayConfig() (*infra.Config, error) {
	cfg, err := infra.LoadConfig(configPath)
	if errors.Is(err, domain.ErrConfigNotFound) {
		return infra.DefaultConfig(), nil
	}
	return cfg, err
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadRelayConfig()
	if err != nil {
		return err
	}
	slog.SetDefault(infra.NewLogger(cfg))

	addr := cfg.Relay.Listen
	if relayListen != "" {
		addr = relayListen
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := relay.NewServer(cfg.Relay.ClientQueueSize)
	server.MaxChannels = cfg.Relay.MaxChannels
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(ctx, addr)
	})

	if pprofListen != "" {
		g.Go(func() error {
			return servePprof(ctx, pprofListen)
		})
	}

	slog.Info("✨ Relay operational. Press Ctrl+C to exit.", slog.String("addr", addr))
	if err := g.Wait(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	slog.Info("👋 Relay stopped")
	return nil
}

func servePprof(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: http.DefaultServeMux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("🕵️ Pprof server started", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
