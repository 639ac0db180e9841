package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/supportbot/internal/config"
	"github.com/zhouzirui/supportbot/internal/handler"
)

var (
	serveAddr    string
	serveWidgets []string
	serveWatch   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the widget REST API, per-widget SSE and WebSocket event streams and,
unless ENABLE_ECHO_ENDPOINT=false, the demo reply endpoint at /api/echo.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address; overrides PORT")
	serveCmd.Flags().StringSliceVar(&serveWidgets, "widget", nil, "widget ids to create at startup")
	serveCmd.Flags().BoolVar(&serveWatch, "watch-config", false, "reload the widget config file when it changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, id := range serveWidgets {
		a.registry.CreateWithID(id, nil)
		log.Info().Str("widget", id).Msg("widget created")
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr: addr,
		Handler: handler.NewRouter(a.registry, a.events, handler.Options{
			Echo:     cfg.Server.EchoEndpoint,
			Provider: a.provider,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", addr).Msg("supportbot listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "http shutdown")
		}
		return nil
	})
	if serveWatch && cfg.WidgetConfigPath != "" {
		eg.Go(func() error {
			return config.WatchOverrides(egCtx, cfg.WidgetConfigPath, func(overrides map[string]any) {
				a.registry.Reconfigure(egCtx, overrides)
			})
		})
	}
	return eg.Wait()
}
