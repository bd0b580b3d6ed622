package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/idilsaglam/posts/internal/config"
	"github.com/idilsaglam/posts/internal/platform/logger"
	"github.com/idilsaglam/posts/internal/server"
	"github.com/idilsaglam/posts/internal/store/memstore"
	"github.com/idilsaglam/posts/internal/ui"
)

const shutdownTimeout = 5 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var (
		addr, data, token string
		latency           time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the posts API",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := a.cfg.Server
			flags := cmd.Flags()
			if flags.Changed("addr") {
				sc.Addr = addr
			}
			if flags.Changed("data") {
				sc.DataFile = data
			}
			if flags.Changed("latency") {
				sc.Latency = latency
			}
			if flags.Changed("token") {
				sc.Token = token
			}

			log, err := logger.New(ui.Stderr, a.cfg.LogLevel)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", sc.Addr)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), ln, sc, log)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	f.StringVar(&data, "data", "", "JSON file the posts are kept in; empty keeps them in memory")
	f.DurationVar(&latency, "latency", 0, "artificial delay added to every /posts request")
	f.StringVar(&token, "token", "", "bearer token required for changes")
	return cmd
}

// serve runs the API on ln until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, ln net.Listener, sc config.Server, log *slog.Logger) error {
	store := memstore.New()
	if sc.DataFile != "" {
		var err error
		if store, err = memstore.Open(sc.DataFile); err != nil {
			ln.Close()
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	api := server.New(store, log, reg, server.Options{Token: sc.Token, Latency: sc.Latency})
	srv := server.NewHTTPServer(ln.Addr().String(), api.Routes())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", ln.Addr().String(), "data", sc.DataFile, "auth", sc.Token != "")
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
