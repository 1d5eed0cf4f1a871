package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rentalcore/internal/adapters/httpapi"
	"rentalcore/internal/blob"
	blobcore "rentalcore/internal/blob/core"
	"rentalcore/internal/core"
	"rentalcore/internal/geocode"
	"rentalcore/internal/hub"
)

type serveOptions struct {
	addr            string
	origins         []string
	shutdownTimeout time.Duration
	tokenTTL        time.Duration
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live view streams and /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.addr == "" {
				opts.addr = envOr("RENTALCORE_HTTP_ADDR", ":8080")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ln, err := net.Listen("tcp", opts.addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", opts.addr, err)
			}
			return serve(ctx, ln, opts, newLogger(cmd.ErrOrStderr()))
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default $RENTALCORE_HTTP_ADDR or :8080)")
	cmd.Flags().StringSliceVar(&opts.origins, "cors-origin", nil, "allowed CORS origins (default any)")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")
	cmd.Flags().DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of tokens issued at registration")
	return cmd
}

// serve wires every collaborator and runs the HTTP server on ln until ctx is done.
func serve(ctx context.Context, ln net.Listener, opts serveOptions, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return err
	}

	store, closeStore, err := core.OpenPersistentStore(ctx, core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	files, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	baseURL := blob.BaseURLFromEnv()
	if baseURL == "" && files.Driver() != blobcore.DriverS3 {
		baseURL = "/assets"
	}
	assets := blob.NewAssets(files, blob.WithBaseURL(baseURL))

	tokens, err := newTokens(opts.tokenTTL)
	if err != nil {
		return err
	}

	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(core.LogAuditRecorder{Logger: logger}),
		core.WithAssetStore(assets),
	)
	hubOpts := []hub.Option{hub.WithLogger(logger), hub.WithGauges(metrics)}
	geocoder, closeGeocoder := newGeocoder(logger)
	defer closeGeocoder()
	if geocoder != nil {
		hubOpts = append(hubOpts, hub.WithGeocoder(geocoder))
	}
	h := hub.New(store, hubOpts...)
	defer h.Close()

	apiOpts := []httpapi.Option{httpapi.WithLogger(logger), httpapi.WithAllowedOrigins(opts.origins...)}
	if files.Driver() != blobcore.DriverS3 {
		apiOpts = append(apiOpts, httpapi.WithAssetFiles(files))
	}
	api := httpapi.New(svc, h, tokens, apiOpts...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", api.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	// Live view streams only end when their subscriptions do.
	srv.RegisterOnShutdown(h.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("rentald listening", "addr", ln.Addr().String(), "blob", string(files.Driver()), "rules", strings.Join(svc.RulesEngine().Rules(), ","))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("rentald shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newGeocoder returns nil when RENTALCORE_GEOCODER_URL is unset. With
// RENTALCORE_REDIS_ADDR the HTTP geocoder is fronted by a redis cache.
func newGeocoder(logger *slog.Logger) (geocode.Geocoder, func()) {
	endpoint := os.Getenv("RENTALCORE_GEOCODER_URL")
	if endpoint == "" {
		return nil, func() {}
	}
	var g geocode.Geocoder = geocode.NewHTTPGeocoder(endpoint, geocode.WithUserAgent("rentald"))
	addr := os.Getenv("RENTALCORE_REDIS_ADDR")
	if addr == "" {
		return g, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("RENTALCORE_REDIS_PASSWORD")})
	return geocode.NewCached(g, client, geocode.DefaultTTL, logger), func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}
}
