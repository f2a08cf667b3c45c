package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/govconsole/internal/observability"
	"github.com/pitabwire/govconsole/internal/transport"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin dashboard over HTTP",
		Long: `Serve POST /interactions for the chat platform, plus /healthz,
/readyz and the Prometheus metrics endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(parent context.Context, rootOpts *RootOptions) error {
	cfg, err := rootOpts.load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "govconsole", observability.Version)
	if err != nil {
		return err
	}
	defer flushTracing(tracingShutdown, shutdownTimeout, logger)

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	a, err := newApp(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer a.Close()

	dashboards, err := transport.NewDashboards(a.dashboard)
	if err != nil {
		return err
	}

	var jwks *transport.JWKSClient
	if cfg.Identity.JWKSURL != "" {
		jwks = transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Authenticate:       transport.JWTAuthenticator(cfg.Identity, jwks),
		CapabilityResolver: a.resolver,
		Dashboards:         dashboards,
		Guard:              a.guard,
		Readiness: observability.ReadinessChecks{
			Store:  a.store,
			Dedupe: a.guardCheck,
		},
		Metrics:  metrics,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", observability.Version),
		zap.String("commit", observability.Commit),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// flushTracing runs the tracer provider shutdown under its own deadline. It
// is deferred right after tracing starts so every return path flushes spans.
func flushTracing(shutdown func(context.Context) error, timeout time.Duration, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}
}
