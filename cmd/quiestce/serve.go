package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/quiestce/quiestce"
	"github.com/quiestce/quiestce/directory"
	"github.com/quiestce/quiestce/instrumentation"
	"github.com/quiestce/quiestce/internal/config"
	"github.com/quiestce/quiestce/security"
	"github.com/quiestce/quiestce/storage"
	"github.com/quiestce/quiestce/storage/memory"
	"github.com/quiestce/quiestce/storage/valkey"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization server",
		Long: `Start the authorization server.

The configuration file holds the registered client, the token secret and the
users offered on the login page. HOST, PORT and BASE_URL may be set in the
environment or with flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(os.Stderr, v.GetString(keyLogLevel), v.GetString(keyLogFormat))
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return runServe(cmd.Context(), v, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("host", config.DefaultHost, "Address to listen on (env HOST)")
	flags.Int("port", config.DefaultPort, "Port to listen on (env PORT)")
	flags.String("base-url", "", "Public URL of this server (env BASE_URL)")
	flags.String("metrics-exporter", "none", "Metrics exporter: none or prometheus (env METRICS_EXPORTER)")
	bindFlags(v, flags, map[string]string{
		config.KeyHost:     "host",
		config.KeyPort:     "port",
		config.KeyBaseURL:  "base-url",
		keyMetricsExporter: "metrics-exporter",
	})

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper, logger *slog.Logger) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	identities, err := cfg.Identities()
	if err != nil {
		return err
	}
	dir, err := directory.New(identities)
	if err != nil {
		return fmt.Errorf("failed to build identity directory: %w", err)
	}

	exporter := v.GetString(keyMetricsExporter)
	if exporter == "none" {
		exporter = instrumentation.MetricsExporterNone
	}
	inst, err := instrumentation.New(instrumentation.Config{
		Enabled:         exporter != instrumentation.MetricsExporterNone,
		ServiceVersion:  version,
		MetricsExporter: exporter,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := inst.Shutdown(context.Background()); err != nil {
			logger.Warn("Failed to shut down instrumentation", "error", err)
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, inst, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := quiestce.NewServer(store, dir, cfg.ServerConfig(), logger)
	if err != nil {
		return err
	}
	srv.SetInstrumentation(inst)
	if !cfg.Security.DisableAudit {
		auditor := security.NewAuditor(logger, true)
		auditor.SetRecorder(inst.Metrics())
		srv.SetAuditor(auditor)
	}

	handler := quiestce.NewHandler(srv, handlerConfig(cfg, exporter), logger)
	defer handler.Stop()

	httpServer := quiestce.NewHTTPServer(cfg.Addr(), handler.Routes())

	logger.Info("Starting quiestce",
		"version", version,
		"addr", cfg.Addr(),
		"base_url", cfg.BaseURL,
		"config", cfg.Path,
		"storage", cfg.Storage.Backend,
		"users", dir.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore creates the configured transaction store and returns its
// release function
func openStore(ctx context.Context, cfg *config.Config, inst *instrumentation.Instrumentation, logger *slog.Logger) (storage.TransactionStore, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendValkey:
		vc, err := cfg.ValkeyConfig(logger)
		if err != nil {
			return nil, nil, err
		}
		store, err := valkey.Connect(ctx, vc)
		if err != nil {
			return nil, nil, err
		}
		store.SetInstrumentation(inst)
		return store, store.Close, nil
	default:
		store := memory.NewWithConfig(cfg.MemoryConfig(logger))
		store.SetInstrumentation(inst)
		return store, store.Stop, nil
	}
}

func handlerConfig(cfg *config.Config, exporter string) quiestce.Config {
	hc := quiestce.DefaultConfig()
	hc.BaseURL = cfg.BaseURL
	hc.Security.TrustProxy = cfg.Security.TrustProxy
	if cfg.Security.TrustedProxyCount > 0 {
		hc.Security.TrustedProxyCount = cfg.Security.TrustedProxyCount
	}

	switch {
	case cfg.Security.RateLimit < 0:
		hc.RateLimit.Rate = 0
	case cfg.Security.RateLimit > 0:
		hc.RateLimit.Rate = cfg.Security.RateLimit
	}
	if cfg.Security.RateLimitBurst > 0 {
		hc.RateLimit.Burst = cfg.Security.RateLimitBurst
	}

	if exporter == instrumentation.MetricsExporterPrometheus {
		hc.MetricsGatherer = prometheus.DefaultGatherer
	}
	return hc
}
