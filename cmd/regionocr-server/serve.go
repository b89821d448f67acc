package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/psantana5/regionocr/internal/app"
	"github.com/psantana5/regionocr/internal/config"
	"github.com/psantana5/regionocr/pkg/logging"
	"github.com/psantana5/regionocr/pkg/shutdown"
	tlsutil "github.com/psantana5/regionocr/pkg/tls"
)

// logs are rotated once they reach this size
const maxLogSize = 100 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "API port (default 8000)")
	serveCmd.Flags().Int("metrics-port", 0, "serve /metrics on a separate port")
	serveCmd.Flags().Bool("tls", false, "enable TLS")
	serveCmd.Flags().Bool("generate-cert", false, "generate a self-signed certificate when none exists")
	serveCmd.Flags().Int("concurrency", 0, "regions processed in parallel per run")

	v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	v.BindPFlag("metrics.port", serveCmd.Flags().Lookup("metrics-port"))
	v.BindPFlag("server.tls.enabled", serveCmd.Flags().Lookup("tls"))
	v.BindPFlag("server.tls.auto_generate", serveCmd.Flags().Lookup("generate-cert"))
	v.BindPFlag("pipeline.concurrency", serveCmd.Flags().Lookup("concurrency"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, "server")
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.Info("Starting regionocr server", map[string]interface{}{
		"port":        cfg.Server.Port,
		"store":       cfg.Store.Type,
		"data_root":   cfg.Data.Root,
		"concurrency": cfg.Pipeline.Concurrency,
	})

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	a.StartBackground(ctx)
	if cfg.Log.Dir != "" {
		go rotateLogs(ctx, logger)
	}

	srv := a.HTTPServer()
	if err := configureTLS(srv, cfg.Server.TLS, logger); err != nil {
		a.Close(context.Background())
		return err
	}
	metricsSrv := a.MetricsServer()

	mgr := shutdown.New(cfg.Server.ShutdownTimeout, logger)
	mgr.Register("app", a.Close)
	mgr.Register("api server", shutdown.StopHTTPServer(srv, "api"))
	if metricsSrv != nil {
		mgr.Register("metrics server", shutdown.StopHTTPServer(metricsSrv, "metrics"))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("API server listening", map[string]interface{}{
			"addr": srv.Addr,
			"tls":  srv.TLSConfig != nil,
		})
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			logger.Info("Metrics server listening", map[string]interface{}{"addr": metricsSrv.Addr})
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	mgr.Wait(gctx)
	shutdownErr := mgr.Shutdown()
	cancel()
	return errors.Join(g.Wait(), shutdownErr)
}

func configureTLS(srv *http.Server, cfg config.TLSConfig, logger *logging.Logger) error {
	if !cfg.Enabled {
		logger.Warn("TLS disabled")
		return nil
	}
	if cfg.AutoGenerate {
		generated, err := tlsutil.EnsureCert(cfg.Cert, cfg.Key, "regionocr")
		if err != nil {
			return fmt.Errorf("failed to generate certificate: %w", err)
		}
		if generated {
			logger.Info("Self-signed certificate generated", map[string]interface{}{
				"cert": cfg.Cert,
				"key":  cfg.Key,
			})
		}
	}

	tlsConfig, err := tlsutil.LoadServerConfig(tlsutil.ServerConfig{
		CertFile:          cfg.Cert,
		KeyFile:           cfg.Key,
		CAFile:            cfg.CA,
		RequireClientCert: cfg.MTLS,
	})
	if err != nil {
		return fmt.Errorf("failed to load TLS config: %w", err)
	}
	srv.TLSConfig = tlsConfig
	if cfg.MTLS {
		logger.Info("mTLS enabled, client certificates required")
	}
	return nil
}

func rotateLogs(ctx context.Context, logger *logging.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := logger.RotateIfNeeded(maxLogSize); err != nil {
				logger.Warn("Log rotation failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}
