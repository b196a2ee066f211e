package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/target/mmk-jobs/config"
	httpx "github.com/target/mmk-jobs/internal/http"
)

const (
	defaultHTTPAddr      = ":8080"
	compressionMinBytes  = 1024
	defaultHTTPShutdown  = 10 * time.Second
	httpReadHeaderLimit  = 10 * time.Second
	httpReadWriteTimeout = 30 * time.Second
	httpIdleTimeout      = 2 * time.Minute
)

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
	HTTP     config.HTTPConfig
}

// buildHTTPHandler wraps the router as Recover -> Logging -> Compression -> MaxBody -> Router.
func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	h := httpx.MaxBodyBytes(cfg.HTTP.MaxBodyBytes)(httpx.NewRouter(cfg.Services))
	if cfg.HTTP.CompressionEnabled {
		h = httpx.Compression(httpx.CompressionConfig{
			Level:   cfg.HTTP.CompressionLevel,
			MinSize: compressionMinBytes,
			Logger:  cfg.Logger,
		})(h)
	}
	return httpx.Recover(cfg.Logger)(httpx.Logging(cfg.Logger)(h))
}

func newHTTPServer(cfg *config.AppConfig, services ServiceContainer, logger *slog.Logger) *http.Server {
	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = defaultHTTPAddr
	}
	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: httpx.RouterServices{Jobs: services.Jobs, Logger: logger},
		HTTP:     cfg.HTTP,
	})
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: httpReadHeaderLimit,
		ReadTimeout:       httpReadWriteTimeout,
		WriteTimeout:      httpReadWriteTimeout,
		IdleTimeout:       httpIdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

// serveHTTP listens on srv.Addr and serves until ctx is done, then drains
// in-flight requests for up to shutdownTimeout.
func serveHTTP(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	logger.InfoContext(ctx, "HTTP server listening", "addr", ln.Addr().String())

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultHTTPShutdown
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	logger.Info("draining HTTP server", "timeout", shutdownTimeout)
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	<-serveErr
	logger.Info("HTTP server stopped")
	return nil
}
