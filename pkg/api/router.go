package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bryanEnzee/skillance-relay/pkg/log"
)

type RouterConfig struct {
	Production bool
	// AuthSecret enables bearer-token auth on /api when non-empty.
	AuthSecret string
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
}

func NewRouter(h *Handler, cfg RouterConfig, logger *log.RelayLogger) *gin.Engine {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	router.Use(ErrorHandler())

	router.GET("/health", h.Health)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	if cfg.AuthSecret != "" {
		api.Use(RequireAuth([]byte(cfg.AuthSecret)))
	}
	{
		api.POST("/relay", h.Relay)
		api.GET("/relay/tx/:hash", h.TxStatus)
	}
	return router
}

// Serve runs the HTTP server until ctx is done and then shuts it down gracefully.
// In-flight batches get shutdownTimeout to finish.
func Serve(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, logger *log.RelayLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}
