package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"data-chopper/internal/pkg/metrics"
)

// Server - HTTP-сервер API удаления
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewRouter собирает маршруты API и /metrics
func NewRouter(handler *Handler, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(RecoveryMiddleware(logger), RequestMiddleware(logger, m))

	handler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(logger),
	})).Methods(http.MethodGet)

	return router
}

// NewServer создает сервер на порту port. WriteTimeout покрывает синхронное планирование запуска.
func NewServer(router http.Handler, logger *zap.Logger, port int) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      planTimeout + 15*time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Start слушает порт до вызова Stop
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}

	s.logger.Info("HTTP server listening", zap.String("address", ln.Addr().String()))

	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop дожидается завершения текущих запросов, но не дольше ctx
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
