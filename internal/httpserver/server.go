// Package httpserver отдаёт HTTP API сервиса клиентов поверх gin.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/customers/internal/health"
)

// Server оборачивает http.Server с маршрутами API.
type Server struct {
	httpServer *http.Server
	logger     *log.Entry
}

// New собирает сервер. gatherer отдаётся на /metrics; nil означает глобальный registry.
func New(addr string, svc CustomerService, healthHandler *health.Handler, gatherer prometheus.Gatherer, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(svc, healthHandler, gatherer, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Addr возвращает адрес, на котором слушает сервер.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Handler возвращает корневой обработчик.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe запускает HTTP сервер.
func (s *Server) ListenAndServe() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown аккуратно останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
