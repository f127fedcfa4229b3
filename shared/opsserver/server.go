// Package opsserver - служебный HTTP сервер сервиса: /health и /metrics.
package opsserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chat-server/shared/messaging"
	"chat-server/shared/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BrokerState сообщает состояние соединения с брокером.
type BrokerState interface {
	State() messaging.ConnState
}

// HealthResponse - тело ответа /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	RabbitMQ string `json:"rabbitmq"`
}

// Server оборачивает http.Server с роутером gin.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewRouter собирает роутер: /health отвечает 503, пока брокер не в состоянии connected.
func NewRouter(service string, broker BrokerState, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ZapLoggingMiddlewareForGin(logger, "/health", "/metrics"))

	router.GET("/health", func(c *gin.Context) {
		state := broker.State()
		resp := HealthResponse{Status: "ok", Service: service, RabbitMQ: state.String()}
		if state != messaging.StateConnected {
			resp.Status = "degraded"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}

func New(port, service string, broker BrokerState, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	return NewWithHandler(port, NewRouter(service, broker, gatherer, logger.Named("opsserver")), logger)
}

// NewWithHandler нужен сервисам, которые добавляют свои маршруты к роутеру из NewRouter.
func NewWithHandler(port string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Named("opsserver"),
	}
}

// Start запускает сервер в отдельной горутине. Ошибка прослушивания порта фатальна.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Запуск служебного HTTP сервера", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Fatal("Ошибка запуска служебного HTTP сервера", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
