package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"chat-server/shared/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newRouter(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)

	r := gin.New()
	r.Use(middleware.ZapLoggingMiddlewareForGin(zap.New(core), "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	return r, logs
}

func TestZapLoggingMiddlewareForGin(t *testing.T) {
	t.Run("Логирует запрос и выставляет request id", func(t *testing.T) {
		r, logs := newRouter(t)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		requestID := w.Header().Get(middleware.RequestIDHeader)
		assert.NotEmpty(t, requestID)

		entries := logs.FilterMessage("Request completed").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "/ok?x=1", fields["path"])
		assert.Equal(t, requestID, fields["request_id"])
	})

	t.Run("Сохраняет входящий request id", func(t *testing.T) {
		r, _ := newRouter(t)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(middleware.RequestIDHeader, "req-42")
		r.ServeHTTP(w, req)
		assert.Equal(t, "req-42", w.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("Пропускает служебные пути", func(t *testing.T) {
		r, logs := newRouter(t)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Zero(t, logs.Len())
	})

	t.Run("5xx логируется как ошибка", func(t *testing.T) {
		r, logs := newRouter(t)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
		assert.Equal(t, 1, logs.FilterMessage("Server error").Len())
	})
}
