package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"voicetutor/internal/metrics"
	"voicetutor/pkg/logger"
)

// Middleware содержит промежуточные обработчики API.
type Middleware struct {
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewMiddleware создаёт набор middleware.
func NewMiddleware(log *logger.Logger, m *metrics.Metrics) *Middleware {
	return &Middleware{
		logger:  log.Named("api-middleware"),
		metrics: m,
	}
}

// Logger пишет в журнал каждый запрос и считает его в метриках.
func (m *Middleware) Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			elapsed := time.Since(start)
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			m.logger.Debug("HTTP request",
				logger.String("method", r.Method),
				logger.String("route", route),
				logger.String("request_id", middleware.GetReqID(r.Context())),
				logger.String("remote_addr", r.RemoteAddr),
				logger.Int("status", ww.Status()),
				logger.Int("bytes", ww.BytesWritten()),
				logger.Duration("duration", elapsed),
			)
			m.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(ww.Status()), elapsed.Seconds())
		}()

		next.ServeHTTP(ww, r)
	})
}

// RequestID добавляет идентификатор запроса в контекст.
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

// Recoverer перехватывает панику в обработчике.
func (m *Middleware) Recoverer(next http.Handler) http.Handler {
	return middleware.Recoverer(next)
}
