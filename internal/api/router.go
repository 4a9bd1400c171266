package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tgienger/taskmanager/internal/db"
	"github.com/tgienger/taskmanager/internal/logger"
	"github.com/tgienger/taskmanager/internal/metrics"
	"github.com/tgienger/taskmanager/internal/trace"
)

// Pinger reports store readiness. *db.DB satisfies it through *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// storeStats is reported by /readyz when the store provides it, as *db.DB does.
type storeStats interface {
	Dialect() db.Dialect
	TaskCount(ctx context.Context) (int, error)
}

type RouterConfig struct {
	AllowedOrigins []string
}

func NewRouter(taskHandler *TaskHandler, cfg RouterConfig, store Pinger, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{trace.HeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(traceID)
	r.Use(requestLogger(log))
	r.Use(recoverer(log))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: msgNoRoute})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: msgNoMethod})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		if err := store.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db_not_ready", "error": err.Error()})
			return
		}

		body := map[string]any{"status": "ready"}
		if stats, ok := store.(storeStats); ok {
			count, err := stats.TaskCount(ctx)
			if err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db_not_ready", "error": err.Error()})
				return
			}
			body["dialect"] = stats.Dialect().String()
			body["tasks"] = count
		}
		writeJSON(w, http.StatusOK, body)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", taskHandler.ListTasks)
		r.Post("/", taskHandler.CreateTask)
		r.Get("/{id}", taskHandler.GetTask)
		r.Put("/{id}", taskHandler.UpdateTask)
		r.Delete("/{id}", taskHandler.DeleteTask)
	})

	return r
}

// traceID attaches the caller's X-Trace-ID, or a fresh one, to the request.
func traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(trace.HeaderName)
		if id == "" {
			id = trace.NewID()
		}
		w.Header().Set(trace.HeaderName, id)
		next.ServeHTTP(w, r.WithContext(trace.WithContext(r.Context(), id)))
	})
}

// requestLogger logs every request and records its latency under the route pattern.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			latency := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			metrics.RecordHTTPRequestDuration(r.Method, route, strconv.Itoa(status), latency)

			logger.WithTrace(r.Context(), log).Info("HTTP Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.Int("status", status),
				zap.Duration("latency", latency),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
			)
		})
	}
}

// recoverer turns a panic into the standard 500 body instead of a dropped connection.
func recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.WithTrace(r.Context(), log).Error("Panic while handling request",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{
					Error:   "An unexpected error occurred",
					Message: fmt.Sprint(rec),
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
