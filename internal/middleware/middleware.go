// Package middleware provides the HTTP middleware in front of the store API.
package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

// RequestIDHeader carries the operation ID of the client intent that caused
// the request.
const RequestIDHeader = "X-Request-ID"

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares so the first one listed runs first.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// RequestID makes sure every request carries an operation ID. A client
// supplied ID is kept so both ends log the same operation. The ID is echoed
// in the response and attached to the request context for the store.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
				r.Header.Set(RequestIDHeader, id)
			}
			w.Header().Set(RequestIDHeader, id)

			next.ServeHTTP(w, r.WithContext(store.WithOperationID(r.Context(), id)))
		})
	}
}

// Recovery turns a handler panic into a 500 error response.
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("operation_id", r.Header.Get(RequestIDHeader)),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(model.ErrorResponse{
					Code:    http.StatusInternalServerError,
					Message: "internal error",
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// quietRoutes are probe and scrape endpoints logged at Debug level.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// Logging writes one entry per request. Server errors log at Error, client
// errors at Warn and probes at Debug.
func Logging(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := record(w)

			next.ServeHTTP(sr, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", routeLabel(r)),
				zap.Int("status", sr.status),
				zap.Int("bytes", sr.bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", r.Header.Get(RequestIDHeader)),
			}
			if c := mux.Vars(r)["collection"]; c != "" {
				fields = append(fields, zap.String("collection", c))
			}

			switch {
			case sr.status >= http.StatusInternalServerError:
				logger.Error("http request", fields...)
			case sr.status >= http.StatusBadRequest:
				logger.Warn("http request", fields...)
			case quietRoutes[r.URL.Path]:
				logger.Debug("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
		})
	}
}

// routeLabel returns the matched route template, or the raw path when no
// route matched.
func routeLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return r.URL.Path
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return r.URL.Path
	}
	return tmpl
}
