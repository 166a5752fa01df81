package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tinylink/internal/config"
	"tinylink/internal/logger"

	"github.com/felixge/httpsnoop"
	gorillahandlers "github.com/gorilla/handlers"
)

// Middleware wraps the router with recovery, CORS, request logging and the
// per-request timeout. Recovery is outermost so it also covers CORS.
func Middleware(next http.Handler, cfg *config.Config, log *logger.Logger) http.Handler {
	h := RequestTimeout(next, cfg.RequestTimeout)
	h = RequestLogger(h, log)
	h = gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins([]string{cfg.CORSOrigin}),
		gorillahandlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	return gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(recoveryLogger{log}),
	)(h)
}

// RequestTimeout bounds the context of every request except websocket
// upgrades, which live as long as the client stays connected.
func RequestTimeout(next http.Handler, timeout time.Duration) http.Handler {
	if timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs method, path, status and duration of every request
func RequestLogger(next http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Debug("%s %s -> %d (%d bytes, %v)", r.Method, r.URL.Path, m.Code, m.Written, m.Duration)
	})
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// recoveryLogger adapts the application logger to gorilla's RecoveryHandlerLogger
type recoveryLogger struct {
	log *logger.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("Recovered from panic: %v", v)
}
