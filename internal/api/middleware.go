package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/skyfay/dbackup/internal/apikey"
)

// contextKey is an unexported type for context keys defined in this package.
type contextKey int

const (
	// contextKeyAPIKey is the context key under which the verified
	// *db.APIKey record is stored after a successful Authenticate call.
	contextKeyAPIKey contextKey = iota
)

// Authenticate returns a middleware that validates the bearer API key in
// the Authorization header and requires it carry every capability in need
// (spec §6 "jobs:execute" for trigger, "jobs:read" for poll).
//
// Header format: "Authorization: Bearer <key>"
func Authenticate(keys *apikey.Manager, need ...apikey.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				ErrUnauthorized(w)
				return
			}

			rec, err := keys.Verify(r.Context(), parts[1], need...)
			if err != nil {
				ErrUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyAPIKey, rec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger returns a Chi-compatible middleware that logs each request
// using the provided zap logger.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
