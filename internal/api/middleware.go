package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"classbook/internal/logging"
	"classbook/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey int

const callerKey ctxKey = iota

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestContext tags each request with an id and a request-scoped logger,
// then logs and counts it once the handler returns.
func requestContext(base *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			l := base.With().Str("request_id", reqID).Logger()
			r = r.WithContext(l.WithContext(r.Context()))

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			dur := time.Since(start)
			metrics.ObserveHTTP(route, strconv.Itoa(recorder.status), dur)

			l.Info().
				Str("method", r.Method).
				Str("route", route).
				Int("status", recorder.status).
				Dur("duration", dur).
				Msg("http request")
		})
	}
}

func rateLimit(l *clientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(r) {
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireCaller resolves the Authorization header to a caller id and stores
// it in the request context.
func (h *Handler) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := r.Header.Get("Authorization")
		if credential == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing authorization header")
			return
		}

		callerID, err := h.identity.ResolveCaller(r.Context(), credential)
		if err != nil {
			writeDomainError(w, r, h.logger, err)
			return
		}

		l := logging.FromContext(r.Context(), h.logger).With().Str("caller", callerID).Logger()
		ctx := context.WithValue(r.Context(), callerKey, callerID)
		next.ServeHTTP(w, r.WithContext(l.WithContext(ctx)))
	})
}

func callerFrom(ctx context.Context) string {
	id, _ := ctx.Value(callerKey).(string)
	return id
}
