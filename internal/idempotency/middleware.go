// Package idempotency replays the first completed response for a repeated
// Idempotency-Key so that retried POSTs do not place orders or payments twice.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/auth"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"

	lockTTL = 30 * time.Second
)

// Middleware scopes keys by principal, method and path. Responses with a
// 5xx status are not kept so the client can retry them.
func Middleware(store Store, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			scoped := scopeKey(ctx, r, key)
			logger := log.With().Str("idempotency_key", key).Str("path", r.URL.Path).Logger()

			stored, err := store.Get(ctx, scoped)
			if err != nil {
				logger.Error().Err(err).Msg("idempotency: store unavailable, processing request without replay")
				next.ServeHTTP(w, r)
				return
			}
			if stored != nil {
				logger.Info().Int("status", stored.Status).Msg("idempotency: replaying stored response")
				replay(w, stored)
				return
			}

			locked, err := store.Lock(ctx, scoped, lockTTL)
			if err != nil {
				logger.Error().Err(err).Msg("idempotency: store unavailable, processing request without replay")
				next.ServeHTTP(w, r)
				return
			}
			if !locked {
				logger.Warn().Msg("idempotency: request with the same key is in progress")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"error":"A request with this Idempotency-Key is already in progress"}`))
				return
			}
			defer func() {
				if err := store.Unlock(context.WithoutCancel(ctx), scoped); err != nil {
					logger.Warn().Err(err).Msg("idempotency: failed to release lock")
				}
			}()

			// The first request may have finished between Get and Lock.
			stored, err = store.Get(ctx, scoped)
			if err != nil {
				logger.Error().Err(err).Msg("idempotency: store unavailable after lock, processing request without replay")
			} else if stored != nil {
				logger.Info().Int("status", stored.Status).Msg("idempotency: replaying stored response")
				replay(w, stored)
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}

			resp := &Response{
				Status: status,
				Header: http.Header{"Content-Type": ww.Header().Values("Content-Type")},
				Body:   body.Bytes(),
			}
			if err := store.Save(context.WithoutCancel(ctx), scoped, resp, ttl); err != nil {
				logger.Error().Err(err).Msg("idempotency: failed to store response")
			}
		})
	}
}

func scopeKey(ctx context.Context, r *http.Request, key string) string {
	owner := "anonymous"
	if p, ok := auth.FromContext(ctx); ok {
		owner = p.UserID.String()
	}
	sum := sha256.Sum256([]byte(owner + "|" + r.Method + "|" + r.URL.Path + "|" + key))
	return hex.EncodeToString(sum[:])
}

func replay(w http.ResponseWriter, resp *Response) {
	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
