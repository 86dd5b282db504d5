package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmarin-v/slotbook/libs/auth"
	"github.com/dmarin-v/slotbook/libs/httpx"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/accounts"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/booking"
)

type actorKey struct{}

// WithAuth verifies the bearer token and stores the caller's identity in the
// request context. Requests without a valid token are rejected before any
// handler runs; /healthz and /readyz are mounted outside this chain.
func WithAuth(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseAndVerifyHS256(token, secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			actor := booking.Actor{
				UserID: claims.Sub,
				Role:   accounts.Role(claims.Role),
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
		})
	}
}

func actorFrom(ctx context.Context) (booking.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(booking.Actor)
	return actor, ok
}
