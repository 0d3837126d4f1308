package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jaaahooou/apka-inz/internal/auth"
	"github.com/jaaahooou/apka-inz/internal/domain"
)

type principalKey struct{}

// WithAuth is the connection gateway. It pulls the bearer credential from the
// `token` query parameter (or an Authorization header on the synchronous
// endpoints), validates it, and attaches the resolved principal to the
// request context. A missing or rejected credential leaves the request
// anonymous; whether anonymous is acceptable is each handler's call, so the
// gateway never writes a response or closes the connection itself.
func WithAuth(validator *auth.Validator, log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}

		ctx := r.Context()
		if token != "" {
			user, err := validator.Validate(ctx, token)
			if err != nil {
				// The failure kind matters in logs, not to the client.
				log.Warn("credential rejected", "error", err, "remote", r.RemoteAddr)
			} else {
				ctx = context.WithValue(ctx, principalKey{}, user)
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Principal returns the authenticated user attached by WithAuth, or false for
// an anonymous request.
func Principal(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(principalKey{}).(*domain.User)
	return user, ok
}
