package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/tillpoint-terminal/internal/authclient"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
)

type identityKey struct{}

// Identity attaches a verified cashier identity to the request context
// when a bearer token is presented. The terminal keeps working without
// one; handlers that need a named operator check IdentityFrom themselves.
func Identity(auth *authclient.Client, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if auth == nil || !strings.HasPrefix(header, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			identity, err := auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				if logg != nil {
					logg.Warn(ctx, "rejected bearer token on request")
				}
				next.ServeHTTP(w, r)
				return
			}

			if logg != nil {
				ctx = logg.WithField(ctx, "cashier", identity.Subject)
			}
			ctx = context.WithValue(ctx, identityKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFrom returns the cashier identity on the context, if any.
func IdentityFrom(ctx context.Context) *authclient.Identity {
	identity, _ := ctx.Value(identityKey{}).(*authclient.Identity)
	return identity
}
