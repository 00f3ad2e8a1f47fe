package middleware

import (
	"context"
	"net/http"
	"strings"
)

// HeaderAccountID carries the calling account. AppHub does not authenticate;
// an upstream gateway is expected to set it.
const HeaderAccountID = "X-Account-ID"

type accountCtxKey struct{}

// AccountID is middleware that stores the X-Account-ID header value in the
// request context. A missing header leaves the context untouched; handlers
// that need a caller reject the request.
func AccountID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(HeaderAccountID)); id != "" {
			r = r.WithContext(WithAccountID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// WithAccountID returns a context carrying accountID.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountCtxKey{}, accountID)
}

// AccountIDFromContext returns the account ID stored in ctx, or "".
func AccountIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(accountCtxKey{}).(string)
	return id
}
