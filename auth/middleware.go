package auth

import (
	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/errors"
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const claimsKey contextKey = "claims"

func WithClaims(ctx context.Context, claims *CustomClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFromContext(ctx context.Context) (*CustomClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*CustomClaims)
	return claims, ok && claims != nil
}

// Middleware rejects requests without a valid bearer token and stores the
// claims in the request context. Browsers cannot set headers on a websocket
// handshake, so the token may also come as the "token" query parameter.
func Middleware(tokens *TokenManager, onError func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r)
			if token == "" {
				onError(w, fmt.Errorf("%w: authorization token is missing", errors.ErrUnauthenticated))
				return
			}
			claims, err := tokens.Validate(token)
			if err != nil {
				onError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearer(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

var _ contract.IdentityProvider = ClaimsIdentity{}

// ClaimsIdentity answers identity lookups from the token of the current request.
// A caller can only act as the user its token was issued for.
type ClaimsIdentity struct{}

func (ClaimsIdentity) Lookup(ctx context.Context, userID string) (chat.Identity, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return chat.Identity{}, errors.ErrUnauthenticated
	}
	if claims.UserID != userID {
		return chat.Identity{}, fmt.Errorf("%w: token does not belong to %s", errors.ErrAuthorization, userID)
	}
	return claims.Identity(), nil
}
