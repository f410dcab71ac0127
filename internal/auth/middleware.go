package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey string

const identityKey contextKey = "identity"

// Middleware rejects requests without a valid bearer token and stores the Identity in the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logrus.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"ip":     r.RemoteAddr,
		})

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenStr == "" {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		id, err := v.Validate(tokenStr)
		if err != nil {
			log.WithError(err).Warn("auth middleware: token validation failed")
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		log.WithField("user_id", id.UserID).Debug("auth middleware: user authenticated")
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
