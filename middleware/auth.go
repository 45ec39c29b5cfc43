package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"forum/pkg/session"
)

// Auth attaches the caller's session to the request context. A Bearer token
// wins over the session cookie. Requests without either pass through and
// the handlers that need a user answer 401.
func Auth(sm *session.SessionManager, tokens *session.TokenManager, logger *zap.SugaredLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := tokens.FromRequest(r)
		if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			logger.Infow("rejected token", "path", r.URL.Path, "err", err)
		}
		if sess == nil {
			sess, _ = sm.CheckSession(r)
		}
		if sess == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := session.CreateContextWithSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
