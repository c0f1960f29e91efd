package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/tiercache/observe"
)

// Middleware authenticates every request with a. When role is non-empty the
// identity must carry it. The identity is attached to the request context.
func Middleware(a *JWTAuthenticator, role string, logger observe.Logger) func(http.Handler) http.Handler {
	logger = observe.OrNop(logger).With(observe.F("component", "auth"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				logger.Debug(r.Context(), "admin request rejected",
					observe.F("path", r.URL.Path), observe.Err(err))
				w.Header().Set("WWW-Authenticate", `Bearer realm="tiercache"`)
				deny(w, http.StatusUnauthorized, err)
				return
			}
			if role != "" && !id.HasRole(role) {
				logger.Warn(r.Context(), "admin request forbidden",
					observe.F("path", r.URL.Path), observe.F("subject", id.Subject))
				deny(w, http.StatusForbidden, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func deny(w http.ResponseWriter, code int, err error) {
	// Validation detail stays in the log.
	if errors.Is(err, ErrInvalidCredentials) {
		err = ErrInvalidCredentials
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
