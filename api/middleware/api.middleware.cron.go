package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/verdantio/aquahub/internal/errors"
)

// CronAuth guards the external-trigger endpoint with a shared secret.
// The scheduler that fires the tick is a machine, not a user, so it
// authenticates with a header instead of a bearer token.
type CronAuth struct {
	secret string
}

func NewCronAuth(secret string) *CronAuth {
	return &CronAuth{secret: secret}
}

// Authenticate validates the X-Cron-Secret header
func (c *CronAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get("X-Cron-Secret")
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(c.secret)) != 1 {
			handleError(w, errors.NewAuthError("invalid cron secret", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
