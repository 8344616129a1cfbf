package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ghuser/campusreserve/pkg/httpx"
)

const errTooManyRequests = "too many requests, try again later"

// LimitByUser allows requests per window for each authenticated user, keyed
// by the ID RequireAuth stored in the context. Anonymous callers share a
// bucket per IP.
func LimitByUser(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(userKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			httpx.JSONError(w, http.StatusTooManyRequests, errTooManyRequests)
		}),
	)
}

func userKey(r *http.Request) (string, error) {
	if id, err := UserIDFromCtx(r.Context()); err == nil {
		return "user:" + id.String(), nil
	}
	return httprate.KeyByIP(r)
}
