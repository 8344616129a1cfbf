package httpx

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthTimeout = 2 * time.Second

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe is one dependency reported by HealthHandler. A failing optional probe
// is reported but leaves the overall status ok.
type Probe struct {
	Name     string
	Pinger   Pinger
	Optional bool
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthHandler pings every probe concurrently and answers 503 when a
// required one is unreachable.
func HealthHandler(probes ...Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		results := make([]error, len(probes))
		var g errgroup.Group
		for i, p := range probes {
			g.Go(func() error {
				results[i] = p.Pinger.Ping(ctx)
				return nil
			})
		}
		_ = g.Wait()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(probes))}
		for i, p := range probes {
			if results[i] == nil {
				resp.Checks[p.Name] = "ok"
				continue
			}
			resp.Checks[p.Name] = "unreachable"
			if !p.Optional {
				resp.Status = "degraded"
			}
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		JSON(w, status, resp)
	}
}
