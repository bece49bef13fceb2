// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is implemented by dependencies whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Readiness reports ready when every named dependency answers a ping within
// timeout. Nil pingers are skipped so optional backends do not gate startup.
func Readiness(timeout time.Duration, deps map[string]Pinger) http.HandlerFunc {
	if timeout <= 0 {
		timeout = time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks,omitempty"`
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		out := resp{Status: "ready", Checks: map[string]string{}}
		for name, p := range deps {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				out.Status = "not_ready"
				out.Checks[name] = err.Error()
				continue
			}
			out.Checks[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
