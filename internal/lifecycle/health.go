package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// ReadinessSource reports per-component health, keyed by component name.
type ReadinessSource interface {
	Check(ctx context.Context) map[string]string
}

// Probes answers liveness and readiness. Readiness fails once draining starts.
type Probes struct {
	source   ReadinessSource
	draining atomic.Bool
	log      *slog.Logger
}

// NewProbes creates Probes backed by source. A nil source is always ready.
func NewProbes(source ReadinessSource, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{source: source, log: log}
}

// Drain marks the process as shutting down.
func (p *Probes) Drain() {
	p.draining.Store(true)
}

// Liveness always succeeds while the process can serve HTTP.
func (p *Probes) Liveness(context.Context) error {
	return nil
}

// Readiness fails while draining or when any component is unhealthy.
func (p *Probes) Readiness(ctx context.Context) error {
	if p.draining.Load() {
		return errors.New("shutting down")
	}
	if p.source == nil {
		return nil
	}

	var failed []string
	for name, status := range p.source.Check(ctx) {
		if status != "OK" {
			failed = append(failed, fmt.Sprintf("%s: %s", name, status))
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return errors.New(strings.Join(failed, "; "))
	}
	return nil
}

// Register mounts /livez and /readyz on mux.
func (p *Probes) Register(mux *http.ServeMux, timeout time.Duration) {
	for pattern, h := range p.Routes(timeout) {
		mux.Handle(pattern, h)
	}
}

// Routes returns the probe handlers keyed by path.
func (p *Probes) Routes(timeout time.Duration) map[string]http.Handler {
	return map[string]http.Handler{
		"/livez":  p.handler(p.Liveness, timeout),
		"/readyz": p.handler(p.Readiness, timeout),
	}
}

func (p *Probes) handler(probe func(context.Context) error, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := probe(ctx); err != nil {
			p.log.Debug("probe failed", slog.String("path", r.URL.Path), slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
}
