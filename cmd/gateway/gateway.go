package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"admission-gateway/internal/config"
	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/domain"
)

type gateway struct {
	cfg      config.Config
	store    domain.AdmissionStore
	stats    domain.StatsStore
	metrics  *ratelimit.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	upstream http.Handler
}

// routes monta: /healthz e /metrics direto; o resto passa por
// host canônico -> rate limit -> limite de concorrência -> upstream.
func (g gateway) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))

	policy := g.cfg.Rate.Policy
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.CanonicalHost(g.cfg.CanonicalHost))
		r.Use(ratelimit.Middleware(ratelimit.Options{
			Store:   g.store,
			Stats:   g.stats,
			Policy:  &policy,
			Logger:  g.logger,
			Metrics: g.metrics,
		}))
		r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Max:            g.cfg.Concurrency.Max,
			RejectStatus:   http.StatusServiceUnavailable,
			AcquireTimeout: g.cfg.Concurrency.Timeout,
			Logger:         g.logger,
			Metrics:        g.metrics,
		}))
		r.Handle("/*", g.upstream)
	})

	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func newProxy(target *url.URL, logger *slog.Logger) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error", "error", err, "path", r.URL.Path)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	return proxy
}
