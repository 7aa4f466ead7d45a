package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
)

type Options struct {
	Store domain.AdmissionStore
	Stats domain.StatsStore
	// Policy nil usa DefaultPolicy().
	Policy  *Policy
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *Metrics
	// ErrorLogInterval limita logs repetidos de fail-open (padrão 10s).
	ErrorLogInterval time.Duration
}

// Middleware é o gate de admissão: roda antes de qualquer handler de rota.
// Sem Store o gate fica desligado.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	policy := DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ErrorLogInterval <= 0 {
		opts.ErrorLogInterval = 10 * time.Second
	}

	svc := application.Service{Store: opts.Store, Now: opts.Now}
	storeLog := &rate.Sometimes{First: 1, Interval: opts.ErrorLogInterval}
	statsLog := &rate.Sometimes{First: 1, Interval: opts.ErrorLogInterval}
	log := opts.Logger.With("component", "ratelimit")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, limited := policy.Resolve(r)
			if !limited {
				opts.Metrics.observeDecision(outcomeExempt, outcomeExempt)
				next.ServeHTTP(w, r)
				return
			}

			dec, err := svc.Decide(r.Context(), res.Key(), res.Rule)
			if err != nil {
				opts.Metrics.observeStoreError()
				storeLog.Do(func() {
					log.Error("rate limit check failed, admitting request",
						"error", err, "identifier", res.Identifier, "route", res.Route)
				})
			}

			if opts.Stats != nil {
				ev := domain.StatsEvent{
					Key:        res.Key(),
					Route:      res.Route,
					Allowed:    dec.Allowed,
					FailedOpen: dec.FailedOpen,
					Method:     r.Method,
					Path:       r.URL.Path,
					At:         opts.Now(),
				}
				if err := opts.Stats.Record(r.Context(), ev); err != nil {
					opts.Metrics.observeStatsError()
					statsLog.Do(func() { log.Warn("rate limit stats not recorded", "error", err) })
				}
			}

			switch {
			case dec.FailedOpen:
				opts.Metrics.observeDecision(res.Route, outcomeFailedOpen)
				next.ServeHTTP(w, r)
				return
			case !dec.Allowed:
				opts.Metrics.observeDecision(res.Route, outcomeRejected)
				log.Debug("request throttled",
					"identifier", res.Identifier, "route", res.Route,
					"limit", dec.Limit, "retry_after", dec.RetryAfterSeconds())
				writeRejection(w, dec)
				return
			}

			opts.Metrics.observeDecision(res.Route, outcomeAllowed)
			setQuotaHeaders(w.Header(), dec)
			next.ServeHTTP(w, r)
		})
	}
}
