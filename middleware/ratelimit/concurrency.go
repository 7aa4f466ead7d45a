package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	// Max <= 0 desliga o limite.
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// RetryAfter vai no header da resposta de rejeição (padrão 1s).
	RetryAfter time.Duration
	Logger     *slog.Logger
	Metrics    *Metrics
}

// ConcurrencyMiddleware limita requisições simultâneas no upstream.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	pool := infra.NewChanPool(opts.Max)
	opts.Metrics.trackInFlight(pool.InUse)
	svc := application.ConcurrencyService{
		Pool:           pool,
		AcquireTimeout: opts.AcquireTimeout,
	}
	retryAfter := strconv.Itoa(int((opts.RetryAfter + time.Second - 1) / time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				opts.Metrics.observeConcurrencyRejected()
				opts.Logger.Debug("concurrency slot unavailable", "path", r.URL.Path, "max", opts.Max)
				w.Header().Set(HeaderRetryAfter, retryAfter)
				writeJSONError(w, opts.RejectStatus, errorBody{
					Error:   "too many concurrent requests",
					Message: "The service is busy. Please retry shortly.",
				})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
