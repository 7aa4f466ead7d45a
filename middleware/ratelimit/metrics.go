package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAllowed    = "allowed"
	outcomeRejected   = "rejected"
	outcomeExempt     = "exempt"
	outcomeFailedOpen = "failed_open"
)

// Metrics agrupa os coletores Prometheus do gateway. Um *Metrics nil é válido
// e não registra nada, o que simplifica testes e o uso como biblioteca.
type Metrics struct {
	reg prometheus.Registerer

	decisions           *prometheus.CounterVec
	storeErrors         prometheus.Counter
	statsErrors         prometheus.Counter
	sweepRemoved        prometheus.Counter
	sweepErrors         prometheus.Counter
	evictions           prometheus.Counter
	concurrencyRejected prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by route label and outcome.",
		}, []string{"route", "outcome"}),
		storeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "store_errors_total",
			Help:      "Store failures that were admitted (fail-open).",
		}),
		statsErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "stats_errors_total",
			Help:      "Failures recording decision statistics.",
		}),
		sweepRemoved: f.NewCounter(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "sweep_removed_total",
			Help:      "Expired records removed by the janitor.",
		}),
		sweepErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "sweep_errors_total",
			Help:      "Janitor passes that failed.",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "lru_evictions_total",
			Help:      "Live records evicted because the store was full.",
		}),
		concurrencyRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "concurrency_rejected_total",
			Help:      "Requests rejected for lack of a concurrency slot.",
		}),
	}
}

// TrackRecords publica o tamanho da loja como gauge.
func (m *Metrics) TrackRecords(size func() int) {
	if m == nil || size == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "admission",
		Name:      "store_records",
		Help:      "Records currently held by the in-memory store.",
	}, func() float64 { return float64(size()) })
}

// trackInFlight publica as vagas ocupadas do limite de concorrência.
func (m *Metrics) trackInFlight(inUse func() int) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "admission",
		Name:      "concurrency_in_flight",
		Help:      "Requests currently holding an upstream slot.",
	}, func() float64 { return float64(inUse()) })
}

func (m *Metrics) ObserveSweep(removed int) {
	if m == nil {
		return
	}
	m.sweepRemoved.Add(float64(removed))
}

func (m *Metrics) ObserveSweepError(error) {
	if m == nil {
		return
	}
	m.sweepErrors.Inc()
}

func (m *Metrics) ObserveEviction() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *Metrics) observeDecision(route, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(route, outcome).Inc()
}

func (m *Metrics) observeStoreError() {
	if m == nil {
		return
	}
	m.storeErrors.Inc()
}

func (m *Metrics) observeStatsError() {
	if m == nil {
		return
	}
	m.statsErrors.Inc()
}

func (m *Metrics) observeConcurrencyRejected() {
	if m == nil {
		return
	}
	m.concurrencyRejected.Inc()
}
