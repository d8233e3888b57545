// Package metrics exposes Prometheus counters for the capture and eviction
// workers.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pulsecam"

// Result labels shared by the counters.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Store labels for eviction counters.
const (
	StoreLocal  = "local"
	StoreRemote = "remote"
)

// Metrics records worker outcomes.
type Metrics interface {
	IncCapture(result string)
	IncPublish(result string)
	IncEviction(store, result string)
	IncRetryWait(operation string)
	ObserveCycle(worker string, seconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncCapture(string)            {}
func (Noop) IncPublish(string)            {}
func (Noop) IncEviction(string, string)   {}
func (Noop) IncRetryWait(string)          {}
func (Noop) ObserveCycle(string, float64) {}

// OrNoop returns m, or Noop when m is nil.
func OrNoop(m Metrics) Metrics {
	if m == nil {
		return Noop{}
	}
	return m
}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	captures   *prometheus.CounterVec
	publishes  *prometheus.CounterVec
	evictions  *prometheus.CounterVec
	retryWaits *prometheus.CounterVec
	cycles     *prometheus.HistogramVec
	once       sync.Once
}

// NewProm constructs the collectors and registers them with reg. A nil reg
// uses the default registerer.
func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Capture attempts by result",
		}, []string{"result"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Payload publishes by result",
		}, []string{"result"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Artifacts evicted by store and result",
		}, []string{"store", "result"}),
		retryWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_waits_total",
			Help:      "Retry waits entered after a failed operation",
		}, []string{"operation"}),
		cycles: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_seconds",
			Help:      "Worker cycle duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"worker"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p.once.Do(func() {
		reg.MustRegister(p.captures, p.publishes, p.evictions, p.retryWaits, p.cycles)
	})
	return p
}

func (p *Prom) IncCapture(result string) {
	p.captures.WithLabelValues(result).Inc()
}

func (p *Prom) IncPublish(result string) {
	p.publishes.WithLabelValues(result).Inc()
}

func (p *Prom) IncEviction(store, result string) {
	p.evictions.WithLabelValues(store, result).Inc()
}

func (p *Prom) IncRetryWait(operation string) {
	p.retryWaits.WithLabelValues(operation).Inc()
}

func (p *Prom) ObserveCycle(worker string, seconds float64) {
	p.cycles.WithLabelValues(worker).Observe(seconds)
}
