package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's own Prometheus metrics.
// A nil *Metrics records nothing.
type Metrics struct {
	Submitted        *prometheus.CounterVec
	Dropped          *prometheus.CounterVec
	Dispatched       *prometheus.CounterVec
	Discarded        *prometheus.CounterVec
	StageFailures    *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	WorkerRunning    *prometheus.GaugeVec
	DispatchDuration *prometheus.HistogramVec
}

// NewMetrics registers pipeline metrics with reg under namespace
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Submitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_submitted_total",
				Help:      "Measurements accepted into the pipeline queue",
			},
			[]string{"pipeline"},
		),
		Dropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_dropped_total",
				Help:      "Measurements rejected because the chain was empty or the measurement unfinished",
			},
			[]string{"pipeline"},
		),
		Dispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_dispatched_total",
				Help:      "Measurements run through the stage chain",
			},
			[]string{"pipeline"},
		),
		Discarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_discarded_total",
				Help:      "Queued measurements thrown away by a discarding shutdown",
			},
			[]string{"pipeline"},
		),
		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_stage_failures_total",
				Help:      "Stage errors and panics while dispatching",
			},
			[]string{"pipeline", "stage"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pipeline_queue_depth",
				Help:      "Messages waiting for the worker",
			},
			[]string{"pipeline"},
		),
		WorkerRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pipeline_worker_running",
				Help:      "1 while the pipeline worker is running",
			},
			[]string{"pipeline"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_dispatch_duration_seconds",
				Help:      "Time spent running the whole chain for one measurement",
				Buckets:   []float64{.00001, .0001, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"pipeline"},
		),
	}
}

func (m *Metrics) submitted(pipeline string, depth int) {
	if m == nil {
		return
	}
	m.Submitted.WithLabelValues(pipeline).Inc()
	m.QueueDepth.WithLabelValues(pipeline).Set(float64(depth))
}

func (m *Metrics) dropped(pipeline string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(pipeline).Inc()
}

func (m *Metrics) dispatched(pipeline string, depth int, d time.Duration) {
	if m == nil {
		return
	}
	m.Dispatched.WithLabelValues(pipeline).Inc()
	m.QueueDepth.WithLabelValues(pipeline).Set(float64(depth))
	m.DispatchDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

func (m *Metrics) discarded(pipeline string, n int) {
	if m == nil {
		return
	}
	m.Discarded.WithLabelValues(pipeline).Add(float64(n))
	m.QueueDepth.WithLabelValues(pipeline).Set(0)
}

func (m *Metrics) stageFailed(pipeline, stage string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(pipeline, stage).Inc()
}

func (m *Metrics) workerRunning(pipeline string, running bool) {
	if m == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	m.WorkerRunning.WithLabelValues(pipeline).Set(v)
}
