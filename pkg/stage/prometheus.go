package stage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jzx17/gometer/pkg/stats"
)

// PrometheusPublisher exports task statistics as gauges labelled by task
type PrometheusPublisher struct {
	Count   *prometheus.GaugeVec
	Total   *prometheus.GaugeVec
	Min     *prometheus.GaugeVec
	Max     *prometheus.GaugeVec
	Average *prometheus.GaugeVec
}

var _ Publisher = (*PrometheusPublisher)(nil)

// NewPrometheusPublisher registers the task gauges with reg under namespace
func NewPrometheusPublisher(reg prometheus.Registerer, namespace string) *PrometheusPublisher {
	factory := promauto.With(reg)
	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "task",
				Name:      name,
				Help:      help,
			},
			[]string{"task"},
		)
	}

	return &PrometheusPublisher{
		Count:   gauge("timers", "Timers stopped for the task"),
		Total:   gauge("elapsed_total_seconds", "Sum of elapsed time for the task"),
		Min:     gauge("elapsed_min_seconds", "Shortest elapsed time for the task"),
		Max:     gauge("elapsed_max_seconds", "Longest elapsed time for the task"),
		Average: gauge("elapsed_avg_seconds", "Mean elapsed time for the task"),
	}
}

// Publish sets the gauges of one task
func (p *PrometheusPublisher) Publish(s stats.Snapshot) {
	p.Count.WithLabelValues(s.Task).Set(float64(s.Count))
	p.Total.WithLabelValues(s.Task).Set(s.Total.Seconds())
	p.Min.WithLabelValues(s.Task).Set(s.Min.Seconds())
	p.Max.WithLabelValues(s.Task).Set(s.Max.Seconds())
	p.Average.WithLabelValues(s.Task).Set(s.Average().Seconds())
}

// Reset removes every task series
func (p *PrometheusPublisher) Reset(final []stats.Snapshot) {
	for _, vec := range []*prometheus.GaugeVec{p.Count, p.Total, p.Min, p.Max, p.Average} {
		vec.Reset()
	}
}
