package storage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tsawler/go-train/training"
)

// PrometheusExporter publishes the latest epoch's results as gauges so a
// long run can be scraped while it trains
type PrometheusExporter struct {
	epoch        prometheus.Gauge
	learningRate prometheus.Gauge
	duration     prometheus.Gauge
	epochs       prometheus.Counter
	metrics      *prometheus.GaugeVec
}

// NewPrometheusExporter registers the training collectors with registry.
// Every series carries a constant "model" label.
func NewPrometheusExporter(registry prometheus.Registerer, model string) (*PrometheusExporter, error) {
	labels := prometheus.Labels{"model": model}
	e := &PrometheusExporter{
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "train_epoch",
			Help:        "Last finished epoch",
			ConstLabels: labels,
		}),
		learningRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "train_learning_rate",
			Help:        "Learning rate used by the last finished epoch",
			ConstLabels: labels,
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "train_epoch_duration_seconds",
			Help:        "Wall time of the last finished epoch",
			ConstLabels: labels,
		}),
		epochs: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "train_epochs_total",
			Help:        "Total number of epochs finished by this process",
			ConstLabels: labels,
		}),
		metrics: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "train_metric",
				Help:        "Metric values of the last finished epoch",
				ConstLabels: labels,
			},
			[]string{"name"},
		),
	}

	for _, c := range []prometheus.Collector{e.epoch, e.learningRate, e.duration, e.epochs, e.metrics} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *PrometheusExporter) Name() string { return "prometheus" }

func (e *PrometheusExporter) OnEpochEnd(info *training.EpochInfo) error {
	r := info.Result
	if r == nil {
		return nil
	}
	e.epoch.Set(float64(r.Epoch))
	e.learningRate.Set(r.LearningRate)
	e.duration.Set(r.Duration.Seconds())
	e.epochs.Inc()
	for name, v := range r.Metrics {
		e.metrics.With(prometheus.Labels{"name": name}).Set(v)
	}
	return nil
}
