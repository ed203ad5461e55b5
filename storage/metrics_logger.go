package storage

import (
	"log/slog"

	"github.com/tsawler/go-train/training"
)

// MetricsLogger writes one structured log record per finished epoch
type MetricsLogger struct {
	logger *slog.Logger
}

func NewMetricsLogger(logger *slog.Logger) *MetricsLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsLogger{logger: logger}
}

func (m *MetricsLogger) Name() string { return "metrics_logger" }

func (m *MetricsLogger) OnEpochEnd(info *training.EpochInfo) error {
	r := info.Result
	if r == nil {
		return nil
	}
	attrs := make([]any, 0, len(r.Metrics)+3)
	attrs = append(attrs,
		slog.Int("epoch", r.Epoch),
		slog.Float64("lr", r.LearningRate),
		slog.Duration("duration", r.Duration),
	)
	for _, name := range r.Names() {
		attrs = append(attrs, slog.Float64(name, r.Metrics[name]))
	}
	m.logger.Info("Epoch finished", attrs...)
	return nil
}
