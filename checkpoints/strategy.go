package checkpoints

import (
	"errors"
	"fmt"

	"github.com/tsawler/go-train/training"
)

// ErrMissingMetric is returned when the monitored metric is absent from an
// epoch result
var ErrMissingMetric = errors.New("checkpoint metric missing from epoch result")

// Hidden state keys written by ClassicStrategy
const (
	bestMetricValueKey = "checkpoint_strategy/current_best_metric_value"
	bestEpochKey       = "checkpoint_strategy/current_best_checkpoint_epoch"
)

// Config controls which checkpoints are kept
type Config struct {
	// Frequency keeps every Frequency-th checkpoint (epochs F, 2F, 3F...).
	// Zero keeps only the latest one.
	Frequency int
	// Metric is the epoch result entry that decides the best checkpoint
	Metric string
	// MetricMode is "min" or "max"
	MetricMode string
	// StoreBest keeps a separate copy of the best checkpoint so far
	StoreBest bool
}

// DefaultConfig returns the default checkpoint configuration
func DefaultConfig() Config {
	return Config{
		Frequency:  0,
		Metric:     training.ValidationPrefix + "loss",
		MetricMode: string(training.MinMode),
		StoreBest:  false,
	}
}

// Strategy decides which checkpoints storage keeps. Storage consults it
// after persisting every epoch.
type Strategy interface {
	ShouldDeletePreviousCheckpoint(epoch int) bool
	ShouldStoreBestCheckpoint(epoch int, result *training.EpochResult) (bool, error)
	CurrentBestCheckpointEpoch() int
	StoreBestCheckpointEpoch(epoch int)
	WriteState(state *training.HiddenState) error
	RestoreState(state *training.HiddenState) error
}

// ClassicStrategy keeps the latest checkpoint, every Frequency-th
// checkpoint, and optionally the best one by a single metric
type ClassicStrategy struct {
	config    Config
	mode      training.Mode
	bestValue float64
	hasBest   bool
	bestEpoch int
}

// NewClassicStrategy validates config and creates the strategy
func NewClassicStrategy(config Config) (*ClassicStrategy, error) {
	if config.Frequency < 0 {
		return nil, fmt.Errorf("checkpoint frequency cannot be negative: %d", config.Frequency)
	}
	if config.StoreBest && config.Metric == "" {
		return nil, fmt.Errorf("checkpoint metric is required when storing the best checkpoint")
	}
	mode, err := training.ParseMode(config.MetricMode)
	if err != nil {
		return nil, err
	}
	return &ClassicStrategy{config: config, mode: mode}, nil
}

// Config returns the strategy configuration
func (s *ClassicStrategy) Config() Config { return s.config }

// ShouldDeletePreviousCheckpoint reports whether the checkpoint before epoch
// can go. Epoch-1 is kept when it is a multiple of Frequency.
func (s *ClassicStrategy) ShouldDeletePreviousCheckpoint(epoch int) bool {
	if s.config.Frequency == 0 {
		return true
	}
	return (epoch-1)%s.config.Frequency != 0
}

// ShouldStoreBestCheckpoint reports whether epoch improves on the best
// metric so far, and records the new best value if so
func (s *ClassicStrategy) ShouldStoreBestCheckpoint(epoch int, result *training.EpochResult) (bool, error) {
	if !s.config.StoreBest {
		return false, nil
	}
	if result == nil {
		return false, fmt.Errorf("epoch %d: %w", epoch, ErrMissingMetric)
	}
	value, ok := result.Get(s.config.Metric)
	if !ok {
		return false, fmt.Errorf("epoch %d: %q: %w", epoch, s.config.Metric, ErrMissingMetric)
	}
	if s.hasBest && !s.mode.Better(value, s.bestValue) {
		return false, nil
	}
	s.bestValue = value
	s.hasBest = true
	return true, nil
}

// CurrentBestCheckpointEpoch returns the epoch of the stored best
// checkpoint, or 0 if none was stored
func (s *ClassicStrategy) CurrentBestCheckpointEpoch() int { return s.bestEpoch }

// StoreBestCheckpointEpoch records that the best checkpoint now belongs to epoch
func (s *ClassicStrategy) StoreBestCheckpointEpoch(epoch int) { s.bestEpoch = epoch }

// WriteState saves the best-tracking state. Nothing is written before the
// first best checkpoint.
func (s *ClassicStrategy) WriteState(state *training.HiddenState) error {
	if s.hasBest {
		state.Set(bestMetricValueKey, s.bestValue)
	}
	if s.bestEpoch > 0 {
		state.Set(bestEpochKey, s.bestEpoch)
	}
	return nil
}

// RestoreState replaces the best-tracking state. Missing keys leave the
// strategy untracked.
func (s *ClassicStrategy) RestoreState(state *training.HiddenState) error {
	s.hasBest = false
	s.bestValue = 0
	s.bestEpoch = 0
	if state == nil {
		return nil
	}
	if state.Has(bestMetricValueKey) {
		v, ok := state.Float(bestMetricValueKey)
		if !ok {
			return fmt.Errorf("invalid value for %s", bestMetricValueKey)
		}
		s.bestValue = v
		s.hasBest = true
	}
	if state.Has(bestEpochKey) {
		epoch, ok := state.Int(bestEpochKey)
		if !ok {
			return fmt.Errorf("invalid value for %s", bestEpochKey)
		}
		s.bestEpoch = epoch
	}
	return nil
}

var _ Strategy = (*ClassicStrategy)(nil)
