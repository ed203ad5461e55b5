package data

import (
	"fmt"
)

// Source bundles the loaders a training run iterates over
type Source interface {
	Train() *DataLoader
	// Validation returns nil when the source has no validation split
	Validation() *DataLoader
}

// SupervisedSource is a Source with a training and an optional validation loader
type SupervisedSource struct {
	train      *DataLoader
	validation *DataLoader
}

// NewSupervisedSource creates a Source; validation may be nil
func NewSupervisedSource(train, validation *DataLoader) (*SupervisedSource, error) {
	if train == nil {
		return nil, fmt.Errorf("training loader cannot be nil")
	}
	return &SupervisedSource{train: train, validation: validation}, nil
}

func (s *SupervisedSource) Train() *DataLoader      { return s.train }
func (s *SupervisedSource) Validation() *DataLoader { return s.validation }

// SourceConfig describes how to split and batch a dataset
type SourceConfig struct {
	BatchSize       int
	ValidationSplit float64
	Shuffle         bool
	Seed            int64
}

// DefaultSourceConfig returns a sensible default configuration
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		BatchSize:       32,
		ValidationSplit: 0.2,
		Shuffle:         true,
		Seed:            1,
	}
}

// NewSourceFromDataset splits dataset and builds the loaders
func NewSourceFromDataset(dataset Dataset, config SourceConfig) (*SupervisedSource, error) {
	trainSet, valSet, err := SplitTrainValidation(dataset, config.ValidationSplit, config.Seed)
	if err != nil {
		return nil, err
	}

	train, err := NewDataLoader(trainSet, config.BatchSize, config.Shuffle, config.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create training loader: %w", err)
	}

	var validation *DataLoader
	if valSet.Len() > 0 {
		validation, err = NewDataLoader(valSet, config.BatchSize, false, config.Seed)
		if err != nil {
			return nil, fmt.Errorf("failed to create validation loader: %w", err)
		}
	}

	return NewSupervisedSource(train, validation)
}
