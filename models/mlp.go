// Package models holds ready-made networks that satisfy training.Model.
package models

import (
	"fmt"

	"github.com/tsawler/go-train/nn"
	"github.com/tsawler/go-train/training"
)

// MLPClassifier is a fully connected classifier with ReLU hidden layers
// trained with softmax cross-entropy
type MLPClassifier struct {
	*nn.Sequential
	name    string
	inputs  int
	classes int
	metrics []training.Metric
}

// NewMLPClassifier builds inputs -> hidden... -> classes. An empty hidden
// slice gives a plain linear classifier.
func NewMLPClassifier(inputs int, hidden []int, classes int) (*MLPClassifier, error) {
	if inputs <= 0 {
		return nil, fmt.Errorf("input width must be positive, got %d", inputs)
	}
	if classes < 2 {
		return nil, fmt.Errorf("classifier needs at least 2 classes, got %d", classes)
	}

	seq := nn.NewSequential()
	width := inputs
	for i, h := range hidden {
		fc, err := nn.NewLinear(fmt.Sprintf("fc%d", i+1), width, h, true)
		if err != nil {
			return nil, fmt.Errorf("failed to create hidden layer %d: %w", i+1, err)
		}
		seq.Add(fc)
		seq.Add(nn.NewReLU(fmt.Sprintf("relu%d", i+1)))
		width = h
	}
	out, err := nn.NewLinear("output", width, classes, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create output layer: %w", err)
	}
	seq.Add(out)

	return &MLPClassifier{
		Sequential: seq,
		name:       "MLPClassifier",
		inputs:     inputs,
		classes:    classes,
		metrics: []training.Metric{
			training.NewLossMetric(),
			training.NewAccuracy(),
			training.NewMacroF1(classes),
		},
	}, nil
}

func (m *MLPClassifier) Name() string { return m.name }

func (m *MLPClassifier) Loss() nn.Loss { return nn.NewSoftmaxCrossEntropy() }

func (m *MLPClassifier) Metrics() []training.Metric { return m.metrics }

// Inputs returns the expected feature width
func (m *MLPClassifier) Inputs() int { return m.inputs }

// Classes returns the number of output classes
func (m *MLPClassifier) Classes() int { return m.classes }

// Predict returns the argmax class of every row in x
func (m *MLPClassifier) Predict(x *nn.Matrix) ([]int, error) {
	wasTraining := m.IsTraining()
	m.Eval()
	defer func() {
		if wasTraining {
			m.Train()
		}
	}()

	out, err := m.Forward(x)
	if err != nil {
		return nil, err
	}
	preds := make([]int, out.Rows)
	for i := range preds {
		preds[i] = out.ArgMaxRow(i)
	}
	return preds, nil
}

var _ training.Model = (*MLPClassifier)(nil)
