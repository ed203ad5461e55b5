package training

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gookit/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tsawler/go-train/data"
	"github.com/tsawler/go-train/device"
	"github.com/tsawler/go-train/nn"
	"github.com/tsawler/go-train/optimizer"
)

// Model is a trainable network that knows its own loss and metrics
type Model interface {
	nn.Module
	Name() string
	Loss() nn.Loss
	Metrics() []Metric
}

// Learner binds a model to the device it trains on and runs epochs
type Learner struct {
	device device.Device
	model  Model
}

// NewLearner creates a learner for model on dev
func NewLearner(dev device.Device, model Model) (*Learner, error) {
	if model == nil {
		return nil, errors.New("learner model cannot be nil")
	}
	return &Learner{device: dev, model: model}, nil
}

// Model returns the bound model
func (l *Learner) Model() Model {
	return l.model
}

// Device returns the device the model trains on
func (l *Learner) Device() device.Device {
	return l.device
}

// Metrics returns the model's metric set
func (l *Learner) Metrics() []Metric {
	return l.model.Metrics()
}

// NumberOfParameters counts every trainable scalar in the model
func (l *Learner) NumberOfParameters() int64 {
	return nn.CountParameters(l.model.Parameters())
}

// Summary prints the device, the model structure and its parameter count
func (l *Learner) Summary(w io.Writer) {
	p := message.NewPrinter(language.English)
	rule := color.FgCyan.Render(strings.Repeat("=", 64))

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Device: %s\n", l.device.Describe())
	fmt.Fprintln(w, nn.Describe(l.model.Name(), l.model))
	p.Fprintf(w, "Number of model parameters: %d\n", l.NumberOfParameters())
	fmt.Fprintln(w, rule)
}

// RunEpoch trains on source's training loader, evaluates on its validation
// loader if there is one, and returns the epoch's metrics
func (l *Learner) RunEpoch(epoch int, metrics []Metric, source data.Source, opt optimizer.Optimizer, callbacks *CallbackList) (*EpochResult, error) {
	if source == nil || source.Train() == nil {
		return nil, errors.New("data source has no training loader")
	}
	if callbacks == nil {
		callbacks = NewCallbackList(nil, nil, nil)
	}
	start := time.Now()

	batches := source.Train().Len()
	if val := source.Validation(); val != nil {
		batches += val.Len()
	}
	result := NewEpochResult(epoch, opt.LearningRate())
	info := &EpochInfo{Epoch: epoch, BatchesPerEpoch: batches, Result: result, Optimizer: opt}

	if err := callbacks.OnEpochBegin(info); err != nil {
		return nil, err
	}
	result.LearningRate = opt.LearningRate()

	if err := l.runPhase(TrainPhase, epoch, metrics, source.Train(), opt, callbacks); err != nil {
		return nil, err
	}
	collect(result, TrainPrefix, metrics)

	if val := source.Validation(); val != nil {
		if err := l.runPhase(ValidationPhase, epoch, metrics, val, opt, callbacks); err != nil {
			return nil, err
		}
		collect(result, ValidationPrefix, metrics)
	}

	result.Duration = time.Since(start)
	if err := callbacks.OnEpochEnd(info); err != nil {
		return nil, err
	}
	return result, nil
}

func collect(result *EpochResult, prefix string, metrics []Metric) {
	for _, m := range metrics {
		result.Set(prefix+m.Name(), m.Value())
	}
}

func (l *Learner) runPhase(phase Phase, epoch int, metrics []Metric, loader *data.DataLoader, opt optimizer.Optimizer, callbacks *CallbackList) error {
	if phase == TrainPhase {
		l.model.Train()
	} else {
		l.model.Eval()
	}
	for _, m := range metrics {
		m.Reset()
	}
	loss := l.model.Loss()

	loader.Reset()
	for i := 0; ; i++ {
		batch, err := loader.Next()
		if err != nil {
			return fmt.Errorf("failed to load %s batch %d: %w", phase, i, err)
		}
		if batch == nil {
			return nil
		}

		info := &BatchInfo{
			Epoch:           epoch,
			Phase:           phase,
			Batch:           i,
			BatchesPerPhase: loader.Len(),
			Size:            batch.Size(),
			Optimizer:       opt,
		}
		if err := callbacks.OnBatchBegin(info); err != nil {
			return err
		}

		if phase == TrainPhase {
			opt.ZeroGrad()
		}
		output, err := l.model.Forward(batch.X)
		if err != nil {
			return fmt.Errorf("forward pass failed: %w", err)
		}
		value, grad, err := loss.Forward(output, batch.Labels)
		if err != nil {
			return fmt.Errorf("loss computation failed: %w", err)
		}
		if phase == TrainPhase {
			if _, err := l.model.Backward(grad); err != nil {
				return fmt.Errorf("backward pass failed: %w", err)
			}
			if err := opt.Step(); err != nil {
				return fmt.Errorf("optimizer step failed: %w", err)
			}
		}
		for _, m := range metrics {
			if err := m.Update(output, batch.Labels, value); err != nil {
				return err
			}
		}

		info.Loss = value
		if err := callbacks.OnBatchEnd(info); err != nil {
			return err
		}
	}
}
