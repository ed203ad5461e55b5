package optimizer

import (
	"fmt"
	"math"

	"github.com/tsawler/go-train/nn"
)

// AdaGradConfig holds configuration for AdaGrad optimizer
type AdaGradConfig struct {
	LearningRate float64
	Epsilon      float64 // Small constant for numerical stability
	WeightDecay  float64 // L2 regularization strength
}

// DefaultAdaGradConfig returns default AdaGrad optimizer configuration
func DefaultAdaGradConfig() AdaGradConfig {
	return AdaGradConfig{
		LearningRate: 0.01,
		Epsilon:      1e-10,
		WeightDecay:  0.0,
	}
}

// AdaGrad scales each coordinate by the inverse root of its accumulated
// squared gradients
type AdaGrad struct {
	config    AdaGradConfig
	params    []*nn.Parameter
	sumSq     [][]float64
	stepCount uint64
}

// NewAdaGrad creates a new AdaGrad optimizer over params
func NewAdaGrad(config AdaGradConfig, params []*nn.Parameter) (*AdaGrad, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.LearningRate < 0 {
		return nil, fmt.Errorf("learning rate cannot be negative: %f", config.LearningRate)
	}
	if config.Epsilon <= 0 {
		return nil, fmt.Errorf("epsilon must be positive: %f", config.Epsilon)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay cannot be negative: %f", config.WeightDecay)
	}
	return &AdaGrad{config: config, params: params, sumSq: newBuffers(params)}, nil
}

// NewAdaGradFactory returns a Factory producing AdaGrad optimizers with config
func NewAdaGradFactory(config AdaGradConfig) Factory {
	return func(params []*nn.Parameter) (Optimizer, error) {
		return NewAdaGrad(config, params)
	}
}

func (a *AdaGrad) Step() error {
	a.stepCount++
	for i, p := range a.params {
		w, g := p.Value.Data, p.Grad.Data
		if len(w) != len(g) {
			return fmt.Errorf("parameter %s: gradient size %d does not match weight size %d", p.Name, len(g), len(w))
		}
		acc := a.sumSq[i]
		for j := range w {
			grad := g[j] + a.config.WeightDecay*w[j]
			acc[j] += grad * grad
			w[j] -= a.config.LearningRate * grad / (math.Sqrt(acc[j]) + a.config.Epsilon)
		}
	}
	return nil
}

func (a *AdaGrad) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

func (a *AdaGrad) LearningRate() float64      { return a.config.LearningRate }
func (a *AdaGrad) SetLearningRate(lr float64) { a.config.LearningRate = lr }
func (a *AdaGrad) StepCount() uint64          { return a.stepCount }

// StateDict extracts AdaGrad state for checkpointing
func (a *AdaGrad) StateDict() (*State, error) {
	return &State{
		Type: "AdaGrad",
		Parameters: map[string]float64{
			"learning_rate": a.config.LearningRate,
			"epsilon":       a.config.Epsilon,
			"weight_decay":  a.config.WeightDecay,
		},
		Step:  a.stepCount,
		Slots: extractSlots("sum_sq", a.sumSq, a.params),
	}, nil
}

// LoadStateDict restores AdaGrad state from a checkpoint
func (a *AdaGrad) LoadStateDict(state *State) error {
	if err := validateStateType("AdaGrad", state); err != nil {
		return err
	}
	if err := restoreSlots("sum_sq", state.Slots, a.sumSq); err != nil {
		return fmt.Errorf("failed to restore AdaGrad accumulators: %w", err)
	}
	a.config.LearningRate = extractParam(state.Parameters, "learning_rate", a.config.LearningRate)
	a.config.Epsilon = extractParam(state.Parameters, "epsilon", a.config.Epsilon)
	a.config.WeightDecay = extractParam(state.Parameters, "weight_decay", a.config.WeightDecay)
	a.stepCount = state.Step
	return nil
}
