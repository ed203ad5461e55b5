package optimizer

import (
	"fmt"
	"math"

	"github.com/tsawler/go-train/nn"
)

// AdamConfig holds configuration for Adam optimizer
type AdamConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	WeightDecay  float64
}

// DefaultAdamConfig returns default Adam optimizer configuration
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// Adam implements the Adam optimizer with bias correction
type Adam struct {
	config    AdamConfig
	params    []*nn.Parameter
	m         [][]float64 // first moment
	v         [][]float64 // second moment
	stepCount uint64
}

// NewAdam creates a new Adam optimizer over params
func NewAdam(config AdamConfig, params []*nn.Parameter) (*Adam, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.LearningRate < 0 {
		return nil, fmt.Errorf("learning rate cannot be negative: %f", config.LearningRate)
	}
	if config.Beta1 < 0 || config.Beta1 >= 1 {
		return nil, fmt.Errorf("beta1 must be in [0, 1): %f", config.Beta1)
	}
	if config.Beta2 < 0 || config.Beta2 >= 1 {
		return nil, fmt.Errorf("beta2 must be in [0, 1): %f", config.Beta2)
	}
	if config.Epsilon <= 0 {
		return nil, fmt.Errorf("epsilon must be positive: %f", config.Epsilon)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay cannot be negative: %f", config.WeightDecay)
	}

	return &Adam{
		config: config,
		params: params,
		m:      newBuffers(params),
		v:      newBuffers(params),
	}, nil
}

// NewAdamFactory returns a Factory producing Adam optimizers with config
func NewAdamFactory(config AdamConfig) Factory {
	return func(params []*nn.Parameter) (Optimizer, error) {
		return NewAdam(config, params)
	}
}

// Step performs a single Adam update
func (a *Adam) Step() error {
	a.stepCount++
	t := float64(a.stepCount)
	b1, b2 := a.config.Beta1, a.config.Beta2
	biasCorrection1 := 1 - math.Pow(b1, t)
	biasCorrection2 := 1 - math.Pow(b2, t)
	stepSize := a.config.LearningRate / biasCorrection1

	for i, p := range a.params {
		w := p.Value.Data
		g := p.Grad.Data
		if len(w) != len(g) {
			return fmt.Errorf("parameter %s: gradient size %d does not match weight size %d", p.Name, len(g), len(w))
		}
		m, v := a.m[i], a.v[i]
		for j := range w {
			grad := g[j] + a.config.WeightDecay*w[j]
			m[j] = b1*m[j] + (1-b1)*grad
			v[j] = b2*v[j] + (1-b2)*grad*grad
			denom := math.Sqrt(v[j]/biasCorrection2) + a.config.Epsilon
			w[j] -= stepSize * m[j] / denom
		}
	}
	return nil
}

func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

func (a *Adam) LearningRate() float64      { return a.config.LearningRate }
func (a *Adam) SetLearningRate(lr float64) { a.config.LearningRate = lr }
func (a *Adam) StepCount() uint64          { return a.stepCount }

// StateDict extracts Adam state for checkpointing
func (a *Adam) StateDict() (*State, error) {
	slots := extractSlots("m", a.m, a.params)
	slots = append(slots, extractSlots("v", a.v, a.params)...)
	return &State{
		Type: "Adam",
		Parameters: map[string]float64{
			"learning_rate": a.config.LearningRate,
			"beta1":         a.config.Beta1,
			"beta2":         a.config.Beta2,
			"epsilon":       a.config.Epsilon,
			"weight_decay":  a.config.WeightDecay,
		},
		Step:  a.stepCount,
		Slots: slots,
	}, nil
}

// LoadStateDict restores Adam state from a checkpoint
func (a *Adam) LoadStateDict(state *State) error {
	if err := validateStateType("Adam", state); err != nil {
		return err
	}
	if err := restoreSlots("m", state.Slots, a.m); err != nil {
		return fmt.Errorf("failed to restore Adam first moment: %w", err)
	}
	if err := restoreSlots("v", state.Slots, a.v); err != nil {
		return fmt.Errorf("failed to restore Adam second moment: %w", err)
	}

	a.config.LearningRate = extractParam(state.Parameters, "learning_rate", a.config.LearningRate)
	a.config.Beta1 = extractParam(state.Parameters, "beta1", a.config.Beta1)
	a.config.Beta2 = extractParam(state.Parameters, "beta2", a.config.Beta2)
	a.config.Epsilon = extractParam(state.Parameters, "epsilon", a.config.Epsilon)
	a.config.WeightDecay = extractParam(state.Parameters, "weight_decay", a.config.WeightDecay)
	a.stepCount = state.Step
	return nil
}
