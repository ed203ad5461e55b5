package optimizer

import (
	"fmt"
	"math"

	"github.com/tsawler/go-train/nn"
)

// AdaDeltaConfig holds configuration for AdaDelta optimizer
type AdaDeltaConfig struct {
	LearningRate float64 // Scale applied to the computed update, 1.0 in the original paper
	Rho          float64 // Decay rate for moving averages
	Epsilon      float64
	WeightDecay  float64
}

// DefaultAdaDeltaConfig returns default AdaDelta optimizer configuration
func DefaultAdaDeltaConfig() AdaDeltaConfig {
	return AdaDeltaConfig{
		LearningRate: 1.0,
		Rho:          0.95,
		Epsilon:      1e-6,
		WeightDecay:  0.0,
	}
}

// AdaDelta adapts step sizes from running averages of squared gradients
// and squared updates
type AdaDelta struct {
	config           AdaDeltaConfig
	params           []*nn.Parameter
	squaredGradAvg   [][]float64 // E[g^2]
	squaredUpdateAvg [][]float64 // E[dx^2]
	stepCount        uint64
}

// NewAdaDelta creates a new AdaDelta optimizer over params
func NewAdaDelta(config AdaDeltaConfig, params []*nn.Parameter) (*AdaDelta, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.LearningRate < 0 {
		return nil, fmt.Errorf("learning rate cannot be negative: %f", config.LearningRate)
	}
	if config.Rho < 0 || config.Rho >= 1 {
		return nil, fmt.Errorf("rho must be in [0, 1): %f", config.Rho)
	}
	if config.Epsilon <= 0 {
		return nil, fmt.Errorf("epsilon must be positive: %f", config.Epsilon)
	}
	return &AdaDelta{
		config:           config,
		params:           params,
		squaredGradAvg:   newBuffers(params),
		squaredUpdateAvg: newBuffers(params),
	}, nil
}

// NewAdaDeltaFactory returns a Factory producing AdaDelta optimizers with config
func NewAdaDeltaFactory(config AdaDeltaConfig) Factory {
	return func(params []*nn.Parameter) (Optimizer, error) {
		return NewAdaDelta(config, params)
	}
}

func (a *AdaDelta) Step() error {
	a.stepCount++
	rho, eps := a.config.Rho, a.config.Epsilon
	for i, p := range a.params {
		w, g := p.Value.Data, p.Grad.Data
		if len(w) != len(g) {
			return fmt.Errorf("parameter %s: gradient size %d does not match weight size %d", p.Name, len(g), len(w))
		}
		eg, edx := a.squaredGradAvg[i], a.squaredUpdateAvg[i]
		for j := range w {
			grad := g[j] + a.config.WeightDecay*w[j]
			eg[j] = rho*eg[j] + (1-rho)*grad*grad
			dx := math.Sqrt(edx[j]+eps) / math.Sqrt(eg[j]+eps) * grad
			edx[j] = rho*edx[j] + (1-rho)*dx*dx
			w[j] -= a.config.LearningRate * dx
		}
	}
	return nil
}

func (a *AdaDelta) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

func (a *AdaDelta) LearningRate() float64      { return a.config.LearningRate }
func (a *AdaDelta) SetLearningRate(lr float64) { a.config.LearningRate = lr }
func (a *AdaDelta) StepCount() uint64          { return a.stepCount }

// StateDict extracts AdaDelta state for checkpointing
func (a *AdaDelta) StateDict() (*State, error) {
	slots := extractSlots("squared_grad_avg", a.squaredGradAvg, a.params)
	slots = append(slots, extractSlots("squared_update_avg", a.squaredUpdateAvg, a.params)...)
	return &State{
		Type: "AdaDelta",
		Parameters: map[string]float64{
			"learning_rate": a.config.LearningRate,
			"rho":           a.config.Rho,
			"epsilon":       a.config.Epsilon,
			"weight_decay":  a.config.WeightDecay,
		},
		Step:  a.stepCount,
		Slots: slots,
	}, nil
}

// LoadStateDict restores AdaDelta state from a checkpoint
func (a *AdaDelta) LoadStateDict(state *State) error {
	if err := validateStateType("AdaDelta", state); err != nil {
		return err
	}
	if err := restoreSlots("squared_grad_avg", state.Slots, a.squaredGradAvg); err != nil {
		return fmt.Errorf("failed to restore AdaDelta gradient averages: %w", err)
	}
	if err := restoreSlots("squared_update_avg", state.Slots, a.squaredUpdateAvg); err != nil {
		return fmt.Errorf("failed to restore AdaDelta update averages: %w", err)
	}
	a.config.LearningRate = extractParam(state.Parameters, "learning_rate", a.config.LearningRate)
	a.config.Rho = extractParam(state.Parameters, "rho", a.config.Rho)
	a.config.Epsilon = extractParam(state.Parameters, "epsilon", a.config.Epsilon)
	a.config.WeightDecay = extractParam(state.Parameters, "weight_decay", a.config.WeightDecay)
	a.stepCount = state.Step
	return nil
}
