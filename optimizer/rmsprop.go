package optimizer

import (
	"fmt"
	"math"

	"github.com/tsawler/go-train/nn"
)

// RMSPropConfig holds configuration for RMSProp optimizer
type RMSPropConfig struct {
	LearningRate float64
	Alpha        float64 // Smoothing constant
	Epsilon      float64
	WeightDecay  float64
	Momentum     float64
}

// DefaultRMSPropConfig returns default RMSProp optimizer configuration
func DefaultRMSPropConfig() RMSPropConfig {
	return RMSPropConfig{
		LearningRate: 0.01,
		Alpha:        0.99,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
		Momentum:     0.0,
	}
}

// RMSProp keeps a running average of squared gradients per weight
type RMSProp struct {
	config          RMSPropConfig
	params          []*nn.Parameter
	squaredGradAvg  [][]float64
	momentumBuffers [][]float64 // only if momentum > 0
	stepCount       uint64
}

// NewRMSProp creates a new RMSProp optimizer over params
func NewRMSProp(config RMSPropConfig, params []*nn.Parameter) (*RMSProp, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.LearningRate < 0 {
		return nil, fmt.Errorf("learning rate cannot be negative: %f", config.LearningRate)
	}
	if config.Alpha < 0 || config.Alpha >= 1 {
		return nil, fmt.Errorf("alpha must be in [0, 1): %f", config.Alpha)
	}
	if config.Epsilon <= 0 {
		return nil, fmt.Errorf("epsilon must be positive: %f", config.Epsilon)
	}
	if config.Momentum < 0 {
		return nil, fmt.Errorf("momentum cannot be negative: %f", config.Momentum)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay cannot be negative: %f", config.WeightDecay)
	}

	r := &RMSProp{
		config:         config,
		params:         params,
		squaredGradAvg: newBuffers(params),
	}
	if config.Momentum > 0 {
		r.momentumBuffers = newBuffers(params)
	}
	return r, nil
}

// NewRMSPropFactory returns a Factory producing RMSProp optimizers with config
func NewRMSPropFactory(config RMSPropConfig) Factory {
	return func(params []*nn.Parameter) (Optimizer, error) {
		return NewRMSProp(config, params)
	}
}

// Step performs a single RMSProp update
func (r *RMSProp) Step() error {
	alpha := r.config.Alpha
	for i, p := range r.params {
		w := p.Value.Data
		g := p.Grad.Data
		if len(w) != len(g) {
			return fmt.Errorf("parameter %s: gradient size %d does not match weight size %d", p.Name, len(g), len(w))
		}
		sq := r.squaredGradAvg[i]
		for j := range w {
			grad := g[j] + r.config.WeightDecay*w[j]
			sq[j] = alpha*sq[j] + (1-alpha)*grad*grad
			update := grad / (math.Sqrt(sq[j]) + r.config.Epsilon)
			if r.momentumBuffers != nil {
				buf := r.momentumBuffers[i]
				buf[j] = r.config.Momentum*buf[j] + update
				update = buf[j]
			}
			w[j] -= r.config.LearningRate * update
		}
	}
	r.stepCount++
	return nil
}

func (r *RMSProp) ZeroGrad() {
	for _, p := range r.params {
		p.ZeroGrad()
	}
}

func (r *RMSProp) LearningRate() float64      { return r.config.LearningRate }
func (r *RMSProp) SetLearningRate(lr float64) { r.config.LearningRate = lr }
func (r *RMSProp) StepCount() uint64          { return r.stepCount }

// StateDict extracts RMSProp state for checkpointing
func (r *RMSProp) StateDict() (*State, error) {
	slots := extractSlots("squared_grad_avg", r.squaredGradAvg, r.params)
	if r.momentumBuffers != nil {
		slots = append(slots, extractSlots("momentum", r.momentumBuffers, r.params)...)
	}
	return &State{
		Type: "RMSProp",
		Parameters: map[string]float64{
			"learning_rate": r.config.LearningRate,
			"alpha":         r.config.Alpha,
			"epsilon":       r.config.Epsilon,
			"weight_decay":  r.config.WeightDecay,
			"momentum":      r.config.Momentum,
		},
		Step:  r.stepCount,
		Slots: slots,
	}, nil
}

// LoadStateDict restores RMSProp state from a checkpoint
func (r *RMSProp) LoadStateDict(state *State) error {
	if err := validateStateType("RMSProp", state); err != nil {
		return err
	}
	if err := restoreSlots("squared_grad_avg", state.Slots, r.squaredGradAvg); err != nil {
		return fmt.Errorf("failed to restore RMSProp squared gradient average: %w", err)
	}
	if r.momentumBuffers != nil {
		if err := restoreSlots("momentum", state.Slots, r.momentumBuffers); err != nil {
			return fmt.Errorf("failed to restore RMSProp momentum: %w", err)
		}
	}
	r.config.LearningRate = extractParam(state.Parameters, "learning_rate", r.config.LearningRate)
	r.stepCount = state.Step
	return nil
}
