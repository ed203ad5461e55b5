package optimizer

import (
	"fmt"

	"github.com/tsawler/go-train/nn"
)

// SGDConfig holds configuration for SGD optimizer
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
	Nesterov     bool
}

// DefaultSGDConfig returns default SGD optimizer configuration
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.0,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

// SGD implements stochastic gradient descent with optional momentum
type SGD struct {
	config          SGDConfig
	params          []*nn.Parameter
	momentumBuffers [][]float64 // only if momentum > 0
	stepCount       uint64
}

// NewSGD creates a new SGD optimizer over params
func NewSGD(config SGDConfig, params []*nn.Parameter) (*SGD, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.LearningRate < 0 {
		return nil, fmt.Errorf("learning rate cannot be negative: %f", config.LearningRate)
	}
	if config.Momentum < 0 {
		return nil, fmt.Errorf("momentum cannot be negative: %f", config.Momentum)
	}
	if config.Momentum > 1.0 {
		return nil, fmt.Errorf("momentum cannot be greater than 1.0: %f", config.Momentum)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay cannot be negative: %f", config.WeightDecay)
	}
	if config.Nesterov && config.Momentum == 0 {
		return nil, fmt.Errorf("nesterov momentum requires a momentum > 0")
	}

	sgd := &SGD{
		config: config,
		params: params,
	}
	if config.Momentum > 0 {
		sgd.momentumBuffers = newBuffers(params)
	}
	return sgd, nil
}

// NewSGDFactory returns a Factory producing SGD optimizers with config
func NewSGDFactory(config SGDConfig) Factory {
	return func(params []*nn.Parameter) (Optimizer, error) {
		return NewSGD(config, params)
	}
}

// Step performs a single SGD update
func (s *SGD) Step() error {
	lr := s.config.LearningRate
	mu := s.config.Momentum
	wd := s.config.WeightDecay

	for i, p := range s.params {
		w := p.Value.Data
		g := p.Grad.Data
		if len(w) != len(g) {
			return fmt.Errorf("parameter %s: gradient size %d does not match weight size %d", p.Name, len(g), len(w))
		}
		for j := range w {
			grad := g[j] + wd*w[j]
			if mu > 0 {
				buf := s.momentumBuffers[i]
				buf[j] = mu*buf[j] + grad
				if s.config.Nesterov {
					grad += mu * buf[j]
				} else {
					grad = buf[j]
				}
			}
			w[j] -= lr * grad
		}
	}

	s.stepCount++
	return nil
}

func (s *SGD) ZeroGrad() {
	for _, p := range s.params {
		p.ZeroGrad()
	}
}

func (s *SGD) LearningRate() float64      { return s.config.LearningRate }
func (s *SGD) SetLearningRate(lr float64) { s.config.LearningRate = lr }
func (s *SGD) StepCount() uint64          { return s.stepCount }

// StateDict extracts SGD state for checkpointing
func (s *SGD) StateDict() (*State, error) {
	state := &State{
		Type: "SGD",
		Parameters: map[string]float64{
			"learning_rate": s.config.LearningRate,
			"momentum":      s.config.Momentum,
			"weight_decay":  s.config.WeightDecay,
			"nesterov":      boolToFloat(s.config.Nesterov),
		},
		Step: s.stepCount,
	}
	if s.momentumBuffers != nil {
		state.Slots = extractSlots("momentum", s.momentumBuffers, s.params)
	}
	return state, nil
}

// LoadStateDict restores SGD state from a checkpoint
func (s *SGD) LoadStateDict(state *State) error {
	if err := validateStateType("SGD", state); err != nil {
		return err
	}

	s.config.LearningRate = extractParam(state.Parameters, "learning_rate", s.config.LearningRate)
	s.config.WeightDecay = extractParam(state.Parameters, "weight_decay", s.config.WeightDecay)
	s.stepCount = state.Step

	if s.momentumBuffers != nil {
		if err := restoreSlots("momentum", state.Slots, s.momentumBuffers); err != nil {
			return fmt.Errorf("failed to restore SGD momentum: %w", err)
		}
	}
	return nil
}
