package optimizer

import (
	"fmt"
	"math"

	"github.com/tsawler/go-train/nn"
)

// NadamConfig holds configuration for Nadam optimizer
type NadamConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	WeightDecay  float64
}

// DefaultNadamConfig returns default Nadam optimizer configuration
func DefaultNadamConfig() NadamConfig {
	return NadamConfig{
		LearningRate: 0.002, // Nadam typically uses slightly higher LR than Adam
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// Nadam is Adam with a Nesterov look-ahead on the first moment
type Nadam struct {
	config    NadamConfig
	params    []*nn.Parameter
	momentum  [][]float64
	variance  [][]float64
	stepCount uint64
}

// NewNadam creates a new Nadam optimizer over params
func NewNadam(config NadamConfig, params []*nn.Parameter) (*Nadam, error) {
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
	return &Nadam{
		config:   config,
		params:   params,
		momentum: newBuffers(params),
		variance: newBuffers(params),
	}, nil
}

// NewNadamFactory returns a Factory producing Nadam optimizers with config
func NewNadamFactory(config NadamConfig) Factory {
	return func(params []*nn.Parameter) (Optimizer, error) {
		return NewNadam(config, params)
	}
}

func (n *Nadam) Step() error {
	n.stepCount++
	t := float64(n.stepCount)
	b1, b2 := n.config.Beta1, n.config.Beta2
	bc1 := 1 - math.Pow(b1, t)
	bc1Next := 1 - math.Pow(b1, t+1)
	bc2 := 1 - math.Pow(b2, t)

	for i, p := range n.params {
		w, g := p.Value.Data, p.Grad.Data
		if len(w) != len(g) {
			return fmt.Errorf("parameter %s: gradient size %d does not match weight size %d", p.Name, len(g), len(w))
		}
		m, v := n.momentum[i], n.variance[i]
		for j := range w {
			grad := g[j] + n.config.WeightDecay*w[j]
			m[j] = b1*m[j] + (1-b1)*grad
			v[j] = b2*v[j] + (1-b2)*grad*grad
			mHat := b1*m[j]/bc1Next + (1-b1)*grad/bc1
			vHat := v[j] / bc2
			w[j] -= n.config.LearningRate * mHat / (math.Sqrt(vHat) + n.config.Epsilon)
		}
	}
	return nil
}

func (n *Nadam) ZeroGrad() {
	for _, p := range n.params {
		p.ZeroGrad()
	}
}

func (n *Nadam) LearningRate() float64      { return n.config.LearningRate }
func (n *Nadam) SetLearningRate(lr float64) { n.config.LearningRate = lr }
func (n *Nadam) StepCount() uint64          { return n.stepCount }

// StateDict extracts Nadam state for checkpointing
func (n *Nadam) StateDict() (*State, error) {
	slots := extractSlots("momentum", n.momentum, n.params)
	slots = append(slots, extractSlots("variance", n.variance, n.params)...)
	return &State{
		Type: "Nadam",
		Parameters: map[string]float64{
			"learning_rate": n.config.LearningRate,
			"beta1":         n.config.Beta1,
			"beta2":         n.config.Beta2,
			"epsilon":       n.config.Epsilon,
			"weight_decay":  n.config.WeightDecay,
		},
		Step:  n.stepCount,
		Slots: slots,
	}, nil
}

// LoadStateDict restores Nadam state from a checkpoint
func (n *Nadam) LoadStateDict(state *State) error {
	if err := validateStateType("Nadam", state); err != nil {
		return err
	}
	if err := restoreSlots("momentum", state.Slots, n.momentum); err != nil {
		return fmt.Errorf("failed to restore Nadam momentum: %w", err)
	}
	if err := restoreSlots("variance", state.Slots, n.variance); err != nil {
		return fmt.Errorf("failed to restore Nadam variance: %w", err)
	}
	n.config.LearningRate = extractParam(state.Parameters, "learning_rate", n.config.LearningRate)
	n.config.Beta1 = extractParam(state.Parameters, "beta1", n.config.Beta1)
	n.config.Beta2 = extractParam(state.Parameters, "beta2", n.config.Beta2)
	n.config.Epsilon = extractParam(state.Parameters, "epsilon", n.config.Epsilon)
	n.config.WeightDecay = extractParam(state.Parameters, "weight_decay", n.config.WeightDecay)
	n.stepCount = state.Step
	return nil
}
