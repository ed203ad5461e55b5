package optimizer

import (
	"fmt"

	"github.com/tsawler/go-train/nn"
)

// Optimizer defines the common interface for all optimizers.
// Optimizers own references to the parameters they update; StateDict and
// LoadStateDict move their internal buffers in and out of checkpoints.
type Optimizer interface {
	// Step applies one update using the gradients accumulated on the parameters
	Step() error

	// ZeroGrad clears gradients on every managed parameter
	ZeroGrad()

	// LearningRate returns the learning rate used by the next Step
	LearningRate() float64

	// SetLearningRate updates the learning rate; schedulers call this
	SetLearningRate(lr float64)

	// StepCount returns the number of Step calls so far
	StepCount() uint64

	// StateDict extracts optimizer state for checkpointing
	StateDict() (*State, error)

	// LoadStateDict restores optimizer state from a checkpoint
	LoadStateDict(state *State) error
}

// Factory builds an optimizer over a model's trainable parameters
type Factory func(params []*nn.Parameter) (Optimizer, error)

// State represents the complete state of an optimizer
type State struct {
	Type       string             `json:"type" msgpack:"type"`             // "Adam", "SGD", etc.
	Parameters map[string]float64 `json:"parameters" msgpack:"parameters"` // Hyperparameters
	Step       uint64             `json:"step" msgpack:"step"`
	Slots      []Slot             `json:"slots" msgpack:"slots"` // Per-parameter buffers
}

// Slot is one per-parameter state buffer (momentum, variance, ...)
type Slot struct {
	Name  string    `json:"name" msgpack:"name"`
	Shape []int     `json:"shape" msgpack:"shape"`
	Data  []float64 `json:"data" msgpack:"data"`
}

// validateStateType ensures the state type matches the optimizer
func validateStateType(optimizerType string, state *State) error {
	if state == nil {
		return fmt.Errorf("cannot load nil %s state", optimizerType)
	}
	if state.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}

func validateParams(params []*nn.Parameter) error {
	if len(params) == 0 {
		return fmt.Errorf("no parameters provided")
	}
	for i, p := range params {
		if p == nil || p.Value == nil || p.Grad == nil {
			return fmt.Errorf("parameter %d is not initialized", i)
		}
	}
	return nil
}
