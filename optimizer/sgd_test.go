package optimizer

import (
	"math"
	"testing"

	"github.com/tsawler/go-train/nn"
)

func newTestParams(t *testing.T) []*nn.Parameter {
	t.Helper()
	w, err := nn.NewMatrix(1, 2, []float64{1.0, -1.0})
	if err != nil {
		t.Fatalf("Failed to create weight matrix: %v", err)
	}
	b, err := nn.NewMatrix(1, 1, []float64{0.5})
	if err != nil {
		t.Fatalf("Failed to create bias matrix: %v", err)
	}
	params := []*nn.Parameter{nn.NewParameter("fc.weight", w), nn.NewParameter("fc.bias", b)}
	params[0].Grad.Data[0] = 0.5
	params[0].Grad.Data[1] = -0.5
	params[1].Grad.Data[0] = 1.0
	return params
}

// TestDefaultSGDConfig tests the default SGD configuration
func TestDefaultSGDConfig(t *testing.T) {
	config := DefaultSGDConfig()

	if config.LearningRate != 0.01 {
		t.Errorf("Expected LearningRate 0.01, got %f", config.LearningRate)
	}
	if config.Momentum != 0 {
		t.Errorf("Expected Momentum 0, got %f", config.Momentum)
	}
	if config.WeightDecay != 0 {
		t.Errorf("Expected WeightDecay 0, got %f", config.WeightDecay)
	}
	if config.Nesterov {
		t.Errorf("Expected Nesterov false")
	}
}

func TestSGDConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config SGDConfig
	}{
		{"negative learning rate", SGDConfig{LearningRate: -1}},
		{"negative momentum", SGDConfig{LearningRate: 0.1, Momentum: -0.1}},
		{"momentum above one", SGDConfig{LearningRate: 0.1, Momentum: 1.5}},
		{"negative weight decay", SGDConfig{LearningRate: 0.1, WeightDecay: -1}},
		{"nesterov without momentum", SGDConfig{LearningRate: 0.1, Nesterov: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSGD(tt.config, newTestParams(t)); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}

	if _, err := NewSGD(DefaultSGDConfig(), nil); err == nil {
		t.Errorf("Expected error for empty parameter list")
	}
}

func TestSGDVanillaStep(t *testing.T) {
	params := newTestParams(t)
	sgd, err := NewSGD(SGDConfig{LearningRate: 0.1}, params)
	if err != nil {
		t.Fatalf("Failed to create SGD optimizer: %v", err)
	}

	if err := sgd.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	expected := []float64{0.95, -0.95}
	for i, want := range expected {
		if math.Abs(params[0].Value.Data[i]-want) > 1e-12 {
			t.Errorf("weight[%d]: expected %f, got %f", i, want, params[0].Value.Data[i])
		}
	}
	if math.Abs(params[1].Value.Data[0]-0.4) > 1e-12 {
		t.Errorf("bias: expected 0.4, got %f", params[1].Value.Data[0])
	}
	if sgd.StepCount() != 1 {
		t.Errorf("Expected step count 1, got %d", sgd.StepCount())
	}

	sgd.ZeroGrad()
	for _, p := range params {
		for _, g := range p.Grad.Data {
			if g != 0 {
				t.Fatalf("Expected zeroed gradients, got %v", p.Grad.Data)
			}
		}
	}
}

func TestSGDMomentumAccumulates(t *testing.T) {
	params := newTestParams(t)
	sgd, err := NewSGD(SGDConfig{LearningRate: 0.1, Momentum: 0.9}, params)
	if err != nil {
		t.Fatalf("Failed to create SGD optimizer: %v", err)
	}

	// Two steps with the same gradient: v1 = g, v2 = 0.9 g + g = 1.9 g
	for i := 0; i < 2; i++ {
		if err := sgd.Step(); err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
	}
	want := 0.5 - 0.1*1.0 - 0.1*1.9
	if math.Abs(params[1].Value.Data[0]-want) > 1e-12 {
		t.Errorf("bias after momentum: expected %f, got %f", want, params[1].Value.Data[0])
	}
}

func TestSGDStateRoundTrip(t *testing.T) {
	params := newTestParams(t)
	config := SGDConfig{LearningRate: 0.1, Momentum: 0.9}
	sgd, err := NewSGD(config, params)
	if err != nil {
		t.Fatalf("Failed to create SGD optimizer: %v", err)
	}
	if err := sgd.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	sgd.SetLearningRate(0.05)

	state, err := sgd.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}
	if state.Type != "SGD" {
		t.Errorf("Expected state type SGD, got %s", state.Type)
	}
	if len(state.Slots) != len(params) {
		t.Fatalf("Expected %d momentum slots, got %d", len(params), len(state.Slots))
	}

	restored, err := NewSGD(config, newTestParams(t))
	if err != nil {
		t.Fatalf("Failed to create SGD optimizer: %v", err)
	}
	if err := restored.LoadStateDict(state); err != nil {
		t.Fatalf("LoadStateDict failed: %v", err)
	}
	if restored.StepCount() != 1 {
		t.Errorf("Expected restored step count 1, got %d", restored.StepCount())
	}
	if restored.LearningRate() != 0.05 {
		t.Errorf("Expected restored learning rate 0.05, got %f", restored.LearningRate())
	}
	if restored.momentumBuffers[1][0] != sgd.momentumBuffers[1][0] {
		t.Errorf("Momentum buffer not restored: expected %f, got %f",
			sgd.momentumBuffers[1][0], restored.momentumBuffers[1][0])
	}
}

func TestSGDLoadStateErrors(t *testing.T) {
	sgd, err := NewSGD(SGDConfig{LearningRate: 0.1, Momentum: 0.9}, newTestParams(t))
	if err != nil {
		t.Fatalf("Failed to create SGD optimizer: %v", err)
	}

	if err := sgd.LoadStateDict(nil); err == nil {
		t.Error("Expected error loading nil state")
	}
	if err := sgd.LoadStateDict(&State{Type: "Adam"}); err == nil {
		t.Error("Expected error loading Adam state into SGD")
	}
	bad := &State{Type: "SGD", Slots: []Slot{
		{Name: "momentum_0", Data: []float64{1}},
		{Name: "momentum_1", Data: []float64{1}},
	}}
	if err := sgd.LoadStateDict(bad); err == nil {
		t.Error("Expected error loading mis-sized momentum slot")
	}
}
