package optimizer

import (
	"math"
	"testing"
)

func TestAdaGradStep(t *testing.T) {
	params := newTestParams(t)
	opt, err := NewAdaGrad(DefaultAdaGradConfig(), params)
	if err != nil {
		t.Fatalf("Failed to create AdaGrad optimizer: %v", err)
	}
	if err := opt.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	// First step moves every coordinate by lr * sign(g)
	want := []float64{0.99, -0.99}
	for i := range want {
		if math.Abs(params[0].Value.Data[i]-want[i]) > 1e-8 {
			t.Errorf("weight[%d]: expected %f, got %f", i, want[i], params[0].Value.Data[i])
		}
	}
	if math.Abs(params[1].Value.Data[0]-0.49) > 1e-8 {
		t.Errorf("bias: expected 0.49, got %f", params[1].Value.Data[0])
	}
}

func TestAdaGradStateRoundTrip(t *testing.T) {
	params := newTestParams(t)
	opt, err := NewAdaGrad(DefaultAdaGradConfig(), params)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := opt.Step(); err != nil {
			t.Fatal(err)
		}
	}
	state, err := opt.StateDict()
	if err != nil {
		t.Fatal(err)
	}
	if state.Type != "AdaGrad" || state.Step != 3 || len(state.Slots) != 2 {
		t.Fatalf("unexpected state: %+v", state)
	}

	restored, err := NewAdaGrad(AdaGradConfig{LearningRate: 0.5, Epsilon: 1}, newTestParams(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := restored.LoadStateDict(state); err != nil {
		t.Fatalf("LoadStateDict failed: %v", err)
	}
	if restored.LearningRate() != 0.01 || restored.StepCount() != 3 {
		t.Errorf("hyperparameters not restored: lr=%f step=%d", restored.LearningRate(), restored.StepCount())
	}
	if restored.sumSq[1][0] != opt.sumSq[1][0] {
		t.Errorf("accumulator not restored: expected %f, got %f", opt.sumSq[1][0], restored.sumSq[1][0])
	}

	if err := restored.LoadStateDict(&State{Type: "Adam"}); err == nil {
		t.Error("expected type mismatch error")
	}
}
