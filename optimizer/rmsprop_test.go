package optimizer

import (
	"math"
	"testing"
)

func TestRMSPropStep(t *testing.T) {
	params := newTestParams(t)
	config := DefaultRMSPropConfig()
	rms, err := NewRMSProp(config, params)
	if err != nil {
		t.Fatalf("Failed to create RMSProp optimizer: %v", err)
	}
	if err := rms.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	// sq = 0.01 * g^2, update = g / (sqrt(sq) + eps) = 10 * sign(g)
	want := 0.5 - config.LearningRate*1.0/(math.Sqrt(0.01)+config.Epsilon)
	if math.Abs(params[1].Value.Data[0]-want) > 1e-9 {
		t.Errorf("bias: expected %f, got %f", want, params[1].Value.Data[0])
	}
}

func TestRMSPropStateRoundTripWithMomentum(t *testing.T) {
	config := DefaultRMSPropConfig()
	config.Momentum = 0.5
	rms, err := NewRMSProp(config, newTestParams(t))
	if err != nil {
		t.Fatalf("Failed to create RMSProp optimizer: %v", err)
	}
	if err := rms.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	state, err := rms.StateDict()
	if err != nil {
		t.Fatalf("StateDict failed: %v", err)
	}

	restored, err := NewRMSProp(config, newTestParams(t))
	if err != nil {
		t.Fatalf("Failed to create RMSProp optimizer: %v", err)
	}
	if err := restored.LoadStateDict(state); err != nil {
		t.Fatalf("LoadStateDict failed: %v", err)
	}
	if restored.squaredGradAvg[0][1] != rms.squaredGradAvg[0][1] {
		t.Errorf("squared gradient average not restored")
	}
	if restored.momentumBuffers[1][0] != rms.momentumBuffers[1][0] {
		t.Errorf("momentum not restored")
	}
}

func TestRMSPropConfigValidation(t *testing.T) {
	config := DefaultRMSPropConfig()
	config.Alpha = 1.0
	if _, err := NewRMSProp(config, newTestParams(t)); err == nil {
		t.Error("Expected error for alpha = 1")
	}
}
