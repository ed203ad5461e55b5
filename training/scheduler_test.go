package training

import (
	"math"
	"testing"

	"github.com/tsawler/go-train/optimizer"
)

// fakeOptimizer records learning rate changes without updating anything
type fakeOptimizer struct {
	lr     float64
	loaded *optimizer.State
}

func (f *fakeOptimizer) Step() error                { return nil }
func (f *fakeOptimizer) ZeroGrad()                  {}
func (f *fakeOptimizer) LearningRate() float64      { return f.lr }
func (f *fakeOptimizer) SetLearningRate(lr float64) { f.lr = lr }
func (f *fakeOptimizer) StepCount() uint64          { return 0 }

func (f *fakeOptimizer) StateDict() (*optimizer.State, error) {
	return &optimizer.State{Type: "fake", Parameters: map[string]float64{"learning_rate": f.lr}}, nil
}

func (f *fakeOptimizer) LoadStateDict(state *optimizer.State) error {
	f.loaded = state
	return nil
}

func TestStepLRScheduler(t *testing.T) {
	scheduler := NewStepLRScheduler(2, 0.1)
	baseLR := 0.1

	tests := []struct {
		epoch      int
		expectedLR float64
	}{
		{0, 0.1},
		{1, 0.1},
		{2, 0.01},
		{3, 0.01},
		{4, 0.001},
		{6, 0.0001},
	}

	for _, tt := range tests {
		lr := scheduler.GetLR(tt.epoch, 0, baseLR)
		if math.Abs(lr-tt.expectedLR) > 1e-8 {
			t.Errorf("Epoch %d: expected LR %f, got %f", tt.epoch, tt.expectedLR, lr)
		}
	}
}

func TestExponentialLRScheduler(t *testing.T) {
	scheduler := NewExponentialLRScheduler(0.9)

	tests := []struct {
		epoch      int
		expectedLR float64
	}{
		{0, 0.1},
		{1, 0.09},
		{2, 0.081},
		{3, 0.0729},
	}

	for _, tt := range tests {
		lr := scheduler.GetLR(tt.epoch, 0, 0.1)
		if math.Abs(lr-tt.expectedLR) > 1e-8 {
			t.Errorf("Epoch %d: expected LR %f, got %f", tt.epoch, tt.expectedLR, lr)
		}
	}
}

func TestCosineAnnealingLRScheduler(t *testing.T) {
	scheduler := NewCosineAnnealingLRScheduler(5, 0.0001)
	baseLR := 0.01

	if lr := scheduler.GetLR(0, 0, baseLR); math.Abs(lr-baseLR) > 1e-10 {
		t.Errorf("Epoch 0: expected %f, got %f", baseLR, lr)
	}
	prev := baseLR
	for epoch := 1; epoch < 5; epoch++ {
		lr := scheduler.GetLR(epoch, 0, baseLR)
		if lr >= prev {
			t.Errorf("Epoch %d: LR %f did not decrease from %f", epoch, lr, prev)
		}
		prev = lr
	}
	if lr := scheduler.GetLR(7, 0, baseLR); lr != 0.0001 {
		t.Errorf("Past TMax: expected eta min, got %f", lr)
	}
}

func TestReduceLROnPlateauScheduler(t *testing.T) {
	scheduler := NewReduceLROnPlateauScheduler(0.5, 2, 0.01, "min")

	steps := []struct {
		metric     float64
		expectedLR float64
	}{
		{1.0, 0.1},   // initializes
		{0.9, 0.1},   // improved
		{0.895, 0.1}, // within threshold, first bad epoch
		{0.9, 0.05},  // second bad epoch, reduced
		{0.5, 0.05},  // improved
	}
	for i, s := range steps {
		lr := scheduler.Step(s.metric, 0.1)
		if math.Abs(lr-s.expectedLR) > 1e-10 {
			t.Errorf("Step %d: expected LR %f, got %f", i, s.expectedLR, lr)
		}
	}

	snapshot := scheduler.State()
	other := NewReduceLROnPlateauScheduler(0.5, 2, 0.01, "min")
	other.Restore(snapshot)
	if other.GetLR(10, 0, 1.0) != 0.05 {
		t.Errorf("Restored scheduler should report 0.05, got %f", other.GetLR(10, 0, 1.0))
	}
}

func TestSchedulerCallbackStepsAtEpochEnd(t *testing.T) {
	opt := &fakeOptimizer{lr: 0.1}
	cb, err := NewSchedulerFactory(NewStepLRScheduler(2, 0.1))(opt)
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}
	sched := cb.(*SchedulerCallback)
	if sched.Name() != "scheduler" {
		t.Errorf("unexpected name %q", sched.Name())
	}

	for epoch := 1; epoch <= 2; epoch++ {
		if err := sched.OnEpochEnd(&EpochInfo{Epoch: epoch, Result: NewEpochResult(epoch, opt.lr)}); err != nil {
			t.Fatal(err)
		}
	}
	// Epoch 3 is the third epoch, index 2
	if math.Abs(opt.lr-0.01) > 1e-12 {
		t.Errorf("expected LR 0.01 for epoch 3, got %f", opt.lr)
	}

	state := NewHiddenState()
	if err := sched.WriteState(state); err != nil {
		t.Fatal(err)
	}

	resumedOpt := &fakeOptimizer{lr: 0.1}
	resumed, err := NewSchedulerCallback(NewStepLRScheduler(2, 0.1), resumedOpt)
	if err != nil {
		t.Fatal(err)
	}
	if err := resumed.LoadState(state); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if resumed.LastEpoch() != 2 {
		t.Errorf("expected last epoch 2, got %d", resumed.LastEpoch())
	}
	if math.Abs(resumedOpt.lr-0.01) > 1e-12 {
		t.Errorf("expected resumed LR 0.01, got %f", resumedOpt.lr)
	}
}

func TestSchedulerCallbackPlateau(t *testing.T) {
	opt := &fakeOptimizer{lr: 1.0}
	sched, err := NewSchedulerCallback(NewReduceLROnPlateauScheduler(0.5, 1, 0, "min"), opt)
	if err != nil {
		t.Fatal(err)
	}

	for epoch := 1; epoch <= 2; epoch++ {
		result := NewEpochResult(epoch, opt.lr)
		result.Set("val:loss", 1.0)
		if err := sched.OnEpochEnd(&EpochInfo{Epoch: epoch, Result: result}); err != nil {
			t.Fatal(err)
		}
	}
	if opt.lr != 0.5 {
		t.Fatalf("expected LR 0.5 after a plateau, got %f", opt.lr)
	}

	state := NewHiddenState()
	if err := sched.WriteState(state); err != nil {
		t.Fatal(err)
	}
	resumedOpt := &fakeOptimizer{lr: 1.0}
	resumed, err := NewSchedulerCallback(NewReduceLROnPlateauScheduler(0.5, 1, 0, "min"), resumedOpt)
	if err != nil {
		t.Fatal(err)
	}
	if err := resumed.LoadState(state); err != nil {
		t.Fatal(err)
	}
	if resumedOpt.lr != 0.5 {
		t.Errorf("expected resumed LR 0.5, got %f", resumedOpt.lr)
	}
}

func TestSchedulerCallbackPlateauMetricLookup(t *testing.T) {
	sched, err := NewSchedulerCallback(NewReduceLROnPlateauScheduler(0.5, 1, 0, "min"), &fakeOptimizer{lr: 1.0})
	if err != nil {
		t.Fatal(err)
	}

	trainOnly := NewEpochResult(1, 1.0)
	trainOnly.Set("train:loss", 0.3)
	if err := sched.OnEpochEnd(&EpochInfo{Epoch: 1, Result: trainOnly}); err != nil {
		t.Errorf("expected fallback to train:loss, got %v", err)
	}

	empty := NewEpochResult(2, 1.0)
	if err := sched.OnEpochEnd(&EpochInfo{Epoch: 2, Result: empty}); err == nil {
		t.Error("expected error when no loss metric is present")
	}
}

func TestSchedulerCallbackValidation(t *testing.T) {
	if _, err := NewSchedulerCallback(nil, &fakeOptimizer{}); err == nil {
		t.Error("expected error for nil policy")
	}
	if _, err := NewSchedulerCallback(&NoOpScheduler{}, nil); err == nil {
		t.Error("expected error for nil optimizer")
	}
	sched, err := NewSchedulerCallback(&NoOpScheduler{}, &fakeOptimizer{lr: 0.3})
	if err != nil {
		t.Fatal(err)
	}
	if err := sched.LoadState(NewHiddenState()); err == nil {
		t.Error("expected error for missing scheduler state")
	}
}
