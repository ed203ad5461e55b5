package training

import (
	"errors"
	"fmt"
	"math"

	"github.com/tsawler/go-train/optimizer"
)

// LRScheduler computes the learning rate for a zero-based epoch index from
// the optimizer's base learning rate
type LRScheduler interface {
	GetLR(epoch int, step int, baseLR float64) float64
	GetName() string
}

// StepLRScheduler reduces learning rate by a factor every stepSize epochs
type StepLRScheduler struct {
	StepSize int     // Epochs between LR reductions
	Gamma    float64 // Multiplicative factor of LR decay
}

// NewStepLRScheduler creates a step learning rate scheduler
func NewStepLRScheduler(stepSize int, gamma float64) *StepLRScheduler {
	if stepSize <= 0 {
		stepSize = 30
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLRScheduler{StepSize: stepSize, Gamma: gamma}
}

func (s *StepLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	times := epoch / s.StepSize
	return baseLR * math.Pow(s.Gamma, float64(times))
}

func (s *StepLRScheduler) GetName() string { return "StepLR" }

// ExponentialLRScheduler decays learning rate exponentially
type ExponentialLRScheduler struct {
	Gamma float64 // Multiplicative factor of LR decay per epoch
}

// NewExponentialLRScheduler creates an exponential learning rate scheduler
func NewExponentialLRScheduler(gamma float64) *ExponentialLRScheduler {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95
	}
	return &ExponentialLRScheduler{Gamma: gamma}
}

func (s *ExponentialLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch))
}

func (s *ExponentialLRScheduler) GetName() string { return "ExponentialLR" }

// CosineAnnealingLRScheduler anneals from the base rate to EtaMin over TMax epochs
type CosineAnnealingLRScheduler struct {
	TMax   int
	EtaMin float64
}

// NewCosineAnnealingLRScheduler creates a cosine annealing scheduler
func NewCosineAnnealingLRScheduler(tMax int, etaMin float64) *CosineAnnealingLRScheduler {
	if tMax <= 0 {
		tMax = 100
	}
	if etaMin < 0 {
		etaMin = 0
	}
	return &CosineAnnealingLRScheduler{TMax: tMax, EtaMin: etaMin}
}

func (s *CosineAnnealingLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	if epoch >= s.TMax {
		return s.EtaMin
	}
	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(epoch)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLRScheduler) GetName() string { return "CosineAnnealingLR" }

// ReduceLROnPlateauScheduler reduces LR when a monitored metric has stopped
// improving. Unlike the other policies it is stateful and needs Step to be
// fed the metric once per epoch.
type ReduceLROnPlateauScheduler struct {
	Factor    float64 // Factor by which the learning rate will be reduced
	Patience  int     // Epochs with no improvement before reducing
	Threshold float64 // Minimum change that counts as an improvement
	Mode      string  // "min" or "max"
	Monitor   string  // Epoch result metric to watch, e.g. "val:loss"

	bestMetric  float64
	badEpochs   int
	currentLR   float64
	initialized bool
}

// PlateauState is the resumable part of a ReduceLROnPlateauScheduler
type PlateauState struct {
	BestMetric  float64
	BadEpochs   int
	CurrentLR   float64
	Initialized bool
}

// NewReduceLROnPlateauScheduler creates a plateau-based scheduler watching val:loss
func NewReduceLROnPlateauScheduler(factor float64, patience int, threshold float64, mode string) *ReduceLROnPlateauScheduler {
	if factor <= 0 || factor >= 1 {
		factor = 0.1
	}
	if patience <= 0 {
		patience = 10
	}
	if threshold < 0 {
		threshold = 1e-4
	}
	if mode != "min" && mode != "max" {
		mode = "min"
	}
	return &ReduceLROnPlateauScheduler{
		Factor:    factor,
		Patience:  patience,
		Threshold: threshold,
		Mode:      mode,
		Monitor:   ValidationPrefix + "loss",
	}
}

// Step records one epoch's metric and returns the learning rate to use next
func (s *ReduceLROnPlateauScheduler) Step(metric float64, currentLR float64) float64 {
	if !s.initialized {
		s.bestMetric = metric
		s.currentLR = currentLR
		s.initialized = true
		return currentLR
	}

	var improved bool
	if s.Mode == "min" {
		improved = metric < s.bestMetric-s.Threshold
	} else {
		improved = metric > s.bestMetric+s.Threshold
	}

	if improved {
		s.bestMetric = metric
		s.badEpochs = 0
	} else {
		s.badEpochs++
		if s.badEpochs >= s.Patience {
			s.currentLR *= s.Factor
			s.badEpochs = 0
		}
	}
	return s.currentLR
}

func (s *ReduceLROnPlateauScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	if s.initialized {
		return s.currentLR
	}
	return baseLR
}

func (s *ReduceLROnPlateauScheduler) GetName() string { return "ReduceLROnPlateau" }

// State returns a snapshot of the plateau tracking
func (s *ReduceLROnPlateauScheduler) State() PlateauState {
	return PlateauState{
		BestMetric:  s.bestMetric,
		BadEpochs:   s.badEpochs,
		CurrentLR:   s.currentLR,
		Initialized: s.initialized,
	}
}

// Restore replaces the plateau tracking with a snapshot
func (s *ReduceLROnPlateauScheduler) Restore(state PlateauState) {
	s.bestMetric = state.BestMetric
	s.badEpochs = state.BadEpochs
	s.currentLR = state.CurrentLR
	s.initialized = state.Initialized
}

// NoOpScheduler keeps the learning rate constant
type NoOpScheduler struct{}

func (s *NoOpScheduler) GetLR(epoch int, step int, baseLR float64) float64 { return baseLR }

func (s *NoOpScheduler) GetName() string { return "ConstantLR" }

// SchedulerFactory binds a scheduling policy to the optimizer of a run. It
// is invoked once per run after the optimizer is built.
type SchedulerFactory func(opt optimizer.Optimizer) (Callback, error)

// NewSchedulerFactory returns a factory producing a SchedulerCallback for policy
func NewSchedulerFactory(policy LRScheduler) SchedulerFactory {
	return func(opt optimizer.Optimizer) (Callback, error) {
		return NewSchedulerCallback(policy, opt)
	}
}

// Hidden state keys written by SchedulerCallback
const (
	schedulerLastEpochKey   = "scheduler/last_epoch"
	schedulerBaseLRKey      = "scheduler/base_lr"
	schedulerBestMetricKey  = "scheduler/best_metric"
	schedulerBadEpochsKey   = "scheduler/bad_epochs"
	schedulerCurrentLRKey   = "scheduler/current_lr"
	schedulerInitializedKey = "scheduler/initialized"
)

// SchedulerCallback applies an LRScheduler to an optimizer at epoch
// boundaries. After epoch e ends it sets the rate for epoch e+1, so the
// optimizer always holds the rate of the epoch about to run.
type SchedulerCallback struct {
	policy    LRScheduler
	opt       optimizer.Optimizer
	baseLR    float64
	lastEpoch int
}

// NewSchedulerCallback captures the optimizer's current rate as the base rate
func NewSchedulerCallback(policy LRScheduler, opt optimizer.Optimizer) (*SchedulerCallback, error) {
	if policy == nil {
		return nil, errors.New("scheduler policy cannot be nil")
	}
	if opt == nil {
		return nil, errors.New("scheduler optimizer cannot be nil")
	}
	s := &SchedulerCallback{policy: policy, opt: opt, baseLR: opt.LearningRate()}
	opt.SetLearningRate(policy.GetLR(0, 0, s.baseLR))
	return s, nil
}

func (s *SchedulerCallback) Name() string { return "scheduler" }

// Policy returns the wrapped scheduling policy
func (s *SchedulerCallback) Policy() LRScheduler { return s.policy }

// BaseLR returns the rate the schedule is computed from
func (s *SchedulerCallback) BaseLR() float64 { return s.baseLR }

// LastEpoch returns the last completed epoch
func (s *SchedulerCallback) LastEpoch() int { return s.lastEpoch }

func (s *SchedulerCallback) OnEpochEnd(info *EpochInfo) error {
	s.lastEpoch = info.Epoch
	if plateau, ok := s.policy.(*ReduceLROnPlateauScheduler); ok {
		metric, err := plateauMetric(plateau.Monitor, info.Result)
		if err != nil {
			return err
		}
		plateau.Step(metric, s.opt.LearningRate())
	}
	s.opt.SetLearningRate(s.policy.GetLR(info.Epoch, 0, s.baseLR))
	return nil
}

// plateauMetric falls back to the training loss for runs without validation
func plateauMetric(monitor string, result *EpochResult) (float64, error) {
	if result == nil {
		return 0, errors.New("plateau scheduler: epoch result is missing")
	}
	if v, ok := result.Get(monitor); ok {
		return v, nil
	}
	if v, ok := result.Get(TrainPrefix + "loss"); ok && monitor == ValidationPrefix+"loss" {
		return v, nil
	}
	return 0, fmt.Errorf("plateau scheduler: metric %q not found in epoch %d results", monitor, result.Epoch)
}

func (s *SchedulerCallback) WriteState(state *HiddenState) error {
	state.Set(schedulerLastEpochKey, s.lastEpoch)
	state.Set(schedulerBaseLRKey, s.baseLR)
	if plateau, ok := s.policy.(*ReduceLROnPlateauScheduler); ok {
		ps := plateau.State()
		state.Set(schedulerBestMetricKey, ps.BestMetric)
		state.Set(schedulerBadEpochsKey, ps.BadEpochs)
		state.Set(schedulerCurrentLRKey, ps.CurrentLR)
		state.Set(schedulerInitializedKey, ps.Initialized)
	}
	return nil
}

// LoadState restores the schedule position and re-applies the rate for the
// epoch after the restored one
func (s *SchedulerCallback) LoadState(state *HiddenState) error {
	lastEpoch, ok := state.Int(schedulerLastEpochKey)
	if !ok {
		return fmt.Errorf("scheduler state is missing %q", schedulerLastEpochKey)
	}
	s.lastEpoch = lastEpoch
	if base, ok := state.Float(schedulerBaseLRKey); ok {
		s.baseLR = base
	}
	if plateau, ok := s.policy.(*ReduceLROnPlateauScheduler); ok {
		var ps PlateauState
		ps.BestMetric, _ = state.Float(schedulerBestMetricKey)
		ps.BadEpochs, _ = state.Int(schedulerBadEpochsKey)
		ps.CurrentLR, _ = state.Float(schedulerCurrentLRKey)
		ps.Initialized, _ = state.Bool(schedulerInitializedKey)
		plateau.Restore(ps)
	}
	s.opt.SetLearningRate(s.policy.GetLR(s.lastEpoch, 0, s.baseLR))
	return nil
}
