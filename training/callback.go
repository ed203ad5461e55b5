package training

import (
	"github.com/tsawler/go-train/optimizer"
)

// Callback is anything that wants to observe a training run. Name is used
// in logs and as the namespace for any state the callback persists.
//
// Lifecycle hooks are optional: a callback implements only the capability
// interfaces below that it cares about, and every other hook is a no-op.
type Callback interface {
	Name() string
}

// TrainBeginner is called once before the first epoch of a run
type TrainBeginner interface {
	OnTrainBegin() error
}

// TrainEnder is called once after the last epoch of a run
type TrainEnder interface {
	OnTrainEnd() error
}

// EpochBeginner is called before the training phase of every epoch
type EpochBeginner interface {
	OnEpochBegin(info *EpochInfo) error
}

// EpochEnder is called after the validation phase of every epoch, once the
// epoch result holds all metrics
type EpochEnder interface {
	OnEpochEnd(info *EpochInfo) error
}

// BatchBeginner is called before every training and validation batch
type BatchBeginner interface {
	OnBatchBegin(info *BatchInfo) error
}

// BatchEnder is called after every training and validation batch
type BatchEnder interface {
	OnBatchEnd(info *BatchInfo) error
}

// StateWriter persists callback state into a checkpoint's hidden state
type StateWriter interface {
	WriteState(state *HiddenState) error
}

// StateLoader restores callback state when a run resumes
type StateLoader interface {
	LoadState(state *HiddenState) error
}

// Phase distinguishes training from validation batches
type Phase int

const (
	TrainPhase Phase = iota
	ValidationPhase
)

func (p Phase) String() string {
	switch p {
	case TrainPhase:
		return "train"
	case ValidationPhase:
		return "val"
	default:
		return "unknown"
	}
}

// EpochInfo is handed to epoch hooks
type EpochInfo struct {
	Epoch           int
	BatchesPerEpoch int
	Result          *EpochResult
	Optimizer       optimizer.Optimizer
}

// BatchInfo is handed to batch hooks
type BatchInfo struct {
	Epoch           int
	Phase           Phase
	Batch           int // zero-based index within the phase
	BatchesPerPhase int
	Size            int
	Loss            float64 // set before OnBatchEnd
	Optimizer       optimizer.Optimizer
}

// CallbackList is the ordered set of callbacks for one run. Capabilities
// are resolved once at construction so dispatch is a plain slice walk.
type CallbackList struct {
	all []Callback

	trainBegin []TrainBeginner
	trainEnd   []TrainEnder
	epochBegin []EpochBeginner
	epochEnd   []EpochEnder
	batchBegin []BatchBeginner
	batchEnd   []BatchEnder
	writers    []StateWriter
	loaders    []StateLoader
}

// NewCallbackList orders callbacks as scheduler, user callbacks, then
// streaming callbacks. The scheduler observes optimizer state before any
// other callback, and streaming callbacks see final per-epoch results.
// scheduler may be nil; nil entries in the slices are skipped.
func NewCallbackList(scheduler Callback, user []Callback, streaming []Callback) *CallbackList {
	l := &CallbackList{}
	if scheduler != nil {
		l.register(scheduler)
	}
	for _, cb := range user {
		if cb != nil {
			l.register(cb)
		}
	}
	for _, cb := range streaming {
		if cb != nil {
			l.register(cb)
		}
	}
	return l
}

func (l *CallbackList) register(cb Callback) {
	l.all = append(l.all, cb)
	if c, ok := cb.(TrainBeginner); ok {
		l.trainBegin = append(l.trainBegin, c)
	}
	if c, ok := cb.(TrainEnder); ok {
		l.trainEnd = append(l.trainEnd, c)
	}
	if c, ok := cb.(EpochBeginner); ok {
		l.epochBegin = append(l.epochBegin, c)
	}
	if c, ok := cb.(EpochEnder); ok {
		l.epochEnd = append(l.epochEnd, c)
	}
	if c, ok := cb.(BatchBeginner); ok {
		l.batchBegin = append(l.batchBegin, c)
	}
	if c, ok := cb.(BatchEnder); ok {
		l.batchEnd = append(l.batchEnd, c)
	}
	if c, ok := cb.(StateWriter); ok {
		l.writers = append(l.writers, c)
	}
	if c, ok := cb.(StateLoader); ok {
		l.loaders = append(l.loaders, c)
	}
}

// All returns the callbacks in dispatch order
func (l *CallbackList) All() []Callback {
	out := make([]Callback, len(l.all))
	copy(out, l.all)
	return out
}

// Len returns the number of registered callbacks
func (l *CallbackList) Len() int {
	return len(l.all)
}

// Names returns callback names in dispatch order
func (l *CallbackList) Names() []string {
	names := make([]string, len(l.all))
	for i, cb := range l.all {
		names[i] = cb.Name()
	}
	return names
}

// The dispatch methods below stop at the first failing callback and
// return its error as is.

func (l *CallbackList) OnTrainBegin() error {
	for _, c := range l.trainBegin {
		if err := c.OnTrainBegin(); err != nil {
			return err
		}
	}
	return nil
}

func (l *CallbackList) OnTrainEnd() error {
	for _, c := range l.trainEnd {
		if err := c.OnTrainEnd(); err != nil {
			return err
		}
	}
	return nil
}

func (l *CallbackList) OnEpochBegin(info *EpochInfo) error {
	for _, c := range l.epochBegin {
		if err := c.OnEpochBegin(info); err != nil {
			return err
		}
	}
	return nil
}

func (l *CallbackList) OnEpochEnd(info *EpochInfo) error {
	for _, c := range l.epochEnd {
		if err := c.OnEpochEnd(info); err != nil {
			return err
		}
	}
	return nil
}

func (l *CallbackList) OnBatchBegin(info *BatchInfo) error {
	for _, c := range l.batchBegin {
		if err := c.OnBatchBegin(info); err != nil {
			return err
		}
	}
	return nil
}

func (l *CallbackList) OnBatchEnd(info *BatchInfo) error {
	for _, c := range l.batchEnd {
		if err := c.OnBatchEnd(info); err != nil {
			return err
		}
	}
	return nil
}

// WriteState asks every stateful callback to persist into state
func (l *CallbackList) WriteState(state *HiddenState) error {
	for _, c := range l.writers {
		if err := c.WriteState(state); err != nil {
			return err
		}
	}
	return nil
}

// LoadState dispatches a restored hidden state to every callback that can
// restore itself. Callbacks without a restore hook are skipped.
func (l *CallbackList) LoadState(state *HiddenState) error {
	for _, c := range l.loaders {
		if err := c.LoadState(state); err != nil {
			return err
		}
	}
	return nil
}
