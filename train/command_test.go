package train

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tsawler/go-train/checkpoints"
	"github.com/tsawler/go-train/data"
	"github.com/tsawler/go-train/models"
	"github.com/tsawler/go-train/optimizer"
	"github.com/tsawler/go-train/training"
)

// journal records hook invocations across callbacks in call order
type journal struct {
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

// hookRecorder implements every callback capability
type hookRecorder struct {
	name   string
	j      *journal
	loaded []*training.HiddenState
}

func (r *hookRecorder) Name() string { return r.name }

func (r *hookRecorder) OnTrainBegin() error {
	r.j.add("%s:train_begin", r.name)
	return nil
}

func (r *hookRecorder) OnTrainEnd() error {
	r.j.add("%s:train_end", r.name)
	return nil
}

func (r *hookRecorder) OnEpochBegin(info *training.EpochInfo) error {
	r.j.add("%s:epoch_begin:%d", r.name, info.Epoch)
	return nil
}

func (r *hookRecorder) OnEpochEnd(info *training.EpochInfo) error {
	r.j.add("%s:epoch_end:%d", r.name, info.Epoch)
	return nil
}

func (r *hookRecorder) LoadState(state *training.HiddenState) error {
	r.j.add("%s:load_state", r.name)
	r.loaded = append(r.loaded, state)
	return nil
}

// stateless only has a name, so restore must skip it
type stateless struct{}

func (stateless) Name() string { return "stateless" }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newModel(t *testing.T) *models.MLPClassifier {
	t.Helper()
	m, err := models.NewMLPClassifier(2, []int{4}, 2)
	require.NoError(t, err)
	return m
}

func newSource(t *testing.T) data.Source {
	t.Helper()
	ds, err := data.Blobs(40, 2, 2, 7)
	require.NoError(t, err)
	src, err := data.NewSourceFromDataset(ds, data.SourceConfig{BatchSize: 8, ValidationSplit: 0.25, Seed: 1})
	require.NoError(t, err)
	return src
}

// sgdState returns a valid SGD state for a model with the same shape as newModel
func sgdState(t *testing.T) *optimizer.State {
	t.Helper()
	opt, err := optimizer.NewSGD(optimizer.DefaultSGDConfig(), newModel(t).Parameters())
	require.NoError(t, err)
	state, err := opt.StateDict()
	require.NoError(t, err)
	return state
}

type fixture struct {
	storage   *MockStorage
	journal   *journal
	scheduler *hookRecorder
	user      *hookRecorder
	streaming *hookRecorder
	out       bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	j := &journal{}
	return &fixture{
		storage:   NewMockStorage(ctrl),
		journal:   j,
		scheduler: &hookRecorder{name: "scheduler", j: j},
		user:      &hookRecorder{name: "user", j: j},
		streaming: &hookRecorder{name: "streaming", j: j},
	}
}

func (f *fixture) command(t *testing.T, epochs int, opts ...Option) *Command {
	t.Helper()
	f.storage.EXPECT().SetCheckpointStrategy(gomock.Any()).Times(1)
	base := []Option{
		WithScheduler(func(optimizer.Optimizer) (training.Callback, error) { return f.scheduler, nil }),
		WithCallbacks(f.user, stateless{}),
		WithOutput(&f.out),
		WithLogger(quietLogger()),
	}
	cmd, err := New(ModelConfig{Device: "cpu", Epochs: epochs}, newModel(t), newSource(t),
		optimizer.NewSGDFactory(optimizer.DefaultSGDConfig()), f.storage, append(base, opts...)...)
	require.NoError(t, err)
	return cmd
}

func (f *fixture) expectStreaming() {
	f.storage.EXPECT().StreamingCallbacks().Return([]training.Callback{f.streaming}).Times(1)
}

func TestRunFreshStart(t *testing.T) {
	f := newFixture(t)
	cmd := f.command(t, 3)

	f.expectStreaming()
	gomock.InOrder(
		f.storage.EXPECT().ResumeLearning(gomock.Any()).Return(0, nil, nil),
		f.storage.EXPECT().Checkpoint(1, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		f.storage.EXPECT().Checkpoint(2, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		f.storage.EXPECT().Checkpoint(3, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
	)

	history, err := cmd.Run()
	require.NoError(t, err)
	assert.Equal(t, 3, history.Len())
	assert.Equal(t, []int{1, 2, 3}, history.Epochs())
	assert.Empty(t, f.user.loaded, "restore hooks must not run on a fresh start")
	assert.Empty(t, f.scheduler.loaded)

	out := f.out.String()
	assert.Contains(t, out, "Number of model parameters: 22")
	assert.Contains(t, out, "|-------- Epoch 000001 Lr=0.010000 ----------|")
	assert.Contains(t, out, "|-------- Epoch 000003 Lr=0.010000 ----------|")
}

func TestRunResumes(t *testing.T) {
	f := newFixture(t)
	cmd := f.command(t, 5)

	hidden := training.NewHiddenState()
	hidden.Optimizer = sgdState(t)
	hidden.Set("scheduler/last_epoch", 3)

	f.expectStreaming()
	gomock.InOrder(
		f.storage.EXPECT().ResumeLearning(gomock.Any()).Return(3, hidden, nil),
		f.storage.EXPECT().Checkpoint(4, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		f.storage.EXPECT().Checkpoint(5, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
	)

	history, err := cmd.Run()
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, history.Epochs())

	for _, r := range []*hookRecorder{f.scheduler, f.user, f.streaming} {
		require.Len(t, r.loaded, 1, r.name)
		assert.Same(t, hidden, r.loaded[0])
	}
	// Restore happens before anything else touches the callbacks
	assert.Equal(t, []string{"scheduler:load_state", "user:load_state", "streaming:load_state", "scheduler:train_begin"}, f.journal.entries[:4])
	assert.Contains(t, f.journal.entries, "user:epoch_begin:4")
	assert.NotContains(t, f.journal.entries, "user:epoch_begin:3")
}

func TestRunNothingLeftToTrain(t *testing.T) {
	for _, last := range []int{3, 4} {
		t.Run(fmt.Sprintf("last=%d", last), func(t *testing.T) {
			f := newFixture(t)
			cmd := f.command(t, 3)

			hidden := training.NewHiddenState()
			hidden.Optimizer = sgdState(t)
			f.expectStreaming()
			f.storage.EXPECT().ResumeLearning(gomock.Any()).Return(last, hidden, nil)

			history, err := cmd.Run()
			require.NoError(t, err)
			assert.Equal(t, 0, history.Len())
			assert.Equal(t, []string{
				"scheduler:load_state", "user:load_state", "streaming:load_state",
				"scheduler:train_begin", "user:train_begin", "streaming:train_begin",
				"scheduler:train_end", "user:train_end", "streaming:train_end",
			}, f.journal.entries)
		})
	}
}

func TestRunCallbackOrder(t *testing.T) {
	f := newFixture(t)
	cmd := f.command(t, 1)

	f.expectStreaming()
	f.storage.EXPECT().ResumeLearning(gomock.Any()).Return(0, nil, nil)
	f.storage.EXPECT().Checkpoint(1, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := cmd.Run()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"scheduler:train_begin", "user:train_begin", "streaming:train_begin",
		"scheduler:epoch_begin:1", "user:epoch_begin:1", "streaming:epoch_begin:1",
		"scheduler:epoch_end:1", "user:epoch_end:1", "streaming:epoch_end:1",
		"scheduler:train_end", "user:train_end", "streaming:train_end",
	}, f.journal.entries)
}

func TestRunCheckpointReceivesEpochState(t *testing.T) {
	f := newFixture(t)
	cmd := f.command(t, 1)

	f.expectStreaming()
	f.storage.EXPECT().ResumeLearning(gomock.Any()).Return(0, nil, nil)
	f.storage.EXPECT().Checkpoint(1, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(epoch int, result *training.EpochResult, model training.Model, opt optimizer.Optimizer, callbacks *training.CallbackList) error {
			assert.Equal(t, 1, result.Epoch)
			_, ok := result.Get("val:loss")
			assert.True(t, ok)
			assert.Equal(t, "MLPClassifier", model.Name())
			assert.Positive(t, opt.StepCount())
			assert.Equal(t, []string{"scheduler", "user", "stateless", "streaming"}, callbacks.Names())
			return nil
		})

	_, err := cmd.Run()
	require.NoError(t, err)
}

func TestRunReturnsCollaboratorErrorsUnwrapped(t *testing.T) {
	boom := errors.New("boom")

	t.Run("resume", func(t *testing.T) {
		f := newFixture(t)
		cmd := f.command(t, 2)
		f.expectStreaming()
		f.storage.EXPECT().ResumeLearning(gomock.Any()).Return(0, nil, boom)

		_, err := cmd.Run()
		assert.True(t, err == boom, "got %v", err)
		assert.Empty(t, f.journal.entries)
	})

	t.Run("checkpoint", func(t *testing.T) {
		f := newFixture(t)
		cmd := f.command(t, 3)
		f.expectStreaming()
		f.storage.EXPECT().ResumeLearning(gomock.Any()).Return(0, nil, nil)
		f.storage.EXPECT().Checkpoint(1, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		f.storage.EXPECT().Checkpoint(2, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(boom)

		_, err := cmd.Run()
		assert.True(t, err == boom, "got %v", err)
		assert.NotContains(t, f.journal.entries, "user:train_end")
	})

	t.Run("scheduler", func(t *testing.T) {
		f := newFixture(t)
		cmd := f.command(t, 3, WithScheduler(func(optimizer.Optimizer) (training.Callback, error) { return nil, boom }))

		_, err := cmd.Run()
		assert.True(t, err == boom, "got %v", err)
	})

	t.Run("optimizer restore", func(t *testing.T) {
		f := newFixture(t)
		cmd := f.command(t, 3)
		hidden := training.NewHiddenState()
		hidden.Optimizer = &optimizer.State{Type: "Adam"}
		f.expectStreaming()
		f.storage.EXPECT().ResumeLearning(gomock.Any()).Return(1, hidden, nil)

		_, err := cmd.Run()
		require.Error(t, err)
		assert.Empty(t, f.journal.entries, "callbacks are not restored after the optimizer fails")
	})
}

func TestRunUnsupportedDevice(t *testing.T) {
	f := newFixture(t)
	f.storage.EXPECT().SetCheckpointStrategy(gomock.Any())
	cmd, err := New(ModelConfig{Device: "cuda", Epochs: 1}, newModel(t), newSource(t),
		optimizer.NewSGDFactory(optimizer.DefaultSGDConfig()), f.storage, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = cmd.Run()
	require.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	f := newFixture(t)
	sgd := optimizer.NewSGDFactory(optimizer.DefaultSGDConfig())

	// The mock has no expectations, so New must fail before touching storage
	_, err := New(ModelConfig{Epochs: 1}, newModel(t), newSource(t), sgd, f.storage,
		WithCheckpoint(checkpoints.Config{Frequency: -1, MetricMode: "min"}))
	require.Error(t, err)

	_, err = New(ModelConfig{Epochs: 1}, nil, newSource(t), sgd, f.storage)
	require.Error(t, err)
	_, err = New(ModelConfig{Epochs: 1}, newModel(t), newSource(t), sgd, nil)
	require.Error(t, err)
}
