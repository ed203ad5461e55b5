package training

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder logs every hook it receives into a shared journal
type recorder struct {
	name    string
	journal *[]string
	failOn  string
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) note(hook string) error {
	*r.journal = append(*r.journal, r.name+"."+hook)
	if hook == r.failOn {
		return errors.New(r.name + " failed")
	}
	return nil
}

func (r *recorder) OnTrainBegin() error { return r.note("train_begin") }

func (r *recorder) OnTrainEnd() error { return r.note("train_end") }

func (r *recorder) OnEpochBegin(*EpochInfo) error { return r.note("epoch_begin") }

func (r *recorder) OnEpochEnd(*EpochInfo) error { return r.note("epoch_end") }

func (r *recorder) LoadState(*HiddenState) error { return r.note("load_state") }

func (r *recorder) WriteState(h *HiddenState) error {
	h.Set(r.name+"/seen", true)
	return r.note("write_state")
}

// nameOnly implements no optional hooks
type nameOnly string

func (n nameOnly) Name() string { return string(n) }

func TestCallbackListOrder(t *testing.T) {
	var journal []string
	list := NewCallbackList(
		&recorder{name: "sched", journal: &journal},
		[]Callback{&recorder{name: "user", journal: &journal}, nameOnly("quiet")},
		[]Callback{&recorder{name: "stream", journal: &journal}},
	)

	assert.Equal(t, []string{"sched", "user", "quiet", "stream"}, list.Names())
	assert.Equal(t, 4, list.Len())

	require.NoError(t, list.OnTrainBegin())
	require.NoError(t, list.OnEpochEnd(&EpochInfo{Epoch: 1}))
	assert.Equal(t, []string{
		"sched.train_begin", "user.train_begin", "stream.train_begin",
		"sched.epoch_end", "user.epoch_end", "stream.epoch_end",
	}, journal)
}

func TestCallbackListNilScheduler(t *testing.T) {
	list := NewCallbackList(nil, []Callback{nil, nameOnly("a")}, nil)
	assert.Equal(t, []string{"a"}, list.Names())
	assert.NoError(t, list.OnTrainEnd())
}

func TestCallbackListStopsAtFirstError(t *testing.T) {
	var journal []string
	list := NewCallbackList(nil, []Callback{
		&recorder{name: "first", journal: &journal, failOn: "epoch_begin"},
		&recorder{name: "second", journal: &journal},
	}, nil)

	err := list.OnEpochBegin(&EpochInfo{Epoch: 1})
	require.EqualError(t, err, "first failed")
	assert.Equal(t, []string{"first.epoch_begin"}, journal)
}

func TestCallbackListState(t *testing.T) {
	var journal []string
	list := NewCallbackList(&recorder{name: "sched", journal: &journal}, []Callback{nameOnly("plain")}, nil)

	state := NewHiddenState()
	require.NoError(t, list.WriteState(state))
	seen, ok := state.Bool("sched/seen")
	assert.True(t, ok)
	assert.True(t, seen)

	require.NoError(t, list.LoadState(state))
	assert.Equal(t, []string{"sched.write_state", "sched.load_state"}, journal)
}

func TestHiddenStateAccessors(t *testing.T) {
	h := NewHiddenState()
	h.Set("a", int64(7))
	h.Set("b", uint8(3))
	h.Set("c", 2.5)
	h.Set("d", "text")

	v, ok := h.Int("a")
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	f, ok := h.Float("b")
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	v, ok = h.Int("c")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	s, ok := h.String("d")
	assert.True(t, ok)
	assert.Equal(t, "text", s)

	_, ok = h.Float("d")
	assert.False(t, ok)
	assert.False(t, h.Has("missing"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, h.Keys())
}
