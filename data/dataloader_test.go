package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCountingDataset(t *testing.T, n int) *InMemoryDataset {
	t.Helper()
	features := make([][]float64, n)
	labels := make([]int, n)
	for i := range features {
		features[i] = []float64{float64(i), float64(-i)}
		labels[i] = i % 2
	}
	ds, err := NewInMemoryDataset(features, labels, 2)
	require.NoError(t, err)
	return ds
}

func TestDataLoaderBatchesWithoutShuffle(t *testing.T) {
	ds := newCountingDataset(t, 5)
	dl, err := NewDataLoader(ds, 2, false, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, dl.Len())

	dl.Reset()
	var sizes []int
	var firsts []float64
	for dl.HasNext() {
		batch, err := dl.Next()
		require.NoError(t, err)
		sizes = append(sizes, batch.Size())
		firsts = append(firsts, batch.X.At(0, 0))
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []float64{0, 2, 4}, firsts)

	batch, err := dl.Next()
	require.NoError(t, err)
	assert.Nil(t, batch, "exhausted loader returns nil batch")
}

func TestDataLoaderShuffleCoversEverySample(t *testing.T) {
	ds := newCountingDataset(t, 10)
	dl, err := NewDataLoader(ds, 3, true, 42)
	require.NoError(t, err)

	dl.Reset()
	seen := map[float64]bool{}
	for {
		batch, err := dl.Next()
		require.NoError(t, err)
		if batch == nil {
			break
		}
		for r := 0; r < batch.Size(); r++ {
			seen[batch.X.At(r, 0)] = true
		}
	}
	assert.Len(t, seen, 10)
}

func TestDataLoaderValidation(t *testing.T) {
	_, err := NewDataLoader(nil, 2, false, 1)
	require.Error(t, err)
	_, err = NewDataLoader(newCountingDataset(t, 2), 0, false, 1)
	require.Error(t, err)
}

func TestInMemoryDatasetValidation(t *testing.T) {
	_, err := NewInMemoryDataset([][]float64{{1}, {2, 3}}, []int{0, 0}, 1)
	require.Error(t, err, "ragged features")
	_, err = NewInMemoryDataset([][]float64{{1}}, []int{3}, 2)
	require.Error(t, err, "label out of range")
	_, err = NewInMemoryDataset([][]float64{{1}}, []int{0, 1}, 2)
	require.Error(t, err, "length mismatch")
}

func TestSyntheticDatasets(t *testing.T) {
	spiral, err := Spiral(90, 3, 0.1, 7)
	require.NoError(t, err)
	assert.Equal(t, 90, spiral.Len())
	assert.Equal(t, 2, spiral.Features())
	assert.Equal(t, 3, spiral.Classes())

	blobs, err := Blobs(40, 4, 5, 7)
	require.NoError(t, err)
	x, label, err := blobs.Get(5)
	require.NoError(t, err)
	assert.Len(t, x, 5)
	assert.Equal(t, 1, label)

	_, err = Blobs(0, 1, 1, 1)
	require.Error(t, err)
}

func TestSplitAndSource(t *testing.T) {
	ds := newCountingDataset(t, 10)
	train, val, err := SplitTrainValidation(ds, 0.3, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, train.Len())
	assert.Equal(t, 3, val.Len())

	_, _, err = SplitTrainValidation(ds, 1.0, 3)
	require.Error(t, err)

	source, err := NewSourceFromDataset(ds, SourceConfig{BatchSize: 4, ValidationSplit: 0})
	require.NoError(t, err)
	assert.Nil(t, source.Validation(), "no validation loader without a split")
	assert.Equal(t, 3, source.Train().Len())

	source, err = NewSourceFromDataset(ds, DefaultSourceConfig())
	require.NoError(t, err)
	require.NotNil(t, source.Validation())
	assert.Equal(t, 2, source.Validation().Samples())
}
