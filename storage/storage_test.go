package storage

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-train/checkpoints"
	"github.com/tsawler/go-train/models"
	"github.com/tsawler/go-train/optimizer"
	"github.com/tsawler/go-train/training"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newModel(t *testing.T) *models.MLPClassifier {
	t.Helper()
	m, err := models.NewMLPClassifier(2, []int{4}, 2)
	require.NoError(t, err)
	return m
}

func newSGD(t *testing.T, m training.Model) optimizer.Optimizer {
	t.Helper()
	opt, err := optimizer.NewSGD(optimizer.DefaultSGDConfig(), m.Parameters())
	require.NoError(t, err)
	return opt
}

func newStrategy(t *testing.T, cfg checkpoints.Config) *checkpoints.ClassicStrategy {
	t.Helper()
	s, err := checkpoints.NewClassicStrategy(cfg)
	require.NoError(t, err)
	return s
}

func epochResult(epoch int, valLoss float64) *training.EpochResult {
	r := training.NewEpochResult(epoch, 0.1/float64(epoch))
	r.Set("train:loss", valLoss+0.1)
	r.Set("train:accuracy", 0.5)
	r.Set("val:loss", valLoss)
	r.Set("val:accuracy", 0.6)
	return r
}

func fill(m training.Model, v float64) {
	for _, p := range m.Parameters() {
		p.Value.Fill(v)
	}
}
