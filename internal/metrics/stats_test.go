package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(64, 20*time.Millisecond, 1.2)
	w.Record(64, 40*time.Millisecond, 0.8)
	w.Record(64, 30*time.Millisecond, 0.9)
	snap := w.Snapshot()

	assert.Equal(t, 3, snap.Epochs)
	assert.InDelta(t, 2133.3333, snap.ExamplesPerSec, 1)
	assert.InDelta(t, 30.0, snap.AvgEpochMS, 1e-9)
	assert.Equal(t, 0.9, snap.LastLoss)
	assert.Equal(t, 0.8, snap.WindowBest)

	assert.Zero(t, w.examples)
	assert.Zero(t, w.epochs)
	assert.False(t, w.hasBest)
}

func TestEmptyWindowSnapshot(t *testing.T) {
	var w Window
	assert.Equal(t, Snapshot{}, w.Snapshot())
}
