package metrics

import "time"

// Window accumulates per-epoch training stats between log lines.
type Window struct {
	examples int
	elapsed  time.Duration
	epochs   int
	lastLoss float64
	bestLoss float64
	hasBest  bool
}

// Record adds one finished epoch to the window.
func (w *Window) Record(examples int, elapsed time.Duration, loss float64) {
	w.examples += examples
	w.elapsed += elapsed
	w.epochs++
	w.lastLoss = loss
	if !w.hasBest || loss < w.bestLoss {
		w.bestLoss = loss
		w.hasBest = true
	}
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Epochs: w.epochs}
	if w.elapsed > 0 {
		snap.ExamplesPerSec = float64(w.examples) / w.elapsed.Seconds()
	}
	if w.epochs > 0 {
		snap.AvgEpochMS = (w.elapsed.Seconds() * 1000) / float64(w.epochs)
	}
	snap.LastLoss = w.lastLoss
	snap.WindowBest = w.bestLoss

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Epochs         int
	ExamplesPerSec float64
	AvgEpochMS     float64
	LastLoss       float64
	WindowBest     float64
}
