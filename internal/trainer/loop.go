package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"symbolnet/internal/metrics"
	"symbolnet/internal/model"
)

// ErrNoTrainingData is returned when there is nothing to train on.
var ErrNoTrainingData = errors.New("trainer: no training data")

// Hyperparameters configures Train.
type Hyperparameters struct {
	Epochs         int
	LearningRate   float64
	DropoutRate    float64
	L2             float64
	LabelSmoothing float64
	// Patience stops training after this many epochs without a new best
	// loss. Zero disables early stopping.
	Patience int
	// DecayEvery multiplies the learning rate by DecayFactor every N epochs.
	// Zero disables decay.
	DecayEvery  int
	DecayFactor float64
	LogEvery    int
	Logger      *log.Logger
	// OnEpoch, when set, is called after every finished epoch.
	OnEpoch func(EpochStats)
}

// DefaultHyperparameters mirrors the default run configuration.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		Epochs:         600,
		LearningRate:   0.01,
		DropoutRate:    0.2,
		L2:             0.001,
		LabelSmoothing: 0.1,
		Patience:       30,
		DecayEvery:     100,
		DecayFactor:    0.9,
		LogEvery:       10,
	}
}

// EpochStats describes one finished epoch.
type EpochStats struct {
	Epoch        int
	AvgLoss      float64
	BestLoss     float64
	LearningRate float64
	Improved     bool
}

// Result contains training statistics.
type Result struct {
	RunID             string
	Epochs            int
	BestEpoch         int
	BestLoss          float64
	FinalLearningRate float64
	StoppedEarly      bool
	LossHistory       []float64
	Duration          time.Duration
}

func (hp *Hyperparameters) validate() error {
	if hp.Epochs <= 0 {
		return fmt.Errorf("trainer: epochs must be > 0 (got %d)", hp.Epochs)
	}
	if hp.LearningRate < 0 {
		return fmt.Errorf("trainer: learning rate must be >= 0 (got %g)", hp.LearningRate)
	}
	if err := model.ValidateDropout(hp.DropoutRate); err != nil {
		return err
	}
	if hp.Patience < 0 || hp.DecayEvery < 0 {
		return errors.New("trainer: patience and decay interval must be >= 0")
	}
	if hp.DecayEvery > 0 && (hp.DecayFactor <= 0 || hp.DecayFactor > 1) {
		return fmt.Errorf("trainer: decay factor must be in (0, 1] (got %g)", hp.DecayFactor)
	}
	if hp.LogEvery <= 0 {
		hp.LogEvery = 10
	}
	if hp.Logger == nil {
		hp.Logger = log.Default()
	}
	return nil
}

// Train fits net to examples with per-example SGD. The examples slice is
// shuffled in place every epoch. When the loop ends, whether by running out
// of epochs, by early stopping or because ctx was cancelled, net holds the
// weights captured at the epoch with the lowest average loss.
//
// ctx is only checked between epochs; a cancelled run returns the partial
// result together with ctx.Err().
func Train(ctx context.Context, net *model.Network, examples []model.Example, hp Hyperparameters, rng model.Rand) (*Result, error) {
	if len(examples) == 0 {
		return nil, ErrNoTrainingData
	}
	if err := hp.validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("trainer: nil random source")
	}
	for i, ex := range examples {
		if len(ex.Input) != net.InputSize() || len(ex.Target) != net.OutputSize() {
			return nil, fmt.Errorf("example %d: %w: input %d target %d, network %d/%d",
				i, model.ErrDimension, len(ex.Input), len(ex.Target), net.InputSize(), net.OutputSize())
		}
	}

	res := &Result{
		RunID:       uuid.NewString(),
		BestLoss:    math.Inf(1),
		LossHistory: make([]float64, 0, hp.Epochs),
	}
	started := time.Now()
	best := net.NewCheckpoint()
	noImprovement := 0
	lr := hp.LearningRate
	var window metrics.Window

	finish := func() {
		if res.BestEpoch > 0 {
			net.Restore(best)
		}
		res.FinalLearningRate = lr
		res.Duration = time.Since(started)
	}

	for epoch := 1; epoch <= hp.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			finish()
			return res, err
		}

		epochStart := time.Now()
		shuffle(examples, rng)
		step := model.Step{
			LearningRate:   lr,
			L2:             hp.L2,
			LabelSmoothing: hp.LabelSmoothing,
			DropoutRate:    hp.DropoutRate,
		}
		sumLoss := 0.0
		for _, ex := range examples {
			loss, err := net.TrainExample(ex, step, rng)
			if err != nil {
				finish()
				return res, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			sumLoss += loss
		}
		avgLoss := sumLoss / float64(len(examples))
		res.Epochs = epoch
		res.LossHistory = append(res.LossHistory, avgLoss)
		window.Record(len(examples), time.Since(epochStart), avgLoss)

		improved := avgLoss < res.BestLoss
		if improved {
			res.BestLoss = avgLoss
			res.BestEpoch = epoch
			noImprovement = 0
			best.Capture(net)
		} else {
			noImprovement++
		}

		if hp.OnEpoch != nil {
			hp.OnEpoch(EpochStats{
				Epoch:        epoch,
				AvgLoss:      avgLoss,
				BestLoss:     res.BestLoss,
				LearningRate: lr,
				Improved:     improved,
			})
		}

		if epoch%hp.LogEvery == 0 {
			snap := window.Snapshot()
			hp.Logger.Printf("run=%s epoch=%d loss=%.4f best=%.4f window_epochs=%d window_best=%.4f lr=%.5f examples_per_sec=%.1f epoch_ms=%.2f",
				res.RunID,
				epoch,
				snap.LastLoss,
				res.BestLoss,
				snap.Epochs,
				snap.WindowBest,
				lr,
				snap.ExamplesPerSec,
				snap.AvgEpochMS,
			)
		}

		if hp.Patience > 0 && noImprovement >= hp.Patience {
			res.StoppedEarly = true
			hp.Logger.Printf("run=%s early_stop epoch=%d best_epoch=%d best=%.4f",
				res.RunID, epoch, res.BestEpoch, res.BestLoss)
			break
		}

		if hp.DecayEvery > 0 && epoch%hp.DecayEvery == 0 {
			lr *= hp.DecayFactor
		}
	}

	finish()
	return res, nil
}

// shuffle swaps every position with a uniformly chosen one.
func shuffle(examples []model.Example, rng model.Rand) {
	n := len(examples)
	for i := range examples {
		j := rng.Intn(n)
		examples[i], examples[j] = examples[j], examples[i]
	}
}
