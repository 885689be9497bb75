package trainer

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"symbolnet/internal/augment"
	"symbolnet/internal/dataset"
	"symbolnet/internal/model"
	"symbolnet/internal/store"
)

// RunConfig captures the knobs required by the training pipeline.
type RunConfig struct {
	DatasetPath string
	// ModelPath is where the trained model is saved. Empty skips saving.
	ModelPath  string
	GridSize   int
	HiddenSize int
	NumWorkers int
	Seed       int64
	Augment    bool
	AugmentOpt augment.Options
	Hyper      Hyperparameters
}

// Outcome is the final state of a background run.
type Outcome struct {
	Net    *model.Network
	Result *Result
	Err    error
}

// Run loads the dataset, optionally augments it, trains a fresh network
// and saves it. A single seeded source drives initialization, augmentation,
// shuffling and dropout, so equal configs give equal models.
func Run(ctx context.Context, cfg RunConfig) (*model.Network, *Result, error) {
	if cfg.GridSize <= 0 || cfg.HiddenSize <= 0 {
		return nil, nil, fmt.Errorf("trainer: grid and hidden sizes must be > 0 (got %d/%d)", cfg.GridSize, cfg.HiddenSize)
	}
	logger := cfg.Hyper.Logger
	if logger == nil {
		logger = log.Default()
	}

	ds, err := dataset.Load(ctx, dataset.LoadOptions{
		Root:       cfg.DatasetPath,
		GridSize:   cfg.GridSize,
		NumWorkers: cfg.NumWorkers,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Printf("dataset=%s examples=%d skipped=%d", cfg.DatasetPath, len(ds.Examples), ds.Skipped())
	if len(ds.Examples) == 0 {
		return nil, nil, ErrNoTrainingData
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	net, err := model.New(cfg.GridSize*cfg.GridSize, cfg.HiddenSize, dataset.NumClasses, rng)
	if err != nil {
		return nil, nil, err
	}

	examples := ds.Examples
	if cfg.Augment {
		examples, err = augment.Expand(examples, cfg.AugmentOpt, rng)
		if err != nil {
			return nil, nil, fmt.Errorf("augment: %w", err)
		}
		logger.Printf("augmented examples=%d", len(examples))
	}

	res, err := Train(ctx, net, examples, cfg.Hyper, rng)
	if err != nil {
		return nil, res, err
	}
	logger.Printf("run=%s done epochs=%d best_epoch=%d best=%.4f early_stop=%t duration=%s",
		res.RunID, res.Epochs, res.BestEpoch, res.BestLoss, res.StoppedEarly, res.Duration)

	if cfg.ModelPath != "" {
		if err := store.SaveFile(cfg.ModelPath, net); err != nil {
			return nil, res, err
		}
		logger.Printf("model saved path=%s", cfg.ModelPath)
	}
	return net, res, nil
}

// Background runs Run on its own goroutine and delivers the outcome on the
// returned channel, which is closed afterwards.
func Background(ctx context.Context, cfg RunConfig) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		net, res, err := Run(ctx, cfg)
		out <- Outcome{Net: net, Result: res, Err: err}
	}()
	return out
}
