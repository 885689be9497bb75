package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"symbolnet/internal/augment"
	"symbolnet/internal/config"
	"symbolnet/internal/dataset"
	"symbolnet/internal/inference"
	"symbolnet/internal/preprocess"
	"symbolnet/internal/store"
	"symbolnet/internal/trainer"
)

const usage = `usage: symbolnet <command> [flags]

commands:
  train    train a model from a labeled dataset and save it
  predict  classify a drawing (PNG/JPEG)
  eval     report accuracy of a saved model on a labeled dataset
  record   append a labeled drawing to the dataset`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "train":
		err = runTrain(ctx, args)
	case "predict":
		err = runPredict(args)
	case "eval":
		err = runEval(ctx, args)
	case "record":
		err = runRecord(args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

type commonFlags struct {
	cfgPath     *string
	datasetPath *string
	modelPath   *string
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return fs, commonFlags{
		cfgPath:     fs.String("config", "", "Path to YAML config (defaults are used when empty)"),
		datasetPath: fs.String("dataset", "", "Override dataset file or directory"),
		modelPath:   fs.String("model", "", "Override model path"),
	}
}

func loadConfig(c commonFlags, o config.Overrides) (*config.Config, error) {
	cfg := config.Default()
	if *c.cfgPath != "" {
		loaded, err := config.Load(*c.cfgPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	o.DatasetPath = *c.datasetPath
	o.ModelPath = *c.modelPath
	cfg.ApplyOverrides(o)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runTrain(ctx context.Context, args []string) error {
	fs, common := newFlagSet("train")
	epochs := fs.Int("epochs", 0, "Number of training epochs")
	lr := fs.Float64("lr", 0, "Initial learning rate")
	numWorkers := fs.Int("num-workers", 0, "Number of dataset loader workers")
	seed := fs.Int64("seed", 0, "PRNG seed")
	logEvery := fs.Int("log-every", 0, "Log every N epochs")
	fs.Parse(args)

	o := config.Overrides{
		Epochs:       *epochs,
		LearningRate: *lr,
		NumWorkers:   *numWorkers,
		LogEvery:     *logEvery,
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			o.Seed = seed
		}
	})
	cfg, err := loadConfig(common, o)
	if err != nil {
		return err
	}

	t := cfg.Training
	runCfg := trainer.RunConfig{
		DatasetPath: cfg.DatasetPath,
		ModelPath:   cfg.ModelPath,
		GridSize:    cfg.GridSize,
		HiddenSize:  cfg.HiddenSize,
		NumWorkers:  cfg.NumWorkers,
		Seed:        cfg.Seed,
		Augment:     cfg.Augment.Enabled,
		AugmentOpt: augment.Options{
			Shifts:   cfg.Augment.Shifts,
			MaxShift: cfg.Augment.MaxShift,
			Noisy:    cfg.Augment.Noisy,
			FlipProb: cfg.Augment.FlipProb,
		},
		Hyper: trainer.Hyperparameters{
			Epochs:         t.Epochs,
			LearningRate:   t.LearningRate,
			DropoutRate:    t.DropoutRate,
			L2:             t.L2,
			LabelSmoothing: t.LabelSmoothing,
			Patience:       t.Patience,
			DecayEvery:     t.DecayEvery,
			DecayFactor:    t.DecayFactor,
			LogEvery:       cfg.LogEvery,
		},
	}

	out := <-trainer.Background(ctx, runCfg)
	if out.Err != nil {
		return out.Err
	}
	log.Printf("trained run=%s best_loss=%.4f model=%s", out.Result.RunID, out.Result.BestLoss, cfg.ModelPath)
	return nil
}

func newPredictor(cfg *config.Config) (*inference.Predictor, error) {
	net, err := store.LoadFile(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	if want := cfg.GridSize * cfg.GridSize; net.InputSize() != want {
		return nil, fmt.Errorf("model expects %d inputs but grid_size %d gives %d", net.InputSize(), cfg.GridSize, want)
	}
	p := inference.NewPredictor(net)
	p.EntropyThreshold = cfg.Inference.EntropyThreshold
	p.ConfidenceThreshold = cfg.Inference.ConfidenceThreshold
	return p, nil
}

func runPredict(args []string) error {
	fs, common := newFlagSet("predict")
	imagePath := fs.String("image", "", "Drawing to classify")
	fs.Parse(args)
	if *imagePath == "" {
		return fmt.Errorf("-image is required")
	}

	cfg, err := loadConfig(common, config.Overrides{})
	if err != nil {
		return err
	}
	p, err := newPredictor(cfg)
	if err != nil {
		return err
	}
	input, err := preprocess.VectorFile(*imagePath, cfg.GridSize)
	if err != nil {
		return err
	}
	res, err := p.Predict(input)
	if err != nil {
		return err
	}
	if res.Rejected() {
		fmt.Printf("not recognized (best=%s confidence=%.3f entropy=%.3f)\n", res.Label, res.Confidence, res.Entropy)
		return nil
	}
	fmt.Printf("%s confidence=%.3f entropy=%.3f\n", res.Label, res.Confidence, res.Entropy)
	return nil
}

func runEval(ctx context.Context, args []string) error {
	fs, common := newFlagSet("eval")
	verbose := fs.Bool("v", false, "Log every prediction")
	fs.Parse(args)

	cfg, err := loadConfig(common, config.Overrides{})
	if err != nil {
		return err
	}
	p, err := newPredictor(cfg)
	if err != nil {
		return err
	}
	ds, err := dataset.Load(ctx, dataset.LoadOptions{
		Root:       cfg.DatasetPath,
		GridSize:   cfg.GridSize,
		NumWorkers: cfg.NumWorkers,
	})
	if err != nil {
		return err
	}
	var logger *log.Logger
	if *verbose {
		logger = log.Default()
	}
	report, err := inference.Evaluate(p, ds, logger)
	if err != nil {
		return err
	}
	if report.Total == 0 {
		return fmt.Errorf("no labeled rows in %s", cfg.DatasetPath)
	}
	log.Printf("total=%d correct=%d rejected=%d accuracy=%.2f", report.Total, report.Correct, report.Rejected, report.Accuracy())
	for i, row := range report.Confusion {
		log.Printf("confusion true=%s predicted=%v", dataset.LabelName(i), row)
	}
	return nil
}

func runRecord(args []string) error {
	fs, common := newFlagSet("record")
	imagePath := fs.String("image", "", "Drawing to record")
	label := fs.String("label", "", "Symbol shown in the drawing (e, l or f)")
	fs.Parse(args)
	if *imagePath == "" {
		return fmt.Errorf("-image is required")
	}
	if dataset.LabelIndex(*label) < 0 {
		return fmt.Errorf("-label must be one of %v (got %q)", dataset.Labels, *label)
	}

	cfg, err := loadConfig(common, config.Overrides{})
	if err != nil {
		return err
	}
	input, err := preprocess.VectorFile(*imagePath, cfg.GridSize)
	if err != nil {
		return err
	}
	if err := dataset.AppendFile(cfg.DatasetPath, *label, input); err != nil {
		return err
	}
	log.Printf("recorded label=%s dataset=%s", *label, cfg.DatasetPath)
	return nil
}
