// Package inference classifies pixel vectors with a trained network and
// reports how much the prediction can be trusted.
package inference

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"symbolnet/internal/dataset"
	"symbolnet/internal/model"
)

// Default thresholds.
const (
	DefaultEntropyThreshold    = 0.7
	DefaultConfidenceThreshold = 0.7
)

// ErrInvalidInput reports an input vector whose length does not match the
// network.
var ErrInvalidInput = errors.New("inference: invalid input")

// Result is the outcome of one prediction.
type Result struct {
	Class      int
	Label      string
	Confidence float64
	// Entropy is the normalized entropy of Probabilities, in [0, 1].
	Entropy       float64
	Uncertain     bool
	LowConfidence bool
	Probabilities []float64
}

// Rejected reports whether either trust check failed.
func (r *Result) Rejected() bool {
	return r.Uncertain || r.LowConfidence
}

// Predictor runs the deterministic forward pass of a network. The two
// thresholds are independent: Uncertain compares entropy, LowConfidence
// compares the winning probability.
type Predictor struct {
	Net                 *model.Network
	EntropyThreshold    float64
	ConfidenceThreshold float64
}

// NewPredictor returns a predictor using the default thresholds.
func NewPredictor(net *model.Network) *Predictor {
	return &Predictor{
		Net:                 net,
		EntropyThreshold:    DefaultEntropyThreshold,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// Predict classifies input. Dropout is never applied.
func (p *Predictor) Predict(input []float64) (*Result, error) {
	if p.Net == nil {
		return nil, errors.New("inference: no model loaded")
	}
	if len(input) != p.Net.InputSize() {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrInvalidInput, len(input), p.Net.InputSize())
	}
	pass, err := p.Net.Forward(input, model.Inference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return p.judge(pass.Probs), nil
}

func (p *Predictor) judge(probs []float64) *Result {
	class := floats.MaxIdx(probs)
	h := NormalizedEntropy(probs)
	return &Result{
		Class:         class,
		Label:         dataset.LabelName(class),
		Confidence:    probs[class],
		Entropy:       h,
		Uncertain:     h > p.EntropyThreshold,
		LowConfidence: probs[class] < p.ConfidenceThreshold,
		Probabilities: probs,
	}
}

// NormalizedEntropy returns -sum(p*log p)/log(K), skipping zero terms. A
// single-class vector has zero entropy.
func NormalizedEntropy(probs []float64) float64 {
	if len(probs) < 2 {
		return 0
	}
	h := 0.0
	for _, v := range probs {
		if v > 0 {
			h -= v * math.Log(v)
		}
	}
	return h / math.Log(float64(len(probs)))
}
