package model

import (
	"errors"
	"fmt"
)

// Example pairs an input vector with its target distribution.
type Example struct {
	Input  []float64
	Target []float64
}

// NewExample builds an example with a one-hot target for class.
func NewExample(input []float64, class, numClasses int) (Example, error) {
	if class < 0 || class >= numClasses {
		return Example{}, fmt.Errorf("%w: class %d outside [0,%d)", ErrDimension, class, numClasses)
	}
	target := make([]float64, numClasses)
	target[class] = 1
	return Example{Input: append([]float64(nil), input...), Target: target}, nil
}

// Clone returns a deep copy of the example.
func (e Example) Clone() Example {
	return Example{
		Input:  append([]float64(nil), e.Input...),
		Target: append([]float64(nil), e.Target...),
	}
}

// Rand is the random source threaded through initialization, dropout,
// shuffling and augmentation. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Mode selects how the forward pass treats the hidden layer. Rand is only
// consulted when Dropout is set with a positive rate.
type Mode struct {
	Dropout     bool
	DropoutRate float64
	Rand        Rand
}

// Inference is the deterministic forward mode.
var Inference = Mode{}

// Step carries the hyperparameters of a single backward pass.
type Step struct {
	LearningRate   float64
	L2             float64
	LabelSmoothing float64
	DropoutRate    float64
}

var (
	// ErrDimension reports vectors whose length does not match the network.
	ErrDimension = errors.New("model: dimension mismatch")
	// ErrDropoutRate reports a dropout rate outside [0, 1).
	ErrDropoutRate = errors.New("model: dropout rate must be in [0, 1)")
)

// ValidateDropout checks that rate keeps at least some hidden units alive.
func ValidateDropout(rate float64) error {
	if rate < 0 || rate >= 1 {
		return fmt.Errorf("%w (got %g)", ErrDropoutRate, rate)
	}
	return nil
}
