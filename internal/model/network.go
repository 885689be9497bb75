package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	leakySlope = 0.01
	logEpsilon = 1e-7
)

// Network is a single hidden layer classifier with Leaky ReLU hidden units
// and a softmax output.
//
// w1 is inputSize x hiddenSize and w2 is hiddenSize x outputSize. Shapes are
// fixed at construction; training only mutates element values.
type Network struct {
	inputSize  int
	hiddenSize int
	outputSize int
	w1         *mat.Dense
	b1         []float64
	w2         *mat.Dense
	b2         []float64
}

// New constructs a network with scaled uniform weights and zero biases.
// Each weight is drawn from [-1, 1] and multiplied by sqrt(2/(fanIn+fanOut))
// of its matrix, so a fixed seed always yields the same network.
func New(inputSize, hiddenSize, outputSize int, rng Rand) (*Network, error) {
	if inputSize <= 0 || hiddenSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("%w: sizes must be positive (got %d/%d/%d)",
			ErrDimension, inputSize, hiddenSize, outputSize)
	}
	if rng == nil {
		return nil, errors.New("model: nil random source")
	}
	n := &Network{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		outputSize: outputSize,
		w1:         mat.NewDense(inputSize, hiddenSize, nil),
		b1:         make([]float64, hiddenSize),
		w2:         mat.NewDense(hiddenSize, outputSize, nil),
		b2:         make([]float64, outputSize),
	}
	initScaled(n.w1, rng)
	initScaled(n.w2, rng)
	return n, nil
}

func initScaled(m *mat.Dense, rng Rand) {
	rows, cols := m.Dims()
	scale := math.Sqrt(2 / float64(rows+cols))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, (rng.Float64()*2-1)*scale)
		}
	}
}

// InputSize returns the length of accepted input vectors.
func (n *Network) InputSize() int { return n.inputSize }

// HiddenSize returns the number of hidden units.
func (n *Network) HiddenSize() int { return n.hiddenSize }

// OutputSize returns the number of classes.
func (n *Network) OutputSize() int { return n.outputSize }

// Pass holds the intermediate values of one forward pass. The backward
// pass needs HiddenRaw, Hidden and Keep.
type Pass struct {
	Input     []float64
	HiddenRaw []float64
	Hidden    []float64
	Keep      []bool
	OutputRaw []float64
	Probs     []float64
}

// Forward runs the network on input. With mode.Dropout set and a positive
// rate, each hidden unit is kept with probability 1-rate and survivors are
// scaled by 1/(1-rate); otherwise every unit is kept unscaled.
func (n *Network) Forward(input []float64, mode Mode) (*Pass, error) {
	if len(input) == 0 || len(input) != n.inputSize {
		return nil, fmt.Errorf("%w: input length %d, want %d", ErrDimension, len(input), n.inputSize)
	}
	dropout := mode.Dropout && mode.DropoutRate > 0
	if dropout {
		if err := ValidateDropout(mode.DropoutRate); err != nil {
			return nil, err
		}
		if mode.Rand == nil {
			return nil, errors.New("model: dropout requires a random source")
		}
	}

	var hv mat.VecDense
	hv.MulVec(n.w1.T(), mat.NewVecDense(n.inputSize, input))
	hiddenRaw := hv.RawVector().Data
	floats.Add(hiddenRaw, n.b1)

	hidden := make([]float64, n.hiddenSize)
	keep := make([]bool, n.hiddenSize)
	invKeep := 1.0
	if dropout {
		invKeep = 1 / (1 - mode.DropoutRate)
	}
	for j, v := range hiddenRaw {
		a := leakyReLU(v)
		if dropout {
			if mode.Rand.Float64() < mode.DropoutRate {
				continue
			}
			a *= invKeep
		}
		keep[j] = true
		hidden[j] = a
	}

	var ov mat.VecDense
	ov.MulVec(n.w2.T(), mat.NewVecDense(n.hiddenSize, hidden))
	outputRaw := ov.RawVector().Data
	floats.Add(outputRaw, n.b2)

	return &Pass{
		Input:     input,
		HiddenRaw: hiddenRaw,
		Hidden:    hidden,
		Keep:      keep,
		OutputRaw: outputRaw,
		Probs:     Softmax(outputRaw),
	}, nil
}

// TrainExample runs one forward and backward pass on ex and applies plain
// SGD with L2 weight decay. Biases are not decayed. Hidden units dropped in
// this pass receive no update. It returns the example's cross-entropy loss.
func (n *Network) TrainExample(ex Example, step Step, rng Rand) (float64, error) {
	if len(ex.Target) == 0 || len(ex.Target) != n.outputSize {
		return 0, fmt.Errorf("%w: target length %d, want %d", ErrDimension, len(ex.Target), n.outputSize)
	}
	if err := ValidateDropout(step.DropoutRate); err != nil {
		return 0, err
	}
	pass, err := n.Forward(ex.Input, Mode{
		Dropout:     step.DropoutRate > 0,
		DropoutRate: step.DropoutRate,
		Rand:        rng,
	})
	if err != nil {
		return 0, err
	}

	target := SmoothTarget(ex.Target, step.LabelSmoothing)
	loss := crossEntropy(pass.Probs, target)

	dOut := make([]float64, n.outputSize)
	floats.SubTo(dOut, pass.Probs, target)

	lr, l2 := step.LearningRate, step.L2
	w2 := n.w2.RawMatrix()
	dHidden := make([]float64, n.hiddenSize)
	for j := 0; j < n.hiddenSize; j++ {
		if !pass.Keep[j] {
			continue
		}
		row := w2.Data[j*w2.Stride : j*w2.Stride+n.outputSize]
		dHidden[j] = floats.Dot(dOut, row)
		h := pass.Hidden[j]
		for k, g := range dOut {
			row[k] -= lr * (g*h + l2*row[k])
		}
	}
	floats.AddScaled(n.b2, -lr, dOut)

	w1 := n.w1.RawMatrix()
	for j := 0; j < n.hiddenSize; j++ {
		if !pass.Keep[j] {
			continue
		}
		grad := dHidden[j] * leakyReLUDeriv(pass.HiddenRaw[j])
		for i, x := range ex.Input {
			idx := i*w1.Stride + j
			w1.Data[idx] -= lr * (grad*x + l2*w1.Data[idx])
		}
		n.b1[j] -= lr * grad
	}
	return loss, nil
}

// Loss returns the cross-entropy of probs against target after label
// smoothing with epsilon.
func Loss(probs, target []float64, smoothing float64) float64 {
	return crossEntropy(probs, SmoothTarget(target, smoothing))
}

// SmoothTarget returns target*(1-eps) + eps/K. eps of 0 returns a copy.
func SmoothTarget(target []float64, eps float64) []float64 {
	out := make([]float64, len(target))
	if len(target) == 0 {
		return out
	}
	uniform := eps / float64(len(target))
	for k, t := range target {
		out[k] = t*(1-eps) + uniform
	}
	return out
}

func crossEntropy(probs, target []float64) float64 {
	loss := 0.0
	for k, t := range target {
		loss -= t * math.Log(probs[k]+logEpsilon)
	}
	return loss
}

// Softmax converts logits into a probability vector. The maximum logit is
// subtracted first, which keeps exp from overflowing and makes the result
// invariant to adding a constant to every logit.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	m := floats.Max(logits)
	for k, v := range logits {
		out[k] = math.Exp(v - m)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

func leakyReLU(x float64) float64 {
	if x > 0 {
		return x
	}
	return leakySlope * x
}

func leakyReLUDeriv(x float64) float64 {
	if x > 0 {
		return 1
	}
	return leakySlope
}
