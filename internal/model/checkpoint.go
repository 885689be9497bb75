package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Checkpoint is an owned copy of a network's weights. It never aliases the
// network it was taken from, so later in-place updates leave it untouched.
type Checkpoint struct {
	w1 *mat.Dense
	b1 []float64
	w2 *mat.Dense
	b2 []float64
}

// NewCheckpoint allocates a buffer shaped like n and captures its current
// values.
func (n *Network) NewCheckpoint() *Checkpoint {
	c := &Checkpoint{
		w1: mat.NewDense(n.inputSize, n.hiddenSize, nil),
		b1: make([]float64, n.hiddenSize),
		w2: mat.NewDense(n.hiddenSize, n.outputSize, nil),
		b2: make([]float64, n.outputSize),
	}
	c.Capture(n)
	return c
}

// Capture overwrites the checkpoint with n's current values.
func (c *Checkpoint) Capture(n *Network) {
	c.w1.Copy(n.w1)
	copy(c.b1, n.b1)
	c.w2.Copy(n.w2)
	copy(c.b2, n.b2)
}

// Restore overwrites n's weights with the checkpoint values.
func (n *Network) Restore(c *Checkpoint) {
	n.w1.Copy(c.w1)
	copy(n.b1, c.b1)
	n.w2.Copy(c.w2)
	copy(n.b2, c.b2)
}

// State is a flat, owned copy of a network's numeric state. W1 and W2 are
// row-major (input-major and hidden-major respectively).
type State struct {
	InputSize  int
	HiddenSize int
	OutputSize int
	W1         []float64
	B1         []float64
	W2         []float64
	B2         []float64
}

// State returns a deep copy of the network's sizes and parameters.
func (n *Network) State() State {
	return State{
		InputSize:  n.inputSize,
		HiddenSize: n.hiddenSize,
		OutputSize: n.outputSize,
		W1:         flatten(n.w1),
		B1:         append([]float64(nil), n.b1...),
		W2:         flatten(n.w2),
		B2:         append([]float64(nil), n.b2...),
	}
}

// FromState rebuilds a network from s. The slices are copied.
func FromState(s State) (*Network, error) {
	if s.InputSize <= 0 || s.HiddenSize <= 0 || s.OutputSize <= 0 {
		return nil, fmt.Errorf("%w: sizes must be positive (got %d/%d/%d)",
			ErrDimension, s.InputSize, s.HiddenSize, s.OutputSize)
	}
	checks := []struct {
		name      string
		got, want int
	}{
		{"w1", len(s.W1), s.InputSize * s.HiddenSize},
		{"b1", len(s.B1), s.HiddenSize},
		{"w2", len(s.W2), s.HiddenSize * s.OutputSize},
		{"b2", len(s.B2), s.OutputSize},
	}
	for _, c := range checks {
		if c.got != c.want {
			return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrDimension, c.name, c.got, c.want)
		}
	}
	return &Network{
		inputSize:  s.InputSize,
		hiddenSize: s.HiddenSize,
		outputSize: s.OutputSize,
		w1:         mat.NewDense(s.InputSize, s.HiddenSize, append([]float64(nil), s.W1...)),
		b1:         append([]float64(nil), s.B1...),
		w2:         mat.NewDense(s.HiddenSize, s.OutputSize, append([]float64(nil), s.W2...)),
		b2:         append([]float64(nil), s.B2...),
	}, nil
}

func flatten(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}
