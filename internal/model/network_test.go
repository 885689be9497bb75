package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// constRand returns the same Float64 on every call.
type constRand float64

func (c constRand) Float64() float64 { return float64(c) }
func (c constRand) Intn(int) int     { return 0 }

func newTestNetwork(t *testing.T, in, hidden, out int, seed int64) *Network {
	t.Helper()
	n, err := New(in, hidden, out, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return n
}

func TestNewRejectsInvalidSizes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, dims := range [][3]int{{0, 4, 2}, {4, 0, 2}, {4, 4, 0}, {-1, 4, 2}} {
		_, err := New(dims[0], dims[1], dims[2], rng)
		assert.ErrorIs(t, err, ErrDimension, "dims %v", dims)
	}
}

func TestNewIsReproducibleAndScaled(t *testing.T) {
	a := newTestNetwork(t, 9, 5, 3, 42)
	b := newTestNetwork(t, 9, 5, 3, 42)
	require.Equal(t, a.State(), b.State())

	s := a.State()
	limit1 := math.Sqrt(2.0 / (9 + 5))
	for _, w := range s.W1 {
		assert.LessOrEqual(t, math.Abs(w), limit1)
	}
	limit2 := math.Sqrt(2.0 / (5 + 3))
	for _, w := range s.W2 {
		assert.LessOrEqual(t, math.Abs(w), limit2)
	}
	assert.Equal(t, make([]float64, 5), s.B1)
	assert.Equal(t, make([]float64, 3), s.B2)
}

func TestSoftmaxIsDistribution(t *testing.T) {
	n := newTestNetwork(t, 16, 8, 3, 7)
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 50; trial++ {
		input := make([]float64, 16)
		for i := range input {
			input[i] = float64(rng.Intn(2))
		}
		pass, err := n.Forward(input, Inference)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, floats.Sum(pass.Probs), 1e-5)
		for _, p := range pass.Probs {
			assert.GreaterOrEqual(t, p, 0.0)
		}
	}
}

func TestSoftmaxShiftInvariant(t *testing.T) {
	logits := []float64{1.5, -0.25, 3}
	base := Softmax(logits)
	for _, shift := range []float64{-100, -1, 0.5, 250} {
		shifted := make([]float64, len(logits))
		for i, v := range logits {
			shifted[i] = v + shift
		}
		got := Softmax(shifted)
		for k := range base {
			assert.InDelta(t, base[k], got[k], 1e-9, "shift %g class %d", shift, k)
		}
	}
}

func TestSoftmaxLargeLogitsStayFinite(t *testing.T) {
	p := Softmax([]float64{1000, 999, -1000})
	for _, v := range p {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
	assert.InDelta(t, 1.0, floats.Sum(p), 1e-9)
}

func TestZeroDropoutMatchesInference(t *testing.T) {
	n := newTestNetwork(t, 4, 6, 2, 11)
	input := []float64{1, 0, 0.5, 1}

	train, err := n.Forward(input, Mode{Dropout: true, DropoutRate: 0, Rand: constRand(0)})
	require.NoError(t, err)
	infer, err := n.Forward(input, Inference)
	require.NoError(t, err)

	assert.Equal(t, infer.Hidden, train.Hidden)
	assert.Equal(t, infer.Probs, train.Probs)
	for _, k := range train.Keep {
		assert.True(t, k)
	}
}

func TestDropoutScalesSurvivors(t *testing.T) {
	n := newTestNetwork(t, 4, 6, 2, 5)
	input := []float64{1, 1, 0, 1}
	infer, err := n.Forward(input, Inference)
	require.NoError(t, err)

	// 0.9 >= rate, so every unit is kept and scaled by 1/(1-0.5).
	kept, err := n.Forward(input, Mode{Dropout: true, DropoutRate: 0.5, Rand: constRand(0.9)})
	require.NoError(t, err)
	for j := range infer.Hidden {
		assert.InDelta(t, infer.Hidden[j]*2, kept.Hidden[j], 1e-12)
	}

	dropped, err := n.Forward(input, Mode{Dropout: true, DropoutRate: 0.5, Rand: constRand(0)})
	require.NoError(t, err)
	for j := range dropped.Hidden {
		assert.False(t, dropped.Keep[j])
		assert.Zero(t, dropped.Hidden[j])
	}
}

func TestForwardRejectsBadInput(t *testing.T) {
	n := newTestNetwork(t, 4, 3, 2, 1)
	_, err := n.Forward(nil, Inference)
	assert.ErrorIs(t, err, ErrDimension)
	_, err = n.Forward([]float64{1, 2, 3}, Inference)
	assert.ErrorIs(t, err, ErrDimension)
	_, err = n.Forward([]float64{1, 2, 3, 4}, Mode{Dropout: true, DropoutRate: 0.5})
	assert.Error(t, err)
}

func TestTrainExampleRejectsInvalidStep(t *testing.T) {
	n := newTestNetwork(t, 4, 3, 2, 1)
	ex := Example{Input: []float64{1, 0, 1, 0}, Target: []float64{1, 0}}

	_, err := n.TrainExample(ex, Step{LearningRate: 0.1, DropoutRate: 1}, constRand(0.5))
	assert.ErrorIs(t, err, ErrDropoutRate)
	_, err = n.TrainExample(ex, Step{LearningRate: 0.1, DropoutRate: -0.1}, constRand(0.5))
	assert.ErrorIs(t, err, ErrDropoutRate)

	bad := Example{Input: ex.Input, Target: []float64{1, 0, 0}}
	_, err = n.TrainExample(bad, Step{LearningRate: 0.1}, nil)
	assert.ErrorIs(t, err, ErrDimension)
	_, err = n.TrainExample(Example{}, Step{LearningRate: 0.1}, nil)
	assert.ErrorIs(t, err, ErrDimension)
}

func TestTrainExampleSingleExampleLossDecreases(t *testing.T) {
	n := newTestNetwork(t, 4, 4, 2, 1)
	ex := Example{Input: []float64{1, 0, 1, 0.5}, Target: []float64{0, 1}}
	step := Step{LearningRate: 0.05}

	prev := math.Inf(1)
	first := 0.0
	var last float64
	for epoch := 0; epoch < 300; epoch++ {
		loss, err := n.TrainExample(ex, step, nil)
		require.NoError(t, err)
		if epoch == 0 {
			first = loss
		}
		require.LessOrEqual(t, loss, prev+1e-9, "loss increased at epoch %d", epoch)
		prev = loss
		last = loss
	}
	assert.Less(t, last, first/10)
}

func TestTrainExampleSkipsDroppedUnits(t *testing.T) {
	n := newTestNetwork(t, 4, 3, 2, 9)
	before := n.State()
	ex := Example{Input: []float64{1, 1, 1, 1}, Target: []float64{1, 0}}

	// Float64 of 0 is below the rate, so every hidden unit is dropped.
	_, err := n.TrainExample(ex, Step{LearningRate: 0.5, L2: 0.01, DropoutRate: 0.5}, constRand(0))
	require.NoError(t, err)

	after := n.State()
	assert.Equal(t, before.W1, after.W1)
	assert.Equal(t, before.B1, after.B1)
	assert.Equal(t, before.W2, after.W2)
	assert.NotEqual(t, before.B2, after.B2)
}

func TestLossWithLabelSmoothing(t *testing.T) {
	probs := []float64{0.7, 0.2, 0.1}
	target := []float64{1, 0, 0}

	plain := Loss(probs, target, 0)
	assert.InDelta(t, -math.Log(0.7+1e-7), plain, 1e-12)

	smoothed := SmoothTarget(target, 0.1)
	assert.InDelta(t, 1.0, floats.Sum(smoothed), 1e-12)
	assert.InDelta(t, 0.9+0.1/3, smoothed[0], 1e-12)
	assert.InDelta(t, 0.1/3, smoothed[2], 1e-12)
	assert.Greater(t, Loss(probs, target, 0.1), plain)
}

func TestCheckpointDoesNotAlias(t *testing.T) {
	n := newTestNetwork(t, 4, 3, 2, 2)
	cp := n.NewCheckpoint()
	saved := n.State()

	ex := Example{Input: []float64{1, 0, 1, 1}, Target: []float64{0, 1}}
	for i := 0; i < 5; i++ {
		_, err := n.TrainExample(ex, Step{LearningRate: 0.3, L2: 0.001}, nil)
		require.NoError(t, err)
	}
	require.NotEqual(t, saved, n.State())

	n.Restore(cp)
	assert.Equal(t, saved, n.State())

	// Restoring must not link the network to the buffer either.
	_, err := n.TrainExample(ex, Step{LearningRate: 0.3}, nil)
	require.NoError(t, err)
	n.Restore(cp)
	assert.Equal(t, saved, n.State())
}

func TestFromStateRoundTrip(t *testing.T) {
	n := newTestNetwork(t, 6, 4, 3, 8)
	s := n.State()
	clone, err := FromState(s)
	require.NoError(t, err)
	assert.Equal(t, s, clone.State())

	s.W1[0] += 1
	assert.NotEqual(t, s.W1[0], clone.State().W1[0])

	s.B2 = s.B2[:2]
	_, err = FromState(s)
	assert.ErrorIs(t, err, ErrDimension)
}

func TestNewExample(t *testing.T) {
	ex, err := NewExample([]float64{0, 1}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, ex.Target)

	_, err = NewExample([]float64{0, 1}, 3, 3)
	assert.ErrorIs(t, err, ErrDimension)
}
