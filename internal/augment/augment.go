// Package augment synthesizes extra training examples from labeled drawings
// by small translations and pixel noise.
package augment

import (
	"errors"
	"fmt"
	"math"

	"symbolnet/internal/model"
)

// Options controls how many variants are produced per source example.
type Options struct {
	Shifts   int     // translated copies
	MaxShift int     // |dx|, |dy| upper bound in cells
	Noisy    int     // noise copies
	FlipProb float64 // per-pixel flip probability for noise copies
}

// DefaultOptions yields 3 shifted and 2 noisy variants per example.
func DefaultOptions() Options {
	return Options{Shifts: 3, MaxShift: 2, Noisy: 2, FlipProb: 0.05}
}

// ErrNotSquare is returned for inputs that cannot be viewed as a square grid.
var ErrNotSquare = errors.New("augment: input length is not a perfect square")

// ErrOptions is returned for negative variant counts or shifts, or a flip
// probability outside [0, 1].
var ErrOptions = errors.New("augment: invalid options")

func (o Options) validate() error {
	if o.Shifts < 0 || o.MaxShift < 0 || o.Noisy < 0 {
		return fmt.Errorf("%w: shifts=%d max_shift=%d noisy=%d", ErrOptions, o.Shifts, o.MaxShift, o.Noisy)
	}
	if o.FlipProb < 0 || o.FlipProb > 1 {
		return fmt.Errorf("%w: flip_prob=%g", ErrOptions, o.FlipProb)
	}
	return nil
}

// GridSize returns the side of the square grid holding n pixels.
func GridSize(n int) (int, error) {
	side := int(math.Round(math.Sqrt(float64(n))))
	if n <= 0 || side*side != n {
		return 0, fmt.Errorf("%w (len %d)", ErrNotSquare, n)
	}
	return side, nil
}

// Augment returns the synthetic variants of ex, not including ex itself.
// Every variant owns a copy of ex.Target.
func Augment(ex model.Example, opts Options, rng model.Rand) ([]model.Example, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	side, err := GridSize(len(ex.Input))
	if err != nil {
		return nil, err
	}
	out := make([]model.Example, 0, opts.Shifts+opts.Noisy)
	span := 2*opts.MaxShift + 1
	for i := 0; i < opts.Shifts; i++ {
		dx := rng.Intn(span) - opts.MaxShift
		dy := rng.Intn(span) - opts.MaxShift
		out = append(out, model.Example{
			Input:  Shift(ex.Input, side, dx, dy),
			Target: append([]float64(nil), ex.Target...),
		})
	}
	for i := 0; i < opts.Noisy; i++ {
		out = append(out, model.Example{
			Input:  Flip(ex.Input, opts.FlipProb, rng),
			Target: append([]float64(nil), ex.Target...),
		})
	}
	return out, nil
}

// Expand returns examples followed by the variants of each one.
func Expand(examples []model.Example, opts Options, rng model.Rand) ([]model.Example, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	out := make([]model.Example, 0, len(examples)*(1+opts.Shifts+opts.Noisy))
	out = append(out, examples...)
	for i, ex := range examples {
		variants, err := Augment(ex, opts, rng)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		out = append(out, variants...)
	}
	return out, nil
}

// Shift moves a side x side grid by (dx, dy). Pixels leaving the grid are
// lost and vacated cells are zero.
func Shift(pixels []float64, side, dx, dy int) []float64 {
	out := make([]float64, len(pixels))
	for y := 0; y < side; y++ {
		ny := y + dy
		if ny < 0 || ny >= side {
			continue
		}
		for x := 0; x < side; x++ {
			nx := x + dx
			if nx < 0 || nx >= side {
				continue
			}
			out[ny*side+nx] = pixels[y*side+x]
		}
	}
	return out
}

// Flip complements each pixel (1-v) with probability p.
func Flip(pixels []float64, p float64, rng model.Rand) []float64 {
	out := make([]float64, len(pixels))
	for i, v := range pixels {
		if rng.Float64() < p {
			v = 1 - v
		}
		out[i] = v
	}
	return out
}
