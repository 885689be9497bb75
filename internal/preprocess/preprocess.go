// Package preprocess turns drawings into the flat binary pixel vectors the
// classifier consumes: cell sampling, bounding-box centering, thresholding
// and row-major flattening.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
)

const (
	// DarkLevel is the gray level below which a pixel counts as ink.
	DarkLevel = 128
	// InkRatio is the share of dark pixels above which a cell is set.
	InkRatio = 0.2
	// Threshold binarizes centered cells.
	Threshold = 0.1
)

// Grid is a square matrix of cell intensities indexed [y][x].
type Grid [][]float64

// NewGrid allocates a zeroed size x size grid.
func NewGrid(size int) Grid {
	g := make(Grid, size)
	for y := range g {
		g[y] = make([]float64, size)
	}
	return g
}

// Decode reads a PNG or JPEG image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// DecodeFile reads the image stored at path.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Rasterize splits img into size x size cells and sets a cell to 1 when
// more than InkRatio of its pixels are darker than DarkLevel.
func Rasterize(img image.Image, size int) (Grid, error) {
	if size <= 0 {
		return nil, errors.New("preprocess: grid size must be > 0")
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("preprocess: empty image")
	}
	grid := NewGrid(size)
	for gy := 0; gy < size; gy++ {
		y0, y1 := span(gy, size, height)
		for gx := 0; gx < size; gx++ {
			x0, x1 := span(gx, size, width)
			dark, total := 0, 0
			for py := y0; py < y1; py++ {
				for px := x0; px < x1; px++ {
					c := color.GrayModel.Convert(img.At(bounds.Min.X+px, bounds.Min.Y+py)).(color.Gray)
					if c.Y < DarkLevel {
						dark++
					}
					total++
				}
			}
			if float64(dark)/float64(total) > InkRatio {
				grid[gy][gx] = 1
			}
		}
	}
	return grid, nil
}

// span returns the pixel range [lo, hi) covered by cell i of n over extent
// pixels. Every cell covers at least one pixel.
func span(i, n, extent int) (int, int) {
	lo := i * extent / n
	hi := (i + 1) * extent / n
	if lo >= extent {
		lo = extent - 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// Center moves the bounding box of the non-zero cells to the middle of the
// grid. A blank grid is returned unchanged.
func Center(g Grid) Grid {
	size := len(g)
	minX, minY, maxX, maxY := size, size, -1, -1
	for y, row := range g {
		for x, v := range row {
			if v > 0 {
				minX = min(minX, x)
				minY = min(minY, y)
				maxX = max(maxX, x)
				maxY = max(maxY, y)
			}
		}
	}
	if maxX < 0 {
		return g
	}
	offX := (size - (maxX - minX + 1)) / 2
	offY := (size - (maxY - minY + 1)) / 2
	out := NewGrid(size)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			out[y-minY+offY][x-minX+offX] = g[y][x]
		}
	}
	return out
}

// Binarize maps cells above threshold to 1 and the rest to 0.
func Binarize(g Grid, threshold float64) Grid {
	out := NewGrid(len(g))
	for y, row := range g {
		for x, v := range row {
			if v > threshold {
				out[y][x] = 1
			}
		}
	}
	return out
}

// Flatten returns the grid in row-major order.
func Flatten(g Grid) []float64 {
	out := make([]float64, 0, len(g)*len(g))
	for _, row := range g {
		out = append(out, row...)
	}
	return out
}

// Normalize centers and binarizes g and flattens it into an input vector.
func Normalize(g Grid) []float64 {
	return Flatten(Binarize(Center(g), Threshold))
}

// Vector runs the whole pipeline on a decoded drawing.
func Vector(img image.Image, size int) ([]float64, error) {
	grid, err := Rasterize(img, size)
	if err != nil {
		return nil, err
	}
	return Normalize(grid), nil
}

// VectorFile runs the whole pipeline on the drawing stored at path.
func VectorFile(path string, size int) ([]float64, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return Vector(img, size)
}
