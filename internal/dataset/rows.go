package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"symbolnet/internal/model"
)

// Dataset holds the examples parsed from one or more row sources.
type Dataset struct {
	Examples []model.Example
	// Classes[i] is the class index of Examples[i].
	Classes []int
	// Malformed counts rows with a wrong field count or a bad number.
	Malformed int
	// UnknownLabel counts rows whose label is not a known symbol.
	UnknownLabel int
}

// Skipped returns the number of rejected rows.
func (d *Dataset) Skipped() int {
	return d.Malformed + d.UnknownLabel
}

// Append adds the examples of other to d.
func (d *Dataset) Append(other *Dataset) {
	d.Examples = append(d.Examples, other.Examples...)
	d.Classes = append(d.Classes, other.Classes...)
	d.Malformed += other.Malformed
	d.UnknownLabel += other.UnknownLabel
}

// Reader parses rows of the form `label,v0,...,v{g*g-1}`.
type Reader struct {
	GridSize int
	// Logger receives one diagnostic per skipped row. Defaults to log.Default().
	Logger *log.Logger
	// Source names the input in diagnostics.
	Source string
}

// ErrGridSize is returned when the reader is not configured with a grid.
var ErrGridSize = errors.New("dataset: grid size must be > 0")

// maxLineBytes bounds the length of a single row.
const maxLineBytes = 4 << 20

// Read parses every row in r, one row per line. Bad rows are skipped,
// counted and logged; only I/O errors abort the read.
func (rd *Reader) Read(r io.Reader) (*Dataset, error) {
	if rd.GridSize <= 0 {
		return nil, ErrGridSize
	}
	pixels := rd.GridSize * rd.GridSize
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	ds := &Dataset{}
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, ",")
		if len(fields) != 1+pixels {
			ds.Malformed++
			rd.logf("line=%d skipped reason=%q fields=%d want=%d", line, "field count", len(fields), 1+pixels)
			continue
		}
		class := LabelIndex(fields[0])
		if class < 0 {
			ds.UnknownLabel++
			rd.logf("line=%d skipped reason=%q label=%q", line, "unknown label", fields[0])
			continue
		}
		input := make([]float64, pixels)
		bad := false
		for i, field := range fields[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				ds.Malformed++
				rd.logf("line=%d skipped reason=%q field=%d", line, "bad number", i+1)
				bad = true
				break
			}
			input[i] = v
		}
		if bad {
			continue
		}
		ex, err := model.NewExample(input, class, NumClasses)
		if err != nil {
			return nil, err
		}
		ds.Examples = append(ds.Examples, ex)
		ds.Classes = append(ds.Classes, class)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rows: line %d: %w", line+1, err)
	}
	return ds, nil
}

// ReadFile parses the rows stored at path.
func (rd *Reader) ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	named := *rd
	if named.Source == "" {
		named.Source = path
	}
	return named.Read(f)
}

func (rd *Reader) logf(format string, args ...any) {
	logger := rd.Logger
	if logger == nil {
		logger = log.Default()
	}
	if rd.Source != "" {
		format = "dataset: source=" + rd.Source + " " + format
	} else {
		format = "dataset: " + format
	}
	logger.Printf(format, args...)
}

// ParseRow parses a single row. It returns the class index and pixels.
func ParseRow(row string, gridSize int) (int, []float64, error) {
	rd := &Reader{GridSize: gridSize, Logger: log.New(io.Discard, "", 0)}
	ds, err := rd.Read(strings.NewReader(row))
	if err != nil {
		return -1, nil, err
	}
	if len(ds.Examples) != 1 {
		if ds.UnknownLabel > 0 {
			return -1, nil, fmt.Errorf("%w: %q", ErrUnknownLabel, row)
		}
		return -1, nil, fmt.Errorf("%w: %q", ErrMalformedRow, row)
	}
	return ds.Classes[0], ds.Examples[0].Input, nil
}

var (
	// ErrUnknownLabel marks a row whose label is not e, l or f.
	ErrUnknownLabel = errors.New("dataset: unknown label")
	// ErrMalformedRow marks a row with a wrong field count or a bad number.
	ErrMalformedRow = errors.New("dataset: malformed row")
)

// WriteRow appends one row for label and pixels to w. Binary pixels are
// written as 0/1 integers.
func WriteRow(w io.Writer, label string, pixels []float64) error {
	if LabelIndex(label) < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	var sb strings.Builder
	sb.WriteString(strings.ToLower(strings.TrimSpace(label)))
	for _, v := range pixels {
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

// AppendFile appends a row to the dataset file at path, creating it if
// needed.
func AppendFile(path, label string, pixels []float64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	if err := WriteRow(f, label, pixels); err != nil {
		f.Close()
		return fmt.Errorf("append row: %w", err)
	}
	return f.Close()
}
