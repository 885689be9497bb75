package dataset

import (
	"bytes"
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietReader(grid int) (*Reader, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &Reader{GridSize: grid, Logger: log.New(buf, "", 0)}, buf
}

func TestParseRow(t *testing.T) {
	class, pixels, err := ParseRow("e,1,0,0,1", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, class)
	assert.Equal(t, []float64{1, 0, 0, 1}, pixels)

	_, _, err = ParseRow("x,1,0,0,1", 2)
	assert.ErrorIs(t, err, ErrUnknownLabel)

	_, _, err = ParseRow("e,1,0,0", 2)
	assert.ErrorIs(t, err, ErrMalformedRow)
}

func TestLabelMapping(t *testing.T) {
	assert.Equal(t, 0, LabelIndex("e"))
	assert.Equal(t, 1, LabelIndex(" L "))
	assert.Equal(t, 2, LabelIndex("F"))
	assert.Equal(t, -1, LabelIndex("x"))
	assert.Equal(t, -1, LabelIndex(""))
	assert.Equal(t, "f", LabelName(2))
	assert.Equal(t, "?", LabelName(3))
}

func TestReadSkipsBadRows(t *testing.T) {
	input := strings.Join([]string{
		"e,1,0,0,1",
		"L,0,1,1,0",
		"x,1,1,1,1",
		"f,1,0,1",
		"f,1,zero,1,1",
		"",
		`e,"0,1,1,0`,
		"F,0.5,0.25,0,1",
	}, "\n")
	rd, logs := quietReader(2)
	ds, err := rd.Read(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, ds.Classes)
	require.Len(t, ds.Examples, 3)
	assert.Equal(t, []float64{0.5, 0.25, 0, 1}, ds.Examples[2].Input)
	assert.Equal(t, []float64{0, 0, 1}, ds.Examples[2].Target)
	assert.Equal(t, 1, ds.UnknownLabel)
	assert.Equal(t, 3, ds.Malformed)
	assert.Equal(t, 4, ds.Skipped())
	assert.Equal(t, 4, strings.Count(logs.String(), "skipped"))
	assert.Contains(t, logs.String(), `label="x"`)
}

func TestReadStrayQuoteSkipsOnlyItsRow(t *testing.T) {
	input := strings.Join([]string{
		"e,1,0,0,1",
		`e,"1,0,0,1`,
		"l,0,1,1,0",
		`f,1",0,0,1`,
		"f,1,1,0,0",
	}, "\n")
	rd, logs := quietReader(2)
	ds, err := rd.Read(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, ds.Classes)
	assert.Equal(t, 2, ds.Malformed)
	assert.Contains(t, logs.String(), "line=2 skipped")
	assert.Contains(t, logs.String(), "line=4 skipped")
}

func TestReadRequiresGrid(t *testing.T) {
	_, err := (&Reader{}).Read(strings.NewReader("e,1"))
	assert.ErrorIs(t, err, ErrGridSize)
}

func TestWriteRowRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteRow(buf, "L", []float64{1, 0, 0, 1}))
	assert.Equal(t, "l,1,0,0,1\n", buf.String())

	class, pixels, err := ParseRow(strings.TrimSpace(buf.String()), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, class)
	assert.Equal(t, []float64{1, 0, 0, 1}, pixels)

	assert.ErrorIs(t, WriteRow(io.Discard, "q", nil), ErrUnknownLabel)
}

func TestAppendFileAndLoad(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.csv")
	second := filepath.Join(dir, "b.csv")
	require.NoError(t, AppendFile(first, "e", []float64{1, 0, 0, 1}))
	require.NoError(t, AppendFile(first, "l", []float64{0, 1, 0, 1}))
	require.NoError(t, AppendFile(second, "f", []float64{1, 1, 0, 0}))
	mustWrite(t, filepath.Join(dir, "c.csv"), "x,1,1,1,1\n")

	ds, err := Load(context.Background(), LoadOptions{
		Root:       dir,
		GridSize:   2,
		NumWorkers: 3,
		Logger:     log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, ds.Classes)
	assert.Equal(t, 1, ds.UnknownLabel)
}

func TestLoadEmptyDirectory(t *testing.T) {
	_, err := Load(context.Background(), LoadOptions{Root: t.TempDir(), GridSize: 2})
	assert.ErrorIs(t, err, ErrNoFiles)
}
