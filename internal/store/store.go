// Package store persists trained networks.
//
// File layout (little endian):
//
//	magic      [4]byte "SMLP"
//	version    uint32
//	sizes      3 x uint32 (input, hidden, output)
//	w1, b1, w2, b2 as float64, row-major
//	checksum   SHA-256 of every preceding byte
//
// Only the numeric state is stored. Training hyperparameters and the random
// source are not part of a model.
package store

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"symbolnet/internal/model"
)

// Format constants.
const (
	MagicBytes    = "SMLP"
	FormatVersion = 1
	ChecksumSize  = sha256.Size
	// MaxParams bounds the parameter count accepted by Load.
	MaxParams = 1 << 26
)

// Common errors.
var (
	ErrInvalidMagic       = errors.New("store: invalid magic bytes")
	ErrUnsupportedVersion = errors.New("store: unsupported format version")
	ErrChecksumMismatch   = errors.New("store: checksum mismatch: file may be corrupted")
	ErrTooLarge           = errors.New("store: model exceeds parameter limit")
)

type header struct {
	Magic      [4]byte
	Version    uint32
	InputSize  uint32
	HiddenSize uint32
	OutputSize uint32
}

// Save writes net to w.
func Save(w io.Writer, net *model.Network) error {
	s := net.State()
	h := sha256.New()
	bw := bufio.NewWriter(io.MultiWriter(w, h))

	hdr := header{
		Version:    FormatVersion,
		InputSize:  uint32(s.InputSize),
		HiddenSize: uint32(s.HiddenSize),
		OutputSize: uint32(s.OutputSize),
	}
	copy(hdr.Magic[:], MagicBytes)
	if err := binary.Write(bw, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	buf := make([]byte, 8)
	for _, block := range [][]float64{s.W1, s.B1, s.W2, s.B2} {
		for _, v := range block {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
			if _, err := bw.Write(buf); err != nil {
				return fmt.Errorf("write weights: %w", err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}
	if _, err := w.Write(h.Sum(nil)); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}
	return nil
}

// Load reads a network written by Save. It returns a nil network on any
// error, so callers can keep whatever model they already hold.
func Load(r io.Reader) (*model.Network, error) {
	h := sha256.New()
	br := bufio.NewReader(r)
	tr := io.TeeReader(br, h)

	var hdr header
	if err := binary.Read(tr, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	if hdr.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, hdr.Version)
	}
	in, hidden, out := int64(hdr.InputSize), int64(hdr.HiddenSize), int64(hdr.OutputSize)
	if in > MaxParams || hidden > MaxParams || out > MaxParams {
		return nil, ErrTooLarge
	}
	if in*hidden+hidden+hidden*out+out > MaxParams {
		return nil, ErrTooLarge
	}

	s := model.State{
		InputSize:  int(in),
		HiddenSize: int(hidden),
		OutputSize: int(out),
	}
	var err error
	if s.W1, err = readFloats(tr, in*hidden); err != nil {
		return nil, err
	}
	if s.B1, err = readFloats(tr, hidden); err != nil {
		return nil, err
	}
	if s.W2, err = readFloats(tr, hidden*out); err != nil {
		return nil, err
	}
	if s.B2, err = readFloats(tr, out); err != nil {
		return nil, err
	}

	var stored [ChecksumSize]byte
	if _, err := io.ReadFull(br, stored[:]); err != nil {
		return nil, fmt.Errorf("read checksum: %w", err)
	}
	var computed [ChecksumSize]byte
	copy(computed[:], h.Sum(nil))
	if computed != stored {
		return nil, ErrChecksumMismatch
	}

	net, err := model.FromState(s)
	if err != nil {
		return nil, fmt.Errorf("rebuild network: %w", err)
	}
	return net, nil
}

func readFloats(r io.Reader, n int64) ([]float64, error) {
	raw := make([]byte, 8*n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return out, nil
}

// SaveFile writes net to path. The model is written to a temporary file in
// the same directory and renamed into place, so a failed save leaves any
// previous file intact.
func SaveFile(path string, net *model.Network) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Save(tmp, net); err != nil {
		tmp.Close()
		return fmt.Errorf("save model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

// LoadFile reads the model stored at path.
func LoadFile(path string) (*model.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	defer f.Close()

	net, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return net, nil
}
