package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/hyperjump/glyphocr/internal/bitmap"
)

var (
	// ErrCorruptTrainingSet indicates a training-set file that cannot be decoded.
	ErrCorruptTrainingSet = errors.New("vector: corrupt training set file")
	// ErrPolarityMismatch indicates a training set built under a different pixel polarity.
	ErrPolarityMismatch = errors.New("vector: training set polarity mismatch")
)

// fileMagic prefixes every saved training set.
const fileMagic = "GOCRTS2\x00"

// Entry is one labeled reference vector. Source is the image filename it came from.
type Entry struct {
	Vector FeatureVector
	Label  string
	Source string
}

// TrainingSet is an ordered, immutable collection of reference vectors that all share one dimension.
// Order is preserved because nearest-match ties are broken by position.
type TrainingSet struct {
	dimensions int
	polarity   bitmap.Polarity
	entries    []Entry
}

// TrainingSetOption configures a TrainingSet.
type TrainingSetOption func(*TrainingSet)

// WithPolarity records the pixel polarity the entries were decoded with. Default is native.
func WithPolarity(p bitmap.Polarity) TrainingSetOption {
	return func(ts *TrainingSet) { ts.polarity = p }
}

// NewTrainingSet copies entries into a new set. All vectors must have the same length.
func NewTrainingSet(entries []Entry, opts ...TrainingSetOption) (*TrainingSet, error) {
	ts := &TrainingSet{entries: make([]Entry, len(entries)), polarity: bitmap.PolarityNative}
	for _, opt := range opts {
		opt(ts)
	}
	for i, e := range entries {
		if i == 0 {
			ts.dimensions = e.Vector.Len()
		} else if e.Vector.Len() != ts.dimensions {
			return nil, fmt.Errorf("%w: entry %d (%s) has %d elements, expected %d",
				ErrDimensionMismatch, i, e.Source, e.Vector.Len(), ts.dimensions)
		}
		ts.entries[i] = Entry{Vector: NewFeatureVector(e.Vector.values), Label: e.Label, Source: e.Source}
	}
	return ts, nil
}

// Len returns the number of entries.
func (ts *TrainingSet) Len() int { return len(ts.entries) }

// Dimensions returns the shared vector length, or 0 for an empty set.
func (ts *TrainingSet) Dimensions() int { return ts.dimensions }

// Polarity returns the pixel polarity the set was built with.
func (ts *TrainingSet) Polarity() bitmap.Polarity { return ts.polarity }

// CheckPolarity returns ErrPolarityMismatch unless p is the polarity the set was built with.
// Query vectors decoded under another polarity have foreground and background swapped.
func (ts *TrainingSet) CheckPolarity(p bitmap.Polarity) error {
	if ts.polarity != p {
		return fmt.Errorf("%w: set built %s, queries decoded %s", ErrPolarityMismatch, ts.polarity, p)
	}
	return nil
}

// Entry returns entry i. The returned vector is immutable, so callers cannot alter the set.
func (ts *TrainingSet) Entry(i int) Entry { return ts.entries[i] }

// Labels returns the entry labels in set order.
func (ts *TrainingSet) Labels() []string {
	out := make([]string, len(ts.entries))
	for i, e := range ts.entries {
		out[i] = e.Label
	}
	return out
}

// Save persists the set to path. The directory is created if needed. Format: magic (8),
// polarity (1), dimension (4), n (4), then per entry: label len (4), label, source len (4), source,
// vector (dimension*8 bytes, float64 little endian).
func (ts *TrainingSet) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create training set dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create training set file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := ts.write(w); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush training set: %w", err)
	}
	return f.Close()
}

func (ts *TrainingSet) write(w io.Writer) error {
	if _, err := io.WriteString(w, fileMagic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(ts.polarity)); err != nil {
		return fmt.Errorf("write polarity: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(ts.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ts.entries))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, e := range ts.entries {
		if err := writeString(w, e.Label); err != nil {
			return fmt.Errorf("write label: %w", err)
		}
		if err := writeString(w, e.Source); err != nil {
			return fmt.Errorf("write source: %w", err)
		}
		if _, err := w.Write(float64SliceToBytes(e.Vector.values)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads a training set saved by Save.
func Load(path string) (*TrainingSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open training set file: %w", err)
	}
	defer f.Close()
	ts, err := read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ts, nil
}

func read(r io.Reader) (*TrainingSet, error) {
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != fileMagic {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptTrainingSet)
	}
	var pol uint8
	if err := binary.Read(r, binary.LittleEndian, &pol); err != nil {
		return nil, fmt.Errorf("%w: read polarity: %v", ErrCorruptTrainingSet, err)
	}
	polarity := bitmap.Polarity(pol)
	if polarity != bitmap.PolarityNative && polarity != bitmap.PolarityInverted {
		return nil, fmt.Errorf("%w: unknown polarity %d", ErrCorruptTrainingSet, pol)
	}
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("%w: read dimensions: %v", ErrCorruptTrainingSet, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: read count: %v", ErrCorruptTrainingSet, err)
	}
	if dim > maxDimensions {
		return nil, fmt.Errorf("%w: dimension %d too large", ErrCorruptTrainingSet, dim)
	}
	entries := make([]Entry, 0, min(n, 1024))
	buf := make([]byte, int(dim)*8)
	for i := uint32(0); i < n; i++ {
		label, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d label: %v", ErrCorruptTrainingSet, i, err)
		}
		source, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d source: %v", ErrCorruptTrainingSet, i, err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: entry %d vector: %v", ErrCorruptTrainingSet, i, err)
		}
		entries = append(entries, Entry{
			Vector: FeatureVector{values: bytesToFloat64Slice(buf)},
			Label:  label,
			Source: source,
		})
	}
	return &TrainingSet{dimensions: int(dim), polarity: polarity, entries: entries}, nil
}

const (
	maxStringLen  = 1 << 20
	maxDimensions = 1 << 24
)

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("string length %d too large", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float64SliceToBytes(s []float64) []byte {
	const size = 8
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint64(out[i*size:(i+1)*size], math.Float64bits(v))
	}
	return out
}

func bytesToFloat64Slice(b []byte) []float64 {
	const size = 8
	out := make([]float64, len(b)/size)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*size : (i+1)*size]))
	}
	return out
}
