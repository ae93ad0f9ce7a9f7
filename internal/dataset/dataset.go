// Package dataset holds extracted MFCC samples, their JSON file format, and
// train/validation/test partitioning.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrMissingField  = errors.New("dataset document is missing a field")
	ErrShapeMismatch = errors.New("dataset samples do not share one shape")
	ErrLabelRange    = errors.New("dataset label outside vocabulary")
)

// Dataset is the full set of feature matrices with their label indices and
// the vocabulary those indices point into. X[i] is frames × coefficients.
type Dataset struct {
	Genres []string      `json:"genres"`
	X      [][][]float64 `json:"x"`
	Y      []int         `json:"y"`
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Y) }

// NumClasses returns the vocabulary size.
func (d *Dataset) NumClasses() int { return len(d.Genres) }

// Append adds one sample. It does not check the shape; Validate does.
func (d *Dataset) Append(x [][]float64, label int) {
	d.X = append(d.X, x)
	d.Y = append(d.Y, label)
}

// SampleShape returns (frames, coefficients) of the first sample.
func (d *Dataset) SampleShape() (int, int) {
	if len(d.X) == 0 || len(d.X[0]) == 0 {
		return 0, 0
	}
	return len(d.X[0]), len(d.X[0][0])
}

// ClassCounts returns how many samples carry each label.
func (d *Dataset) ClassCounts() []int {
	counts := make([]int, len(d.Genres))
	for _, y := range d.Y {
		if y >= 0 && y < len(counts) {
			counts[y]++
		}
	}
	return counts
}

// Validate checks that x and y line up, that every matrix has the same
// shape, and that every label indexes the vocabulary.
func (d *Dataset) Validate() error {
	if len(d.X) != len(d.Y) {
		return fmt.Errorf("%w: %d feature matrices but %d labels", ErrShapeMismatch, len(d.X), len(d.Y))
	}
	frames, coeffs := d.SampleShape()
	for i, m := range d.X {
		if len(m) != frames {
			return fmt.Errorf("%w: sample %d has %d frames, want %d", ErrShapeMismatch, i, len(m), frames)
		}
		for _, row := range m {
			if len(row) != coeffs {
				return fmt.Errorf("%w: sample %d has a row of %d coefficients, want %d", ErrShapeMismatch, i, len(row), coeffs)
			}
		}
	}
	for i, y := range d.Y {
		if y < 0 || y >= len(d.Genres) {
			return fmt.Errorf("%w: sample %d has label %d with %d genres", ErrLabelRange, i, y, len(d.Genres))
		}
	}
	return nil
}

// Subset returns a dataset view holding the samples at idx, sharing the
// underlying matrices.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		Genres: d.Genres,
		X:      make([][][]float64, len(idx)),
		Y:      make([]int, len(idx)),
	}
	for i, j := range idx {
		out.X[i] = d.X[j]
		out.Y[i] = d.Y[j]
	}
	return out
}

// Arrays returns the feature matrices and labels; the vocabulary stays on
// the dataset.
func (d *Dataset) Arrays() ([][][]float64, []int) {
	return d.X, d.Y
}

// Save writes the dataset as an indented JSON document, creating parent
// directories as needed.
func (d *Dataset) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating dataset dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dataset file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "    ")
	if err := enc.Encode(d.document()); err != nil {
		return fmt.Errorf("encoding dataset: %w", err)
	}
	return f.Close()
}

// document substitutes empty slices for nil ones so an empty dataset still
// serializes all three fields.
func (d *Dataset) document() *Dataset {
	doc := *d
	if doc.Genres == nil {
		doc.Genres = []string{}
	}
	if doc.X == nil {
		doc.X = [][][]float64{}
	}
	if doc.Y == nil {
		doc.Y = []int{}
	}
	return &doc
}

// Load reads a dataset document written by Save and validates it.
func Load(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// Decode parses a dataset document. All of genres, x and y must be present.
func Decode(raw []byte) (*Dataset, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parsing dataset: %w", err)
	}
	for _, name := range []string{"genres", "x", "y"} {
		v, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil, fmt.Errorf("%w: %q", ErrMissingField, name)
		}
	}

	var d Dataset
	if err := json.Unmarshal(fields["genres"], &d.Genres); err != nil {
		return nil, fmt.Errorf("parsing genres: %w", err)
	}
	if err := json.Unmarshal(fields["x"], &d.X); err != nil {
		return nil, fmt.Errorf("parsing x: %w", err)
	}
	if err := json.Unmarshal(fields["y"], &d.Y); err != nil {
		return nil, fmt.Errorf("parsing y: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
