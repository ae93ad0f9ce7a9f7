package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func sampleDataset() *Dataset {
	d := &Dataset{Genres: []string{"blues", "jazz"}}
	d.Append([][]float64{{1, 2, 3}, {4, 5, 6}}, 0)
	d.Append([][]float64{{-1.5, 0, 2.25}, {7, 8, 9}}, 1)
	d.Append([][]float64{{0.125, 0.5, 1}, {3, 2, 1}}, 1)
	return d
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")
	in := sampleDataset()

	if err := in.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !reflect.DeepEqual(in.Genres, out.Genres) {
		t.Errorf("genres = %v, want %v", out.Genres, in.Genres)
	}
	if !reflect.DeepEqual(in.X, out.X) {
		t.Errorf("x differs after round trip")
	}
	if !reflect.DeepEqual(in.Y, out.Y) {
		t.Errorf("y = %v, want %v", out.Y, in.Y)
	}
	if len(out.X) != len(out.Y) || out.Len() != 3 {
		t.Errorf("len(x)=%d len(y)=%d, want 3", len(out.X), len(out.Y))
	}
}

func TestSaveEmptyDatasetKeepsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := (&Dataset{Genres: []string{"rock"}}).Save(path); err != nil {
		t.Fatal(err)
	}
	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load of empty dataset failed: %v", err)
	}
	if d.Len() != 0 || d.NumClasses() != 1 {
		t.Errorf("unexpected dataset %+v", d)
	}
}

func TestDecodeMissingField(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no genres", `{"x": [], "y": []}`},
		{"no x", `{"genres": ["a"], "y": []}`},
		{"no y", `{"genres": ["a"], "x": []}`},
		{"null y", `{"genres": ["a"], "x": [], "y": null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			if !errors.Is(err, ErrMissingField) {
				t.Errorf("expected ErrMissingField, got %v", err)
			}
		})
	}
}

func TestDecodeRejectsInconsistentDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"length mismatch", `{"genres": ["a"], "x": [[[1]]], "y": [0, 0]}`, ErrShapeMismatch},
		{"ragged frames", `{"genres": ["a"], "x": [[[1]], [[1], [2]]], "y": [0, 0]}`, ErrShapeMismatch},
		{"ragged coefficients", `{"genres": ["a"], "x": [[[1, 2]], [[1]]], "y": [0, 0]}`, ErrShapeMismatch},
		{"label out of range", `{"genres": ["a"], "x": [[[1]]], "y": [3]}`, ErrLabelRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadNonExistent(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestSubsetAndCounts(t *testing.T) {
	d := sampleDataset()
	sub := d.Subset([]int{2, 0})
	if !reflect.DeepEqual(sub.Y, []int{1, 0}) {
		t.Errorf("subset labels = %v", sub.Y)
	}
	if !reflect.DeepEqual(d.ClassCounts(), []int{1, 2}) {
		t.Errorf("class counts = %v", d.ClassCounts())
	}
	x, y := d.Arrays()
	if len(x) != 3 || len(y) != 3 {
		t.Errorf("Arrays returned %d/%d samples", len(x), len(y))
	}
	frames, coeffs := d.SampleShape()
	if frames != 2 || coeffs != 3 {
		t.Errorf("shape = (%d,%d), want (2,3)", frames, coeffs)
	}
}
