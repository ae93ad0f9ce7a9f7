package nn

import "fmt"

// Tensor is a dense row-major array exchanged with callers. Shape[0] is
// the batch axis.
type Tensor struct {
	Shape []int
	Data  []float64
}

func volume(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// NewTensor allocates a zeroed tensor.
func NewTensor(shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float64, volume(shape))}
}

// Batch returns the size of the leading axis.
func (t *Tensor) Batch() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// SampleShape returns the shape without the batch axis.
func (t *Tensor) SampleShape() []int {
	if len(t.Shape) == 0 {
		return nil
	}
	return append([]int(nil), t.Shape[1:]...)
}

// stride is the number of values per sample.
func (t *Tensor) stride() int { return volume(t.Shape[1:]) }

// Reshape returns a view with the same data and a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if volume(shape) != len(t.Data) {
		return nil, fmt.Errorf("reshape %v to %v: %w", t.Shape, shape, ErrShape)
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: t.Data}, nil
}

// Rows copies the samples at idx into a new tensor.
func (t *Tensor) Rows(idx []int) *Tensor {
	k := t.stride()
	out := &Tensor{Shape: append([]int{len(idx)}, t.Shape[1:]...), Data: make([]float64, len(idx)*k)}
	for i, j := range idx {
		copy(out.Data[i*k:(i+1)*k], t.Data[j*k:(j+1)*k])
	}
	return out
}

// Row returns the values of sample i, sharing storage.
func (t *Tensor) Row(i int) []float64 {
	k := t.stride()
	return t.Data[i*k : (i+1)*k]
}

// FromMatrices packs samples of shape frames × coefficients into a tensor
// [N, frames, coefficients], or [N, frames, coefficients, 1] when channel is
// set.
func FromMatrices(x [][][]float64, channel bool) (*Tensor, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return nil, fmt.Errorf("no samples: %w", ErrShape)
	}
	frames, coeffs := len(x[0]), len(x[0][0])
	shape := []int{len(x), frames, coeffs}
	if channel {
		shape = append(shape, 1)
	}
	t := NewTensor(shape...)
	pos := 0
	for i, m := range x {
		if len(m) != frames {
			return nil, fmt.Errorf("sample %d has %d frames, want %d: %w", i, len(m), frames, ErrShape)
		}
		for _, row := range m {
			if len(row) != coeffs {
				return nil, fmt.Errorf("sample %d has %d coefficients, want %d: %w", i, len(row), coeffs, ErrShape)
			}
			pos += copy(t.Data[pos:], row)
		}
	}
	return t, nil
}
