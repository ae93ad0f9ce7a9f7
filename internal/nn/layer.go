// Package nn assembles sequential classifiers on gorgonia expression
// graphs. Layers own their weights as tensors; every training or inference
// graph binds those tensors as nodes, and gorgonia supplies the forward
// ops, symbolic gradients, the tape machine and the Adam solver.
package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when a layer cannot accept its input shape.
var ErrShape = errors.New("incompatible tensor shape")

// Layer is one stage of a sequential model. Build is called once with the
// per-sample input shape and returns the per-sample output shape; apply
// wires the layer into a graph for a batched input node.
type Layer interface {
	Kind() string
	Build(in []int, rng *rand.Rand) ([]int, error)
	Params() []*Param
	apply(gr *graph, x *G.Node) (*G.Node, error)
}

// Param is a trainable tensor. L2 is the weight-penalty factor applied to
// it in the training cost.
type Param struct {
	Name  string
	Value *tensor.Dense
	L2    float64
}

func newParam(name string, data []float64, shape ...int) *Param {
	return &Param{Name: name, Value: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))}
}

// Data returns the current weights, sharing storage.
func (p *Param) Data() []float64 { return p.Value.Data().([]float64) }

// Size returns the number of weights.
func (p *Param) Size() int { return p.Value.Shape().TotalSize() }

// Penalty returns L2·Σw².
func (p *Param) Penalty() float64 {
	if p.L2 == 0 {
		return 0
	}
	s := 0.0
	for _, w := range p.Data() {
		s += w * w
	}
	return p.L2 * s
}

// glorotUniform draws n values from U(-l, l) with l = sqrt(6/(fanIn+fanOut)).
func glorotUniform(n, fanIn, fanOut int, rng *rand.Rand) []float64 {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	w := make([]float64, n)
	for i := range w {
		w[i] = (2*rng.Float64() - 1) * limit
	}
	return w
}

// orthogonal returns a rows × cols row-major matrix with orthonormal rows
// or columns, built from the QR decomposition of a Gaussian matrix.
func orthogonal(rows, cols int, rng *rand.Rand) []float64 {
	long, short := rows, cols
	if rows < cols {
		long, short = cols, rows
	}
	a := mat.NewDense(long, short, nil)
	for i := 0; i < long; i++ {
		for j := 0; j < short; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}
	var qr mat.QR
	qr.Factorize(a)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	// column signs follow diag(R) so the result is uniformly distributed
	w := make([]float64, rows*cols)
	for j := 0; j < short; j++ {
		s := 1.0
		if r.At(j, j) < 0 {
			s = -1
		}
		for i := 0; i < long; i++ {
			v := q.At(i, j) * s
			if rows >= cols {
				w[i*cols+j] = v
			} else {
				w[j*cols+i] = v
			}
		}
	}
	return w
}

// columns splits a rows × (k·width) row-major matrix into k rows × width
// blocks.
func columns(w []float64, rows, width, k int) [][]float64 {
	out := make([][]float64, k)
	for b := range out {
		out[b] = make([]float64, rows*width)
		for i := 0; i < rows; i++ {
			copy(out[b][i*width:(i+1)*width], w[i*k*width+b*width:])
		}
	}
	return out
}

func checkRank(kind string, in []int, rank int) error {
	if len(in) != rank {
		return fmt.Errorf("%s expects rank-%d input, got %v: %w", kind, rank, in, ErrShape)
	}
	for _, d := range in {
		if d <= 0 {
			return fmt.Errorf("%s input %v has an empty axis: %w", kind, in, ErrShape)
		}
	}
	return nil
}
