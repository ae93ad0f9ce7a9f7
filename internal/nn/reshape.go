package nn

import (
	"fmt"
	"math/rand"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Flatten collapses every non-batch axis into one.
type Flatten struct {
	size int
}

func NewFlatten() *Flatten { return &Flatten{} }

func (f *Flatten) Kind() string { return "flatten" }

func (f *Flatten) Build(in []int, _ *rand.Rand) ([]int, error) {
	if len(in) == 0 || volume(in) == 0 {
		return nil, fmt.Errorf("flatten input %v: %w", in, ErrShape)
	}
	f.size = volume(in)
	return []int{f.size}, nil
}

func (f *Flatten) Params() []*Param { return nil }

func (f *Flatten) apply(gr *graph, x *G.Node) (*G.Node, error) {
	return G.Reshape(x, tensor.Shape{gr.batch, f.size})
}

// Dropout zeroes a Rate fraction of activations while training and scales
// the rest by 1/(1-Rate). It is the identity at inference.
type Dropout struct {
	Rate float64

	shape []int
}

func NewDropout(rate float64) *Dropout { return &Dropout{Rate: rate} }

func (d *Dropout) Kind() string { return "dropout" }

func (d *Dropout) Build(in []int, _ *rand.Rand) ([]int, error) {
	if d.Rate < 0 || d.Rate >= 1 {
		return nil, fmt.Errorf("dropout rate %.3f must be in [0, 1)", d.Rate)
	}
	d.shape = append([]int(nil), in...)
	return append([]int(nil), in...), nil
}

func (d *Dropout) Params() []*Param { return nil }

// apply multiplies by a mask input that the model redraws from its own
// generator before every training batch.
func (d *Dropout) apply(gr *graph, x *G.Node) (*G.Node, error) {
	if !gr.training || d.Rate == 0 {
		return x, nil
	}
	node, value := gr.input("dropout_mask", append([]int{gr.batch}, d.shape...)...)
	gr.masks = append(gr.masks, &dropoutMask{node: node, value: value, rate: d.Rate})
	return G.HadamardProd(x, node)
}
