package nn

import (
	"fmt"
	"math/rand"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Dense is a fully connected layer over the last input axis.
type Dense struct {
	Units      int
	Activation string
	L2         float64

	in   []int
	w, b *Param
}

func NewDense(units int, activation string, l2 float64) *Dense {
	return &Dense{Units: units, Activation: activation, L2: l2}
}

func (d *Dense) Kind() string { return "dense" }

func (d *Dense) Build(in []int, rng *rand.Rand) ([]int, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("dense needs at least one input axis: %w", ErrShape)
	}
	if d.Units <= 0 {
		return nil, fmt.Errorf("dense units %d: %w", d.Units, ErrShape)
	}
	if err := checkActivation(d.Activation); err != nil {
		return nil, err
	}
	d.in = append([]int(nil), in...)
	fanIn := in[len(in)-1]
	d.w = newParam("kernel", glorotUniform(fanIn*d.Units, fanIn, d.Units, rng), fanIn, d.Units)
	d.w.L2 = d.L2
	d.b = newParam("bias", make([]float64, d.Units), 1, d.Units)

	out := append([]int(nil), in[:len(in)-1]...)
	return append(out, d.Units), nil
}

func (d *Dense) Params() []*Param { return []*Param{d.w, d.b} }

// apply folds any leading sample axes into the batch so the kernel is one
// matrix product.
func (d *Dense) apply(gr *graph, x *G.Node) (*G.Node, error) {
	fanIn := d.in[len(d.in)-1]
	rows := gr.batch * volume(d.in[:len(d.in)-1])
	flat, err := ensureShape(x, rows, fanIn)
	if err != nil {
		return nil, err
	}
	xw, err := G.Mul(flat, gr.bind(d.w))
	if err != nil {
		return nil, fmt.Errorf("dense product: %w", err)
	}
	z, err := G.BroadcastAdd(xw, gr.bind(d.b), nil, []byte{0})
	if err != nil {
		return nil, fmt.Errorf("dense bias: %w", err)
	}
	y, err := activate(d.Activation, z)
	if err != nil {
		return nil, err
	}
	if len(d.in) == 1 {
		return y, nil
	}
	out := append([]int{gr.batch}, d.in[:len(d.in)-1]...)
	return G.Reshape(y, tensor.Shape(append(out, d.Units)))
}
