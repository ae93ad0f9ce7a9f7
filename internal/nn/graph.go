package nn

import (
	"fmt"
	"math"
	"math/rand"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// graph is one compiled expression graph of a model at a fixed batch size.
// Training graphs carry the cost, its gradients and dropout masks;
// inference graphs use running batch-norm statistics and skip dropout.
type graph struct {
	g        *G.ExprGraph
	vm       G.VM
	batch    int
	training bool
	seq      int

	x       *G.Node
	xv      *tensor.Dense
	target  *G.Node
	targetV *tensor.Dense
	probs   G.Value
	cost    G.Value

	params []*Param
	nodes  G.Nodes

	masks []*dropoutMask
	norms []*normStats
	feeds []func() error
}

func newGraph(batch int, training bool) *graph {
	return &graph{g: G.NewGraph(), batch: batch, training: training}
}

func (gr *graph) unique(name string) string {
	gr.seq++
	return fmt.Sprintf("%s_%d", name, gr.seq)
}

// bind adds p as a node holding its current value.
func (gr *graph) bind(p *Param) *G.Node {
	shape := p.Value.Shape()
	n := G.NewTensor(gr.g, tensor.Float64, shape.Dims(),
		G.WithShape(shape...), G.WithName(p.Name), G.WithValue(p.Value))
	gr.params = append(gr.params, p)
	gr.nodes = append(gr.nodes, n)
	return n
}

// input creates a zero-valued, non-trainable node.
func (gr *graph) input(name string, shape ...int) (*G.Node, *tensor.Dense) {
	v := tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(shape...))
	n := G.NewTensor(gr.g, tensor.Float64, len(shape),
		G.WithShape(shape...), G.WithName(gr.unique(name)), G.WithValue(v))
	return n, v
}

// refresh rebinds every parameter node to a copy of the layer's current
// tensor, so inference runs never share storage with the training graph.
func (gr *graph) refresh() error {
	for i, p := range gr.params {
		if err := G.Let(gr.nodes[i], p.Value.Clone().(*tensor.Dense)); err != nil {
			return fmt.Errorf("binding %s: %w", p.Name, err)
		}
	}
	return nil
}

// adopt points every parameter at the tensor its training node now holds.
func (gr *graph) adopt() {
	for i, p := range gr.params {
		if v, ok := gr.nodes[i].Value().(*tensor.Dense); ok {
			p.Value = v
		}
	}
}

func (gr *graph) close() {
	if gr.vm != nil {
		gr.vm.Close()
	}
}

type dropoutMask struct {
	node  *G.Node
	value *tensor.Dense
	rate  float64
}

// fill draws a new inverted-dropout mask: 0 with probability rate,
// 1/(1-rate) otherwise.
func (m *dropoutMask) fill(rng *rand.Rand) error {
	keep := 1 / (1 - m.rate)
	data := m.value.Data().([]float64)
	for i := range data {
		if rng.Float64() < m.rate {
			data[i] = 0
		} else {
			data[i] = keep
		}
	}
	return G.Let(m.node, m.value)
}

// normStats receives one batch-norm layer's batch statistics from a
// training run.
type normStats struct {
	layer    *BatchNorm
	mean     G.Value
	variance G.Value
}

func floats(v G.Value) []float64 {
	if v == nil {
		return nil
	}
	switch d := v.Data().(type) {
	case []float64:
		return d
	case float64:
		return []float64{d}
	}
	return nil
}

func scalar(v G.Value) float64 {
	if f := floats(v); len(f) > 0 {
		return f[0]
	}
	return math.NaN()
}

// ensureShape reshapes n when an op collapsed or kept an axis differently
// than the layer expects.
func ensureShape(n *G.Node, shape ...int) (*G.Node, error) {
	want := tensor.Shape(shape)
	if n.Shape().Eq(want) {
		return n, nil
	}
	return G.Reshape(n, want)
}

// leading returns the axes 0..rank-2 as a broadcast pattern, and the same
// as ints for reductions.
func leading(rank int) ([]byte, []int) {
	pattern := make([]byte, rank-1)
	axes := make([]int, rank-1)
	for i := range axes {
		pattern[i] = byte(i)
		axes[i] = i
	}
	return pattern, axes
}
