package nn

import (
	"fmt"
	"math/rand"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// lstmGate is one of the input, forget, cell and output gates.
type lstmGate struct {
	w, r, b *Param
}

// LSTM is a long short-term memory layer over [time, features] input with
// gates ordered input, forget, cell, output. It returns the last hidden
// state, or every hidden state when ReturnSequences is set.
type LSTM struct {
	Units           int
	ReturnSequences bool

	steps, feats int
	gates        [4]lstmGate
}

func NewLSTM(units int, returnSequences bool) *LSTM {
	return &LSTM{Units: units, ReturnSequences: returnSequences}
}

func (l *LSTM) Kind() string { return "lstm" }

var gateNames = [4]string{"i", "f", "c", "o"}

func (l *LSTM) Build(in []int, rng *rand.Rand) ([]int, error) {
	if err := checkRank("lstm", in, 2); err != nil {
		return nil, err
	}
	if l.Units <= 0 {
		return nil, fmt.Errorf("lstm units %d: %w", l.Units, ErrShape)
	}
	l.steps, l.feats = in[0], in[1]
	u := l.Units
	kernel := columns(glorotUniform(l.feats*4*u, l.feats, 4*u, rng), l.feats, u, 4)
	recurrent := columns(orthogonal(u, 4*u, rng), u, u, 4)
	for k, name := range gateNames {
		bias := make([]float64, u)
		if k == 1 {
			for j := range bias {
				bias[j] = 1
			}
		}
		l.gates[k] = lstmGate{
			w: newParam("kernel_"+name, kernel[k], l.feats, u),
			r: newParam("recurrent_kernel_"+name, recurrent[k], u, u),
			b: newParam("bias_"+name, bias, 1, u),
		}
	}

	if l.ReturnSequences {
		return []int{l.steps, u}, nil
	}
	return []int{u}, nil
}

func (l *LSTM) Params() []*Param {
	ps := make([]*Param, 0, 12)
	for _, g := range l.gates {
		ps = append(ps, g.w, g.r, g.b)
	}
	return ps
}

type boundGate struct {
	w, r, b *G.Node
}

// pre returns x·W + h·R + b for one gate.
func (g boundGate) pre(x, h *G.Node) (*G.Node, error) {
	xw, err := G.Mul(x, g.w)
	if err != nil {
		return nil, err
	}
	hr, err := G.Mul(h, g.r)
	if err != nil {
		return nil, err
	}
	sum, err := G.Add(xw, hr)
	if err != nil {
		return nil, err
	}
	return G.BroadcastAdd(sum, g.b, nil, []byte{0})
}

// apply unrolls the recurrence over the time axis.
func (l *LSTM) apply(gr *graph, x *G.Node) (*G.Node, error) {
	n, u := gr.batch, l.Units
	var bound [4]boundGate
	for k, g := range l.gates {
		bound[k] = boundGate{w: gr.bind(g.w), r: gr.bind(g.r), b: gr.bind(g.b)}
	}

	timeMajor, err := G.Transpose(x, 1, 0, 2)
	if err != nil {
		return nil, fmt.Errorf("lstm layout: %w", err)
	}
	h, _ := gr.input("lstm_h0", n, u)
	c, _ := gr.input("lstm_c0", n, u)

	var seq G.Nodes
	for t := 0; t < l.steps; t++ {
		xt, err := G.Slice(timeMajor, G.S(t))
		if err != nil {
			return nil, fmt.Errorf("lstm step %d: %w", t, err)
		}
		if xt, err = ensureShape(xt, n, l.feats); err != nil {
			return nil, err
		}
		if h, c, err = l.step(bound, xt, h, c); err != nil {
			return nil, fmt.Errorf("lstm step %d: %w", t, err)
		}
		if l.ReturnSequences {
			ht, err := G.Reshape(h, tensor.Shape{1, n, u})
			if err != nil {
				return nil, err
			}
			seq = append(seq, ht)
		}
	}
	if !l.ReturnSequences {
		return h, nil
	}
	all := seq[0]
	if len(seq) > 1 {
		if all, err = G.Concat(0, seq...); err != nil {
			return nil, fmt.Errorf("lstm sequence: %w", err)
		}
	}
	return G.Transpose(all, 1, 0, 2)
}

func (l *LSTM) step(g [4]boundGate, x, h, c *G.Node) (*G.Node, *G.Node, error) {
	var z [4]*G.Node
	for k := range g {
		pre, err := g[k].pre(x, h)
		if err != nil {
			return nil, nil, err
		}
		if k == 2 {
			z[k], err = G.Tanh(pre)
		} else {
			z[k], err = G.Sigmoid(pre)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	keep, err := G.HadamardProd(z[1], c)
	if err != nil {
		return nil, nil, err
	}
	write, err := G.HadamardProd(z[0], z[2])
	if err != nil {
		return nil, nil, err
	}
	next, err := G.Add(keep, write)
	if err != nil {
		return nil, nil, err
	}
	squashed, err := G.Tanh(next)
	if err != nil {
		return nil, nil, err
	}
	out, err := G.HadamardProd(z[3], squashed)
	if err != nil {
		return nil, nil, err
	}
	return out, next, nil
}
