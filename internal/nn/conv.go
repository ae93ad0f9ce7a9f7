package nn

import (
	"fmt"
	"math"
	"math/rand"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Conv2D is a stride-1 "valid" convolution over [height, width, channels]
// input.
type Conv2D struct {
	Filters    int
	KernelH    int
	KernelW    int
	Activation string
	L2         float64

	outH, outW int
	kernel     *Param // filters × channels × kh × kw
	bias       *Param
}

func NewConv2D(filters, kh, kw int, activation string, l2 float64) *Conv2D {
	return &Conv2D{Filters: filters, KernelH: kh, KernelW: kw, Activation: activation, L2: l2}
}

func (l *Conv2D) Kind() string { return "conv2d" }

func (l *Conv2D) Build(in []int, rng *rand.Rand) ([]int, error) {
	if err := checkRank("conv2d", in, 3); err != nil {
		return nil, err
	}
	if l.Filters <= 0 || l.KernelH <= 0 || l.KernelW <= 0 {
		return nil, fmt.Errorf("conv2d %d filters of %dx%d: %w", l.Filters, l.KernelH, l.KernelW, ErrShape)
	}
	if err := checkActivation(l.Activation); err != nil {
		return nil, err
	}
	h, w, c := in[0], in[1], in[2]
	l.outH, l.outW = h-l.KernelH+1, w-l.KernelW+1
	if l.outH <= 0 || l.outW <= 0 {
		return nil, fmt.Errorf("conv2d %dx%d kernel does not fit input %v: %w", l.KernelH, l.KernelW, in, ErrShape)
	}

	area := l.KernelH * l.KernelW
	n := l.Filters * c * area
	l.kernel = newParam("kernel", glorotUniform(n, c*area, l.Filters*area, rng), l.Filters, c, l.KernelH, l.KernelW)
	l.kernel.L2 = l.L2
	l.bias = newParam("bias", make([]float64, l.Filters), 1, 1, 1, l.Filters)

	return []int{l.outH, l.outW, l.Filters}, nil
}

func (l *Conv2D) Params() []*Param { return []*Param{l.kernel, l.bias} }

// apply runs the convolution in gorgonia's channels-first layout and
// transposes back to channels-last.
func (l *Conv2D) apply(gr *graph, x *G.Node) (*G.Node, error) {
	nchw, err := G.Transpose(x, 0, 3, 1, 2)
	if err != nil {
		return nil, fmt.Errorf("conv2d layout: %w", err)
	}
	conv, err := G.Conv2d(nchw, gr.bind(l.kernel), tensor.Shape{l.KernelH, l.KernelW},
		[]int{0, 0}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}
	nhwc, err := G.Transpose(conv, 0, 2, 3, 1)
	if err != nil {
		return nil, fmt.Errorf("conv2d layout: %w", err)
	}
	z, err := G.BroadcastAdd(nhwc, gr.bind(l.bias), nil, []byte{0, 1, 2})
	if err != nil {
		return nil, fmt.Errorf("conv2d bias: %w", err)
	}
	return activate(l.Activation, z)
}

// MaxPool2D takes window maxima with "same" output size: each spatial axis
// shrinks to ceil(size/stride).
type MaxPool2D struct {
	PoolH, PoolW     int
	StrideH, StrideW int

	inH, inW   int
	outH, outW int
	padH, padW int
	c          int
}

func NewMaxPool2D(ph, pw, sh, sw int) *MaxPool2D {
	return &MaxPool2D{PoolH: ph, PoolW: pw, StrideH: sh, StrideW: sw}
}

func (p *MaxPool2D) Kind() string { return "maxpool2d" }

// samePadding returns the output size and the per-side padding. Padding is
// applied on both sides, so an odd total is rounded up and the surplus
// trailing window is cut off in apply.
func samePadding(size, pool, stride int) (out, pad int) {
	out = int(math.Ceil(float64(size) / float64(stride)))
	total := (out-1)*stride + pool - size
	if total < 0 {
		total = 0
	}
	return out, (total + 1) / 2
}

func pooledSize(size, pool, stride, pad int) int {
	return (size+2*pad-pool)/stride + 1
}

func (p *MaxPool2D) Build(in []int, _ *rand.Rand) ([]int, error) {
	if err := checkRank("maxpool2d", in, 3); err != nil {
		return nil, err
	}
	if p.PoolH <= 0 || p.PoolW <= 0 || p.StrideH <= 0 || p.StrideW <= 0 {
		return nil, fmt.Errorf("maxpool2d pool %dx%d stride %dx%d: %w", p.PoolH, p.PoolW, p.StrideH, p.StrideW, ErrShape)
	}
	p.inH, p.inW = in[0], in[1]
	p.outH, p.padH = samePadding(in[0], p.PoolH, p.StrideH)
	p.outW, p.padW = samePadding(in[1], p.PoolW, p.StrideW)
	p.c = in[2]
	return []int{p.outH, p.outW, p.c}, nil
}

func (p *MaxPool2D) Params() []*Param { return nil }

func (p *MaxPool2D) apply(gr *graph, x *G.Node) (*G.Node, error) {
	nchw, err := G.Transpose(x, 0, 3, 1, 2)
	if err != nil {
		return nil, fmt.Errorf("maxpool2d layout: %w", err)
	}
	pooled, err := G.MaxPool2D(nchw, tensor.Shape{p.PoolH, p.PoolW},
		[]int{p.padH, p.padW}, []int{p.StrideH, p.StrideW})
	if err != nil {
		return nil, fmt.Errorf("maxpool2d: %w", err)
	}
	// (C, H, W) axes after the batch
	var cut []tensor.Slice
	if h := pooledSize(p.inH, p.PoolH, p.StrideH, p.padH); h > p.outH {
		cut = []tensor.Slice{nil, nil, G.S(0, p.outH), nil}
	}
	if w := pooledSize(p.inW, p.PoolW, p.StrideW, p.padW); w > p.outW {
		if cut == nil {
			cut = []tensor.Slice{nil, nil, nil, nil}
		}
		cut[3] = G.S(0, p.outW)
	}
	if cut != nil {
		if pooled, err = G.Slice(pooled, cut...); err != nil {
			return nil, fmt.Errorf("maxpool2d crop: %w", err)
		}
		if pooled, err = ensureShape(pooled, gr.batch, p.c, p.outH, p.outW); err != nil {
			return nil, err
		}
	}
	return G.Transpose(pooled, 0, 2, 3, 1)
}
