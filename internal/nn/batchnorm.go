package nn

import (
	"fmt"
	"math"
	"math/rand"

	G "gorgonia.org/gorgonia"
)

// BatchNorm normalizes over the last axis. Training uses batch moments and
// folds them into the running averages; inference uses the running
// averages.
type BatchNorm struct {
	Momentum float64
	Epsilon  float64

	in          []int
	c           int
	gamma, beta *Param
	RunningMean []float64
	RunningVar  []float64
}

func NewBatchNorm() *BatchNorm { return &BatchNorm{Momentum: 0.99, Epsilon: 1e-3} }

func (b *BatchNorm) Kind() string { return "batchnorm" }

func (b *BatchNorm) Build(in []int, _ *rand.Rand) ([]int, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("batchnorm needs at least one input axis: %w", ErrShape)
	}
	if err := checkRank("batchnorm", in, len(in)); err != nil {
		return nil, err
	}
	b.in = append([]int(nil), in...)
	b.c = in[len(in)-1]
	ones := make([]float64, b.c)
	b.RunningVar = make([]float64, b.c)
	for i := range ones {
		ones[i] = 1
		b.RunningVar[i] = 1
	}
	b.RunningMean = make([]float64, b.c)
	b.gamma = newParam("gamma", ones, b.paramShape()...)
	b.beta = newParam("beta", make([]float64, b.c), b.paramShape()...)
	return append([]int(nil), in...), nil
}

// paramShape is 1 on every axis but the channel one, batch included.
func (b *BatchNorm) paramShape() []int {
	s := make([]int, len(b.in)+1)
	for i := range s {
		s[i] = 1
	}
	s[len(s)-1] = b.c
	return s
}

func (b *BatchNorm) Params() []*Param { return []*Param{b.gamma, b.beta} }

// observe folds one batch's moments into the running averages.
func (b *BatchNorm) observe(mean, variance []float64) {
	for i := 0; i < b.c && i < len(mean) && i < len(variance); i++ {
		b.RunningMean[i] = b.Momentum*b.RunningMean[i] + (1-b.Momentum)*mean[i]
		b.RunningVar[i] = b.Momentum*b.RunningVar[i] + (1-b.Momentum)*variance[i]
	}
}

func (b *BatchNorm) apply(gr *graph, x *G.Node) (*G.Node, error) {
	rank := len(b.in) + 1
	pattern, axes := leading(rank)
	if !gr.training {
		return b.infer(gr, x, pattern)
	}

	mean, err := G.Mean(x, axes...)
	if err != nil {
		return nil, fmt.Errorf("batchnorm mean: %w", err)
	}
	meanB, err := ensureShape(mean, b.paramShape()...)
	if err != nil {
		return nil, err
	}
	centered, err := G.BroadcastSub(x, meanB, nil, pattern)
	if err != nil {
		return nil, fmt.Errorf("batchnorm center: %w", err)
	}
	sq, err := G.Square(centered)
	if err != nil {
		return nil, err
	}
	variance, err := G.Mean(sq, axes...)
	if err != nil {
		return nil, fmt.Errorf("batchnorm variance: %w", err)
	}
	varB, err := ensureShape(variance, b.paramShape()...)
	if err != nil {
		return nil, err
	}
	shifted, err := G.Add(varB, G.NewConstant(b.Epsilon))
	if err != nil {
		return nil, err
	}
	std, err := G.Sqrt(shifted)
	if err != nil {
		return nil, err
	}
	normed, err := G.BroadcastHadamardDiv(centered, std, nil, pattern)
	if err != nil {
		return nil, fmt.Errorf("batchnorm scale: %w", err)
	}

	stats := &normStats{layer: b}
	G.Read(mean, &stats.mean)
	G.Read(variance, &stats.variance)
	gr.norms = append(gr.norms, stats)

	scaled, err := G.BroadcastHadamardProd(normed, gr.bind(b.gamma), nil, pattern)
	if err != nil {
		return nil, err
	}
	return G.BroadcastAdd(scaled, gr.bind(b.beta), nil, pattern)
}

// infer applies y = x·scale + shift, with both folded from the running
// averages and current gamma and beta before every run.
func (b *BatchNorm) infer(gr *graph, x *G.Node, pattern []byte) (*G.Node, error) {
	scaleN, scaleV := gr.input("bn_scale", b.paramShape()...)
	shiftN, shiftV := gr.input("bn_shift", b.paramShape()...)
	gr.feeds = append(gr.feeds, func() error {
		scale := scaleV.Data().([]float64)
		shift := shiftV.Data().([]float64)
		gamma, beta := b.gamma.Data(), b.beta.Data()
		for i := 0; i < b.c; i++ {
			scale[i] = gamma[i] / math.Sqrt(b.RunningVar[i]+b.Epsilon)
			shift[i] = beta[i] - b.RunningMean[i]*scale[i]
		}
		if err := G.Let(scaleN, scaleV); err != nil {
			return err
		}
		return G.Let(shiftN, shiftV)
	})
	scaled, err := G.BroadcastHadamardProd(x, scaleN, nil, pattern)
	if err != nil {
		return nil, fmt.Errorf("batchnorm scale: %w", err)
	}
	return G.BroadcastAdd(scaled, shiftN, nil, pattern)
}
