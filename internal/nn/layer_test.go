package nn

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/himanishpuri/GenreDNA/pkg/logger"
)

func randomTensor(rng *rand.Rand, shape ...int) *Tensor {
	t := NewTensor(shape...)
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64()
	}
	return t
}

// forward builds a one-layer model on in and returns its inference output
// for x, evaluated in batches of batch.
func forward(t *testing.T, l Layer, in []int, x *Tensor, batch int, setup func()) *Tensor {
	t.Helper()
	m := NewModel(l.Kind(), l)
	m.SetLogger(logger.Discard())
	if err := m.Build(in, rand.New(rand.NewSource(3))); err != nil {
		t.Fatalf("Build(%v) failed: %v", in, err)
	}
	defer m.Close()
	if setup != nil {
		setup()
	}
	out, err := m.Predict(x, batch)
	if err != nil {
		t.Fatalf("%s forward: %v", l.Kind(), err)
	}
	return out
}

func closeTo(t *testing.T, what string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: %d values, want %d", what, len(got), len(want))
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("%s[%d] = %.9f, want %.9f", what, i, got[i], want[i])
		}
	}
}

func TestDenseForward(t *testing.T) {
	d := NewDense(2, Linear, 0)
	x := &Tensor{Shape: []int{3, 3}, Data: []float64{1, 0, 0, 0, 1, 0, 1, 1, 1}}
	// batches of two leave a padded row in the second run
	out := forward(t, d, []int{3}, x, 2, func() {
		copy(d.w.Data(), []float64{1, 2, 3, 4, 5, 6})
		copy(d.b.Data(), []float64{0.5, -1})
	})
	closeTo(t, "dense", out.Data, []float64{1.5, 1, 3.5, 3, 9.5, 11})
}

func TestDenseSoftmaxRows(t *testing.T) {
	x := randomTensor(rand.New(rand.NewSource(2)), 5, 4)
	out := forward(t, NewDense(3, Softmax, 0), []int{4}, x, 5, nil)
	for i := 0; i < 5; i++ {
		sum := 0.0
		for _, p := range out.Row(i) {
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("row %d sums to %f", i, sum)
		}
	}
}

func TestConv2DForward(t *testing.T) {
	c := NewConv2D(2, 2, 2, Linear, 0)
	x := &Tensor{Shape: []int{1, 3, 3, 1}, Data: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}}
	out := forward(t, c, []int{3, 3, 1}, x, 1, func() {
		k := c.kernel.Data()
		for i := range k {
			k[i] = 0
		}
		// filter 0 sums its window, filter 1 only sees the bias
		for i := 0; i < 4; i++ {
			k[i] = 1
		}
		copy(c.bias.Data(), []float64{0.5, -2})
	})
	closeTo(t, "conv2d", out.Data, []float64{12.5, -2, 16.5, -2, 24.5, -2, 28.5, -2})
}

func TestMaxPool2DForward(t *testing.T) {
	x := &Tensor{Shape: []int{1, 3, 3, 1}, Data: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}}
	out := forward(t, NewMaxPool2D(2, 2, 2, 2), []int{3, 3, 1}, x, 1, nil)
	closeTo(t, "maxpool2d", out.Data, []float64{1, 3, 7, 9})
}

func TestMaxPoolSameOutputShape(t *testing.T) {
	tests := []struct {
		in         []int
		pool, strd int
		want       []int
	}{
		{[]int{257, 11, 32}, 3, 2, []int{129, 6, 32}},
		{[]int{127, 4, 32}, 3, 2, []int{64, 2, 32}},
		{[]int{63, 1, 32}, 2, 2, []int{32, 1, 32}},
		{[]int{6, 5, 1}, 2, 1, []int{6, 5, 1}},
	}
	for _, tt := range tests {
		got, err := NewMaxPool2D(tt.pool, tt.pool, tt.strd, tt.strd).Build(tt.in, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !equalShape(got, tt.want) {
			t.Errorf("pool %v -> %v, want %v", tt.in, got, tt.want)
		}
	}

	// an even pool at stride 1 pads past the input and is cropped back
	x := randomTensor(rand.New(rand.NewSource(4)), 2, 6, 5, 1)
	out := forward(t, NewMaxPool2D(2, 2, 1, 1), []int{6, 5, 1}, x, 2, nil)
	if !equalShape(out.Shape, []int{2, 6, 5, 1}) {
		t.Errorf("cropped pool output %v", out.Shape)
	}
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sigmoid(v float64) float64 { return 1 / (1 + math.Exp(-v)) }

// lstmReference runs the recurrence for one sample directly on the
// layer's weights.
func lstmReference(l *LSTM, x []float64) [][]float64 {
	u := l.Units
	h := make([]float64, u)
	c := make([]float64, u)
	var out [][]float64
	for t := 0; t < l.steps; t++ {
		xt := x[t*l.feats : (t+1)*l.feats]
		var z [4][]float64
		for k, g := range l.gates {
			w, r, b := g.w.Data(), g.r.Data(), g.b.Data()
			z[k] = make([]float64, u)
			for j := 0; j < u; j++ {
				v := b[j]
				for i, xi := range xt {
					v += xi * w[i*u+j]
				}
				for i, hi := range h {
					v += hi * r[i*u+j]
				}
				if k == 2 {
					z[k][j] = math.Tanh(v)
				} else {
					z[k][j] = sigmoid(v)
				}
			}
		}
		next := make([]float64, u)
		for j := 0; j < u; j++ {
			c[j] = z[1][j]*c[j] + z[0][j]*z[2][j]
			next[j] = z[3][j] * math.Tanh(c[j])
		}
		h = next
		out = append(out, h)
	}
	return out
}

func TestLSTMForward(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	x := randomTensor(rng, 3, 4, 2)

	seq := NewLSTM(3, true)
	out := forward(t, seq, []int{4, 2}, x, 2, nil)
	if !equalShape(out.Shape, []int{3, 4, 3}) {
		t.Fatalf("sequence output %v", out.Shape)
	}
	for s := 0; s < 3; s++ {
		var want []float64
		for _, h := range lstmReference(seq, x.Row(s)) {
			want = append(want, h...)
		}
		closeTo(t, "lstm sequence", out.Row(s), want)
	}

	last := NewLSTM(3, false)
	out = forward(t, last, []int{4, 2}, x, 3, nil)
	for s := 0; s < 3; s++ {
		ref := lstmReference(last, x.Row(s))
		closeTo(t, "lstm last state", out.Row(s), ref[len(ref)-1])
	}
}

func TestBatchNormInference(t *testing.T) {
	b := NewBatchNorm()
	x := &Tensor{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}}
	out := forward(t, b, []int{2}, x, 2, func() {
		b.RunningMean[0], b.RunningMean[1] = 1, 2
		b.RunningVar[0], b.RunningVar[1] = 4-b.Epsilon, 1-b.Epsilon
		copy(b.gamma.Data(), []float64{2, 1})
		copy(b.beta.Data(), []float64{0, 10})
	})
	closeTo(t, "batchnorm", out.Data, []float64{0, 10, 2, 12})
}

func TestBatchNormRunningAverages(t *testing.T) {
	b := NewBatchNorm()
	m := NewModel("bn", b, NewDense(2, Softmax, 0))
	m.SetLogger(logger.Discard())
	if err := m.Build([]int{2}, rand.New(rand.NewSource(1))); err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	m.Compile(NewAdam(0.01))
	x := &Tensor{Shape: []int{2, 2}, Data: []float64{4, 10, 6, 10}}
	if _, err := m.Fit(context.Background(), x, []int{0, 1}, FitConfig{Epochs: 1, BatchSize: 2}); err != nil {
		t.Fatal(err)
	}
	if math.Abs(b.RunningMean[0]-0.05) > 1e-12 || math.Abs(b.RunningMean[1]-0.1) > 1e-12 {
		t.Errorf("running mean = %v, want [0.05 0.1]", b.RunningMean)
	}
	// variance of channel 0 is 1, channel 1 is 0
	if math.Abs(b.RunningVar[0]-1) > 1e-12 || math.Abs(b.RunningVar[1]-0.99) > 1e-12 {
		t.Errorf("running var = %v, want [1 0.99]", b.RunningVar)
	}
}

func TestBuildShapeErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		name  string
		layer Layer
		in    []int
	}{
		{"conv on matrix", NewConv2D(8, 3, 3, ReLU, 0), []int{10, 13}},
		{"kernel larger than input", NewConv2D(8, 3, 3, ReLU, 0), []int{2, 13, 1}},
		{"lstm on image", NewLSTM(8, false), []int{10, 13, 1}},
		{"pool on vector", NewMaxPool2D(2, 2, 2, 2), []int{10}},
		{"dense without units", NewDense(0, ReLU, 0), []int{10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.layer.Build(tt.in, rng); !errors.Is(err, ErrShape) {
				t.Errorf("expected ErrShape, got %v", err)
			}
		})
	}
}

func TestOrthogonalRecurrentKernel(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	const units = 6
	w := orthogonal(units, 4*units, rng)

	m := mat.NewDense(units, 4*units, w)
	var g mat.Dense
	g.Mul(m, m.T())
	for i := 0; i < units; i++ {
		for j := 0; j < units; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(g.At(i, j)-want) > 1e-9 {
				t.Fatalf("W·Wᵀ[%d][%d] = %f, want %f", i, j, g.At(i, j), want)
			}
		}
	}
}

func TestLSTMGateParams(t *testing.T) {
	l := NewLSTM(3, false)
	if _, err := l.Build([]int{4, 2}, rand.New(rand.NewSource(1))); err != nil {
		t.Fatal(err)
	}
	for k, g := range l.gates {
		want := 0.0
		if k == 1 {
			want = 1
		}
		for j, b := range g.b.Data() {
			if b != want {
				t.Errorf("gate %s bias[%d] = %f, want %f", gateNames[k], j, b, want)
			}
		}
	}
	// 4 gates × (2·3 + 3·3 + 3)
	total := 0
	for _, p := range l.Params() {
		total += p.Size()
	}
	if total != 4*(6+9+3) {
		t.Errorf("lstm has %d weights", total)
	}
}

func TestDropoutMask(t *testing.T) {
	gr := newGraph(4, true)
	node, value := gr.input("mask", 4, 1000)
	mask := &dropoutMask{node: node, value: value, rate: 0.5}
	if err := mask.fill(rand.New(rand.NewSource(2))); err != nil {
		t.Fatal(err)
	}
	zeros, sum := 0, 0.0
	data := value.Data().([]float64)
	for _, v := range data {
		if v == 0 {
			zeros++
		} else if v != 2 {
			t.Fatalf("kept activation scaled to %f, want 2", v)
		}
		sum += v
	}
	if frac := float64(zeros) / float64(len(data)); frac < 0.45 || frac > 0.55 {
		t.Errorf("dropped fraction %.3f, want about 0.5", frac)
	}
	if mean := sum / float64(len(data)); math.Abs(mean-1) > 0.1 {
		t.Errorf("mean after dropout %.3f, want about 1", mean)
	}

	d := NewDropout(0.5)
	if _, err := d.Build([]int{1000}, nil); err != nil {
		t.Fatal(err)
	}
	infer := newGraph(4, false)
	x, _ := infer.input("x", 4, 1000)
	if out, err := d.apply(infer, x); err != nil || out != x {
		t.Error("dropout should be the identity at inference")
	}
	if len(infer.masks) != 0 {
		t.Error("inference graph should carry no dropout masks")
	}

	if _, err := NewDropout(1).Build([]int{3}, nil); err == nil {
		t.Error("expected error for rate 1")
	}
}

func TestSpecBuildsLayers(t *testing.T) {
	specs := []LayerSpec{
		{Kind: KindConv2D, Filters: 4, Kernel: []int{3}, Activation: ReLU},
		{Kind: KindMaxPool2D, Pool: []int{3, 3}, Strides: []int{2, 2}},
		{Kind: KindBatchNorm},
		{Kind: KindFlatten},
		{Kind: KindDropout},
		{Kind: KindDense, Units: 3, Activation: Softmax},
	}
	layers, err := BuildLayers(specs, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if d := layers[4].(*Dropout); d.Rate != 0.3 {
		t.Errorf("dropout default rate = %f", d.Rate)
	}
	if p := layers[1].(*MaxPool2D); p.StrideH != 2 || p.PoolW != 3 {
		t.Errorf("pool = %+v", p)
	}

	m := NewModel("spec", layers...)
	if err := m.Build([]int{10, 8, 1}, rand.New(rand.NewSource(1))); err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if !equalShape(m.OutputShape(), []int{3}) {
		t.Errorf("output shape %v", m.OutputShape())
	}
	probs, err := m.Predict(randomTensor(rand.New(rand.NewSource(2)), 3, 10, 8, 1), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !equalShape(probs.Shape, []int{3, 3}) {
		t.Errorf("prediction shape %v", probs.Shape)
	}

	if _, err := BuildLayers([]LayerSpec{{Kind: "gru"}}, 0.3); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := BuildLayers([]LayerSpec{{Kind: KindConv2D, Kernel: []int{1, 2, 3}}}, 0.3); err == nil {
		t.Error("expected error for a three-element kernel")
	}
}
