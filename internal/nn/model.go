package nn

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	G "gorgonia.org/gorgonia"

	"github.com/himanishpuri/GenreDNA/pkg/logger"
)

// EpochMetrics are the values recorded after one training epoch. The
// validation fields are zero when no validation set was given.
type EpochMetrics struct {
	Epoch       int
	Loss        float64
	Accuracy    float64
	ValLoss     float64
	ValAccuracy float64
	Duration    time.Duration
}

// History collects per-epoch metrics of one Fit call.
type History struct {
	Epochs        []EpochMetrics
	HasValidation bool
}

func (h *History) series(pick func(EpochMetrics) float64) []float64 {
	out := make([]float64, len(h.Epochs))
	for i, e := range h.Epochs {
		out[i] = pick(e)
	}
	return out
}

func (h *History) Loss() []float64     { return h.series(func(e EpochMetrics) float64 { return e.Loss }) }
func (h *History) Accuracy() []float64 { return h.series(func(e EpochMetrics) float64 { return e.Accuracy }) }
func (h *History) ValLoss() []float64  { return h.series(func(e EpochMetrics) float64 { return e.ValLoss }) }
func (h *History) ValAccuracy() []float64 {
	return h.series(func(e EpochMetrics) float64 { return e.ValAccuracy })
}

// FitConfig controls Fit. ValX/ValY may be nil.
type FitConfig struct {
	Epochs    int
	BatchSize int
	ValX      *Tensor
	ValY      []int
	// OnEpoch, if set, is called after every epoch.
	OnEpoch func(EpochMetrics)
}

// Logger receives per-epoch reports.
type Logger interface {
	Infof(format string, args ...any)
}

// Model is a sequential stack of layers trained with sparse categorical
// cross-entropy. Graphs are compiled lazily per batch size and must be
// released with Close.
type Model struct {
	Name string

	layers  []Layer
	inShape []int
	shapes  [][]int
	opt     *Adam
	rng     *rand.Rand
	log     Logger

	train *graph
	infer map[int]*graph
}

var ErrNotBuilt = errors.New("model is not built")

func NewModel(name string, layers ...Layer) *Model {
	return &Model{Name: name, layers: layers, log: logger.GetLogger()}
}

// SetLogger replaces the logger used for per-epoch reports.
func (m *Model) SetLogger(l Logger) { m.log = l }

func (m *Model) Add(l Layer) { m.layers = append(m.layers, l) }

func (m *Model) Layers() []Layer { return m.layers }

// Build initializes every layer for samples of shape in. rng drives weight
// initialization, dropout masks and batch shuffling.
func (m *Model) Build(in []int, rng *rand.Rand) error {
	if len(m.layers) == 0 {
		return errors.New("model has no layers")
	}
	m.Close()
	m.inShape = append([]int(nil), in...)
	m.shapes = make([][]int, len(m.layers))
	m.rng = rng
	shape := m.inShape
	for i, l := range m.layers {
		out, err := l.Build(shape, rng)
		if err != nil {
			m.shapes = nil
			return fmt.Errorf("layer %d (%s): %w", i, l.Kind(), err)
		}
		for _, p := range l.Params() {
			p.Name = fmt.Sprintf("%s%d_%s", l.Kind(), i, p.Name)
		}
		m.shapes[i] = out
		shape = out
	}
	return nil
}

// Compile attaches the optimizer.
func (m *Model) Compile(opt *Adam) { m.opt = opt }

// Close releases the compiled graphs. The model can be used again
// afterwards; graphs are recompiled on demand.
func (m *Model) Close() {
	if m.train != nil {
		m.train.close()
		m.train = nil
	}
	for _, gr := range m.infer {
		gr.close()
	}
	m.infer = nil
}

func (m *Model) built() bool { return m.shapes != nil }

// OutputShape returns the per-sample output shape of the last layer.
func (m *Model) OutputShape() []int {
	if !m.built() {
		return nil
	}
	return m.shapes[len(m.shapes)-1]
}

func (m *Model) params() []*Param {
	var ps []*Param
	for _, l := range m.layers {
		ps = append(ps, l.Params()...)
	}
	return ps
}

// ParamCount returns the number of trainable values.
func (m *Model) ParamCount() int {
	n := 0
	for _, p := range m.params() {
		n += p.Size()
	}
	return n
}

func (m *Model) penalty() float64 {
	s := 0.0
	for _, p := range m.params() {
		s += p.Penalty()
	}
	return s
}

func (m *Model) checkInput(x *Tensor) error {
	if !m.built() {
		return ErrNotBuilt
	}
	got := x.SampleShape()
	if len(got) != len(m.inShape) {
		return fmt.Errorf("input %v, model expects %v: %w", got, m.inShape, ErrShape)
	}
	for i := range got {
		if got[i] != m.inShape[i] {
			return fmt.Errorf("input %v, model expects %v: %w", got, m.inShape, ErrShape)
		}
	}
	return nil
}

// compile wires every layer into a fresh graph. Training graphs add the
// cost with weight penalties and its gradients.
func (m *Model) compile(batch int, training bool) (*graph, error) {
	gr := newGraph(batch, training)
	gr.x, gr.xv = gr.input("x", append([]int{batch}, m.inShape...)...)
	out := gr.x
	for i, l := range m.layers {
		next, err := l.apply(gr, out)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Kind(), err)
		}
		out = next
	}
	classes := volume(m.OutputShape())
	out, err := ensureShape(out, batch, classes)
	if err != nil {
		return nil, err
	}
	G.Read(out, &gr.probs)

	if !training {
		gr.vm = G.NewTapeMachine(gr.g)
		return gr, nil
	}

	gr.target, gr.targetV = gr.input("target", batch, classes)
	cost, err := crossEntropy(out, gr.target)
	if err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}
	for i, p := range gr.params {
		if p.L2 == 0 {
			continue
		}
		sq, err := G.Square(gr.nodes[i])
		if err != nil {
			return nil, err
		}
		sum, err := G.Sum(sq)
		if err != nil {
			return nil, err
		}
		weighted, err := G.Mul(G.NewConstant(p.L2), sum)
		if err != nil {
			return nil, err
		}
		if cost, err = G.Add(cost, weighted); err != nil {
			return nil, err
		}
	}
	G.Read(cost, &gr.cost)
	if _, err := G.Grad(cost, gr.nodes...); err != nil {
		return nil, fmt.Errorf("gradients: %w", err)
	}
	gr.vm = G.NewTapeMachine(gr.g, G.BindDualValues(gr.nodes...))
	return gr, nil
}

func (m *Model) trainGraph(batch int) (*graph, error) {
	if m.train != nil && m.train.batch == batch {
		return m.train, nil
	}
	if m.train != nil {
		m.train.close()
		m.train = nil
	}
	gr, err := m.compile(batch, true)
	if err != nil {
		return nil, err
	}
	m.train = gr
	return gr, nil
}

func (m *Model) inferGraph(batch int) (*graph, error) {
	if gr, ok := m.infer[batch]; ok {
		return gr, nil
	}
	gr, err := m.compile(batch, false)
	if err != nil {
		return nil, err
	}
	if m.infer == nil {
		m.infer = make(map[int]*graph)
	}
	m.infer[batch] = gr
	return gr, nil
}

// load copies the samples at idx into the graph input. Rows past len(idx)
// repeat the batch from its start when cycle is set and are zero otherwise.
func (gr *graph) load(x *Tensor, idx []int, cycle bool) error {
	k := x.stride()
	data := gr.xv.Data().([]float64)
	for i := 0; i < gr.batch; i++ {
		row := data[i*k : (i+1)*k]
		switch {
		case i < len(idx):
			copy(row, x.Row(idx[i]))
		case cycle:
			copy(row, x.Row(idx[i%len(idx)]))
		default:
			clear(row)
		}
	}
	return G.Let(gr.x, gr.xv)
}

// trainBatch runs one optimizer step and returns the batch loss including
// weight penalties and the number of correct predictions.
func (m *Model) trainBatch(gr *graph, x *Tensor, idx, y []int) (float64, int, error) {
	if err := gr.load(x, idx, true); err != nil {
		return 0, 0, err
	}
	classes := volume(m.OutputShape())
	target := gr.targetV.Data().([]float64)
	clear(target)
	w := 1 / float64(len(idx))
	for i, j := range idx {
		if y[j] < 0 || y[j] >= classes {
			return 0, 0, fmt.Errorf("label %d outside %d classes: %w", y[j], classes, ErrShape)
		}
		target[i*classes+y[j]] = w
	}
	if err := G.Let(gr.target, gr.targetV); err != nil {
		return 0, 0, err
	}
	for _, mask := range gr.masks {
		if err := mask.fill(m.rng); err != nil {
			return 0, 0, err
		}
	}

	defer gr.vm.Reset()
	if err := gr.vm.RunAll(); err != nil {
		return 0, 0, err
	}
	for _, s := range gr.norms {
		s.layer.observe(floats(s.mean), floats(s.variance))
	}
	if err := m.opt.Step(gr.nodes); err != nil {
		return 0, 0, fmt.Errorf("adam: %w", err)
	}
	gr.adopt()

	probs := floats(gr.probs)
	hit := 0
	for i, j := range idx {
		if argmaxRow(probs[i*classes:(i+1)*classes]) == y[j] {
			hit++
		}
	}
	return scalar(gr.cost), hit, nil
}

func argmaxRow(row []float64) int {
	best := 0
	for j, v := range row {
		if v > row[best] {
			best = j
		}
	}
	return best
}

// Fit trains for cfg.Epochs epochs over shuffled mini-batches. The context
// is checked before every batch.
func (m *Model) Fit(ctx context.Context, x *Tensor, y []int, cfg FitConfig) (*History, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	if m.opt == nil {
		return nil, errors.New("model is not compiled")
	}
	n := x.Batch()
	if n != len(y) {
		return nil, fmt.Errorf("%d samples for %d labels: %w", n, len(y), ErrShape)
	}
	if n == 0 {
		return nil, errors.New("no training samples")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	hasVal := cfg.ValX != nil && cfg.ValX.Batch() > 0
	if hasVal {
		if err := m.checkInput(cfg.ValX); err != nil {
			return nil, fmt.Errorf("validation set: %w", err)
		}
	}

	gr, err := m.trainGraph(min(batch, n))
	if err != nil {
		return nil, err
	}
	batch = gr.batch

	hist := &History{HasValidation: hasVal}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		started := time.Now()
		m.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		lossSum, hits := 0.0, 0
		for start := 0; start < n; start += batch {
			if err := ctx.Err(); err != nil {
				return hist, err
			}
			end := min(start+batch, n)
			idx := order[start:end]
			loss, hit, err := m.trainBatch(gr, x, idx, y)
			if err != nil {
				return hist, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			lossSum += loss * float64(len(idx))
			hits += hit
		}

		em := EpochMetrics{
			Epoch:    epoch,
			Loss:     lossSum / float64(n),
			Accuracy: float64(hits) / float64(n),
		}
		if hasVal {
			vl, va, err := m.Evaluate(cfg.ValX, cfg.ValY, batch)
			if err != nil {
				return hist, fmt.Errorf("epoch %d validation: %w", epoch, err)
			}
			em.ValLoss, em.ValAccuracy = vl, va
		}
		em.Duration = time.Since(started)
		hist.Epochs = append(hist.Epochs, em)

		if hasVal {
			m.log.Infof("Epoch %d/%d - %s - loss: %.4f - accuracy: %.4f - val_loss: %.4f - val_accuracy: %.4f",
				epoch, cfg.Epochs, em.Duration.Round(time.Millisecond), em.Loss, em.Accuracy, em.ValLoss, em.ValAccuracy)
		} else {
			m.log.Infof("Epoch %d/%d - %s - loss: %.4f - accuracy: %.4f",
				epoch, cfg.Epochs, em.Duration.Round(time.Millisecond), em.Loss, em.Accuracy)
		}
		if cfg.OnEpoch != nil {
			cfg.OnEpoch(em)
		}
	}
	return hist, nil
}

// Predict returns class probabilities for every sample of x.
func (m *Model) Predict(x *Tensor, batchSize int) (*Tensor, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	n := x.Batch()
	k := volume(m.OutputShape())
	probs := NewTensor(append([]int{n}, m.OutputShape()...)...)
	if n == 0 {
		return probs, nil
	}
	gr, err := m.inferGraph(min(batchSize, n))
	if err != nil {
		return nil, err
	}
	if err := gr.refresh(); err != nil {
		return nil, err
	}
	for _, feed := range gr.feeds {
		if err := feed(); err != nil {
			return nil, err
		}
	}
	for start := 0; start < n; start += gr.batch {
		end := min(start+gr.batch, n)
		idx := make([]int, end-start)
		for i := range idx {
			idx[i] = start + i
		}
		if err := gr.load(x, idx, false); err != nil {
			return nil, err
		}
		if err := gr.vm.RunAll(); err != nil {
			gr.vm.Reset()
			return nil, err
		}
		copy(probs.Data[start*k:end*k], floats(gr.probs)[:len(idx)*k])
		gr.vm.Reset()
	}
	return probs, nil
}

// Evaluate returns the mean loss (with weight penalties) and accuracy of
// the model on x, y.
func (m *Model) Evaluate(x *Tensor, y []int, batchSize int) (float64, float64, error) {
	if x.Batch() != len(y) {
		return 0, 0, fmt.Errorf("%d samples for %d labels: %w", x.Batch(), len(y), ErrShape)
	}
	if len(y) == 0 {
		return 0, 0, errors.New("no evaluation samples")
	}
	probs, err := m.Predict(x, batchSize)
	if err != nil {
		return 0, 0, err
	}
	loss, err := SparseCrossEntropy(probs, y)
	if err != nil {
		return 0, 0, err
	}
	return loss + m.penalty(), Accuracy(probs, y), nil
}

// LayerSummary describes one layer for Summary.
type LayerSummary struct {
	Kind   string
	Output []int
	Params int
}

// Summary lists every layer with its output shape and parameter count.
func (m *Model) Summary() []LayerSummary {
	out := make([]LayerSummary, len(m.layers))
	for i, l := range m.layers {
		n := 0
		for _, p := range l.Params() {
			n += p.Size()
		}
		var shape []int
		if m.built() {
			shape = m.shapes[i]
		}
		out[i] = LayerSummary{Kind: l.Kind(), Output: shape, Params: n}
	}
	return out
}

// String renders the summary as a table.
func (m *Model) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model %q\n", m.Name)
	fmt.Fprintf(&b, "%-4s %-12s %-20s %10s\n", "#", "Layer", "Output shape", "Params")
	for i, s := range m.Summary() {
		fmt.Fprintf(&b, "%-4d %-12s %-20s %10d\n", i, s.Kind, formatShape(s.Output), s.Params)
	}
	fmt.Fprintf(&b, "Total params: %d", m.ParamCount())
	return b.String()
}

func formatShape(s []int) string {
	parts := make([]string, len(s)+1)
	parts[0] = "None"
	for i, d := range s {
		parts[i+1] = fmt.Sprint(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
