package genreclass

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"

	"github.com/himanishpuri/GenreDNA/internal/nn"
	"gopkg.in/yaml.v3"
)

var ErrUnknownArchitecture = errors.New("unknown architecture")

// InputLayout says how a [frames, coefficients] sample is fed to the model.
type InputLayout string

const (
	LayoutMatrix   InputLayout = "matrix"   // [frames, coefficients], flattened by the first layer
	LayoutImage    InputLayout = "image"    // [frames, coefficients, 1]
	LayoutSequence InputLayout = "sequence" // frames are time steps
)

// SplitMode selects how the dataset is partitioned for a run.
type SplitMode string

const (
	// SplitFlat carves a test part only; it doubles as the validation set.
	SplitFlat SplitMode = "flat"
	// SplitNested carves test off everything, then validation off the rest.
	SplitNested SplitMode = "nested"
)

// Architecture is a trainable network description. The softmax output
// layer is not listed; Build appends it sized to the vocabulary.
type Architecture struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description,omitempty"`
	Input        InputLayout    `yaml:"input"`
	Split        SplitMode      `yaml:"split"`
	TestFraction float64        `yaml:"test_fraction"`
	ValFraction  float64        `yaml:"val_fraction,omitempty"`
	LearningRate float64        `yaml:"learning_rate"`
	Epochs       int            `yaml:"epochs"`
	BatchSize    int            `yaml:"batch_size,omitempty"`
	Layers       []nn.LayerSpec `yaml:"layers"`
}

func dense(units int, l2 float64) nn.LayerSpec {
	return nn.LayerSpec{Kind: nn.KindDense, Units: units, Activation: nn.ReLU, L2: l2}
}

var dropout = nn.LayerSpec{Kind: nn.KindDropout}

// regularizedMLP builds flatten followed by an L2-regularized relu dense
// layer and a dropout layer per width.
func regularizedMLP(widths ...int) []nn.LayerSpec {
	specs := []nn.LayerSpec{{Kind: nn.KindFlatten}}
	for _, w := range widths {
		specs = append(specs, dense(w, 0.001), dropout)
	}
	return specs
}

func mlpPreset(name, desc string, layers []nn.LayerSpec) Architecture {
	return Architecture{
		Name:         name,
		Description:  desc,
		Input:        LayoutMatrix,
		Split:        SplitFlat,
		TestFraction: 0.3,
		LearningRate: 1e-4,
		Epochs:       50,
		BatchSize:    32,
		Layers:       layers,
	}
}

// Presets returns the built-in architectures in a stable order.
func Presets() []Architecture {
	return []Architecture{
		mlpPreset("mlp", "three relu dense layers", []nn.LayerSpec{
			{Kind: nn.KindFlatten}, dense(512, 0), dense(256, 0), dense(64, 0),
		}),
		mlpPreset("mlp-dropout", "three dense layers with L2 and dropout", regularizedMLP(512, 256, 64)),
		mlpPreset("mlp5-dropout", "five dense layers with L2 and dropout", regularizedMLP(800, 400, 200, 100, 50)),
		mlpPreset("mlp1-dropout", "one dense layer with L2 and dropout", regularizedMLP(528)),
		{
			Name:         "cnn",
			Description:  "three conv/pool blocks over the MFCC image",
			Input:        LayoutImage,
			Split:        SplitNested,
			TestFraction: 0.25,
			ValFraction:  0.2,
			LearningRate: 1e-3,
			Epochs:       30,
			BatchSize:    32,
			Layers: []nn.LayerSpec{
				{Kind: nn.KindConv2D, Filters: 32, Kernel: []int{3, 3}, Activation: nn.ReLU},
				{Kind: nn.KindMaxPool2D, Pool: []int{3, 3}, Strides: []int{2, 2}},
				{Kind: nn.KindBatchNorm},
				{Kind: nn.KindConv2D, Filters: 32, Kernel: []int{3, 3}, Activation: nn.ReLU},
				{Kind: nn.KindMaxPool2D, Pool: []int{3, 3}, Strides: []int{2, 2}},
				{Kind: nn.KindConv2D, Filters: 32, Kernel: []int{2, 2}, Activation: nn.ReLU},
				{Kind: nn.KindMaxPool2D, Pool: []int{2, 2}, Strides: []int{2, 2}},
				{Kind: nn.KindFlatten},
				dense(64, 0),
				dropout,
			},
		},
		{
			Name:         "lstm",
			Description:  "two stacked LSTM layers over MFCC frames",
			Input:        LayoutSequence,
			Split:        SplitNested,
			TestFraction: 0.25,
			ValFraction:  0.2,
			LearningRate: 1e-3,
			Epochs:       30,
			BatchSize:    32,
			Layers: []nn.LayerSpec{
				{Kind: nn.KindLSTM, Units: 64, ReturnSequences: true},
				{Kind: nn.KindLSTM, Units: 64},
				dense(64, 0),
				dropout,
			},
		},
	}
}

// Registry resolves architecture names to definitions.
type Registry struct {
	byName map[string]Architecture
}

// NewRegistry returns a registry holding the presets plus extra.
// Entries in extra replace presets of the same name.
func NewRegistry(extra ...Architecture) (*Registry, error) {
	r := &Registry{byName: make(map[string]Architecture)}
	for _, a := range Presets() {
		r.byName[a.Name] = a
	}
	for _, a := range extra {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		r.byName[a.Name] = a
	}
	return r, nil
}

// Lookup returns the architecture called name.
func (r *Registry) Lookup(name string) (Architecture, error) {
	a, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Architecture{}, fmt.Errorf("%q: %w", name, ErrUnknownArchitecture)
	}
	return a, nil
}

// Names lists the registered architectures sorted by name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupArchitecture finds a preset by name.
func LookupArchitecture(name string) (Architecture, error) {
	r, _ := NewRegistry()
	return r.Lookup(name)
}

// LoadArchitecture reads a YAML architecture file.
func LoadArchitecture(path string) (Architecture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Architecture{}, fmt.Errorf("reading architecture: %w", err)
	}
	var a Architecture
	if err := yaml.Unmarshal(raw, &a); err != nil {
		return Architecture{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	a.Name = strings.ToLower(strings.TrimSpace(a.Name))
	if a.BatchSize == 0 {
		a.BatchSize = 32
	}
	if err := a.Validate(); err != nil {
		return Architecture{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

func (a Architecture) Validate() error {
	if a.Name == "" {
		return errors.New("architecture has no name")
	}
	switch a.Input {
	case LayoutMatrix, LayoutImage, LayoutSequence:
	default:
		return fmt.Errorf("architecture %s: unknown input layout %q", a.Name, a.Input)
	}
	if a.TestFraction <= 0 || a.TestFraction >= 1 {
		return fmt.Errorf("architecture %s: test fraction %.2f must be in (0, 1)", a.Name, a.TestFraction)
	}
	switch a.Split {
	case SplitFlat:
	case SplitNested:
		if a.ValFraction <= 0 || a.ValFraction >= 1 {
			return fmt.Errorf("architecture %s: validation fraction %.2f must be in (0, 1)", a.Name, a.ValFraction)
		}
	default:
		return fmt.Errorf("architecture %s: unknown split mode %q", a.Name, a.Split)
	}
	if a.LearningRate <= 0 {
		return fmt.Errorf("architecture %s: learning rate must be positive", a.Name)
	}
	if a.Epochs <= 0 {
		return fmt.Errorf("architecture %s: epochs must be positive", a.Name)
	}
	if len(a.Layers) == 0 {
		return fmt.Errorf("architecture %s: no layers", a.Name)
	}
	return nil
}

// Tensor converts dataset samples to the layout the architecture expects.
func (a Architecture) Tensor(x [][][]float64) (*nn.Tensor, error) {
	return nn.FromMatrices(x, a.Input == LayoutImage)
}

// InputShape returns the per-sample model input for frames × coeffs samples.
func (a Architecture) InputShape(frames, coeffs int) []int {
	if a.Input == LayoutImage {
		return []int{frames, coeffs, 1}
	}
	return []int{frames, coeffs}
}

// Build instantiates the layers, appends the softmax output layer, builds
// the model for inShape and compiles it with Adam.
func (a Architecture) Build(inShape []int, numClasses int, dropoutRate float64, rng *rand.Rand) (*nn.Model, error) {
	if numClasses < 1 {
		return nil, fmt.Errorf("architecture %s: need at least one class", a.Name)
	}
	layers, err := nn.BuildLayers(a.Layers, dropoutRate)
	if err != nil {
		return nil, fmt.Errorf("architecture %s: %w", a.Name, err)
	}
	layers = append(layers, nn.NewDense(numClasses, nn.Softmax, 0))

	m := nn.NewModel(a.Name, layers...)
	if err := m.Build(inShape, rng); err != nil {
		return nil, fmt.Errorf("architecture %s: %w", a.Name, err)
	}
	m.Compile(nn.NewAdam(a.LearningRate))
	return m, nil
}
