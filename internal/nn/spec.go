package nn

import (
	"fmt"
	"strings"
)

// Layer kinds understood by LayerSpec.
const (
	KindFlatten   = "flatten"
	KindDense     = "dense"
	KindDropout   = "dropout"
	KindConv2D    = "conv2d"
	KindMaxPool2D = "maxpool2d"
	KindBatchNorm = "batchnorm"
	KindLSTM      = "lstm"
)

// LayerSpec declares one layer. Only the fields used by Kind matter.
type LayerSpec struct {
	Kind            string  `yaml:"kind" json:"kind"`
	Units           int     `yaml:"units,omitempty" json:"units,omitempty"`
	Filters         int     `yaml:"filters,omitempty" json:"filters,omitempty"`
	Kernel          []int   `yaml:"kernel,omitempty" json:"kernel,omitempty"`
	Pool            []int   `yaml:"pool,omitempty" json:"pool,omitempty"`
	Strides         []int   `yaml:"strides,omitempty" json:"strides,omitempty"`
	Activation      string  `yaml:"activation,omitempty" json:"activation,omitempty"`
	L2              float64 `yaml:"l2,omitempty" json:"l2,omitempty"`
	Rate            float64 `yaml:"rate,omitempty" json:"rate,omitempty"`
	ReturnSequences bool    `yaml:"return_sequences,omitempty" json:"return_sequences,omitempty"`
}

// pair reads a one- or two-element size, defaulting to def×def.
func pair(v []int, def int) (int, int, error) {
	switch len(v) {
	case 0:
		return def, def, nil
	case 1:
		return v[0], v[0], nil
	case 2:
		return v[0], v[1], nil
	}
	return 0, 0, fmt.Errorf("size %v must have one or two elements", v)
}

// Layer instantiates the spec. defaultRate is used by dropout specs
// without an explicit rate.
func (s LayerSpec) Layer(defaultRate float64) (Layer, error) {
	switch strings.ToLower(s.Kind) {
	case KindFlatten:
		return NewFlatten(), nil
	case KindDense:
		act := s.Activation
		if act == "" {
			act = Linear
		}
		return NewDense(s.Units, act, s.L2), nil
	case KindDropout:
		rate := s.Rate
		if rate == 0 {
			rate = defaultRate
		}
		return NewDropout(rate), nil
	case KindConv2D:
		kh, kw, err := pair(s.Kernel, 3)
		if err != nil {
			return nil, fmt.Errorf("conv2d kernel: %w", err)
		}
		act := s.Activation
		if act == "" {
			act = Linear
		}
		return NewConv2D(s.Filters, kh, kw, act, s.L2), nil
	case KindMaxPool2D:
		ph, pw, err := pair(s.Pool, 2)
		if err != nil {
			return nil, fmt.Errorf("maxpool2d pool: %w", err)
		}
		sh, sw, err := pair(s.Strides, 0)
		if err != nil {
			return nil, fmt.Errorf("maxpool2d strides: %w", err)
		}
		if sh == 0 {
			sh, sw = ph, pw
		}
		return NewMaxPool2D(ph, pw, sh, sw), nil
	case KindBatchNorm:
		return NewBatchNorm(), nil
	case KindLSTM:
		return NewLSTM(s.Units, s.ReturnSequences), nil
	}
	return nil, fmt.Errorf("unknown layer kind %q", s.Kind)
}

// BuildLayers instantiates every spec in order.
func BuildLayers(specs []LayerSpec, defaultRate float64) ([]Layer, error) {
	layers := make([]Layer, 0, len(specs))
	for i, s := range specs {
		l, err := s.Layer(defaultRate)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers = append(layers, l)
	}
	return layers, nil
}
