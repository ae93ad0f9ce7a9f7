package nn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Activation names accepted by dense and convolutional layers.
const (
	Linear  = "linear"
	ReLU    = "relu"
	Softmax = "softmax"
	Tanh    = "tanh"
	Sigmoid = "sigmoid"
)

func checkActivation(name string) error {
	switch name {
	case "", Linear, ReLU, Softmax, Tanh, Sigmoid:
		return nil
	}
	return fmt.Errorf("unknown activation %q", name)
}

// activate applies name to x. Softmax normalizes over the last axis of a
// matrix.
func activate(name string, x *G.Node) (*G.Node, error) {
	switch name {
	case ReLU:
		return G.Rectify(x)
	case Tanh:
		return G.Tanh(x)
	case Sigmoid:
		return G.Sigmoid(x)
	case Softmax:
		return G.SoftMax(x)
	}
	return x, nil
}
