package nn

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

const probClip = 1e-7

// crossEntropy builds -Σ target·log(probs+ε). Targets carry the per-row
// weight, so a one-hot row scaled by 1/n gives the batch mean.
func crossEntropy(probs, target *G.Node) (*G.Node, error) {
	safe, err := G.Add(probs, G.NewConstant(probClip))
	if err != nil {
		return nil, err
	}
	logp, err := G.Log(safe)
	if err != nil {
		return nil, err
	}
	picked, err := G.HadamardProd(target, logp)
	if err != nil {
		return nil, err
	}
	total, err := G.Sum(picked)
	if err != nil {
		return nil, err
	}
	return G.Neg(total)
}

// SparseCrossEntropy returns the mean negative log-probability of the true
// labels. Probabilities are clipped to [1e-7, 1-1e-7].
func SparseCrossEntropy(probs *Tensor, labels []int) (float64, error) {
	n := probs.Batch()
	if n != len(labels) {
		return 0, fmt.Errorf("%d predictions for %d labels: %w", n, len(labels), ErrShape)
	}
	if n == 0 {
		return 0, nil
	}
	k := probs.stride()
	loss := 0.0
	for i, y := range labels {
		if y < 0 || y >= k {
			return 0, fmt.Errorf("label %d outside %d classes: %w", y, k, ErrShape)
		}
		p := math.Min(math.Max(probs.Data[i*k+y], probClip), 1-probClip)
		loss -= math.Log(p)
	}
	return loss / float64(n), nil
}

// Argmax returns the index of the largest value in each row of probs.
func Argmax(probs *Tensor) []int {
	n := probs.Batch()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		row := probs.Row(i)
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

// Accuracy returns the fraction of rows whose argmax equals the label.
func Accuracy(probs *Tensor, labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	hit := 0
	for i, p := range Argmax(probs) {
		if p == labels[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(labels))
}
