// Package eval scores predictions against true labels.
package eval

import (
	"fmt"
	"strings"
)

// Confusion is a square count matrix: Counts[true][predicted].
type Confusion struct {
	Labels []string
	Counts [][]int
}

// NewConfusion tallies predicted against truth. Every label must index
// labels.
func NewConfusion(labels []string, truth, predicted []int) (*Confusion, error) {
	if len(truth) != len(predicted) {
		return nil, fmt.Errorf("%d true labels for %d predictions", len(truth), len(predicted))
	}
	k := len(labels)
	c := &Confusion{Labels: labels, Counts: make([][]int, k)}
	for i := range c.Counts {
		c.Counts[i] = make([]int, k)
	}
	for i, t := range truth {
		p := predicted[i]
		if t < 0 || t >= k || p < 0 || p >= k {
			return nil, fmt.Errorf("sample %d: label pair (%d, %d) outside %d classes", i, t, p, k)
		}
		c.Counts[t][p]++
	}
	return c, nil
}

// Total returns the number of tallied samples.
func (c *Confusion) Total() int {
	n := 0
	for _, row := range c.Counts {
		for _, v := range row {
			n += v
		}
	}
	return n
}

// Correct returns the trace.
func (c *Confusion) Correct() int {
	n := 0
	for i := range c.Counts {
		n += c.Counts[i][i]
	}
	return n
}

// Accuracy returns Correct/Total, or 0 for an empty matrix.
func (c *Confusion) Accuracy() float64 {
	if t := c.Total(); t > 0 {
		return float64(c.Correct()) / float64(t)
	}
	return 0
}

// Max returns the largest cell.
func (c *Confusion) Max() int {
	m := 0
	for _, row := range c.Counts {
		for _, v := range row {
			m = max(m, v)
		}
	}
	return m
}

// Recall returns the per-class fraction of true samples predicted
// correctly. Classes without samples get 0.
func (c *Confusion) Recall() []float64 {
	out := make([]float64, len(c.Counts))
	for i, row := range c.Counts {
		sum := 0
		for _, v := range row {
			sum += v
		}
		if sum > 0 {
			out[i] = float64(row[i]) / float64(sum)
		}
	}
	return out
}

// String renders the matrix as a text table with true labels as rows.
func (c *Confusion) String() string {
	width := 5
	for _, l := range c.Labels {
		width = max(width, len(l))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%*s", width, "")
	for _, l := range c.Labels {
		fmt.Fprintf(&b, " %*s", width, l)
	}
	for i, row := range c.Counts {
		fmt.Fprintf(&b, "\n%*s", width, c.Labels[i])
		for _, v := range row {
			fmt.Fprintf(&b, " %*d", width, v)
		}
	}
	return b.String()
}

// CountCorrect returns how many predictions equal the truth.
func CountCorrect(truth, predicted []int) int {
	n := 0
	for i := range truth {
		if i < len(predicted) && truth[i] == predicted[i] {
			n++
		}
	}
	return n
}
