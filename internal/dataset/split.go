package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Split holds disjoint sample indices for one training run. Validation is
// empty for a flat split.
type Split struct {
	Train      []int
	Validation []int
	Test       []int
}

// Sizes returns (train, validation, test) counts.
func (s Split) Sizes() (int, int, int) {
	return len(s.Train), len(s.Validation), len(s.Test)
}

// Splitter partitions sample indices at random. With Stratify set, each
// class is partitioned separately so class proportions carry over to every
// part.
type Splitter struct {
	Rand     *rand.Rand
	Stratify bool
}

// NewSplitter returns a splitter seeded with seed.
func NewSplitter(seed int64, stratify bool) *Splitter {
	return &Splitter{Rand: rand.New(rand.NewSource(seed)), Stratify: stratify}
}

// testCount carves ceil(fraction*n) samples off, leaving at least one on
// each side when n allows it.
func testCount(n int, fraction float64) int {
	k := int(math.Ceil(fraction * float64(n)))
	if k >= n && n > 1 {
		k = n - 1
	}
	if k < 0 {
		k = 0
	}
	return k
}

func checkFraction(name string, f float64) error {
	if f <= 0 || f >= 1 {
		return fmt.Errorf("%s fraction %.3f must be in (0, 1)", name, f)
	}
	return nil
}

// partition splits idx into (rest, carved) where carved holds
// ceil(fraction*len) indices. labels may be nil when not stratifying.
func (s *Splitter) partition(idx []int, labels []int, fraction float64) (rest, carved []int) {
	if !s.Stratify || labels == nil {
		perm := append([]int(nil), idx...)
		s.Rand.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		k := testCount(len(perm), fraction)
		carved = perm[:k]
		rest = perm[k:]
		sort.Ints(rest)
		sort.Ints(carved)
		return rest, carved
	}

	byClass := map[int][]int{}
	var classes []int
	for _, i := range idx {
		y := labels[i]
		if _, ok := byClass[y]; !ok {
			classes = append(classes, y)
		}
		byClass[y] = append(byClass[y], i)
	}
	sort.Ints(classes)

	want := testCount(len(idx), fraction)
	for _, y := range classes {
		members := byClass[y]
		s.Rand.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		k := int(math.Round(fraction * float64(len(members))))
		if k > len(members) {
			k = len(members)
		}
		carved = append(carved, members[:k]...)
		rest = append(rest, members[k:]...)
	}

	// per-class rounding can miss the overall target by a few samples
	for len(carved) < want && len(rest) > 1 {
		j := s.Rand.Intn(len(rest))
		carved = append(carved, rest[j])
		rest = append(rest[:j], rest[j+1:]...)
	}
	for len(carved) > want && len(carved) > 1 {
		j := s.Rand.Intn(len(carved))
		rest = append(rest, carved[j])
		carved = append(carved[:j], carved[j+1:]...)
	}

	sort.Ints(rest)
	sort.Ints(carved)
	return rest, carved
}

func indices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Flat produces a (train, test) split of labels' indices.
func (s *Splitter) Flat(labels []int, testFraction float64) (Split, error) {
	if err := checkFraction("test", testFraction); err != nil {
		return Split{}, err
	}
	train, test := s.partition(indices(len(labels)), labels, testFraction)
	return Split{Train: train, Test: test}, nil
}

// Nested carves the test part off the whole set, then the validation part
// off what remains.
func (s *Splitter) Nested(labels []int, testFraction, valFraction float64) (Split, error) {
	if err := checkFraction("test", testFraction); err != nil {
		return Split{}, err
	}
	if err := checkFraction("validation", valFraction); err != nil {
		return Split{}, err
	}
	rest, test := s.partition(indices(len(labels)), labels, testFraction)
	train, val := s.partition(rest, labels, valFraction)
	return Split{Train: train, Validation: val, Test: test}, nil
}
