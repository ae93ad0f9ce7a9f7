package eval

import (
	"reflect"
	"strings"
	"testing"
)

func TestPerfectPredictionsAreDiagonal(t *testing.T) {
	labels := []string{"blues", "jazz", "rock"}
	truth := []int{0, 0, 1, 2, 2, 2}
	c, err := NewConfusion(labels, truth, truth)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]int{{2, 0, 0}, {0, 1, 0}, {0, 0, 3}}
	if !reflect.DeepEqual(c.Counts, want) {
		t.Errorf("counts = %v, want %v", c.Counts, want)
	}
	if c.Accuracy() != 1 || c.Correct() != 6 || c.Total() != 6 {
		t.Errorf("accuracy %.2f correct %d total %d", c.Accuracy(), c.Correct(), c.Total())
	}
}

func TestConfusionRowsAreTruth(t *testing.T) {
	c, err := NewConfusion([]string{"a", "b"}, []int{0, 0, 1, 1}, []int{1, 0, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if c.Counts[0][1] != 1 || c.Counts[1][0] != 0 {
		t.Errorf("counts = %v", c.Counts)
	}
	if r := c.Recall(); r[0] != 0.5 || r[1] != 1 {
		t.Errorf("recall = %v", r)
	}
	if c.Max() != 2 {
		t.Errorf("max = %d", c.Max())
	}
	if CountCorrect([]int{0, 0, 1, 1}, []int{1, 0, 1, 1}) != 3 {
		t.Error("CountCorrect mismatch")
	}
	if !strings.Contains(c.String(), "a     1     1") {
		t.Errorf("unexpected table:\n%s", c.String())
	}
}

func TestConfusionErrors(t *testing.T) {
	if _, err := NewConfusion([]string{"a"}, []int{0}, []int{0, 0}); err == nil {
		t.Error("expected length mismatch error")
	}
	if _, err := NewConfusion([]string{"a"}, []int{0}, []int{3}); err == nil {
		t.Error("expected range error")
	}
	c, _ := NewConfusion([]string{"a"}, nil, nil)
	if c.Accuracy() != 0 {
		t.Error("empty matrix should have zero accuracy")
	}
}
