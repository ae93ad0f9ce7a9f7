package progress

import (
	"bytes"
	"testing"
	"time"
)

func TestNoopBar(t *testing.T) {
	for _, b := range []*Bar{{}, New(nil, "x", 10), New(&bytes.Buffer{}, "x", 0)} {
		b.Done(time.Millisecond)
		b.Abort()
		b.Wait()
	}
}

func TestBarCompletes(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, "Work", 3)
	for i := 0; i < 3; i++ {
		b.Done(time.Millisecond)
	}
	b.Wait()
}

func TestBarAbort(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, "Work", 5)
	b.Done(time.Millisecond)
	b.Abort()
	b.Wait()
}
