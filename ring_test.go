package gsat

import (
	"math/rand"
	"testing"
)

func TestRingCapacity(t *testing.T) {
	for _, test := range []struct{ size, cap int }{
		{1, 1}, {3, 4}, {10, 16}, {256, 256}, {257, 512},
	} {
		if c := NewRing(test.size).Cap(); c != test.cap {
			t.Errorf("NewRing(%d).Cap() = %d, want %d", test.size, c, test.cap)
		}
	}
}

func TestRingPushPop(t *testing.T) {
	rb := NewRing(4)
	if _, err := rb.Pop(); err != ErrBufferEmpty {
		t.Fatalf("Pop on empty: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := rb.Push(byte('a' + i)); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	if err := rb.Push('x'); err != ErrBufferFull {
		t.Fatalf("Push on full: %v", err)
	}
	if rb.Dropped() != 1 {
		t.Errorf("Dropped() = %d", rb.Dropped())
	}
	if c, _ := rb.Peek(2); c != 'c' {
		t.Errorf("Peek(2) = %q", c)
	}
	if _, err := rb.Peek(4); err != ErrBufferEmpty {
		t.Errorf("Peek past end: %v", err)
	}
	for i := 0; i < 4; i++ {
		c, err := rb.Pop()
		if err != nil || c != byte('a'+i) {
			t.Fatalf("Pop %d = %q, %v", i, c, err)
		}
	}
	if rb.Len() != 0 {
		t.Errorf("Len() = %d", rb.Len())
	}
}

func TestRingWriteDrain(t *testing.T) {
	rb := NewRing(8)
	n, err := rb.Write([]byte("0123456789"))
	if n != 8 || err != ErrBufferFull {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if rb.Dropped() != 2 {
		t.Errorf("Dropped() = %d", rb.Dropped())
	}
	if i := rb.Index(0, func(c byte) bool { return c == '5' }); i != 5 {
		t.Errorf("Index = %d", i)
	}
	if rb.Discard(3) != 3 {
		t.Error("Discard")
	}
	p := make([]byte, 10)
	if n := rb.Drain(p); string(p[:n]) != "34567" {
		t.Errorf("Drain = %q", p[:n])
	}
	rb.Write([]byte("ab"))
	rb.Reset()
	if rb.Len() != 0 || rb.Dropped() != 0 {
		t.Errorf("after Reset Len=%d Dropped=%d", rb.Len(), rb.Dropped())
	}
}

// Len always equals pushes - pops - dropped and never exceeds Cap.
func TestRingAccounting(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	rb := NewRing(16)
	var pushes, pops, next, want int
	for i := 0; i < 10000; i++ {
		if rnd.Intn(3) != 0 {
			pushes++
			if rb.Push(byte(next)) == nil {
				next++
			}
		} else if c, err := rb.Pop(); err == nil {
			pops++
			if c != byte(want) {
				t.Fatalf("step %d: popped %d, want %d", i, c, want)
			}
			want++
		}
		if got := pushes - pops - int(rb.Dropped()); rb.Len() != got {
			t.Fatalf("step %d: Len() = %d, want %d", i, rb.Len(), got)
		}
		if rb.Len() > rb.Cap() {
			t.Fatalf("step %d: Len() = %d > Cap()", i, rb.Len())
		}
	}
}
