package telegraph

import (
	"errors"
	"testing"
)

func TestRingBufferCapacity(t *testing.T) {
	r, err := NewRingBuffer[int](4)
	if err != nil {
		t.Fatalf("failed to create ring buffer: %s", err)
	}

	// no reserved slot: a buffer of capacity N holds N elements
	for i := 0; i < 4; i++ {
		if err := r.Push(i); err != nil {
			t.Fatalf("push %d failed: %s", i, err)
		}
	}
	if r.Size() != 4 || r.Capacity() != 4 {
		t.Errorf("expected size 4 capacity 4, got %d/%d", r.Size(), r.Capacity())
	}

	if err := r.Push(99); !errors.Is(err, ErrRingFull) {
		t.Fatalf("expected ErrRingFull, got %v", err)
	}
	// overflow must not have touched the contents
	if r.Size() != 4 {
		t.Errorf("size changed on failed push: %d", r.Size())
	}
	for i := 0; i < 4; i++ {
		v, err := r.Item(i)
		if err != nil || v != i {
			t.Errorf("item %d: got %d, %v", i, v, err)
		}
	}
}

func TestRingBufferInvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		if _, err := NewRingBuffer[string](c); !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("capacity %d: expected ErrInvalidCapacity, got %v", c, err)
		}
	}
}

func TestRingBufferSize(t *testing.T) {
	r, _ := NewRingBuffer[int](5)

	// wrap around a few times
	pushed, popped := 0, 0
	for round := 0; round < 7; round++ {
		for i := 0; i < 2; i++ {
			if err := r.Push(pushed); err != nil {
				t.Fatalf("push failed: %s", err)
			}
			pushed++
		}
		v, err := r.Pop()
		if err != nil {
			t.Fatalf("pop failed: %s", err)
		}
		if v != popped {
			t.Fatalf("expected %d, popped %d", popped, v)
		}
		popped++

		if r.Size() >= 3 {
			// drain to make room for the next round
			for !r.IsEmpty() {
				r.Pop()
				popped++
			}
		}
		if r.Size() != pushed-popped {
			t.Fatalf("size %d, expected %d", r.Size(), pushed-popped)
		}
	}
}

func TestRingBufferEmpty(t *testing.T) {
	r, _ := NewRingBuffer[int](2)

	if !r.IsEmpty() {
		t.Errorf("new buffer is not empty")
	}
	if _, err := r.Pop(); !errors.Is(err, ErrRingEmpty) {
		t.Errorf("pop on empty: expected ErrRingEmpty, got %v", err)
	}
	if _, err := r.Front(); !errors.Is(err, ErrRingEmpty) {
		t.Errorf("front on empty: expected ErrRingEmpty, got %v", err)
	}

	r.Push(7)
	r.Push(8)
	if v, _ := r.Front(); v != 7 {
		t.Errorf("front: expected 7, got %d", v)
	}
	if _, err := r.Item(2); !errors.Is(err, ErrRingIndex) {
		t.Errorf("item(size): expected ErrRingIndex, got %v", err)
	}
	if _, err := r.Item(-1); !errors.Is(err, ErrRingIndex) {
		t.Errorf("item(-1): expected ErrRingIndex, got %v", err)
	}
}
