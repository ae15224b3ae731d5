package coroutine

import "fmt"

// Stack is the fixed-size memory region owned by one thread. It is allocated
// once at thread creation and released when the thread is reclaimed; it never
// grows.
type Stack struct {
	mem []byte
}

// NewStack allocates a stack of exactly size bytes.
func NewStack(size int) (*Stack, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrStackSize, size)
	}
	return &Stack{mem: make([]byte, size)}, nil
}

// Size returns the size of the region, or 0 once it has been freed.
func (s *Stack) Size() int {
	if s == nil {
		return 0
	}
	return len(s.mem)
}

// Bytes exposes the region to its owning thread.
func (s *Stack) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.mem
}

// Free releases the region.
func (s *Stack) Free() {
	if s == nil {
		return
	}
	s.mem = nil
}
