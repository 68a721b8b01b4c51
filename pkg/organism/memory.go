package organism

import "slices"

// Stack is a bounded LIFO of register values.
type Stack struct {
	items []float64
	size  int
}

// NewStack creates a stack holding at most size values.
func NewStack(size int) *Stack {
	return &Stack{size: size}
}

// Push stores v. It returns false and drops v when the stack is full.
func (s *Stack) Push(v float64) bool {
	if len(s.items) >= s.size {
		return false
	}
	s.items = append(s.items, v)
	return true
}

// Pop removes the last value, or returns 0 when empty.
func (s *Stack) Pop() float64 {
	n := len(s.items)
	if n == 0 {
		return 0
	}
	v := s.items[n-1]
	s.items = s.items[:n-1]
	return v
}

// Len returns the number of stored values.
func (s *Stack) Len() int { return len(s.items) }

// Cap returns the capacity.
func (s *Stack) Cap() int { return s.size }

// Values returns a copy of the stored values, bottom first.
func (s *Stack) Values() []float64 { return slices.Clone(s.items) }

// Clone returns an independent copy.
func (s *Stack) Clone() *Stack {
	return &Stack{items: slices.Clone(s.items), size: s.size}
}
