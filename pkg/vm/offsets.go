package vm

// Offset is one open block: the line of the loop that opened it and the
// line where the block ends.
type Offset struct {
	Return int
	End    int
}

// OffsetStack tracks open blocks in nesting order.
// Ends never grow towards the bottom of the stack: an inner block is
// clamped to the end of the block enclosing it.
type OffsetStack struct {
	items []Offset
}

// Push opens a block.
func (s *OffsetStack) Push(ret, end int) {
	s.items = append(s.items, Offset{Return: ret, End: end})
}

// Pop closes the innermost block.
func (s *OffsetStack) Pop() (Offset, bool) {
	n := len(s.items)
	if n == 0 {
		return Offset{}, false
	}
	o := s.items[n-1]
	s.items = s.items[:n-1]
	return o, true
}

// Top returns the innermost block without closing it.
func (s *OffsetStack) Top() (Offset, bool) {
	n := len(s.items)
	if n == 0 {
		return Offset{}, false
	}
	return s.items[n-1], true
}

// Len returns the number of open blocks.
func (s *OffsetStack) Len() int { return len(s.items) }

// Reset closes every block.
func (s *OffsetStack) Reset() { s.items = s.items[:0] }

// BlockEnd returns the end line of a block starting at line whose body is
// raw lines long. The result is line+raw+1, or lines when that runs past
// the program, and never passes the end of the enclosing block top when
// open is true.
func BlockEnd(line, lines, raw int, top Offset, open bool) int {
	end := lines
	if line+raw < lines {
		end = line + raw + 1
	}
	if open && end >= top.End {
		return top.End
	}
	return end
}

// BlockEnd applies the package BlockEnd against the innermost open block.
func (s *OffsetStack) BlockEnd(line, lines, raw int) int {
	top, open := s.Top()
	return BlockEnd(line, lines, raw, top, open)
}
