package vm

import (
	"fmt"
	"math"

	"github.com/psilLang/evo/pkg/config"
	"github.com/psilLang/evo/pkg/num"
)

// Handler executes one instruction and returns the next line.
type Handler func(t *Table, word uint32, line int, f *Frame, lines int, reentry bool) int

// Table dispatches instructions by operator id. It holds no per-program
// state and can be shared by every VM built from the same configuration.
type Table struct {
	codec     num.Codec
	cfg       config.Code
	blockBits uint
	half      uint32
	ops       [1 << OperatorBits]Handler
}

// NewTable builds the operator table for cfg.
func NewTable(cfg config.Code) (*Table, error) {
	codec, err := num.New(NumOperators, cfg.VarAmount)
	if err != nil {
		return nil, err
	}
	if codec.OperatorBits() != OperatorBits {
		return nil, fmt.Errorf("vm: codec uses %d operator bits, table expects %d", codec.OperatorBits(), OperatorBits)
	}
	if codec.VarBits() < 2 {
		return nil, fmt.Errorf("vm: %d registers leave no room for the relation selector in var2", cfg.VarAmount)
	}
	if cfg.BitsPerBlock < 1 {
		return nil, fmt.Errorf("vm: bits per block must be positive, got %d", cfg.BitsPerBlock)
	}
	need := uint(max(num.ImmediateBits, cfg.BitsPerBlock, 4))
	if codec.PayloadBits() < need {
		return nil, fmt.Errorf("vm: %d registers leave %d payload bits, need %d", cfg.VarAmount, codec.PayloadBits(), need)
	}

	t := &Table{
		codec:     codec,
		cfg:       cfg,
		blockBits: uint(cfg.BitsPerBlock),
		half:      codec.HalfVar(),
	}
	t.ops = [1 << OperatorBits]Handler{
		OpVar:        (*Table).assign,
		OpCondition:  (*Table).condition,
		OpLoop:       (*Table).loop,
		OpOperator:   (*Table).operator,
		OpLookAt:     (*Table).lookAt,
		OpEatLeft:    eat(dirLeft),
		OpEatRight:   eat(dirRight),
		OpEatUp:      eat(dirUp),
		OpEatDown:    eat(dirDown),
		OpStepLeft:   step(dirLeft),
		OpStepRight:  step(dirRight),
		OpStepUp:     step(dirUp),
		OpStepDown:   step(dirDown),
		OpFromMem:    (*Table).fromMem,
		OpToMem:      (*Table).toMem,
		OpMyX:        (*Table).myX,
		OpMyY:        (*Table).myY,
		OpCheckLeft:  check(dirLeft),
		OpCheckRight: check(dirRight),
		OpCheckUp:    check(dirUp),
		OpCheckDown:  check(dirDown),
	}
	for i := NumOperators; i < len(t.ops); i++ {
		t.ops[i] = (*Table).nop
	}
	return t, nil
}

// MustNewTable is NewTable for configurations known to be valid.
func MustNewTable(cfg config.Code) *Table {
	t, err := NewTable(cfg)
	if err != nil {
		panic(err)
	}
	return t
}

// Codec returns the instruction layout used by the table.
func (t *Table) Codec() num.Codec { return t.codec }

// Config returns the code configuration the table was built from.
func (t *Table) Config() config.Code { return t.cfg }

// BlockBits returns the width of block offsets.
func (t *Table) BlockBits() uint { return t.blockBits }

// Dispatch executes word at line and returns the next line.
func (t *Table) Dispatch(word uint32, line int, f *Frame, lines int, reentry bool) int {
	return t.ops[t.codec.Operator(word)](t, word, line, f, lines, reentry)
}

// RawOffset returns the block length encoded in a condition or loop.
func (t *Table) RawOffset(word uint32) int {
	return int(t.codec.PayloadPrefix(word, t.blockBits))
}

// ArithOp returns the operator selector of an OpOperator instruction.
func (t *Table) ArithOp(word uint32) uint32 {
	return t.codec.PayloadPrefix(word, 4)
}

// IsConst reports whether an OpVar instruction assigns its immediate.
func (t *Table) IsConst(word uint32) bool {
	return t.codec.Var(word, 1) < t.half
}

func (t *Table) nop(_ uint32, line int, _ *Frame, _ int, _ bool) int {
	return line + 1
}

func (t *Table) assign(word uint32, line int, f *Frame, _ int, _ bool) int {
	c := t.codec
	if v1 := c.Var(word, 1); v1 < t.half {
		f.Vars[c.Var(word, 0)] = float64(c.Immediate(word))
	} else {
		f.Vars[c.Var(word, 0)] = f.Vars[v1]
	}
	return line + 1
}

func (t *Table) condition(word uint32, line int, f *Frame, lines int, _ bool) int {
	c := t.codec
	a, b := f.Vars[c.Var(word, 0)], f.Vars[c.Var(word, 1)]
	var ok bool
	switch c.Relation(word) {
	case RelLess:
		ok = a < b
	case RelGreater:
		ok = a > b
	case RelEqual:
		ok = a == b
	case RelNotEqual:
		ok = a != b
	}
	if ok {
		return line + 1
	}
	return f.Offs.BlockEnd(line, lines, t.RawOffset(word))
}

func (t *Table) loop(word uint32, line int, f *Frame, lines int, reentry bool) int {
	c := t.codec
	v0 := c.Var(word, 0)
	if reentry {
		f.Vars[v0]++
	} else {
		f.Vars[v0] = f.Vars[c.Var(word, 1)]
	}
	end := f.Offs.BlockEnd(line, lines, t.RawOffset(word))
	if f.Vars[v0] < f.Vars[c.Var(word, 2)] {
		f.Offs.Push(line, end)
		return line + 1
	}
	return end
}

func (t *Table) operator(word uint32, line int, f *Frame, _ int, _ bool) int {
	c := t.codec
	f.Vars[c.Var(word, 0)] = Arith(t.ArithOp(word), f.Vars[c.Var(word, 1)], f.Vars[c.Var(word, 2)])
	return line + 1
}

func (t *Table) lookAt(word uint32, line int, f *Frame, _ int, _ bool) int {
	c := t.codec
	var e float64
	if x, y, ok := coords(f.Vars[c.Var(word, 1)], f.Vars[c.Var(word, 2)]); ok {
		e = f.Env.EnergyAt(x, y)
	}
	f.Vars[c.Var(word, 0)] = e
	return line + 1
}

func eat(d [2]int) Handler {
	return func(t *Table, word uint32, line int, f *Frame, _ int, _ bool) int {
		c := t.codec
		var got float64
		if amount := f.Vars[c.Var(word, 1)]; isNum(amount) && amount > 0 {
			x, y := f.Org.Pos()
			got = f.Env.EatAt(x+d[0], y+d[1], amount)
			if isNum(got) {
				f.Org.AddEnergy(got)
			} else {
				got = 0
			}
		}
		f.Vars[c.Var(word, 0)] = got
		return line + 1
	}
}

func step(d [2]int) Handler {
	return func(t *Table, word uint32, line int, f *Frame, _ int, _ bool) int {
		x, y := f.Org.Pos()
		moved, nx, ny := f.Env.StepTo(x, y, x+d[0], y+d[1])
		var r float64
		if moved {
			f.Org.SetPos(nx, ny)
			r = 1
		}
		f.Vars[t.codec.Var(word, 0)] = r
		return line + 1
	}
}

func check(d [2]int) Handler {
	return func(t *Table, word uint32, line int, f *Frame, _ int, _ bool) int {
		x, y := f.Org.Pos()
		f.Vars[t.codec.Var(word, 0)] = f.Env.OccupancyAt(x+d[0], y+d[1])
		return line + 1
	}
}

func (t *Table) fromMem(word uint32, line int, f *Frame, _ int, _ bool) int {
	f.Vars[t.codec.Var(word, 0)] = f.Org.Pop()
	return line + 1
}

func (t *Table) toMem(word uint32, line int, f *Frame, _ int, _ bool) int {
	c := t.codec
	v := f.Vars[c.Var(word, 1)]
	if !isNum(v) || !f.Org.Push(v) {
		v = 0
	}
	f.Vars[c.Var(word, 0)] = v
	return line + 1
}

func (t *Table) myX(word uint32, line int, f *Frame, _ int, _ bool) int {
	x, _ := f.Org.Pos()
	f.Vars[t.codec.Var(word, 0)] = float64(x)
	return line + 1
}

func (t *Table) myY(word uint32, line int, f *Frame, _ int, _ bool) int {
	_, y := f.Org.Pos()
	f.Vars[t.codec.Var(word, 0)] = float64(y)
	return line + 1
}

// Arith applies binary operator sel to a and b. Bitwise operators work on
// the 32-bit integer conversion of their operands; comparisons yield 0 or 1.
func Arith(sel uint32, a, b float64) float64 {
	switch sel & 15 {
	case ArAdd:
		return a + b
	case ArSub:
		return a - b
	case ArMul:
		return a * b
	case ArDiv:
		return a / b
	case ArMod:
		return math.Mod(a, b)
	case ArAnd:
		return float64(toInt32(a) & toInt32(b))
	case ArOr:
		return float64(toInt32(a) | toInt32(b))
	case ArXor:
		return float64(toInt32(a) ^ toInt32(b))
	case ArShr:
		return float64(toInt32(a) >> (toUint32(b) & 31))
	case ArShl:
		return float64(toInt32(a) << (toUint32(b) & 31))
	case ArUshr:
		return float64(toUint32(a) >> (toUint32(b) & 31))
	case ArLess:
		return b2f(a < b)
	case ArGreater:
		return b2f(a > b)
	case ArEqual:
		return b2f(a == b)
	case ArNotEqual:
		return b2f(a != b)
	default: // ArLessEqual
		return b2f(a <= b)
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func isNum(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// coords converts two register values to grid coordinates. Non-integral or
// non-finite values are rejected.
func coords(x, y float64) (int, int, bool) {
	if !isNum(x) || !isNum(y) || x != math.Trunc(x) || y != math.Trunc(y) {
		return 0, 0, false
	}
	if math.Abs(x) > math.MaxInt32 || math.Abs(y) > math.MaxInt32 {
		return 0, 0, false
	}
	return int(x), int(y), true
}

// toUint32 wraps a float modulo 2^32; NaN and infinities become 0.
func toUint32(v float64) uint32 {
	if !isNum(v) {
		return 0
	}
	m := math.Mod(math.Trunc(v), 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return uint32(m)
}

func toInt32(v float64) int32 {
	return int32(toUint32(v))
}
