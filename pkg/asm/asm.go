package asm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/psilLang/evo/pkg/num"
	"github.com/psilLang/evo/pkg/vm"
)

// ErrSyntax is returned for source that does not describe a program.
var ErrSyntax = errors.New("syntax error")

// calls maps call names to operator ids and argument counts.
var calls = map[string]struct {
	op   uint32
	args int
}{
	"lookAt":     {vm.OpLookAt, 2},
	"eatLeft":    {vm.OpEatLeft, 1},
	"eatRight":   {vm.OpEatRight, 1},
	"eatUp":      {vm.OpEatUp, 1},
	"eatDown":    {vm.OpEatDown, 1},
	"stepLeft":   {vm.OpStepLeft, 0},
	"stepRight":  {vm.OpStepRight, 0},
	"stepUp":     {vm.OpStepUp, 0},
	"stepDown":   {vm.OpStepDown, 0},
	"fromMem":    {vm.OpFromMem, 0},
	"toMem":      {vm.OpToMem, 1},
	"myX":        {vm.OpMyX, 0},
	"myY":        {vm.OpMyY, 0},
	"checkLeft":  {vm.OpCheckLeft, 0},
	"checkRight": {vm.OpCheckRight, 0},
	"checkUp":    {vm.OpCheckUp, 0},
	"checkDown":  {vm.OpCheckDown, 0},
}

// Assembler encodes programs for one operator table.
type Assembler struct {
	t    *vm.Table
	c    num.Codec
	code []uint32
}

// New creates an assembler for t.
func New(t *vm.Table) *Assembler {
	return &Assembler{t: t, c: t.Codec()}
}

// Assemble parses source and returns the encoded program.
func Assemble(t *vm.Table, source string) ([]uint32, error) {
	return New(t).Assemble("", source)
}

// AssembleFile reads and assembles a source file.
func AssembleFile(t *vm.Table, path string) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(t).Assemble(path, string(data))
}

// Assemble parses source and returns the encoded program. filename is
// only used in error messages.
func (a *Assembler) Assemble(filename, source string) ([]uint32, error) {
	prog, err := Parse(filename, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	a.code = make([]uint32, 0, 64)
	if err := a.block(prog.Statements); err != nil {
		return nil, err
	}
	return a.code, nil
}

func (a *Assembler) block(stmts []*Statement) error {
	for _, s := range stmts {
		if err := a.statement(s); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) statement(s *Statement) error {
	switch {
	case s.If != nil:
		return a.emitIf(s.If)
	case s.For != nil:
		return a.emitFor(s.For)
	case s.Nop:
		a.code = append(a.code, a.c.Encode(vm.NumOperators, 0, 0, 0, 0))
		return nil
	case s.Assign != nil:
		return a.emitAssign(s.Assign)
	}
	return nil
}

func (a *Assembler) emitIf(n *If) error {
	l, err := a.reg(n.Pos, n.Left)
	if err != nil {
		return err
	}
	r, err := a.reg(n.Pos, n.Right)
	if err != nil {
		return err
	}
	rel := slices.Index(vm.RelationSymbols[:], n.Rel)
	w := a.c.SetRelation(a.c.Encode(vm.OpCondition, l, r, 0, 0), uint32(rel))
	return a.emitBlock(n.Pos, w, n.Body)
}

func (a *Assembler) emitFor(n *For) error {
	if n.Cond != n.Var || n.Inc != n.Var {
		return errorf(n.Pos, "loop must test and increment %s", n.Var)
	}
	v, err := a.reg(n.Pos, n.Var)
	if err != nil {
		return err
	}
	from, err := a.reg(n.Pos, n.From)
	if err != nil {
		return err
	}
	to, err := a.reg(n.Pos, n.To)
	if err != nil {
		return err
	}
	return a.emitBlock(n.Pos, a.c.Encode(vm.OpLoop, v, from, to, 0), n.Body)
}

// emitBlock emits a block instruction followed by its body and patches the
// body length into the instruction.
func (a *Assembler) emitBlock(pos lexer.Position, w uint32, body []*Statement) error {
	at := len(a.code)
	a.code = append(a.code, w)
	if err := a.block(body); err != nil {
		return err
	}
	n := len(a.code) - at - 1
	if limit := 1<<a.t.BlockBits() - 1; n > limit {
		return errorf(pos, "block body has %d instructions, at most %d fit", n, limit)
	}
	a.code[at] = a.c.SetPayloadPrefix(w, a.t.BlockBits(), uint32(n))
	return nil
}

func (a *Assembler) emitAssign(n *Assign) error {
	dst, err := a.reg(n.Pos, n.Dst)
	if err != nil {
		return err
	}
	c := a.c
	switch {
	case n.Imm != nil:
		k := *n.Imm
		if k < math.MinInt16 || k > math.MaxInt16 {
			return errorf(n.Pos, "constant %d does not fit 16 bits", k)
		}
		w := c.Encode(vm.OpVar, dst, 0, 0, 0)
		a.code = append(a.code, c.SetPayloadPrefix(w, num.ImmediateBits, uint32(uint16(int16(k)))))

	case n.Call != nil:
		call, ok := calls[n.Call.Name]
		if !ok {
			return errorf(n.Pos, "unknown operator %s", n.Call.Name)
		}
		if len(n.Call.Args) != call.args {
			return errorf(n.Pos, "%s takes %d arguments, got %d", n.Call.Name, call.args, len(n.Call.Args))
		}
		var args [2]uint32
		for i, s := range n.Call.Args {
			if args[i], err = a.reg(n.Pos, s); err != nil {
				return err
			}
		}
		a.code = append(a.code, c.Encode(call.op, dst, args[0], args[1], 0))

	case n.Expr.Rest == nil:
		src, err := a.reg(n.Pos, n.Expr.Left)
		if err != nil {
			return err
		}
		if src < c.HalfVar() {
			return errorf(n.Pos, "%s cannot be copied, only v%d..v%d", n.Expr.Left, c.HalfVar(), a.t.Config().VarAmount-1)
		}
		a.code = append(a.code, c.Encode(vm.OpVar, dst, src, 0, 0))

	default:
		l, err := a.reg(n.Pos, n.Expr.Left)
		if err != nil {
			return err
		}
		r, err := a.reg(n.Pos, n.Expr.Rest.Right)
		if err != nil {
			return err
		}
		sel := slices.Index(vm.ArithSymbols[:], n.Expr.Rest.Op)
		if sel < 0 {
			return errorf(n.Pos, "unknown operator %q", n.Expr.Rest.Op)
		}
		w := c.Encode(vm.OpOperator, dst, l, r, 0)
		a.code = append(a.code, c.SetPayloadPrefix(w, 4, uint32(sel)))
	}
	return nil
}

func (a *Assembler) reg(pos lexer.Position, s string) (uint32, error) {
	i, err := strconv.Atoi(strings.TrimPrefix(s, "v"))
	if err != nil || i >= a.t.Config().VarAmount {
		return 0, errorf(pos, "no register %s", s)
	}
	return uint32(i), nil
}

func errorf(pos lexer.Position, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrSyntax, pos, fmt.Sprintf(format, args...))
}

// Format renders a program in assembler syntax. Every block is clamped to
// the end of the block enclosing it in the text, so mutated programs with
// overlapping blocks print as properly nested braces. The runtime only
// clamps against open loops: a loop that starts inside a condition and
// runs past its end executes its full body, but prints cut at the end of
// the condition. Such programs do not survive a round trip.
func Format(t *vm.Table, code []uint32) string {
	var b strings.Builder
	var ends []int
	for i, w := range code {
		for len(ends) > 0 && ends[len(ends)-1] == i {
			ends = ends[:len(ends)-1]
			indent(&b, len(ends))
			b.WriteString("}\n")
		}
		indent(&b, len(ends))
		b.WriteString(Line(t, w))
		switch t.Codec().Operator(w) {
		case vm.OpCondition, vm.OpLoop:
			var top vm.Offset
			open := len(ends) > 0
			if open {
				top.End = ends[len(ends)-1]
			}
			ends = append(ends, vm.BlockEnd(i, len(code), t.RawOffset(w), top, open))
			b.WriteString(" {")
		}
		b.WriteByte('\n')
	}
	for len(ends) > 0 {
		ends = ends[:len(ends)-1]
		indent(&b, len(ends))
		b.WriteString("}\n")
	}
	return b.String()
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("    ")
	}
}

// Line renders one instruction without its block body.
func Line(t *vm.Table, w uint32) string {
	c := t.Codec()
	v0, v1, v2 := c.Var(w, 0), c.Var(w, 1), c.Var(w, 2)
	switch op := c.Operator(w); op {
	case vm.OpVar:
		if t.IsConst(w) {
			return fmt.Sprintf("v%d = %d", v0, c.Immediate(w))
		}
		return fmt.Sprintf("v%d = v%d", v0, v1)
	case vm.OpCondition:
		return fmt.Sprintf("if v%d %s v%d", v0, vm.RelationSymbols[c.Relation(w)], v1)
	case vm.OpLoop:
		return fmt.Sprintf("for (v%d = v%d; v%d < v%d; v%d++)", v0, v1, v0, v2, v0)
	case vm.OpOperator:
		return fmt.Sprintf("v%d = v%d %s v%d", v0, v1, vm.ArithSymbols[t.ArithOp(w)], v2)
	default:
		name := vm.OpName(op)
		call, ok := calls[name]
		if !ok {
			return "nop"
		}
		switch call.args {
		case 2:
			return fmt.Sprintf("v%d = %s(v%d, v%d)", v0, name, v1, v2)
		case 1:
			return fmt.Sprintf("v%d = %s(v%d)", v0, name, v1)
		}
		return fmt.Sprintf("v%d = %s()", v0, name)
	}
}

// MarshalBinary encodes a program as little-endian 32-bit words.
func MarshalBinary(code []uint32) []byte {
	out := make([]byte, 0, 4*len(code))
	for _, w := range code {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

// UnmarshalBinary decodes the output of MarshalBinary.
func UnmarshalBinary(data []byte) ([]uint32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("asm: %d bytes is not a whole number of words", len(data))
	}
	code := make([]uint32, len(data)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return code, nil
}
