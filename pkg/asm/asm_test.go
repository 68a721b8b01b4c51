package asm

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/psilLang/evo/pkg/config"
	"github.com/psilLang/evo/pkg/vm"
)

func testTable(t *testing.T) *vm.Table {
	t.Helper()
	tbl, err := vm.NewTable(config.Default().Code)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

const sample = `
# count to ten, remembering every step
v0 = 0
v1 = 10
v2 = v0 + v1
v3 = v2
for (v0 = v3; v0 < v1; v0++) {
    v1 = toMem(v0)
    if v0 == v1 {
        v2 = eatLeft(v1)
    }
}
v0 = lookAt(v1, v2)
v0 = stepUp()
v0 = myX()
v1 = checkDown()
v2 = v0 >>> v1
nop
`

func TestAssembleEncodesFields(t *testing.T) {
	tbl := testTable(t)
	c := tbl.Codec()
	code, err := Assemble(tbl, sample)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(code) != 14 {
		t.Fatalf("assembled %d instructions, want 14", len(code))
	}

	if op := c.Operator(code[0]); op != vm.OpVar || !tbl.IsConst(code[0]) || c.Immediate(code[0]) != 0 {
		t.Errorf("line 0: %s", Line(tbl, code[0]))
	}
	if c.Immediate(code[1]) != 10 || c.Var(code[1], 0) != 1 {
		t.Errorf("line 1: %s", Line(tbl, code[1]))
	}
	if tbl.ArithOp(code[2]) != vm.ArAdd || c.Var(code[2], 1) != 0 || c.Var(code[2], 2) != 1 {
		t.Errorf("line 2: %s", Line(tbl, code[2]))
	}
	if tbl.IsConst(code[3]) || c.Var(code[3], 1) != 2 {
		t.Errorf("line 3: %s", Line(tbl, code[3]))
	}
	loop := code[4]
	if c.Operator(loop) != vm.OpLoop || tbl.RawOffset(loop) != 3 {
		t.Errorf("loop: op %d body %d", c.Operator(loop), tbl.RawOffset(loop))
	}
	cond := code[6]
	if c.Operator(cond) != vm.OpCondition || c.Relation(cond) != vm.RelEqual || tbl.RawOffset(cond) != 1 {
		t.Errorf("condition: %s body %d", Line(tbl, cond), tbl.RawOffset(cond))
	}
	if tbl.ArithOp(code[12]) != vm.ArUshr {
		t.Errorf("line 12: %s", Line(tbl, code[12]))
	}
	if c.Operator(code[13]) < vm.NumOperators {
		t.Errorf("nop assembled to %s", vm.OpName(c.Operator(code[13])))
	}
}

func TestNegativeImmediate(t *testing.T) {
	tbl := testTable(t)
	code, err := Assemble(tbl, "v2 = -32768\nv1 = 32767")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := tbl.Codec().Immediate(code[0]); got != -32768 {
		t.Errorf("immediate = %d", got)
	}
	if got := tbl.Codec().Immediate(code[1]); got != 32767 {
		t.Errorf("immediate = %d", got)
	}
}

func TestRoundTrip(t *testing.T) {
	tbl := testTable(t)
	code, err := Assemble(tbl, sample)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	text := Format(tbl, code)
	again, err := Assemble(tbl, text)
	if err != nil {
		t.Fatalf("reassemble:\n%s\n%v", text, err)
	}
	if !slices.Equal(code, again) {
		t.Errorf("round trip changed the program:\n%s", text)
	}
	if Format(tbl, again) != text {
		t.Error("Format is not stable")
	}
}

func TestFormatNesting(t *testing.T) {
	tbl := testTable(t)
	code, err := Assemble(tbl, `
for (v0 = v2; v0 < v3; v0++) {
    if v0 < v1 {
    }
    v1 = 5
}
v2 = 1
`)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := strings.Join([]string{
		"for (v0 = v2; v0 < v3; v0++) {",
		"    if v0 < v1 {",
		"    }",
		"    v1 = 5",
		"}",
		"v2 = 1",
		"",
	}, "\n")
	if got := Format(tbl, code); got != want {
		t.Errorf("Format:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatClampsOverlappingBlocks(t *testing.T) {
	tbl := testTable(t)
	code, err := Assemble(tbl, `
for (v0 = v2; v0 < v3; v0++) {
    for (v1 = v2; v1 < v3; v1++) {
        v0 = 1
    }
}
v2 = 1
`)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	// Stretch the inner loop past its parent, as a mutation might.
	code[1] = tbl.Codec().SetPayloadPrefix(code[1], tbl.BlockBits(), 200)
	text := Format(tbl, code)
	if strings.Count(text, "{") != strings.Count(text, "}") {
		t.Fatalf("unbalanced output:\n%s", text)
	}
	again, err := Assemble(tbl, text)
	if err != nil {
		t.Fatalf("clamped output does not assemble: %v\n%s", err, text)
	}
	if got := tbl.RawOffset(again[1]); got != 1 {
		t.Errorf("inner body = %d lines, want the clamped 1", got)
	}
}

func TestFormatCutsLoopLeavingCondition(t *testing.T) {
	tbl := testTable(t)
	code, err := Assemble(tbl, `
if v0 < v1 {
}
for (v2 = v3; v2 < v3; v2++) {
}
v0 = v2 + v3
v0 = v2 + v3
v0 = v2 + v3
v0 = v2 + v3
`)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	c := tbl.Codec()
	code[0] = c.SetPayloadPrefix(code[0], tbl.BlockBits(), 1)
	code[1] = c.SetPayloadPrefix(code[1], tbl.BlockBits(), 3)

	// conditions push nothing, so the loop keeps its own end
	if end := vm.BlockEnd(1, len(code), tbl.RawOffset(code[1]), vm.Offset{}, false); end != 5 {
		t.Fatalf("runtime loop end = %d, want 5", end)
	}

	again, err := Assemble(tbl, Format(tbl, code))
	if err != nil {
		t.Fatalf("reassemble: %v", err)
	}
	if len(again) != len(code) {
		t.Fatalf("%d instructions, want %d", len(again), len(code))
	}
	if got := tbl.RawOffset(again[0]); got != 1 {
		t.Errorf("condition body = %d, want 1", got)
	}
	if got := tbl.RawOffset(again[1]); got != 0 {
		t.Errorf("loop body = %d, want it cut to 0 at the end of the condition", got)
	}
}

func TestFormatRandomPrograms(t *testing.T) {
	tbl := testTable(t)
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 50; n++ {
		code := make([]uint32, rng.Intn(40))
		for i := range code {
			code[i] = tbl.Codec().Random(rng)
		}
		text := Format(tbl, code)
		again, err := Assemble(tbl, text)
		if err != nil {
			t.Fatalf("program %d does not reassemble: %v\n%s", n, err, text)
		}
		if len(again) != len(code) {
			t.Fatalf("program %d: %d instructions, want %d", n, len(again), len(code))
		}
	}
}

func TestAssembleErrors(t *testing.T) {
	tbl := testTable(t)
	tests := []struct {
		name, src string
	}{
		{"garbage", "v0 = = 1"},
		{"unknown register", "v9 = 1"},
		{"unknown call", "v0 = fly(v1)"},
		{"arity", "v0 = eatLeft()"},
		{"copy lower half", "v0 = v1"},
		{"constant range", "v0 = 40000"},
		{"loop variable", "for (v0 = v1; v2 < v3; v0++) { }"},
		{"unclosed block", "if v0 < v1 {"},
		{"unknown operator", "v0 = v1 <> v2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tbl, tt.src)
			if !errors.Is(err, ErrSyntax) {
				t.Errorf("err = %v, want ErrSyntax", err)
			}
		})
	}
}

func TestBlockTooLong(t *testing.T) {
	cfg := config.Default().Code
	cfg.BitsPerBlock = 2
	tbl := vm.MustNewTable(cfg)
	_, err := Assemble(tbl, "if v0 < v1 {\n v0 = 1\n v0 = 1\n v0 = 1\n v0 = 1\n}")
	if !errors.Is(err, ErrSyntax) {
		t.Errorf("err = %v, want ErrSyntax", err)
	}
}

func TestAssembledProgramRuns(t *testing.T) {
	tbl := testTable(t)
	code, err := Assemble(tbl, `
v0 = 0
v1 = 3
v2 = 7
v3 = v2
v2 = v1 * v3
`)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	m := vm.New(tbl, nil, rand.New(rand.NewSource(1)))
	m.Load(code)
	m.Run(nopOrg{}, len(code))
	if m.Vars[2] != 21 {
		t.Errorf("v2 = %v, want 21", m.Vars[2])
	}
}

type nopOrg struct{}

func (nopOrg) Pos() (int, int)     { return 0, 0 }
func (nopOrg) SetPos(x, y int)     {}
func (nopOrg) AddEnergy(e float64) {}
func (nopOrg) Push(v float64) bool { return false }
func (nopOrg) Pop() float64        { return 0 }
func (nopOrg) CodeEnd()            {}

func TestBinaryRoundTrip(t *testing.T) {
	code := []uint32{0, 1, 0xdeadbeef, 1 << 31}
	data := MarshalBinary(code)
	if len(data) != 16 {
		t.Fatalf("%d bytes", len(data))
	}
	got, err := UnmarshalBinary(data)
	if err != nil || !slices.Equal(got, code) {
		t.Errorf("UnmarshalBinary = %v, %v", got, err)
	}
	if _, err := UnmarshalBinary(data[:7]); err == nil {
		t.Error("accepted a partial word")
	}
}

func TestAssembleFile(t *testing.T) {
	tbl := testTable(t)
	path := filepath.Join(t.TempDir(), "prog.evo")
	if err := os.WriteFile(path, []byte("v0 = 1\nv0 = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, err := AssembleFile(tbl, path)
	if err != nil || len(code) != 2 {
		t.Errorf("AssembleFile = %v, %v", code, err)
	}
	if _, err := AssembleFile(tbl, filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing file assembled")
	}
}

func TestForagerSample(t *testing.T) {
	tbl := testTable(t)
	code, err := AssembleFile(tbl, filepath.Join("testdata", "forager.evo"))
	if err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("%d instructions, want 6", len(code))
	}
	if c := tbl.Codec(); c.Operator(code[3]) != vm.OpCondition || tbl.RawOffset(code[3]) != 1 {
		t.Errorf("condition: %s", Line(tbl, code[3]))
	}
	again, err := Assemble(tbl, Format(tbl, code))
	if err != nil || !slices.Equal(code, again) {
		t.Errorf("round trip: %v", err)
	}
}
