package vm

import (
	"math/rand"
	"slices"
)

// VM runs one organism program.
type VM struct {
	// Code is the program. Edit it through Insert, Remove, Replace and
	// Crossover so that pending block state is dropped.
	Code []uint32
	// Vars are the registers.
	Vars []float64

	table   *Table
	env     Environment
	rng     *rand.Rand
	offs    OffsetStack
	line    int
	reentry bool
}

// New creates a VM with an empty program and randomly initialised
// registers in [-VarInitRange/2, VarInitRange/2).
func New(t *Table, env Environment, rng *rand.Rand) *VM {
	cfg := t.Config()
	vars := make([]float64, cfg.VarAmount)
	half := cfg.VarInitRange / 2
	for i := range vars {
		if cfg.VarInitRange > 0 {
			vars[i] = float64(rng.Intn(cfg.VarInitRange) - half)
		}
	}
	return &VM{Vars: vars, table: t, env: env, rng: rng}
}

// Clone returns a VM with a copy of the program and registers and fresh
// execution state.
func (vm *VM) Clone() *VM {
	return &VM{
		Code:  slices.Clone(vm.Code),
		Vars:  slices.Clone(vm.Vars),
		table: vm.table,
		env:   vm.env,
		rng:   vm.rng,
	}
}

// Size returns the program length.
func (vm *VM) Size() int { return len(vm.Code) }

// Line returns the next line to execute.
func (vm *VM) Line() int { return vm.line }

// Offsets returns the open block stack.
func (vm *VM) Offsets() *OffsetStack { return &vm.offs }

// Table returns the operator table.
func (vm *VM) Table() *Table { return vm.table }

// Load replaces the program.
func (vm *VM) Load(code []uint32) {
	vm.Code = code
	vm.Reset()
}

// Reset rewinds execution to line 0 and closes every block.
func (vm *VM) Reset() {
	vm.line = 0
	vm.reentry = false
	vm.offs.Reset()
}

// Run executes up to quantum instructions for org and returns how many
// were executed. An empty program does nothing.
//
// When a dispatch lands on the end of the innermost open block, the block
// is closed and its loop runs again in re-entry mode. When a dispatch runs
// past the last line, execution restarts at line 0 and org.CodeEnd is
// called.
func (vm *VM) Run(org Organism, quantum int) int {
	lines := len(vm.Code)
	if lines == 0 {
		return 0
	}
	if vm.line >= lines {
		vm.Reset()
	}
	f := Frame{Vars: vm.Vars, Offs: &vm.offs, Org: org, Env: vm.env}
	line, reentry := vm.line, vm.reentry
	n := 0
	for ; n < quantum; n++ {
		line = vm.table.Dispatch(vm.Code[line], line, &f, lines, reentry)
		if top, ok := vm.offs.Top(); ok && line == top.End {
			vm.offs.Pop()
			line = top.Return
			reentry = true
			continue
		}
		reentry = false
		if line >= lines {
			line = 0
			vm.offs.Reset()
			org.CodeEnd()
		}
	}
	vm.line, vm.reentry = line, reentry
	return n
}

// Insert inserts word before index i. i is clamped to [0, Size()].
func (vm *VM) Insert(i int, word uint32) {
	i = min(max(i, 0), len(vm.Code))
	vm.Code = slices.Insert(vm.Code, i, word)
	vm.Reset()
}

// Remove deletes the instruction at i. Out-of-range indices are ignored.
func (vm *VM) Remove(i int) {
	if i < 0 || i >= len(vm.Code) {
		return
	}
	vm.Code = slices.Delete(vm.Code, i, i+1)
	vm.Reset()
}

// Replace overwrites the instruction at i. Out-of-range indices are ignored.
func (vm *VM) Replace(i int, word uint32) {
	if i < 0 || i >= len(vm.Code) {
		return
	}
	vm.Code[i] = word
	vm.Reset()
}

// Crossover replaces a random slice of the program with a random slice of
// other and returns the change in length.
func (vm *VM) Crossover(other []uint32) int {
	start, end := span(vm.rng, len(vm.Code))
	start1, end1 := span(vm.rng, len(other))
	part := slices.Clone(other[start1:end1])
	vm.Code = slices.Replace(vm.Code, start, end, part...)
	vm.Reset()
	return (end1 - start1) - (end - start)
}

// span picks two random indices below n and orders them.
func span(rng *rand.Rand, n int) (int, int) {
	if n == 0 {
		return 0, 0
	}
	a, b := rng.Intn(n), rng.Intn(n)
	if a > b {
		a, b = b, a
	}
	return a, b
}
