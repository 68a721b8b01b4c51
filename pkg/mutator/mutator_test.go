package mutator

import (
	"math/rand"
	"testing"

	"github.com/psilLang/evo/pkg/config"
	"github.com/psilLang/evo/pkg/organism"
	"github.com/psilLang/evo/pkg/vm"
)

type nullEnv struct{}

func (nullEnv) EnergyAt(x, y int) float64                  { return 0 }
func (nullEnv) EatAt(x, y int, amount float64) float64     { return 0 }
func (nullEnv) StepTo(x1, y1, x2, y2 int) (bool, int, int) { return false, x1, y1 }
func (nullEnv) OccupancyAt(x, y int) float64               { return 0 }

type fixture struct {
	cfg config.Config
	tbl *vm.Table
	mut *Mutator
	rng *rand.Rand
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	tbl, err := vm.NewTable(cfg.Code)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	rng := rand.New(rand.NewSource(42))
	m, err := New(cfg, tbl.Codec(), rng)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{cfg: cfg, tbl: tbl, mut: m, rng: rng}
}

func (f *fixture) organism() *organism.Organism {
	return organism.New(1, 0, 0, f.cfg, f.tbl, nullEnv{}, f.rng)
}

func probs(weights ...int) []int {
	p := make([]int, NumTypes)
	copy(p, weights)
	return p
}

func TestInsertOnlyGrows(t *testing.T) {
	f := newFixture(t, config.Default())
	o := f.organism()
	o.MutationProbs = probs(1)
	prev := o.VM.Size()
	for i := 0; i < 200; i++ {
		f.mut.Mutate(o, 0.05)
		if o.VM.Size() <= prev {
			t.Fatalf("call %d: size %d -> %d", i, prev, o.VM.Size())
		}
		prev = o.VM.Size()
	}
}

func TestMutationCount(t *testing.T) {
	f := newFixture(t, config.Default())
	o := f.organism()
	o.MutationProbs = probs(1)
	o.VM.Load(make([]uint32, 100))

	if n := f.mut.Mutate(o, 0.1); n != 10 {
		t.Errorf("applied %d mutations, want 10", n)
	}
	if o.VM.Size() != 110 {
		t.Errorf("size = %d, want 110", o.VM.Size())
	}
	if n := f.mut.Mutate(o, 0); n != 1 {
		t.Errorf("applied %d mutations at 0%%, want the minimum of 1", n)
	}
}

func TestEmptyProgramForcesInsert(t *testing.T) {
	f := newFixture(t, config.Default())
	o := f.organism()
	o.MutationProbs = probs(0, 0, 0, 100)
	f.mut.Mutate(o, 0.5)
	if o.VM.Size() != 1 {
		t.Errorf("size = %d, want 1", o.VM.Size())
	}
	if f.mut.Counts[Insert] != 1 || f.mut.Counts[Delete] != 0 {
		t.Errorf("counts = %v", f.mut.Counts)
	}
}

func TestZeroWeightsApplyNothing(t *testing.T) {
	f := newFixture(t, config.Default())
	o := f.organism()
	o.MutationProbs = probs()
	o.VM.Load([]uint32{1, 2, 3})
	if n := f.mut.Mutate(o, 1); n != 0 {
		t.Errorf("applied %d mutations with zero weights", n)
	}
}

func TestBookkeeping(t *testing.T) {
	f := newFixture(t, config.Default())
	tests := []struct {
		t          Type
		adds, chgs float64
		sizeDelta  int
	}{
		{Insert, 2, 1, 1},
		{Replace, 1, 2, 0},
		{SmallChange, 1, 1.5, 0},
		{Delete, 0, 1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.t.String(), func(t *testing.T) {
			o := f.organism()
			o.VM.Load([]uint32{1, 2, 3, 4})
			f.mut.Apply(tt.t, o)
			if o.Adds != tt.adds || o.Changes != tt.chgs {
				t.Errorf("adds=%v changes=%v, want %v %v", o.Adds, o.Changes, tt.adds, tt.chgs)
			}
			if d := o.VM.Size() - 4; d != tt.sizeDelta {
				t.Errorf("size delta %d, want %d", d, tt.sizeDelta)
			}
		})
	}
}

func TestEditsOnEmptyProgramAreIgnored(t *testing.T) {
	f := newFixture(t, config.Default())
	o := f.organism()
	for _, typ := range []Type{Replace, SmallChange, Delete} {
		f.mut.Apply(typ, o)
	}
	if o.VM.Size() != 0 || o.Adds != 1 || o.Changes != 1 {
		t.Errorf("empty program edited: size %d adds %v changes %v", o.VM.Size(), o.Adds, o.Changes)
	}
}

func TestSmallChangeKeepsOperatorValid(t *testing.T) {
	f := newFixture(t, config.Default())
	o := f.organism()
	code := make([]uint32, 50)
	o.VM.Load(code)
	for i := 0; i < 1000; i++ {
		f.mut.Apply(SmallChange, o)
	}
	c := f.tbl.Codec()
	for i, w := range o.VM.Code {
		if op := c.Operator(w); op >= vm.NumOperators {
			t.Fatalf("line %d has operator %d", i, op)
		}
	}
}

func TestMetaMutations(t *testing.T) {
	cfg := config.Default()
	f := newFixture(t, cfg)
	o := f.organism()
	o.VM.Load([]uint32{1})
	for i := 0; i < 50; i++ {
		for _, typ := range []Type{ClonePercent, Period, Percent, Probs, CloneEnergyPercent} {
			f.mut.Apply(typ, o)
		}
		if o.CloneMutationPercent < 0 || o.CloneMutationPercent >= 1 ||
			o.MutationPercent < 0 || o.MutationPercent >= 1 ||
			o.CloneEnergyPercent < 0 || o.CloneEnergyPercent >= 1 {
			t.Fatalf("percent out of range: %+v", o)
		}
		if o.MutationPeriod < 0 || o.MutationPeriod >= cfg.Org.MaxMutationPeriod {
			t.Fatalf("period %d out of range", o.MutationPeriod)
		}
		for _, p := range o.MutationProbs {
			if p < 0 || p > cfg.Org.MutationProbsMaxValue {
				t.Fatalf("probability %d out of range", p)
			}
		}
	}
	if o.VM.Size() != 1 {
		t.Errorf("meta mutations edited the program")
	}
}

func TestRainTrigger(t *testing.T) {
	f := newFixture(t, config.Default())
	o := f.organism()
	o.MutationPeriod = 5

	if !f.mut.Rain(o) {
		t.Error("no rain at age 0")
	}
	o.Iterations = 3
	if f.mut.Rain(o) {
		t.Error("rain at age 3 with period 5")
	}
	o.Iterations = 10
	if !f.mut.Rain(o) {
		t.Error("no rain at age 10 with period 5")
	}
	o.MutationPeriod = 0
	if f.mut.Rain(o) {
		t.Error("rain with period 0")
	}

	cfg := config.Default()
	cfg.Org.RainMutationPeriod = 0
	f = newFixture(t, cfg)
	o = f.organism()
	o.MutationPeriod = 5
	if f.mut.Rain(o) {
		t.Error("rain while disabled in config")
	}
}

func TestAfterCloneNeedsEnergy(t *testing.T) {
	f := newFixture(t, config.Default())
	o := f.organism()
	o.Energy = 0
	if f.mut.AfterClone(o) {
		t.Error("mutated a clone without energy")
	}
	o.Energy = 10
	if !f.mut.AfterClone(o) || o.VM.Size() == 0 {
		t.Error("clone with energy not mutated")
	}
}

func TestProbIndex(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	if i := ProbIndex(rng, []int{0, 0}); i != -1 {
		t.Errorf("zero weights gave %d", i)
	}
	counts := make([]int, 3)
	for i := 0; i < 4000; i++ {
		counts[ProbIndex(rng, []int{1, 0, 3})]++
	}
	if counts[1] != 0 {
		t.Errorf("zero-weight index drawn %d times", counts[1])
	}
	if counts[0] < 800 || counts[0] > 1200 {
		t.Errorf("index 0 drawn %d times, want about 1000", counts[0])
	}
}

func TestNewRejectsWrongVector(t *testing.T) {
	cfg := config.Default()
	cfg.Org.MutationProbs = []int{1, 2, 3}
	tbl := vm.MustNewTable(cfg.Code)
	if _, err := New(cfg, tbl.Codec(), rand.New(rand.NewSource(1))); err == nil {
		t.Error("expected error for a short probability vector")
	}
}
