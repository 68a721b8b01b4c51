package organism

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/psilLang/evo/pkg/config"
	"github.com/psilLang/evo/pkg/vm"
)

type nullEnv struct{}

func (nullEnv) EnergyAt(x, y int) float64                  { return 0 }
func (nullEnv) EatAt(x, y int, amount float64) float64     { return 0 }
func (nullEnv) StepTo(x1, y1, x2, y2 int) (bool, int, int) { return false, x1, y1 }
func (nullEnv) OccupancyAt(x, y int) float64               { return 0 }

func testOrganism(t *testing.T, cfg config.Config) *Organism {
	t.Helper()
	tbl, err := vm.NewTable(cfg.Code)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return New(1, 2, 3, cfg, tbl, nullEnv{}, rand.New(rand.NewSource(42)))
}

func TestGrabEnergyDestroysOnce(t *testing.T) {
	o := testOrganism(t, config.Default())
	o.Energy = 10
	destroyed := 0
	o.OnDestroy = func(*Organism) { destroyed++ }

	if !o.GrabEnergy(3) {
		t.Fatal("organism died after grabbing 3 of 10")
	}
	if o.Energy != 7 {
		t.Errorf("energy = %v, want 7", o.Energy)
	}
	if destroyed != 0 {
		t.Errorf("destroy fired early")
	}

	if o.GrabEnergy(8) {
		t.Error("organism survived grabbing more than it had")
	}
	o.GrabEnergy(1)
	o.Destroy()
	if destroyed != 1 {
		t.Errorf("destroy fired %d times, want 1", destroyed)
	}
	if o.Alive() || o.Energy != 0 {
		t.Errorf("alive=%v energy=%v after destroy", o.Alive(), o.Energy)
	}
}

func TestEnergyCost(t *testing.T) {
	cfg := config.Default()
	tests := []struct {
		size   int
		energy float64
		want   float64
	}{
		{0, 100, 1},   // minimum
		{60, 100, 3},  // 60/20
		{50, 100, 3},  // 2.5 rounds up
		{100, 100, 5}, // at the limit
		{101, 1e9, 101 * 10000},
		{60, 2, 2}, // never more than what is left
	}
	for _, tt := range tests {
		o := testOrganism(t, cfg)
		o.VM.Load(make([]uint32, tt.size))
		o.Energy = tt.energy
		if got := o.EnergyCost(); got != tt.want {
			t.Errorf("size %d energy %v: cost %v, want %v", tt.size, tt.energy, got, tt.want)
		}
	}
}

func TestRunSpendsEnergyAtCheckpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Org.EnergySpendPeriod = 3
	cfg.Org.AlivePeriod = 0
	o := testOrganism(t, cfg)
	o.VM.Load(make([]uint32, 60)) // 60 assignments of 0 to v0, cost 3
	o.Energy = 10

	o.Run()
	o.Run()
	if o.Energy != 10 {
		t.Fatalf("energy spent before checkpoint: %v", o.Energy)
	}
	o.Run()
	if o.Energy != 7 {
		t.Errorf("energy = %v after checkpoint, want 7", o.Energy)
	}
	if o.Iterations != 3 {
		t.Errorf("iterations = %d", o.Iterations)
	}
}

func TestRunDiesOfAge(t *testing.T) {
	cfg := config.Default()
	cfg.Org.AlivePeriod = 2
	o := testOrganism(t, cfg)
	died := 0
	o.OnDestroy = func(*Organism) { died++ }
	o.Run()
	if !o.Alive() {
		t.Fatal("died too young")
	}
	o.Run()
	o.Run()
	if o.Alive() || died != 1 {
		t.Errorf("alive=%v died=%d, want dead once", o.Alive(), died)
	}
	if n := o.Run(); n != 0 {
		t.Errorf("dead organism executed %d instructions", n)
	}
}

func TestRunCountsPasses(t *testing.T) {
	o := testOrganism(t, config.Default())
	o.VM.Load(make([]uint32, 4))
	o.Run() // yield period 10 => two full passes and a half
	if o.Passes != 2 {
		t.Errorf("passes = %d, want 2", o.Passes)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	o := testOrganism(t, config.Default())
	o.VM.Load([]uint32{1, 2, 3})
	o.Mem.Push(5)
	o.Adds, o.Changes = 4, 2.5
	o.Iterations = 77
	o.OnDestroy = func(*Organism) { t.Error("parent hook copied to clone") }

	c := o.Clone(9, 4, 4)
	if c.ID != 9 || c.X != 4 || c.Y != 4 || c.Iterations != 0 || !c.Alive() {
		t.Errorf("clone identity wrong: %+v", c)
	}
	if c.Adds != 4 || c.Changes != 2.5 || c.Energy != o.Energy {
		t.Errorf("phenotype not inherited")
	}
	c.VM.Code[0] = 42
	c.MutationProbs[0] = 999
	c.Mem.Push(6)
	if o.VM.Code[0] != 1 || o.MutationProbs[0] == 999 || o.Mem.Len() != 1 {
		t.Error("clone shares state with its parent")
	}
	c.Destroy()
}

func TestColorWraps(t *testing.T) {
	cfg := config.Default()
	cfg.Org.MaxColor = 100
	cfg.Org.StartColor = 90
	o := testOrganism(t, cfg)
	o.AddAdds(1) // adds=2, changes=1 => 90+2
	if o.Color != 92 {
		t.Errorf("color = %v, want 92", o.Color)
	}
	o.AddChanges(4) // adds=2, changes=5 => 92+10 wraps
	if o.Color != 2 {
		t.Errorf("color = %v, want 2", o.Color)
	}
}

func TestStack(t *testing.T) {
	s := NewStack(2)
	if s.Pop() != 0 {
		t.Error("empty pop should be 0")
	}
	if !s.Push(1) || !s.Push(2) {
		t.Fatal("push within capacity failed")
	}
	if s.Push(3) {
		t.Error("push beyond capacity succeeded")
	}
	if !slices.Equal(s.Values(), []float64{1, 2}) {
		t.Errorf("values = %v", s.Values())
	}
	if s.Pop() != 2 || s.Pop() != 1 || s.Len() != 0 {
		t.Error("stack is not LIFO")
	}
}
