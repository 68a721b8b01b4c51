// Package organism implements a digital organism: a VM program, its
// scratch memory, its energy budget and the heritable parameters that
// steer its mutation.
package organism

import (
	"math"
	"math/rand"
	"slices"

	"github.com/psilLang/evo/pkg/config"
	"github.com/psilLang/evo/pkg/vm"
)

// Organism is one creature of the population.
type Organism struct {
	ID   uint64
	X, Y int

	Energy     float64
	Iterations int     // age in runs
	Passes     int     // completed program passes
	Adds       float64 // net inserted instructions
	Changes    float64 // replaced instructions, small changes count half
	Color      float64

	// Heritable mutation parameters.
	MutationProbs        []int
	MutationPeriod       int
	MutationPercent      float64
	CloneMutationPercent float64
	CloneEnergyPercent   float64

	VM  *vm.VM
	Mem *Stack

	// OnDestroy is called once, when the organism dies.
	OnDestroy func(o *Organism)

	cfg   config.Config
	alive bool
}

// New creates an organism with an empty program and random registers.
func New(id uint64, x, y int, cfg config.Config, t *vm.Table, env vm.Environment, rng *rand.Rand) *Organism {
	return &Organism{
		ID:                   id,
		X:                    x,
		Y:                    y,
		Energy:               cfg.Org.StartEnergy,
		Adds:                 1,
		Changes:              1,
		Color:                cfg.Org.StartColor,
		MutationProbs:        slices.Clone(cfg.Org.MutationProbs),
		MutationPeriod:       cfg.Org.RainMutationPeriod,
		MutationPercent:      cfg.Org.RainMutationPercent,
		CloneMutationPercent: cfg.Org.CloneMutationPercent,
		CloneEnergyPercent:   cfg.Org.CloneEnergyPercent,
		VM:                   vm.New(t, env, rng),
		Mem:                  NewStack(cfg.Org.MemSize),
		cfg:                  cfg,
		alive:                true,
	}
}

// Clone returns a living copy of o at (x, y). Program, registers, memory,
// phenotype counters, energy and mutation parameters are copied; age and
// the destroy hook are not.
func (o *Organism) Clone(id uint64, x, y int) *Organism {
	c := *o
	c.ID = id
	c.X, c.Y = x, y
	c.Iterations = 0
	c.Passes = 0
	c.MutationProbs = slices.Clone(o.MutationProbs)
	c.VM = o.VM.Clone()
	c.Mem = o.Mem.Clone()
	c.OnDestroy = nil
	c.alive = true
	return &c
}

// Alive reports whether the organism has not been destroyed.
func (o *Organism) Alive() bool { return o.alive }

// Run executes one quantum of the program and applies the age and energy
// rules. It returns the number of instructions executed.
func (o *Organism) Run() int {
	if !o.alive {
		return 0
	}
	o.Iterations++
	n := o.VM.Run(o, o.cfg.Code.YieldPeriod)
	if o.updateDestroy() {
		o.updateEnergy()
	}
	return n
}

// updateDestroy kills the organism when it is out of energy or too old.
// It returns false if the organism died.
func (o *Organism) updateDestroy() bool {
	if !o.alive {
		return false
	}
	limit := o.cfg.Org.AlivePeriod
	if o.Energy < 1 || limit > 0 && o.Iterations >= limit {
		o.Destroy()
		return false
	}
	return true
}

func (o *Organism) updateEnergy() {
	period := o.cfg.Org.EnergySpendPeriod
	if period <= 0 || o.Iterations%period != 0 {
		return
	}
	o.GrabEnergy(o.EnergyCost())
}

// EnergyCost returns the energy taken at every spend checkpoint: one unit
// per GarbagePeriod instructions, a punitive amount above Code.MaxSize,
// at least 1 and at most the remaining energy.
func (o *Organism) EnergyCost() float64 {
	size := float64(o.VM.Size())
	grab := math.Round(size / float64(o.cfg.Org.GarbagePeriod))
	if o.VM.Size() > o.cfg.Code.MaxSize {
		grab = size * o.cfg.Code.SizeCoef
	}
	if grab < 1 {
		grab = 1
	}
	return math.Min(o.Energy, grab)
}

// GrabEnergy removes amount energy. The organism dies when less than 1
// unit is left. It returns false if the organism is dead afterwards.
func (o *Organism) GrabEnergy(amount float64) bool {
	if !o.alive {
		return false
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return true
	}
	o.Energy -= amount
	if o.Energy < 1 {
		o.Destroy()
		return false
	}
	return true
}

// Destroy kills the organism. Only the first call has any effect.
func (o *Organism) Destroy() {
	if !o.alive {
		return
	}
	o.alive = false
	o.Energy = 0
	if o.OnDestroy != nil {
		o.OnDestroy(o)
	}
}

// Fitness is the tournament score.
func (o *Organism) Fitness() float64 {
	return o.Energy * o.Changes
}

// AddAdds updates the insert counter and the color.
func (o *Organism) AddAdds(d float64) {
	o.Adds += d
	o.recolor()
}

// AddChanges updates the change counter and the color.
func (o *Organism) AddChanges(d float64) {
	o.Changes += d
	o.recolor()
}

// recolor shifts the color by adds*changes, wrapping at MaxColor.
func (o *Organism) recolor() {
	span := o.cfg.Org.MaxColor
	c := math.Mod(o.Color+o.Adds*o.Changes, span)
	if c < 0 {
		c += span
	}
	o.Color = c
}

// vm.Organism

func (o *Organism) Pos() (int, int)     { return o.X, o.Y }
func (o *Organism) SetPos(x, y int)     { o.X, o.Y = x, y }
func (o *Organism) AddEnergy(e float64) { o.Energy += e }
func (o *Organism) Push(v float64) bool { return o.Mem.Push(v) }
func (o *Organism) Pop() float64        { return o.Mem.Pop() }
func (o *Organism) CodeEnd()            { o.Passes++ }
