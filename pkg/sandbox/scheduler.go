// Package sandbox runs a population of organisms on an energy world.
package sandbox

import (
	"fmt"
	"math/rand"

	"github.com/tliron/commonlog"

	"github.com/psilLang/evo/pkg/config"
	"github.com/psilLang/evo/pkg/mutator"
	"github.com/psilLang/evo/pkg/organism"
	"github.com/psilLang/evo/pkg/vm"
)

var log = commonlog.GetLogger("evo.sandbox")

// Scheduler runs the sandbox tick loop.
type Scheduler struct {
	World   *World
	Mutator *mutator.Mutator
	Status  *Status

	// Cumulative event counters.
	Clones     int
	Crossovers int
	Recreated  int

	cfg   config.Config
	table *vm.Table
	rng   *rand.Rand
}

// NewScheduler creates a world, sprinkles the initial energy and creates
// the start population.
func NewScheduler(cfg config.Config, rng *rand.Rand) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := vm.NewTable(cfg.Code)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	mut, err := mutator.New(cfg, table.Codec(), rng)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	s := &Scheduler{
		World:   NewWorld(cfg.World, rng),
		Mutator: mut,
		Status:  NewStatus(cfg.Status.Period),
		cfg:     cfg,
		table:   table,
		rng:     rng,
	}
	s.World.AddEnergyDots(cfg.World.StartEnergyDots, cfg.World.StartEnergyInDot)
	n := s.Create(cfg.Org.StartAmount)
	log.Infof("world %dx%d: %d organisms, %.1f%% energy cells",
		s.World.Width, s.World.Height, n, s.World.EnergyPercent()*100)
	return s, nil
}

// Config returns the configuration the scheduler runs with.
func (s *Scheduler) Config() config.Config { return s.cfg }

// Table returns the operator table shared by all organisms.
func (s *Scheduler) Table() *vm.Table { return s.table }

// Create adds up to n fresh organisms at random free cells and returns how
// many were created.
func (s *Scheduler) Create(n int) int {
	w := s.World
	created := 0
	for i := 0; i < n && len(w.Orgs) < s.cfg.World.MaxOrgs; i++ {
		x, y, ok := w.FreePos()
		if !ok {
			break
		}
		if w.Spawn(organism.New(0, x, y, s.cfg, s.table, w, s.rng)) {
			created++
		}
	}
	return created
}

// Tick runs one simulation step.
func (s *Scheduler) Tick() {
	w := s.World
	w.Tick++

	// 1. Rain mutation and one quantum per organism, in population order
	lines, passes := 0, 0
	for _, o := range w.Orgs {
		if !o.Alive() {
			continue
		}
		s.Mutator.Rain(o)
		p := o.Passes
		lines += o.Run()
		passes += o.Passes - p
	}

	// 2. Remove dead organisms
	w.Sweep()

	// 3. Cloning and crossover
	if every(w.Tick, s.cfg.Org.ClonePeriod) {
		if winner, _ := s.tournament(); winner != nil {
			s.clone(winner)
		}
	}
	if every(w.Tick, s.cfg.Org.CrossoverPeriod) {
		s.crossover()
	}

	// 4. Energy refill
	if every(w.Tick, s.cfg.World.EnergyCheckPeriod) && w.EnergyPercent() <= s.cfg.World.EnergyCheckPercent {
		n := w.AddEnergyDots(s.cfg.World.StartEnergyDots, s.cfg.World.StartEnergyInDot)
		log.Debugf("tick %d: added %d energy cells", w.Tick, n)
	}

	// 5. Extinction
	if len(w.Orgs) < 1 {
		n := s.Create(s.cfg.Org.StartAmount)
		s.Recreated++
		log.Infof("tick %d: population died out, created %d organisms", w.Tick, n)
	}

	s.Status.Record(lines, passes)
	s.Status.Update(w)
}

// Run calls Tick n times, or forever when n < 1, until stop returns true.
func (s *Scheduler) Run(n int, stop func() bool) int {
	ticks := 0
	for n < 1 || ticks < n {
		if stop != nil && stop() {
			break
		}
		s.Tick()
		ticks++
	}
	return ticks
}

func every(tick, period int) bool {
	return period > 0 && tick%period == 0
}
