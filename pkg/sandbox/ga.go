package sandbox

import (
	"math"

	"github.com/psilLang/evo/pkg/organism"
)

// tournament picks two random organisms and returns the fitter one first.
// A dead pair yields nil.
func (s *Scheduler) tournament() (winner, loser *organism.Organism) {
	orgs := s.World.Orgs
	if len(orgs) < 1 {
		return nil, nil
	}
	a := orgs[s.rng.Intn(len(orgs))]
	b := orgs[s.rng.Intn(len(orgs))]
	if !a.Alive() && !b.Alive() {
		return nil, nil
	}
	if !a.Alive() || b.Alive() && b.Fitness() > a.Fitness() {
		a, b = b, a
	}
	return a, b
}

// clone places a copy of parent in a free neighbour cell. The parent gives
// round(Energy*CloneEnergyPercent) to the child, and the child is mutated
// once. It returns nil when the population is full or there is no room.
func (s *Scheduler) clone(parent *organism.Organism) *organism.Organism {
	w := s.World
	if parent.Energy < 1 || !parent.Alive() || len(w.Orgs) >= s.cfg.World.MaxOrgs {
		return nil
	}
	x, y, ok := w.NearFreePos(parent.X, parent.Y)
	if !ok {
		return nil
	}
	child := parent.Clone(0, x, y)
	if !w.Spawn(child) {
		return nil
	}
	energy := math.Round(parent.Energy * parent.CloneEnergyPercent)
	parent.GrabEnergy(energy)
	child.GrabEnergy(child.Energy - energy)
	s.Mutator.AfterClone(child)
	s.Clones++
	log.Debugf("organism %d cloned into %d", parent.ID, child.ID)
	return child
}

// crossover clones the tournament winner and splices a segment of the
// loser's program into the clone.
func (s *Scheduler) crossover() *organism.Organism {
	winner, loser := s.tournament()
	if winner == nil {
		return nil
	}
	child := s.clone(winner)
	if child == nil || !child.Alive() {
		return nil
	}
	child.AddAdds(float64(child.VM.Crossover(loser.VM.Code)))
	s.Crossovers++
	log.Debugf("organism %d crossed with %d", child.ID, loser.ID)
	return child
}
