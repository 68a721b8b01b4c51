// Package mutator edits organism programs and the heritable parameters
// that control how organisms mutate.
package mutator

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/psilLang/evo/pkg/config"
	"github.com/psilLang/evo/pkg/num"
	"github.com/psilLang/evo/pkg/organism"
)

// Type is a mutation kind. Its value indexes the probability vector.
type Type int

// Mutation kinds, in probability vector order.
const (
	Insert             Type = iota // insert a random instruction
	Replace                        // overwrite an instruction with a random one
	SmallChange                    // rewrite the operator or one register slot
	Delete                         // remove an instruction
	ClonePercent                   // new clone mutation percent
	Period                         // new rain mutation period
	Percent                        // new rain mutation percent
	Probs                          // new weight for one mutation kind
	CloneEnergyPercent             // new clone energy split

	NumTypes
)

var typeNames = [NumTypes]string{
	"insert", "replace", "small-change", "delete",
	"clone-percent", "period", "percent", "probs", "clone-energy-percent",
}

func (t Type) String() string {
	if t >= 0 && t < NumTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Mutator applies mutations drawn from an organism's own probability
// vector.
type Mutator struct {
	Rng   *rand.Rand
	cfg   config.Org
	codec num.Codec

	// Counts tallies applied mutations by kind.
	Counts [NumTypes]int
}

// New creates a mutator. The configured probability vector must have one
// weight per mutation kind.
func New(cfg config.Config, codec num.Codec, rng *rand.Rand) (*Mutator, error) {
	if n := len(cfg.Org.MutationProbs); n != int(NumTypes) {
		return nil, fmt.Errorf("mutator: %d mutation probabilities, want %d", n, NumTypes)
	}
	return &Mutator{Rng: rng, cfg: cfg.Org, codec: codec}, nil
}

// Rain mutates a living organism when its age is a multiple of its own
// mutation period. It reports whether a mutation pass ran.
func (m *Mutator) Rain(o *organism.Organism) bool {
	if m.cfg.RainMutationPeriod <= 0 || o.MutationPeriod <= 0 || !o.Alive() {
		return false
	}
	if o.Iterations%o.MutationPeriod != 0 {
		return false
	}
	m.Mutate(o, o.MutationPercent)
	return true
}

// AfterClone mutates a fresh clone once, if it has energy.
func (m *Mutator) AfterClone(o *organism.Organism) bool {
	if o.Energy <= 0 || !o.Alive() {
		return false
	}
	m.Mutate(o, o.CloneMutationPercent)
	return true
}

// Mutate applies round(size*percent) mutations, at least one, and returns
// how many were applied. The kind is drawn again for every mutation; an
// empty program always gets an insert.
func (m *Mutator) Mutate(o *organism.Organism, percent float64) int {
	n := int(math.Round(float64(o.VM.Size()) * percent))
	if n < 1 {
		n = 1
	}
	applied := 0
	for i := 0; i < n; i++ {
		t := Insert
		if o.VM.Size() > 0 {
			t = Type(ProbIndex(m.Rng, o.MutationProbs))
		}
		if t < 0 || t >= NumTypes {
			continue
		}
		m.Apply(t, o)
		applied++
	}
	return applied
}

// Apply performs one mutation of kind t. Program edits on an empty
// program other than Insert do nothing.
func (m *Mutator) Apply(t Type, o *organism.Organism) {
	rng := m.Rng
	size := o.VM.Size()
	if size == 0 && (t == Replace || t == SmallChange || t == Delete) {
		return
	}
	m.Counts[t]++

	switch t {
	case Insert:
		o.VM.Insert(rng.Intn(size+1), m.codec.Random(rng))
		o.AddAdds(1)

	case Replace:
		o.VM.Replace(rng.Intn(size), m.codec.Random(rng))
		o.AddChanges(1)

	case SmallChange:
		i := rng.Intn(size)
		w := o.VM.Code[i]
		if rng.Intn(2) == 0 {
			w = m.codec.SetOperator(w, uint32(rng.Intn(m.codec.Operators())))
		} else {
			w = m.codec.SetVar(w, rng.Intn(num.Vars), uint32(rng.Intn(1<<m.codec.VarBits())))
		}
		o.VM.Replace(i, w)
		o.AddChanges(0.5)

	case Delete:
		o.VM.Remove(rng.Intn(size))
		o.AddAdds(-1)

	case ClonePercent:
		o.CloneMutationPercent = rng.Float64()

	case Period:
		if m.cfg.MaxMutationPeriod > 0 {
			o.MutationPeriod = rng.Intn(m.cfg.MaxMutationPeriod)
		}

	case Percent:
		o.MutationPercent = rng.Float64()

	case Probs:
		if len(o.MutationProbs) > 0 && m.cfg.MutationProbsMaxValue > 0 {
			o.MutationProbs[rng.Intn(len(o.MutationProbs))] = rng.Intn(m.cfg.MutationProbsMaxValue)
		}

	case CloneEnergyPercent:
		o.CloneEnergyPercent = rng.Float64()
	}
}

// ProbIndex draws an index with probability proportional to its weight.
// It returns -1 when the weights sum to less than 1.
func ProbIndex(rng *rand.Rand, probs []int) int {
	sum := 0
	for _, p := range probs {
		if p > 0 {
			sum += p
		}
	}
	if sum < 1 {
		return -1
	}
	r := rng.Intn(sum) + 1
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		if r <= p {
			return i
		}
		r -= p
	}
	return len(probs) - 1
}
