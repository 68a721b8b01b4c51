package sandbox

import (
	"math"
	"math/rand"

	"github.com/psilLang/evo/pkg/config"
	"github.com/psilLang/evo/pkg/organism"
)

// Cell contents reported by OccupancyAt.
const (
	OccOutside  = -1
	OccEmpty    = 0
	OccEnergy   = 1
	OccOrganism = 2
)

const maxPlaceTries = 100

// World is a rectangular energy grid with organisms on it. It implements
// vm.Environment.
type World struct {
	Width, Height int
	Cyclical      bool
	Energy        []float64
	Orgs          []*organism.Organism
	Tick          int

	// Occupancy grid: parallel to Energy, stores organism ID (0 = empty)
	Occ []uint64
	// Organism lookup by ID
	orgByID map[uint64]*organism.Organism

	// Number of cells holding energy (maintained by SetEnergy)
	dots int

	Rng    *rand.Rand
	NextID uint64
}

// NewWorld creates an empty world.
func NewWorld(cfg config.World, rng *rand.Rand) *World {
	n := cfg.Width * cfg.Height
	return &World{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Cyclical: cfg.Cyclical,
		Energy:   make([]float64, n),
		Occ:      make([]uint64, n),
		Orgs:     make([]*organism.Organism, 0, cfg.MaxOrgs),
		orgByID:  make(map[uint64]*organism.Organism),
		Rng:      rng,
		NextID:   1,
	}
}

func (w *World) idx(x, y int) int {
	return y*w.Width + x
}

func (w *World) InBounds(x, y int) bool {
	return x >= 0 && x < w.Width && y >= 0 && y < w.Height
}

// wrap maps (x, y) onto the torus when the world is cyclic. ok is false
// for coordinates outside a bounded world.
func (w *World) wrap(x, y int) (int, int, bool) {
	if !w.Cyclical {
		return x, y, w.InBounds(x, y)
	}
	return mod(x, w.Width), mod(y, w.Height), true
}

// EnergyAt returns the energy of the organism at (x, y), else the energy
// stored in the cell.
func (w *World) EnergyAt(x, y int) float64 {
	if !w.InBounds(x, y) {
		return 0
	}
	if o := w.OrgAt(x, y); o != nil {
		return o.Energy
	}
	return w.Energy[w.idx(x, y)]
}

// CellEnergy returns the energy stored in the cell, ignoring occupants.
func (w *World) CellEnergy(x, y int) float64 {
	if !w.InBounds(x, y) {
		return 0
	}
	return w.Energy[w.idx(x, y)]
}

// SetEnergy stores v in the cell.
func (w *World) SetEnergy(x, y int, v float64) {
	if !w.InBounds(x, y) {
		return
	}
	i := w.idx(x, y)
	if w.Energy[i] > 0 {
		w.dots--
	}
	if v > 0 {
		w.dots++
	} else {
		v = 0
	}
	w.Energy[i] = v
}

// EatAt takes up to amount energy from the organism at (x, y), which may
// die of it, or else from the cell.
func (w *World) EatAt(x, y int, amount float64) float64 {
	if math.IsNaN(amount) || amount <= 0 {
		return 0
	}
	x, y, ok := w.wrap(x, y)
	if !ok {
		return 0
	}
	if o := w.OrgAt(x, y); o != nil {
		got := math.Min(amount, o.Energy)
		o.GrabEnergy(got)
		return got
	}
	cell := w.Energy[w.idx(x, y)]
	got := math.Min(amount, cell)
	w.SetEnergy(x, y, cell-got)
	return got
}

// StepTo moves the organism at (x1, y1) to (x2, y2) if the destination is
// free. Cells holding energy block movement.
func (w *World) StepTo(x1, y1, x2, y2 int) (bool, int, int) {
	if !w.InBounds(x1, y1) {
		return false, x1, y1
	}
	x2, y2, ok := w.wrap(x2, y2)
	if !ok || !w.IsFree(x2, y2) {
		return false, x1, y1
	}
	from, to := w.idx(x1, y1), w.idx(x2, y2)
	w.Occ[to] = w.Occ[from]
	w.Occ[from] = 0
	return true, x2, y2
}

// OccupancyAt reports OccOutside, OccEmpty, OccEnergy or OccOrganism.
func (w *World) OccupancyAt(x, y int) float64 {
	x, y, ok := w.wrap(x, y)
	if !ok {
		return OccOutside
	}
	i := w.idx(x, y)
	switch {
	case w.Occ[i] != 0:
		return OccOrganism
	case w.Energy[i] > 0:
		return OccEnergy
	}
	return OccEmpty
}

// IsFree reports whether (x, y) holds neither an organism nor energy.
func (w *World) IsFree(x, y int) bool {
	if !w.InBounds(x, y) {
		return false
	}
	i := w.idx(x, y)
	return w.Occ[i] == 0 && w.Energy[i] <= 0
}

// OrgAt returns the organism at (x, y), or nil.
func (w *World) OrgAt(x, y int) *organism.Organism {
	if !w.InBounds(x, y) {
		return nil
	}
	id := w.Occ[w.idx(x, y)]
	if id == 0 {
		return nil
	}
	return w.orgByID[id]
}

// OrgByID returns the organism with the given ID, or nil.
func (w *World) OrgByID(id uint64) *organism.Organism {
	return w.orgByID[id]
}

// FreePos returns a random free cell.
func (w *World) FreePos() (int, int, bool) {
	for tries := 0; tries < maxPlaceTries; tries++ {
		x := w.Rng.Intn(w.Width)
		y := w.Rng.Intn(w.Height)
		if w.IsFree(x, y) {
			return x, y, true
		}
	}
	// Crowded world: scan from a random cell
	n := w.Width * w.Height
	start := w.Rng.Intn(n)
	for k := 0; k < n; k++ {
		i := (start + k) % n
		if x, y := i%w.Width, i/w.Width; w.IsFree(x, y) {
			return x, y, true
		}
	}
	return 0, 0, false
}

var neighbours = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// NearFreePos returns a random free cell among the 8 neighbours of (x, y).
func (w *World) NearFreePos(x, y int) (int, int, bool) {
	for _, k := range w.Rng.Perm(len(neighbours)) {
		d := neighbours[k]
		nx, ny, ok := w.wrap(x+d[0], y+d[1])
		if ok && w.IsFree(nx, ny) {
			return nx, ny, true
		}
	}
	return 0, 0, false
}

// Spawn places o on the world, moving it to a random free cell if its own
// cell is taken, and assigns an ID if it has none. Spawned organisms
// release their cell when they die.
func (w *World) Spawn(o *organism.Organism) bool {
	if !w.IsFree(o.X, o.Y) {
		x, y, ok := w.FreePos()
		if !ok {
			return false
		}
		o.X, o.Y = x, y
	}
	if o.ID == 0 {
		o.ID = w.NextID
		w.NextID++
	}
	o.OnDestroy = w.release
	w.Occ[w.idx(o.X, o.Y)] = o.ID
	w.Orgs = append(w.Orgs, o)
	w.orgByID[o.ID] = o
	return true
}

func (w *World) release(o *organism.Organism) {
	if w.InBounds(o.X, o.Y) && w.Occ[w.idx(o.X, o.Y)] == o.ID {
		w.Occ[w.idx(o.X, o.Y)] = 0
	}
	delete(w.orgByID, o.ID)
	log.Debugf("organism %d died at %d,%d", o.ID, o.X, o.Y)
}

// Sweep drops dead organisms from Orgs, keeping population order.
func (w *World) Sweep() int {
	alive := w.Orgs[:0]
	for _, o := range w.Orgs {
		if o.Alive() {
			alive = append(alive, o)
		}
	}
	dead := len(w.Orgs) - len(alive)
	clear(w.Orgs[len(alive):])
	w.Orgs = alive
	return dead
}

// AddEnergyDots stores value in up to n random free cells and returns how
// many were filled.
func (w *World) AddEnergyDots(n int, value float64) int {
	added := 0
	for i := 0; i < n; i++ {
		x, y, ok := w.FreePos()
		if !ok {
			break
		}
		w.SetEnergy(x, y, value)
		added++
	}
	return added
}

// EnergyPercent returns the share of cells holding energy.
func (w *World) EnergyPercent() float64 {
	return float64(w.dots) / float64(w.Width*w.Height)
}

// EnergyCells returns the coordinates of all energy cells as a flat x, y
// list.
func (w *World) EnergyCells() []int {
	cells := make([]int, 0, 2*w.dots)
	for i, e := range w.Energy {
		if e > 0 {
			cells = append(cells, i%w.Width, i/w.Width)
		}
	}
	return cells
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}
