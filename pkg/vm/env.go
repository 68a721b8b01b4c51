package vm

// Environment is the world as seen by sensor and actuator operators.
// Every call is synchronous and reports its outcome through return values.
type Environment interface {
	// EnergyAt returns the energy of the organism at (x, y), else the cell
	// energy. Out-of-bounds coordinates report 0.
	EnergyAt(x, y int) float64
	// EatAt removes up to amount energy from (x, y) and returns what was
	// actually taken.
	EatAt(x, y int, amount float64) float64
	// StepTo moves the organism at (x1, y1) to (x2, y2) and returns its
	// final position.
	StepTo(x1, y1, x2, y2 int) (moved bool, x, y int)
	// OccupancyAt reports what is at (x, y). The encoding belongs to the
	// environment.
	OccupancyAt(x, y int) float64
}

// Organism is the running program's owner.
type Organism interface {
	Pos() (x, y int)
	SetPos(x, y int)
	AddEnergy(e float64)
	// Push stores a value in scratch memory; false when memory is full.
	Push(v float64) bool
	// Pop returns the last pushed value, or 0 when memory is empty.
	Pop() float64
	// CodeEnd is called once every time the program completes a pass.
	CodeEnd()
}

// Frame is the state one dispatch reads and writes.
type Frame struct {
	Vars []float64
	Offs *OffsetStack
	Org  Organism
	Env  Environment
}
