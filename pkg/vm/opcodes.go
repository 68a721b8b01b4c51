// Package vm implements the organism virtual machine: the operator table,
// the block offset stack and the execution engine that runs a program a
// bounded number of instructions at a time.
package vm

// Operator ids. The order is part of the instruction encoding.
const (
	OpVar        = iota // v0 = const | v1
	OpCondition         // if (v0 rel v1) { ... }
	OpLoop              // for (v0 = v1; v0 < v2; v0++) { ... }
	OpOperator          // v0 = v1 op v2
	OpLookAt            // v0 = energy at (v1, v2)
	OpEatLeft           // v0 = eat v1 energy from the left cell
	OpEatRight          // right cell
	OpEatUp             // upper cell
	OpEatDown           // lower cell
	OpStepLeft          // v0 = 1 if moved left, else 0
	OpStepRight         // right
	OpStepUp            // up
	OpStepDown          // down
	OpFromMem           // v0 = pop memory
	OpToMem             // push v1, v0 = v1 or 0 when full
	OpMyX               // v0 = own x
	OpMyY               // v0 = own y
	OpCheckLeft         // v0 = occupancy of the left cell
	OpCheckRight        // right cell
	OpCheckUp           // upper cell
	OpCheckDown         // lower cell

	NumOperators // operator count, not an operator
)

// OperatorBits is the width of the operator field for NumOperators.
const OperatorBits = 5

// Compile-time check that NumOperators fits into OperatorBits.
var _ [1<<OperatorBits - NumOperators]struct{}

var opNames = [NumOperators]string{
	OpVar:        "var",
	OpCondition:  "condition",
	OpLoop:       "loop",
	OpOperator:   "operator",
	OpLookAt:     "lookAt",
	OpEatLeft:    "eatLeft",
	OpEatRight:   "eatRight",
	OpEatUp:      "eatUp",
	OpEatDown:    "eatDown",
	OpStepLeft:   "stepLeft",
	OpStepRight:  "stepRight",
	OpStepUp:     "stepUp",
	OpStepDown:   "stepDown",
	OpFromMem:    "fromMem",
	OpToMem:      "toMem",
	OpMyX:        "myX",
	OpMyY:        "myY",
	OpCheckLeft:  "checkLeft",
	OpCheckRight: "checkRight",
	OpCheckUp:    "checkUp",
	OpCheckDown:  "checkDown",
}

// OpName returns the name of an operator id.
func OpName(op uint32) string {
	if op < NumOperators {
		return opNames[op]
	}
	return "nop"
}

// OpByName returns the id for a name from OpName.
func OpByName(name string) (uint32, bool) {
	for i, n := range opNames {
		if n == name {
			return uint32(i), true
		}
	}
	return 0, false
}

// Relations selected by the 2-bit condition selector.
const (
	RelLess = iota
	RelGreater
	RelEqual
	RelNotEqual
)

// RelationSymbols maps relation selectors to their source form.
var RelationSymbols = [4]string{"<", ">", "==", "!="}

// Binary operators selected by the 4-bit operator selector.
const (
	ArAdd = iota
	ArSub
	ArMul
	ArDiv
	ArMod
	ArAnd
	ArOr
	ArXor
	ArShr
	ArShl
	ArUshr
	ArLess
	ArGreater
	ArEqual
	ArNotEqual
	ArLessEqual
)

// ArithSymbols maps operator selectors to their source form.
var ArithSymbols = [16]string{"+", "-", "*", "/", "%", "&", "|", "^", ">>", "<<", ">>>", "<", ">", "==", "!=", "<="}

// Direction deltas for the four-way sensors and actuators. Up is -y.
var (
	dirLeft  = [2]int{-1, 0}
	dirRight = [2]int{1, 0}
	dirUp    = [2]int{0, -1}
	dirDown  = [2]int{0, 1}
)
