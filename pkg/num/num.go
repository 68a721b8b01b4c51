// Package num packs and unpacks 32-bit organism instructions.
//
// Instruction layout, most significant bits first:
//
//	[operator: O bits][var0: V bits][var1: V bits][var2: V bits][payload: rest]
//
// O and V are derived from the operator count and the register count when a
// Codec is built. Every accessor shifts unsigned and masks its inputs, so no
// operation here can fail once the Codec exists.
package num

import (
	"fmt"
	"math/bits"
	"math/rand"
)

// Vars is the number of register slots in every instruction.
const Vars = 3

// ImmediateBits is the width of the signed constant used by assignments.
const ImmediateBits = 16

// Codec holds the bit layout derived from one configuration.
type Codec struct {
	operators int
	opBits    uint
	varBits   uint
	varShift  uint   // 32 - opBits, shift that isolates the operator
	afterVars uint   // first payload bit, counted from the MSB
	noOpMask  uint32 // every bit except the operator field
}

// New builds a codec for operators distinct operator ids and vars registers.
func New(operators, vars int) (Codec, error) {
	if operators < 1 {
		return Codec{}, fmt.Errorf("num: operator count must be positive, got %d", operators)
	}
	if vars < 1 {
		return Codec{}, fmt.Errorf("num: register count must be positive, got %d", vars)
	}
	c := Codec{
		operators: operators,
		opBits:    uint(bits.Len(uint(operators - 1))),
		varBits:   uint(bits.Len(uint(vars - 1))),
	}
	c.varShift = 32 - c.opBits
	c.afterVars = c.opBits + Vars*c.varBits
	if c.afterVars > 32 {
		return Codec{}, fmt.Errorf("num: %d operator bits and %d var bits overflow 32 bits", c.opBits, c.varBits)
	}
	c.noOpMask = mask(c.varShift)
	return c, nil
}

// MustNew is New for layouts known to be valid. It panics otherwise.
func MustNew(operators, vars int) Codec {
	c, err := New(operators, vars)
	if err != nil {
		panic(err)
	}
	return c
}

// mask returns the n low bits set.
func mask(n uint) uint32 {
	if n >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<n - 1
}

// Operators returns the operator count the codec was built for.
func (c Codec) Operators() int { return c.operators }

// OperatorBits returns O.
func (c Codec) OperatorBits() uint { return c.opBits }

// VarBits returns V.
func (c Codec) VarBits() uint { return c.varBits }

// AfterVars returns the bit offset of the payload from the MSB.
func (c Codec) AfterVars() uint { return c.afterVars }

// PayloadBits returns the payload width.
func (c Codec) PayloadBits() uint { return 32 - c.afterVars }

// HalfVar returns half of the register index range.
func (c Codec) HalfVar() uint32 { return (uint32(1) << c.varBits) >> 1 }

// GetBits returns n bits starting at bit start, counted from the MSB.
// Ranges running past bit 31 are truncated.
func GetBits(word uint32, start, n uint) uint32 {
	if n == 0 || start >= 32 {
		return 0
	}
	if n > 32-start {
		n = 32 - start
	}
	return word << start >> (32 - n)
}

// SetBits overwrites n bits starting at bit start (from the MSB) with the
// low n bits of v. Other bits are untouched.
func SetBits(word uint32, start, n uint, v uint32) uint32 {
	if n == 0 || start >= 32 {
		return word
	}
	if n > 32-start {
		n = 32 - start
	}
	shift := 32 - start - n
	m := mask(n) << shift
	return word&^m | (v<<shift)&m
}

// GetBits calls the package-level GetBits.
func (c Codec) GetBits(word uint32, start, n uint) uint32 { return GetBits(word, start, n) }

// Operator extracts the operator id.
func (c Codec) Operator(word uint32) uint32 {
	if c.opBits == 0 {
		return 0
	}
	return word >> c.varShift
}

// SetOperator replaces the operator id, masked to O bits.
func (c Codec) SetOperator(word, id uint32) uint32 {
	return SetBits(word, 0, c.opBits, id)
}

// Var extracts register slot 0, 1 or 2. Larger slots wrap modulo 3.
func (c Codec) Var(word uint32, slot int) uint32 {
	return GetBits(word, c.varStart(slot), c.varBits)
}

// SetVar replaces one register slot, masked to V bits.
func (c Codec) SetVar(word uint32, slot int, v uint32) uint32 {
	return SetBits(word, c.varStart(slot), c.varBits, v)
}

func (c Codec) varStart(slot int) uint {
	slot %= Vars
	if slot < 0 {
		slot += Vars
	}
	return c.opBits + uint(slot)*c.varBits
}

// Payload returns the bits after the three register slots, right aligned.
func (c Codec) Payload(word uint32) uint32 {
	return word & mask(c.PayloadBits())
}

// PayloadPrefix returns the first n payload bits.
func (c Codec) PayloadPrefix(word uint32, n uint) uint32 {
	return GetBits(word, c.afterVars, n)
}

// SetPayloadPrefix replaces the first n payload bits.
func (c Codec) SetPayloadPrefix(word uint32, n uint, v uint32) uint32 {
	return SetBits(word, c.afterVars, n, v)
}

// Immediate returns the leading 16 payload bits as a signed constant.
func (c Codec) Immediate(word uint32) int16 {
	return int16(uint16(c.PayloadPrefix(word, ImmediateBits)))
}

// Relation returns the 2-bit relation selector stored at the top of var2.
func (c Codec) Relation(word uint32) uint32 {
	return GetBits(word, c.varStart(2), 2)
}

// SetRelation stores a 2-bit relation selector at the top of var2.
func (c Codec) SetRelation(word, rel uint32) uint32 {
	return SetBits(word, c.varStart(2), 2, rel)
}

// Encode packs all fields. Each field is masked to its width; payload
// occupies the low PayloadBits bits.
func (c Codec) Encode(op, v0, v1, v2, payload uint32) uint32 {
	w := c.SetOperator(0, op)
	w = c.SetVar(w, 0, v0)
	w = c.SetVar(w, 1, v1)
	w = c.SetVar(w, 2, v2)
	return w | payload&mask(c.PayloadBits())
}

// Random returns an instruction with a valid operator id and random
// remaining bits.
func (c Codec) Random(rng *rand.Rand) uint32 {
	op := uint32(rng.Intn(c.operators))
	if c.opBits == 0 {
		return rng.Uint32()
	}
	return op<<c.varShift | rng.Uint32()&c.noOpMask
}
