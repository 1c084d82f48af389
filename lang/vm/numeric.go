package vm

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// cmpOrdered compares two values of the same ordered Go numeric type,
// shared by Integer.Cmp and Float.Cmp so arithmetic promotion and
// comparison don't duplicate a per-type switch.
func cmpOrdered[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Cmp implements Ordered for Integer, promoting to Float if y is a Float.
func (i Integer) Cmp(y Value) (int, error) {
	switch o := y.(type) {
	case Integer:
		return cmpOrdered(int64(i), int64(o)), nil
	case Float:
		return cmpOrdered(float64(i), float64(o)), nil
	}
	return 0, fmt.Errorf("cannot compare Int and %s", y.Type())
}

// Cmp implements Ordered for Float, promoting its Integer operand.
func (f Float) Cmp(y Value) (int, error) {
	switch o := y.(type) {
	case Float:
		return cmpOrdered(float64(f), float64(o)), nil
	case Integer:
		return cmpOrdered(float64(f), float64(o)), nil
	}
	return 0, fmt.Errorf("cannot compare Float and %s", y.Type())
}

// numAdd/numSub/etc. implement the arithmetic opcodes. Any
// Float operand promotes the whole operation to Float; otherwise it stays
// Integer. Shift and bitwise opcodes require both operands to be Integer.

func numAdd(a, b Value) (Value, error) { return numBinOp(a, b, "add", func(x, y int64) int64 { return x + y }, func(x, y float64) float64 { return x + y }) }
func numSub(a, b Value) (Value, error) { return numBinOp(a, b, "sub", func(x, y int64) int64 { return x - y }, func(x, y float64) float64 { return x - y }) }
func numMul(a, b Value) (Value, error) { return numBinOp(a, b, "mul", func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y }) }

func numDiv(a, b Value) (Value, error) {
	return numBinOp(a, b, "div", func(x, y int64) int64 {
		return x / y
	}, func(x, y float64) float64 { return x / y })
}

func numRem(a, b Value) (Value, error) {
	return numBinOp(a, b, "rem", func(x, y int64) int64 { return x % y }, func(x, y float64) float64 {
		r := x - y*float64(int64(x/y))
		return r
	})
}

func numBinOp(a, b Value, op string, iop func(int64, int64) int64, fop func(float64, float64) float64) (Value, error) {
	af, aIsFloat := a.(Float)
	bf, bIsFloat := b.(Float)
	if aIsFloat || bIsFloat {
		var x, y float64
		if aIsFloat {
			x = float64(af)
		} else if ai, ok := a.(Integer); ok {
			x = float64(ai)
		} else {
			return nil, fmt.Errorf("%s: invalid operand %s", op, a.Type())
		}
		if bIsFloat {
			y = float64(bf)
		} else if bi, ok := b.(Integer); ok {
			y = float64(bi)
		} else {
			return nil, fmt.Errorf("%s: invalid operand %s", op, b.Type())
		}
		if (op == "div" || op == "rem") && y == 0 {
			return nil, fmt.Errorf("%s: division by zero", op)
		}
		return Float(fop(x, y)), nil
	}
	ai, aok := a.(Integer)
	bi, bok := b.(Integer)
	if !aok || !bok {
		return nil, fmt.Errorf("%s: invalid operands %s, %s", op, a.Type(), b.Type())
	}
	if (op == "div" || op == "rem") && bi == 0 {
		return nil, fmt.Errorf("%s: division by zero", op)
	}
	return Integer(iop(int64(ai), int64(bi))), nil
}

// intBinOp implements the bitwise/shift opcodes, which only
// defines over Integer operands.
func intBinOp(a, b Value, op string, f func(x, y int64) int64) (Value, error) {
	ai, aok := a.(Integer)
	bi, bok := b.(Integer)
	if !aok || !bok {
		return nil, fmt.Errorf("%s: requires two Int operands, got %s and %s", op, a.Type(), b.Type())
	}
	return Integer(f(int64(ai), int64(bi))), nil
}

func numShl(a, b Value) (Value, error) {
	return intBinOp(a, b, "shl", func(x, y int64) int64 { return x << uint(y) })
}
func numShr(a, b Value) (Value, error) {
	return intBinOp(a, b, "shr", func(x, y int64) int64 { return x >> uint(y) })
}
func numAnd(a, b Value) (Value, error) {
	return intBinOp(a, b, "and", func(x, y int64) int64 { return x & y })
}
func numOr(a, b Value) (Value, error) {
	return intBinOp(a, b, "or", func(x, y int64) int64 { return x | y })
}
func numXor(a, b Value) (Value, error) {
	return intBinOp(a, b, "xor", func(x, y int64) int64 { return x ^ y })
}

func numNeg(a Value) (Value, error) {
	switch x := a.(type) {
	case Integer:
		return -x, nil
	case Float:
		return -x, nil
	}
	return nil, fmt.Errorf("neg: invalid operand %s", a.Type())
}

// Cmp implements Ordered for String, lexicographically by byte value.
func (s String) Cmp(y Value) (int, error) {
	o, ok := y.(String)
	if !ok {
		return 0, fmt.Errorf("cannot compare String and %s", y.Type())
	}
	return cmpOrdered(string(s), string(o)), nil
}

// compareOp is the shared backing for Lt/Le/Gt/Ge: both operands must
// implement Ordered and agree on a comparable pair of types.
func compareOp(a, b Value, want func(int) bool) (Value, error) {
	ao, ok := a.(Ordered)
	if !ok {
		return nil, fmt.Errorf("value of type %s is not ordered", a.Type())
	}
	c, err := ao.Cmp(b)
	if err != nil {
		return nil, err
	}
	return Bool(want(c)), nil
}
