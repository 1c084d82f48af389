package vm

import "math"

// Equal implements the Equal opcode: == compares Bool/Int/Float/String by
// value, List elementwise, EnumValue by case identity plus payload
// equality, and falls back to Go pointer identity for every reference type
// (Struct, Object, Mixin, Function, BoundFunction) that doesn't opt into
// HasEqual.
//
// Float equality (like constant-pool dedup) compares IEEE-754 bit
// patterns rather than using Go's `==`, so NaN == NaN is true at
// runtime, consistently with how two NaN literals dedup to the same
// pooled constant.
func Equal(a, b Value) (bool, error) {
	if he, ok := a.(HasEqual); ok {
		return he.Equal(b)
	}
	switch x := a.(type) {
	case Unit:
		_, ok := b.(Unit)
		return ok, nil
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y, nil
	case Integer:
		switch y := b.(type) {
		case Integer:
			return x == y, nil
		case Float:
			return float64(x) == float64(y), nil
		}
		return false, nil
	case Float:
		switch y := b.(type) {
		case Float:
			return math.Float64bits(float64(x)) == math.Float64bits(float64(y)), nil
		case Integer:
			return float64(x) == float64(y), nil
		}
		return false, nil
	case String:
		y, ok := b.(String)
		return ok && x == y, nil
	case *List:
		y, ok := b.(*List)
		if !ok || x.Len() != y.Len() {
			return false, nil
		}
		for i := 0; i < x.Len(); i++ {
			eq, err := Equal(x.elems[i], y.elems[i])
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	}
	return a == b, nil
}
