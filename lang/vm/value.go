// Package vm implements the stack-based virtual machine of and
// §4.E: the runtime value model (booleans, integers, floats, strings,
// lists, structs, enums, mixins, functions) and the bytecode interpreter
// that executes a compiler.Module produced by lang/compiler.
//
// The Value/Callable/Ordered interface shapes and the frame/thread split
// are grounded on the original's lang/machine package; the value taxonomy
// itself (Struct/Enum/Mixin/attribute bags rather than Starlark's
// dict/list/tuple-centric model) is new, built to's data model.
package vm

import "fmt"

// Value is the interface implemented by every value the machine can hold on
// its operand stack, in a local slot, or behind an attribute name.
type Value interface {
	// String returns the value's display representation (used by println,
	// prettyprint and error messages).
	String() string
	// Type returns a short, stable type name (used by typeof and error
	// messages; also the ISA right-hand side for built-in type checks).
	Type() string
}

// Callable is implemented by any value that may appear as the callee of a
// Call opcode: Function, BoundFunction and Builtin.
type Callable interface {
	Value
	Name() string
	Call(th *Thread, args []Value) (Value, error)
}

// Ordered is implemented by values supporting <, <=, >, >=.
type Ordered interface {
	Value
	Cmp(y Value) (int, error)
}

// HasEqual lets a type define its own equality rather than the default
// identity comparison used for Object/Struct/Function values.
type HasEqual interface {
	Value
	Equal(y Value) (bool, error)
}

// Truthy reports whether v is considered true in a boolean context (an
// if/while/match-guard condition, a short-circuit && / ||, or Assert).
// Unit, false, 0, 0.0, "", and an empty List are falsy; everything else,
// including every Struct/Enum/Object/Mixin/Function value, is truthy.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case Bool:
		return bool(x)
	case Integer:
		return x != 0
	case Float:
		return float64(x) != 0
	case String:
		return x != ""
	case *List:
		return x.Len() > 0
	case Unit:
		return false
	}
	return true
}

// Unit is the sole value of the Unit type: the result of a statement
// context, an implicit return, and a guard/extension declaration's
// discarded trailing value.
type Unit struct{}

func (Unit) String() string { return "unit" }
func (Unit) Type() string   { return "Unit" }

// Bool is the Boolean value type.
type Bool bool

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (Bool) Type() string { return "Bool" }

// Integer is the Int value type: an arbitrary-arithmetic-free 64-bit signed
// integer.
type Integer int64

func (i Integer) String() string { return fmt.Sprintf("%d", int64(i)) }
func (Integer) Type() string     { return "Int" }

// Float is the Float value type, a IEEE-754 double.
type Float float64

func (f Float) String() string { return fmt.Sprintf("%g", float64(f)) }
func (Float) Type() string     { return "Float" }

// String is the String value type.
type String string

func (s String) String() string { return string(s) }
func (String) Type() string     { return "String" }
