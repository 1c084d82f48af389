// Package resolver implements the scope tree and binding resolution for
// Aria/Haxby identifiers. Unlike a classic two-pass resolve-then-compile
// split, this resolver's operations emit opcodes as a direct side effect
// — it is driven in-line by the code generator in lang/compiler, one
// Scope per AST block, function root, or guard/try body.
//
// The Local/Cell/Free/Predeclared/Universal scope-kind taxonomy and the
// promote-local-to-cell-on-first-outer-use mechanism are grounded on
// _examples/mna-nenuphar/lang/resolver/resolver.go's `use` method; this
// package generalizes it to emit bytecode immediately rather than annotate
// an AST for a later compile pass.
package resolver

import "fmt"

// BindingKind is the resolved scope of an identifier binding.
type BindingKind uint8

const (
	Undefined BindingKind = iota // name is not defined
	Local                        // local to the current function frame
	Cell                         // function-local but captured by a nested function
	Free                         // captured cell of an enclosing function (an uplevel)
	Global                       // module-level global; also covers predeclared/universal
	// names (built-ins), which are resolved dynamically at runtime by
	// LoadGlobal falling back to the host's builtins table rather than by a distinct resolver scope kind.
)

var bindingKindNames = [...]string{
	Undefined: "undefined",
	Local:     "local",
	Cell:      "cell",
	Free:      "free",
	Global:    "global",
}

func (k BindingKind) String() string {
	if int(k) >= len(bindingKindNames) {
		return fmt.Sprintf("<invalid BindingKind %d>", k)
	}
	return bindingKindNames[k]
}

// Binding records how one identifier resolves.
type Binding struct {
	Kind BindingKind
	// Index is the local slot (Kind==Local/Cell) or uplevel index
	// (Kind==Free) this binding refers to. Unused for other kinds.
	Index int
}

// Uplevel records one name captured from an enclosing function, in the
// order it was first referenced").
type Uplevel struct {
	Name      string
	OuterKind BindingKind // Local (now promoted to Cell) or Free, in the enclosing function
	OuterSlot int
}
