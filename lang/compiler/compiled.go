package compiler

import (
	"github.com/egranata/aria-sub001/lang/funcbuilder"
	"github.com/egranata/aria-sub001/lang/resolver"
	"github.com/egranata/aria-sub001/lang/token"
)

// FunctionAttr is a bit set carried by BuildFunction/BindCase describing how
// the runtime should treat the resulting value.
type FunctionAttr uint8

const (
	// AttrVararg marks a function whose last declared local collects surplus
	// call arguments into a List.
	AttrVararg FunctionAttr = 1 << iota
	// AttrMethod marks a function that, when read off a Struct/Enum/Mixin
	// instance via ReadAttribute, is bound to its receiver (produces a
	// BoundFunction rather than the bare Function value).
	AttrMethod
	// AttrHasPayload marks an enum case (used with BindCase, not BuildFunction)
	// as carrying a payload, rather than being a bare tag.
	AttrHasPayload
	// AttrTypeMethod marks a method bound to `This` (the defining
	// struct/enum template) instead of `this` (the receiving instance) —
	// set for a struct/enum member declared with MethodAccess Type.
	AttrTypeMethod
)

// CodeObject is the immutable, linearized result of compiling one function
// (or a module's top-level block, which is compiled as a zero-arg function).
// It is stored in the constant pool like any other constant.
type CodeObject struct {
	Name      string
	Pos       token.Pos
	Code      []byte
	LineTable []funcbuilder.LineEntry
	NumParams int
	Vararg    bool
	NumLocals int // total frame_size, parameters first, then other locals/cells
	// Cells holds the local slot indices promoted to heap cells because a
	// nested function captures them. The VM boxes these slots
	// in a fresh Cell at frame creation instead of storing the raw value.
	Cells []int
	// Uplevels records, in uplevel-index order, where each of this function's
	// captured cells comes from in the enclosing frame. BuildFunction reads
	// this directly off the CodeObject to wire a new Function's closure,
	// rather than the compiler emitting a per-uplevel wiring opcode: the
	// existing LOADLOCAL/STORELOCAL opcodes already address Local and Cell
	// bindings identically, leaving no clean way to emit "push the raw cell,
	// don't deref" through the current opcode vocabulary.
	Uplevels []resolver.Uplevel
	NumFree  int // len(Uplevels); the enclosing frame's cells are shared (not copied) with the new Function at BuildFunction time
	MaxStack int
}

// PoolKey implements constpool.CodeObject.
func (c *CodeObject) PoolKey() any { return c }

// PositionFor returns the source position recorded for the instruction
// starting at byte offset pc, or the zero Pos if none is recorded (used for
// exception backtraces).
func (c *CodeObject) PositionFor(pc uint32) token.Pos {
	// Line table entries are appended in increasing offset order by
	// funcbuilder.Linearize, so the last entry at or before pc is current.
	var pos token.Pos
	for _, e := range c.LineTable {
		if e.Offset > pc {
			break
		}
		pos = e.Pos
	}
	return pos
}
