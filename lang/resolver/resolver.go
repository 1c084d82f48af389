package resolver

import (
	"github.com/egranata/aria-sub001/lang/compileerr"
	"github.com/egranata/aria-sub001/lang/constpool"
	"github.com/egranata/aria-sub001/lang/funcbuilder"
	"github.com/egranata/aria-sub001/lang/opcode"
	"github.com/egranata/aria-sub001/lang/token"
)

// Kind discriminates the four scope shapes: module root, function root
// (also used for closures), lexical block, and guard/try body.
type Kind uint8

const (
	ModuleScope Kind = iota
	FunctionRootScope
	BlockScope
	GuardTryScope
)

// reservedIdentifiers cannot be the target of a val declaration.
var reservedIdentifiers = map[string]bool{"true": true, "false": true}

// IsReserved reports whether name is a reserved identifier.
func IsReserved(name string) bool { return reservedIdentifiers[name] }

// frame is the per-function-root bookkeeping shared by every Scope nested
// inside one function body: its local slot counter and its uplevel table.
type frame struct {
	builder      *funcbuilder.Builder
	parent       *frame // enclosing function's frame, nil for the module's synthetic top-level frame
	numLocals    int
	cells        map[int]bool // local slot -> promoted to cell
	uplevels     []Uplevel
	uplevelIndex map[string]int // name -> index into uplevels, within this frame
}

// Scope is one node of the scope tree: a lexical block, a function root, a
// guard/try body, or the module root. Every Scope operation that resolves
// or declares a name emits the corresponding opcode into the owning
// frame's function builder, per
type Scope struct {
	kind     Kind
	parent   *Scope
	pool     *constpool.Pool
	fr       *frame             // owning function's frame; nil for ModuleScope and any block nested under it
	bindings map[string]*Binding // names declared directly in this block
	builder  *funcbuilder.Builder // the module-level builder; set on ModuleScope and propagated to its nested blocks
}

// NewModule creates the root scope for a module's top-level code, backed by
// the given builder (the module's entry code object) and constant pool.
func NewModule(pool *constpool.Pool, builder *funcbuilder.Builder) *Scope {
	return &Scope{
		kind:     ModuleScope,
		pool:     pool,
		bindings: make(map[string]*Binding),
		builder:  builder,
	}
}

// NewFunction creates a function-root scope nested inside parent (the scope
// enclosing the `func`/lambda declaration), backed by its own fresh
// function builder.
func (parent *Scope) NewFunction(builder *funcbuilder.Builder) *Scope {
	var parentFrame *frame
	if parent.fr != nil {
		parentFrame = parent.fr
	}
	fr := &frame{
		builder:      builder,
		parent:       parentFrame,
		cells:        make(map[int]bool),
		uplevelIndex: make(map[string]int),
	}
	return &Scope{
		kind:     FunctionRootScope,
		parent:   parent,
		pool:     parent.pool,
		fr:       fr,
		bindings: make(map[string]*Binding),
	}
}

// NewBlock creates a nested lexical block scope, sharing its parent's
// function frame. Its builder also mirrors the parent's so that a block
// nested directly under ModuleScope (fr == nil all the way down) can still
// reach the module's entry builder.
func (parent *Scope) NewBlock() *Scope {
	return &Scope{
		kind:     BlockScope,
		parent:   parent,
		pool:     parent.pool,
		fr:       parent.fr,
		bindings: make(map[string]*Binding),
		builder:  parent.builder,
	}
}

// NewGuardTry creates a nested guard/try body scope. Functionally identical
// to NewBlock for identifier resolution; the distinct Kind documents the
// control-block-stack bookkeeping layered on top by the code generator
//.
func (parent *Scope) NewGuardTry() *Scope {
	s := parent.NewBlock()
	s.kind = GuardTryScope
	return s
}

// builderFor returns the function builder that opcodes emitted from this
// scope should target: the module's builder when s (or an enclosing block)
// has no owning function frame, the owning function's builder otherwise.
// Frame presence, not Kind, decides this: a block nested directly under
// ModuleScope is still frame-less.
func (s *Scope) builderFor() *funcbuilder.Builder {
	if s.fr == nil {
		return s.builder
	}
	return s.fr.builder
}

// Uplevels returns the owning function's recorded uplevels, in first-
// reference order. Only meaningful once the function body has been fully
// visited.
func (s *Scope) Uplevels() []Uplevel {
	if s.fr == nil {
		return nil
	}
	return s.fr.uplevels
}

// NumLocals returns the number of local slots (including cells, excluding
// uplevels) declared anywhere in the owning function.
func (s *Scope) NumLocals() int {
	if s.fr == nil {
		return 0
	}
	return s.fr.numLocals
}

// IsCell reports whether local slot i was promoted to a cell because a
// nested function captures it.
func (s *Scope) IsCell(i int) bool {
	if s.fr == nil {
		return false
	}
	return s.fr.cells[i]
}

// CellIndices returns the local slot indices promoted to cells in the
// owning function, in ascending order. Only meaningful once the function
// body has been fully visited (promotion can happen as late as the last
// nested closure compiled in the body).
func (s *Scope) CellIndices() []int {
	if s.fr == nil {
		return nil
	}
	out := make([]int, 0, len(s.fr.cells))
	for i := 0; i < s.fr.numLocals; i++ {
		if s.fr.cells[i] {
			out = append(out, i)
		}
	}
	return out
}

// DefineUntyped registers name as a new binding in this scope and emits
// DefineUntyped(name), consuming the value already on the operand stack
//.
func (s *Scope) DefineUntyped(name string, pos token.Pos) (*Binding, error) {
	b, err := s.declare(name, pos)
	if err != nil {
		return nil, err
	}
	s.emitDefine(opcode.DEFINEUNTYPED, name, pos)
	return b, nil
}

// DefineTyped registers name as a new binding and emits DefineTyped(name),
// consuming a type value and the bound value (in that order) already on
// the operand stack.
func (s *Scope) DefineTyped(name string, pos token.Pos) (*Binding, error) {
	b, err := s.declare(name, pos)
	if err != nil {
		return nil, err
	}
	s.emitDefine(opcode.DEFINETYPED, name, pos)
	return b, nil
}

func (s *Scope) declare(name string, pos token.Pos) (*Binding, error) {
	if IsReserved(name) {
		return nil, compileerr.New(compileerr.ReservedIdentifier, pos, "cannot declare reserved identifier %q", name)
	}
	var b *Binding
	if s.fr == nil {
		// No owning function frame: either literal module scope, or a block
		// nested under it (an `if`/`while`/`for`/`match`/`guard`/`try` body at
		// module top level). Either way the name becomes a module global.
		b = &Binding{Kind: Global}
	} else {
		idx := s.fr.numLocals
		s.fr.numLocals++
		b = &Binding{Kind: Local, Index: idx}
	}
	s.bindings[name] = b
	return b, nil
}

func (s *Scope) emitDefine(op opcode.Opcode, name string, pos token.Pos) {
	if s.fr == nil {
		idx, _ := s.pool.InsertString(name)
		s.builderFor().Emit(op, idx, pos)
		return
	}
	// Locals are addressed purely by slot, not by name: DefineTyped's type
	// value (pushed above the bound value) has nowhere to go at local scope,
	// so it is popped and discarded here rather than threaded into the VM's
	// name-keyed global table.
	if op == opcode.DEFINETYPED {
		s.builderFor().Emit(opcode.POP, 0, pos)
	}
	b := s.bindings[name]
	s.builderFor().Emit(opcode.STORELOCAL, uint32(b.Index), pos)
}

// DefineUntypedParam registers name as a parameter of the current function,
// allocating its local slot without emitting any definition opcode: unlike
// a val declaration's bound value, a parameter already occupies its frame
// slot by the time the function body starts executing.
func (s *Scope) DefineUntypedParam(name string) (*Binding, error) {
	return s.declare(name, token.Pos(0))
}

// EmitRead resolves name (searching this scope, then enclosing blocks, then
// enclosing function frames, promoting captured locals to cells and
// recording uplevels as needed) and emits the matching Load opcode.
func (s *Scope) EmitRead(name string, pos token.Pos) error {
	b, err := s.resolve(name, pos)
	if err != nil {
		return err
	}
	switch b.Kind {
	case Local, Cell:
		s.builderFor().Emit(opcode.LOADLOCAL, uint32(b.Index), pos)
	case Free:
		s.builderFor().Emit(opcode.LOADUPLEVEL, uint32(b.Index), pos)
	case Global:
		idx, _ := s.pool.InsertString(name)
		s.builderFor().Emit(opcode.LOADGLOBAL, idx, pos)
	}
	return nil
}

// EmitWrite is the store-side symmetric counterpart of EmitRead, consuming
// the value already on the operand stack.
func (s *Scope) EmitWrite(name string, pos token.Pos) error {
	b, err := s.resolve(name, pos)
	if err != nil {
		return err
	}
	switch b.Kind {
	case Local, Cell:
		s.builderFor().Emit(opcode.STORELOCAL, uint32(b.Index), pos)
	case Free:
		s.builderFor().Emit(opcode.STOREUPLEVEL, uint32(b.Index), pos)
	case Global:
		idx, _ := s.pool.InsertString(name)
		s.builderFor().Emit(opcode.STOREGLOBAL, idx, pos)
	}
	return nil
}

// resolve finds the binding for name, searching outward from s. A local
// found in an enclosing function is promoted to Cell and a Free binding
// (uplevel) is installed in every function frame between the use site and
// the declaring frame. A name found nowhere is treated as a module Global
//.
func (s *Scope) resolve(name string, pos token.Pos) (*Binding, error) {
	startFrame := s.fr
	for blk := s; blk != nil; blk = blk.parent {
		b, ok := blk.bindings[name]
		if !ok {
			continue
		}
		if blk.fr == startFrame {
			return b, nil
		}
		// Declared in an enclosing function: promote to cell there, and
		// install a Free/uplevel binding in every frame between here and
		// there (innermost first is the caller's frame, startFrame).
		return s.captureAcrossFrames(name, blk, b), nil
	}
	return &Binding{Kind: Global}, nil
}

// captureAcrossFrames promotes the declaring binding to a Cell in its own
// frame, then threads a Free uplevel binding into every function frame
// strictly between the declaring scope and s's frame.
func (s *Scope) captureAcrossFrames(name string, declScope *Scope, decl *Binding) *Binding {
	if decl.Kind == Local {
		decl.Kind = Cell
		declScope.fr.cells[decl.Index] = true
	}

	// Collect the chain of frames from s's frame up to (excluding) the
	// declaring frame.
	var chain []*frame
	for fr := s.fr; fr != nil && fr != declScope.fr; fr = fr.parent {
		chain = append(chain, fr)
	}

	outerKind, outerSlot := decl.Kind, decl.Index
	// Walk from the outermost frame in the chain (closest to the
	// declaration) to the innermost (s's own frame), installing an uplevel
	// at each level that chains to the previous one.
	var free *Binding
	for i := len(chain) - 1; i >= 0; i-- {
		fr := chain[i]
		if idx, ok := fr.uplevelIndex[name]; ok {
			free = &Binding{Kind: Free, Index: idx}
		} else {
			idx := len(fr.uplevels)
			fr.uplevels = append(fr.uplevels, Uplevel{Name: name, OuterKind: outerKind, OuterSlot: outerSlot})
			fr.uplevelIndex[name] = idx
			free = &Binding{Kind: Free, Index: idx}
		}
		outerKind, outerSlot = Free, free.Index
	}
	// Cache the resolved Free binding at the use-site block so repeated
	// reads in the same block don't re-walk the chain.
	s.bindings[name] = free
	return free
}
