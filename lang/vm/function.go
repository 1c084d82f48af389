package vm

import (
	"fmt"

	"github.com/egranata/aria-sub001/lang/compiler"
)

// Function is a user-defined, code-object-backed callable value: the
// runtime counterpart of a compiler.CodeObject, closed over the cells it
// captured from its enclosing frame at BuildFunction time.
type Function struct {
	Code     *compiler.CodeObject
	Module   *Module
	attrs    compiler.FunctionAttr
	uplevels []*cell // one per Code.Uplevels entry, wired at BuildFunction time
}

var (
	_ Value    = (*Function)(nil)
	_ Callable = (*Function)(nil)
)

func (fn *Function) String() string { return fmt.Sprintf("function(%s)", fn.Name()) }
func (fn *Function) Type() string   { return "Function" }
func (fn *Function) Name() string {
	if fn.Code.Name == "" {
		return "<anonymous>"
	}
	return fn.Code.Name
}

// IsVararg reports whether the function's last parameter collects surplus
// call arguments into a List.
func (fn *Function) IsVararg() bool { return fn.attrs&compiler.AttrVararg != 0 }

// IsMethod reports whether ReadAttribute should bind this function to its
// receiver rather than returning it bare.
func (fn *Function) IsMethod() bool { return fn.attrs&compiler.AttrMethod != 0 }

// IsTypeMethod reports whether a method bind should use the defining
// struct/enum itself as the receiver (This) rather than the instance the
// attribute was read off (this).
func (fn *Function) IsTypeMethod() bool { return fn.attrs&compiler.AttrTypeMethod != 0 }

// Call implements Callable by running the function's code object in a
// fresh Frame (lang/vm/thread.go).
func (fn *Function) Call(th *Thread, args []Value) (Value, error) {
	return th.callFunction(fn, args)
}

// BoundFunction is a Function bound to a receiver, produced by reading a
// method off a Struct/Enum/Mixin instance.
type BoundFunction struct {
	Recv Value
	Fn   *Function
}

var (
	_ Value    = (*BoundFunction)(nil)
	_ Callable = (*BoundFunction)(nil)
)

func (b *BoundFunction) String() string { return fmt.Sprintf("bound_function(%s)", b.Fn.Name()) }
func (b *BoundFunction) Type() string   { return "Function" }
func (b *BoundFunction) Name() string   { return b.Fn.Name() }

func (b *BoundFunction) Call(th *Thread, args []Value) (Value, error) {
	full := make([]Value, 0, len(args)+1)
	full = append(full, b.Recv)
	full = append(full, args...)
	return th.callFunction(b.Fn, full)
}

// Builtin is a host-implemented callable: every function in
// and every List/iterator method surface is one of these.
type Builtin struct {
	name string
	fn   func(th *Thread, args []Value) (Value, error)
}

var (
	_ Value    = (*Builtin)(nil)
	_ Callable = (*Builtin)(nil)
)

func newBuiltin(name string, fn func(th *Thread, args []Value) (Value, error)) *Builtin {
	return &Builtin{name: name, fn: fn}
}

func (b *Builtin) String() string { return fmt.Sprintf("builtin(%s)", b.name) }
func (b *Builtin) Type() string   { return "Function" }
func (b *Builtin) Name() string   { return b.name }
func (b *Builtin) Call(th *Thread, args []Value) (Value, error) {
	return b.fn(th, args)
}

// Module is the dynamic counterpart of a compiler.Module: the running
// globals table for one compiled unit, addressed by LOADGLOBAL/STOREGLOBAL
// and by qualified attribute access on an imported module value
// (`import "foo"` binds the module itself; `foo.bar` then reads off it).
type Module struct {
	Compiled *compiler.Module
	Globals  *AttrBag
}

var (
	_ Value    = (*Module)(nil)
	_ HasAttrs = (*Module)(nil)
)

func (m *Module) String() string { return fmt.Sprintf("module(%s)", m.Compiled.Entry.Name) }
func (m *Module) Type() string   { return "Module" }

func (m *Module) ReadAttr(name string) (Value, bool) { return m.Globals.Get(name) }
func (m *Module) WriteAttr(name string, v Value) bool {
	m.Globals.Set(name, v)
	return true
}
