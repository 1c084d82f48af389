package vm

import (
	"fmt"
	"strings"
)

// HasAttrs is implemented by every value with a named-attribute surface:
// Struct, Object, Mixin, EnumValue, List and the small iterator/iter-result
// helper values. ReadAttribute/WriteAttribute opcodes dispatch through this
// interface.
type HasAttrs interface {
	Value
	ReadAttr(name string) (Value, bool)
	WriteAttr(name string, v Value) bool
}

// mixinAttrPrefix marks the reserved attribute keys under which a
// struct/enum stores its included mixins, in declaration order (lang/
// compiler's compileMembers), so the attribute-resolution fallback can find
// them without a dedicated field.
const mixinAttrPrefix = "__mixin__"

// caseDef is one declared enum case: its name and whether NEWENUMVAL
// carries a payload value for it.
type caseDef struct {
	name       string
	hasPayload bool
}

// Struct is both the struct and the enum value of: a named,
// mutable attribute bag acting as a type's own value (used directly as a
// Type token, and for extension/mixin attachment), optionally carrying a
// set of declared enum cases bound by BindCase. There is no separate
// BUILDENUM opcode — the code generator lowers `enum` exactly like
// `struct` plus a BindCase per case (lang/compiler's compileEnumDecl) —
// so one Go type serves both, distinguished by whether any cases are
// bound.
type Struct struct {
	name  string
	attrs *AttrBag
	cases []caseDef
}

var (
	_ Value    = (*Struct)(nil)
	_ HasAttrs = (*Struct)(nil)
)

// NewStruct returns an empty struct/enum template named name.
func NewStruct(name string) *Struct {
	return &Struct{name: name, attrs: NewAttrBag(4)}
}

func (s *Struct) String() string { return s.name }

func (s *Struct) Type() string {
	if s.IsEnum() {
		return "Enum"
	}
	return "Struct"
}

// IsEnum reports whether any case has been bound via BindCase.
func (s *Struct) IsEnum() bool { return len(s.cases) > 0 }

// addCase registers a new enum case and returns its index, used by the
// BindCase opcode handler.
func (s *Struct) addCase(name string, hasPayload bool) int {
	idx := len(s.cases)
	s.cases = append(s.cases, caseDef{name: name, hasPayload: hasPayload})
	return idx
}

func (s *Struct) caseByName(name string) (int, bool) {
	for i, c := range s.cases {
		if c.name == name {
			return i, true
		}
	}
	return 0, false
}

// ReadAttr looks up name directly, then falls through every included mixin
// in LIFO declaration order (the most recently included mixin shadows
// earlier ones, matching's mixin lookup order).
func (s *Struct) ReadAttr(name string) (Value, bool) {
	if v, ok := s.attrs.Get(name); ok {
		return bindTypeMethod(s, v), true
	}
	names := s.attrs.Names()
	for i := len(names) - 1; i >= 0; i-- {
		n := names[i]
		if !strings.HasPrefix(n, mixinAttrPrefix) {
			continue
		}
		mv, _ := s.attrs.Get(n)
		if mx, ok := mv.(*Mixin); ok {
			if v, ok := mx.ReadAttr(name); ok {
				return bindTypeMethod(s, v), true
			}
		}
	}
	return nil, false
}

func (s *Struct) WriteAttr(name string, v Value) bool {
	s.attrs.Set(name, v)
	return true
}

// bindTypeMethod wraps v as a BoundFunction receiving recv (This) when v is
// a type-level method; every other value — including an ordinary instance
// method, left for the caller (Object/EnumValue.ReadAttr) to bind to the
// instance (this) instead — passes through unchanged.
func bindTypeMethod(recv Value, v Value) Value {
	if fn, ok := v.(*Function); ok && fn.IsTypeMethod() {
		return &BoundFunction{Recv: recv, Fn: fn}
	}
	return v
}

// includesMixin reports whether m was attached to s via a mixin
// declaration, used by the ISA opcode when the right-hand operand is a
// Mixin value.
func (s *Struct) includesMixin(m *Mixin) bool {
	for _, n := range s.attrs.Names() {
		if !strings.HasPrefix(n, mixinAttrPrefix) {
			continue
		}
		if v, ok := s.attrs.Get(n); ok && v == Value(m) {
			return true
		}
	}
	return false
}

// Object is an instance of a Struct (alloc'd via the `alloc` builtin or
// produced by a constructor function). Its own attribute bag holds
// per-instance fields; a lookup miss falls through to the defining
// Struct, binding a method hit to a BoundFunction.
type Object struct {
	structDef *Struct
	attrs     *AttrBag
}

var (
	_ Value    = (*Object)(nil)
	_ HasAttrs = (*Object)(nil)
)

// NewObject returns a new, empty instance of s.
func NewObject(s *Struct) *Object {
	return &Object{structDef: s, attrs: NewAttrBag(4)}
}

func (o *Object) String() string { return fmt.Sprintf("<%s instance>", o.structDef.name) }
func (o *Object) Type() string   { return o.structDef.name }

func (o *Object) ReadAttr(name string) (Value, bool) {
	if v, ok := o.attrs.Get(name); ok {
		return v, true
	}
	if v, ok := o.structDef.ReadAttr(name); ok {
		if fn, ok := v.(*Function); ok && fn.IsMethod() {
			return &BoundFunction{Recv: o, Fn: fn}, true
		}
		return v, true
	}
	return nil, false
}

func (o *Object) WriteAttr(name string, v Value) bool {
	o.attrs.Set(name, v)
	return true
}

// Mixin is a reusable bundle of methods/fields attachable to a struct or
// enum declaration. BUILDMIXIN produces an empty one;
// compileMembers then writes its members the same way it writes a
// struct's.
type Mixin struct {
	attrs *AttrBag
}

var (
	_ Value    = (*Mixin)(nil)
	_ HasAttrs = (*Mixin)(nil)
)

func NewMixin() *Mixin { return &Mixin{attrs: NewAttrBag(4)} }

func (m *Mixin) String() string { return "mixin" }
func (m *Mixin) Type() string   { return "Mixin" }

func (m *Mixin) ReadAttr(name string) (Value, bool) { return m.attrs.Get(name) }
func (m *Mixin) WriteAttr(name string, v Value) bool {
	m.attrs.Set(name, v)
	return true
}

// EnumValue is one constructed enum case, produced by NEWENUMVAL. Each
// case holds at most one payload value, exposed under the reserved
// "__payload0" attribute name that the pattern-match and
// optional-chaining lowerings (lang/compiler's compilePattern/
// compileOptTry/compileOptForce) already read.
type EnumValue struct {
	enum    *Struct
	caseIdx int
	payload Value // nil if the case carries none
	attrs   *AttrBag
}

var (
	_ Value    = (*EnumValue)(nil)
	_ HasAttrs = (*EnumValue)(nil)
	_ HasEqual = (*EnumValue)(nil)
)

func NewEnumValue(enum *Struct, caseIdx int, payload Value) *EnumValue {
	return &EnumValue{enum: enum, caseIdx: caseIdx, payload: payload}
}

func (e *EnumValue) CaseName() string { return e.enum.cases[e.caseIdx].name }

func (e *EnumValue) String() string {
	if e.payload != nil {
		return fmt.Sprintf("%s::%s(%s)", e.enum.name, e.CaseName(), e.payload.String())
	}
	return fmt.Sprintf("%s::%s", e.enum.name, e.CaseName())
}

func (e *EnumValue) Type() string { return e.enum.name }

func (e *EnumValue) ReadAttr(name string) (Value, bool) {
	if name == "__payload0" && e.payload != nil {
		return e.payload, true
	}
	if e.attrs != nil {
		if v, ok := e.attrs.Get(name); ok {
			return v, true
		}
	}
	if v, ok := e.enum.ReadAttr(name); ok {
		if fn, ok := v.(*Function); ok && fn.IsMethod() {
			return &BoundFunction{Recv: e, Fn: fn}, true
		}
		return v, true
	}
	return nil, false
}

func (e *EnumValue) WriteAttr(name string, v Value) bool {
	if e.attrs == nil {
		e.attrs = NewAttrBag(2)
	}
	e.attrs.Set(name, v)
	return true
}

// Equal implements HasEqual: two enum values are equal when they share the
// same defining enum, the same case, and equal (or absent) payloads.
func (e *EnumValue) Equal(y Value) (bool, error) {
	o, ok := y.(*EnumValue)
	if !ok || o.enum != e.enum || o.caseIdx != e.caseIdx {
		return false, nil
	}
	if e.payload == nil || o.payload == nil {
		return e.payload == nil && o.payload == nil, nil
	}
	return Equal(e.payload, o.payload)
}

// EnumCaseToken is the runtime value a qualified case name ("Enum::Case")
// resolves to through Thread.Named, used as the right-hand operand of ISA
// in a pattern-match or `??`/`!!` lowering, and as the lookup key for
// NEWENUMVAL.
type EnumCaseToken struct {
	Enum    *Struct
	CaseIdx int
}

var _ Value = (*EnumCaseToken)(nil)

func (t *EnumCaseToken) String() string { return t.Enum.name + "::" + t.Enum.cases[t.CaseIdx].name }
func (t *EnumCaseToken) Type() string   { return "EnumCase" }
func (t *EnumCaseToken) HasPayload() bool {
	return t.Enum.cases[t.CaseIdx].hasPayload
}

// iterResult is the plain attribute-bag value returned by an iterator's
// `next()` method, exposing `done`/`value` per the iteration protocol.
type iterResult struct{ attrs *AttrBag }

var _ HasAttrs = (*iterResult)(nil)

// NewIterResult returns an empty iterator-step result; callers fill in
// "done" and "value" before returning it.
func NewIterResult() *iterResult { return &iterResult{attrs: NewAttrBag(2)} }

func (r *iterResult) Set(name string, v Value)           { r.attrs.Set(name, v) }
func (r *iterResult) String() string                     { return "iter_result" }
func (r *iterResult) Type() string                       { return "IterResult" }
func (r *iterResult) ReadAttr(name string) (Value, bool) { return r.attrs.Get(name) }
func (r *iterResult) WriteAttr(name string, v Value) bool {
	r.attrs.Set(name, v)
	return true
}
