package vm

import (
	"fmt"

	"github.com/egranata/aria-sub001/lang/builtintype"
)

// TypeVal is the runtime value pushed by PushBuiltinTy: a first-class
// handle on one of the built-in type tokens, usable as the right-hand
// operand of ISA or as a `val x: Int = ...` declaration's type.
type TypeVal struct{ ID builtintype.ID }

var _ Value = (*TypeVal)(nil)

func (t *TypeVal) String() string { return t.ID.String() }
func (t *TypeVal) Type() string   { return "Type" }

// isaOf is the shared backing for the ISA opcode and a typed declaration's
// runtime check (DefineTyped): does x satisfy the type denoted by y?
func isaOf(x, y Value) (bool, error) {
	switch t := y.(type) {
	case *TypeVal:
		switch t.ID {
		case builtintype.Any:
			return true, nil
		case builtintype.Int:
			_, ok := x.(Integer)
			return ok, nil
		case builtintype.Float:
			_, ok := x.(Float)
			return ok, nil
		case builtintype.Bool:
			_, ok := x.(Bool)
			return ok, nil
		case builtintype.String:
			_, ok := x.(String)
			return ok, nil
		case builtintype.List:
			_, ok := x.(*List)
			return ok, nil
		case builtintype.Unit:
			_, ok := x.(Unit)
			return ok, nil
		case builtintype.Type:
			_, ok := x.(*TypeVal)
			return ok, nil
		}
		return false, nil

	case *EnumCaseToken:
		ev, ok := x.(*EnumValue)
		return ok && ev.enum == t.Enum && ev.caseIdx == t.CaseIdx, nil

	case *Struct:
		if t.IsEnum() {
			ev, ok := x.(*EnumValue)
			return ok && ev.enum == t, nil
		}
		obj, ok := x.(*Object)
		return ok && obj.structDef == t, nil

	case *Mixin:
		switch r := x.(type) {
		case *Object:
			return r.structDef.includesMixin(t), nil
		case *EnumValue:
			return r.enum.includesMixin(t), nil
		}
		return false, nil
	}
	return false, fmt.Errorf("isa: right-hand operand must be a type, got %s", y.Type())
}
