package vm

import "fmt"

// operatorAttrPrefix/reverseOperatorAttrPrefix mirror the reserved
// attribute-key convention lang/compiler's compileMembers writes
// operator/reverse-operator overloads under — the vm-side half of the
// "__operator__<sym>" / "__reverse_operator__<sym>" naming convention
// (mixinAttrPrefix's sibling, kept as its own literal per package rather
// than a cross-package constant).
const (
	operatorAttrPrefix        = "__operator__"
	reverseOperatorAttrPrefix = "__reverse_operator__"
)

// tryBinaryOperator looks for a user-defined overload of symbol on a (or,
// failing that, a reverse overload on b) before a binary opcode handler
// falls back to its builtin numeric/comparison implementation. ok is false
// when neither operand defines one, leaving the caller free to run its
// default path unchanged.
func (th *Thread) tryBinaryOperator(symbol string, a, b Value) (Value, bool, error) {
	if ha, ok := a.(HasAttrs); ok {
		if fn, ok := ha.ReadAttr(operatorAttrPrefix + symbol); ok {
			v, err := th.callOperator(fn, b)
			return v, true, err
		}
	}
	if hb, ok := b.(HasAttrs); ok {
		if fn, ok := hb.ReadAttr(reverseOperatorAttrPrefix + symbol); ok {
			v, err := th.callOperator(fn, a)
			return v, true, err
		}
	}
	return nil, false, nil
}

// tryUnaryOperator looks for a user-defined `u-` overload on a, backing the
// Neg opcode's overload fallback.
func (th *Thread) tryUnaryOperator(a Value) (Value, bool, error) {
	ha, ok := a.(HasAttrs)
	if !ok {
		return nil, false, nil
	}
	fn, ok := ha.ReadAttr(operatorAttrPrefix + string(opUnaryMinus))
	if !ok {
		return nil, false, nil
	}
	v, err := th.callOperator(fn, nil)
	return v, true, err
}

const opUnaryMinus = "u-"

func (th *Thread) callOperator(fn Value, arg Value) (Value, error) {
	c, ok := fn.(Callable)
	if !ok {
		return nil, fmt.Errorf("operator overload is not callable")
	}
	var args []Value
	if arg != nil {
		args = []Value{arg}
	}
	return c.Call(th, args)
}
