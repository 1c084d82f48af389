package vm

import (
	"fmt"
	"strings"
)

// List is the mutable, dynamically-sized sequence value of It
// exposes its indexing/mutation surface as ordinary attribute methods
// (get/set/append/length) rather than dedicated opcodes, mirroring how
// IndexExpr/set-index lower in lang/compiler.
type List struct {
	elems []Value
}

var (
	_ Value    = (*List)(nil)
	_ HasAttrs = (*List)(nil)
)

// NewList returns a List wrapping the given elements (not copied).
func NewList(elems []Value) *List { return &List{elems: elems} }

func (l *List) Len() int { return len(l.elems) }

func (l *List) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range l.elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

func (l *List) Type() string { return "List" }

func (l *List) checkIndex(i int64) (int, error) {
	if i < 0 || i >= int64(len(l.elems)) {
		return 0, fmt.Errorf("list index %d out of range (len %d)", i, len(l.elems))
	}
	return int(i), nil
}

// ReadAttr implements HasAttrs for the List built-in method surface.
func (l *List) ReadAttr(name string) (Value, bool) {
	switch name {
	case "length":
		return Integer(len(l.elems)), true
	case "get":
		return newBuiltin("get", func(th *Thread, args []Value) (Value, error) {
			idx, err := wantInt(args, 0)
			if err != nil {
				return nil, err
			}
			i, err := l.checkIndex(idx)
			if err != nil {
				return nil, err
			}
			return l.elems[i], nil
		}), true
	case "set":
		return newBuiltin("set", func(th *Thread, args []Value) (Value, error) {
			idx, err := wantInt(args, 0)
			if err != nil {
				return nil, err
			}
			i, err := l.checkIndex(idx)
			if err != nil {
				return nil, err
			}
			if len(args) < 2 {
				return nil, fmt.Errorf("set: expected 2 arguments, got %d", len(args))
			}
			l.elems[i] = args[1]
			return Unit{}, nil
		}), true
	case "append":
		return newBuiltin("append", func(th *Thread, args []Value) (Value, error) {
			l.elems = append(l.elems, args...)
			return Unit{}, nil
		}), true
	case "iterator":
		return newBuiltin("iterator", func(th *Thread, args []Value) (Value, error) {
			return newListIterator(l), nil
		}), true
	}
	return nil, false
}

func (l *List) WriteAttr(name string, v Value) bool { return false }

// listIterator implements the iteration protocol: a value with
// a zero-arg `next()` method returning an object exposing `done`/`value`.
type listIterator struct {
	l   *List
	pos int
}

var _ HasAttrs = (*listIterator)(nil)

func newListIterator(l *List) *listIterator { return &listIterator{l: l} }

func (it *listIterator) String() string { return "list_iterator" }
func (it *listIterator) Type() string   { return "ListIterator" }

func (it *listIterator) ReadAttr(name string) (Value, bool) {
	if name != "next" {
		return nil, false
	}
	return newBuiltin("next", func(th *Thread, args []Value) (Value, error) {
		res := NewIterResult()
		if it.pos >= len(it.l.elems) {
			res.Set("done", Bool(true))
			res.Set("value", Unit{})
		} else {
			res.Set("done", Bool(false))
			res.Set("value", it.l.elems[it.pos])
			it.pos++
		}
		return res, nil
	}), true
}

func (it *listIterator) WriteAttr(name string, v Value) bool { return false }

func wantInt(args []Value, i int) (int64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("expected argument %d", i)
	}
	n, ok := args[i].(Integer)
	if !ok {
		return 0, fmt.Errorf("expected Int argument, got %s", args[i].Type())
	}
	return int64(n), nil
}
