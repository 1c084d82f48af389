package vm

import "github.com/dolthub/swiss"

// AttrBag is the attribute table backing every Struct, Object, Mixin and
// Enum value. Lookup and
// insertion go through a swiss.Map for O(1) access; a parallel slice of
// insertion-ordered keys is kept alongside it so that listattrs() and the
// mixin-inclusion walk can enumerate names without depending on an
// iteration method off the map itself — the same map-plus-ordered-slice
// shape lang/constpool.Pool uses for its own dedup index.
type AttrBag struct {
	m     *swiss.Map[string, Value]
	order []string
}

// NewAttrBag returns an empty attribute bag sized for roughly n entries.
func NewAttrBag(n int) *AttrBag {
	if n < 1 {
		n = 1
	}
	return &AttrBag{m: swiss.NewMap[string, Value](uint32(n))}
}

// Get returns the value stored under name, if any.
func (b *AttrBag) Get(name string) (Value, bool) {
	return b.m.Get(name)
}

// Set stores v under name, recording name in insertion order the first
// time it is written.
func (b *AttrBag) Set(name string, v Value) {
	if _, existed := b.m.Get(name); !existed {
		b.order = append(b.order, name)
	}
	b.m.Put(name, v)
}

// Names returns every attribute name in this bag, in first-write order.
func (b *AttrBag) Names() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}
