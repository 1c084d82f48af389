// Package constpool implements the constant pool shared by every compiled
// unit: a deduplicating, 16-bit-indexed table of integers, floats, strings
// and code objects.
package constpool

import (
	"fmt"
	"math"

	"github.com/dolthub/swiss"
)

// MaxEntries is the largest number of distinct constants a single pool may
// hold; the code generator's Push opcode carries a 16-bit index.
const MaxEntries = 1 << 16

// Kind discriminates the four constant value shapes a pool can hold.
type Kind uint8

const (
	KindInteger Kind = iota
	KindFloat
	KindString
	KindCodeObject
)

// CodeObject is the interface implemented by compiler.CodeObject; it is
// declared here (rather than imported) to avoid a dependency cycle between
// constpool and compiler, which itself embeds a *Pool.
type CodeObject interface {
	// PoolKey returns a value that uniquely identifies this code object for
	// deduplication purposes. Distinct code objects are never equal, so this
	// is always the code object's own pointer identity, boxed as any.
	PoolKey() any
}

// key is the canonical, comparable representation of a pooled constant used
// as the swiss.Map key. Floats are canonicalized to their IEEE-754 bit
// pattern so NaN deduplicates with itself.
type key struct {
	kind Kind
	i    int64
	bits uint64 // float bit pattern, when kind == KindFloat
	s    string
	code any // code object identity, when kind == KindCodeObject
}

// entry is a stored constant plus its kind tag, returned by Get.
type entry struct {
	kind Kind
	i    int64
	f    float64
	s    string
	code CodeObject
}

// Value is the external representation of one pooled constant, returned by
// Get. Exactly one of the typed fields is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	Int  int64
	Flt  float64
	Str  string
	Code CodeObject
}

// Pool is a deduplicated, 16-bit-indexed constant table.
type Pool struct {
	index   *swiss.Map[key, uint32]
	entries []entry
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{index: swiss.NewMap[key, uint32](16)}
}

// InsertInt inserts an integer constant, returning its pool index. Per
//, callers must not insert 0 or 1: the code generator emits
// Push0/Push1 for those instead. InsertInt panics if asked to pool either.
func (p *Pool) InsertInt(v int64) (uint32, error) {
	if v == 0 || v == 1 {
		panic(fmt.Sprintf("constpool: integer %d must not be pooled, use Push0/Push1", v))
	}
	return p.insert(key{kind: KindInteger, i: v}, entry{kind: KindInteger, i: v})
}

// InsertFloat inserts a float constant, returning its pool index. Dedup key
// is the bit pattern, so NaN deduplicates with itself.
func (p *Pool) InsertFloat(v float64) (uint32, error) {
	bits := math.Float64bits(v)
	return p.insert(key{kind: KindFloat, bits: bits}, entry{kind: KindFloat, f: v})
}

// InsertString inserts a string constant, returning its pool index.
func (p *Pool) InsertString(v string) (uint32, error) {
	return p.insert(key{kind: KindString, s: v}, entry{kind: KindString, s: v})
}

// InsertCodeObject inserts a compiled function body as a constant. Code
// objects are never deduplicated against one another (each compiled
// function is distinct), but inserting the identical *CodeObject pointer
// twice still returns the same index.
func (p *Pool) InsertCodeObject(v CodeObject) (uint32, error) {
	return p.insert(key{kind: KindCodeObject, code: v.PoolKey()}, entry{kind: KindCodeObject, code: v})
}

func (p *Pool) insert(k key, e entry) (uint32, error) {
	if idx, ok := p.index.Get(k); ok {
		return idx, nil
	}
	if len(p.entries) >= MaxEntries {
		return 0, fmt.Errorf("constpool: out of constant space (max %d entries)", MaxEntries)
	}
	idx := uint32(len(p.entries))
	p.entries = append(p.entries, e)
	p.index.Put(k, idx)
	return idx, nil
}

// Get returns the constant stored at index i.
func (p *Pool) Get(i uint32) Value {
	e := p.entries[i]
	return Value{Kind: e.kind, Int: e.i, Flt: e.f, Str: e.s, Code: e.code}
}

// Len returns the number of distinct constants in the pool.
func (p *Pool) Len() int { return len(p.entries) }
