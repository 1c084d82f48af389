// Package funcbuilder implements the function builder of: a
// labeled graph of basic blocks that linearizes to a byte stream and a line
// table, resolving block-relative jump targets to absolute byte offsets.
//
// The block/linearize/back-patch shape is grounded on the original's
// lang/compiler/compiler.go block/visit/generate machinery, generalized
// from an implicit CFG (jmp/cjmp successor pointers discovered during
// traversal) to the spec's explicit labeled-block API.
package funcbuilder

import (
	"fmt"

	"github.com/egranata/aria-sub001/lang/opcode"
	"github.com/egranata/aria-sub001/lang/token"
)

// insn is one (opcode, immediate argument, source location) triple
// accumulated in a block before linearization.
type insn struct {
	op  opcode.Opcode
	arg uint32
	// labelArg is set instead of arg for jump instructions whose target is
	// not yet known as an absolute offset; it is resolved during Linearize.
	labelArg string
	isJump   bool
	pos      token.Pos
}

// block is one named, ordered sequence of instructions.
type block struct {
	label string
	insns []insn
}

// Builder accumulates basic blocks for a single function and linearizes
// them into bytecode.
type Builder struct {
	blocks  []*block
	byLabel map[string]int // label -> index into blocks
	current int            // index of current block into blocks
	nextID  int
}

// New returns a builder with a single initial block, current by default.
func New() *Builder {
	b := &Builder{byLabel: make(map[string]int)}
	entry := b.newLabel("entry")
	b.AppendBlockAtEnd(entry)
	b.SetCurrentBlock(entry)
	return b
}

// newLabel returns a fresh, unique block label.
func (b *Builder) newLabel(prefix string) string {
	b.nextID++
	return fmt.Sprintf("%s%d", prefix, b.nextID)
}

// NewBlock reserves a fresh unique label for a not-yet-placed block.
func (b *Builder) NewBlock(prefix string) string {
	return b.newLabel(prefix)
}

// GetCurrentBlock returns the label of the block instructions are currently
// appended to.
func (b *Builder) GetCurrentBlock() string {
	return b.blocks[b.current].label
}

// SetCurrentBlock changes which block subsequent Emit calls append to. The
// block must already exist (via AppendBlockAtEnd or InsertBlockAfter).
func (b *Builder) SetCurrentBlock(label string) {
	idx, ok := b.byLabel[label]
	if !ok {
		panic(fmt.Sprintf("funcbuilder: no such block %q", label))
	}
	b.current = idx
}

// AppendBlockAtEnd adds a new, empty block as the final block of the
// function and returns its label (equal to the one passed in, or a fresh
// one if label is empty).
func (b *Builder) AppendBlockAtEnd(label string) string {
	if label == "" {
		label = b.newLabel("block")
	}
	if _, exists := b.byLabel[label]; exists {
		panic(fmt.Sprintf("funcbuilder: block %q already exists", label))
	}
	b.blocks = append(b.blocks, &block{label: label})
	b.byLabel[label] = len(b.blocks) - 1
	return label
}

// InsertBlockAfter inserts a new, empty block immediately after the named
// predecessor block and returns its label.
func (b *Builder) InsertBlockAfter(label, after string) string {
	if label == "" {
		label = b.newLabel("block")
	}
	afterIdx, ok := b.byLabel[after]
	if !ok {
		panic(fmt.Sprintf("funcbuilder: no such block %q", after))
	}
	nb := &block{label: label}
	pos := afterIdx + 1
	b.blocks = append(b.blocks, nil)
	copy(b.blocks[pos+1:], b.blocks[pos:])
	b.blocks[pos] = nb
	// indices shifted for every block after `pos`; rebuild the lookup table.
	for lbl, idx := range b.byLabel {
		if idx >= pos {
			b.byLabel[lbl] = idx + 1
		}
	}
	b.byLabel[label] = pos
	if b.current >= pos {
		b.current++
	}
	return label
}

// Emit appends an instruction to the current block.
func (b *Builder) Emit(op opcode.Opcode, arg uint32, pos token.Pos) {
	blk := b.blocks[b.current]
	blk.insns = append(blk.insns, insn{op: op, arg: arg, pos: pos})
}

// EmitJump appends a jump-family instruction (Jump, JumpTrue, JumpFalse,
// TryEnter) whose operand is the absolute byte offset of targetLabel's
// first instruction, resolved during Linearize.
func (b *Builder) EmitJump(op opcode.Opcode, targetLabel string, pos token.Pos) {
	blk := b.blocks[b.current]
	blk.insns = append(blk.insns, insn{op: op, labelArg: targetLabel, isJump: true, pos: pos})
}

// Linearize concatenates every block, in the order they were appended, into
// one byte stream, resolving every jump target to an absolute byte offset
// and producing a parallel line table (one token.Pos per emitted byte
// offset where an instruction begins).
func (b *Builder) Linearize() ([]byte, []LineEntry, error) {
	// Pass 1: compute the starting byte offset of every block, iterating
	// until the offsets stabilize (jump instructions are fixed-width, so a
	// single pass over sizes suffices; no iteration is actually needed since
	// opcode.EncodedSize does not depend on resolved offsets).
	starts := make([]uint32, len(b.blocks))
	var pc uint32
	for i, blk := range b.blocks {
		starts[i] = pc
		for _, ins := range blk.insns {
			pc += uint32(opcode.EncodedSize(ins.op, ins.arg))
		}
	}

	code := make([]byte, 0, pc)
	var lines []LineEntry
	for i, blk := range b.blocks {
		_ = i
		for _, ins := range blk.insns {
			off := uint32(len(code))
			arg := ins.arg
			if ins.isJump {
				targetIdx, ok := b.byLabel[ins.labelArg]
				if !ok {
					return nil, nil, fmt.Errorf("funcbuilder: jump to undefined block %q", ins.labelArg)
				}
				arg = starts[targetIdx]
			}
			code = opcode.Encode(code, ins.op, arg)
			lines = append(lines, LineEntry{Offset: off, Pos: ins.pos})
		}
	}
	return code, lines, nil
}

// LineEntry maps one byte offset in a linearized code stream to the source
// position of the instruction that starts there.
type LineEntry struct {
	Offset uint32
	Pos    token.Pos
}
