package compiler

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/egranata/aria-sub001/lang/constpool"
	"github.com/egranata/aria-sub001/lang/funcbuilder"
	"github.com/egranata/aria-sub001/lang/opcode"
	"github.com/egranata/aria-sub001/lang/resolver"
	"github.com/egranata/aria-sub001/lang/token"
)

// This file implements a human-readable/writable form of a compiled Module,
// used by the test suite to exercise lang/vm without going through the
// (out-of-scope) parser/scanner front end. A disassembler is also
// implemented, mostly as Asm's inverse for round-trip testing.
//
// The assembly format looks like this (indentation and spacing is
// arbitrary, but section order matters):
//
//	module:
//		entry: NAME                        # required, name of the top-level function
//
//	constants:                           # optional, list of pool entries, in index order
//		int    1234
//		float  1.34
//		string "abc"
//		code   add_one                     # refers to a function defined below
//
//	function: NAME <maxstack> <params> +vararg
//		pos: LINE:COL                      # optional, defaults to 0:0
//		locals: N                          # optional, total frame size
//		cells:                             # optional, local slot indices boxed in a cell
//			0
//		uplevels:                          # optional, in capture order
//			cell 0                            # kind (cell|free) and outer slot
//		code:
//			line LINE:COL                     # optional, associates following insns with a position
//			push0
//			loadlocal 0
//			add
//			return

var sections = map[string]bool{
	"module:":    true,
	"constants:": true,
	"function:":  true,
	"pos:":       true,
	"locals:":    true,
	"cells:":     true,
	"uplevels:":  true,
	"code:":      true,
}

// Asm loads a compiled Module from its assembler textual format.
func Asm(b []byte) (*Module, error) {
	a := &asm{s: bufio.NewScanner(bytes.NewReader(b)), pool: constpool.New(), code: make(map[string]*CodeObject)}

	fields := a.next()
	entryName := a.module(fields)

	fields = a.next()
	fields = a.constants(fields)

	for a.err == nil && len(fields) > 0 && strings.EqualFold(fields[0], "function:") {
		fields = a.function(fields)
	}

	if a.err == nil && len(fields) > 0 {
		a.err = fmt.Errorf("unexpected section: %s", fields[0])
	}
	if a.err == nil {
		a.materializeConstants()
	}
	if a.err == nil {
		entry, ok := a.code[entryName]
		if !ok {
			a.err = fmt.Errorf("asm: entry function %q not defined", entryName)
		} else {
			return &Module{Pool: a.pool, Entry: entry}, nil
		}
	}
	return nil, a.err
}

type asm struct {
	s       *bufio.Scanner
	rawLine string
	pool    *constpool.Pool
	code    map[string]*CodeObject // function name -> its CodeObject, filled as functions are parsed
	consts  []constDecl            // constants section entries, in declared order
	err     error
}

// constDecl is one parsed constants-section line, recorded rather than
// inserted immediately: a "code" entry names a function whose body is only
// parsed later in the file, so every entry is inserted into the pool in a
// single pass (materializeConstants) once all function blocks are known —
// that keeps the pool's assigned indices in the declared order.
type constDecl struct {
	kind     string // "int", "float", "string" or "code"
	ival     int64
	fval     float64
	sval     string
	codeName string
}

// materializeConstants replays every recorded constants-section entry into
// the pool, in declaration order, now that every named function body has
// been parsed.
func (a *asm) materializeConstants() {
	for _, d := range a.consts {
		var err error
		switch d.kind {
		case "int":
			_, err = a.pool.InsertInt(d.ival)
		case "float":
			_, err = a.pool.InsertFloat(d.fval)
		case "string":
			_, err = a.pool.InsertString(d.sval)
		case "code":
			co, ok := a.code[d.codeName]
			if !ok {
				a.err = fmt.Errorf("asm: constant refers to undefined function %q", d.codeName)
				return
			}
			_, err = a.pool.InsertCodeObject(co)
		}
		if err != nil {
			a.err = err
			return
		}
	}
}

func (a *asm) module(fields []string) string {
	if a.err != nil {
		return ""
	}
	if len(fields) == 0 || !strings.EqualFold(fields[0], "module:") {
		a.err = errors.New("expected module section")
		return ""
	}
	fields = a.next()
	if len(fields) < 2 || !strings.EqualFold(fields[0], "entry:") {
		a.err = errors.New("expected entry: NAME in module section")
		return ""
	}
	return fields[1]
}

func (a *asm) constants(fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "constants:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		if len(fields) < 2 {
			a.err = fmt.Errorf("invalid constant: expected kind and value, got %d fields", len(fields))
			return fields
		}
		switch fields[0] {
		case "int":
			v := a.int(fields[1])
			if a.err != nil {
				return fields
			}
			if v == 0 || v == 1 {
				a.err = fmt.Errorf("invalid constant: integer %d must not be pooled (use push0/push1)", v)
				return fields
			}
			a.consts = append(a.consts, constDecl{kind: "int", ival: v})
		case "float":
			f, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				a.err = fmt.Errorf("invalid float: %s: %w", fields[1], err)
				return fields
			}
			a.consts = append(a.consts, constDecl{kind: "float", fval: f})
		case "string":
			idx := strings.IndexByte(a.rawLine, '"')
			if idx < 0 {
				a.err = fmt.Errorf("invalid string constant: %s", a.rawLine)
				return fields
			}
			qs, err := strconv.QuotedPrefix(a.rawLine[idx:])
			if err != nil {
				a.err = fmt.Errorf("invalid string constant: %s: %w", a.rawLine, err)
				return fields
			}
			s, err := strconv.Unquote(qs)
			if err != nil {
				a.err = fmt.Errorf("invalid string constant: %s: %w", qs, err)
				return fields
			}
			a.consts = append(a.consts, constDecl{kind: "string", sval: s})
		case "code":
			a.consts = append(a.consts, constDecl{kind: "code", codeName: fields[1]})
		default:
			a.err = fmt.Errorf("invalid constant kind: %s", fields[0])
			return fields
		}
	}
	return fields
}

func (a *asm) function(fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "function:") {
		return fields
	}
	if len(fields) < 4 {
		a.err = fmt.Errorf("invalid function: want 'function: NAME <maxstack> <params> [+vararg]', got %d fields", len(fields))
		return a.next()
	}
	name := fields[1]
	maxStack := int(a.int(fields[2]))
	numParams := int(a.int(fields[3]))
	vararg := a.option(fields[4:], "vararg")
	if a.err != nil {
		return fields
	}

	co := &CodeObject{Name: name, NumParams: numParams, Vararg: vararg, MaxStack: maxStack}

	fields = a.next()
	fields = a.pos(fields, co)
	fields = a.localsSec(fields, co)
	fields = a.cellsSec(fields, co)
	fields = a.uplevelsSec(fields, co)
	fields = a.codeSec(fields, co)

	if a.err == nil {
		a.code[name] = co
	}
	return fields
}

func (a *asm) pos(fields []string, co *CodeObject) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "pos:") {
		return fields
	}
	if len(fields) != 2 {
		a.err = fmt.Errorf("invalid pos: expected LINE:COL, got %d fields", len(fields))
		return fields
	}
	line, col, err := parseLineCol(fields[1])
	if err != nil {
		a.err = err
		return fields
	}
	co.Pos = token.MakePos(line, col)
	return a.next()
}

func (a *asm) localsSec(fields []string, co *CodeObject) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "locals:") {
		return fields
	}
	if len(fields) != 2 {
		a.err = fmt.Errorf("invalid locals: expected a count, got %d fields", len(fields))
		return fields
	}
	co.NumLocals = int(a.int(fields[1]))
	return a.next()
}

func (a *asm) cellsSec(fields []string, co *CodeObject) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "cells:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		co.Cells = append(co.Cells, int(a.uint(fields[0])))
	}
	return fields
}

func (a *asm) uplevelsSec(fields []string, co *CodeObject) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "uplevels:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		if len(fields) != 2 {
			a.err = fmt.Errorf("invalid uplevel: expected 'cell|free SLOT', got %d fields", len(fields))
			return fields
		}
		var kind resolver.BindingKind
		switch fields[0] {
		case "cell":
			kind = resolver.Cell
		case "free":
			kind = resolver.Free
		default:
			a.err = fmt.Errorf("invalid uplevel kind: %s", fields[0])
			return fields
		}
		co.Uplevels = append(co.Uplevels, resolver.Uplevel{OuterKind: kind, OuterSlot: int(a.uint(fields[1]))})
	}
	co.NumFree = len(co.Uplevels)
	return fields
}

func (a *asm) codeSec(fields []string, co *CodeObject) []string {
	if a.err != nil {
		return fields
	}
	if len(fields) == 0 || !strings.EqualFold(fields[0], "code:") {
		a.err = errors.New("expected code section")
		return fields
	}

	type parsedInsn struct {
		op     opcode.Opcode
		arg    uint32
		isJump bool
		pos    token.Pos
	}
	var insns []parsedInsn
	var curPos token.Pos
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]] && !strings.HasSuffix(fields[0], ":"); fields = a.next() {
		if fields[0] == "line" {
			if len(fields) != 2 {
				a.err = fmt.Errorf("invalid line directive: expected LINE:COL, got %d fields", len(fields))
				return fields
			}
			line, col, err := parseLineCol(fields[1])
			if err != nil {
				a.err = err
				return fields
			}
			curPos = token.MakePos(line, col)
			continue
		}
		op, ok := opcode.Lookup(strings.ToLower(fields[0]))
		if !ok {
			a.err = fmt.Errorf("invalid opcode: %s", fields[0])
			return fields
		}
		var arg uint32
		if op >= opcode.ArgMin {
			if len(fields) != 2 {
				a.err = fmt.Errorf("expected an argument for opcode %s, got %d fields", fields[0], len(fields))
				return fields
			}
			arg = uint32(a.uint(fields[1]))
		} else if len(fields) != 1 {
			a.err = fmt.Errorf("expected no argument for opcode %s, got %d fields", fields[0], len(fields))
			return fields
		}
		insns = append(insns, parsedInsn{op: op, arg: arg, isJump: opcode.IsJump(op), pos: curPos})
	}
	if a.err != nil {
		return fields
	}
	if len(insns) == 0 {
		co.Code = nil
		return fields
	}

	// Every instruction gets its own block, in order, so a jump's operand
	// (the target instruction's index in this list) can be resolved to a
	// block label before that instruction has been emitted (a forward jump).
	b := funcbuilder.New()
	labels := make([]string, len(insns))
	labels[0] = b.GetCurrentBlock()
	for i := 1; i < len(insns); i++ {
		labels[i] = b.AppendBlockAtEnd("")
	}
	for i, in := range insns {
		if int(in.arg) >= len(insns) && in.isJump {
			a.err = fmt.Errorf("invalid jump target %d in function %s: only %d instructions", in.arg, co.Name, len(insns))
			return fields
		}
		b.SetCurrentBlock(labels[i])
		if in.isJump {
			b.EmitJump(in.op, labels[in.arg], in.pos)
		} else {
			b.Emit(in.op, in.arg, in.pos)
		}
	}
	code, lines, err := b.Linearize()
	if err != nil {
		a.err = err
		return fields
	}
	co.Code = code
	co.LineTable = lines
	return fields
}

func parseLineCol(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid position %q: want LINE:COL", s)
	}
	line, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid position %q: %w", s, err)
	}
	col, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid position %q: %w", s, err)
	}
	return line, col, nil
}

func (a *asm) option(fields []string, opt string) bool {
	for _, fld := range fields {
		if fld == "+"+opt {
			return true
		}
	}
	return false
}

func (a *asm) int(s string) int64 {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		a.err = fmt.Errorf("invalid integer: %s: %w", s, err)
	}
	return i
}

func (a *asm) uint(s string) uint64 {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		a.err = fmt.Errorf("invalid unsigned integer: %s: %w", s, err)
	}
	return u
}

// next returns the fields of the next non-empty, non-comment-only line, so
// fields[0] identifies a section when one starts here.
func (a *asm) next() []string {
	a.rawLine = ""
	if a.err != nil {
		return nil
	}
	for a.s.Scan() {
		line := a.s.Text()
		fields := strings.Fields(line)
		if len(fields) != 0 && !strings.HasPrefix(fields[0], "#") {
			for i, fld := range fields {
				if strings.HasPrefix(fld, "#") {
					fields = fields[:i]
					break
				}
			}
			a.rawLine = line
			return fields
		}
	}
	a.err = a.s.Err()
	return nil
}

// Dasm writes a compiled Module to its assembler textual format.
func Dasm(m *Module) ([]byte, error) {
	d := &dasm{m: m, buf: new(bytes.Buffer), names: make(map[*CodeObject]string)}
	d.assignNames()
	d.writeModule()
	return d.buf.Bytes(), d.err
}

type dasm struct {
	m     *Module
	buf   *bytes.Buffer
	err   error
	names map[*CodeObject]string
}

// assignNames gives every code object constant a stable dasm name: the
// entry is "main", every other code object is "fnN" by pool index.
func (d *dasm) assignNames() {
	d.names[d.m.Entry] = "main"
	for i := 0; i < d.m.Pool.Len(); i++ {
		v := d.m.Pool.Get(uint32(i))
		if v.Kind == constpool.KindCodeObject {
			if co, ok := v.Code.(*CodeObject); ok {
				if _, named := d.names[co]; !named {
					d.names[co] = fmt.Sprintf("fn%d", i)
				}
			}
		}
	}
}

func (d *dasm) writeModule() {
	d.writef("module:\n\tentry: %s\n\n", d.names[d.m.Entry])

	if d.m.Pool.Len() > 0 {
		d.write("constants:\n")
		for i := 0; i < d.m.Pool.Len(); i++ {
			v := d.m.Pool.Get(uint32(i))
			switch v.Kind {
			case constpool.KindInteger:
				d.writef("\tint\t%d\t# %03d\n", v.Int, i)
			case constpool.KindFloat:
				d.writef("\tfloat\t%g\t# %03d\n", v.Flt, i)
			case constpool.KindString:
				d.writef("\tstring\t%q\t# %03d\n", v.Str, i)
			case constpool.KindCodeObject:
				co, ok := v.Code.(*CodeObject)
				if !ok {
					d.err = fmt.Errorf("dasm: constant %d is not a *CodeObject", i)
					return
				}
				d.writef("\tcode\t%s\t# %03d\n", d.names[co], i)
			}
		}
		d.write("\n")
	}

	d.function(d.m.Entry)
	for i := 0; i < d.m.Pool.Len(); i++ {
		v := d.m.Pool.Get(uint32(i))
		if v.Kind != constpool.KindCodeObject {
			continue
		}
		co, ok := v.Code.(*CodeObject)
		if !ok || co == d.m.Entry {
			continue
		}
		d.write("\n")
		d.function(co)
	}
}

func (d *dasm) function(co *CodeObject) {
	if d.err != nil {
		return
	}
	d.writef("function: %s %d %d", d.names[co], co.MaxStack, co.NumParams)
	if co.Vararg {
		d.write(" +vararg")
	}
	d.write("\n")

	line, col := co.Pos.LineCol()
	d.writef("\tpos: %d:%d\n", line, col)
	d.writef("\tlocals: %d\n", co.NumLocals)

	if len(co.Cells) > 0 {
		d.write("\tcells:\n")
		for _, c := range co.Cells {
			d.writef("\t\t%d\n", c)
		}
	}
	if len(co.Uplevels) > 0 {
		d.write("\tuplevels:\n")
		for _, u := range co.Uplevels {
			kind := "free"
			if u.OuterKind == resolver.Cell {
				kind = "cell"
			}
			d.writef("\t\t%s %d\n", kind, u.OuterSlot)
		}
	}

	d.write("\tcode:\n")
	var lastPos token.Pos
	var pc uint32
	for pc < uint32(len(co.Code)) {
		op := opcode.Opcode(co.Code[pc])
		pos := co.PositionFor(pc)
		if pos != lastPos {
			l, c := pos.LineCol()
			d.writef("\t\tline %d:%d\n", l, c)
			lastPos = pos
		}
		if op >= opcode.ArgMin {
			arg, n := decodeArg(co.Code, pc+1, opcode.IsJump(op))
			if opcode.IsJump(op) {
				target, ok := pcToIndex(co.Code, arg)
				if !ok {
					d.err = fmt.Errorf("dasm: invalid jump target %d in function %s", arg, d.names[co])
					return
				}
				d.writef("\t\t%s %d\n", op, target)
			} else {
				d.writef("\t\t%s %d\n", op, arg)
			}
			pc += 1 + n
		} else {
			d.writef("\t\t%s\n", op)
			pc++
		}
	}
}

// pcToIndex reports the instruction index (0-based count of instructions
// preceding pc) of byte offset pc within code, for human-readable jump
// targets; Asm's funcbuilder label mechanism re-expands it back to a byte
// offset on load.
func pcToIndex(code []byte, pc uint32) (int, bool) {
	var i int
	var off uint32
	for off < uint32(len(code)) {
		if off == pc {
			return i, true
		}
		op := opcode.Opcode(code[off])
		if op >= opcode.ArgMin {
			_, n := decodeArg(code, off+1, opcode.IsJump(op))
			off += 1 + n
		} else {
			off++
		}
		i++
	}
	return 0, pc == off
}

// decodeArg reads op's argument starting at byte offset pos: jump operands
// are always a fixed 4-byte little-endian varint (opcode.addUint32's
// padding), everything else is a variable-length 7-bit varint.
func decodeArg(code []byte, pos uint32, isJump bool) (uint32, uint32) {
	var result uint32
	var shift uint
	var n uint32
	for {
		b := code[pos+n]
		n++
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	if isJump && n < 4 {
		n = 4
	}
	return result, n
}

func (d *dasm) writef(s string, args ...any) {
	d.write(fmt.Sprintf(s, args...))
}

func (d *dasm) write(s string) {
	if d.err != nil {
		return
	}
	_, d.err = d.buf.WriteString(s)
}
