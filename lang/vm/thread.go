package vm

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/egranata/aria-sub001/lang/builtintype"
	"github.com/egranata/aria-sub001/lang/compiler"
	"github.com/egranata/aria-sub001/lang/constpool"
	"github.com/egranata/aria-sub001/lang/opcode"
	"github.com/egranata/aria-sub001/lang/resolver"
)

// Thread is one interpreter: its call-frame chain (threaded through
// Frame.caller rather than an explicit slice, since each call recurses
// into a fresh run()), the running modules it has imported, and the
// process-wide builtins/named-value tables every module shares. Mirrors
// the original's lang/machine Thread, generalized to Aria/Haxby's
// struct/enum/mixin value model.
type Thread struct {
	curFrame *Frame
	callDepth int

	// MaxCallDepth bounds recursive Aria calls; 0 means unbounded.
	MaxCallDepth int
	TraceExec    bool
	TraceStack   bool
	TraceOut     io.Writer

	// Named holds every qualified enum-case token ("Enum::Case") bound by
	// BindCase, looked up by PushRuntimeValue and NewEnumVal. It is shared
	// process-wide rather than per-module: a deliberate simplification,
	// since two unrelated modules declaring same-named enums is rare and
	// not defended against here.
	Named map[string]Value

	builtins map[string]Value

	// sigils holds every name registered by the register_sigil builtin,
	// looked up by the Sigil opcode backing the `expr@name` postfix
	// operator. Process-wide rather than per-module, for the same reason
	// Named is: two unrelated modules registering the same sigil name is
	// rare and not defended against here.
	sigils map[string]Value

	// Importer loads a module's compiled form by its import path. nil
	// means imports always fail; cmd/aria wires a filesystem-backed one.
	Importer func(path string) (*compiler.Module, error)
	modules  map[string]*Module

	Stdout io.Writer
	Stdin  *bufio.Reader
	Stderr io.Writer

	// Args holds the trailing command-line arguments exposed to running
	// code by the cmdline_arguments() builtin.
	Args []string
}

// NewThread returns a ready-to-run Thread with its builtins and the
// predeclared Maybe enum installed.
func NewThread() *Thread {
	th := &Thread{
		Named:        make(map[string]Value),
		sigils:       make(map[string]Value),
		modules:      make(map[string]*Module),
		MaxCallDepth: 4000,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Stdin:        bufio.NewReader(os.Stdin),
	}
	th.builtins = make(map[string]Value)
	registerBuiltins(th)
	registerMaybe(th)
	return th
}

func (th *Thread) traceOut() io.Writer {
	if th.TraceOut != nil {
		return th.TraceOut
	}
	return th.Stderr
}

// callFunction pushes a new Frame for fn, binds args to its parameter
// slots (collecting any surplus into a vararg List), and interprets it to
// completion.
func (th *Thread) callFunction(fn *Function, args []Value) (Value, error) {
	th.callDepth++
	defer func() { th.callDepth-- }()
	if th.MaxCallDepth > 0 && th.callDepth > th.MaxCallDepth {
		return nil, hostErrorf("call stack exceeded maximum depth of %d", th.MaxCallDepth)
	}

	np := fn.Code.NumParams
	if fn.Code.Vararg {
		if len(args) < np {
			return nil, fmt.Errorf("%s: expected at least %d arguments, got %d", fn.Name(), np, len(args))
		}
	} else if len(args) != np {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", fn.Name(), np, len(args))
	}

	fr := newFrame(fn, th.curFrame)
	for i := 0; i < np; i++ {
		fr.storeLocal(i, args[i])
	}
	if fn.Code.Vararg {
		fr.storeLocal(np, NewList(append([]Value(nil), args[np:]...)))
	}

	prev := th.curFrame
	th.curFrame = fr
	v, err := th.run(fr)
	th.curFrame = prev
	return v, err
}

// RunModule runs mod's top-level code (compiled as a zero-arg function) in
// a fresh Module with an empty globals table, returning its implicit
// final Unit result.
func (th *Thread) RunModule(mod *compiler.Module) (Value, error) {
	m := &Module{Compiled: mod, Globals: NewAttrBag(16)}
	entry := &Function{Code: mod.Entry, Module: m}
	return th.callFunction(entry, nil)
}

// run interprets fr's code object from its current pc until Return (or an
// uncaught Exception/HostError).
func (th *Thread) run(fr *Frame) (Value, error) {
	code := fr.code.Code
	pool := fr.fn.Module.Compiled.Pool

	for {
		if int(fr.pc) >= len(code) {
			return nil, hostErrorf("%s: ran off the end of its code", fr.fn.Name())
		}
		op := opcode.Opcode(code[fr.pc])
		fr.pc++
		var arg uint32
		if op >= opcode.ArgMin {
			arg, fr.pc = decodeOperand(code, fr.pc, op)
		}
		if th.TraceExec {
			fmt.Fprintf(th.traceOut(), "%s:%04d  %-16s %d\n", fr.fn.Name(), fr.pc, op, arg)
		}
		if th.TraceStack {
			fmt.Fprintf(th.traceOut(), "  stack: %v\n", fr.stack)
		}

		var stepErr error

		switch op {
		case opcode.NOP:
			// no-op

		case opcode.DUP:
			fr.push(fr.top())
		case opcode.POP:
			fr.pop()
		case opcode.PUSH0:
			fr.push(Integer(0))
		case opcode.PUSH1:
			fr.push(Integer(1))

		case opcode.LT:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator("<", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := compareOp(a, b, func(c int) bool { return c < 0 })
			stepErr = push1(fr, v, err)
		case opcode.LE:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator("<=", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := compareOp(a, b, func(c int) bool { return c <= 0 })
			stepErr = push1(fr, v, err)
		case opcode.GT:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator(">", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := compareOp(a, b, func(c int) bool { return c > 0 })
			stepErr = push1(fr, v, err)
		case opcode.GE:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator(">=", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := compareOp(a, b, func(c int) bool { return c >= 0 })
			stepErr = push1(fr, v, err)
		case opcode.EQUAL:
			b, a := fr.pop(), fr.pop()
			// Equal never errors for Struct/Object/Function values (it falls
			// through to bare identity), so an operator== overload must be
			// checked before calling it, not as an error-triggered fallback.
			if v, ok, err := th.tryBinaryOperator("==", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			eq, err := Equal(a, b)
			stepErr = push1(fr, Bool(eq), err)
		case opcode.NEQ:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator("==", a, b); ok {
				if err == nil {
					v = Bool(!Truthy(v))
				}
				stepErr = push1(fr, v, err)
				break
			}
			eq, err := Equal(a, b)
			stepErr = push1(fr, Bool(!eq), err)

		case opcode.ADD:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator("+", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := numAdd(a, b)
			stepErr = push1(fr, v, err)
		case opcode.SUB:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator("-", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := numSub(a, b)
			stepErr = push1(fr, v, err)
		case opcode.MUL:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator("*", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := numMul(a, b)
			stepErr = push1(fr, v, err)
		case opcode.DIV:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator("/", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := numDiv(a, b)
			stepErr = push1(fr, v, err)
		case opcode.REM:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator("%", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := numRem(a, b)
			stepErr = push1(fr, v, err)
		case opcode.SHL:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator("<<", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := numShl(a, b)
			stepErr = push1(fr, v, err)
		case opcode.SHR:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator(">>", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := numShr(a, b)
			stepErr = push1(fr, v, err)
		case opcode.AMPERSAND:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator("&", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := numAnd(a, b)
			stepErr = push1(fr, v, err)
		case opcode.PIPE:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator("|", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := numOr(a, b)
			stepErr = push1(fr, v, err)
		case opcode.CIRCUMFLEX:
			b, a := fr.pop(), fr.pop()
			if v, ok, err := th.tryBinaryOperator("^", a, b); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := numXor(a, b)
			stepErr = push1(fr, v, err)

		case opcode.NEG:
			a := fr.pop()
			if v, ok, err := th.tryUnaryOperator(a); ok {
				stepErr = push1(fr, v, err)
				break
			}
			v, err := numNeg(a)
			stepErr = push1(fr, v, err)
		case opcode.NOT:
			fr.push(Bool(!Truthy(fr.pop())))

		case opcode.ISA:
			b, a := fr.pop(), fr.pop()
			ok, err := isaOf(a, b)
			stepErr = push1(fr, Bool(ok), err)
		case opcode.AND:
			b, a := fr.pop(), fr.pop()
			fr.push(Bool(Truthy(a) && Truthy(b)))
		case opcode.OR:
			b, a := fr.pop(), fr.pop()
			fr.push(Bool(Truthy(a) || Truthy(b)))

		case opcode.PUSH:
			v, err := poolToValue(pool.Get(arg))
			stepErr = push1(fr, v, err)

		case opcode.PUSHBUILTINTY:
			fr.push(&TypeVal{ID: builtintype.ID(arg)})

		case opcode.PUSHRUNTIMEVALUE:
			if arg == opcode.ThisModuleSentinel {
				fr.push(fr.fn.Module)
				break
			}
			name := pool.Get(arg).Str
			v, ok := th.Named[name]
			if !ok {
				stepErr = fmt.Errorf("undefined runtime value %q", name)
				break
			}
			fr.push(v)

		case opcode.LOADLOCAL:
			fr.push(fr.loadLocal(int(arg)))
		case opcode.STORELOCAL:
			fr.storeLocal(int(arg), fr.pop())
		case opcode.LOADUPLEVEL:
			fr.push(fr.free[arg].v)
		case opcode.STOREUPLEVEL:
			fr.free[arg].v = fr.pop()

		case opcode.LOADGLOBAL:
			name := pool.Get(arg).Str
			v, ok := fr.fn.Module.Globals.Get(name)
			if !ok {
				v, ok = th.builtins[name]
			}
			if !ok {
				stepErr = fmt.Errorf("undefined name %q", name)
				break
			}
			fr.push(v)
		case opcode.STOREGLOBAL:
			name := pool.Get(arg).Str
			fr.fn.Module.Globals.Set(name, fr.pop())

		case opcode.DEFINETYPED:
			ty := fr.pop()
			val := fr.pop()
			ok, err := isaOf(val, ty)
			if err != nil {
				stepErr = err
				break
			}
			if !ok {
				stepErr = fmt.Errorf("value of type %s does not satisfy declared type %s", val.Type(), ty.String())
				break
			}
			name := pool.Get(arg).Str
			fr.fn.Module.Globals.Set(name, val)
		case opcode.DEFINEUNTYPED:
			name := pool.Get(arg).Str
			fr.fn.Module.Globals.Set(name, fr.pop())

		case opcode.READATTRIBUTE:
			recv := fr.pop()
			name := pool.Get(arg).Str
			ha, ok := recv.(HasAttrs)
			if !ok {
				stepErr = fmt.Errorf("value of type %s has no attributes", recv.Type())
				break
			}
			v, ok := ha.ReadAttr(name)
			if !ok {
				stepErr = fmt.Errorf("%s has no attribute %q", recv.Type(), name)
				break
			}
			fr.push(v)
		case opcode.WRITEATTRIBUTE:
			val := fr.pop()
			recv := fr.pop()
			name := pool.Get(arg).Str
			ha, ok := recv.(HasAttrs)
			if !ok || !ha.WriteAttr(name, val) {
				stepErr = fmt.Errorf("cannot write attribute %q on value of type %s", name, recv.Type())
			}

		case opcode.JUMP:
			fr.pc = arg
		case opcode.JUMPTRUE:
			if Truthy(fr.pop()) {
				fr.pc = arg
			}
		case opcode.JUMPFALSE:
			if !Truthy(fr.pop()) {
				fr.pc = arg
			}

		case opcode.CALL:
			args := fr.popN(int(arg))
			callee := fr.pop()
			c, ok := callee.(Callable)
			if !ok {
				stepErr = fmt.Errorf("value of type %s is not callable", callee.Type())
				break
			}
			v, err := c.Call(th, args)
			if err != nil {
				if _, ok := err.(*HostError); ok {
					return nil, err
				}
				exc := th.toException(err, fr)
				if !fr.raise(th, exc) {
					return nil, exc
				}
				continue
			}
			fr.push(v)

		case opcode.RETURN:
			v := fr.pop()
			fr.drainGuards(th)
			return v, nil

		case opcode.THROW:
			exc := newException(fr.pop(), fr)
			if !fr.raise(th, exc) {
				return nil, exc
			}
			continue

		case opcode.ASSERT:
			if !Truthy(fr.pop()) {
				msg := pool.Get(arg).Str
				exc := newException(String(msg), fr)
				if !fr.raise(th, exc) {
					return nil, exc
				}
			}
			continue

		case opcode.TRYENTER:
			fr.blocks = append(fr.blocks, ctrlBlock{kind: blockTry, target: arg, stackHeight: len(fr.stack)})
		case opcode.TRYEXIT:
			fr.popBlock()
		case opcode.GUARDENTER:
			cleanup := fr.pop()
			fr.blocks = append(fr.blocks, ctrlBlock{kind: blockGuard, cleanup: cleanup, stackHeight: len(fr.stack)})
		case opcode.GUARDEXIT:
			blk := fr.popBlock()
			runGuardCleanup(th, blk.cleanup)

		case opcode.BUILDLIST:
			fr.push(NewList(fr.popN(int(arg))))

		case opcode.BUILDFUNCTION:
			attrs, codeIdx := unpackAttrName(arg)
			co, ok := pool.Get(codeIdx).Code.(*compiler.CodeObject)
			if !ok {
				return nil, hostErrorf("buildfunction: constant at %d is not a code object", codeIdx)
			}
			fr.push(&Function{
				Code:     co,
				Module:   fr.fn.Module,
				attrs:    attrs,
				uplevels: wireUplevels(fr, co),
			})

		case opcode.BUILDSTRUCT:
			fr.push(NewStruct(pool.Get(arg).Str))
		case opcode.BUILDMIXIN:
			fr.push(NewMixin())

		case opcode.BINDCASE:
			attrs, nameIdx := unpackAttrName(arg)
			name := pool.Get(nameIdx).Str
			s, ok := fr.pop().(*Struct)
			if !ok {
				return nil, hostErrorf("bindcase: receiver is not a struct/enum")
			}
			idx := s.addCase(name, attrs&compiler.AttrHasPayload != 0)
			th.Named[s.name+"::"+name] = &EnumCaseToken{Enum: s, CaseIdx: idx}

		case opcode.NEWENUMVAL:
			name := pool.Get(arg).Str
			tok, ok := th.Named[name].(*EnumCaseToken)
			if !ok {
				stepErr = fmt.Errorf("undefined enum case %q", name)
				break
			}
			var payload Value
			if tok.HasPayload() {
				payload = fr.pop()
			}
			fr.push(NewEnumValue(tok.Enum, tok.CaseIdx, payload))

		case opcode.IMPORT:
			path := pool.Get(arg).Str
			m, err := th.resolveImport(path)
			stepErr = err
			if err == nil {
				fr.push(m)
			}
		case opcode.LIFTMODULE:
			v := fr.pop()
			m, ok := v.(*Module)
			if !ok {
				return nil, hostErrorf("liftmodule: value is not a module")
			}
			for _, name := range m.Globals.Names() {
				val, _ := m.Globals.Get(name)
				fr.fn.Module.Globals.Set(name, val)
			}

		case opcode.SIGIL:
			name := pool.Get(arg).Str
			operand := fr.pop()
			fn, ok := th.sigils[name]
			if !ok {
				stepErr = fmt.Errorf("undefined sigil @%s", name)
				break
			}
			c, ok := fn.(Callable)
			if !ok {
				stepErr = fmt.Errorf("sigil @%s is not callable", name)
				break
			}
			v, err := c.Call(th, []Value{operand})
			stepErr = push1(fr, v, err)

		default:
			return nil, hostErrorf("unimplemented opcode %s", op)
		}

		if stepErr != nil {
			if he, ok := stepErr.(*HostError); ok {
				return nil, he
			}
			exc := th.toException(stepErr, fr)
			if !fr.raise(th, exc) {
				return nil, exc
			}
		}
	}
}

// push1 is a small helper for the common "compute a value, push it if ok"
// shape shared by every binary/unary operator handler.
func push1(fr *Frame, v Value, err error) error {
	if err != nil {
		return err
	}
	fr.push(v)
	return nil
}

// poolToValue converts a constant-pool entry (Integer/Float/String) into
// its runtime Value. Push never addresses a pooled CodeObject: functions
// are materialized by BuildFunction instead.
func poolToValue(v constpool.Value) (Value, error) {
	switch v.Kind {
	case constpool.KindInteger:
		return Integer(v.Int), nil
	case constpool.KindFloat:
		return Float(v.Flt), nil
	case constpool.KindString:
		return String(v.Str), nil
	}
	return nil, hostErrorf("push: constant pool entry is not a scalar")
}

// toException converts a plain Go error from a builtin or operator into a
// catchable Exception, or passes an already-wrapped Exception through
// unchanged.
func (th *Thread) toException(err error, fr *Frame) *Exception {
	if exc, ok := err.(*Exception); ok {
		return exc
	}
	return newException(String(err.Error()), fr)
}

// resolveImport loads (or returns the cached) module for path.
func (th *Thread) resolveImport(path string) (*Module, error) {
	if m, ok := th.modules[path]; ok {
		return m, nil
	}
	if th.Importer == nil {
		return nil, fmt.Errorf("import %q: no module loader configured", path)
	}
	compiled, err := th.Importer(path)
	if err != nil {
		return nil, fmt.Errorf("import %q: %w", path, err)
	}
	m := &Module{Compiled: compiled, Globals: NewAttrBag(16)}
	th.modules[path] = m
	entry := &Function{Code: compiled.Entry, Module: m}
	if _, err := th.callFunction(entry, nil); err != nil {
		delete(th.modules, path)
		return nil, err
	}
	return m, nil
}

// wireUplevels builds a new Function's closure cell list from the
// enclosing frame, following the chain resolver.captureAcrossFrames
// recorded on co.Uplevels: a Cell uplevel reaches into the current
// frame's own (already boxed) locals, a Free uplevel forwards a cell the
// current frame itself received as one of its own uplevels.
func wireUplevels(fr *Frame, co *compiler.CodeObject) []*cell {
	if len(co.Uplevels) == 0 {
		return nil
	}
	out := make([]*cell, len(co.Uplevels))
	for i, u := range co.Uplevels {
		switch u.OuterKind {
		case resolver.Cell:
			out[i], _ = fr.locals[u.OuterSlot].(*cell)
		case resolver.Free:
			out[i] = fr.free[u.OuterSlot]
		}
	}
	return out
}

func unpackAttrName(arg uint32) (compiler.FunctionAttr, uint32) {
	return compiler.FunctionAttr(arg >> 16), arg & 0xFFFF
}

// decodeVarint reads a 7-bit little-endian varint starting at pc,
// matching opcode.addUint32's encoding.
func decodeVarint(code []byte, pc uint32) (uint32, uint32) {
	var result uint32
	var shift uint
	for {
		b := code[pc]
		pc++
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, pc
}

// decodeOperand decodes op's immediate argument at pc, returning the new
// pc. Jump-family opcodes always occupy a fixed 4 bytes regardless of the
// varint's natural length (opcode.Encode pads them with trailing Nop
// bytes), so the returned pc advances by exactly 4 rather than by however
// many bytes the varint itself consumed.
func decodeOperand(code []byte, pc uint32, op opcode.Opcode) (uint32, uint32) {
	if opcode.IsJump(op) {
		v, _ := decodeVarint(code, pc)
		return v, pc + 4
	}
	return decodeVarint(code, pc)
}
