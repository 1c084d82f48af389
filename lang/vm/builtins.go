package vm

import (
	"fmt"
	"hash/fnv"
	"os"
	"os/exec"
	"reflect"
	"time"

	"github.com/egranata/aria-sub001/lang/builtintype"
)

// registerBuiltins installs the global built-in functions required by
//: allocation, printing, reflection over the attribute model,
// identity, and a small host-interaction surface (environment, process
// exit, time, subprocesses).
func registerBuiltins(th *Thread) {
	reg := func(name string, fn func(th *Thread, args []Value) (Value, error)) {
		th.builtins[name] = newBuiltin(name, fn)
	}

	reg("alloc", builtinAlloc)
	reg("println", builtinPrintln)
	reg("print", builtinPrint)
	reg("readln", builtinReadln)
	reg("prettyprint", builtinPrettyprint)
	reg("typeof", builtinTypeof)
	reg("readattr", builtinReadattr)
	reg("writeattr", builtinWriteattr)
	reg("hasattr", builtinHasattr)
	reg("listattrs", builtinListattrs)
	reg("register_sigil", builtinRegisterSigil)
	reg("identity", builtinIdentity)
	reg("cmdline_arguments", builtinCmdlineArguments)
	reg("getenv", builtinGetenv)
	reg("setenv", builtinSetenv)
	reg("exit", builtinExit)
	reg("now", builtinNow)
	reg("sleep_ms", builtinSleepMs)
	reg("system", builtinSystem)
}

func wantArgc(name string, args []Value, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: expected %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

// builtinAlloc implements `alloc(Type)`: allocates a fresh, empty instance
// of the Struct, Enum template, or Mixin named by its Type argument.
func builtinAlloc(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("alloc", args, 1); err != nil {
		return nil, err
	}
	switch t := args[0].(type) {
	case *Struct:
		return NewObject(t), nil
	case *Mixin:
		return NewMixin(), nil
	}
	return nil, fmt.Errorf("alloc: argument must be a Struct/Mixin type, got %s", args[0].Type())
}

func builtinPrintln(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("println", args, 1); err != nil {
		return nil, err
	}
	fmt.Fprintln(th.Stdout, args[0].String())
	return Unit{}, nil
}

func builtinPrint(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("print", args, 1); err != nil {
		return nil, err
	}
	fmt.Fprint(th.Stdout, args[0].String())
	return Unit{}, nil
}

func builtinReadln(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("readln", args, 1); err != nil {
		return nil, err
	}
	fmt.Fprint(th.Stdout, args[0].String())
	line, err := th.Stdin.ReadString('\n')
	if err != nil && line == "" {
		return NewEnumValue(maybeEnum, maybeNoneCase, nil), nil
	}
	line = trimNewline(line)
	return NewEnumValue(maybeEnum, maybeSomeCase, String(line)), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func builtinPrettyprint(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("prettyprint", args, 1); err != nil {
		return nil, err
	}
	fmt.Fprintln(th.Stdout, prettyprint(args[0], 0))
	return Unit{}, nil
}

func prettyprint(v Value, indent int) string {
	pad := func(n int) string {
		b := make([]byte, n*2)
		for i := range b {
			b[i] = ' '
		}
		return string(b)
	}
	switch x := v.(type) {
	case *List:
		out := "[\n"
		for _, e := range x.elems {
			out += pad(indent+1) + prettyprint(e, indent+1) + ",\n"
		}
		return out + pad(indent) + "]"
	case *Object:
		out := fmt.Sprintf("%s {\n", x.structDef.name)
		for _, name := range x.attrs.Names() {
			v, _ := x.attrs.Get(name)
			out += fmt.Sprintf("%s%s: %s,\n", pad(indent+1), name, prettyprint(v, indent+1))
		}
		return out + pad(indent) + "}"
	default:
		return v.String()
	}
}

func builtinTypeof(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("typeof", args, 1); err != nil {
		return nil, err
	}
	switch args[0].(type) {
	case Integer:
		return &TypeVal{ID: builtinTypeOf("Int")}, nil
	case Float:
		return &TypeVal{ID: builtinTypeOf("Float")}, nil
	case Bool:
		return &TypeVal{ID: builtinTypeOf("Bool")}, nil
	case String:
		return &TypeVal{ID: builtinTypeOf("String")}, nil
	case *List:
		return &TypeVal{ID: builtinTypeOf("List")}, nil
	case Unit:
		return &TypeVal{ID: builtinTypeOf("Unit")}, nil
	case *Struct:
		return &TypeVal{ID: builtinTypeOf("Type")}, nil
	case *Object:
		return args[0].(*Object).structDef, nil
	case *EnumValue:
		return args[0].(*EnumValue).enum, nil
	}
	return &TypeVal{ID: builtinTypeOf("Any")}, nil
}

func builtinReadattr(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("readattr", args, 2); err != nil {
		return nil, err
	}
	name, ok := args[1].(String)
	if !ok {
		return nil, fmt.Errorf("readattr: second argument must be a String")
	}
	ha, ok := args[0].(HasAttrs)
	if !ok {
		return nil, fmt.Errorf("readattr: value of type %s has no attributes", args[0].Type())
	}
	v, ok := ha.ReadAttr(string(name))
	if !ok {
		return nil, fmt.Errorf("readattr: %s has no attribute %q", args[0].Type(), name)
	}
	return v, nil
}

func builtinWriteattr(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("writeattr", args, 3); err != nil {
		return nil, err
	}
	name, ok := args[1].(String)
	if !ok {
		return nil, fmt.Errorf("writeattr: second argument must be a String")
	}
	ha, ok := args[0].(HasAttrs)
	if !ok || !ha.WriteAttr(string(name), args[2]) {
		return nil, fmt.Errorf("writeattr: cannot write attribute %q on %s", name, args[0].Type())
	}
	return Unit{}, nil
}

func builtinHasattr(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("hasattr", args, 2); err != nil {
		return nil, err
	}
	name, ok := args[1].(String)
	if !ok {
		return nil, fmt.Errorf("hasattr: second argument must be a String")
	}
	ha, ok := args[0].(HasAttrs)
	if !ok {
		return Bool(false), nil
	}
	_, ok = ha.ReadAttr(string(name))
	return Bool(ok), nil
}

// builtinRegisterSigil binds name in the thread-wide sigil registry (backing
// the `expr@name` postfix dispatch the SIGIL opcode looks up), so that `@name`
// can be used as a postfix operator anywhere after registration.
func builtinRegisterSigil(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("register_sigil", args, 2); err != nil {
		return nil, err
	}
	name, ok := args[0].(String)
	if !ok {
		return nil, fmt.Errorf("register_sigil: first argument must be a String")
	}
	if _, ok := args[1].(Callable); !ok {
		return nil, fmt.Errorf("register_sigil: second argument must be callable")
	}
	th.sigils[string(name)] = args[1]
	return Unit{}, nil
}

func builtinListattrs(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("listattrs", args, 1); err != nil {
		return nil, err
	}
	var names []string
	switch x := args[0].(type) {
	case *Struct:
		names = x.attrs.Names()
	case *Object:
		names = x.attrs.Names()
	case *Mixin:
		names = x.attrs.Names()
	default:
		return nil, fmt.Errorf("listattrs: value of type %s has no attribute bag", args[0].Type())
	}
	out := make([]Value, len(names))
	for i, n := range names {
		out[i] = String(n)
	}
	return NewList(out), nil
}

func builtinIdentity(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("identity", args, 1); err != nil {
		return nil, err
	}
	return Integer(identityOf(args[0])), nil
}

// identityOf returns a stable integer identity for v: the heap address for
// every pointer-backed (shared-storage) value kind, satisfying
// testable property 5 ("identity(a) == identity(b) iff a and b share
// storage"). Value types have no storage to share, so their identity is
// derived from the value itself (implementation-defined, per the same
// property's "for primitives ... not tested" note).
func identityOf(v Value) int64 {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		return int64(rv.Pointer())
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%T:%v", v, v)
	return int64(h.Sum64())
}

func builtinCmdlineArguments(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("cmdline_arguments", args, 0); err != nil {
		return nil, err
	}
	out := make([]Value, len(th.Args))
	for i, a := range th.Args {
		out[i] = String(a)
	}
	return NewList(out), nil
}

func builtinGetenv(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("getenv", args, 1); err != nil {
		return nil, err
	}
	name, ok := args[0].(String)
	if !ok {
		return nil, fmt.Errorf("getenv: argument must be a String")
	}
	if v, ok := os.LookupEnv(string(name)); ok {
		return NewEnumValue(maybeEnum, maybeSomeCase, String(v)), nil
	}
	return NewEnumValue(maybeEnum, maybeNoneCase, nil), nil
}

func builtinSetenv(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("setenv", args, 2); err != nil {
		return nil, err
	}
	name, ok := args[0].(String)
	if !ok {
		return nil, fmt.Errorf("setenv: first argument must be a String")
	}
	val, ok := args[1].(String)
	if !ok {
		return nil, fmt.Errorf("setenv: second argument must be a String")
	}
	if err := os.Setenv(string(name), string(val)); err != nil {
		return nil, err
	}
	return Unit{}, nil
}

func builtinExit(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("exit", args, 1); err != nil {
		return nil, err
	}
	code, ok := args[0].(Integer)
	if !ok {
		return nil, fmt.Errorf("exit: argument must be an Int")
	}
	os.Exit(int(code))
	return Unit{}, nil
}

func builtinNow(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("now", args, 0); err != nil {
		return nil, err
	}
	return Integer(time.Now().UnixMilli()), nil
}

func builtinSleepMs(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("sleep_ms", args, 1); err != nil {
		return nil, err
	}
	ms, ok := args[0].(Integer)
	if !ok {
		return nil, fmt.Errorf("sleep_ms: argument must be an Int")
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return Unit{}, nil
}

// builtinSystem runs cmd through the host shell, returning an Object whose
// `stdout`/`stderr`/`code` attributes hold the captured output -> Int{stdout, stderr}").
func builtinSystem(th *Thread, args []Value) (Value, error) {
	if err := wantArgc("system", args, 1); err != nil {
		return nil, err
	}
	cmdline, ok := args[0].(String)
	if !ok {
		return nil, fmt.Errorf("system: argument must be a String")
	}
	cmd := exec.Command("/bin/sh", "-c", string(cmdline))
	var stdout, stderr bufferedWriter
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	code := 0
	if ee, ok := err.(*exec.ExitError); ok {
		code = ee.ExitCode()
	} else if err != nil {
		return nil, err
	}
	bag := NewAttrBag(3)
	bag.Set("stdout", String(stdout.String()))
	bag.Set("stderr", String(stderr.String()))
	bag.Set("code", Integer(code))
	return &Object{structDef: systemResultType, attrs: bag}, nil
}

// bufferedWriter is a tiny io.Writer collecting command output into a
// string, avoiding a direct bytes.Buffer import just for this one call
// site.
type bufferedWriter struct{ buf []byte }

func (w *bufferedWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}
func (w *bufferedWriter) String() string { return string(w.buf) }

// systemResultType is the synthetic Struct type backing system()'s return
// value, not user-visible as a declared type.
var systemResultType = NewStruct("SystemResult")

// maybeEnum, maybeSomeCase and maybeNoneCase back the standard-library
// `enum Maybe { Some(T), None }`'s optional-chaining lowering
// and several builtins (getenv, readln) construct values of.
var (
	maybeEnum     *Struct
	maybeSomeCase int
	maybeNoneCase int
)

// registerMaybe predeclares the Maybe enum and its qualified case tokens,
// mirroring what a BuildStruct+BindCase sequence would produce for a
// standard-library `enum Maybe { Some(T), None }` declaration, since there
// is no standard-library source file for the VM to compile at startup.
func registerMaybe(th *Thread) {
	maybeEnum = NewStruct("Maybe")
	maybeSomeCase = maybeEnum.addCase("Some", true)
	maybeNoneCase = maybeEnum.addCase("None", false)
	th.Named["Maybe::Some"] = &EnumCaseToken{Enum: maybeEnum, CaseIdx: maybeSomeCase}
	th.Named["Maybe::None"] = &EnumCaseToken{Enum: maybeEnum, CaseIdx: maybeNoneCase}
	th.builtins["Maybe"] = maybeEnum
}

// builtinTypeOf looks up a built-in type name, panicking on an unknown
// name since every call site here passes a literal known to exist.
func builtinTypeOf(name string) builtintype.ID {
	id, ok := builtintype.Lookup(name)
	if !ok {
		panic("vm: unknown builtin type name " + name)
	}
	return id
}
