package compiler_test

import (
	"testing"

	"github.com/egranata/aria-sub001/lang/compiler"
	"github.com/stretchr/testify/require"
)

func TestAsm(t *testing.T) {
	cases := []struct {
		desc string
		in   string
		err  string // error "contains" this err string, no error if empty
	}{
		{"empty", ``, "expected module section"},
		{"not module", `function:`, "expected module section"},

		{"missing entry function", `
			module:
				entry: main
			function: top 0 0
				code:
		`, `entry function "main" not defined`},

		{"minimally valid", `
			module:
				entry: main
			function: main 0 0
				code:
					push0
					return
		`, ""},

		{"missing code section", `
			module:
				entry: main
			function: main 0 0
		`, "expected code section"},

		{"extra unknown section", `
			module:
				entry: main
			function: main 0 0
				code:
					push0
					return
			bogus:
		`, "unexpected section: bogus:"},

		{"invalid opcode", `
			module:
				entry: main
			function: main 0 0
				code:
					foobar
		`, "invalid opcode: foobar"},

		{"missing opcode arg", `
			module:
				entry: main
			function: main 0 0
				code:
					jump
		`, "expected an argument for opcode jump"},

		{"extra opcode arg", `
			module:
				entry: main
			function: main 0 0
				code:
					push0 1
		`, "expected no argument for opcode push0, got 2 fields"},

		{"invalid jump target", `
			module:
				entry: main
			function: main 0 0
				code:
					jump 5
		`, "invalid jump target 5"},

		{"pooled zero", `
			module:
				entry: main
			constants:
				int 0
			function: main 0 0
				code:
					push0
					return
		`, "must not be pooled"},

		{"undefined code constant", `
			module:
				entry: main
			constants:
				code missing
			function: main 0 0
				code:
					push0
					return
		`, `refers to undefined function "missing"`},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			mod, err := compiler.Asm([]byte(tc.in))
			if tc.err == "" {
				require.NoError(t, err)
				require.NotNil(t, mod)
				require.NotNil(t, mod.Entry)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestAsmDasmRoundTrip(t *testing.T) {
	src := `
module:
	entry: main

constants:
	int    42
	float  3.5
	string "hello"
	code   add_one

function: main 4 0
	pos: 1:1
	locals: 1
	code:
		line 1:1
		push 0
		buildfunction 3
		storelocal 0
		loadlocal 0
		push1
		call 1
		return

function: add_one 4 1
	pos: 4:1
	locals: 1
	code:
		line 4:1
		loadlocal 0
		push1
		add
		return
`
	mod, err := compiler.Asm([]byte(src))
	require.NoError(t, err)
	require.Equal(t, 4, mod.Pool.Len())
	require.Equal(t, "main", mod.Entry.Name)
	require.Equal(t, 1, mod.Entry.NumLocals)

	out, err := compiler.Dasm(mod)
	require.NoError(t, err)
	require.Contains(t, string(out), "function: main")
	require.Contains(t, string(out), "function: fn3")

	reparsed, err := compiler.Asm(out)
	require.NoError(t, err)
	require.Equal(t, mod.Pool.Len(), reparsed.Pool.Len())
	require.Equal(t, mod.Entry.NumLocals, reparsed.Entry.NumLocals)
	require.Equal(t, len(mod.Entry.Code), len(reparsed.Entry.Code))
}

func TestAsmVarargAndUplevels(t *testing.T) {
	src := `
module:
	entry: main

function: main 2 0
	locals: 1
	cells:
		0
	code:
		push0
		buildfunction 0
		return

function: variadic 4 1 +vararg
	locals: 1
	uplevels:
		cell 0
	code:
		loadlocal 0
		loaduplevel 0
		add
		return
`
	mod, err := compiler.Asm([]byte(src))
	require.NoError(t, err)
	require.Equal(t, []int{0}, mod.Entry.Cells)
}
