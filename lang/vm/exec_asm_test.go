package vm_test

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/egranata/aria-sub001/lang/compiler"
	"github.com/egranata/aria-sub001/lang/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rxAssert = regexp.MustCompile(`(?m)^\s*###\s*([a-zA-Z][a-zA-Z0-9_]*):\s*(.+)$`)

// TestExecAsm loads every fixture in testdata/asm/*.asm, runs it to
// completion on a fresh Thread, and checks the assertion comments embedded
// in the fixture source:
//
//   - ### fail: <substring>     the run must return an error containing it
//   - ### nofail: <value>       the run must succeed and return this value
//   - ### <name>: <value>       the named module-scope global must hold it
//
// Values are 'unit', 'true'/'false', an integer, or a double-quoted string.
// At least one of fail/nofail must be present; global assertions may be
// combined with either.
func TestExecAsm(t *testing.T) {
	dir := filepath.Join("testdata", "asm")
	des, err := os.ReadDir(dir)
	require.NoError(t, err)

	for _, de := range des {
		if de.IsDir() || filepath.Ext(de.Name()) != ".asm" {
			continue
		}
		t.Run(de.Name(), func(t *testing.T) {
			b, err := os.ReadFile(filepath.Join(dir, de.Name()))
			require.NoError(t, err)

			mod, err := compiler.Asm(b)
			require.NoError(t, err)

			th := vm.NewThread()
			m := &vm.Module{Compiled: mod, Globals: vm.NewAttrBag(16)}
			entry := &vm.Function{Code: mod.Entry, Module: m}
			res, err := entry.Call(th, nil)

			ms := rxAssert.FindAllStringSubmatch(string(b), -1)
			require.NotEmpty(t, ms, "fixture carries no ### assertions")

			var sawOutcome bool
			for _, mm := range ms {
				want := strings.TrimSpace(mm[2])
				switch mm[1] {
				case "fail":
					sawOutcome = true
					assert.ErrorContains(t, err, want, "result: %v", res)
				case "nofail":
					sawOutcome = true
					if assert.NoError(t, err, "result: %v", res) {
						assertValue(t, "", want, res)
					}
				default:
					if assert.NoError(t, err, "result: %v", res) {
						gv, ok := m.Globals.Get(mm[1])
						if assert.True(t, ok, "global %s was never defined", mm[1]) {
							assertValue(t, mm[1], want, gv)
						}
					}
				}
			}
			require.True(t, sawOutcome, "fixture needs a ### fail: or ### nofail: assertion")
		})
	}
}

func assertValue(t *testing.T, name, want string, got vm.Value) bool {
	msg := "result"
	if name != "" {
		msg = fmt.Sprintf("global %s", name)
	}
	switch want {
	case "unit":
		return assert.Equal(t, vm.Unit{}, got, msg)
	case "true", "false":
		return assert.Equal(t, vm.Bool(want == "true"), got, msg)
	}
	if qs, err := strconv.Unquote(want); err == nil {
		s, ok := got.(vm.String)
		if assert.True(t, ok, "%s: want a String, got %T", msg, got) {
			return assert.Equal(t, qs, string(s), msg)
		}
		return false
	}
	if n, err := strconv.ParseInt(want, 10, 64); err == nil {
		i, ok := got.(vm.Integer)
		if assert.True(t, ok, "%s: want an Integer, got %T", msg, got) {
			return assert.Equal(t, n, int64(i), msg)
		}
		return false
	}
	return assert.Failf(t, "unexpected expectation", "%s: want %s, got %v (%[3]T)", msg, want, got)
}
