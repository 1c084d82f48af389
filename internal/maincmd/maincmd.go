// Package maincmd implements the CLI surface of: a single
// binary that loads a compiled module and runs it on lang/vm.Thread, or
// enters a line-oriented REPL when no path is given. There is no
// source-level parser in this module, so the only module format this loads is the
// lang/compiler.Asm/Dasm pseudo-assembly text.
//
// Structurally this mirrors the original's own internal/maincmd.Cmd: a
// struct-tag-driven mainer.Parser, mainer.Stdio for testable I/O, and
// mainer.ExitCode as the process exit status.
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/egranata/aria-sub001/lang/compiler"
	"github.com/egranata/aria-sub001/lang/vm"
	"github.com/mna/mainer"
)

const binName = "aria"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] [<path>] [-- <arg>...]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] [<path>] [-- <arg>...]
       %[1]s -h|--help
       %[1]s -v|--version

Compiler-output loader and virtual machine for the Aria/Haxby scripting
language core.

<path> names a compiled module in the pseudo-assembly textual format that
lang/compiler.Dasm emits and lang/compiler.Asm reads back (there is no
source-level parser in this module). If <path> is
omitted, %[1]s reads one such module from stdin and runs it, acting as a
minimal REPL front end for the core.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --trace-exec              Print each executed instruction to stderr.
       --trace-stack             Also print the operand stack after every
                                  instruction (requires --trace-exec).
       --dump-module             Print the loaded module's disassembly
                                  before running it.
       --disable-optimizer       Accepted for interface parity with a full
                                  toolchain; this core emits no optimizing
                                  pass for this flag to disable.
       --print-lib-path          Print the (fixed) standard-library search
                                  path and exit.
       --no-repl-preamble        Suppress the startup banner printed before
                                  reading a module from stdin.

Trailing arguments after <path>, following a literal --, are exposed to the
running program via the cmdline_arguments() builtin.

More information on the Aria/Haxby core:
       https://github.com/egranata/aria-sub001
`, binName)
)

// Cmd is the top-level CLI command, parsed by mainer.Parser from struct
// tags exactly as the original's own maincmd.Cmd is.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	TraceExec        bool `flag:"trace-exec"`
	TraceStack       bool `flag:"trace-stack"`
	DumpModule       bool `flag:"dump-module"`
	DisableOptimizer bool `flag:"disable-optimizer"`
	PrintLibPath     bool `flag:"print-lib-path"`
	NoReplPreamble   bool `flag:"no-repl-preamble"`

	args []string
}

func (c *Cmd) SetArgs(args []string)          { c.args = args }
func (c *Cmd) SetFlags(flags map[string]bool) {}

func (c *Cmd) Validate() error {
	if c.Help || c.Version || c.PrintLibPath {
		return nil
	}
	if c.TraceStack && !c.TraceExec {
		return errors.New("--trace-stack requires --trace-exec")
	}
	if len(c.args) > 1 {
		// args[0] is the module path; everything after is the program's own
		// cmdline_arguments(), never validated here.
	}
	return nil
}

// Main parses args and dispatches to the load-and-run path or the REPL,
// mirroring the original's Cmd.Main dispatch shape.
func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	case c.PrintLibPath:
		fmt.Fprintln(stdio.Stdout, libPath())
		return mainer.Success
	}

	// A cancelable context is threaded through so a future embedding host can
	// observe SIGINT; the core interpreter itself has no suspension points
	// to check it against mid-run.
	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)

	if len(c.args) == 0 {
		if err := c.repl(ctx, stdio); err != nil {
			fmt.Fprintf(stdio.Stderr, "%s\n", err)
			return mainer.Failure
		}
		return mainer.Success
	}

	path, progArgs := c.args[0], c.args[1:]
	if err := c.runFile(stdio, path, progArgs); err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return mainer.Failure
	}
	return mainer.Success
}

// newThread builds a Thread wired to stdio and this command's trace
// flags, with a filesystem-backed Importer resolving `import` paths
// relative to baseDir.
func (c *Cmd) newThread(stdio mainer.Stdio, baseDir string, progArgs []string) *vm.Thread {
	th := vm.NewThread()
	th.TraceExec = c.TraceExec
	th.TraceStack = c.TraceStack
	th.Stdout = stdio.Stdout
	th.Stderr = stdio.Stderr
	th.Args = progArgs
	th.Importer = fsImporter(baseDir)
	return th
}

// runFile loads the pseudo-assembly module at path, optionally dumps it
// (--dump-module), and runs it to completion.
func (c *Cmd) runFile(stdio mainer.Stdio, path string, progArgs []string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	mod, err := compiler.Asm(b)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if c.DumpModule {
		out, err := compiler.Dasm(mod)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, err := stdio.Stdout.Write(out); err != nil {
			return err
		}
	}
	th := c.newThread(stdio, filepath.Dir(path), progArgs)
	_, err = th.RunModule(mod)
	return err
}

// repl reads a single pseudo-assembly module from stdin and runs it: the
// closest approximation to a REPL this module can offer without the
// (out-of-scope) source parser and line-by-line evaluator front end.
func (c *Cmd) repl(_ context.Context, stdio mainer.Stdio) error {
	if !c.NoReplPreamble {
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		fmt.Fprintln(stdio.Stdout, "no source-level REPL front end in this core; reading one pseudo-assembly module from stdin")
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}
	mod, err := compiler.Asm(b)
	if err != nil {
		return err
	}
	th := c.newThread(stdio, ".", nil)
	_, err = th.RunModule(mod)
	return err
}

// fsImporter resolves an `import path.to.mod` statement to
// a pseudo-assembly file path.to/mod.asm under baseDir, compiling it with
// Asm the same way the top-level module was loaded.
func fsImporter(baseDir string) func(path string) (*compiler.Module, error) {
	return func(path string) (*compiler.Module, error) {
		full := filepath.Join(baseDir, filepath.FromSlash(path)+".asm")
		b, err := os.ReadFile(full)
		if err != nil {
			return nil, err
		}
		return compiler.Asm(b)
	}
}

// libPath backs --print-lib-path: this core carries no dynamic-library
// loading glue, so the only "search path" is the
// current working directory used for relative imports.
func libPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
