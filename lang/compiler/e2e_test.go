package compiler_test

import (
	"bytes"
	"testing"

	"github.com/egranata/aria-sub001/lang/ast"
	"github.com/egranata/aria-sub001/lang/compiler"
	"github.com/egranata/aria-sub001/lang/token"
	"github.com/egranata/aria-sub001/lang/vm"
	"github.com/stretchr/testify/require"
)

// runChunk compiles stmts as a module top level and runs it on a fresh
// Thread, returning everything it wrote to stdout. Each test builds its AST
// directly (there is no source-level parser in this module) to exercise the
// six literal-I/O scenarios of the compiler/VM pair under test.
func runChunk(t *testing.T, stmts []ast.Stmt) string {
	t.Helper()
	chunk := &ast.Chunk{Name: "<test>", Block: &ast.Block{Stmts: stmts}}
	mod, err := compiler.Compile(chunk)
	require.NoError(t, err)

	var out bytes.Buffer
	th := vm.NewThread()
	th.Stdout = &out
	_, err = th.RunModule(mod)
	require.NoError(t, err)
	return out.String()
}

func ident(name string) *ast.Identifier { return &ast.Identifier{Name: name} }
func str(s string) *ast.StringLiteral   { return &ast.StringLiteral{Value: s} }
func intLit(n int64) *ast.IntLiteral    { return &ast.IntLiteral{Value: n} }

func printlnCall(arg ast.Expr) *ast.ExprStmt {
	return &ast.ExprStmt{X: &ast.CallExpr{Callee: ident("println"), Args: []ast.Expr{arg}}}
}

// TestArithmeticAndPrint covers scenario 1: println(3 + 4 * 2); -> "11\n".
func TestArithmeticAndPrint(t *testing.T) {
	stmts := []ast.Stmt{
		printlnCall(&ast.AddExpr{
			Left: intLit(3),
			Rest: []ast.OpRHS{{Op: token.PLUS, Rhs: &ast.MulExpr{
				Left: intLit(4),
				Rest: []ast.OpRHS{{Op: token.STAR, Rhs: intLit(2)}},
			}}},
		}),
	}
	require.Equal(t, "11\n", runChunk(t, stmts))
}

// TestClosureCapture covers scenario 2:
//
//	func make(n) { return |x| => x + n; }
//	val f = make(10);
//	println(f(5));
//
// -> "15\n".
func TestClosureCapture(t *testing.T) {
	makeFn := &ast.FuncDecl{
		Name:   "make",
		Params: []ast.Param{{Name: "n"}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.LambdaExpr{
				Params: []string{"x"},
				Body: &ast.Block{Stmts: []ast.Stmt{
					&ast.ReturnStmt{Value: &ast.AddExpr{
						Left: ident("x"),
						Rest: []ast.OpRHS{{Op: token.PLUS, Rhs: ident("n")}},
					}},
				}},
			}},
		}},
	}
	stmts := []ast.Stmt{
		makeFn,
		&ast.ValDecl{Name: "f", Value: &ast.CallExpr{Callee: ident("make"), Args: []ast.Expr{intLit(10)}}},
		printlnCall(&ast.CallExpr{Callee: ident("f"), Args: []ast.Expr{intLit(5)}}),
	}
	require.Equal(t, "15\n", runChunk(t, stmts))
}

// TestEnumAndMatch covers scenario 3:
//
//	enum Shape { case Circle(r), case Square(s) }
//	val x = Shape::Circle(3);
//	match x {
//	  case Circle(r) => { println(r); }
//	  case Square(s) => { println(s); }
//	}
//
// -> "3\n".
func TestEnumAndMatch(t *testing.T) {
	shapeDecl := &ast.EnumDecl{
		Name: "Shape",
		Cases: []ast.EnumCase{
			{Name: "Circle", Payload: []ast.TypeRef{{Name: "Any"}}},
			{Name: "Square", Payload: []ast.TypeRef{{Name: "Any"}}},
		},
	}
	stmts := []ast.Stmt{
		shapeDecl,
		&ast.ValDecl{Name: "x", Value: &ast.EnumConstructExpr{Enum: "Shape", Case: "Circle", Args: []ast.Expr{intLit(3)}}},
		&ast.MatchStmt{
			Control: ident("x"),
			Rules: []*ast.MatchRule{
				{
					Patterns: []*ast.Pattern{{Enum: "Shape", Case: "Circle", Binds: []string{"r"}}},
					Body:     &ast.Block{Stmts: []ast.Stmt{printlnCall(ident("r"))}},
				},
				{
					Patterns: []*ast.Pattern{{Enum: "Shape", Case: "Square", Binds: []string{"s"}}},
					Body:     &ast.Block{Stmts: []ast.Stmt{printlnCall(ident("s"))}},
				},
			},
		},
	}
	require.Equal(t, "3\n", runChunk(t, stmts))
}

// guardLambda builds the `|_| => println(msg)` cleanup thunk used by
// guard statements throughout.
func guardLambda(msg string) *ast.LambdaExpr {
	return &ast.LambdaExpr{
		Params: []string{"_"},
		Body:   &ast.Block{Stmts: []ast.Stmt{printlnCall(str(msg))}},
	}
}

// TestGuardCleanupOrder covers scenario 4:
//
//	func f() {
//	  guard (g = |_| => println("g1")) { guard (h = |_| => println("g2")) { return 0; } }
//	}
//	f();
//
// -> "g2\ng1\n" (LIFO).
func TestGuardCleanupOrder(t *testing.T) {
	fFn := &ast.FuncDecl{
		Name: "f",
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.GuardStmt{
				Name:  "g",
				Value: guardLambda("g1"),
				Body: &ast.Block{Stmts: []ast.Stmt{
					&ast.GuardStmt{
						Name:  "h",
						Value: guardLambda("g2"),
						Body: &ast.Block{Stmts: []ast.Stmt{
							&ast.ReturnStmt{Value: intLit(0)},
						}},
					},
				}},
			},
		}},
	}
	stmts := []ast.Stmt{
		fFn,
		&ast.ExprStmt{X: &ast.CallExpr{Callee: ident("f")}},
	}
	require.Equal(t, "g2\ng1\n", runChunk(t, stmts))
}

// TestTryCatchAcrossCall covers scenario 5:
//
//	func a() { throw "boom"; }
//	try { a(); } catch (e) { println(e); }
//
// -> "boom\n".
func TestTryCatchAcrossCall(t *testing.T) {
	aFn := &ast.FuncDecl{
		Name: "a",
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ThrowStmt{Value: str("boom")},
		}},
	}
	stmts := []ast.Stmt{
		aFn,
		&ast.TryStmt{
			Body:    &ast.Block{Stmts: []ast.Stmt{&ast.ExprStmt{X: &ast.CallExpr{Callee: ident("a")}}}},
			Name:    "e",
			Handler: &ast.Block{Stmts: []ast.Stmt{printlnCall(ident("e"))}},
		},
	}
	require.Equal(t, "boom\n", runChunk(t, stmts))
}

// TestForLoopIteration covers scenario 6: for i in [10,20,30] { println(i); }
// -> "10\n20\n30\n".
func TestForLoopIteration(t *testing.T) {
	stmts := []ast.Stmt{
		&ast.ForStmt{
			Var:      "i",
			Iterable: &ast.ListLiteral{Elems: []ast.Expr{intLit(10), intLit(20), intLit(30)}},
			Body:     &ast.Block{Stmts: []ast.Stmt{printlnCall(ident("i"))}},
		},
	}
	require.Equal(t, "10\n20\n30\n", runChunk(t, stmts))
}

// attr reads recv.name, e.g. this.v.
func attr(recv ast.Expr, name string) *ast.AttrExpr {
	return &ast.AttrExpr{Recv: recv, Name: name}
}

// boxDecl builds:
//
//	struct Box {
//	  val v = 0;
//	  operator + (other) { return this.v + other.v; }
//	  reverse operator + (other) { return this.v + other; }
//	  type func make(v) { val o = alloc(This); writeattr(o, "v", v); return o; }
//	}
func boxDecl() *ast.StructDecl {
	plusBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.ReturnStmt{Value: &ast.AddExpr{
			Left: attr(ident("this"), "v"),
			Rest: []ast.OpRHS{{Op: token.PLUS, Rhs: attr(ident("other"), "v")}},
		}},
	}}
	reversePlusBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.ReturnStmt{Value: &ast.AddExpr{
			Left: attr(ident("this"), "v"),
			Rest: []ast.OpRHS{{Op: token.PLUS, Rhs: ident("other")}},
		}},
	}}
	makeBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.ValDecl{Name: "o", Value: &ast.CallExpr{Callee: ident("alloc"), Args: []ast.Expr{ident("This")}}},
		&ast.ExprStmt{X: &ast.CallExpr{Callee: ident("writeattr"), Args: []ast.Expr{ident("o"), str("v"), ident("v")}}},
		&ast.ReturnStmt{Value: ident("o")},
	}}
	return &ast.StructDecl{
		Name: "Box",
		Members: []ast.StructMember{
			{Field: &ast.StructField{Name: "v", Value: intLit(0)}},
			{Operator: &ast.OperatorDecl{Symbol: ast.OpPlus, Params: []ast.Param{{Name: "other"}}, Body: plusBody}},
			{Operator: &ast.OperatorDecl{Reverse: true, Symbol: ast.OpPlus, Params: []ast.Param{{Name: "other"}}, Body: reversePlusBody}},
			{Method: &ast.FuncDecl{Name: "make", Access: ast.TypeMethod, Params: []ast.Param{{Name: "v"}}, Body: makeBody}},
		},
	}
}

// TestOperatorOverload exercises a user-defined `operator +` between two
// struct instances:
//
//	val a = Box.make(3);
//	val b = Box.make(4);
//	println(a + b);
//
// -> "7\n".
func TestOperatorOverload(t *testing.T) {
	stmts := []ast.Stmt{
		boxDecl(),
		&ast.ValDecl{Name: "a", Value: &ast.CallExpr{Callee: attr(ident("Box"), "make"), Args: []ast.Expr{intLit(3)}}},
		&ast.ValDecl{Name: "b", Value: &ast.CallExpr{Callee: attr(ident("Box"), "make"), Args: []ast.Expr{intLit(4)}}},
		printlnCall(&ast.AddExpr{Left: ident("a"), Rest: []ast.OpRHS{{Op: token.PLUS, Rhs: ident("b")}}}),
	}
	require.Equal(t, "7\n", runChunk(t, stmts))
}

// TestReverseOperatorOverload exercises the reverse-operator fallback: the
// left operand (a plain Int) has no `operator +` on a struct, so the add
// opcode consults the right operand's `reverse operator +`.
//
//	val a = Box.make(3);
//	println(10 + a);
//
// -> "13\n".
func TestReverseOperatorOverload(t *testing.T) {
	stmts := []ast.Stmt{
		boxDecl(),
		&ast.ValDecl{Name: "a", Value: &ast.CallExpr{Callee: attr(ident("Box"), "make"), Args: []ast.Expr{intLit(3)}}},
		printlnCall(&ast.AddExpr{Left: intLit(10), Rest: []ast.OpRHS{{Op: token.PLUS, Rhs: ident("a")}}}),
	}
	require.Equal(t, "13\n", runChunk(t, stmts))
}

// TestTypeMethod exercises a `This`-bound type method reachable directly off
// the struct value, distinct from an instance method:
//
//	val a = Box.make(5);
//	println(a.v);
//
// -> "5\n".
func TestTypeMethod(t *testing.T) {
	stmts := []ast.Stmt{
		boxDecl(),
		&ast.ValDecl{Name: "a", Value: &ast.CallExpr{Callee: attr(ident("Box"), "make"), Args: []ast.Expr{intLit(5)}}},
		printlnCall(attr(ident("a"), "v")),
	}
	require.Equal(t, "5\n", runChunk(t, stmts))
}

// TestSigilDispatch exercises @name dispatch through the VM's sigil
// registry:
//
//	register_sigil("twice", |x| => x + x);
//	println(5@twice);
//
// -> "10\n".
func TestSigilDispatch(t *testing.T) {
	doubleLambda := &ast.LambdaExpr{
		Params: []string{"x"},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.AddExpr{
				Left: ident("x"),
				Rest: []ast.OpRHS{{Op: token.PLUS, Rhs: ident("x")}},
			}},
		}},
	}
	stmts := []ast.Stmt{
		&ast.ExprStmt{X: &ast.CallExpr{Callee: ident("register_sigil"), Args: []ast.Expr{str("twice"), doubleLambda}}},
		printlnCall(&ast.SigilExpr{Operand: intLit(5), Name: "twice"}),
	}
	require.Equal(t, "10\n", runChunk(t, stmts))
}
