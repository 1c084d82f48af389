// Package compiler implements the code generator: it walks a resolved
// AST and emits opcodes into a lang/funcbuilder.Builder, driving
// lang/resolver.Scope for identifier resolution and lang/constpool.Pool for
// literal/name interning. It also provides the Asm/Dasm pseudo-assembly
// textual encoding used as this module's only concrete module format.
//
// Much of the block/CFG shape is adapted from the original's
// lang/compiler/compiler.go; the visitor-per-node-kind structure is new,
// grounded directly on Aria/Haxby's own lowering table rather than on the
// original's Starlark-specific statement set.
package compiler

import (
	"fmt"

	"github.com/egranata/aria-sub001/lang/ast"
	"github.com/egranata/aria-sub001/lang/builtintype"
	"github.com/egranata/aria-sub001/lang/compileerr"
	"github.com/egranata/aria-sub001/lang/constpool"
	"github.com/egranata/aria-sub001/lang/funcbuilder"
	"github.com/egranata/aria-sub001/lang/opcode"
	"github.com/egranata/aria-sub001/lang/resolver"
	"github.com/egranata/aria-sub001/lang/token"
)

// Module is the result of compiling a chunk: a constant pool plus the
// entry code object (Compile also stores it as the pool's last entry).
type Module struct {
	Pool  *constpool.Pool
	Entry *CodeObject
}

// Compile compiles a single chunk (module top level) to a Module.
func Compile(chunk *ast.Chunk) (*Module, error) {
	pool := constpool.New()
	c := &compiler{pool: pool}

	builder := funcbuilder.New()
	modScope := resolver.NewModule(pool, builder)
	c.errs = nil

	fb := &funcCompiler{c: c, builder: builder, scope: modScope, loops: nil, tryDepth: 0}
	fb.block(chunk.Block)
	// Every function (including the module's synthetic top-level one) ends
	// in an implicit return.
	fb.emitImplicitReturn(chunk.Pos())

	if len(c.errs) > 0 {
		c.errs.Sort()
		return nil, c.errs
	}

	code, lines, err := builder.Linearize()
	if err != nil {
		return nil, err
	}
	entry := &CodeObject{
		Name:      "<module>",
		Pos:       chunk.Pos(),
		Code:      code,
		LineTable: lines,
		NumLocals: modScope.NumLocals(),
		MaxStack:  0,
	}
	if _, err := pool.InsertCodeObject(entry); err != nil {
		return nil, err
	}
	return &Module{Pool: pool, Entry: entry}, nil
}

// compiler holds module-wide compilation state: the constant pool and the
// accumulated error batch.
type compiler struct {
	pool *constpool.Pool
	errs compileerr.List
}

func (c *compiler) fail(kind compileerr.Kind, pos token.Pos, format string, args ...any) {
	c.errs = append(c.errs, compileerr.New(kind, pos, format, args...))
}

// funcCompiler holds the state needed to compile one function body (or the
// module top level, treated as a zero-arg function): its builder, its
// current resolver scope, and the enclosing loop targets needed by
// break/continue validation.
type funcCompiler struct {
	c       *compiler
	builder *funcbuilder.Builder
	scope   *resolver.Scope

	loops    []loopTargets
	tryDepth int // >0 while compiling inside a try body
}

type loopTargets struct {
	breakLabel, continueLabel string
}

func (fb *funcCompiler) emit(op opcode.Opcode, arg uint32, pos token.Pos) {
	fb.builder.Emit(op, arg, pos)
}

func (fb *funcCompiler) emitImplicitReturn(pos token.Pos) {
	fb.emit(opcode.PUSHBUILTINTY, uint32(builtintype.Unit), pos)
	fb.emit(opcode.RETURN, 0, pos)
}

// ---- statements ----

func (fb *funcCompiler) block(b *ast.Block) {
	inner := fb.scope.NewBlock()
	saved := fb.scope
	fb.scope = inner
	for _, s := range b.Stmts {
		fb.stmt(s)
	}
	fb.scope = saved
}

func (fb *funcCompiler) stmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.ValDecl:
		fb.expr(n.Value)
		if n.Type != nil {
			fb.emitTypeRef(n.Type)
		} else {
			fb.emit(opcode.PUSHBUILTINTY, uint32(builtintype.Any), n.Position)
		}
		if _, err := fb.scope.DefineTyped(n.Name, n.Position); err != nil {
			fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
		}

	case *ast.AssignStmt:
		fb.compileAssignStmt(n.Lhs, n.Value)

	case *ast.ExprStmt:
		fb.expr(n.X)
		fb.emit(opcode.POP, 0, n.Position)

	case *ast.IfStmt:
		fb.compileIf(n)

	case *ast.WhileStmt:
		fb.compileWhile(n)

	case *ast.ForStmt:
		fb.compileFor(n)

	case *ast.MatchStmt:
		fb.compileMatch(n, false)

	case *ast.BreakStmt:
		if len(fb.loops) == 0 {
			fb.c.fail(compileerr.FlowControlNotAllowed, n.Position, "break outside loop")
			return
		}
		top := fb.loops[len(fb.loops)-1]
		fb.builder.EmitJump(opcode.JUMP, top.breakLabel, n.Position)

	case *ast.ContinueStmt:
		if len(fb.loops) == 0 {
			fb.c.fail(compileerr.FlowControlNotAllowed, n.Position, "continue outside loop")
			return
		}
		top := fb.loops[len(fb.loops)-1]
		fb.builder.EmitJump(opcode.JUMP, top.continueLabel, n.Position)

	case *ast.ReturnStmt:
		if n.Value != nil {
			fb.expr(n.Value)
		} else {
			fb.emit(opcode.PUSHBUILTINTY, uint32(builtintype.Unit), n.Position)
		}
		fb.emit(opcode.RETURN, 0, n.Position)

	case *ast.ThrowStmt:
		fb.expr(n.Value)
		fb.emit(opcode.THROW, 0, n.Position)

	case *ast.TryStmt:
		fb.compileTry(n)

	case *ast.GuardStmt:
		fb.compileGuard(n)

	case *ast.FuncDecl:
		fb.compileFuncDecl(n)

	case *ast.StructDecl:
		fb.compileStructDecl(n)

	case *ast.EnumDecl:
		fb.compileEnumDecl(n)

	case *ast.ExtensionDecl:
		fb.compileExtensionDecl(n)

	case *ast.MixinDecl:
		fb.compileMixinDecl(n)

	case *ast.ImportDecl:
		fb.compileImportDecl(n)

	default:
		panic(fmt.Sprintf("compiler: unexpected stmt %T", s))
	}
}

// assignTo stores the value already produced by the caller (on top of the
// operand stack) into lhs. WriteAttribute's operand layout ("recv val
// WRITEATTRIBUTE<name16> -") requires recv below val, so identifier writes
// (no receiver) are the only case that can evaluate the value first; for
// attribute/index targets the caller must not have pushed the value yet —
// see compileAssignStmt, which threads the ordering through.
func (fb *funcCompiler) assignTo(lhs ast.Expr) {
	switch n := lhs.(type) {
	case *ast.Identifier:
		if err := fb.scope.EmitWrite(n.Name, n.Position); err != nil {
			fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
		}
	default:
		panic(fmt.Sprintf("compiler: invalid assignment target %T", lhs))
	}
}

// compileAssignStmt compiles `lhs = value`, respecting each target's operand
// order.
func (fb *funcCompiler) compileAssignStmt(lhs, value ast.Expr) {
	switch n := lhs.(type) {
	case *ast.AttrExpr:
		fb.expr(n.Recv)
		fb.expr(value)
		idx, _ := fb.c.pool.InsertString(n.Name)
		fb.emit(opcode.WRITEATTRIBUTE, idx, n.Position)
	case *ast.IndexExpr:
		// Lists/Objects expose indexing through a `set(index, value)` method
		// rather than a dedicated index-write opcode, since WriteAttribute's
		// name operand is a compile-time constant and an index is not.
		fb.expr(n.Recv)
		setIdx, _ := fb.c.pool.InsertString("set")
		fb.emit(opcode.READATTRIBUTE, setIdx, n.Position)
		fb.expr(n.Index)
		fb.expr(value)
		fb.emit(opcode.CALL, 2, n.Position)
		fb.emit(opcode.POP, 0, n.Position)
	default:
		fb.expr(value)
		fb.assignTo(lhs)
	}
}

func (fb *funcCompiler) emitTypeRef(t *ast.TypeRef) {
	if id, ok := builtintype.Lookup(t.Name); ok {
		fb.emit(opcode.PUSHBUILTINTY, uint32(id), t.Position)
		return
	}
	// User type name: read it like any other identifier; its runtime value
	// is a Struct/Enum/Mixin acting as its own Type token.
	if err := fb.scope.EmitRead(t.Name, t.Position); err != nil {
		fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
	}
}

func (fb *funcCompiler) compileIf(n *ast.IfStmt) {
	elseLabel := fb.builder.NewBlock("if_else")
	endLabel := fb.builder.NewBlock("if_end")

	fb.expr(n.Cond)
	fb.builder.EmitJump(opcode.JUMPFALSE, elseLabel, n.Position)
	fb.block(n.Then)
	fb.builder.EmitJump(opcode.JUMP, endLabel, n.Position)

	fb.builder.AppendBlockAtEnd(elseLabel)
	fb.builder.SetCurrentBlock(elseLabel)
	if n.Else != nil {
		fb.block(n.Else)
	}
	fb.builder.EmitJump(opcode.JUMP, endLabel, n.Position)

	fb.builder.AppendBlockAtEnd(endLabel)
	fb.builder.SetCurrentBlock(endLabel)
}

func (fb *funcCompiler) compileWhile(n *ast.WhileStmt) {
	checkLabel := fb.builder.NewBlock("while_check")
	thenLabel := fb.builder.NewBlock("while_then")
	afterLabel := fb.builder.NewBlock("while_after")

	fb.builder.EmitJump(opcode.JUMP, checkLabel, n.Position)

	fb.builder.AppendBlockAtEnd(checkLabel)
	fb.builder.SetCurrentBlock(checkLabel)
	fb.expr(n.Cond)
	fb.builder.EmitJump(opcode.JUMPTRUE, thenLabel, n.Position)
	fb.builder.EmitJump(opcode.JUMP, afterLabel, n.Position)

	fb.builder.AppendBlockAtEnd(thenLabel)
	fb.builder.SetCurrentBlock(thenLabel)
	fb.loops = append(fb.loops, loopTargets{breakLabel: afterLabel, continueLabel: checkLabel})
	fb.block(n.Body)
	fb.loops = fb.loops[:len(fb.loops)-1]
	fb.builder.EmitJump(opcode.JUMP, checkLabel, n.Position)

	fb.builder.AppendBlockAtEnd(afterLabel)
	fb.builder.SetCurrentBlock(afterLabel)
}

// compileFor desugars `for id in expr { body }` to the while-loop form of
//, by synthesizing the equivalent statement tree and
// compiling that instead of hand-rolling the bytecode.
func (fb *funcCompiler) compileFor(n *ast.ForStmt) {
	pos := n.Position
	iterVar := "__iter"
	nextVar := "__next"

	iterCall := &ast.CallExpr{Position: pos, Callee: &ast.AttrExpr{Position: pos, Recv: n.Iterable, Name: "iterator"}}
	nextCall := &ast.CallExpr{Position: pos, Callee: &ast.AttrExpr{Position: pos, Recv: &ast.Identifier{Position: pos, Name: iterVar}, Name: "next"}}
	doneAttr := &ast.AttrExpr{Position: pos, Recv: &ast.Identifier{Position: pos, Name: nextVar}, Name: "done"}
	valueAttr := &ast.AttrExpr{Position: pos, Recv: &ast.Identifier{Position: pos, Name: nextVar}, Name: "value"}

	desugared := &ast.Block{Start: pos, Stmts: []ast.Stmt{
		&ast.ValDecl{Position: pos, Name: iterVar, Value: iterCall},
		&ast.WhileStmt{
			Position: pos,
			Cond:     &ast.Identifier{Position: pos, Name: "true"},
			Body: &ast.Block{Start: pos, Stmts: []ast.Stmt{
				&ast.ValDecl{Position: pos, Name: nextVar, Value: nextCall},
				&ast.IfStmt{
					Position: pos,
					Cond:     doneAttr,
					Then:     &ast.Block{Start: pos, Stmts: []ast.Stmt{&ast.BreakStmt{Position: pos}}},
					Else: &ast.Block{Start: pos, Stmts: []ast.Stmt{
						&ast.ValDecl{Position: pos, Name: n.Var, Value: valueAttr},
						wrapBlockStmt(n.Body),
					}},
				},
			}},
		},
	}}
	fb.block(desugared)
}

// wrapBlockStmt lets a *ast.Block stand in as a single ast.Stmt by nesting
// it as the Then branch of a synthetic `if true` statement, so the body
// keeps its own lexical scope.
func wrapBlockStmt(b *ast.Block) ast.Stmt {
	return &ast.IfStmt{Position: b.Start, Cond: &ast.Identifier{Position: b.Start, Name: "true"}, Then: b}
}

// compileMatch lowers `match e { rules... } else { fallback }` per
// asExpr selects the open-question-4 rule that a
// no-else match used as an expression is a compile error.
func (fb *funcCompiler) compileMatch(n *ast.MatchStmt, asExpr bool) {
	if asExpr && n.Else == nil {
		fb.c.fail(compileerr.MatchWithoutElseAsExpression, n.Position, "match used as an expression requires an else clause")
	}

	controlVar := "__match_control_expr"
	fb.expr(n.Control)
	fb.emit(opcode.PUSHBUILTINTY, uint32(builtintype.Any), n.Position)
	if _, err := fb.scope.DefineTyped(controlVar, n.Position); err != nil {
		fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
	}

	afterLabel := fb.builder.NewBlock("match_after")
	var missLabel string
	for _, rule := range n.Rules {
		hitLabel := fb.builder.NewBlock("match_hit")
		missLabel = fb.builder.NewBlock("match_miss")

		// Each pattern's payload bindings (for enum-case patterns) live in a
		// fresh block scope shared by every pattern of the rule and the rule
		// body, since a later pattern in an `and`-chain may reference an
		// earlier one's bound name.
		inner := fb.scope.NewBlock()
		saved := fb.scope
		fb.scope = inner
		for _, p := range rule.Patterns {
			fb.compilePattern(p, controlVar, missLabel)
		}
		fb.builder.EmitJump(opcode.JUMP, hitLabel, rule.Position)

		fb.builder.AppendBlockAtEnd(hitLabel)
		fb.builder.SetCurrentBlock(hitLabel)
		for _, st := range rule.Body.Stmts {
			fb.stmt(st)
		}
		fb.scope = saved
		fb.builder.EmitJump(opcode.JUMP, afterLabel, rule.Position)

		fb.builder.AppendBlockAtEnd(missLabel)
		fb.builder.SetCurrentBlock(missLabel)
	}

	if n.Else != nil {
		fb.block(n.Else)
	}
	fb.builder.EmitJump(opcode.JUMP, afterLabel, n.Position)

	fb.builder.AppendBlockAtEnd(afterLabel)
	fb.builder.SetCurrentBlock(afterLabel)
}

// compilePattern reloads the control expression, compiles pat to a boolean
// (binding payload locals as a side effect for enum-case patterns), and
// jumps to missLabel if it evaluates false.
func (fb *funcCompiler) compilePattern(p *ast.Pattern, controlVar, missLabel string) {
	pos := p.Position
	switch {
	case p.Wildcard != "":
		// A bare-identifier pattern always matches and binds the control
		// value to the given name.
		if err := fb.scope.EmitRead(controlVar, pos); err != nil {
			fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
		}
		fb.emit(opcode.PUSHBUILTINTY, uint32(builtintype.Any), pos)
		if _, err := fb.scope.DefineTyped(p.Wildcard, pos); err != nil {
			fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
		}

	case p.Literal != nil:
		if err := fb.scope.EmitRead(controlVar, pos); err != nil {
			fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
		}
		fb.expr(p.Literal)
		fb.emit(opcode.EQUAL, 0, pos)
		fb.builder.EmitJump(opcode.JUMPFALSE, missLabel, pos)

	default:
		// Enum-case pattern: `Enum::Case(binds...)`. The runtime ISA check
		// against a synthesized enum-case type token decides the match; a
		// true result leaves the payload accessible for destructuring reads.
		if err := fb.scope.EmitRead(controlVar, pos); err != nil {
			fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
		}
		caseName := p.Enum + "::" + p.Case
		idx, _ := fb.c.pool.InsertString(caseName)
		fb.emit(opcode.PUSHRUNTIMEVALUE, idx, pos)
		fb.emit(opcode.ISA, 0, pos)
		fb.builder.EmitJump(opcode.JUMPFALSE, missLabel, pos)

		for i, bindName := range p.Binds {
			if bindName == "" || bindName == "_" {
				continue
			}
			if err := fb.scope.EmitRead(controlVar, pos); err != nil {
				fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
			}
			idx, _ := fb.c.pool.InsertString(fmt.Sprintf("__payload%d", i))
			fb.emit(opcode.READATTRIBUTE, idx, pos)
			fb.emit(opcode.PUSHBUILTINTY, uint32(builtintype.Any), pos)
			if _, err := fb.scope.DefineTyped(bindName, pos); err != nil {
				fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
			}
		}
	}
}

func (fb *funcCompiler) compileTry(n *ast.TryStmt) {
	catchLabel := fb.builder.NewBlock("try_catch")
	afterLabel := fb.builder.NewBlock("try_after")

	fb.builder.EmitJump(opcode.TRYENTER, catchLabel, n.Position)
	fb.tryDepth++
	fb.block(n.Body)
	fb.tryDepth--
	fb.emit(opcode.TRYEXIT, 0, n.Position)
	fb.builder.EmitJump(opcode.JUMP, afterLabel, n.Position)

	fb.builder.AppendBlockAtEnd(catchLabel)
	fb.builder.SetCurrentBlock(catchLabel)
	// The exception value is on the operand stack when control lands here.
	inner := fb.scope.NewGuardTry()
	saved := fb.scope
	fb.scope = inner
	fb.emit(opcode.PUSHBUILTINTY, uint32(builtintype.Any), n.Position)
	if _, err := fb.scope.DefineTyped(n.Name, n.Position); err != nil {
		fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
	}
	for _, st := range n.Handler.Stmts {
		fb.stmt(st)
	}
	fb.scope = saved
	fb.builder.EmitJump(opcode.JUMP, afterLabel, n.Position)

	fb.builder.AppendBlockAtEnd(afterLabel)
	fb.builder.SetCurrentBlock(afterLabel)
}

func (fb *funcCompiler) compileGuard(n *ast.GuardStmt) {
	fb.expr(n.Value)
	fb.emit(opcode.DUP, 0, n.Position)
	fb.emit(opcode.PUSHBUILTINTY, uint32(builtintype.Any), n.Position)
	inner := fb.scope.NewGuardTry()
	saved := fb.scope
	fb.scope = inner
	if _, err := fb.scope.DefineTyped(n.Name, n.Position); err != nil {
		fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
	}
	fb.emit(opcode.GUARDENTER, 0, n.Position)
	fb.block(n.Body)
	fb.emit(opcode.GUARDEXIT, 0, n.Position)
	fb.scope = saved
}

func (fb *funcCompiler) compileFuncDecl(n *ast.FuncDecl) {
	code := fb.compileFunctionBody(n.Name, n.Position, "", n.Params, n.Vararg, n.Body)
	idx, err := fb.c.pool.InsertCodeObject(code)
	if err != nil {
		fb.c.fail(compileerr.OutOfConstantSpace, n.Position, "%v", err)
		return
	}
	fb.emitBuildFunction(functionAttrs(n.Vararg, false, false), idx, n.Position)
	if _, err := fb.scope.DefineUntyped(n.Name, n.Position); err != nil {
		fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
	}
}

func functionAttrs(vararg, method, typeMethod bool) FunctionAttr {
	var a FunctionAttr
	if vararg {
		a |= AttrVararg
	}
	if method {
		a |= AttrMethod
	}
	if typeMethod {
		a |= AttrTypeMethod
	}
	return a
}

// emitBuildFunction emits BuildFunction with its code-object constant index
// and attribute byte packed into a single operand word, the same <attr8,
// index16> convention used by BindCase.
func (fb *funcCompiler) emitBuildFunction(attrs FunctionAttr, codeIdx uint32, pos token.Pos) {
	fb.emit(opcode.BUILDFUNCTION, packAttrName(attrs, codeIdx), pos)
}

// compileFunctionBody compiles params+body into a fresh CodeObject, wiring
// its uplevels from the enclosing function's frame. recv, when non-empty,
// is the receiver parameter name ("this" or "This") a method binds ahead of
// its declared parameters: it occupies local slot 0, bound before any
// parameter, matching the receiver-first binding order of a method body.
func (fb *funcCompiler) compileFunctionBody(name string, pos token.Pos, recv string, params []ast.Param, vararg bool, body *ast.Block) *CodeObject {
	if len(params) > 255 {
		fb.c.fail(compileerr.TooManyArguments, pos, "function %s declares more than 255 parameters", name)
	}
	seen := map[string]bool{}
	for _, p := range params {
		if seen[p.Name] {
			fb.c.fail(compileerr.DuplicateArgumentName, pos, "duplicate argument name %q in %s", p.Name, name)
		}
		seen[p.Name] = true
	}

	innerBuilder := funcbuilder.New()
	innerScope := fb.scope.NewFunction(innerBuilder)
	innerFB := &funcCompiler{c: fb.c, builder: innerBuilder, scope: innerScope}

	if recv != "" {
		if _, err := innerScope.DefineUntypedParam(recv); err != nil {
			fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
		}
	}
	for _, p := range params {
		if _, err := innerScope.DefineUntypedParam(p.Name); err != nil {
			fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
		}
	}
	if vararg {
		if _, err := innerScope.DefineUntypedParam("varargs"); err != nil {
			fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
		}
	}

	for _, s := range body.Stmts {
		innerFB.stmt(s)
	}
	innerFB.emitImplicitReturn(pos)

	code, lines, err := innerBuilder.Linearize()
	if err != nil {
		fb.c.fail(compileerr.OutOfConstantSpace, pos, "%v", err)
	}
	numParams := len(params)
	if recv != "" {
		numParams++
	}
	return &CodeObject{
		Name:      name,
		Pos:       pos,
		Code:      code,
		LineTable: lines,
		NumParams: numParams,
		Vararg:    vararg,
		NumLocals: innerScope.NumLocals(),
		Cells:     innerScope.CellIndices(),
		Uplevels:  innerScope.Uplevels(),
		NumFree:   len(innerScope.Uplevels()),
	}
}

func (fb *funcCompiler) expr(e ast.Expr) {
	switch n := e.(type) {
	case *ast.IntLiteral:
		switch n.Value {
		case 0:
			fb.emit(opcode.PUSH0, 0, n.Position)
		case 1:
			fb.emit(opcode.PUSH1, 0, n.Position)
		default:
			idx, err := fb.c.pool.InsertInt(n.Value)
			if err != nil {
				fb.c.fail(compileerr.OutOfConstantSpace, n.Position, "%v", err)
				return
			}
			fb.emit(opcode.PUSH, idx, n.Position)
		}

	case *ast.FloatLiteral:
		idx, err := fb.c.pool.InsertFloat(n.Value)
		if err != nil {
			fb.c.fail(compileerr.OutOfConstantSpace, n.Position, "%v", err)
			return
		}
		fb.emit(opcode.PUSH, idx, n.Position)

	case *ast.StringLiteral:
		idx, err := fb.c.pool.InsertString(n.Value)
		if err != nil {
			fb.c.fail(compileerr.OutOfConstantSpace, n.Position, "%v", err)
			return
		}
		fb.emit(opcode.PUSH, idx, n.Position)

	case *ast.Identifier:
		if n.Name == "true" {
			fb.emit(opcode.PUSH1, 0, n.Position)
			return
		}
		if n.Name == "false" {
			fb.emit(opcode.PUSH0, 0, n.Position)
			return
		}
		if err := fb.scope.EmitRead(n.Name, n.Position); err != nil {
			fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
		}

	case *ast.ListLiteral:
		for _, el := range n.Elems {
			fb.expr(el)
		}
		if len(n.Elems) > 1<<32-1 {
			fb.c.fail(compileerr.ListTooLarge, n.Position, "list literal exceeds maximum size")
		}
		fb.emit(opcode.BUILDLIST, uint32(len(n.Elems)), n.Position)

	case *ast.AddExpr:
		fb.expr(n.Left)
		for _, r := range n.Rest {
			fb.expr(r.Rhs)
			if r.Op == token.PLUS {
				fb.emit(opcode.ADD, 0, n.Position)
			} else {
				fb.emit(opcode.SUB, 0, n.Position)
			}
		}

	case *ast.MulExpr:
		fb.expr(n.Left)
		for _, r := range n.Rest {
			fb.expr(r.Rhs)
			switch r.Op {
			case token.STAR:
				fb.emit(opcode.MUL, 0, n.Position)
			case token.SLASH:
				fb.emit(opcode.DIV, 0, n.Position)
			default:
				fb.emit(opcode.REM, 0, n.Position)
			}
		}

	case *ast.ShiftExpr:
		fb.expr(n.Left)
		for _, r := range n.Rest {
			fb.expr(r.Rhs)
			if r.Op == token.LTLT {
				fb.emit(opcode.SHL, 0, n.Position)
			} else {
				fb.emit(opcode.SHR, 0, n.Position)
			}
		}

	case *ast.BitExpr:
		fb.expr(n.Left)
		for _, r := range n.Rest {
			fb.expr(r.Rhs)
			switch r.Op {
			case token.AMPERSAND:
				fb.emit(opcode.AMPERSAND, 0, n.Position)
			case token.PIPE:
				fb.emit(opcode.PIPE, 0, n.Position)
			default:
				fb.emit(opcode.CIRCUMFLEX, 0, n.Position)
			}
		}

	case *ast.CompExpr:
		fb.expr(n.Left)
		fb.expr(n.Right)
		switch n.Op {
		case token.EQL:
			fb.emit(opcode.EQUAL, 0, n.Position)
		case token.NEQ:
			fb.emit(opcode.EQUAL, 0, n.Position)
			fb.emit(opcode.NOT, 0, n.Position)
		case token.ISA:
			fb.emit(opcode.ISA, 0, n.Position)
		}

	case *ast.RelExpr:
		fb.expr(n.Left)
		fb.expr(n.Right)
		switch n.Op {
		case token.LT:
			fb.emit(opcode.LT, 0, n.Position)
		case token.LE:
			fb.emit(opcode.LE, 0, n.Position)
		case token.GT:
			fb.emit(opcode.GT, 0, n.Position)
		case token.GE:
			fb.emit(opcode.GE, 0, n.Position)
		}

	case *ast.LogicExpr:
		// Short-circuit: evaluate left; if it already determines the result,
		// skip right.
		endLabel := fb.builder.NewBlock("logic_end")
		rhsLabel := fb.builder.NewBlock("logic_rhs")
		fb.expr(n.Left)
		fb.emit(opcode.DUP, 0, n.Position)
		if n.Op == token.AND {
			fb.builder.EmitJump(opcode.JUMPFALSE, endLabel, n.Position)
		} else {
			fb.builder.EmitJump(opcode.JUMPTRUE, endLabel, n.Position)
		}
		fb.builder.EmitJump(opcode.JUMP, rhsLabel, n.Position)

		fb.builder.AppendBlockAtEnd(rhsLabel)
		fb.builder.SetCurrentBlock(rhsLabel)
		fb.emit(opcode.POP, 0, n.Position)
		fb.expr(n.Right)
		fb.builder.EmitJump(opcode.JUMP, endLabel, n.Position)

		fb.builder.AppendBlockAtEnd(endLabel)
		fb.builder.SetCurrentBlock(endLabel)

	case *ast.UnaryExpr:
		fb.expr(n.Operand)
		switch n.Op {
		case token.UMINUS:
			fb.emit(opcode.NEG, 0, n.Position)
		case token.NOT:
			fb.emit(opcode.NOT, 0, n.Position)
		case token.TILDE:
			fb.emit(opcode.NOT, 0, n.Position)
		}

	case *ast.TernaryExpr:
		elseLabel := fb.builder.NewBlock("tern_else")
		endLabel := fb.builder.NewBlock("tern_end")
		fb.expr(n.Cond)
		fb.builder.EmitJump(opcode.JUMPFALSE, elseLabel, n.Position)
		fb.expr(n.Then)
		fb.builder.EmitJump(opcode.JUMP, endLabel, n.Position)

		fb.builder.AppendBlockAtEnd(elseLabel)
		fb.builder.SetCurrentBlock(elseLabel)
		fb.expr(n.Els)
		fb.builder.EmitJump(opcode.JUMP, endLabel, n.Position)

		fb.builder.AppendBlockAtEnd(endLabel)
		fb.builder.SetCurrentBlock(endLabel)

	case *ast.LambdaExpr:
		code := fb.compileFunctionBody("<anon_f_loc>", n.Position, "", paramsFromNames(n.Params), n.Vararg, n.Body)
		idx, err := fb.c.pool.InsertCodeObject(code)
		if err != nil {
			fb.c.fail(compileerr.OutOfConstantSpace, n.Position, "%v", err)
			return
		}
		fb.emitBuildFunction(functionAttrs(n.Vararg, false, false), idx, n.Position)

	case *ast.CallExpr:
		fb.expr(n.Callee)
		for _, a := range n.Args {
			fb.expr(a)
		}
		if len(n.Args) > 255 {
			fb.c.fail(compileerr.TooManyArguments, n.Position, "call has more than 255 arguments")
		}
		fb.emit(opcode.CALL, uint32(len(n.Args)), n.Position)

	case *ast.AttrExpr:
		fb.expr(n.Recv)
		idx, _ := fb.c.pool.InsertString(n.Name)
		fb.emit(opcode.READATTRIBUTE, idx, n.Position)

	case *ast.IndexExpr:
		// `recv[index]` reads through a `get(index)` method rather than a
		// dedicated index-read opcode, matching the `set` convention used by
		// index-assignment (compileAssignStmt).
		fb.expr(n.Recv)
		getIdx, _ := fb.c.pool.InsertString("get")
		fb.emit(opcode.READATTRIBUTE, getIdx, n.Position)
		fb.expr(n.Index)
		fb.emit(opcode.CALL, 1, n.Position)

	case *ast.OptTryExpr:
		fb.compileOptTry(n)

	case *ast.OptForceExpr:
		fb.compileOptForce(n)

	case *ast.SigilExpr:
		fb.expr(n.Operand)
		idx, _ := fb.c.pool.InsertString(n.Name)
		fb.emit(opcode.SIGIL, idx, n.Position)

	case *ast.EnumConstructExpr:
		for _, a := range n.Args {
			fb.expr(a)
		}
		caseName := n.Enum + "::" + n.Case
		idx, _ := fb.c.pool.InsertString(caseName)
		fb.emit(opcode.NEWENUMVAL, idx, n.Position)

	case *ast.TypeRef:
		fb.emitTypeRef(n)

	default:
		panic(fmt.Sprintf("compiler: unexpected expr %T", e))
	}
}

func paramsFromNames(names []string) []ast.Param {
	ps := make([]ast.Param, len(names))
	for i, n := range names {
		ps[i] = ast.Param{Name: n}
	}
	return ps
}

// compileOptTry lowers `expr??`: on Maybe::None, returns Maybe::None from
// the current function; otherwise unwraps to the Some payload.
func (fb *funcCompiler) compileOptTry(n *ast.OptTryExpr) {
	someLabel := fb.builder.NewBlock("opttry_some")
	fb.expr(n.Operand)
	fb.emit(opcode.DUP, 0, n.Position)
	idx, _ := fb.c.pool.InsertString("Maybe::Some")
	fb.emit(opcode.PUSHRUNTIMEVALUE, idx, n.Position)
	fb.emit(opcode.ISA, 0, n.Position)
	fb.builder.EmitJump(opcode.JUMPTRUE, someLabel, n.Position)
	fb.emit(opcode.RETURN, 0, n.Position)

	fb.builder.AppendBlockAtEnd(someLabel)
	fb.builder.SetCurrentBlock(someLabel)
	payloadIdx, _ := fb.c.pool.InsertString("__payload0")
	fb.emit(opcode.READATTRIBUTE, payloadIdx, n.Position)
}

// compileOptForce lowers `expr!!`: same as ?? on Some, throws on None.
func (fb *funcCompiler) compileOptForce(n *ast.OptForceExpr) {
	someLabel := fb.builder.NewBlock("optforce_some")
	fb.expr(n.Operand)
	fb.emit(opcode.DUP, 0, n.Position)
	idx, _ := fb.c.pool.InsertString("Maybe::Some")
	fb.emit(opcode.PUSHRUNTIMEVALUE, idx, n.Position)
	fb.emit(opcode.ISA, 0, n.Position)
	fb.builder.EmitJump(opcode.JUMPTRUE, someLabel, n.Position)
	// Not a Some: discard the None value (Assert's operand is a bool, not
	// the checked value) and unconditionally fail.
	fb.emit(opcode.POP, 0, n.Position)
	fb.emit(opcode.PUSH0, 0, n.Position)
	msgIdx, _ := fb.c.pool.InsertString("forced unwrap of Maybe::None")
	fb.emit(opcode.ASSERT, msgIdx, n.Position)

	fb.builder.AppendBlockAtEnd(someLabel)
	fb.builder.SetCurrentBlock(someLabel)
	payloadIdx, _ := fb.c.pool.InsertString("__payload0")
	fb.emit(opcode.READATTRIBUTE, payloadIdx, n.Position)
}

// ---- declarations: struct / enum / extension / mixin / import ----

func (fb *funcCompiler) compileStructDecl(n *ast.StructDecl) {
	nameIdx, _ := fb.c.pool.InsertString(n.Name)
	fb.emit(opcode.BUILDSTRUCT, nameIdx, n.Position)
	fb.compileMembers(n.Members)
	if _, err := fb.scope.DefineUntyped(n.Name, n.Position); err != nil {
		fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
	}
}

func (fb *funcCompiler) compileEnumDecl(n *ast.EnumDecl) {
	nameIdx, _ := fb.c.pool.InsertString(n.Name)
	fb.emit(opcode.BUILDSTRUCT, nameIdx, n.Position)
	for _, c := range n.Cases {
		fb.emit(opcode.DUP, 0, c.Position)
		caseIdx, _ := fb.c.pool.InsertString(c.Name)
		var attrs FunctionAttr
		if len(c.Payload) > 0 {
			attrs |= AttrHasPayload
		}
		fb.emit(opcode.BINDCASE, packAttrName(attrs, caseIdx), c.Position)
	}
	fb.compileMembers(n.Members)
	if _, err := fb.scope.DefineUntyped(n.Name, n.Position); err != nil {
		fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
	}
}

// packAttrName packs an 8-bit attribute byte and a 16-bit constant-pool
// name index into a single opcode argument word (attrs in bits 16-23, the
// name in the low 16 bits, matching BindCase's documented <attr8,name16>
// operand).
func packAttrName(attrs FunctionAttr, nameIdx uint32) uint32 {
	return uint32(attrs)<<16 | nameIdx
}

// operatorAttrName returns the reserved attribute key an operator/reverse
// operator overload is written under — "__operator__<sym>" or
// "__reverse_operator__<sym>" — read back by lang/vm's binary-operator
// dispatch fallback (mirrors the "__mixin__<name>" convention compileMembers
// already uses for mixin inclusion, one literal per package rather than a
// shared constant).
func operatorAttrName(reverse bool, sym ast.OperatorSymbol) string {
	if reverse {
		return "__reverse_operator__" + string(sym)
	}
	return "__operator__" + string(sym)
}

func operatorMethodName(n *ast.OperatorDecl) string {
	if n.Reverse {
		return "reverse operator " + string(n.Symbol)
	}
	return "operator " + string(n.Symbol)
}

func (fb *funcCompiler) compileExtensionDecl(n *ast.ExtensionDecl) {
	if err := fb.scope.EmitRead(n.Type, n.Position); err != nil {
		fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
	}
	fb.compileMembers(n.Members)
	fb.emit(opcode.POP, 0, n.Position)
}

func (fb *funcCompiler) compileMixinDecl(n *ast.MixinDecl) {
	fb.emit(opcode.BUILDMIXIN, 0, n.Position)
	fb.emit(opcode.DUP, 0, n.Position)
	if _, err := fb.scope.DefineUntyped(n.Name, n.Position); err != nil {
		fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
	}
	fb.compileMembers(n.Members)
}

// compileMembers compiles a struct/enum/extension/mixin body in place: the
// defining value is left on the stack by the caller before this runs, and
// remains on the stack after (each member attaches via Dup + attribute
// write, mirroring).
func (fb *funcCompiler) compileMembers(members []ast.StructMember) {
	for _, m := range members {
		switch {
		case m.Method != nil:
			fb.emit(opcode.DUP, 0, m.Method.Position)
			isTypeMethod := m.Method.Access == ast.TypeMethod
			recv := "this"
			if isTypeMethod {
				recv = "This"
			}
			code := fb.compileFunctionBody(m.Method.Name, m.Method.Position, recv, m.Method.Params, m.Method.Vararg, m.Method.Body)
			idx, err := fb.c.pool.InsertCodeObject(code)
			if err != nil {
				fb.c.fail(compileerr.OutOfConstantSpace, m.Method.Position, "%v", err)
				continue
			}
			fb.emitBuildFunction(functionAttrs(m.Method.Vararg, true, isTypeMethod), idx, m.Method.Position)
			nameIdx, _ := fb.c.pool.InsertString(m.Method.Name)
			fb.emit(opcode.WRITEATTRIBUTE, nameIdx, m.Method.Position)

		case m.Operator != nil:
			// An operator/reverse-operator overload always binds `this`
			// (never `This`): OperatorSymbol has no Type-access variant in
			// the original grammar, and the instance is what the arithmetic
			// opcodes' overload fallback looks the overload up on.
			fb.emit(opcode.DUP, 0, m.Operator.Position)
			code := fb.compileFunctionBody(operatorMethodName(m.Operator), m.Operator.Position, "this", m.Operator.Params, m.Operator.Vararg, m.Operator.Body)
			idx, err := fb.c.pool.InsertCodeObject(code)
			if err != nil {
				fb.c.fail(compileerr.OutOfConstantSpace, m.Operator.Position, "%v", err)
				continue
			}
			fb.emitBuildFunction(functionAttrs(m.Operator.Vararg, true, false), idx, m.Operator.Position)
			nameIdx, _ := fb.c.pool.InsertString(operatorAttrName(m.Operator.Reverse, m.Operator.Symbol))
			fb.emit(opcode.WRITEATTRIBUTE, nameIdx, m.Operator.Position)

		case m.Nested != nil:
			fb.stmt(m.Nested)

		case m.MixinName != "":
			// Mixin inclusion stores the mixin value under a reserved
			// "__mixin__<name>" attribute; the runtime's attribute-resolution
			// algorithm walks these in LIFO
			// declaration order when a direct attribute lookup misses.
			fb.emit(opcode.DUP, 0, 0)
			if err := fb.scope.EmitRead(m.MixinName, 0); err != nil {
				fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
			}
			nameIdx, _ := fb.c.pool.InsertString("__mixin__" + m.MixinName)
			fb.emit(opcode.WRITEATTRIBUTE, nameIdx, 0)

		case m.Field != nil:
			fb.emit(opcode.DUP, 0, 0)
			if m.Field.Value != nil {
				fb.expr(m.Field.Value)
			} else {
				fb.emit(opcode.PUSH0, 0, 0)
			}
			nameIdx, _ := fb.c.pool.InsertString(m.Field.Name)
			fb.emit(opcode.WRITEATTRIBUTE, nameIdx, 0)
		}
	}
}

func (fb *funcCompiler) compileImportDecl(n *ast.ImportDecl) {
	pathIdx, _ := fb.c.pool.InsertString(n.Path)
	fb.emit(opcode.IMPORT, pathIdx, n.Position)
	switch {
	case n.Star:
		fb.emit(opcode.PUSHRUNTIMEVALUE, opcode.ThisModuleSentinel, n.Position)
		fb.emit(opcode.LIFTMODULE, 0, n.Position)
	case len(n.Names) > 0:
		for _, name := range n.Names {
			fb.emit(opcode.DUP, 0, n.Position)
			idx, _ := fb.c.pool.InsertString(name)
			fb.emit(opcode.READATTRIBUTE, idx, n.Position)
			if _, err := fb.scope.DefineUntyped(name, n.Position); err != nil {
				fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
			}
		}
		fb.emit(opcode.POP, 0, n.Position)
	default:
		// Plain `import path.to.mod`: bind the module value under its last
		// path component.
		last := n.Path
		for i := len(n.Path) - 1; i >= 0; i-- {
			if n.Path[i] == '.' {
				last = n.Path[i+1:]
				break
			}
		}
		if _, err := fb.scope.DefineUntyped(last, n.Position); err != nil {
			fb.c.errs = append(fb.c.errs, err.(*compileerr.Error))
		}
	}
}
