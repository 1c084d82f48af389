package ast

import "github.com/egranata/aria-sub001/lang/token"

type (
	// ValDecl is a `val x[: T] = e;` local declaration.
	ValDecl struct {
		Position token.Pos
		Name     string
		Type     *TypeRef // nil means no annotation (PushBuiltinTy(Any))
		Value    Expr
	}

	// AssignStmt is `lhs = e;`, where lhs is an Identifier, AttrExpr or
	// IndexExpr — resolved at compile time to the matching store opcode.
	AssignStmt struct {
		Position token.Pos
		Lhs      Expr
		Value    Expr
	}

	// ExprStmt is an expression evaluated for its side effects; its result is
	// discarded (popped) after evaluation.
	ExprStmt struct {
		Position token.Pos
		X        Expr
	}

	// IfStmt is `if cond { then } else { els }`. A chained `elsif` is
	// represented by nesting another *IfStmt as the sole statement of Else.
	IfStmt struct {
		Position  token.Pos
		Cond      Expr
		Then      *Block
		Else      *Block // nil if no else/elsif clause
	}

	// WhileStmt is `while cond { body }`.
	WhileStmt struct {
		Position token.Pos
		Cond     Expr
		Body     *Block
	}

	// ForStmt is `for id in iterable { body }`. The compiler desugars this to
	// a while loop driving the iterator protocol; this node
	// carries the original, not-yet-desugared shape.
	ForStmt struct {
		Position token.Pos
		Var      string
		Iterable Expr
		Body     *Block
	}

	// Pattern is a single pattern appearing in a match rule, e.g.
	// `Shape::Circle(r)` binding r, or a bare identifier acting as a wildcard
	// binding, or a literal pattern that must equal the control expression.
	Pattern struct {
		Position token.Pos
		Enum     string // non-empty for an enum-case pattern
		Case     string
		Binds    []string // payload binding names, empty for payload-less cases
		Literal  Expr     // non-nil for a literal-equality pattern
		Wildcard string   // non-empty for a bare-identifier binding pattern
	}

	// MatchRule is one `pat1 and pat2 ... => block` rule of a match statement.
	MatchRule struct {
		Position token.Pos
		Patterns []*Pattern
		Body     *Block
	}

	// MatchStmt is `match e { rule1; rule2; ... } else { fallback }`. Else may
	// be nil when match is used as a statement.
	MatchStmt struct {
		Position token.Pos
		Control  Expr
		Rules    []*MatchRule
		Else     *Block
	}

	// BreakStmt exits the nearest enclosing loop.
	BreakStmt struct {
		Position token.Pos
	}

	// ContinueStmt jumps to the nearest enclosing loop's condition check.
	ContinueStmt struct {
		Position token.Pos
	}

	// ReturnStmt returns from the current function, with an optional value.
	ReturnStmt struct {
		Position token.Pos
		Value    Expr // nil means implicit unit
	}

	// ThrowStmt raises a runtime value as an exception.
	ThrowStmt struct {
		Position token.Pos
		Value    Expr
	}

	// TryStmt is `try { Body } catch (Name) { Handler }`.
	TryStmt struct {
		Position token.Pos
		Body     *Block
		Name     string
		Handler  *Block
	}

	// GuardStmt is `guard (Name = Value) { Body }`: Value is evaluated once
	// and bound to Name as a cleanup thunk run on any non-normal exit from
	// the enclosing frame.
	GuardStmt struct {
		Position token.Pos
		Name     string
		Value    Expr
		Body     *Block
	}

	// Param is a single formal parameter of a function declaration or lambda.
	Param struct {
		Name string
		Type *TypeRef // nil means no annotation
	}

	// FuncDecl is `func name(params) { body }`, optionally vararg. Access is
	// only meaningful when this FuncDecl is a struct/enum member (a plain,
	// top-level function ignores it): it distinguishes an instance method
	// (the default, bound to `this`) from a type-level method bound to
	// `This`, the defining struct/enum itself.
	FuncDecl struct {
		Position token.Pos
		Name     string
		Params   []Param
		Vararg   bool
		Access   MethodAccess
		Body     *Block
	}

	// MethodAccess distinguishes an instance method, bound to `this` (the
	// receiving Object/EnumValue), from a type-level method, bound to
	// `This` (the defining Struct/enum template itself) — the latter is
	// reachable the same way off either the type or an instance of it.
	MethodAccess int

	// StructField is a `val`-style data member of a struct.
	StructField struct {
		Name  string
		Type  *TypeRef
		Value Expr // default value, may be nil
	}

	// OperatorDecl is `operator SYM(params) { body }` or, with Reverse set,
	// `reverse operator SYM(params) { body }`: installs a receiver-bound
	// overload of one arithmetic/comparison operator on the enclosing
	// struct/enum. A reverse overload is consulted when this struct/enum's
	// value appears as the operator's right-hand operand instead of its
	// left-hand one.
	OperatorDecl struct {
		Position token.Pos
		Reverse  bool
		Symbol   OperatorSymbol
		Params   []Param
		Vararg   bool
		Body     *Block
	}

	// OperatorSymbol names one overloadable operator. The call/subscript
	// operators ("()" , "[]", "[]=") are intentionally not represented here:
	// they already dispatch through ordinary attribute/method lookup (a
	// Callable receiver, or a `get`/`set` method), so a struct opts into
	// that behavior by defining those methods directly rather than through
	// an OperatorDecl.
	OperatorSymbol string

	// StructMember is one entry of a struct/extension body: exactly one of
	// Method, Operator, Nested, MixinName or Field is set.
	StructMember struct {
		Method    *FuncDecl
		Operator  *OperatorDecl
		Nested    Decl // StructDecl or EnumDecl
		MixinName string
		Field     *StructField
	}

	// StructDecl is `struct Name { members... }`.
	StructDecl struct {
		Position token.Pos
		Name     string
		Members  []StructMember
	}

	// EnumCase is one `case Name(Type, ...)` or payload-less `case Name`.
	EnumCase struct {
		Position token.Pos
		Name     string
		Payload  []TypeRef // empty means payload-less
	}

	// EnumDecl is `enum Name { case ...; members... }`.
	EnumDecl struct {
		Position token.Pos
		Name     string
		Cases    []EnumCase
		Members  []StructMember
	}

	// ExtensionDecl is `extension T { members... }`: mutates an existing type
	// in place rather than declaring a new one.
	ExtensionDecl struct {
		Position token.Pos
		Type     string
		Members  []StructMember
	}

	// MixinDecl is `mixin M { members... }`.
	MixinDecl struct {
		Position token.Pos
		Name     string
		Members  []StructMember
	}

	// ImportDecl is `import path.to.mod`, `import a, b from path.to.mod`, or
	// `import * from path.to.mod`.
	ImportDecl struct {
		Position token.Pos
		Path     string
		Names    []string // empty for plain import; nil+Star for import *
		Star     bool
	}
)

const (
	InstanceMethod MethodAccess = iota
	TypeMethod
)

const (
	OpPlus             OperatorSymbol = "+"
	OpMinus            OperatorSymbol = "-"
	OpUnaryMinus       OperatorSymbol = "u-"
	OpStar             OperatorSymbol = "*"
	OpSlash            OperatorSymbol = "/"
	OpPercent          OperatorSymbol = "%"
	OpLeftShift        OperatorSymbol = "<<"
	OpRightShift       OperatorSymbol = ">>"
	OpEquals           OperatorSymbol = "=="
	OpLessThanEqual    OperatorSymbol = "<="
	OpGreaterThanEqual OperatorSymbol = ">="
	OpLessThan         OperatorSymbol = "<"
	OpGreaterThan      OperatorSymbol = ">"
	OpBitwiseAnd       OperatorSymbol = "&"
	OpBitwiseOr        OperatorSymbol = "|"
	OpBitwiseXor       OperatorSymbol = "^"
)

func (n *OperatorDecl) Pos() token.Pos { return n.Position }
func (n *OperatorDecl) Walk(v Visitor) {
	for _, p := range n.Params {
		if p.Type != nil {
			Walk(v, p.Type)
		}
	}
	Walk(v, n.Body)
}

func (n *ValDecl) Pos() token.Pos       { return n.Position }
func (n *AssignStmt) Pos() token.Pos    { return n.Position }
func (n *ExprStmt) Pos() token.Pos      { return n.Position }
func (n *IfStmt) Pos() token.Pos        { return n.Position }
func (n *WhileStmt) Pos() token.Pos     { return n.Position }
func (n *ForStmt) Pos() token.Pos       { return n.Position }
func (n *MatchStmt) Pos() token.Pos     { return n.Position }
func (n *BreakStmt) Pos() token.Pos     { return n.Position }
func (n *ContinueStmt) Pos() token.Pos  { return n.Position }
func (n *ReturnStmt) Pos() token.Pos    { return n.Position }
func (n *ThrowStmt) Pos() token.Pos     { return n.Position }
func (n *TryStmt) Pos() token.Pos       { return n.Position }
func (n *GuardStmt) Pos() token.Pos     { return n.Position }
func (n *FuncDecl) Pos() token.Pos      { return n.Position }
func (n *StructDecl) Pos() token.Pos    { return n.Position }
func (n *EnumDecl) Pos() token.Pos      { return n.Position }
func (n *ExtensionDecl) Pos() token.Pos { return n.Position }
func (n *MixinDecl) Pos() token.Pos     { return n.Position }
func (n *ImportDecl) Pos() token.Pos    { return n.Position }

func (*ValDecl) stmtNode()       {}
func (*AssignStmt) stmtNode()    {}
func (*ExprStmt) stmtNode()      {}
func (*IfStmt) stmtNode()        {}
func (*WhileStmt) stmtNode()     {}
func (*ForStmt) stmtNode()       {}
func (*MatchStmt) stmtNode()     {}
func (*BreakStmt) stmtNode()     {}
func (*ContinueStmt) stmtNode()  {}
func (*ReturnStmt) stmtNode()    {}
func (*ThrowStmt) stmtNode()     {}
func (*TryStmt) stmtNode()       {}
func (*GuardStmt) stmtNode()     {}
func (*FuncDecl) stmtNode()      {}
func (*StructDecl) stmtNode()    {}
func (*EnumDecl) stmtNode()      {}
func (*ExtensionDecl) stmtNode() {}
func (*MixinDecl) stmtNode()     {}
func (*ImportDecl) stmtNode()    {}

func (*FuncDecl) declNode()      {}
func (*StructDecl) declNode()    {}
func (*EnumDecl) declNode()      {}
func (*ExtensionDecl) declNode() {}
func (*MixinDecl) declNode()     {}
func (*ImportDecl) declNode()    {}

func (n *ValDecl) Walk(v Visitor) {
	if n.Type != nil {
		Walk(v, n.Type)
	}
	Walk(v, n.Value)
}

func (n *AssignStmt) Walk(v Visitor) {
	Walk(v, n.Lhs)
	Walk(v, n.Value)
}

func (n *ExprStmt) Walk(v Visitor) { Walk(v, n.X) }

func (n *IfStmt) Walk(v Visitor) {
	Walk(v, n.Cond)
	Walk(v, n.Then)
	if n.Else != nil {
		Walk(v, n.Else)
	}
}

func (n *WhileStmt) Walk(v Visitor) {
	Walk(v, n.Cond)
	Walk(v, n.Body)
}

func (n *ForStmt) Walk(v Visitor) {
	Walk(v, n.Iterable)
	Walk(v, n.Body)
}

func (p *Pattern) Pos() token.Pos { return p.Position }
func (p *Pattern) Walk(v Visitor) {
	if p.Literal != nil {
		Walk(v, p.Literal)
	}
}

func (n *MatchStmt) Walk(v Visitor) {
	Walk(v, n.Control)
	for _, r := range n.Rules {
		for _, p := range r.Patterns {
			Walk(v, p)
		}
		Walk(v, r.Body)
	}
	if n.Else != nil {
		Walk(v, n.Else)
	}
}

func (n *BreakStmt) Walk(_ Visitor)    {}
func (n *ContinueStmt) Walk(_ Visitor) {}

func (n *ReturnStmt) Walk(v Visitor) {
	if n.Value != nil {
		Walk(v, n.Value)
	}
}

func (n *ThrowStmt) Walk(v Visitor) { Walk(v, n.Value) }

func (n *TryStmt) Walk(v Visitor) {
	Walk(v, n.Body)
	Walk(v, n.Handler)
}

func (n *GuardStmt) Walk(v Visitor) {
	Walk(v, n.Value)
	Walk(v, n.Body)
}

func (n *FuncDecl) Walk(v Visitor) {
	for _, p := range n.Params {
		if p.Type != nil {
			Walk(v, p.Type)
		}
	}
	Walk(v, n.Body)
}

func walkMembers(v Visitor, members []StructMember) {
	for _, m := range members {
		switch {
		case m.Method != nil:
			Walk(v, m.Method)
		case m.Operator != nil:
			Walk(v, m.Operator)
		case m.Nested != nil:
			Walk(v, m.Nested)
		case m.Field != nil:
			if m.Field.Type != nil {
				Walk(v, m.Field.Type)
			}
			if m.Field.Value != nil {
				Walk(v, m.Field.Value)
			}
		}
	}
}

func (n *StructDecl) Walk(v Visitor) { walkMembers(v, n.Members) }

func (n *EnumDecl) Walk(v Visitor) {
	for _, c := range n.Cases {
		for i := range c.Payload {
			Walk(v, &c.Payload[i])
		}
	}
	walkMembers(v, n.Members)
}

func (n *ExtensionDecl) Walk(v Visitor) { walkMembers(v, n.Members) }
func (n *MixinDecl) Walk(v Visitor)     { walkMembers(v, n.Members) }
func (n *ImportDecl) Walk(_ Visitor)    {}
