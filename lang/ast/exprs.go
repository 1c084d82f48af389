package ast

import "github.com/egranata/aria-sub001/lang/token"

// OpRHS pairs an operator with a right-hand operand, used by the left-
// associative chain expressions (Add, Mul, Shift —).
type OpRHS struct {
	Op  token.Token
	Rhs Expr
}

type (
	// IntLiteral is an integer literal, e.g. 42.
	IntLiteral struct {
		Position token.Pos
		Value    int64
	}

	// FloatLiteral is a float literal; the source grammar requires an explicit
	// `f` suffix — that is enforced by the
	// (external) parser, not by this node.
	FloatLiteral struct {
		Position token.Pos
		Value    float64
	}

	// StringLiteral is a string literal.
	StringLiteral struct {
		Position token.Pos
		Value    string
	}

	// Identifier is a bare name reference.
	Identifier struct {
		Position token.Pos
		Name     string
	}

	// ListLiteral is a `[e0, e1, ...]` literal.
	ListLiteral struct {
		Position token.Pos
		Elems    []Expr
	}

	// AddExpr is a left-associative chain of `+`/`-` operators.
	AddExpr struct {
		Position token.Pos
		Left     Expr
		Rest     []OpRHS // Op is PLUS or MINUS
	}

	// MulExpr is a left-associative chain of `*`/`/`/`%` operators.
	MulExpr struct {
		Position token.Pos
		Left     Expr
		Rest     []OpRHS // Op is STAR, SLASH or PERCENT
	}

	// ShiftExpr is a left-associative chain of `<<`/`>>` operators.
	ShiftExpr struct {
		Position token.Pos
		Left     Expr
		Rest     []OpRHS // Op is LTLT or GTGT
	}

	// BitExpr is a left-associative chain of `&`/`|`/`^` operators.
	BitExpr struct {
		Position token.Pos
		Left     Expr
		Rest     []OpRHS // Op is AMPERSAND, PIPE or CIRCUMFLEX
	}

	// CompExpr is an equality/type comparison: ==, !=, isa.
	CompExpr struct {
		Position    token.Pos
		Op          token.Token // EQL, NEQ, or ISA
		Left, Right Expr
	}

	// RelExpr is a relational comparison: <, <=, >, >=.
	RelExpr struct {
		Position    token.Pos
		Op          token.Token
		Left, Right Expr
	}

	// LogicExpr is a short-circuiting `and`/`or` expression.
	LogicExpr struct {
		Position    token.Pos
		Op          token.Token // AND or OR
		Left, Right Expr
	}

	// UnaryExpr is a prefix unary operator: -x, !x, ~x.
	UnaryExpr struct {
		Position token.Pos
		Op       token.Token // UMINUS, NOT, or TILDE
		Operand  Expr
	}

	// TernaryExpr is `cond ? then : els`.
	TernaryExpr struct {
		Position        token.Pos
		Cond, Then, Els Expr
	}

	// LambdaExpr is an anonymous function literal: |args| => body.
	LambdaExpr struct {
		Position token.Pos
		Params   []string
		Vararg   bool
		Body     *Block
	}

	// CallExpr is a function call `callee(args...)`.
	CallExpr struct {
		Position token.Pos
		Callee   Expr
		Args     []Expr
	}

	// AttrExpr is a postfix attribute access `recv.name`.
	AttrExpr struct {
		Position token.Pos
		Recv     Expr
		Name     string
	}

	// IndexExpr is a postfix index access `recv[index]`.
	IndexExpr struct {
		Position    token.Pos
		Recv, Index Expr
	}

	// OptTryExpr is the `expr??` postfix operator.
	OptTryExpr struct {
		Position token.Pos
		Operand  Expr
	}

	// OptForceExpr is the `expr!!` postfix operator.
	OptForceExpr struct {
		Position token.Pos
		Operand  Expr
	}

	// SigilExpr is the postfix `expr@name` operator: looks up name in the
	// VM's sigil registry (populated by the `register_sigil` builtin) and
	// calls the registered function with the evaluated operand as its sole
	// argument.
	SigilExpr struct {
		Position token.Pos
		Operand  Expr
		Name     string
	}

	// EnumConstructExpr constructs an enum case value, e.g. `Shape::Circle(3)`.
	EnumConstructExpr struct {
		Position token.Pos
		Enum     string
		Case     string
		Args     []Expr // empty for a payload-less case
	}

	// TypeRef is a type-annotation expression (`: T`), evaluated to a Type
	// value consumed by DefineTyped. A nil *TypeRef means no annotation was written.
	TypeRef struct {
		Position token.Pos
		Name     string // "Int", "Float", "Bool", "String", "List", "Type", "Any", or a user type name
	}
)

func (n *IntLiteral) Pos() token.Pos        { return n.Position }
func (n *FloatLiteral) Pos() token.Pos      { return n.Position }
func (n *StringLiteral) Pos() token.Pos     { return n.Position }
func (n *Identifier) Pos() token.Pos        { return n.Position }
func (n *ListLiteral) Pos() token.Pos       { return n.Position }
func (n *AddExpr) Pos() token.Pos           { return n.Position }
func (n *MulExpr) Pos() token.Pos           { return n.Position }
func (n *ShiftExpr) Pos() token.Pos         { return n.Position }
func (n *BitExpr) Pos() token.Pos           { return n.Position }
func (n *CompExpr) Pos() token.Pos          { return n.Position }
func (n *RelExpr) Pos() token.Pos           { return n.Position }
func (n *LogicExpr) Pos() token.Pos         { return n.Position }
func (n *UnaryExpr) Pos() token.Pos         { return n.Position }
func (n *TernaryExpr) Pos() token.Pos       { return n.Position }
func (n *LambdaExpr) Pos() token.Pos        { return n.Position }
func (n *CallExpr) Pos() token.Pos          { return n.Position }
func (n *AttrExpr) Pos() token.Pos          { return n.Position }
func (n *IndexExpr) Pos() token.Pos         { return n.Position }
func (n *OptTryExpr) Pos() token.Pos        { return n.Position }
func (n *OptForceExpr) Pos() token.Pos      { return n.Position }
func (n *SigilExpr) Pos() token.Pos         { return n.Position }
func (n *EnumConstructExpr) Pos() token.Pos { return n.Position }
func (n *TypeRef) Pos() token.Pos           { return n.Position }

func (*IntLiteral) exprNode()        {}
func (*FloatLiteral) exprNode()      {}
func (*StringLiteral) exprNode()     {}
func (*Identifier) exprNode()        {}
func (*ListLiteral) exprNode()       {}
func (*AddExpr) exprNode()           {}
func (*MulExpr) exprNode()           {}
func (*ShiftExpr) exprNode()         {}
func (*BitExpr) exprNode()           {}
func (*CompExpr) exprNode()          {}
func (*RelExpr) exprNode()           {}
func (*LogicExpr) exprNode()         {}
func (*UnaryExpr) exprNode()         {}
func (*TernaryExpr) exprNode()       {}
func (*LambdaExpr) exprNode()        {}
func (*CallExpr) exprNode()          {}
func (*AttrExpr) exprNode()          {}
func (*IndexExpr) exprNode()         {}
func (*OptTryExpr) exprNode()        {}
func (*OptForceExpr) exprNode()      {}
func (*SigilExpr) exprNode()         {}
func (*EnumConstructExpr) exprNode() {}
func (*TypeRef) exprNode()           {}

func (n *IntLiteral) Walk(_ Visitor)    {}
func (n *FloatLiteral) Walk(_ Visitor)  {}
func (n *StringLiteral) Walk(_ Visitor) {}
func (n *Identifier) Walk(_ Visitor)    {}
func (n *TypeRef) Walk(_ Visitor)       {}

func (n *ListLiteral) Walk(v Visitor) {
	for _, e := range n.Elems {
		Walk(v, e)
	}
}

func (n *AddExpr) Walk(v Visitor)   { walkChain(v, n.Left, n.Rest) }
func (n *MulExpr) Walk(v Visitor)   { walkChain(v, n.Left, n.Rest) }
func (n *ShiftExpr) Walk(v Visitor) { walkChain(v, n.Left, n.Rest) }
func (n *BitExpr) Walk(v Visitor)   { walkChain(v, n.Left, n.Rest) }

func walkChain(v Visitor, left Expr, rest []OpRHS) {
	Walk(v, left)
	for _, r := range rest {
		Walk(v, r.Rhs)
	}
}

func (n *CompExpr) Walk(v Visitor)  { Walk(v, n.Left); Walk(v, n.Right) }
func (n *RelExpr) Walk(v Visitor)   { Walk(v, n.Left); Walk(v, n.Right) }
func (n *LogicExpr) Walk(v Visitor) { Walk(v, n.Left); Walk(v, n.Right) }
func (n *UnaryExpr) Walk(v Visitor) { Walk(v, n.Operand) }
func (n *TernaryExpr) Walk(v Visitor) {
	Walk(v, n.Cond)
	Walk(v, n.Then)
	Walk(v, n.Els)
}

func (n *LambdaExpr) Walk(v Visitor) { Walk(v, n.Body) }

func (n *CallExpr) Walk(v Visitor) {
	Walk(v, n.Callee)
	for _, a := range n.Args {
		Walk(v, a)
	}
}

func (n *AttrExpr) Walk(v Visitor)     { Walk(v, n.Recv) }
func (n *IndexExpr) Walk(v Visitor)    { Walk(v, n.Recv); Walk(v, n.Index) }
func (n *OptTryExpr) Walk(v Visitor)   { Walk(v, n.Operand) }
func (n *OptForceExpr) Walk(v Visitor) { Walk(v, n.Operand) }
func (n *SigilExpr) Walk(v Visitor)    { Walk(v, n.Operand) }

func (n *EnumConstructExpr) Walk(v Visitor) {
	for _, a := range n.Args {
		Walk(v, a)
	}
}
