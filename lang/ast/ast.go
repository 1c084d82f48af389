// Package ast defines the abstract syntax tree consumed by the resolver and
// compiler packages. The grammar/parser that turns source text into these
// node values is an external collaborator; this package only
// specifies the node shapes that collaborator must produce.
package ast

import "github.com/egranata/aria-sub001/lang/token"

// Node is the interface implemented by every AST node.
type Node interface {
	// Pos returns the position of the first token of the node.
	Pos() token.Pos
	// Walk visits the node's children, in source order, with v.
	Walk(v Visitor)
}

// Expr is the interface implemented by every expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is the interface implemented by every statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Decl is the interface implemented by declaration-level statements (func,
// struct, enum, extension, mixin, import). Every Decl is also a Stmt, since
// declarations are only valid at statement position.
type Decl interface {
	Stmt
	declNode()
}

// Block is a sequence of statements sharing a lexical scope.
type Block struct {
	Start token.Pos
	Stmts []Stmt
}

func (b *Block) Pos() token.Pos { return b.Start }
func (b *Block) Walk(v Visitor) {
	for _, s := range b.Stmts {
		Walk(v, s)
	}
}

// Chunk is the root of a compiled unit: a module's top-level block.
type Chunk struct {
	Name  string // filename, used for source locations
	Block *Block
}

func (c *Chunk) Pos() token.Pos { return c.Block.Pos() }
func (c *Chunk) Walk(v Visitor) { Walk(v, c.Block) }
