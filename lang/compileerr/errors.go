// Package compileerr defines the compile-time error taxonomy shared by
// lang/resolver and lang/compiler, kept in its own leaf package so that
// both can report errors without creating an import cycle between them.
package compileerr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/egranata/aria-sub001/lang/token"
)

// Kind discriminates the compile-time error taxonomy.
type Kind uint8

const (
	TooManyArguments Kind = iota
	FlowControlNotAllowed
	InvalidLiteral
	ReservedIdentifier
	ListTooLarge
	DuplicateArgumentName
	OutOfConstantSpace
	UndefinedIdentifier
	// MatchWithoutElseAsExpression: a match used as an expression (its
	// value consumed) must have an else clause.
	MatchWithoutElseAsExpression
)

var kindNames = [...]string{
	TooManyArguments:             "too many arguments",
	FlowControlNotAllowed:        "break/continue not allowed here",
	InvalidLiteral:               "invalid literal",
	ReservedIdentifier:           "reserved identifier",
	ListTooLarge:                 "list literal too large",
	DuplicateArgumentName:        "duplicate argument name",
	OutOfConstantSpace:           "out of constant space",
	UndefinedIdentifier:          "undefined identifier",
	MatchWithoutElseAsExpression: "match used as an expression must have an else clause",
}

func (k Kind) String() string { return kindNames[k] }

// Error is a single compile-time error, located at the AST node that
// produced it.
type Error struct {
	Kind Kind
	Pos  token.Pos
	Msg  string
}

func (e *Error) Error() string {
	line, col := e.Pos.LineCol()
	if e.Msg == "" {
		return fmt.Sprintf("%d:%d: %s", line, col, e.Kind)
	}
	return fmt.Sprintf("%d:%d: %s: %s", line, col, e.Kind, e.Msg)
}

// New builds an *Error, grounded on the original's scanner.ErrorList
// one-error-per-site convention.
func New(kind Kind, pos token.Pos, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// List collects every error produced while compiling a module, so that a
// batch can be reported at once.
type List []*Error

func (l List) Error() string {
	var sb strings.Builder
	for i, e := range l {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.Error())
	}
	return sb.String()
}

// Sort orders the error list by source position, for deterministic,
// readable batch reporting.
func (l List) Sort() {
	sort.Slice(l, func(i, j int) bool { return l[i].Pos < l[j].Pos })
}

// Err returns l as an error, or nil if l is empty.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
