// Package match compiles and evaluates file-set expressions: a
// recursive-descent combinator language over path-component sequences
// supporting tree wildcards ("**"/"//"), alternation ("|"), conjunction
// ("&"), negation ("^") and separator-joined alternatives (",").
//
// Per-component wildcard matching (the "*"/"?" bodies of an IDENTIFIER or
// FILTER token) is delegated to github.com/gobwas/glob; this package
// supplies only the structural combinators gobwas/glob doesn't have.
package match

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/pathutil"
)

// Kind is the fast-path classification cached on a compiled Program, so
// evaluators can special-case trivial expressions without walking the AST.
type Kind int

const (
	KindGeneric Kind = iota
	KindExactID
	KindThis
	KindSingleLevelWildcard
	KindTreeWildcard
)

// Program is the compiled form of a glob expression.
type Program struct {
	root   node
	Kind   Kind
	source string
}

// String returns the original expression the Program was compiled from.
func (p *Program) String() string { return p.source }

// Compile parses expr into a Program. Compilation lowercases wildcard bodies
// for case-insensitive matching and validates adjacency: "&", "|", "^", ","
// may not follow themselves, a scope/tree token, or another operator, except
// that "^" may directly follow "&", "|" or ","; "//" may not follow "//",
// "/", "..", "&", "|".
func Compile(expr string) (*Program, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}

	if err := validateAdjacency(toks); err != nil {
		return nil, err
	}

	p := &parser{toks: toks}

	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if !p.atEnd() {
		return nil, errs.Errorf("match: unexpected trailing token %q", p.peek().lit)
	}

	return &Program{root: root, Kind: classify(root), source: expr}, nil
}

// MustCompile is like Compile but panics on error; used for compile-time
// constant expressions such as a driver's built-in patterns.
func MustCompile(expr string) *Program {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}

	return p
}

// Match reports whether path satisfies the compiled expression. path is
// tokenized with pathutil.Tokenize before evaluation.
func (p *Program) Match(path string) (bool, error) {
	components, err := pathutil.Tokenize(path)
	if err != nil {
		return false, err
	}

	return p.root.eval(components), nil
}

// Match is a convenience one-shot form of Compile(expr).Match(path).
func Match(expr, path string) (bool, error) {
	prog, err := Compile(expr)
	if err != nil {
		return false, err
	}

	return prog.Match(path)
}

// --- AST ---

type sep int

const (
	sepStart sep = iota
	sepScope        // single "/"
	sepTree         // "//"
)

type atomKind int

const (
	atomIdentifier atomKind = iota
	atomFilter
	atomThis
	atomParent
)

type atom struct {
	kind    atomKind
	literal string
	glob    glob.Glob
}

func (a atom) matches(component string) bool {
	switch a.kind {
	case atomThis:
		return false // "." as a literal path component never appears; see scopeChain.eval
	case atomParent:
		return component == ".."
	default:
		return a.glob.Match(strings.ToLower(component))
	}
}

// scopeChain is "path (('/' | '//') path)*": an ordered walk over path
// components threaded by a single cursor.
type scopeChain struct {
	seps  []sep // seps[i] precedes atoms[i]; seps[0] == sepStart
	atoms []atom
}

type binOp struct {
	op    byte // '&', '|', ','
	left  node
	right node
}

type notOp struct {
	operand node
}

type node interface {
	eval(components []string) bool
}

func (c scopeChain) eval(components []string) bool {
	return c.matchFrom(0, components, 0)
}

func (c scopeChain) matchFrom(idx int, components []string, pos int) bool {
	if idx >= len(c.atoms) {
		return pos == len(components)
	}

	a := c.atoms[idx]
	s := c.seps[idx]

	if a.kind == atomThis {
		// THIS asserts "no component present here" and consumes nothing.
		if pos != len(components) {
			return false
		}

		return c.matchFrom(idx+1, components, pos)
	}

	switch s {
	case sepStart, sepScope:
		if pos >= len(components) {
			return false
		}

		if !a.matches(components[pos]) {
			return false
		}

		return c.matchFrom(idx+1, components, pos+1)
	case sepTree:
		for skip := 0; pos+skip < len(components); skip++ {
			if a.matches(components[pos+skip]) && c.matchFrom(idx+1, components, pos+skip+1) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func (b binOp) eval(components []string) bool {
	switch b.op {
	case '&':
		return b.left.eval(components) && b.right.eval(components)
	case '|', ',':
		return b.left.eval(components) || b.right.eval(components)
	default:
		return false
	}
}

func (n notOp) eval(components []string) bool {
	return !n.operand.eval(components)
}

func classify(n node) Kind {
	chain, ok := n.(scopeChain)
	if !ok {
		return KindGeneric
	}

	switch {
	case len(chain.atoms) == 1 && chain.atoms[0].kind == atomThis:
		return KindThis
	case len(chain.atoms) == 1 && chain.atoms[0].kind == atomIdentifier && chain.seps[0] != sepTree:
		return KindExactID
	case len(chain.atoms) == 1 && chain.atoms[0].literal == "*" && chain.seps[0] == sepTree:
		return KindTreeWildcard
	case len(chain.atoms) == 1 && chain.atoms[0].literal == "*" && chain.seps[0] != sepTree:
		return KindSingleLevelWildcard
	default:
		return KindGeneric
	}
}
