package match

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/forgebuild/forgebuild/internal/errs"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokFilter
	tokThis
	tokParent
	tokScope
	tokTree
	tokAnd
	tokOr
	tokNot
	tokSep
	tokEOF
)

type token struct {
	kind tokenKind
	lit  string
}

func (k tokenKind) isOperator() bool {
	return k == tokAnd || k == tokOr || k == tokNot || k == tokSep
}

// tokenize lowercases identifier/filter bodies (case-insensitive matching)
// while preserving the raw text of operator tokens for error messages.
func tokenize(expr string) ([]token, error) {
	var toks []token

	runes := []rune(expr)
	i := 0

	for i < len(runes) {
		c := runes[i]

		switch {
		case c == ',':
			toks = append(toks, token{tokSep, ","})
			i++
		case c == '&':
			toks = append(toks, token{tokAnd, "&"})
			i++
		case c == '|':
			toks = append(toks, token{tokOr, "|"})
			i++
		case c == '^':
			toks = append(toks, token{tokNot, "^"})
			i++
		case c == '/':
			if i+1 < len(runes) && runes[i+1] == '/' {
				toks = append(toks, token{tokTree, "//"})
				i += 2
			} else {
				toks = append(toks, token{tokScope, "/"})
				i++
			}
		case isIdentChar(c) || c == '*' || c == '?' || c == '.':
			// '.' is an ordinary identifier/filter character here, so
			// "foo.c" and "*.c" lex as one token. A token that ends up
			// exactly "." or ".." is reclassified as THIS/PARENT below;
			// a dot embedded inside a longer token is never special.
			start := i
			hasWildcard := false

			for i < len(runes) && (isIdentChar(runes[i]) || runes[i] == '*' || runes[i] == '?' || runes[i] == '.') {
				if runes[i] == '*' || runes[i] == '?' {
					hasWildcard = true
				}

				i++
			}

			lit := strings.ToLower(string(runes[start:i]))

			switch {
			case lit == ".":
				toks = append(toks, token{tokThis, "."})
			case lit == "..":
				toks = append(toks, token{tokParent, ".."})
			case hasWildcard:
				toks = append(toks, token{tokFilter, lit})
			default:
				toks = append(toks, token{tokIdent, lit})
			}
		default:
			return nil, errs.Errorf("match: unexpected character %q in expression %q", string(c), expr)
		}
	}

	toks = append(toks, token{tokEOF, ""})

	return collapseDoubleStar(toks), nil
}

// collapseDoubleStar rewrites a "**" segment into the TREE separator its
// "//" form already compiles to: "a/**/b" and "a//b" are accepted as
// synonyms, and a lone leading or trailing "**" marks the chain as
// tree-rooted at that end.
func collapseDoubleStar(toks []token) []token {
	out := make([]token, 0, len(toks))

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tokFilter || t.lit != "**" {
			out = append(out, t)
			continue
		}

		if len(out) > 0 && out[len(out)-1].kind == tokScope {
			out = out[:len(out)-1]
		}

		out = append(out, token{tokTree, "//"})

		if i+1 < len(toks) && toks[i+1].kind == tokScope {
			i++
		}
	}

	return out
}

func isIdentChar(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// validateAdjacency enforces the expression language's syntactic rules
// after tokenizing: operators may not directly follow themselves,
// scope/tree, or another operator, except that the prefix "^" may open the
// operand of "&", "|" or ","; and "//" may not follow "//", "/", "..",
// "&", "|".
func validateAdjacency(toks []token) error {
	for i := 1; i < len(toks); i++ {
		prev, cur := toks[i-1], toks[i]

		if cur.kind.isOperator() {
			prefixNot := cur.kind == tokNot && (prev.kind == tokAnd || prev.kind == tokOr || prev.kind == tokSep)
			if !prefixNot && (prev.kind.isOperator() || prev.kind == tokScope || prev.kind == tokTree) {
				return errs.Errorf("match: unexpected %q after %q", cur.lit, prev.lit)
			}
		}

		if cur.kind == tokTree {
			switch prev.kind {
			case tokTree, tokScope, tokParent, tokAnd, tokOr:
				return errs.Errorf("match: unexpected %q after %q", cur.lit, prev.lit)
			}
		}
	}

	return nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token    { return p.toks[p.pos] }
func (p *parser) atEnd() bool    { return p.peek().kind == tokEOF }
func (p *parser) advance() token { t := p.toks[p.pos]; p.pos++; return t }

// parseExpr := term (SEP term)*
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokSep {
		p.advance()

		right, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		left = binOp{op: ',', left: left, right: right}
	}

	return left, nil
}

// parseOr := and ('|' and)*
func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokOr {
		p.advance()

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = binOp{op: '|', left: left, right: right}
	}

	return left, nil
}

// parseAnd := not ('&' not)*
func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokAnd {
		p.advance()

		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		left = binOp{op: '&', left: left, right: right}
	}

	return left, nil
}

// parseNot := '^' not | scope
func (p *parser) parseNot() (node, error) {
	if p.peek().kind == tokNot {
		p.advance()

		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return notOp{operand: operand}, nil
	}

	return p.parseScope()
}

// parseScope := path (('/' | '//') path)*
//
// A trailing "/" or "//" with no following path atom implicitly appends
// "*".
func (p *parser) parseScope() (node, error) {
	chain := scopeChain{}

	startSep := sepStart
	if p.peek().kind == tokTree {
		p.advance()

		startSep = sepTree
	}

	a, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	chain.seps = append(chain.seps, startSep)
	chain.atoms = append(chain.atoms, a)

	for p.peek().kind == tokScope || p.peek().kind == tokTree {
		s := sepScope
		if p.peek().kind == tokTree {
			s = sepTree
		}

		p.advance()

		if p.atEnd() || !isAtomStart(p.peek().kind) {
			chain.seps = append(chain.seps, s)
			chain.atoms = append(chain.atoms, wildcardAtom())

			break
		}

		a, err := p.parseAtom()
		if err != nil {
			return nil, err
		}

		chain.seps = append(chain.seps, s)
		chain.atoms = append(chain.atoms, a)
	}

	return chain, nil
}

func isAtomStart(k tokenKind) bool {
	return k == tokIdent || k == tokFilter || k == tokThis || k == tokParent
}

func (p *parser) parseAtom() (atom, error) {
	t := p.advance()

	switch t.kind {
	case tokThis:
		return atom{kind: atomThis, literal: "."}, nil
	case tokParent:
		return atom{kind: atomParent, literal: ".."}, nil
	case tokIdent:
		g, err := glob.Compile(t.lit)
		if err != nil {
			return atom{}, errs.WithStackTrace(err)
		}

		return atom{kind: atomIdentifier, literal: t.lit, glob: g}, nil
	case tokFilter:
		g, err := glob.Compile(t.lit)
		if err != nil {
			return atom{}, errs.WithStackTrace(err)
		}

		return atom{kind: atomFilter, literal: t.lit, glob: g}, nil
	default:
		return atom{}, errs.Errorf("match: expected path component, got %q", t.lit)
	}
}

func wildcardAtom() atom {
	g, _ := glob.Compile("*")
	return atom{kind: atomFilter, literal: "*", glob: g}
}
