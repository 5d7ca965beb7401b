package dsl

import (
	"strconv"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// parser is the shared token-stream cursor used by both the concept-file
// and sync-file grammars. Tokens are materialized eagerly (concept/sync
// files are small) so lookahead is just slice indexing.
type parser struct {
	file   string
	tokens []Token
	pos    int
}

func newParser(file, src string) (*parser, error) {
	lx := NewLexer(file, src)
	var tokens []Token
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokEOF {
			break
		}
	}
	return &parser{file: file, tokens: tokens}, nil
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) Token {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

func (p *parser) advance() Token {
	tok := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) atEOF() bool {
	return p.peek().Kind == TokEOF
}

func (p *parser) errorf(format string, args ...any) *gqlerror.Error {
	return NewParseError(p.peek().Pos, format, args...)
}

func (p *parser) expectPunct(text string) (Token, error) {
	tok := p.peek()
	if tok.Kind != TokPunct || tok.Text != text {
		return Token{}, p.errorf("expected %q, got %q", text, tok.Text)
	}
	return p.advance(), nil
}

func (p *parser) tryPunct(text string) bool {
	tok := p.peek()
	if tok.Kind == TokPunct && tok.Text == text {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectIdent() (Token, error) {
	tok := p.peek()
	if tok.Kind != TokIdent {
		return Token{}, p.errorf("expected identifier, got %q", tok.Text)
	}
	return p.advance(), nil
}

func (p *parser) expectKeyword(kw string) (Token, error) {
	tok := p.peek()
	if tok.Kind != TokIdent || tok.Text != kw {
		return Token{}, p.errorf("expected keyword %q, got %q", kw, tok.Text)
	}
	return p.advance(), nil
}

func (p *parser) tryKeyword(kw string) bool {
	tok := p.peek()
	if tok.Kind == TokIdent && tok.Text == kw {
		p.advance()
		return true
	}
	return false
}

func (p *parser) isKeyword(kw string) bool {
	tok := p.peek()
	return tok.Kind == TokIdent && tok.Text == kw
}

// parseTypeExpr parses a type-expression context, where `set`, `list`,
// `option`, and `mapping` are keywords rather than plain identifiers.
func (p *parser) parseTypeExpr() (TypeExpr, error) {
	start := p.peek().Pos
	switch {
	case p.tryKeyword("set"):
		elem, err := p.parseTypeExpr()
		if err != nil {
			return TypeExpr{}, err
		}
		return TypeExpr{Kind: TypeSet, Elem: &elem, Pos: start}, nil
	case p.tryKeyword("list"):
		elem, err := p.parseTypeExpr()
		if err != nil {
			return TypeExpr{}, err
		}
		return TypeExpr{Kind: TypeList, Elem: &elem, Pos: start}, nil
	case p.tryKeyword("option"):
		elem, err := p.parseTypeExpr()
		if err != nil {
			return TypeExpr{}, err
		}
		return TypeExpr{Kind: TypeOption, Elem: &elem, Pos: start}, nil
	case p.tryKeyword("mapping"):
		if _, err := p.expectPunct("("); err != nil {
			return TypeExpr{}, err
		}
		key, err := p.parseTypeExpr()
		if err != nil {
			return TypeExpr{}, err
		}
		if _, err := p.expectPunct(","); err != nil {
			return TypeExpr{}, err
		}
		val, err := p.parseTypeExpr()
		if err != nil {
			return TypeExpr{}, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return TypeExpr{}, err
		}
		return TypeExpr{Kind: TypeMap, Key: &key, Val: &val, Pos: start}, nil
	}

	name, err := p.expectIdent()
	if err != nil {
		return TypeExpr{}, err
	}
	base := baseTypeExprFromName(name.Text, start)

	// `K -> V` mapping sugar, and `T?` option sugar.
	if p.tryPunct("-") {
		if _, err := p.expectPunct(">"); err != nil {
			// support "->" lexed as one punct too
		}
	}
	if p.peek().Kind == TokPunct && p.peek().Text == "->" {
		p.advance()
		val, err := p.parseTypeExpr()
		if err != nil {
			return TypeExpr{}, err
		}
		return TypeExpr{Kind: TypeMap, Key: &base, Val: &val, Pos: start}, nil
	}
	if p.tryPunct("?") {
		return TypeExpr{Kind: TypeOption, Elem: &base, Pos: start}, nil
	}
	return base, nil
}

func baseTypeExprFromName(name string, pos Position) TypeExpr {
	switch name {
	case "String", "Int", "Bool", "Bytes", "DateTime", "Float":
		return TypeExpr{Kind: TypePrimitive, Name: name, Pos: pos}
	default:
		return TypeExpr{Kind: TypeParamRef, Name: name, Pos: pos}
	}
}

// parseParamList parses `(name: Type, name: Type, ...)`.
func (p *parser) parseParamList() ([]Param, error) {
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var params []Param
	for !p.tryPunct(")") {
		if len(params) > 0 {
			if _, err := p.expectPunct(","); err != nil {
				return nil, err
			}
			if p.tryPunct(")") {
				break
			}
		}
		nameTok, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		typ, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		params = append(params, Param{Name: nameTok.Text, Type: typ, Pos: nameTok.Pos})
	}
	return params, nil
}

// parseAnnotations parses zero or more leading `@name` / `@name(N)`
// annotations attached to the following declaration.
func (p *parser) parseAnnotations() ([]Annotation, error) {
	var anns []Annotation
	for p.peek().Kind == TokAt {
		at := p.advance()
		nameTok, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		ann := Annotation{Name: nameTok.Text, Pos: at.Pos}
		if p.tryPunct("(") {
			numTok := p.advance()
			if numTok.Kind != TokInt {
				return nil, p.errorf("expected integer argument to @%s", nameTok.Text)
			}
			n, err := strconv.Atoi(numTok.Text)
			if err != nil {
				return nil, p.errorf("invalid integer argument to @%s: %s", nameTok.Text, numTok.Text)
			}
			ann.Arg = &n
			if _, err := p.expectPunct(")"); err != nil {
				return nil, err
			}
		}
		anns = append(anns, ann)
	}
	return anns, nil
}

// parseValueExpr parses a literal, `?variable`, or `_` wildcard.
func (p *parser) parseValueExpr() (ValueExpr, error) {
	tok := p.peek()
	switch {
	case tok.Kind == TokString:
		p.advance()
		return ValueExpr{Kind: ValueLiteral, Literal: tok.Text, Pos: tok.Pos}, nil
	case tok.Kind == TokInt:
		p.advance()
		n, _ := strconv.ParseInt(tok.Text, 10, 64)
		return ValueExpr{Kind: ValueLiteral, Literal: n, Pos: tok.Pos}, nil
	case tok.Kind == TokFloat:
		p.advance()
		f, _ := strconv.ParseFloat(tok.Text, 64)
		return ValueExpr{Kind: ValueLiteral, Literal: f, Pos: tok.Pos}, nil
	case tok.Kind == TokIdent && (tok.Text == "true" || tok.Text == "false"):
		p.advance()
		return ValueExpr{Kind: ValueLiteral, Literal: tok.Text == "true", Pos: tok.Pos}, nil
	case tok.Kind == TokPunct && tok.Text == "?":
		p.advance()
		nameTok, err := p.expectIdent()
		if err != nil {
			return ValueExpr{}, err
		}
		return ValueExpr{Kind: ValueVariable, VarName: nameTok.Text, Pos: tok.Pos}, nil
	case tok.Kind == TokPunct && tok.Text == "_":
		p.advance()
		return ValueExpr{Kind: ValueWildcard, Pos: tok.Pos}, nil
	default:
		return ValueExpr{}, p.errorf("expected value, variable, or wildcard, got %q", tok.Text)
	}
}

// parseBindingList parses `name: value, name: value, ...` inside `(...)`
// or `[...]`, stopping at close.
func (p *parser) parseBindingList(closePunct string) ([]Binding, error) {
	var bindings []Binding
	for !p.tryPunct(closePunct) {
		if len(bindings) > 0 {
			if _, err := p.expectPunct(","); err != nil {
				return nil, err
			}
			if p.tryPunct(closePunct) {
				break
			}
		}
		nameTok, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		val, err := p.parseValueExpr()
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, Binding{Name: nameTok.Text, Value: val, Pos: nameTok.Pos})
	}
	return bindings, nil
}

// parseBraceText captures raw text between a `{` and its matching `}`,
// used for free-form `purpose` and variant description bodies.
func (p *parser) parseBraceText() (string, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return "", err
	}
	depth := 1
	var out []byte
	for depth > 0 {
		tok := p.peek()
		if tok.Kind == TokEOF {
			return "", p.errorf("unterminated block")
		}
		if tok.Kind == TokPunct && tok.Text == "{" {
			depth++
		}
		if tok.Kind == TokPunct && tok.Text == "}" {
			depth--
			if depth == 0 {
				p.advance()
				break
			}
		}
		if tok.Kind == TokString {
			out = append(out, []byte(tok.Text)...)
		} else {
			out = append(out, []byte(tok.Text)...)
		}
		out = append(out, ' ')
		p.advance()
	}
	return string(out), nil
}
