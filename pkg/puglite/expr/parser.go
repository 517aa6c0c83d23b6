package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Precedence levels for operators
const (
	_ int = iota
	LOWEST
	CONDITIONAL // a ? b : c
	NULLISH     // ??
	LOGIC_OR    // ||
	LOGIC_AND   // &&
	EQUALS      // == != === !==
	LESSGREATER // < > <= >= in
	SUM         // + -
	PRODUCT     // * / %
	EXPONENT    // **
	PREFIX      // -x !x typeof x
	MEMBER      // a.b a[b] a(b)
)

var precedences = map[string]int{
	"?":   CONDITIONAL,
	"??":  NULLISH,
	"||":  LOGIC_OR,
	"&&":  LOGIC_AND,
	"==":  EQUALS,
	"!=":  EQUALS,
	"===": EQUALS,
	"!==": EQUALS,
	"<":   LESSGREATER,
	">":   LESSGREATER,
	"<=":  LESSGREATER,
	">=":  LESSGREATER,
	"in":  LESSGREATER,
	"+":   SUM,
	"-":   SUM,
	"*":   PRODUCT,
	"/":   PRODUCT,
	"%":   PRODUCT,
	"**":  EXPONENT,
	".":   MEMBER,
	"?.":  MEMBER,
	"[":   MEMBER,
	"(":   MEMBER,
}

type (
	prefixParseFn func() (Node, error)
	infixParseFn  func(Node) (Node, error)
)

// Parser is a Pratt parser over expression tokens.
type Parser struct {
	toks []Token
	pos  int

	curToken  Token
	peekToken Token

	prefixParseFns map[TokenType]prefixParseFn
	infixParseFns  map[string]infixParseFn
}

// Parse parses src as a single expression. Trailing tokens are an error.
func Parse(src string) (Node, error) {
	toks, err := NewLexer(src).Tokens()
	if err != nil {
		return nil, err
	}
	p := newParser(toks)
	if p.curToken.Type == EOF {
		return nil, &SyntaxError{Pos: 0, Msg: "empty expression"}
	}
	n, err := p.parseExpression(LOWEST)
	if err != nil {
		return nil, err
	}
	if p.peekToken.Type != EOF {
		return nil, &SyntaxError{Pos: p.peekToken.Pos, Msg: fmt.Sprintf("unexpected %q", p.peekToken.Value)}
	}
	return n, nil
}

// MustParse is like Parse but panics on error. It is intended for
// expressions built by the compiler itself.
func MustParse(src string) Node {
	n, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return n
}

func newParser(toks []Token) *Parser {
	p := &Parser{toks: toks}

	p.prefixParseFns = map[TokenType]prefixParseFn{
		IDENT:    p.parseIdentifier,
		NUMBER:   p.parseNumber,
		STRING:   p.parseString,
		TEMPLATE: p.parseTemplate,
		KEYWORD:  p.parseKeyword,
		PUNCT:    p.parsePunctPrefix,
	}

	p.infixParseFns = map[string]infixParseFn{
		"?":  p.parseConditional,
		".":  p.parseMember,
		"?.": p.parseMember,
		"[":  p.parseIndex,
		"(":  p.parseCall,
	}
	for op := range precedences {
		if _, ok := p.infixParseFns[op]; !ok {
			p.infixParseFns[op] = p.parseBinary
		}
	}

	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	if p.pos < len(p.toks) {
		p.peekToken = p.toks[p.pos]
		p.pos++
	} else {
		p.peekToken = Token{Type: EOF}
	}
}

func (p *Parser) peekIs(value string) bool {
	return (p.peekToken.Type == PUNCT || p.peekToken.Type == KEYWORD) && p.peekToken.Value == value
}

func (p *Parser) curIs(value string) bool {
	return p.curToken.Type == PUNCT && p.curToken.Value == value
}

func (p *Parser) expectPeek(value string) error {
	if !p.peekIs(value) {
		return p.unexpected(p.peekToken, value)
	}
	p.nextToken()
	return nil
}

func (p *Parser) unexpected(tok Token, want string) error {
	got := tok.Value
	if tok.Type == EOF {
		got = "end of expression"
	}
	if want == "" {
		return &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected %q", got)}
	}
	return &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("expected %q, got %q", want, got)}
}

func (p *Parser) peekPrecedence() int {
	if p.peekToken.Type != PUNCT && !(p.peekToken.Type == KEYWORD && p.peekToken.Value == "in") {
		return LOWEST
	}
	if prec, ok := precedences[p.peekToken.Value]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) parseExpression(precedence int) (Node, error) {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		return nil, p.unexpected(p.curToken, "")
	}
	left, err := prefix()
	if err != nil {
		return nil, err
	}

	for p.peekToken.Type != EOF && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Value]
		if infix == nil {
			return left, nil
		}
		p.nextToken()
		left, err = infix(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *Parser) parseIdentifier() (Node, error) {
	return &Ident{Name: p.curToken.Value}, nil
}

func (p *Parser) parseNumber() (Node, error) {
	lit := strings.ReplaceAll(p.curToken.Value, "_", "")
	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		n, err := strconv.ParseUint(lit[2:], 16, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: p.curToken.Pos, Msg: "invalid number " + lit}
		}
		return &Literal{Value: float64(n)}, nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, &SyntaxError{Pos: p.curToken.Pos, Msg: "invalid number " + lit}
	}
	return &Literal{Value: f}, nil
}

func (p *Parser) parseString() (Node, error) {
	return &Literal{Value: p.curToken.Value}, nil
}

// parseTemplate splits a raw template body into cooked quasis and parsed
// substitutions.
func (p *Parser) parseTemplate() (Node, error) {
	raw := p.curToken.Value
	tl := &TemplateLit{}
	var quasi strings.Builder
	for i := 0; i < len(raw); {
		switch {
		case raw[i] == '\\' && i+1 < len(raw):
			lx := &Lexer{input: raw, pos: i}
			if err := lx.readEscape(&quasi); err != nil {
				return nil, err
			}
			i = lx.pos
		case raw[i] == '$' && i+1 < len(raw) && raw[i+1] == '{':
			end := matchBrace(raw, i+1)
			if end < 0 {
				return nil, &SyntaxError{Pos: p.curToken.Pos, Msg: "unterminated template substitution"}
			}
			sub, err := Parse(raw[i+2 : end])
			if err != nil {
				return nil, err
			}
			tl.Quasis = append(tl.Quasis, quasi.String())
			tl.Exprs = append(tl.Exprs, sub)
			quasi.Reset()
			i = end + 1
		default:
			quasi.WriteByte(raw[i])
			i++
		}
	}
	tl.Quasis = append(tl.Quasis, quasi.String())
	return tl, nil
}

// matchBrace returns the index of the brace closing the one at open.
func matchBrace(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func (p *Parser) parseKeyword() (Node, error) {
	switch p.curToken.Value {
	case "true":
		return &Literal{Value: true}, nil
	case "false":
		return &Literal{Value: false}, nil
	case "null":
		return &Literal{Value: nil}, nil
	case "undefined":
		return &Literal{Value: undefinedValue}, nil
	case "NaN":
		return &Literal{Value: math.NaN()}, nil
	case "Infinity":
		return &Literal{Value: math.Inf(1)}, nil
	case "typeof", "void":
		return p.parseUnary()
	}
	return nil, p.unexpected(p.curToken, "")
}

func (p *Parser) parsePunctPrefix() (Node, error) {
	switch p.curToken.Value {
	case "!", "-", "+":
		return p.parseUnary()
	case "(":
		p.nextToken()
		n, err := p.parseExpression(LOWEST)
		if err != nil {
			return nil, err
		}
		if err := p.expectPeek(")"); err != nil {
			return nil, err
		}
		return n, nil
	case "[":
		return p.parseArray()
	case "{":
		return p.parseObject()
	}
	return nil, p.unexpected(p.curToken, "")
}

func (p *Parser) parseUnary() (Node, error) {
	op := p.curToken.Value
	p.nextToken()
	x, err := p.parseExpression(PREFIX)
	if err != nil {
		return nil, err
	}
	// fold negative numeric literals so they print and compare as constants
	if lit, ok := x.(*Literal); ok && op == "-" {
		if f, ok := lit.Value.(float64); ok {
			return &Literal{Value: -f}, nil
		}
	}
	return &Unary{Op: op, X: x}, nil
}

func (p *Parser) parseArray() (Node, error) {
	arr := &ArrayLit{}
	for !p.peekIs("]") {
		p.nextToken()
		el, err := p.parseExpression(LOWEST)
		if err != nil {
			return nil, err
		}
		arr.Elems = append(arr.Elems, el)
		if !p.peekIs("]") {
			if err := p.expectPeek(","); err != nil {
				return nil, err
			}
		}
	}
	p.nextToken()
	return arr, nil
}

func (p *Parser) parseObject() (Node, error) {
	obj := &ObjectLit{}
	for !p.peekIs("}") {
		p.nextToken()
		var key string
		switch p.curToken.Type {
		case IDENT, STRING, KEYWORD:
			key = p.curToken.Value
		case NUMBER:
			n, err := p.parseNumber()
			if err != nil {
				return nil, err
			}
			key = printKey(n.(*Literal).Value.(float64))
		default:
			return nil, p.unexpected(p.curToken, "property name")
		}

		var val Node
		if p.peekIs(":") {
			p.nextToken()
			p.nextToken()
			v, err := p.parseExpression(LOWEST)
			if err != nil {
				return nil, err
			}
			val = v
		} else if p.curToken.Type == IDENT {
			// shorthand {foo}
			val = &Ident{Name: key}
		} else {
			return nil, p.unexpected(p.peekToken, ":")
		}
		obj.Props = append(obj.Props, Property{Key: key, Value: val})

		if !p.peekIs("}") {
			if err := p.expectPeek(","); err != nil {
				return nil, err
			}
		}
	}
	p.nextToken()
	return obj, nil
}

func printKey(f float64) string {
	return (&Literal{Value: f}).String()
}

func (p *Parser) parseBinary(left Node) (Node, error) {
	op := p.curToken.Value
	prec := precedences[op]
	p.nextToken()
	// ** is right-associative
	if op == "**" {
		prec--
	}
	right, err := p.parseExpression(prec)
	if err != nil {
		return nil, err
	}
	return &Binary{Op: op, L: left, R: right}, nil
}

func (p *Parser) parseConditional(test Node) (Node, error) {
	p.nextToken()
	then, err := p.parseExpression(LOWEST)
	if err != nil {
		return nil, err
	}
	if err := p.expectPeek(":"); err != nil {
		return nil, err
	}
	p.nextToken()
	els, err := p.parseExpression(CONDITIONAL - 1)
	if err != nil {
		return nil, err
	}
	return &Cond{Test: test, Then: then, Else: els}, nil
}

func (p *Parser) parseMember(object Node) (Node, error) {
	optional := p.curToken.Value == "?."
	if optional && p.peekIs("[") {
		p.nextToken()
		n, err := p.parseIndex(object)
		if err != nil {
			return nil, err
		}
		n.(*Member).Optional = true
		return n, nil
	}
	p.nextToken()
	switch p.curToken.Type {
	case IDENT, KEYWORD:
	default:
		return nil, p.unexpected(p.curToken, "property name")
	}
	return &Member{X: object, Prop: &Literal{Value: p.curToken.Value}, Optional: optional}, nil
}

func (p *Parser) parseIndex(object Node) (Node, error) {
	p.nextToken()
	idx, err := p.parseExpression(LOWEST)
	if err != nil {
		return nil, err
	}
	if err := p.expectPeek("]"); err != nil {
		return nil, err
	}
	return &Member{X: object, Prop: idx, Computed: true}, nil
}

func (p *Parser) parseCall(callee Node) (Node, error) {
	call := &Call{Callee: callee}
	for !p.peekIs(")") {
		p.nextToken()
		arg, err := p.parseExpression(LOWEST)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if !p.peekIs(")") {
			if err := p.expectPeek(","); err != nil {
				return nil, err
			}
		}
	}
	p.nextToken()
	return call, nil
}
