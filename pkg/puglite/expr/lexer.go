package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents expression token types
type TokenType int

const (
	ILLEGAL TokenType = iota
	EOF

	IDENT    // foo, $el, _x
	NUMBER   // 12, 1.5e3, 0xff
	STRING   // "foo" or 'foo' (Value holds the cooked text)
	TEMPLATE // `foo ${bar}` (Value holds the raw body)
	KEYWORD  // true false null undefined NaN Infinity typeof void in
	PUNCT    // operators and delimiters
)

// Token is one expression token.
type Token struct {
	Type  TokenType
	Value string
	Pos   int // byte offset in the expression source
}

// SyntaxError reports an expression that could not be tokenized or parsed.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s (at offset %d)", e.Msg, e.Pos)
}

var keywords = map[string]bool{
	"true": true, "false": true, "null": true, "undefined": true,
	"NaN": true, "Infinity": true, "typeof": true, "void": true, "in": true,
}

// punctuators, longest first so that maximal munch works with a prefix scan
var punctuators = []string{
	"===", "!==", "**", "==", "!=", "<=", ">=", "&&", "||", "??", "?.",
	"+", "-", "*", "/", "%", "<", ">", "!", "?", ":", ".", ",",
	"(", ")", "[", "]", "{", "}",
}

// Lexer tokenizes an expression.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{input: src}
}

// NextToken returns the next token, or an error for malformed input.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Type: EOF, Pos: l.pos}, nil
	}

	start := l.pos
	ch := l.input[l.pos]
	switch {
	case ch == '"' || ch == '\'':
		s, err := l.readString(ch)
		if err != nil {
			return Token{}, err
		}
		return Token{Type: STRING, Value: s, Pos: start}, nil
	case ch == '`':
		s, err := l.readTemplate()
		if err != nil {
			return Token{}, err
		}
		return Token{Type: TEMPLATE, Value: s, Pos: start}, nil
	case isDigit(ch) || (ch == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])):
		return Token{Type: NUMBER, Value: l.readNumber(), Pos: start}, nil
	}

	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	if isIdentStart(r) {
		word := l.readIdentifier()
		if keywords[word] {
			return Token{Type: KEYWORD, Value: word, Pos: start}, nil
		}
		return Token{Type: IDENT, Value: word, Pos: start}, nil
	}

	for _, p := range punctuators {
		if strings.HasPrefix(l.input[l.pos:], p) {
			// a?.5 is a conditional, not optional chaining
			if p == "?." && l.pos+2 < len(l.input) && isDigit(l.input[l.pos+2]) {
				continue
			}
			l.pos += len(p)
			return Token{Type: PUNCT, Value: p, Pos: start}, nil
		}
	}

	return Token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", r)}
}

// Tokens returns every token up to and including EOF.
func (l *Lexer) Tokens() ([]Token, error) {
	var toks []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) && r != '\ufeff' {
			return
		}
		l.pos += size
	}
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += size
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readNumber() string {
	start := l.pos
	if strings.HasPrefix(l.input[l.pos:], "0x") || strings.HasPrefix(l.input[l.pos:], "0X") {
		l.pos += 2
		for l.pos < len(l.input) && isHexDigit(l.input[l.pos]) {
			l.pos++
		}
		return l.input[start:l.pos]
	}
	for l.pos < len(l.input) && (isDigit(l.input[l.pos]) || l.input[l.pos] == '_') {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
	return l.input[start:l.pos]
}

// readString reads a quoted string and returns its cooked value.
func (l *Lexer) readString(quote byte) (string, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == quote:
			l.pos++
			return sb.String(), nil
		case ch == '\\':
			if err := l.readEscape(&sb); err != nil {
				return "", err
			}
		case ch == '\n':
			return "", &SyntaxError{Pos: start, Msg: "unterminated string"}
		default:
			sb.WriteByte(ch)
			l.pos++
		}
	}
	return "", &SyntaxError{Pos: start, Msg: "unterminated string"}
}

// readTemplate returns the raw body between backticks; the parser splits it.
func (l *Lexer) readTemplate() (string, error) {
	start := l.pos
	l.pos++
	depth := 0
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '\\':
			l.pos += 2
			continue
		case ch == '$' && depth == 0 && l.pos+1 < len(l.input) && l.input[l.pos+1] == '{':
			depth = 1
			l.pos += 2
			continue
		case depth > 0 && ch == '{':
			depth++
		case depth > 0 && ch == '}':
			depth--
		case depth > 0 && (ch == '"' || ch == '\''):
			if _, err := l.readString(ch); err != nil {
				return "", err
			}
			continue
		case depth == 0 && ch == '`':
			l.pos++
			return l.input[start+1 : l.pos-1], nil
		}
		l.pos++
	}
	return "", &SyntaxError{Pos: start, Msg: "unterminated template literal"}
}

func (l *Lexer) readEscape(sb *strings.Builder) error {
	start := l.pos
	l.pos++ // backslash
	if l.pos >= len(l.input) {
		return &SyntaxError{Pos: start, Msg: "unterminated escape"}
	}
	ch := l.input[l.pos]
	l.pos++
	switch ch {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '0':
		sb.WriteByte(0)
	case '\n':
		// line continuation
	case 'x':
		if l.pos+2 > len(l.input) {
			return &SyntaxError{Pos: start, Msg: "invalid hexadecimal escape"}
		}
		n, err := strconv.ParseUint(l.input[l.pos:l.pos+2], 16, 8)
		if err != nil {
			return &SyntaxError{Pos: start, Msg: "invalid hexadecimal escape"}
		}
		sb.WriteRune(rune(n))
		l.pos += 2
	case 'u':
		var digits string
		if l.pos < len(l.input) && l.input[l.pos] == '{' {
			end := strings.IndexByte(l.input[l.pos:], '}')
			if end < 0 {
				return &SyntaxError{Pos: start, Msg: "invalid unicode escape"}
			}
			digits = l.input[l.pos+1 : l.pos+end]
			l.pos += end + 1
		} else {
			if l.pos+4 > len(l.input) {
				return &SyntaxError{Pos: start, Msg: "invalid unicode escape"}
			}
			digits = l.input[l.pos : l.pos+4]
			l.pos += 4
		}
		n, err := strconv.ParseUint(digits, 16, 32)
		if err != nil {
			return &SyntaxError{Pos: start, Msg: "invalid unicode escape"}
		}
		sb.WriteRune(rune(n))
	default:
		sb.WriteByte(ch)
	}
	return nil
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || r == '\u200c' || r == '\u200d'
}

// IsIdentifier reports whether s is a valid JavaScript identifier name that
// is not a reserved literal keyword.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && !isIdentStart(r) {
			return false
		}
		if !isIdentPart(r) {
			return false
		}
	}
	return true
}
