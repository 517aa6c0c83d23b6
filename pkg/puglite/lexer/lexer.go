// Package lexer turns puglite source text into a flat, position-tagged token
// stream. Nesting is expressed with INDENT/OUTDENT tokens driven by an
// indentation stack.
package lexer

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	perrors "github.com/puglite/puglite/pkg/puglite/errors"
)

// DefaultTabWidth is the column width of one tab of indentation.
const DefaultTabWidth = 4

// Options configures a Lexer.
type Options struct {
	Filename string
	TabWidth int // columns per tab; 0 means DefaultTabWidth
}

// Lexer represents the lexer
type Lexer struct {
	input    string // remaining input
	source   string // normalized source, for error positions
	filename string
	tabWidth int

	line int
	col  int

	tokens      []Token
	indentStack []int // indentation widths, innermost last
	indentStyle byte  // 0 until the first indented line, then ' ' or '\t'
	indentUnit  int   // width of the first indented line; indents are multiples of it

	interpolated         bool // lexing the inside of #[...]
	interpolationAllowed bool
	ended                bool

	pos int // next token for NextToken
	err error
	run bool
}

// lexPanic carries a positioned error out of the scanner call chain.
type lexPanic struct {
	err *perrors.PugliteError
}

// New creates a new Lexer
func New(input string) *Lexer {
	return NewWithOptions(input, Options{})
}

// NewWithFilename creates a new Lexer with filename for error messages
func NewWithFilename(input string, filename string) *Lexer {
	return NewWithOptions(input, Options{Filename: filename})
}

// NewWithOptions creates a new Lexer with explicit options.
func NewWithOptions(input string, opts Options) *Lexer {
	input = strings.TrimPrefix(input, "\ufeff")
	input = strings.ReplaceAll(input, "\r\n", "\n")
	input = strings.ReplaceAll(input, "\r", "\n")

	tabWidth := opts.TabWidth
	if tabWidth <= 0 {
		tabWidth = DefaultTabWidth
	}
	return &Lexer{
		input:                input,
		source:               input,
		filename:             opts.Filename,
		tabWidth:             tabWidth,
		line:                 1,
		col:                  1,
		indentStack:          []int{0},
		interpolationAllowed: true,
	}
}

// Lex tokenizes src in one call.
func Lex(src string, opts Options) ([]Token, error) {
	return NewWithOptions(src, opts).Tokens()
}

// Tokens lexes the whole input and returns every token through EOF. The
// first malformed construct aborts lexing with a *errors.PugliteError.
func (l *Lexer) Tokens() (toks []Token, err error) {
	if l.run {
		return l.tokens, l.err
	}
	l.run = true
	defer func() {
		if r := recover(); r != nil {
			p, ok := r.(lexPanic)
			if !ok {
				panic(r)
			}
			l.err = p.err
			toks, err = nil, p.err
		}
	}()
	l.lex()
	return l.tokens, nil
}

// NextToken returns tokens one at a time. After an error it returns an
// ILLEGAL token; Err reports the cause.
func (l *Lexer) NextToken() Token {
	toks, err := l.Tokens()
	if err != nil {
		return Token{Type: ILLEGAL, Filename: l.filename}
	}
	if l.pos >= len(toks) {
		return toks[len(toks)-1]
	}
	tok := toks[l.pos]
	l.pos++
	return tok
}

// Err returns the lexing error, if any.
func (l *Lexer) Err() error {
	return l.err
}

// Source returns the normalized source text.
func (l *Lexer) Source() string {
	return l.source
}

func (l *Lexer) lex() {
	scanners := []func() bool{
		l.blank,
		l.eos,
		l.endInterpolation,
		l.yield,
		l.doctype,
		l.interpolation,
		l.caseStmt,
		l.when,
		l.defaultStmt,
		l.extends,
		l.mixinBlock,
		l.namedBlock,
		l.include,
		l.mixin,
		l.call,
		l.conditional,
		l.each,
		l.while,
		l.tag,
		l.filter,
		l.blockCode,
		l.code,
		l.id,
		l.dot,
		l.className,
		l.attrs,
		l.attributesBlock,
		l.indent,
		l.text,
		l.textHTML,
		l.comment,
		l.slash,
		l.colon,
	}

	for !l.ended {
		matched := false
		for _, scan := range scanners {
			if scan() {
				matched = true
				break
			}
		}
		if !matched {
			l.fail()
		}
	}
}

// ============================================================================
// Helpers
// ============================================================================

func (l *Lexer) tok(t TokenType, value string) Token {
	return Token{Type: t, Value: value, Line: l.line, Column: l.col, Filename: l.filename}
}

func (l *Lexer) push(tok Token) {
	l.tokens = append(l.tokens, tok)
}

// consume drops n bytes of input, keeping line and column in step.
func (l *Lexer) consume(n int) {
	consumed := l.input[:n]
	l.input = l.input[n:]
	for {
		i := strings.IndexByte(consumed, '\n')
		if i < 0 {
			break
		}
		l.line++
		l.col = 1
		consumed = consumed[i+1:]
	}
	l.col += utf8.RuneCountInString(consumed)
}

func (l *Lexer) errorf(id string, data map[string]any) {
	l.errorAt(id, l.line, l.col, data)
}

func (l *Lexer) errorAt(id string, line, col int, data map[string]any) {
	err := perrors.NewAt(id, l.filename, line, col, data).WithSource(l.source)
	panic(lexPanic{err: err})
}

// lineEndColumn returns the column just past the last non-blank character
// of the given source line.
func (l *Lexer) lineEndColumn(line int) int {
	lines := strings.Split(l.source, "\n")
	if line < 1 || line > len(lines) {
		return 1
	}
	return utf8.RuneCountInString(strings.TrimRight(lines[line-1], " \t")) + 1
}

func restOfLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// hasKeyword reports whether s starts with kw as a whole word.
func hasKeyword(s, kw string) bool {
	if !strings.HasPrefix(s, kw) {
		return false
	}
	if len(s) == len(kw) {
		return true
	}
	switch s[len(kw)] {
	case ' ', '\t', '\n', '(', ':':
		return true
	}
	return false
}

func isWordChar(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// skipQuoted returns the index just past the string literal starting at i,
// or -1 when it is unterminated on its line.
func skipQuoted(s string, i int) int {
	quote := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '\n':
			if quote != '`' {
				return -1
			}
		case quote:
			return j + 1
		}
	}
	return -1
}

// skipBalanced returns the index of the bracket closing the one at s[open],
// honouring nested brackets and string literals, or -1.
func skipBalanced(s string, open int) int {
	var stack []byte
	for i := open; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\'', '`':
			end := skipQuoted(s, i)
			if end < 0 {
				return -1
			}
			i = end - 1
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != opener(c) {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

func opener(closer byte) byte {
	switch closer {
	case ')':
		return '('
	case ']':
		return '['
	}
	return '{'
}

// ============================================================================
// Structure
// ============================================================================

func (l *Lexer) blank() bool {
	if !strings.HasPrefix(l.input, "\n") {
		return false
	}
	i := 1
	for i < len(l.input) && (l.input[i] == ' ' || l.input[i] == '\t') {
		i++
	}
	switch {
	case i == len(l.input):
		l.consume(i)
		return true
	case l.input[i] == '\n':
		l.consume(i)
		return true
	}
	return false
}

func (l *Lexer) eos() bool {
	if l.input != "" {
		return false
	}
	if l.interpolated {
		l.errorf("LEX-0008", nil)
	}
	for len(l.indentStack) > 1 {
		l.indentStack = l.indentStack[:len(l.indentStack)-1]
		out := l.tok(OUTDENT, "")
		out.Column = 1
		l.push(out)
	}
	l.push(l.tok(EOF, ""))
	l.ended = true
	return true
}

func (l *Lexer) endInterpolation() bool {
	if l.interpolated && strings.HasPrefix(l.input, "]") {
		l.consume(1)
		l.ended = true
		return true
	}
	return false
}

// scanIndentation measures the indentation after a leading newline. It
// fixes the file's indentation style on the first indented line.
func (l *Lexer) scanIndentation(s string) (chars, width int, ok bool) {
	if !strings.HasPrefix(s, "\n") {
		return 0, 0, false
	}
	s = s[1:]
	style := l.indentStyle
	if style == 0 {
		switch {
		case strings.HasPrefix(s, "\t"):
			style = '\t'
		case strings.HasPrefix(s, " "):
			style = ' '
		}
	}
	for chars < len(s) && style != 0 && s[chars] == style {
		chars++
	}
	if chars > 0 && l.indentStyle == 0 {
		l.indentStyle = style
	}
	unit := 1
	if style == '\t' {
		unit = l.tabWidth
	}
	return chars, chars * unit, true
}

func (l *Lexer) indent() bool {
	chars, width, ok := l.scanIndentation(l.input)
	if !ok {
		return false
	}
	l.consume(chars + 1)
	l.col = 1 + width

	if l.input != "" && (l.input[0] == ' ' || l.input[0] == '\t') {
		style := "spaces"
		if l.indentStyle == '\t' {
			style = "tabs"
		}
		l.errorf("LEX-0002", map[string]any{"Style": style})
	}

	l.interpolationAllowed = true

	if strings.HasPrefix(l.input, "\n") {
		l.push(l.tok(NEWLINE, ""))
		return true
	}

	top := l.indentStack[len(l.indentStack)-1]
	switch {
	case width < top:
		count := 0
		for l.indentStack[len(l.indentStack)-1] > width {
			parent := l.indentStack[len(l.indentStack)-2]
			if parent < width {
				l.errorAt("LEX-0003", l.line, 1, map[string]any{
					"Expected": formatWidths(parent, l.indentStack[len(l.indentStack)-1]),
				})
			}
			count++
			l.indentStack = l.indentStack[:len(l.indentStack)-1]
		}
		for ; count > 0; count-- {
			out := l.tok(OUTDENT, "")
			out.Column = 1
			l.push(out)
		}
	case width > top:
		if l.indentUnit == 0 {
			l.indentUnit = width
			if l.indentStyle == '\t' {
				l.indentUnit = l.tabWidth
			}
		}
		if width%l.indentUnit != 0 {
			l.errorAt("LEX-0011", l.line, 1, map[string]any{"Width": width, "Unit": l.indentUnit})
		}
		l.push(l.tok(INDENT, ""))
		l.indentStack = append(l.indentStack, width)
	default:
		l.push(l.tok(NEWLINE, ""))
	}
	return true
}

func formatWidths(a, b int) string {
	return strconv.Itoa(a) + " or " + strconv.Itoa(b)
}

// pipelessText reads a whitespace-sensitive text block: every following
// line indented at least as deep as the first one, verbatim.
func (l *Lexer) pipelessText(indentWidth int) bool {
	for l.blank() {
	}
	_, firstWidth, ok := l.scanIndentation(l.input)
	if indentWidth == 0 {
		if !ok {
			return false
		}
		indentWidth = firstWidth
	}
	top := l.indentStack[len(l.indentStack)-1]
	if indentWidth <= top {
		return false
	}

	unit := 1
	if l.indentStyle == '\t' {
		unit = l.tabWidth
	}
	cut := indentWidth / unit

	start := l.tok(START_PIPELESS_TEXT, "")
	var lines []string
	var indented []bool
	ptr := 0
	for ptr < len(l.input) {
		str := restOfLine(l.input[ptr+1:])
		_, lineWidth, _ := l.scanIndentation("\n" + str)
		match := lineWidth >= indentWidth
		if !match && strings.TrimSpace(str) != "" {
			if lineWidth > top {
				// less indented than the first line but still nested:
				// restart with the shallower indentation
				return l.pipelessText(lineWidth)
			}
			break
		}
		indented = append(indented, match)
		ptr += len(str) + 1
		if len(str) >= cut {
			lines = append(lines, str[cut:])
		} else {
			lines = append(lines, "")
		}
	}

	startLine := l.line
	l.input = l.input[ptr:]
	if l.input == "" {
		for len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
	}

	l.push(start)
	for i, text := range lines {
		l.line = startLine + 1 + i
		l.col = 1
		if i > 0 {
			l.push(l.tok(NEWLINE, ""))
		}
		if indented[i] {
			l.col = 1 + indentWidth
		}
		l.addText(TEXT, text, "", 0)
	}
	l.line = startLine + len(indented)
	l.col = 1
	l.push(l.tok(END_PIPELESS_TEXT, ""))
	return true
}

// ============================================================================
// Tag heads
// ============================================================================

func (l *Lexer) tag() bool {
	if l.input == "" || !isWordChar(l.input[0]) {
		return false
	}
	j := 1
	for j < len(l.input) && (isWordChar(l.input[j]) || l.input[j] == '-' || l.input[j] == ':') {
		j++
	}
	for j > 1 && !isWordChar(l.input[j-1]) {
		j--
	}
	l.push(l.tok(TAG, l.input[:j]))
	l.consume(j)
	return true
}

func (l *Lexer) interpolation() bool {
	if !strings.HasPrefix(l.input, "#{") {
		return false
	}
	end := skipBalanced(l.input, 1)
	if end < 0 {
		l.errorf("LEX-0008", nil)
	}
	l.push(l.tok(INTERP_TAG, l.input[2:end]))
	l.consume(end + 1)
	return true
}

var idRe = regexp.MustCompile(`^#([\w-]+)`)

func (l *Lexer) id() bool {
	if !strings.HasPrefix(l.input, "#") {
		return false
	}
	m := idRe.FindStringSubmatch(l.input)
	if m == nil {
		bad := l.input[1:]
		if i := strings.IndexAny(bad, " \t\n(#.:"); i >= 0 {
			bad = bad[:i]
		}
		l.errorf("LEX-0010", map[string]any{"Text": bad})
	}
	l.push(l.tok(ID, m[1]))
	l.consume(len(m[0]))
	return true
}

var (
	classRe        = regexp.MustCompile(`(?i)^\.([_a-z0-9\-]*[_a-z][_a-z0-9\-]*)`)
	invalidClassRe = regexp.MustCompile(`(?i)^\.[_a-z0-9\-]+`)
)

func (l *Lexer) className() bool {
	if !strings.HasPrefix(l.input, ".") {
		return false
	}
	if m := classRe.FindStringSubmatch(l.input); m != nil {
		l.push(l.tok(CLASS, m[1]))
		l.consume(len(m[0]))
		return true
	}
	if invalidClassRe.MatchString(l.input) {
		l.errorAt("LEX-0009", l.line, l.col+1, nil)
	}
	return false
}

// endOfLine reports how much trailing blank space follows a one-character
// marker, when nothing else follows it on the line.
func endOfLine(s string) (int, bool) {
	j := 0
	for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
		j++
	}
	if j == len(s) || s[j] == '\n' {
		return j, true
	}
	return 0, false
}

func (l *Lexer) dot() bool {
	if !strings.HasPrefix(l.input, ".") {
		return false
	}
	if strings.HasPrefix(l.input, ".:") {
		l.push(l.tok(DOT, ""))
		l.consume(1)
		return true
	}
	trail, ok := endOfLine(l.input[1:])
	if !ok {
		return false
	}
	l.push(l.tok(DOT, ""))
	l.consume(1 + trail)
	l.pipelessText(0)
	return true
}

func (l *Lexer) slash() bool {
	if !strings.HasPrefix(l.input, "/") {
		return false
	}
	l.push(l.tok(SLASH, ""))
	l.consume(1)
	return true
}

func (l *Lexer) colon() bool {
	if l.input != ":" && !strings.HasPrefix(l.input, ": ") && !strings.HasPrefix(l.input, ":\n") {
		return false
	}
	j := 1
	for j < len(l.input) && l.input[j] == ' ' {
		j++
	}
	l.push(l.tok(COLON, ""))
	l.consume(j)
	return true
}

func (l *Lexer) attributesBlock() bool {
	const kw = "&attributes"
	if !strings.HasPrefix(l.input, kw) {
		return false
	}
	tok := l.tok(AND_ATTRS, "")
	if !strings.HasPrefix(l.input[len(kw):], "(") {
		l.errorf("LEX-0001", map[string]any{"Text": kw})
	}
	end := skipBalanced(l.input, len(kw))
	if end < 0 {
		l.errorf("LEX-0005", map[string]any{"OpenLine": l.line})
	}
	tok.Value = strings.TrimSpace(l.input[len(kw)+1 : end])
	l.push(tok)
	l.consume(end + 1)
	return true
}

// ============================================================================
// Attribute lists
// ============================================================================

func (l *Lexer) attrs() bool {
	if !strings.HasPrefix(l.input, "(") {
		return false
	}
	openLine := l.line
	l.push(l.tok(START_ATTRS, ""))
	l.consume(1)

	for {
		l.skipAttrSeparators()
		if l.input == "" {
			l.errorAt("LEX-0005", openLine, l.lineEndColumn(openLine), map[string]any{"OpenLine": openLine})
		}
		if l.input[0] == ')' {
			l.push(l.tok(END_ATTRS, ""))
			l.consume(1)
			return true
		}
		l.attribute()
	}
}

func (l *Lexer) skipAttrSeparators() {
	for l.input != "" {
		switch l.input[0] {
		case ' ', '\t', '\r':
			l.consume(1)
		case '\n', ',':
			l.push(l.tok(ATTR_SEP, l.input[:1]))
			l.consume(1)
		default:
			return
		}
	}
}

func (l *Lexer) attribute() {
	tok := l.tok(ATTRIBUTE, "true")
	tok.MustEscape = true
	tok.Name = l.readAttrName()

	j := 0
	for j < len(l.input) && (l.input[j] == ' ' || l.input[j] == '\t') {
		j++
	}
	rest := l.input[j:]
	switch {
	case strings.HasPrefix(rest, "!="):
		l.consume(j + 2)
		tok.MustEscape = false
		tok.Value = l.readAttrValue()
	case strings.HasPrefix(rest, "=") && !strings.HasPrefix(rest, "=="):
		l.consume(j + 1)
		tok.Value = l.readAttrValue()
	}
	l.push(tok)
}

// readAttrName reads an opaque attribute name. Host-framework binding
// syntax such as *ngIf, (click), [disabled] or #ref is accepted as long as
// its brackets balance.
func (l *Lexer) readAttrName() string {
	in := l.input
	if in[0] == '"' || in[0] == '\'' {
		end := skipQuoted(in, 0)
		if end < 0 {
			l.errorf("LEX-0004", nil)
		}
		l.consume(end)
		return in[1 : end-1]
	}

	var stack []byte
	i := 0
scan:
	for i < len(in) {
		c := in[i]
		switch c {
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 {
				if c == ')' {
					break scan
				}
				l.errorf("LEX-0007", map[string]any{"Char": string(c), "Name": in[:i+1]})
			}
			if stack[len(stack)-1] != opener(c) {
				l.errorf("LEX-0007", map[string]any{"Char": string(c), "Name": in[:i+1]})
			}
			stack = stack[:len(stack)-1]
		case '\n':
			if len(stack) > 0 {
				l.errorf("LEX-0007", map[string]any{"Char": string(stack[len(stack)-1]), "Name": in[:i]})
			}
			break scan
		case ' ', '\t', '\r', ',', '=', '"', '\'', '`':
			if len(stack) == 0 {
				break scan
			}
		case '!':
			if len(stack) == 0 && i+1 < len(in) && in[i+1] == '=' {
				break scan
			}
		}
		i++
	}
	if len(stack) > 0 {
		l.errorf("LEX-0007", map[string]any{"Char": string(stack[len(stack)-1]), "Name": in[:i]})
	}
	if i == 0 {
		l.errorf("LEX-0001", map[string]any{"Text": restOfLine(in)})
	}
	l.consume(i)
	return in[:i]
}

// readAttrValue reads raw expression text up to the end of the attribute.
// Whitespace ends the value unless the expression visibly continues across
// it (a dangling or a leading binary operator).
func (l *Lexer) readAttrValue() string {
	j := 0
	for j < len(l.input) && isSpace(l.input[j]) {
		j++
	}
	l.consume(j)

	in := l.input
	var stack []byte
	ternary := 0
	i := 0
	for i < len(in) {
		c := in[i]
		if n := len(stack); n > 0 && stack[n-1] == '`' {
			switch {
			case c == '\\':
				i += 2
			case c == '`':
				stack = stack[:n-1]
				i++
			case c == '$' && i+1 < len(in) && in[i+1] == '{':
				stack = append(stack, '$')
				i += 2
			default:
				i++
			}
			continue
		}

		switch c {
		case '"', '\'':
			end := skipQuoted(in, i)
			if end < 0 {
				l.consume(i)
				l.errorf("LEX-0004", nil)
			}
			i = end
			continue
		case '`':
			stack = append(stack, '`')
			i++
			continue
		case '(', '[', '{':
			stack = append(stack, c)
			i++
			continue
		case ')', ']', '}':
			if len(stack) == 0 {
				if c == ')' {
					return l.takeValue(i)
				}
				l.consume(i)
				l.errorf("LEX-0001", map[string]any{"Text": string(c)})
			}
			stack = stack[:len(stack)-1]
			i++
			continue
		}

		if len(stack) > 0 {
			i++
			continue
		}

		switch c {
		case ',':
			return l.takeValue(i)
		case '?':
			if i+1 < len(in) && in[i+1] == '?' {
				i += 2
				continue
			}
			if !(i+1 < len(in) && in[i+1] == '.') {
				ternary++
			}
			i++
		case ':':
			if ternary > 0 {
				ternary--
			}
			i++
		case ' ', '\t', '\r', '\n':
			k := i
			for k < len(in) && isSpace(in[k]) {
				k++
			}
			if k < len(in) && (endsWithOperator(in[:i]) || continuesExpression(in[k:], ternary)) {
				i = k
				continue
			}
			return l.takeValue(i)
		default:
			i++
		}
	}
	return l.takeValue(i)
}

func (l *Lexer) takeValue(n int) string {
	val := l.input[:n]
	if strings.TrimSpace(val) == "" {
		l.errorf("LEX-0001", map[string]any{"Text": restOfLine(l.input)})
	}
	l.consume(n)
	return val
}

func endsWithOperator(v string) bool {
	v = strings.TrimRight(v, " \t\r\n")
	if v == "" {
		return false
	}
	return strings.IndexByte("+-*/%<>=!&|?:.", v[len(v)-1]) >= 0
}

func continuesExpression(rest string, ternary int) bool {
	switch rest[0] {
	case '+', '-', '/', '%', '?', '.', '<', '>', '|', '&':
		return true
	case '*':
		return len(rest) == 1 || !isLetter(rest[1])
	case '=':
		return strings.HasPrefix(rest, "==")
	case '!':
		return strings.HasPrefix(rest, "!=")
	case ':':
		return ternary > 0
	}
	return false
}

// ============================================================================
// Text
// ============================================================================

func (l *Lexer) text() bool {
	if l.input == "" {
		return false
	}
	line := restOfLine(l.input)
	prefix := 0
	switch {
	case line[0] == '|':
		prefix = 1
		if len(line) > 2 && line[1] == ' ' {
			prefix = 2
		}
	case line[0] == ' ':
		if len(line) > 1 {
			prefix = 1
		}
	default:
		return false
	}
	l.consume(prefix)
	value := line[prefix:]
	l.input = l.input[len(value):]
	l.addText(TEXT, value, "", 0)
	return true
}

func (l *Lexer) textHTML() bool {
	if !strings.HasPrefix(l.input, "<") {
		return false
	}
	line := restOfLine(l.input)
	l.input = l.input[len(line):]
	l.addText(TEXT_HTML, line, "", 0)
	return true
}

// interpStart finds the first #{ or !{ text interpolation. A double brace
// (#{{ ... }}) belongs to the host framework and is left as text.
func interpStart(value string) (idx int, escaped bool, ok bool) {
	for i := 0; i+1 < len(value); i++ {
		if (value[i] == '#' || value[i] == '!') && value[i+1] == '{' {
			if i+2 < len(value) && value[i+2] == '{' {
				i += 2
				continue
			}
			if i > 0 && value[i-1] == '\\' {
				return i - 1, true, true
			}
			return i, false, true
		}
	}
	return -1, false, false
}

// addText splits a run of text at interpolation markers: #[tag] nests a
// child lexer, #{expr} and !{expr} become INTERPOLATED_CODE, and \#[ or
// \#{ are kept literally.
func (l *Lexer) addText(t TokenType, value, prefix string, escaped int) {
	if value+prefix == "" {
		return
	}

	const none = int(^uint(0) >> 1)
	indexOfEnd, indexOfStart, indexOfEscaped, indexOfInterp := none, none, none, none
	if l.interpolated {
		if i := strings.IndexByte(value, ']'); i >= 0 {
			indexOfEnd = i
		}
	}
	if l.interpolationAllowed {
		if i := strings.Index(value, "#["); i >= 0 {
			indexOfStart = i
		}
		if i := strings.Index(value, `\#[`); i >= 0 {
			indexOfEscaped = i
		}
	}
	interpIdx, interpEscaped, hasInterp := interpStart(value)
	if l.interpolationAllowed && hasInterp {
		indexOfInterp = interpIdx
	}

	switch {
	case indexOfEscaped != none && indexOfEscaped < indexOfEnd && indexOfEscaped < indexOfStart && indexOfEscaped < indexOfInterp:
		prefix = prefix + value[:indexOfEscaped] + "#["
		l.addText(t, value[indexOfEscaped+3:], prefix, escaped+1)
		return

	case indexOfStart != none && indexOfStart < indexOfEnd && indexOfStart < indexOfEscaped && indexOfStart < indexOfInterp:
		before := prefix + value[:indexOfStart]
		if before != "" {
			l.push(l.tok(t, before))
		}
		l.col += utf8.RuneCountInString(before) + escaped
		l.push(l.tok(START_INTERP, ""))
		l.col += 2

		child := &Lexer{
			input:                value[indexOfStart+2:],
			source:               l.source,
			filename:             l.filename,
			tabWidth:             l.tabWidth,
			line:                 l.line,
			col:                  l.col,
			indentStack:          []int{0},
			indentStyle:          l.indentStyle,
			indentUnit:           l.indentUnit,
			interpolated:         true,
			interpolationAllowed: true,
		}
		child.lex()
		l.tokens = append(l.tokens, child.tokens...)
		l.col = child.col
		l.push(l.tok(END_INTERP, ""))
		l.col++
		l.addText(t, child.input, "", 0)
		return

	case indexOfEnd != none && indexOfEnd < indexOfStart && indexOfEnd < indexOfEscaped && indexOfEnd < indexOfInterp:
		if prefix+value[:indexOfEnd] != "" {
			l.addText(t, value[:indexOfEnd], prefix, escaped)
		}
		l.ended = true
		l.input = value[indexOfEnd+1:] + l.input
		return

	case indexOfInterp != none:
		if interpEscaped {
			prefix = prefix + value[:interpIdx] + value[interpIdx+1:interpIdx+3]
			l.addText(t, value[interpIdx+3:], prefix, escaped+1)
			return
		}
		before := prefix + value[:interpIdx]
		if before != "" {
			l.push(l.tok(t, before))
			l.col += utf8.RuneCountInString(before) + escaped
		}
		code := l.tok(INTERPOLATED_CODE, "")
		code.MustEscape = value[interpIdx] == '#'
		code.Buffer = true
		rest := value[interpIdx+1:]
		end := skipBalanced(rest, 0)
		if end < 0 {
			l.errorf("LEX-0008", nil)
		}
		code.Value = rest[1:end]
		l.push(code)
		l.col += 2 + utf8.RuneCountInString(code.Value) + 1
		if end+1 < len(rest) {
			l.addText(t, rest[end+1:], "", 0)
		}
		return
	}

	value = prefix + value
	l.push(l.tok(t, value))
	l.col += utf8.RuneCountInString(value) + escaped
}

func (l *Lexer) comment() bool {
	if !strings.HasPrefix(l.input, "//") {
		return false
	}
	line := restOfLine(l.input)
	tok := l.tok(COMMENT, "")
	tok.Buffer = !strings.HasPrefix(line, "//-")
	if tok.Buffer {
		tok.Value = line[2:]
	} else {
		tok.Value = line[3:]
	}
	l.interpolationAllowed = tok.Buffer
	l.push(tok)
	l.consume(len(line))
	l.pipelessText(0)
	return true
}

func (l *Lexer) doctype() bool {
	if strings.HasPrefix(l.input, "!!!") {
		l.errorf("LEX-0006", nil)
	}
	if !hasKeyword(l.input, "doctype") {
		return false
	}
	line := restOfLine(l.input)
	l.push(l.tok(DOCTYPE, strings.TrimLeft(line[len("doctype"):], " ")))
	l.consume(len(line))
	return true
}

func (l *Lexer) filter() bool {
	if !strings.HasPrefix(l.input, ":") || len(l.input) < 2 || !(isWordChar(l.input[1]) || l.input[1] == '-') {
		return false
	}
	j := 1
	for j < len(l.input) && (isWordChar(l.input[j]) || l.input[j] == '-') {
		j++
	}
	tok := l.tok(FILTER, "")
	tok.Name = l.input[1:j]
	l.push(tok)
	l.consume(j)
	l.attrs()
	l.interpolationAllowed = false
	l.pipelessText(0)
	return true
}

// ============================================================================
// Constructs the generator rejects. They are lexed leniently so that the
// user gets the construct-specific message rather than a syntax error.
// ============================================================================

func (l *Lexer) keywordLine(t TokenType, kw string) bool {
	if !hasKeyword(l.input, kw) {
		return false
	}
	line := restOfLine(l.input)
	l.push(l.tok(t, strings.TrimSpace(line[len(kw):])))
	l.consume(len(line))
	return true
}

func (l *Lexer) yield() bool {
	if !hasKeyword(l.input, "yield") {
		return false
	}
	l.push(l.tok(YIELD, ""))
	l.consume(len("yield"))
	return true
}

func (l *Lexer) caseStmt() bool { return l.keywordLine(CASE, "case") }

func (l *Lexer) when() bool { return l.keywordLine(WHEN, "when") }

func (l *Lexer) while() bool { return l.keywordLine(WHILE, "while") }

func (l *Lexer) defaultStmt() bool {
	if !hasKeyword(l.input, "default") {
		return false
	}
	l.push(l.tok(DEFAULT, ""))
	l.consume(len("default"))
	return true
}

func (l *Lexer) extends() bool {
	return l.keywordLine(EXTENDS, "extends") || l.keywordLine(EXTENDS, "extend")
}

func (l *Lexer) mixinBlock() bool {
	if !hasKeyword(l.input, "block") {
		return false
	}
	if _, ok := endOfLine(l.input[len("block"):]); !ok {
		return false
	}
	line := restOfLine(l.input)
	l.push(l.tok(MIXIN_BLOCK, ""))
	l.consume(len(line))
	return true
}

var namedBlockRe = regexp.MustCompile(`^(?:block +)?(prepend|append) +([^\n]+)|^block +([^\n]+)`)

func (l *Lexer) namedBlock() bool {
	if !hasKeyword(l.input, "block") && !hasKeyword(l.input, "append") && !hasKeyword(l.input, "prepend") {
		return false
	}
	m := namedBlockRe.FindStringSubmatch(l.input)
	if m == nil {
		return false
	}
	tok := l.tok(BLOCK, "")
	if m[1] != "" {
		tok.Key = m[1]
		tok.Value = strings.TrimSpace(m[2])
	} else {
		tok.Key = "replace"
		tok.Value = strings.TrimSpace(m[3])
	}
	l.push(tok)
	l.consume(len(m[0]))
	return true
}

func (l *Lexer) include() bool {
	if !hasKeyword(l.input, "include") {
		return false
	}
	line := restOfLine(l.input)
	tok := l.tok(INCLUDE, "")
	rest := line[len("include"):]
	if strings.HasPrefix(rest, ":") {
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		tok.Name = rest[1:end]
		rest = rest[end:]
	}
	tok.Value = strings.TrimSpace(rest)
	l.push(tok)
	l.consume(len(line))
	return true
}

var mixinRe = regexp.MustCompile(`^mixin +([-\w]+)(?: *\((.*)\))? *`)

func (l *Lexer) mixin() bool {
	if !hasKeyword(l.input, "mixin") {
		return false
	}
	tok := l.tok(MIXIN, "")
	if m := mixinRe.FindStringSubmatch(l.input); m != nil {
		tok.Name = m[1]
		tok.Args = m[2]
		l.consume(len(m[0]))
	} else {
		l.consume(len(restOfLine(l.input)))
	}
	l.push(tok)
	return true
}

var (
	callRe     = regexp.MustCompile(`^\+([-\w]+)`)
	callAttrRe = regexp.MustCompile(`^\s*[-\w]+ *=`)
)

func (l *Lexer) call() bool {
	m := callRe.FindStringSubmatch(l.input)
	if m == nil {
		return false
	}
	tok := l.tok(CALL, "")
	tok.Name = m[1]
	l.consume(len(m[0]))
	if strings.HasPrefix(l.input, "(") {
		if end := skipBalanced(l.input, 0); end > 0 && !callAttrRe.MatchString(l.input[1:end]) {
			tok.Args = l.input[1:end]
			l.consume(end + 1)
		}
	}
	l.push(tok)
	return true
}

func (l *Lexer) conditional() bool {
	return l.keywordLine(ELSE_IF, "else if") ||
		l.keywordLine(IF, "if") ||
		l.keywordLine(UNLESS, "unless") ||
		l.keywordLine(ELSE, "else")
}

var eachRe = regexp.MustCompile(`^(?:each|for) +([a-zA-Z_$][\w$]*)(?: *, *([a-zA-Z_$][\w$]*))? +(in|of) +([^\n]+)`)

func (l *Lexer) each() bool {
	if !hasKeyword(l.input, "each") && !hasKeyword(l.input, "for") {
		return false
	}
	line := restOfLine(l.input)
	tok := l.tok(EACH, "")
	if m := eachRe.FindStringSubmatch(line); m != nil {
		tok.Name = m[1]
		tok.Key = m[2]
		tok.Value = strings.TrimSpace(m[4])
		if m[3] == "of" {
			tok.Type = EACH_OF
		}
	} else {
		tok.Value = line
	}
	l.push(tok)
	l.consume(len(line))
	return true
}

func (l *Lexer) blockCode() bool {
	if !strings.HasPrefix(l.input, "-") {
		return false
	}
	trail, ok := endOfLine(l.input[1:])
	if !ok {
		return false
	}
	tok := l.tok(BLOCK_CODE, "")
	l.push(tok)
	l.consume(1 + trail)
	l.interpolationAllowed = false
	l.pipelessText(0)
	return true
}

var codeRe = regexp.MustCompile(`^(!?=|-)[ \t]*([^\n]+)`)

func (l *Lexer) code() bool {
	m := codeRe.FindStringSubmatch(l.input)
	if m == nil {
		return false
	}
	tok := l.tok(CODE, m[2])
	tok.Buffer = m[1] != "-"
	tok.MustEscape = m[1] == "="
	l.push(tok)
	l.consume(len(m[0]))
	return true
}

func (l *Lexer) fail() {
	text := restOfLine(l.input)
	if r := []rune(text); len(r) > 5 {
		text = string(r[:5])
	}
	l.errorf("LEX-0001", map[string]any{"Text": text})
}
