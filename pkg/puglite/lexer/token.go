package lexer

import "fmt"

// TokenType represents different types of tokens
type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF
	NEWLINE
	INDENT
	OUTDENT

	// Tag heads
	TAG         // div, fb:foo-bar
	CLASS       // .foo
	ID          // #foo
	INTERP_TAG  // #{expr}
	SLASH       // / (explicit self-closing)
	DOT         // . (piped block follows)
	COLON       // ": " (block expansion)
	AND_ATTRS   // &attributes(expr)
	START_ATTRS // (
	ATTRIBUTE   // name=value inside an attribute list
	ATTR_SEP    // , or newline between attributes
	END_ATTRS   // )

	// Text
	TEXT                // | text, tag text, piped block lines
	TEXT_HTML           // <literal html>
	START_PIPELESS_TEXT // beginning of a piped block
	END_PIPELESS_TEXT   // end of a piped block
	INTERPOLATED_CODE   // #{expr} or !{expr} inside text
	START_INTERP        // #[
	END_INTERP          // ]
	COMMENT             // // or //-
	DOCTYPE             // doctype html

	// Constructs the generator rejects
	CODE       // - code, = expr, != expr
	BLOCK_CODE // - followed by an indented block
	IF         // if cond
	ELSE_IF    // else if cond
	ELSE       // else
	UNLESS     // unless cond
	WHILE      // while cond
	EACH       // each x in xs
	EACH_OF    // each x of xs
	CASE       // case expr
	WHEN       // when expr
	DEFAULT    // default
	MIXIN      // mixin name(args)
	CALL       // +name(args)
	MIXIN_BLOCK
	BLOCK   // block name, append name, prepend name
	YIELD   // yield
	EXTENDS // extends path
	INCLUDE // include path
	FILTER  // :name
)

var tokenNames = map[TokenType]string{
	ILLEGAL:             "ILLEGAL",
	EOF:                 "EOF",
	NEWLINE:             "NEWLINE",
	INDENT:              "INDENT",
	OUTDENT:             "OUTDENT",
	TAG:                 "TAG",
	CLASS:               "CLASS",
	ID:                  "ID",
	INTERP_TAG:          "INTERP_TAG",
	SLASH:               "SLASH",
	DOT:                 "DOT",
	COLON:               "COLON",
	AND_ATTRS:           "AND_ATTRS",
	START_ATTRS:         "START_ATTRS",
	ATTRIBUTE:           "ATTRIBUTE",
	ATTR_SEP:            "ATTR_SEP",
	END_ATTRS:           "END_ATTRS",
	TEXT:                "TEXT",
	TEXT_HTML:           "TEXT_HTML",
	START_PIPELESS_TEXT: "START_PIPELESS_TEXT",
	END_PIPELESS_TEXT:   "END_PIPELESS_TEXT",
	INTERPOLATED_CODE:   "INTERPOLATED_CODE",
	START_INTERP:        "START_INTERP",
	END_INTERP:          "END_INTERP",
	COMMENT:             "COMMENT",
	DOCTYPE:             "DOCTYPE",
	CODE:                "CODE",
	BLOCK_CODE:          "BLOCK_CODE",
	IF:                  "IF",
	ELSE_IF:             "ELSE_IF",
	ELSE:                "ELSE",
	UNLESS:              "UNLESS",
	WHILE:               "WHILE",
	EACH:                "EACH",
	EACH_OF:             "EACH_OF",
	CASE:                "CASE",
	WHEN:                "WHEN",
	DEFAULT:             "DEFAULT",
	MIXIN:               "MIXIN",
	CALL:                "CALL",
	MIXIN_BLOCK:         "MIXIN_BLOCK",
	BLOCK:               "BLOCK",
	YIELD:               "YIELD",
	EXTENDS:             "EXTENDS",
	INCLUDE:             "INCLUDE",
	FILTER:              "FILTER",
}

func (tt TokenType) String() string {
	if name, ok := tokenNames[tt]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token represents a lexical token. Tokens are immutable once emitted.
type Token struct {
	Type     TokenType
	Value    string // tag/class/id name, text, expression source, comment body
	Line     int
	Column   int
	Filename string

	Name       string // ATTRIBUTE name, FILTER name, CALL/MIXIN name, EACH value variable
	Key        string // EACH key variable, BLOCK mode (replace/append/prepend)
	Args       string // CALL/MIXIN arguments
	MustEscape bool   // ATTRIBUTE and INTERPOLATED_CODE escaping
	Buffer     bool   // COMMENT and CODE buffering
}

func (t Token) String() string {
	switch t.Type {
	case ATTRIBUTE:
		return fmt.Sprintf("%s(%s=%s) at %d:%d", t.Type, t.Name, t.Value, t.Line, t.Column)
	case EOF, NEWLINE, INDENT, OUTDENT, START_ATTRS, END_ATTRS:
		return fmt.Sprintf("%s at %d:%d", t.Type, t.Line, t.Column)
	}
	return fmt.Sprintf("%s(%q) at %d:%d", t.Type, truncate(t.Value, 30), t.Line, t.Column)
}

// Describe returns a short human-readable form for error messages.
func (t Token) Describe() string {
	switch t.Type {
	case EOF:
		return "end of input"
	case NEWLINE:
		return "newline"
	case INDENT:
		return "indent"
	case OUTDENT:
		return "outdent"
	case ATTRIBUTE:
		return t.Name
	case START_ATTRS:
		return "("
	case END_ATTRS:
		return ")"
	case COLON:
		return ":"
	case SLASH:
		return "/"
	case DOT:
		return "."
	}
	if t.Value != "" {
		return truncate(t.Value, 30)
	}
	return t.Type.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
