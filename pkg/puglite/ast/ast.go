// Package ast defines the puglite syntax tree produced by the parser.
package ast

import (
	"bytes"
	"strings"

	"github.com/puglite/puglite/pkg/puglite/lexer"
)

// Node represents any node in the AST
type Node interface {
	TokenLiteral() string
	String() string
	Pos() lexer.Token
}

// Block is an ordered list of sibling nodes.
type Block struct {
	Token lexer.Token
	Nodes []Node
}

func (b *Block) TokenLiteral() string { return b.Token.Value }
func (b *Block) Pos() lexer.Token     { return b.Token }
func (b *Block) String() string {
	var out bytes.Buffer
	for i, n := range b.Nodes {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(n.String())
	}
	return out.String()
}

// Empty reports whether the block has no children.
func (b *Block) Empty() bool {
	return b == nil || len(b.Nodes) == 0
}

// Attr is one attribute of a tag. Val holds the raw expression source.
type Attr struct {
	Token      lexer.Token
	Name       string
	Val        string
	MustEscape bool
	Shorthand  bool // from .class or #id
}

func (a *Attr) String() string {
	op := "="
	if !a.MustEscape {
		op = "!="
	}
	return a.Name + op + a.Val
}

// AttributeBlock is an &attributes(expr) spread.
type AttributeBlock struct {
	Token lexer.Token
	Val   string
}

// Tag is an element such as div or fb:foo-bar. InterpolatedTag uses the
// same shape with an expression for the name.
type Tag struct {
	Token           lexer.Token
	Name            string
	SelfClosing     bool // explicit trailing /
	Attrs           []*Attr
	AttributeBlocks []*AttributeBlock
	Block           *Block
	Code            *Code // tag= expr
	IsInline        bool
	TextOnly        bool // followed by "." and a piped block
}

func (t *Tag) TokenLiteral() string { return t.Token.Value }
func (t *Tag) Pos() lexer.Token     { return t.Token }
func (t *Tag) String() string {
	return tagString(t.Name, t)
}

func tagString(name string, t *Tag) string {
	var out bytes.Buffer
	out.WriteString(name)
	if len(t.Attrs) > 0 {
		parts := make([]string, len(t.Attrs))
		for i, a := range t.Attrs {
			parts[i] = a.String()
		}
		out.WriteString("(" + strings.Join(parts, ", ") + ")")
	}
	for _, ab := range t.AttributeBlocks {
		out.WriteString("&attributes(" + ab.Val + ")")
	}
	if t.SelfClosing {
		out.WriteString("/")
	}
	if t.Code != nil {
		out.WriteString(t.Code.String())
	}
	if !t.Block.Empty() {
		out.WriteString("\n" + indent(t.Block.String()))
	}
	return out.String()
}

// InterpolatedTag is #{expr}(attrs) where the tag name is computed.
type InterpolatedTag struct {
	Tag
	Expr string
}

func (t *InterpolatedTag) String() string {
	return tagString("#{"+t.Expr+"}", &t.Tag)
}

// Text is literal content. IsHTML marks lines starting with "<" that pass
// through verbatim.
type Text struct {
	Token  lexer.Token
	Val    string
	IsHTML bool
}

func (t *Text) TokenLiteral() string { return t.Token.Value }
func (t *Text) Pos() lexer.Token     { return t.Token }
func (t *Text) String() string {
	if t.IsHTML {
		return t.Val
	}
	return "| " + t.Val
}

// Code is a code line or an interpolated #{expr}. Only buffered code whose
// value is an expression can be compiled.
type Code struct {
	Token      lexer.Token
	Val        string
	Buffer     bool
	MustEscape bool
	IsInline   bool
	Block      *Block
}

func (c *Code) TokenLiteral() string { return c.Token.Value }
func (c *Code) Pos() lexer.Token     { return c.Token }
func (c *Code) String() string {
	switch {
	case c.IsInline && c.MustEscape:
		return "#{" + c.Val + "}"
	case c.IsInline:
		return "!{" + c.Val + "}"
	case !c.Buffer:
		return "- " + c.Val
	case c.MustEscape:
		return "= " + c.Val
	}
	return "!= " + c.Val
}

// Comment is a single-line comment.
type Comment struct {
	Token  lexer.Token
	Val    string
	Buffer bool
}

func (c *Comment) TokenLiteral() string { return c.Token.Value }
func (c *Comment) Pos() lexer.Token     { return c.Token }
func (c *Comment) String() string       { return commentPrefix(c.Buffer) + c.Val }

// BlockComment is a comment followed by an indented text block.
type BlockComment struct {
	Token  lexer.Token
	Val    string
	Buffer bool
	Block  *Block
}

func (c *BlockComment) TokenLiteral() string { return c.Token.Value }
func (c *BlockComment) Pos() lexer.Token     { return c.Token }
func (c *BlockComment) String() string {
	return commentPrefix(c.Buffer) + c.Val + "\n" + indent(c.Block.String())
}

func commentPrefix(buffer bool) string {
	if buffer {
		return "//"
	}
	return "//-"
}

// Doctype is a doctype declaration. An empty Val means html.
type Doctype struct {
	Token lexer.Token
	Val   string
}

func (d *Doctype) TokenLiteral() string { return d.Token.Value }
func (d *Doctype) Pos() lexer.Token     { return d.Token }
func (d *Doctype) String() string       { return "doctype " + d.Val }

// Filter is a :name block of text transformed at compile time.
type Filter struct {
	Token lexer.Token
	Name  string
	Attrs []*Attr
	Block *Block
}

func (f *Filter) TokenLiteral() string { return f.Token.Value }
func (f *Filter) Pos() lexer.Token     { return f.Token }
func (f *Filter) String() string {
	s := ":" + f.Name
	if !f.Block.Empty() {
		s += "\n" + indent(f.Block.String())
	}
	return s
}

// Conditional is if/unless with optional else branches. Alternate is
// another *Conditional for "else if", or a *Block.
type Conditional struct {
	Token      lexer.Token
	Test       string
	Unless     bool
	Consequent *Block
	Alternate  Node
}

func (c *Conditional) TokenLiteral() string { return c.Token.Value }
func (c *Conditional) Pos() lexer.Token     { return c.Token }
func (c *Conditional) String() string {
	kw := "if "
	if c.Unless {
		kw = "unless "
	}
	s := kw + c.Test + nested(c.Consequent)
	if c.Alternate != nil {
		s += "\nelse " + c.Alternate.String()
	}
	return s
}

// While is a while loop.
type While struct {
	Token lexer.Token
	Test  string
	Block *Block
}

func (w *While) TokenLiteral() string { return w.Token.Value }
func (w *While) Pos() lexer.Token     { return w.Token }
func (w *While) String() string       { return "while " + w.Test + nested(w.Block) }

// Each is an each/for loop over an object or array.
type Each struct {
	Token     lexer.Token
	Obj       string
	Val       string
	Key       string
	Block     *Block
	Alternate *Block
}

func (e *Each) TokenLiteral() string { return e.Token.Value }
func (e *Each) Pos() lexer.Token     { return e.Token }
func (e *Each) String() string       { return "each " + e.Val + " in " + e.Obj + nested(e.Block) }

// EachOf is an each ... of loop over an iterable.
type EachOf struct {
	Token lexer.Token
	Obj   string
	Val   string
	Block *Block
}

func (e *EachOf) TokenLiteral() string { return e.Token.Value }
func (e *EachOf) Pos() lexer.Token     { return e.Token }
func (e *EachOf) String() string       { return "each " + e.Val + " of " + e.Obj + nested(e.Block) }

// Case is a case statement; its block holds When nodes.
type Case struct {
	Token lexer.Token
	Expr  string
	Block *Block
}

func (c *Case) TokenLiteral() string { return c.Token.Value }
func (c *Case) Pos() lexer.Token     { return c.Token }
func (c *Case) String() string       { return "case " + c.Expr + nested(c.Block) }

// When is one branch of a case. Default marks the default branch.
type When struct {
	Token   lexer.Token
	Expr    string
	Default bool
	Block   *Block
}

func (w *When) TokenLiteral() string { return w.Token.Value }
func (w *When) Pos() lexer.Token     { return w.Token }
func (w *When) String() string {
	if w.Default {
		return "default" + nested(w.Block)
	}
	return "when " + w.Expr + nested(w.Block)
}

// Mixin is a mixin declaration, or a +call when Call is set.
type Mixin struct {
	Token lexer.Token
	Name  string
	Args  string
	Call  bool
	Block *Block
}

func (m *Mixin) TokenLiteral() string { return m.Token.Value }
func (m *Mixin) Pos() lexer.Token     { return m.Token }
func (m *Mixin) String() string {
	head := "mixin " + m.Name
	if m.Call {
		head = "+" + m.Name
	}
	if m.Args != "" {
		head += "(" + m.Args + ")"
	}
	return head + nested(m.Block)
}

// MixinBlock is a bare block keyword inside a mixin body.
type MixinBlock struct {
	Token lexer.Token
}

func (m *MixinBlock) TokenLiteral() string { return m.Token.Value }
func (m *MixinBlock) Pos() lexer.Token     { return m.Token }
func (m *MixinBlock) String() string       { return "block" }

// NamedBlock is block/append/prepend name, used for template inheritance.
type NamedBlock struct {
	Token lexer.Token
	Name  string
	Mode  string // replace, append or prepend
	Block *Block
}

func (b *NamedBlock) TokenLiteral() string { return b.Token.Value }
func (b *NamedBlock) Pos() lexer.Token     { return b.Token }
func (b *NamedBlock) String() string       { return "block " + b.Mode + " " + b.Name + nested(b.Block) }

// Extends names a parent layout.
type Extends struct {
	Token lexer.Token
	Path  string
}

func (e *Extends) TokenLiteral() string { return e.Token.Value }
func (e *Extends) Pos() lexer.Token     { return e.Token }
func (e *Extends) String() string       { return "extends " + e.Path }

// Include pulls in another file, optionally through a filter.
type Include struct {
	Token  lexer.Token
	Path   string
	Filter string
	Block  *Block
}

func (i *Include) TokenLiteral() string { return i.Token.Value }
func (i *Include) Pos() lexer.Token     { return i.Token }
func (i *Include) String() string       { return "include " + i.Path + nested(i.Block) }

// YieldBlock marks where included content would go. It renders nothing.
type YieldBlock struct {
	Token lexer.Token
}

func (y *YieldBlock) TokenLiteral() string { return y.Token.Value }
func (y *YieldBlock) Pos() lexer.Token     { return y.Token }
func (y *YieldBlock) String() string       { return "yield" }

func nested(b *Block) string {
	if b.Empty() {
		return ""
	}
	return "\n" + indent(b.String())
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

// InlineTags lists phrasing elements that do not trigger pretty-print
// newlines around themselves.
var InlineTags = map[string]bool{
	"a": true, "abbr": true, "acronym": true, "b": true, "br": true,
	"code": true, "em": true, "font": true, "i": true, "img": true,
	"ins": true, "kbd": true, "map": true, "samp": true, "small": true,
	"span": true, "strong": true, "sub": true, "sup": true,
}

// VoidElements lists elements that never have content or a closing tag.
var VoidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
	"command": true, "keygen": true,
}

// Walk calls fn for n and every node beneath it, depth first. Returning
// false from fn skips the node's children.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	var children *Block
	switch x := n.(type) {
	case *Block:
		for _, c := range x.Nodes {
			Walk(c, fn)
		}
		return
	case *Tag:
		if x.Code != nil {
			Walk(x.Code, fn)
		}
		children = x.Block
	case *InterpolatedTag:
		if x.Code != nil {
			Walk(x.Code, fn)
		}
		children = x.Block
	case *Code:
		children = x.Block
	case *BlockComment:
		children = x.Block
	case *Filter:
		children = x.Block
	case *Conditional:
		walkBlock(x.Consequent, fn)
		if x.Alternate != nil {
			Walk(x.Alternate, fn)
		}
	case *While:
		children = x.Block
	case *Each:
		walkBlock(x.Block, fn)
		children = x.Alternate
	case *EachOf:
		children = x.Block
	case *Case:
		children = x.Block
	case *When:
		children = x.Block
	case *Mixin:
		children = x.Block
	case *NamedBlock:
		children = x.Block
	case *Include:
		children = x.Block
	}
	walkBlock(children, fn)
}

func walkBlock(b *Block, fn func(Node) bool) {
	if b != nil {
		Walk(b, fn)
	}
}
