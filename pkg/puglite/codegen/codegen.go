// Package codegen turns a puglite syntax tree into a Program: the ordered
// output statements of a template function.
//
// The generator is where the static subset is enforced. The parser accepts
// the full pug grammar, and every dynamic construct it produces is
// rejected here with a message naming the construct.
package codegen

import (
	"strings"

	"github.com/puglite/puglite/pkg/puglite/ast"
	perrors "github.com/puglite/puglite/pkg/puglite/errors"
	"github.com/puglite/puglite/pkg/puglite/expr"
	"github.com/puglite/puglite/pkg/puglite/filters"
	"github.com/puglite/puglite/pkg/puglite/lexer"
	"github.com/puglite/puglite/pkg/puglite/runtime"
)

// maxConcatenations bounds the operands merged into one output statement.
const maxConcatenations = 100

// whitespaceSensitive tags never receive pretty print indentation.
var whitespaceSensitive = map[string]bool{
	"pre":      true,
	"textarea": true,
}

// Compiler holds the state of one generation pass.
type Compiler struct {
	root ast.Node
	opts Options

	pp      string
	debug   bool
	indents int
	terse   bool
	xml     bool
	doctype string

	hasCompiledDoctype bool
	hasCompiledTag     bool
	escapePrettyMode   bool

	prog                       *Program
	lastBufferedIdx            int
	bufferedConcatenationCount int
}

type genPanic struct {
	err *perrors.PugliteError
}

// New validates opts and returns a compiler for root.
func New(root ast.Node, opts Options) (*Compiler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Compiler{root: root, opts: opts}, nil
}

// Generate compiles root in one step.
func Generate(root ast.Node, opts Options) (*Program, error) {
	c, err := New(root, opts)
	if err != nil {
		return nil, err
	}
	return c.Compile()
}

// Compile runs the generator. Each call starts from fresh state.
func (c *Compiler) Compile() (prog *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			gp, ok := r.(genPanic)
			if !ok {
				panic(r)
			}
			prog, err = nil, gp.err
		}
	}()

	c.pp = c.opts.Pretty
	c.debug = c.opts.CompileDebug
	c.indents = 0
	c.terse, c.xml, c.doctype = false, false, ""
	c.hasCompiledDoctype, c.hasCompiledTag, c.escapePrettyMode = false, false, false
	if c.opts.Doctype != "" {
		c.setDoctype(c.opts.Doctype)
	}

	c.prog = &Program{
		Name:           c.opts.templateName(),
		pretty:         c.pp != "",
		debug:          c.debug,
		self:           c.opts.Self,
		globals:        c.opts.Globals,
		includeSources: c.opts.IncludeSources,
		inlineRuntime:  c.opts.InlineRuntimeFunctions,
	}
	c.lastBufferedIdx = -1
	c.bufferedConcatenationCount = 0

	if c.root == nil {
		c.fail("GEN-0014", lexer.Token{}, map[string]any{"Expr": "template", "Detail": "no syntax tree to compile"})
	}
	c.visit(c.root)
	return c.prog, nil
}

// Terse reports whether the last compile resolved to HTML5 terse mode.
func (c *Compiler) Terse() bool {
	return c.terse
}

func (c *Compiler) fail(id string, tok lexer.Token, data map[string]any) {
	panic(genPanic{perrors.NewAt(id, tok.Filename, tok.Line, tok.Column, data)})
}

// setDoctype resolves name and derives terse and xml mode from it.
func (c *Compiler) setDoctype(name string) {
	c.doctype = DoctypeMarkup(name)
	c.terse = strings.ToLower(c.doctype) == "<!doctype html>"
	c.xml = strings.HasPrefix(c.doctype, "<?xml")
}

// ============================================================================
// Buffering
// ============================================================================

func (c *Compiler) open() bool {
	return c.lastBufferedIdx == len(c.prog.Statements) &&
		c.bufferedConcatenationCount < maxConcatenations
}

// buffer appends literal text, merging it into the open statement.
func (c *Compiler) buffer(s string) {
	if c.open() {
		st := &c.prog.Statements[c.lastBufferedIdx-1]
		if last := &st.Parts[len(st.Parts)-1]; last.Expr == nil {
			last.Text += s
			return
		}
		st.Parts = append(st.Parts, Part{Text: s})
		c.bufferedConcatenationCount++
		return
	}
	c.bufferedConcatenationCount = 0
	c.prog.Statements = append(c.prog.Statements, Statement{Parts: []Part{{Text: s}}})
	c.lastBufferedIdx = len(c.prog.Statements)
}

// bufferExpression appends n, folding it to text when it is constant.
func (c *Compiler) bufferExpression(n expr.Node, tok lexer.Token) {
	if expr.IsConstant(n) {
		c.buffer(runtime.ToString(c.fold(n, tok)))
		return
	}
	if c.open() {
		st := &c.prog.Statements[c.lastBufferedIdx-1]
		st.Parts = append(st.Parts, Part{Expr: n})
		c.bufferedConcatenationCount++
		return
	}
	c.bufferedConcatenationCount = 0
	c.prog.Statements = append(c.prog.Statements, Statement{Parts: []Part{{Expr: n}}})
	c.lastBufferedIdx = len(c.prog.Statements)
}

func (c *Compiler) fold(n expr.Node, tok lexer.Token) any {
	v, err := expr.Fold(n)
	if err != nil {
		c.fail("GEN-0014", tok, map[string]any{"Expr": n.String(), "Detail": err.Error()})
	}
	return v
}

// prettyIndent buffers a newline (optionally) and the current indent.
func (c *Compiler) prettyIndent(offset int, newline bool) {
	n := c.indents + offset - 1
	if n < 0 {
		n = 0
	}
	s := strings.Repeat(c.pp, n)
	if newline {
		s = "\n" + s
	}
	c.buffer(s)
}

// ============================================================================
// Visitors
// ============================================================================

func (c *Compiler) visit(n ast.Node) {
	if c.debug {
		if _, isBlock := n.(*ast.Block); !isBlock {
			if tok := n.Pos(); tok.Line > 0 {
				c.prog.Statements = append(c.prog.Statements, Statement{Line: tok.Line, Filename: tok.Filename})
			}
		}
	}

	switch x := n.(type) {
	case *ast.Block:
		c.visitBlock(x)
	case *ast.Doctype:
		c.visitDoctype(x)
	case *ast.Tag:
		c.visitTag(x, nil)
	case *ast.InterpolatedTag:
		c.visitTag(&x.Tag, x)
	case *ast.Text:
		c.buffer(x.Val)
	case *ast.Comment:
		c.visitComment(x)
	case *ast.BlockComment:
		c.visitBlockComment(x)
	case *ast.YieldBlock:
		// An include point with nothing included renders nothing.

	case *ast.Code:
		c.fail("GEN-0001", x.Token, nil)
	case *ast.Conditional:
		c.fail("GEN-0002", x.Token, nil)
	case *ast.While:
		c.fail("GEN-0003", x.Token, nil)
	case *ast.Each:
		c.fail("GEN-0004", x.Token, nil)
	case *ast.EachOf:
		c.fail("GEN-0004", x.Token, nil)
	case *ast.Mixin:
		c.fail("GEN-0005", x.Token, nil)
	case *ast.MixinBlock:
		c.fail("GEN-0006", x.Token, nil)
	case *ast.Case:
		c.fail("GEN-0007", x.Token, nil)
	case *ast.When:
		c.fail("GEN-0008", x.Token, nil)
	case *ast.Extends:
		c.fail("GEN-0009", x.Token, nil)
	case *ast.Include:
		c.fail("GEN-0009", x.Token, nil)
	case *ast.NamedBlock:
		c.fail("GEN-0010", x.Token, nil)
	case *ast.Filter:
		c.fail("GEN-0011", x.Token, map[string]any{
			"Name":      x.Name,
			"Available": strings.Join(filters.Default().Names(), ", "),
		})
	default:
		c.fail("GEN-0014", n.Pos(), map[string]any{"Expr": n.String(), "Detail": "unknown node type"})
	}
}

func isText(n ast.Node) bool {
	_, ok := n.(*ast.Text)
	return ok
}

func (c *Compiler) visitBlock(b *ast.Block) {
	if b == nil {
		return
	}
	pp := c.pp != "" && !c.escapePrettyMode
	nodes := b.Nodes

	// Multi-line text starts on its own line.
	if pp && len(nodes) > 1 && isText(nodes[0]) && isText(nodes[1]) {
		c.prettyIndent(1, true)
	}
	for i, n := range nodes {
		if pp && i > 0 && isText(n) && isText(nodes[i-1]) &&
			strings.HasSuffix(nodes[i-1].(*ast.Text).Val, "\n") {
			c.prettyIndent(1, false)
		}
		c.visit(n)
	}
}

// visitDoctype buffers the doctype. d is nil for the implicit doctype
// emitted before the first html tag.
func (c *Compiler) visitDoctype(d *ast.Doctype) {
	if d != nil && (d.Val != "" || c.doctype == "") {
		name := d.Val
		if name == "" {
			name = "html"
		}
		c.setDoctype(name)
	}
	if c.doctype != "" {
		c.buffer(c.doctype)
	}
	c.hasCompiledDoctype = true
}

func (c *Compiler) visitComment(comment *ast.Comment) {
	if !comment.Buffer {
		return
	}
	if c.pp != "" {
		c.prettyIndent(1, true)
	}
	c.buffer("<!--" + comment.Val + "-->")
}

func (c *Compiler) visitBlockComment(comment *ast.BlockComment) {
	if !comment.Buffer {
		return
	}
	if c.pp != "" {
		c.prettyIndent(1, true)
	}
	c.buffer("<!--" + comment.Val)
	c.visitBlock(comment.Block)
	if c.pp != "" {
		c.prettyIndent(1, true)
	}
	c.buffer("-->")
}

// visitTag buffers a tag, its attributes and its content. interp is set
// for #{expr} tag names.
func (c *Compiler) visitTag(tag *ast.Tag, interp *ast.InterpolatedTag) {
	c.indents++
	name := tag.Name
	pp := c.pp != ""

	bufferName := func() {
		if interp != nil {
			c.bufferExpression(c.expression(interp.Expr, "tag", tag.Token), tag.Token)
		} else {
			c.buffer(name)
		}
	}

	if whitespaceSensitive[name] {
		c.escapePrettyMode = true
	}

	if !c.hasCompiledTag {
		if !c.hasCompiledDoctype && name == "html" {
			c.visitDoctype(nil)
		}
		c.hasCompiledTag = true
	}

	if pp && !tag.IsInline {
		c.prettyIndent(0, true)
	}

	if tag.SelfClosing || (!c.xml && ast.VoidElements[name]) {
		if tag.Code != nil || hasContent(tag.Block) {
			c.fail("GEN-0013", tag.Token, map[string]any{"Name": name})
		}
		c.buffer("<")
		bufferName()
		c.visitAttributes(tag)
		if c.terse && !tag.SelfClosing {
			c.buffer(">")
		} else {
			c.buffer("/>")
		}
	} else {
		c.buffer("<")
		bufferName()
		c.visitAttributes(tag)
		c.buffer(">")
		if tag.Code != nil {
			c.visit(tag.Code)
		}
		c.visitBlock(tag.Block)

		if pp && !tag.IsInline && !whitespaceSensitive[name] && !tagCanInline(tag) {
			c.prettyIndent(0, true)
		}

		c.buffer("</")
		bufferName()
		c.buffer(">")
	}

	if whitespaceSensitive[name] {
		c.escapePrettyMode = false
	}
	c.indents--
}

// hasContent reports whether a block holds anything but whitespace text.
func hasContent(b *ast.Block) bool {
	if b.Empty() {
		return false
	}
	for _, n := range b.Nodes {
		t, ok := n.(*ast.Text)
		if !ok || strings.TrimSpace(t.Val) != "" {
			return true
		}
	}
	return false
}

// tagCanInline reports whether all of tag's content fits on one line.
func tagCanInline(tag *ast.Tag) bool {
	if tag.Block == nil {
		return true
	}
	for _, n := range tag.Block.Nodes {
		if !isInlineNode(n) {
			return false
		}
	}
	return true
}

func isInlineNode(n ast.Node) bool {
	switch x := n.(type) {
	case *ast.Block:
		for _, child := range x.Nodes {
			if !isInlineNode(child) {
				return false
			}
		}
		return true
	case *ast.YieldBlock:
		return true
	case *ast.Text:
		return !strings.Contains(x.Val, "\n")
	case *ast.Tag:
		return x.IsInline
	case *ast.InterpolatedTag:
		return x.IsInline
	case *ast.Code:
		return x.IsInline
	}
	return false
}
