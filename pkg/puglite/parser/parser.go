// Package parser builds a puglite syntax tree from the lexer's token
// stream. It accepts the whole pug grammar, including constructs the
// generator later rejects, so that users get a construct-specific error
// instead of a syntax error.
package parser

import (
	"errors"

	"github.com/puglite/puglite/pkg/puglite/ast"
	perrors "github.com/puglite/puglite/pkg/puglite/errors"
	"github.com/puglite/puglite/pkg/puglite/expr"
	"github.com/puglite/puglite/pkg/puglite/lexer"
)

// Options configures parsing.
type Options struct {
	Filename string
	Src      string // source text, attached to errors for excerpts
	TabWidth int
}

// Parser represents the parser
type Parser struct {
	tokens []lexer.Token
	pos    int
	opts   Options

	structuredErrors []*perrors.PugliteError

	nodeParseFns map[lexer.TokenType]nodeParseFn
}

type nodeParseFn func() ast.Node

// bailout unwinds the parser after the first error has been recorded.
type bailout struct{}

// New creates a new parser instance
func New(tokens []lexer.Token, opts Options) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != lexer.EOF {
		tokens = append(tokens, lexer.Token{Type: lexer.EOF, Filename: opts.Filename})
	}
	p := &Parser{
		tokens: tokens,
		opts:   opts,
	}

	p.nodeParseFns = make(map[lexer.TokenType]nodeParseFn)
	p.registerNode(lexer.TAG, p.parseTag)
	p.registerNode(lexer.ID, p.parseImplicitDiv)
	p.registerNode(lexer.CLASS, p.parseImplicitDiv)
	p.registerNode(lexer.INTERP_TAG, p.parseInterpolatedTag)
	p.registerNode(lexer.TEXT, p.parseBlockText)
	p.registerNode(lexer.INTERPOLATED_CODE, p.parseBlockText)
	p.registerNode(lexer.START_INTERP, p.parseBlockText)
	p.registerNode(lexer.TEXT_HTML, p.parseTextHTMLBlock)
	p.registerNode(lexer.DOT, p.parseDot)
	p.registerNode(lexer.COMMENT, p.parseComment)
	p.registerNode(lexer.DOCTYPE, p.parseDoctype)
	p.registerNode(lexer.FILTER, p.parseFilter)
	p.registerNode(lexer.YIELD, p.parseYield)

	// Parsed so the generator can reject them by name.
	p.registerNode(lexer.CODE, p.parseCode)
	p.registerNode(lexer.BLOCK_CODE, p.parseBlockCode)
	p.registerNode(lexer.IF, p.parseConditional)
	p.registerNode(lexer.UNLESS, p.parseConditional)
	p.registerNode(lexer.WHILE, p.parseWhile)
	p.registerNode(lexer.EACH, p.parseEach)
	p.registerNode(lexer.EACH_OF, p.parseEach)
	p.registerNode(lexer.CASE, p.parseCase)
	p.registerNode(lexer.WHEN, p.parseWhen)
	p.registerNode(lexer.DEFAULT, p.parseWhen)
	p.registerNode(lexer.MIXIN, p.parseMixin)
	p.registerNode(lexer.CALL, p.parseCall)
	p.registerNode(lexer.MIXIN_BLOCK, p.parseMixinBlock)
	p.registerNode(lexer.BLOCK, p.parseNamedBlock)
	p.registerNode(lexer.EXTENDS, p.parseExtends)
	p.registerNode(lexer.INCLUDE, p.parseInclude)

	return p
}

// Parse lexes src, drops unbuffered comments and parses the result.
func Parse(src string, opts Options) (*ast.Block, error) {
	toks, err := lexer.Lex(src, lexer.Options{Filename: opts.Filename, TabWidth: opts.TabWidth})
	if err != nil {
		return nil, err
	}
	toks, err = lexer.StripComments(toks, false)
	if err != nil {
		return nil, err
	}
	if opts.Src == "" {
		opts.Src = src
	}
	return New(toks, opts).ParseTemplate()
}

// Errors returns parser errors as strings (convenience method for tests).
func (p *Parser) Errors() []string {
	result := make([]string, len(p.structuredErrors))
	for i, err := range p.structuredErrors {
		result[i] = err.String()
	}
	return result
}

// StructuredErrors returns parser errors as structured PugliteError objects.
func (p *Parser) StructuredErrors() []*perrors.PugliteError {
	return p.structuredErrors
}

// addStructuredError records a catalog error and abandons the parse.
// Only the first error is recorded - later ones are cascading noise.
func (p *Parser) addStructuredError(id string, tok lexer.Token, data map[string]any) {
	if len(p.structuredErrors) == 0 {
		err := perrors.NewAt(id, p.opts.Filename, tok.Line, tok.Column, data)
		if p.opts.Src != "" {
			err = err.WithSource(p.opts.Src)
		}
		p.structuredErrors = append(p.structuredErrors, err)
	}
	panic(bailout{})
}

func (p *Parser) registerNode(tokenType lexer.TokenType, fn nodeParseFn) {
	p.nodeParseFns[tokenType] = fn
}

// ParseTemplate parses the token stream into the root block.
func (p *Parser) ParseTemplate() (root *ast.Block, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			root, err = nil, p.structuredErrors[0]
		}
	}()

	root = p.emptyBlock(p.peek())
	for p.peek().Type != lexer.EOF {
		switch p.peek().Type {
		case lexer.NEWLINE:
			p.advance()
		case lexer.TEXT_HTML:
			root.Nodes = append(root.Nodes, p.parseTextHTML()...)
		default:
			root.Nodes = appendNode(root.Nodes, p.parseExpr())
		}
	}
	return root, nil
}

// ============================================================================
// Token helpers
// ============================================================================

func (p *Parser) peek() lexer.Token {
	return p.tokens[p.pos]
}

func (p *Parser) lookahead(n int) lexer.Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) advance() lexer.Token {
	tok := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(t lexer.TokenType) lexer.Token {
	if p.peek().Type != t {
		p.unexpected(p.peek())
	}
	return p.advance()
}

func (p *Parser) unexpected(tok lexer.Token) {
	if tok.Type == lexer.INDENT {
		after := "this line"
		if p.pos > 0 {
			after = p.tokens[p.pos-1].Describe()
		}
		p.addStructuredError("PARSE-0005", tok, map[string]any{"After": after})
	}
	p.addStructuredError("PARSE-0001", tok, map[string]any{"Token": tok.Describe()})
}

func (p *Parser) emptyBlock(tok lexer.Token) *ast.Block {
	return &ast.Block{Token: tok}
}

// appendNode splices a block's children in place of the block.
func appendNode(nodes []ast.Node, n ast.Node) []ast.Node {
	if b, ok := n.(*ast.Block); ok {
		return append(nodes, b.Nodes...)
	}
	return append(nodes, n)
}

// ============================================================================
// Blocks
// ============================================================================

func (p *Parser) parseExpr() ast.Node {
	tok := p.peek()
	fn, ok := p.nodeParseFns[tok.Type]
	if !ok {
		p.unexpected(tok)
	}
	return fn()
}

// block parses an INDENT ... OUTDENT run of siblings.
func (p *Parser) block() *ast.Block {
	tok := p.expect(lexer.INDENT)
	block := p.emptyBlock(tok)
	for p.peek().Type != lexer.OUTDENT {
		switch p.peek().Type {
		case lexer.NEWLINE:
			p.advance()
		case lexer.TEXT_HTML:
			block.Nodes = append(block.Nodes, p.parseTextHTML()...)
		case lexer.EOF:
			p.unexpected(p.peek())
		default:
			block.Nodes = appendNode(block.Nodes, p.parseExpr())
		}
	}
	p.expect(lexer.OUTDENT)
	return block
}

func (p *Parser) optionalBlock(tok lexer.Token) *ast.Block {
	if p.peek().Type == lexer.INDENT {
		return p.block()
	}
	return p.emptyBlock(tok)
}

// ============================================================================
// Text
// ============================================================================

func (p *Parser) parseBlockText() ast.Node {
	return p.parseText(true)
}

// parseText collects adjacent text, inline code and #[tag] runs. With
// multiline set, consecutive text lines are joined by "\n" text nodes.
func (p *Parser) parseText(multiline bool) ast.Node {
	first := p.peek()
	var nodes []ast.Node
loop:
	for {
		tok := p.peek()
		switch tok.Type {
		case lexer.TEXT:
			p.advance()
			nodes = append(nodes, &ast.Text{Token: tok, Val: tok.Value})
		case lexer.INTERPOLATED_CODE:
			p.advance()
			nodes = append(nodes, p.inlineCode(tok))
		case lexer.NEWLINE:
			if !multiline {
				break loop
			}
			p.advance()
			if next := p.peek().Type; next == lexer.TEXT || next == lexer.INTERPOLATED_CODE {
				nodes = append(nodes, &ast.Text{Token: tok, Val: "\n"})
			}
		case lexer.START_INTERP:
			p.advance()
			nodes = append(nodes, p.parseInlineTag())
		default:
			break loop
		}
	}
	if len(nodes) == 1 {
		return nodes[0]
	}
	return &ast.Block{Token: first, Nodes: nodes}
}

func (p *Parser) inlineCode(tok lexer.Token) *ast.Code {
	return &ast.Code{
		Token:      tok,
		Val:        tok.Value,
		Buffer:     true,
		MustEscape: tok.MustEscape,
		IsInline:   true,
	}
}

// parseInlineTag parses the inside of #[...] after START_INTERP.
func (p *Parser) parseInlineTag() ast.Node {
	n := p.parseExpr()
	markInline(n)
	p.expect(lexer.END_INTERP)
	return n
}

func markInline(n ast.Node) {
	switch t := n.(type) {
	case *ast.Tag:
		t.IsInline = true
	case *ast.InterpolatedTag:
		t.IsInline = true
	}
}

// parseTextBlock reads a piped text block, or returns nil when none follows.
func (p *Parser) parseTextBlock() *ast.Block {
	if p.peek().Type != lexer.START_PIPELESS_TEXT {
		return nil
	}
	block := p.emptyBlock(p.advance())
	for p.peek().Type != lexer.END_PIPELESS_TEXT {
		tok := p.advance()
		switch tok.Type {
		case lexer.TEXT:
			block.Nodes = append(block.Nodes, &ast.Text{Token: tok, Val: tok.Value})
		case lexer.NEWLINE:
			block.Nodes = append(block.Nodes, &ast.Text{Token: tok, Val: "\n"})
		case lexer.START_INTERP:
			block.Nodes = append(block.Nodes, p.parseInlineTag())
		case lexer.INTERPOLATED_CODE:
			block.Nodes = append(block.Nodes, p.inlineCode(tok))
		default:
			p.unexpected(tok)
		}
	}
	p.advance()
	return block
}

func (p *Parser) parseDot() ast.Node {
	tok := p.advance()
	if block := p.parseTextBlock(); block != nil {
		return block
	}
	return p.emptyBlock(tok)
}

// parseTextHTML joins consecutive literal HTML lines, including those in
// nested blocks, into single nodes.
func (p *Parser) parseTextHTML() []ast.Node {
	var nodes []ast.Node
	var current *ast.Text
	for {
		switch p.peek().Type {
		case lexer.TEXT_HTML:
			tok := p.advance()
			if current == nil {
				current = &ast.Text{Token: tok, Val: tok.Value, IsHTML: true}
				nodes = append(nodes, current)
			} else {
				current.Val += "\n" + tok.Value
			}
		case lexer.INDENT:
			for _, n := range p.block().Nodes {
				if t, ok := n.(*ast.Text); ok && t.IsHTML {
					if current == nil {
						current = t
						nodes = append(nodes, current)
					} else {
						current.Val += "\n" + t.Val
					}
					continue
				}
				current = nil
				nodes = append(nodes, n)
			}
		case lexer.NEWLINE:
			p.advance()
		default:
			return nodes
		}
	}
}

func (p *Parser) parseTextHTMLBlock() ast.Node {
	tok := p.peek()
	return &ast.Block{Token: tok, Nodes: p.parseTextHTML()}
}

func (p *Parser) parseComment() ast.Node {
	tok := p.expect(lexer.COMMENT)
	if block := p.parseTextBlock(); block != nil {
		return &ast.BlockComment{Token: tok, Val: tok.Value, Buffer: tok.Buffer, Block: block}
	}
	return &ast.Comment{Token: tok, Val: tok.Value, Buffer: tok.Buffer}
}

func (p *Parser) parseDoctype() ast.Node {
	tok := p.expect(lexer.DOCTYPE)
	return &ast.Doctype{Token: tok, Val: tok.Value}
}

func (p *Parser) parseFilter() ast.Node {
	tok := p.expect(lexer.FILTER)
	f := &ast.Filter{Token: tok, Name: tok.Name}
	if p.peek().Type == lexer.START_ATTRS {
		f.Attrs = p.attrs()
	}
	switch p.peek().Type {
	case lexer.TEXT:
		text := p.advance()
		f.Block = &ast.Block{Token: text, Nodes: []ast.Node{&ast.Text{Token: text, Val: text.Value}}}
	case lexer.FILTER:
		f.Block = &ast.Block{Token: tok, Nodes: []ast.Node{p.parseFilter()}}
	default:
		if f.Block = p.parseTextBlock(); f.Block == nil {
			f.Block = p.emptyBlock(tok)
		}
	}
	return f
}

func (p *Parser) parseYield() ast.Node {
	tok := p.expect(lexer.YIELD)
	if p.peek().Type == lexer.INDENT {
		p.addStructuredError("PARSE-0005", p.peek(), map[string]any{"After": "yield"})
	}
	return &ast.YieldBlock{Token: tok}
}

// ============================================================================
// Tags
// ============================================================================

func (p *Parser) parseTag() ast.Node {
	tok := p.expect(lexer.TAG)
	tag := &ast.Tag{
		Token:    tok,
		Name:     tok.Value,
		Block:    p.emptyBlock(tok),
		IsInline: ast.InlineTags[tok.Value],
	}
	p.tag(tag)
	return tag
}

// parseImplicitDiv handles a line starting with .class or #id.
func (p *Parser) parseImplicitDiv() ast.Node {
	tok := p.peek()
	tag := &ast.Tag{
		Token: tok,
		Name:  "div",
		Block: p.emptyBlock(tok),
	}
	p.tag(tag)
	return tag
}

func (p *Parser) parseInterpolatedTag() ast.Node {
	tok := p.expect(lexer.INTERP_TAG)
	if _, err := expr.Parse(tok.Value); err != nil {
		p.addStructuredError("PARSE-0006", tok, map[string]any{"Detail": syntaxDetail(err)})
	}
	tag := &ast.InterpolatedTag{
		Tag: ast.Tag{
			Token: tok,
			Block: p.emptyBlock(tok),
		},
		Expr: tok.Value,
	}
	p.tag(&tag.Tag)
	return tag
}

// tag parses everything after the tag name: shorthand, attribute lists,
// &attributes, then inline content and the nested block.
func (p *Parser) tag(tag *ast.Tag) {
heads:
	for {
		tok := p.peek()
		switch tok.Type {
		case lexer.ID, lexer.CLASS:
			p.advance()
			name := "class"
			if tok.Type == lexer.ID {
				name = "id"
			}
			tag.Attrs = append(tag.Attrs, &ast.Attr{
				Token:     tok,
				Name:      name,
				Val:       quote(tok.Value),
				Shorthand: true,
			})
		case lexer.START_ATTRS:
			tag.Attrs = append(tag.Attrs, p.attrs()...)
		case lexer.AND_ATTRS:
			p.advance()
			if _, err := expr.Parse(tok.Value); err != nil {
				p.addStructuredError("PARSE-0007", tok, map[string]any{"Detail": syntaxDetail(err)})
			}
			tag.AttributeBlocks = append(tag.AttributeBlocks, &ast.AttributeBlock{Token: tok, Val: tok.Value})
		default:
			break heads
		}
	}

	if p.peek().Type == lexer.DOT {
		tag.TextOnly = true
		p.advance()
	}

	switch tok := p.peek(); tok.Type {
	case lexer.TEXT, lexer.INTERPOLATED_CODE, lexer.START_INTERP:
		tag.Block.Nodes = appendNode(tag.Block.Nodes, p.parseText(false))
	case lexer.CODE:
		p.advance()
		tag.Code = &ast.Code{
			Token:      tok,
			Val:        tok.Value,
			Buffer:     tok.Buffer,
			MustEscape: tok.MustEscape,
			IsInline:   true,
		}
	case lexer.COLON:
		p.advance()
		switch next := p.peek(); next.Type {
		case lexer.NEWLINE, lexer.INDENT, lexer.OUTDENT, lexer.EOF:
			p.addStructuredError("PARSE-0002", tok, map[string]any{"Token": next.Describe()})
		}
		n := p.parseExpr()
		markInline(n)
		if b, ok := n.(*ast.Block); ok {
			tag.Block = b
		} else {
			tag.Block = &ast.Block{Token: tok, Nodes: []ast.Node{n}}
		}
	case lexer.SLASH:
		p.advance()
		tag.SelfClosing = true
	case lexer.NEWLINE, lexer.INDENT, lexer.OUTDENT, lexer.EOF,
		lexer.START_PIPELESS_TEXT, lexer.END_INTERP:
	default:
		p.unexpected(tok)
	}

	for p.peek().Type == lexer.NEWLINE {
		p.advance()
	}

	if tag.TextOnly {
		if block := p.parseTextBlock(); block != nil {
			tag.Block = block
		}
		return
	}
	if p.peek().Type == lexer.INDENT {
		tag.Block.Nodes = append(tag.Block.Nodes, p.block().Nodes...)
	}
}

// attrs parses one parenthesized attribute list.
func (p *Parser) attrs() []*ast.Attr {
	p.expect(lexer.START_ATTRS)
	var attrs []*ast.Attr
	for {
		tok := p.advance()
		switch tok.Type {
		case lexer.ATTRIBUTE:
			if _, err := expr.Parse(tok.Value); err != nil {
				p.addStructuredError("PARSE-0004", tok, map[string]any{
					"Name":   tok.Name,
					"Detail": syntaxDetail(err),
				})
			}
			attrs = append(attrs, &ast.Attr{
				Token:      tok,
				Name:       tok.Name,
				Val:        tok.Value,
				MustEscape: tok.MustEscape,
			})
		case lexer.ATTR_SEP:
		case lexer.END_ATTRS:
			return attrs
		default:
			p.addStructuredError("PARSE-0003", tok, map[string]any{"Token": tok.Describe()})
		}
	}
}

func syntaxDetail(err error) string {
	var se *expr.SyntaxError
	if errors.As(err, &se) {
		return se.Msg
	}
	return err.Error()
}

// quote renders s as a single-quoted expression literal.
func quote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(append(out, '\''))
}

// ============================================================================
// Dynamic constructs. These are kept in the tree with enough structure for
// the generator to reject them at the right position.
// ============================================================================

func (p *Parser) parseCode() ast.Node {
	tok := p.expect(lexer.CODE)
	return &ast.Code{
		Token:      tok,
		Val:        tok.Value,
		Buffer:     tok.Buffer,
		MustEscape: tok.MustEscape,
		Block:      p.optionalBlock(tok),
	}
}

func (p *Parser) parseBlockCode() ast.Node {
	tok := p.expect(lexer.BLOCK_CODE)
	code := &ast.Code{Token: tok}
	if block := p.parseTextBlock(); block != nil {
		for i, n := range block.Nodes {
			if t, ok := n.(*ast.Text); ok {
				if i > 0 && t.Val != "\n" {
					code.Val += "\n"
				}
				if t.Val != "\n" {
					code.Val += t.Val
				}
			}
		}
	}
	return code
}

func (p *Parser) parseConditional() ast.Node {
	tok := p.advance()
	node := &ast.Conditional{
		Token:      tok,
		Test:       tok.Value,
		Unless:     tok.Type == lexer.UNLESS,
		Consequent: p.optionalBlock(tok),
	}
	current := node
	for {
		switch p.peek().Type {
		case lexer.NEWLINE:
			p.advance()
			continue
		case lexer.ELSE_IF:
			tok := p.advance()
			next := &ast.Conditional{Token: tok, Test: tok.Value, Consequent: p.optionalBlock(tok)}
			current.Alternate = next
			current = next
			continue
		case lexer.ELSE:
			tok := p.advance()
			current.Alternate = p.optionalBlock(tok)
		}
		return node
	}
}

func (p *Parser) parseWhile() ast.Node {
	tok := p.expect(lexer.WHILE)
	return &ast.While{Token: tok, Test: tok.Value, Block: p.optionalBlock(tok)}
}

func (p *Parser) parseEach() ast.Node {
	tok := p.advance()
	block := p.optionalBlock(tok)
	if tok.Type == lexer.EACH_OF {
		return &ast.EachOf{Token: tok, Obj: tok.Value, Val: tok.Name, Block: block}
	}
	each := &ast.Each{Token: tok, Obj: tok.Value, Val: tok.Name, Key: tok.Key, Block: block}
	if p.peek().Type == lexer.ELSE {
		each.Alternate = p.optionalBlock(p.advance())
	}
	return each
}

func (p *Parser) parseCase() ast.Node {
	tok := p.expect(lexer.CASE)
	return &ast.Case{Token: tok, Expr: tok.Value, Block: p.optionalBlock(tok)}
}

func (p *Parser) parseWhen() ast.Node {
	tok := p.advance()
	when := &ast.When{Token: tok, Expr: tok.Value, Default: tok.Type == lexer.DEFAULT}
	if p.peek().Type == lexer.COLON {
		colon := p.advance()
		when.Block = &ast.Block{Token: colon, Nodes: []ast.Node{p.parseExpr()}}
		return when
	}
	when.Block = p.optionalBlock(tok)
	return when
}

func (p *Parser) parseMixin() ast.Node {
	tok := p.expect(lexer.MIXIN)
	return &ast.Mixin{Token: tok, Name: tok.Name, Args: tok.Args, Block: p.optionalBlock(tok)}
}

// parseCall reads +name(args) with the same tail a tag accepts.
func (p *Parser) parseCall() ast.Node {
	tok := p.expect(lexer.CALL)
	holder := &ast.Tag{Token: tok, Name: tok.Name, Block: p.emptyBlock(tok)}
	p.tag(holder)
	return &ast.Mixin{Token: tok, Name: tok.Name, Args: tok.Args, Call: true, Block: holder.Block}
}

func (p *Parser) parseMixinBlock() ast.Node {
	tok := p.expect(lexer.MIXIN_BLOCK)
	if p.peek().Type == lexer.INDENT {
		p.block()
	}
	return &ast.MixinBlock{Token: tok}
}

func (p *Parser) parseNamedBlock() ast.Node {
	tok := p.expect(lexer.BLOCK)
	return &ast.NamedBlock{Token: tok, Name: tok.Value, Mode: tok.Key, Block: p.optionalBlock(tok)}
}

func (p *Parser) parseExtends() ast.Node {
	tok := p.expect(lexer.EXTENDS)
	return &ast.Extends{Token: tok, Path: tok.Value}
}

func (p *Parser) parseInclude() ast.Node {
	tok := p.expect(lexer.INCLUDE)
	return &ast.Include{Token: tok, Path: tok.Value, Filter: tok.Name, Block: p.optionalBlock(tok)}
}
