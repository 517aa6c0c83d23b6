// Package filters applies :name text filters to a parsed template before
// code generation. Each Filter node is replaced by a literal Text node
// holding the filter's output.
package filters

import (
	"bytes"
	"sort"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/puglite/puglite/pkg/puglite/ast"
	perrors "github.com/puglite/puglite/pkg/puglite/errors"
	"github.com/puglite/puglite/pkg/puglite/expr"
	"github.com/puglite/puglite/pkg/puglite/runtime"
)

// Func transforms the text body of a filter. opts holds the filter's
// folded attribute values, e.g. {"gfm": false} for :markdown(gfm=false).
type Func func(text string, opts map[string]any) (string, error)

// Set maps filter names to implementations.
type Set map[string]Func

// Default returns the built-in filters.
func Default() Set {
	return Set{
		"markdown": Markdown,
		"md":       Markdown,
		"cdata":    CDATA,
		"escape":   Escape,
		"plain":    Plain,
		"css":      CSS,
		"js":       JS,
	}
}

// With returns a copy of s extended with extra. Entries in extra win.
func (s Set) With(extra map[string]Func) Set {
	out := make(Set, len(s)+len(extra))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Names returns the filter names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply returns root with every Filter node replaced by its output. Parent
// nodes on the path to a filter are copied; root itself is not modified.
func (s Set) Apply(root *ast.Block) (*ast.Block, error) {
	return s.block(root)
}

func (s Set) block(b *ast.Block) (*ast.Block, error) {
	if b == nil {
		return nil, nil
	}
	var out []ast.Node
	for i, n := range b.Nodes {
		repl, err := s.node(n)
		if err != nil {
			return nil, err
		}
		if repl != n && out == nil {
			out = append(make([]ast.Node, 0, len(b.Nodes)), b.Nodes[:i]...)
		}
		if out != nil {
			out = append(out, repl)
		}
	}
	if out == nil {
		return b, nil
	}
	return &ast.Block{Token: b.Token, Nodes: out}, nil
}

func (s Set) node(n ast.Node) (ast.Node, error) {
	switch x := n.(type) {
	case *ast.Filter:
		return s.filter(x)
	case *ast.Tag:
		block, err := s.block(x.Block)
		if err != nil || block == x.Block {
			return n, err
		}
		tag := *x
		tag.Block = block
		return &tag, nil
	case *ast.InterpolatedTag:
		block, err := s.block(x.Block)
		if err != nil || block == x.Block {
			return n, err
		}
		tag := *x
		tag.Block = block
		return &tag, nil
	case *ast.BlockComment:
		block, err := s.block(x.Block)
		if err != nil || block == x.Block {
			return n, err
		}
		c := *x
		c.Block = block
		return &c, nil
	case *ast.Block:
		return s.block(x)
	}
	return n, nil
}

func (s Set) filter(f *ast.Filter) (ast.Node, error) {
	fn, ok := s[f.Name]
	if !ok {
		return nil, perrors.NewAt("GEN-0011", f.Token.Filename, f.Token.Line, f.Token.Column, map[string]any{
			"Name":      f.Name,
			"Available": strings.Join(s.Names(), ", "),
		})
	}

	// Nested filters run innermost first.
	body, err := s.block(f.Block)
	if err != nil {
		return nil, err
	}
	var text strings.Builder
	if body != nil {
		for _, n := range body.Nodes {
			if t, ok := n.(*ast.Text); ok {
				text.WriteString(t.Val)
			}
		}
	}

	opts, err := options(f)
	if err != nil {
		return nil, err
	}
	out, err := fn(text.String(), opts)
	if err != nil {
		return nil, perrors.NewAt("GEN-0014", f.Token.Filename, f.Token.Line, f.Token.Column, map[string]any{
			"Expr":   ":" + f.Name,
			"Detail": err.Error(),
		})
	}
	return &ast.Text{Token: f.Token, Val: out}, nil
}

// options folds the filter's attributes. They are evaluated at compile
// time, so they must be constant.
func options(f *ast.Filter) (map[string]any, error) {
	opts := make(map[string]any, len(f.Attrs))
	for _, a := range f.Attrs {
		fail := func(detail string) error {
			return perrors.NewAt("GEN-0014", a.Token.Filename, a.Token.Line, a.Token.Column, map[string]any{
				"Expr":   a.Val,
				"Detail": detail,
			})
		}
		n, err := expr.Parse(a.Val)
		if err != nil {
			return nil, fail(err.Error())
		}
		if !expr.IsConstant(n) {
			return nil, fail("filter options must be constant")
		}
		v, err := expr.Fold(n)
		if err != nil {
			return nil, fail(err.Error())
		}
		opts[a.Name] = v
	}
	return opts, nil
}

// Markdown renders CommonMark with GitHub extensions. Pass gfm=false for
// plain CommonMark.
func Markdown(text string, opts map[string]any) (string, error) {
	var exts []goldmark.Extender
	if gfm, ok := opts["gfm"]; !ok || runtime.Truthy(gfm) {
		exts = append(exts, extension.GFM)
	}
	var parserOpts []parser.Option
	if runtime.Truthy(opts["ids"]) {
		parserOpts = append(parserOpts, parser.WithAutoHeadingID())
	}
	md := goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(parserOpts...),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// CDATA wraps text in a CDATA section.
func CDATA(text string, _ map[string]any) (string, error) {
	return "<![CDATA[\n" + text + "\n]]>", nil
}

// Escape HTML-escapes text.
func Escape(text string, _ map[string]any) (string, error) {
	return runtime.Escape(text), nil
}

// Plain passes text through unchanged.
func Plain(text string, _ map[string]any) (string, error) {
	return text, nil
}

// CSS minifies a stylesheet body.
func CSS(text string, _ map[string]any) (string, error) {
	return minifier().String("text/css", text)
}

// JS minifies a script body.
func JS(text string, _ map[string]any) (string, error) {
	return minifier().String("application/javascript", text)
}

func minifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("application/javascript", js.Minify)
	return m
}
