// Package puglite provides a public API for compiling puglite templates.
//
// A template is compiled once into a Template, which can render HTML in Go
// or print the equivalent JavaScript function for use in a browser bundle:
//
//	tpl, err := puglite.Compile(src, puglite.Options{Filename: "page.pug"})
//	html, err := tpl.Render(nil)
package puglite

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/puglite/puglite/pkg/puglite/ast"
	"github.com/puglite/puglite/pkg/puglite/codegen"
	perrors "github.com/puglite/puglite/pkg/puglite/errors"
	"github.com/puglite/puglite/pkg/puglite/filters"
	"github.com/puglite/puglite/pkg/puglite/lexer"
	"github.com/puglite/puglite/pkg/puglite/parser"
)

// Version is set at compile time via -ldflags
var Version = "0.1.0"

// Options configures a compile. The zero value compiles with pug's
// defaults: no doctype, no pretty printing, a function named "template".
type Options struct {
	// Filename is reported in error positions.
	Filename string
	// TabWidth is the column width of a tab in indentation; 0 means 4.
	TabWidth int
	// StripBufferedComments drops // comments as well as //- comments.
	StripBufferedComments bool
	// Filters are added to (or replace) the built-in :filters.
	Filters map[string]filters.Func

	TemplateName           string
	Pretty                 string
	CompileDebug           bool
	Doctype                string
	Self                   bool
	Globals                []string
	IncludeSources         map[string]string
	InlineRuntimeFunctions bool
	Strict                 bool
}

func (o Options) codegen() codegen.Options {
	return codegen.Options{
		TemplateName:           o.TemplateName,
		Pretty:                 o.Pretty,
		CompileDebug:           o.CompileDebug,
		Doctype:                o.Doctype,
		Self:                   o.Self,
		Globals:                o.Globals,
		IncludeSources:         o.IncludeSources,
		InlineRuntimeFunctions: o.InlineRuntimeFunctions,
		Strict:                 o.Strict,
	}
}

// Validate checks the generator options without compiling anything.
func (o Options) Validate() error {
	if o.TabWidth < 0 {
		return perrors.New("OPT-0003", map[string]any{"Width": o.TabWidth})
	}
	return o.codegen().Validate()
}

func (o Options) filters() filters.Set {
	if len(o.Filters) == 0 {
		return filters.Default()
	}
	return filters.Default().With(o.Filters)
}

// Fingerprint identifies the options that affect output, for use in cache
// keys. Filename and IncludeSources are excluded; custom filters count by
// name only.
func (o Options) Fingerprint() string {
	key := struct {
		TabWidth     int
		StripBuf     bool
		Filters      []string
		Name         string
		Pretty       string
		Debug        bool
		Doctype      string
		Self         bool
		Globals      []string
		InlineRT     bool
		Strict       bool
		CustomFilter bool
	}{
		TabWidth:     o.TabWidth,
		StripBuf:     o.StripBufferedComments,
		Filters:      o.filters().Names(),
		Name:         o.TemplateName,
		Pretty:       o.Pretty,
		Debug:        o.CompileDebug,
		Doctype:      o.Doctype,
		Self:         o.Self,
		Globals:      o.Globals,
		InlineRT:     o.InlineRuntimeFunctions,
		Strict:       o.Strict,
		CustomFilter: len(o.Filters) > 0,
	}
	data, _ := json.Marshal(key)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Template is a compiled template.
type Template struct {
	// Filename is the name the template was compiled under.
	Filename string

	prog  *codegen.Program
	terse bool
}

// Render runs the template. Identifiers in attribute expressions are read
// from locals; a missing name is undefined, which omits the attribute.
func (t *Template) Render(locals map[string]any) (string, error) {
	return t.prog.Render(locals)
}

// Source returns the JavaScript source of the template function.
func (t *Template) Source() string {
	return t.prog.Source()
}

// IsStatic reports whether the output is the same for every locals value.
func (t *Template) IsStatic() bool {
	return t.prog.IsStatic()
}

// FreeVars returns the identifiers the template reads from locals.
func (t *Template) FreeVars() []string {
	return t.prog.FreeVars()
}

// Terse reports whether the template rendered in HTML5 terse mode.
func (t *Template) Terse() bool {
	return t.terse
}

// Program exposes the compiled output statements.
func (t *Template) Program() *codegen.Program {
	return t.prog
}

// Parse lexes and parses src and applies filters, returning the syntax tree
// that the generator consumes.
func Parse(src string, opts Options) (*ast.Block, error) {
	toks, err := lexer.Lex(src, lexer.Options{Filename: opts.Filename, TabWidth: opts.TabWidth})
	if err != nil {
		return nil, withSource(err, src)
	}
	toks, err = lexer.StripComments(toks, opts.StripBufferedComments)
	if err != nil {
		return nil, withSource(err, src)
	}
	p := parser.New(toks, parser.Options{Filename: opts.Filename, Src: src, TabWidth: opts.TabWidth})
	root, err := p.ParseTemplate()
	if err != nil {
		return nil, withSource(err, src)
	}
	root, err = opts.filters().Apply(root)
	if err != nil {
		return nil, withSource(err, src)
	}
	return root, nil
}

// Compile compiles src into a Template.
func Compile(src string, opts Options) (*Template, error) {
	root, err := Parse(src, opts)
	if err != nil {
		return nil, err
	}
	c, err := codegen.New(root, opts.codegen())
	if err != nil {
		return nil, err
	}
	prog, err := c.Compile()
	if err != nil {
		return nil, withSource(err, src)
	}
	return &Template{Filename: opts.Filename, prog: prog, terse: c.Terse()}, nil
}

// CompileClient compiles src and returns the JavaScript function source.
func CompileClient(src string, opts Options) (string, error) {
	tpl, err := Compile(src, opts)
	if err != nil {
		return "", err
	}
	return tpl.Source(), nil
}

// Render compiles src and renders it with locals.
func Render(src string, opts Options, locals map[string]any) (string, error) {
	tpl, err := Compile(src, opts)
	if err != nil {
		return "", err
	}
	out, err := tpl.Render(locals)
	if err != nil {
		return "", withSource(err, src)
	}
	return out, nil
}

// CompileFile reads and compiles the template at path. opts.Filename
// defaults to path.
func CompileFile(path string, opts Options) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := ReadSource(f)
	if err != nil {
		return nil, err
	}
	if opts.Filename == "" {
		opts.Filename = path
	}
	return Compile(src, opts)
}

// RenderFile reads, compiles and renders the template at path.
func RenderFile(path string, opts Options, locals map[string]any) (string, error) {
	tpl, err := CompileFile(path, opts)
	if err != nil {
		return "", err
	}
	return tpl.Render(locals)
}

// ReadSource reads template source text. A UTF-16 byte order mark switches
// decoding to UTF-16; a UTF-8 byte order mark is dropped.
func ReadSource(r io.Reader) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(r, dec))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// withSource attaches src to err so that PrettyString can show an excerpt.
func withSource(err error, src string) error {
	var pe *perrors.PugliteError
	if errors.As(err, &pe) && pe.Source() == "" {
		return pe.WithSource(src)
	}
	return err
}
