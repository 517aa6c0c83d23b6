package codegen

import (
	"sort"
	"strconv"
	"strings"

	perrors "github.com/puglite/puglite/pkg/puglite/errors"
	"github.com/puglite/puglite/pkg/puglite/expr"
	"github.com/puglite/puglite/pkg/puglite/runtime"
)

// internalVariables are names the generated function declares itself.
var internalVariables = []string{
	"pug",
	"pug_interp",
	"pug_debug_filename",
	"pug_debug_line",
	"pug_debug_sources",
	"pug_html",
}

// Part is one operand of an output statement: literal text, or an
// expression evaluated when the template runs.
type Part struct {
	Text string
	Expr expr.Node
}

// Statement appends its parts to the output. A statement with no parts is
// a debug marker recording the source position of what follows.
type Statement struct {
	Parts    []Part
	Line     int
	Filename string
}

// IsDebug reports whether s is a debug position marker.
func (s Statement) IsDebug() bool {
	return s.Parts == nil
}

func (s Statement) source(helper expr.HelperName) string {
	if s.IsDebug() {
		out := ";pug_debug_line = " + strconv.Itoa(s.Line)
		if s.Filename != "" {
			out += ";pug_debug_filename = " + runtime.Quote(s.Filename)
		}
		return out + ";"
	}
	if len(s.Parts) == 1 && s.Parts[0].Expr == nil {
		return "pug_html = pug_html + " + runtime.Quote(s.Parts[0].Text) + ";"
	}
	operands := make([]string, len(s.Parts))
	for i, p := range s.Parts {
		if p.Expr == nil {
			operands[i] = runtime.Quote(p.Text)
		} else {
			operands[i] = "(" + expr.Print(p.Expr, helper) + ")"
		}
	}
	if len(operands) == 1 {
		return "pug_html = pug_html + " + operands[0] + ";"
	}
	return "pug_html = pug_html + (" + strings.Join(operands, " + ") + ");"
}

// Program is the output of code generation: an ordered list of output
// statements. It can be printed as the source of a JavaScript function
// with Source, or run directly with Render.
type Program struct {
	Name       string
	Statements []Statement

	pretty         bool
	debug          bool
	self           bool
	globals        []string
	includeSources map[string]string
	inlineRuntime  bool
}

func (p *Program) exprs() []expr.Node {
	var out []expr.Node
	for _, s := range p.Statements {
		for _, part := range s.Parts {
			if part.Expr != nil {
				out = append(out, part.Expr)
			}
		}
	}
	return out
}

// HelpersUsed returns the runtime helpers referenced by the program.
func (p *Program) HelpersUsed() []string {
	seen := make(map[string]bool)
	var names []string
	for _, e := range p.exprs() {
		for _, name := range expr.HelperNames(e) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// FreeVars returns the identifiers the program reads from locals.
func (p *Program) FreeVars() []string {
	exclude := make(map[string]bool)
	for _, name := range internalVariables {
		exclude[name] = true
	}
	for _, name := range p.globals {
		exclude[name] = true
	}
	seen := make(map[string]bool)
	var names []string
	for _, e := range p.exprs() {
		for _, name := range expr.FreeVars(e) {
			if !exclude[name] && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// IsStatic reports whether the program's output does not depend on
// locals.
func (p *Program) IsStatic() bool {
	return len(p.exprs()) == 0
}

// Source returns the JavaScript source of the template function.
func (p *Program) Source() string {
	helper := func(name string) string { return "pug." + name }
	var used []string
	if p.inlineRuntime {
		helper = func(name string) string { return "pug_" + name }
		used = p.HelpersUsed()
		if p.debug {
			used = append(used, "rethrow")
		}
	}

	lines := make([]string, 0, len(p.Statements)+1)
	if p.pretty {
		lines = append(lines, "var pug_indent = [];")
	}
	for _, s := range p.Statements {
		lines = append(lines, s.source(helper))
	}
	js := strings.Join(lines, "\n")

	if p.self {
		js = "var self = locals || {};" + js
	} else {
		js = withLocals(js, p.FreeVars())
	}

	if p.debug {
		if p.includeSources != nil {
			js = "var pug_debug_sources = " + quoteSources(p.includeSources) + ";\n" + js
		}
		rethrow := "pug.rethrow"
		if p.inlineRuntime {
			rethrow = "pug_rethrow"
		}
		args := "err, pug_debug_filename, pug_debug_line"
		if p.includeSources != nil {
			args += ", pug_debug_sources[pug_debug_filename]"
		}
		js = "var pug_debug_filename, pug_debug_line;try {" + js + "} catch (err) {" + rethrow + "(" + args + ");}"
	}

	return runtime.HelperSource(used) +
		"function " + p.Name + "(locals) {var pug_html = \"\", pug_interp;" + js + ";return pug_html;}"
}

// withLocals binds each free variable from locals, falling back to a
// global of the same name.
func withLocals(js string, vars []string) string {
	if len(vars) == 0 {
		return js
	}
	args := make([]string, len(vars))
	for i, v := range vars {
		args[i] = runtime.Quote(v) + " in locals_for_with ? locals_for_with." + v +
			" : typeof " + v + " !== \"undefined\" ? " + v + " : undefined"
	}
	return "var locals_for_with = (locals || {});(function (" + strings.Join(vars, ", ") + ") {" +
		js + "}.call(this, " + strings.Join(args, ", ") + "));"
}

func quoteSources(sources map[string]string) string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = runtime.Quote(name) + ":" + runtime.Quote(sources[name])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Render runs the program against locals. Free identifiers missing from
// locals evaluate to undefined; globals are never read from locals.
func (p *Program) Render(locals map[string]any) (string, error) {
	scope := newRenderScope(p, locals)

	var sb strings.Builder
	line, filename := 0, ""
	for _, s := range p.Statements {
		if s.IsDebug() {
			line, filename = s.Line, s.Filename
			continue
		}
		for _, part := range s.Parts {
			if part.Expr == nil {
				sb.WriteString(part.Text)
				continue
			}
			v, err := expr.Eval(part.Expr, scope)
			if err != nil {
				return "", p.renderError(err, line, filename)
			}
			sb.WriteString(runtime.ToString(v))
		}
	}
	return sb.String(), nil
}

func (p *Program) renderError(err error, line int, filename string) error {
	e := perrors.New("RENDER-0001", map[string]any{"Detail": err.Error()})
	if p.debug && line > 0 {
		e = e.WithFile(filename).WithPosition(line, 0)
		if src, ok := p.includeSources[filename]; ok {
			e = e.WithSource(src)
		}
	}
	return e
}

type renderScope struct {
	locals  map[string]any
	self    any
	isSelf  bool
	globals map[string]bool
}

func newRenderScope(p *Program, locals map[string]any) *renderScope {
	s := &renderScope{isSelf: p.self, globals: make(map[string]bool)}
	for _, g := range p.globals {
		s.globals[g] = true
	}
	if p.self {
		s.self = runtime.FromGo(locals)
		return s
	}
	s.locals = make(map[string]any, len(locals))
	for k, v := range locals {
		s.locals[k] = runtime.FromGo(v)
	}
	return s
}

func (s *renderScope) Lookup(name string) (any, bool) {
	if s.isSelf {
		if name == "self" {
			return s.self, true
		}
		return nil, false
	}
	if s.globals[name] {
		return nil, false
	}
	if v, ok := s.locals[name]; ok {
		return v, true
	}
	return runtime.Undefined, true
}
