package codegen

import (
	"errors"
	"io"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/puglite/puglite/pkg/puglite/ast"
	perrors "github.com/puglite/puglite/pkg/puglite/errors"
	"github.com/puglite/puglite/pkg/puglite/filters"
	"github.com/puglite/puglite/pkg/puglite/lexer"
	"github.com/puglite/puglite/pkg/puglite/parser"
)

func compile(src string, opts Options) (*Program, error) {
	root, err := parser.Parse(src, parser.Options{Filename: "test.pug"})
	if err != nil {
		return nil, err
	}
	root, err = filters.Default().Apply(root)
	if err != nil {
		return nil, err
	}
	return Generate(root, opts)
}

func mustCompile(t *testing.T, src string, opts Options) *Program {
	t.Helper()
	prog, err := compile(src, opts)
	if err != nil {
		t.Fatalf("compile(%q) error: %v", src, err)
	}
	return prog
}

func render(t *testing.T, src string, opts Options, locals map[string]any) string {
	t.Helper()
	out, err := mustCompile(t, src, opts).Render(locals)
	if err != nil {
		t.Fatalf("Render(%q) error: %v", src, err)
	}
	return out
}

func errorID(err error) string {
	var pe *perrors.PugliteError
	if errors.As(err, &pe) {
		return pe.ID
	}
	return ""
}

func TestGenerate(t *testing.T) {
	html5 := Options{Doctype: "html"}
	tests := []struct {
		name     string
		input    string
		opts     Options
		expected string
	}{
		// doctypes
		{"doctype xml", "doctype xml", Options{}, `<?xml version="1.0" encoding="utf-8" ?>`},
		{"doctype html", "doctype html", Options{}, `<!DOCTYPE html>`},
		{"bare doctype", "doctype", Options{}, `<!DOCTYPE html>`},
		{"custom doctype", "doctype foo bar baz", Options{}, `<!DOCTYPE foo bar baz>`},
		{"doctype public id", `doctype html PUBLIC "-//W3C//DTD XHTML Basic 1.1//EN`, Options{}, `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML Basic 1.1//EN>`},
		{"html without doctype", "html", Options{}, `<html></html>`},
		{"html with doctype option", "html", html5, `<!DOCTYPE html><html></html>`},
		{"explicit doctype wins", "doctype xml\nhtml", html5, `<?xml version="1.0" encoding="utf-8" ?><html></html>`},
		{"explicit doctype then html", "doctype html\nhtml", Options{}, `<!DOCTYPE html><html></html>`},

		// void and self-closing tags
		{"void element", "img", Options{}, `<img/>`},
		{"void element terse", "img", html5, `<img>`},
		{"explicit self close", "foo/", Options{}, `<foo/>`},
		{"explicit self close terse", "foo/", html5, `<foo/>`},
		{"void in xml", "doctype xml\nimg", Options{}, `<?xml version="1.0" encoding="utf-8" ?><img></img>`},
		{"void nested", "colgroup\n  col.test", Options{}, `<colgroup><col class="test"/></colgroup>`},

		// block expansion
		{"block expansion", "li: a foo", Options{}, `<li><a>foo</a></li>`},
		{"block expansion classes", ".foo: .bar baz", Options{}, `<div class="foo"><div class="bar">baz</div></div>`},

		// text
		{"inline text", "p hello world", Options{}, `<p>hello world</p>`},
		{"piped text keeps spaces", "a(href=\"#\")\n  | foo \n  | bar \n  | baz", Options{}, "<a href=\"#\">foo \nbar \nbaz</a>"},
		{"text around tag", "p\n  | click\n  a Google\n  | .", Options{}, `<p>click<a>Google</a>.</p>`},
		{"text block blank line", "p.\n  foo\n\n  bar", Options{}, "<p>foo\n\nbar</p>"},
		{"tag interpolation", "p foo #[strong bar] baz", Options{}, `<p>foo <strong>bar</strong> baz</p>`},
		{"framework interpolation", "span.status-value #{{state.current_turn.turn_number}}", Options{}, `<span class="status-value">#{{state.current_turn.turn_number}}</span>`},
		{"escaped interpolation", `p \#{foo}`, Options{}, `<p>#{foo}</p>`},
		{"literal html", "<div>\n  <p>x</p>\n</div>", Options{}, "<div>\n<p>x</p>\n</div>"},
		{"interpolated tag name", "#{'section'} hi", Options{}, `<section>hi</section>`},
		{"yield renders nothing", "div\n  yield", Options{}, `<div></div>`},

		// comments
		{"buffered comment", "//foo", Options{}, `<!--foo-->`},
		{"unbuffered comment", "//- foo\np", Options{}, `<p></p>`},
		{"block comment", "//\n  p foo", Options{}, `<!--p foo-->`},

		// attributes
		{"class after id", `div(id="bar").foo`, Options{}, `<div class="foo" id="bar"></div>`},
		{"escaped value", `img(src="<script>")`, Options{}, `<img src="&lt;script&gt;"/>`},
		{"unescaped value", `div(data-x!="<b>")`, Options{}, `<div data-x="<b>"></div>`},
		{"quotes in value", `meta(content="what's up? 'weee'")`, Options{}, `<meta content="what's up? 'weee'"/>`},
		{"boolean", `input(type="checkbox", checked)`, Options{}, `<input type="checkbox" checked="checked"/>`},
		{"boolean terse", `input(type="checkbox", checked)`, html5, `<input type="checkbox" checked>`},
		{"boolean true", `input(checked=true)`, Options{}, `<input checked="checked"/>`},
		{"boolean false", `input(checked=false)`, Options{}, `<input/>`},
		{"null omitted", `a(href=null)`, Options{}, `<a></a>`},
		{"number", `div(tabindex=1+2)`, Options{}, `<div tabindex="3"></div>`},
		{"index expression", `div(style=['foo','bar'][0])`, Options{}, `<div style="foo"></div>`},
		{"method call", `div(foo='abcdefg'.substr(3,3))`, Options{}, `<div foo="def"></div>`},
		{"class array", `body(class=["foo","bar","baz"])`, Options{}, `<body class="foo bar baz"></body>`},
		{"class object", `div(class={active: true, hidden: false})`, Options{}, `<div class="active"></div>`},
		{"empty class omitted", `div(class="")`, Options{}, `<div></div>`},
		{"style object", `div(style={color: 'red', background: 'blue'})`, Options{}, `<div style="color:red;background:blue;"></div>`},
		{"array value", `div(data-list=['a','b'])`, Options{}, `<div data-list="[&quot;a&quot;,&quot;b&quot;]"></div>`},
		{"template literal", "div(title=`a${1+1}b`)", Options{}, `<div title="a2b"></div>`},

		// class and id merging
		{"shorthand then list", `div.foo.bar(class="baz")`, Options{}, `<div class="foo bar baz"></div>`},
		{"list then shorthand", `div(class="foo").bar.baz`, Options{}, `<div class="foo bar baz"></div>`},
		{"interleaved", `div.foo(class="bar").baz`, Options{}, `<div class="foo bar baz"></div>`},
		{"explicit id beats shorthand", `div#a(id="b")`, Options{}, `<div id="b"></div>`},
		{"explicit id before shorthand", `div(id="b")#a`, Options{}, `<div id="b"></div>`},
		{"last declaration wins", `a(title="one", href="/", title="two")`, Options{}, `<a title="two" href="/"></a>`},

		// framework attribute names
		{"ngIf", `div(*ngIf="condition")`, Options{}, `<div *ngIf="condition"></div>`},
		{"ngIf as", `div(*ngIf="data$ | async as data")`, Options{}, `<div *ngIf="data$ | async as data"></div>`},
		{"click binding", `button((click)="onClick()")`, Options{}, `<button (click)="onClick()"></button>`},
		{"click after attr", `button(type="button", (click)="signIn()")`, Options{}, `<button type="button" (click)="signIn()"></button>`},
		{"property binding", `div([class]="myClass")`, Options{}, `<div [class]="myClass"></div>`},
		{"ngFor", `li(*ngFor="let item of items")`, Options{}, `<li *ngFor="let item of items"></li>`},
		{"combined", `button(*ngIf="show", (click)="doSomething()", [disabled]="!enabled")`, Options{}, `<button *ngIf="show" (click)="doSomething()" [disabled]="!enabled"></button>`},
		{"template ref value", `form(#profileForm="ngForm")`, Options{}, `<form #profileForm="ngForm"></form>`},
		{"template ref bare", `input(#searchbar, type="text")`, Options{}, `<input #searchbar type="text"/>`},
		{"custom element", "hex-map([cols]='cols' [rows]='rows')", Options{}, `<hex-map [cols]="cols" [rows]="rows"></hex-map>`},
		{"many bindings", "hex-map([cols]='cols' [rows]='rows' [minHexSize]='minHexSize' [backgroundColor]='backgroundColor' tileGenerator='blank')", Options{}, `<hex-map [cols]="cols" [rows]="rows" [minHexSize]="minHexSize" [backgroundColor]="backgroundColor" tileGenerator="blank"></hex-map>`},
		{"click before attr", `button((click)="doStuff()" type="button")`, Options{}, `<button (click)="doStuff()" type="button"></button>`},
		{"click after space attr", `button(type="button" (click)="doStuff()")`, Options{}, `<button type="button" (click)="doStuff()"></button>`},
		{"ngIf call", `button(type="button" *ngIf="somethingIsCorrect()")`, Options{}, `<button type="button" *ngIf="somethingIsCorrect()"></button>`},
		{"ngIf call as", `button(type="button" *ngIf="somethingIsCorrect() as check")`, Options{}, `<button type="button" *ngIf="somethingIsCorrect() as check"></button>`},

		// attribute blocks
		{"attribute block", `div&attributes({'data-x': 'y'})`, Options{}, `<div data-x="y"></div>`},
		{"attribute block merges class", `div.foo&attributes({class: 'bar'})`, Options{}, `<div class="foo bar"></div>`},
		{"attribute block right wins", `a(href="/a")&attributes({href: '/b'})`, Options{}, `<a href="/b"></a>`},
		{"attribute block escapes list values", `a(title="<x>")&attributes({})`, Options{}, `<a title="&lt;x&gt;"></a>`},

		// filters
		{"cdata filter", "script\n  :cdata\n    foo", Options{}, "<script><![CDATA[\nfoo\n]]></script>"},
		{"escape filter", ":escape\n  <b>", Options{}, `&lt;b&gt;`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, tt.opts, nil); got != tt.expected {
				t.Errorf("render(%q)\n got: %q\nwant: %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPretty(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"nested", "div\n  p hi", "\n<div>\n  <p>hi</p>\n</div>"},
		{"inline children", "p\n  a link\n  span x", "\n<p><a>link</a><span>x</span></p>"},
		{"pre untouched", "div\n  pre\n    | a\n    | b", "\n<div>\n  <pre>a\nb</pre>\n</div>"},
		{"textarea untouched", "div\n  textarea\n    | a\n    | b", "\n<div>\n  <textarea>a\nb</textarea>\n</div>"},
		{"pre between siblings", "div\n  pre\n    | a\n  p x", "\n<div>\n  <pre>a</pre>\n  <p>x</p>\n</div>"},
		{"textarea between siblings", "div\n  p x\n  textarea\n    | a\n  p y", "\n<div>\n  <p>x</p>\n  <textarea>a</textarea>\n  <p>y</p>\n</div>"},
		{"comment", "div\n  //x", "\n<div>\n  <!--x-->\n</div>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, Options{Pretty: DefaultPretty}, nil); got != tt.expected {
				t.Errorf("render(%q)\n got: %q\nwant: %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestUnsupportedConstructs(t *testing.T) {
	tests := []struct {
		input string
		id    string
	}{
		{"- var x = 1", "GEN-0001"},
		{"p= foo", "GEN-0001"},
		{"p!= foo", "GEN-0001"},
		{"p hello #{name}", "GEN-0001"},
		{"if foo\n  p", "GEN-0002"},
		{"unless foo\n  p", "GEN-0002"},
		{"while x\n  p", "GEN-0003"},
		{"each x in items\n  p", "GEN-0004"},
		{"each x of items\n  p", "GEN-0004"},
		{"mixin foo\n  p", "GEN-0005"},
		{"+foo", "GEN-0005"},
		{"block", "GEN-0006"},
		{"case x\n  when 1\n    p", "GEN-0007"},
		{"extends layout", "GEN-0009"},
		{"include foo.pug", "GEN-0009"},
		{"block content\n  p", "GEN-0010"},
		{"div\n  p\n    if x\n      span", "GEN-0002"},
		{":nope\n  x", "GEN-0011"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			prog, err := compile(tt.input, Options{})
			if err == nil {
				t.Fatalf("expected error, got program %q", prog.Source())
			}
			if prog != nil {
				t.Errorf("partial program returned with error")
			}
			if id := errorID(err); id != tt.id {
				t.Errorf("error id = %q, want %q (%v)", id, tt.id, err)
			}
			if tt.id != "GEN-0011" && !errors.Is(err, &perrors.PugliteError{Code: perrors.UnsupportedConstructError}) {
				t.Errorf("error code is not UnsupportedConstructError: %v", err)
			}
		})
	}
}

func TestWhenOutsideCase(t *testing.T) {
	root := &ast.Block{Nodes: []ast.Node{&ast.When{Token: lexer.Token{Line: 1, Column: 1}, Expr: "1"}}}
	_, err := Generate(root, Options{})
	if id := errorID(err); id != "GEN-0008" {
		t.Errorf("error id = %q, want GEN-0008", id)
	}
}

func TestFilterReachingGenerator(t *testing.T) {
	root, err := parser.Parse(":markdown\n  # hi", parser.Options{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = Generate(root, Options{})
	if id := errorID(err); id != "GEN-0011" {
		t.Errorf("error id = %q, want GEN-0011", id)
	}
}

func TestSelfClosingContent(t *testing.T) {
	tests := []string{
		"br\n  | text",
		"img\n  span",
		"foo/\n  | x",
		"img= src",
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := compile(input, Options{})
			var pe *perrors.PugliteError
			if !errors.As(err, &pe) {
				t.Fatalf("expected PugliteError, got %v", err)
			}
			if pe.Code != perrors.SelfClosingContentError || pe.Line != 1 {
				t.Errorf("got %s at line %d, want SelfClosingContentError at line 1", pe.Code, pe.Line)
			}
			if pe.Filename != "test.pug" {
				t.Errorf("filename = %q", pe.Filename)
			}
		})
	}

	// Whitespace-only content is allowed.
	if got := render(t, "br\n  | ", Options{}, nil); got != "<br/>" {
		t.Errorf("whitespace content = %q", got)
	}
}

func TestOptionValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		id   string
	}{
		{"pretty not whitespace", Options{Pretty: "x"}, "OPT-0001"},
		{"template name", Options{TemplateName: "1abc"}, "IDENT-0001"},
		{"template name dash", Options{TemplateName: "my-template"}, "IDENT-0001"},
		{"doctype markup", Options{Doctype: "<html>"}, "OPT-0002"},
		{"global", Options{Globals: []string{"ok", "not ok"}}, "IDENT-0002"},
		{"pretty before name", Options{Pretty: "x", TemplateName: "1"}, "OPT-0001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(&ast.Block{}, tt.opts)
			if id := errorID(err); id != tt.id {
				t.Errorf("error id = %q, want %q", id, tt.id)
			}
		})
	}

	if _, err := Generate(&ast.Block{}, Options{Pretty: "\t", TemplateName: "$tpl_1", Globals: []string{"_x"}}); err != nil {
		t.Errorf("valid options rejected: %v", err)
	}
}

func TestSource(t *testing.T) {
	t.Run("default name", func(t *testing.T) {
		src := mustCompile(t, ".foo bar", Options{}).Source()
		want := `function template(locals) {var pug_html = "", pug_interp;pug_html = pug_html + "<div class=\"foo\">bar</div>";;return pug_html;}`
		if src != want {
			t.Errorf("Source()\n got: %s\nwant: %s", src, want)
		}
	})

	t.Run("template name", func(t *testing.T) {
		src := mustCompile(t, ".foo bar", Options{TemplateName: "myTemplateName"}).Source()
		if !strings.HasPrefix(src, "function myTemplateName(locals) {") {
			t.Errorf("Source() = %s", src)
		}
	})

	t.Run("pretty", func(t *testing.T) {
		src := mustCompile(t, "p", Options{Pretty: "  "}).Source()
		if !strings.Contains(src, "var pug_indent = [];") {
			t.Errorf("Source() = %s", src)
		}
	})

	t.Run("locals binding", func(t *testing.T) {
		src := mustCompile(t, "a(href=url)", Options{}).Source()
		for _, want := range []string{
			"var locals_for_with = (locals || {});",
			`pug.attr("href", url, true, false)`,
			`"url" in locals_for_with ? locals_for_with.url`,
		} {
			if !strings.Contains(src, want) {
				t.Errorf("Source() missing %q:\n%s", want, src)
			}
		}
	})

	t.Run("globals not bound", func(t *testing.T) {
		src := mustCompile(t, "a(href=url, title=site)", Options{Globals: []string{"site"}}).Source()
		if strings.Contains(src, "locals_for_with.site") {
			t.Errorf("global bound from locals:\n%s", src)
		}
	})

	t.Run("self", func(t *testing.T) {
		src := mustCompile(t, "a(href=self.url)", Options{Self: true}).Source()
		if !strings.Contains(src, "var self = locals || {};") || strings.Contains(src, "locals_for_with") {
			t.Errorf("Source() = %s", src)
		}
	})

	t.Run("debug", func(t *testing.T) {
		src := mustCompile(t, "p\na(href=url)", Options{CompileDebug: true}).Source()
		for _, want := range []string{
			"var pug_debug_filename, pug_debug_line;try {",
			`;pug_debug_line = 2;pug_debug_filename = "test.pug";`,
			"pug.rethrow(err, pug_debug_filename, pug_debug_line);",
		} {
			if !strings.Contains(src, want) {
				t.Errorf("Source() missing %q:\n%s", want, src)
			}
		}
	})

	t.Run("debug sources", func(t *testing.T) {
		opts := Options{CompileDebug: true, IncludeSources: map[string]string{"test.pug": "p"}}
		src := mustCompile(t, "p", opts).Source()
		if !strings.Contains(src, `var pug_debug_sources = {"test.pug":"p"};`) ||
			!strings.Contains(src, "pug_debug_sources[pug_debug_filename]") {
			t.Errorf("Source() = %s", src)
		}
	})

	t.Run("inline runtime", func(t *testing.T) {
		src := mustCompile(t, "a(href=url)", Options{InlineRuntimeFunctions: true}).Source()
		if !strings.Contains(src, "function pug_attr(") || !strings.Contains(src, "function pug_escape(") {
			t.Errorf("helpers not inlined:\n%s", src)
		}
		if !strings.Contains(src, `pug_attr("href", url, true, false)`) || strings.Contains(src, "pug.attr") {
			t.Errorf("helper not referenced inline:\n%s", src)
		}
	})

	t.Run("static needs no helpers", func(t *testing.T) {
		prog := mustCompile(t, "p(class='a') hi", Options{InlineRuntimeFunctions: true})
		if !prog.IsStatic() || len(prog.HelpersUsed()) != 0 {
			t.Errorf("static template uses helpers: %v", prog.HelpersUsed())
		}
		if !strings.HasPrefix(prog.Source(), "function template(") {
			t.Errorf("Source() = %s", prog.Source())
		}
	})
}

func TestRenderLocals(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		opts     Options
		locals   map[string]any
		expected string
	}{
		{"missing local omitted", "a(href=url) x", Options{}, nil, `<a>x</a>`},
		{"local bound", "a(href=url) x", Options{}, map[string]any{"url": "/x?a=1&b=2"}, `<a href="/x?a=1&amp;b=2">x</a>`},
		{"dynamic class", "div.a(class=extra)", Options{}, map[string]any{"extra": []string{"b", "c"}}, `<div class="a b c"></div>`},
		{"dynamic style", "div(style=s)", Options{}, map[string]any{"s": map[string]any{"color": "red"}}, `<div style="color:red;"></div>`},
		{"number local", "div(data-n=n + 1)", Options{}, map[string]any{"n": 41}, `<div data-n="42"></div>`},
		{"boolean local terse", "input(checked=on)", Options{Doctype: "html"}, map[string]any{"on": true}, `<input checked>`},
		{"self", "a(href=self.url)", Options{Self: true}, map[string]any{"url": "/u"}, `<a href="/u"></a>`},
		{"dynamic tag name", "#{tag} hi", Options{}, map[string]any{"tag": "em"}, `<em>hi</em>`},
		{"attribute block local", "div&attributes(attrs)", Options{}, map[string]any{"attrs": map[string]any{"id": "x"}}, `<div id="x"></div>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, tt.opts, tt.locals); got != tt.expected {
				t.Errorf("render(%q)\n got: %q\nwant: %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRenderErrors(t *testing.T) {
	t.Run("global is not read from locals", func(t *testing.T) {
		prog := mustCompile(t, "a(href=site)", Options{Globals: []string{"site"}})
		_, err := prog.Render(map[string]any{"site": "/"})
		if id := errorID(err); id != "RENDER-0001" {
			t.Errorf("error id = %q, want RENDER-0001 (%v)", id, err)
		}
	})

	t.Run("debug position", func(t *testing.T) {
		prog := mustCompile(t, "p ok\na(href=page.url)", Options{CompileDebug: true})
		_, err := prog.Render(nil)
		var pe *perrors.PugliteError
		if !errors.As(err, &pe) {
			t.Fatalf("expected PugliteError, got %v", err)
		}
		if pe.Code != perrors.RenderError || pe.Line != 2 || pe.Filename != "test.pug" {
			t.Errorf("got %s at %s:%d", pe.Code, pe.Filename, pe.Line)
		}
		if !strings.Contains(pe.Message, "Cannot read properties of undefined") {
			t.Errorf("message = %q", pe.Message)
		}
	})

	t.Run("no position without debug", func(t *testing.T) {
		_, err := mustCompile(t, "a(href=page.url)", Options{}).Render(nil)
		var pe *perrors.PugliteError
		if !errors.As(err, &pe) || pe.Line != 0 {
			t.Errorf("got %v", err)
		}
	})
}

func TestStrict(t *testing.T) {
	tests := []struct {
		input string
		id    string
	}{
		{"a(href=url)", "GEN-0012"},
		{"#{tag} hi", "GEN-0012"},
		{"div&attributes(attrs)", "GEN-0012"},
		{"a(href='/' + 'x')", ""},
		{"div&attributes({id: 'x'})", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := compile(tt.input, Options{Strict: true})
			if id := errorID(err); id != tt.id {
				t.Errorf("error id = %q, want %q (%v)", id, tt.id, err)
			}
		})
	}
}

func TestConcatenationCap(t *testing.T) {
	src := strings.Repeat("a(href=x)\n", 120)
	prog := mustCompile(t, src, Options{})
	if len(prog.Statements) < 2 {
		t.Fatalf("expected output split over several statements, got %d", len(prog.Statements))
	}
	for i, s := range prog.Statements {
		if len(s.Parts) > maxConcatenations+1 {
			t.Errorf("statement %d has %d parts", i, len(s.Parts))
		}
	}
	out, err := prog.Render(map[string]any{"x": "/"})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out, `<a href="/"></a>`); got != 120 {
		t.Errorf("rendered %d anchors, want 120", got)
	}
}

func TestBufferMergesText(t *testing.T) {
	prog := mustCompile(t, "div\n  p one\n  p two\n  span three", Options{})
	if len(prog.Statements) != 1 || len(prog.Statements[0].Parts) != 1 {
		t.Errorf("constant template should be one text part, got %#v", prog.Statements)
	}
}

func TestIdempotentRender(t *testing.T) {
	src := "doctype html\nhtml\n  head\n    title Hi\n  body.home\n    h1#top(data-x=[1,2]) Welcome\n    img(src='/a.png', alt='')\n    p\n      | text\n      br\n      | more"
	prog := mustCompile(t, src, Options{Pretty: "  "})
	first, err := prog.Render(nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		again, err := prog.Render(nil)
		if err != nil || again != first {
			t.Fatalf("render %d differs: %q vs %q (%v)", i, again, first, err)
		}
	}
	assertWellFormed(t, first)
}

func TestCompilerStateIsFresh(t *testing.T) {
	root, err := parser.Parse("html", parser.Options{})
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(root, Options{Doctype: "html"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		prog, err := c.Compile()
		if err != nil {
			t.Fatal(err)
		}
		out, _ := prog.Render(nil)
		if out != "<!DOCTYPE html><html></html>" {
			t.Errorf("compile %d = %q", i, out)
		}
		if !c.Terse() {
			t.Errorf("compile %d not terse", i)
		}
	}
}

// assertWellFormed checks that every element opened in s is closed in
// order.
func assertWellFormed(t *testing.T, s string) {
	t.Helper()
	z := html.NewTokenizer(strings.NewReader(s))
	var stack []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				t.Fatalf("tokenize: %v", z.Err())
			}
			if len(stack) != 0 {
				t.Errorf("unclosed elements: %v", stack)
			}
			return
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidTag(string(name)) {
				stack = append(stack, string(name))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if len(stack) == 0 || stack[len(stack)-1] != string(name) {
				t.Fatalf("unexpected </%s>, open: %v", name, stack)
			}
			stack = stack[:len(stack)-1]
		}
	}
}

func voidTag(name string) bool {
	return ast.VoidElements[name]
}
