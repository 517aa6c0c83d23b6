package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	perrors "github.com/puglite/puglite/pkg/puglite/errors"
	"github.com/puglite/puglite/pkg/puglite/puglite"
	"github.com/puglite/puglite/pkg/puglite/repl"
)

// Version is set at compile time via -ldflags
var Version = puglite.Version

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is the entry point, returning the process exit code: 0 on success,
// 1 when a template fails, 2 on bad usage.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "repl" {
		repl.Start(stdin, stdout, Version)
		return 0
	}

	flags := flag.NewFlagSet("pugc", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { printHelp(stderr) }

	var (
		helpFlag        = flags.Bool("h", false, "Show help message")
		helpLongFlag    = flags.Bool("help", false, "Show help message")
		versionFlag     = flags.Bool("V", false, "Show version information")
		versionLongFlag = flags.Bool("version", false, "Show version information")
		prettyFlag      = flags.Bool("pp", false, "Pretty-print HTML output")
		prettyLongFlag  = flags.Bool("pretty", false, "Pretty-print HTML output")
		evalFlag        = flags.String("e", "", "Render template string")
		evalLongFlag    = flags.String("eval", "", "Render template string")
		checkFlag       = flags.Bool("check", false, "Check templates without rendering")
		clientFlag      = flags.Bool("client", false, "Print the JavaScript template function")
		nameFlag        = flags.String("name", "", "Template function name")
		doctypeFlag     = flags.String("doctype", "", "Default doctype")
		strictFlag      = flags.Bool("strict", false, "Reject non-constant attribute expressions")
		debugFlag       = flags.Bool("debug", false, "Compile with debug line tracking")
		inlineFlag      = flags.Bool("inline-runtime", false, "Inline runtime helpers in -client output")
		selfFlag        = flags.Bool("self", false, "Read locals through self")
		globalsFlag     = flags.String("globals", "", "Comma-separated global names")
		localsFlag      = flags.String("locals", "", "JSON object of locals")
		jsonFlag        = flags.Bool("json", false, "Print errors as JSON")
		stripFlag       = flags.Bool("strip-comments", false, "Drop buffered // comments")
		tabFlag         = flags.Int("tab-width", 0, "Columns per tab in indentation")
	)

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *helpFlag || *helpLongFlag {
		printHelp(stdout)
		return 0
	}
	if *versionFlag || *versionLongFlag {
		fmt.Fprintf(stdout, "pugc version %s\n", Version)
		return 0
	}

	opts := puglite.Options{
		TemplateName:           *nameFlag,
		CompileDebug:           *debugFlag,
		Doctype:                *doctypeFlag,
		Strict:                 *strictFlag,
		InlineRuntimeFunctions: *inlineFlag,
		Self:                   *selfFlag,
		StripBufferedComments:  *stripFlag,
		TabWidth:               *tabFlag,
	}
	if *prettyFlag || *prettyLongFlag {
		opts.Pretty = "  "
	}
	if *globalsFlag != "" {
		for _, g := range strings.Split(*globalsFlag, ",") {
			opts.Globals = append(opts.Globals, strings.TrimSpace(g))
		}
	}

	var locals map[string]any
	if *localsFlag != "" {
		if err := json.Unmarshal([]byte(*localsFlag), &locals); err != nil {
			fmt.Fprintf(stderr, "Error: --locals must be a JSON object: %v\n", err)
			return 2
		}
	}

	c := &compiler{opts: opts, locals: locals, client: *clientFlag, jsonErrors: *jsonFlag, stdout: stdout, stderr: stderr}

	evalCode := *evalFlag
	if evalCode == "" {
		evalCode = *evalLongFlag
	}

	switch {
	case evalCode != "":
		return c.source("<eval>", evalCode)
	case *checkFlag:
		files := flags.Args()
		if len(files) == 0 {
			fmt.Fprintln(stderr, "Error: --check requires at least one file")
			return 2
		}
		return c.check(files)
	case len(flags.Args()) > 0:
		status := 0
		for _, file := range flags.Args() {
			if s := c.file(file, stdin); s != 0 {
				status = s
			}
		}
		return status
	default:
		repl.Start(stdin, stdout, Version)
		return 0
	}
}

type compiler struct {
	opts       puglite.Options
	locals     map[string]any
	client     bool
	jsonErrors bool
	stdout     io.Writer
	stderr     io.Writer
}

// file renders one template file; "-" reads standard input.
func (c *compiler) file(path string, stdin io.Reader) int {
	var r io.Reader = stdin
	name := "<stdin>"
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return 1
		}
		defer f.Close()
		r = f
		name = path
	}
	src, err := puglite.ReadSource(r)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error reading %s: %v\n", name, err)
		return 1
	}
	return c.source(name, src)
}

func (c *compiler) source(name, src string) int {
	opts := c.opts
	opts.Filename = name

	tpl, err := puglite.Compile(src, opts)
	if err != nil {
		c.printError(err)
		return 1
	}
	if c.client {
		fmt.Fprintln(c.stdout, tpl.Source())
		return 0
	}
	out, err := tpl.Render(c.locals)
	if err != nil {
		c.printError(err)
		return 1
	}
	fmt.Fprintln(c.stdout, out)
	return 0
}

// check compiles each file and reports errors without rendering.
func (c *compiler) check(files []string) int {
	failed := 0
	for _, path := range files {
		if _, err := puglite.CompileFile(path, c.opts); err != nil {
			c.printError(err)
			failed++
			continue
		}
		if !c.jsonErrors {
			fmt.Fprintf(c.stdout, "%s: OK\n", path)
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func (c *compiler) printError(err error) {
	var pe *perrors.PugliteError
	if !errors.As(err, &pe) {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return
	}
	if c.jsonErrors {
		data, jerr := pe.ToJSON()
		if jerr == nil {
			fmt.Fprintln(c.stderr, string(data))
			return
		}
	}
	fmt.Fprintln(c.stderr, pe.PrettyString())
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, `pugc - puglite template compiler version %s

Usage:
  pugc [options] <file>...
  pugc -e "template" [options]
  pugc --check <file>...
  pugc repl

Display Options:
  -h, --help            Show this help message
  -V, --version         Show version information
  -pp, --pretty         Pretty-print HTML output
  --json                Print errors as JSON

Compile Options:
  -e, --eval <src>      Render a template string
  --check               Compile without rendering (can specify multiple files)
  --client              Print the JavaScript template function instead of HTML
  --name <ident>        Template function name (default: template)
  --doctype <name>      Default doctype (html, xml, transitional, ...)
  --strict              Reject attribute values that are not constants
  --debug               Track source lines in the template function
  --inline-runtime      Inline runtime helpers in --client output
  --self                Read locals through "self"
  --globals <a,b>       Names never read from locals
  --locals <json>       JSON object of locals to render with
  --strip-comments      Drop buffered // comments
  --tab-width <n>       Columns per tab in indentation (default: 4)

Examples:
  pugc                          Start interactive REPL
  pugc page.pug                 Render a template to stdout
  pugc -pp page.pug             Render with indentation
  pugc -e "p.lead Hello"        Render inline markup
  pugc --client --name page a.pug
  pugc --check views/*.pug      Check templates
  cat page.pug | pugc -         Render standard input
`, Version)
}
