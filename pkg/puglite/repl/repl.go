package repl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	perrors "github.com/puglite/puglite/pkg/puglite/errors"
	"github.com/puglite/puglite/pkg/puglite/filters"
	"github.com/puglite/puglite/pkg/puglite/puglite"
)

const PROMPT = ">> "
const PROMPT_JS = "js> "
const CONTINUATION_PROMPT = ".. "

const LOGO = `
 _ __  _   _  __ _| (_) |_ ___
| '_ \| | | |/ _' | | | __/ _ \
| |_) | |_| | (_| | | | ||  __/
| .__/ \__,_|\__, |_|_|\__\___|
|_|          |___/             `

// Tag names and keywords for tab completion
var completionWords = []string{
	"doctype", "html", "head", "title", "meta", "link", "script", "style",
	"body", "header", "footer", "main", "nav", "section", "article", "aside",
	"div", "span", "p", "a", "img", "ul", "ol", "li", "table", "thead",
	"tbody", "tr", "th", "td", "form", "input", "button", "label", "select",
	"option", "textarea", "pre", "code", "em", "strong", "br", "hr",
	"h1", "h2", "h3", "h4", "h5", "h6",
}

// Session holds the compile options of an interactive session.
type Session struct {
	Options puglite.Options
	// ShowSource prints the JavaScript function instead of rendered HTML.
	ShowSource bool
}

// NewSession returns a session with default options.
func NewSession() *Session {
	return &Session{}
}

// Start starts the REPL with line editing, history, and tab completion
func Start(in io.Reader, out io.Writer, version string) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(filterCompletions)

	historyFile := filepath.Join(os.TempDir(), ".puglite_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(out, "%s", LOGO)
	fmt.Fprintln(out, "v", version)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Type 'exit' or Ctrl+D to quit")
	fmt.Fprintln(out, "End a multi-line template with an empty line")
	fmt.Fprintln(out, "Type ':help' for REPL commands")
	fmt.Fprintln(out, "")

	s := NewSession()
	var inputBuffer strings.Builder

	for {
		prompt := PROMPT
		if s.ShowSource {
			prompt = PROMPT_JS
		}
		if inputBuffer.Len() > 0 {
			prompt = CONTINUATION_PROMPT
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				if inputBuffer.Len() > 0 {
					fmt.Fprintln(out, "^C (cleared)")
				} else {
					fmt.Fprintln(out, "^C")
				}
				inputBuffer.Reset()
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}

		trimmed := strings.TrimSpace(input)
		if inputBuffer.Len() == 0 && (trimmed == "exit" || trimmed == "quit") {
			fmt.Fprintln(out, "Goodbye!")
			return
		}

		if inputBuffer.Len() == 0 && strings.HasPrefix(trimmed, ":") {
			s.Command(trimmed, out)
			continue
		}

		if inputBuffer.Len() == 0 && trimmed == "" {
			continue
		}

		if trimmed != "" {
			if inputBuffer.Len() > 0 {
				inputBuffer.WriteString("\n")
			}
			inputBuffer.WriteString(input)
			if needsMoreInput(inputBuffer.String()) {
				continue
			}
		}

		fullInput := inputBuffer.String()
		line.AppendHistory(fullInput)
		io.WriteString(out, s.Eval(fullInput))
		inputBuffer.Reset()
	}
}

// Eval compiles input and returns the rendered HTML (or function source)
// followed by a newline, or a formatted error.
func (s *Session) Eval(input string) string {
	opts := s.Options
	opts.Filename = "<repl>"
	tpl, err := puglite.Compile(input, opts)
	if err != nil {
		return formatError(err)
	}
	if s.ShowSource {
		return tpl.Source() + "\n"
	}
	out, err := tpl.Render(nil)
	if err != nil {
		return formatError(err)
	}
	return out + "\n"
}

// Command runs a REPL meta-command that starts with ':'.
func (s *Session) Command(cmd string, out io.Writer) {
	name, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?      Show this help")
		fmt.Fprintln(out, "  :pretty            Toggle pretty printed output")
		fmt.Fprintln(out, "  :js                Toggle JavaScript function output")
		fmt.Fprintln(out, "  :doctype [name]    Set the default doctype (no name clears it)")
		fmt.Fprintln(out, "  :strict            Toggle strict mode")
		fmt.Fprintln(out, "  :filters           List available filters")
		fmt.Fprintln(out, "  :options           Show current options")
		fmt.Fprintln(out, "  exit, quit         Exit the REPL")
		fmt.Fprintln(out, "")
		fmt.Fprintln(out, "A line ending in '.' or ':' or an open '(' continues onto")
		fmt.Fprintln(out, "the next line; an empty line ends the template.")

	case ":pretty":
		if s.Options.Pretty == "" {
			s.Options.Pretty = "  "
			fmt.Fprintln(out, "Pretty output ON")
		} else {
			s.Options.Pretty = ""
			fmt.Fprintln(out, "Pretty output OFF")
		}

	case ":js":
		s.ShowSource = !s.ShowSource
		if s.ShowSource {
			fmt.Fprintln(out, "JavaScript output ON")
		} else {
			fmt.Fprintln(out, "JavaScript output OFF")
		}

	case ":doctype":
		s.Options.Doctype = arg
		if arg == "" {
			fmt.Fprintln(out, "Default doctype cleared")
		} else {
			fmt.Fprintf(out, "Default doctype: %s\n", arg)
		}

	case ":strict":
		s.Options.Strict = !s.Options.Strict
		fmt.Fprintf(out, "Strict mode: %v\n", s.Options.Strict)

	case ":filters":
		fmt.Fprintln(out, strings.Join(filters.Default().Names(), ", "))

	case ":options":
		fmt.Fprintf(out, "  pretty:  %q\n", s.Options.Pretty)
		fmt.Fprintf(out, "  doctype: %q\n", s.Options.Doctype)
		fmt.Fprintf(out, "  strict:  %v\n", s.Options.Strict)
		fmt.Fprintf(out, "  js:      %v\n", s.ShowSource)

	default:
		fmt.Fprintf(out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}

// filterCompletions returns completion suggestions based on current input
func filterCompletions(line string) []string {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if line[len(line)-1] == ' ' || line[len(line)-1] == '\t' {
		return nil
	}

	words := strings.Fields(line)
	lastWord := words[len(words)-1]
	prefix := line[:len(line)-len(lastWord)]

	var matches []string
	for _, word := range completionWords {
		if strings.HasPrefix(word, lastWord) {
			matches = append(matches, prefix+word)
		}
	}
	return matches
}

// needsMoreInput reports whether the buffered template is unfinished: an
// attribute list is still open, or the last line opens a block with '.'
// or ':'. Once a buffer spans several lines it runs until an empty line.
func needsMoreInput(input string) bool {
	if strings.Contains(input, "\n") {
		return true
	}
	last := strings.TrimRight(input, " \t")
	if strings.HasSuffix(last, ".") || strings.HasSuffix(last, ":") {
		return true
	}

	depth := 0
	var quote byte
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if quote != 0 {
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	return depth > 0
}

// formatError renders compile and render errors with their source excerpt.
func formatError(err error) string {
	var pe *perrors.PugliteError
	if errors.As(err, &pe) {
		return pe.PrettyString() + "\n"
	}
	return "Error: " + err.Error() + "\n"
}
