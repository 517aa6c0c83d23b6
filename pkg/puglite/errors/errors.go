// Package errors provides the structured error type returned by every stage
// of the puglite compiler.
//
// A PugliteError carries a stable taxonomy code (LexError, ParseError, ...),
// a catalog id for the precise failure, a rendered message with hints, and
// the source position. Tooling greps the code and position fields, so the
// JSON shape is part of the public contract.
package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// Code is the taxonomy entry of an error.
type Code string

const (
	LexError                  Code = "LexError"                  // Malformed indentation or token
	ParseError                Code = "ParseError"                // Structurally invalid token sequence
	UnsupportedConstructError Code = "UnsupportedConstructError" // Dynamic construct rejected by the generator
	SelfClosingContentError   Code = "SelfClosingContentError"   // Void/self-closing tag with content
	IdentifierValidationError Code = "IdentifierValidationError" // Bad templateName or globals entry
	OptionError               Code = "OptionError"               // Bad pretty or doctype option
	RenderError               Code = "RenderError"               // Embedded expression failed at invocation
)

// PugliteError is the error object surfaced to callers.
type PugliteError struct {
	Code     Code           `json:"code"`               // Taxonomy entry
	ID       string         `json:"id"`                 // Catalog id (e.g. "LEX-0003")
	Message  string         `json:"message"`            // Human-readable message
	Hints    []string       `json:"hints,omitempty"`    // Suggestions for fixing
	Line     int            `json:"line"`               // 1-based line (0 if unknown)
	Column   int            `json:"column"`             // 1-based column (0 if unknown)
	Filename string         `json:"filename,omitempty"` // Source file (if known)
	Data     map[string]any `json:"-"`                  // Template variables

	src string
}

// Error implements the error interface.
func (e *PugliteError) Error() string {
	return e.String()
}

// String returns a formatted string representation of the error.
func (e *PugliteError) String() string {
	var sb strings.Builder

	if e.Filename != "" {
		sb.WriteString(e.Filename)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		sb.WriteString(fmt.Sprintf("line %d, column %d: ", e.Line, e.Column))
	}

	sb.WriteString(e.Message)

	for _, hint := range e.Hints {
		sb.WriteString("\n  ")
		sb.WriteString(hint)
	}

	return sb.String()
}

// Location returns the position in the compact "file:line:column" form used
// by editors. Templates compiled without a filename report as "Pug".
func (e *PugliteError) Location() string {
	name := e.Filename
	if name == "" {
		name = "Pug"
	}
	if e.Line == 0 {
		return name
	}
	return fmt.Sprintf("%s:%d:%d", name, e.Line, e.Column)
}

// PrettyString returns a multi-line formatted string for display, including
// a source excerpt when the error carries its source text.
func (e *PugliteError) PrettyString() string {
	var sb strings.Builder

	sb.WriteString(string(e.Code))
	sb.WriteString(" in ")
	sb.WriteString(e.Location())
	sb.WriteString("\n")

	if excerpt := e.Excerpt(2); excerpt != "" {
		sb.WriteString(excerpt)
		sb.WriteString("\n")
	}

	sb.WriteString("  ")
	sb.WriteString(e.Message)

	for i, hint := range e.Hints {
		sb.WriteString("\n  ")
		if i == 0 {
			sb.WriteString("Hint: ")
		} else {
			sb.WriteString("  or: ")
		}
		sb.WriteString(hint)
	}

	return sb.String()
}

// Excerpt renders up to context lines either side of the error line, with
// a caret under the column. It returns "" when no source is attached.
func (e *PugliteError) Excerpt(context int) string {
	if e.src == "" || e.Line <= 0 {
		return ""
	}
	lines := strings.Split(e.src, "\n")
	if e.Line > len(lines) {
		return ""
	}

	start := max(e.Line-context, 1)
	end := min(e.Line+context, len(lines))
	width := len(fmt.Sprint(end))

	var sb strings.Builder
	for n := start; n <= end; n++ {
		marker := "  "
		if n == e.Line {
			marker = "> "
		}
		fmt.Fprintf(&sb, "%s%*d| %s\n", marker, width, n, strings.TrimRight(lines[n-1], "\r"))
		if n == e.Line && e.Column > 0 {
			fmt.Fprintf(&sb, "  %s| %s^\n", strings.Repeat(" ", width), strings.Repeat("-", e.Column-1))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Source returns the source text attached with WithSource.
func (e *PugliteError) Source() string {
	return e.src
}

// ToJSON returns the error as JSON bytes.
func (e *PugliteError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ToJSONIndent returns the error as indented JSON bytes.
func (e *PugliteError) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// WithFile returns a copy of the error with the filename set.
func (e *PugliteError) WithFile(filename string) *PugliteError {
	copy := *e
	copy.Filename = filename
	return &copy
}

// WithPosition returns a copy of the error with line and column set.
func (e *PugliteError) WithPosition(line, column int) *PugliteError {
	copy := *e
	copy.Line = line
	copy.Column = column
	return &copy
}

// WithSource returns a copy of the error that can render source excerpts.
func (e *PugliteError) WithSource(src string) *PugliteError {
	copy := *e
	copy.src = src
	return &copy
}

// Is reports whether target is a *PugliteError with the same code, so that
// errors.Is(err, &PugliteError{Code: LexError}) matches any lex failure.
func (e *PugliteError) Is(target error) bool {
	t, ok := target.(*PugliteError)
	if !ok {
		return false
	}
	if t.ID != "" && t.ID != e.ID {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// ErrorDef defines an error in the catalog.
type ErrorDef struct {
	Code     Code     // Taxonomy entry
	Template string   // Message template with {{.placeholders}}
	Hints    []string // Hint templates (may use {{.placeholders}})
}

// ErrorCatalog maps catalog ids to their definitions.
var ErrorCatalog = map[string]ErrorDef{
	// ========================================
	// Lexer errors (LEX-0xxx)
	// ========================================
	"LEX-0001": {
		Code:     LexError,
		Template: "unexpected text \"{{.Text}}\"",
	},
	"LEX-0002": {
		Code:     LexError,
		Template: "Invalid indentation, you can use tabs or spaces but not both",
		Hints:    []string{"this file indents with {{.Style}}"},
	},
	"LEX-0003": {
		Code:     LexError,
		Template: "Inconsistent indentation. Expecting either {{.Expected}} spaces/tabs.",
	},
	"LEX-0004": {
		Code:     LexError,
		Template: "unterminated string in attribute value",
	},
	"LEX-0005": {
		Code:     LexError,
		Template: "The end of the string reached with no closing bracket ) found.",
		Hints:    []string{"close the attribute list that starts on line {{.OpenLine}}"},
	},
	"LEX-0006": {
		Code:     LexError,
		Template: "`!!!` is deprecated, you must now use `doctype`",
		Hints:    []string{"doctype html"},
	},
	"LEX-0007": {
		Code:     LexError,
		Template: "unbalanced \"{{.Char}}\" in attribute name \"{{.Name}}\"",
	},
	"LEX-0008": {
		Code:     LexError,
		Template: "End of line was reached with no closing bracket for interpolation.",
	},
	"LEX-0009": {
		Code:     LexError,
		Template: "Class names must contain at least one letter or underscore.",
	},
	"LEX-0010": {
		Code:     LexError,
		Template: "\"{{.Text}}\" is not a valid ID.",
	},
	"LEX-0011": {
		Code:     LexError,
		Template: "Invalid indentation, {{.Width}} is not a multiple of the indentation unit {{.Unit}}",
		Hints:    []string{"indent nested lines by {{.Unit}} columns per level"},
	},

	// ========================================
	// Parser errors (PARSE-0xxx)
	// ========================================
	"PARSE-0001": {
		Code:     ParseError,
		Template: "unexpected token \"{{.Token}}\"",
	},
	"PARSE-0002": {
		Code:     ParseError,
		Template: "expected a tag after \":\" but got \"{{.Token}}\"",
		Hints:    []string{"li: a(href=\"/\") Home"},
	},
	"PARSE-0003": {
		Code:     ParseError,
		Template: "unexpected \"{{.Token}}\" in attribute list",
	},
	"PARSE-0004": {
		Code:     ParseError,
		Template: "invalid value for attribute \"{{.Name}}\": {{.Detail}}",
	},
	"PARSE-0005": {
		Code:     ParseError,
		Template: "unexpected indentation after {{.After}}",
		Hints:    []string{"only tags and comments may have nested blocks"},
	},
	"PARSE-0006": {
		Code:     ParseError,
		Template: "invalid tag interpolation: {{.Detail}}",
	},
	"PARSE-0007": {
		Code:     ParseError,
		Template: "invalid &attributes value: {{.Detail}}",
	},

	// ========================================
	// Generator errors (GEN-0xxx)
	// ========================================
	"GEN-0001": {
		Code:     UnsupportedConstructError,
		Template: "Code blocks (= and -) are not supported in puglite.",
		Hints:    []string{"Use your framework for logic and data binding."},
	},
	"GEN-0002": {
		Code:     UnsupportedConstructError,
		Template: "Conditionals (if/else/unless) are not supported in puglite.",
		Hints:    []string{"Use your framework for logic."},
	},
	"GEN-0003": {
		Code:     UnsupportedConstructError,
		Template: "While loops are not supported in puglite.",
		Hints:    []string{"Use your framework for iteration."},
	},
	"GEN-0004": {
		Code:     UnsupportedConstructError,
		Template: "Each loops are not supported in puglite.",
		Hints:    []string{"Use your framework for iteration."},
	},
	"GEN-0005": {
		Code:     UnsupportedConstructError,
		Template: "Mixins are not supported in puglite.",
		Hints:    []string{"Please remove mixin usage; use your framework's components for reusable fragments."},
	},
	"GEN-0006": {
		Code:     UnsupportedConstructError,
		Template: "Mixin blocks are not supported in puglite.",
		Hints:    []string{"Please remove mixin usage; use your framework's content projection instead."},
	},
	"GEN-0007": {
		Code:     UnsupportedConstructError,
		Template: "Case statements are not supported in puglite.",
		Hints:    []string{"Use your framework for logic."},
	},
	"GEN-0008": {
		Code:     UnsupportedConstructError,
		Template: "Case/when statements are not supported in puglite.",
		Hints:    []string{"Use your framework for logic."},
	},
	"GEN-0009": {
		Code:     UnsupportedConstructError,
		Template: "Includes and extends are not supported in puglite.",
		Hints:    []string{"Compose templates with your framework's components."},
	},
	"GEN-0010": {
		Code:     UnsupportedConstructError,
		Template: "Named blocks are not supported in puglite.",
		Hints:    []string{"Compose templates with your framework's components."},
	},
	"GEN-0011": {
		Code:     UnsupportedConstructError,
		Template: "unknown filter \":{{.Name}}\"",
		Hints:    []string{"available filters: {{.Available}}"},
	},
	"GEN-0012": {
		Code:     UnsupportedConstructError,
		Template: "non-constant expression \"{{.Expr}}\" is not allowed in strict mode",
		Hints:    []string{"Bind data with your framework, e.g. [{{.Name}}]=\"{{.Expr}}\"."},
	},
	"GEN-0013": {
		Code:     SelfClosingContentError,
		Template: "{{.Name}} is a self closing element: <{{.Name}}/> but contains nested content.",
	},
	"GEN-0014": {
		Code:     ParseError,
		Template: "could not evaluate \"{{.Expr}}\": {{.Detail}}",
	},

	// ========================================
	// Identifier errors (IDENT-0xxx)
	// ========================================
	"IDENT-0001": {
		Code:     IdentifierValidationError,
		Template: "templateName \"{{.Name}}\" must be a valid JavaScript identifier",
	},
	"IDENT-0002": {
		Code:     IdentifierValidationError,
		Template: "global \"{{.Name}}\" must be a valid JavaScript identifier",
	},

	// ========================================
	// Option errors (OPT-0xxx)
	// ========================================
	"OPT-0001": {
		Code:     OptionError,
		Template: "The pretty parameter should either be a boolean or whitespace only string",
	},
	"OPT-0002": {
		Code:     OptionError,
		Template: "Doctype can not contain \"<\" or \">\"",
	},
	"OPT-0003": {
		Code:     OptionError,
		Template: "tab width must not be negative, got {{.Width}}",
	},

	// ========================================
	// Render errors (RENDER-0xxx)
	// ========================================
	"RENDER-0001": {
		Code:     RenderError,
		Template: "{{.Detail}}",
	},
}

// New creates a PugliteError from a catalog id and template data.
func New(id string, data map[string]any) *PugliteError {
	def, ok := ErrorCatalog[id]
	if !ok {
		msg := id
		if data != nil {
			if m, ok := data["message"].(string); ok {
				msg = m
			}
		}
		return &PugliteError{
			Code:    ParseError,
			ID:      id,
			Message: msg,
			Data:    data,
		}
	}

	msg := renderTemplate(def.Template, data)

	var hints []string
	for _, hintTmpl := range def.Hints {
		if rendered := renderTemplate(hintTmpl, data); rendered != "" {
			hints = append(hints, rendered)
		}
	}

	return &PugliteError{
		Code:    def.Code,
		ID:      id,
		Message: msg,
		Hints:   hints,
		Data:    data,
	}
}

// NewAt creates a PugliteError with a source position.
func NewAt(id string, filename string, line, column int, data map[string]any) *PugliteError {
	err := New(id, data)
	err.Filename = filename
	err.Line = line
	err.Column = column
	return err
}

func renderTemplate(tmplStr string, data map[string]any) string {
	if data == nil {
		return tmplStr
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmplStr
	}

	return buf.String()
}
