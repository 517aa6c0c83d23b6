package codegen

import (
	"regexp"
	"strings"

	perrors "github.com/puglite/puglite/pkg/puglite/errors"
)

// DefaultPretty is the indent used when pretty printing is switched on
// without an explicit indent string.
const DefaultPretty = "  "

// DefaultTemplateName names the generated function when TemplateName is
// empty.
const DefaultTemplateName = "template"

// Options configures code generation.
type Options struct {
	// TemplateName is the generated function's name.
	TemplateName string
	// Pretty is the indent string for pretty printed output; empty
	// disables pretty printing. It must be whitespace only.
	Pretty string
	// CompileDebug records source lines so that render errors carry a
	// position, and wraps client source in a rethrow guard.
	CompileDebug bool
	// Doctype is the default doctype when the template has no doctype
	// directive.
	Doctype string
	// Self binds locals to a single "self" variable instead of binding
	// each free identifier.
	Self bool
	// Globals are identifiers that are never read from locals.
	Globals []string
	// IncludeSources maps filenames to source text for error excerpts.
	IncludeSources map[string]string
	// InlineRuntimeFunctions emits helper functions into client source
	// instead of referencing the shared pug namespace.
	InlineRuntimeFunctions bool
	// Strict rejects attribute and tag name expressions that are not
	// compile-time constants.
	Strict bool
}

var identifierRe = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$]*$`)

func isIdentifier(name string) bool {
	return identifierRe.MatchString(name)
}

// Validate checks pretty, templateName, doctype and globals, in that order.
func (o Options) Validate() error {
	if o.Pretty != "" && strings.TrimSpace(o.Pretty) != "" {
		return perrors.New("OPT-0001", nil)
	}
	if o.TemplateName != "" && !isIdentifier(o.TemplateName) {
		return perrors.New("IDENT-0001", map[string]any{"Name": o.TemplateName})
	}
	if strings.ContainsAny(o.Doctype, "<>") {
		return perrors.New("OPT-0002", nil)
	}
	for _, g := range o.Globals {
		if !isIdentifier(g) {
			return perrors.New("IDENT-0002", map[string]any{"Name": g})
		}
	}
	return nil
}

func (o Options) templateName() string {
	if o.TemplateName == "" {
		return DefaultTemplateName
	}
	return o.TemplateName
}

var doctypes = map[string]string{
	"html":         `<!DOCTYPE html>`,
	"xml":          `<?xml version="1.0" encoding="utf-8" ?>`,
	"transitional": `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">`,
	"strict":       `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">`,
	"frameset":     `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Frameset//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-frameset.dtd">`,
	"1.1":          `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.1//EN" "http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd">`,
	"basic":        `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML Basic 1.1//EN" "http://www.w3.org/TR/xhtml-basic/xhtml-basic11.dtd">`,
	"mobile":       `<!DOCTYPE html PUBLIC "-//WAPFORUM//DTD XHTML Mobile 1.2//EN" "http://www.openmobilealliance.org/tech/DTD/xhtml-mobile12.dtd">`,
	"plist":        `<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">`,
}

// DoctypeMarkup returns the markup a doctype name expands to.
func DoctypeMarkup(name string) string {
	if d, ok := doctypes[strings.ToLower(name)]; ok {
		return d
	}
	return "<!DOCTYPE " + name + ">"
}
