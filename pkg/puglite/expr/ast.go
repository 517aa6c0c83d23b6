// Package expr implements the narrow JavaScript expression subset that
// puglite accepts in attribute values and interpolated tag names.
//
// Expressions are parsed into a small tree, analysed for free identifiers,
// folded to constants when they have none, and otherwise printed back into
// the generated function source or evaluated against an explicit scope.
package expr

import (
	"strings"

	"github.com/puglite/puglite/pkg/puglite/runtime"
)

// Node is an expression tree node.
type Node interface {
	exprNode()
	// String renders the node as JavaScript source with runtime helpers
	// referenced through the shared "pug." namespace.
	String() string
}

// Literal is a number, string, boolean, null or undefined constant.
type Literal struct {
	Value any
}

// Ident is a free or bound identifier.
type Ident struct {
	Name string
}

// ArrayLit is an array literal.
type ArrayLit struct {
	Elems []Node
}

// Property is one key/value pair of an object literal.
type Property struct {
	Key   string
	Value Node
}

// ObjectLit is an object literal.
type ObjectLit struct {
	Props []Property
}

// TemplateLit is a backtick string. len(Quasis) == len(Exprs)+1.
type TemplateLit struct {
	Quasis []string
	Exprs  []Node
}

// Unary is a prefix operator application.
type Unary struct {
	Op string
	X  Node
}

// Binary is an infix operator application, including the logical
// operators && || and ??.
type Binary struct {
	Op   string
	L, R Node
}

// Cond is the ternary operator.
type Cond struct {
	Test, Then, Else Node
}

// Member is a property access. Prop is a string Literal for a.b.
type Member struct {
	X        Node
	Prop     Node
	Computed bool
	Optional bool
}

// Call is a function or method call.
type Call struct {
	Callee Node
	Args   []Node
}

// Helper is a call to one of the runtime helper functions (attr, attrs,
// classes, escape, merge, style). It is produced by the code generator,
// never by the parser.
type Helper struct {
	Name string
	Args []Node
}

func (*Literal) exprNode()     {}
func (*Ident) exprNode()       {}
func (*ArrayLit) exprNode()    {}
func (*ObjectLit) exprNode()   {}
func (*TemplateLit) exprNode() {}
func (*Unary) exprNode()       {}
func (*Binary) exprNode()      {}
func (*Cond) exprNode()        {}
func (*Member) exprNode()      {}
func (*Call) exprNode()        {}
func (*Helper) exprNode()      {}

func (n *Literal) String() string     { return Print(n, nil) }
func (n *Ident) String() string       { return n.Name }
func (n *ArrayLit) String() string    { return Print(n, nil) }
func (n *ObjectLit) String() string   { return Print(n, nil) }
func (n *TemplateLit) String() string { return Print(n, nil) }
func (n *Unary) String() string       { return Print(n, nil) }
func (n *Binary) String() string      { return Print(n, nil) }
func (n *Cond) String() string        { return Print(n, nil) }
func (n *Member) String() string      { return Print(n, nil) }
func (n *Call) String() string        { return Print(n, nil) }
func (n *Helper) String() string      { return Print(n, nil) }

// Lit wraps a runtime value as a literal node. Arrays and objects become
// array and object literals.
func Lit(v any) Node {
	switch x := v.(type) {
	case []any:
		elems := make([]Node, len(x))
		for i, el := range x {
			elems[i] = Lit(el)
		}
		return &ArrayLit{Elems: elems}
	case *runtime.Object:
		props := make([]Property, 0, x.Len())
		for _, k := range x.Keys() {
			val, _ := x.Get(k)
			props = append(props, Property{Key: k, Value: Lit(val)})
		}
		return &ObjectLit{Props: props}
	default:
		return &Literal{Value: v}
	}
}

// HelperName maps a runtime helper name to the identifier used in source.
type HelperName func(name string) string

// Print renders n as JavaScript source. helper controls how runtime helper
// calls are spelled; nil means "pug.<name>".
func Print(n Node, helper HelperName) string {
	if helper == nil {
		helper = func(name string) string { return "pug." + name }
	}
	var sb strings.Builder
	printNode(&sb, n, helper)
	return sb.String()
}

func printNode(sb *strings.Builder, n Node, helper HelperName) {
	switch x := n.(type) {
	case *Literal:
		switch v := x.Value.(type) {
		case string:
			sb.WriteString(runtime.Quote(v))
		default:
			sb.WriteString(runtime.ToString(v))
		}
	case *Ident:
		sb.WriteString(x.Name)
	case *ArrayLit:
		sb.WriteByte('[')
		for i, el := range x.Elems {
			if i > 0 {
				sb.WriteByte(',')
			}
			printNode(sb, el, helper)
		}
		sb.WriteByte(']')
	case *ObjectLit:
		sb.WriteByte('{')
		for i, p := range x.Props {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(runtime.Quote(p.Key))
			sb.WriteByte(':')
			printNode(sb, p.Value, helper)
		}
		sb.WriteByte('}')
	case *TemplateLit:
		sb.WriteByte('`')
		for i, q := range x.Quasis {
			q = strings.ReplaceAll(q, `\`, `\\`)
			q = strings.ReplaceAll(q, "`", "\\`")
			q = strings.ReplaceAll(q, "${", "\\${")
			sb.WriteString(q)
			if i < len(x.Exprs) {
				sb.WriteString("${")
				printNode(sb, x.Exprs[i], helper)
				sb.WriteByte('}')
			}
		}
		sb.WriteByte('`')
	case *Unary:
		sb.WriteString(x.Op)
		if x.Op == "typeof" || x.Op == "void" {
			sb.WriteByte(' ')
		}
		printOperand(sb, x.X, helper)
	case *Binary:
		printOperand(sb, x.L, helper)
		sb.WriteByte(' ')
		sb.WriteString(x.Op)
		sb.WriteByte(' ')
		printOperand(sb, x.R, helper)
	case *Cond:
		printOperand(sb, x.Test, helper)
		sb.WriteString(" ? ")
		printOperand(sb, x.Then, helper)
		sb.WriteString(" : ")
		printOperand(sb, x.Else, helper)
	case *Member:
		printOperand(sb, x.X, helper)
		if x.Optional {
			sb.WriteString("?.")
		}
		if x.Computed {
			sb.WriteByte('[')
			printNode(sb, x.Prop, helper)
			sb.WriteByte(']')
		} else {
			if !x.Optional {
				sb.WriteByte('.')
			}
			sb.WriteString(x.Prop.(*Literal).Value.(string))
		}
	case *Call:
		printOperand(sb, x.Callee, helper)
		printArgs(sb, x.Args, helper)
	case *Helper:
		sb.WriteString(helper(x.Name))
		printArgs(sb, x.Args, helper)
	}
}

func printArgs(sb *strings.Builder, args []Node, helper HelperName) {
	sb.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		printNode(sb, a, helper)
	}
	sb.WriteByte(')')
}

// printOperand parenthesizes compound operands so the printed source never
// depends on operator precedence.
func printOperand(sb *strings.Builder, n Node, helper HelperName) {
	switch n.(type) {
	case *Binary, *Cond, *Unary:
		sb.WriteByte('(')
		printNode(sb, n, helper)
		sb.WriteByte(')')
	case *Literal:
		if f, ok := n.(*Literal).Value.(float64); ok && f < 0 {
			sb.WriteByte('(')
			printNode(sb, n, helper)
			sb.WriteByte(')')
			return
		}
		printNode(sb, n, helper)
	default:
		printNode(sb, n, helper)
	}
}

// FreeVars returns the identifiers n reads, in first-use order.
func FreeVars(n Node) []string {
	var names []string
	seen := make(map[string]bool)
	walk(n, func(id *Ident) {
		if !seen[id.Name] {
			seen[id.Name] = true
			names = append(names, id.Name)
		}
	})
	return names
}

// IsConstant reports whether n can be folded at compile time: it reads no
// identifiers and calls no runtime helpers.
func IsConstant(n Node) bool {
	constant := true
	walk(n, func(*Ident) { constant = false })
	if constant {
		visit(n, func(m Node) {
			if _, ok := m.(*Helper); ok {
				constant = false
			}
		})
	}
	return constant
}

// HelperNames returns the runtime helpers n calls, in first-use order.
func HelperNames(n Node) []string {
	var names []string
	seen := make(map[string]bool)
	visit(n, func(m Node) {
		if h, ok := m.(*Helper); ok && !seen[h.Name] {
			seen[h.Name] = true
			names = append(names, h.Name)
		}
	})
	return names
}

func walk(n Node, fn func(*Ident)) {
	visit(n, func(m Node) {
		if id, ok := m.(*Ident); ok {
			fn(id)
		}
	})
}

func visit(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch x := n.(type) {
	case *ArrayLit:
		for _, el := range x.Elems {
			visit(el, fn)
		}
	case *ObjectLit:
		for _, p := range x.Props {
			visit(p.Value, fn)
		}
	case *TemplateLit:
		for _, e := range x.Exprs {
			visit(e, fn)
		}
	case *Unary:
		visit(x.X, fn)
	case *Binary:
		visit(x.L, fn)
		visit(x.R, fn)
	case *Cond:
		visit(x.Test, fn)
		visit(x.Then, fn)
		visit(x.Else, fn)
	case *Member:
		visit(x.X, fn)
		if x.Computed {
			visit(x.Prop, fn)
		}
	case *Call:
		visit(x.Callee, fn)
		for _, a := range x.Args {
			visit(a, fn)
		}
	case *Helper:
		for _, a := range x.Args {
			visit(a, fn)
		}
	}
}
