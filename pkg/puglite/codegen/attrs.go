package codegen

import (
	"github.com/puglite/puglite/pkg/puglite/ast"
	"github.com/puglite/puglite/pkg/puglite/expr"
	"github.com/puglite/puglite/pkg/puglite/lexer"
	"github.com/puglite/puglite/pkg/puglite/runtime"
)

// attr is an attribute after declaration order has been resolved.
type attr struct {
	name       string
	val        expr.Node
	mustEscape bool
	shorthand  bool
	tok        lexer.Token
}

// expression parses an embedded expression. In strict mode anything that
// is not a compile-time constant is rejected.
func (c *Compiler) expression(src, name string, tok lexer.Token) expr.Node {
	n, err := expr.Parse(src)
	if err != nil {
		c.fail("GEN-0014", tok, map[string]any{"Expr": src, "Detail": err.Error()})
	}
	if c.opts.Strict && !expr.IsConstant(n) {
		c.fail("GEN-0012", tok, map[string]any{"Expr": src, "Name": name})
	}
	return n
}

// resolveAttrs applies the merge rules: class values accumulate in
// declaration order and render first; any other name keeps the position of
// its first declaration and the value of its last, except that a
// parenthesized id is never replaced by #id shorthand.
func (c *Compiler) resolveAttrs(attrs []*ast.Attr) []attr {
	var classes, escaping []expr.Node
	var classTok lexer.Token
	var others []attr
	index := make(map[string]int)

	for _, a := range attrs {
		val := c.expression(a.Val, a.Name, a.Token)
		if a.Name == "class" {
			if len(classes) == 0 {
				classTok = a.Token
			}
			classes = append(classes, val)
			escaping = append(escaping, &expr.Literal{Value: a.MustEscape})
			continue
		}
		if a.Name == "style" {
			if expr.IsConstant(val) {
				val = &expr.Literal{Value: runtime.Style(c.fold(val, a.Token))}
			} else {
				val = &expr.Helper{Name: "style", Args: []expr.Node{val}}
			}
		}
		next := attr{name: a.Name, val: val, mustEscape: a.MustEscape, shorthand: a.Shorthand, tok: a.Token}
		if i, ok := index[a.Name]; ok {
			if a.Shorthand && !others[i].shorthand {
				continue
			}
			others[i] = next
			continue
		}
		index[a.Name] = len(others)
		others = append(others, next)
	}

	if len(classes) == 0 {
		return others
	}

	constant := true
	for _, cl := range classes {
		if !expr.IsConstant(cl) {
			constant = false
			break
		}
	}
	var classVal expr.Node
	if constant {
		vals := make([]any, len(classes))
		flags := make([]bool, len(classes))
		for i, cl := range classes {
			vals[i] = c.fold(cl, classTok)
			flags[i] = escaping[i].(*expr.Literal).Value.(bool)
		}
		classVal = &expr.Literal{Value: runtime.Classes(vals, flags)}
	} else {
		classVal = &expr.Helper{Name: "classes", Args: []expr.Node{
			&expr.ArrayLit{Elems: classes},
			&expr.ArrayLit{Elems: escaping},
		}}
	}
	return append([]attr{{name: "class", val: classVal, tok: classTok}}, others...)
}

// visitAttributes buffers a tag's attributes. Attribute blocks switch to
// building an attribute object that the runtime merges and renders.
func (c *Compiler) visitAttributes(tag *ast.Tag) {
	if len(tag.AttributeBlocks) == 0 {
		for _, a := range c.resolveAttrs(tag.Attrs) {
			c.bufferAttr(a)
		}
		return
	}

	var objs []expr.Node
	if len(tag.Attrs) > 0 {
		objs = append(objs, c.attrsObject(tag.Attrs))
	}
	for _, b := range tag.AttributeBlocks {
		objs = append(objs, c.expression(b.Val, "&attributes", b.Token))
	}

	terse := &expr.Literal{Value: c.terse}
	var obj expr.Node
	if len(objs) > 1 {
		obj = &expr.Helper{Name: "merge", Args: []expr.Node{&expr.ArrayLit{Elems: objs}}}
	} else {
		obj = objs[0]
	}
	c.bufferExpression(&expr.Helper{Name: "attrs", Args: []expr.Node{obj, terse}}, tag.Token)
}

// bufferAttr renders one attribute as markup, or as a runtime attr call
// when its value is not constant.
func (c *Compiler) bufferAttr(a attr) {
	if expr.IsConstant(a.val) {
		c.buffer(runtime.Attr(a.name, c.fold(a.val, a.tok), a.mustEscape, c.terse))
		return
	}
	c.bufferExpression(&expr.Helper{Name: "attr", Args: []expr.Node{
		&expr.Literal{Value: a.name},
		a.val,
		&expr.Literal{Value: a.mustEscape},
		&expr.Literal{Value: c.terse},
	}}, a.tok)
}

// attrsObject builds the object literal form of attrs for merging with
// attribute blocks. Escaping happens here since the runtime renders
// object values unescaped.
func (c *Compiler) attrsObject(attrs []*ast.Attr) expr.Node {
	resolved := c.resolveAttrs(attrs)
	obj := &expr.ObjectLit{Props: make([]expr.Property, 0, len(resolved))}
	for _, a := range resolved {
		val := a.val
		if a.mustEscape {
			if expr.IsConstant(val) {
				val = expr.Lit(runtime.EscapeValue(c.fold(val, a.tok)))
			} else {
				val = &expr.Helper{Name: "escape", Args: []expr.Node{val}}
			}
		}
		obj.Props = append(obj.Props, expr.Property{Key: a.name, Value: val})
	}
	return obj
}
