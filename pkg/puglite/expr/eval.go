package expr

import (
	"fmt"
	"math"

	"github.com/puglite/puglite/pkg/puglite/runtime"
)

var undefinedValue = runtime.Undefined

// Scope resolves identifiers during evaluation.
type Scope interface {
	Lookup(name string) (any, bool)
}

// MapScope is a Scope backed by a map.
type MapScope map[string]any

// Lookup implements Scope.
func (m MapScope) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// EmptyScope resolves nothing.
var EmptyScope Scope = MapScope(nil)

// EvalError is a TypeError or ReferenceError raised while evaluating.
type EvalError struct {
	Kind string // "TypeError" or "ReferenceError"
	Msg  string
}

func (e *EvalError) Error() string {
	return e.Kind + ": " + e.Msg
}

func typeError(format string, args ...any) error {
	return &EvalError{Kind: "TypeError", Msg: fmt.Sprintf(format, args...)}
}

// Eval evaluates n against scope. Identifiers the scope cannot resolve are a
// ReferenceError.
func Eval(n Node, scope Scope) (any, error) {
	if scope == nil {
		scope = EmptyScope
	}
	e := &evaluator{scope: scope}
	return e.eval(n)
}

// Fold evaluates a constant node. It returns an error when n is not constant.
func Fold(n Node) (any, error) {
	if !IsConstant(n) {
		return nil, fmt.Errorf("%s is not a constant expression", n)
	}
	return Eval(n, EmptyScope)
}

type evaluator struct {
	scope Scope
}

func (e *evaluator) eval(n Node) (any, error) {
	switch x := n.(type) {
	case *Literal:
		return x.Value, nil
	case *Ident:
		v, ok := e.scope.Lookup(x.Name)
		if !ok {
			return nil, &EvalError{Kind: "ReferenceError", Msg: x.Name + " is not defined"}
		}
		return v, nil
	case *ArrayLit:
		out := make([]any, len(x.Elems))
		for i, el := range x.Elems {
			v, err := e.eval(el)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *ObjectLit:
		obj := runtime.NewObject()
		for _, p := range x.Props {
			v, err := e.eval(p.Value)
			if err != nil {
				return nil, err
			}
			obj.Set(p.Key, v)
		}
		return obj, nil
	case *TemplateLit:
		s := x.Quasis[0]
		for i, sub := range x.Exprs {
			v, err := e.eval(sub)
			if err != nil {
				return nil, err
			}
			s += runtime.ToString(v) + x.Quasis[i+1]
		}
		return s, nil
	case *Unary:
		return e.evalUnary(x)
	case *Binary:
		return e.evalBinary(x)
	case *Cond:
		test, err := e.eval(x.Test)
		if err != nil {
			return nil, err
		}
		if runtime.Truthy(test) {
			return e.eval(x.Then)
		}
		return e.eval(x.Else)
	case *Member:
		obj, err := e.eval(x.X)
		if err != nil {
			return nil, err
		}
		if x.Optional && runtime.IsNullish(obj) {
			return undefinedValue, nil
		}
		key, err := e.propertyKey(x)
		if err != nil {
			return nil, err
		}
		return getProperty(obj, key)
	case *Call:
		return e.evalCall(x)
	case *Helper:
		args := make([]any, len(x.Args))
		for i, a := range x.Args {
			v, err := e.eval(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return callHelper(x.Name, args)
	}
	return nil, fmt.Errorf("unsupported expression %T", n)
}

func (e *evaluator) propertyKey(m *Member) (string, error) {
	if !m.Computed {
		return m.Prop.(*Literal).Value.(string), nil
	}
	k, err := e.eval(m.Prop)
	if err != nil {
		return "", err
	}
	return runtime.ToString(k), nil
}

func (e *evaluator) evalUnary(u *Unary) (any, error) {
	if u.Op == "typeof" {
		if id, ok := u.X.(*Ident); ok {
			if _, found := e.scope.Lookup(id.Name); !found {
				return "undefined", nil
			}
		}
	}
	x, err := e.eval(u.X)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case "!":
		return !runtime.Truthy(x), nil
	case "-":
		return -runtime.ToNumber(x), nil
	case "+":
		return runtime.ToNumber(x), nil
	case "typeof":
		return runtime.TypeOf(x), nil
	case "void":
		return undefinedValue, nil
	}
	return nil, fmt.Errorf("unknown unary operator %q", u.Op)
}

func (e *evaluator) evalBinary(b *Binary) (any, error) {
	l, err := e.eval(b.L)
	if err != nil {
		return nil, err
	}
	switch b.Op {
	case "&&":
		if !runtime.Truthy(l) {
			return l, nil
		}
		return e.eval(b.R)
	case "||":
		if runtime.Truthy(l) {
			return l, nil
		}
		return e.eval(b.R)
	case "??":
		if !runtime.IsNullish(l) {
			return l, nil
		}
		return e.eval(b.R)
	}

	r, err := e.eval(b.R)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case "+":
		lp, rp := toPrimitive(l), toPrimitive(r)
		_, ls := lp.(string)
		_, rs := rp.(string)
		if ls || rs {
			return runtime.ToString(lp) + runtime.ToString(rp), nil
		}
		return runtime.ToNumber(lp) + runtime.ToNumber(rp), nil
	case "-":
		return runtime.ToNumber(l) - runtime.ToNumber(r), nil
	case "*":
		return runtime.ToNumber(l) * runtime.ToNumber(r), nil
	case "/":
		return runtime.ToNumber(l) / runtime.ToNumber(r), nil
	case "%":
		return math.Mod(runtime.ToNumber(l), runtime.ToNumber(r)), nil
	case "**":
		return math.Pow(runtime.ToNumber(l), runtime.ToNumber(r)), nil
	case "==":
		return runtime.LooseEquals(l, r), nil
	case "!=":
		return !runtime.LooseEquals(l, r), nil
	case "===":
		return runtime.StrictEquals(l, r), nil
	case "!==":
		return !runtime.StrictEquals(l, r), nil
	case "<", ">", "<=", ">=":
		return compare(b.Op, toPrimitive(l), toPrimitive(r)), nil
	case "in":
		obj, ok := r.(*runtime.Object)
		if !ok {
			if arr, ok := r.([]any); ok {
				idx := runtime.ToNumber(l)
				return idx >= 0 && idx < float64(len(arr)) && idx == math.Trunc(idx), nil
			}
			return nil, typeError("Cannot use 'in' operator to search for '%s' in %s", runtime.ToString(l), runtime.ToString(r))
		}
		return obj.Has(runtime.ToString(l)), nil
	}
	return nil, fmt.Errorf("unknown operator %q", b.Op)
}

func toPrimitive(v any) any {
	switch v.(type) {
	case []any, *runtime.Object:
		return runtime.ToString(v)
	}
	return v
}

func compare(op string, l, r any) bool {
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs
		case ">":
			return ls > rs
		case "<=":
			return ls <= rs
		default:
			return ls >= rs
		}
	}
	a, b := runtime.ToNumber(l), runtime.ToNumber(r)
	switch op {
	case "<":
		return a < b
	case ">":
		return a > b
	case "<=":
		return a <= b
	default:
		return a >= b
	}
}

func (e *evaluator) evalCall(c *Call) (any, error) {
	m, ok := c.Callee.(*Member)
	if !ok {
		callee, err := e.eval(c.Callee)
		if err != nil {
			return nil, err
		}
		return nil, typeError("%s is not a function", describe(c.Callee, callee))
	}

	recv, err := e.eval(m.X)
	if err != nil {
		return nil, err
	}
	if m.Optional && runtime.IsNullish(recv) {
		return undefinedValue, nil
	}
	name, err := e.propertyKey(m)
	if err != nil {
		return nil, err
	}

	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return callMethod(recv, name, args)
}

func describe(n Node, v any) string {
	if id, ok := n.(*Ident); ok {
		return id.Name
	}
	return runtime.ToString(v)
}

// getProperty reads obj[key].
func getProperty(obj any, key string) (any, error) {
	switch x := obj.(type) {
	case nil:
		return nil, typeError("Cannot read properties of null (reading '%s')", key)
	case *runtime.Object:
		if v, ok := x.Get(key); ok {
			return v, nil
		}
		return undefinedValue, nil
	case []any:
		if key == "length" {
			return float64(len(x)), nil
		}
		if i, ok := arrayIndex(key); ok && i < len(x) {
			return x[i], nil
		}
		return undefinedValue, nil
	case string:
		runes := []rune(x)
		if key == "length" {
			return float64(len(runes)), nil
		}
		if i, ok := arrayIndex(key); ok && i < len(runes) {
			return string(runes[i]), nil
		}
		return undefinedValue, nil
	}
	if runtime.IsUndefined(obj) {
		return nil, typeError("Cannot read properties of undefined (reading '%s')", key)
	}
	return undefinedValue, nil
}

func arrayIndex(key string) (int, bool) {
	if key == "" || len(key) > 9 {
		return 0, false
	}
	n := 0
	for i := 0; i < len(key); i++ {
		if !isDigit(key[i]) || (i == 0 && key[i] == '0' && len(key) > 1) {
			return 0, false
		}
		n = n*10 + int(key[i]-'0')
	}
	return n, true
}

func callHelper(name string, args []any) (any, error) {
	arg := func(i int) any {
		if i < len(args) {
			return args[i]
		}
		return undefinedValue
	}
	switch name {
	case "escape":
		return runtime.EscapeValue(arg(0)), nil
	case "attr":
		return runtime.Attr(runtime.ToString(arg(0)), arg(1), runtime.Truthy(arg(2)), runtime.Truthy(arg(3))), nil
	case "attrs":
		obj, _ := arg(0).(*runtime.Object)
		return runtime.Attrs(obj, runtime.Truthy(arg(1))), nil
	case "classes":
		var escaping []bool
		if flags, ok := arg(1).([]any); ok {
			for _, f := range flags {
				escaping = append(escaping, runtime.Truthy(f))
			}
		}
		return runtime.Classes(arg(0), escaping), nil
	case "style":
		return runtime.Style(arg(0)), nil
	case "merge":
		list, ok := arg(0).([]any)
		if !ok {
			a, _ := arg(0).(*runtime.Object)
			b, _ := arg(1).(*runtime.Object)
			return runtime.Merge(a, b), nil
		}
		objs := make([]*runtime.Object, 0, len(list))
		for _, item := range list {
			obj, ok := item.(*runtime.Object)
			if !ok {
				return nil, typeError("merge expects attribute objects, got %s", runtime.TypeOf(item))
			}
			objs = append(objs, obj)
		}
		return runtime.MergeAll(objs), nil
	}
	return nil, typeError("pug.%s is not a function", name)
}
