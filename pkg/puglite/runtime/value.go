// Package runtime implements the helper functions referenced by generated
// template code, together with the small JavaScript-like value model they
// operate on.
//
// Values are represented as:
//
//	Undefined   undefined
//	nil         null
//	bool        boolean
//	float64     number
//	string      string
//	[]any       array
//	*Object     object (insertion ordered)
package runtime

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined is the JavaScript undefined value.
var Undefined any = undefined{}

// IsUndefined reports whether v is Undefined.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// IsNullish reports whether v is null or undefined.
func IsNullish(v any) bool {
	return v == nil || IsUndefined(v)
}

// Object is an insertion-ordered string-keyed map.
type Object struct {
	keys []string
	vals map[string]any
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{vals: make(map[string]any)}
}

// ObjectOf builds an object from alternating key/value pairs.
func ObjectOf(pairs ...any) *Object {
	o := NewObject()
	for i := 0; i+1 < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1])
	}
	return o
}

// Set assigns key, keeping the original position of an existing key.
func (o *Object) Set(key string, val any) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = val
}

// Get returns the value stored at key.
func (o *Object) Get(key string) (any, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.vals[key]
	return ok
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int {
	return len(o.keys)
}

// Clone returns a shallow copy.
func (o *Object) Clone() *Object {
	c := NewObject()
	for _, k := range o.keys {
		c.Set(k, o.vals[k])
	}
	return c
}

// Truthy implements JavaScript truthiness.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil, undefined:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// TypeOf returns the result of the JavaScript typeof operator.
func TypeOf(v any) string {
	switch v.(type) {
	case undefined:
		return "undefined"
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case string:
		return "string"
	default:
		return "object"
	}
}

// ToString converts a value the way String(v) does.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case undefined:
		return "undefined"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return FormatNumber(x)
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, el := range x {
			if !IsNullish(el) {
				parts[i] = ToString(el)
			}
		}
		return strings.Join(parts, ",")
	case *Object:
		return "[object Object]"
	default:
		return ""
	}
}

// ToNumber converts a value the way Number(v) does.
func ToNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case undefined:
		return math.NaN()
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		return x
	case int:
		return float64(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			n, err := strconv.ParseUint(s[2:], 16, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
		switch s {
		case "Infinity", "+Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case []any, *Object:
		return ToNumber(ToString(x))
	default:
		return math.NaN()
	}
}

// FormatNumber renders a float64 the way JavaScript prints numbers.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	exp = strings.TrimLeft(exp, "+")
	sign := "+"
	if strings.HasPrefix(exp, "-") {
		sign = "-"
		exp = exp[1:]
	}
	exp = strings.TrimLeft(exp, "0")
	return mant + "e" + sign + exp
}

// StrictEquals implements ===.
func StrictEquals(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case undefined:
		return IsUndefined(b)
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		return ok && len(x) > 0 && len(y) > 0 && &x[0] == &y[0]
	case *Object:
		y, ok := b.(*Object)
		return ok && x == y
	}
	return false
}

// LooseEquals implements ==.
func LooseEquals(a, b any) bool {
	if IsNullish(a) || IsNullish(b) {
		return IsNullish(a) && IsNullish(b)
	}
	if TypeOf(a) == TypeOf(b) {
		return StrictEquals(a, b)
	}
	if TypeOf(a) == "object" {
		a = ToString(a)
	}
	if TypeOf(b) == "object" {
		b = ToString(b)
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa == sb
		}
	}
	return ToNumber(a) == ToNumber(b)
}

// FromGo converts ordinary Go values into the value model. Integer and
// float kinds become float64, maps become objects with sorted keys, and
// slices become arrays. Values already in the model pass through.
func FromGo(v any) any {
	switch x := v.(type) {
	case nil, undefined, bool, float64, string, *Object:
		return v
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = FromGo(el)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = el
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, FromGo(x[k]))
		}
		return obj
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, x[k])
		}
		return obj
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}
