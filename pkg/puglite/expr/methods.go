package expr

import (
	"math"
	"strconv"
	"strings"

	"github.com/puglite/puglite/pkg/puglite/runtime"
)

// callMethod invokes one of the side-effect-free built-in methods on a
// string, array or number receiver.
func callMethod(recv any, name string, args []any) (any, error) {
	switch x := recv.(type) {
	case string:
		if fn, ok := stringMethods[name]; ok {
			return fn([]rune(x), args), nil
		}
	case []any:
		if fn, ok := arrayMethods[name]; ok {
			return fn(x, args), nil
		}
	case float64:
		switch name {
		case "toFixed":
			digits := int(toInteger(argAt(args, 0)))
			if digits < 0 || digits > 100 {
				return nil, &EvalError{Kind: "RangeError", Msg: "toFixed() digits argument must be between 0 and 100"}
			}
			return strconv.FormatFloat(x, 'f', digits, 64), nil
		case "toString":
			return runtime.FormatNumber(x), nil
		}
	case nil:
		return nil, typeError("Cannot read properties of null (reading '%s')", name)
	}
	if runtime.IsUndefined(recv) {
		return nil, typeError("Cannot read properties of undefined (reading '%s')", name)
	}
	if obj, ok := recv.(*runtime.Object); ok && name == "toString" {
		return runtime.ToString(obj), nil
	}
	return nil, typeError("%s.%s is not a function", runtime.TypeOf(recv), name)
}

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return undefinedValue
}

func toInteger(v any) float64 {
	f := runtime.ToNumber(v)
	if math.IsNaN(f) {
		return 0
	}
	return math.Trunc(f)
}

// relIndex resolves a possibly negative index against length n.
func relIndex(v any, n int, def int) int {
	if runtime.IsUndefined(v) {
		return def
	}
	f := toInteger(v)
	if f < 0 {
		f += float64(n)
	}
	return clamp(f, n)
}

func clamp(f float64, n int) int {
	if f < 0 {
		return 0
	}
	if f > float64(n) {
		return n
	}
	return int(f)
}

var stringMethods = map[string]func(s []rune, args []any) any{
	"substr": func(s []rune, args []any) any {
		start := relIndex(argAt(args, 0), len(s), 0)
		length := len(s) - start
		if a := argAt(args, 1); !runtime.IsUndefined(a) {
			length = clamp(toInteger(a), len(s)-start)
		}
		return string(s[start : start+length])
	},
	"substring": func(s []rune, args []any) any {
		start := clamp(toInteger(argAt(args, 0)), len(s))
		end := len(s)
		if a := argAt(args, 1); !runtime.IsUndefined(a) {
			end = clamp(toInteger(a), len(s))
		}
		if start > end {
			start, end = end, start
		}
		return string(s[start:end])
	},
	"slice": func(s []rune, args []any) any {
		start := relIndex(argAt(args, 0), len(s), 0)
		end := relIndex(argAt(args, 1), len(s), len(s))
		if start >= end {
			return ""
		}
		return string(s[start:end])
	},
	"charAt": func(s []rune, args []any) any {
		i := toInteger(argAt(args, 0))
		if i < 0 || i >= float64(len(s)) {
			return ""
		}
		return string(s[int(i)])
	},
	"toUpperCase": func(s []rune, _ []any) any { return strings.ToUpper(string(s)) },
	"toLowerCase": func(s []rune, _ []any) any { return strings.ToLower(string(s)) },
	"trim":        func(s []rune, _ []any) any { return strings.TrimSpace(string(s)) },
	"trimStart":   func(s []rune, _ []any) any { return strings.TrimLeft(string(s), " \t\n\r\v\f") },
	"trimEnd":     func(s []rune, _ []any) any { return strings.TrimRight(string(s), " \t\n\r\v\f") },
	"toString":    func(s []rune, _ []any) any { return string(s) },
	"indexOf": func(s []rune, args []any) any {
		return float64(runeIndex(s, []rune(runtime.ToString(argAt(args, 0)))))
	},
	"includes": func(s []rune, args []any) any {
		return strings.Contains(string(s), runtime.ToString(argAt(args, 0)))
	},
	"startsWith": func(s []rune, args []any) any {
		return strings.HasPrefix(string(s), runtime.ToString(argAt(args, 0)))
	},
	"endsWith": func(s []rune, args []any) any {
		return strings.HasSuffix(string(s), runtime.ToString(argAt(args, 0)))
	},
	"concat": func(s []rune, args []any) any {
		out := string(s)
		for _, a := range args {
			out += runtime.ToString(a)
		}
		return out
	},
	"repeat": func(s []rune, args []any) any {
		n := toInteger(argAt(args, 0))
		if n <= 0 {
			return ""
		}
		return strings.Repeat(string(s), int(n))
	},
	"padStart": func(s []rune, args []any) any { return pad(s, args, true) },
	"padEnd":   func(s []rune, args []any) any { return pad(s, args, false) },
	"replace": func(s []rune, args []any) any {
		return strings.Replace(string(s), runtime.ToString(argAt(args, 0)), runtime.ToString(argAt(args, 1)), 1)
	},
	"replaceAll": func(s []rune, args []any) any {
		return strings.ReplaceAll(string(s), runtime.ToString(argAt(args, 0)), runtime.ToString(argAt(args, 1)))
	},
	"split": func(s []rune, args []any) any {
		sepArg := argAt(args, 0)
		var parts []string
		switch {
		case runtime.IsUndefined(sepArg):
			parts = []string{string(s)}
		case runtime.ToString(sepArg) == "":
			for _, r := range s {
				parts = append(parts, string(r))
			}
		default:
			parts = strings.Split(string(s), runtime.ToString(sepArg))
		}
		if limit := argAt(args, 1); !runtime.IsUndefined(limit) {
			if n := int(toInteger(limit)); n >= 0 && n < len(parts) {
				parts = parts[:n]
			}
		}
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out
	},
}

func runeIndex(s, sub []rune) int {
	if len(sub) == 0 {
		return 0
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if string(s[i:i+len(sub)]) == string(sub) {
			return i
		}
	}
	return -1
}

func pad(s []rune, args []any, start bool) string {
	target := int(toInteger(argAt(args, 0)))
	fill := " "
	if f := argAt(args, 1); !runtime.IsUndefined(f) {
		fill = runtime.ToString(f)
	}
	if target <= len(s) || fill == "" {
		return string(s)
	}
	need := target - len(s)
	fillRunes := []rune(strings.Repeat(fill, need/len([]rune(fill))+1))[:need]
	if start {
		return string(fillRunes) + string(s)
	}
	return string(s) + string(fillRunes)
}

var arrayMethods = map[string]func(a []any, args []any) any{
	"join": func(a []any, args []any) any {
		sep := ","
		if s := argAt(args, 0); !runtime.IsUndefined(s) {
			sep = runtime.ToString(s)
		}
		parts := make([]string, len(a))
		for i, el := range a {
			if !runtime.IsNullish(el) {
				parts[i] = runtime.ToString(el)
			}
		}
		return strings.Join(parts, sep)
	},
	"slice": func(a []any, args []any) any {
		start := relIndex(argAt(args, 0), len(a), 0)
		end := relIndex(argAt(args, 1), len(a), len(a))
		if start >= end {
			return []any{}
		}
		return append([]any{}, a[start:end]...)
	},
	"concat": func(a []any, args []any) any {
		out := append([]any{}, a...)
		for _, arg := range args {
			if arr, ok := arg.([]any); ok {
				out = append(out, arr...)
			} else {
				out = append(out, arg)
			}
		}
		return out
	},
	"indexOf": func(a []any, args []any) any {
		for i, el := range a {
			if runtime.StrictEquals(el, argAt(args, 0)) {
				return float64(i)
			}
		}
		return float64(-1)
	},
	"includes": func(a []any, args []any) any {
		for _, el := range a {
			if runtime.StrictEquals(el, argAt(args, 0)) {
				return true
			}
		}
		return false
	},
	"reverse": func(a []any, _ []any) any {
		out := make([]any, len(a))
		for i, el := range a {
			out[len(a)-1-i] = el
		}
		return out
	},
	"toString": func(a []any, _ []any) any { return runtime.ToString(a) },
}
