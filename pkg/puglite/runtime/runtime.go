package runtime

import (
	"strings"
)

// Escape converts a value to a string and escapes the HTML-significant
// characters &, <, > and ".
func Escape(v any) string {
	s := ToString(v)
	if !strings.ContainsAny(s, `"&<>`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			sb.WriteString("&quot;")
		case '&':
			sb.WriteString("&amp;")
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// EscapeValue is Escape for attribute objects: a value with nothing to
// escape is returned unchanged, so booleans and numbers keep their type.
func EscapeValue(v any) any {
	if !strings.ContainsAny(ToString(v), `"&<>`) {
		return v
	}
	return Escape(v)
}

// Attr renders a single attribute with a leading space, or "" when the
// value omits it (false, null, undefined, or an empty class/style).
func Attr(key string, val any, escaped, terse bool) string {
	if val == false || IsNullish(val) || (!Truthy(val) && (key == "class" || key == "style")) {
		return ""
	}
	if val == true {
		// #ref template references are always bare.
		if terse || strings.HasPrefix(key, "#") {
			return " " + key
		}
		return " " + key + `="` + key + `"`
	}
	s, isString := val.(string)
	if !isString {
		s, _ = Stringify(val)
		if !escaped && strings.Contains(s, `"`) {
			return " " + key + "='" + strings.ReplaceAll(s, "'", "&#39;") + "'"
		}
	}
	if escaped {
		s = Escape(s)
	}
	return " " + key + `="` + s + `"`
}

// Attrs renders every key of obj as an attribute. The class attribute is
// always rendered first; style objects are flattened with Style.
func Attrs(obj *Object, terse bool) string {
	if obj == nil {
		return ""
	}
	var sb strings.Builder
	classAttr := ""
	for _, key := range obj.keys {
		val := obj.vals[key]
		switch key {
		case "class":
			classAttr = Attr(key, Classes(val, nil), false, terse)
			continue
		case "style":
			val = Style(val)
		}
		sb.WriteString(Attr(key, val, false, terse))
	}
	return classAttr + sb.String()
}

// Classes flattens a class value: arrays are joined with single spaces
// skipping empty entries, objects contribute their truthy keys, and
// anything else is converted to a string. escaping, when non-nil, marks the
// array entries that must be HTML-escaped.
func Classes(val any, escaping []bool) string {
	switch x := val.(type) {
	case []any:
		var sb strings.Builder
		for i, item := range x {
			name := Classes(item, nil)
			if name == "" {
				continue
			}
			if i < len(escaping) && escaping[i] {
				name = Escape(name)
			}
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(name)
		}
		return sb.String()
	case *Object:
		var names []string
		for _, key := range x.keys {
			if key != "" && Truthy(x.vals[key]) {
				names = append(names, key)
			}
		}
		return strings.Join(names, " ")
	default:
		if !Truthy(val) {
			return ""
		}
		return ToString(val)
	}
}

// Style flattens a style value: objects become "key:value;" pairs.
func Style(val any) string {
	if !Truthy(val) {
		return ""
	}
	obj, ok := val.(*Object)
	if !ok {
		return ToString(val)
	}
	var sb strings.Builder
	for _, key := range obj.keys {
		sb.WriteString(key)
		sb.WriteByte(':')
		sb.WriteString(ToString(obj.vals[key]))
		sb.WriteByte(';')
	}
	return sb.String()
}

// Merge merges b into a and returns a. Class values are concatenated into
// an array, style values are joined with ";", and every other key takes
// the right-hand value.
func Merge(a, b *Object) *Object {
	if a == nil {
		a = NewObject()
	}
	if b == nil {
		return a
	}
	for _, key := range b.keys {
		bv := b.vals[key]
		switch key {
		case "class":
			av, _ := a.Get("class")
			var merged []any
			if arr, ok := av.([]any); ok {
				merged = append(merged, arr...)
			} else if Truthy(av) {
				merged = append(merged, av)
			}
			if arr, ok := bv.([]any); ok {
				merged = append(merged, arr...)
			} else if Truthy(bv) {
				merged = append(merged, bv)
			}
			if merged == nil {
				merged = []any{}
			}
			a.Set("class", merged)
		case "style":
			av, _ := a.Get("style")
			a.Set("style", terminated(Style(av))+terminated(Style(bv)))
		default:
			a.Set(key, bv)
		}
	}
	return a
}

// MergeAll folds Merge over a list of attribute objects, starting from a
// copy of the first one.
func MergeAll(objs []*Object) *Object {
	if len(objs) == 0 {
		return NewObject()
	}
	out := objs[0].Clone()
	for _, o := range objs[1:] {
		out = Merge(out, o)
	}
	return out
}

func terminated(s string) string {
	if s != "" && !strings.HasSuffix(s, ";") {
		return s + ";"
	}
	return s
}
