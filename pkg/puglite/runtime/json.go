package runtime

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Stringify renders v the way JSON.stringify does. Undefined at the top
// level yields ok == false.
func Stringify(v any) (s string, ok bool) {
	var sb strings.Builder
	if !writeJSON(&sb, v) {
		return "", false
	}
	return sb.String(), true
}

// Quote renders s as a double-quoted JavaScript string literal. The line
// and paragraph separators are escaped so the literal is valid source.
func Quote(s string) string {
	var sb strings.Builder
	writeJSONString(&sb, s)
	return sb.String()
}

func writeJSON(sb *strings.Builder, v any) bool {
	switch x := v.(type) {
	case undefined:
		return false
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			sb.WriteString("null")
		} else {
			sb.WriteString(FormatNumber(x))
		}
	case int:
		sb.WriteString(strconv.Itoa(x))
	case string:
		writeJSONString(sb, x)
	case []any:
		sb.WriteByte('[')
		for i, el := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			if !writeJSON(sb, el) {
				sb.WriteString("null")
			}
		}
		sb.WriteByte(']')
	case *Object:
		sb.WriteByte('{')
		first := true
		for _, k := range x.keys {
			val := x.vals[k]
			if IsUndefined(val) {
				continue
			}
			if !first {
				sb.WriteByte(',')
			}
			first = false
			writeJSONString(sb, k)
			sb.WriteByte(':')
			writeJSON(sb, val)
		}
		sb.WriteByte('}')
	default:
		return false
	}
	return true
}

func writeJSONString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			sb.WriteString(`\"`)
		case r == '\\':
			sb.WriteString(`\\`)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == '\b':
			sb.WriteString(`\b`)
		case r == '\f':
			sb.WriteString(`\f`)
		case r < 0x20, r == '\u2028', r == '\u2029':
			sb.WriteString(`\u`)
			hex := strconv.FormatInt(int64(r), 16)
			sb.WriteString(strings.Repeat("0", 4-len(hex)))
			sb.WriteString(hex)
		default:
			sb.WriteString(s[i : i+size])
		}
		i += size
	}
	sb.WriteByte('"')
}
